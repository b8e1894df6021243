package rbac

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// MaxHierarchyDepth bounds the parent-role chain of any role
const MaxHierarchyDepth = 32

// PermissionRegistry is the immutable catalog of permission definitions
type PermissionRegistry struct {
	ordered []Permission
	byID    map[string]int
	byKey   map[string]int
}

// Get returns the permission with the given id
func (r *PermissionRegistry) Get(id string) (Permission, bool) {
	idx, ok := r.byID[id]
	if !ok {
		return Permission{}, false
	}
	return r.ordered[idx], true
}

// Lookup returns the permission granting action on resource
func (r *PermissionRegistry) Lookup(resource, action string) (Permission, bool) {
	idx, ok := r.byKey[resource+":"+action]
	if !ok {
		return Permission{}, false
	}
	return r.ordered[idx], true
}

// List returns all permissions in definition order
func (r *PermissionRegistry) List() []Permission {
	out := make([]Permission, len(r.ordered))
	copy(out, r.ordered)
	return out
}

// Len returns the number of permissions
func (r *PermissionRegistry) Len() int {
	return len(r.ordered)
}

// position returns the definition index of a permission id, used for stable ordering
func (r *PermissionRegistry) position(id string) int {
	if idx, ok := r.byID[id]; ok {
		return idx
	}
	return len(r.ordered)
}

// RoleRegistry is the immutable catalog of roles with precomputed effective permissions
type RoleRegistry struct {
	ordered   []Role
	byID      map[string]int
	effective map[string][]string
	ancestors map[string][]string
}

// Get returns the role with the given id
func (r *RoleRegistry) Get(id string) (Role, bool) {
	idx, ok := r.byID[id]
	if !ok {
		return Role{}, false
	}
	role := r.ordered[idx]
	role.Permissions = append([]string(nil), role.Permissions...)
	return role, true
}

// List returns all roles in definition order
func (r *RoleRegistry) List() []Role {
	out := make([]Role, 0, len(r.ordered))
	for _, role := range r.ordered {
		role.Permissions = append([]string(nil), role.Permissions...)
		out = append(out, role)
	}
	return out
}

// Len returns the number of roles
func (r *RoleRegistry) Len() int {
	return len(r.ordered)
}

// EffectivePermissions returns the role's own permissions plus everything inherited
// from its ancestors, in permission definition order.
func (r *RoleRegistry) EffectivePermissions(roleID string) ([]string, error) {
	perms, ok := r.effective[roleID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrRoleNotFound, roleID)
	}
	return append([]string(nil), perms...), nil
}

// grants reports whether the role's effective set contains the permission
func (r *RoleRegistry) grants(roleID, permissionID string) bool {
	for _, pid := range r.effective[roleID] {
		if pid == permissionID {
			return true
		}
	}
	return false
}

// has reports whether the role is defined
func (r *RoleRegistry) has(roleID string) bool {
	_, ok := r.byID[roleID]
	return ok
}

// Ancestors returns the parent chain of a role, nearest parent first
func (r *RoleRegistry) Ancestors(roleID string) ([]string, error) {
	chain, ok := r.ancestors[roleID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrRoleNotFound, roleID)
	}
	return append([]string(nil), chain...), nil
}

// HierarchyLevel returns the role's own level. Levels are not inherited.
func (r *RoleRegistry) HierarchyLevel(roleID string) (int, error) {
	idx, ok := r.byID[roleID]
	if !ok {
		return 0, fmt.Errorf("%w: %s", ErrRoleNotFound, roleID)
	}
	return r.ordered[idx].HierarchyLevel, nil
}

// Catalog pairs the permission and role registries built from one definition table
type Catalog struct {
	Permissions *PermissionRegistry
	Roles       *RoleRegistry
}

// NewCatalog validates a definition table and builds the immutable registries.
// Every problem found is reported; a catalog is only returned when the table is clean.
func NewCatalog(def *Definition) (*Catalog, error) {
	if def == nil {
		return nil, fmt.Errorf("%w: nil definition", ErrInvalidDefinition)
	}

	var problems []error

	perms := &PermissionRegistry{
		byID:  make(map[string]int, len(def.Permissions)),
		byKey: make(map[string]int, len(def.Permissions)),
	}
	for i, pd := range def.Permissions {
		id := strings.TrimSpace(pd.ID)
		resource := strings.TrimSpace(pd.Resource)
		action := strings.TrimSpace(pd.Action)
		if id == "" || resource == "" || action == "" {
			problems = append(problems, configErr(ErrInvalidDefinition,
				fmt.Sprintf("permission #%d requires id, resource and action", i), id))
			continue
		}
		if strings.Contains(resource, ":") || strings.Contains(action, ":") {
			problems = append(problems, configErr(ErrInvalidDefinition,
				"resource and action must not contain ':'", id))
			continue
		}
		if _, dup := perms.byID[id]; dup {
			problems = append(problems, configErr(ErrDuplicateID, "permission id defined twice", id))
			continue
		}
		p := Permission{
			ID:          id,
			Resource:    resource,
			Action:      action,
			Name:        pd.Name,
			Description: pd.Description,
			Scoped:      pd.Scoped,
		}
		if prev, dup := perms.byKey[p.Key()]; dup {
			problems = append(problems, configErr(ErrDuplicateID,
				fmt.Sprintf("resource:action %s claimed twice", p.Key()), perms.ordered[prev].ID, id))
			continue
		}
		perms.byID[id] = len(perms.ordered)
		perms.byKey[p.Key()] = len(perms.ordered)
		perms.ordered = append(perms.ordered, p)
	}

	roles := &RoleRegistry{
		byID:      make(map[string]int, len(def.Roles)),
		effective: make(map[string][]string, len(def.Roles)),
		ancestors: make(map[string][]string, len(def.Roles)),
	}
	for i, rd := range def.Roles {
		id := strings.TrimSpace(rd.ID)
		if id == "" {
			problems = append(problems, configErr(ErrInvalidDefinition, fmt.Sprintf("role #%d requires an id", i)))
			continue
		}
		if _, dup := roles.byID[id]; dup {
			problems = append(problems, configErr(ErrDuplicateID, "role id defined twice", id))
			continue
		}
		role := Role{
			ID:             id,
			Name:           rd.Name,
			Description:    rd.Description,
			HierarchyLevel: rd.HierarchyLevel,
			ParentRoleID:   strings.TrimSpace(rd.Parent),
		}
		if role.Name == "" {
			role.Name = id
		}
		seen := make(map[string]struct{}, len(rd.Permissions))
		for _, pid := range rd.Permissions {
			pid = strings.TrimSpace(pid)
			if _, ok := perms.byID[pid]; !ok {
				problems = append(problems, configErr(ErrUnknownPermission,
					fmt.Sprintf("role %s references %q", id, pid), id, pid))
				continue
			}
			if _, dup := seen[pid]; dup {
				continue
			}
			seen[pid] = struct{}{}
			role.Permissions = append(role.Permissions, pid)
		}
		roles.byID[id] = len(roles.ordered)
		roles.ordered = append(roles.ordered, role)
	}

	parents := make(map[string]string, len(roles.ordered))
	for _, role := range roles.ordered {
		if !role.HasParent() {
			continue
		}
		if role.ParentRoleID == role.ID {
			problems = append(problems, configErr(ErrCyclicHierarchy, "role is its own parent", role.ID))
			continue
		}
		if _, ok := roles.byID[role.ParentRoleID]; !ok {
			problems = append(problems, configErr(ErrRoleNotFound,
				fmt.Sprintf("parent %q of role %s is not defined", role.ParentRoleID, role.ID), role.ID, role.ParentRoleID))
			continue
		}
		parents[role.ID] = role.ParentRoleID
	}

	for _, role := range roles.ordered {
		chain, err := walkHierarchy(role.ID, parents)
		if err != nil {
			problems = append(problems, err)
			continue
		}
		roles.ancestors[role.ID] = chain[1:]

		set := make(map[string]struct{})
		for _, rid := range chain {
			for _, pid := range roles.ordered[roles.byID[rid]].Permissions {
				set[pid] = struct{}{}
			}
		}
		effective := make([]string, 0, len(set))
		for pid := range set {
			effective = append(effective, pid)
		}
		sort.Slice(effective, func(i, j int) bool {
			return perms.position(effective[i]) < perms.position(effective[j])
		})
		roles.effective[role.ID] = effective
	}

	if len(problems) > 0 {
		return nil, errors.Join(problems...)
	}

	return &Catalog{Permissions: perms, Roles: roles}, nil
}

// MustCatalog is like NewCatalog but panics on an invalid table.
// It is intended for package-level built-in catalogs.
func MustCatalog(def *Definition) *Catalog {
	c, err := NewCatalog(def)
	if err != nil {
		panic(err)
	}
	return c
}

// walkHierarchy follows parent links from roleID and returns the chain starting
// with roleID itself. A revisited role fails with ErrCyclicHierarchy and a chain
// longer than MaxHierarchyDepth fails with ErrHierarchyTooDeep.
func walkHierarchy(roleID string, parents map[string]string) ([]string, error) {
	chain := []string{roleID}
	visited := map[string]struct{}{roleID: {}}

	current := roleID
	for {
		parent, ok := parents[current]
		if !ok {
			return chain, nil
		}
		if _, seen := visited[parent]; seen {
			return nil, configErr(ErrCyclicHierarchy,
				fmt.Sprintf("parent chain of %s revisits %s", roleID, parent), append(chain, parent)...)
		}
		if len(chain) > MaxHierarchyDepth {
			return nil, configErr(ErrHierarchyTooDeep,
				fmt.Sprintf("parent chain of %s exceeds %d levels", roleID, MaxHierarchyDepth), roleID)
		}
		visited[parent] = struct{}{}
		chain = append(chain, parent)
		current = parent
	}
}
