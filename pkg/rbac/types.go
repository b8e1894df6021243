package rbac

import (
	"time"
)

// Permission is an atomic grant of one action on one resource type
type Permission struct {
	ID          string `json:"id"`
	Resource    string `json:"resource"`
	Action      string `json:"action"`
	Name        string `json:"name,omitempty"`
	Description string `json:"description,omitempty"`

	// Scoped permissions are additionally constrained to resource instances
	// inside the acting user's organization/department when the access
	// context asks for scope enforcement.
	Scoped bool `json:"scoped"`
}

// Key returns the resource:action form of the permission
func (p Permission) Key() string {
	return p.Resource + ":" + p.Action
}

// Role is a named bundle of permissions with an authority level
type Role struct {
	ID             string   `json:"id"`
	Name           string   `json:"name"`
	Description    string   `json:"description,omitempty"`
	Permissions    []string `json:"permissions"`
	HierarchyLevel int      `json:"hierarchy_level"`
	ParentRoleID   string   `json:"parent_role_id,omitempty"` // empty for root roles
}

// HasParent reports whether the role inherits from another role
func (r Role) HasParent() bool {
	return r.ParentRoleID != ""
}

// AssignmentScope restricts where an assigned role applies
type AssignmentScope struct {
	OrganizationID string `json:"organization_id,omitempty"`
	DepartmentID   string `json:"department_id,omitempty"`
}

// IsZero reports whether the scope restricts nothing
func (s AssignmentScope) IsZero() bool {
	return s.OrganizationID == "" && s.DepartmentID == ""
}

// Assignment binds a role to a user
type Assignment struct {
	UserID     string           `json:"user_id"`
	RoleID     string           `json:"role_id"`
	AssignedAt time.Time        `json:"assigned_at"`
	ExpiresAt  *time.Time       `json:"expires_at,omitempty"`
	Scope      *AssignmentScope `json:"scope,omitempty"`
	GrantedBy  string           `json:"granted_by,omitempty"`
}

// ActiveAt reports whether the assignment is in force at t
func (a Assignment) ActiveAt(t time.Time) bool {
	if a.ExpiresAt == nil {
		return true
	}
	return t.Before(*a.ExpiresAt)
}

// AssignOption customizes an assignment created through AssignRole
type AssignOption func(*Assignment)

// WithExpiry makes the assignment lapse at t
func WithExpiry(t time.Time) AssignOption {
	return func(a *Assignment) {
		expires := t.UTC()
		a.ExpiresAt = &expires
	}
}

// WithScope restricts the assignment to an organization and/or department
func WithScope(scope AssignmentScope) AssignOption {
	return func(a *Assignment) {
		if scope.IsZero() {
			a.Scope = nil
			return
		}
		s := scope
		a.Scope = &s
	}
}

// WithGrantedBy records who made the assignment
func WithGrantedBy(userID string) AssignOption {
	return func(a *Assignment) {
		a.GrantedBy = userID
	}
}

// UserType classifies LMS accounts
type UserType string

const (
	UserTypeStudent UserType = "student"
	UserTypeTeacher UserType = "teacher"
	UserTypeAdmin   UserType = "admin"
	UserTypeParent  UserType = "parent"
	UserTypeGuest   UserType = "guest"
)

// UserSnapshot is the resolved acting user an authorization query runs for
type UserSnapshot struct {
	ID             string         `json:"id"`
	UserType       UserType       `json:"user_type,omitempty"`
	OrganizationID string         `json:"organization_id,omitempty"`
	DepartmentID   string         `json:"department_id,omitempty"`
	Metadata       map[string]any `json:"metadata,omitempty"`
}

// RoleGrant is one held role as shown in an access report
type RoleGrant struct {
	ID             string           `json:"id"`
	Name           string           `json:"name"`
	HierarchyLevel int              `json:"hierarchy_level"`
	AssignedAt     time.Time        `json:"assigned_at"`
	ExpiresAt      *time.Time       `json:"expires_at,omitempty"`
	Scope          *AssignmentScope `json:"scope,omitempty"`
}

// AccessReport is an auditable summary of what a user may do.
// It is derived data and is never persisted.
type AccessReport struct {
	UserID            string              `json:"user_id"`
	UserType          UserType            `json:"user_type,omitempty"`
	GeneratedAt       time.Time           `json:"generated_at"`
	Roles             []RoleGrant         `json:"roles"`
	InheritedRoles    []string            `json:"inherited_roles"`
	Permissions       []Permission        `json:"permissions"`
	ResourceAccess    map[string][]string `json:"resource_access"`
	MaxHierarchyLevel int                 `json:"max_hierarchy_level"`
}

// RoleIDs returns the ids of the directly held roles
func (r *AccessReport) RoleIDs() []string {
	ids := make([]string, 0, len(r.Roles))
	for _, role := range r.Roles {
		ids = append(ids, role.ID)
	}
	return ids
}

// Allows reports whether the report lists resource:action as granted
func (r *AccessReport) Allows(resource, action string) bool {
	for _, a := range r.ResourceAccess[resource] {
		if a == action {
			return true
		}
	}
	return false
}
