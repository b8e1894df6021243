// Package rbac is the role-based authorization engine of the LMS.
//
// # Overview
//
// The engine answers "may this user do this?" for guard components in the
// learning platform. It is an in-process library: no network surface, no UI.
//
// It is built from six parts:
//
//  1. Permission registry: immutable table of resource:action grants
//  2. Role registry: named permission bundles with a parent chain and an authority level
//  3. Assignment store: the mutable user -> role bindings (memory, SQL or Redis)
//  4. Context builder: the per-query facts (who, when, which resource instance)
//  5. Evaluator: permission, role and resource queries
//  6. Report generator: an auditable summary of one user's access
//
// # Definitions
//
// Permissions and roles are declared once, in YAML or JSON, and validated as a whole:
//
//	permissions:
//	  - id: course.update
//	    resource: course
//	    action: update
//	    scoped: true
//	roles:
//	  - id: teacher
//	    hierarchy_level: 50
//	    parent: guest
//	    permissions: [course.update]
//
// NewCatalog rejects duplicate ids, unknown permission references, unknown
// parents, cyclic parent chains and chains deeper than MaxHierarchyDepth.
// All problems are reported together as *ConfigError values joined with errors.Join.
//
// # Evaluating
//
//	catalog := rbac.MustCatalog(rbac.DefaultDefinition())
//	evaluator, _ := rbac.NewEvaluator(catalog, rbac.NewMemoryStore())
//	_ = evaluator.AssignRole(ctx, "u-42", rbac.RoleTeacher)
//
//	evaluator.HasPermission(ctx, "u-42", "course.update", nil)          // true
//	evaluator.HasAnyPermission(ctx, "u-42", nil, nil)                   // false
//	evaluator.HasAllPermissions(ctx, "u-42", nil, nil)                  // true
//
// Denial is an ordinary false. Unknown users, unknown permissions, expired
// assignments and store failures all deny.
//
// # Scoping
//
// Permissions flagged scoped are narrowed to resource instances when the
// access context asks for it:
//
//	ac := evaluator.BuildContext(ctx, "u-42", &rbac.ContextOverrides{
//		Resource:    &rbac.ResourceAttributes{Type: "course", ID: "c-1", OrganizationID: "org-2"},
//		Enforcement: &orgEnforcement,
//	})
//	evaluator.CanAccessResource(ctx, "u-42", "course", "update", &ac)
//
// # Contract violations
//
// Empty identifiers and a context built for a different user are programmer
// errors. By default boolean queries panic with *ContractError; with
// WithStrictContracts(false) they are logged, counted and denied.
package rbac
