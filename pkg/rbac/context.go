package rbac

import (
	"maps"
	"time"
)

// ScopeEnforcement selects how strictly scoped permissions are narrowed
// to the resource instance being accessed
type ScopeEnforcement int

const (
	// ScopeNone performs no instance-level narrowing
	ScopeNone ScopeEnforcement = iota
	// ScopeOrganization requires the resource to belong to the user's organization
	ScopeOrganization
	// ScopeDepartment additionally requires a matching department
	ScopeDepartment
)

func (s ScopeEnforcement) String() string {
	switch s {
	case ScopeOrganization:
		return "organization"
	case ScopeDepartment:
		return "department"
	default:
		return "none"
	}
}

// Environment captures when and in which session a query runs
type Environment struct {
	Timestamp time.Time `json:"timestamp"`
	SessionID string    `json:"session_id,omitempty"`
}

// ResourceAttributes describe the resource instance a query targets
type ResourceAttributes struct {
	Type           string `json:"type,omitempty"`
	ID             string `json:"id,omitempty"`
	OrganizationID string `json:"organization_id,omitempty"`
	DepartmentID   string `json:"department_id,omitempty"`
	OwnerID        string `json:"owner_id,omitempty"`
}

// AccessContext is the ambient fact set a single authorization query is evaluated under.
// It is built per call and never cached.
type AccessContext struct {
	User        UserSnapshot        `json:"user"`
	Environment Environment         `json:"environment"`
	Resource    *ResourceAttributes `json:"resource,omitempty"`
	Enforcement ScopeEnforcement    `json:"enforcement"`
}

// ContextOverrides carries caller-supplied fields. Nil fields keep the base value;
// non-nil fields replace it wholesale.
type ContextOverrides struct {
	UserType       *UserType
	OrganizationID *string
	DepartmentID   *string
	Metadata       map[string]any
	Timestamp      *time.Time
	SessionID      *string
	Resource       *ResourceAttributes
	Enforcement    *ScopeEnforcement
}

// ContextBuilder assembles access contexts from a user snapshot and overrides
type ContextBuilder struct {
	now func() time.Time
}

// NewContextBuilder creates a builder stamping contexts with the given clock
func NewContextBuilder(now func() time.Time) *ContextBuilder {
	if now == nil {
		now = time.Now
	}
	return &ContextBuilder{now: now}
}

// Build merges the base context (user + current time) with overrides, field by field.
// Input is not validated here. Metadata is copied one level deep; nested values stay shared.
func (b *ContextBuilder) Build(user UserSnapshot, overrides *ContextOverrides) AccessContext {
	ac := AccessContext{
		User:        user,
		Environment: Environment{Timestamp: b.now().UTC()},
	}
	ac.User.Metadata = maps.Clone(user.Metadata)
	if overrides == nil {
		return ac
	}

	if overrides.UserType != nil {
		ac.User.UserType = *overrides.UserType
	}
	if overrides.OrganizationID != nil {
		ac.User.OrganizationID = *overrides.OrganizationID
	}
	if overrides.DepartmentID != nil {
		ac.User.DepartmentID = *overrides.DepartmentID
	}
	if overrides.Metadata != nil {
		ac.User.Metadata = maps.Clone(overrides.Metadata)
	}
	if overrides.Timestamp != nil {
		ac.Environment.Timestamp = overrides.Timestamp.UTC()
	}
	if overrides.SessionID != nil {
		ac.Environment.SessionID = *overrides.SessionID
	}
	if overrides.Resource != nil {
		res := *overrides.Resource
		ac.Resource = &res
	}
	if overrides.Enforcement != nil {
		ac.Enforcement = *overrides.Enforcement
	}
	return ac
}
