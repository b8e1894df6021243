package rbac

import (
	"context"
	"fmt"
	"sort"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// GenerateAccessReport summarizes what userID may currently do.
//
// ErrUserNotFound is returned for an anonymous id, or for an id the configured
// directory does not know. A known user without roles gets an empty report.
// Every resource/action pair listed in ResourceAccess is exactly one for which
// CanAccessResource without a context returns true at the same instant.
func (e *Evaluator) GenerateAccessReport(ctx context.Context, userID string) (*AccessReport, error) {
	ctx, span := evaluatorTracer.Start(ctx, "Evaluator.GenerateAccessReport", trace.WithAttributes(
		attribute.String("user.id", userID),
	))
	defer span.End()

	if userID == "" {
		return nil, ErrUserNotFound
	}

	report := &AccessReport{
		UserID:         userID,
		Roles:          []RoleGrant{},
		InheritedRoles: []string{},
		Permissions:    []Permission{},
		ResourceAccess: map[string][]string{},
	}

	if e.directory != nil {
		user, ok, err := e.directory.LookupUser(ctx, userID)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "directory lookup failed")
			return nil, fmt.Errorf("failed to look up user %s: %w", userID, err)
		}
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrUserNotFound, userID)
		}
		report.UserType = user.UserType
	}

	now := e.now()
	report.GeneratedAt = now.UTC()

	res, ok := e.resolve(ctx, "generate_access_report", userID, now)
	if !ok {
		span.SetStatus(codes.Error, "assignment lookup failed")
		return nil, fmt.Errorf("failed to load assignments of %s", userID)
	}
	roles := res.catalog.Roles

	held := make(map[string]struct{}, len(res.assignments))
	for _, a := range res.assignments {
		role, _ := roles.Get(a.RoleID)
		report.Roles = append(report.Roles, RoleGrant{
			ID:             role.ID,
			Name:           role.Name,
			HierarchyLevel: role.HierarchyLevel,
			AssignedAt:     a.AssignedAt,
			ExpiresAt:      a.ExpiresAt,
			Scope:          a.Scope,
		})
		held[a.RoleID] = struct{}{}
	}
	if level, found := maxLevel(res); found {
		report.MaxHierarchyLevel = level
	}

	inherited := make(map[string]struct{})
	for rid := range held {
		for _, ancestor := range roles.ancestors[rid] {
			if _, direct := held[ancestor]; !direct {
				inherited[ancestor] = struct{}{}
			}
		}
	}
	for rid := range inherited {
		report.InheritedRoles = append(report.InheritedRoles, rid)
	}
	sort.Strings(report.InheritedRoles)

	for _, perm := range res.catalog.Permissions.ordered {
		if !res.holds(perm.ID) {
			continue
		}
		report.Permissions = append(report.Permissions, perm)
		report.ResourceAccess[perm.Resource] = append(report.ResourceAccess[perm.Resource], perm.Action)
	}
	for _, actions := range report.ResourceAccess {
		sort.Strings(actions)
	}

	span.SetAttributes(
		attribute.Int("report.roles", len(report.Roles)),
		attribute.Int("report.permissions", len(report.Permissions)),
	)
	return report, nil
}
