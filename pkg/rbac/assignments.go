package rbac

import (
	"context"
	"sort"
	"time"
)

// AssignmentStore persists user-role assignments.
//
// Implementations must give read-your-writes visibility: a successful Assign or
// Revoke is observed by the very next Assignments call for that user.
type AssignmentStore interface {
	// Assign records the assignment. Re-assigning a held role is a no-op that
	// keeps the original record and reports created=false.
	Assign(ctx context.Context, a Assignment) (created bool, err error)

	// Revoke removes the assignment, returning ErrNotAssigned if the user does not hold the role
	Revoke(ctx context.Context, userID, roleID string) error

	// Assignments returns every stored assignment of the user, expired or not.
	// Unknown users yield an empty slice.
	Assignments(ctx context.Context, userID string) ([]Assignment, error)

	// PurgeExpired deletes assignments whose expiry is at or before now
	PurgeExpired(ctx context.Context, now time.Time) (int, error)
}

// sortAssignments orders assignments by assignment time, then role id
func sortAssignments(as []Assignment) {
	sort.Slice(as, func(i, j int) bool {
		if !as[i].AssignedAt.Equal(as[j].AssignedAt) {
			return as[i].AssignedAt.Before(as[j].AssignedAt)
		}
		return as[i].RoleID < as[j].RoleID
	})
}

// activeAssignments filters out assignments that have lapsed at t
func activeAssignments(as []Assignment, t time.Time) []Assignment {
	out := as[:0:0]
	for _, a := range as {
		if a.ActiveAt(t) {
			out = append(out, a)
		}
	}
	return out
}
