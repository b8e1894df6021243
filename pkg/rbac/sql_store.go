package rbac

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var storeTracer = otel.Tracer("lmsauthz/rbac/store")

// SQLStore persists assignments in a relational database.
// Queries use $N placeholders and run unchanged on PostgreSQL and SQLite.
type SQLStore struct {
	db  *sql.DB
	now func() time.Time
}

// NewSQLStore creates a new SQL-backed assignment store. Call RunMigrations first.
func NewSQLStore(db *sql.DB) *SQLStore {
	return &SQLStore{db: db, now: time.Now}
}

// Assign implements AssignmentStore
func (s *SQLStore) Assign(ctx context.Context, a Assignment) (bool, error) {
	ctx, span := storeTracer.Start(ctx, "SQLStore.Assign", trace.WithAttributes(
		attribute.String("user.id", a.UserID),
		attribute.String("role.id", a.RoleID),
	))
	defer span.End()

	if a.AssignedAt.IsZero() {
		a.AssignedAt = s.now()
	}

	var orgID, deptID sql.NullString
	if a.Scope != nil {
		orgID = nullString(a.Scope.OrganizationID)
		deptID = nullString(a.Scope.DepartmentID)
	}
	var expiresAt sql.NullTime
	if a.ExpiresAt != nil {
		expiresAt = sql.NullTime{Time: a.ExpiresAt.UTC(), Valid: true}
	}

	result, err := s.db.ExecContext(ctx, `
		INSERT INTO user_role_assignments
			(user_id, role_id, organization_id, department_id, granted_by, assigned_at, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (user_id, role_id) DO NOTHING
	`, a.UserID, a.RoleID, orgID, deptID, nullString(a.GrantedBy), a.AssignedAt.UTC(), expiresAt)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to insert assignment")
		return false, fmt.Errorf("failed to assign role: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to read affected rows")
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}

	span.SetAttributes(attribute.Bool("assignment.created", rows > 0))
	return rows > 0, nil
}

// Revoke implements AssignmentStore
func (s *SQLStore) Revoke(ctx context.Context, userID, roleID string) error {
	ctx, span := storeTracer.Start(ctx, "SQLStore.Revoke", trace.WithAttributes(
		attribute.String("user.id", userID),
		attribute.String("role.id", roleID),
	))
	defer span.End()

	result, err := s.db.ExecContext(ctx,
		"DELETE FROM user_role_assignments WHERE user_id = $1 AND role_id = $2",
		userID, roleID,
	)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to delete assignment")
		return fmt.Errorf("failed to revoke role: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to read affected rows")
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return ErrNotAssigned
	}
	return nil
}

// Assignments implements AssignmentStore
func (s *SQLStore) Assignments(ctx context.Context, userID string) ([]Assignment, error) {
	ctx, span := storeTracer.Start(ctx, "SQLStore.Assignments", trace.WithAttributes(
		attribute.String("user.id", userID),
	))
	defer span.End()

	rows, err := s.db.QueryContext(ctx, `
		SELECT role_id, organization_id, department_id, granted_by, assigned_at, expires_at
		FROM user_role_assignments
		WHERE user_id = $1
	`, userID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to query assignments")
		return nil, fmt.Errorf("failed to query assignments: %w", err)
	}
	defer rows.Close()

	out := []Assignment{}
	for rows.Next() {
		var (
			a                        = Assignment{UserID: userID}
			orgID, deptID, grantedBy sql.NullString
			expiresAt                sql.NullTime
		)
		if err := rows.Scan(&a.RoleID, &orgID, &deptID, &grantedBy, &a.AssignedAt, &expiresAt); err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "failed to scan assignment")
			return nil, fmt.Errorf("failed to scan assignment: %w", err)
		}
		a.AssignedAt = a.AssignedAt.UTC()
		if expiresAt.Valid {
			t := expiresAt.Time.UTC()
			a.ExpiresAt = &t
		}
		if orgID.Valid || deptID.Valid {
			a.Scope = &AssignmentScope{OrganizationID: orgID.String, DepartmentID: deptID.String}
		}
		a.GrantedBy = grantedBy.String
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to iterate assignments")
		return nil, fmt.Errorf("failed to iterate assignments: %w", err)
	}

	sortAssignments(out)
	span.SetAttributes(attribute.Int("assignment.count", len(out)))
	return out, nil
}

// PurgeExpired implements AssignmentStore.
// Expired rows are selected and compared in Go so the cut-off does not depend on
// how the driver serializes timestamps. Each delete is conditioned on the expiry
// that was read, so a row renewed in the meantime survives.
func (s *SQLStore) PurgeExpired(ctx context.Context, now time.Time) (int, error) {
	ctx, span := storeTracer.Start(ctx, "SQLStore.PurgeExpired")
	defer span.End()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to start transaction")
		return 0, fmt.Errorf("failed to start transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	rows, err := tx.QueryContext(ctx,
		"SELECT user_id, role_id, expires_at FROM user_role_assignments WHERE expires_at IS NOT NULL",
	)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to query expiring assignments")
		return 0, fmt.Errorf("failed to query expiring assignments: %w", err)
	}

	type key struct {
		userID, roleID string
		expiresAt      time.Time
	}
	var expired []key
	for rows.Next() {
		var k key
		if err := rows.Scan(&k.userID, &k.roleID, &k.expiresAt); err != nil {
			rows.Close()
			span.RecordError(err)
			span.SetStatus(codes.Error, "failed to scan assignment")
			return 0, fmt.Errorf("failed to scan assignment: %w", err)
		}
		if !now.Before(k.expiresAt) {
			expired = append(expired, k)
		}
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return 0, fmt.Errorf("failed to iterate assignments: %w", err)
	}
	rows.Close()

	purged := 0
	for _, k := range expired {
		result, err := tx.ExecContext(ctx,
			"DELETE FROM user_role_assignments WHERE user_id = $1 AND role_id = $2 AND expires_at = $3",
			k.userID, k.roleID, k.expiresAt.UTC(),
		)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "failed to delete assignment")
			return 0, fmt.Errorf("failed to purge assignment: %w", err)
		}
		n, _ := result.RowsAffected()
		purged += int(n)
	}

	if err := tx.Commit(); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to commit purge")
		return 0, fmt.Errorf("failed to commit purge: %w", err)
	}

	span.SetStatus(codes.Ok, fmt.Sprintf("purged %d assignments", purged))
	return purged, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
