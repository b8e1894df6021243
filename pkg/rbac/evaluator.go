package rbac

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync/atomic"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/platinummonkey/lmsauthz/pkg/audit"
	"github.com/platinummonkey/lmsauthz/pkg/observability"
)

var evaluatorTracer = otel.Tracer("lmsauthz/rbac/evaluator")

// DefaultRoleSetCacheSize is the number of distinct role combinations whose
// permission union is kept in memory
const DefaultRoleSetCacheSize = 1024

type permissionSet map[string]struct{}

// snapshot is the catalog in service together with caches derived from it.
// A catalog swap replaces the whole snapshot so no derived entry outlives its catalog.
type snapshot struct {
	catalog  *Catalog
	roleSets *lru.Cache[string, permissionSet]
}

// Evaluator answers authorization queries against a catalog and an assignment store.
// It is safe for concurrent use.
type Evaluator struct {
	snap      atomic.Pointer[snapshot]
	store     AssignmentStore
	directory UserDirectory
	contexts  *ContextBuilder
	now       func() time.Time
	logger    *observability.Logger
	metrics   *observability.Metrics
	audit     audit.Logger
	strict    bool
	cacheSize int
}

// Option configures an Evaluator
type Option func(*Evaluator)

// WithDirectory resolves acting users and report subjects through dir
func WithDirectory(dir UserDirectory) Option {
	return func(e *Evaluator) { e.directory = dir }
}

// WithClock overrides the time source
func WithClock(now func() time.Time) Option {
	return func(e *Evaluator) {
		if now != nil {
			e.now = now
		}
	}
}

// WithLogger sets the structured logger
func WithLogger(logger *observability.Logger) Option {
	return func(e *Evaluator) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// WithMetrics sets the Prometheus metrics sink
func WithMetrics(m *observability.Metrics) Option {
	return func(e *Evaluator) { e.metrics = m }
}

// WithAuditLogger records assignment mutations to l
func WithAuditLogger(l audit.Logger) Option {
	return func(e *Evaluator) {
		if l != nil {
			e.audit = l
		}
	}
}

// WithStrictContracts makes boolean queries panic with *ContractError on
// malformed arguments. When disabled the violation is logged and the query denied.
func WithStrictContracts(strict bool) Option {
	return func(e *Evaluator) { e.strict = strict }
}

// WithRoleSetCacheSize bounds the effective permission cache
func WithRoleSetCacheSize(n int) Option {
	return func(e *Evaluator) {
		if n > 0 {
			e.cacheSize = n
		}
	}
}

// NewEvaluator creates an evaluator serving catalog over store
func NewEvaluator(catalog *Catalog, store AssignmentStore, opts ...Option) (*Evaluator, error) {
	if catalog == nil {
		return nil, fmt.Errorf("%w: nil catalog", ErrInvalidDefinition)
	}
	if store == nil {
		return nil, errors.New("rbac: nil assignment store")
	}

	e := &Evaluator{
		store:     store,
		now:       time.Now,
		logger:    observability.NopLogger(),
		audit:     audit.NopLogger{},
		strict:    true,
		cacheSize: DefaultRoleSetCacheSize,
	}
	for _, opt := range opts {
		opt(e)
	}
	e.contexts = NewContextBuilder(e.now)

	if err := e.SwapCatalog(catalog); err != nil {
		return nil, err
	}
	return e, nil
}

// Catalog returns the catalog currently in service
func (e *Evaluator) Catalog() *Catalog {
	return e.snap.Load().catalog
}

// SwapCatalog atomically replaces the catalog. In-flight queries finish against the old one.
// Assignments to roles missing from the new catalog stay stored but grant nothing.
func (e *Evaluator) SwapCatalog(c *Catalog) error {
	if c == nil {
		return fmt.Errorf("%w: nil catalog", ErrInvalidDefinition)
	}

	cache, err := lru.New[string, permissionSet](e.cacheSize)
	if err != nil {
		return fmt.Errorf("failed to create role set cache: %w", err)
	}

	e.snap.Store(&snapshot{catalog: c, roleSets: cache})
	e.metrics.SetCatalogSize(c.Permissions.Len(), c.Roles.Len())
	return nil
}

// violation reports a programmer error. Strict evaluators panic; others log and count it.
func (e *Evaluator) violation(op, detail string) {
	e.metrics.ContractViolation(op)
	cerr := &ContractError{Operation: op, Detail: detail}
	if e.strict {
		panic(cerr)
	}
	e.logger.WithField("operation", op).Warn(cerr.Error())
}

// resolution is what a user holds at one instant
type resolution struct {
	catalog     *Catalog
	assignments []Assignment
	permissions permissionSet
}

func (r *resolution) holds(permissionID string) bool {
	_, ok := r.permissions[permissionID]
	return ok
}

// evaluationTime picks the instant expiry is judged at
func (e *Evaluator) evaluationTime(ac *AccessContext) time.Time {
	if ac != nil && !ac.Environment.Timestamp.IsZero() {
		return ac.Environment.Timestamp
	}
	return e.now()
}

// resolve loads the user's active assignments and their effective permissions.
// Any store failure yields ok=false, which every caller treats as a denial.
func (e *Evaluator) resolve(ctx context.Context, op, userID string, at time.Time) (*resolution, bool) {
	snap := e.snap.Load()

	stored, err := e.store.Assignments(ctx, userID)
	if err != nil {
		e.metrics.StoreError(op)
		e.logger.WithTraceContext(ctx).
			WithFields(map[string]interface{}{"operation": op, "user_id": userID}).
			WithError(err).
			Error("assignment lookup failed; denying")
		return nil, false
	}

	active := make([]Assignment, 0, len(stored))
	for _, a := range stored {
		if a.ActiveAt(at) && snap.catalog.Roles.has(a.RoleID) {
			active = append(active, a)
		}
	}

	return &resolution{
		catalog:     snap.catalog,
		assignments: active,
		permissions: e.permissionsFor(snap, active),
	}, true
}

// permissionsFor returns the union of effective permissions of the assigned roles,
// memoized per distinct role set
func (e *Evaluator) permissionsFor(snap *snapshot, as []Assignment) permissionSet {
	if len(as) == 0 {
		return permissionSet{}
	}

	roleIDs := make([]string, 0, len(as))
	for _, a := range as {
		roleIDs = append(roleIDs, a.RoleID)
	}
	sort.Strings(roleIDs)
	key := strings.Join(roleIDs, "\x00")

	if set, ok := snap.roleSets.Get(key); ok {
		e.metrics.RoleSetCache(true)
		return set
	}
	e.metrics.RoleSetCache(false)

	set := make(permissionSet)
	for _, rid := range roleIDs {
		for _, pid := range snap.catalog.Roles.effective[rid] {
			set[pid] = struct{}{}
		}
	}
	snap.roleSets.Add(key, set)
	return set
}

// checkSubject validates the shared arguments of permission queries. It returns
// false when the query must be denied without consulting the store.
func (e *Evaluator) checkSubject(op, userID string, ac *AccessContext) bool {
	if ac != nil && ac.User.ID != userID {
		e.violation(op, fmt.Sprintf("context user %q does not match %q", ac.User.ID, userID))
		return false
	}
	// anonymous callers hold nothing
	return userID != ""
}

// AssignRole grants roleID to userID. Assigning a role the user already holds
// is a successful no-op; an expired holding is replaced by the new assignment.
func (e *Evaluator) AssignRole(ctx context.Context, userID, roleID string, opts ...AssignOption) error {
	const op = "assign_role"
	ctx, span := evaluatorTracer.Start(ctx, "Evaluator.AssignRole", trace.WithAttributes(
		attribute.String("user.id", userID),
		attribute.String("role.id", roleID),
	))
	defer span.End()

	if userID == "" || roleID == "" {
		e.metrics.ContractViolation(op)
		return &ContractError{Operation: op, Detail: "user id and role id are required"}
	}
	if !e.Catalog().Roles.has(roleID) {
		e.metrics.AssignmentMutation("assign", "rejected")
		return fmt.Errorf("%w: %s", ErrRoleNotFound, roleID)
	}

	now := e.now().UTC()
	a := Assignment{UserID: userID, RoleID: roleID, AssignedAt: now}
	for _, opt := range opts {
		opt(&a)
	}

	status, err := e.assign(ctx, a, now)
	event := audit.NewEvent(audit.EventTypeRoleAssigned, audit.EventStatusSuccess)
	event.ActorID, event.UserID, event.RoleID = a.GrantedBy, userID, roleID
	if a.ExpiresAt != nil {
		event.Metadata["expires_at"] = a.ExpiresAt.Format(time.RFC3339Nano)
	}
	if a.Scope != nil {
		event.Metadata["organization_id"] = a.Scope.OrganizationID
		event.Metadata["department_id"] = a.Scope.DepartmentID
	}

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "assign failed")
		e.metrics.AssignmentMutation("assign", "error")
		e.metrics.StoreError(op)
		e.recordAudit(ctx, event.WithError(err))
		return fmt.Errorf("failed to assign role %s to %s: %w", roleID, userID, err)
	}

	e.metrics.AssignmentMutation("assign", status)
	if status == "unchanged" {
		event.Status = audit.EventStatusUnchanged
	}
	event.Metadata["result"] = status
	e.recordAudit(ctx, event)
	e.logger.WithFields(map[string]interface{}{"user_id": userID, "role_id": roleID, "result": status}).
		Debug("role assignment processed")
	return nil
}

func (e *Evaluator) assign(ctx context.Context, a Assignment, now time.Time) (string, error) {
	created, err := e.store.Assign(ctx, a)
	if err != nil {
		return "", err
	}
	if created {
		return "created", nil
	}

	held, err := e.store.Assignments(ctx, a.UserID)
	if err != nil {
		return "", err
	}
	for _, h := range held {
		if h.RoleID != a.RoleID || h.ActiveAt(now) {
			continue
		}
		if err := e.store.Revoke(ctx, a.UserID, a.RoleID); err != nil && !errors.Is(err, ErrNotAssigned) {
			return "", err
		}
		if _, err := e.store.Assign(ctx, a); err != nil {
			return "", err
		}
		return "renewed", nil
	}
	return "unchanged", nil
}

// RevokeRole removes roleID from userID, returning ErrNotAssigned if it was not held
func (e *Evaluator) RevokeRole(ctx context.Context, userID, roleID string) error {
	const op = "revoke_role"
	ctx, span := evaluatorTracer.Start(ctx, "Evaluator.RevokeRole", trace.WithAttributes(
		attribute.String("user.id", userID),
		attribute.String("role.id", roleID),
	))
	defer span.End()

	if userID == "" || roleID == "" {
		e.metrics.ContractViolation(op)
		return &ContractError{Operation: op, Detail: "user id and role id are required"}
	}

	event := audit.NewEvent(audit.EventTypeRoleRevoked, audit.EventStatusSuccess)
	event.UserID, event.RoleID = userID, roleID

	err := e.store.Revoke(ctx, userID, roleID)
	switch {
	case errors.Is(err, ErrNotAssigned):
		e.metrics.AssignmentMutation("revoke", "not_assigned")
		return err
	case err != nil:
		span.RecordError(err)
		span.SetStatus(codes.Error, "revoke failed")
		e.metrics.AssignmentMutation("revoke", "error")
		e.metrics.StoreError(op)
		e.recordAudit(ctx, event.WithError(err))
		return fmt.Errorf("failed to revoke role %s from %s: %w", roleID, userID, err)
	}

	e.metrics.AssignmentMutation("revoke", "revoked")
	e.recordAudit(ctx, event)
	return nil
}

func (e *Evaluator) recordAudit(ctx context.Context, event *audit.AuditEvent) {
	if err := e.audit.Log(ctx, event); err != nil {
		e.logger.WithError(err).WithField("event_type", string(event.EventType)).Warn("failed to write audit event")
	}
}

// GetRoles returns the ids of the roles userID currently holds, sorted.
// Unknown and anonymous users hold nothing.
func (e *Evaluator) GetRoles(ctx context.Context, userID string) ([]string, error) {
	if userID == "" {
		return []string{}, nil
	}

	stored, err := e.store.Assignments(ctx, userID)
	if err != nil {
		e.metrics.StoreError("get_roles")
		return nil, fmt.Errorf("failed to load roles of %s: %w", userID, err)
	}

	roles := e.Catalog().Roles
	out := make([]string, 0, len(stored))
	for _, a := range activeAssignments(stored, e.now()) {
		if roles.has(a.RoleID) {
			out = append(out, a.RoleID)
		}
	}
	sort.Strings(out)
	return out, nil
}

// BuildContext assembles the access context for userID, resolving the user
// snapshot through the directory when one is configured
func (e *Evaluator) BuildContext(ctx context.Context, userID string, overrides *ContextOverrides) AccessContext {
	if userID == "" {
		e.violation("build_context", "user id is required")
	}

	user := UserSnapshot{ID: userID}
	if e.directory != nil && userID != "" {
		found, ok, err := e.directory.LookupUser(ctx, userID)
		switch {
		case err != nil:
			e.logger.WithError(err).WithField("user_id", userID).Warn("user directory lookup failed")
		case ok:
			user = found
			user.ID = userID
		}
	}
	return e.contexts.Build(user, overrides)
}

// HasPermission reports whether userID holds permissionID, directly or through
// an ancestor role. Instance scoping is not applied here.
func (e *Evaluator) HasPermission(ctx context.Context, userID, permissionID string, ac *AccessContext) bool {
	const op = "has_permission"
	started := time.Now()

	if permissionID == "" {
		e.violation(op, "permission id is required")
		return false
	}
	if !e.checkSubject(op, userID, ac) {
		e.metrics.ObserveDecision(op, false, started)
		return false
	}

	res, ok := e.resolve(ctx, op, userID, e.evaluationTime(ac))
	allowed := ok && res.holds(permissionID)
	e.metrics.ObserveDecision(op, allowed, started)
	return allowed
}

// HasAnyPermission reports whether userID holds at least one of permissionIDs.
// An empty list is denied.
func (e *Evaluator) HasAnyPermission(ctx context.Context, userID string, permissionIDs []string, ac *AccessContext) bool {
	const op = "has_any_permission"
	started := time.Now()

	for _, id := range permissionIDs {
		if id == "" {
			e.violation(op, "permission ids must be non-empty")
			return false
		}
	}
	if len(permissionIDs) == 0 || !e.checkSubject(op, userID, ac) {
		e.metrics.ObserveDecision(op, false, started)
		return false
	}

	res, ok := e.resolve(ctx, op, userID, e.evaluationTime(ac))
	allowed := false
	if ok {
		for _, id := range permissionIDs {
			if res.holds(id) {
				allowed = true
				break
			}
		}
	}
	e.metrics.ObserveDecision(op, allowed, started)
	return allowed
}

// HasAllPermissions reports whether userID holds every one of permissionIDs.
// An empty list is vacuously granted.
func (e *Evaluator) HasAllPermissions(ctx context.Context, userID string, permissionIDs []string, ac *AccessContext) bool {
	const op = "has_all_permissions"
	started := time.Now()

	for _, id := range permissionIDs {
		if id == "" {
			e.violation(op, "permission ids must be non-empty")
			return false
		}
	}
	if ac != nil && ac.User.ID != userID {
		e.violation(op, fmt.Sprintf("context user %q does not match %q", ac.User.ID, userID))
		return false
	}
	if len(permissionIDs) == 0 {
		e.metrics.ObserveDecision(op, true, started)
		return true
	}
	if userID == "" {
		e.metrics.ObserveDecision(op, false, started)
		return false
	}

	res, ok := e.resolve(ctx, op, userID, e.evaluationTime(ac))
	allowed := ok
	if ok {
		for _, id := range permissionIDs {
			if !res.holds(id) {
				allowed = false
				break
			}
		}
	}
	e.metrics.ObserveDecision(op, allowed, started)
	return allowed
}

// HasRole reports direct membership. Inherited roles do not count.
func (e *Evaluator) HasRole(ctx context.Context, userID, roleID string) bool {
	const op = "has_role"
	if roleID == "" {
		e.violation(op, "role id is required")
		return false
	}
	return e.HasAnyRole(ctx, userID, []string{roleID})
}

// HasAnyRole reports whether userID directly holds at least one of roleIDs.
// An empty list is denied.
func (e *Evaluator) HasAnyRole(ctx context.Context, userID string, roleIDs []string) bool {
	const op = "has_any_role"
	started := time.Now()

	for _, id := range roleIDs {
		if id == "" {
			e.violation(op, "role ids must be non-empty")
			return false
		}
	}
	if len(roleIDs) == 0 || userID == "" {
		e.metrics.ObserveDecision(op, false, started)
		return false
	}

	res, ok := e.resolve(ctx, op, userID, e.now())
	allowed := false
	if ok {
	outer:
		for _, a := range res.assignments {
			for _, id := range roleIDs {
				if a.RoleID == id {
					allowed = true
					break outer
				}
			}
		}
	}
	e.metrics.ObserveDecision(op, allowed, started)
	return allowed
}

// HasRoleHierarchy reports whether the highest level among the user's roles
// reaches requiredLevel. Users without roles never pass.
func (e *Evaluator) HasRoleHierarchy(ctx context.Context, userID string, requiredLevel int) bool {
	const op = "has_role_hierarchy"
	started := time.Now()

	if userID == "" {
		e.metrics.ObserveDecision(op, false, started)
		return false
	}

	res, ok := e.resolve(ctx, op, userID, e.now())
	allowed := false
	if ok {
		if level, held := maxLevel(res); held {
			allowed = level >= requiredLevel
		}
	}
	e.metrics.ObserveDecision(op, allowed, started)
	return allowed
}

func maxLevel(res *resolution) (int, bool) {
	if len(res.assignments) == 0 {
		return 0, false
	}
	highest := 0
	for i, a := range res.assignments {
		level, _ := res.catalog.Roles.HierarchyLevel(a.RoleID)
		if i == 0 || level > highest {
			highest = level
		}
	}
	return highest, true
}

// CanAccessResource reports whether userID may perform action on resource.
// The permission granting resource:action must be held; when the context
// declares scope enforcement and the permission is scoped, the resource
// instance must also fall inside the user's organization/department.
func (e *Evaluator) CanAccessResource(ctx context.Context, userID, resource, action string, ac *AccessContext) bool {
	const op = "can_access_resource"
	started := time.Now()

	if resource == "" || action == "" {
		e.violation(op, "resource and action are required")
		return false
	}
	if !e.checkSubject(op, userID, ac) {
		e.metrics.ObserveDecision(op, false, started)
		return false
	}

	res, ok := e.resolve(ctx, op, userID, e.evaluationTime(ac))
	allowed := false
	if ok {
		if perm, found := res.catalog.Permissions.Lookup(resource, action); found && res.holds(perm.ID) {
			allowed = scopeAllows(perm, ac, grantingAssignments(res, perm.ID))
		}
	}
	e.metrics.ObserveDecision(op, allowed, started)
	return allowed
}

// grantingAssignments returns the active assignments whose role confers permissionID
func grantingAssignments(res *resolution, permissionID string) []Assignment {
	var out []Assignment
	for _, a := range res.assignments {
		if res.catalog.Roles.grants(a.RoleID, permissionID) {
			out = append(out, a)
		}
	}
	return out
}

// scopeAllows is the instance-level narrowing applied after the base permission check.
func scopeAllows(perm Permission, ac *AccessContext, granting []Assignment) bool {
	if ac == nil || ac.Enforcement == ScopeNone || !perm.Scoped {
		return true
	}
	res := ac.Resource
	if res == nil {
		return false
	}

	user := ac.User
	if res.OrganizationID == "" || res.OrganizationID != user.OrganizationID {
		return false
	}
	if ac.Enforcement == ScopeDepartment {
		if res.DepartmentID == "" || res.DepartmentID != user.DepartmentID {
			return false
		}
	}

	for _, a := range granting {
		if assignmentCovers(a.Scope, res, ac.Enforcement) {
			return true
		}
	}
	return false
}

// assignmentCovers reports whether an assignment's own scope admits the resource
func assignmentCovers(scope *AssignmentScope, res *ResourceAttributes, enforcement ScopeEnforcement) bool {
	if scope == nil {
		return true
	}
	if scope.OrganizationID != "" && scope.OrganizationID != res.OrganizationID {
		return false
	}
	if enforcement == ScopeDepartment && scope.DepartmentID != "" && scope.DepartmentID != res.DepartmentID {
		return false
	}
	return true
}
