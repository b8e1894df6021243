package rbac

import (
	"context"
	"database/sql"
	"errors"
	"sync"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/require"
)

var testEpoch = time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

// testClock is a settable clock shared by the evaluator under test and its stores
type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock() *testClock {
	return &testClock{now: testEpoch}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

// newTestEvaluator builds a non-strict-by-choice evaluator over the built-in catalog
func newTestEvaluator(t *testing.T, opts ...Option) (*Evaluator, *MemoryStore, *testClock) {
	t.Helper()

	clock := newTestClock()
	store := NewMemoryStore()
	store.now = clock.Now

	e, err := NewEvaluator(MustCatalog(DefaultDefinition()), store, append([]Option{WithClock(clock.Now)}, opts...)...)
	require.NoError(t, err)
	return e, store, clock
}

// newSQLiteDB opens a migrated in-memory SQLite database.
// A single connection keeps every query on the same in-memory database.
func newSQLiteDB(t *testing.T) *sql.DB {
	t.Helper()

	db, err := sql.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })

	require.NoError(t, RunMigrations(context.Background(), db))
	return db
}

var errStoreDown = errors.New("store unavailable")

// failingStore fails every call
type failingStore struct{}

func (failingStore) Assign(context.Context, Assignment) (bool, error) { return false, errStoreDown }
func (failingStore) Revoke(context.Context, string, string) error     { return errStoreDown }
func (failingStore) Assignments(context.Context, string) ([]Assignment, error) {
	return nil, errStoreDown
}
func (failingStore) PurgeExpired(context.Context, time.Time) (int, error) { return 0, errStoreDown }

func strPtr(s string) *string { return &s }

func enforcementPtr(s ScopeEnforcement) *ScopeEnforcement { return &s }
