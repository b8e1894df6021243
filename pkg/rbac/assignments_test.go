package rbac

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// runStoreContract exercises the behavior every AssignmentStore must share
func runStoreContract(t *testing.T, newStore func(t *testing.T) AssignmentStore) {
	ctx := context.Background()

	t.Run("unknown user has no assignments", func(t *testing.T) {
		store := newStore(t)
		got, err := store.Assignments(ctx, "nobody")
		require.NoError(t, err)
		assert.NotNil(t, got)
		assert.Empty(t, got)
	})

	t.Run("assign is idempotent and keeps the original record", func(t *testing.T) {
		store := newStore(t)

		created, err := store.Assign(ctx, Assignment{UserID: "u1", RoleID: "teacher", AssignedAt: testEpoch, GrantedBy: "admin-1"})
		require.NoError(t, err)
		assert.True(t, created)

		created, err = store.Assign(ctx, Assignment{UserID: "u1", RoleID: "teacher", AssignedAt: testEpoch.Add(time.Hour), GrantedBy: "admin-2"})
		require.NoError(t, err)
		assert.False(t, created)

		got, err := store.Assignments(ctx, "u1")
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.True(t, got[0].AssignedAt.Equal(testEpoch))
		assert.Equal(t, "admin-1", got[0].GrantedBy)
	})

	t.Run("expiry and scope round trip", func(t *testing.T) {
		store := newStore(t)
		expires := testEpoch.Add(24 * time.Hour)

		_, err := store.Assign(ctx, Assignment{
			UserID:     "u1",
			RoleID:     "department_head",
			AssignedAt: testEpoch,
			ExpiresAt:  &expires,
			Scope:      &AssignmentScope{OrganizationID: "org-1", DepartmentID: "math"},
		})
		require.NoError(t, err)
		_, err = store.Assign(ctx, Assignment{UserID: "u1", RoleID: "student", AssignedAt: testEpoch})
		require.NoError(t, err)

		got, err := store.Assignments(ctx, "u1")
		require.NoError(t, err)
		require.Len(t, got, 2)

		head := got[0]
		assert.Equal(t, "department_head", head.RoleID)
		require.NotNil(t, head.ExpiresAt)
		assert.True(t, head.ExpiresAt.Equal(expires))
		assert.Equal(t, &AssignmentScope{OrganizationID: "org-1", DepartmentID: "math"}, head.Scope)

		assert.Equal(t, "student", got[1].RoleID)
		assert.Nil(t, got[1].ExpiresAt)
		assert.Nil(t, got[1].Scope)
	})

	t.Run("assignments are ordered by assignment time then role", func(t *testing.T) {
		store := newStore(t)
		for _, a := range []Assignment{
			{UserID: "u1", RoleID: "teacher", AssignedAt: testEpoch.Add(time.Minute)},
			{UserID: "u1", RoleID: "parent", AssignedAt: testEpoch},
			{UserID: "u1", RoleID: "guest", AssignedAt: testEpoch},
		} {
			_, err := store.Assign(ctx, a)
			require.NoError(t, err)
		}

		got, err := store.Assignments(ctx, "u1")
		require.NoError(t, err)
		require.Len(t, got, 3)
		assert.Equal(t, []string{"guest", "parent", "teacher"}, []string{got[0].RoleID, got[1].RoleID, got[2].RoleID})
	})

	t.Run("revoke", func(t *testing.T) {
		store := newStore(t)
		_, err := store.Assign(ctx, Assignment{UserID: "u1", RoleID: "teacher", AssignedAt: testEpoch})
		require.NoError(t, err)

		require.NoError(t, store.Revoke(ctx, "u1", "teacher"))
		assert.ErrorIs(t, store.Revoke(ctx, "u1", "teacher"), ErrNotAssigned)
		assert.ErrorIs(t, store.Revoke(ctx, "ghost", "teacher"), ErrNotAssigned)

		got, err := store.Assignments(ctx, "u1")
		require.NoError(t, err)
		assert.Empty(t, got)
	})

	t.Run("purge removes only lapsed assignments", func(t *testing.T) {
		store := newStore(t)
		lapsed := testEpoch
		later := testEpoch.Add(time.Hour)

		for _, a := range []Assignment{
			{UserID: "u1", RoleID: "teacher", AssignedAt: testEpoch.Add(-time.Hour), ExpiresAt: &lapsed},
			{UserID: "u1", RoleID: "guest", AssignedAt: testEpoch.Add(-time.Hour)},
			{UserID: "u2", RoleID: "student", AssignedAt: testEpoch.Add(-time.Hour), ExpiresAt: &later},
		} {
			_, err := store.Assign(ctx, a)
			require.NoError(t, err)
		}

		purged, err := store.PurgeExpired(ctx, testEpoch)
		require.NoError(t, err)
		assert.Equal(t, 1, purged)

		u1, err := store.Assignments(ctx, "u1")
		require.NoError(t, err)
		require.Len(t, u1, 1)
		assert.Equal(t, "guest", u1[0].RoleID)

		u2, err := store.Assignments(ctx, "u2")
		require.NoError(t, err)
		assert.Len(t, u2, 1)

		purged, err = store.PurgeExpired(ctx, later)
		require.NoError(t, err)
		assert.Equal(t, 1, purged)
	})
}

func TestMemoryStore_Contract(t *testing.T) {
	runStoreContract(t, func(t *testing.T) AssignmentStore {
		return NewMemoryStore()
	})
}

func TestMemoryStore_DefaultsAssignedAt(t *testing.T) {
	store := NewMemoryStore()
	store.now = func() time.Time { return testEpoch }

	_, err := store.Assign(context.Background(), Assignment{UserID: "u1", RoleID: "guest"})
	require.NoError(t, err)

	got, err := store.Assignments(context.Background(), "u1")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.True(t, got[0].AssignedAt.Equal(testEpoch))
}

func TestMemoryStore_ReturnsCopies(t *testing.T) {
	store := NewMemoryStore()
	expires := testEpoch.Add(time.Hour)
	_, err := store.Assign(context.Background(), Assignment{UserID: "u1", RoleID: "guest", AssignedAt: testEpoch, ExpiresAt: &expires})
	require.NoError(t, err)

	got, err := store.Assignments(context.Background(), "u1")
	require.NoError(t, err)
	*got[0].ExpiresAt = testEpoch.Add(-time.Hour)

	again, err := store.Assignments(context.Background(), "u1")
	require.NoError(t, err)
	assert.True(t, again[0].ExpiresAt.Equal(expires))
}

func TestMemoryStore_ConcurrentUsers(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	roles := []string{"guest", "student", "teacher", "parent"}

	var wg sync.WaitGroup
	for u := 0; u < 16; u++ {
		wg.Add(1)
		go func(u int) {
			defer wg.Done()
			userID := string(rune('a' + u))
			for i := 0; i < 50; i++ {
				role := roles[i%len(roles)]
				_, _ = store.Assign(ctx, Assignment{UserID: userID, RoleID: role})
				_, _ = store.Assignments(ctx, userID)
				if i%3 == 0 {
					_ = store.Revoke(ctx, userID, role)
				}
			}
		}(u)
	}
	wg.Wait()

	for u := 0; u < 16; u++ {
		got, err := store.Assignments(ctx, string(rune('a'+u)))
		require.NoError(t, err)
		seen := map[string]bool{}
		for _, a := range got {
			assert.False(t, seen[a.RoleID], "duplicate role %s", a.RoleID)
			seen[a.RoleID] = true
		}
	}
}

func indexedUsers(s *MemoryStore) int {
	n := 0
	s.users.Range(func(_, _ any) bool {
		n++
		return true
	})
	return n
}

func TestMemoryStore_DropsEmptyRecords(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	expires := testEpoch.Add(time.Hour)

	_, err := store.Assign(ctx, Assignment{UserID: "u1", RoleID: "guest", AssignedAt: testEpoch})
	require.NoError(t, err)
	_, err = store.Assign(ctx, Assignment{UserID: "u2", RoleID: "guest", AssignedAt: testEpoch, ExpiresAt: &expires})
	require.NoError(t, err)
	_, err = store.Assign(ctx, Assignment{UserID: "u3", RoleID: "guest", AssignedAt: testEpoch})
	require.NoError(t, err)
	_, err = store.Assign(ctx, Assignment{UserID: "u3", RoleID: "student", AssignedAt: testEpoch, ExpiresAt: &expires})
	require.NoError(t, err)
	assert.Equal(t, 3, indexedUsers(store))

	require.NoError(t, store.Revoke(ctx, "u1", "guest"))
	assert.Equal(t, 2, indexedUsers(store))

	purged, err := store.PurgeExpired(ctx, expires)
	require.NoError(t, err)
	assert.Equal(t, 2, purged)
	assert.Equal(t, 1, indexedUsers(store), "u3 still holds guest")

	assert.ErrorIs(t, store.Revoke(ctx, "u1", "guest"), ErrNotAssigned)
	created, err := store.Assign(ctx, Assignment{UserID: "u1", RoleID: "guest"})
	require.NoError(t, err)
	assert.True(t, created)
}

func TestMemoryStore_AssignSurvivesConcurrentDrop(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		for i := 0; i < 500; i++ {
			_, _ = store.Assign(ctx, Assignment{UserID: "u1", RoleID: "guest"})
			_ = store.Revoke(ctx, "u1", "guest")
		}
	}()
	go func() {
		defer wg.Done()
		for i := 0; i < 500; i++ {
			created, err := store.Assign(ctx, Assignment{UserID: "u1", RoleID: "student"})
			assert.NoError(t, err)
			assert.True(t, created)

			got, err := store.Assignments(ctx, "u1")
			assert.NoError(t, err)
			held := false
			for _, a := range got {
				held = held || a.RoleID == "student"
			}
			assert.True(t, held, "acknowledged assignment was lost")
			assert.NoError(t, store.Revoke(ctx, "u1", "student"))
		}
	}()
	wg.Wait()

	assert.Zero(t, indexedUsers(store))
}

func TestActiveAssignments(t *testing.T) {
	expired := testEpoch
	future := testEpoch.Add(time.Second)
	as := []Assignment{
		{RoleID: "a", ExpiresAt: &expired},
		{RoleID: "b"},
		{RoleID: "c", ExpiresAt: &future},
	}

	got := activeAssignments(as, testEpoch)
	require.Len(t, got, 2)
	assert.Equal(t, "b", got[0].RoleID)
	assert.Equal(t, "c", got[1].RoleID)
	assert.Len(t, as, 3)
}
