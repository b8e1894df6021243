package rbac

import (
	"context"
	"sync"
	"time"
)

// MemoryStore keeps assignments in process memory.
//
// Each user has an independent record guarded by its own mutex, so checks for
// different users never contend. A record is dropped from the index once its
// last assignment goes; writers holding a dropped record retry on a fresh one.
type MemoryStore struct {
	users sync.Map // userID -> *userRecord
	now   func() time.Time
}

type userRecord struct {
	mu    sync.RWMutex
	roles map[string]Assignment
	dead  bool
}

// NewMemoryStore creates an empty in-memory assignment store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{now: time.Now}
}

func (s *MemoryStore) record(userID string, create bool) *userRecord {
	if rec, ok := s.users.Load(userID); ok {
		return rec.(*userRecord)
	}
	if !create {
		return nil
	}
	rec, _ := s.users.LoadOrStore(userID, &userRecord{roles: make(map[string]Assignment)})
	return rec.(*userRecord)
}

// dropIfEmpty removes rec from the index. Caller holds rec.mu.
func (s *MemoryStore) dropIfEmpty(userID string, rec *userRecord) {
	if len(rec.roles) > 0 {
		return
	}
	rec.dead = true
	s.users.CompareAndDelete(userID, rec)
}

// Assign implements AssignmentStore
func (s *MemoryStore) Assign(_ context.Context, a Assignment) (bool, error) {
	for {
		rec := s.record(a.UserID, true)

		rec.mu.Lock()
		if rec.dead {
			rec.mu.Unlock()
			continue
		}
		if _, held := rec.roles[a.RoleID]; held {
			rec.mu.Unlock()
			return false, nil
		}
		if a.AssignedAt.IsZero() {
			a.AssignedAt = s.now().UTC()
		}
		rec.roles[a.RoleID] = cloneAssignment(a)
		rec.mu.Unlock()
		return true, nil
	}
}

// Revoke implements AssignmentStore
func (s *MemoryStore) Revoke(_ context.Context, userID, roleID string) error {
	for {
		rec := s.record(userID, false)
		if rec == nil {
			return ErrNotAssigned
		}

		rec.mu.Lock()
		if rec.dead {
			rec.mu.Unlock()
			continue
		}
		_, held := rec.roles[roleID]
		if held {
			delete(rec.roles, roleID)
			s.dropIfEmpty(userID, rec)
		}
		rec.mu.Unlock()

		if !held {
			return ErrNotAssigned
		}
		return nil
	}
}

// Assignments implements AssignmentStore
func (s *MemoryStore) Assignments(_ context.Context, userID string) ([]Assignment, error) {
	rec := s.record(userID, false)
	if rec == nil {
		return []Assignment{}, nil
	}

	rec.mu.RLock()
	out := make([]Assignment, 0, len(rec.roles))
	for _, a := range rec.roles {
		out = append(out, cloneAssignment(a))
	}
	rec.mu.RUnlock()

	sortAssignments(out)
	return out, nil
}

// PurgeExpired implements AssignmentStore
func (s *MemoryStore) PurgeExpired(_ context.Context, now time.Time) (int, error) {
	purged := 0
	s.users.Range(func(key, value any) bool {
		rec := value.(*userRecord)
		rec.mu.Lock()
		for roleID, a := range rec.roles {
			if !a.ActiveAt(now) {
				delete(rec.roles, roleID)
				purged++
			}
		}
		s.dropIfEmpty(key.(string), rec)
		rec.mu.Unlock()
		return true
	})
	return purged, nil
}

func cloneAssignment(a Assignment) Assignment {
	if a.ExpiresAt != nil {
		t := *a.ExpiresAt
		a.ExpiresAt = &t
	}
	if a.Scope != nil {
		sc := *a.Scope
		a.Scope = &sc
	}
	return a
}
