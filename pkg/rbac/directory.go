package rbac

import (
	"context"
	"sync"
)

// UserDirectory resolves user ids to acting-user snapshots
type UserDirectory interface {
	LookupUser(ctx context.Context, userID string) (UserSnapshot, bool, error)
}

// MemoryDirectory is a UserDirectory backed by a map
type MemoryDirectory struct {
	mu    sync.RWMutex
	users map[string]UserSnapshot
}

// NewMemoryDirectory creates a directory seeded with the given users
func NewMemoryDirectory(users ...UserSnapshot) *MemoryDirectory {
	d := &MemoryDirectory{users: make(map[string]UserSnapshot, len(users))}
	for _, u := range users {
		d.users[u.ID] = u
	}
	return d
}

// Put adds or replaces a user
func (d *MemoryDirectory) Put(user UserSnapshot) {
	d.mu.Lock()
	d.users[user.ID] = user
	d.mu.Unlock()
}

// Remove deletes a user
func (d *MemoryDirectory) Remove(userID string) {
	d.mu.Lock()
	delete(d.users, userID)
	d.mu.Unlock()
}

// LookupUser implements UserDirectory
func (d *MemoryDirectory) LookupUser(_ context.Context, userID string) (UserSnapshot, bool, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	u, ok := d.users[userID]
	return u, ok, nil
}
