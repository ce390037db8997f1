package users

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/warden-rbac/warden/internal/shared"
)

// Directory is an in-memory principal registry. The assignment graph checks
// it before binding roles; inactive users stay listed but cannot receive new
// assignments.
type Directory struct {
	mu    sync.RWMutex
	users map[string]User
}

// NewDirectory returns an empty directory.
func NewDirectory() *Directory {
	return &Directory{users: make(map[string]User)}
}

// Register adds a user. Registering an existing id fails.
func (d *Directory) Register(user User) (User, error) {
	user.ID = strings.TrimSpace(user.ID)
	if user.ID == "" {
		return User{}, fmt.Errorf("users: id required: %w", shared.ErrInvalidArgument)
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.users[user.ID]; ok {
		return User{}, fmt.Errorf("users: id %q taken: %w", user.ID, shared.ErrInvalidArgument)
	}
	user.IsActive = true
	user.CreatedAt = time.Now().UTC()
	d.users[user.ID] = user
	return user, nil
}

// Get fetches a user by id.
func (d *Directory) Get(id string) (User, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	user, ok := d.users[id]
	if !ok {
		return User{}, fmt.Errorf("users: %s: %w", id, shared.ErrNotFound)
	}
	return user, nil
}

// List returns all users ordered by id.
func (d *Directory) List() []User {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make([]User, 0, len(d.users))
	for _, u := range d.users {
		out = append(out, u)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Deactivate marks a user inactive. Their existing bindings stay; new
// assignments are refused.
func (d *Directory) Deactivate(id string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	user, ok := d.users[id]
	if !ok {
		return fmt.Errorf("users: %s: %w", id, shared.ErrNotFound)
	}
	user.IsActive = false
	d.users[id] = user
	return nil
}

// Exists reports whether the id refers to an active user. Satisfies the
// rbac.UserDirectory port.
func (d *Directory) Exists(ctx context.Context, id string) (bool, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	user, ok := d.users[id]
	return ok && user.IsActive, nil
}
