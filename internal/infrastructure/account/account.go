// Package account is the list of OS accounts the ability manager may start.
package account

import (
	"sort"
	"sync"

	"github.com/openharmony/aafwk-standard-sub013/internal/domain/user"
)

// SystemUserID always exists
const SystemUserID = 0

var _ user.AccountManager = (*Registry)(nil)

// Registry is an in-memory account list seeded from configuration
type Registry struct {
	mu  sync.RWMutex
	ids map[int]struct{}
}

// NewRegistry creates a registry holding ids plus the system user.
// Negative ids are ignored.
func NewRegistry(ids ...int) *Registry {
	r := &Registry{ids: map[int]struct{}{SystemUserID: {}}}
	for _, id := range ids {
		r.Add(id)
	}
	return r
}

// IsAccountExists implements user.AccountManager
func (r *Registry) IsAccountExists(userID int) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.ids[userID]
	return ok
}

// Add creates an account
func (r *Registry) Add(userID int) bool {
	if userID < 0 {
		return false
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.ids[userID]; ok {
		return false
	}
	r.ids[userID] = struct{}{}
	return true
}

// Remove deletes an account. The system user cannot be removed.
func (r *Registry) Remove(userID int) bool {
	if userID == SystemUserID {
		return false
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.ids[userID]; !ok {
		return false
	}
	delete(r.ids, userID)
	return true
}

// IDs returns the account ids in ascending order
func (r *Registry) IDs() []int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]int, 0, len(r.ids))
	for id := range r.ids {
		out = append(out, id)
	}
	sort.Ints(out)
	return out
}
