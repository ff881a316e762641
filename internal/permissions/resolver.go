// Package permissions holds the per-session authorization state consulted by
// route guards: a set of granted "resource:action" strings and an owner flag
// that bypasses every check.
//
// A Resolver is a convenience gate populated from the membership record. It
// never replaces checks made against persisted data.
package permissions

import (
	"slices"
	"sync"
)

// Resolver answers permission checks for one session.
// The zero value denies everything and is ready to use.
type Resolver struct {
	mu      sync.RWMutex
	granted map[string]struct{}
	isOwner bool
}

// NewResolver returns an empty Resolver.
func NewResolver() *Resolver {
	return &Resolver{}
}

// SetPermissions replaces the whole granted set with list.
func (r *Resolver) SetPermissions(list []string) {
	granted := make(map[string]struct{}, len(list))
	for _, p := range list {
		granted[p] = struct{}{}
	}

	r.mu.Lock()
	r.granted = granted
	r.mu.Unlock()
}

// AddPermission grants a single permission.
func (r *Resolver) AddPermission(p string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.granted == nil {
		r.granted = make(map[string]struct{})
	}
	r.granted[p] = struct{}{}
}

// RemovePermission revokes a single permission. Revoking a permission that
// was never granted is a no-op.
func (r *Resolver) RemovePermission(p string) {
	r.mu.Lock()
	delete(r.granted, p)
	r.mu.Unlock()
}

// Replace swaps the owner flag and the whole granted set in one step, so a
// concurrent check sees either the old state or the new one.
func (r *Resolver) Replace(owner bool, list []string) {
	var granted map[string]struct{}
	if len(list) > 0 {
		granted = make(map[string]struct{}, len(list))
		for _, p := range list {
			granted[p] = struct{}{}
		}
	}

	r.mu.Lock()
	r.isOwner = owner
	r.granted = granted
	r.mu.Unlock()
}

// SetIsOwner sets the owner override independently of the granted set.
func (r *Resolver) SetIsOwner(owner bool) {
	r.mu.Lock()
	r.isOwner = owner
	r.mu.Unlock()
}

// IsOwner reports whether the owner override is set.
func (r *Resolver) IsOwner() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.isOwner
}

// HasPermission reports whether p is allowed: always for owners, otherwise
// only when p was granted.
func (r *Resolver) HasPermission(p string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.isOwner {
		return true
	}
	_, ok := r.granted[p]
	return ok
}

// Permissions returns the granted set in sorted order.
func (r *Resolver) Permissions() []string {
	r.mu.RLock()
	out := make([]string, 0, len(r.granted))
	for p := range r.granted {
		out = append(out, p)
	}
	r.mu.RUnlock()

	slices.Sort(out)
	return out
}

// Reset clears the granted set and the owner flag.
func (r *Resolver) Reset() {
	r.mu.Lock()
	r.granted = nil
	r.isOwner = false
	r.mu.Unlock()
}
