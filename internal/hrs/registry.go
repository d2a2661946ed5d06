package hrs

import (
	"sync"

	"github.com/cornelk/hashmap"
	"github.com/srg/pulsim/internal/radio"
)

// Registry is the thread-safe set of connected, notification-enabled
// centrals. Invariant: a disconnected central is never present.
//
// Inserts and removals may arrive concurrently from protocol callbacks on
// different goroutines; the transition mutex serializes the empty<->non-empty
// accounting so callers can act on "first arrived" / "last left" without a
// double-activate or missed-deactivate race.
type Registry struct {
	centrals *hashmap.Map[string, radio.Central]
	mu       sync.Mutex
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		centrals: hashmap.New[string, radio.Central](),
	}
}

// Add inserts a central. It reports whether the central was newly added and
// whether the registry transitioned from empty to non-empty.
func (r *Registry) Add(c radio.Central) (added, first bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	wasEmpty := r.centrals.Len() == 0
	if _, exists := r.centrals.Get(c.Addr()); exists {
		return false, false
	}
	r.centrals.Set(c.Addr(), c)
	return true, wasEmpty
}

// Remove deletes a central by address. It reports whether the central was
// present and whether the registry became empty as a result.
func (r *Registry) Remove(addr string) (removed, last bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.centrals.Del(addr) {
		return false, false
	}
	return true, r.centrals.Len() == 0
}

// Clear drops all centrals (radio went away, subscribers are implicitly
// gone). It reports whether the registry held any.
func (r *Registry) Clear() bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	had := r.centrals.Len() > 0
	r.centrals.Range(func(addr string, _ radio.Central) bool {
		r.centrals.Del(addr)
		return true
	})
	return had
}

// Contains reports whether the central with the given address is present.
func (r *Registry) Contains(addr string) bool {
	_, ok := r.centrals.Get(addr)
	return ok
}

// Len returns the number of subscribed centrals.
func (r *Registry) Len() int {
	return r.centrals.Len()
}

// Snapshot returns a consistent copy of the current subscribers for one
// notify pass. Mutations during the pass affect later passes only.
func (r *Registry) Snapshot() []radio.Central {
	out := make([]radio.Central, 0, r.centrals.Len())
	r.centrals.Range(func(_ string, c radio.Central) bool {
		out = append(out, c)
		return true
	})
	return out
}
