package outlet

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"golang.org/x/exp/maps"
)

var ErrNotFound = errors.New("outlet not found")

// Provider returns the current set of outlets. Implementations must return
// a snapshot that is safe to read while the outlets are being updated.
type Provider func() []Outlet

// Registry is a concurrency-safe outlet set owned by the host application.
// Its Snapshot method is the usual Provider handed to the responder.
type Registry struct {
	mu      sync.RWMutex
	outlets map[string]*Outlet
	order   []string
}

func NewRegistry(outlets ...Outlet) *Registry {
	r := &Registry{outlets: make(map[string]*Outlet, len(outlets))}
	for _, o := range outlets {
		r.Put(o)
	}
	return r
}

// Put adds o or replaces the outlet with the same ID.
func (r *Registry) Put(o Outlet) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.outlets[o.ID]; !ok {
		r.order = append(r.order, o.ID)
	}
	r.outlets[o.ID] = &o
}

func (r *Registry) Remove(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.outlets[id]; !ok {
		return false
	}
	delete(r.outlets, id)
	for i, v := range r.order {
		if v == id {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
	return true
}

func (r *Registry) Get(id string) (Outlet, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	o, ok := r.outlets[id]
	if !ok {
		return Outlet{}, false
	}
	return *o, true
}

// Update applies fn to the outlet with the given ID under the write lock.
func (r *Registry) Update(id string, fn func(*Outlet)) (Outlet, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	o, ok := r.outlets[id]
	if !ok {
		return Outlet{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	fn(o)
	return *o, nil
}

// Snapshot returns copies of all outlets in insertion order.
func (r *Registry) Snapshot() []Outlet {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Outlet, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, *r.outlets[id])
	}
	return out
}

// IDs returns the registered outlet IDs sorted alphabetically.
func (r *Registry) IDs() []string {
	r.mu.RLock()
	ids := maps.Keys(r.outlets)
	r.mu.RUnlock()
	sort.Strings(ids)
	return ids
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.outlets)
}
