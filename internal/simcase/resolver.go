package simcase

import (
	"context"
	"sync"

	"golang.org/x/sync/singleflight"

	"github.com/banshee-data/reservoir/internal/reserr"
)

// Resolver maps case IDs to open cases, opening them through a Registry on
// first use. Servers address cases by ID and share one Resolver so that a
// case is loaded once no matter which transport asks for it.
type Resolver struct {
	reg *Registry

	mu      sync.Mutex
	handles map[string]string // case ID -> registry handle
	opens   singleflight.Group
}

// NewResolver creates a resolver over reg.
func NewResolver(reg *Registry) *Resolver {
	return &Resolver{reg: reg, handles: make(map[string]string)}
}

// Registry returns the underlying registry.
func (r *Resolver) Registry() *Registry { return r.reg }

// Case returns the open case for id, opening it when needed. A handle closed
// directly on the registry is reopened. Loads run without holding the
// resolver lock, so open cases resolve while another case loads. Concurrent
// requests for the same unopened id share one load under the first caller's
// context.
func (r *Resolver) Case(ctx context.Context, id string) (*Case, error) {
	if c, ok := r.lookup(id); ok {
		return c, nil
	}
	v, err, _ := r.opens.Do(id, func() (interface{}, error) {
		if c, ok := r.lookup(id); ok {
			return c, nil
		}
		h, err := r.reg.Open(ctx, id)
		if err != nil {
			return nil, err
		}
		c, err := r.reg.Get(h)
		if err != nil {
			return nil, err
		}
		r.mu.Lock()
		r.handles[id] = h
		r.mu.Unlock()
		return c, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*Case), nil
}

// lookup returns the case behind a live handle for id, forgetting handles
// that were closed on the registry.
func (r *Resolver) lookup(id string) (*Case, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	h, ok := r.handles[id]
	if !ok {
		return nil, false
	}
	c, err := r.reg.Get(h)
	if err != nil {
		delete(r.handles, id)
		return nil, false
	}
	return c, true
}

// Adopt registers an already open handle, e.g. one from a preload.
func (r *Resolver) Adopt(handle string) error {
	c, err := r.reg.Get(handle)
	if err != nil {
		return err
	}
	r.mu.Lock()
	r.handles[c.ID()] = handle
	r.mu.Unlock()
	return nil
}

// IsOpen reports whether id currently resolves without a load.
func (r *Resolver) IsOpen(id string) bool {
	r.mu.Lock()
	h, ok := r.handles[id]
	r.mu.Unlock()
	if !ok {
		return false
	}
	_, err := r.reg.Get(h)
	return err == nil
}

// Release closes the case behind id. Releasing a case that is not open is a
// no-op.
func (r *Resolver) Release(id string) error {
	r.mu.Lock()
	h, ok := r.handles[id]
	delete(r.handles, id)
	r.mu.Unlock()
	if !ok {
		return nil
	}
	if err := r.reg.Close(h); err != nil && reserr.Kind(err) != reserr.ErrUnknownCase {
		return err
	}
	return nil
}
