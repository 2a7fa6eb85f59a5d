package simcase

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"sync"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/banshee-data/reservoir/internal/reserr"
)

// Registry hands out opaque handles to open cases. Callers never hold a
// *Case across a Close: they look it up by handle for every request, and a
// closed handle fails with reserr.ErrUnknownCase.
type Registry struct {
	src   Source
	limit int

	mu    sync.RWMutex
	cases map[string]*Case
}

// NewRegistry creates a registry that opens cases from src.
func NewRegistry(src Source) *Registry {
	return &Registry{src: src, limit: 4, cases: make(map[string]*Case)}
}

// SetOpenLimit caps how many cases OpenAll loads at once. Values below one
// are ignored.
func (r *Registry) SetOpenLimit(n int) {
	if n >= 1 {
		r.limit = n
	}
}

// Open loads a case and returns its handle.
func (r *Registry) Open(ctx context.Context, caseID string) (string, error) {
	c, err := Open(ctx, caseID, r.src)
	if err != nil {
		return "", err
	}
	h := uuid.New().String()
	r.mu.Lock()
	r.cases[h] = c
	r.mu.Unlock()
	return h, nil
}

// OpenAll loads several cases concurrently. Either every case opens and the
// handles are returned in input order, or none stays open.
func (r *Registry) OpenAll(ctx context.Context, caseIDs []string) ([]string, error) {
	opened := make([]*Case, len(caseIDs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.limit)
	for n, id := range caseIDs {
		g.Go(func() error {
			c, err := Open(gctx, id, r.src)
			if err != nil {
				return err
			}
			opened[n] = c
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		for _, c := range opened {
			if c != nil {
				_ = c.Close()
			}
		}
		return nil, err
	}

	handles := make([]string, len(opened))
	r.mu.Lock()
	defer r.mu.Unlock()
	for n, c := range opened {
		handles[n] = uuid.New().String()
		r.cases[handles[n]] = c
	}
	return handles, nil
}

// Get returns the case behind a handle.
func (r *Registry) Get(handle string) (*Case, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.cases[handle]
	if !ok {
		return nil, fmt.Errorf("handle %q: %w", handle, reserr.ErrUnknownCase)
	}
	return c, nil
}

// Close closes the case behind a handle and forgets the handle.
func (r *Registry) Close(handle string) error {
	r.mu.Lock()
	c, ok := r.cases[handle]
	delete(r.cases, handle)
	r.mu.Unlock()
	if !ok {
		return fmt.Errorf("handle %q: %w", handle, reserr.ErrUnknownCase)
	}
	return c.Close()
}

// CloseAll closes every open case.
func (r *Registry) CloseAll() {
	r.mu.Lock()
	cases := r.cases
	r.cases = make(map[string]*Case)
	r.mu.Unlock()
	for _, c := range cases {
		_ = c.Close()
	}
}

// Handle describes one open case.
type Handle struct {
	Handle string `json:"handle"`
	CaseID string `json:"case_id"`
}

// List returns the open handles sorted by case id, then handle.
func (r *Registry) List() []Handle {
	r.mu.RLock()
	out := make([]Handle, 0, len(r.cases))
	for h, c := range r.cases {
		out = append(out, Handle{Handle: h, CaseID: c.ID()})
	}
	r.mu.RUnlock()
	slices.SortFunc(out, func(a, b Handle) int {
		if c := cmp.Compare(a.CaseID, b.CaseID); c != 0 {
			return c
		}
		return cmp.Compare(a.Handle, b.Handle)
	})
	return out
}

// Len returns the number of open cases.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.cases)
}
