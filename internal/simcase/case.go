// Package simcase owns loaded simulation cases: one main grid with its LGRs,
// lazily loaded cell properties and the summary store.
//
// A Case is built by Open from loader collaborators and is the only place
// that talks to them. Everything it hands out is either immutable (grids) or
// guarded by its owner (the summary store), so HTTP and RPC handlers may
// share one Case across goroutines.
package simcase

import (
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/banshee-data/reservoir/internal/grid"
	"github.com/banshee-data/reservoir/internal/monitoring"
	"github.com/banshee-data/reservoir/internal/reserr"
	"github.com/banshee-data/reservoir/internal/summary"
)

// Category separates restart-time properties from static init properties.
type Category string

const (
	Static  Category = "STATIC"
	Dynamic Category = "DYNAMIC"
)

// PropertyKey addresses one property array. Grid is the LGR name, empty for
// the main grid. Step is the report step and is ignored for static
// properties.
type PropertyKey struct {
	Category Category `json:"category"`
	Name     string   `json:"name"`
	Step     int      `json:"step,omitempty"`
	Grid     string   `json:"grid,omitempty"`
}

// StaticKey is shorthand for a main-grid static property.
func StaticKey(name string) PropertyKey {
	return PropertyKey{Category: Static, Name: name}
}

func (k PropertyKey) String() string {
	s := string(k.Category) + ":" + k.Name
	if k.Category == Dynamic {
		s += fmt.Sprintf("@%d", k.Step)
	}
	if k.Grid != "" {
		s += "[" + k.Grid + "]"
	}
	return s
}

// GridLoader supplies raw corner-point arrays.
type GridLoader interface {
	LoadGrid(ctx context.Context, caseID string) (grid.Spec, error)
}

// SummaryLoader supplies the master time axis and vectors.
type SummaryLoader interface {
	LoadSummary(ctx context.Context, caseID string) (*summary.Store, error)
}

// PropertyLoader supplies one value per active cell of the addressed grid.
type PropertyLoader interface {
	LoadProperty(ctx context.Context, caseID string, key PropertyKey) ([]float64, error)
}

// Source bundles the three loaders. The sqlite store implements it.
type Source interface {
	GridLoader
	SummaryLoader
	PropertyLoader
}

// TextExporter is implemented by things that can dump themselves as text.
// Grids and cases do; a summary store needs a frequency and is wrapped by
// SummaryText.
type TextExporter interface {
	ExportText(w io.Writer) error
}

// Case is a loaded simulation case.
type Case struct {
	id  string
	src Source

	mu      sync.RWMutex
	closed  bool
	grid    *grid.Grid
	summary *summary.Store
	props   map[PropertyKey][]float64
	gen     uint64 // bumped whenever props is reset
}

// Open loads the grid and summary of a case. Any loader failure returns no
// case; callers retry with a fresh Open.
func Open(ctx context.Context, id string, src Source) (*Case, error) {
	c := &Case{id: id, src: src}
	if err := c.load(ctx); err != nil {
		return nil, err
	}
	monitoring.Logf("[simcase] opened %s: grid %s, %d active cells, %d lgrs, %d vectors",
		id, c.grid.Dimensions(), c.grid.ActiveCount(), c.grid.SubGridCount(), len(c.summary.AvailableAddresses()))
	return c, nil
}

func (c *Case) load(ctx context.Context) error {
	spec, err := c.src.LoadGrid(ctx, c.id)
	if err != nil {
		return fmt.Errorf("load grid of case %s: %w", c.id, err)
	}
	g, err := grid.New(spec)
	if err != nil {
		return fmt.Errorf("build grid of case %s: %w", c.id, err)
	}
	st, err := c.src.LoadSummary(ctx, c.id)
	if err != nil {
		return fmt.Errorf("load summary of case %s: %w", c.id, err)
	}
	c.mu.Lock()
	c.grid = g
	c.summary = st
	c.props = make(map[PropertyKey][]float64)
	c.gen++
	c.mu.Unlock()
	return nil
}

// ID returns the case identifier the case was opened with.
func (c *Case) ID() string { return c.id }

// Grid returns the main grid.
func (c *Case) Grid() (*grid.Grid, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return nil, c.closedErr()
	}
	return c.grid, nil
}

// Summary returns the summary store.
func (c *Case) Summary() (*summary.Store, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return nil, c.closedErr()
	}
	return c.summary, nil
}

// GridFor resolves the grid a property key addresses.
func (c *Case) GridFor(key PropertyKey) (*grid.Grid, error) {
	g, err := c.Grid()
	if err != nil {
		return nil, err
	}
	return c.subGrid(g, key)
}

func (c *Case) subGrid(g *grid.Grid, key PropertyKey) (*grid.Grid, error) {
	if key.Grid == "" {
		return g, nil
	}
	lgr, ok := g.SubGridByName(key.Grid)
	if !ok {
		return nil, fmt.Errorf("case %s has no lgr %q: %w", c.id, key.Grid, reserr.ErrOutOfRange)
	}
	return lgr, nil
}

// Property returns a property array, loading it on first use. The returned
// slice is shared and must not be modified. Arrays whose length differs from
// the addressed grid's active count are rejected and not cached. A load that
// overlaps a Reload or Invalidate is discarded and repeated against the new
// grid.
func (c *Case) Property(ctx context.Context, key PropertyKey) ([]float64, error) {
	for {
		c.mu.RLock()
		if c.closed {
			c.mu.RUnlock()
			return nil, c.closedErr()
		}
		vals, ok := c.props[key]
		main, gen := c.grid, c.gen
		c.mu.RUnlock()
		if ok {
			return vals, nil
		}

		g, err := c.subGrid(main, key)
		if err != nil {
			return nil, err
		}
		vals, err = c.src.LoadProperty(ctx, c.id, key)
		if err != nil {
			return nil, fmt.Errorf("load property %s of case %s: %w", key, c.id, err)
		}

		c.mu.Lock()
		if c.closed {
			c.mu.Unlock()
			return nil, c.closedErr()
		}
		if c.gen != gen {
			c.mu.Unlock()
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			continue
		}
		if len(vals) != g.ActiveCount() {
			c.mu.Unlock()
			return nil, fmt.Errorf("property %s of case %s has %d values, grid has %d active cells: %w",
				key, c.id, len(vals), g.ActiveCount(), reserr.ErrLengthMismatch)
		}
		if cached, ok := c.props[key]; ok {
			c.mu.Unlock()
			return cached, nil
		}
		c.props[key] = vals
		c.mu.Unlock()
		return vals, nil
	}
}

// CachedProperties lists the property keys loaded so far.
func (c *Case) CachedProperties() []PropertyKey {
	c.mu.RLock()
	defer c.mu.RUnlock()
	keys := make([]PropertyKey, 0, len(c.props))
	for k := range c.props {
		keys = append(keys, k)
	}
	return keys
}

// Invalidate drops cached properties and the summary store's memoised
// results. The grid itself is immutable and kept.
func (c *Case) Invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.props = make(map[PropertyKey][]float64)
	c.gen++
	c.summary.Invalidate()
}

// Reload re-reads grid and summary from the source. On failure the case
// keeps its previous state.
func (c *Case) Reload(ctx context.Context) error {
	c.mu.RLock()
	closed := c.closed
	c.mu.RUnlock()
	if closed {
		return c.closedErr()
	}
	if err := c.load(ctx); err != nil {
		return err
	}
	monitoring.Logf("[simcase] reloaded %s", c.id)
	return nil
}

// Close releases the case. Every accessor fails with reserr.ErrClosed
// afterwards. Closing twice is a no-op.
func (c *Case) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	c.grid = nil
	c.summary = nil
	c.props = nil
	return nil
}

func (c *Case) closedErr() error {
	return fmt.Errorf("case %s: %w", c.id, reserr.ErrClosed)
}

// ExportText writes the main grid's active cells followed by a blank line
// and the summary table on its master axis.
func (c *Case) ExportText(w io.Writer) error {
	g, err := c.Grid()
	if err != nil {
		return err
	}
	st, err := c.Summary()
	if err != nil {
		return err
	}
	if err := g.ExportText(w); err != nil {
		return err
	}
	if _, err := io.WriteString(w, "\n"); err != nil {
		return err
	}
	return st.ExportText(w, summary.None)
}

// SummaryText adapts a summary store to TextExporter at a fixed frequency.
type SummaryText struct {
	Store     *summary.Store
	Frequency summary.Frequency
}

func (s SummaryText) ExportText(w io.Writer) error {
	return s.Store.ExportText(w, s.Frequency)
}

var (
	_ TextExporter = SummaryText{}
	_ TextExporter = (*Case)(nil)
	_ TextExporter = (*grid.Grid)(nil)
)
