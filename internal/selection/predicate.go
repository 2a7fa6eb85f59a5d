package selection

import (
	"fmt"

	"github.com/banshee-data/reservoir/internal/grid"
	"github.com/banshee-data/reservoir/internal/reserr"
)

// CellIndex is the part of a grid a predicate needs. *grid.Grid implements it.
type CellIndex interface {
	Dimensions() grid.Dims
	ActiveCount() int
	GlobalIndex(i, j, k int) (int, error)
	ActiveIndex(global int) (int, error)
	IsActive(global int) bool
}

var _ CellIndex = (*grid.Grid)(nil)

// Predicate marks active cells. Mask returns one flag per active cell.
type Predicate interface {
	Mask(idx CellIndex) ([]bool, error)
}

// Equal matches active cells whose property value equals Target exactly.
// Values holds one entry per active cell.
type Equal struct {
	Values []float64
	Target float64
}

func (p Equal) Mask(idx CellIndex) ([]bool, error) {
	n := idx.ActiveCount()
	if len(p.Values) != n {
		return nil, fmt.Errorf("property has %d values, grid has %d active cells: %w", len(p.Values), n, reserr.ErrLengthMismatch)
	}
	m := make([]bool, n)
	for a, v := range p.Values {
		m[a] = v == p.Target
	}
	return m, nil
}

// Range is a closed integer interval.
type Range struct {
	Lo int `json:"lo"`
	Hi int `json:"hi"`
}

// Full returns the range [0, n-1].
func Full(n int) Range { return Range{Lo: 0, Hi: n - 1} }

func (r Range) check(axis string, n int) error {
	if r.Lo > r.Hi || r.Lo < 0 || r.Hi >= n {
		return fmt.Errorf("%s range [%d,%d] outside [0,%d): %w", axis, r.Lo, r.Hi, n, reserr.ErrOutOfRange)
	}
	return nil
}

// Box matches active cells whose (i,j,k) fall in the closed ranges.
// Inactive cells in the box are skipped.
type Box struct {
	I, J, K Range
}

func (p Box) Mask(idx CellIndex) ([]bool, error) {
	d := idx.Dimensions()
	if err := p.I.check("i", d.NX); err != nil {
		return nil, err
	}
	if err := p.J.check("j", d.NY); err != nil {
		return nil, err
	}
	if err := p.K.check("k", d.NZ); err != nil {
		return nil, err
	}
	m := make([]bool, idx.ActiveCount())
	for k := p.K.Lo; k <= p.K.Hi; k++ {
		for j := p.J.Lo; j <= p.J.Hi; j++ {
			for i := p.I.Lo; i <= p.I.Hi; i++ {
				g, err := idx.GlobalIndex(i, j, k)
				if err != nil {
					return nil, err
				}
				if !idx.IsActive(g) {
					continue
				}
				a, err := idx.ActiveIndex(g)
				if err != nil {
					return nil, err
				}
				m[a] = true
			}
		}
	}
	return m, nil
}

// List matches an explicit set of active indices, e.g. from an external
// well-path or file. Duplicates collapse.
type List struct {
	Active []int
}

func (p List) Mask(idx CellIndex) ([]bool, error) {
	n := idx.ActiveCount()
	m := make([]bool, n)
	for _, a := range p.Active {
		if a < 0 || a >= n {
			return nil, fmt.Errorf("active index %d outside [0,%d): %w", a, n, reserr.ErrOutOfRange)
		}
		m[a] = true
	}
	return m, nil
}

// And matches cells matched by every operand. An empty And matches all.
type And []Predicate

func (p And) Mask(idx CellIndex) ([]bool, error) {
	m := make([]bool, idx.ActiveCount())
	for a := range m {
		m[a] = true
	}
	for _, q := range p {
		qm, err := q.Mask(idx)
		if err != nil {
			return nil, err
		}
		for a := range m {
			m[a] = m[a] && qm[a]
		}
	}
	return m, nil
}

// Or matches cells matched by any operand. An empty Or matches none.
type Or []Predicate

func (p Or) Mask(idx CellIndex) ([]bool, error) {
	m := make([]bool, idx.ActiveCount())
	for _, q := range p {
		qm, err := q.Mask(idx)
		if err != nil {
			return nil, err
		}
		for a := range m {
			m[a] = m[a] || qm[a]
		}
	}
	return m, nil
}

// Not inverts its operand.
type Not struct{ P Predicate }

func (p Not) Mask(idx CellIndex) ([]bool, error) {
	m, err := p.P.Mask(idx)
	if err != nil {
		return nil, err
	}
	for a := range m {
		m[a] = !m[a]
	}
	return m, nil
}
