package grid

import (
	"fmt"
	"iter"

	"github.com/banshee-data/reservoir/internal/reserr"
)

// Grid is an immutable corner-point grid with its active-cell index.
type Grid struct {
	name string
	dims Dims

	coord []float64
	zcorn []float64

	// active is indexed by global cell index. LGR host cells are false.
	active []bool
	// prefix[g] is the number of active cells with global index < g.
	// len = CellCount()+1 so prefix[n] is the active count.
	prefix         []int
	activeToGlobal []int

	// hostLGR maps a parent global index to the position of the LGR that
	// refines it. Only populated for refined cells.
	hostLGR map[int]int
	lgrs    []*Grid

	parent *Grid
	box    Box
	ratio  Dims
}

// New builds a Grid from raw corner-point arrays. The prefix-sum table and
// the reverse active table are built here once; nothing is computed lazily
// afterwards. Malformed input fails with reserr.ErrMalformed and no grid.
func New(spec Spec) (*Grid, error) {
	return build("", spec, nil, Box{})
}

func build(name string, spec Spec, parent *Grid, box Box) (*Grid, error) {
	d := spec.Dims
	if d.NX <= 0 || d.NY <= 0 || d.NZ <= 0 {
		return nil, fmt.Errorf("grid %q dimensions %s: %w", name, d, reserr.ErrMalformed)
	}
	n := d.Count()
	if want := (d.NX + 1) * (d.NY + 1) * 6; len(spec.Coord) != want {
		return nil, fmt.Errorf("grid %q coord length %d, want %d: %w", name, len(spec.Coord), want, reserr.ErrMalformed)
	}
	if want := 8 * n; len(spec.Zcorn) != want {
		return nil, fmt.Errorf("grid %q zcorn length %d, want %d: %w", name, len(spec.Zcorn), want, reserr.ErrMalformed)
	}
	if spec.Actnum != nil && len(spec.Actnum) != n {
		return nil, fmt.Errorf("grid %q actnum length %d, want %d: %w", name, len(spec.Actnum), n, reserr.ErrMalformed)
	}

	g := &Grid{
		name:   name,
		dims:   d,
		coord:  append([]float64(nil), spec.Coord...),
		zcorn:  append([]float64(nil), spec.Zcorn...),
		active: make([]bool, n),
		parent: parent,
		box:    box,
	}
	for i := range g.active {
		g.active[i] = spec.Actnum == nil || spec.Actnum[i] != 0
	}

	if parent != nil {
		ext := box.Extent()
		if d.NX%ext.NX != 0 || d.NY%ext.NY != 0 || d.NZ%ext.NZ != 0 {
			return nil, fmt.Errorf("lgr %q dimensions %s not a refinement of box %s: %w", name, d, box, reserr.ErrMalformed)
		}
		g.ratio = Dims{NX: d.NX / ext.NX, NY: d.NY / ext.NY, NZ: d.NZ / ext.NZ}
	}

	if err := g.attachLGRs(spec.LGRs); err != nil {
		return nil, err
	}
	g.buildActiveIndex()
	return g, nil
}

func (g *Grid) attachLGRs(specs []LGRSpec) error {
	if len(specs) == 0 {
		return nil
	}
	g.hostLGR = make(map[int]int)
	seen := make(map[string]bool, len(specs))
	for n, ls := range specs {
		if ls.Name == "" {
			return fmt.Errorf("lgr #%d in grid %q has no name: %w", n, g.name, reserr.ErrMalformed)
		}
		if seen[ls.Name] {
			return fmt.Errorf("duplicate lgr name %q: %w", ls.Name, reserr.ErrMalformed)
		}
		seen[ls.Name] = true

		b := ls.Box
		if b.I1 < 0 || b.J1 < 0 || b.K1 < 0 || b.I1 > b.I2 || b.J1 > b.J2 || b.K1 > b.K2 ||
			b.I2 >= g.dims.NX || b.J2 >= g.dims.NY || b.K2 >= g.dims.NZ {
			return fmt.Errorf("lgr %q box %s outside parent %s: %w", ls.Name, b, g.dims, reserr.ErrMalformed)
		}
		for _, other := range g.lgrs {
			if other.box.overlaps(b) {
				return fmt.Errorf("lgr %q box %s overlaps lgr %q: %w", ls.Name, b, other.name, reserr.ErrMalformed)
			}
		}

		child, err := build(ls.Name, ls.Spec, g, b)
		if err != nil {
			return err
		}
		pos := len(g.lgrs)
		g.lgrs = append(g.lgrs, child)

		for k := b.K1; k <= b.K2; k++ {
			for j := b.J1; j <= b.J2; j++ {
				for i := b.I1; i <= b.I2; i++ {
					gi := g.global(i, j, k)
					g.active[gi] = false
					g.hostLGR[gi] = pos
				}
			}
		}
	}
	return nil
}

func (g *Grid) buildActiveIndex() {
	n := len(g.active)
	g.prefix = make([]int, n+1)
	count := 0
	for i, a := range g.active {
		g.prefix[i] = count
		if a {
			count++
		}
	}
	g.prefix[n] = count

	g.activeToGlobal = make([]int, 0, count)
	for i, a := range g.active {
		if a {
			g.activeToGlobal = append(g.activeToGlobal, i)
		}
	}
}

// Name returns the LGR name, or "" for a main grid.
func (g *Grid) Name() string { return g.name }

// Dimensions returns (nx, ny, nz).
func (g *Grid) Dimensions() Dims { return g.dims }

// CellCount returns nx*ny*nz.
func (g *Grid) CellCount() int { return len(g.active) }

// ActiveCount returns the number of active cells.
func (g *Grid) ActiveCount() int { return len(g.activeToGlobal) }

func (g *Grid) global(i, j, k int) int {
	return i + j*g.dims.NX + k*g.dims.NX*g.dims.NY
}

// GlobalIndex returns i + j*nx + k*nx*ny.
func (g *Grid) GlobalIndex(i, j, k int) (int, error) {
	if i < 0 || i >= g.dims.NX || j < 0 || j >= g.dims.NY || k < 0 || k >= g.dims.NZ {
		return 0, fmt.Errorf("cell (%d,%d,%d) outside %s: %w", i, j, k, g.dims, reserr.ErrOutOfRange)
	}
	return g.global(i, j, k), nil
}

// IJK is the inverse of GlobalIndex.
func (g *Grid) IJK(global int) (i, j, k int, err error) {
	if global < 0 || global >= len(g.active) {
		return 0, 0, 0, fmt.Errorf("global index %d outside [0,%d): %w", global, len(g.active), reserr.ErrOutOfRange)
	}
	nxy := g.dims.NX * g.dims.NY
	k = global / nxy
	rem := global % nxy
	j = rem / g.dims.NX
	i = rem % g.dims.NX
	return i, j, k, nil
}

// IsActive reports whether the cell has active data in this grid. Out of
// range indices are reported as inactive.
func (g *Grid) IsActive(global int) bool {
	return global >= 0 && global < len(g.active) && g.active[global]
}

// ActiveIndex returns the dense active-cell index of a global cell.
func (g *Grid) ActiveIndex(global int) (int, error) {
	if global < 0 || global >= len(g.active) {
		return 0, fmt.Errorf("global index %d outside [0,%d): %w", global, len(g.active), reserr.ErrOutOfRange)
	}
	if !g.active[global] {
		if pos, ok := g.hostLGR[global]; ok {
			return 0, fmt.Errorf("cell %d is refined by lgr %q: %w", global, g.lgrs[pos].name, reserr.ErrInactiveCell)
		}
		return 0, fmt.Errorf("cell %d: %w", global, reserr.ErrInactiveCell)
	}
	return g.prefix[global], nil
}

// GlobalFromActive maps a dense active index back to its global index.
func (g *Grid) GlobalFromActive(active int) (int, error) {
	if active < 0 || active >= len(g.activeToGlobal) {
		return 0, fmt.Errorf("active index %d outside [0,%d): %w", active, len(g.activeToGlobal), reserr.ErrOutOfRange)
	}
	return g.activeToGlobal[active], nil
}

// PropertyDataIndexFromIJK returns the position of cell (i,j,k) in a
// per-active-cell property array of this grid.
func (g *Grid) PropertyDataIndexFromIJK(i, j, k int) (int, error) {
	gi, err := g.GlobalIndex(i, j, k)
	if err != nil {
		return 0, err
	}
	return g.ActiveIndex(gi)
}

// ActiveCells yields (active index, global index) pairs in ascending order.
func (g *Grid) ActiveCells() iter.Seq2[int, int] {
	return func(yield func(int, int) bool) {
		for a, gi := range g.activeToGlobal {
			if !yield(a, gi) {
				return
			}
		}
	}
}
