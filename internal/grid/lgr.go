package grid

import (
	"fmt"

	"github.com/banshee-data/reservoir/internal/reserr"
)

// SubGridCount returns the number of LGRs nested directly in g.
func (g *Grid) SubGridCount() int { return len(g.lgrs) }

// SubGrid returns the n-th LGR (0-based, in declaration order).
func (g *Grid) SubGrid(n int) (*Grid, error) {
	if n < 0 || n >= len(g.lgrs) {
		return nil, fmt.Errorf("sub-grid %d outside [0,%d): %w", n, len(g.lgrs), reserr.ErrOutOfRange)
	}
	return g.lgrs[n], nil
}

// SubGridByName looks up a directly nested LGR by name.
func (g *Grid) SubGridByName(name string) (*Grid, bool) {
	for _, l := range g.lgrs {
		if l.name == name {
			return l, true
		}
	}
	return nil, false
}

// Parent returns the grid this LGR refines, or nil for a main grid.
func (g *Grid) Parent() *Grid { return g.parent }

// ParentBox returns the region of the parent covered by this LGR. It is the
// zero Box for a main grid.
func (g *Grid) ParentBox() Box { return g.box }

// HostLGR reports the name of the LGR refining a parent cell.
func (g *Grid) HostLGR(global int) (string, bool) {
	pos, ok := g.hostLGR[global]
	if !ok {
		return "", false
	}
	return g.lgrs[pos].name, true
}

// ParentCell maps an LGR cell to the (i,j,k) of the parent cell it refines.
func (g *Grid) ParentCell(i, j, k int) (pi, pj, pk int, err error) {
	if g.parent == nil {
		return 0, 0, 0, fmt.Errorf("grid %q has no parent: %w", g.name, reserr.ErrOutOfRange)
	}
	if _, err := g.GlobalIndex(i, j, k); err != nil {
		return 0, 0, 0, err
	}
	return g.box.I1 + i/g.ratio.NX, g.box.J1 + j/g.ratio.NY, g.box.K1 + k/g.ratio.NZ, nil
}
