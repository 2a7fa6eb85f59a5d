package grid

import (
	"math"
)

// Corner order returned by CellCorners. The bottom face is the deeper one.
//
//	0: (i,   j,   bottom)   4: (i,   j,   top)
//	1: (i+1, j,   bottom)   5: (i+1, j,   top)
//	2: (i+1, j+1, bottom)   6: (i+1, j+1, top)
//	3: (i,   j+1, bottom)   7: (i,   j+1, top)
//
// With x east and y north both faces wind counter-clockwise when viewed from
// above, and corner n+4 sits directly above corner n.
var cornerOffsets = [8][3]int{
	{0, 0, 1}, {1, 0, 1}, {1, 1, 1}, {0, 1, 1},
	{0, 0, 0}, {1, 0, 0}, {1, 1, 0}, {0, 1, 0},
}

// CellCorners returns the eight corner vertices of an active cell.
func (g *Grid) CellCorners(active int) ([8]Point3D, error) {
	var out [8]Point3D
	gi, err := g.GlobalFromActive(active)
	if err != nil {
		return out, err
	}
	i, j, k, _ := g.IJK(gi)
	return g.corners(i, j, k), nil
}

func (g *Grid) corners(i, j, k int) [8]Point3D {
	var out [8]Point3D
	nx, ny := g.dims.NX, g.dims.NY
	for c, off := range cornerOffsets {
		a, b, deep := off[0], off[1], off[2]
		z := g.zcorn[(2*k+deep)*4*nx*ny+(2*j+b)*2*nx+2*i+a]
		out[c] = g.pillarPoint((j+b)*(nx+1)+(i+a), z)
	}
	return out
}

// pillarPoint interpolates the pillar line at depth z. Vertical-degenerate
// pillars (ztop == zbot) return the top x,y.
func (g *Grid) pillarPoint(pillar int, z float64) Point3D {
	p := g.coord[6*pillar : 6*pillar+6]
	xt, yt, zt, xb, yb, zb := p[0], p[1], p[2], p[3], p[4], p[5]
	if zb == zt {
		return Point3D{X: xt, Y: yt, Z: z}
	}
	t := (z - zt) / (zb - zt)
	return Point3D{X: xt + t*(xb-xt), Y: yt + t*(yb-yt), Z: z}
}

// CellCenter returns the arithmetic mean of the cell's eight corners.
func (g *Grid) CellCenter(active int) (Point3D, error) {
	c, err := g.CellCorners(active)
	if err != nil {
		return Point3D{}, err
	}
	return meanPoint(c), nil
}

func meanPoint(c [8]Point3D) Point3D {
	var s Point3D
	for _, p := range c {
		s.X += p.X
		s.Y += p.Y
		s.Z += p.Z
	}
	return Point3D{X: s.X / 8, Y: s.Y / 8, Z: s.Z / 8}
}

// hexTets splits the hexahedron around the 0-6 diagonal. The ring
// 1-2-3-7-4-5 walks cube edges so the six tetrahedra tile the cell.
var hexTets = [6][2]int{{1, 2}, {2, 3}, {3, 7}, {7, 4}, {4, 5}, {5, 1}}

// CellVolume returns the bulk volume of an active cell, summing six
// tetrahedra about the main diagonal. Twisted (non-planar) faces are handled
// consistently but not exactly.
func (g *Grid) CellVolume(active int) (float64, error) {
	c, err := g.CellCorners(active)
	if err != nil {
		return 0, err
	}
	var v float64
	for _, t := range hexTets {
		v += tetVolume(c[0], c[t[0]], c[t[1]], c[6])
	}
	return math.Abs(v), nil
}

// tetVolume returns the signed volume of tetrahedron (a,b,c,d).
func tetVolume(a, b, c, d Point3D) float64 {
	bx, by, bz := b.X-a.X, b.Y-a.Y, b.Z-a.Z
	cx, cy, cz := c.X-a.X, c.Y-a.Y, c.Z-a.Z
	dx, dy, dz := d.X-a.X, d.Y-a.Y, d.Z-a.Z
	det := bx*(cy*dz-cz*dy) - by*(cx*dz-cz*dx) + bz*(cx*dy-cy*dx)
	return det / 6
}

// BoundingBox returns the axis-aligned bounds of all active cell corners.
// ok is false when the grid has no active cells.
func (g *Grid) BoundingBox() (lo, hi Point3D, ok bool) {
	lo = Point3D{X: math.Inf(1), Y: math.Inf(1), Z: math.Inf(1)}
	hi = Point3D{X: math.Inf(-1), Y: math.Inf(-1), Z: math.Inf(-1)}
	for _, gi := range g.activeToGlobal {
		i, j, k, _ := g.IJK(gi)
		for _, p := range g.corners(i, j, k) {
			lo.X, hi.X = math.Min(lo.X, p.X), math.Max(hi.X, p.X)
			lo.Y, hi.Y = math.Min(lo.Y, p.Y), math.Max(hi.Y, p.Y)
			lo.Z, hi.Z = math.Min(lo.Z, p.Z), math.Max(hi.Z, p.Z)
		}
	}
	return lo, hi, len(g.activeToGlobal) > 0
}
