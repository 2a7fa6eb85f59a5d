// Package synth generates deterministic corner-point cases for tests, demos
// and the `reservoir synth` command.
//
// The generated grid is a dipping box with vertical pillars. Properties and
// summary vectors follow closed-form curves with seeded noise so that the
// same Generator always produces the same case.
package synth

import (
	"fmt"
	"math"
	"math/rand"
	"time"

	"github.com/banshee-data/reservoir/internal/grid"
	"github.com/banshee-data/reservoir/internal/summary"
)

// Refinement places an LGR over a parent box, splitting every parent cell
// Ratio times along each axis.
type Refinement struct {
	Name  string
	Box   grid.Box
	Ratio grid.Dims
}

// Generator describes a synthetic case.
type Generator struct {
	Name     string
	Dims     grid.Dims
	CellSize grid.Point3D // dx, dy, dz in metres
	Origin   grid.Point3D // x, y of the first pillar and depth of the top surface
	Dip      float64      // depth increase per metre along x

	// Inactive marks main-grid cells inactive in ACTNUM. nil keeps all active.
	Inactive func(i, j, k int) bool
	LGRs     []Refinement

	Start       time.Time
	ReportSteps int // monthly report steps after Start
	Seed        int64
}

// NewGenerator returns a generator with field-scale defaults.
func NewGenerator(name string, dims grid.Dims) *Generator {
	return &Generator{
		Name:        name,
		Dims:        dims,
		CellSize:    grid.Point3D{X: 100, Y: 100, Z: 5},
		Origin:      grid.Point3D{X: 0, Y: 0, Z: 2000},
		Dip:         0.01,
		Start:       time.Date(2010, time.January, 1, 0, 0, 0, 0, time.UTC),
		ReportSteps: 60,
		Seed:        1,
	}
}

// GridSpec builds the COORD/ZCORN/ACTNUM arrays, LGRs included.
func (g *Generator) GridSpec() grid.Spec {
	spec := g.boxSpec(g.Origin, g.CellSize, g.Dims, g.Inactive)
	for _, r := range g.LGRs {
		ext := r.Box.Extent()
		origin := grid.Point3D{
			X: g.Origin.X + float64(r.Box.I1)*g.CellSize.X,
			Y: g.Origin.Y + float64(r.Box.J1)*g.CellSize.Y,
			Z: g.Origin.Z + float64(r.Box.K1)*g.CellSize.Z,
		}
		cell := grid.Point3D{
			X: g.CellSize.X / float64(r.Ratio.NX),
			Y: g.CellSize.Y / float64(r.Ratio.NY),
			Z: g.CellSize.Z / float64(r.Ratio.NZ),
		}
		dims := grid.Dims{NX: ext.NX * r.Ratio.NX, NY: ext.NY * r.Ratio.NY, NZ: ext.NZ * r.Ratio.NZ}
		spec.LGRs = append(spec.LGRs, grid.LGRSpec{
			Name: r.Name,
			Box:  r.Box,
			Spec: g.boxSpec(origin, cell, dims, nil),
		})
	}
	return spec
}

func (g *Generator) boxSpec(origin, cell grid.Point3D, d grid.Dims, inactive func(i, j, k int) bool) grid.Spec {
	thickness := float64(d.NZ) * cell.Z
	coord := make([]float64, 0, (d.NX+1)*(d.NY+1)*6)
	for j := 0; j <= d.NY; j++ {
		for i := 0; i <= d.NX; i++ {
			x := origin.X + float64(i)*cell.X
			y := origin.Y + float64(j)*cell.Y
			top := origin.Z + g.Dip*x
			coord = append(coord, x, y, top, x, y, top+thickness)
		}
	}

	nx, ny := d.NX, d.NY
	zcorn := make([]float64, 8*d.Count())
	for kk := 0; kk < 2*d.NZ; kk++ {
		k, c := kk/2, kk%2
		for jj := 0; jj < 2*ny; jj++ {
			for ii := 0; ii < 2*nx; ii++ {
				i, a := ii/2, ii%2
				x := origin.X + float64(i+a)*cell.X
				zcorn[kk*4*nx*ny+jj*2*nx+ii] = origin.Z + g.Dip*x + float64(k+c)*cell.Z
			}
		}
	}

	var actnum []int32
	if inactive != nil {
		actnum = make([]int32, d.Count())
		for k := 0; k < d.NZ; k++ {
			for j := 0; j < d.NY; j++ {
				for i := 0; i < d.NX; i++ {
					if !inactive(i, j, k) {
						actnum[i+j*nx+k*nx*ny] = 1
					}
				}
			}
		}
	}
	return grid.Spec{Dims: d, Coord: coord, Zcorn: zcorn, Actnum: actnum}
}

// Property names produced by Properties.
const (
	PropPORO   = "PORO"
	PropPERMX  = "PERMX"
	PropFIPNUM = "FIPNUM"
)

// Properties returns static properties, one value per active cell of gr.
// FIPNUM splits the grid into four regions: 1 and 2 in the western and
// eastern halves of the upper layers, 3 and 4 below.
func (g *Generator) Properties(gr *grid.Grid) map[string][]float64 {
	n := gr.ActiveCount()
	d := gr.Dimensions()
	rng := rand.New(rand.NewSource(g.Seed))
	poro := make([]float64, n)
	perm := make([]float64, n)
	fip := make([]float64, n)
	for a, gi := range gr.ActiveCells() {
		i, _, k, _ := gr.IJK(gi)
		poro[a] = 0.08 + 0.2*float64(k+1)/float64(d.NZ+1) + 0.01*rng.Float64()
		perm[a] = math.Pow(10, 1+8*poro[a])
		region := 1.0
		if 2*i >= d.NX {
			region = 2
		}
		if 2*k >= d.NZ {
			region += 2
		}
		fip[a] = region
	}
	return map[string][]float64{PropPORO: poro, PropPERMX: perm, PropFIPNUM: fip}
}

// Vector names produced by Summary.
const (
	VecFOPR = "FOPR"
	VecFOPT = "FOPT"
	VecFWCT = "FWCT"
	VecWBHP = "WBHP:PROD1"
)

// Summary builds a store on a monthly report axis with field rate,
// cumulative, water cut and one well pressure vector.
func (g *Generator) Summary() (*summary.Store, error) {
	if g.ReportSteps < 1 {
		return nil, fmt.Errorf("synth %q: report steps %d < 1", g.Name, g.ReportSteps)
	}
	axis := make([]float64, g.ReportSteps+1)
	for s := range axis {
		axis[s] = g.Start.AddDate(0, s, 0).Sub(g.Start).Hours() / 24
	}
	st, err := summary.NewStore(g.Start, axis)
	if err != nil {
		return nil, err
	}

	rng := rand.New(rand.NewSource(g.Seed + 7))
	fopr := make([]float64, len(axis))
	fopt := make([]float64, len(axis))
	fwct := make([]float64, len(axis))
	wbhp := make([]float64, len(axis))
	for s, t := range axis {
		fopr[s] = 5000 * math.Exp(-t/1500) * (1 + 0.02*(rng.Float64()-0.5))
		if s > 0 {
			fopt[s] = fopt[s-1] + 0.5*(fopr[s]+fopr[s-1])*(t-axis[s-1])
		}
		fwct[s] = 1 - math.Exp(-t/2000)
		wbhp[s] = 250 - 0.02*t
	}
	for _, v := range []struct {
		name, unit string
		values     []float64
	}{
		{VecFOPR, "SM3/DAY", fopr},
		{VecFOPT, "SM3", fopt},
		{VecFWCT, "", fwct},
		{VecWBHP, "BARSA", wbhp},
	} {
		if err := st.AddVector(v.name, v.unit, v.values); err != nil {
			return nil, err
		}
	}
	return st, nil
}
