package grid

import "fmt"

// Point3D is a location in model coordinates. Z is depth, increasing downward.
type Point3D struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

// Dims holds the logical dimensions of a grid.
type Dims struct {
	NX int `json:"nx"`
	NY int `json:"ny"`
	NZ int `json:"nz"`
}

// Count returns nx*ny*nz.
func (d Dims) Count() int { return d.NX * d.NY * d.NZ }

func (d Dims) String() string { return fmt.Sprintf("%dx%dx%d", d.NX, d.NY, d.NZ) }

// Box is a closed (inclusive) IJK range in a parent grid.
type Box struct {
	I1 int `json:"i1"`
	I2 int `json:"i2"`
	J1 int `json:"j1"`
	J2 int `json:"j2"`
	K1 int `json:"k1"`
	K2 int `json:"k2"`
}

// Extent returns the number of cells along each axis.
func (b Box) Extent() Dims {
	return Dims{NX: b.I2 - b.I1 + 1, NY: b.J2 - b.J1 + 1, NZ: b.K2 - b.K1 + 1}
}

// Contains reports whether (i,j,k) lies inside the box.
func (b Box) Contains(i, j, k int) bool {
	return i >= b.I1 && i <= b.I2 && j >= b.J1 && j <= b.J2 && k >= b.K1 && k <= b.K2
}

func (b Box) overlaps(o Box) bool {
	return b.I1 <= o.I2 && o.I1 <= b.I2 &&
		b.J1 <= o.J2 && o.J1 <= b.J2 &&
		b.K1 <= o.K2 && o.K1 <= b.K2
}

func (b Box) String() string {
	return fmt.Sprintf("[%d..%d, %d..%d, %d..%d]", b.I1, b.I2, b.J1, b.J2, b.K1, b.K2)
}

// Spec carries the raw corner-point arrays a loader supplies.
//
// Coord holds (nx+1)*(ny+1) pillars of six values each: xtop, ytop, ztop,
// xbot, ybot, zbot. Zcorn holds 8*nx*ny*nz depths laid out in the usual
// Eclipse order (2nx fastest, then 2ny, then 2nz). Actnum holds one flag per
// cell; any non-zero value marks an active cell and a nil Actnum means every
// cell is active.
type Spec struct {
	Dims   Dims      `json:"dims"`
	Coord  []float64 `json:"coord"`
	Zcorn  []float64 `json:"zcorn"`
	Actnum []int32   `json:"actnum,omitempty"`
	LGRs   []LGRSpec `json:"lgrs,omitempty"`
}

// LGRSpec describes a local grid refinement nested in a parent grid. The
// child dimensions must be whole multiples of the parent box extent.
type LGRSpec struct {
	Name string `json:"name"`
	Box  Box    `json:"box"`
	Spec Spec   `json:"spec"`
}
