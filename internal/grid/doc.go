// Package grid implements the corner-point grid index.
//
// A Grid translates between logical (i,j,k) coordinates, the linear global
// cell index and the dense active-cell index, and answers geometric queries
// (corners, center, volume) for active cells. Grids are built once from
// COORD/ZCORN/ACTNUM arrays and are read-only afterwards, so a *Grid may be
// shared freely between goroutines.
//
// Index conventions:
//
//	global = i + j*nx + k*nx*ny
//	active = number of active cells with a smaller global index
//
// Cells covered by a local grid refinement (LGR) are inactive in their
// parent; their data lives in the child grid and must be addressed there.
//
// No file format parsing lives in this package. Loaders hand over raw
// arrays as a Spec.
package grid
