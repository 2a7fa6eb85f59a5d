package selection

import (
	"fmt"
	"math"
	"slices"
	"strings"

	"gonum.org/v1/gonum/floats"

	"github.com/banshee-data/reservoir/internal/reserr"
)

// Selection is an ascending list of active-cell indices.
type Selection []int

// Len returns the number of selected cells.
func (s Selection) Len() int { return len(s) }

// Evaluate computes the selection matched by p.
func Evaluate(idx CellIndex, p Predicate) (Selection, error) {
	m, err := p.Mask(idx)
	if err != nil {
		return nil, err
	}
	sel := make(Selection, 0)
	for a, ok := range m {
		if ok {
			sel = append(sel, a)
		}
	}
	return sel, nil
}

// SelectEqual selects every active cell whose property value equals target.
func SelectEqual(idx CellIndex, values []float64, target float64) (Selection, error) {
	return Evaluate(idx, Equal{Values: values, Target: target})
}

// SelectBox selects every active cell inside the closed IJK ranges.
func SelectBox(idx CellIndex, i, j, k Range) (Selection, error) {
	return Evaluate(idx, Box{I: i, J: j, K: k})
}

// SelectList selects an explicit set of active indices, sorted and deduplicated.
func SelectList(idx CellIndex, active []int) (Selection, error) {
	return Evaluate(idx, List{Active: active})
}

// Op is an aggregate operation.
type Op int

const (
	Sum Op = iota
	Mean
	Count
)

func (o Op) String() string {
	switch o {
	case Sum:
		return "sum"
	case Mean:
		return "mean"
	case Count:
		return "count"
	}
	return fmt.Sprintf("Op(%d)", int(o))
}

// ParseOp parses "sum", "mean"/"avg" or "count".
func ParseOp(s string) (Op, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "sum", "total":
		return Sum, nil
	case "mean", "avg", "average":
		return Mean, nil
	case "count", "n":
		return Count, nil
	}
	return 0, fmt.Errorf("unknown aggregate %q (valid: sum, mean, count)", s)
}

// Aggregate reduces values over the selected cells. Mean over an empty
// selection fails with reserr.ErrEmptySelection rather than producing 0 or
// NaN. Mean is a running mean, so N identical values return that value
// exactly.
func Aggregate(sel Selection, values []float64, op Op) (float64, error) {
	picked := make([]float64, len(sel))
	for n, a := range sel {
		if a < 0 || a >= len(values) {
			return 0, fmt.Errorf("selected index %d outside values [0,%d): %w", a, len(values), reserr.ErrOutOfRange)
		}
		picked[n] = values[a]
	}

	switch op {
	case Sum:
		return floats.Sum(picked), nil
	case Count:
		return float64(len(picked)), nil
	case Mean:
		if len(picked) == 0 {
			return 0, fmt.Errorf("mean: %w", reserr.ErrEmptySelection)
		}
		return runningMean(picked), nil
	}
	return 0, fmt.Errorf("unsupported aggregate %v", op)
}

func runningMean(xs []float64) float64 {
	var m float64
	for n, x := range xs {
		m += (x - m) / float64(n+1)
	}
	return m
}

// RegionStat summarises one region of a region property.
type RegionStat struct {
	Region int     `json:"region"`
	Count  int     `json:"count"`
	Sum    float64 `json:"sum"`
	Mean   float64 `json:"mean"`
}

// RegionStatistics groups values by region id (the region property value
// rounded to the nearest integer) and returns one entry per region in
// ascending region order.
func RegionStatistics(idx CellIndex, regions, values []float64) ([]RegionStat, error) {
	n := idx.ActiveCount()
	if len(regions) != n {
		return nil, fmt.Errorf("region property has %d values, grid has %d active cells: %w", len(regions), n, reserr.ErrLengthMismatch)
	}
	if len(values) != n {
		return nil, fmt.Errorf("value property has %d values, grid has %d active cells: %w", len(values), n, reserr.ErrLengthMismatch)
	}

	groups := make(map[int][]float64)
	for a, r := range regions {
		if math.IsNaN(r) {
			continue
		}
		id := int(math.Round(r))
		groups[id] = append(groups[id], values[a])
	}

	ids := make([]int, 0, len(groups))
	for id := range groups {
		ids = append(ids, id)
	}
	slices.Sort(ids)

	out := make([]RegionStat, 0, len(ids))
	for _, id := range ids {
		vs := groups[id]
		out = append(out, RegionStat{
			Region: id,
			Count:  len(vs),
			Sum:    floats.Sum(vs),
			Mean:   runningMean(vs),
		})
	}
	return out, nil
}
