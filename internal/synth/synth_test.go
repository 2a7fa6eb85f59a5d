package synth

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/reservoir/internal/grid"
	"github.com/banshee-data/reservoir/internal/summary"
)

func TestGenerator_Deterministic(t *testing.T) {
	gen := NewGenerator("det", grid.Dims{NX: 4, NY: 4, NZ: 4})
	g, err := grid.New(gen.GridSpec())
	require.NoError(t, err)

	a := gen.Properties(g)
	b := gen.Properties(g)
	assert.Equal(t, a, b)

	for _, name := range []string{PropPORO, PropPERMX, PropFIPNUM} {
		assert.Len(t, a[name], g.ActiveCount(), name)
	}
	for _, r := range a[PropFIPNUM] {
		assert.Contains(t, []float64{1, 2, 3, 4}, r)
	}
	for _, p := range a[PropPORO] {
		assert.True(t, p > 0 && p < 0.3, "poro %g", p)
	}

	other := *gen
	other.Seed = 2
	assert.NotEqual(t, a[PropPORO], other.Properties(g)[PropPORO])
}

func TestGenerator_Summary(t *testing.T) {
	gen := NewGenerator("sum", grid.Dims{NX: 1, NY: 1, NZ: 1})
	st, err := gen.Summary()
	require.NoError(t, err)

	assert.Equal(t, []string{VecFOPR, VecFOPT, VecFWCT, VecWBHP}, st.AvailableAddresses())
	assert.Len(t, st.Axis(), gen.ReportSteps+1)

	fopt, err := st.VectorValues(VecFOPT)
	require.NoError(t, err)
	for i := 1; i < fopt.Len(); i++ {
		assert.Greater(t, fopt.Values[i], fopt.Values[i-1], "cumulative must increase")
	}

	monthly, err := st.Resample(VecFOPR, summary.Month)
	require.NoError(t, err)
	assert.Equal(t, gen.ReportSteps+1, monthly.Len())

	unit, err := st.Unit(VecWBHP)
	require.NoError(t, err)
	assert.Equal(t, "BARSA", unit)

	gen.ReportSteps = 0
	_, err = gen.Summary()
	assert.Error(t, err)
}

func TestGridSpec_LGRDims(t *testing.T) {
	gen := NewGenerator("lgr", grid.Dims{NX: 5, NY: 5, NZ: 3})
	gen.LGRs = []Refinement{{Name: "L", Box: grid.Box{I1: 1, I2: 2, J1: 3, J2: 3, K1: 0, K2: 2}, Ratio: grid.Dims{NX: 2, NY: 3, NZ: 1}}}
	spec := gen.GridSpec()
	require.Len(t, spec.LGRs, 1)
	assert.Equal(t, grid.Dims{NX: 4, NY: 3, NZ: 3}, spec.LGRs[0].Spec.Dims)
	assert.Nil(t, spec.Actnum, "all-active grids omit ACTNUM")
}
