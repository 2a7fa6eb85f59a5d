package db

import (
	"cmp"
	"context"
	"fmt"
	"maps"
	"slices"

	"github.com/banshee-data/reservoir/internal/grid"
	"github.com/banshee-data/reservoir/internal/monitoring"
	"github.com/banshee-data/reservoir/internal/simcase"
	"github.com/banshee-data/reservoir/internal/summary"
	"github.com/banshee-data/reservoir/internal/synth"
)

// CaseData is everything a loader produces for one case.
type CaseData struct {
	Grid       grid.Spec
	Properties map[simcase.PropertyKey][]float64
	Summary    *summary.Store
}

// ImportCase saves case metadata, grid, properties and summary. If any part
// fails the case row is deleted again, cascading to whatever was written.
func (db *DB) ImportCase(ctx context.Context, c *Case, data CaseData) error {
	if data.Summary == nil {
		return fmt.Errorf("case %q has no summary", c.Name)
	}
	if c.StartDate.IsZero() {
		c.StartDate = data.Summary.StartDate()
	}
	if err := db.SaveCase(ctx, c); err != nil {
		return err
	}
	if err := db.importParts(ctx, c.ID, data); err != nil {
		if derr := db.DeleteCase(ctx, c.ID); derr != nil {
			monitoring.Logf("[db] failed to roll back import of %s: %v", c.ID, derr)
		}
		return fmt.Errorf("import case %q: %w", c.Name, err)
	}
	monitoring.Logf("[db] imported case %s (%s): %d properties", c.ID, c.Name, len(data.Properties))
	return nil
}

func (db *DB) importParts(ctx context.Context, caseID string, data CaseData) error {
	if err := db.SaveGrid(ctx, caseID, data.Grid); err != nil {
		return err
	}
	// Sorted so that a failure always names the same property.
	keys := slices.SortedFunc(maps.Keys(data.Properties), func(a, b simcase.PropertyKey) int {
		return cmp.Compare(a.String(), b.String())
	})
	for _, k := range keys {
		if err := db.SaveProperty(ctx, caseID, k, data.Properties[k]); err != nil {
			return err
		}
	}
	return db.SaveSummary(ctx, caseID, data.Summary)
}

// SynthCaseData renders a synthetic generator into importable case data.
func SynthCaseData(gen *synth.Generator) (CaseData, error) {
	spec := gen.GridSpec()
	g, err := grid.New(spec)
	if err != nil {
		return CaseData{}, err
	}
	st, err := gen.Summary()
	if err != nil {
		return CaseData{}, err
	}
	props := make(map[simcase.PropertyKey][]float64)
	for name, values := range gen.Properties(g) {
		props[simcase.StaticKey(name)] = values
	}
	return CaseData{Grid: spec, Properties: props, Summary: st}, nil
}
