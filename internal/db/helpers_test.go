package db

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/banshee-data/reservoir/internal/grid"
	"github.com/banshee-data/reservoir/internal/synth"
	"github.com/banshee-data/reservoir/internal/timeutil"
)

// testClockStart is the fixed wall-clock time used for created_at stamps in tests.
var testClockStart = time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)

// newTestDB opens a migrated database in a temp dir with a manual clock.
// modernc's :memory: gives every pooled connection its own database, so
// tests always use a file.
func newTestDB(t *testing.T) (*DB, *timeutil.ManualClock) {
	t.Helper()
	db, err := NewDB(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("Failed to create database: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	clock := timeutil.NewManualClock(testClockStart)
	db.SetClock(clock)
	return db, clock
}

// testGenerator returns a small synthetic case with one LGR and a dead corner.
func testGenerator(name string) *synth.Generator {
	gen := synth.NewGenerator(name, grid.Dims{NX: 4, NY: 3, NZ: 2})
	gen.Inactive = func(i, j, k int) bool { return i == 0 && j == 0 }
	gen.LGRs = []synth.Refinement{{Name: "LGR1", Box: grid.Box{I1: 2, I2: 3, J1: 1, J2: 1, K1: 1, K2: 1}, Ratio: grid.Dims{NX: 2, NY: 2, NZ: 2}}}
	gen.ReportSteps = 24
	return gen
}

// seedCase stores a full synthetic case and returns its ID.
func seedCase(t *testing.T, db *DB, gen *synth.Generator) string {
	t.Helper()
	data, err := SynthCaseData(gen)
	if err != nil {
		t.Fatalf("SynthCaseData failed: %v", err)
	}
	c := &Case{Name: gen.Name}
	if err := db.ImportCase(context.Background(), c, data); err != nil {
		t.Fatalf("ImportCase failed: %v", err)
	}
	return c.ID
}
