package db

import (
	"context"
	"errors"
	"testing"

	"github.com/banshee-data/reservoir/internal/reserr"
	"github.com/banshee-data/reservoir/internal/simcase"
	"github.com/banshee-data/reservoir/internal/synth"
)

func TestImportCase(t *testing.T) {
	db, _ := newTestDB(t)
	ctx := context.Background()
	gen := testGenerator("IMPORT")

	data, err := SynthCaseData(gen)
	if err != nil {
		t.Fatal(err)
	}
	c := &Case{Name: "IMPORT"}
	if err := db.ImportCase(ctx, c, data); err != nil {
		t.Fatalf("ImportCase failed: %v", err)
	}
	if !c.StartDate.Equal(gen.Start) {
		t.Errorf("StartDate = %v, want %v from the summary", c.StartDate, gen.Start)
	}

	got, err := db.GetCase(ctx, c.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.VectorCount != 4 || got.LGRCount != 1 {
		t.Errorf("counts = %d vectors, %d lgrs", got.VectorCount, got.LGRCount)
	}
	keys, err := db.ListProperties(ctx, c.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(keys) != 3 {
		t.Errorf("ListProperties = %v", keys)
	}
}

func TestImportCase_RollsBack(t *testing.T) {
	db, _ := newTestDB(t)
	ctx := context.Background()

	data, err := SynthCaseData(testGenerator("SHORT"))
	if err != nil {
		t.Fatal(err)
	}
	poro := simcase.StaticKey(synth.PropPORO)
	data.Properties[poro] = data.Properties[poro][1:]

	c := &Case{Name: "SHORT"}
	if err := db.ImportCase(ctx, c, data); !errors.Is(err, reserr.ErrLengthMismatch) {
		t.Fatalf("Expected ErrLengthMismatch, got %v", err)
	}
	if _, err := db.GetCase(ctx, c.ID); !errors.Is(err, reserr.ErrUnknownCase) {
		t.Errorf("case should be gone after a failed import, got %v", err)
	}
	if _, err := db.LoadGrid(ctx, c.ID); err == nil {
		t.Error("grid row survived the rollback")
	}

	if err := db.ImportCase(ctx, &Case{Name: "NOSUM"}, CaseData{Grid: data.Grid}); err == nil {
		t.Error("Expected error for missing summary")
	}
}
