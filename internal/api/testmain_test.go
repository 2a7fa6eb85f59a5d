package api

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/banshee-data/reservoir/internal/db"
	"github.com/banshee-data/reservoir/internal/grid"
	"github.com/banshee-data/reservoir/internal/monitoring"
	"github.com/banshee-data/reservoir/internal/synth"
)

var (
	apiTestTemplatePath string
	apiTestCaseID       string
)

// testGenerator is the case every API test starts from: a 4x3x2 grid with a
// dead column at (0,0), one LGR hosted by (2..3,1,1) and two years of
// monthly summary data.
func testGenerator() *synth.Generator {
	gen := synth.NewGenerator("API", grid.Dims{NX: 4, NY: 3, NZ: 2})
	gen.Inactive = func(i, j, k int) bool { return i == 0 && j == 0 }
	gen.LGRs = []synth.Refinement{{Name: "LGR1", Box: grid.Box{I1: 2, I2: 3, J1: 1, J2: 1, K1: 1, K2: 1}, Ratio: grid.Dims{NX: 2, NY: 2, NZ: 2}}}
	gen.ReportSteps = 24
	return gen
}

func TestMain(m *testing.M) {
	monitoring.SetLogger(nil)
	code := runAPITestMain(m)
	os.Exit(code)
}

func runAPITestMain(m *testing.M) int {
	tmpDir, err := os.MkdirTemp("", "reservoir-api-template-*")
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create API test template directory: %v\n", err)
		return 1
	}
	defer os.RemoveAll(tmpDir)

	apiTestTemplatePath = filepath.Join(tmpDir, "template.db")
	if err := seedTemplate(apiTestTemplatePath); err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize API test template DB: %v\n", err)
		return 1
	}
	return m.Run()
}

func seedTemplate(path string) error {
	templateDB, err := db.NewDB(path)
	if err != nil {
		return err
	}
	defer templateDB.Close()

	data, err := db.SynthCaseData(testGenerator())
	if err != nil {
		return err
	}
	c := &db.Case{Name: "API", Description: "api test case"}
	if err := templateDB.ImportCase(context.Background(), c, data); err != nil {
		return err
	}
	apiTestCaseID = c.ID

	// Fold the WAL into the main file so that a plain copy carries everything.
	_, err = templateDB.Exec("PRAGMA wal_checkpoint(TRUNCATE)")
	return err
}

func cloneAPITestDB(t *testing.T) string {
	t.Helper()
	if apiTestTemplatePath == "" {
		t.Fatal("API test template DB not initialized")
	}
	dbPath := filepath.Join(t.TempDir(), "test.db")
	if err := copyFile(apiTestTemplatePath, dbPath); err != nil {
		t.Fatalf("failed to clone API test DB template: %v", err)
	}
	return dbPath
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		_ = out.Close()
		return err
	}
	return out.Close()
}
