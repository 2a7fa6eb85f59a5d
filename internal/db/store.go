package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/banshee-data/reservoir/internal/grid"
	"github.com/banshee-data/reservoir/internal/monitoring"
	"github.com/banshee-data/reservoir/internal/reserr"
	"github.com/banshee-data/reservoir/internal/simcase"
	"github.com/banshee-data/reservoir/internal/summary"
)

var _ simcase.Source = (*DB)(nil)

type gridBlobs struct {
	coord, zcorn, actnum []byte
}

func encodeSpec(s grid.Spec) (gridBlobs, error) {
	var b gridBlobs
	var err error
	if b.coord, err = encodeBlob(s.Coord); err != nil {
		return b, fmt.Errorf("encode coord: %w", err)
	}
	if b.zcorn, err = encodeBlob(s.Zcorn); err != nil {
		return b, fmt.Errorf("encode zcorn: %w", err)
	}
	if b.actnum, err = encodeOptional(s.Actnum); err != nil {
		return b, fmt.Errorf("encode actnum: %w", err)
	}
	return b, nil
}

func decodeSpec(d grid.Dims, b gridBlobs) (grid.Spec, error) {
	s := grid.Spec{Dims: d}
	var err error
	if s.Coord, err = decodeFloats(b.coord); err != nil {
		return s, fmt.Errorf("coord: %w", err)
	}
	if s.Zcorn, err = decodeFloats(b.zcorn); err != nil {
		return s, fmt.Errorf("zcorn: %w", err)
	}
	if s.Actnum, err = decodeInts(b.actnum); err != nil {
		return s, fmt.Errorf("actnum: %w", err)
	}
	return s, nil
}

// SaveGrid replaces the grid of a case. The grid.Spec is validated by building it
// first, so a malformed spec never reaches the database.
func (db *DB) SaveGrid(ctx context.Context, caseID string, spec grid.Spec) error {
	g, err := grid.New(spec)
	if err != nil {
		return err
	}
	main, err := encodeSpec(spec)
	if err != nil {
		return err
	}
	lgrs := make([]gridBlobs, len(spec.LGRs))
	for n, l := range spec.LGRs {
		if lgrs[n], err = encodeSpec(l.Spec); err != nil {
			return fmt.Errorf("lgr %q: %w", l.Name, err)
		}
	}

	return db.withTx(ctx, func(tx *sql.Tx) error {
		if err := db.touch(ctx, tx, caseID); err != nil {
			return err
		}
		d := spec.Dims
		if _, err := tx.ExecContext(ctx, `
			INSERT OR REPLACE INTO grids (case_id, nx, ny, nz, active_count, coord_blob, zcorn_blob, actnum_blob)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			caseID, d.NX, d.NY, d.NZ, g.ActiveCount(), main.coord, main.zcorn, main.actnum); err != nil {
			return fmt.Errorf("failed to save grid: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM lgrs WHERE case_id = ?`, caseID); err != nil {
			return fmt.Errorf("failed to clear lgrs: %w", err)
		}
		for n, l := range spec.LGRs {
			b, ld := l.Box, l.Spec.Dims
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO lgrs (case_id, name, ordinal, i1, i2, j1, j2, k1, k2, nx, ny, nz, coord_blob, zcorn_blob, actnum_blob)
				VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
				caseID, l.Name, n, b.I1, b.I2, b.J1, b.J2, b.K1, b.K2, ld.NX, ld.NY, ld.NZ,
				lgrs[n].coord, lgrs[n].zcorn, lgrs[n].actnum); err != nil {
				return fmt.Errorf("failed to save lgr %q: %w", l.Name, err)
			}
		}
		monitoring.Logf("[db] saved grid %s for case %s (%d active, %d lgrs)", d, caseID, g.ActiveCount(), len(spec.LGRs))
		return nil
	})
}

// LoadGrid reads the grid spec of a case, LGRs included.
func (db *DB) LoadGrid(ctx context.Context, caseID string) (grid.Spec, error) {
	var d grid.Dims
	var b gridBlobs
	err := db.QueryRowContext(ctx, `SELECT nx, ny, nz, coord_blob, zcorn_blob, actnum_blob FROM grids WHERE case_id = ?`, caseID).
		Scan(&d.NX, &d.NY, &d.NZ, &b.coord, &b.zcorn, &b.actnum)
	if errors.Is(err, sql.ErrNoRows) {
		return grid.Spec{}, fmt.Errorf("grid of case %s: %w", caseID, reserr.ErrUnknownCase)
	}
	if err != nil {
		return grid.Spec{}, fmt.Errorf("failed to load grid: %w", err)
	}
	spec, err := decodeSpec(d, b)
	if err != nil {
		return grid.Spec{}, fmt.Errorf("grid of case %s: %w", caseID, err)
	}

	rows, err := db.QueryContext(ctx, `
		SELECT name, i1, i2, j1, j2, k1, k2, nx, ny, nz, coord_blob, zcorn_blob, actnum_blob
		FROM lgrs WHERE case_id = ? ORDER BY ordinal`, caseID)
	if err != nil {
		return grid.Spec{}, fmt.Errorf("failed to load lgrs: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var l grid.LGRSpec
		var ld grid.Dims
		var lb gridBlobs
		if err := rows.Scan(&l.Name, &l.Box.I1, &l.Box.I2, &l.Box.J1, &l.Box.J2, &l.Box.K1, &l.Box.K2,
			&ld.NX, &ld.NY, &ld.NZ, &lb.coord, &lb.zcorn, &lb.actnum); err != nil {
			return grid.Spec{}, err
		}
		if l.Spec, err = decodeSpec(ld, lb); err != nil {
			return grid.Spec{}, fmt.Errorf("lgr %q of case %s: %w", l.Name, caseID, err)
		}
		spec.LGRs = append(spec.LGRs, l)
	}
	return spec, rows.Err()
}

// SaveProperty stores one property array. The length is checked against the
// stored grid the key addresses.
func (db *DB) SaveProperty(ctx context.Context, caseID string, key simcase.PropertyKey, values []float64) error {
	if key.Name == "" || (key.Category != simcase.Static && key.Category != simcase.Dynamic) {
		return fmt.Errorf("property key %s: %w", key, reserr.ErrMalformed)
	}
	want, err := db.activeCount(ctx, caseID, key.Grid)
	if err != nil {
		return err
	}
	if len(values) != want {
		return fmt.Errorf("property %s has %d values, grid has %d active cells: %w", key, len(values), want, reserr.ErrLengthMismatch)
	}
	blob, err := encodeBlob(values)
	if err != nil {
		return err
	}
	step := key.Step
	if key.Category == simcase.Static {
		step = 0
	}
	return db.withTx(ctx, func(tx *sql.Tx) error {
		if err := db.touch(ctx, tx, caseID); err != nil {
			return err
		}
		_, err := tx.ExecContext(ctx, `
			INSERT OR REPLACE INTO properties (case_id, grid_name, category, name, step, value_count, values_blob)
			VALUES (?, ?, ?, ?, ?, ?, ?)`,
			caseID, key.Grid, string(key.Category), key.Name, step, len(values), blob)
		if err != nil {
			return fmt.Errorf("failed to save property: %w", err)
		}
		return nil
	})
}

func (db *DB) activeCount(ctx context.Context, caseID, lgr string) (int, error) {
	if lgr == "" {
		var n int
		err := db.QueryRowContext(ctx, `SELECT active_count FROM grids WHERE case_id = ?`, caseID).Scan(&n)
		if errors.Is(err, sql.ErrNoRows) {
			return 0, fmt.Errorf("grid of case %s: %w", caseID, reserr.ErrUnknownCase)
		}
		return n, err
	}
	// LGR active counts are not stored; build the grid to get them.
	spec, err := db.LoadGrid(ctx, caseID)
	if err != nil {
		return 0, err
	}
	g, err := grid.New(spec)
	if err != nil {
		return 0, err
	}
	sub, ok := g.SubGridByName(lgr)
	if !ok {
		return 0, fmt.Errorf("case %s has no lgr %q: %w", caseID, lgr, reserr.ErrOutOfRange)
	}
	return sub.ActiveCount(), nil
}

// LoadProperty reads one property array.
func (db *DB) LoadProperty(ctx context.Context, caseID string, key simcase.PropertyKey) ([]float64, error) {
	step := key.Step
	if key.Category == simcase.Static {
		step = 0
	}
	var blob []byte
	err := db.QueryRowContext(ctx, `
		SELECT values_blob FROM properties
		WHERE case_id = ? AND grid_name = ? AND category = ? AND name = ? AND step = ?`,
		caseID, key.Grid, string(key.Category), key.Name, step).Scan(&blob)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("property %s of case %s: %w", key, caseID, reserr.ErrUnknownVector)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load property: %w", err)
	}
	return decodeFloats(blob)
}

// ListProperties returns the stored property keys of a case.
func (db *DB) ListProperties(ctx context.Context, caseID string) ([]simcase.PropertyKey, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT grid_name, category, name, step FROM properties
		WHERE case_id = ? ORDER BY grid_name, category, name, step`, caseID)
	if err != nil {
		return nil, fmt.Errorf("failed to list properties: %w", err)
	}
	defer rows.Close()
	var out []simcase.PropertyKey
	for rows.Next() {
		var k simcase.PropertyKey
		var cat string
		if err := rows.Scan(&k.Grid, &cat, &k.Name, &k.Step); err != nil {
			return nil, err
		}
		k.Category = simcase.Category(cat)
		out = append(out, k)
	}
	return out, rows.Err()
}

// SaveSummary replaces the summary axis and every vector of a case.
func (db *DB) SaveSummary(ctx context.Context, caseID string, st *summary.Store) error {
	axis, err := encodeBlob(st.Axis())
	if err != nil {
		return err
	}
	names := st.AvailableAddresses()
	type row struct {
		v            summary.Vector
		days, values []byte
	}
	rowsOut := make([]row, 0, len(names))
	for _, name := range names {
		v, err := st.Vector(name)
		if err != nil {
			return err
		}
		r := row{v: v}
		if r.days, err = encodeOptional(v.Days); err != nil {
			return err
		}
		if r.values, err = encodeBlob(v.Values); err != nil {
			return err
		}
		rowsOut = append(rowsOut, r)
	}

	return db.withTx(ctx, func(tx *sql.Tx) error {
		if err := db.touch(ctx, tx, caseID); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `UPDATE cases SET start_date = ? WHERE case_id = ?`,
			st.StartDate().Format(timeLayout), caseID); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `INSERT OR REPLACE INTO summaries (case_id, step_count, axis_blob) VALUES (?, ?, ?)`,
			caseID, len(st.Axis()), axis); err != nil {
			return fmt.Errorf("failed to save summary: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM vectors WHERE case_id = ?`, caseID); err != nil {
			return err
		}
		for _, r := range rowsOut {
			gen := 0
			if r.v.Generated {
				gen = 1
			}
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO vectors (case_id, name, unit, generated, days_blob, values_blob)
				VALUES (?, ?, ?, ?, ?, ?)`, caseID, r.v.Name, r.v.Unit, gen, r.days, r.values); err != nil {
				return fmt.Errorf("failed to save vector %q: %w", r.v.Name, err)
			}
		}
		monitoring.Logf("[db] saved summary for case %s (%d steps, %d vectors)", caseID, len(st.Axis()), len(rowsOut))
		return nil
	})
}

// LoadSummary rebuilds the summary store of a case.
func (db *DB) LoadSummary(ctx context.Context, caseID string) (*summary.Store, error) {
	c, err := db.GetCase(ctx, caseID)
	if err != nil {
		return nil, err
	}
	var axisBlob []byte
	err = db.QueryRowContext(ctx, `SELECT axis_blob FROM summaries WHERE case_id = ?`, caseID).Scan(&axisBlob)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("summary of case %s: %w", caseID, reserr.ErrUnknownCase)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load summary: %w", err)
	}
	axis, err := decodeFloats(axisBlob)
	if err != nil {
		return nil, fmt.Errorf("summary axis of case %s: %w", caseID, err)
	}
	st, err := summary.NewStore(c.StartDate, axis)
	if err != nil {
		return nil, err
	}

	rows, err := db.QueryContext(ctx, `SELECT name, unit, generated, days_blob, values_blob FROM vectors WHERE case_id = ?`, caseID)
	if err != nil {
		return nil, fmt.Errorf("failed to load vectors: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var name, unit string
		var generated int
		var daysBlob, valuesBlob []byte
		if err := rows.Scan(&name, &unit, &generated, &daysBlob, &valuesBlob); err != nil {
			return nil, err
		}
		values, err := decodeFloats(valuesBlob)
		if err != nil {
			return nil, fmt.Errorf("vector %q: %w", name, err)
		}
		switch {
		case daysBlob != nil:
			days, err := decodeFloats(daysBlob)
			if err != nil {
				return nil, fmt.Errorf("vector %q: %w", name, err)
			}
			err = st.ImportVector(name, unit, days, values)
		case generated == 1:
			err = st.SetValues(name, unit, values)
		default:
			err = st.AddVector(name, unit, values)
		}
		if err != nil {
			return nil, err
		}
	}
	return st, rows.Err()
}

// SaveVector stores or replaces a single vector, e.g. one generated through
// the API, without rewriting the rest of the summary.
func (db *DB) SaveVector(ctx context.Context, caseID string, v summary.Vector) error {
	if v.Name == "" {
		return fmt.Errorf("empty vector name: %w", reserr.ErrMalformed)
	}
	days, err := encodeOptional(v.Days)
	if err != nil {
		return err
	}
	values, err := encodeBlob(v.Values)
	if err != nil {
		return err
	}
	gen := 0
	if v.Generated {
		gen = 1
	}
	return db.withTx(ctx, func(tx *sql.Tx) error {
		if err := db.touch(ctx, tx, caseID); err != nil {
			return err
		}
		_, err := tx.ExecContext(ctx, `
			INSERT OR REPLACE INTO vectors (case_id, name, unit, generated, days_blob, values_blob)
			VALUES (?, ?, ?, ?, ?, ?)`, caseID, v.Name, v.Unit, gen, days, values)
		if err != nil {
			return fmt.Errorf("failed to save vector %q: %w", v.Name, err)
		}
		return nil
	})
}
