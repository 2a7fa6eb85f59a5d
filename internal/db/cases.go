package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/banshee-data/reservoir/internal/grid"
	"github.com/banshee-data/reservoir/internal/reserr"
	"github.com/banshee-data/reservoir/internal/timeutil"
)

// timeLayout is the text form of case start dates.
const timeLayout = time.RFC3339

// Case is one row of the cases table plus grid and summary counts.
type Case struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	StartDate   time.Time `json:"start_date"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`

	// Filled by GetCase and ListCases.
	Dims        grid.Dims `json:"dims"`
	ActiveCount int       `json:"active_count"`
	LGRCount    int       `json:"lgr_count"`
	VectorCount int       `json:"vector_count"`
}

// SaveCase inserts or updates case metadata. A new ID is assigned when
// c.ID is empty.
func (db *DB) SaveCase(ctx context.Context, c *Case) error {
	if c.Name == "" {
		return fmt.Errorf("case has no name: %w", reserr.ErrMalformed)
	}
	if c.ID == "" {
		c.ID = uuid.New().String()
	}
	now := timeutil.Unix(db.clock)
	_, err := db.ExecContext(ctx, `
		INSERT INTO cases (case_id, name, description, start_date, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(case_id) DO UPDATE SET
			name = excluded.name,
			description = excluded.description,
			start_date = excluded.start_date,
			updated_at = excluded.updated_at
	`, c.ID, c.Name, c.Description, c.StartDate.UTC().Format(timeLayout), now, now)
	if err != nil {
		return fmt.Errorf("failed to save case: %w", err)
	}
	got, err := db.GetCase(ctx, c.ID)
	if err != nil {
		return err
	}
	*c = *got
	return nil
}

const caseColumns = `
	c.case_id, c.name, c.description, c.start_date, c.created_at, c.updated_at,
	COALESCE(g.nx, 0), COALESCE(g.ny, 0), COALESCE(g.nz, 0), COALESCE(g.active_count, 0),
	(SELECT COUNT(*) FROM lgrs l WHERE l.case_id = c.case_id),
	(SELECT COUNT(*) FROM vectors v WHERE v.case_id = c.case_id)
	FROM cases c LEFT JOIN grids g ON g.case_id = c.case_id`

type scanner interface {
	Scan(dest ...any) error
}

func scanCase(row scanner) (*Case, error) {
	var c Case
	var start string
	var created, updated int64
	if err := row.Scan(&c.ID, &c.Name, &c.Description, &start, &created, &updated,
		&c.Dims.NX, &c.Dims.NY, &c.Dims.NZ, &c.ActiveCount, &c.LGRCount, &c.VectorCount); err != nil {
		return nil, err
	}
	t, err := time.Parse(timeLayout, start)
	if err != nil {
		return nil, fmt.Errorf("case %s start date %q: %w", c.ID, start, err)
	}
	c.StartDate = t.UTC()
	c.CreatedAt = time.Unix(created, 0)
	c.UpdatedAt = time.Unix(updated, 0)
	return &c, nil
}

// GetCase retrieves a case by ID.
func (db *DB) GetCase(ctx context.Context, id string) (*Case, error) {
	c, err := scanCase(db.QueryRowContext(ctx, `SELECT `+caseColumns+` WHERE c.case_id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("case %s: %w", id, reserr.ErrUnknownCase)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get case: %w", err)
	}
	return c, nil
}

// ListCases returns every case, newest first.
func (db *DB) ListCases(ctx context.Context) ([]Case, error) {
	rows, err := db.QueryContext(ctx, `SELECT `+caseColumns+` ORDER BY c.created_at DESC, c.name`)
	if err != nil {
		return nil, fmt.Errorf("failed to list cases: %w", err)
	}
	defer rows.Close()

	var out []Case
	for rows.Next() {
		c, err := scanCase(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *c)
	}
	return out, rows.Err()
}

// DeleteCase removes a case and everything stored under it.
func (db *DB) DeleteCase(ctx context.Context, id string) error {
	res, err := db.ExecContext(ctx, `DELETE FROM cases WHERE case_id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete case: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("case %s: %w", id, reserr.ErrUnknownCase)
	}
	return nil
}

func (db *DB) touch(ctx context.Context, tx *sql.Tx, id string) error {
	res, err := tx.ExecContext(ctx, `UPDATE cases SET updated_at = ? WHERE case_id = ?`, timeutil.Unix(db.clock), id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("case %s: %w", id, reserr.ErrUnknownCase)
	}
	return nil
}

// withTx runs fn in a transaction, committing only if fn succeeds.
func (db *DB) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}
