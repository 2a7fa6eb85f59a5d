package db

import (
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"path"
	"strconv"
	"strings"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"

	"github.com/banshee-data/reservoir/internal/monitoring"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// MigrationStatus compares a database with the embedded schema.
type MigrationStatus struct {
	CurrentVersion uint `json:"current_version"`
	LatestVersion  uint `json:"latest_version"`
	Dirty          bool `json:"dirty"`
	Pending        uint `json:"pending"`
}

// MigrateUp applies every pending migration. An up-to-date database is not
// an error.
func (db *DB) MigrateUp() error {
	return db.migrate("up", (*migrate.Migrate).Up)
}

// MigrateDown reverts the newest applied migration.
func (db *DB) MigrateDown() error {
	return db.migrate("down", func(m *migrate.Migrate) error { return m.Steps(-1) })
}

// MigrateTo moves the schema up or down to version.
func (db *DB) MigrateTo(version uint) error {
	return db.migrate(fmt.Sprintf("to version %d", version), func(m *migrate.Migrate) error {
		return m.Migrate(version)
	})
}

// MigrateForce records version as applied and clears the dirty flag without
// running any SQL. It is the way out of a half-applied migration once the
// schema has been repaired by hand.
func (db *DB) MigrateForce(version int) error {
	m, err := db.migrator()
	if err != nil {
		return err
	}
	if err := m.Force(version); err != nil {
		return fmt.Errorf("force migration to version %d failed: %w", version, err)
	}
	return nil
}

// MigrateVersion reports the applied version; 0 means nothing has been
// applied yet.
func (db *DB) MigrateVersion() (version uint, dirty bool, err error) {
	m, err := db.migrator()
	if err != nil {
		return 0, false, err
	}
	version, dirty, err = m.Version()
	if errors.Is(err, migrate.ErrNilVersion) {
		return 0, false, nil
	}
	return version, dirty, err
}

// GetMigrationStatus reports the applied and embedded versions.
func (db *DB) GetMigrationStatus() (MigrationStatus, error) {
	current, dirty, err := db.MigrateVersion()
	if err != nil {
		return MigrationStatus{}, fmt.Errorf("failed to get migration version: %w", err)
	}
	latest, err := LatestMigrationVersion()
	if err != nil {
		return MigrationStatus{}, err
	}
	st := MigrationStatus{CurrentVersion: current, LatestVersion: latest, Dirty: dirty}
	if latest > current {
		st.Pending = latest - current
	}
	return st, nil
}

// LatestMigrationVersion returns the highest version among the embedded
// NNNNNN_name.up.sql files.
func LatestMigrationVersion() (uint, error) {
	files, err := fs.Glob(migrationsFS, "migrations/*.up.sql")
	if err != nil {
		return 0, fmt.Errorf("failed to read migrations: %w", err)
	}
	var latest uint
	for _, f := range files {
		prefix, _, ok := strings.Cut(path.Base(f), "_")
		if !ok {
			continue
		}
		v, err := strconv.ParseUint(prefix, 10, 32)
		if err == nil && uint(v) > latest {
			latest = uint(v)
		}
	}
	if latest == 0 {
		return 0, fmt.Errorf("no numbered migrations embedded")
	}
	return latest, nil
}

// migrate runs step, treating "nothing to do" as success.
func (db *DB) migrate(what string, step func(*migrate.Migrate) error) error {
	m, err := db.migrator()
	if err != nil {
		return err
	}
	if err := step(m); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migration %s failed: %w", what, err)
	}
	return nil
}

// migrator binds the embedded migrations to this connection pool. The
// instance is never closed: closing it would close db.DB as well.
func (db *DB) migrator() (*migrate.Migrate, error) {
	src, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return nil, fmt.Errorf("failed to open embedded migrations: %w", err)
	}
	driver, err := sqlite.WithInstance(db.DB, &sqlite.Config{})
	if err != nil {
		return nil, fmt.Errorf("failed to create sqlite driver: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", src, "sqlite", driver)
	if err != nil {
		return nil, fmt.Errorf("failed to create migrate instance: %w", err)
	}
	m.Log = migrateLog{}
	return m, nil
}

// migrateLog forwards golang-migrate output to monitoring.Logf.
type migrateLog struct{}

func (migrateLog) Printf(format string, v ...interface{}) {
	monitoring.Logf("[migrate] "+format, v...)
}

func (migrateLog) Verbose() bool { return false }
