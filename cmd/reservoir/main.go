// Command reservoir loads, inspects and serves reservoir simulation cases.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/banshee-data/reservoir/internal/config"
	"github.com/banshee-data/reservoir/internal/db"
	"github.com/banshee-data/reservoir/internal/monitoring"
	"github.com/banshee-data/reservoir/internal/reserr"
)

// app carries the flags and state shared by every subcommand.
type app struct {
	configPath string
	dbPath     string
	verbose    bool

	cfg        *config.EngineConfig
	logger     *zap.Logger
	restoreLog func()
}

func main() {
	a := &app{}
	err := newRootCmd(a).Execute()
	a.teardown()
	if err != nil {
		os.Exit(1)
	}
}

func newRootCmd(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:          "reservoir",
		Short:        "Corner-point grids, summary vectors and region statistics for simulation cases",
		SilenceUsage: true,
		PersistentPreRunE: func(*cobra.Command, []string) error {
			return a.setup()
		},
	}
	root.PersistentFlags().StringVar(&a.configPath, "config", "", "engine config file (.json, .yaml); defaults to "+config.DefaultConfigPath+" when present")
	root.PersistentFlags().StringVar(&a.dbPath, "db", "", "case database path (overrides db_path)")
	root.PersistentFlags().BoolVarP(&a.verbose, "verbose", "v", false, "debug logging")

	root.AddCommand(
		synthCmd(a),
		infoCmd(a),
		vectorsCmd(a),
		resampleCmd(a),
		selectCmd(a),
		plotCmd(a),
		exportCmd(a),
		serveCmd(a),
		migrateCmd(a),
		versionCmd(),
	)
	return root
}

// setup loads the config and routes package logging through zap.
func (a *app) setup() error {
	cfg, err := loadConfig(a.configPath)
	if err != nil {
		return err
	}
	a.cfg = cfg
	if a.logger == nil {
		logger, err := monitoring.NewZap(a.verbose)
		if err != nil {
			return err
		}
		a.logger = logger
	}
	a.restoreLog = monitoring.UseZap(a.logger)
	return nil
}

// teardown restores the previous logger. It is safe to call more than once.
func (a *app) teardown() {
	if a.restoreLog != nil {
		a.restoreLog()
		a.restoreLog = nil
	}
}

func loadConfig(path string) (*config.EngineConfig, error) {
	if path != "" {
		return config.LoadEngineConfig(path)
	}
	if _, err := os.Stat(config.DefaultConfigPath); err == nil {
		return config.LoadEngineConfig(config.DefaultConfigPath)
	}
	return config.EmptyEngineConfig(), nil
}

func (a *app) databasePath() string {
	if a.dbPath != "" {
		return a.dbPath
	}
	return a.cfg.GetDBPath()
}

// openStore opens the case database, applying pending migrations.
func (a *app) openStore() (*db.DB, error) {
	store, err := db.NewDB(a.databasePath())
	if err != nil {
		return nil, fmt.Errorf("failed to open database %s: %w", a.databasePath(), err)
	}
	return store, nil
}

// findCase resolves a case by ID, falling back to a unique name match.
func findCase(ctx context.Context, store *db.DB, ref string) (*db.Case, error) {
	c, err := store.GetCase(ctx, ref)
	if err == nil {
		return c, nil
	}
	if !errors.Is(err, reserr.ErrUnknownCase) {
		return nil, err
	}
	cases, err := store.ListCases(ctx)
	if err != nil {
		return nil, err
	}
	var match *db.Case
	for i := range cases {
		if cases[i].Name != ref {
			continue
		}
		if match != nil {
			return nil, fmt.Errorf("case name %q is ambiguous, use the ID", ref)
		}
		match = &cases[i]
	}
	if match == nil {
		return nil, fmt.Errorf("case %q: %w", ref, reserr.ErrUnknownCase)
	}
	return match, nil
}
