// Package app is the application layer between the CLI and the
// service: it builds every dependency from config and manages the
// store lifecycle on Close.
package app

import (
	"context"
	"fmt"
	"os"
	"time"

	"toaster/internal/config"
	"toaster/internal/toaster"
)

// App is a fully wired application instance. The caller must call
// Close when done.
type App struct {
	cfg     *config.Config
	service *toaster.Service
	opts    toaster.Options
	logFile *os.File
}

// New creates an App from the given config. operation identifies the
// CLI command being run (e.g. "AddRawfile", "Process") and appears in
// every log line of this invocation.
func New(ctx context.Context, cfg *config.Config, operation string) (*App, error) {
	return newApp(ctx, cfg, operation, true)
}

// NewForMigration wires an App without requiring the schema to be
// current, for the migration command itself.
func NewForMigration(ctx context.Context, cfg *config.Config) (*App, error) {
	return newApp(ctx, cfg, "Migrate", false)
}

func newApp(ctx context.Context, cfg *config.Config, operation string, checkSchema bool) (*App, error) {
	opts, err := toaster.OptionsFromConfig(ctx, cfg)
	if err != nil {
		return nil, err
	}

	if checkSchema {
		if err := opts.Store.CheckMigrations(); err != nil {
			opts.Store.Close()
			return nil, fmt.Errorf("database schema out of date: %w", err)
		}
	}

	opID := fmt.Sprintf("%s-%s", operation, time.Now().UTC().Format("20060102T150405Z"))
	logger, logFile, err := newLogger(cfg.LogDir, opID)
	if err != nil {
		opts.Store.Close()
		return nil, err
	}
	opts.Logger = &slogAdapter{l: logger}

	svc, err := toaster.New(opts)
	if err != nil {
		opts.Store.Close()
		logFile.Close()
		return nil, err
	}

	return &App{cfg: cfg, service: svc, opts: opts, logFile: logFile}, nil
}

// Service returns the wired service layer.
func (a *App) Service() *toaster.Service { return a.service }

// Config returns the loaded configuration.
func (a *App) Config() *config.Config { return a.cfg }

// MigrateUp brings the metadata store to the latest schema version.
func (a *App) MigrateUp() error {
	return a.opts.Store.MigrateUp()
}

// Close releases the store and the log file.
func (a *App) Close() error {
	var firstErr error
	if err := a.opts.Store.Close(); err != nil {
		firstErr = fmt.Errorf("closing database: %w", err)
	}
	if a.logFile != nil {
		a.logFile.Close()
	}
	return firstErr
}
