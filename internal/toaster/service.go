// Package toaster implements the service layer: ingestion, master
// curation, the processing engine, supersedence, and timfile building.
// Every operation serialises its store writes into one transaction.
package toaster

import (
	"context"
	"fmt"

	"toaster/internal/archive"
	"toaster/internal/config"
	"toaster/internal/database"
	"toaster/internal/tools"
	"toaster/internal/vault"
)

// Service wires the metadata store, the archive, and the external
// tools into the core operations.
type Service struct {
	store    *database.Store
	caches   *database.Caches
	archive  *archive.Archive
	mirror   vault.Mirror // may be nil
	runner   tools.Runner
	versions tools.VersionProvider
	logger   Logger
	warner   *Warner
	clock    Clock

	fitMethod       string
	tmpDir          string
	autoAddPulsars  bool
	rawDiagnostics  []string
	procDiagnostics []string
	operator        string
}

// Options configures a Service. Store, Archive, and Runner are
// required; the rest default sensibly.
type Options struct {
	Store    *database.Store
	Archive  *archive.Archive
	Mirror   vault.Mirror
	Runner   tools.Runner
	Versions tools.VersionProvider
	Logger   Logger
	Clock    Clock

	WarnMode        WarnMode
	FitMethod       string
	TmpDir          string
	AutoAddPulsars  bool
	RawDiagnostics  []string
	ProcDiagnostics []string
	Operator        string
}

// New creates a Service.
func New(opts Options) (*Service, error) {
	if opts.Store == nil {
		return nil, fmt.Errorf("service requires a store")
	}
	if opts.Archive == nil {
		return nil, fmt.Errorf("service requires an archive")
	}
	if opts.Runner == nil {
		opts.Runner = tools.NewExecRunner()
	}
	if opts.Versions == nil {
		opts.Versions = tools.NewVersionProvider(opts.Runner)
	}
	if opts.Logger == nil {
		opts.Logger = NewNopLogger()
	}
	if opts.Clock == nil {
		opts.Clock = NewRealClock()
	}
	if opts.WarnMode == "" {
		opts.WarnMode = WarnAlways
	}
	if opts.FitMethod == "" {
		opts.FitMethod = "PGS"
	}

	return &Service{
		store:           opts.Store,
		caches:          database.NewCaches(opts.Store),
		archive:         opts.Archive,
		mirror:          opts.Mirror,
		runner:          opts.Runner,
		versions:        opts.Versions,
		logger:          opts.Logger,
		warner:          NewWarner(opts.WarnMode, opts.Logger),
		clock:           opts.Clock,
		fitMethod:       opts.FitMethod,
		tmpDir:          opts.TmpDir,
		autoAddPulsars:  opts.AutoAddPulsars,
		rawDiagnostics:  opts.RawDiagnostics,
		procDiagnostics: opts.ProcDiagnostics,
		operator:        opts.Operator,
	}, nil
}

// OptionsFromConfig derives service options from a loaded Config. The
// store, archive, and mirror are constructed; the caller owns closing
// the store.
func OptionsFromConfig(ctx context.Context, cfg *config.Config) (Options, error) {
	store, err := database.NewStoreFromConfig(cfg.Database)
	if err != nil {
		return Options{}, err
	}

	arch, err := archive.New(cfg.ArchiveRoot, cfg.LayoutTemplate, archive.Policy(cfg.ArchivePolicy))
	if err != nil {
		store.Close()
		return Options{}, err
	}

	mirror, err := vault.NewMirrorFromConfig(ctx, cfg.Mirror)
	if err != nil {
		store.Close()
		return Options{}, err
	}

	mode, err := ParseWarnMode(cfg.WarnMode)
	if err != nil {
		store.Close()
		return Options{}, err
	}

	return Options{
		Store:           store,
		Archive:         arch,
		Mirror:          mirror,
		WarnMode:        mode,
		FitMethod:       cfg.FitMethod,
		TmpDir:          cfg.TmpDir,
		AutoAddPulsars:  cfg.AutoAddPulsars,
		RawDiagnostics:  cfg.RawDiagnostics,
		ProcDiagnostics: cfg.ProcDiagnostics,
		Operator:        cfg.Operator,
	}, nil
}

// Store exposes the underlying metadata store for read-only listing.
func (s *Service) Store() *database.Store { return s.store }

// Caches exposes the name-resolution caches.
func (s *Service) Caches() *database.Caches { return s.caches }

// operatorID resolves the configured operator to a user id. Every
// write records an owning user, so an unset operator is an error.
func (s *Service) operatorID(ctx context.Context) (int64, error) {
	if s.operator == "" {
		return 0, fmt.Errorf("%w: no operator configured", ErrBadInput)
	}
	id, err := s.caches.UserID(ctx, s.operator)
	if err != nil {
		return 0, fmt.Errorf("%w: operator %q", ErrUnrecognised, s.operator)
	}
	return id, nil
}

// mirrorFile pushes archived bytes to the configured mirror. Mirroring
// is best-effort: failures are logged, never returned.
func (s *Service) mirrorFile(ctx context.Context, md5 string, path string, size int64) {
	if s.mirror == nil {
		return
	}
	if err := putFileToMirror(ctx, s.mirror, md5, path, size); err != nil {
		s.logger.Warn("mirroring failed", "md5", md5, "path", path, "error", err)
	}
}
