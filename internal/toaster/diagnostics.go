package toaster

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"toaster/internal/database"
	"toaster/internal/model"
	"toaster/internal/tools"
)

// diagnostic is one named diagnostic. Exactly one of expr and plot is
// set: expr is evaluated through the stat tool yielding a float, plot
// names a plotter plot rendered to an archived PNG.
type diagnostic struct {
	name string
	expr string
	plot string
}

var diagnosticTable = map[string]diagnostic{
	"snr":      {name: "snr", expr: "snr"},
	"nzap":     {name: "nzap", expr: "nzap"},
	"profile":  {name: "profile", plot: "flux"},
	"freq":     {name: "freq", plot: "freq"},
	"time":     {name: "time", plot: "time"},
	"bandpass": {name: "bandpass", plot: "b"},
}

// DiagnosticNames returns the registered diagnostic names, sorted.
func DiagnosticNames() []string {
	names := make([]string, 0, len(diagnosticTable))
	for name := range diagnosticTable {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// addDiagnostics computes and records the named diagnostics for one
// owner inside the caller's transaction. A diagnostic that already
// exists for the owner, or that does not apply to it, is skipped with
// a log entry rather than failing the transaction.
func (s *Service) addDiagnostics(ctx context.Context, q *database.Queries, owner database.DiagnosticOwner, ownerID int64, file string, names []string, plotDir string) error {
	for _, name := range names {
		d, ok := diagnosticTable[name]
		if !ok {
			return fmt.Errorf("%w: diagnostic %q (available: %s)",
				ErrUnrecognised, name, strings.Join(DiagnosticNames(), ", "))
		}

		if d.expr != "" {
			if owner == database.OwnerTOA {
				s.logger.Info("diagnostic not applicable, skipped",
					"diagnostic", name, "owner", string(owner), "owner_id", ownerID)
				continue
			}
			exists, err := q.HasFloatDiagnostic(ctx, owner, ownerID, name)
			if err != nil {
				return err
			}
			if exists {
				s.logger.Info("diagnostic already exists, skipped",
					"diagnostic", name, "owner", string(owner), "owner_id", ownerID)
				continue
			}
			value, err := s.floatDiagnostic(ctx, file, d.expr)
			if err != nil {
				return err
			}
			if err := q.InsertFloatDiagnostic(ctx, owner, ownerID, name, value); err != nil {
				return err
			}
			continue
		}

		exists, err := q.HasPlotDiagnostic(ctx, owner, ownerID, name)
		if err != nil {
			return err
		}
		if exists {
			s.logger.Info("diagnostic already exists, skipped",
				"diagnostic", name, "owner", string(owner), "owner_id", ownerID)
			continue
		}
		plotPath := filepath.Join(plotDir,
			fmt.Sprintf("%s.%s.%d.png", filepath.Base(file), name, ownerID))
		if err := s.plotDiagnostic(ctx, file, d.plot, plotPath); err != nil {
			return err
		}
		if err := q.InsertPlotDiagnostic(ctx, owner, ownerID, name, plotPath); err != nil {
			return err
		}
	}
	return nil
}

// floatDiagnostic evaluates one stat expression against the file.
func (s *Service) floatDiagnostic(ctx context.Context, file, expr string) (float64, error) {
	stdout, _, err := s.runner.Run(ctx, tools.StatTool, "-Qq", "-c", expr, file)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrSystemCall, err)
	}
	fields := strings.Fields(stdout)
	if len(fields) == 0 {
		return 0, fmt.Errorf("%w: stat tool produced no output for %s", ErrSystemCall, expr)
	}
	value, err := strconv.ParseFloat(fields[len(fields)-1], 64)
	if err != nil {
		return 0, fmt.Errorf("%w: parsing stat output %q: %v", ErrSystemCall, fields[len(fields)-1], err)
	}
	return value, nil
}

// plotDiagnostic renders one plot to outPath as a PNG and narrows its
// permissions to match the archive.
func (s *Service) plotDiagnostic(ctx context.Context, file, plot, outPath string) error {
	if err := os.MkdirAll(filepath.Dir(outPath), 0770); err != nil {
		return fmt.Errorf("%w: creating plot directory: %v", ErrFile, err)
	}
	_, _, err := s.runner.Run(ctx, tools.Plotter, "-p", plot, "-D", outPath+"/PNG", file)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrSystemCall, err)
	}
	if _, err := os.Stat(outPath); err == nil {
		if err := os.Chmod(outPath, 0440); err != nil {
			return fmt.Errorf("%w: narrowing plot permissions: %v", ErrFile, err)
		}
	}
	return nil
}

// AddDiagnostics computes named diagnostics for an existing rawfile or
// process after the fact.
func (s *Service) AddDiagnostics(ctx context.Context, owner database.DiagnosticOwner, ownerID int64, names []string) error {
	var file, plotDir string
	switch owner {
	case database.OwnerRawfile:
		r, err := s.store.GetRawfileByID(ctx, ownerID)
		if err != nil {
			return err
		}
		if r == nil {
			return fmt.Errorf("%w: rawfile %d", ErrUnrecognised, ownerID)
		}
		file = r.Path
		plotDir, err = s.rawfilePlotDir(ctx, r)
		if err != nil {
			return err
		}
	case database.OwnerProcess:
		p, err := s.store.GetProcessByID(ctx, ownerID)
		if err != nil {
			return err
		}
		if p == nil {
			return fmt.Errorf("%w: process %d", ErrUnrecognised, ownerID)
		}
		r, err := s.store.GetRawfileByID(ctx, p.RawfileID)
		if err != nil {
			return err
		}
		// Post-hoc process diagnostics run against the archived raw
		// file; the manipulated intermediate is not retained.
		file = r.Path
		plotDir = s.processPlotDir(p.ID)
	default:
		return fmt.Errorf("%w: diagnostic owner %q", ErrUnrecognised, owner)
	}

	return s.store.WithTx(ctx, func(q *database.Queries) error {
		return s.addDiagnostics(ctx, q, owner, ownerID, file, names, plotDir)
	})
}

// rawfilePlotDir derives the diagnostics directory for a rawfile from
// its stored naming rows.
func (s *Service) rawfilePlotDir(ctx context.Context, r *model.Rawfile) (string, error) {
	fields, err := s.layoutFieldsFor(ctx, r.PulsarID, r.ObsSystemID)
	if err != nil {
		return "", err
	}
	dir, err := s.archive.DestDir("diagnostics", fields)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrFile, err)
	}
	return dir, nil
}

// processPlotDir is the canonical per-process diagnostic directory.
func (s *Service) processPlotDir(processID int64) string {
	return filepath.Join(s.archive.Root(), "diagnostics", "processes",
		strconv.FormatInt(processID, 10))
}

// layoutFieldsFor rebuilds the archive layout fields from stored rows.
func (s *Service) layoutFieldsFor(ctx context.Context, pulsarID, obsSystemID int64) (map[string]string, error) {
	pulsarName, err := s.caches.PulsarName(ctx, pulsarID)
	if err != nil {
		return nil, err
	}
	obsSystem, err := s.store.GetObsSystemByID(ctx, obsSystemID)
	if err != nil {
		return nil, err
	}
	if obsSystem == nil {
		return nil, fmt.Errorf("%w: observing system %d missing", ErrInconsistentStore, obsSystemID)
	}
	telescope, err := s.store.GetTelescopeByID(ctx, obsSystem.TelescopeID)
	if err != nil {
		return nil, err
	}
	if telescope == nil {
		return nil, fmt.Errorf("%w: telescope %d missing", ErrInconsistentStore, obsSystem.TelescopeID)
	}
	return map[string]string{
		"telescope": telescope.Name,
		"pulsar":    pulsarName,
		"frontend":  obsSystem.Frontend,
		"backend":   obsSystem.Backend,
	}, nil
}
