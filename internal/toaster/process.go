package toaster

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/google/uuid"

	"toaster/internal/archive"
	"toaster/internal/database"
	"toaster/internal/header"
	"toaster/internal/manip"
	"toaster/internal/model"
	"toaster/internal/toa"
	"toaster/internal/tools"
)

// ProcessRequest names the inputs of one processing run. A zero
// ParfileID or TemplateID selects the pulsar's master; Solve runs
// without any ephemeris install.
type ProcessRequest struct {
	RawfileID   int64
	ParfileID   int64
	TemplateID  int64
	Manipulator string
	ManipArgs   map[string]string
	Solve       bool
}

// ProcessResult reports a completed run.
type ProcessResult struct {
	ProcessID int64
	TOAIDs    []int64
	VersionID int64
}

// Process runs the engine end to end: version snapshot, tamper checks,
// ephemeris install, manipulation, TOA generation, version re-check,
// then one transaction for the process row, its TOAs, diagnostics, and
// plots. Temp files are removed on every path; the archived raw file
// is never altered.
func (s *Service) Process(ctx context.Context, req ProcessRequest) (*ProcessResult, error) {
	userID, err := s.operatorID(ctx)
	if err != nil {
		return nil, err
	}

	v0, err := s.versions.Snapshot(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSystemCall, err)
	}

	raw, par, tmpl, err := s.resolveProcessInputs(ctx, req)
	if err != nil {
		return nil, err
	}

	manipulator, err := manip.Get(req.Manipulator)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnrecognised, err)
	}
	argStr, err := manipulator.ArgString(req.ManipArgs)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadInput, err)
	}

	workDir := filepath.Join(s.tmpDir, "toaster-"+uuid.NewString())
	if err := os.MkdirAll(workDir, 0770); err != nil {
		return nil, fmt.Errorf("%w: creating work directory: %v", ErrFile, err)
	}
	defer os.RemoveAll(workDir)

	manipulated, err := s.prepareArchive(ctx, workDir, raw, par, manipulator, req.ManipArgs)
	if err != nil {
		return nil, err
	}

	plotBase := filepath.Join(workDir, "plots")
	if err := os.MkdirAll(plotBase, 0770); err != nil {
		return nil, fmt.Errorf("%w: creating plot directory: %v", ErrFile, err)
	}
	stdout, err := tools.GenerateTOAs(ctx, s.runner, manipulated, tmpl.Path, s.fitMethod, plotBase)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSystemCall, err)
	}
	records, err := toa.ParseTempo2(stdout)
	if err != nil {
		return nil, fmt.Errorf("%w: parsing generator output: %v", ErrBadInput, err)
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("%w: generator produced no TOAs", ErrSystemCall)
	}

	if err := s.checkRecordTelescopes(ctx, records, raw); err != nil {
		return nil, err
	}

	nchan, nsub, err := manipulatedShape(ctx, manipulated, s.runner, s.logger)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSystemCall, err)
	}

	// Version guard: the code in play must not have changed under us.
	v1, err := s.versions.Snapshot(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSystemCall, err)
	}
	if v0.PipelineHash != v1.PipelineHash || v0.ToolHash != v1.ToolHash ||
		v0.Tempo2Revision != v1.Tempo2Revision {
		return nil, fmt.Errorf("%w: %s -> %s", ErrVersionChanged,
			versionString(v0), versionString(v1))
	}

	// Naming rows resolve before the transaction opens: the store
	// serves a single connection, and reads inside the transaction
	// must go through q.
	layoutFields, err := s.layoutFieldsFor(ctx, raw.PulsarID, raw.ObsSystemID)
	if err != nil {
		return nil, err
	}

	result := &ProcessResult{}
	err = s.store.WithTx(ctx, func(q *database.Queries) error {
		versionID, err := q.GetOrCreateVersion(ctx, &v0)
		if err != nil {
			return err
		}
		result.VersionID = versionID

		var parfileID sql.NullInt64
		if par != nil {
			parfileID = sql.NullInt64{Int64: par.ID, Valid: true}
		}
		processID, err := q.InsertProcess(ctx, &model.Process{
			VersionID:   versionID,
			RawfileID:   raw.ID,
			ParfileID:   parfileID,
			TemplateID:  tmpl.ID,
			UserID:      userID,
			AddedAt:     s.clock.Now(),
			Manipulator: manipulator.Name(),
			ManipArgs:   argStr,
			NChan:       nchan,
			NSub:        nsub,
			FitMethod:   s.fitMethod,
		})
		if err != nil {
			return err
		}
		result.ProcessID = processID

		for i := range records {
			toaID, err := q.InsertTOA(ctx, toaRow(&records[i], processID, raw, tmpl))
			if err != nil {
				return err
			}
			result.TOAIDs = append(result.TOAIDs, toaID)
		}

		plotDir := s.processPlotDir(processID)
		if err := s.archiveTOAPlots(ctx, q, plotBase, plotDir, result.TOAIDs); err != nil {
			return err
		}
		if err := s.addDiagnostics(ctx, q, database.OwnerProcess, processID,
			manipulated, s.procDiagnostics, plotDir); err != nil {
			return err
		}
		return s.linkProcessPlots(layoutFields, processID, plotDir)
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("process complete", "process_id", result.ProcessID,
		"rawfile_id", raw.ID, "toas", len(result.TOAIDs), "manipulator", manipulator.Name())
	return result, nil
}

// resolveProcessInputs loads the three inputs, falling back to masters
// and verifying every file against its stored MD5.
func (s *Service) resolveProcessInputs(ctx context.Context, req ProcessRequest) (*model.Rawfile, *model.Parfile, *model.Template, error) {
	raw, err := s.store.GetRawfileByID(ctx, req.RawfileID)
	if err != nil {
		return nil, nil, nil, err
	}
	if raw == nil {
		return nil, nil, nil, fmt.Errorf("%w: rawfile %d", ErrUnrecognised, req.RawfileID)
	}
	if err := verifyMD5(raw.Path, raw.MD5); err != nil {
		return nil, nil, nil, err
	}

	var par *model.Parfile
	if !req.Solve {
		parfileID := req.ParfileID
		if parfileID == 0 {
			id, has, err := s.store.GetMasterParfileID(ctx, raw.PulsarID)
			if err != nil {
				return nil, nil, nil, err
			}
			if !has {
				return nil, nil, nil, fmt.Errorf("%w: no master parfile for pulsar %d",
					ErrMasterMissing, raw.PulsarID)
			}
			parfileID = id
		}
		par, err = s.store.GetParfileByID(ctx, parfileID)
		if err != nil {
			return nil, nil, nil, err
		}
		if par == nil {
			return nil, nil, nil, fmt.Errorf("%w: parfile %d", ErrUnrecognised, parfileID)
		}
		if err := verifyMD5(par.Path, par.MD5); err != nil {
			return nil, nil, nil, err
		}
	}

	templateID := req.TemplateID
	if templateID == 0 {
		id, has, err := s.store.GetMasterTemplateID(ctx, raw.PulsarID, raw.ObsSystemID)
		if err != nil {
			return nil, nil, nil, err
		}
		if !has {
			return nil, nil, nil, fmt.Errorf("%w: no master template for pulsar %d on observing system %d",
				ErrMasterMissing, raw.PulsarID, raw.ObsSystemID)
		}
		templateID = id
	}
	tmpl, err := s.store.GetTemplateByID(ctx, templateID)
	if err != nil {
		return nil, nil, nil, err
	}
	if tmpl == nil {
		return nil, nil, nil, fmt.Errorf("%w: template %d", ErrUnrecognised, templateID)
	}
	if err := verifyMD5(tmpl.Path, tmpl.MD5); err != nil {
		return nil, nil, nil, err
	}

	return raw, par, tmpl, nil
}

// prepareArchive copies the raw archive into the work dir, installs
// the ephemeris when one is given, and runs the manipulator.
func (s *Service) prepareArchive(ctx context.Context, workDir string, raw *model.Rawfile, par *model.Parfile, m manip.Manipulator, kwargs map[string]string) (string, error) {
	working := filepath.Join(workDir, filepath.Base(raw.Path))
	if err := copyPlainFile(raw.Path, working); err != nil {
		return "", fmt.Errorf("%w: %v", ErrFile, err)
	}

	if par != nil {
		if err := tools.InstallEphemeris(ctx, s.runner, par.Path, working); err != nil {
			return "", fmt.Errorf("%w: %v", ErrSystemCall, err)
		}
	}

	manipulated := filepath.Join(workDir, "manipulated.ar")
	if err := m.Run(ctx, s.runner, []string{working}, manipulated, kwargs); err != nil {
		return "", fmt.Errorf("%w: %v", ErrSystemCall, err)
	}
	return manipulated, nil
}

// checkRecordTelescopes warns when a generated TOA names a different
// site than the raw file's observing system.
func (s *Service) checkRecordTelescopes(ctx context.Context, records []toa.Record, raw *model.Rawfile) error {
	obsSystem, err := s.store.GetObsSystemByID(ctx, raw.ObsSystemID)
	if err != nil {
		return err
	}
	telescope, err := s.store.GetTelescopeByID(ctx, obsSystem.TelescopeID)
	if err != nil {
		return err
	}
	for i := range records {
		if !strings.EqualFold(records[i].Telescope, telescope.Code) {
			if err := s.warner.Warnf("TOA names site %q but the raw file was observed at %q",
				records[i].Telescope, telescope.Code); err != nil {
				return err
			}
		}
	}
	return nil
}

// manipulatedShape reads the channel and subint counts of the
// manipulated archive for provenance.
func manipulatedShape(ctx context.Context, file string, runner tools.Runner, logger Logger) (nchan, nsub int64, err error) {
	params := header.New(file, runner, logger)
	nchan, ok, err := params.GetInt(ctx, "nchan")
	if err != nil {
		return 0, 0, err
	}
	if !ok {
		return 0, 0, fmt.Errorf("manipulated archive reports no nchan")
	}
	nsub, ok, err = params.GetInt(ctx, "nsub")
	if err != nil {
		return 0, 0, err
	}
	if !ok {
		return 0, 0, fmt.Errorf("manipulated archive reports no nsub")
	}
	return nchan, nsub, nil
}

// toaRow converts a parsed record into a TOA row, lifting the typed
// flags into their columns.
func toaRow(rec *toa.Record, processID int64, raw *model.Rawfile, tmpl *model.Template) *model.TOA {
	t := &model.TOA{
		ProcessID:   processID,
		TemplateID:  tmpl.ID,
		RawfileID:   raw.ID,
		PulsarID:    raw.PulsarID,
		ObsSystemID: raw.ObsSystemID,
		IMJD:        rec.IMJD,
		FMJD:        rec.FMJD,
		Freq:        rec.Freq,
		ErrorUS:     rec.ErrorUS,
	}
	if v, ok := rec.Flags["bw"].(float64); ok {
		t.BW = sql.NullFloat64{Float64: v, Valid: true}
	}
	if v, ok := rec.Flags["length"].(float64); ok {
		t.Length = sql.NullFloat64{Float64: v, Valid: true}
	}
	if v, ok := rec.Flags["nbin"].(int64); ok {
		t.NBin = sql.NullInt64{Int64: v, Valid: true}
	}
	if v, ok := rec.Flags["goodness_of_fit"].(float64); ok {
		t.GoF = sql.NullFloat64{Float64: v, Valid: true}
	}
	return t
}

// archiveTOAPlots moves the per-TOA plots produced by the generator
// into the canonical process directory and registers each against its
// TOA. Plots pair with TOAs in generation order.
func (s *Service) archiveTOAPlots(ctx context.Context, q *database.Queries, plotBase, plotDir string, toaIDs []int64) error {
	entries, err := os.ReadDir(plotBase)
	if err != nil {
		return fmt.Errorf("%w: reading plot directory: %v", ErrFile, err)
	}
	var names []string
	for _, e := range entries {
		if !e.IsDir() {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	if len(names) != len(toaIDs) {
		if err := s.warner.Warnf("generator produced %d plots for %d TOAs", len(names), len(toaIDs)); err != nil {
			return err
		}
	}

	if err := os.MkdirAll(plotDir, 0770); err != nil {
		return fmt.Errorf("%w: creating process plot directory: %v", ErrFile, err)
	}

	for i, name := range names {
		if i >= len(toaIDs) {
			break
		}
		dest := filepath.Join(plotDir, name)
		if err := copyPlainFile(filepath.Join(plotBase, name), dest); err != nil {
			return fmt.Errorf("%w: %v", ErrFile, err)
		}
		if err := os.Chmod(dest, 0440); err != nil {
			return fmt.Errorf("%w: narrowing plot permissions: %v", ErrFile, err)
		}
		if err := q.InsertPlotDiagnostic(ctx, database.OwnerTOA, toaIDs[i], "profile", dest); err != nil {
			return err
		}
	}
	return nil
}

// linkProcessPlots maintains a symlink from the layout-shaped
// diagnostic tree back to the canonical per-process directory. fields
// must be resolved before the enclosing transaction opens.
func (s *Service) linkProcessPlots(fields map[string]string, processID int64, plotDir string) error {
	treeDir, err := s.archive.DestDir("diagnostics", fields)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrFile, err)
	}
	if err := os.MkdirAll(treeDir, 0770); err != nil {
		return fmt.Errorf("%w: %v", ErrFile, err)
	}
	link := filepath.Join(treeDir, fmt.Sprintf("procid_%d", processID))
	if err := os.Symlink(plotDir, link); err != nil && !os.IsExist(err) {
		return fmt.Errorf("%w: linking process plots: %v", ErrFile, err)
	}
	return nil
}

// verifyMD5 re-checksums an archived file against the stored value.
func verifyMD5(path, want string) error {
	got, _, err := archive.MD5File(path)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrFile, err)
	}
	if got != want {
		return fmt.Errorf("%w: %s has md5 %s, store records %s", ErrFile, path, got, want)
	}
	return nil
}

// copyPlainFile copies src to dst without preserving permissions.
func copyPlainFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0660)
	if err != nil {
		return err
	}
	defer out.Close()

	if _, err := io.Copy(out, in); err != nil {
		return err
	}
	return out.Close()
}

func versionString(v model.Version) string {
	return fmt.Sprintf("pipeline=%s tool=%s tempo2=%s",
		shortHash(v.PipelineHash), shortHash(v.ToolHash), v.Tempo2Revision)
}

func shortHash(h string) string {
	if len(h) > 8 {
		return h[:8]
	}
	return h
}
