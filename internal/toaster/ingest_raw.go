package toaster

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"os"

	"toaster/internal/archive"
	"toaster/internal/database"
	"toaster/internal/header"
	"toaster/internal/model"
	"toaster/internal/vault"
)

// fileContext is everything resolved from one data file's header:
// the owning pulsar, the observing system, and the layout fields used
// to place the file in the archive.
type fileContext struct {
	params     *header.Params
	pulsarID   int64
	pulsarName string
	telescope  *model.Telescope
	obsSystem  *model.ObsSystem
}

func (fc *fileContext) layoutFields() map[string]string {
	return map[string]string{
		"telescope": fc.telescope.Name,
		"pulsar":    fc.pulsarName,
		"frontend":  fc.obsSystem.Frontend,
		"backend":   fc.obsSystem.Backend,
	}
}

// resolveFileContext reads the file header and resolves the telescope,
// observing system, and pulsar. When autoAdd is set an unknown source
// name creates a pulsar.
func (s *Service) resolveFileContext(ctx context.Context, file string, autoAdd bool) (*fileContext, error) {
	params := header.New(file, s.runner, s.logger)
	if err := params.Fetch(ctx, "name", "telescop", "rcvr", "backend"); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSystemCall, err)
	}

	telescopeName, err := params.GetString(ctx, "telescop")
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadInput, err)
	}
	telescopeID, err := s.caches.TelescopeID(ctx, telescopeName)
	if err != nil {
		return nil, fmt.Errorf("%w: telescope %q", ErrUnrecognised, telescopeName)
	}
	telescope, err := s.store.GetTelescopeByID(ctx, telescopeID)
	if err != nil {
		return nil, err
	}

	frontend, err := params.GetString(ctx, "rcvr")
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadInput, err)
	}
	backend, err := params.GetString(ctx, "backend")
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadInput, err)
	}
	obsSystem, err := s.store.GetObsSystemByFrontendBackend(ctx, telescopeID, frontend, backend)
	if err != nil {
		return nil, err
	}
	if obsSystem == nil {
		return nil, fmt.Errorf("%w: no observing system for telescope %q frontend %q backend %q",
			ErrUnrecognised, telescope.Name, frontend, backend)
	}

	source, err := params.GetString(ctx, "name")
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadInput, err)
	}
	pulsarID, err := s.caches.PulsarID(ctx, source)
	if err != nil {
		if !autoAdd {
			return nil, fmt.Errorf("%w: pulsar %q", ErrUnrecognised, source)
		}
		pulsarID, err = s.AddPulsar(ctx, source, nil)
		if err != nil {
			return nil, err
		}
	}
	pulsarName, err := s.caches.PulsarName(ctx, pulsarID)
	if err != nil {
		return nil, err
	}

	return &fileContext{
		params:     params,
		pulsarID:   pulsarID,
		pulsarName: pulsarName,
		telescope:  telescope,
		obsSystem:  obsSystem,
	}, nil
}

// AddRawfile ingests one observation file: header resolution, archive,
// then a single transaction inserting the row and the configured
// default diagnostics. Re-ingesting identical bytes for the same
// pulsar warns and returns the existing ID; identical bytes claiming a
// different pulsar is an inconsistent-store error and moves nothing.
func (s *Service) AddRawfile(ctx context.Context, path string) (int64, error) {
	userID, err := s.operatorID(ctx)
	if err != nil {
		return 0, err
	}

	md5, size, err := archive.MD5File(path)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrFile, err)
	}

	fc, err := s.resolveFileContext(ctx, path, s.autoAddPulsars)
	if err != nil {
		return 0, err
	}

	// Collision check before anything is moved.
	if existing, err := s.checkRawCollision(ctx, s.store.Queries, md5, fc); err != nil {
		return 0, err
	} else if existing != nil {
		return existing.ID, nil
	}

	destDir, err := s.archive.DestDir("rawfiles", fc.layoutFields())
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrFile, err)
	}
	finalPath, err := s.archive.Archive(path, destDir)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrFile, err)
	}
	s.mirrorFile(ctx, md5, finalPath, size)

	row, err := s.rawfileRow(ctx, fc, md5, size, finalPath, userID)
	if err != nil {
		return 0, err
	}

	plotDir, err := s.archive.DestDir("diagnostics", fc.layoutFields())
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrFile, err)
	}

	var id int64
	err = s.store.WithTx(ctx, func(q *database.Queries) error {
		// Re-check under the transaction; a concurrent ingestion may
		// have won the race since the pre-check.
		existing, err := s.checkRawCollision(ctx, q, md5, fc)
		if err != nil {
			return err
		}
		if existing != nil {
			id = existing.ID
			return nil
		}

		id, err = q.InsertRawfile(ctx, row)
		if err != nil {
			return err
		}
		return s.addDiagnostics(ctx, q, database.OwnerRawfile, id, finalPath, s.rawDiagnostics, plotDir)
	})
	if err != nil {
		return 0, err
	}

	s.logger.Info("rawfile ingested", "id", id, "md5", md5, "pulsar", fc.pulsarName, "path", finalPath)
	return id, nil
}

// checkRawCollision applies the content-uniqueness rule: same bytes,
// same pulsar is a warning no-op returning the existing row; same
// bytes claiming a different pulsar is fatal.
func (s *Service) checkRawCollision(ctx context.Context, q *database.Queries, md5 string, fc *fileContext) (*model.Rawfile, error) {
	existing, err := q.GetRawfileByMD5(ctx, md5)
	if err != nil {
		return nil, err
	}
	if existing == nil {
		return nil, nil
	}
	if existing.PulsarID != fc.pulsarID {
		return nil, fmt.Errorf("%w: rawfile md5 %s already stored for a different pulsar (id %d)",
			ErrInconsistentStore, md5, existing.PulsarID)
	}
	if err := s.warner.Warnf("rawfile already ingested as id %d (md5 %s)", existing.ID, md5); err != nil {
		return nil, err
	}
	return existing, nil
}

// rawfileRow extracts the typed header fields into a row.
func (s *Service) rawfileRow(ctx context.Context, fc *fileContext, md5 string, size int64, path string, userID int64) (*model.Rawfile, error) {
	r := &model.Rawfile{
		MD5:         md5,
		Size:        size,
		Path:        path,
		AddedAt:     s.clock.Now(),
		UserID:      userID,
		PulsarID:    fc.pulsarID,
		ObsSystemID: fc.obsSystem.ID,
	}

	if err := fc.params.Fetch(ctx, "nbin", "nchan", "npol", "nsub",
		"freq", "bw", "dm", "rm", "length", "intmjd", "fmjd"); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSystemCall, err)
	}

	for _, f := range []struct {
		key  string
		dest *sql.NullInt64
	}{
		{"nbin", &r.NBin}, {"nchan", &r.NChan}, {"npol", &r.NPol}, {"nsub", &r.NSub},
	} {
		v, ok, err := fc.params.GetInt(ctx, f.key)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrBadInput, err)
		}
		*f.dest = sql.NullInt64{Int64: v, Valid: ok}
	}

	for _, f := range []struct {
		key  string
		dest *sql.NullFloat64
	}{
		{"freq", &r.Freq}, {"bw", &r.BW}, {"dm", &r.DM}, {"rm", &r.RM}, {"length", &r.Length},
	} {
		v, ok, err := fc.params.GetFloat(ctx, f.key)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrBadInput, err)
		}
		*f.dest = sql.NullFloat64{Float64: v, Valid: ok}
	}

	intmjd, intOK, err := fc.params.GetInt(ctx, "intmjd")
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadInput, err)
	}
	fmjd, fracOK, err := fc.params.GetFloat(ctx, "fmjd")
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadInput, err)
	}
	if intOK && fracOK {
		r.MJD = sql.NullFloat64{Float64: float64(intmjd) + fmjd, Valid: true}
	}

	return r, nil
}

// putFileToMirror streams an archived file into a mirror.
func putFileToMirror(ctx context.Context, m vault.Mirror, md5, path string, size int64) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return m.Put(ctx, md5, io.Reader(f), size)
}
