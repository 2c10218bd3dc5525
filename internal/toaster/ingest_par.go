package toaster

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"toaster/internal/archive"
	"toaster/internal/database"
	"toaster/internal/model"
)

// AddParfile ingests an ephemeris file. The owning pulsar is resolved
// from the PSRJ/PSRB/PSR parameter. The first parfile for a pulsar
// becomes master automatically; master forces the pointer regardless.
func (s *Service) AddParfile(ctx context.Context, path string, master bool) (int64, error) {
	userID, err := s.operatorID(ctx)
	if err != nil {
		return 0, err
	}

	f, err := os.Open(path)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrFile, err)
	}
	params, err := ParseParfile(f)
	f.Close()
	if err != nil {
		return 0, err
	}

	source, err := pulsarNameFromParams(params)
	if err != nil {
		return 0, err
	}
	pulsarID, err := s.caches.PulsarID(ctx, source)
	if err != nil {
		if !s.autoAddPulsars {
			return 0, fmt.Errorf("%w: pulsar %q", ErrUnrecognised, source)
		}
		pulsarID, err = s.AddPulsar(ctx, source, nil)
		if err != nil {
			return 0, err
		}
	}
	pulsarName, err := s.caches.PulsarName(ctx, pulsarID)
	if err != nil {
		return 0, err
	}

	md5, size, err := archive.MD5File(path)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrFile, err)
	}
	if existing, err := s.checkParCollision(ctx, s.store.Queries, md5, pulsarID); err != nil {
		return 0, err
	} else if existing != nil {
		return existing.ID, nil
	}

	destDir := filepath.Join(s.archive.Root(), "parfiles", pulsarName)
	finalPath, err := s.archive.Archive(path, destDir)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrFile, err)
	}
	s.mirrorFile(ctx, md5, finalPath, size)

	var id int64
	err = s.store.WithTx(ctx, func(q *database.Queries) error {
		existing, err := s.checkParCollision(ctx, q, md5, pulsarID)
		if err != nil {
			return err
		}
		if existing != nil {
			id = existing.ID
			return nil
		}

		id, err = q.InsertParfile(ctx, &model.Parfile{
			MD5:      md5,
			Path:     finalPath,
			AddedAt:  s.clock.Now(),
			UserID:   userID,
			PulsarID: pulsarID,
		})
		if err != nil {
			return err
		}
		for _, p := range params {
			if err := q.InsertParfileParam(ctx, id, p.Name, p.Value); err != nil {
				return err
			}
		}
		return s.autoMasterParfile(ctx, q, pulsarID, id, master)
	})
	if err != nil {
		return 0, err
	}

	s.logger.Info("parfile ingested", "id", id, "md5", md5, "pulsar", pulsarName, "path", finalPath)
	return id, nil
}

// autoMasterParfile installs the parfile as master when the pulsar has
// none yet, or when explicitly forced. Idempotent.
func (s *Service) autoMasterParfile(ctx context.Context, q *database.Queries, pulsarID, parfileID int64, force bool) error {
	_, has, err := q.GetMasterParfileID(ctx, pulsarID)
	if err != nil {
		return err
	}
	if has && !force {
		return nil
	}
	return q.UpsertMasterParfile(ctx, pulsarID, parfileID)
}

func (s *Service) checkParCollision(ctx context.Context, q *database.Queries, md5 string, pulsarID int64) (*model.Parfile, error) {
	existing, err := q.GetParfileByMD5(ctx, md5)
	if err != nil {
		return nil, err
	}
	if existing == nil {
		return nil, nil
	}
	if existing.PulsarID != pulsarID {
		return nil, fmt.Errorf("%w: parfile md5 %s already stored for a different pulsar (id %d)",
			ErrInconsistentStore, md5, existing.PulsarID)
	}
	if err := s.warner.Warnf("parfile already ingested as id %d (md5 %s)", existing.ID, md5); err != nil {
		return nil, err
	}
	return existing, nil
}

// RemoveParfile deletes a parfile that no process references. A
// master-marked parfile is refused; the master pointer must be cleared
// or repointed first.
func (s *Service) RemoveParfile(ctx context.Context, id int64) error {
	return s.store.WithTx(ctx, func(q *database.Queries) error {
		p, err := q.GetParfileByID(ctx, id)
		if err != nil {
			return err
		}
		if p == nil {
			return fmt.Errorf("%w: parfile %d", ErrUnrecognised, id)
		}

		n, err := q.CountProcessesForParfile(ctx, id)
		if err != nil {
			return err
		}
		if n > 0 {
			return fmt.Errorf("%w: parfile %d is referenced by %d processes", ErrBadInput, id, n)
		}

		masterID, has, err := q.GetMasterParfileID(ctx, p.PulsarID)
		if err != nil {
			return err
		}
		if has && masterID == id {
			return fmt.Errorf("%w: parfile %d is the master for its pulsar; clear the master first",
				ErrBadInput, id)
		}

		return q.DeleteParfile(ctx, id)
	})
}

// ClearMasterParfile removes the master designation for a pulsar.
func (s *Service) ClearMasterParfile(ctx context.Context, pulsar string) error {
	pulsarID, err := s.caches.PulsarID(ctx, pulsar)
	if err != nil {
		return fmt.Errorf("%w: pulsar %q", ErrUnrecognised, pulsar)
	}
	return s.store.DeleteMasterParfile(ctx, pulsarID)
}
