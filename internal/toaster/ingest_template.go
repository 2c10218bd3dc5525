package toaster

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"toaster/internal/archive"
	"toaster/internal/database"
	"toaster/internal/model"
)

// AddTemplate ingests a pulse-profile template. A non-empty comment is
// mandatory. The first template for a (pulsar, observing system) pair
// becomes master automatically; master forces the pointer.
func (s *Service) AddTemplate(ctx context.Context, path, comment string, master bool) (int64, error) {
	if strings.TrimSpace(comment) == "" {
		return 0, fmt.Errorf("%w: template ingestion requires a comment", ErrBadInput)
	}

	userID, err := s.operatorID(ctx)
	if err != nil {
		return 0, err
	}

	fc, err := s.resolveFileContext(ctx, path, s.autoAddPulsars)
	if err != nil {
		return 0, err
	}

	md5, size, err := archive.MD5File(path)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrFile, err)
	}
	if existing, err := s.checkTemplateCollision(ctx, s.store.Queries, md5, fc.pulsarID); err != nil {
		return 0, err
	} else if existing != nil {
		return existing.ID, nil
	}

	nbin, nbinOK, err := fc.params.GetInt(ctx, "nbin")
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrBadInput, err)
	}

	destDir, err := s.archive.DestDir("templates", fc.layoutFields())
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrFile, err)
	}
	finalPath, err := s.archive.Archive(path, destDir)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrFile, err)
	}
	s.mirrorFile(ctx, md5, finalPath, size)

	var id int64
	err = s.store.WithTx(ctx, func(q *database.Queries) error {
		existing, err := s.checkTemplateCollision(ctx, q, md5, fc.pulsarID)
		if err != nil {
			return err
		}
		if existing != nil {
			id = existing.ID
			return nil
		}

		existingCount, err := q.CountTemplatesForPair(ctx, fc.pulsarID, fc.obsSystem.ID)
		if err != nil {
			return err
		}
		if existingCount > 0 && !master {
			if err := s.warner.Warnf("pulsar %s already has %d templates for %s; new template is not master",
				fc.pulsarName, existingCount, fc.obsSystem.Name); err != nil {
				return err
			}
		}

		id, err = q.InsertTemplate(ctx, &model.Template{
			MD5:         md5,
			Path:        finalPath,
			AddedAt:     s.clock.Now(),
			UserID:      userID,
			PulsarID:    fc.pulsarID,
			ObsSystemID: fc.obsSystem.ID,
			NBin:        sql.NullInt64{Int64: nbin, Valid: nbinOK},
			Comments:    comment,
		})
		if err != nil {
			return err
		}

		if existingCount == 0 || master {
			return q.UpsertMasterTemplate(ctx, fc.pulsarID, fc.obsSystem.ID, id)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	s.logger.Info("template ingested", "id", id, "md5", md5,
		"pulsar", fc.pulsarName, "obssystem", fc.obsSystem.Name, "path", finalPath)
	return id, nil
}

func (s *Service) checkTemplateCollision(ctx context.Context, q *database.Queries, md5 string, pulsarID int64) (*model.Template, error) {
	existing, err := q.GetTemplateByMD5(ctx, md5)
	if err != nil {
		return nil, err
	}
	if existing == nil {
		return nil, nil
	}
	if existing.PulsarID != pulsarID {
		return nil, fmt.Errorf("%w: template md5 %s already stored for a different pulsar (id %d)",
			ErrInconsistentStore, md5, existing.PulsarID)
	}
	if err := s.warner.Warnf("template already ingested as id %d (md5 %s)", existing.ID, md5); err != nil {
		return nil, err
	}
	return existing, nil
}
