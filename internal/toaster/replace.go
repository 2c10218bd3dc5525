package toaster

import (
	"context"
	"fmt"
	"strings"

	"toaster/internal/database"
	"toaster/internal/model"
)

// ReplaceRawfile supersedes an archived raw file with a new
// observation file. The replacement must describe the same pulsar on
// the same observing system with an overlapping observation interval.
// It is ingested through the normal raw path, then the supersedence
// row is written and existing chains pointing at the obsolete file are
// repointed at the new tip in the same transaction.
func (s *Service) ReplaceRawfile(ctx context.Context, obsoleteID int64, replacementPath, comment string) (int64, error) {
	if strings.TrimSpace(comment) == "" {
		return 0, fmt.Errorf("%w: replacement requires a comment", ErrBadInput)
	}
	userID, err := s.operatorID(ctx)
	if err != nil {
		return 0, err
	}

	obsolete, err := s.store.GetRawfileByID(ctx, obsoleteID)
	if err != nil {
		return 0, err
	}
	if obsolete == nil {
		return 0, fmt.Errorf("%w: rawfile %d", ErrUnrecognised, obsoleteID)
	}
	if obsolete.ReplacementID.Valid {
		return 0, fmt.Errorf("%w: rawfile %d is already superseded by %d",
			ErrBadInput, obsoleteID, obsolete.ReplacementID.Int64)
	}

	if err := s.checkReplacementCompatible(ctx, obsolete, replacementPath); err != nil {
		return 0, err
	}

	newID, err := s.AddRawfile(ctx, replacementPath)
	if err != nil {
		return 0, err
	}
	if newID == obsoleteID {
		return 0, fmt.Errorf("%w: replacement has the same content as the obsolete file", ErrBadInput)
	}

	err = s.store.WithTx(ctx, func(q *database.Queries) error {
		existing, err := q.GetReplacementForObsolete(ctx, obsoleteID)
		if err != nil {
			return err
		}
		if existing != nil {
			return fmt.Errorf("%w: rawfile %d is already superseded by %d",
				ErrBadInput, obsoleteID, existing.ReplacementID)
		}

		if err := q.InsertReplacement(ctx, &model.Replacement{
			ObsoleteID:    obsoleteID,
			ReplacementID: newID,
			UserID:        userID,
			AddedAt:       s.clock.Now(),
			Comments:      comment,
		}); err != nil {
			return err
		}

		// Keep every chain ending at its newest tip.
		return q.RewriteReplacements(ctx, obsoleteID, newID)
	})
	if err != nil {
		return 0, err
	}

	s.logger.Info("rawfile superseded", "obsolete_id", obsoleteID, "replacement_id", newID)
	return newID, nil
}

// checkReplacementCompatible verifies the replacement's header against
// the obsolete row: same pulsar, same observing system, overlapping
// observation intervals.
func (s *Service) checkReplacementCompatible(ctx context.Context, obsolete *model.Rawfile, path string) error {
	fc, err := s.resolveFileContext(ctx, path, false)
	if err != nil {
		return err
	}
	if fc.pulsarID != obsolete.PulsarID {
		return fmt.Errorf("%w: replacement describes pulsar %s, obsolete rawfile %d belongs to pulsar %d",
			ErrBadInput, fc.pulsarName, obsolete.ID, obsolete.PulsarID)
	}
	if fc.obsSystem.ID != obsolete.ObsSystemID {
		return fmt.Errorf("%w: replacement was observed on %s, obsolete rawfile %d on observing system %d",
			ErrBadInput, fc.obsSystem.Name, obsolete.ID, obsolete.ObsSystemID)
	}

	if !obsolete.MJD.Valid || !obsolete.Length.Valid {
		return fmt.Errorf("%w: obsolete rawfile %d has no recorded observation interval",
			ErrBadInput, obsolete.ID)
	}
	mjd, length, err := observationInterval(ctx, fc)
	if err != nil {
		return err
	}

	oldStart := obsolete.MJD.Float64
	oldEnd := oldStart + obsolete.Length.Float64/86400
	newStart := mjd
	newEnd := newStart + length/86400
	if newStart > oldEnd || oldStart > newEnd {
		return fmt.Errorf("%w: observation intervals do not overlap ([%f, %f] vs [%f, %f])",
			ErrBadInput, oldStart, oldEnd, newStart, newEnd)
	}
	return nil
}

// observationInterval reads the replacement's MJD and length from its
// header.
func observationInterval(ctx context.Context, fc *fileContext) (mjd, length float64, err error) {
	intmjd, intOK, err := fc.params.GetInt(ctx, "intmjd")
	if err != nil {
		return 0, 0, fmt.Errorf("%w: %v", ErrBadInput, err)
	}
	fmjd, fracOK, err := fc.params.GetFloat(ctx, "fmjd")
	if err != nil {
		return 0, 0, fmt.Errorf("%w: %v", ErrBadInput, err)
	}
	length, lenOK, err := fc.params.GetFloat(ctx, "length")
	if err != nil {
		return 0, 0, fmt.Errorf("%w: %v", ErrBadInput, err)
	}
	if !intOK || !fracOK || !lenOK {
		return 0, 0, fmt.Errorf("%w: replacement header reports no observation interval", ErrBadInput)
	}
	return float64(intmjd) + fmjd, length, nil
}
