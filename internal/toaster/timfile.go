package toaster

import (
	"context"
	"fmt"
	"io"
	"strings"

	"toaster/internal/database"
	"toaster/internal/model"
	"toaster/internal/toa"
)

// CreateTimfile bundles an already-selected, policy-checked set of
// TOAs into a new timfile. The comment is mandatory; cmdline records
// the invocation for provenance.
func (s *Service) CreateTimfile(ctx context.Context, infos []database.TOAInfo, comment, cmdline string) (int64, error) {
	if strings.TrimSpace(comment) == "" {
		return 0, fmt.Errorf("%w: timfile creation requires a comment", ErrBadInput)
	}
	if len(infos) == 0 {
		return 0, fmt.Errorf("%w: no TOAs selected", ErrBadInput)
	}
	userID, err := s.operatorID(ctx)
	if err != nil {
		return 0, err
	}

	version, err := s.versions.Snapshot(ctx)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrSystemCall, err)
	}

	var id int64
	err = s.store.WithTx(ctx, func(q *database.Queries) error {
		versionID, err := q.GetOrCreateVersion(ctx, &version)
		if err != nil {
			return err
		}

		id, err = q.InsertTimfile(ctx, &model.Timfile{
			UserID:    userID,
			PulsarID:  infos[0].TOA.PulsarID,
			VersionID: versionID,
			AddedAt:   s.clock.Now(),
			Comments:  comment,
			InputArgs: cmdline,
		})
		if err != nil {
			return err
		}
		for i := range infos {
			if err := q.InsertTimfileTOA(ctx, id, infos[i].TOA.ID); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	s.logger.Info("timfile created", "id", id, "toas", len(infos))
	return id, nil
}

// EditTimfile adds and removes TOAs and optionally replaces the
// comment, then re-verifies strict coherence over the resulting set
// before committing.
func (s *Service) EditTimfile(ctx context.Context, id int64, addIDs, removeIDs []int64, comment string) error {
	return s.store.WithTx(ctx, func(q *database.Queries) error {
		t, err := q.GetTimfileByID(ctx, id)
		if err != nil {
			return err
		}
		if t == nil {
			return fmt.Errorf("%w: timfile %d", ErrUnrecognised, id)
		}

		if strings.TrimSpace(comment) != "" {
			if err := q.UpdateTimfileComments(ctx, id, comment); err != nil {
				return err
			}
		}

		if len(addIDs) > 0 {
			found, err := q.SelectTOAsByIDs(ctx, addIDs)
			if err != nil {
				return err
			}
			if len(found) != len(addIDs) {
				return fmt.Errorf("%w: %d of %d TOAs to add do not exist",
					ErrUnrecognised, len(addIDs)-len(found), len(addIDs))
			}
			for _, toaID := range addIDs {
				if err := q.InsertTimfileTOA(ctx, id, toaID); err != nil {
					return err
				}
			}
		}
		for _, toaID := range removeIDs {
			if err := q.DeleteTimfileTOA(ctx, id, toaID); err != nil {
				return err
			}
		}

		final, err := q.GetTimfileTOAIDs(ctx, id)
		if err != nil {
			return err
		}
		if len(final) == 0 {
			return fmt.Errorf("%w: edit would leave timfile %d empty", ErrBadInput, id)
		}
		infos, err := q.SelectTOAsByIDs(ctx, final)
		if err != nil {
			return err
		}
		if _, err := s.applyPolicy(infos, PolicyStrict, false); err != nil {
			return err
		}
		return nil
	})
}

// WriteTimfile emits a timfile in the chosen style with a header
// naming the comment, creating user, add-time, and id. flags applies
// only to the tempo2 style; when empty, each TOA's typed flags are
// emitted.
func (s *Service) WriteTimfile(ctx context.Context, id int64, w io.Writer, style string, flags []toa.Flag) error {
	t, err := s.store.GetTimfileByID(ctx, id)
	if err != nil {
		return err
	}
	if t == nil {
		return fmt.Errorf("%w: timfile %d", ErrUnrecognised, id)
	}
	user, err := s.store.GetUserByID(ctx, t.UserID)
	if err != nil {
		return err
	}
	if user == nil {
		return fmt.Errorf("%w: timfile %d names missing user %d", ErrInconsistentStore, id, t.UserID)
	}

	toaIDs, err := s.store.GetTimfileTOAIDs(ctx, id)
	if err != nil {
		return err
	}
	infos, err := s.store.SelectTOAsByIDs(ctx, toaIDs)
	if err != nil {
		return err
	}

	records := make([]toa.Record, len(infos))
	for i := range infos {
		records[i] = timfileRecord(&infos[i])
		if len(flags) > 0 {
			toa.ApplyFlags(&records[i], flags, recordFields(&infos[i]), toa.DefaultMissingMarker)
		}
	}

	header := fmt.Sprintf("# %s\n# written by %s, created %s, timfile id %d\n",
		t.Comments, user.Username, t.AddedAt.Format("2006-01-02 15:04:05"), t.ID)

	var body string
	switch style {
	case "tempo2":
		body = toa.FormatTempo2(records)
	case "princeton":
		body = toa.FormatPrinceton(records)
	default:
		return fmt.Errorf("%w: output style %q", ErrUnrecognised, style)
	}

	if _, err := io.WriteString(w, header+body); err != nil {
		return fmt.Errorf("%w: writing timfile: %v", ErrFile, err)
	}
	return nil
}

// timfileRecord converts a selected TOA back into its wire record.
// The raw file's MD5 serves as the observation token.
func timfileRecord(info *database.TOAInfo) toa.Record {
	rec := toa.Record{
		File:      info.RawfileMD5,
		Freq:      info.Freq,
		IMJD:      info.IMJD,
		FMJD:      info.FMJD,
		ErrorUS:   info.ErrorUS,
		Telescope: info.TelescopeCode,
		Flags:     make(map[string]any),
	}
	if info.TOA.BW.Valid {
		rec.Flags["bw"] = info.TOA.BW.Float64
	}
	if info.TOA.Length.Valid {
		rec.Flags["length"] = info.TOA.Length.Float64
	}
	if info.TOA.NBin.Valid {
		rec.Flags["nbin"] = info.TOA.NBin.Int64
	}
	if info.GoF.Valid {
		rec.Flags["goodness_of_fit"] = info.GoF.Float64
	}
	return rec
}

// recordFields is the substitution context for user flag templates.
func recordFields(info *database.TOAInfo) map[string]any {
	fields := map[string]any{
		"toa_id":      info.TOA.ID,
		"process_id":  info.ProcessID,
		"pulsar":      info.PulsarName,
		"telescope":   info.TelescopeName,
		"obssystem":   info.ObsSystemName,
		"manipulator": info.Manipulator,
		"rawfile_md5": info.RawfileMD5,
		"freq":        info.Freq,
		"error_us":    info.ErrorUS,
	}
	if info.TOA.BW.Valid {
		fields["bw"] = info.TOA.BW.Float64
	} else {
		fields["bw"] = nil
	}
	if info.TOA.Length.Valid {
		fields["length"] = info.TOA.Length.Float64
	} else {
		fields["length"] = nil
	}
	if info.TOA.NBin.Valid {
		fields["nbin"] = info.TOA.NBin.Int64
	} else {
		fields["nbin"] = nil
	}
	if info.GoF.Valid {
		fields["goodness_of_fit"] = info.GoF.Float64
	} else {
		fields["goodness_of_fit"] = nil
	}
	return fields
}
