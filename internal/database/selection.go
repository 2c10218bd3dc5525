package database

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"toaster/internal/model"
)

// TOACriteria are the ANDed selection predicates for TOA queries.
// Zero-valued fields are not applied.
type TOACriteria struct {
	PulsarID     *int64
	TelescopeIDs []int64
	Backends     []string
	Manipulators []string
	StartMJD     *float64 // on imjd + fmjd
	EndMJD       *float64
	TOAIDs       []int64
	ProcessIDs   []int64
}

// TOAInfo is a selected TOA with the full join context needed for
// conflict checking and formatting.
type TOAInfo struct {
	model.TOA

	PulsarName       string
	TelescopeID      int64
	TelescopeCode    string
	TelescopeName    string
	ObsSystemName    string
	Manipulator      string
	ProcessAddedAt   time.Time
	ProcessParfileID sql.NullInt64
	RawfileMD5       string

	// ReplacementID is set when the TOA's rawfile has been superseded.
	ReplacementID sql.NullInt64
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}

// SelectTOAs returns all TOAs matching the criteria with their join
// context, ordered by (imjd, fmjd).
func (q *Queries) SelectTOAs(ctx context.Context, crit TOACriteria) ([]TOAInfo, error) {
	query := `
		SELECT t.id, t.process_id, t.template_id, t.rawfile_id, t.pulsar_id, t.obssystem_id,
		       t.imjd, t.fmjd, t.freq, t.error_us, t.bw, t.length, t.nbin, t.gof,
		       p.name, tel.id, tel.code, tel.name, o.name,
		       proc.manipulator, proc.added_at, proc.parfile_id,
		       r.md5, rep.replacement_id
		FROM toas t
		JOIN pulsars p ON p.id = t.pulsar_id
		JOIN obssystems o ON o.id = t.obssystem_id
		JOIN telescopes tel ON tel.id = o.telescope_id
		JOIN processes proc ON proc.id = t.process_id
		JOIN rawfiles r ON r.id = t.rawfile_id
		LEFT JOIN replacements rep ON rep.obsolete_id = t.rawfile_id`

	var conds []string
	var args []any

	if crit.PulsarID != nil {
		conds = append(conds, "t.pulsar_id = ?")
		args = append(args, *crit.PulsarID)
	}
	if len(crit.TelescopeIDs) > 0 {
		conds = append(conds, fmt.Sprintf("tel.id IN (%s)", placeholders(len(crit.TelescopeIDs))))
		for _, id := range crit.TelescopeIDs {
			args = append(args, id)
		}
	}
	if len(crit.Backends) > 0 {
		conds = append(conds, fmt.Sprintf("o.backend IN (%s)", placeholders(len(crit.Backends))))
		for _, b := range crit.Backends {
			args = append(args, b)
		}
	}
	if len(crit.Manipulators) > 0 {
		conds = append(conds, fmt.Sprintf("proc.manipulator IN (%s)", placeholders(len(crit.Manipulators))))
		for _, m := range crit.Manipulators {
			args = append(args, m)
		}
	}
	if crit.StartMJD != nil {
		conds = append(conds, "(t.imjd + t.fmjd) >= ?")
		args = append(args, *crit.StartMJD)
	}
	if crit.EndMJD != nil {
		conds = append(conds, "(t.imjd + t.fmjd) <= ?")
		args = append(args, *crit.EndMJD)
	}
	if len(crit.TOAIDs) > 0 {
		conds = append(conds, fmt.Sprintf("t.id IN (%s)", placeholders(len(crit.TOAIDs))))
		for _, id := range crit.TOAIDs {
			args = append(args, id)
		}
	}
	if len(crit.ProcessIDs) > 0 {
		conds = append(conds, fmt.Sprintf("t.process_id IN (%s)", placeholders(len(crit.ProcessIDs))))
		for _, id := range crit.ProcessIDs {
			args = append(args, id)
		}
	}

	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY t.imjd, t.fmjd"

	rows, err := q.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("selecting TOAs: %w", err)
	}
	defer rows.Close()

	var infos []TOAInfo
	for rows.Next() {
		var i TOAInfo
		err := rows.Scan(
			&i.TOA.ID, &i.ProcessID, &i.TemplateID, &i.RawfileID, &i.TOA.PulsarID, &i.TOA.ObsSystemID,
			&i.IMJD, &i.FMJD, &i.Freq, &i.ErrorUS, &i.TOA.BW, &i.TOA.Length, &i.TOA.NBin, &i.GoF,
			&i.PulsarName, &i.TelescopeID, &i.TelescopeCode, &i.TelescopeName, &i.ObsSystemName,
			&i.Manipulator, &i.ProcessAddedAt, &i.ProcessParfileID,
			&i.RawfileMD5, &i.ReplacementID)
		if err != nil {
			return nil, fmt.Errorf("scanning selected TOA: %w", err)
		}
		infos = append(infos, i)
	}
	return infos, rows.Err()
}

// SelectTOAsByIDs fetches the join context for an explicit ID list.
func (q *Queries) SelectTOAsByIDs(ctx context.Context, ids []int64) ([]TOAInfo, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	return q.SelectTOAs(ctx, TOACriteria{TOAIDs: ids})
}
