package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"toaster/internal/model"
)

// Rawfile operations

func (q *Queries) InsertRawfile(ctx context.Context, r *model.Rawfile) (int64, error) {
	res, err := q.db.ExecContext(ctx,
		`INSERT INTO rawfiles
		 (md5, size, path, added_at, user_id, pulsar_id, obssystem_id,
		  nbin, nchan, npol, nsub, freq, bw, dm, rm, length, mjd)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.MD5, r.Size, r.Path, r.AddedAt, r.UserID, r.PulsarID, r.ObsSystemID,
		r.NBin, r.NChan, r.NPol, r.NSub, r.Freq, r.BW, r.DM, r.RM, r.Length, r.MJD)
	if err != nil {
		return 0, fmt.Errorf("inserting rawfile: %w", err)
	}
	return res.LastInsertId()
}

// rawfileColumns joins against replacements so every read exposes the
// supersedence pointer.
const rawfileColumns = `
	r.id, r.md5, r.size, r.path, r.added_at, r.user_id, r.pulsar_id, r.obssystem_id,
	r.nbin, r.nchan, r.npol, r.nsub, r.freq, r.bw, r.dm, r.rm, r.length, r.mjd,
	rep.replacement_id`

const rawfileFrom = `
	FROM rawfiles r
	LEFT JOIN replacements rep ON rep.obsolete_id = r.id`

func scanRawfile(row *sql.Row) (*model.Rawfile, error) {
	var r model.Rawfile
	err := row.Scan(&r.ID, &r.MD5, &r.Size, &r.Path, &r.AddedAt, &r.UserID,
		&r.PulsarID, &r.ObsSystemID,
		&r.NBin, &r.NChan, &r.NPol, &r.NSub, &r.Freq, &r.BW, &r.DM, &r.RM,
		&r.Length, &r.MJD, &r.ReplacementID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("finding rawfile: %w", err)
	}
	return &r, nil
}

func (q *Queries) GetRawfileByID(ctx context.Context, id int64) (*model.Rawfile, error) {
	return scanRawfile(q.db.QueryRowContext(ctx,
		`SELECT`+rawfileColumns+rawfileFrom+` WHERE r.id = ?`, id))
}

func (q *Queries) GetRawfileByMD5(ctx context.Context, md5 string) (*model.Rawfile, error) {
	return scanRawfile(q.db.QueryRowContext(ctx,
		`SELECT`+rawfileColumns+rawfileFrom+` WHERE r.md5 = ?`, md5))
}

func (q *Queries) ListRawfilesForPulsar(ctx context.Context, pulsarID int64) ([]model.Rawfile, error) {
	rows, err := q.db.QueryContext(ctx,
		`SELECT`+rawfileColumns+rawfileFrom+` WHERE r.pulsar_id = ? ORDER BY r.id`, pulsarID)
	if err != nil {
		return nil, fmt.Errorf("listing rawfiles: %w", err)
	}
	defer rows.Close()

	var files []model.Rawfile
	for rows.Next() {
		var r model.Rawfile
		if err := rows.Scan(&r.ID, &r.MD5, &r.Size, &r.Path, &r.AddedAt, &r.UserID,
			&r.PulsarID, &r.ObsSystemID,
			&r.NBin, &r.NChan, &r.NPol, &r.NSub, &r.Freq, &r.BW, &r.DM, &r.RM,
			&r.Length, &r.MJD, &r.ReplacementID); err != nil {
			return nil, fmt.Errorf("scanning rawfile: %w", err)
		}
		files = append(files, r)
	}
	return files, rows.Err()
}

// Parfile operations

func (q *Queries) InsertParfile(ctx context.Context, p *model.Parfile) (int64, error) {
	res, err := q.db.ExecContext(ctx,
		`INSERT INTO parfiles (md5, path, added_at, user_id, pulsar_id)
		 VALUES (?, ?, ?, ?, ?)`,
		p.MD5, p.Path, p.AddedAt, p.UserID, p.PulsarID)
	if err != nil {
		return 0, fmt.Errorf("inserting parfile: %w", err)
	}
	return res.LastInsertId()
}

func scanParfile(row *sql.Row) (*model.Parfile, error) {
	var p model.Parfile
	err := row.Scan(&p.ID, &p.MD5, &p.Path, &p.AddedAt, &p.UserID, &p.PulsarID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("finding parfile: %w", err)
	}
	return &p, nil
}

func (q *Queries) GetParfileByID(ctx context.Context, id int64) (*model.Parfile, error) {
	return scanParfile(q.db.QueryRowContext(ctx,
		`SELECT id, md5, path, added_at, user_id, pulsar_id FROM parfiles WHERE id = ?`, id))
}

func (q *Queries) GetParfileByMD5(ctx context.Context, md5 string) (*model.Parfile, error) {
	return scanParfile(q.db.QueryRowContext(ctx,
		`SELECT id, md5, path, added_at, user_id, pulsar_id FROM parfiles WHERE md5 = ?`, md5))
}

func (q *Queries) InsertParfileParam(ctx context.Context, parfileID int64, name, value string) error {
	_, err := q.db.ExecContext(ctx,
		`INSERT INTO parfile_params (parfile_id, name, value) VALUES (?, ?, ?)`,
		parfileID, name, value)
	if err != nil {
		return fmt.Errorf("inserting parfile param: %w", err)
	}
	return nil
}

func (q *Queries) GetParfileParams(ctx context.Context, parfileID int64) (map[string]string, error) {
	rows, err := q.db.QueryContext(ctx,
		`SELECT name, value FROM parfile_params WHERE parfile_id = ?`, parfileID)
	if err != nil {
		return nil, fmt.Errorf("getting parfile params: %w", err)
	}
	defer rows.Close()

	params := make(map[string]string)
	for rows.Next() {
		var name, value string
		if err := rows.Scan(&name, &value); err != nil {
			return nil, fmt.Errorf("scanning parfile param: %w", err)
		}
		params[name] = value
	}
	return params, rows.Err()
}

// CountProcessesForParfile returns the number of processes referencing
// the parfile. Parfiles with references cannot be deleted.
func (q *Queries) CountProcessesForParfile(ctx context.Context, parfileID int64) (int64, error) {
	var n int64
	err := q.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM processes WHERE parfile_id = ?`, parfileID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("counting processes for parfile: %w", err)
	}
	return n, nil
}

func (q *Queries) DeleteParfile(ctx context.Context, id int64) error {
	if _, err := q.db.ExecContext(ctx,
		`DELETE FROM parfile_params WHERE parfile_id = ?`, id); err != nil {
		return fmt.Errorf("deleting parfile params: %w", err)
	}
	if _, err := q.db.ExecContext(ctx, `DELETE FROM parfiles WHERE id = ?`, id); err != nil {
		return fmt.Errorf("deleting parfile: %w", err)
	}
	return nil
}

// Template operations

func (q *Queries) InsertTemplate(ctx context.Context, t *model.Template) (int64, error) {
	res, err := q.db.ExecContext(ctx,
		`INSERT INTO templates (md5, path, added_at, user_id, pulsar_id, obssystem_id, nbin, comments)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		t.MD5, t.Path, t.AddedAt, t.UserID, t.PulsarID, t.ObsSystemID, t.NBin, t.Comments)
	if err != nil {
		return 0, fmt.Errorf("inserting template: %w", err)
	}
	return res.LastInsertId()
}

func scanTemplate(row *sql.Row) (*model.Template, error) {
	var t model.Template
	err := row.Scan(&t.ID, &t.MD5, &t.Path, &t.AddedAt, &t.UserID,
		&t.PulsarID, &t.ObsSystemID, &t.NBin, &t.Comments)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("finding template: %w", err)
	}
	return &t, nil
}

func (q *Queries) GetTemplateByID(ctx context.Context, id int64) (*model.Template, error) {
	return scanTemplate(q.db.QueryRowContext(ctx,
		`SELECT id, md5, path, added_at, user_id, pulsar_id, obssystem_id, nbin, comments
		 FROM templates WHERE id = ?`, id))
}

func (q *Queries) GetTemplateByMD5(ctx context.Context, md5 string) (*model.Template, error) {
	return scanTemplate(q.db.QueryRowContext(ctx,
		`SELECT id, md5, path, added_at, user_id, pulsar_id, obssystem_id, nbin, comments
		 FROM templates WHERE md5 = ?`, md5))
}

func (q *Queries) CountTemplatesForPair(ctx context.Context, pulsarID, obsSystemID int64) (int64, error) {
	var n int64
	err := q.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM templates WHERE pulsar_id = ? AND obssystem_id = ?`,
		pulsarID, obsSystemID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("counting templates: %w", err)
	}
	return n, nil
}

// Master pointer operations

func (q *Queries) GetMasterParfileID(ctx context.Context, pulsarID int64) (int64, bool, error) {
	var id int64
	err := q.db.QueryRowContext(ctx,
		`SELECT parfile_id FROM master_parfiles WHERE pulsar_id = ?`, pulsarID).Scan(&id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, false, nil
		}
		return 0, false, fmt.Errorf("finding master parfile: %w", err)
	}
	return id, true, nil
}

// UpsertMasterParfile installs parfileID as the single master for the
// pulsar, replacing any previous master.
func (q *Queries) UpsertMasterParfile(ctx context.Context, pulsarID, parfileID int64) error {
	_, err := q.db.ExecContext(ctx,
		`INSERT INTO master_parfiles (pulsar_id, parfile_id) VALUES (?, ?)
		 ON CONFLICT (pulsar_id) DO UPDATE SET parfile_id = excluded.parfile_id`,
		pulsarID, parfileID)
	if err != nil {
		return fmt.Errorf("setting master parfile: %w", err)
	}
	return nil
}

func (q *Queries) DeleteMasterParfile(ctx context.Context, pulsarID int64) error {
	_, err := q.db.ExecContext(ctx,
		`DELETE FROM master_parfiles WHERE pulsar_id = ?`, pulsarID)
	if err != nil {
		return fmt.Errorf("clearing master parfile: %w", err)
	}
	return nil
}

func (q *Queries) GetMasterTemplateID(ctx context.Context, pulsarID, obsSystemID int64) (int64, bool, error) {
	var id int64
	err := q.db.QueryRowContext(ctx,
		`SELECT template_id FROM master_templates WHERE pulsar_id = ? AND obssystem_id = ?`,
		pulsarID, obsSystemID).Scan(&id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, false, nil
		}
		return 0, false, fmt.Errorf("finding master template: %w", err)
	}
	return id, true, nil
}

func (q *Queries) UpsertMasterTemplate(ctx context.Context, pulsarID, obsSystemID, templateID int64) error {
	_, err := q.db.ExecContext(ctx,
		`INSERT INTO master_templates (pulsar_id, obssystem_id, template_id) VALUES (?, ?, ?)
		 ON CONFLICT (pulsar_id, obssystem_id) DO UPDATE SET template_id = excluded.template_id`,
		pulsarID, obsSystemID, templateID)
	if err != nil {
		return fmt.Errorf("setting master template: %w", err)
	}
	return nil
}

func (q *Queries) GetMasterTimfileID(ctx context.Context, pulsarID int64) (int64, bool, error) {
	var id int64
	err := q.db.QueryRowContext(ctx,
		`SELECT timfile_id FROM master_timfiles WHERE pulsar_id = ?`, pulsarID).Scan(&id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, false, nil
		}
		return 0, false, fmt.Errorf("finding master timfile: %w", err)
	}
	return id, true, nil
}

func (q *Queries) UpsertMasterTimfile(ctx context.Context, pulsarID, timfileID int64) error {
	_, err := q.db.ExecContext(ctx,
		`INSERT INTO master_timfiles (pulsar_id, timfile_id) VALUES (?, ?)
		 ON CONFLICT (pulsar_id) DO UPDATE SET timfile_id = excluded.timfile_id`,
		pulsarID, timfileID)
	if err != nil {
		return fmt.Errorf("setting master timfile: %w", err)
	}
	return nil
}

// Replacement operations

func (q *Queries) InsertReplacement(ctx context.Context, r *model.Replacement) error {
	_, err := q.db.ExecContext(ctx,
		`INSERT INTO replacements (obsolete_id, replacement_id, user_id, added_at, comments)
		 VALUES (?, ?, ?, ?, ?)`,
		r.ObsoleteID, r.ReplacementID, r.UserID, r.AddedAt, r.Comments)
	if err != nil {
		return fmt.Errorf("inserting replacement: %w", err)
	}
	return nil
}

func (q *Queries) GetReplacementForObsolete(ctx context.Context, obsoleteID int64) (*model.Replacement, error) {
	var r model.Replacement
	err := q.db.QueryRowContext(ctx,
		`SELECT obsolete_id, replacement_id, user_id, added_at, comments
		 FROM replacements WHERE obsolete_id = ?`, obsoleteID).
		Scan(&r.ObsoleteID, &r.ReplacementID, &r.UserID, &r.AddedAt, &r.Comments)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("finding replacement: %w", err)
	}
	return &r, nil
}

// RewriteReplacements repoints every entry whose replacement is oldID
// at newID, keeping the table cycle-free with every chain ending at its
// newest tip.
func (q *Queries) RewriteReplacements(ctx context.Context, oldID, newID int64) error {
	_, err := q.db.ExecContext(ctx,
		`UPDATE replacements SET replacement_id = ? WHERE replacement_id = ?`, newID, oldID)
	if err != nil {
		return fmt.Errorf("rewriting replacements: %w", err)
	}
	return nil
}

func (q *Queries) ListReplacements(ctx context.Context) ([]model.Replacement, error) {
	rows, err := q.db.QueryContext(ctx,
		`SELECT obsolete_id, replacement_id, user_id, added_at, comments
		 FROM replacements ORDER BY obsolete_id`)
	if err != nil {
		return nil, fmt.Errorf("listing replacements: %w", err)
	}
	defer rows.Close()

	var reps []model.Replacement
	for rows.Next() {
		var r model.Replacement
		if err := rows.Scan(&r.ObsoleteID, &r.ReplacementID, &r.UserID, &r.AddedAt, &r.Comments); err != nil {
			return nil, fmt.Errorf("scanning replacement: %w", err)
		}
		reps = append(reps, r)
	}
	return reps, rows.Err()
}
