package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"toaster/internal/model"
)

// Process operations

func (q *Queries) InsertProcess(ctx context.Context, p *model.Process) (int64, error) {
	res, err := q.db.ExecContext(ctx,
		`INSERT INTO processes
		 (version_id, rawfile_id, parfile_id, template_id, user_id, added_at,
		  manipulator, manip_args, nchan, nsub, fit_method)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		p.VersionID, p.RawfileID, p.ParfileID, p.TemplateID, p.UserID, p.AddedAt,
		p.Manipulator, p.ManipArgs, p.NChan, p.NSub, p.FitMethod)
	if err != nil {
		return 0, fmt.Errorf("inserting process: %w", err)
	}
	return res.LastInsertId()
}

func (q *Queries) GetProcessByID(ctx context.Context, id int64) (*model.Process, error) {
	var p model.Process
	err := q.db.QueryRowContext(ctx,
		`SELECT id, version_id, rawfile_id, parfile_id, template_id, user_id, added_at,
		        manipulator, manip_args, nchan, nsub, fit_method
		 FROM processes WHERE id = ?`, id).
		Scan(&p.ID, &p.VersionID, &p.RawfileID, &p.ParfileID, &p.TemplateID, &p.UserID,
			&p.AddedAt, &p.Manipulator, &p.ManipArgs, &p.NChan, &p.NSub, &p.FitMethod)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("finding process: %w", err)
	}
	return &p, nil
}

func (q *Queries) CountProcessesForTemplate(ctx context.Context, templateID int64) (int64, error) {
	var n int64
	err := q.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM processes WHERE template_id = ?`, templateID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("counting processes for template: %w", err)
	}
	return n, nil
}

// TOA operations

func (q *Queries) InsertTOA(ctx context.Context, t *model.TOA) (int64, error) {
	res, err := q.db.ExecContext(ctx,
		`INSERT INTO toas
		 (process_id, template_id, rawfile_id, pulsar_id, obssystem_id,
		  imjd, fmjd, freq, error_us, bw, length, nbin, gof)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.ProcessID, t.TemplateID, t.RawfileID, t.PulsarID, t.ObsSystemID,
		t.IMJD, t.FMJD, t.Freq, t.ErrorUS, t.BW, t.Length, t.NBin, t.GoF)
	if err != nil {
		return 0, fmt.Errorf("inserting TOA: %w", err)
	}
	return res.LastInsertId()
}

func (q *Queries) CountTOAsForProcess(ctx context.Context, processID int64) (int64, error) {
	var n int64
	err := q.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM toas WHERE process_id = ?`, processID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("counting TOAs: %w", err)
	}
	return n, nil
}

// Timfile operations

func (q *Queries) InsertTimfile(ctx context.Context, t *model.Timfile) (int64, error) {
	res, err := q.db.ExecContext(ctx,
		`INSERT INTO timfiles (user_id, pulsar_id, version_id, added_at, comments, input_args)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		t.UserID, t.PulsarID, t.VersionID, t.AddedAt, t.Comments, t.InputArgs)
	if err != nil {
		return 0, fmt.Errorf("inserting timfile: %w", err)
	}
	return res.LastInsertId()
}

func (q *Queries) GetTimfileByID(ctx context.Context, id int64) (*model.Timfile, error) {
	var t model.Timfile
	err := q.db.QueryRowContext(ctx,
		`SELECT id, user_id, pulsar_id, version_id, added_at, comments, input_args
		 FROM timfiles WHERE id = ?`, id).
		Scan(&t.ID, &t.UserID, &t.PulsarID, &t.VersionID, &t.AddedAt, &t.Comments, &t.InputArgs)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("finding timfile: %w", err)
	}
	return &t, nil
}

func (q *Queries) ListTimfiles(ctx context.Context) ([]model.Timfile, error) {
	rows, err := q.db.QueryContext(ctx,
		`SELECT id, user_id, pulsar_id, version_id, added_at, comments, input_args
		 FROM timfiles ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("listing timfiles: %w", err)
	}
	defer rows.Close()

	var timfiles []model.Timfile
	for rows.Next() {
		var t model.Timfile
		if err := rows.Scan(&t.ID, &t.UserID, &t.PulsarID, &t.VersionID, &t.AddedAt,
			&t.Comments, &t.InputArgs); err != nil {
			return nil, fmt.Errorf("scanning timfile: %w", err)
		}
		timfiles = append(timfiles, t)
	}
	return timfiles, rows.Err()
}

func (q *Queries) UpdateTimfileComments(ctx context.Context, id int64, comments string) error {
	_, err := q.db.ExecContext(ctx,
		`UPDATE timfiles SET comments = ? WHERE id = ?`, comments, id)
	if err != nil {
		return fmt.Errorf("updating timfile comments: %w", err)
	}
	return nil
}

func (q *Queries) InsertTimfileTOA(ctx context.Context, timfileID, toaID int64) error {
	_, err := q.db.ExecContext(ctx,
		`INSERT INTO timfile_toas (timfile_id, toa_id) VALUES (?, ?)`, timfileID, toaID)
	if err != nil {
		return fmt.Errorf("joining TOA to timfile: %w", err)
	}
	return nil
}

func (q *Queries) DeleteTimfileTOA(ctx context.Context, timfileID, toaID int64) error {
	_, err := q.db.ExecContext(ctx,
		`DELETE FROM timfile_toas WHERE timfile_id = ? AND toa_id = ?`, timfileID, toaID)
	if err != nil {
		return fmt.Errorf("removing TOA from timfile: %w", err)
	}
	return nil
}

func (q *Queries) GetTimfileTOAIDs(ctx context.Context, timfileID int64) ([]int64, error) {
	rows, err := q.db.QueryContext(ctx,
		`SELECT toa_id FROM timfile_toas WHERE timfile_id = ? ORDER BY toa_id`, timfileID)
	if err != nil {
		return nil, fmt.Errorf("getting timfile TOAs: %w", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scanning TOA id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// Diagnostic operations. Each owner kind has its own pair of tables;
// diagTable maps the owner kind to them.

// DiagnosticOwner selects which entity a diagnostic is attached to.
type DiagnosticOwner string

const (
	OwnerRawfile DiagnosticOwner = "rawfile"
	OwnerProcess DiagnosticOwner = "process"
	OwnerTOA     DiagnosticOwner = "toa"
)

func diagTables(owner DiagnosticOwner) (floatTable, plotTable, ownerCol string, err error) {
	switch owner {
	case OwnerRawfile:
		return "rawfile_diagnostics", "rawfile_diagnostic_plots", "rawfile_id", nil
	case OwnerProcess:
		return "process_diagnostics", "process_diagnostic_plots", "process_id", nil
	case OwnerTOA:
		return "", "toa_diagnostic_plots", "toa_id", nil
	default:
		return "", "", "", fmt.Errorf("unknown diagnostic owner: %s", owner)
	}
}

func (q *Queries) HasFloatDiagnostic(ctx context.Context, owner DiagnosticOwner, ownerID int64, name string) (bool, error) {
	table, _, col, err := diagTables(owner)
	if err != nil {
		return false, err
	}
	if table == "" {
		return false, fmt.Errorf("float diagnostics not applicable to %s", owner)
	}
	var n int64
	err = q.db.QueryRowContext(ctx,
		fmt.Sprintf(`SELECT COUNT(*) FROM %s WHERE %s = ? AND name = ?`, table, col),
		ownerID, name).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("checking diagnostic: %w", err)
	}
	return n > 0, nil
}

func (q *Queries) InsertFloatDiagnostic(ctx context.Context, owner DiagnosticOwner, ownerID int64, name string, value float64) error {
	table, _, col, err := diagTables(owner)
	if err != nil {
		return err
	}
	if table == "" {
		return fmt.Errorf("float diagnostics not applicable to %s", owner)
	}
	_, err = q.db.ExecContext(ctx,
		fmt.Sprintf(`INSERT INTO %s (%s, name, value) VALUES (?, ?, ?)`, table, col),
		ownerID, name, value)
	if err != nil {
		return fmt.Errorf("inserting diagnostic: %w", err)
	}
	return nil
}

func (q *Queries) HasPlotDiagnostic(ctx context.Context, owner DiagnosticOwner, ownerID int64, name string) (bool, error) {
	_, table, col, err := diagTables(owner)
	if err != nil {
		return false, err
	}
	var n int64
	err = q.db.QueryRowContext(ctx,
		fmt.Sprintf(`SELECT COUNT(*) FROM %s WHERE %s = ? AND name = ?`, table, col),
		ownerID, name).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("checking plot diagnostic: %w", err)
	}
	return n > 0, nil
}

func (q *Queries) InsertPlotDiagnostic(ctx context.Context, owner DiagnosticOwner, ownerID int64, name, plotPath string) error {
	_, table, col, err := diagTables(owner)
	if err != nil {
		return err
	}
	_, err = q.db.ExecContext(ctx,
		fmt.Sprintf(`INSERT INTO %s (%s, name, plot_path) VALUES (?, ?, ?)`, table, col),
		ownerID, name, plotPath)
	if err != nil {
		return fmt.Errorf("inserting plot diagnostic: %w", err)
	}
	return nil
}

func (q *Queries) ListFloatDiagnostics(ctx context.Context, owner DiagnosticOwner, ownerID int64) ([]model.FloatDiagnostic, error) {
	table, _, col, err := diagTables(owner)
	if err != nil {
		return nil, err
	}
	if table == "" {
		return nil, fmt.Errorf("float diagnostics not applicable to %s", owner)
	}
	rows, err := q.db.QueryContext(ctx,
		fmt.Sprintf(`SELECT id, %s, name, value FROM %s WHERE %s = ? ORDER BY name`, col, table, col),
		ownerID)
	if err != nil {
		return nil, fmt.Errorf("listing diagnostics: %w", err)
	}
	defer rows.Close()

	var diags []model.FloatDiagnostic
	for rows.Next() {
		var d model.FloatDiagnostic
		if err := rows.Scan(&d.ID, &d.OwnerID, &d.Name, &d.Value); err != nil {
			return nil, fmt.Errorf("scanning diagnostic: %w", err)
		}
		diags = append(diags, d)
	}
	return diags, rows.Err()
}
