package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"toaster/internal/model"
)

// Pulsar operations

func (q *Queries) InsertPulsar(ctx context.Context, name string) (int64, error) {
	res, err := q.db.ExecContext(ctx, `INSERT INTO pulsars (name) VALUES (?)`, name)
	if err != nil {
		return 0, fmt.Errorf("inserting pulsar: %w", err)
	}
	return res.LastInsertId()
}

func (q *Queries) InsertPulsarAlias(ctx context.Context, pulsarID int64, alias string) error {
	_, err := q.db.ExecContext(ctx,
		`INSERT INTO pulsar_aliases (pulsar_id, alias) VALUES (?, ?)`, pulsarID, alias)
	if err != nil {
		return fmt.Errorf("inserting pulsar alias: %w", err)
	}
	return nil
}

// GetPulsarByAlias resolves a pulsar by any of its aliases (which
// include its preferred name). Returns nil when no alias matches.
func (q *Queries) GetPulsarByAlias(ctx context.Context, alias string) (*model.Pulsar, error) {
	var p model.Pulsar
	err := q.db.QueryRowContext(ctx,
		`SELECT p.id, p.name FROM pulsars p
		 JOIN pulsar_aliases a ON a.pulsar_id = p.id
		 WHERE a.alias = ?`, alias).Scan(&p.ID, &p.Name)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("finding pulsar by alias: %w", err)
	}
	return &p, nil
}

func (q *Queries) GetPulsarByID(ctx context.Context, id int64) (*model.Pulsar, error) {
	var p model.Pulsar
	err := q.db.QueryRowContext(ctx,
		`SELECT id, name FROM pulsars WHERE id = ?`, id).Scan(&p.ID, &p.Name)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("finding pulsar: %w", err)
	}
	return &p, nil
}

func (q *Queries) ListPulsars(ctx context.Context) ([]model.Pulsar, error) {
	rows, err := q.db.QueryContext(ctx, `SELECT id, name FROM pulsars ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("listing pulsars: %w", err)
	}
	defer rows.Close()

	var pulsars []model.Pulsar
	for rows.Next() {
		var p model.Pulsar
		if err := rows.Scan(&p.ID, &p.Name); err != nil {
			return nil, fmt.Errorf("scanning pulsar: %w", err)
		}
		pulsars = append(pulsars, p)
	}
	return pulsars, rows.Err()
}

func (q *Queries) ListPulsarAliases(ctx context.Context) ([]model.PulsarAlias, error) {
	rows, err := q.db.QueryContext(ctx,
		`SELECT id, pulsar_id, alias FROM pulsar_aliases ORDER BY alias`)
	if err != nil {
		return nil, fmt.Errorf("listing pulsar aliases: %w", err)
	}
	defer rows.Close()

	var aliases []model.PulsarAlias
	for rows.Next() {
		var a model.PulsarAlias
		if err := rows.Scan(&a.ID, &a.PulsarID, &a.Alias); err != nil {
			return nil, fmt.Errorf("scanning pulsar alias: %w", err)
		}
		aliases = append(aliases, a)
	}
	return aliases, rows.Err()
}

// Telescope operations

func (q *Queries) InsertTelescope(ctx context.Context, t *model.Telescope) (int64, error) {
	res, err := q.db.ExecContext(ctx,
		`INSERT INTO telescopes (name, abbrev, code, itrf_x, itrf_y, itrf_z)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		t.Name, t.Abbrev, t.Code, t.ITRFX, t.ITRFY, t.ITRFZ)
	if err != nil {
		return 0, fmt.Errorf("inserting telescope: %w", err)
	}
	return res.LastInsertId()
}

func (q *Queries) InsertTelescopeAlias(ctx context.Context, telescopeID int64, alias string) error {
	_, err := q.db.ExecContext(ctx,
		`INSERT INTO telescope_aliases (telescope_id, alias) VALUES (?, ?)`, telescopeID, alias)
	if err != nil {
		return fmt.Errorf("inserting telescope alias: %w", err)
	}
	return nil
}

func scanTelescope(row *sql.Row) (*model.Telescope, error) {
	var t model.Telescope
	err := row.Scan(&t.ID, &t.Name, &t.Abbrev, &t.Code, &t.ITRFX, &t.ITRFY, &t.ITRFZ)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("finding telescope: %w", err)
	}
	return &t, nil
}

// GetTelescopeByAlias resolves a telescope by any of its aliases.
// Returns nil when no alias matches.
func (q *Queries) GetTelescopeByAlias(ctx context.Context, alias string) (*model.Telescope, error) {
	return scanTelescope(q.db.QueryRowContext(ctx,
		`SELECT t.id, t.name, t.abbrev, t.code, t.itrf_x, t.itrf_y, t.itrf_z
		 FROM telescopes t
		 JOIN telescope_aliases a ON a.telescope_id = t.id
		 WHERE a.alias = ?`, alias))
}

func (q *Queries) GetTelescopeByID(ctx context.Context, id int64) (*model.Telescope, error) {
	return scanTelescope(q.db.QueryRowContext(ctx,
		`SELECT id, name, abbrev, code, itrf_x, itrf_y, itrf_z
		 FROM telescopes WHERE id = ?`, id))
}

func (q *Queries) ListTelescopes(ctx context.Context) ([]model.Telescope, error) {
	rows, err := q.db.QueryContext(ctx,
		`SELECT id, name, abbrev, code, itrf_x, itrf_y, itrf_z FROM telescopes ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("listing telescopes: %w", err)
	}
	defer rows.Close()

	var telescopes []model.Telescope
	for rows.Next() {
		var t model.Telescope
		if err := rows.Scan(&t.ID, &t.Name, &t.Abbrev, &t.Code, &t.ITRFX, &t.ITRFY, &t.ITRFZ); err != nil {
			return nil, fmt.Errorf("scanning telescope: %w", err)
		}
		telescopes = append(telescopes, t)
	}
	return telescopes, rows.Err()
}

func (q *Queries) ListTelescopeAliases(ctx context.Context) ([]model.TelescopeAlias, error) {
	rows, err := q.db.QueryContext(ctx,
		`SELECT id, telescope_id, alias FROM telescope_aliases ORDER BY alias`)
	if err != nil {
		return nil, fmt.Errorf("listing telescope aliases: %w", err)
	}
	defer rows.Close()

	var aliases []model.TelescopeAlias
	for rows.Next() {
		var a model.TelescopeAlias
		if err := rows.Scan(&a.ID, &a.TelescopeID, &a.Alias); err != nil {
			return nil, fmt.Errorf("scanning telescope alias: %w", err)
		}
		aliases = append(aliases, a)
	}
	return aliases, rows.Err()
}

// ObsSystem operations

func (q *Queries) InsertObsSystem(ctx context.Context, o *model.ObsSystem) (int64, error) {
	res, err := q.db.ExecContext(ctx,
		`INSERT INTO obssystems (name, telescope_id, frontend, backend, clock, band)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		o.Name, o.TelescopeID, o.Frontend, o.Backend, o.Clock, o.Band)
	if err != nil {
		return 0, fmt.Errorf("inserting obssystem: %w", err)
	}
	return res.LastInsertId()
}

func scanObsSystem(row *sql.Row) (*model.ObsSystem, error) {
	var o model.ObsSystem
	err := row.Scan(&o.ID, &o.Name, &o.TelescopeID, &o.Frontend, &o.Backend, &o.Clock, &o.Band)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("finding obssystem: %w", err)
	}
	return &o, nil
}

func (q *Queries) GetObsSystemByName(ctx context.Context, name string) (*model.ObsSystem, error) {
	return scanObsSystem(q.db.QueryRowContext(ctx,
		`SELECT id, name, telescope_id, frontend, backend, clock, band
		 FROM obssystems WHERE name = ?`, name))
}

func (q *Queries) GetObsSystemByID(ctx context.Context, id int64) (*model.ObsSystem, error) {
	return scanObsSystem(q.db.QueryRowContext(ctx,
		`SELECT id, name, telescope_id, frontend, backend, clock, band
		 FROM obssystems WHERE id = ?`, id))
}

// GetObsSystemByFrontendBackend resolves an observing system from the
// telescope and the frontend/backend pair reported in a file header.
func (q *Queries) GetObsSystemByFrontendBackend(ctx context.Context, telescopeID int64, frontend, backend string) (*model.ObsSystem, error) {
	return scanObsSystem(q.db.QueryRowContext(ctx,
		`SELECT id, name, telescope_id, frontend, backend, clock, band
		 FROM obssystems WHERE telescope_id = ? AND frontend = ? AND backend = ?`,
		telescopeID, frontend, backend))
}

func (q *Queries) ListObsSystems(ctx context.Context) ([]model.ObsSystem, error) {
	rows, err := q.db.QueryContext(ctx,
		`SELECT id, name, telescope_id, frontend, backend, clock, band
		 FROM obssystems ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("listing obssystems: %w", err)
	}
	defer rows.Close()

	var systems []model.ObsSystem
	for rows.Next() {
		var o model.ObsSystem
		if err := rows.Scan(&o.ID, &o.Name, &o.TelescopeID, &o.Frontend, &o.Backend, &o.Clock, &o.Band); err != nil {
			return nil, fmt.Errorf("scanning obssystem: %w", err)
		}
		systems = append(systems, o)
	}
	return systems, rows.Err()
}

// User operations

func (q *Queries) InsertUser(ctx context.Context, u *model.User) (int64, error) {
	res, err := q.db.ExecContext(ctx,
		`INSERT INTO users (username, real_name, email, password_hash, active, admin)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		u.Username, u.RealName, u.Email, u.PasswordHash, u.Active, u.Admin)
	if err != nil {
		return 0, fmt.Errorf("inserting user: %w", err)
	}
	return res.LastInsertId()
}

func scanUser(row *sql.Row) (*model.User, error) {
	var u model.User
	err := row.Scan(&u.ID, &u.Username, &u.RealName, &u.Email, &u.PasswordHash, &u.Active, &u.Admin)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("finding user: %w", err)
	}
	return &u, nil
}

func (q *Queries) GetUserByName(ctx context.Context, username string) (*model.User, error) {
	return scanUser(q.db.QueryRowContext(ctx,
		`SELECT id, username, real_name, email, password_hash, active, admin
		 FROM users WHERE username = ?`, username))
}

func (q *Queries) GetUserByID(ctx context.Context, id int64) (*model.User, error) {
	return scanUser(q.db.QueryRowContext(ctx,
		`SELECT id, username, real_name, email, password_hash, active, admin
		 FROM users WHERE id = ?`, id))
}

func (q *Queries) ListUsers(ctx context.Context) ([]model.User, error) {
	rows, err := q.db.QueryContext(ctx,
		`SELECT id, username, real_name, email, password_hash, active, admin
		 FROM users ORDER BY username`)
	if err != nil {
		return nil, fmt.Errorf("listing users: %w", err)
	}
	defer rows.Close()

	var users []model.User
	for rows.Next() {
		var u model.User
		if err := rows.Scan(&u.ID, &u.Username, &u.RealName, &u.Email, &u.PasswordHash, &u.Active, &u.Admin); err != nil {
			return nil, fmt.Errorf("scanning user: %w", err)
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

// Version operations

// GetOrCreateVersion returns the id of the version triple, inserting it
// if it has not been seen before.
func (q *Queries) GetOrCreateVersion(ctx context.Context, v *model.Version) (int64, error) {
	var id int64
	err := q.db.QueryRowContext(ctx,
		`SELECT id FROM versions
		 WHERE pipeline_hash = ? AND tool_hash = ? AND tempo2_revision = ?`,
		v.PipelineHash, v.ToolHash, v.Tempo2Revision).Scan(&id)
	if err == nil {
		return id, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return 0, fmt.Errorf("finding version: %w", err)
	}

	res, err := q.db.ExecContext(ctx,
		`INSERT INTO versions (pipeline_hash, tool_hash, tempo2_revision) VALUES (?, ?, ?)`,
		v.PipelineHash, v.ToolHash, v.Tempo2Revision)
	if err != nil {
		return 0, fmt.Errorf("inserting version: %w", err)
	}
	return res.LastInsertId()
}

// Curator operations

func (q *Queries) InsertCurator(ctx context.Context, pulsarID int64, userID sql.NullInt64) error {
	_, err := q.db.ExecContext(ctx,
		`INSERT INTO curators (pulsar_id, user_id) VALUES (?, ?)`, pulsarID, userID)
	if err != nil {
		return fmt.Errorf("inserting curator: %w", err)
	}
	return nil
}

func (q *Queries) ListCurators(ctx context.Context, pulsarID int64) ([]model.Curator, error) {
	rows, err := q.db.QueryContext(ctx,
		`SELECT pulsar_id, user_id FROM curators WHERE pulsar_id = ?`, pulsarID)
	if err != nil {
		return nil, fmt.Errorf("listing curators: %w", err)
	}
	defer rows.Close()

	var curators []model.Curator
	for rows.Next() {
		var c model.Curator
		if err := rows.Scan(&c.PulsarID, &c.UserID); err != nil {
			return nil, fmt.Errorf("scanning curator: %w", err)
		}
		curators = append(curators, c)
	}
	return curators, rows.Err()
}
