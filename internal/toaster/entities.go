package toaster

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"golang.org/x/crypto/bcrypt"

	"toaster/internal/database"
	"toaster/internal/model"
)

// AddPulsar registers a pulsar with its preferred name and any extra
// aliases. The name itself is always installed as an alias.
func (s *Service) AddPulsar(ctx context.Context, name string, aliases []string) (int64, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return 0, fmt.Errorf("%w: pulsar name is required", ErrBadInput)
	}

	var id int64
	err := s.store.WithTx(ctx, func(q *database.Queries) error {
		existing, err := q.GetPulsarByAlias(ctx, name)
		if err != nil {
			return err
		}
		if existing != nil {
			return fmt.Errorf("%w: pulsar %q already exists", ErrBadInput, name)
		}

		id, err = q.InsertPulsar(ctx, name)
		if err != nil {
			return err
		}
		for _, alias := range append([]string{name}, aliases...) {
			if err := q.InsertPulsarAlias(ctx, id, alias); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	s.caches.InvalidatePulsars()
	s.logger.Info("pulsar added", "name", name, "id", id)
	return id, nil
}

// AddTelescope registers a telescope with its site code, ITRF
// coordinates, and aliases. Name and abbreviation are installed as
// aliases alongside any extras.
func (s *Service) AddTelescope(ctx context.Context, t *model.Telescope, aliases []string) (int64, error) {
	if t.Name == "" || t.Code == "" {
		return 0, fmt.Errorf("%w: telescope name and code are required", ErrBadInput)
	}

	var id int64
	err := s.store.WithTx(ctx, func(q *database.Queries) error {
		var err error
		id, err = q.InsertTelescope(ctx, t)
		if err != nil {
			return err
		}
		all := append([]string{t.Name, t.Abbrev, t.Code}, aliases...)
		seen := make(map[string]bool)
		for _, alias := range all {
			if alias == "" || seen[strings.ToLower(alias)] {
				continue
			}
			seen[strings.ToLower(alias)] = true
			if err := q.InsertTelescopeAlias(ctx, id, alias); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	s.caches.InvalidateTelescopes()
	s.logger.Info("telescope added", "name", t.Name, "id", id)
	return id, nil
}

// AddObsSystem registers an observing system. The telescope is given
// by name or alias.
func (s *Service) AddObsSystem(ctx context.Context, name, telescope, frontend, backend, clock, band string) (int64, error) {
	if name == "" {
		return 0, fmt.Errorf("%w: observing system name is required", ErrBadInput)
	}
	telescopeID, err := s.caches.TelescopeID(ctx, telescope)
	if err != nil {
		return 0, fmt.Errorf("%w: telescope %q", ErrUnrecognised, telescope)
	}

	id, err := s.store.InsertObsSystem(ctx, &model.ObsSystem{
		Name:        name,
		TelescopeID: telescopeID,
		Frontend:    frontend,
		Backend:     backend,
		Clock:       clock,
		Band:        band,
	})
	if err != nil {
		return 0, err
	}

	s.caches.InvalidateObsSystems()
	s.logger.Info("observing system added", "name", name, "id", id)
	return id, nil
}

// AddUser registers a user with a bcrypt-hashed password.
func (s *Service) AddUser(ctx context.Context, username, realName, email, password string, admin bool) (int64, error) {
	if username == "" {
		return 0, fmt.Errorf("%w: username is required", ErrBadInput)
	}
	if password == "" {
		return 0, fmt.Errorf("%w: password is required", ErrBadInput)
	}

	existing, err := s.store.GetUserByName(ctx, username)
	if err != nil {
		return 0, err
	}
	if existing != nil {
		return 0, fmt.Errorf("%w: user %q already exists", ErrBadInput, username)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return 0, fmt.Errorf("hashing password: %w", err)
	}

	id, err := s.store.InsertUser(ctx, &model.User{
		Username:     username,
		RealName:     realName,
		Email:        email,
		PasswordHash: string(hash),
		Active:       true,
		Admin:        admin,
	})
	if err != nil {
		return 0, err
	}

	s.caches.InvalidateUsers()
	s.logger.Info("user added", "username", username, "id", id)
	return id, nil
}

// AddCurator grants curation rights for a pulsar. An empty username
// means anyone may curate.
func (s *Service) AddCurator(ctx context.Context, pulsar, username string) error {
	pulsarID, err := s.caches.PulsarID(ctx, pulsar)
	if err != nil {
		return fmt.Errorf("%w: pulsar %q", ErrUnrecognised, pulsar)
	}

	var userID sql.NullInt64
	if username != "" {
		id, err := s.caches.UserID(ctx, username)
		if err != nil {
			return fmt.Errorf("%w: user %q", ErrUnrecognised, username)
		}
		userID = sql.NullInt64{Int64: id, Valid: true}
	}
	return s.store.InsertCurator(ctx, pulsarID, userID)
}
