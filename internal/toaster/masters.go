package toaster

import (
	"context"
	"fmt"

	"toaster/internal/database"
)

// SetMasterParfile designates a parfile as the master for its pulsar.
// A warning no-op when it already is.
func (s *Service) SetMasterParfile(ctx context.Context, parfileID int64) error {
	return s.store.WithTx(ctx, func(q *database.Queries) error {
		p, err := q.GetParfileByID(ctx, parfileID)
		if err != nil {
			return err
		}
		if p == nil {
			return fmt.Errorf("%w: parfile %d", ErrUnrecognised, parfileID)
		}

		current, has, err := q.GetMasterParfileID(ctx, p.PulsarID)
		if err != nil {
			return err
		}
		if has && current == parfileID {
			return s.warner.Warnf("parfile %d is already the master for its pulsar", parfileID)
		}
		return q.UpsertMasterParfile(ctx, p.PulsarID, parfileID)
	})
}

// SetMasterTemplate designates a template as the master for its
// (pulsar, observing system) pair. A warning no-op when it already is.
func (s *Service) SetMasterTemplate(ctx context.Context, templateID int64) error {
	return s.store.WithTx(ctx, func(q *database.Queries) error {
		t, err := q.GetTemplateByID(ctx, templateID)
		if err != nil {
			return err
		}
		if t == nil {
			return fmt.Errorf("%w: template %d", ErrUnrecognised, templateID)
		}

		current, has, err := q.GetMasterTemplateID(ctx, t.PulsarID, t.ObsSystemID)
		if err != nil {
			return err
		}
		if has && current == templateID {
			return s.warner.Warnf("template %d is already the master for its pair", templateID)
		}
		return q.UpsertMasterTemplate(ctx, t.PulsarID, t.ObsSystemID, templateID)
	})
}

// SetMasterTimfile designates a timfile as the master for its pulsar.
// A warning no-op when it already is.
func (s *Service) SetMasterTimfile(ctx context.Context, timfileID int64) error {
	return s.store.WithTx(ctx, func(q *database.Queries) error {
		t, err := q.GetTimfileByID(ctx, timfileID)
		if err != nil {
			return err
		}
		if t == nil {
			return fmt.Errorf("%w: timfile %d", ErrUnrecognised, timfileID)
		}

		current, has, err := q.GetMasterTimfileID(ctx, t.PulsarID)
		if err != nil {
			return err
		}
		if has && current == timfileID {
			return s.warner.Warnf("timfile %d is already the master for its pulsar", timfileID)
		}
		return q.UpsertMasterTimfile(ctx, t.PulsarID, timfileID)
	})
}
