package toaster

import (
	"context"
	"errors"
	"testing"

	"toaster/internal/testutil"
)

func TestReplaceRawfile(t *testing.T) {
	t.Run("requires a comment", func(t *testing.T) {
		fx := newFixture(t)
		obsolete := fx.addRaw("obs1.ar", "original bytes")

		path := fx.writeFile("obs1_fixed.ar", "fixed bytes", rawHeader("J0437-4715"))
		_, err := fx.svc.ReplaceRawfile(context.Background(), obsolete, path, " ")
		if !errors.Is(err, ErrBadInput) {
			t.Errorf("ReplaceRawfile() error = %v, want ErrBadInput", err)
		}
	})

	t.Run("supersedes and records the chain", func(t *testing.T) {
		fx := newFixture(t)
		obsolete := fx.addRaw("obs1.ar", "original bytes")

		path := fx.writeFile("obs1_fixed.ar", "fixed bytes", rawHeader("J0437-4715"))
		newID, err := fx.svc.ReplaceRawfile(context.Background(), obsolete, path, "recalibrated")
		if err != nil {
			t.Fatalf("ReplaceRawfile() error = %v", err)
		}
		if newID == obsolete {
			t.Fatal("replacement id equals obsolete id")
		}

		old, err := fx.store.GetRawfileByID(context.Background(), obsolete)
		if err != nil {
			t.Fatalf("GetRawfileByID() error = %v", err)
		}
		if !old.ReplacementID.Valid || old.ReplacementID.Int64 != newID {
			t.Errorf("ReplacementID = %+v, want %d", old.ReplacementID, newID)
		}

		rep, err := fx.store.GetReplacementForObsolete(context.Background(), obsolete)
		if err != nil {
			t.Fatalf("GetReplacementForObsolete() error = %v", err)
		}
		if rep.Comments != "recalibrated" {
			t.Errorf("Comments = %q, want recalibrated", rep.Comments)
		}
	})

	t.Run("chains repoint to the newest tip", func(t *testing.T) {
		fx := newFixture(t)
		a := fx.addRaw("obs1.ar", "bytes a")

		pathB := fx.writeFile("obs1_b.ar", "bytes b", rawHeader("J0437-4715"))
		b, err := fx.svc.ReplaceRawfile(context.Background(), a, pathB, "first fix")
		if err != nil {
			t.Fatalf("ReplaceRawfile(a) error = %v", err)
		}

		pathC := fx.writeFile("obs1_c.ar", "bytes c", rawHeader("J0437-4715"))
		c, err := fx.svc.ReplaceRawfile(context.Background(), b, pathC, "second fix")
		if err != nil {
			t.Fatalf("ReplaceRawfile(b) error = %v", err)
		}

		// The original's chain must end at the newest tip.
		rep, err := fx.store.GetReplacementForObsolete(context.Background(), a)
		if err != nil {
			t.Fatalf("GetReplacementForObsolete() error = %v", err)
		}
		if rep.ReplacementID != c {
			t.Errorf("chain tip for original = %d, want %d", rep.ReplacementID, c)
		}
	})

	t.Run("already superseded file is refused", func(t *testing.T) {
		fx := newFixture(t)
		a := fx.addRaw("obs1.ar", "bytes a")

		pathB := fx.writeFile("obs1_b.ar", "bytes b", rawHeader("J0437-4715"))
		if _, err := fx.svc.ReplaceRawfile(context.Background(), a, pathB, "first fix"); err != nil {
			t.Fatalf("ReplaceRawfile() error = %v", err)
		}

		pathC := fx.writeFile("obs1_c.ar", "bytes c", rawHeader("J0437-4715"))
		_, err := fx.svc.ReplaceRawfile(context.Background(), a, pathC, "stale fix")
		if !errors.Is(err, ErrBadInput) {
			t.Errorf("ReplaceRawfile() error = %v, want ErrBadInput", err)
		}
	})

	t.Run("non-overlapping observation interval is refused", func(t *testing.T) {
		fx := newFixture(t)
		obsolete := fx.addRaw("obs1.ar", "original bytes")

		header := rawHeader("J0437-4715")
		header["intmjd"] = "56000"
		path := fx.writeFile("other_night.ar", "other bytes", header)

		_, err := fx.svc.ReplaceRawfile(context.Background(), obsolete, path, "wrong night")
		if !errors.Is(err, ErrBadInput) {
			t.Errorf("ReplaceRawfile() error = %v, want ErrBadInput", err)
		}
	})

	t.Run("different pulsar is refused", func(t *testing.T) {
		fx := newFixture(t)
		testutil.SeedPulsar(t, fx.store, "J1909-3744")
		obsolete := fx.addRaw("obs1.ar", "original bytes")

		path := fx.writeFile("other_source.ar", "other bytes", rawHeader("J1909-3744"))
		_, err := fx.svc.ReplaceRawfile(context.Background(), obsolete, path, "wrong source")
		if !errors.Is(err, ErrBadInput) {
			t.Errorf("ReplaceRawfile() error = %v, want ErrBadInput", err)
		}
	})

	t.Run("unknown obsolete id is refused", func(t *testing.T) {
		fx := newFixture(t)

		path := fx.writeFile("obs1.ar", "bytes", rawHeader("J0437-4715"))
		_, err := fx.svc.ReplaceRawfile(context.Background(), 999, path, "fix")
		if !errors.Is(err, ErrUnrecognised) {
			t.Errorf("ReplaceRawfile() error = %v, want ErrUnrecognised", err)
		}
	})
}
