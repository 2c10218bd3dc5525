package toaster

import (
	"context"
	"errors"
	"strings"
	"testing"

	"toaster/internal/database"
	"toaster/internal/toa"
)

// timedFixture runs one processing pass and bundles its TOAs into a
// timfile.
func timedFixture(t *testing.T) (*fixture, int64, []database.TOAInfo) {
	t.Helper()
	fx := newFixture(t)
	rawID := preparedRun(fx)

	if _, err := fx.svc.Process(context.Background(), ProcessRequest{
		RawfileID:   rawID,
		Manipulator: "nothing",
	}); err != nil {
		t.Fatalf("Process() error = %v", err)
	}

	infos, err := fx.svc.SelectTOAs(context.Background(),
		Selection{Pulsar: "J0437-4715"}, PolicyStrict)
	if err != nil {
		t.Fatalf("SelectTOAs() error = %v", err)
	}
	if len(infos) != 2 {
		t.Fatalf("selected %d TOAs, want 2", len(infos))
	}

	id, err := fx.svc.CreateTimfile(context.Background(), infos, "initial set", "toa create -p J0437-4715")
	if err != nil {
		t.Fatalf("CreateTimfile() error = %v", err)
	}
	return fx, id, infos
}

func TestCreateTimfile(t *testing.T) {
	t.Run("requires a comment", func(t *testing.T) {
		fx := newFixture(t)
		_, err := fx.svc.CreateTimfile(context.Background(),
			[]database.TOAInfo{info(infoSpec{toaID: 1})}, "  ", "")
		if !errors.Is(err, ErrBadInput) {
			t.Errorf("CreateTimfile() error = %v, want ErrBadInput", err)
		}
	})

	t.Run("refuses an empty selection", func(t *testing.T) {
		fx := newFixture(t)
		_, err := fx.svc.CreateTimfile(context.Background(), nil, "empty", "")
		if !errors.Is(err, ErrBadInput) {
			t.Errorf("CreateTimfile() error = %v, want ErrBadInput", err)
		}
	})

	t.Run("records the membership", func(t *testing.T) {
		fx, id, infos := timedFixture(t)

		ids, err := fx.store.GetTimfileTOAIDs(context.Background(), id)
		if err != nil {
			t.Fatalf("GetTimfileTOAIDs() error = %v", err)
		}
		if len(ids) != len(infos) {
			t.Errorf("membership = %d TOAs, want %d", len(ids), len(infos))
		}

		tf, err := fx.store.GetTimfileByID(context.Background(), id)
		if err != nil {
			t.Fatalf("GetTimfileByID() error = %v", err)
		}
		if tf.Comments != "initial set" {
			t.Errorf("Comments = %q, want initial set", tf.Comments)
		}
		if tf.InputArgs != "toa create -p J0437-4715" {
			t.Errorf("InputArgs = %q", tf.InputArgs)
		}
	})
}

func TestWriteTimfile(t *testing.T) {
	t.Run("tempo2 style", func(t *testing.T) {
		fx, id, infos := timedFixture(t)

		var b strings.Builder
		if err := fx.svc.WriteTimfile(context.Background(), id, &b, "tempo2", nil); err != nil {
			t.Fatalf("WriteTimfile() error = %v", err)
		}
		out := b.String()

		if !strings.HasPrefix(out, "# initial set\n") {
			t.Errorf("output does not open with the comment header:\n%s", out)
		}
		if !strings.Contains(out, "written by operator") {
			t.Errorf("output missing the creating user:\n%s", out)
		}
		if !strings.Contains(out, "FORMAT 1\n") {
			t.Errorf("output missing the tempo2 format line:\n%s", out)
		}
		if !strings.Contains(out, infos[0].RawfileMD5) {
			t.Errorf("output missing the observation token %s:\n%s", infos[0].RawfileMD5, out)
		}
		if !strings.Contains(out, "-nbin 1024") {
			t.Errorf("output missing the nbin flag:\n%s", out)
		}
	})

	t.Run("princeton style", func(t *testing.T) {
		fx, id, _ := timedFixture(t)

		var b strings.Builder
		if err := fx.svc.WriteTimfile(context.Background(), id, &b, "princeton", nil); err != nil {
			t.Fatalf("WriteTimfile() error = %v", err)
		}
		if !strings.Contains(b.String(), "55000.") {
			t.Errorf("output missing the MJD column:\n%s", b.String())
		}
	})

	t.Run("user flags replace the stored ones", func(t *testing.T) {
		fx, id, _ := timedFixture(t)

		flags := []toa.Flag{
			{Name: "be", Template: "{obssystem}"},
			{Name: "missing", Template: "{no_such_field}"},
		}
		var b strings.Builder
		if err := fx.svc.WriteTimfile(context.Background(), id, &b, "tempo2", flags); err != nil {
			t.Fatalf("WriteTimfile() error = %v", err)
		}
		out := b.String()
		if !strings.Contains(out, "-be PKS_DFB4") {
			t.Errorf("output missing resolved flag:\n%s", out)
		}
		if !strings.Contains(out, "-missing *") {
			t.Errorf("output missing the marker for an unresolved field:\n%s", out)
		}
		if strings.Contains(out, "-nbin") {
			t.Errorf("stored flags not replaced:\n%s", out)
		}
	})

	t.Run("unknown style is rejected", func(t *testing.T) {
		fx, id, _ := timedFixture(t)

		var b strings.Builder
		err := fx.svc.WriteTimfile(context.Background(), id, &b, "parkes", nil)
		if !errors.Is(err, ErrUnrecognised) {
			t.Errorf("WriteTimfile() error = %v, want ErrUnrecognised", err)
		}
	})

	t.Run("unknown id is rejected", func(t *testing.T) {
		fx := newFixture(t)

		var b strings.Builder
		err := fx.svc.WriteTimfile(context.Background(), 999, &b, "tempo2", nil)
		if !errors.Is(err, ErrUnrecognised) {
			t.Errorf("WriteTimfile() error = %v, want ErrUnrecognised", err)
		}
	})
}

func TestEditTimfile(t *testing.T) {
	t.Run("removes a member", func(t *testing.T) {
		fx, id, infos := timedFixture(t)

		if err := fx.svc.EditTimfile(context.Background(), id,
			nil, []int64{infos[0].TOA.ID}, ""); err != nil {
			t.Fatalf("EditTimfile() error = %v", err)
		}
		ids, err := fx.store.GetTimfileTOAIDs(context.Background(), id)
		if err != nil {
			t.Fatalf("GetTimfileTOAIDs() error = %v", err)
		}
		if len(ids) != 1 || ids[0] != infos[1].TOA.ID {
			t.Errorf("membership = %v, want only %d", ids, infos[1].TOA.ID)
		}
	})

	t.Run("replaces the comment", func(t *testing.T) {
		fx, id, _ := timedFixture(t)

		if err := fx.svc.EditTimfile(context.Background(), id, nil, nil, "curated set"); err != nil {
			t.Fatalf("EditTimfile() error = %v", err)
		}
		tf, err := fx.store.GetTimfileByID(context.Background(), id)
		if err != nil {
			t.Fatalf("GetTimfileByID() error = %v", err)
		}
		if tf.Comments != "curated set" {
			t.Errorf("Comments = %q, want curated set", tf.Comments)
		}
	})

	t.Run("refuses to empty the timfile", func(t *testing.T) {
		fx, id, infos := timedFixture(t)

		err := fx.svc.EditTimfile(context.Background(), id,
			nil, []int64{infos[0].TOA.ID, infos[1].TOA.ID}, "")
		if !errors.Is(err, ErrBadInput) {
			t.Errorf("EditTimfile() error = %v, want ErrBadInput", err)
		}
	})

	t.Run("refuses unknown additions", func(t *testing.T) {
		fx, id, _ := timedFixture(t)

		err := fx.svc.EditTimfile(context.Background(), id, []int64{999}, nil, "")
		if !errors.Is(err, ErrUnrecognised) {
			t.Errorf("EditTimfile() error = %v, want ErrUnrecognised", err)
		}
	})

	t.Run("re-verifies coherence over the result", func(t *testing.T) {
		fx, id, _ := timedFixture(t)

		// A second run over the same raw file; mixing its TOAs into the
		// timfile breaks the one-process-per-rawfile rule.
		res, err := fx.svc.Process(context.Background(), ProcessRequest{
			RawfileID:   1,
			Manipulator: "nothing",
		})
		if err != nil {
			t.Fatalf("second Process() error = %v", err)
		}

		err = fx.svc.EditTimfile(context.Background(), id, res.TOAIDs[:1], nil, "")
		if !errors.Is(err, ErrConflictingTOAs) {
			t.Errorf("EditTimfile() error = %v, want ErrConflictingTOAs", err)
		}
	})

	t.Run("unknown timfile is rejected", func(t *testing.T) {
		fx := newFixture(t)

		err := fx.svc.EditTimfile(context.Background(), 999, nil, nil, "")
		if !errors.Is(err, ErrUnrecognised) {
			t.Errorf("EditTimfile() error = %v, want ErrUnrecognised", err)
		}
	})
}
