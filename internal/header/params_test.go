package header

import (
	"context"
	"testing"

	"toaster/internal/testutil"
)

func scriptedParams(t *testing.T, values map[string]string) (*Params, *testutil.ScriptRunner) {
	t.Helper()
	runner := testutil.NewScriptRunner()
	runner.Handle("vap", testutil.HeaderTool(map[string]map[string]string{
		"obs1.ar": values,
	}))
	return New("obs1.ar", runner, nil), runner
}

func TestParams(t *testing.T) {
	ctx := context.Background()

	t.Run("coerces by key type", func(t *testing.T) {
		p, _ := scriptedParams(t, map[string]string{
			"freq": "1369.0", "nbin": "1024", "telescop": "Parkes",
		})

		f, ok, err := p.GetFloat(ctx, "freq")
		if err != nil || !ok || f != 1369.0 {
			t.Errorf("GetFloat(freq) = (%v, %v, %v), want (1369.0, true, nil)", f, ok, err)
		}
		n, ok, err := p.GetInt(ctx, "nbin")
		if err != nil || !ok || n != 1024 {
			t.Errorf("GetInt(nbin) = (%v, %v, %v), want (1024, true, nil)", n, ok, err)
		}
		s, err := p.GetString(ctx, "telescop")
		if err != nil || s != "Parkes" {
			t.Errorf("GetString(telescop) = (%q, %v), want (Parkes, nil)", s, err)
		}
	})

	t.Run("keys are case-insensitive", func(t *testing.T) {
		p, _ := scriptedParams(t, map[string]string{"nbin": "1024"})
		n, ok, err := p.GetInt(ctx, "NBIN")
		if err != nil || !ok || n != 1024 {
			t.Errorf("GetInt(NBIN) = (%v, %v, %v), want (1024, true, nil)", n, ok, err)
		}
	})

	t.Run("undefined markers become nil with a warning", func(t *testing.T) {
		for _, marker := range []string{"*", "UNDEF"} {
			log := &warnCounter{}
			runner := testutil.NewScriptRunner()
			runner.Handle("vap", testutil.HeaderTool(map[string]map[string]string{
				"obs1.ar": {"rm": marker},
			}))
			p := New("obs1.ar", runner, log)

			_, ok, err := p.GetFloat(ctx, "rm")
			if err != nil {
				t.Fatalf("GetFloat(rm) error = %v", err)
			}
			if ok {
				t.Errorf("marker %q reported as defined", marker)
			}
			if log.count != 1 {
				t.Errorf("marker %q produced %d warnings, want 1", marker, log.count)
			}
		}
	})

	t.Run("INVALID is an error", func(t *testing.T) {
		p, _ := scriptedParams(t, map[string]string{"freq": "INVALID"})
		if _, _, err := p.GetFloat(ctx, "freq"); err == nil {
			t.Error("GetFloat(freq) error = nil, want INVALID error")
		}
	})

	t.Run("undefined string key is an error", func(t *testing.T) {
		p, _ := scriptedParams(t, map[string]string{"telescop": "*"})
		if _, err := p.GetString(ctx, "telescop"); err == nil {
			t.Error("GetString(telescop) error = nil, want undefined error")
		}
	})

	t.Run("batched fetch reads once and memoises", func(t *testing.T) {
		p, runner := scriptedParams(t, map[string]string{
			"freq": "1369.0", "bw": "256.0", "nbin": "1024",
		})

		if err := p.Fetch(ctx, "freq", "bw", "nbin"); err != nil {
			t.Fatalf("Fetch() error = %v", err)
		}
		if _, _, err := p.GetFloat(ctx, "freq"); err != nil {
			t.Fatalf("GetFloat(freq) error = %v", err)
		}
		if _, _, err := p.GetFloat(ctx, "bw"); err != nil {
			t.Fatalf("GetFloat(bw) error = %v", err)
		}

		if calls := runner.CallsTo("vap"); len(calls) != 1 {
			t.Errorf("header reader invoked %d times, want 1", len(calls))
		}
	})

	t.Run("fetch requests only uncached keys", func(t *testing.T) {
		p, runner := scriptedParams(t, map[string]string{
			"freq": "1369.0", "bw": "256.0",
		})
		if err := p.Fetch(ctx, "freq"); err != nil {
			t.Fatalf("Fetch(freq) error = %v", err)
		}
		if err := p.Fetch(ctx, "freq", "bw"); err != nil {
			t.Fatalf("Fetch(freq, bw) error = %v", err)
		}

		calls := runner.CallsTo("vap")
		if len(calls) != 2 {
			t.Fatalf("header reader invoked %d times, want 2", len(calls))
		}
		if calls[1].Args[2] != "bw" {
			t.Errorf("second fetch requested %q, want only bw", calls[1].Args[2])
		}
	})

	t.Run("unparsable numeric value is an error", func(t *testing.T) {
		p, _ := scriptedParams(t, map[string]string{"nbin": "lots"})
		if _, _, err := p.GetInt(ctx, "nbin"); err == nil {
			t.Error("GetInt(nbin) error = nil, want parse error")
		}
	})
}

type warnCounter struct{ count int }

func (w *warnCounter) Warn(string, ...any) { w.count++ }
