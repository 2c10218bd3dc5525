package manip

import (
	"context"
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"toaster/internal/testutil"
)

func TestRegistry(t *testing.T) {
	t.Run("names are sorted", func(t *testing.T) {
		want := []string{"nothing", "scrunch"}
		if got := Names(); !reflect.DeepEqual(got, want) {
			t.Errorf("Names() = %v, want %v", got, want)
		}
	})

	t.Run("unknown name errors", func(t *testing.T) {
		if _, err := Get("fold"); err == nil {
			t.Error("Get(fold) error = nil, want unknown manipulator error")
		}
	})
}

func TestArgString(t *testing.T) {
	m, err := Get("scrunch")
	if err != nil {
		t.Fatalf("Get(scrunch) error = %v", err)
	}

	t.Run("sorted deterministic rendering", func(t *testing.T) {
		got, err := m.ArgString(map[string]string{"tsub": "60", "nchan": "16"})
		if err != nil {
			t.Fatalf("ArgString() error = %v", err)
		}
		if got != "nchan=16 tsub=60" {
			t.Errorf("ArgString() = %q, want %q", got, "nchan=16 tsub=60")
		}
	})

	t.Run("empty kwargs render empty", func(t *testing.T) {
		got, err := m.ArgString(nil)
		if err != nil {
			t.Fatalf("ArgString() error = %v", err)
		}
		if got != "" {
			t.Errorf("ArgString() = %q, want empty", got)
		}
	})

	t.Run("unknown kwarg errors", func(t *testing.T) {
		if _, err := m.ArgString(map[string]string{"npol": "1"}); err == nil {
			t.Error("ArgString() error = nil, want unknown kwarg error")
		}
	})
}

func TestScrunch(t *testing.T) {
	writeInput := func(t *testing.T) (string, string) {
		t.Helper()
		dir := t.TempDir()
		in := filepath.Join(dir, "in.ar")
		if err := os.WriteFile(in, []byte("archive bytes"), 0660); err != nil {
			t.Fatalf("writing input: %v", err)
		}
		return in, filepath.Join(dir, "out.ar")
	}

	t.Run("copies then reduces in place", func(t *testing.T) {
		m, _ := Get("scrunch")
		runner := testutil.NewScriptRunner()
		runner.HandleOK("pam")
		in, out := writeInput(t)

		err := m.Run(context.Background(), runner, []string{in},
			out, map[string]string{"nchan": "16", "nbin": "256", "tsub": "60"})
		if err != nil {
			t.Fatalf("Run() error = %v", err)
		}

		data, err := os.ReadFile(out)
		if err != nil {
			t.Fatalf("reading output: %v", err)
		}
		if string(data) != "archive bytes" {
			t.Errorf("output = %q, want the copied input", data)
		}

		calls := runner.CallsTo("pam")
		if len(calls) != 1 {
			t.Fatalf("scruncher invoked %d times, want 1", len(calls))
		}
		// Flags appear in fixed order, followed by the output path.
		want := []string{"-m", "--settsub", "60", "--setnchn", "16", "--setnbin", "256", out}
		if !reflect.DeepEqual(calls[0].Args, want) {
			t.Errorf("scruncher args = %v, want %v", calls[0].Args, want)
		}
	})

	t.Run("requires at least one kwarg", func(t *testing.T) {
		m, _ := Get("scrunch")
		in, out := writeInput(t)
		err := m.Run(context.Background(), testutil.NewScriptRunner(), []string{in}, out, nil)
		if err == nil {
			t.Error("Run() error = nil, want missing kwarg error")
		}
	})

	t.Run("nsub and tsub are mutually exclusive", func(t *testing.T) {
		m, _ := Get("scrunch")
		in, out := writeInput(t)
		err := m.Run(context.Background(), testutil.NewScriptRunner(), []string{in},
			out, map[string]string{"nsub": "1", "tsub": "60"})
		if err == nil {
			t.Error("Run() error = nil, want mutual exclusion error")
		}
	})

	t.Run("requires exactly one input", func(t *testing.T) {
		m, _ := Get("scrunch")
		_, out := writeInput(t)
		err := m.Run(context.Background(), testutil.NewScriptRunner(), nil,
			out, map[string]string{"nchan": "16"})
		if err == nil {
			t.Error("Run() error = nil, want input count error")
		}
	})
}

func TestNothing(t *testing.T) {
	t.Run("copies without invoking tools", func(t *testing.T) {
		m, _ := Get("nothing")
		runner := testutil.NewScriptRunner()

		dir := t.TempDir()
		in := filepath.Join(dir, "in.ar")
		out := filepath.Join(dir, "out.ar")
		if err := os.WriteFile(in, []byte("archive bytes"), 0660); err != nil {
			t.Fatalf("writing input: %v", err)
		}

		if err := m.Run(context.Background(), runner, []string{in}, out, nil); err != nil {
			t.Fatalf("Run() error = %v", err)
		}
		data, err := os.ReadFile(out)
		if err != nil {
			t.Fatalf("reading output: %v", err)
		}
		if string(data) != "archive bytes" {
			t.Errorf("output = %q, want the copied input", data)
		}
		if calls := runner.Calls(); len(calls) != 0 {
			t.Errorf("tools invoked %d times, want 0", len(calls))
		}
	})

	t.Run("rejects kwargs", func(t *testing.T) {
		m, _ := Get("nothing")
		err := m.Run(context.Background(), testutil.NewScriptRunner(),
			[]string{"in.ar"}, "out.ar", map[string]string{"nchan": "16"})
		if err == nil {
			t.Error("Run() error = nil, want kwarg rejection")
		}
	})
}
