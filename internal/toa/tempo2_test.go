package toa

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestParseTempo2Line(t *testing.T) {
	t.Run("full line with flags and comment", func(t *testing.T) {
		line := "obs1.ar 1369.000000 55000.5123456789 1.235 7" +
			" -gof 1.05 -bw 256.0 -nbin 1024 -rcvr MULTI # first night"
		rec, err := ParseTempo2Line(line)
		if err != nil {
			t.Fatalf("ParseTempo2Line() error = %v", err)
		}
		if rec.File != "obs1.ar" {
			t.Errorf("File = %q, want obs1.ar", rec.File)
		}
		if rec.Freq != 1369.0 {
			t.Errorf("Freq = %v, want 1369.0", rec.Freq)
		}
		if rec.IMJD != 55000 || rec.FMJD != 0.5123456789 {
			t.Errorf("MJD = %d + %v, want 55000 + 0.5123456789", rec.IMJD, rec.FMJD)
		}
		if rec.ErrorUS != 1.235 {
			t.Errorf("ErrorUS = %v, want 1.235", rec.ErrorUS)
		}
		if rec.Telescope != "7" {
			t.Errorf("Telescope = %q, want 7", rec.Telescope)
		}
		if rec.Comment != "first night" {
			t.Errorf("Comment = %q, want first night", rec.Comment)
		}
		if rec.Bad {
			t.Error("Bad = true for a clean line")
		}

		// gof aliases to the canonical name, typed float.
		if v, ok := rec.Flags["goodness_of_fit"].(float64); !ok || v != 1.05 {
			t.Errorf("goodness_of_fit = %v, want 1.05", rec.Flags["goodness_of_fit"])
		}
		if v, ok := rec.Flags["nbin"].(int64); !ok || v != 1024 {
			t.Errorf("nbin = %v, want int64 1024", rec.Flags["nbin"])
		}
		// Unknown flags stay strings.
		if v, ok := rec.Flags["rcvr"].(string); !ok || v != "MULTI" {
			t.Errorf("rcvr = %v, want string MULTI", rec.Flags["rcvr"])
		}
	})

	t.Run("bad markers", func(t *testing.T) {
		for _, line := range []string{
			"C obs1.ar 1369.0 55000.5 1.2 7",
			"# obs1.ar 1369.0 55000.5 1.2 7",
		} {
			rec, err := ParseTempo2Line(line)
			if err != nil {
				t.Fatalf("ParseTempo2Line(%q) error = %v", line, err)
			}
			if rec == nil || !rec.Bad {
				t.Errorf("ParseTempo2Line(%q) = %+v, want bad record", line, rec)
			}
		}
	})

	t.Run("directives are skipped", func(t *testing.T) {
		for _, line := range []string{
			"FORMAT 1", "MODE 1", "JUMP", "SKIP", "NOSKIP",
			"INCLUDE other.tim", "EFAC 1.1", "EQUAD 0.5", "TIME 0.3", "PHASE 1",
			"", "   ",
		} {
			rec, err := ParseTempo2Line(line)
			if err != nil {
				t.Fatalf("ParseTempo2Line(%q) error = %v", line, err)
			}
			if rec != nil {
				t.Errorf("ParseTempo2Line(%q) = %+v, want nil", line, rec)
			}
		}
	})

	t.Run("malformed lines error", func(t *testing.T) {
		for _, line := range []string{
			"obs1.ar notafreq 55000.5 1.2 7",
			"obs1.ar 1369.0 nomjd 1.2 7",
			"obs1.ar 1369.0 55000.5 1.2 7 stray",
			"obs1.ar 1369.0 55000.5 1.2 7 -bw",
			"obs1.ar 1369.0 55000.5 1.2 7 -bw wide",
		} {
			if _, err := ParseTempo2Line(line); err == nil {
				t.Errorf("ParseTempo2Line(%q) error = nil, want error", line)
			}
		}
	})
}

func TestFormatTempo2(t *testing.T) {
	recs := []Record{
		{
			File: "a1b2c3", Freq: 1369, IMJD: 55000, FMJD: 0.5123456789,
			ErrorUS: 1.235, Telescope: "7",
			Flags: map[string]any{"nbin": int64(1024), "bw": 256.0},
		},
		{
			File: "d4e5f6", Freq: 3100, IMJD: 55001, FMJD: 0,
			ErrorUS: 2.5, Telescope: "7", Bad: true,
		},
	}
	out := FormatTempo2(recs)

	lines := strings.Split(strings.TrimRight(out, "\n"), "\n")
	if len(lines) != 3 {
		t.Fatalf("got %d lines, want 3:\n%s", len(lines), out)
	}
	if lines[0] != "FORMAT 1" {
		t.Errorf("header = %q, want FORMAT 1", lines[0])
	}
	// Flags are emitted sorted by name.
	if lines[1] != "a1b2c3 1369 55000.5123456789 1.235 7 -bw 256 -nbin 1024" {
		t.Errorf("line 1 = %q", lines[1])
	}
	if !strings.HasPrefix(lines[2], "C ") {
		t.Errorf("bad record not marked: %q", lines[2])
	}
}

func TestTempo2RoundTrip(t *testing.T) {
	in := []Record{{
		File: "obs1.ar", Freq: 1369.25, IMJD: 59321, FMJD: 0.0078125,
		ErrorUS: 0.84, Telescope: "7",
		Flags:   map[string]any{"goodness_of_fit": 1.12, "rcvr": "MULTI"},
		Comment: "windy night",
	}}

	parsed, err := ParseTempo2(FormatTempo2(in))
	if err != nil {
		t.Fatalf("ParseTempo2() error = %v", err)
	}
	if len(parsed) != 1 {
		t.Fatalf("got %d records, want 1", len(parsed))
	}
	got := parsed[0]
	if got.File != in[0].File || got.Freq != in[0].Freq ||
		got.IMJD != in[0].IMJD || got.FMJD != in[0].FMJD ||
		got.ErrorUS != in[0].ErrorUS || got.Telescope != in[0].Telescope {
		t.Errorf("round trip changed the record: %+v", got)
	}
	if got.Comment != "windy night" {
		t.Errorf("Comment = %q, want windy night", got.Comment)
	}
	if v := got.Flags["goodness_of_fit"]; v != 1.12 {
		t.Errorf("goodness_of_fit = %v, want 1.12", v)
	}
}

func TestReadTimfile(t *testing.T) {
	dir := t.TempDir()

	inner := "obs2.ar 3100.0 55001.25 2.5 7\n"
	if err := os.WriteFile(filepath.Join(dir, "inner.tim"), []byte(inner), 0660); err != nil {
		t.Fatalf("writing inner timfile: %v", err)
	}
	outer := "FORMAT 1\nobs1.ar 1369.0 55000.5 1.2 7\nINCLUDE inner.tim\n"
	outerPath := filepath.Join(dir, "outer.tim")
	if err := os.WriteFile(outerPath, []byte(outer), 0660); err != nil {
		t.Fatalf("writing outer timfile: %v", err)
	}

	recs, err := ReadTimfile(outerPath)
	if err != nil {
		t.Fatalf("ReadTimfile() error = %v", err)
	}
	if len(recs) != 2 {
		t.Fatalf("got %d records, want 2", len(recs))
	}
	if recs[1].File != "obs2.ar" {
		t.Errorf("included record = %q, want obs2.ar", recs[1].File)
	}

	t.Run("missing include errors", func(t *testing.T) {
		path := filepath.Join(dir, "broken.tim")
		if err := os.WriteFile(path, []byte("INCLUDE nowhere.tim\n"), 0660); err != nil {
			t.Fatalf("writing timfile: %v", err)
		}
		if _, err := ReadTimfile(path); err == nil {
			t.Error("ReadTimfile() error = nil, want missing include error")
		}
	})
}
