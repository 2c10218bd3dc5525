package toa

import (
	"strings"
	"testing"
)

func TestFormatPrincetonLine(t *testing.T) {
	rec := Record{
		File: "a1b2c3d4", Freq: 1369.125, IMJD: 55000, FMJD: 0.5123456789,
		ErrorUS: 1.235, Telescope: "7",
	}
	line := FormatPrincetonLine(&rec)

	if len(line) < 53 {
		t.Fatalf("line has %d columns, want at least 53: %q", len(line), line)
	}
	if line[0:1] != "7" {
		t.Errorf("site column = %q, want 7", line[0:1])
	}
	if got := strings.TrimSpace(line[1:15]); got != "a1b2c3d4" {
		t.Errorf("id columns = %q, want a1b2c3d4", got)
	}
	if line[29] != '.' {
		t.Errorf("decimal point at column %d, want 30", strings.IndexByte(line, '.')+1)
	}
	if got := strings.TrimSpace(line[44:53]); got != "1.235" {
		t.Errorf("uncertainty columns = %q, want 1.235", got)
	}

	t.Run("output parses back", func(t *testing.T) {
		rec2, err := ParsePrincetonLine(line)
		if err != nil {
			t.Fatalf("ParsePrincetonLine() error = %v", err)
		}
		if rec2.ErrorUS != rec.ErrorUS {
			t.Errorf("ErrorUS = %v, want %v", rec2.ErrorUS, rec.ErrorUS)
		}
	})

	t.Run("long names are truncated", func(t *testing.T) {
		long := rec
		long.File = "averylongobservationid"
		out := FormatPrincetonLine(&long)
		if got := strings.TrimSpace(out[1:15]); got != "averylongobser" {
			t.Errorf("id columns = %q, want the first 14 characters", got)
		}
	})
}

func TestPrincetonRoundTrip(t *testing.T) {
	in := []Record{
		{File: "obs1", Freq: 1369.125, IMJD: 55000, FMJD: 0.5123456789,
			ErrorUS: 1.235, Telescope: "7"},
		{File: "obs2", Freq: 3100.0, IMJD: 55001, FMJD: 0.25,
			ErrorUS: 2.5, Telescope: "i"},
	}

	parsed, err := ParsePrinceton(FormatPrinceton(in))
	if err != nil {
		t.Fatalf("ParsePrinceton() error = %v", err)
	}
	if len(parsed) != 2 {
		t.Fatalf("got %d records, want 2", len(parsed))
	}
	for i := range in {
		if parsed[i].File != in[i].File {
			t.Errorf("record %d File = %q, want %q", i, parsed[i].File, in[i].File)
		}
		if parsed[i].Telescope != in[i].Telescope {
			t.Errorf("record %d Telescope = %q, want %q", i, parsed[i].Telescope, in[i].Telescope)
		}
		if parsed[i].IMJD != in[i].IMJD || parsed[i].FMJD != in[i].FMJD {
			t.Errorf("record %d MJD = %d + %v, want %d + %v",
				i, parsed[i].IMJD, parsed[i].FMJD, in[i].IMJD, in[i].FMJD)
		}
		if parsed[i].Freq != in[i].Freq {
			t.Errorf("record %d Freq = %v, want %v", i, parsed[i].Freq, in[i].Freq)
		}
	}
}

func TestParsePrincetonLine(t *testing.T) {
	t.Run("short lines error", func(t *testing.T) {
		if _, err := ParsePrincetonLine("7obs1  1369.0"); err == nil {
			t.Error("ParsePrincetonLine() error = nil, want too-short error")
		}
	})

	t.Run("blank lines are skipped", func(t *testing.T) {
		rec, err := ParsePrincetonLine("   ")
		if err != nil {
			t.Fatalf("ParsePrincetonLine() error = %v", err)
		}
		if rec != nil {
			t.Errorf("ParsePrincetonLine() = %+v, want nil", rec)
		}
	})
}
