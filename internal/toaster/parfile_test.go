package toaster

import (
	"errors"
	"strings"
	"testing"
)

func TestParseParfile(t *testing.T) {
	t.Run("parses keys values and aliases", func(t *testing.T) {
		input := strings.Join([]string{
			"PSRJ J0437-4715",
			"F0 173.6879458121843 1 1.7e-13",
			"",
			"# fitted 2024-05-12",
			"DM 2.64476",
			"BINARY T2",
			"E 1.9180e-05",
		}, "\n")

		params, err := ParseParfile(strings.NewReader(input))
		if err != nil {
			t.Fatalf("ParseParfile() error = %v", err)
		}

		byName := make(map[string]string)
		for _, p := range params {
			byName[p.Name] = p.Value
		}
		if byName["psrj"] != "J0437-4715" {
			t.Errorf("psrj = %q, want J0437-4715", byName["psrj"])
		}
		if byName["f0"] != "173.6879458121843" {
			t.Errorf("f0 = %q; only the first field is the value", byName["f0"])
		}
		if byName["binary_model"] != "T2" {
			t.Errorf("binary alias not canonicalised: %q", byName["binary_model"])
		}
		if byName["ecc"] != "1.9180e-05" {
			t.Errorf("e alias not canonicalised: %q", byName["ecc"])
		}
		if _, ok := byName["binary"]; ok {
			t.Error("raw binary key retained alongside its alias")
		}
	})

	t.Run("coerces values by shape", func(t *testing.T) {
		input := strings.Join([]string{
			"PSRJ J0437-4715",
			"NTOA 1024",
			"F0 173.6879458121843",
			"SINI 6.788D-01",
		}, "\n")

		params, err := ParseParfile(strings.NewReader(input))
		if err != nil {
			t.Fatalf("ParseParfile() error = %v", err)
		}
		typed := make(map[string]any)
		for _, p := range params {
			typed[p.Name] = p.Typed
		}
		if v, ok := typed["psrj"].(string); !ok || v != "J0437-4715" {
			t.Errorf("psrj typed = %#v, want the raw string", typed["psrj"])
		}
		if v, ok := typed["ntoa"].(int64); !ok || v != 1024 {
			t.Errorf("ntoa typed = %#v, want int64 1024", typed["ntoa"])
		}
		if v, ok := typed["f0"].(float64); !ok || v != 173.6879458121843 {
			t.Errorf("f0 typed = %#v, want float64", typed["f0"])
		}
		if v, ok := typed["sini"].(float64); !ok || v != 0.6788 {
			t.Errorf("sini typed = %#v, want the D exponent read as float64", typed["sini"])
		}
	})

	t.Run("accepts fortran exponents", func(t *testing.T) {
		params, err := ParseParfile(strings.NewReader("PSRJ J0437-4715\nSINI 0.6788D0\n"))
		if err != nil {
			t.Fatalf("ParseParfile() error = %v", err)
		}
		var found bool
		for _, p := range params {
			if p.Name == "sini" {
				found = true
			}
		}
		if !found {
			t.Error("numeric SINI with a D exponent was dropped")
		}
	})

	t.Run("drops a non-numeric sini", func(t *testing.T) {
		params, err := ParseParfile(strings.NewReader("PSRJ J0437-4715\nSINI KIN\n"))
		if err != nil {
			t.Fatalf("ParseParfile() error = %v", err)
		}
		for _, p := range params {
			if p.Name == "sini" {
				t.Error("non-numeric SINI retained")
			}
		}
	})

	t.Run("rejects a line without a value", func(t *testing.T) {
		_, err := ParseParfile(strings.NewReader("PSRJ J0437-4715\nUNITS\n"))
		if !errors.Is(err, ErrBadInput) {
			t.Errorf("ParseParfile() error = %v, want ErrBadInput", err)
		}
	})

	t.Run("rejects an empty file", func(t *testing.T) {
		_, err := ParseParfile(strings.NewReader("# only comments\n\n"))
		if !errors.Is(err, ErrBadInput) {
			t.Errorf("ParseParfile() error = %v, want ErrBadInput", err)
		}
	})
}

func TestPulsarNameFromParams(t *testing.T) {
	tests := []struct {
		name   string
		params []ParfileParam
		want   string
		ok     bool
	}{
		{
			name:   "psrj preferred",
			params: []ParfileParam{{Name: "psrb", Value: "B0437-47"}, {Name: "psrj", Value: "J0437-4715"}},
			want:   "J0437-4715",
			ok:     true,
		},
		{
			name:   "psrb before psr",
			params: []ParfileParam{{Name: "psr", Value: "0437-4715"}, {Name: "psrb", Value: "B0437-47"}},
			want:   "B0437-47",
			ok:     true,
		},
		{
			name:   "psr as last resort",
			params: []ParfileParam{{Name: "psr", Value: "0437-4715"}},
			want:   "0437-4715",
			ok:     true,
		},
		{
			name:   "no name at all",
			params: []ParfileParam{{Name: "f0", Value: "173.68"}},
			ok:     false,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := pulsarNameFromParams(tt.params)
			if tt.ok {
				if err != nil {
					t.Fatalf("pulsarNameFromParams() error = %v", err)
				}
				if got != tt.want {
					t.Errorf("pulsarNameFromParams() = %q, want %q", got, tt.want)
				}
				return
			}
			if !errors.Is(err, ErrBadInput) {
				t.Errorf("pulsarNameFromParams() error = %v, want ErrBadInput", err)
			}
		})
	}
}
