// Package toa parses and formats time-of-arrival records in the tempo2
// and princeton wire formats.
package toa

import (
	"fmt"
	"strconv"
)

// Record is one parsed TOA line.
type Record struct {
	File      string
	Freq      float64 // MHz
	IMJD      int64
	FMJD      float64 // fractional part, in [0, 1)
	ErrorUS   float64
	Telescope string // site code as written

	// Flags carries typed per-TOA flags (-flag value pairs). Values are
	// float64, int64, or string per the flag type table.
	Flags map[string]any

	// Comment is trailing "# ..." text captured verbatim.
	Comment string

	// Bad marks lines prefixed with "#" or "C ". The record is still
	// parsed so callers can inspect it.
	Bad bool
}

// flagKind mirrors the typed subset of flags.
var flagTypes = map[string]byte{
	"bw":              'f',
	"length":          'f',
	"nbin":            'i',
	"goodness_of_fit": 'f',
}

// flagAliases maps alternative flag spellings to canonical names.
var flagAliases = map[string]string{
	"bandwidth": "bw",
	"gof":       "goodness_of_fit",
}

// coerceFlag types a raw flag value. Unknown flags stay strings.
func coerceFlag(name, raw string) (string, any, error) {
	if canonical, ok := flagAliases[name]; ok {
		name = canonical
	}
	switch flagTypes[name] {
	case 'f':
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return "", nil, fmt.Errorf("flag -%s: parsing %q as float: %w", name, raw, err)
		}
		return name, v, nil
	case 'i':
		v, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return "", nil, fmt.Errorf("flag -%s: parsing %q as int: %w", name, raw, err)
		}
		return name, v, nil
	default:
		return name, raw, nil
	}
}

// formatFlagValue renders a typed flag value back to its wire form.
func formatFlagValue(v any) string {
	switch x := v.(type) {
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case int64:
		return strconv.FormatInt(x, 10)
	default:
		return fmt.Sprintf("%v", x)
	}
}

// splitMJD parses "<imjd>.<fmjd>" keeping the integer and fractional
// parts separate so no precision is lost on large MJDs.
func splitMJD(tok string) (int64, float64, error) {
	for i := 0; i < len(tok); i++ {
		if tok[i] == '.' {
			imjd, err := strconv.ParseInt(tok[:i], 10, 64)
			if err != nil {
				return 0, 0, fmt.Errorf("parsing integer MJD from %q: %w", tok, err)
			}
			fmjd, err := strconv.ParseFloat("0"+tok[i:], 64)
			if err != nil {
				return 0, 0, fmt.Errorf("parsing fractional MJD from %q: %w", tok, err)
			}
			return imjd, fmjd, nil
		}
	}
	imjd, err := strconv.ParseInt(tok, 10, 64)
	if err != nil {
		return 0, 0, fmt.Errorf("parsing MJD from %q: %w", tok, err)
	}
	return imjd, 0, nil
}

// formatMJD renders the split MJD back to "<imjd>.<fmjd>" without
// losing precision on the fractional part.
func formatMJD(imjd int64, fmjd float64) string {
	frac := strconv.FormatFloat(fmjd, 'f', -1, 64)
	if len(frac) >= 2 && frac[:2] == "0." {
		frac = frac[2:]
	} else {
		frac = "0"
	}
	return strconv.FormatInt(imjd, 10) + "." + frac
}
