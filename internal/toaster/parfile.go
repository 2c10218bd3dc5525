package toaster

import (
	"bufio"
	"fmt"
	"io"
	"regexp"
	"strconv"
	"strings"
)

// ParfileParam is one parsed key/value pair, in file order. Typed
// carries the value coerced by its lexical shape: int64, float64
// (D exponents read as E), or the raw string.
type ParfileParam struct {
	Name  string
	Value string
	Typed any
}

// parfileAliases maps alternative parameter spellings to canonical
// names.
var parfileAliases = map[string]string{
	"binary": "binary_model",
	"e":      "ecc",
}

var (
	intPattern = regexp.MustCompile(`^[-+]?\d+$`)
	// Fortran-style D exponents are accepted alongside E.
	floatPattern = regexp.MustCompile(`^[-+]?(\d+\.?\d*|\.\d+)([eEdD][-+]?\d+)?$`)
)

// ParseParfile parses the line-oriented ephemeris format: one
// "KEY value..." pair per non-empty, non-comment line. Keys are
// lowercased and aliased; a non-numeric SINI is dropped.
func ParseParfile(r io.Reader) ([]ParfileParam, error) {
	var params []ParfileParam
	scanner := bufio.NewScanner(r)
	lineno := 0
	for scanner.Scan() {
		lineno++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		fields := strings.Fields(line)
		if len(fields) < 2 {
			return nil, fmt.Errorf("%w: parfile line %d has no value: %q", ErrBadInput, lineno, line)
		}

		name := strings.ToLower(fields[0])
		if canonical, ok := parfileAliases[name]; ok {
			name = canonical
		}
		value := fields[1]

		if name == "sini" && !isNumeric(value) {
			continue
		}

		params = append(params, ParfileParam{Name: name, Value: value, Typed: typedValue(value)})
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading parfile: %w", err)
	}
	if len(params) == 0 {
		return nil, fmt.Errorf("%w: parfile contains no parameters", ErrBadInput)
	}
	return params, nil
}

// isNumeric reports whether a raw value matches the integer or float
// patterns (including D exponents).
func isNumeric(raw string) bool {
	return intPattern.MatchString(raw) || floatPattern.MatchString(raw)
}

// typedValue coerces a raw value by its lexical shape.
func typedValue(raw string) any {
	if intPattern.MatchString(raw) {
		if v, err := strconv.ParseInt(raw, 10, 64); err == nil {
			return v
		}
	}
	if floatPattern.MatchString(raw) {
		norm := strings.Map(func(r rune) rune {
			if r == 'd' || r == 'D' {
				return 'e'
			}
			return r
		}, raw)
		if v, err := strconv.ParseFloat(norm, 64); err == nil {
			return v
		}
	}
	return raw
}

// pulsarNameFromParams returns the name given by PSRJ, PSRB, or PSR,
// in that order of preference.
func pulsarNameFromParams(params []ParfileParam) (string, error) {
	byName := make(map[string]string, len(params))
	for _, p := range params {
		if _, ok := byName[p.Name]; !ok {
			byName[p.Name] = p.Value
		}
	}
	for _, key := range []string{"psrj", "psrb", "psr"} {
		if v, ok := byName[key]; ok {
			return v, nil
		}
	}
	return "", fmt.Errorf("%w: parfile names no pulsar (PSRJ/PSRB/PSR)", ErrBadInput)
}
