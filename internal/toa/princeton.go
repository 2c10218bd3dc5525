package toa

import (
	"bufio"
	"fmt"
	"strconv"
	"strings"
)

// The princeton format is fixed-column:
//
//	column 1      observatory site code
//	columns 2-15  observation id
//	columns 16-24 observing frequency (MHz)
//	columns 25-44 TOA (decimal point in column 30)
//	columns 45-53 uncertainty (µs)
//
// Flags are not supported by this format.

// ParsePrincetonLine parses one princeton-format line. Returns
// (nil, nil) for blank and comment lines.
func ParsePrincetonLine(line string) (*Record, error) {
	if strings.TrimSpace(line) == "" {
		return nil, nil
	}
	bad := false
	if strings.HasPrefix(line, "C ") || strings.HasPrefix(line, "#") {
		bad = true
		// Fixed columns do not survive marker stripping; a marked line
		// is recorded as bad without re-aligning.
		line = strings.TrimPrefix(strings.TrimPrefix(line, "C "), "#")
	}
	if len(line) < 53 {
		return nil, fmt.Errorf("princeton line too short (%d columns)", len(line))
	}

	col := func(from, to int) string { return strings.TrimSpace(line[from:to]) }

	site := col(0, 1)
	name := col(1, 15)

	freq, err := strconv.ParseFloat(col(15, 24), 64)
	if err != nil {
		return nil, fmt.Errorf("parsing frequency %q: %w", col(15, 24), err)
	}
	imjd, fmjd, err := splitMJD(col(24, 44))
	if err != nil {
		return nil, err
	}
	errUS, err := strconv.ParseFloat(col(44, 53), 64)
	if err != nil {
		return nil, fmt.Errorf("parsing uncertainty %q: %w", col(44, 53), err)
	}

	return &Record{
		File:      name,
		Freq:      freq,
		IMJD:      imjd,
		FMJD:      fmjd,
		ErrorUS:   errUS,
		Telescope: site,
		Flags:     make(map[string]any),
		Bad:       bad,
	}, nil
}

// ParsePrinceton parses a whole princeton-format document.
func ParsePrinceton(text string) ([]Record, error) {
	var recs []Record
	scanner := bufio.NewScanner(strings.NewReader(text))
	lineno := 0
	for scanner.Scan() {
		lineno++
		rec, err := ParsePrincetonLine(scanner.Text())
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", lineno, err)
		}
		if rec != nil {
			recs = append(recs, *rec)
		}
	}
	return recs, scanner.Err()
}

// FormatPrincetonLine renders one record in fixed columns. Flags are
// never emitted.
func FormatPrincetonLine(rec *Record) string {
	name := rec.File
	if len(name) > 14 {
		name = name[:14]
	}

	frac := strconv.FormatFloat(rec.FMJD, 'f', 13, 64)
	frac = strings.TrimPrefix(frac, "0.")

	return fmt.Sprintf("%-1s%-14s%9.3f%5d.%-13s %9.3f",
		rec.Telescope, name, rec.Freq, rec.IMJD, frac, rec.ErrorUS)
}

// FormatPrinceton renders records as a princeton document.
func FormatPrinceton(recs []Record) string {
	var b strings.Builder
	for i := range recs {
		b.WriteString(FormatPrincetonLine(&recs[i]))
		b.WriteByte('\n')
	}
	return b.String()
}
