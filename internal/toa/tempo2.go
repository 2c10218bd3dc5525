package toa

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
)

// ParseTempo2Line parses one tempo2-format line:
//
//	<file> <freq_MHz> <imjd>.<fmjd> <err_us> <site> [-<flag> <val>]... [# comment]
//
// A leading "#" or "C " marks the record bad; it is still parsed.
// Returns (nil, nil) for lines that are not TOAs (blank, FORMAT, MODE,
// JUMP, INCLUDE and other directives).
func ParseTempo2Line(line string) (*Record, error) {
	trimmed := strings.TrimSpace(line)
	if trimmed == "" {
		return nil, nil
	}

	bad := false
	if strings.HasPrefix(trimmed, "C ") {
		bad = true
		trimmed = strings.TrimSpace(trimmed[2:])
	} else if strings.HasPrefix(trimmed, "#") {
		bad = true
		trimmed = strings.TrimSpace(trimmed[1:])
	}
	if trimmed == "" {
		return nil, nil
	}

	// Trailing comment is captured verbatim.
	comment := ""
	if idx := strings.Index(trimmed, "#"); idx >= 0 {
		comment = strings.TrimSpace(trimmed[idx+1:])
		trimmed = strings.TrimSpace(trimmed[:idx])
	}

	fields := strings.Fields(trimmed)
	if len(fields) == 0 {
		return nil, nil
	}

	switch strings.ToUpper(fields[0]) {
	case "FORMAT", "MODE", "JUMP", "SKIP", "NOSKIP", "INCLUDE", "EFAC", "EQUAD", "TIME", "PHASE":
		return nil, nil
	}
	if len(fields) < 5 {
		return nil, nil
	}

	freq, err := strconv.ParseFloat(fields[1], 64)
	if err != nil {
		return nil, fmt.Errorf("parsing frequency %q: %w", fields[1], err)
	}
	imjd, fmjd, err := splitMJD(fields[2])
	if err != nil {
		return nil, err
	}
	errUS, err := strconv.ParseFloat(fields[3], 64)
	if err != nil {
		return nil, fmt.Errorf("parsing uncertainty %q: %w", fields[3], err)
	}

	rec := &Record{
		File:      fields[0],
		Freq:      freq,
		IMJD:      imjd,
		FMJD:      fmjd,
		ErrorUS:   errUS,
		Telescope: fields[4],
		Flags:     make(map[string]any),
		Comment:   comment,
		Bad:       bad,
	}

	rest := fields[5:]
	for i := 0; i < len(rest); i++ {
		if !strings.HasPrefix(rest[i], "-") {
			return nil, fmt.Errorf("expected flag, got %q", rest[i])
		}
		if i+1 >= len(rest) {
			return nil, fmt.Errorf("flag %s has no value", rest[i])
		}
		name, value, err := coerceFlag(strings.TrimPrefix(rest[i], "-"), rest[i+1])
		if err != nil {
			return nil, err
		}
		rec.Flags[name] = value
		i++
	}

	return rec, nil
}

// ParseTempo2 parses a whole tempo2-format document. Lines that are
// not TOAs are skipped; bad lines are returned flagged.
func ParseTempo2(text string) ([]Record, error) {
	var recs []Record
	scanner := bufio.NewScanner(strings.NewReader(text))
	lineno := 0
	for scanner.Scan() {
		lineno++
		rec, err := ParseTempo2Line(scanner.Text())
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", lineno, err)
		}
		if rec != nil {
			recs = append(recs, *rec)
		}
	}
	return recs, scanner.Err()
}

// ReadTimfile reads a tempo2 timfile from disk, recursively following
// INCLUDE directives relative to the including file.
func ReadTimfile(path string) ([]Record, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening timfile: %w", err)
	}
	defer f.Close()

	var recs []Record
	scanner := bufio.NewScanner(f)
	lineno := 0
	for scanner.Scan() {
		lineno++
		line := scanner.Text()

		fields := strings.Fields(line)
		if len(fields) == 2 && strings.EqualFold(fields[0], "INCLUDE") {
			included, err := ReadTimfile(filepath.Join(filepath.Dir(path), fields[1]))
			if err != nil {
				return nil, fmt.Errorf("%s line %d: %w", path, lineno, err)
			}
			recs = append(recs, included...)
			continue
		}

		rec, err := ParseTempo2Line(line)
		if err != nil {
			return nil, fmt.Errorf("%s line %d: %w", path, lineno, err)
		}
		if rec != nil {
			recs = append(recs, *rec)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading timfile: %w", err)
	}
	return recs, nil
}

// FormatTempo2 renders records as a tempo2 document with a FORMAT 1
// header. Each record's own typed flags are emitted in sorted order.
// Bad records are prefixed with "C ".
func FormatTempo2(recs []Record) string {
	var b strings.Builder
	b.WriteString("FORMAT 1\n")
	for i := range recs {
		b.WriteString(FormatTempo2Line(&recs[i]))
		b.WriteByte('\n')
	}
	return b.String()
}

// FormatTempo2Line renders one record as a tempo2 line.
func FormatTempo2Line(rec *Record) string {
	var b strings.Builder
	if rec.Bad {
		b.WriteString("C ")
	}
	fmt.Fprintf(&b, "%s %s %s %s %s",
		rec.File,
		strconv.FormatFloat(rec.Freq, 'f', -1, 64),
		formatMJD(rec.IMJD, rec.FMJD),
		strconv.FormatFloat(rec.ErrorUS, 'f', -1, 64),
		rec.Telescope)

	names := make([]string, 0, len(rec.Flags))
	for name := range rec.Flags {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		fmt.Fprintf(&b, " -%s %s", name, formatFlagValue(rec.Flags[name]))
	}

	if rec.Comment != "" {
		fmt.Fprintf(&b, " # %s", rec.Comment)
	}
	return b.String()
}
