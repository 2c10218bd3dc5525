package toa

import (
	"fmt"
	"strings"
)

// Flag is a user-specified output flag: Name is the flag emitted on
// the line, Template is applied against the TOA's field map. A
// template field that resolves to a missing value is substituted by
// the configured missing marker.
type Flag struct {
	Name     string
	Template string
}

// DefaultMissingMarker substitutes flag fields with no value.
const DefaultMissingMarker = "*"

// ResolveTemplate substitutes {field} placeholders in tmpl against
// fields. Missing or nil fields become the marker.
func ResolveTemplate(tmpl string, fields map[string]any, marker string) string {
	var b strings.Builder
	rest := tmpl
	for {
		open := strings.IndexByte(rest, '{')
		if open < 0 {
			b.WriteString(rest)
			break
		}
		closing := strings.IndexByte(rest[open:], '}')
		if closing < 0 {
			b.WriteString(rest)
			break
		}
		b.WriteString(rest[:open])
		name := rest[open+1 : open+closing]
		v, ok := fields[name]
		if !ok || v == nil {
			b.WriteString(marker)
		} else {
			b.WriteString(fmt.Sprintf("%v", v))
		}
		rest = rest[open+closing+1:]
	}
	return b.String()
}

// ApplyFlags resolves each flag template against fields and stores the
// results on the record, replacing any flags already present.
func ApplyFlags(rec *Record, flags []Flag, fields map[string]any, marker string) {
	if marker == "" {
		marker = DefaultMissingMarker
	}
	rec.Flags = make(map[string]any, len(flags))
	for _, f := range flags {
		rec.Flags[f.Name] = ResolveTemplate(f.Template, fields, marker)
	}
}
