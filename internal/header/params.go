// Package header extracts typed metadata from data files through the
// external header reader.
package header

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"toaster/internal/tools"
)

// Logger is the subset of logging the extractor needs.
type Logger interface {
	Warn(msg string, args ...any)
}

// kind is the coercion applied to a header value.
type kind int

const (
	kindString kind = iota
	kindFloat
	kindInt
)

// typeTable fixes the coercion per key. Keys not listed are strings.
var typeTable = map[string]kind{
	"freq":   kindFloat,
	"bw":     kindFloat,
	"length": kindFloat,
	"dm":     kindFloat,
	"rm":     kindFloat,
	"mjd":    kindFloat,
	"fmjd":   kindFloat,
	"tbin":   kindFloat,
	"nbin":   kindInt,
	"nchan":  kindInt,
	"npol":   kindInt,
	"nsub":   kindInt,
	"intmjd": kindInt,
}

// Params is a lazy, memoised view of one file's header. The first
// request for a key runs an extraction; later requests hit the cache.
// Keys are case-insensitive. A value the reader reports as "*" or
// "UNDEF" is cached as nil with a warning; "INVALID" is an error.
type Params struct {
	file   string
	runner tools.Runner
	logger Logger
	cache  map[string]any
}

// New creates a Params view over file.
func New(file string, runner tools.Runner, logger Logger) *Params {
	return &Params{
		file:   file,
		runner: runner,
		logger: logger,
		cache:  make(map[string]any),
	}
}

// File returns the path this view extracts from.
func (p *Params) File() string { return p.file }

// Get returns the coerced value for key, fetching it if needed.
// The value is nil when the header reports it undefined.
func (p *Params) Get(ctx context.Context, key string) (any, error) {
	key = strings.ToLower(key)
	if v, ok := p.cache[key]; ok {
		return v, nil
	}
	if err := p.Fetch(ctx, key); err != nil {
		return nil, err
	}
	return p.cache[key], nil
}

// Fetch extracts the given keys in one header-reader invocation and
// memoises the results.
func (p *Params) Fetch(ctx context.Context, keys ...string) error {
	var missing []string
	for _, k := range keys {
		k = strings.ToLower(k)
		if _, ok := p.cache[k]; !ok {
			missing = append(missing, k)
		}
	}
	if len(missing) == 0 {
		return nil
	}

	out, err := tools.ReadHeader(ctx, p.runner, p.file, missing)
	if err != nil {
		return err
	}

	fields := strings.Fields(out)
	// The first field is the filename.
	if len(fields) != len(missing)+1 {
		return fmt.Errorf("header reader returned %d fields for %d keys: %q",
			len(fields), len(missing), strings.TrimSpace(out))
	}

	for i, key := range missing {
		v, err := coerce(key, fields[i+1])
		if err != nil {
			return fmt.Errorf("header key %s of %s: %w", key, p.file, err)
		}
		if v == nil && p.logger != nil {
			p.logger.Warn("header value undefined", "file", p.file, "key", key)
		}
		p.cache[key] = v
	}
	return nil
}

// GetFloat returns a float value. ok is false when the header reports
// the value undefined.
func (p *Params) GetFloat(ctx context.Context, key string) (val float64, ok bool, err error) {
	v, err := p.Get(ctx, key)
	if err != nil {
		return 0, false, err
	}
	if v == nil {
		return 0, false, nil
	}
	f, isFloat := v.(float64)
	if !isFloat {
		return 0, false, fmt.Errorf("header key %s is not a float (got %T)", key, v)
	}
	return f, true, nil
}

// GetInt returns an integer value. ok is false when the header reports
// the value undefined.
func (p *Params) GetInt(ctx context.Context, key string) (val int64, ok bool, err error) {
	v, err := p.Get(ctx, key)
	if err != nil {
		return 0, false, err
	}
	if v == nil {
		return 0, false, nil
	}
	i, isInt := v.(int64)
	if !isInt {
		return 0, false, fmt.Errorf("header key %s is not an int (got %T)", key, v)
	}
	return i, true, nil
}

// GetString returns a string value. An undefined value is an error:
// string keys requested by the ingestion paths are all mandatory.
func (p *Params) GetString(ctx context.Context, key string) (string, error) {
	v, err := p.Get(ctx, key)
	if err != nil {
		return "", err
	}
	if v == nil {
		return "", fmt.Errorf("header key %s of %s is undefined", key, p.file)
	}
	s, isString := v.(string)
	if !isString {
		return "", fmt.Errorf("header key %s is not a string (got %T)", key, v)
	}
	return s, nil
}

// coerce applies the type table to one raw token.
func coerce(key, raw string) (any, error) {
	if raw == "INVALID" {
		return nil, fmt.Errorf("header reader reported INVALID")
	}
	if raw == "*" || raw == "UNDEF" {
		return nil, nil
	}

	switch typeTable[key] {
	case kindFloat:
		f, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return nil, fmt.Errorf("parsing %q as float: %w", raw, err)
		}
		return f, nil
	case kindInt:
		i, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("parsing %q as int: %w", raw, err)
		}
		return i, nil
	default:
		return raw, nil
	}
}
