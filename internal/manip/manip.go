// Package manip provides the manipulator registry. A manipulator is a
// named transformation from input archive files to a single output
// archive, parameterised by a small set of kwargs recorded for
// provenance.
package manip

import (
	"context"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"toaster/internal/tools"
)

// Kwarg declares one manipulator parameter for CLI construction.
type Kwarg struct {
	Name string
	Help string
}

// Manipulator transforms input archives into one output archive.
type Manipulator interface {
	Name() string

	// Kwargs declares the accepted parameters.
	Kwargs() []Kwarg

	// ArgString stringifies the given kwargs deterministically for
	// provenance. Unknown kwargs are an error.
	ArgString(kwargs map[string]string) (string, error)

	// Run writes the output archive to outPath.
	Run(ctx context.Context, runner tools.Runner, inputs []string, outPath string, kwargs map[string]string) error
}

var registry = map[string]Manipulator{}

// Register adds a manipulator to the registry. Duplicate names panic:
// registration happens at init time only.
func Register(m Manipulator) {
	if _, ok := registry[m.Name()]; ok {
		panic(fmt.Sprintf("manipulator %q registered twice", m.Name()))
	}
	registry[m.Name()] = m
}

// Get resolves a manipulator by name.
func Get(name string) (Manipulator, error) {
	m, ok := registry[name]
	if !ok {
		return nil, fmt.Errorf("unknown manipulator: %q (available: %s)",
			name, strings.Join(Names(), ", "))
	}
	return m, nil
}

// Names returns the registered manipulator names, sorted.
func Names() []string {
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// argString renders kwargs as "k1=v1 k2=v2" with sorted keys, checking
// every key against the declared set.
func argString(kwargs map[string]string, declared []Kwarg) (string, error) {
	allowed := make(map[string]bool, len(declared))
	for _, k := range declared {
		allowed[k.Name] = true
	}

	keys := make([]string, 0, len(kwargs))
	for k := range kwargs {
		if !allowed[k] {
			return "", fmt.Errorf("unknown kwarg: %q", k)
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = k + "=" + kwargs[k]
	}
	return strings.Join(parts, " "), nil
}

// requireOneInput enforces the single-input contract.
func requireOneInput(inputs []string) (string, error) {
	if len(inputs) != 1 {
		return "", fmt.Errorf("manipulator requires exactly one input archive, got %d", len(inputs))
	}
	return inputs[0], nil
}

// copyFile copies src to dst, creating or truncating dst.
func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("opening input archive: %w", err)
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return fmt.Errorf("creating output archive: %w", err)
	}
	defer out.Close()

	if _, err := io.Copy(out, in); err != nil {
		return fmt.Errorf("copying archive: %w", err)
	}
	return out.Close()
}
