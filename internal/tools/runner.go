// Package tools wraps the external native tools the pipeline depends
// on. The tools are opaque: they are invoked by argument vector and
// their stdout is parsed by the callers.
package tools

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
)

// Tool names on PATH.
const (
	HeaderReader   = "vap"     // print selected header keys
	MetadataEditor = "pam"     // set header fields, install ephemeris
	Scruncher      = "pam"     // frequency/time/bin reduction
	TOAGenerator   = "pat"     // produce TOAs
	Plotter        = "psrplot" // produce diagnostic images
	StatTool       = "psrstat" // numeric diagnostics
	Tempo2         = "tempo2"
)

// Runner executes external tools. An interface so tests can script
// tool output without spawning processes.
type Runner interface {
	// Run executes the named tool and returns its stdout and stderr.
	// A non-zero exit is an error.
	Run(ctx context.Context, name string, args ...string) (stdout, stderr string, err error)

	// LookPath resolves the tool name to an absolute path.
	LookPath(name string) (string, error)
}

// ExecRunner runs tools via os/exec.
type ExecRunner struct{}

func NewExecRunner() *ExecRunner { return &ExecRunner{} }

func (*ExecRunner) Run(ctx context.Context, name string, args ...string) (string, string, error) {
	cmd := exec.CommandContext(ctx, name, args...)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return stdout.String(), stderr.String(),
			fmt.Errorf("%s %s: %w (stderr: %s)", name, strings.Join(args, " "), err,
				strings.TrimSpace(stderr.String()))
	}
	return stdout.String(), stderr.String(), nil
}

func (*ExecRunner) LookPath(name string) (string, error) {
	path, err := exec.LookPath(name)
	if err != nil {
		return "", fmt.Errorf("resolving tool %s: %w", name, err)
	}
	return path, nil
}

// ReadHeader invokes the header reader for the given keys and returns
// the single whitespace-separated output row (beginning with the
// filename). Any stderr output from the header reader is an error.
func ReadHeader(ctx context.Context, r Runner, file string, keys []string) (string, error) {
	stdout, stderr, err := r.Run(ctx, HeaderReader, "-n", "-c", strings.Join(keys, ","), file)
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(stderr) != "" {
		return "", fmt.Errorf("header reader wrote to stderr: %s", strings.TrimSpace(stderr))
	}
	return stdout, nil
}

// InstallEphemeris re-installs the parfile into file in place,
// updating the DM.
func InstallEphemeris(ctx context.Context, r Runner, parfile, file string) error {
	_, _, err := r.Run(ctx, MetadataEditor, "-m", "-E", parfile, "--update_dm", file)
	if err != nil {
		return fmt.Errorf("installing ephemeris: %w", err)
	}
	return nil
}

// GenerateTOAs invokes the TOA generator against file with the given
// template, requesting tempo2 output, per-TOA diagnostics, and one
// plot per TOA under plotBase. Returns raw stdout for parsing.
func GenerateTOAs(ctx context.Context, r Runner, file, template, method, plotBase string) (string, error) {
	stdout, _, err := r.Run(ctx, TOAGenerator,
		"-f", "tempo2",
		"-A", method,
		"-s", template,
		"-C", "gof length bw nbin",
		"-t",
		"-K", plotBase+"/PNG",
		file)
	if err != nil {
		return "", fmt.Errorf("generating TOAs: %w", err)
	}
	return stdout, nil
}
