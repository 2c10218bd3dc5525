package tools

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"strings"

	"toaster/internal/model"
)

// VersionProvider snapshots the version triple recorded with every
// process run: the pipeline code hash, the TOA-generator binary hash,
// and the tempo2 revision.
type VersionProvider interface {
	Snapshot(ctx context.Context) (model.Version, error)
}

// RealVersionProvider derives the triple from the running executable,
// the resolved TOA-generator binary, and the tempo2 revision query.
type RealVersionProvider struct {
	runner Runner
}

func NewVersionProvider(runner Runner) *RealVersionProvider {
	return &RealVersionProvider{runner: runner}
}

func (p *RealVersionProvider) Snapshot(ctx context.Context) (model.Version, error) {
	exe, err := os.Executable()
	if err != nil {
		return model.Version{}, fmt.Errorf("locating executable: %w", err)
	}
	pipelineHash, err := md5OfFile(exe)
	if err != nil {
		return model.Version{}, fmt.Errorf("hashing pipeline binary: %w", err)
	}

	toolPath, err := p.runner.LookPath(TOAGenerator)
	if err != nil {
		return model.Version{}, err
	}
	toolHash, err := md5OfFile(toolPath)
	if err != nil {
		return model.Version{}, fmt.Errorf("hashing tool binary: %w", err)
	}

	stdout, _, err := p.runner.Run(ctx, Tempo2, "-v")
	if err != nil {
		return model.Version{}, fmt.Errorf("querying tempo2 revision: %w", err)
	}

	return model.Version{
		PipelineHash:   pipelineHash,
		ToolHash:       toolHash,
		Tempo2Revision: strings.TrimSpace(stdout),
	}, nil
}

func md5OfFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	h := md5.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
