package app

import (
	"fmt"
	"os"
	"path/filepath"
)

// GetDefaults returns application default paths, checking environment
// variables first.
// Environment variables:
//   - TOASTER_HOME: base directory for toaster data (default: ~/.local/share/toaster)
func GetDefaults() (map[string]string, error) {
	baseDir, err := getBaseDir()
	if err != nil {
		return nil, err
	}

	return map[string]string{
		"base_dir":    baseDir,
		"config_path": filepath.Join(baseDir, "toaster.cfg"),
		"log_dir":     filepath.Join(baseDir, "log"),
	}, nil
}

// getBaseDir returns the base directory for toaster data, checking
// TOASTER_HOME first, then falling back to the XDG default.
func getBaseDir() (string, error) {
	if path := os.Getenv("TOASTER_HOME"); path != "" {
		return path, nil
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("cannot determine home directory: %w", err)
	}
	return filepath.Join(homeDir, ".local", "share", "toaster"), nil
}
