package config

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
)

// EnvVar names the environment variable holding a colon-separated list
// of config files. Earlier entries override later ones, so the files
// are applied in reverse order.
const EnvVar = "TOASTER_CFG"

// Config represents the main configuration for toaster.
type Config struct {
	ArchiveRoot     string   `toml:"archive_root"`
	LayoutTemplate  string   `toml:"layout_template"`  // e.g. "{telescope}/{pulsar}/{backend}/{frontend}"
	FitMethod       string   `toml:"fit_method"`       // TOA fitting method passed to the generator
	RawDiagnostics  []string `toml:"raw_diagnostics"`  // default diagnostics computed at raw ingest
	ProcDiagnostics []string `toml:"proc_diagnostics"` // default diagnostics computed per process
	WarnMode        string   `toml:"warn_mode"`        // "ignore", "once", "always", or "error"
	Verbosity       int      `toml:"verbosity"`
	Colour          bool     `toml:"colour"`
	TmpDir          string   `toml:"tmp_dir"`
	ArchivePolicy   string   `toml:"archive_policy"` // "move" or "copy"
	AutoAddPulsars  bool     `toml:"auto_add_pulsars"`
	LogDir          string   `toml:"log_dir"`
	Operator        string   `toml:"operator"` // username recorded on writes

	Database DatabaseConfig `toml:"database"`
	Mirror   MirrorConfig   `toml:"mirror"`
}

// DatabaseConfig represents configuration for the metadata database.
// This uses a tagged union pattern - the Type field determines which other fields are relevant.
type DatabaseConfig struct {
	Type string `toml:"type"`           // "sqlite" or "memory"
	Path string `toml:"path,omitempty"` // only used for type=sqlite
}

// MirrorConfig represents configuration for the optional off-site
// mirror of archived bytes.
// This uses a tagged union pattern - the Type field determines which other fields are relevant.
type MirrorConfig struct {
	Type string `toml:"type"` // "", "memory", "s3", or "filesystem"
	Name string `toml:"name"`

	// S3-specific fields (only used when Type == "s3")
	S3Bucket string `toml:"s3_bucket,omitempty"`
	S3Prefix string `toml:"s3_prefix,omitempty"`
	S3Region string `toml:"s3_region,omitempty"`

	// FileSystem-specific fields (only used when Type == "filesystem")
	FSRoot string `toml:"fs_root,omitempty"`
}

// NewConfig creates a Config with defaults rooted at baseDir.
func NewConfig(baseDir string) *Config {
	return &Config{
		ArchiveRoot:    filepath.Join(baseDir, "archive"),
		LayoutTemplate: "{telescope}/{pulsar}/{backend}/{frontend}",
		FitMethod:      "PGS",
		RawDiagnostics: []string{"snr"},
		WarnMode:       "always",
		Verbosity:      1,
		Colour:         true,
		TmpDir:         filepath.Join(baseDir, "tmp"),
		ArchivePolicy:  "copy",
		LogDir:         filepath.Join(baseDir, "log"),
		Database: DatabaseConfig{
			Type: "sqlite",
			Path: filepath.Join(baseDir, "toaster.db"),
		},
	}
}

// Read decodes a Config from the provided reader, overlaying it on top
// of cfg. Unknown keys are rejected.
func Read(r io.Reader, cfg *Config) error {
	md, err := toml.NewDecoder(r).Decode(cfg)
	if err != nil {
		return fmt.Errorf("failed to decode config: %w", err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, k := range undecoded {
			keys[i] = k.String()
		}
		return fmt.Errorf("unknown config keys: %s", strings.Join(keys, ", "))
	}
	return nil
}

// Write encodes a Config to the provided writer.
func Write(w io.Writer, cfg *Config) error {
	if err := toml.NewEncoder(w).Encode(cfg); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	return nil
}

// ReadFromFile overlays the config file at path onto cfg.
func ReadFromFile(path string, cfg *Config) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open config file: %w", err)
	}
	defer f.Close()

	if err := Read(f, cfg); err != nil {
		return fmt.Errorf("reading config from %s: %w", path, err)
	}
	return nil
}

// LoadFromEnv builds a Config from the files listed in EnvVar.
// Files are applied last-to-first so earlier entries override later
// ones. Every entry must end in ".cfg".
func LoadFromEnv(baseDir string) (*Config, error) {
	cfg := NewConfig(baseDir)

	list := os.Getenv(EnvVar)
	if list == "" {
		return cfg, nil
	}

	paths := strings.Split(list, ":")
	for _, p := range paths {
		if !strings.HasSuffix(p, ".cfg") {
			return nil, fmt.Errorf("config file must end in .cfg: %s", p)
		}
	}

	for i := len(paths) - 1; i >= 0; i-- {
		if err := ReadFromFile(paths[i], cfg); err != nil {
			return nil, err
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks enumerated option values.
func (c *Config) Validate() error {
	switch c.WarnMode {
	case "ignore", "once", "always", "error":
	default:
		return fmt.Errorf("unknown warn_mode: %q", c.WarnMode)
	}
	switch c.ArchivePolicy {
	case "move", "copy":
	default:
		return fmt.Errorf("unknown archive_policy: %q", c.ArchivePolicy)
	}
	return nil
}

// writeToFile writes a Config to the specified file path.
func writeToFile(path string, cfg *Config) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create config file: %w", err)
	}
	defer f.Close()

	if err := Write(f, cfg); err != nil {
		return fmt.Errorf("writing config to %s: %w", path, err)
	}
	return nil
}

// Init initializes a new config file at the specified path with the provided Config.
func Init(path string, cfg *Config) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config file already exists at %s", path)
	}

	if err := writeToFile(path, cfg); err != nil {
		return fmt.Errorf("initializing config: %w", err)
	}
	return nil
}
