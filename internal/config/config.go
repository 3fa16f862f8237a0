// Package config loads the optional per-repository .groom.yaml.
//
// The file is validated against an embedded CUE schema before it is decoded,
// so misspelled keys and out-of-range values fail loudly instead of silently
// falling back to defaults.
package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"gopkg.in/yaml.v3"
)

// FileName is the config file looked up at the repository root.
const FileName = ".groom.yaml"

// CacheDirEnv overrides the cache directory.
const CacheDirEnv = "GROOM_CACHE_DIR"

//go:embed schema.cue
var schemaCUE string

// Config is the resolved project configuration.
type Config struct {
	BinDir         string         `yaml:"bin_dir"`
	PreferLocalBin bool           `yaml:"prefer_local_bin"`
	BaseRef        string         `yaml:"base_ref"`
	Fourmolu       FourmoluConfig `yaml:"fourmolu"`
	Nixfmt         NixfmtConfig   `yaml:"nixfmt"`
	Hlint          HlintConfig    `yaml:"hlint"`
	Limits         LimitsConfig   `yaml:"limits"`
}

// FourmoluConfig configures the Haskell formatter.
type FourmoluConfig struct {
	Config         string   `yaml:"config"`
	ExtensionsFile string   `yaml:"extensions_file"`
	Roots          []string `yaml:"roots"`
}

// NixfmtConfig configures the Nix formatter.
type NixfmtConfig struct {
	Roots []string `yaml:"roots"`
}

// HlintConfig configures the Haskell linter.
type HlintConfig struct {
	RootConfig string   `yaml:"root_config"`
	RulesDir   string   `yaml:"rules_dir"`
	Roots      []string `yaml:"roots"`
}

// LimitsConfig sizes the permit pools. Processes 0 means one per CPU.
type LimitsConfig struct {
	OpenFiles int `yaml:"open_files"`
	Processes int `yaml:"processes"`
}

// Default returns the configuration used when no file is present.
func Default() *Config {
	return &Config{
		BinDir:  ".bin",
		BaseRef: "origin/master",
		Fourmolu: FourmoluConfig{
			Config:         "fourmolu.yaml",
			ExtensionsFile: "hpack-common/default-extensions.yaml",
			Roots:          []string{"."},
		},
		Nixfmt: NixfmtConfig{Roots: []string{"."}},
		Hlint: HlintConfig{
			RootConfig: ".hlint.yaml",
			RulesDir:   "hlint-rules",
			Roots:      []string{"."},
		},
		Limits: LimitsConfig{OpenFiles: 100},
	}
}

// Load reads <root>/.groom.yaml. A missing file yields Default().
// Environment variables in the format ${VAR_NAME} are expanded.
func Load(root string) (*Config, error) {
	path := filepath.Join(root, FileName)
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return Default(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}
	return Parse(data)
}

// Parse validates and decodes config file contents over the defaults.
func Parse(data []byte) (*Config, error) {
	expanded := []byte(expandEnvVars(string(data)))

	if err := validate(expanded); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(expanded, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}
	return cfg, nil
}

func validate(data []byte) error {
	var raw map[string]any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("parsing config file: %w", err)
	}
	if raw == nil {
		raw = map[string]any{}
	}

	ctx := cuecontext.New()
	schema := ctx.CompileString(schemaCUE).LookupPath(cue.ParsePath("#Config"))
	if err := schema.Err(); err != nil {
		return fmt.Errorf("compiling schema: %w", err)
	}

	value := ctx.Encode(raw)
	if err := value.Err(); err != nil {
		return err
	}
	return schema.Unify(value).Validate(cue.Concrete(true))
}

var envVarPattern = regexp.MustCompile(`\$\{([^}]+)\}`)

// expandEnvVars replaces ${VAR_NAME} patterns with the corresponding
// environment variable values. Unset variables expand to the empty string.
func expandEnvVars(s string) string {
	return envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		return os.Getenv(envVarPattern.FindStringSubmatch(match)[1])
	})
}

// Resolve makes p absolute against root. Empty stays empty.
func Resolve(root, p string) string {
	if p == "" || filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(root, p)
}

// CacheDir returns $GROOM_CACHE_DIR, or "groom" under the user cache directory.
func CacheDir() (string, error) {
	if dir := os.Getenv(CacheDirEnv); dir != "" {
		return dir, nil
	}
	ucd, err := os.UserCacheDir()
	if err != nil {
		return "", fmt.Errorf("locating cache directory: %w", err)
	}
	return filepath.Join(ucd, "groom"), nil
}

// DatabasePath returns the cache database location.
func DatabasePath() (string, error) {
	dir, err := CacheDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "cache.sqlite"), nil
}
