// Package config resolves jora settings from defaults, an optional jora.toml,
// and the environment. Command-line flags are applied last by the caller.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"

	"github.com/amirbrooks/jora/internal/store"
)

const (
	DefaultRoot      = "JORA"
	DefaultShowCount = 5
	DefaultLogLevel  = "warn"
	DefaultLogFormat = "text"
)

// FileNames are searched in order in the working directory.
var FileNames = []string{"jora.toml", ".jora.toml"}

type Config struct {
	Root      string `toml:"root"`
	ShowCount int    `toml:"show_count"`
	LogLevel  string `toml:"log_level"`
	LogFormat string `toml:"log_format"`
	Strict    bool   `toml:"strict"`
	IDPolicy  string `toml:"id_policy"`

	// File is the config file that was read, empty when none was found.
	File string `toml:"-"`
}

func Default() *Config {
	return &Config{
		Root:      DefaultRoot,
		ShowCount: DefaultShowCount,
		LogLevel:  DefaultLogLevel,
		LogFormat: DefaultLogFormat,
		IDPolicy:  string(store.IDPolicyMonotonic),
	}
}

// Load applies, in order: defaults, the first config file found in dir,
// and JORA_* environment variables read through getenv.
func Load(dir string, getenv func(string) string) (*Config, error) {
	cfg := Default()
	if getenv == nil {
		getenv = os.Getenv
	}

	if path := findFile(dir); path != "" {
		if err := loadFile(cfg, path); err != nil {
			return nil, fmt.Errorf("loading config file %s: %w", path, err)
		}
		cfg.File = path
	}

	if err := loadFromEnv(cfg, getenv); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func findFile(dir string) string {
	if dir == "" {
		dir = "."
	}
	for _, name := range FileNames {
		path := filepath.Join(dir, name)
		if info, err := os.Stat(path); err == nil && !info.IsDir() {
			return path
		}
	}
	return ""
}

func loadFile(cfg *Config, path string) error {
	md, err := toml.DecodeFile(path, cfg)
	if err != nil {
		return err
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, 0, len(undecoded))
		for _, k := range undecoded {
			keys = append(keys, k.String())
		}
		return fmt.Errorf("unknown keys: %s", strings.Join(keys, ", "))
	}
	return nil
}

func loadFromEnv(cfg *Config, getenv func(string) string) error {
	if v := strings.TrimSpace(getenv("JORA_ROOT")); v != "" {
		cfg.Root = v
	}
	if v := strings.TrimSpace(getenv("JORA_LOG_LEVEL")); v != "" {
		cfg.LogLevel = v
	}
	if v := strings.TrimSpace(getenv("JORA_LOG_FORMAT")); v != "" {
		cfg.LogFormat = v
	}
	if v := strings.TrimSpace(getenv("JORA_ID_POLICY")); v != "" {
		cfg.IDPolicy = v
	}
	if v := strings.TrimSpace(getenv("JORA_STRICT")); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("JORA_STRICT: invalid boolean %q", v)
		}
		cfg.Strict = b
	}
	return nil
}

func (c *Config) Validate() error {
	var errs []error
	if strings.TrimSpace(c.Root) == "" {
		errs = append(errs, errors.New("root must not be empty"))
	}
	if c.ShowCount <= 0 {
		errs = append(errs, fmt.Errorf("show_count must be positive, got %d", c.ShowCount))
	}
	if _, err := store.ParseIDPolicy(c.IDPolicy); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// Policy returns the parsed id policy; Validate has already rejected bad values.
func (c *Config) Policy() store.IDPolicy {
	p, err := store.ParseIDPolicy(c.IDPolicy)
	if err != nil {
		return store.IDPolicyMonotonic
	}
	return p
}
