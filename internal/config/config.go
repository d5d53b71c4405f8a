package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultBackendURL is the address of a locally running Storyteller backend.
const DefaultBackendURL = "http://localhost:8000"

// EnvBackendURL overrides the backend address when set.
const EnvBackendURL = "STORYTELLER_BACKEND_URL"

// Config holds application configuration
type Config struct {
	BackendURL string        `yaml:"backend_url"`
	Timeout    time.Duration `yaml:"timeout"`
	Selection  Selection     `yaml:",inline"`

	Plain       bool   `yaml:"-"`        // Line-mode REPL instead of the TUI
	Debug       bool   `yaml:"debug"`    // Debug-level logging
	Markdown    bool   `yaml:"markdown"` // Render agent/system text as markdown
	LogDir      string `yaml:"log_dir"`
	HistoryDB   string `yaml:"history_db"` // Empty disables the history log
	WatchConfig bool   `yaml:"watch_config"`

	// Path the config was loaded from, if any
	Path string `yaml:"-"`
}

// DefaultConfig returns the configuration used when no file or flag overrides it.
func DefaultConfig() Config {
	return Config{
		BackendURL: DefaultBackendURL,
		Timeout:    60 * time.Second,
		Selection:  DefaultSelection(),
		Markdown:   true,
		LogDir:     "logs",
	}
}

// Load reads a YAML config file on top of DefaultConfig and applies env overrides.
// A missing file is not an error.
func Load(path string) (Config, error) {
	cfg := DefaultConfig()
	cfg.Path = path

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, os.ErrNotExist):
		case err != nil:
			return cfg, fmt.Errorf("failed to read config: %w", err)
		default:
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return cfg, fmt.Errorf("failed to parse config %s: %w", path, err)
			}
		}
	}

	cfg.applyEnvOverrides()
	return cfg, nil
}

// Save writes the file-backed part of the config as YAML.
func (c Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

func (c *Config) applyEnvOverrides() {
	if v := strings.TrimSpace(os.Getenv(EnvBackendURL)); v != "" {
		c.BackendURL = v
	}
}

// Validate checks the backend address, timeout and selection.
func (c Config) Validate() error {
	u, err := url.Parse(c.BackendURL)
	if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
		return fmt.Errorf("invalid backend url %q", c.BackendURL)
	}
	if c.Timeout < 0 {
		return fmt.Errorf("timeout must not be negative, got %s", c.Timeout)
	}
	return c.Selection.Validate()
}
