package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	defaultBaseURL = "http://localhost:8080"
	defaultTimeout = 30 * time.Second
)

// cliConfig is the marketctl configuration file.
//
//	base_url: http://prices.internal:8080
//	api_key: s3cret
//	timeout: 15s
type cliConfig struct {
	BaseURL string        `yaml:"base_url"`
	APIKey  string        `yaml:"api_key"`
	Timeout time.Duration `yaml:"timeout"`
}

// defaultConfigPath is $XDG_CONFIG_HOME/marketctl/config.yaml or the
// platform equivalent. Empty when no config dir is known.
func defaultConfigPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return ""
	}
	return filepath.Join(dir, "marketctl", "config.yaml")
}

// loadConfig reads path, then applies MARKETCTL_URL and MARKETCTL_API_KEY.
// A missing file is only an error when required is set, i.e. when the
// user named it explicitly.
func loadConfig(path string, required bool, getenv func(string) string) (cliConfig, error) {
	cfg := cliConfig{BaseURL: defaultBaseURL, Timeout: defaultTimeout}

	if path != "" {
		b, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := yaml.Unmarshal(b, &cfg); err != nil {
				return cliConfig{}, fmt.Errorf("parse %s: %w", path, err)
			}
		case errors.Is(err, fs.ErrNotExist) && !required:
		default:
			return cliConfig{}, fmt.Errorf("read config: %w", err)
		}
	}

	if v := getenv("MARKETCTL_URL"); v != "" {
		cfg.BaseURL = v
	}
	if v := getenv("MARKETCTL_API_KEY"); v != "" {
		cfg.APIKey = v
	}

	cfg.BaseURL = strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if cfg.BaseURL == "" {
		return cliConfig{}, errors.New("base_url must not be empty")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	return cfg, nil
}
