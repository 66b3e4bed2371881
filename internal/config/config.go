// Package config resolves the run configuration. The engine itself
// never reads the environment or argv; everything it needs arrives as a
// fully-populated TestConfig resolved here or supplied by the caller.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// envPrefix namespaces the harness's environment variables, e.g.
// ORC_BASE_URL, ORC_API_KEY, ORC_MODEL.
const envPrefix = "ORC_"

// TestConfig is the resolved configuration for one run. It is immutable
// for the duration of the run; every template receives the same value.
type TestConfig struct {
	// BaseURL of the service under test, without the trailing slash.
	BaseURL string `koanf:"base_url"`

	// APIKey presented on every request.
	APIKey string `koanf:"api_key"`

	// Model requested by every template.
	Model string `koanf:"model"`

	// AuthHeader is the header name carrying the credential.
	AuthHeader string `koanf:"auth_header"`

	// BearerPrefix prepends "Bearer " to the credential value.
	BearerPrefix bool `koanf:"bearer_prefix"`

	// TimeoutSeconds bounds each exchange including full stream drain.
	TimeoutSeconds int `koanf:"timeout_seconds"`
}

// Timeout returns the per-test timeout as a duration.
func (c TestConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// Validate checks the fields no run can proceed without.
func (c TestConfig) Validate() error {
	if c.BaseURL == "" {
		return fmt.Errorf("base_url is required")
	}
	if c.Model == "" {
		return fmt.Errorf("model is required")
	}
	return nil
}

// Load resolves a TestConfig from the environment and, when path is
// non-empty, a YAML file. File values override environment values; both
// override defaults.
func Load(path string) (*TestConfig, error) {
	k := koanf.New(".")

	// Load environment variables
	if err := k.Load(env.Provider(envPrefix, ".", func(s string) string {
		return strings.ToLower(strings.TrimPrefix(s, envPrefix))
	}), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment: %w", err)
	}

	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", path, err)
		}
	}

	// Default values
	if !k.Exists("auth_header") {
		k.Set("auth_header", "Authorization")
	}
	if !k.Exists("bearer_prefix") {
		k.Set("bearer_prefix", true)
	}
	if !k.Exists("timeout_seconds") {
		k.Set("timeout_seconds", 120)
	}

	var cfg TestConfig
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	cfg.BaseURL = strings.TrimSuffix(cfg.BaseURL, "/")

	return &cfg, nil
}
