package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Load reads a YAML configuration file, applies it over Default(), expands
// ${ENV} references, and validates the result.
//
// An empty path returns the validated defaults. A .env file next to the
// working directory is loaded first when present so OPENROUTER_API_KEY can
// live outside the config file.
func Load(path string) (*Config, error) {
	// Missing .env is fine; a malformed one is not.
	if _, err := os.Stat(".env"); err == nil {
		if err := godotenv.Load(); err != nil {
			return nil, fmt.Errorf("load .env: %w", err)
		}
	}

	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		expanded := os.ExpandEnv(string(data))
		dec := yaml.NewDecoder(strings.NewReader(expanded))
		dec.KnownFields(true)
		if err := dec.Decode(cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// APIKey resolves the configured API key from the environment. The empty
// string means the key is absent; callers decide whether that is fatal
// (the workspace validator reports it, the core never crashes on it).
func (c *Config) APIKey() string {
	env := c.LLM.APIKeyEnv
	if env == "" {
		env = "OPENROUTER_API_KEY"
	}
	return os.Getenv(env)
}
