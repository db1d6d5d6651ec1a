package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
)

// Loaded captures resolved config path, parsed values, and non-fatal warnings.
type Loaded struct {
	Path     string
	Config   Config
	Warnings []Warning
	Exists   bool
}

// Load resolves, reads, parses, validates, and applies environment overrides.
func Load(explicitPath string) (Loaded, error) {
	resolvedPath, err := ResolvePath(explicitPath)
	if err != nil {
		return Loaded{}, err
	}

	base := Default()
	content, err := os.ReadFile(resolvedPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			cfg := base
			if envErr := applyEnv(&cfg); envErr != nil {
				return Loaded{}, envErr
			}
			return Loaded{
				Path:   resolvedPath,
				Config: cfg,
				Warnings: []Warning{{
					Message: fmt.Sprintf("config file %q not found; using defaults", resolvedPath),
				}},
				Exists: false,
			}, nil
		}
		return Loaded{}, fmt.Errorf("read config %q: %w", resolvedPath, err)
	}

	cfg, warnings, err := Parse(string(content), base)
	if err != nil {
		return Loaded{}, fmt.Errorf("parse config %q: %w", resolvedPath, err)
	}

	if err := applyEnv(&cfg); err != nil {
		return Loaded{}, err
	}

	return Loaded{
		Path:     resolvedPath,
		Config:   cfg,
		Warnings: warnings,
		Exists:   true,
	}, nil
}

// applyEnv layers environment overrides on top of file-derived values.
func applyEnv(cfg *Config) error {
	if raw := strings.TrimSpace(os.Getenv("PARAKEET_TRIGGER")); raw != "" {
		if err := setTrigger(&cfg.Trigger, raw); err != nil {
			return fmt.Errorf("invalid PARAKEET_TRIGGER: %w", err)
		}
		if len(cfg.Trigger.Bytes) == 0 {
			return errors.New("PARAKEET_TRIGGER must decode to at least one byte")
		}
	}

	if raw := strings.TrimSpace(os.Getenv("PARAKEET_SOCKET")); raw != "" {
		cfg.Server.Socket = raw
	}

	return nil
}
