// Package fileloader loads service configuration from a YAML file on disk.
package fileloader

import (
	"context"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/ahrav/netscout/internal/config"
)

// FileLoader implements config.Loader over a file path. Fields absent from
// the file keep their defaults, so a minimal override file is enough.
type FileLoader struct {
	path string
}

// NewFileLoader creates a loader for the given path.
func NewFileLoader(path string) *FileLoader {
	return &FileLoader{path: path}
}

// Load reads the file, unmarshals it over the defaults, and validates the
// result.
func (l *FileLoader) Load(ctx context.Context) (*config.Config, error) {
	data, err := os.ReadFile(l.path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := config.Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}
