package config

import (
	"fmt"
	"log/slog"
	"os"

	"gopkg.in/yaml.v3"
)

// FileConfig is the on-disk YAML shape for dumpscope.yaml: a dump session
// descriptor plus orchestrator overrides, one top-level YAML file per
// concern.
type FileConfig struct {
	Session      DumpSessionConfig   `yaml:"session"`
	Orchestrator *OrchestratorOptions `yaml:"orchestrator,omitempty"`
}

// Load reads, parses, default-merges and validates a dumpscope.yaml file.
// Steps: read file, parse YAML, merge orchestrator overrides onto the
// literal defaults, validate everything, return ready-to-use config.
func Load(path string) (*FileConfig, error) {
	slog.Debug("loading configuration", "path", path)

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, NewLoadError(path, ErrConfigNotFound)
		}
		return nil, NewLoadError(path, err)
	}

	var fc FileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return nil, NewLoadError(path, fmt.Errorf("%w: %v", ErrInvalidYAML, err))
	}

	merged, err := MergeOrchestratorOptions(fc.Orchestrator)
	if err != nil {
		return nil, NewLoadError(path, err)
	}
	fc.Orchestrator = &merged

	v := NewValidator(&fc.Session, fc.Orchestrator)
	if err := v.ValidateAll(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrValidationFailed, err)
	}

	slog.Info("configuration loaded", "path", path, "dump_path", fc.Session.DumpPath)
	return &fc, nil
}
