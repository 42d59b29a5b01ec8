package step

import (
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/xraph/stepchain"
)

type pipelineFile struct {
	Steps []stepEntry `yaml:"steps"`
}

type stepEntry struct {
	Name               string `yaml:"name"`
	Next               string `yaml:"next"`
	MaxIterations      *int   `yaml:"max_iterations"`
	RepeatDelaySeconds *int   `yaml:"repeat_delay_seconds"`
	TimeoutSeconds     int    `yaml:"timeout_seconds"`
}

// LoadConfigFile reads a YAML pipeline file from path.
func LoadConfigFile(path string) ([]Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open pipeline file: %w", err)
	}
	defer f.Close()
	return LoadConfigs(f)
}

// LoadConfigs parses a YAML pipeline definition:
//
//	steps:
//	  - name: create_volume
//	    next: wait_created
//	  - name: wait_created
//	    next: attach_volume
//	    max_iterations: 10
//	    repeat_delay_seconds: 30
//
// Omitted bounds take the package defaults. Names must be unique and
// non-empty, and every next must name a step in the same file.
func LoadConfigs(r io.Reader) ([]Config, error) {
	var pf pipelineFile
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&pf); err != nil && !errors.Is(err, io.EOF) {
		return nil, stepchain.NewConfigError("", fmt.Errorf("parse pipeline file: %w", err))
	}
	if len(pf.Steps) == 0 {
		return nil, stepchain.NewConfigError("", errors.New("pipeline file defines no steps"))
	}

	configs := make([]Config, 0, len(pf.Steps))
	seen := make(map[string]struct{}, len(pf.Steps))
	for i, e := range pf.Steps {
		cfg := DefaultConfig(e.Name)
		cfg.Next = e.Next
		if e.MaxIterations != nil {
			cfg.MaxIterations = *e.MaxIterations
		}
		if e.RepeatDelaySeconds != nil {
			cfg.RepeatDelay = time.Duration(*e.RepeatDelaySeconds) * time.Second
		}
		cfg.Timeout = time.Duration(e.TimeoutSeconds) * time.Second

		if err := cfg.Validate(); err != nil {
			return nil, fmt.Errorf("steps[%d]: %w", i, err)
		}
		if _, dup := seen[cfg.Name]; dup {
			return nil, stepchain.NewConfigError(cfg.Name, errors.New("duplicate step name"))
		}
		seen[cfg.Name] = struct{}{}
		configs = append(configs, cfg)
	}

	for _, cfg := range configs {
		if cfg.Next == "" {
			continue
		}
		if _, ok := seen[cfg.Next]; !ok {
			return nil, stepchain.NewConfigError(cfg.Name,
				fmt.Errorf("%w: next step %q is not defined", stepchain.ErrUnknownStep, cfg.Next))
		}
	}
	return configs, nil
}
