package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"labbench/internal/core"
)

// Script is a recorded sequence of learner actions replayed by `labbench run`.
type Script struct {
	// Experiment names a built-in experiment; ignored when a definition file
	// is passed on the command line.
	Experiment string        `yaml:"experiment"`
	Session    string        `yaml:"session,omitempty"`
	Actions    []core.Action `yaml:"actions"`
}

// LoadScript reads an action script.
func LoadScript(path string) (Script, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Script{}, fmt.Errorf("reading script: %w", err)
	}
	var s Script
	if err := yaml.Unmarshal(data, &s); err != nil {
		return Script{}, fmt.Errorf("parsing script: %w", err)
	}
	for i, a := range s.Actions {
		if a.Op == "" {
			return Script{}, fmt.Errorf("parsing script: action %d has no op", i)
		}
	}
	return s, nil
}
