package domain

import (
	"errors"
	"strings"
)

// Recoverable engine errors. They originate from ordinary UI races (double
// clicks, stale drops) and are returned wrapped; match them with errors.Is.
var (
	ErrEquipmentNotFound  = errors.New("equipment not found")
	ErrInvalidAmount      = errors.New("invalid amount")
	ErrUnknownChemical    = errors.New("unknown chemical")
	ErrUnknownEquipment   = errors.New("unknown equipment definition")
	ErrDuplicateEquipment = errors.New("equipment already placed")
	ErrEmptyHistory       = errors.New("nothing to undo")
	ErrStepNotAdvanceable = errors.New("step not advanceable")
	ErrPreviousDisabled   = errors.New("previous step disabled")
	ErrUnknownAction      = errors.New("unknown action")
)

// ConfigError aggregates problems found while validating an experiment
// definition. It is fatal: the session cannot start.
type ConfigError struct {
	Experiment string
	Problems   []string
}

func (e *ConfigError) Error() string {
	var b strings.Builder
	b.WriteString("invalid experiment")
	if e.Experiment != "" {
		b.WriteString(" ")
		b.WriteString(e.Experiment)
	}
	b.WriteString(": ")
	b.WriteString(strings.Join(e.Problems, "; "))
	return b.String()
}

func (e *ConfigError) add(problem string) {
	e.Problems = append(e.Problems, problem)
}
