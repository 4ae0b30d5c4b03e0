package main

import (
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"labbench/internal/config"
	"labbench/internal/core"
	"labbench/internal/experiments"
	"labbench/internal/logging"
	"labbench/pkg/domain"
)

// runtime bundles the settings every command needs.
type runtime struct {
	cfg     config.AppConfig
	logger  *slog.Logger
	catalog *experiments.Registry
}

func loadRuntime(cmd *cobra.Command) (runtime, error) {
	cfg, err := config.LoadAppConfig()
	if err != nil {
		return runtime{}, err
	}
	logger := logging.New(logging.Config{Level: cfg.LogLevel, Format: cfg.LogFormat}, cmd.ErrOrStderr())
	return runtime{cfg: cfg, logger: logger, catalog: experiments.Default()}, nil
}

// engineOptions applies the process-wide history limit unless the definition
// sets its own.
func (r runtime) engineOptions(exp domain.ExperimentConfig, sessionID string, extra ...core.EngineOption) []core.EngineOption {
	opts := []core.EngineOption{core.WithLogger(r.logger.With("experiment", exp.ID))}
	if exp.HistoryLimit == 0 && r.cfg.HistoryLimit > 0 {
		opts = append(opts, core.WithHistoryLimit(r.cfg.HistoryLimit))
	}
	if sessionID != "" {
		opts = append(opts, core.WithSessionID(sessionID))
	}
	return append(opts, extra...)
}

// resolveExperiment loads a definition file when given, otherwise a built-in.
func (r runtime) resolveExperiment(name, definitionPath string) (domain.ExperimentConfig, error) {
	if definitionPath != "" {
		return config.LoadExperimentFile(definitionPath)
	}
	cfg, ok := r.catalog.Lookup(name)
	if !ok {
		return domain.ExperimentConfig{}, fmt.Errorf("unknown experiment %q (see 'labbench list')", name)
	}
	return cfg, nil
}

func writeJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
