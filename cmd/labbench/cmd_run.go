package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"labbench/internal/blob"
	"labbench/internal/config"
	"labbench/internal/core"
	"labbench/internal/labreport"
	"labbench/pkg/domain"
)

type runOptions struct {
	definition string
	save       bool
	resume     bool
	publish    bool
	trace      bool
	stats      bool
}

type runResult struct {
	State  core.State                  `json:"state"`
	Report labreport.Report            `json:"report"`
	Object *blob.Object                `json:"object,omitempty"`
	Saved  bool                        `json:"saved"`
	Stats  *core.ExpvarMetricsSnapshot `json:"stats,omitempty"`
}

func newRunCmd() *cobra.Command {
	var opts runOptions
	cmd := &cobra.Command{
		Use:   "run <script.yaml>",
		Short: "Replay a recorded action script against an experiment",
		Long: `Replay the actions of a script in order and print the resulting progress.

The script names a built-in experiment unless --definition points at an
experiment file. Execution stops at the first rejected action.

Examples:
  labbench run script.yaml
  labbench run --definition flame_test.yaml script.yaml
  labbench run --save --report script.yaml`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			jsonOut, _ := cmd.Flags().GetBool("json")
			rt, err := loadRuntime(cmd)
			if err != nil {
				return err
			}
			script, err := config.LoadScript(args[0])
			if err != nil {
				return err
			}
			exp, err := rt.resolveExperiment(script.Experiment, opts.definition)
			if err != nil {
				return err
			}
			if (opts.save || opts.resume || opts.publish) && script.Session == "" {
				return errors.New("script has no session id; --save, --resume and --report need one")
			}

			var extra []core.EngineOption
			if opts.trace {
				extra = append(extra, core.WithTracer(core.NewJSONTracer(cmd.ErrOrStderr())))
			}
			res, err := runScript(cmd.Context(), rt, exp, script, opts, extra...)
			if err != nil {
				return err
			}
			if jsonOut {
				return writeJSON(cmd, res)
			}
			printResult(cmd.OutOrStdout(), res)
			return nil
		},
	}

	cmd.Flags().StringVar(&opts.definition, "definition", "", "Experiment definition file (overrides the script's experiment)")
	cmd.Flags().BoolVar(&opts.save, "save", false, "Save the session to the configured store")
	cmd.Flags().BoolVar(&opts.resume, "resume", false, "Continue from the saved session before replaying")
	cmd.Flags().BoolVar(&opts.publish, "report", false, "Publish the lab report to the configured blob store")
	cmd.Flags().BoolVar(&opts.trace, "trace", false, "Write one JSON trace line per engine operation to stderr")
	cmd.Flags().BoolVar(&opts.stats, "stats", false, "Include per-operation counts and latencies in the output")

	return cmd
}

func runScript(ctx context.Context, rt runtime, exp domain.ExperimentConfig, script config.Script, opts runOptions, extra ...core.EngineOption) (runResult, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	var stats *core.ExpvarMetricsRecorder
	if opts.stats {
		stats = core.NewExpvarMetricsRecorder("")
		extra = append(extra, core.WithMetricsRecorder(stats))
	}
	engine, err := core.NewEngine(exp, rt.engineOptions(exp, script.Session, extra...)...)
	if err != nil {
		return runResult{}, err
	}

	var store core.SessionStore
	if opts.save || opts.resume {
		store, err = core.OpenSessionStore(ctx, rt.cfg.Storage)
		if err != nil {
			return runResult{}, fmt.Errorf("open session store: %w", err)
		}
		defer func() { _ = store.Close() }()
	}
	if opts.resume {
		if _, err := core.ResumeSession(ctx, store, script.Session, engine); err != nil && !errors.Is(err, domain.ErrSessionNotFound) {
			return runResult{}, err
		}
	}

	state := engine.View()
	for i, action := range script.Actions {
		if state, err = engine.Apply(ctx, action); err != nil {
			return runResult{}, fmt.Errorf("action %d (%s): %w", i, action.Op, err)
		}
	}
	rt.logger.Info("script replayed", "experiment", exp.ID, "session", script.Session,
		"actions", len(script.Actions), "step", state.Step.ID, "complete", state.StepComplete)

	res := runResult{State: state, Report: labreport.Build(exp, script.Session, state, time.Now())}
	if stats != nil {
		snap := stats.Snapshot()
		res.Stats = &snap
	}
	if opts.save {
		if err := core.SaveSession(ctx, store, script.Session, engine); err != nil {
			return runResult{}, err
		}
		res.Saved = true
	}
	if opts.publish {
		reports, err := blob.Open(ctx, rt.cfg.Blob)
		if err != nil {
			return runResult{}, fmt.Errorf("open blob store: %w", err)
		}
		obj, err := labreport.Publish(ctx, reports, res.Report)
		if err != nil {
			return runResult{}, err
		}
		res.Object = &obj
	}
	return res, nil
}

func printResult(w io.Writer, res runResult) {
	r := res.Report
	fmt.Fprintf(w, "%s (%s)\n", r.Experiment, r.Name)
	status := "in progress"
	if r.Complete {
		status = "complete"
	}
	fmt.Fprintf(w, "step %d/%d %s: %s\n", res.State.StepIndex+1, res.State.StepCount, r.CurrentStep, status)
	if len(r.Observations) > 0 {
		fmt.Fprintln(w, "observations:")
		for _, o := range r.Observations {
			value := o.Text
			if o.Number != nil {
				value = strconv.FormatFloat(*o.Number, 'g', -1, 64)
			}
			fmt.Fprintf(w, "  %-16s %s\n", o.Slot, value)
		}
	}
	if res.Saved {
		fmt.Fprintf(w, "saved session %s\n", r.Session)
	}
	if res.Object != nil {
		fmt.Fprintf(w, "report: %s (%d bytes)\n", res.Object.Key, res.Object.Size)
	}
	if res.Stats != nil {
		exp, ok := res.Stats.Experiments[r.Experiment]
		if !ok {
			return
		}
		ops := make([]string, 0, len(exp.Operations))
		for op := range exp.Operations {
			ops = append(ops, op)
		}
		sort.Strings(ops)
		fmt.Fprintln(w, "operations:")
		for _, op := range ops {
			st := exp.Operations[op]
			fmt.Fprintf(w, "  %-16s ok=%d failed=%d %.3fms\n", op, st.Succeeded, st.Rejected, st.DurationMS)
		}
		reasons := make([]string, 0, len(exp.Rejections))
		for reason := range exp.Rejections {
			reasons = append(reasons, reason)
		}
		sort.Strings(reasons)
		for _, reason := range reasons {
			fmt.Fprintf(w, "  rejected (%s): %d\n", reason, exp.Rejections[reason])
		}
	}
}
