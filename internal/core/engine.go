package core

import (
	"context"
	"sync"

	"labbench/pkg/domain"
)

// StepInfo describes the current step for the rendering layer.
type StepInfo struct {
	ID          string `json:"id"`
	Title       string `json:"title,omitempty"`
	Description string `json:"description,omitempty"`
	Reversible  bool   `json:"reversible,omitempty"`
}

// State is returned after every engine operation. It is a copy; mutating it
// has no effect on the engine.
type State struct {
	Experiment   string              `json:"experiment"`
	World        domain.WorldState   `json:"world"`
	Observations domain.Observations `json:"observations"`
	StepIndex    int                 `json:"step_index"`
	StepCount    int                 `json:"step_count"`
	Step         StepInfo            `json:"step"`
	StepComplete bool                `json:"step_complete"`
	CanAdvance   bool                `json:"can_advance"`
	CanUndo      bool                `json:"can_undo"`
	// Placed is the instance created by a place operation.
	Placed domain.InstanceID `json:"placed,omitempty"`
}

// Engine is the facade over world store, rule table, sequencer and history for
// one experiment session. Operations are serialised; each runs to completion
// before the next is accepted.
type Engine struct {
	mu           sync.Mutex
	cfg          domain.ExperimentConfig
	catalog      *domain.Catalog
	world        *WorldStore
	sequencer    *Sequencer
	history      *History
	observations domain.Observations
	opts         engineOptions
}

// NewEngine validates cfg and starts a session at the first step. An invalid
// definition yields a *domain.ConfigError.
func NewEngine(cfg domain.ExperimentConfig, opts ...EngineOption) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	options := defaultEngineOptions()
	for _, opt := range opts {
		opt(&options)
	}
	limit := cfg.HistoryLimit
	if options.historyLimit > 0 {
		limit = options.historyLimit
	}
	catalog := cfg.Catalog()
	e := &Engine{
		cfg:          cfg,
		catalog:      catalog,
		world:        NewWorldStore(catalog, cfg.RulesEngine()),
		sequencer:    NewSequencer(cfg.Steps, cfg.Policy),
		history:      NewHistory(limit),
		observations: domain.Observations{},
		opts:         options,
	}
	options.logger.Info("experiment loaded",
		"experiment", cfg.ID,
		"session", options.sessionID,
		"steps", len(cfg.Steps),
		"rules", len(cfg.Rules),
		"history_limit", e.history.Limit(),
	)
	return e, nil
}

// Config returns the experiment definition the engine was built from.
func (e *Engine) Config() domain.ExperimentConfig { return e.cfg }

// Catalog returns the definition lookup.
func (e *Engine) Catalog() *domain.Catalog { return e.catalog }

// SessionID returns the session label supplied via WithSessionID.
func (e *Engine) SessionID() string { return e.opts.sessionID }

// Place puts a new instance of def on the workbench. The new id is reported in
// State.Placed.
func (e *Engine) Place(ctx context.Context, def domain.DefinitionID) (State, error) {
	var placed domain.InstanceID
	st, err := e.run(ctx, "place", func(ctx context.Context) error {
		return e.mutate(ctx, func(tx *WorldTx) error {
			id, err := tx.PlaceEquipment(def)
			placed = id
			return err
		})
	})
	if err == nil {
		st.Placed = placed
	}
	return st, err
}

// Remove takes an instance off the workbench.
func (e *Engine) Remove(ctx context.Context, id domain.InstanceID) (State, error) {
	return e.run(ctx, "remove", func(ctx context.Context) error {
		return e.mutate(ctx, func(tx *WorldTx) error { return tx.RemoveEquipment(id) })
	})
}

// AddChemical pours amount of chemical into an instance.
func (e *Engine) AddChemical(ctx context.Context, id domain.InstanceID, chemical domain.ChemicalID, amount float64) (State, error) {
	return e.run(ctx, "add_chemical", func(ctx context.Context) error {
		return e.mutate(ctx, func(tx *WorldTx) error {
			_, err := tx.AddChemical(id, chemical, amount)
			return err
		})
	})
}

// Consume removes amount of chemical from an instance, e.g. sample used up by
// heating.
func (e *Engine) Consume(ctx context.Context, id domain.InstanceID, chemical domain.ChemicalID, amount float64) (State, error) {
	return e.run(ctx, "consume", func(ctx context.Context) error {
		return e.mutate(ctx, func(tx *WorldTx) error {
			_, err := tx.ConsumeChemical(id, chemical, amount)
			return err
		})
	})
}

// Observe records that the learner performed the named observation.
func (e *Engine) Observe(ctx context.Context, name string) (State, error) {
	return e.run(ctx, "observe", func(ctx context.Context) error {
		return e.mutate(ctx, func(tx *WorldTx) error {
			tx.SetFlag(domain.ObserveFlag(name), true)
			return nil
		})
	})
}

// SetFlag writes a named world flag.
func (e *Engine) SetFlag(ctx context.Context, name string, value bool) (State, error) {
	return e.run(ctx, "set_flag", func(ctx context.Context) error {
		return e.mutate(ctx, func(tx *WorldTx) error {
			tx.SetFlag(name, value)
			return nil
		})
	})
}

// ToggleFlag flips a named world flag.
func (e *Engine) ToggleFlag(ctx context.Context, name string) (State, error) {
	return e.run(ctx, "toggle_flag", func(ctx context.Context) error {
		return e.mutate(ctx, func(tx *WorldTx) error {
			tx.SetFlag(name, !tx.Flag(name))
			return nil
		})
	})
}

// SetScalar records a numeric reading.
func (e *Engine) SetScalar(ctx context.Context, name string, value float64) (State, error) {
	return e.run(ctx, "set_scalar", func(ctx context.Context) error {
		return e.mutate(ctx, func(tx *WorldTx) error { return tx.SetScalar(name, value) })
	})
}

// SetPosition stores the renderer-reported position of an instance.
func (e *Engine) SetPosition(ctx context.Context, id domain.InstanceID, x, y float64) (State, error) {
	return e.run(ctx, "set_position", func(ctx context.Context) error {
		return e.mutate(ctx, func(tx *WorldTx) error { return tx.SetPosition(id, x, y) })
	})
}

// Pulse is the completion trigger for a transient condition such as a heating
// pulse: the flag is raised, rules and the sequencer see it, then it is
// lowered again. The whole pulse is one history entry.
func (e *Engine) Pulse(ctx context.Context, flag string) (State, error) {
	return e.run(ctx, "pulse", func(ctx context.Context) error {
		return e.mutate(ctx,
			func(tx *WorldTx) error {
				tx.SetFlag(flag, true)
				return nil
			},
			func(tx *WorldTx) error {
				tx.SetFlag(flag, false)
				return nil
			},
		)
	})
}

// Undo restores the most recent snapshot. It does not push history.
func (e *Engine) Undo(ctx context.Context) (State, error) {
	return e.run(ctx, "undo", func(context.Context) error {
		snap, err := e.history.Undo()
		if err != nil {
			return err
		}
		e.restoreLocked(snap)
		return nil
	})
}

// Reset clears the world, observations, flags and history and re-enters the
// first step. It cannot fail.
func (e *Engine) Reset(ctx context.Context) (State, error) {
	return e.run(ctx, "reset", func(context.Context) error {
		e.world.Replace(domain.NewWorldState())
		e.observations = domain.Observations{}
		e.history.Clear()
		e.sequencer.Reset()
		return nil
	})
}

// Advance moves to the next step or fails with ErrStepNotAdvanceable.
func (e *Engine) Advance(ctx context.Context) (State, error) {
	return e.run(ctx, "advance", func(context.Context) error {
		return e.sequencer.Advance(e.viewLocked())
	})
}

// AdvanceIfReady polls the sequencer. It never fails.
func (e *Engine) AdvanceIfReady(ctx context.Context) (State, error) {
	return e.run(ctx, "advance_if_ready", func(context.Context) error {
		e.advanceLocked()
		return nil
	})
}

// Previous returns to the prior step when the experiment policy permits it.
func (e *Engine) Previous(ctx context.Context) (State, error) {
	return e.run(ctx, "previous", func(context.Context) error {
		return e.sequencer.Previous()
	})
}

// View returns the current state without changing anything.
func (e *Engine) View() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.stateLocked()
}

// Export returns a deep copy of the session position for persistence.
func (e *Engine) Export() domain.Snapshot {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.snapshotLocked()
}

// Restore replaces the session with a saved snapshot after validating it
// against the catalog. History is cleared.
func (e *Engine) Restore(ctx context.Context, snap domain.Snapshot) (State, error) {
	return e.run(ctx, "restore", func(context.Context) error {
		if err := e.catalog.ValidateWorld(snap.World); err != nil {
			return err
		}
		if err := e.sequencer.Restore(snap.Step, snap.Complete); err != nil {
			return err
		}
		e.world.Replace(snap.World)
		e.observations = snap.Observations.Clone()
		e.history.Clear()
		return nil
	})
}

func (e *Engine) run(ctx context.Context, op string, fn func(ctx context.Context) error) (State, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	started := e.opts.clock.Now()
	ctx, span := e.opts.tracer.Start(ctx, op)
	err := fn(ctx)
	outcome := Outcome{
		Experiment: e.cfg.ID,
		Session:    e.opts.sessionID,
		Operation:  op,
		Step:       e.sequencer.Current(),
		Complete:   e.sequencer.IsComplete(),
		Err:        err,
		Duration:   e.opts.clock.Now().Sub(started),
	}
	span.End(outcome)
	e.opts.metrics.Observe(ctx, outcome)

	entry := AuditEntry{
		Operation:  op,
		Session:    e.opts.sessionID,
		Experiment: e.cfg.ID,
		Step:       outcome.Step,
		Status:     outcome.Status(),
		Duration:   outcome.Duration,
		Timestamp:  started,
	}
	if err != nil {
		entry.Error = err.Error()
		e.opts.logger.Warn("operation rejected", "op", op, "experiment", e.cfg.ID, "session", e.opts.sessionID, "error", err)
	} else {
		e.opts.logger.Debug("operation applied", "op", op, "experiment", e.cfg.ID, "session", e.opts.sessionID,
			"step", e.sequencer.Current(), "complete", outcome.Complete, "duration", outcome.Duration)
	}
	e.opts.audit.Record(ctx, entry)
	return e.stateLocked(), err
}

// mutate applies fn as a rule-evaluated transaction and polls the sequencer
// once on the state it produced. Each settle fn runs as a further transaction
// that rules see but that never moves the step. Either everything succeeds and
// the pre-state is pushed to history, or the pre-state is restored.
func (e *Engine) mutate(ctx context.Context, fn func(tx *WorldTx) error, settle ...func(tx *WorldTx) error) error {
	before := e.snapshotLocked()
	if err := e.applyLocked(ctx, fn); err != nil {
		e.restoreLocked(before)
		return err
	}
	e.advanceLocked()
	for _, next := range settle {
		if err := e.applyLocked(ctx, next); err != nil {
			e.restoreLocked(before)
			return err
		}
	}
	e.history.Push(before)
	return nil
}

func (e *Engine) applyLocked(ctx context.Context, fn func(tx *WorldTx) error) error {
	eval, err := e.world.RunInTransaction(ctx, e.observations, fn)
	if err != nil {
		return err
	}
	e.observations = eval.Observations
	if len(eval.Fired) > 0 {
		e.opts.logger.Debug("rules fired", "experiment", e.cfg.ID, "rules", eval.Fired)
	}
	return nil
}

func (e *Engine) advanceLocked() {
	from := e.sequencer.Current()
	if e.sequencer.AdvanceIfReady(e.viewLocked()) {
		e.opts.logger.Info("step advanced",
			"experiment", e.cfg.ID,
			"session", e.opts.sessionID,
			"from", from,
			"to", e.sequencer.Current(),
			"complete", e.sequencer.IsComplete(),
		)
	}
}

func (e *Engine) viewLocked() domain.StateView {
	world := e.world.State()
	return domain.NewStateView(&world, e.observations, e.catalog)
}

func (e *Engine) snapshotLocked() domain.Snapshot {
	return domain.Snapshot{
		World:        e.world.State(),
		Observations: e.observations.Clone(),
		Step:         e.sequencer.Current(),
		Complete:     e.sequencer.IsComplete(),
	}
}

func (e *Engine) restoreLocked(snap domain.Snapshot) {
	e.world.Replace(snap.World)
	e.observations = snap.Observations.Clone()
	if err := e.sequencer.Restore(snap.Step, snap.Complete); err != nil {
		e.opts.logger.Error("restore step", "experiment", e.cfg.ID, "error", err)
	}
}

func (e *Engine) stateLocked() State {
	world := e.world.State()
	view := domain.NewStateView(&world, e.observations, e.catalog)
	step := e.sequencer.Step()
	return State{
		Experiment:   e.cfg.ID,
		World:        world,
		Observations: e.observations.Clone(),
		StepIndex:    e.sequencer.Current(),
		StepCount:    e.sequencer.Len(),
		Step: StepInfo{
			ID:          step.ID,
			Title:       step.Title,
			Description: step.Description,
			Reversible:  step.Reversible,
		},
		StepComplete: e.sequencer.IsComplete(),
		CanAdvance:   e.sequencer.CanAdvance(view),
		CanUndo:      e.history.Len() > 0,
	}
}
