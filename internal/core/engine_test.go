package core

import (
	"errors"
	"math"
	"testing"

	"labbench/pkg/domain"
)

func TestScenarioLatchedChlorineConclusion(t *testing.T) {
	engine := newBenchEngine(t)
	must(t, "place")(engine.Place(bg, "test_tube"))
	must(t, "salt")(engine.AddChemical(bg, "test_tube", "salt_sample", 4.0))
	must(t, "acid")(engine.AddChemical(bg, "test_tube", "conc_h2so4", 3))
	st := must(t, "heat on")(engine.SetFlag(bg, "heating", true))
	if got := st.Observations.Get("case2").Text; got != chlorineConclusion {
		t.Fatalf("case2 = %q, want %q", got, chlorineConclusion)
	}
	st = must(t, "heat off")(engine.SetFlag(bg, "heating", false))
	if got := st.Observations.Get("case2").Text; got != chlorineConclusion {
		t.Fatalf("case2 should stay latched, got %q", got)
	}
	if st.StepIndex != 3 || !st.StepComplete {
		t.Fatalf("expected terminal step complete, got index=%d complete=%v", st.StepIndex, st.StepComplete)
	}
}

func TestScenarioNoIndicatorNoPH(t *testing.T) {
	engine := newBenchEngine(t)
	must(t, "place")(engine.Place(bg, "beaker"))
	st := must(t, "acid")(engine.AddChemical(bg, "beaker", "hcl_0_01", 50))
	if st.Observations.Get("ph").Observed() {
		t.Fatalf("ph should stay unmeasured without indicator, got %s", st.Observations.Get("ph"))
	}
}

func TestScenarioPHPaperMeasuresAcid(t *testing.T) {
	engine := newBenchEngine(t)
	must(t, "place")(engine.Place(bg, "beaker"))
	must(t, "acid")(engine.AddChemical(bg, "beaker", "hcl_0_1", 50))
	st := must(t, "paper")(engine.AddChemical(bg, "beaker", "ph_paper", 1))
	v, ok := st.Observations.Get("ph").Value()
	if !ok || v != 1.00 {
		t.Fatalf("ph = %v (%v), want 1.00", v, ok)
	}
}

func TestScenarioHistoryEvictsOldest(t *testing.T) {
	engine := newBenchEngine(t)
	must(t, "place")(engine.Place(bg, "beaker"))
	// Entry #1 is the empty world, entry #2 the world holding only the beaker.
	afterFirst := engine.Export().World
	for i := 0; i < domain.MaxHistoryEntries; i++ {
		must(t, "add")(engine.AddChemical(bg, "beaker", "hcl_0_1", 1))
	}
	var last State
	for i := 0; i < domain.MaxHistoryEntries; i++ {
		last = must(t, "undo")(engine.Undo(bg))
	}
	if !last.World.Equal(afterFirst) {
		t.Fatalf("oldest remaining undo should recover entry #2")
	}
	if last.CanUndo {
		t.Fatalf("history should be exhausted")
	}
	if _, err := engine.Undo(bg); !errors.Is(err, domain.ErrEmptyHistory) {
		t.Fatalf("expected ErrEmptyHistory, got %v", err)
	}
}

func TestScenarioRemoveMissingLeavesWorld(t *testing.T) {
	engine := newBenchEngine(t)
	must(t, "place")(engine.Place(bg, "beaker"))
	before := engine.Export()
	st, err := engine.Remove(bg, "flask")
	if !errors.Is(err, domain.ErrEquipmentNotFound) {
		t.Fatalf("expected ErrEquipmentNotFound, got %v", err)
	}
	if !engine.Export().Equal(before) || !st.World.Equal(before.World) {
		t.Fatalf("failed remove mutated the world")
	}
	// The failed call pushed nothing: one undo empties history.
	must(t, "undo")(engine.Undo(bg))
	if _, err := engine.Undo(bg); !errors.Is(err, domain.ErrEmptyHistory) {
		t.Fatalf("failed mutation must not push history, got %v", err)
	}
}

func TestAccumulationLaw(t *testing.T) {
	engine := newBenchEngine(t)
	must(t, "place")(engine.Place(bg, "beaker"))
	for _, pair := range [][2]float64{{1.25, 2.5}, {0.5, 0.25}, {10, 20}} {
		must(t, "reset")(engine.Reset(bg))
		must(t, "place")(engine.Place(bg, "beaker"))
		must(t, "a1")(engine.AddChemical(bg, "beaker", "hcl_0_1", pair[0]))
		st := must(t, "a2")(engine.AddChemical(bg, "beaker", "hcl_0_1", pair[1]))
		if got := st.World.Instances["beaker"].Amount("hcl_0_1"); got != pair[0]+pair[1] {
			t.Fatalf("amount = %v, want %v", got, pair[0]+pair[1])
		}
		if n := len(st.World.Instances["beaker"].Contents); n != 1 {
			t.Fatalf("repeated additions must not duplicate entries, got %d", n)
		}
	}
}

func TestUndoInverseLaw(t *testing.T) {
	engine := newBenchEngine(t)
	ops := []func() (State, error){
		func() (State, error) { return engine.Place(bg, "test_tube") },
		func() (State, error) { return engine.AddChemical(bg, "test_tube", "salt_sample", 4) },
		func() (State, error) { return engine.Place(bg, "test_tube") },
		func() (State, error) { return engine.AddChemical(bg, "test_tube#2", "k2cr2o7", 1) },
		func() (State, error) { return engine.SetPosition(bg, "test_tube", 10, 20) },
		func() (State, error) { return engine.ToggleFlag(bg, "heating") },
		func() (State, error) { return engine.Consume(bg, "test_tube", "salt_sample", 1) },
		func() (State, error) { return engine.Remove(bg, "test_tube#2") },
		func() (State, error) { return engine.Observe(bg, "smell") },
		func() (State, error) { return engine.SetScalar(bg, "titre", 12.5) },
	}
	var before []domain.Snapshot
	for i, op := range ops {
		before = append(before, engine.Export())
		if _, err := op(); err != nil {
			t.Fatalf("op %d: %v", i, err)
		}
	}
	for i := len(ops) - 1; i >= 0; i-- {
		st := must(t, "undo")(engine.Undo(bg))
		if !st.World.Equal(before[i].World) || !engine.Export().Equal(before[i]) {
			t.Fatalf("undo %d did not restore the pre-operation state", i)
		}
	}
	if _, err := engine.Undo(bg); !errors.Is(err, domain.ErrEmptyHistory) {
		t.Fatalf("expected ErrEmptyHistory after walking back, got %v", err)
	}
}

func TestStepIndexMonotonicAcrossMutations(t *testing.T) {
	engine := newBenchEngine(t)
	prev := engine.View().StepIndex
	steps := []func() (State, error){
		func() (State, error) { return engine.Place(bg, "beaker") },
		func() (State, error) { return engine.Place(bg, "test_tube") },
		func() (State, error) { return engine.Remove(bg, "test_tube") },
		func() (State, error) { return engine.Remove(bg, "test_tube") },
		func() (State, error) { return engine.Place(bg, "test_tube") },
		func() (State, error) { return engine.AddChemical(bg, "test_tube#2", "salt_sample", 5) },
		func() (State, error) { return engine.AddChemical(bg, "test_tube#2", "salt_sample", -1) },
		func() (State, error) { return engine.Consume(bg, "test_tube#2", "salt_sample", 5) },
		func() (State, error) { return engine.Pulse(bg, "heating") },
		func() (State, error) { return engine.AdvanceIfReady(bg) },
	}
	for i, op := range steps {
		st, _ := op()
		if st.StepIndex < prev {
			t.Fatalf("op %d decreased step from %d to %d", i, prev, st.StepIndex)
		}
		prev = st.StepIndex
	}
	if prev < 2 {
		t.Fatalf("expected the sequence to progress, got step %d", prev)
	}
}

func TestRuleOrderOverrides(t *testing.T) {
	engine := newBenchEngine(t)
	must(t, "place")(engine.Place(bg, "test_tube"))
	st := must(t, "heat")(engine.SetFlag(bg, "heating", true))
	if got := st.Observations.Get("color").Text; got != "orange" {
		t.Fatalf("color = %q, want orange", got)
	}
	st = must(t, "dichromate")(engine.AddChemical(bg, "test_tube", "k2cr2o7", 1))
	if got := st.Observations.Get("color").Text; got != "green" {
		t.Fatalf("later rule should override, got %q", got)
	}
}

func TestPulseIsOneAtomicEntry(t *testing.T) {
	engine := newBenchEngine(t)
	must(t, "place")(engine.Place(bg, "test_tube"))
	must(t, "salt")(engine.AddChemical(bg, "test_tube", "salt_sample", 4))
	must(t, "acid")(engine.AddChemical(bg, "test_tube", "conc_h2so4", 3))
	before := engine.Export()
	st := must(t, "pulse")(engine.Pulse(bg, "heating"))
	if st.World.Flags["heating"] {
		t.Fatalf("pulse flag should be lowered afterwards")
	}
	if st.Observations.Get("case2").Text != chlorineConclusion {
		t.Fatalf("pulse should latch the conclusion")
	}
	if !st.StepComplete {
		t.Fatalf("pulse should complete the heating step")
	}
	must(t, "undo")(engine.Undo(bg))
	if !engine.Export().Equal(before) {
		t.Fatalf("one undo should revert the whole pulse")
	}
}

func TestPulseAdvancesAtMostOneStep(t *testing.T) {
	cfg := benchConfig()
	cfg.Steps = []domain.Step{
		{ID: "heat", Title: "Heat", Advance: domain.FlagIsSet("heating")},
		{ID: "beaker", Title: "Place a beaker", Advance: domain.HasEquipment("beaker")},
		{ID: "observe", Title: "Observe", Advance: domain.Observed("case2")},
	}
	engine, err := NewEngine(cfg)
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}
	if st := must(t, "place")(engine.Place(bg, "beaker")); st.StepIndex != 0 {
		t.Fatalf("placing the beaker should not pass the heating step, got %d", st.StepIndex)
	}
	st := must(t, "pulse")(engine.Pulse(bg, "heating"))
	if st.StepIndex != 1 {
		t.Fatalf("one pulse moved from step 0 to %d", st.StepIndex)
	}
	if st = must(t, "poll")(engine.AdvanceIfReady(bg)); st.StepIndex != 2 {
		t.Fatalf("next poll should pick up the placed beaker, got %d", st.StepIndex)
	}
}

func TestConsumeAbsentChemicalIsRejected(t *testing.T) {
	engine := newBenchEngine(t)
	must(t, "place")(engine.Place(bg, "test_tube"))
	before := engine.Export()
	st, err := engine.Consume(bg, "test_tube", "salt_sample", 1)
	if !errors.Is(err, domain.ErrInvalidAmount) {
		t.Fatalf("expected ErrInvalidAmount, got %v", err)
	}
	if !engine.Export().Equal(before) || !st.CanUndo {
		t.Fatalf("rejected consume changed the session")
	}
	must(t, "undo")(engine.Undo(bg))
	if st := engine.View(); st.CanUndo || len(st.World.Instances) != 0 {
		t.Fatalf("rejected consume should not add a history entry: %+v", st)
	}
}

func TestObserveLatchesFlag(t *testing.T) {
	engine := newBenchEngine(t)
	st := must(t, "observe")(engine.Observe(bg, "smell"))
	if !st.World.Flags[domain.ObserveFlag("smell")] {
		t.Fatalf("expected observe flag latched")
	}
}

func TestPlaceDuplicatesAndErrors(t *testing.T) {
	engine := newBenchEngine(t)
	first := must(t, "place 1")(engine.Place(bg, "test_tube"))
	second := must(t, "place 2")(engine.Place(bg, "test_tube"))
	if first.Placed != "test_tube" || second.Placed != "test_tube#2" {
		t.Fatalf("unexpected ids %q %q", first.Placed, second.Placed)
	}
	must(t, "burner")(engine.Place(bg, "burner"))
	if _, err := engine.Place(bg, "burner"); !errors.Is(err, domain.ErrDuplicateEquipment) {
		t.Fatalf("expected ErrDuplicateEquipment, got %v", err)
	}
	if _, err := engine.Place(bg, "centrifuge"); !errors.Is(err, domain.ErrUnknownEquipment) {
		t.Fatalf("expected ErrUnknownEquipment, got %v", err)
	}
	for _, amount := range []float64{0, -1, math.NaN(), math.Inf(1)} {
		if _, err := engine.AddChemical(bg, "test_tube", "salt_sample", amount); !errors.Is(err, domain.ErrInvalidAmount) {
			t.Fatalf("amount %v: expected ErrInvalidAmount, got %v", amount, err)
		}
	}
	if _, err := engine.AddChemical(bg, "test_tube", "unobtainium", 1); !errors.Is(err, domain.ErrUnknownChemical) {
		t.Fatalf("expected ErrUnknownChemical, got %v", err)
	}
	if _, err := engine.AddChemical(bg, "flask", "salt_sample", 1); !errors.Is(err, domain.ErrEquipmentNotFound) {
		t.Fatalf("expected ErrEquipmentNotFound, got %v", err)
	}
}

func TestStrictAdvanceAndPrevious(t *testing.T) {
	engine := newBenchEngine(t)
	if _, err := engine.Advance(bg); !errors.Is(err, domain.ErrStepNotAdvanceable) {
		t.Fatalf("expected ErrStepNotAdvanceable, got %v", err)
	}
	if _, err := engine.Previous(bg); !errors.Is(err, domain.ErrPreviousDisabled) {
		t.Fatalf("expected ErrPreviousDisabled at first step, got %v", err)
	}
	st := must(t, "place")(engine.Place(bg, "test_tube"))
	if st.StepIndex != 1 {
		t.Fatalf("placing the tube should advance, got %d", st.StepIndex)
	}
	st = must(t, "previous")(engine.Previous(bg))
	if st.StepIndex != 0 {
		t.Fatalf("previous should return to step 0, got %d", st.StepIndex)
	}
	if !st.CanAdvance {
		t.Fatalf("step 0 predicate still holds")
	}
	st = must(t, "advance")(engine.Advance(bg))
	if st.StepIndex != 1 {
		t.Fatalf("strict advance should move on, got %d", st.StepIndex)
	}
	must(t, "salt")(engine.AddChemical(bg, "test_tube", "salt_sample", 4))
	if _, err := engine.Previous(bg); !errors.Is(err, domain.ErrPreviousDisabled) {
		t.Fatalf("step 1 is not reversible, got %v", err)
	}
}

func TestPreviousDisabledByPolicy(t *testing.T) {
	cfg := benchConfig()
	cfg.Policy.AllowPrevious = false
	engine, err := NewEngine(cfg)
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}
	must(t, "place")(engine.Place(bg, "test_tube"))
	if _, err := engine.Previous(bg); !errors.Is(err, domain.ErrPreviousDisabled) {
		t.Fatalf("expected ErrPreviousDisabled, got %v", err)
	}
}

func TestResetClearsEverything(t *testing.T) {
	engine := newBenchEngine(t)
	must(t, "place")(engine.Place(bg, "test_tube"))
	must(t, "heat")(engine.SetFlag(bg, "heating", true))
	st := must(t, "reset")(engine.Reset(bg))
	if len(st.World.Instances) != 0 || len(st.World.Flags) != 0 || len(st.Observations.Slots()) != 0 {
		t.Fatalf("reset left state behind: %+v", st)
	}
	if st.StepIndex != 0 || st.StepComplete || st.CanUndo {
		t.Fatalf("reset should re-enter step 0 with empty history: %+v", st)
	}
	second := must(t, "place again")(engine.Place(bg, "test_tube"))
	if second.Placed != "test_tube" {
		t.Fatalf("instance numbering should restart after reset, got %s", second.Placed)
	}
}

func TestExportRestore(t *testing.T) {
	engine := newBenchEngine(t)
	must(t, "place")(engine.Place(bg, "beaker"))
	must(t, "acid")(engine.AddChemical(bg, "beaker", "hcl_0_1", 5))
	saved := engine.Export()

	other := newBenchEngine(t)
	st := must(t, "restore")(other.Restore(bg, saved))
	if !other.Export().Equal(saved) || st.CanUndo {
		t.Fatalf("restore should reproduce the snapshot with empty history")
	}

	bad := saved.Clone()
	bad.World.Instances["beaker"].Contents["mystery"] = domain.ChemicalQuantity{Chemical: "mystery", Amount: 1}
	var cfgErr *domain.ConfigError
	if _, err := other.Restore(bg, bad); !errors.As(err, &cfgErr) {
		t.Fatalf("expected ConfigError for unknown chemical, got %v", err)
	}
	bad = saved.Clone()
	bad.Step = 99
	if _, err := other.Restore(bg, bad); err == nil {
		t.Fatalf("expected out of range step to fail")
	}
	if !other.Export().Equal(saved) {
		t.Fatalf("failed restore changed the session")
	}
}

func TestNewEngineRejectsBrokenConfig(t *testing.T) {
	cfg := benchConfig()
	cfg.Steps = append(cfg.Steps, domain.Step{ID: "bad", Advance: domain.EquipmentHasChemical("test_tube", "nacl", 1)})
	_, err := NewEngine(cfg)
	var cfgErr *domain.ConfigError
	if !errors.As(err, &cfgErr) {
		t.Fatalf("expected ConfigError, got %v", err)
	}
}

func TestStateIsACopy(t *testing.T) {
	engine := newBenchEngine(t)
	st := must(t, "place")(engine.Place(bg, "beaker"))
	st.World.Instances["beaker"].Contents["hcl_0_1"] = domain.ChemicalQuantity{Amount: 99}
	st.Observations["ph"] = domain.NumberObservation(3)
	view := engine.View()
	if view.World.Instances["beaker"].Amount("hcl_0_1") != 0 || view.Observations.Get("ph").Observed() {
		t.Fatalf("mutating a returned state leaked into the engine")
	}
}

func TestHistoryLimitOption(t *testing.T) {
	engine := newBenchEngine(t, WithHistoryLimit(2))
	for i := 0; i < 4; i++ {
		must(t, "toggle")(engine.ToggleFlag(bg, "stirring"))
	}
	must(t, "undo")(engine.Undo(bg))
	must(t, "undo")(engine.Undo(bg))
	if _, err := engine.Undo(bg); !errors.Is(err, domain.ErrEmptyHistory) {
		t.Fatalf("expected history bounded at 2, got %v", err)
	}
}
