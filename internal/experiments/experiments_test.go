package experiments_test

import (
	"context"
	"strings"
	"testing"

	"labbench/internal/core"
	"labbench/internal/experiments"
	"labbench/pkg/domain"
)

var ctx = context.Background()

type runner struct {
	t      *testing.T
	engine *core.Engine
	state  core.State
}

func start(t *testing.T, name string) *runner {
	t.Helper()
	cfg, ok := experiments.Default().Lookup(name)
	if !ok {
		t.Fatalf("experiment %s not registered", name)
	}
	engine, err := core.NewEngine(cfg)
	if err != nil {
		t.Fatalf("NewEngine(%s): %v", name, err)
	}
	return &runner{t: t, engine: engine, state: engine.View()}
}

// do records the state returned by an engine call, failing on error.
func (r *runner) do(label string) func(core.State, error) {
	r.t.Helper()
	return func(st core.State, err error) {
		r.t.Helper()
		if err != nil {
			r.t.Fatalf("%s: %v", label, err)
		}
		r.state = st
	}
}

func (r *runner) expectStep(id string) {
	r.t.Helper()
	if r.state.Step.ID != id {
		r.t.Fatalf("expected step %s, at %s (index %d)", id, r.state.Step.ID, r.state.StepIndex)
	}
}

func TestRegistry(t *testing.T) {
	reg := experiments.Default()
	want := []string{"acid-standardization", "ph-comparison", "salt-analysis"}
	if got := reg.Names(); strings.Join(got, ",") != strings.Join(want, ",") {
		t.Fatalf("names = %v", got)
	}
	if _, ok := reg.Lookup("flame-test"); ok {
		t.Fatalf("unexpected experiment")
	}
	if err := reg.Register(experiments.PHComparison); err == nil {
		t.Fatalf("expected duplicate registration to fail")
	}
	broken := func() domain.ExperimentConfig { return domain.ExperimentConfig{ID: "broken"} }
	if err := reg.Register(broken); err == nil {
		t.Fatalf("expected invalid definition to be rejected")
	}
}

func TestSaltAnalysisWalkthrough(t *testing.T) {
	r := start(t, "salt-analysis")
	r.do("tube")(r.engine.Place(ctx, "test_tube"))
	r.do("burner")(r.engine.Place(ctx, "burner"))
	r.expectStep("add-salt")
	r.do("salt")(r.engine.AddChemical(ctx, "test_tube", "salt_sample", 4))
	r.expectStep("add-acid")
	r.do("acid")(r.engine.AddChemical(ctx, "test_tube", "conc_h2so4", 3))
	if got := r.state.Observations.Get(experiments.SlotColdReaction).Text; got != experiments.ColdReactionConclusion {
		t.Fatalf("cold reaction = %q", got)
	}
	r.expectStep("heat")
	r.do("holder")(r.engine.Place(ctx, "test_tube_holder"))
	r.do("heat")(r.engine.Pulse(ctx, experiments.FlagHeating))
	if got := r.state.Observations.Get(experiments.SlotHeatedGas).Text; got != experiments.ChlorideConclusion {
		t.Fatalf("case2 = %q", got)
	}
	if r.state.World.Flags[experiments.FlagHeating] {
		t.Fatalf("heating pulse should end lowered")
	}
	r.expectStep("smell")
	r.do("smell")(r.engine.Observe(ctx, "smell"))
	r.expectStep("chromyl-test")

	r.do("dichromate")(r.engine.AddChemical(ctx, "test_tube", "k2cr2o7", 1))
	r.do("heat again")(r.engine.Pulse(ctx, experiments.FlagHeating))
	if got := r.state.Observations.Get(experiments.SlotTubeColor).Text; got != "red-orange vapours" {
		t.Fatalf("dichromate rule should override heating colour, got %q", got)
	}
	r.expectStep("nitroprusside-test")

	r.do("second tube")(r.engine.Place(ctx, "test_tube"))
	if r.state.Placed != "test_tube#2" {
		t.Fatalf("unexpected id %s", r.state.Placed)
	}
	r.do("extract")(r.engine.AddChemical(ctx, "test_tube#2", "sodium_carbonate_extract", 2))
	r.do("nitroprusside")(r.engine.AddChemical(ctx, "test_tube#2", "sodium_nitroprusside", 1))
	r.do("used up")(r.engine.Consume(ctx, "test_tube#2", "sodium_nitroprusside", 1))
	if got := r.state.Observations.Get(experiments.SlotSulphide).Text; got != experiments.SulphideConclusion {
		t.Fatalf("sulphide conclusion should stay latched, got %q", got)
	}
	if !r.state.StepComplete {
		t.Fatalf("experiment should be complete at %s", r.state.Step.ID)
	}
}

func TestSaltAnalysisColdReactionFiresOnce(t *testing.T) {
	r := start(t, "salt-analysis")
	r.do("tube")(r.engine.Place(ctx, "test_tube"))
	r.do("salt")(r.engine.AddChemical(ctx, "test_tube", "salt_sample", 1))
	r.do("acid")(r.engine.AddChemical(ctx, "test_tube", "conc_h2so4", 1))
	if !r.state.World.Flags[domain.FiredFlag("cold-reaction")] {
		t.Fatalf("once rule should record that it fired")
	}
	r.do("undo")(r.engine.Undo(ctx))
	if r.state.World.Flags[domain.FiredFlag("cold-reaction")] || r.state.Observations.Get(experiments.SlotColdReaction).Observed() {
		t.Fatalf("undo should rewind the fired marker and its conclusion")
	}
}

func TestAcidStandardizationWalkthrough(t *testing.T) {
	r := start(t, "acid-standardization")
	r.do("burette")(r.engine.Place(ctx, "burette"))
	r.do("flask")(r.engine.Place(ctx, "conical_flask"))
	r.do("fill")(r.engine.AddChemical(ctx, "burette", "naoh_0_1", 50))
	r.do("pipette")(r.engine.Place(ctx, "pipette"))
	r.do("acid")(r.engine.AddChemical(ctx, "conical_flask", "hcl_sample", 10))
	r.expectStep("indicator")
	r.do("indicator")(r.engine.AddChemical(ctx, "conical_flask", "phenolphthalein", 0.1))
	if got := r.state.Observations.Get(experiments.SlotFlaskColor).Text; got != "colourless" {
		t.Fatalf("flask colour = %q", got)
	}
	r.expectStep("titrate")
	r.do("run 9.5")(r.engine.AddChemical(ctx, "conical_flask", "naoh_0_1", 9.5))
	if r.state.Observations.Get(experiments.SlotEndpoint).Observed() {
		t.Fatalf("endpoint reached too early")
	}
	r.do("drop")(r.engine.AddChemical(ctx, "conical_flask", "naoh_0_1", 0.5))
	if got := r.state.Observations.Get(experiments.SlotFlaskColor).Text; got != "pale pink" {
		t.Fatalf("flask colour at endpoint = %q", got)
	}
	r.expectStep("record")
	r.do("reading")(r.engine.SetScalar(ctx, experiments.ScalarBuretteReading, 10))
	m, ok := r.state.Observations.Get(experiments.SlotMolarity).Value()
	if !ok || m != 0.1 {
		t.Fatalf("molarity = %v (%v)", m, ok)
	}
	if titre, _ := r.state.Observations.Get(experiments.SlotTitre).Value(); titre != 10 {
		t.Fatalf("titre = %v", titre)
	}
	if !r.state.StepComplete {
		t.Fatalf("expected completion")
	}
}

func TestPHComparisonWalkthrough(t *testing.T) {
	r := start(t, "ph-comparison")
	for i := 0; i < 3; i++ {
		r.do("beaker")(r.engine.Place(ctx, "beaker"))
	}
	r.expectStep("fill")
	r.do("hcl")(r.engine.AddChemical(ctx, "beaker", "hcl_0_1", 50))
	r.do("dilute")(r.engine.AddChemical(ctx, "beaker#2", "hcl_0_01", 50))
	r.do("acetic")(r.engine.AddChemical(ctx, "beaker#3", "ch3cooh_0_1", 50))
	r.expectStep("measure")

	want := map[int]float64{1: 1.00, 2: 2.00, 3: 2.87}
	for n := range want {
		if r.state.Observations.Get(experiments.PHSlot(n)).Observed() {
			t.Fatalf("pH %d measured before indicator", n)
		}
	}
	r.do("paper 1")(r.engine.AddChemical(ctx, "beaker", "ph_paper", 1))
	r.do("paper 2")(r.engine.AddChemical(ctx, "beaker#2", "ph_paper", 1))
	r.do("paper 3")(r.engine.AddChemical(ctx, "beaker#3", "ph_paper", 1))
	for n, ph := range want {
		got, ok := r.state.Observations.Get(experiments.PHSlot(n)).Value()
		if !ok || got != ph {
			t.Fatalf("pH %d = %v (%v), want %v", n, got, ok, ph)
		}
	}
	if got := r.state.Observations.Get(experiments.PaperSlot(1)).Text; got != "red" {
		t.Fatalf("paper 1 colour = %q", got)
	}
	comparison := r.state.Observations.Get(experiments.SlotComparison).Text
	if !strings.HasPrefix(comparison, "Most to least acidic: 0.1 M HCl (pH 1.00) > 0.01 M HCl") {
		t.Fatalf("unexpected comparison %q", comparison)
	}
	r.expectStep("conclude")
	r.do("poll")(r.engine.AdvanceIfReady(ctx))
	if !r.state.StepComplete {
		t.Fatalf("expected completion after polling")
	}
}
