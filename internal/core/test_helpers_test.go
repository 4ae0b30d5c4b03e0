package core

import (
	"context"
	"testing"
	"time"

	"labbench/pkg/domain"
)

const chlorineConclusion = "Chlorine gas evolved: chloride present"

// benchConfig is a compact experiment exercising every engine path: latching
// gas rule, overriding colour rules, pH measurement and four guided steps.
func benchConfig() domain.ExperimentConfig {
	return domain.ExperimentConfig{
		ID:   "bench",
		Name: "Bench",
		Chemicals: []domain.ChemicalDefinition{
			{ID: "salt_sample", Name: "Salt sample"},
			{ID: "conc_h2so4", Name: "Conc. H2SO4", Concentration: 18},
			{ID: "k2cr2o7", Name: "Potassium dichromate"},
			{ID: "hcl_0_1", Name: "HCl", Concentration: 0.1, Acidity: domain.AcidityStrongAcid},
			{ID: "hcl_0_01", Name: "HCl", Concentration: 0.01, Acidity: domain.AcidityStrongAcid},
			{ID: "ph_paper", Name: "pH paper"},
		},
		Equipment: []domain.EquipmentDefinition{
			{ID: "test_tube", Name: "Test tube", AllowDuplicates: true},
			{ID: "beaker", Name: "Beaker", AllowDuplicates: true},
			{ID: "burner", Name: "Burner"},
		},
		Steps: []domain.Step{
			{ID: "place", Title: "Place a test tube", Advance: domain.HasEquipment("test_tube"), Reversible: true},
			{ID: "salt", Title: "Add the salt", Advance: domain.EquipmentHasChemical("test_tube", "salt_sample", 4)},
			{ID: "acid", Title: "Add conc. H2SO4", Advance: domain.EquipmentHasChemical("test_tube", "conc_h2so4", 3)},
			{ID: "heat", Title: "Heat", Advance: domain.Observed("case2")},
		},
		Rules: []domain.Rule{
			{
				Name: "chlorine",
				When: domain.And(
					domain.EquipmentHasChemical("test_tube", "salt_sample", 0),
					domain.EquipmentHasChemical("test_tube", "conc_h2so4", 0),
					domain.FlagIsSet("heating"),
				),
				Effects: []domain.Effect{domain.SetText("case2", chlorineConclusion)},
			},
			{Name: "glow", When: domain.FlagIsSet("heating"), Effects: []domain.Effect{domain.SetText("color", "orange")}},
			{
				Name:    "dichromate",
				When:    domain.And(domain.FlagIsSet("heating"), domain.EquipmentHasChemical("test_tube", "k2cr2o7", 0)),
				Effects: []domain.Effect{domain.SetText("color", "green")},
			},
			{
				Name:    "ph",
				When:    domain.EquipmentHasChemical("beaker", "ph_paper", 0),
				Effects: []domain.Effect{domain.MeasurePH("ph", "beaker")},
			},
		},
		Policy: domain.StepPolicy{AllowPrevious: true},
	}
}

func newBenchEngine(t *testing.T, opts ...EngineOption) *Engine {
	t.Helper()
	engine, err := NewEngine(benchConfig(), opts...)
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}
	return engine
}

// must fails the test on error and passes the state through.
func must(t *testing.T, label string) func(State, error) State {
	t.Helper()
	return func(st State, err error) State {
		t.Helper()
		if err != nil {
			t.Fatalf("%s: %v", label, err)
		}
		return st
	}
}

type stubClock struct{ t time.Time }

func (s stubClock) Now() time.Time { return s.t }

type captureLogger struct{ calls []string }

func (c *captureLogger) Debug(msg string, _ ...any) { c.calls = append(c.calls, "d:"+msg) }
func (c *captureLogger) Info(msg string, _ ...any)  { c.calls = append(c.calls, "i:"+msg) }
func (c *captureLogger) Warn(msg string, _ ...any)  { c.calls = append(c.calls, "w:"+msg) }
func (c *captureLogger) Error(msg string, _ ...any) { c.calls = append(c.calls, "e:"+msg) }

func (c *captureLogger) has(call string) bool {
	for _, got := range c.calls {
		if got == call {
			return true
		}
	}
	return false
}

var bg = context.Background()
