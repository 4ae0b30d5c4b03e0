package experiments

import (
	"fmt"
	"sort"
	"strings"

	"labbench/pkg/domain"
)

// SlotComparison holds the conclusion once all three beakers are measured.
const SlotComparison = "comparison"

// phBeaker pairs a beaker instance with the solution it is meant to hold.
type phBeaker struct {
	instance domain.InstanceID
	chemical domain.ChemicalID
	label    string
}

var phBeakers = []phBeaker{
	{instance: "beaker", chemical: "hcl_0_1", label: "0.1 M HCl"},
	{instance: "beaker#2", chemical: "hcl_0_01", label: "0.01 M HCl"},
	{instance: "beaker#3", chemical: "ch3cooh_0_1", label: "0.1 M CH3COOH"},
}

// PHSlot returns the observation slot holding the pH of the nth beaker
// (1-based).
func PHSlot(n int) string { return fmt.Sprintf("ph_%d", n) }

// PaperSlot returns the observation slot holding the pH paper colour of the
// nth beaker (1-based).
func PaperSlot(n int) string { return fmt.Sprintf("paper_%d", n) }

// PHComparison compares the pH of a strong acid at two dilutions with a weak
// acid at the same concentration, using universal indicator paper.
func PHComparison() domain.ExperimentConfig {
	cfg := domain.ExperimentConfig{
		ID:   "ph-comparison",
		Name: "Comparing the pH of strong and weak acids",
		Chemicals: []domain.ChemicalDefinition{
			{ID: "hcl_0_1", Name: "Hydrochloric acid", Formula: "HCl", Concentration: 0.1, MolecularWeight: ptr(36.46), Acidity: domain.AcidityStrongAcid},
			{ID: "hcl_0_01", Name: "Hydrochloric acid", Formula: "HCl", Concentration: 0.01, MolecularWeight: ptr(36.46), Acidity: domain.AcidityStrongAcid},
			{ID: "ch3cooh_0_1", Name: "Acetic acid", Formula: "CH3COOH", Concentration: 0.1, MolecularWeight: ptr(60.05), Acidity: domain.AcidityWeakAcid, Ka: ptr(1.8e-5)},
			{ID: "ph_paper", Name: "Universal indicator paper"},
		},
		Equipment: []domain.EquipmentDefinition{
			{ID: "beaker", Name: "Beaker", AllowDuplicates: true},
			{ID: "dropper", Name: "Dropper"},
		},
		Policy:       domain.StepPolicy{AllowPrevious: false},
		HistoryLimit: domain.MaxHistoryEntries,
	}

	var filled, papers, measured []domain.Predicate
	for i, b := range phBeakers {
		n := i + 1
		paper := domain.EquipmentHasChemical(string(b.instance), "ph_paper", 0)
		filled = append(filled, domain.EquipmentHasChemical(string(b.instance), b.chemical, 10))
		papers = append(papers, paper)
		measured = append(measured, domain.Observed(PHSlot(n)))
		cfg.Rules = append(cfg.Rules, domain.Rule{
			Name: fmt.Sprintf("measure-%d", n),
			When: paper,
			Effects: []domain.Effect{
				domain.MeasurePH(PHSlot(n), string(b.instance)),
				domain.DeriveText(PaperSlot(n), paperColour(b.instance)),
			},
		})
	}
	cfg.Rules = append(cfg.Rules, domain.Rule{
		Name:    "compare",
		When:    domain.And(papers...),
		Effects: []domain.Effect{domain.DeriveText(SlotComparison, comparePH)},
	})

	cfg.Steps = []domain.Step{
		{
			ID:         "place-beakers",
			Title:      "Place three beakers",
			Advance:    domain.EquipmentCount("beaker", 3),
			Reversible: true,
		},
		{
			ID:          "fill",
			Title:       "Fill the beakers",
			Description: "Pour 0.1 M HCl, 0.01 M HCl and 0.1 M acetic acid into the first, second and third beaker.",
			Advance:     domain.And(filled...),
		},
		{
			ID:          "measure",
			Title:       "Dip pH paper into each beaker",
			Description: "Compare the paper colour against the chart.",
			Advance:     domain.And(measured...),
		},
		{
			ID:      "conclude",
			Title:   "Compare the readings",
			Advance: domain.Observed(SlotComparison),
		},
	}
	return cfg
}

// paperColour maps the measured pH of an instance onto the universal
// indicator chart.
func paperColour(id domain.InstanceID) func(domain.View) (string, bool) {
	return func(v domain.View) (string, bool) {
		ph, ok := domain.SolutionPH(v, string(id))
		if !ok {
			return "", false
		}
		switch {
		case ph < 2:
			return "red", true
		case ph < 4:
			return "orange", true
		case ph < 6:
			return "yellow", true
		case ph < 8:
			return "green", true
		default:
			return "blue", true
		}
	}
}

// comparePH ranks the beakers from most to least acidic.
func comparePH(v domain.View) (string, bool) {
	type reading struct {
		label string
		ph    float64
	}
	readings := make([]reading, 0, len(phBeakers))
	for _, b := range phBeakers {
		ph, ok := domain.SolutionPH(v, string(b.instance))
		if !ok {
			return "", false
		}
		readings = append(readings, reading{label: b.label, ph: ph})
	}
	sort.SliceStable(readings, func(i, j int) bool { return readings[i].ph < readings[j].ph })
	parts := make([]string, len(readings))
	for i, r := range readings {
		parts[i] = fmt.Sprintf("%s (pH %.2f)", r.label, r.ph)
	}
	return "Most to least acidic: " + strings.Join(parts, " > "), true
}
