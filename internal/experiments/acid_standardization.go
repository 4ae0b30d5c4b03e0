package experiments

import "labbench/pkg/domain"

// Acid standardization slots and scalars.
const (
	SlotFlaskColor = "flask_color"
	SlotEndpoint   = "endpoint"
	SlotTitre      = "titre"
	SlotMolarity   = "molarity"

	// ScalarBuretteReading is the titre the learner reads off the burette.
	ScalarBuretteReading = "burette_reading"
	// FlagEndpointReached latches the first permanent pink colour so an
	// overshoot does not hide it.
	FlagEndpointReached = "endpoint_reached"

	EndpointConclusion = "Permanent pale pink: endpoint reached"

	// StandardBaseMolarity is the concentration of the sodium hydroxide
	// standard in the burette.
	StandardBaseMolarity = 0.1
	// SampleAcidMolarity is the true strength of the hydrochloric acid sample;
	// the learner recovers it from the titre.
	SampleAcidMolarity = 0.1
)

// AcidStandardization standardizes a hydrochloric acid sample against a
// sodium hydroxide standard with phenolphthalein as indicator.
func AcidStandardization() domain.ExperimentConfig {
	indicator := domain.EquipmentHasChemical("conical_flask", "phenolphthalein", 0)
	endpoint := domain.NewPredicate("endpoint(conical_flask)", endpointReached,
		[]domain.ChemicalID{"naoh_0_1", "hcl_sample"},
		[]domain.DefinitionID{"conical_flask"},
	)

	return domain.ExperimentConfig{
		ID:   "acid-standardization",
		Name: "Standardization of hydrochloric acid",
		Chemicals: []domain.ChemicalDefinition{
			{ID: "naoh_0_1", Name: "Sodium hydroxide", Formula: "NaOH", Concentration: StandardBaseMolarity, MolecularWeight: ptr(40.0), Acidity: domain.AcidityStrongBase},
			{ID: "hcl_sample", Name: "Hydrochloric acid (unknown strength)", Formula: "HCl", MolecularWeight: ptr(36.46)},
			{ID: "phenolphthalein", Name: "Phenolphthalein", Color: "colourless"},
			{ID: "distilled_water", Name: "Distilled water", Formula: "H2O", Acidity: domain.AcidityNeutral},
		},
		Equipment: []domain.EquipmentDefinition{
			{ID: "burette", Name: "Burette", Slot: ptr(0)},
			{ID: "pipette", Name: "Pipette"},
			{ID: "conical_flask", Name: "Conical flask"},
		},
		Steps: []domain.Step{
			{
				ID:         "assemble",
				Title:      "Set up the burette and flask",
				Advance:    domain.BothPresent("burette", "conical_flask"),
				Reversible: true,
			},
			{
				ID:          "fill-burette",
				Title:       "Fill the burette",
				Description: "Rinse and fill the burette with the sodium hydroxide standard.",
				Advance:     domain.EquipmentHasChemical("burette", "naoh_0_1", 25),
			},
			{
				ID:          "pipette-acid",
				Title:       "Pipette the acid",
				Description: "Transfer 10 mL of the acid sample into the conical flask.",
				Advance:     domain.And(domain.HasEquipment("pipette"), domain.EquipmentHasChemical("conical_flask", "hcl_sample", 10)),
			},
			{
				ID:      "indicator",
				Title:   "Add two drops of phenolphthalein",
				Advance: indicator,
			},
			{
				ID:          "titrate",
				Title:       "Titrate to the endpoint",
				Description: "Run the base into the flask until a faint pink colour persists.",
				Advance:     domain.Observed(SlotEndpoint),
			},
			{
				ID:          "record",
				Title:       "Record the burette reading",
				Description: "Enter the titre and calculate the molarity of the acid.",
				Advance:     domain.Observed(SlotMolarity),
			},
		},
		Rules: []domain.Rule{
			{
				Name:    "indicator-colourless",
				When:    domain.And(indicator, domain.Not(domain.FlagIsSet(FlagEndpointReached))),
				Effects: []domain.Effect{domain.SetText(SlotFlaskColor, "colourless")},
			},
			{
				Name: "endpoint",
				When: domain.And(indicator, endpoint),
				Effects: []domain.Effect{
					domain.SetText(SlotFlaskColor, "pale pink"),
					domain.SetText(SlotEndpoint, EndpointConclusion),
					domain.Latch(FlagEndpointReached),
				},
			},
			{
				Name:    "titre",
				When:    domain.ScalarAtLeast(ScalarBuretteReading, 0.01),
				Effects: []domain.Effect{domain.DeriveNumber(SlotTitre, buretteReading)},
			},
			{
				Name:    "molarity",
				When:    domain.And(domain.FlagIsSet(FlagEndpointReached), domain.ScalarAtLeast(ScalarBuretteReading, 0.01)),
				Effects: []domain.Effect{domain.DeriveNumber(SlotMolarity, acidMolarity)},
			},
		},
		Policy:       domain.StepPolicy{AllowPrevious: true},
		HistoryLimit: domain.MaxHistoryEntries,
	}
}

// endpointReached holds once the base run into the flask neutralises the acid.
func endpointReached(v domain.View) bool {
	flask, ok := v.FindInstance("conical_flask")
	if !ok {
		return false
	}
	acid := flask.Amount("hcl_sample")
	if acid <= 0 {
		return false
	}
	return flask.Amount("naoh_0_1")*StandardBaseMolarity >= acid*SampleAcidMolarity
}

func buretteReading(v domain.View) (float64, bool) {
	return v.Scalar(ScalarBuretteReading), true
}

// acidMolarity applies M1V1 = M2V2 to the recorded titre.
func acidMolarity(v domain.View) (float64, bool) {
	flask, ok := v.FindInstance("conical_flask")
	if !ok {
		return 0, false
	}
	acid := flask.Amount("hcl_sample")
	if acid <= 0 {
		return 0, false
	}
	return StandardBaseMolarity * v.Scalar(ScalarBuretteReading) / acid, true
}
