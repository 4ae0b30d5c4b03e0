package experiments

import "labbench/pkg/domain"

// Salt analysis observation slots and conclusions.
const (
	SlotColdReaction = "case1"
	SlotHeatedGas    = "case2"
	SlotChromyl      = "case3"
	SlotSulphide     = "case4"
	SlotTubeColor    = "tube_color"

	ColdReactionConclusion = "No visible change in the cold: carbonate, sulphide and nitrite absent"
	ChlorideConclusion     = "Chlorine gas evolved: chloride present"
	ChromylConclusion      = "Red-orange chromyl chloride vapours: chloride confirmed"
	SulphideConclusion     = "No violet colour with sodium nitroprusside: sulphide absent"

	// FlagHeating is raised by the renderer while the burner heats the tube;
	// a heating pulse is the usual way to drive it.
	FlagHeating = "heating"
	// FlagNitroprussideAdded latches the nitroprusside test so its conclusion
	// survives once the reagent has been used up.
	FlagNitroprussideAdded = "nitroprusside_added"
	// FlagHeated records that the salt and acid have been heated together.
	FlagHeated = "heated"

	secondTube = "test_tube#2"
)

// SaltAnalysis is the dry test for the acid radical of an unknown salt: the
// sample is warmed with concentrated sulphuric acid, the evolved gas is smelt
// and the chloride is confirmed with the chromyl chloride and nitroprusside
// tests.
func SaltAnalysis() domain.ExperimentConfig {
	saltInTube := domain.EquipmentHasChemical("test_tube", "salt_sample", 0)
	acidInTube := domain.EquipmentHasChemical("test_tube", "conc_h2so4", 0)
	heating := domain.FlagIsSet(FlagHeating)

	return domain.ExperimentConfig{
		ID:   "salt-analysis",
		Name: "Salt analysis: dry test for the acid radical",
		Chemicals: []domain.ChemicalDefinition{
			{ID: "salt_sample", Name: "Unknown salt", Color: "white"},
			{ID: "conc_h2so4", Name: "Concentrated sulphuric acid", Formula: "H2SO4", Concentration: 18, MolecularWeight: ptr(98.08), Acidity: domain.AcidityStrongAcid},
			{ID: "k2cr2o7", Name: "Potassium dichromate", Formula: "K2Cr2O7", Color: "orange", MolecularWeight: ptr(294.18)},
			{ID: "sodium_carbonate_extract", Name: "Sodium carbonate extract", Formula: "Na2CO3", Acidity: domain.AcidityNeutral},
			{ID: "sodium_nitroprusside", Name: "Sodium nitroprusside", Formula: "Na2[Fe(CN)5NO]", Color: "red"},
		},
		Equipment: []domain.EquipmentDefinition{
			{ID: "test_tube", Name: "Test tube", AllowDuplicates: true},
			{ID: "burner", Name: "Bunsen burner", Slot: ptr(0)},
			{ID: "test_tube_holder", Name: "Test tube holder"},
		},
		Steps: []domain.Step{
			{
				ID:          "place-tube",
				Title:       "Take a clean dry test tube",
				Description: "Place a test tube and the burner on the bench.",
				Advance:     domain.BothPresent("test_tube", "burner"),
				Reversible:  true,
			},
			{
				ID:      "add-salt",
				Title:   "Add the salt",
				Advance: domain.EquipmentHasChemical("test_tube", "salt_sample", 1),
			},
			{
				ID:          "add-acid",
				Title:       "Add concentrated sulphuric acid",
				Description: "Add the acid and note any change in the cold.",
				Advance:     domain.Observed(SlotColdReaction),
			},
			{
				ID:          "heat",
				Title:       "Heat the mixture",
				Description: "Hold the tube with the holder and warm it over the burner.",
				Advance:     domain.And(domain.FlagIsSet(FlagHeated), domain.Observed(SlotHeatedGas)),
			},
			{
				ID:      "smell",
				Title:   "Smell the gas cautiously",
				Advance: domain.FlagIsSet(domain.ObserveFlag("smell")),
			},
			{
				ID:          "chromyl-test",
				Title:       "Chromyl chloride test",
				Description: "Add potassium dichromate to the mixture and heat again.",
				Advance:     domain.Observed(SlotChromyl),
			},
			{
				ID:          "nitroprusside-test",
				Title:       "Sodium nitroprusside test",
				Description: "Add sodium nitroprusside to the sodium carbonate extract in a second tube.",
				Advance:     domain.Observed(SlotSulphide),
			},
		},
		Rules: []domain.Rule{
			{
				Name:    "cold-reaction",
				When:    domain.And(saltInTube, acidInTube, domain.Not(heating)),
				Effects: []domain.Effect{domain.SetText(SlotColdReaction, ColdReactionConclusion)},
				Once:    true,
			},
			{
				Name:    "heated",
				When:    domain.And(saltInTube, acidInTube, heating, domain.HasEquipment("test_tube_holder")),
				Effects: []domain.Effect{domain.Latch(FlagHeated)},
			},
			{
				Name:    "chlorine",
				When:    domain.And(saltInTube, acidInTube, heating),
				Effects: []domain.Effect{domain.SetText(SlotHeatedGas, ChlorideConclusion)},
			},
			{
				Name:    "heating-colour",
				When:    domain.And(saltInTube, heating),
				Effects: []domain.Effect{domain.SetText(SlotTubeColor, "colourless fumes")},
			},
			{
				Name: "dichromate-colour",
				When: domain.And(saltInTube, acidInTube, heating, domain.EquipmentHasChemical("test_tube", "k2cr2o7", 0)),
				Effects: []domain.Effect{
					domain.SetText(SlotTubeColor, "red-orange vapours"),
					domain.SetText(SlotChromyl, ChromylConclusion),
				},
			},
			{
				Name: "nitroprusside-added",
				When: domain.And(
					domain.EquipmentHasChemical(secondTube, "sodium_carbonate_extract", 0),
					domain.EquipmentHasChemical(secondTube, "sodium_nitroprusside", 0),
				),
				Effects: []domain.Effect{
					domain.Latch(FlagNitroprussideAdded),
					domain.SetText(SlotSulphide, SulphideConclusion),
				},
				Once: true,
			},
			{
				Name:    "sulphide-absent",
				When:    domain.FlagIsSet(FlagNitroprussideAdded),
				Effects: []domain.Effect{domain.SetText(SlotSulphide, SulphideConclusion)},
			},
		},
		Policy:       domain.StepPolicy{AllowPrevious: false},
		HistoryLimit: domain.MaxHistoryEntries,
	}
}
