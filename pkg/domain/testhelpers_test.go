package domain

import "testing"

// mustNoError simplifies tests that expect helper methods to succeed.
func mustNoError(t *testing.T, label string, err error) {
	t.Helper()
	if err != nil {
		if label == "" {
			t.Fatalf("unexpected error: %v", err)
		}
		t.Fatalf("%s: %v", label, err)
	}
}

func testCatalog() *Catalog {
	ka := 1.8e-5
	return NewCatalog(
		[]ChemicalDefinition{
			{ID: "salt_sample", Name: "Salt sample"},
			{ID: "conc_h2so4", Name: "Conc. sulphuric acid", Formula: "H2SO4", Concentration: 18},
			{ID: "hcl_0_1", Name: "Hydrochloric acid", Formula: "HCl", Concentration: 0.1, Acidity: AcidityStrongAcid},
			{ID: "hcl_0_01", Name: "Hydrochloric acid", Formula: "HCl", Concentration: 0.01, Acidity: AcidityStrongAcid},
			{ID: "naoh_0_1", Name: "Sodium hydroxide", Formula: "NaOH", Concentration: 0.1, Acidity: AcidityStrongBase},
			{ID: "ch3cooh_0_1", Name: "Acetic acid", Formula: "CH3COOH", Concentration: 0.1, Acidity: AcidityWeakAcid, Ka: &ka},
			{ID: "water", Name: "Distilled water", Formula: "H2O", Acidity: AcidityNeutral},
			{ID: "ph_paper", Name: "pH paper"},
		},
		[]EquipmentDefinition{
			{ID: "test_tube", Name: "Test tube", AllowDuplicates: true},
			{ID: "beaker", Name: "Beaker", AllowDuplicates: true},
			{ID: "burner", Name: "Bunsen burner"},
		},
	)
}

// worldWith builds a world from instances keyed by id.
func worldWith(instances ...EquipmentInstance) WorldState {
	w := NewWorldState()
	for _, inst := range instances {
		w.Instances[inst.ID] = inst
		w.Sequence[inst.Definition]++
	}
	return w
}

func instance(id InstanceID, contents map[ChemicalID]float64) EquipmentInstance {
	inst := EquipmentInstance{ID: id, Definition: DefinitionOf(id), Contents: map[ChemicalID]ChemicalQuantity{}}
	for chem, amount := range contents {
		inst.Contents[chem] = ChemicalQuantity{Chemical: chem, Amount: amount}
	}
	return inst
}

func viewOf(w *WorldState, obs Observations) StateView {
	if obs == nil {
		obs = Observations{}
	}
	return NewStateView(w, obs, testCatalog())
}
