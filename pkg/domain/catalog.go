package domain

import "sort"

// Catalog is the immutable lookup of chemical and equipment definitions for one
// experiment.
type Catalog struct {
	chemicals map[ChemicalID]ChemicalDefinition
	equipment map[DefinitionID]EquipmentDefinition
}

// NewCatalog indexes the supplied definitions. Later duplicates win; use
// ExperimentConfig.Validate to reject duplicates up front.
func NewCatalog(chemicals []ChemicalDefinition, equipment []EquipmentDefinition) *Catalog {
	c := &Catalog{
		chemicals: make(map[ChemicalID]ChemicalDefinition, len(chemicals)),
		equipment: make(map[DefinitionID]EquipmentDefinition, len(equipment)),
	}
	for _, chem := range chemicals {
		c.chemicals[chem.ID] = chem
	}
	for _, eq := range equipment {
		c.equipment[eq.ID] = eq
	}
	return c
}

// Chemical looks up a chemical definition.
func (c *Catalog) Chemical(id ChemicalID) (ChemicalDefinition, bool) {
	if c == nil {
		return ChemicalDefinition{}, false
	}
	def, ok := c.chemicals[id]
	return def, ok
}

// Equipment looks up an equipment definition.
func (c *Catalog) Equipment(id DefinitionID) (EquipmentDefinition, bool) {
	if c == nil {
		return EquipmentDefinition{}, false
	}
	def, ok := c.equipment[id]
	return def, ok
}

// ChemicalIDs lists known chemicals in ascending order.
func (c *Catalog) ChemicalIDs() []ChemicalID {
	out := make([]ChemicalID, 0, len(c.chemicals))
	for id := range c.chemicals {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// EquipmentIDs lists known equipment definitions in ascending order.
func (c *Catalog) EquipmentIDs() []DefinitionID {
	out := make([]DefinitionID, 0, len(c.equipment))
	for id := range c.equipment {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// ValidateWorld checks the WorldState invariants against the catalog: every
// held chemical is defined, every instance id is consistent and every instance
// references a known definition.
func (c *Catalog) ValidateWorld(w WorldState) error {
	problems := &ConfigError{}
	for _, id := range w.InstanceIDs() {
		inst := w.Instances[id]
		if inst.ID != id {
			problems.add("instance " + string(id) + " has mismatched id " + string(inst.ID))
		}
		if _, ok := c.Equipment(inst.Definition); !ok {
			problems.add("instance " + string(id) + " references unknown equipment " + string(inst.Definition))
		}
		for _, chem := range inst.Chemicals() {
			if _, ok := c.Chemical(chem); !ok {
				problems.add("instance " + string(id) + " holds unknown chemical " + string(chem))
			}
		}
	}
	if len(problems.Problems) > 0 {
		return problems
	}
	return nil
}
