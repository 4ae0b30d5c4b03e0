package domain

import "sort"

// View provides read-only access to engine state for predicates and rules.
type View interface {
	ListInstances() []EquipmentInstance
	FindInstance(id InstanceID) (EquipmentInstance, bool)
	Flag(name string) bool
	Scalar(name string) float64
	Observation(slot string) Observation
	Chemical(id ChemicalID) (ChemicalDefinition, bool)
}

// StateView is the View over a world, its observations and the catalog. It
// does not copy; callers hand it state they will not mutate during evaluation.
type StateView struct {
	world        *WorldState
	observations Observations
	catalog      *Catalog
}

// NewStateView wraps the supplied state.
func NewStateView(world *WorldState, observations Observations, catalog *Catalog) StateView {
	return StateView{world: world, observations: observations, catalog: catalog}
}

// ListInstances returns copies of all placed instances ordered by id.
func (v StateView) ListInstances() []EquipmentInstance {
	if v.world == nil {
		return nil
	}
	out := make([]EquipmentInstance, 0, len(v.world.Instances))
	for _, inst := range v.world.Instances {
		out = append(out, inst.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// FindInstance retrieves an instance by id.
func (v StateView) FindInstance(id InstanceID) (EquipmentInstance, bool) {
	if v.world == nil {
		return EquipmentInstance{}, false
	}
	inst, ok := v.world.Instances[id]
	if !ok {
		return EquipmentInstance{}, false
	}
	return inst.Clone(), true
}

// Flag returns the named flag; unknown flags are false.
func (v StateView) Flag(name string) bool {
	if v.world == nil {
		return false
	}
	return v.world.Flags[name]
}

// Scalar returns the named scalar; unknown scalars are zero.
func (v StateView) Scalar(name string) float64 {
	if v.world == nil {
		return 0
	}
	return v.world.Scalars[name]
}

// Observation returns the slot value or the unobserved sentinel.
func (v StateView) Observation(slot string) Observation {
	return v.observations.Get(slot)
}

// Chemical looks up a chemical definition in the catalog.
func (v StateView) Chemical(id ChemicalID) (ChemicalDefinition, bool) {
	return v.catalog.Chemical(id)
}

// ResolveInstances returns the instances a reference names: the instance with
// that exact id when one exists, otherwise every instance of the definition.
func ResolveInstances(view View, ref string) []EquipmentInstance {
	if inst, ok := view.FindInstance(InstanceID(ref)); ok {
		return []EquipmentInstance{inst}
	}
	var out []EquipmentInstance
	for _, inst := range view.ListInstances() {
		if inst.Definition == DefinitionID(ref) {
			out = append(out, inst)
		}
	}
	return out
}
