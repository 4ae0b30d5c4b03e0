package domain

import (
	"reflect"
	"sort"
)

// WorldState is the mutable model of the workbench: placed equipment, the
// chemicals they hold, and named flags/scalars consulted by rules.
type WorldState struct {
	Instances map[InstanceID]EquipmentInstance `json:"instances"`
	Flags     map[string]bool                  `json:"flags,omitempty"`
	Scalars   map[string]float64               `json:"scalars,omitempty"`
	// Sequence counts placements per definition so duplicate ids stay stable.
	Sequence map[DefinitionID]int `json:"sequence,omitempty"`
}

// NewWorldState returns an empty world.
func NewWorldState() WorldState {
	return WorldState{
		Instances: make(map[InstanceID]EquipmentInstance),
		Flags:     make(map[string]bool),
		Scalars:   make(map[string]float64),
		Sequence:  make(map[DefinitionID]int),
	}
}

// Clone returns a deep copy sharing no maps with the receiver.
func (w WorldState) Clone() WorldState {
	cloned := NewWorldState()
	for k, v := range w.Instances {
		cloned.Instances[k] = v.Clone()
	}
	for k, v := range w.Flags {
		cloned.Flags[k] = v
	}
	for k, v := range w.Scalars {
		cloned.Scalars[k] = v
	}
	for k, v := range w.Sequence {
		cloned.Sequence[k] = v
	}
	return cloned
}

// Equal reports field-for-field equality. Nil and empty maps compare equal and
// false flags are treated as absent.
func (w WorldState) Equal(o WorldState) bool {
	if len(w.Instances) != len(o.Instances) {
		return false
	}
	for id, inst := range w.Instances {
		other, ok := o.Instances[id]
		if !ok || !instancesEqual(inst, other) {
			return false
		}
	}
	if !reflect.DeepEqual(setFlags(w.Flags), setFlags(o.Flags)) {
		return false
	}
	return mapsEqual(w.Scalars, o.Scalars) && mapsEqual(w.Sequence, o.Sequence)
}

// InstanceIDs returns the placed instance ids in ascending order.
func (w WorldState) InstanceIDs() []InstanceID {
	out := make([]InstanceID, 0, len(w.Instances))
	for id := range w.Instances {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func instancesEqual(a, b EquipmentInstance) bool {
	if a.ID != b.ID || a.Definition != b.Definition {
		return false
	}
	if (a.Position == nil) != (b.Position == nil) {
		return false
	}
	if a.Position != nil && *a.Position != *b.Position {
		return false
	}
	return mapsEqual(a.Contents, b.Contents)
}

func setFlags(in map[string]bool) map[string]bool {
	out := make(map[string]bool, len(in))
	for k, v := range in {
		if v {
			out[k] = true
		}
	}
	return out
}

func mapsEqual[K comparable, V comparable](a, b map[K]V) bool {
	if len(a) != len(b) {
		return false
	}
	for k, v := range a {
		if ov, ok := b[k]; !ok || ov != v {
			return false
		}
	}
	return true
}
