package domain

import (
	"fmt"
	"strings"
)

// Predicate is a pure boolean test over a View. Predicates carry a readable
// description and the chemical/equipment ids they reference so experiment
// definitions can be validated before a session starts. The zero Predicate
// never holds.
type Predicate struct {
	desc      string
	eval      func(View) bool
	chemicals []ChemicalID
	equipment []DefinitionID
}

// NewPredicate builds a custom predicate. References are optional and only
// used for validation.
func NewPredicate(desc string, eval func(View) bool, chemicals []ChemicalID, equipment []DefinitionID) Predicate {
	return Predicate{desc: desc, eval: eval, chemicals: chemicals, equipment: equipment}
}

// Eval evaluates the predicate.
func (p Predicate) Eval(view View) bool {
	if p.eval == nil {
		return false
	}
	return p.eval(view)
}

// IsZero reports whether the predicate was never constructed.
func (p Predicate) IsZero() bool { return p.eval == nil }

func (p Predicate) String() string {
	if p.eval == nil {
		return "never"
	}
	return p.desc
}

// Chemicals returns the chemical ids referenced by the predicate tree.
func (p Predicate) Chemicals() []ChemicalID { return append([]ChemicalID(nil), p.chemicals...) }

// Equipment returns the equipment definitions referenced by the predicate tree.
func (p Predicate) Equipment() []DefinitionID { return append([]DefinitionID(nil), p.equipment...) }

// Always holds unconditionally.
func Always() Predicate {
	return Predicate{desc: "always", eval: func(View) bool { return true }}
}

// HasEquipment holds when at least one instance of the definition is placed.
func HasEquipment(def DefinitionID) Predicate {
	return Predicate{
		desc: fmt.Sprintf("has(%s)", def),
		eval: func(v View) bool {
			for _, inst := range v.ListInstances() {
				if inst.Definition == def {
					return true
				}
			}
			return false
		},
		equipment: []DefinitionID{def},
	}
}

// EquipmentCount holds when at least n instances of the definition are placed.
func EquipmentCount(def DefinitionID, n int) Predicate {
	return Predicate{
		desc: fmt.Sprintf("count(%s)>=%d", def, n),
		eval: func(v View) bool {
			count := 0
			for _, inst := range v.ListInstances() {
				if inst.Definition == def {
					count++
				}
			}
			return count >= n
		},
		equipment: []DefinitionID{def},
	}
}

// EquipmentHasChemical holds when an instance matching ref (instance id or
// definition id) holds a positive amount of chemical that is at least min.
func EquipmentHasChemical(ref string, chemical ChemicalID, min float64) Predicate {
	return Predicate{
		desc: fmt.Sprintf("contains(%s,%s>=%g)", ref, chemical, min),
		eval: func(v View) bool {
			for _, inst := range ResolveInstances(v, ref) {
				amount := inst.Amount(chemical)
				if amount > 0 && amount >= min {
					return true
				}
			}
			return false
		},
		chemicals: []ChemicalID{chemical},
		equipment: []DefinitionID{DefinitionOf(InstanceID(ref))},
	}
}

// FlagIsSet holds when the named flag is true.
func FlagIsSet(name string) Predicate {
	return Predicate{
		desc: fmt.Sprintf("flag(%s)", name),
		eval: func(v View) bool { return v.Flag(name) },
	}
}

// ScalarAtLeast holds when the named scalar is at least min.
func ScalarAtLeast(name string, min float64) Predicate {
	return Predicate{
		desc: fmt.Sprintf("scalar(%s)>=%g", name, min),
		eval: func(v View) bool { return v.Scalar(name) >= min },
	}
}

// BothPresent holds when both definitions have at least one placed instance.
func BothPresent(a, b DefinitionID) Predicate {
	return And(HasEquipment(a), HasEquipment(b))
}

// WithinProximity holds when both referenced instances have reported positions
// no further apart than threshold.
func WithinProximity(a, b InstanceID, threshold float64) Predicate {
	return Predicate{
		desc: fmt.Sprintf("near(%s,%s,%g)", a, b, threshold),
		eval: func(v View) bool {
			ia, okA := v.FindInstance(a)
			ib, okB := v.FindInstance(b)
			if !okA || !okB || ia.Position == nil || ib.Position == nil {
				return false
			}
			return ia.Position.Distance(*ib.Position) <= threshold
		},
		equipment: []DefinitionID{DefinitionOf(a), DefinitionOf(b)},
	}
}

// Observed holds when the slot has a value.
func Observed(slot string) Predicate {
	return Predicate{
		desc: fmt.Sprintf("observed(%s)", slot),
		eval: func(v View) bool { return v.Observation(slot).Observed() },
	}
}

// ObservationIs holds when the slot holds exactly the given text.
func ObservationIs(slot, text string) Predicate {
	return Predicate{
		desc: fmt.Sprintf("observation(%s)==%q", slot, text),
		eval: func(v View) bool { return v.Observation(slot).Text == text },
	}
}

// And holds when every operand holds. An empty And holds.
func And(preds ...Predicate) Predicate {
	return combine("and", preds, func(v View) bool {
		for _, p := range preds {
			if !p.Eval(v) {
				return false
			}
		}
		return true
	})
}

// Or holds when any operand holds. An empty Or never holds.
func Or(preds ...Predicate) Predicate {
	return combine("or", preds, func(v View) bool {
		for _, p := range preds {
			if p.Eval(v) {
				return true
			}
		}
		return false
	})
}

// Not negates a predicate.
func Not(p Predicate) Predicate {
	return combine("not", []Predicate{p}, func(v View) bool { return !p.Eval(v) })
}

func combine(op string, preds []Predicate, eval func(View) bool) Predicate {
	parts := make([]string, 0, len(preds))
	out := Predicate{eval: eval}
	for _, p := range preds {
		parts = append(parts, p.String())
		out.chemicals = append(out.chemicals, p.chemicals...)
		out.equipment = append(out.equipment, p.equipment...)
	}
	out.desc = op + "(" + strings.Join(parts, ",") + ")"
	return out
}
