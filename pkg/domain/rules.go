package domain

import (
	"context"
	"fmt"
	"math"
)

// FlagChange is a queued flag write produced by a rule. Flag writes are applied
// by the caller after the whole pass so no rule observes another rule's flag
// within the same evaluation.
type FlagChange struct {
	Name  string
	Value bool
}

// Evaluation is the outcome of one pass over the rule table.
type Evaluation struct {
	Observations Observations
	FlagChanges  []FlagChange
	Fired        []string
}

// Effect writes into an Evaluation when its rule fires.
type Effect struct {
	desc      string
	apply     func(View, *Evaluation)
	chemicals []ChemicalID
	equipment []DefinitionID
}

func (e Effect) String() string { return e.desc }

// Chemicals returns the chemical ids the effect references.
func (e Effect) Chemicals() []ChemicalID { return append([]ChemicalID(nil), e.chemicals...) }

// Equipment returns the equipment definitions the effect references.
func (e Effect) Equipment() []DefinitionID { return append([]DefinitionID(nil), e.equipment...) }

// SetText stores a conclusion string in slot.
func SetText(slot, text string) Effect {
	return Effect{
		desc: fmt.Sprintf("%s=%q", slot, text),
		apply: func(_ View, out *Evaluation) {
			out.Observations[slot] = TextObservation(text)
		},
	}
}

// SetNumber stores a value in slot, rounded to ObservationPrecision.
func SetNumber(slot string, v float64) Effect {
	return Effect{
		desc: fmt.Sprintf("%s=%g", slot, v),
		apply: func(_ View, out *Evaluation) {
			out.Observations[slot] = NumberObservation(v)
		},
	}
}

// ClearObservation resets slot to the unobserved sentinel.
func ClearObservation(slot string) Effect {
	return Effect{
		desc: fmt.Sprintf("clear(%s)", slot),
		apply: func(_ View, out *Evaluation) {
			delete(out.Observations, slot)
		},
	}
}

// SetFlag queues a flag write.
func SetFlag(name string, value bool) Effect {
	return Effect{
		desc: fmt.Sprintf("flag(%s)=%t", name, value),
		apply: func(_ View, out *Evaluation) {
			out.FlagChanges = append(out.FlagChanges, FlagChange{Name: name, Value: value})
		},
	}
}

// Latch queues a persistent flag so a transient condition survives after it
// ends.
func Latch(name string) Effect {
	e := SetFlag(name, true)
	e.desc = fmt.Sprintf("latch(%s)", name)
	return e
}

// DeriveNumber stores fn's value in slot when fn reports one.
func DeriveNumber(slot string, fn func(View) (float64, bool)) Effect {
	return Effect{
		desc: fmt.Sprintf("%s=derive()", slot),
		apply: func(v View, out *Evaluation) {
			if val, ok := fn(v); ok {
				out.Observations[slot] = NumberObservation(val)
			}
		},
	}
}

// DeriveText stores fn's text in slot when fn reports one.
func DeriveText(slot string, fn func(View) (string, bool)) Effect {
	return Effect{
		desc: fmt.Sprintf("%s=derive()", slot),
		apply: func(v View, out *Evaluation) {
			if text, ok := fn(v); ok {
				out.Observations[slot] = TextObservation(text)
			}
		},
	}
}

// MeasurePH stores the pH of the solution held by the instance ref names. The
// dominant acid/base by amount determines the value; nothing is written when
// the instance holds no pH-active chemical.
func MeasurePH(slot, ref string) Effect {
	return Effect{
		desc: fmt.Sprintf("%s=ph(%s)", slot, ref),
		apply: func(v View, out *Evaluation) {
			if ph, ok := SolutionPH(v, ref); ok {
				out.Observations[slot] = NumberObservation(ph)
			}
		},
		equipment: []DefinitionID{DefinitionOf(InstanceID(ref))},
	}
}

// SolutionPH computes the pH of the first instance matching ref.
func SolutionPH(v View, ref string) (float64, bool) {
	instances := ResolveInstances(v, ref)
	if len(instances) == 0 {
		return 0, false
	}
	var (
		best   ChemicalDefinition
		amount float64
		found  bool
	)
	for _, id := range instances[0].Chemicals() {
		def, ok := v.Chemical(id)
		if !ok || def.Acidity == AcidityNone {
			continue
		}
		a := instances[0].Amount(id)
		if !found || a > amount {
			best, amount, found = def, a, true
		}
	}
	if !found {
		return 0, false
	}
	return ChemicalPH(best)
}

// ChemicalPH derives the pH of a chemical at its default concentration:
// strong acid -log10(c), strong base 14+log10(c), weak acid -log10(sqrt(Ka*c)),
// weak base 14+log10(sqrt(Kb*c)), neutral 7.
func ChemicalPH(def ChemicalDefinition) (float64, bool) {
	c := def.Concentration
	switch def.Acidity {
	case AcidityNeutral:
		return 7, true
	case AcidityStrongAcid:
		if c <= 0 {
			return 0, false
		}
		return Round(-math.Log10(c), ObservationPrecision), true
	case AcidityStrongBase:
		if c <= 0 {
			return 0, false
		}
		return Round(14+math.Log10(c), ObservationPrecision), true
	case AcidityWeakAcid, AcidityWeakBase:
		if c <= 0 || def.Ka == nil || *def.Ka <= 0 {
			return 0, false
		}
		ion := math.Sqrt(*def.Ka * c)
		if def.Acidity == AcidityWeakAcid {
			return Round(-math.Log10(ion), ObservationPrecision), true
		}
		return Round(14+math.Log10(ion), ObservationPrecision), true
	default:
		return 0, false
	}
}

// Rule pairs a predicate with the effects applied when it holds.
type Rule struct {
	Name    string
	When    Predicate
	Effects []Effect
	// Once marks the rule non-repeatable: after it fires, it stays silent for
	// the rest of the session (until reset or undo rewinds its fired flag).
	Once bool
}

// FiredFlag is the persistent flag recording that a Once rule has fired.
func FiredFlag(rule string) string {
	return "rule." + rule + ".fired"
}

// ObserveFlag is the persistent flag latched when the learner performs the
// named observation (e.g. "smell", "litmus").
func ObserveFlag(name string) string {
	return "observe." + name
}

// RulesEngine evaluates an ordered rule table. Declared order is the tie-break
// policy: a later rule overwrites an earlier one targeting the same slot.
type RulesEngine struct {
	rules []Rule
}

// NewRulesEngine constructs an engine instance.
func NewRulesEngine() *RulesEngine {
	return &RulesEngine{}
}

// Register appends a rule to the engine.
func (e *RulesEngine) Register(rule Rule) {
	e.rules = append(e.rules, rule)
}

// Rules returns the registered rules in evaluation order.
func (e *RulesEngine) Rules() []Rule {
	return append([]Rule(nil), e.rules...)
}

// Evaluate runs every rule against view, starting from prev. A rule whose
// predicate is false leaves its slots as they were. Predicates see the
// observations from before the pass.
func (e *RulesEngine) Evaluate(ctx context.Context, view View, prev Observations) (Evaluation, error) {
	out := Evaluation{Observations: prev.Clone()}
	for _, rule := range e.rules {
		if err := ctx.Err(); err != nil {
			return Evaluation{}, err
		}
		if rule.Once && view.Flag(FiredFlag(rule.Name)) {
			continue
		}
		if !rule.When.Eval(view) {
			continue
		}
		for _, eff := range rule.Effects {
			if eff.apply != nil {
				eff.apply(view, &out)
			}
		}
		if rule.Once {
			out.FlagChanges = append(out.FlagChanges, FlagChange{Name: FiredFlag(rule.Name), Value: true})
		}
		out.Fired = append(out.Fired, rule.Name)
	}
	return out, nil
}
