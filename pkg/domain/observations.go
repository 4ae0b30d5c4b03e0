package domain

import (
	"math"
	"sort"
	"strconv"
)

// ObservationPrecision is the number of decimals numeric observations are
// rounded to. Equality-based checks on derived values depend on it.
const ObservationPrecision = 2

// Observation is a derived result held in a named slot. The zero value is the
// "not yet observed" sentinel.
type Observation struct {
	Text   string   `json:"text,omitempty"`
	Number *float64 `json:"number,omitempty"`
}

// TextObservation wraps a conclusion string.
func TextObservation(text string) Observation {
	return Observation{Text: text}
}

// NumberObservation wraps a measured value rounded to ObservationPrecision.
func NumberObservation(v float64) Observation {
	r := Round(v, ObservationPrecision)
	return Observation{Number: &r}
}

// Observed reports whether the slot holds a value.
func (o Observation) Observed() bool {
	return o.Text != "" || o.Number != nil
}

// Value returns the numeric value and whether one is present.
func (o Observation) Value() (float64, bool) {
	if o.Number == nil {
		return 0, false
	}
	return *o.Number, true
}

// String renders the observation for logs and reports.
func (o Observation) String() string {
	switch {
	case o.Number != nil:
		return strconv.FormatFloat(*o.Number, 'f', ObservationPrecision, 64)
	case o.Text != "":
		return o.Text
	default:
		return "unobserved"
	}
}

// Equal compares two observations by value.
func (o Observation) Equal(other Observation) bool {
	if o.Text != other.Text {
		return false
	}
	if (o.Number == nil) != (other.Number == nil) {
		return false
	}
	return o.Number == nil || *o.Number == *other.Number
}

func (o Observation) clone() Observation {
	if o.Number != nil {
		n := *o.Number
		o.Number = &n
	}
	return o
}

// Observations maps slot names to their current values.
type Observations map[string]Observation

// Get returns the slot value or the unobserved sentinel.
func (o Observations) Get(slot string) Observation {
	return o[slot]
}

// Clone deep-copies the observations.
func (o Observations) Clone() Observations {
	out := make(Observations, len(o))
	for k, v := range o {
		out[k] = v.clone()
	}
	return out
}

// Equal compares observations, ignoring unobserved entries.
func (o Observations) Equal(other Observations) bool {
	for k, v := range o {
		if !v.Equal(other[k]) {
			return false
		}
	}
	for k, v := range other {
		if !v.Equal(o[k]) {
			return false
		}
	}
	return true
}

// Slots returns observed slot names in ascending order.
func (o Observations) Slots() []string {
	out := make([]string, 0, len(o))
	for k, v := range o {
		if v.Observed() {
			out = append(out, k)
		}
	}
	sort.Strings(out)
	return out
}

// Round rounds v half away from zero to the given number of decimals.
func Round(v float64, decimals int) float64 {
	p := math.Pow(10, float64(decimals))
	return math.Round(v*p) / p
}

// Snapshot is a deep, independent copy of engine state used for undo and
// session persistence.
type Snapshot struct {
	World        WorldState   `json:"world"`
	Observations Observations `json:"observations"`
	Step         int          `json:"step"`
	Complete     bool         `json:"complete"`
}

// Clone deep-copies the snapshot.
func (s Snapshot) Clone() Snapshot {
	return Snapshot{
		World:        s.World.Clone(),
		Observations: s.Observations.Clone(),
		Step:         s.Step,
		Complete:     s.Complete,
	}
}

// Equal compares two snapshots field for field.
func (s Snapshot) Equal(o Snapshot) bool {
	return s.Step == o.Step && s.Complete == o.Complete &&
		s.World.Equal(o.World) && s.Observations.Equal(o.Observations)
}
