// Package domain defines the experiment data model, value types, predicates and
// reaction rule primitives used by labbench.
package domain

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
)

// ChemicalID identifies a chemical definition.
type ChemicalID string

// DefinitionID identifies an equipment definition.
type DefinitionID string

// InstanceID identifies a placed equipment instance. The first placement of a
// definition reuses the definition id; duplicates are suffixed with "#n".
type InstanceID string

// Acidity classifies how a chemical contributes to a pH measurement.
type Acidity string

// Acidity classes recognised by MeasurePH.
const (
	AcidityNone       Acidity = ""
	AcidityStrongAcid Acidity = "strong_acid"
	AcidityWeakAcid   Acidity = "weak_acid"
	AcidityStrongBase Acidity = "strong_base"
	AcidityWeakBase   Acidity = "weak_base"
	AcidityNeutral    Acidity = "neutral"
)

// ChemicalDefinition is immutable configuration describing a chemical.
type ChemicalDefinition struct {
	ID              ChemicalID `json:"id" yaml:"id"`
	Name            string     `json:"name" yaml:"name"`
	Formula         string     `json:"formula,omitempty" yaml:"formula,omitempty"`
	Color           string     `json:"color,omitempty" yaml:"color,omitempty"`
	Concentration   float64    `json:"concentration,omitempty" yaml:"concentration,omitempty"`
	MolecularWeight *float64   `json:"molecular_weight,omitempty" yaml:"molecular_weight,omitempty"`
	// Acidity and Ka feed pH derivation; Ka doubles as Kb for weak bases.
	Acidity Acidity  `json:"acidity,omitempty" yaml:"acidity,omitempty"`
	Ka      *float64 `json:"ka,omitempty" yaml:"ka,omitempty"`
}

// ConcentrationLabel renders the default concentration the way it is shown on a
// reagent bottle, e.g. "0.1 M". Empty when no concentration is configured.
func (c ChemicalDefinition) ConcentrationLabel() string {
	if c.Concentration <= 0 {
		return ""
	}
	return strconv.FormatFloat(c.Concentration, 'f', -1, 64) + " M"
}

// EquipmentDefinition is immutable configuration describing a piece of equipment.
type EquipmentDefinition struct {
	ID              DefinitionID `json:"id" yaml:"id"`
	Name            string       `json:"name" yaml:"name"`
	Slot            *int         `json:"slot,omitempty" yaml:"slot,omitempty"`
	AllowDuplicates bool         `json:"allow_duplicates,omitempty" yaml:"allow_duplicates,omitempty"`
}

// Position is opaque rendering metadata; the engine only measures distances.
type Position struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Distance returns the Euclidean distance between two positions.
func (p Position) Distance(o Position) float64 {
	return math.Hypot(p.X-o.X, p.Y-o.Y)
}

// ChemicalQuantity is the accumulated amount of one chemical inside one instance.
type ChemicalQuantity struct {
	Chemical      ChemicalID `json:"chemical"`
	Amount        float64    `json:"amount"`
	Concentration string     `json:"concentration,omitempty"`
}

// EquipmentInstance is a placed piece of equipment and what it contains.
type EquipmentInstance struct {
	ID         InstanceID                      `json:"id"`
	Definition DefinitionID                    `json:"definition"`
	Position   *Position                       `json:"position,omitempty"`
	Contents   map[ChemicalID]ChemicalQuantity `json:"contents,omitempty"`
}

// Amount returns the quantity of chemical held, zero when absent.
func (e EquipmentInstance) Amount(chemical ChemicalID) float64 {
	return e.Contents[chemical].Amount
}

// Chemicals returns the ids of all held chemicals in ascending order.
func (e EquipmentInstance) Chemicals() []ChemicalID {
	out := make([]ChemicalID, 0, len(e.Contents))
	for id := range e.Contents {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Clone returns a deep copy of the instance.
func (e EquipmentInstance) Clone() EquipmentInstance {
	cp := e
	if e.Position != nil {
		pos := *e.Position
		cp.Position = &pos
	}
	if e.Contents != nil {
		cp.Contents = make(map[ChemicalID]ChemicalQuantity, len(e.Contents))
		for k, v := range e.Contents {
			cp.Contents[k] = v
		}
	}
	return cp
}

// NewInstanceID derives the id for the n-th placement (1-based) of a definition.
func NewInstanceID(def DefinitionID, n int) InstanceID {
	if n <= 1 {
		return InstanceID(def)
	}
	return InstanceID(fmt.Sprintf("%s#%d", def, n))
}

// DefinitionOf recovers the definition id an instance id was derived from.
func DefinitionOf(id InstanceID) DefinitionID {
	s := string(id)
	if idx := strings.LastIndex(s, "#"); idx > 0 {
		if _, err := strconv.Atoi(s[idx+1:]); err == nil {
			return DefinitionID(s[:idx])
		}
	}
	return DefinitionID(s)
}
