package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"labbench/pkg/domain"
)

// ExperimentFile is the on-disk form of an experiment definition. Predicates
// and effects use a small declarative vocabulary compiled into domain values.
type ExperimentFile struct {
	ID           string                       `yaml:"id"`
	Name         string                       `yaml:"name"`
	HistoryLimit int                          `yaml:"history_limit,omitempty"`
	Policy       domain.StepPolicy            `yaml:"policy,omitempty"`
	Chemicals    []domain.ChemicalDefinition  `yaml:"chemicals"`
	Equipment    []domain.EquipmentDefinition `yaml:"equipment"`
	Steps        []StepSpec                   `yaml:"steps"`
	Rules        []RuleSpec                   `yaml:"rules"`
}

// StepSpec declares one guided step.
type StepSpec struct {
	ID          string         `yaml:"id"`
	Title       string         `yaml:"title"`
	Description string         `yaml:"description,omitempty"`
	Reversible  bool           `yaml:"reversible,omitempty"`
	Advance     *PredicateSpec `yaml:"advance"`
}

// RuleSpec declares one reaction rule.
type RuleSpec struct {
	Name    string         `yaml:"name"`
	Once    bool           `yaml:"once,omitempty"`
	When    *PredicateSpec `yaml:"when"`
	Effects []EffectSpec   `yaml:"effects"`
}

// PredicateSpec holds exactly one predicate form.
type PredicateSpec struct {
	All            []PredicateSpec    `yaml:"all,omitempty"`
	Any            []PredicateSpec    `yaml:"any,omitempty"`
	Not            *PredicateSpec     `yaml:"not,omitempty"`
	Always         bool               `yaml:"always,omitempty"`
	HasEquipment   string             `yaml:"has_equipment,omitempty"`
	EquipmentCount *CountSpec         `yaml:"equipment_count,omitempty"`
	Contains       *ContainsSpec      `yaml:"contains,omitempty"`
	Flag           string             `yaml:"flag,omitempty"`
	BothPresent    []string           `yaml:"both_present,omitempty"`
	Near           *NearSpec          `yaml:"near,omitempty"`
	Observed       string             `yaml:"observed,omitempty"`
	ObservationIs  *ObservationIsSpec `yaml:"observation_is,omitempty"`
	ScalarAtLeast  *ScalarSpec        `yaml:"scalar_at_least,omitempty"`
}

// CountSpec requires at least Count instances of Equipment.
type CountSpec struct {
	Equipment string `yaml:"equipment"`
	Count     int    `yaml:"count"`
}

// ContainsSpec requires In to hold at least Min of Chemical.
type ContainsSpec struct {
	In       string  `yaml:"in"`
	Chemical string  `yaml:"chemical"`
	Min      float64 `yaml:"min,omitempty"`
}

// NearSpec requires two instances within a distance.
type NearSpec struct {
	A      string  `yaml:"a"`
	B      string  `yaml:"b"`
	Within float64 `yaml:"within"`
}

// ObservationIsSpec matches a slot's text.
type ObservationIsSpec struct {
	Slot string `yaml:"slot"`
	Text string `yaml:"text"`
}

// ScalarSpec requires a scalar of at least Min.
type ScalarSpec struct {
	Name string  `yaml:"name"`
	Min  float64 `yaml:"min"`
}

// EffectSpec holds exactly one effect form.
type EffectSpec struct {
	Text      *SlotText    `yaml:"text,omitempty"`
	Number    *SlotNumber  `yaml:"number,omitempty"`
	Clear     string       `yaml:"clear,omitempty"`
	SetFlag   *FlagValue   `yaml:"set_flag,omitempty"`
	Latch     string       `yaml:"latch,omitempty"`
	MeasurePH *MeasureSpec `yaml:"measure_ph,omitempty"`
}

// SlotText writes a conclusion.
type SlotText struct {
	Slot  string `yaml:"slot"`
	Value string `yaml:"value"`
}

// SlotNumber writes a number.
type SlotNumber struct {
	Slot  string  `yaml:"slot"`
	Value float64 `yaml:"value"`
}

// FlagValue queues a flag change.
type FlagValue struct {
	Name  string `yaml:"name"`
	Value bool   `yaml:"value"`
}

// MeasureSpec derives the pH of the solution in In.
type MeasureSpec struct {
	Slot string `yaml:"slot"`
	In   string `yaml:"in"`
}

// LoadExperimentFile reads and compiles a definition file.
func LoadExperimentFile(path string) (domain.ExperimentConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return domain.ExperimentConfig{}, fmt.Errorf("reading experiment file: %w", err)
	}
	cfg, err := ParseExperiment(data)
	if err != nil {
		return domain.ExperimentConfig{}, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// ParseExperiment decodes YAML (or JSON) rejecting unknown keys, compiles it
// and validates the result.
func ParseExperiment(data []byte) (domain.ExperimentConfig, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	var file ExperimentFile
	if err := dec.Decode(&file); err != nil {
		if errors.Is(err, io.EOF) {
			return domain.ExperimentConfig{}, errors.New("parsing experiment file: empty document")
		}
		return domain.ExperimentConfig{}, fmt.Errorf("parsing experiment file: %w", err)
	}
	cfg, err := file.Compile()
	if err != nil {
		return domain.ExperimentConfig{}, err
	}
	if err := cfg.Validate(); err != nil {
		return domain.ExperimentConfig{}, err
	}
	return cfg, nil
}

// Compile converts the file into a domain configuration. Structural errors
// in predicates or effects are collected with their path.
func (f ExperimentFile) Compile() (domain.ExperimentConfig, error) {
	var errs []error
	cfg := domain.ExperimentConfig{
		ID:           f.ID,
		Name:         f.Name,
		Chemicals:    f.Chemicals,
		Equipment:    f.Equipment,
		Policy:       f.Policy,
		HistoryLimit: f.HistoryLimit,
	}
	if cfg.HistoryLimit == 0 {
		cfg.HistoryLimit = domain.MaxHistoryEntries
	}
	for i, s := range f.Steps {
		path := fmt.Sprintf("steps[%d]", i)
		step := domain.Step{ID: s.ID, Title: s.Title, Description: s.Description, Reversible: s.Reversible}
		if s.Advance == nil {
			errs = append(errs, fmt.Errorf("%s: advance predicate required", path))
		} else if p, err := s.Advance.compile(path + ".advance"); err != nil {
			errs = append(errs, err)
		} else {
			step.Advance = p
		}
		cfg.Steps = append(cfg.Steps, step)
	}
	for i, r := range f.Rules {
		path := fmt.Sprintf("rules[%d]", i)
		rule := domain.Rule{Name: r.Name, Once: r.Once}
		if r.When == nil {
			errs = append(errs, fmt.Errorf("%s: when predicate required", path))
		} else if p, err := r.When.compile(path + ".when"); err != nil {
			errs = append(errs, err)
		} else {
			rule.When = p
		}
		for j, e := range r.Effects {
			eff, err := e.compile(fmt.Sprintf("%s.effects[%d]", path, j))
			if err != nil {
				errs = append(errs, err)
				continue
			}
			rule.Effects = append(rule.Effects, eff)
		}
		cfg.Rules = append(cfg.Rules, rule)
	}
	if len(errs) > 0 {
		return domain.ExperimentConfig{}, errors.Join(errs...)
	}
	return cfg, nil
}

func (p PredicateSpec) forms() []string {
	var set []string
	add := func(ok bool, name string) {
		if ok {
			set = append(set, name)
		}
	}
	add(len(p.All) > 0, "all")
	add(len(p.Any) > 0, "any")
	add(p.Not != nil, "not")
	add(p.Always, "always")
	add(p.HasEquipment != "", "has_equipment")
	add(p.EquipmentCount != nil, "equipment_count")
	add(p.Contains != nil, "contains")
	add(p.Flag != "", "flag")
	add(len(p.BothPresent) > 0, "both_present")
	add(p.Near != nil, "near")
	add(p.Observed != "", "observed")
	add(p.ObservationIs != nil, "observation_is")
	add(p.ScalarAtLeast != nil, "scalar_at_least")
	return set
}

func (p PredicateSpec) compile(path string) (domain.Predicate, error) {
	forms := p.forms()
	if len(forms) != 1 {
		return domain.Predicate{}, fmt.Errorf("%s: exactly one predicate form expected, got [%s]", path, strings.Join(forms, ", "))
	}
	switch forms[0] {
	case "all", "any":
		children := p.All
		if forms[0] == "any" {
			children = p.Any
		}
		compiled := make([]domain.Predicate, 0, len(children))
		for i, c := range children {
			cp, err := c.compile(fmt.Sprintf("%s.%s[%d]", path, forms[0], i))
			if err != nil {
				return domain.Predicate{}, err
			}
			compiled = append(compiled, cp)
		}
		if forms[0] == "all" {
			return domain.And(compiled...), nil
		}
		return domain.Or(compiled...), nil
	case "not":
		inner, err := p.Not.compile(path + ".not")
		if err != nil {
			return domain.Predicate{}, err
		}
		return domain.Not(inner), nil
	case "always":
		return domain.Always(), nil
	case "has_equipment":
		return domain.HasEquipment(domain.DefinitionID(p.HasEquipment)), nil
	case "equipment_count":
		if p.EquipmentCount.Count < 1 {
			return domain.Predicate{}, fmt.Errorf("%s.equipment_count: count must be positive", path)
		}
		return domain.EquipmentCount(domain.DefinitionID(p.EquipmentCount.Equipment), p.EquipmentCount.Count), nil
	case "contains":
		c := p.Contains
		if c.In == "" || c.Chemical == "" {
			return domain.Predicate{}, fmt.Errorf("%s.contains: in and chemical required", path)
		}
		return domain.EquipmentHasChemical(c.In, domain.ChemicalID(c.Chemical), c.Min), nil
	case "flag":
		return domain.FlagIsSet(p.Flag), nil
	case "both_present":
		if len(p.BothPresent) != 2 {
			return domain.Predicate{}, fmt.Errorf("%s.both_present: exactly two equipment ids expected", path)
		}
		return domain.BothPresent(domain.DefinitionID(p.BothPresent[0]), domain.DefinitionID(p.BothPresent[1])), nil
	case "near":
		if p.Near.Within <= 0 {
			return domain.Predicate{}, fmt.Errorf("%s.near: within must be positive", path)
		}
		return domain.WithinProximity(domain.InstanceID(p.Near.A), domain.InstanceID(p.Near.B), p.Near.Within), nil
	case "observed":
		return domain.Observed(p.Observed), nil
	case "observation_is":
		return domain.ObservationIs(p.ObservationIs.Slot, p.ObservationIs.Text), nil
	default:
		return domain.ScalarAtLeast(p.ScalarAtLeast.Name, p.ScalarAtLeast.Min), nil
	}
}

func (e EffectSpec) compile(path string) (domain.Effect, error) {
	var out []domain.Effect
	if e.Text != nil {
		out = append(out, domain.SetText(e.Text.Slot, e.Text.Value))
	}
	if e.Number != nil {
		out = append(out, domain.SetNumber(e.Number.Slot, e.Number.Value))
	}
	if e.Clear != "" {
		out = append(out, domain.ClearObservation(e.Clear))
	}
	if e.SetFlag != nil {
		out = append(out, domain.SetFlag(e.SetFlag.Name, e.SetFlag.Value))
	}
	if e.Latch != "" {
		out = append(out, domain.Latch(e.Latch))
	}
	if e.MeasurePH != nil {
		out = append(out, domain.MeasurePH(e.MeasurePH.Slot, e.MeasurePH.In))
	}
	if len(out) != 1 {
		return domain.Effect{}, fmt.Errorf("%s: exactly one effect form expected, got %d", path, len(out))
	}
	return out[0], nil
}
