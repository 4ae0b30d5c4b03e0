package domain

import "fmt"

// MaxHistoryEntries is the default undo depth.
const MaxHistoryEntries = 25

// Step is one guided instruction. The sequencer moves past it once Advance
// holds.
type Step struct {
	ID          string
	Title       string
	Description string
	Advance     Predicate
	// Reversible permits returning to this step after advancing past it, when
	// the experiment policy allows going back at all.
	Reversible bool
}

// StepPolicy holds per-experiment sequencing policy.
type StepPolicy struct {
	AllowPrevious bool `json:"allow_previous" yaml:"allow_previous"`
}

// ExperimentConfig is the declarative definition of one experiment: its
// catalog, steps and reaction rule table.
type ExperimentConfig struct {
	ID           string
	Name         string
	Chemicals    []ChemicalDefinition
	Equipment    []EquipmentDefinition
	Steps        []Step
	Rules        []Rule
	Policy       StepPolicy
	HistoryLimit int
}

// Catalog builds the immutable definition lookup.
func (c ExperimentConfig) Catalog() *Catalog {
	return NewCatalog(c.Chemicals, c.Equipment)
}

// RulesEngine builds an engine holding the rule table in declared order.
func (c ExperimentConfig) RulesEngine() *RulesEngine {
	engine := NewRulesEngine()
	for _, rule := range c.Rules {
		engine.Register(rule)
	}
	return engine
}

// Validate reports every structural problem in the definition. A non-nil
// result is a *ConfigError.
func (c ExperimentConfig) Validate() error {
	problems := &ConfigError{Experiment: c.ID}
	if c.ID == "" {
		problems.add("experiment id required")
	}
	if c.HistoryLimit < 0 {
		problems.add("history limit must not be negative")
	}

	chemicals := make(map[ChemicalID]struct{}, len(c.Chemicals))
	for i, chem := range c.Chemicals {
		if chem.ID == "" {
			problems.add(fmt.Sprintf("chemical %d has empty id", i))
			continue
		}
		if _, dup := chemicals[chem.ID]; dup {
			problems.add(fmt.Sprintf("duplicate chemical %s", chem.ID))
		}
		chemicals[chem.ID] = struct{}{}
		if chem.Concentration < 0 {
			problems.add(fmt.Sprintf("chemical %s has negative concentration", chem.ID))
		}
	}
	equipment := make(map[DefinitionID]struct{}, len(c.Equipment))
	for i, eq := range c.Equipment {
		if eq.ID == "" {
			problems.add(fmt.Sprintf("equipment %d has empty id", i))
			continue
		}
		if _, dup := equipment[eq.ID]; dup {
			problems.add(fmt.Sprintf("duplicate equipment %s", eq.ID))
		}
		equipment[eq.ID] = struct{}{}
	}

	checkRefs := func(owner string, chems []ChemicalID, defs []DefinitionID) {
		for _, id := range chems {
			if _, ok := chemicals[id]; !ok {
				problems.add(fmt.Sprintf("%s references unknown chemical %s", owner, id))
			}
		}
		for _, id := range defs {
			if _, ok := equipment[id]; !ok {
				problems.add(fmt.Sprintf("%s references unknown equipment %s", owner, id))
			}
		}
	}

	if len(c.Steps) == 0 {
		problems.add("at least one step required")
	}
	stepIDs := make(map[string]struct{}, len(c.Steps))
	for i, step := range c.Steps {
		owner := fmt.Sprintf("step %d (%s)", i, step.ID)
		if step.ID == "" {
			problems.add(fmt.Sprintf("step %d has empty id", i))
		} else if _, dup := stepIDs[step.ID]; dup {
			problems.add("duplicate step " + step.ID)
		}
		stepIDs[step.ID] = struct{}{}
		if step.Advance.IsZero() {
			problems.add(owner + " has no advance predicate")
			continue
		}
		checkRefs(owner, step.Advance.Chemicals(), step.Advance.Equipment())
	}

	ruleNames := make(map[string]struct{}, len(c.Rules))
	for i, rule := range c.Rules {
		owner := fmt.Sprintf("rule %d (%s)", i, rule.Name)
		if rule.Name == "" {
			problems.add(fmt.Sprintf("rule %d has empty name", i))
		} else if _, dup := ruleNames[rule.Name]; dup && rule.Once {
			problems.add("duplicate once-rule " + rule.Name)
		}
		ruleNames[rule.Name] = struct{}{}
		if rule.When.IsZero() {
			problems.add(owner + " has no predicate")
		}
		checkRefs(owner, rule.When.Chemicals(), rule.When.Equipment())
		if len(rule.Effects) == 0 {
			problems.add(owner + " has no effects")
		}
		for _, eff := range rule.Effects {
			checkRefs(owner, eff.Chemicals(), eff.Equipment())
		}
	}

	if len(problems.Problems) > 0 {
		return problems
	}
	return nil
}
