package core

import (
	"context"
	"fmt"

	"labbench/pkg/domain"
)

// ActionOp names an engine operation in serialised form.
type ActionOp string

// Supported operations.
const (
	OpPlace          ActionOp = "place"
	OpRemove         ActionOp = "remove"
	OpAddChemical    ActionOp = "add_chemical"
	OpConsume        ActionOp = "consume"
	OpObserve        ActionOp = "observe"
	OpSetFlag        ActionOp = "set_flag"
	OpToggleFlag     ActionOp = "toggle_flag"
	OpSetScalar      ActionOp = "set_scalar"
	OpSetPosition    ActionOp = "set_position"
	OpPulse          ActionOp = "pulse"
	OpUndo           ActionOp = "undo"
	OpReset          ActionOp = "reset"
	OpAdvance        ActionOp = "advance"
	OpAdvanceIfReady ActionOp = "advance_if_ready"
	OpPrevious       ActionOp = "previous"
	OpView           ActionOp = "view"
)

// Action is a serialisable engine call used by scripts and remote renderers.
// Only the fields relevant to Op are read.
type Action struct {
	Op        ActionOp `json:"op" yaml:"op"`
	Equipment string   `json:"equipment,omitempty" yaml:"equipment,omitempty"`
	Instance  string   `json:"instance,omitempty" yaml:"instance,omitempty"`
	Chemical  string   `json:"chemical,omitempty" yaml:"chemical,omitempty"`
	Amount    float64  `json:"amount,omitempty" yaml:"amount,omitempty"`
	Name      string   `json:"name,omitempty" yaml:"name,omitempty"`
	Value     bool     `json:"value,omitempty" yaml:"value,omitempty"`
	Number    float64  `json:"number,omitempty" yaml:"number,omitempty"`
	X         float64  `json:"x,omitempty" yaml:"x,omitempty"`
	Y         float64  `json:"y,omitempty" yaml:"y,omitempty"`
}

// target returns the instance an action addresses, falling back to the
// equipment definition id (the id of its first placement).
func (a Action) target() domain.InstanceID {
	if a.Instance != "" {
		return domain.InstanceID(a.Instance)
	}
	return domain.InstanceID(a.Equipment)
}

// Apply dispatches a serialised action.
func (e *Engine) Apply(ctx context.Context, action Action) (State, error) {
	switch action.Op {
	case OpPlace:
		return e.Place(ctx, domain.DefinitionID(action.Equipment))
	case OpRemove:
		return e.Remove(ctx, action.target())
	case OpAddChemical:
		return e.AddChemical(ctx, action.target(), domain.ChemicalID(action.Chemical), action.Amount)
	case OpConsume:
		return e.Consume(ctx, action.target(), domain.ChemicalID(action.Chemical), action.Amount)
	case OpObserve:
		return e.Observe(ctx, action.Name)
	case OpSetFlag:
		return e.SetFlag(ctx, action.Name, action.Value)
	case OpToggleFlag:
		return e.ToggleFlag(ctx, action.Name)
	case OpSetScalar:
		return e.SetScalar(ctx, action.Name, action.Number)
	case OpSetPosition:
		return e.SetPosition(ctx, action.target(), action.X, action.Y)
	case OpPulse:
		return e.Pulse(ctx, action.Name)
	case OpUndo:
		return e.Undo(ctx)
	case OpReset:
		return e.Reset(ctx)
	case OpAdvance:
		return e.Advance(ctx)
	case OpAdvanceIfReady:
		return e.AdvanceIfReady(ctx)
	case OpPrevious:
		return e.Previous(ctx)
	case OpView:
		return e.View(), nil
	default:
		return e.View(), fmt.Errorf("%w: %q", domain.ErrUnknownAction, action.Op)
	}
}
