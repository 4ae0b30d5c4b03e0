package core

import (
	"context"
	"fmt"
	"math"
	"sync"

	"labbench/pkg/domain"
)

// WorldStore owns the authoritative WorldState of one session. Mutations run
// against a transactional copy and are committed only when the mutation and the
// rule pass both succeed.
type WorldStore struct {
	mu      sync.RWMutex
	state   domain.WorldState
	catalog *domain.Catalog
	rules   *domain.RulesEngine
}

// NewWorldStore constructs an empty store. A nil rules engine yields an
// evaluation that only carries the previous observations forward.
func NewWorldStore(catalog *domain.Catalog, rules *domain.RulesEngine) *WorldStore {
	if rules == nil {
		rules = domain.NewRulesEngine()
	}
	return &WorldStore{
		state:   domain.NewWorldState(),
		catalog: catalog,
		rules:   rules,
	}
}

// WorldTx is a mutation set applied to a private copy of the world.
type WorldTx struct {
	catalog *domain.Catalog
	state   domain.WorldState
}

// RunInTransaction executes fn against a copy of the world, evaluates the rule
// table starting from prev, applies the queued flag changes and commits. Any
// error discards the copy.
func (s *WorldStore) RunInTransaction(ctx context.Context, prev domain.Observations, fn func(tx *WorldTx) error) (domain.Evaluation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx := &WorldTx{catalog: s.catalog, state: s.state.Clone()}
	if fn != nil {
		if err := fn(tx); err != nil {
			return domain.Evaluation{}, err
		}
	}

	view := domain.NewStateView(&tx.state, prev, s.catalog)
	eval, err := s.rules.Evaluate(ctx, view, prev)
	if err != nil {
		return domain.Evaluation{}, err
	}
	for _, change := range eval.FlagChanges {
		tx.SetFlag(change.Name, change.Value)
	}

	s.state = tx.state
	return eval, nil
}

// Replace swaps in a deep copy of state. Used by undo, reset and restore.
func (s *WorldStore) Replace(state domain.WorldState) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = state.Clone()
}

// State returns a deep copy of the committed world.
func (s *WorldStore) State() domain.WorldState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.Clone()
}

// GetInstance returns a copy of the instance or ErrEquipmentNotFound.
func (s *WorldStore) GetInstance(id domain.InstanceID) (domain.EquipmentInstance, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	inst, ok := s.state.Instances[id]
	if !ok {
		return domain.EquipmentInstance{}, fmt.Errorf("%w: %s", domain.ErrEquipmentNotFound, id)
	}
	return inst.Clone(), nil
}

// GetFlag reports the named flag. Unknown flags are false.
func (s *WorldStore) GetFlag(name string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.Flags[name]
}

// ListInstances returns copies of every placed instance ordered by id.
func (s *WorldStore) ListInstances() []domain.EquipmentInstance {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.EquipmentInstance, 0, len(s.state.Instances))
	for _, id := range s.state.InstanceIDs() {
		out = append(out, s.state.Instances[id].Clone())
	}
	return out
}

// PlaceEquipment adds a new instance of def and returns its id.
func (tx *WorldTx) PlaceEquipment(def domain.DefinitionID) (domain.InstanceID, error) {
	eq, ok := tx.catalog.Equipment(def)
	if !ok {
		return "", fmt.Errorf("%w: %s", domain.ErrUnknownEquipment, def)
	}
	if !eq.AllowDuplicates {
		for _, inst := range tx.state.Instances {
			if inst.Definition == def {
				return "", fmt.Errorf("%w: %s", domain.ErrDuplicateEquipment, def)
			}
		}
	}
	n := tx.state.Sequence[def] + 1
	id := domain.NewInstanceID(def, n)
	for {
		if _, taken := tx.state.Instances[id]; !taken {
			break
		}
		n++
		id = domain.NewInstanceID(def, n)
	}
	tx.state.Sequence[def] = n
	tx.state.Instances[id] = domain.EquipmentInstance{
		ID:         id,
		Definition: def,
		Contents:   make(map[domain.ChemicalID]domain.ChemicalQuantity),
	}
	return id, nil
}

// RemoveEquipment deletes an instance together with everything it holds.
func (tx *WorldTx) RemoveEquipment(id domain.InstanceID) error {
	if _, ok := tx.state.Instances[id]; !ok {
		return fmt.Errorf("%w: %s", domain.ErrEquipmentNotFound, id)
	}
	delete(tx.state.Instances, id)
	return nil
}

// AddChemical accumulates amount of chemical into the instance and returns the
// new total.
func (tx *WorldTx) AddChemical(id domain.InstanceID, chemical domain.ChemicalID, amount float64) (float64, error) {
	inst, ok := tx.state.Instances[id]
	if !ok {
		return 0, fmt.Errorf("%w: %s", domain.ErrEquipmentNotFound, id)
	}
	def, ok := tx.catalog.Chemical(chemical)
	if !ok {
		return 0, fmt.Errorf("%w: %s", domain.ErrUnknownChemical, chemical)
	}
	if err := validAmount(amount); err != nil {
		return 0, err
	}
	if inst.Contents == nil {
		inst.Contents = make(map[domain.ChemicalID]domain.ChemicalQuantity)
	}
	qty, held := inst.Contents[chemical]
	if !held {
		qty = domain.ChemicalQuantity{Chemical: chemical, Concentration: def.ConcentrationLabel()}
	}
	qty.Amount += amount
	inst.Contents[chemical] = qty
	tx.state.Instances[id] = inst
	return qty.Amount, nil
}

// ConsumeChemical reduces the held amount, removing the entry once it reaches
// zero. Consuming more than is held empties the entry; consuming a chemical
// the instance does not hold is an ErrInvalidAmount.
func (tx *WorldTx) ConsumeChemical(id domain.InstanceID, chemical domain.ChemicalID, amount float64) (float64, error) {
	inst, ok := tx.state.Instances[id]
	if !ok {
		return 0, fmt.Errorf("%w: %s", domain.ErrEquipmentNotFound, id)
	}
	if _, ok := tx.catalog.Chemical(chemical); !ok {
		return 0, fmt.Errorf("%w: %s", domain.ErrUnknownChemical, chemical)
	}
	if err := validAmount(amount); err != nil {
		return 0, err
	}
	qty, held := inst.Contents[chemical]
	if !held {
		return 0, fmt.Errorf("%w: %s holds no %s", domain.ErrInvalidAmount, id, chemical)
	}
	qty.Amount -= amount
	if qty.Amount <= 0 {
		delete(inst.Contents, chemical)
		tx.state.Instances[id] = inst
		return 0, nil
	}
	inst.Contents[chemical] = qty
	tx.state.Instances[id] = inst
	return qty.Amount, nil
}

// SetFlag writes a named flag. False flags are dropped from the map.
func (tx *WorldTx) SetFlag(name string, value bool) {
	if value {
		tx.state.Flags[name] = true
		return
	}
	delete(tx.state.Flags, name)
}

// Flag reads a flag from the transactional copy.
func (tx *WorldTx) Flag(name string) bool {
	return tx.state.Flags[name]
}

// SetScalar records a numeric reading such as a burette titre.
func (tx *WorldTx) SetScalar(name string, value float64) error {
	if math.IsNaN(value) || math.IsInf(value, 0) {
		return fmt.Errorf("%w: scalar %s is not finite", domain.ErrInvalidAmount, name)
	}
	tx.state.Scalars[name] = value
	return nil
}

// SetPosition stores the position the renderer reported for an instance.
func (tx *WorldTx) SetPosition(id domain.InstanceID, x, y float64) error {
	inst, ok := tx.state.Instances[id]
	if !ok {
		return fmt.Errorf("%w: %s", domain.ErrEquipmentNotFound, id)
	}
	for _, v := range []float64{x, y} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("%w: position is not finite", domain.ErrInvalidAmount)
		}
	}
	inst.Position = &domain.Position{X: x, Y: y}
	tx.state.Instances[id] = inst
	return nil
}

// Instance reads an instance from the transactional copy.
func (tx *WorldTx) Instance(id domain.InstanceID) (domain.EquipmentInstance, bool) {
	inst, ok := tx.state.Instances[id]
	if !ok {
		return domain.EquipmentInstance{}, false
	}
	return inst.Clone(), true
}

func validAmount(amount float64) error {
	if amount <= 0 || math.IsNaN(amount) || math.IsInf(amount, 0) {
		return fmt.Errorf("%w: %v", domain.ErrInvalidAmount, amount)
	}
	return nil
}
