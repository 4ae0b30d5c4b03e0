package core

import (
	"fmt"

	"labbench/pkg/domain"
)

// Sequencer is the linear step state machine. It never branches or cycles;
// the only backward transitions are Previous (when policy allows) and Reset.
type Sequencer struct {
	steps    []domain.Step
	policy   domain.StepPolicy
	current  int
	complete bool
}

// NewSequencer starts at the first step.
func NewSequencer(steps []domain.Step, policy domain.StepPolicy) *Sequencer {
	return &Sequencer{steps: append([]domain.Step(nil), steps...), policy: policy}
}

// Current returns the zero-based step index.
func (s *Sequencer) Current() int { return s.current }

// Len returns the number of steps.
func (s *Sequencer) Len() int { return len(s.steps) }

// Step returns the current step definition.
func (s *Sequencer) Step() domain.Step {
	if len(s.steps) == 0 {
		return domain.Step{}
	}
	return s.steps[s.current]
}

// IsComplete reports whether the terminal step's predicate has held.
func (s *Sequencer) IsComplete() bool { return s.complete }

// CanAdvance evaluates the current step's advance predicate.
func (s *Sequencer) CanAdvance(view domain.View) bool {
	if len(s.steps) == 0 || s.complete {
		return false
	}
	return s.steps[s.current].Advance.Eval(view)
}

// AdvanceIfReady moves one step forward when the current predicate holds. On
// the terminal step a satisfied predicate marks the sequence complete. It
// reports whether anything changed.
func (s *Sequencer) AdvanceIfReady(view domain.View) bool {
	if !s.CanAdvance(view) {
		return false
	}
	if s.current < len(s.steps)-1 {
		s.current++
		return true
	}
	s.complete = true
	return true
}

// Advance is the strict form of AdvanceIfReady. Advancing a completed
// sequence is a no-op.
func (s *Sequencer) Advance(view domain.View) error {
	if s.complete {
		return nil
	}
	if !s.AdvanceIfReady(view) {
		return fmt.Errorf("%w: %s", domain.ErrStepNotAdvanceable, s.Step().ID)
	}
	return nil
}

// Previous returns to the prior step. It requires the experiment policy to
// allow going back and the prior step to be reversible.
func (s *Sequencer) Previous() error {
	if !s.policy.AllowPrevious {
		return domain.ErrPreviousDisabled
	}
	if s.current == 0 {
		return fmt.Errorf("%w: already at first step", domain.ErrPreviousDisabled)
	}
	prior := s.steps[s.current-1]
	if !prior.Reversible {
		return fmt.Errorf("%w: step %s is not reversible", domain.ErrPreviousDisabled, prior.ID)
	}
	s.current--
	s.complete = false
	return nil
}

// Reset re-enters the first step.
func (s *Sequencer) Reset() {
	s.current = 0
	s.complete = false
}

// Restore jumps to a saved position. Used by undo and session restore.
func (s *Sequencer) Restore(index int, complete bool) error {
	if index < 0 || index >= len(s.steps) {
		return fmt.Errorf("step index %d out of range [0,%d)", index, len(s.steps))
	}
	s.current = index
	s.complete = complete
	return nil
}
