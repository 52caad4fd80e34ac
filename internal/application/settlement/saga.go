package settlement

import (
	"context"
	"fmt"

	"go.uber.org/zap"
)

// Step is one unit of a settlement saga. Run performs the forward action;
// Compensate undoes it when a later step fails. Compensate may be nil for
// steps that have nothing to undo.
type Step struct {
	Name       string
	Run        func(ctx context.Context) error
	Compensate func(ctx context.Context) error
}

// Saga executes steps in order and, on failure, compensates the completed
// steps in reverse. Compensation failures are logged and do not mask the
// original error; the caller always sees why the saga stopped.
type Saga struct {
	name   string
	steps  []Step
	logger *zap.Logger
}

// NewSaga creates a saga
func NewSaga(name string, logger *zap.Logger) *Saga {
	return &Saga{name: name, logger: logger}
}

// AddStep appends a step
func (s *Saga) AddStep(step Step) *Saga {
	s.steps = append(s.steps, step)
	return s
}

// Execute runs the steps, compensating on failure
func (s *Saga) Execute(ctx context.Context) error {
	completed := make([]Step, 0, len(s.steps))
	for _, step := range s.steps {
		if err := step.Run(ctx); err != nil {
			s.logger.Warn("saga step failed, compensating",
				zap.String("saga", s.name),
				zap.String("step", step.Name),
				zap.Int("completed_steps", len(completed)),
				zap.Error(err),
			)
			s.compensate(ctx, completed)
			return fmt.Errorf("%s: step %s: %w", s.name, step.Name, err)
		}
		completed = append(completed, step)
	}
	return nil
}

func (s *Saga) compensate(ctx context.Context, completed []Step) {
	for i := len(completed) - 1; i >= 0; i-- {
		step := completed[i]
		if step.Compensate == nil {
			continue
		}
		if err := step.Compensate(ctx); err != nil {
			// Leaves the system inconsistent; surfaced loudly for operators.
			s.logger.Error("saga compensation failed",
				zap.String("saga", s.name),
				zap.String("step", step.Name),
				zap.Error(err),
			)
		}
	}
}
