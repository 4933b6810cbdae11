package scheduler

import (
	"errors"
	"fmt"
	"strings"
)

// ErrExecutorReused is returned when Execute is called more than once on the
// same Executor. Construct a fresh Executor per run.
var ErrExecutorReused = errors.New("scheduler: executor already executed; construct a new one per run")

// DuplicateStepError indicates two registered steps share an ID.
type DuplicateStepError struct {
	ID string
}

func (e *DuplicateStepError) Error() string {
	return fmt.Sprintf("scheduler: duplicate step id %q", e.ID)
}

// MissingDependencyError indicates a step depends on an unregistered ID.
type MissingDependencyError struct {
	StepID       string
	DependencyID string
}

func (e *MissingDependencyError) Error() string {
	return fmt.Sprintf("scheduler: step %q depends on unknown step %q", e.StepID, e.DependencyID)
}

// CycleError indicates the dependency graph contains a cycle. Remaining lists
// the step IDs that could never become eligible.
type CycleError struct {
	Remaining []string
}

func (e *CycleError) Error() string {
	return fmt.Sprintf("scheduler: dependency cycle involving steps [%s]", strings.Join(e.Remaining, ", "))
}
