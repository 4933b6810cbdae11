// Package scheduler provides a generic reactive DAG executor. Steps declare
// dependencies by ID; each step runs once all its dependencies have reached a
// terminal state. A failed step cascades a skip to every transitive dependent,
// while independent branches continue unaffected.
package scheduler

import (
	"context"
	"sort"
	"sync"

	"go.uber.org/zap"
)

// State is the terminal state of a step after a run.
type State string

const (
	// StateCompleted means the step's Run returned a value.
	StateCompleted State = "completed"
	// StateFailed means the step's Run returned an error.
	StateFailed State = "failed"
	// StateSkipped means at least one transitive dependency failed or was
	// skipped, so the step never ran.
	StateSkipped State = "skipped"
)

// Step is one registered unit of work. Steps are immutable once registered.
type Step struct {
	// ID uniquely identifies the step across the registered set.
	ID string
	// Name is a human-readable label used in logs and reports.
	Name string
	// DependsOn lists step IDs that must reach a terminal state first.
	DependsOn []string
	// Run performs the work. The returned value becomes the step's outcome.
	Run func(ctx context.Context) (any, error)
	// OnSkip produces a fallback value when the step is skipped. Optional.
	OnSkip func() any
}

// Outcome is the terminal result of one step.
type Outcome struct {
	State State
	Value any
	Err   error
}

// Observer receives step lifecycle events. Each callback fires exactly once
// per step per run, in terminal-state order.
type Observer interface {
	OnStepStart(id, name string)
	OnStepComplete(id, name string)
	OnStepFail(id, name string, err error)
	OnStepSkip(id, name string)
}

// NopObserver discards all events.
type NopObserver struct{}

func (NopObserver) OnStepStart(id, name string) {}

func (NopObserver) OnStepComplete(id, name string) {}

func (NopObserver) OnStepFail(id, name string, err error) {}

func (NopObserver) OnStepSkip(id, name string) {}

// Executor runs a registered step set exactly once. It is not reusable: a
// second Execute call returns ErrExecutorReused.
type Executor struct {
	steps      map[string]*Step
	order      []string
	dependents map[string][]string
	obs        Observer
	log        *zap.Logger

	mu        sync.Mutex
	indegree  map[string]int
	started   map[string]bool
	results   map[string]Outcome
	remaining int
	done      chan struct{}
	executed  bool
}

// Option configures an Executor.
type Option func(*Executor)

// WithObserver sets the lifecycle event sink.
func WithObserver(obs Observer) Option {
	return func(e *Executor) { e.obs = obs }
}

// WithLogger sets the logger.
func WithLogger(log *zap.Logger) Option {
	return func(e *Executor) { e.log = log }
}

// New registers steps and validates IDs. Duplicate IDs and references to
// unregistered IDs are fatal; nothing runs if either is found. Cycle detection
// happens in Execute, before any step starts.
func New(steps []Step, opts ...Option) (*Executor, error) {
	e := &Executor{
		steps:      make(map[string]*Step, len(steps)),
		dependents: make(map[string][]string),
		obs:        NopObserver{},
		log:        zap.NewNop(),
	}
	for _, opt := range opts {
		opt(e)
	}

	for i := range steps {
		step := steps[i]
		if _, exists := e.steps[step.ID]; exists {
			return nil, &DuplicateStepError{ID: step.ID}
		}
		e.steps[step.ID] = &step
		e.order = append(e.order, step.ID)
	}

	for _, id := range e.order {
		for _, dep := range e.steps[id].DependsOn {
			if _, exists := e.steps[dep]; !exists {
				return nil, &MissingDependencyError{StepID: id, DependencyID: dep}
			}
			e.dependents[dep] = append(e.dependents[dep], id)
		}
	}

	return e, nil
}

// Execute runs the step set and blocks until every step is terminal. The
// returned map holds exactly one Outcome per registered step. A cycle is
// detected before any work starts and aborts the whole run.
func (e *Executor) Execute(ctx context.Context) (map[string]Outcome, error) {
	e.mu.Lock()
	if e.executed {
		e.mu.Unlock()
		return nil, ErrExecutorReused
	}
	e.executed = true

	e.indegree = make(map[string]int, len(e.steps))
	e.started = make(map[string]bool, len(e.steps))
	e.results = make(map[string]Outcome, len(e.steps))
	e.remaining = len(e.steps)
	e.done = make(chan struct{})
	for _, id := range e.order {
		e.indegree[id] = len(e.steps[id].DependsOn)
	}
	e.mu.Unlock()

	if err := e.checkAcyclic(); err != nil {
		return nil, err
	}
	if len(e.steps) == 0 {
		return map[string]Outcome{}, nil
	}

	e.mu.Lock()
	for _, id := range e.order {
		if e.indegree[id] == 0 {
			e.start(ctx, id)
		}
	}
	e.mu.Unlock()

	<-e.done

	e.mu.Lock()
	defer e.mu.Unlock()
	out := make(map[string]Outcome, len(e.results))
	for id, res := range e.results {
		out[id] = res
	}
	return out, nil
}

// checkAcyclic runs a dry Kahn pass. If the zero-indegree queue drains before
// visiting every step, the unvisited remainder forms at least one cycle.
func (e *Executor) checkAcyclic() error {
	indegree := make(map[string]int, len(e.steps))
	for _, id := range e.order {
		indegree[id] = len(e.steps[id].DependsOn)
	}

	var queue []string
	for _, id := range e.order {
		if indegree[id] == 0 {
			queue = append(queue, id)
		}
	}

	visited := 0
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		visited++
		for _, dep := range e.dependents[id] {
			indegree[dep]--
			if indegree[dep] == 0 {
				queue = append(queue, dep)
			}
		}
	}

	if visited != len(e.steps) {
		var remaining []string
		for _, id := range e.order {
			if indegree[id] > 0 {
				remaining = append(remaining, id)
			}
		}
		sort.Strings(remaining)
		return &CycleError{Remaining: remaining}
	}
	return nil
}

// start launches a step goroutine. Caller must hold e.mu.
func (e *Executor) start(ctx context.Context, id string) {
	if e.started[id] {
		return
	}
	if _, terminal := e.results[id]; terminal {
		return
	}
	e.started[id] = true
	step := e.steps[id]

	go func() {
		e.obs.OnStepStart(step.ID, step.Name)
		e.log.Debug("step started", zap.String("step", step.ID))

		value, err := step.Run(ctx)

		e.mu.Lock()
		defer e.mu.Unlock()
		if err != nil {
			e.log.Warn("step failed", zap.String("step", step.ID), zap.Error(err))
			e.finish(step, Outcome{State: StateFailed, Err: err})
			e.obs.OnStepFail(step.ID, step.Name, err)
			e.skipDependents(step.ID)
			return
		}

		e.finish(step, Outcome{State: StateCompleted, Value: value})
		e.obs.OnStepComplete(step.ID, step.Name)
		for _, dep := range e.dependents[step.ID] {
			e.indegree[dep]--
			if e.indegree[dep] == 0 {
				e.start(ctx, dep)
			}
		}
	}()
}

// skipDependents marks every transitive dependent of id as skipped in one
// pass. Dependents already terminal are left alone. Caller must hold e.mu.
func (e *Executor) skipDependents(id string) {
	for _, dep := range e.dependents[id] {
		if _, terminal := e.results[dep]; terminal {
			continue
		}
		step := e.steps[dep]
		var fallback any
		if step.OnSkip != nil {
			fallback = step.OnSkip()
		}
		e.finish(step, Outcome{State: StateSkipped, Value: fallback})
		e.obs.OnStepSkip(step.ID, step.Name)
		e.log.Debug("step skipped", zap.String("step", step.ID), zap.String("cause", id))
		e.skipDependents(dep)
	}
}

// finish records a terminal outcome. Caller must hold e.mu.
func (e *Executor) finish(step *Step, outcome Outcome) {
	e.results[step.ID] = outcome
	e.remaining--
	if e.remaining == 0 {
		close(e.done)
	}
}
