package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"go.uber.org/zap/zaptest"

	"github.com/fyrsmithlabs/codeatlas/internal/claude"
	"github.com/fyrsmithlabs/codeatlas/internal/tokens"
)

// fakeGround is an in-memory ground truth for validator and engine tests.
type fakeGround struct {
	files   map[string]bool
	imports map[string]bool
}

func (g fakeGround) HasFile(path string) bool { return g.files[path] }

func (g fakeGround) HasImport(from, to string) bool { return g.imports[from+"->"+to] }

func groundWith(files []string, imports ...string) fakeGround {
	g := fakeGround{files: make(map[string]bool), imports: make(map[string]bool)}
	for _, f := range files {
		g.files[f] = true
	}
	for _, imp := range imports {
		g.imports[imp] = true
	}
	return g
}

// scripted is one canned model response or error.
type scripted struct {
	data string
	err  error
}

// scriptedClient replays a fixed response sequence and counts calls.
type scriptedClient struct {
	mu    sync.Mutex
	queue []scripted
	calls int
}

func (c *scriptedClient) Complete(_ context.Context, _ claude.Request) (*claude.Response, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls++
	if len(c.queue) == 0 {
		return nil, errors.New("no scripted response left")
	}
	next := c.queue[0]
	c.queue = c.queue[1:]
	if next.err != nil {
		return nil, next.err
	}
	return &claude.Response{
		Data:  json.RawMessage(next.data),
		Model: "claude-sonnet-4-5",
		Usage: claude.Usage{InputTokens: 100, OutputTokens: 50},
	}, nil
}

func (c *scriptedClient) MaxContextTokens() int { return 200_000 }

func (c *scriptedClient) callCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls
}

// funcClient delegates each call to fn, for per-request behavior.
type funcClient struct {
	mu    sync.Mutex
	calls int
	fn    func(req claude.Request) (*claude.Response, error)
}

func (c *funcClient) Complete(_ context.Context, req claude.Request) (*claude.Response, error) {
	c.mu.Lock()
	c.calls++
	c.mu.Unlock()
	return c.fn(req)
}

func (c *funcClient) MaxContextTokens() int { return 200_000 }

func (c *funcClient) callCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls
}

// recordingEvents captures every event for assertions.
type recordingEvents struct {
	mu             sync.Mutex
	started        []int
	retries        []string
	budgetWarnings []float64
	moduleFailures []string
	completed      []Status
}

func (e *recordingEvents) OnRoundStart(round int, name string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.started = append(e.started, round)
}

func (e *recordingEvents) OnRetry(round int, reason string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.retries = append(e.retries, reason)
}

func (e *recordingEvents) OnBudgetWarning(round int, utilization float64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.budgetWarnings = append(e.budgetWarnings, utilization)
}

func (e *recordingEvents) OnModuleFailure(round int, module string, err error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.moduleFailures = append(e.moduleFailures, module)
}

func (e *recordingEvents) OnRoundComplete(round int, name string, status Status) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.completed = append(e.completed, status)
}

// newTestEngine builds an engine over in-memory collaborators.
func newTestEngine(t *testing.T, client claude.Completer, ground GroundTruth, events Events) *Engine {
	t.Helper()
	if events == nil {
		events = NopEvents{}
	}
	return NewEngine(EngineDeps{
		Client:     client,
		Validator:  NewValidator(ground),
		Gate:       NewQualityGate(),
		Compressor: NewCompressor(tokens.Heuristic{}, 2000),
		Tracker:    NewTracker(0.85, events),
		Events:     events,
		Logger:     zaptest.NewLogger(t),
	})
}

// noteData is a minimal round output shape for engine tests.
type noteData struct {
	Notes []string `json:"notes"`
}

func (d noteData) Summary() ContextSeed { return ContextSeed{Findings: d.Notes} }
