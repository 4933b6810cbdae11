package pipeline

import (
	"context"
	"encoding/json"
	"fmt"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/codeatlas/internal/claude"
)

// maxDropRate is the claim drop-rate above which a round retries once.
const maxDropRate = 0.3

// Engine drives a single round through prompt build, model call, validation,
// quality check, bounded retry, compression, and usage accounting. It owns no
// persistent state; the tracker and store it is handed belong to the run.
type Engine struct {
	client     claude.Completer
	validator  *Validator
	gate       *QualityGate
	compressor *Compressor
	tracker    *Tracker
	events     Events
	metrics    *Metrics
	log        *zap.Logger
}

// EngineDeps bundles the engine's collaborators. Events, Metrics, and Logger
// are optional.
type EngineDeps struct {
	Client     claude.Completer
	Validator  *Validator
	Gate       *QualityGate
	Compressor *Compressor
	Tracker    *Tracker
	Events     Events
	Metrics    *Metrics
	Logger     *zap.Logger
}

// NewEngine creates a round execution engine.
func NewEngine(deps EngineDeps) *Engine {
	events := deps.Events
	if events == nil {
		events = NopEvents{}
	}
	log := deps.Logger
	if log == nil {
		log = zap.NewNop()
	}
	return &Engine{
		client:     deps.Client,
		validator:  deps.Validator,
		gate:       deps.Gate,
		compressor: deps.Compressor,
		tracker:    deps.Tracker,
		events:     events,
		metrics:    deps.Metrics,
		log:        log,
	}
}

// Prompt is the assembled input for one model attempt, with the token
// breakdown the prompt builder knows (compressed prior context vs packed file
// content) carried along for accounting.
type Prompt struct {
	System            string
	User              string
	Temperature       float64
	MaxTokens         int
	ContextTokens     int
	FileContentTokens int
}

// RoundOptions configures one round invocation.
type RoundOptions[T Summarizable] struct {
	Round int
	Name  string
	// BuildPrompt assembles the prompt; isRetry selects the stricter
	// preamble and lower temperature.
	BuildPrompt func(isRetry bool) Prompt
	// Fallback produces deterministic static data for the degrade path.
	Fallback func() T
}

// ExecuteRound runs one round to a terminal result. It never returns an
// error: any failure on the model call path degrades to the fallback. At most
// one retry occurs per invocation, shared between the drop-rate and quality
// triggers.
func ExecuteRound[T Summarizable](ctx context.Context, e *Engine, opts RoundOptions[T]) *RoundResult {
	e.events.OnRoundStart(opts.Round, opts.Name)

	retried := false

	value, data, err := attemptRound[T](ctx, e, opts, false)
	if err != nil {
		return e.finishRound(degradeRound(e, opts, err))
	}

	validation := e.validator.ValidateClaims(opts.Round, data)
	var quality QualityMetrics

	if validation.DropRate > maxDropRate {
		// Quality is not checked on this attempt; the retry budget is
		// spent on the drop-rate trigger.
		retried = true
		e.events.OnRetry(opts.Round, fmt.Sprintf("claim drop rate %.2f exceeds %.2f", validation.DropRate, maxDropRate))
		value, data, err = attemptRound[T](ctx, e, opts, true)
		if err != nil {
			return e.finishRound(degradeRound(e, opts, err))
		}
		validation = e.validator.ValidateClaims(opts.Round, data)
		quality = e.gate.Check(opts.Round, data)
	} else {
		quality = e.gate.Check(opts.Round, data)
		if !quality.IsAcceptable {
			retried = true
			e.events.OnRetry(opts.Round, "quality gate rejected output")
			value, data, err = attemptRound[T](ctx, e, opts, true)
			if err != nil {
				return e.finishRound(degradeRound(e, opts, err))
			}
			validation = e.validator.ValidateClaims(opts.Round, data)
			quality = e.gate.Check(opts.Round, data)
		}
	}

	status := StatusSuccess
	if retried {
		status = StatusRetried
	}

	result := &RoundResult{
		Round:      opts.Round,
		Name:       opts.Name,
		Data:       data,
		Value:      value,
		Validation: validation,
		Quality:    quality,
		Context:    e.compressor.Compress(opts.Round, value.Summary()),
		Status:     status,
	}
	e.attachUsage(result)
	return e.finishRound(result)
}

// attemptRound performs one prompt build, model call, usage record, and
// decode. Any error is a degrade trigger for the caller.
func attemptRound[T Summarizable](ctx context.Context, e *Engine, opts RoundOptions[T], isRetry bool) (T, json.RawMessage, error) {
	var zero T

	prompt := opts.BuildPrompt(isRetry)
	resp, err := e.client.Complete(ctx, claude.Request{
		SystemPrompt: prompt.System,
		UserPrompt:   prompt.User,
		Temperature:  prompt.Temperature,
		MaxTokens:    prompt.MaxTokens,
	})
	if err != nil {
		return zero, nil, fmt.Errorf("model call failed: %w", err)
	}

	usage := RoundUsage{
		Round:               opts.Round,
		Model:               resp.Model,
		InputTokens:         resp.Usage.InputTokens,
		OutputTokens:        resp.Usage.OutputTokens,
		ContextTokens:       prompt.ContextTokens,
		FileContentTokens:   prompt.FileContentTokens,
		BudgetTokens:        e.client.MaxContextTokens(),
		CacheReadTokens:     resp.Usage.CacheReadTokens,
		CacheCreationTokens: resp.Usage.CacheCreationTokens,
	}
	e.tracker.RecordRound(usage)
	e.metrics.observeUsage(usage)

	var value T
	if err := json.Unmarshal(resp.Data, &value); err != nil {
		return zero, nil, fmt.Errorf("round %d output does not match expected shape: %w", opts.Round, err)
	}
	return value, resp.Data, nil
}

// degradeRound builds the deterministic fallback result. The fallback output
// is compressed exactly like normal output so later rounds see a uniform
// context shape; token figures come from whatever the tracker already holds
// for this round.
func degradeRound[T Summarizable](e *Engine, opts RoundOptions[T], cause error) *RoundResult {
	e.log.Warn("round degraded to static fallback",
		zap.Int("round", opts.Round), zap.Error(cause))

	fallback := opts.Fallback()
	data, err := json.Marshal(fallback)
	if err != nil {
		data = []byte("{}")
	}

	result := &RoundResult{
		Round:         opts.Round,
		Name:          opts.Name,
		Data:          data,
		Value:         fallback,
		Validation:    ValidationResult{},
		Quality:       QualityMetrics{IsAcceptable: false},
		Context:       e.compressor.Compress(opts.Round, fallback.Summary()),
		Status:        StatusDegraded,
		FailureReason: cause.Error(),
	}
	e.attachUsage(result)
	return result
}

func (e *Engine) attachUsage(result *RoundResult) {
	if usage, ok := e.tracker.RoundUsage(result.Round); ok {
		result.Tokens = usage.InputTokens + usage.OutputTokens
		result.Cost = e.tracker.RoundCost(result.Round)
	}
}

func (e *Engine) finishRound(result *RoundResult) *RoundResult {
	e.metrics.observeRound(result)
	e.events.OnRoundComplete(result.Round, result.Name, result.Status)
	return result
}
