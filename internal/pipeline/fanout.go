package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"

	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/fyrsmithlabs/codeatlas/internal/claude"
)

// Fan-out defaults: total modules considered and concurrent batch width.
const (
	DefaultMaxModules = 20
	DefaultBatchSize  = 10
)

// maxFailedFraction is the per-module failure fraction above which the failed
// subset is retried.
const maxFailedFraction = 0.3

// ModuleReport is one module's deep-dive output.
type ModuleReport struct {
	Name     string   `json:"name"`
	Purpose  string   `json:"purpose"`
	KeyFiles []string `json:"key_files"`
	Findings []string `json:"findings"`
	Patterns []string `json:"patterns"`
}

// Convention is a pattern promoted to cross-cutting because at least two
// distinct modules reported it.
type Convention struct {
	Pattern   string `json:"pattern"`
	Frequency string `json:"frequency"`
}

// DeepDive is the aggregate fan-out round output.
type DeepDive struct {
	Modules      []ModuleReport `json:"modules"`
	CrossCutting []Convention   `json:"cross_cutting"`
}

// Summary implements Summarizable.
func (d DeepDive) Summary() ContextSeed {
	seed := ContextSeed{}
	for _, m := range d.Modules {
		seed.Modules = append(seed.Modules, m.Name+": "+m.Purpose)
		seed.Findings = append(seed.Findings, m.Findings...)
	}
	for _, c := range d.CrossCutting {
		seed.Findings = append(seed.Findings, c.Pattern+" ("+c.Frequency+")")
	}
	return seed
}

// FanOutOptions configures the per-module fan-out round.
type FanOutOptions struct {
	Round   int
	Name    string
	Modules []ModuleInfo
	// MaxModules caps how many modules are analyzed; zero means
	// DefaultMaxModules.
	MaxModules int
	// BatchSize bounds concurrency within a batch; zero means
	// DefaultBatchSize.
	BatchSize int
	// BuildPrompt assembles one module's prompt.
	BuildPrompt func(module ModuleInfo, isRetry bool) Prompt
	// Fallback produces deterministic static data for one module.
	Fallback func(module ModuleInfo) ModuleReport
}

// ExecuteFanOut runs one engine-style call per module in concurrent batches,
// aggregates the merged result, and retries only the failed subset once when
// the failure fraction or the aggregate quality/validation check trips. A
// single module failing never aborts its siblings.
func ExecuteFanOut(ctx context.Context, e *Engine, opts FanOutOptions) *RoundResult {
	e.events.OnRoundStart(opts.Round, opts.Name)

	maxModules := opts.MaxModules
	if maxModules <= 0 {
		maxModules = DefaultMaxModules
	}
	batchSize := opts.BatchSize
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}

	modules := opts.Modules
	if len(modules) > maxModules {
		modules = modules[:maxModules]
	}
	if len(modules) == 0 {
		return e.finishRound(degradeFanOut(e, opts, nil, fmt.Errorf("no modules to analyze")))
	}

	reports := make([]*ModuleReport, len(modules))
	failures := make([]error, len(modules))
	runBatches(ctx, e, opts, modules, batchSize, false, reports, failures)

	var failed []int
	var failErr error
	for i, err := range failures {
		if err != nil {
			failed = append(failed, i)
			failErr = multierr.Append(failErr, err)
		}
	}

	retried := false
	merged := mergeReports(reports)
	data := marshalDeepDive(e, merged)
	validation := e.validator.ValidateClaims(opts.Round, data)
	quality := e.gate.Check(opts.Round, data)

	failedFraction := float64(len(failed)) / float64(len(modules))
	needsRetry := failedFraction > maxFailedFraction ||
		validation.DropRate > maxDropRate ||
		!quality.IsAcceptable

	if needsRetry && len(failed) > 0 {
		retried = true
		e.events.OnRetry(opts.Round, fmt.Sprintf(
			"retrying %d of %d failed modules (failure fraction %.2f)",
			len(failed), len(modules), failedFraction))

		subset := make([]ModuleInfo, len(failed))
		subsetReports := make([]*ModuleReport, len(failed))
		subsetFailures := make([]error, len(failed))
		for i, idx := range failed {
			subset[i] = modules[idx]
		}
		runBatches(ctx, e, opts, subset, batchSize, true, subsetReports, subsetFailures)
		for i, idx := range failed {
			if subsetReports[i] != nil {
				reports[idx] = subsetReports[i]
			}
		}

		merged = mergeReports(reports)
		data = marshalDeepDive(e, merged)
		validation = e.validator.ValidateClaims(opts.Round, data)
		quality = e.gate.Check(opts.Round, data)
	}

	if len(merged.Modules) == 0 {
		return e.finishRound(degradeFanOut(e, opts, modules, fmt.Errorf("all %d module calls failed: %w", len(modules), failErr)))
	}

	status := StatusSuccess
	if retried {
		status = StatusRetried
	}

	result := &RoundResult{
		Round:      opts.Round,
		Name:       opts.Name,
		Data:       data,
		Value:      merged,
		Validation: validation,
		Quality:    quality,
		Context:    e.compressor.Compress(opts.Round, merged.Summary()),
		Status:     status,
	}
	e.attachUsage(result)
	return e.finishRound(result)
}

// runBatches executes module calls in fixed-size concurrent batches, writing
// into reports/failures by index. Module failures are absorbed locally.
func runBatches(ctx context.Context, e *Engine, opts FanOutOptions, modules []ModuleInfo, batchSize int, isRetry bool, reports []*ModuleReport, failures []error) {
	var mu sync.Mutex
	for start := 0; start < len(modules); start += batchSize {
		end := start + batchSize
		if end > len(modules) {
			end = len(modules)
		}

		g := new(errgroup.Group)
		for i := start; i < end; i++ {
			idx := i
			g.Go(func() error {
				report, err := callModule(ctx, e, opts, modules[idx], isRetry)
				mu.Lock()
				defer mu.Unlock()
				if err != nil {
					failures[idx] = err
					reports[idx] = nil
					e.events.OnModuleFailure(opts.Round, modules[idx].Name, err)
					e.log.Warn("module call failed",
						zap.Int("round", opts.Round),
						zap.String("module", modules[idx].Name),
						zap.Error(err))
					return nil
				}
				failures[idx] = nil
				reports[idx] = report
				return nil
			})
		}
		_ = g.Wait()
	}
}

// callModule performs one module-scoped model call.
func callModule(ctx context.Context, e *Engine, opts FanOutOptions, module ModuleInfo, isRetry bool) (*ModuleReport, error) {
	prompt := opts.BuildPrompt(module, isRetry)
	resp, err := e.client.Complete(ctx, claude.Request{
		SystemPrompt: prompt.System,
		UserPrompt:   prompt.User,
		Temperature:  prompt.Temperature,
		MaxTokens:    prompt.MaxTokens,
	})
	if err != nil {
		return nil, fmt.Errorf("module %s: %w", module.Name, err)
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

	var report ModuleReport
	if err := json.Unmarshal(resp.Data, &report); err != nil {
		return nil, fmt.Errorf("module %s output does not match expected shape: %w", module.Name, err)
	}
	if report.Name == "" {
		report.Name = module.Name
	}
	return &report, nil
}

// mergeReports merges successful module reports and promotes cross-cutting
// conventions.
func mergeReports(reports []*ModuleReport) DeepDive {
	var merged DeepDive
	for _, r := range reports {
		if r != nil {
			merged.Modules = append(merged.Modules, *r)
		}
	}
	merged.CrossCutting = detectCrossCutting(merged.Modules)
	return merged
}

// detectCrossCutting promotes a pattern to cross-cutting when at least two
// distinct modules report it, matching case-insensitively.
func detectCrossCutting(reports []ModuleReport) []Convention {
	type patternCount struct {
		original string
		modules  map[string]bool
	}
	counts := make(map[string]*patternCount)
	for _, report := range reports {
		for _, pattern := range report.Patterns {
			key := strings.ToLower(strings.TrimSpace(pattern))
			if key == "" {
				continue
			}
			pc, ok := counts[key]
			if !ok {
				pc = &patternCount{original: strings.TrimSpace(pattern), modules: make(map[string]bool)}
				counts[key] = pc
			}
			pc.modules[strings.ToLower(report.Name)] = true
		}
	}

	total := len(reports)
	var conventions []Convention
	for _, pc := range counts {
		if len(pc.modules) >= 2 {
			conventions = append(conventions, Convention{
				Pattern:   pc.original,
				Frequency: fmt.Sprintf("Found in %d of %d modules", len(pc.modules), total),
			})
		}
	}
	sort.Slice(conventions, func(i, j int) bool {
		return conventions[i].Pattern < conventions[j].Pattern
	})
	return conventions
}

// degradeFanOut builds the per-module static fallback aggregate.
func degradeFanOut(e *Engine, opts FanOutOptions, modules []ModuleInfo, cause error) *RoundResult {
	e.log.Warn("fan-out degraded to static fallback",
		zap.Int("round", opts.Round), zap.Error(cause))

	var merged DeepDive
	for _, module := range modules {
		merged.Modules = append(merged.Modules, opts.Fallback(module))
	}
	merged.CrossCutting = detectCrossCutting(merged.Modules)

	data, err := json.Marshal(merged)
	if err != nil {
		data = []byte("{}")
	}

	result := &RoundResult{
		Round:         opts.Round,
		Name:          opts.Name,
		Data:          data,
		Value:         merged,
		Validation:    ValidationResult{},
		Quality:       QualityMetrics{IsAcceptable: false},
		Context:       e.compressor.Compress(opts.Round, merged.Summary()),
		Status:        StatusDegraded,
		FailureReason: cause.Error(),
	}
	e.attachUsage(result)
	return result
}

func marshalDeepDive(e *Engine, merged DeepDive) json.RawMessage {
	data, err := json.Marshal(merged)
	if err != nil {
		e.log.Error("failed to marshal merged fan-out output", zap.Error(err))
		return []byte("{}")
	}
	return data
}
