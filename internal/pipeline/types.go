// Package pipeline implements the round execution engine that turns a
// repository snapshot into a validated knowledge base: six dependent
// model-backed reasoning rounds scheduled over a DAG, each validated against
// static ground truth, quality-gated, retried at most once, and degraded to
// deterministic fallback data when the model call path fails.
package pipeline

import "encoding/json"

// Status describes how a round's result was obtained.
type Status string

const (
	// StatusSuccess means the first accepted attempt passed validation and
	// quality without a retry.
	StatusSuccess Status = "success"
	// StatusRetried means exactly one retry occurred, triggered by drop
	// rate or the quality gate.
	StatusRetried Status = "retried"
	// StatusDegraded means the model call path threw and the result carries
	// fallback data. Degraded never arises from failing validation alone.
	StatusDegraded Status = "degraded"
)

// ValidationResult aggregates claim validation counts for one round.
// Validated + Corrected == Total always holds; DropRate is Corrected/Total,
// or 0 when no claims were extractable.
type ValidationResult struct {
	Validated int     `json:"validated"`
	Corrected int     `json:"corrected"`
	Total     int     `json:"total"`
	DropRate  float64 `json:"drop_rate"`
}

// QualityMetrics scores a round's raw output shape.
type QualityMetrics struct {
	TextLength     int     `json:"text_length"`
	CodeReferences int     `json:"code_references"`
	Specificity    float64 `json:"specificity"`
	IsAcceptable   bool    `json:"is_acceptable"`
}

// ContextSeed is the uncompressed digest a round output offers for reuse by
// later rounds.
type ContextSeed struct {
	Modules       []string
	Findings      []string
	Relationships []string
	OpenQuestions []string
}

// Summarizable is implemented by every round output type so the engine can
// compress arbitrary round data uniformly.
type Summarizable interface {
	Summary() ContextSeed
}

// RoundContext is the token-bounded compressed digest of one round, consumed
// read-only by later rounds.
type RoundContext struct {
	RoundNumber   int      `json:"round_number"`
	Modules       []string `json:"modules"`
	Findings      []string `json:"findings"`
	Relationships []string `json:"relationships"`
	OpenQuestions []string `json:"open_questions"`
}

// RoundResult is the immutable outcome of one round invocation.
type RoundResult struct {
	Round      int
	Name       string
	Data       json.RawMessage
	Value      any
	Validation ValidationResult
	Quality    QualityMetrics
	Context    RoundContext
	Status     Status
	Tokens     int
	Cost       float64
	// FailureReason is set only on degraded results.
	FailureReason string
}

// GroundTruth is the read-only fact base produced by static analysis.
type GroundTruth interface {
	// HasFile reports whether a claimed path refers to a known source file.
	HasFile(path string) bool
	// HasImport reports whether from's declared import set reaches to.
	HasImport(from, to string) bool
}

// ModuleInfo describes one fan-out unit, derived from round 2's module list
// or from top-level directories when that round is unavailable.
type ModuleInfo struct {
	Name  string
	Path  string
	Files []string
}
