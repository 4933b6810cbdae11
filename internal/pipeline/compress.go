package pipeline

import (
	"strings"

	"github.com/fyrsmithlabs/codeatlas/internal/tokens"
)

// Compressor reduces a round's structured output into a bounded RoundContext
// for reuse by later rounds. Truncation drops whole entries from the lowest
// priority category first: open questions, then findings, then
// relationships, then modules.
type Compressor struct {
	est    tokens.Estimator
	budget int
}

// NewCompressor creates a compressor with a per-round token budget.
func NewCompressor(est tokens.Estimator, budget int) *Compressor {
	return &Compressor{est: est, budget: budget}
}

// Compress produces the bounded context for one round.
func (c *Compressor) Compress(round int, seed ContextSeed) RoundContext {
	out := RoundContext{
		RoundNumber:   round,
		Modules:       append([]string(nil), seed.Modules...),
		Findings:      append([]string(nil), seed.Findings...),
		Relationships: append([]string(nil), seed.Relationships...),
		OpenQuestions: append([]string(nil), seed.OpenQuestions...),
	}

	for c.estimate(out) > c.budget {
		switch {
		case len(out.OpenQuestions) > 0:
			out.OpenQuestions = out.OpenQuestions[:len(out.OpenQuestions)-1]
		case len(out.Findings) > 0:
			out.Findings = out.Findings[:len(out.Findings)-1]
		case len(out.Relationships) > 0:
			out.Relationships = out.Relationships[:len(out.Relationships)-1]
		case len(out.Modules) > 0:
			out.Modules = out.Modules[:len(out.Modules)-1]
		default:
			return out
		}
	}
	return out
}

func (c *Compressor) estimate(ctx RoundContext) int {
	var b strings.Builder
	for _, group := range [][]string{ctx.Modules, ctx.Findings, ctx.Relationships, ctx.OpenQuestions} {
		for _, entry := range group {
			b.WriteString(entry)
			b.WriteByte('\n')
		}
	}
	return c.est.Estimate(b.String())
}

// RenderContext formats a compressed context as prompt text.
func RenderContext(ctx RoundContext) string {
	var b strings.Builder
	writeGroup := func(label string, entries []string) {
		if len(entries) == 0 {
			return
		}
		b.WriteString(label + ":\n")
		for _, entry := range entries {
			b.WriteString("- " + entry + "\n")
		}
	}
	writeGroup("Modules", ctx.Modules)
	writeGroup("Findings", ctx.Findings)
	writeGroup("Relationships", ctx.Relationships)
	writeGroup("Open questions", ctx.OpenQuestions)
	return b.String()
}
