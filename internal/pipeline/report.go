package pipeline

import (
	"fmt"
	"sort"
	"strings"
)

// totalRounds is the fixed number of model-backed rounds per run.
const totalRounds = 6

// RoundSummary is one row of the per-run validation summary.
type RoundSummary struct {
	Round     int    `json:"round"`
	Name      string `json:"name"`
	Status    Status `json:"status"`
	Validated int    `json:"validated"`
	Corrected int    `json:"corrected"`
}

// Summary is the Pipeline Reporter's read-only aggregate over a finished run.
type Summary struct {
	TotalClaims     int            `json:"total_claims"`
	ValidatedClaims int            `json:"validated_claims"`
	CorrectedClaims int            `json:"corrected_claims"`
	Rounds          []RoundSummary `json:"round_summaries"`
}

// Summarize aggregates the result store after the scheduler finishes.
func Summarize(store *Store) Summary {
	results := store.All()
	rounds := make([]int, 0, len(results))
	for round := range results {
		rounds = append(rounds, round)
	}
	sort.Ints(rounds)

	var summary Summary
	for _, round := range rounds {
		result := results[round]
		summary.TotalClaims += result.Validation.Total
		summary.ValidatedClaims += result.Validation.Validated
		summary.CorrectedClaims += result.Validation.Corrected
		summary.Rounds = append(summary.Rounds, RoundSummary{
			Round:     result.Round,
			Name:      result.Name,
			Status:    result.Status,
			Validated: result.Validation.Validated,
			Corrected: result.Validation.Corrected,
		})
	}
	return summary
}

// StatusLine renders the one-line terminal summary.
func (s Summary) StatusLine() string {
	degraded := 0
	for _, r := range s.Rounds {
		if r.Status == StatusDegraded {
			degraded++
		}
	}
	return fmt.Sprintf("AI analysis: %d/%d rounds complete (%d degraded), %d claims validated, %d corrected",
		len(s.Rounds), totalRounds, degraded, s.ValidatedClaims, s.CorrectedClaims)
}

// FailureReport names which rounds degraded and why, without treating
// degradation as fatal: document generation proceeds for the rest.
func FailureReport(store *Store) string {
	results := store.All()
	rounds := make([]int, 0, len(results))
	for round := range results {
		rounds = append(rounds, round)
	}
	sort.Ints(rounds)

	var lines []string
	for _, round := range rounds {
		result := results[round]
		if result.Status != StatusDegraded {
			continue
		}
		lines = append(lines, fmt.Sprintf("round %d (%s) degraded: %s",
			result.Round, result.Name, result.FailureReason))
	}
	if len(lines) == 0 {
		return "all rounds completed without degradation"
	}
	return strings.Join(lines, "\n")
}
