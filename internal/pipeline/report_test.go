package pipeline

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func storeWithRun(t *testing.T) *Store {
	t.Helper()
	store := NewStore()
	results := []*RoundResult{
		{Round: 1, Name: "Overview", Status: StatusSuccess, Validation: ValidationResult{Validated: 5, Total: 5}},
		{Round: 2, Name: "Architecture", Status: StatusRetried, Validation: ValidationResult{Validated: 10, Corrected: 2, Total: 12}},
		{Round: 3, Name: "Data Flow", Status: StatusDegraded, FailureReason: "api unavailable"},
		{Round: 4, Name: "Interfaces", Status: StatusSuccess, Validation: ValidationResult{Validated: 7, Corrected: 1, Total: 8}},
		{Round: 5, Name: "Module Deep Dive", Status: StatusSuccess, Validation: ValidationResult{Validated: 20, Total: 20}},
		{Round: 6, Name: "Conventions", Status: StatusDegraded, FailureReason: "api unavailable"},
	}
	for _, r := range results {
		require.NoError(t, store.Put(r))
	}
	return store
}

func TestSummarizeAggregatesRounds(t *testing.T) {
	summary := Summarize(storeWithRun(t))

	assert.Equal(t, 45, summary.TotalClaims)
	assert.Equal(t, 42, summary.ValidatedClaims)
	assert.Equal(t, 3, summary.CorrectedClaims)
	require.Len(t, summary.Rounds, 6)
	assert.Equal(t, "Overview", summary.Rounds[0].Name)
	assert.Equal(t, 6, summary.Rounds[5].Round, "rounds come back in order")
}

func TestStatusLineFormat(t *testing.T) {
	summary := Summarize(storeWithRun(t))

	assert.Equal(t,
		"AI analysis: 6/6 rounds complete (2 degraded), 42 claims validated, 3 corrected",
		summary.StatusLine())
}

func TestStatusLinePartialRun(t *testing.T) {
	store := NewStore()
	require.NoError(t, store.Put(&RoundResult{Round: 1, Name: "Overview", Status: StatusSuccess,
		Validation: ValidationResult{Validated: 4, Total: 4}}))

	assert.Equal(t,
		"AI analysis: 1/6 rounds complete (0 degraded), 4 claims validated, 0 corrected",
		Summarize(store).StatusLine())
}

func TestFailureReportListsDegradedRounds(t *testing.T) {
	report := FailureReport(storeWithRun(t))

	assert.Contains(t, report, "round 3 (Data Flow) degraded: api unavailable")
	assert.Contains(t, report, "round 6 (Conventions) degraded: api unavailable")
	assert.NotContains(t, report, "round 1")
}

func TestFailureReportCleanRun(t *testing.T) {
	store := NewStore()
	require.NoError(t, store.Put(&RoundResult{Round: 1, Name: "Overview", Status: StatusSuccess}))

	assert.Equal(t, "all rounds completed without degradation", FailureReport(store))
}
