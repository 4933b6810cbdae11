package render

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/fyrsmithlabs/codeatlas/internal/pipeline"
)

func sampleResults() (map[int]*pipeline.RoundResult, pipeline.Summary) {
	results := map[int]*pipeline.RoundResult{
		1: {
			Round: 1, Name: "Overview", Status: pipeline.StatusSuccess,
			Value: pipeline.OverviewData{
				Purpose:     "A CLI that turns a repository into validated docs.",
				Languages:   []string{"go"},
				EntryPoints: []string{"cmd/tool/main.go"},
			},
			Validation: pipeline.ValidationResult{Validated: 3, Total: 3},
		},
		3: {
			Round: 3, Name: "Data Flow", Status: pipeline.StatusDegraded,
			Value: pipeline.DataFlowData{
				Flows: []pipeline.Flow{{From: "internal/api", To: "internal/store", Description: "observed import"}},
			},
			FailureReason: "api unavailable",
		},
		5: {
			Round: 5, Name: "Module Deep Dive", Status: pipeline.StatusSuccess,
			Value: pipeline.DeepDive{
				Modules: []pipeline.ModuleReport{
					{Name: "api", Purpose: "request handling", KeyFiles: []string{"internal/api/api.go"}},
				},
				CrossCutting: []pipeline.Convention{
					{Pattern: "constructor injection", Frequency: "Found in 2 of 5 modules"},
				},
			},
			Validation: pipeline.ValidationResult{Validated: 5, Total: 5},
		},
	}

	store := pipeline.NewStore()
	for _, r := range results {
		_ = store.Put(r)
	}
	return results, pipeline.Summarize(store)
}

func TestRendererWritesDocuments(t *testing.T) {
	dir := t.TempDir()
	results, summary := sampleResults()

	r := New(dir, zaptest.NewLogger(t))
	require.NoError(t, r.Write(results, summary))

	readme, err := os.ReadFile(filepath.Join(dir, "README.md"))
	require.NoError(t, err)
	assert.Contains(t, string(readme), "AI analysis: 3/6 rounds complete (1 degraded), 8 claims validated, 0 corrected")
	assert.Contains(t, string(readme), "| 1 | Overview | success | 3 | 0 |")
	assert.Contains(t, string(readme), "round 3 (Data Flow) degraded: api unavailable")

	overview, err := os.ReadFile(filepath.Join(dir, "overview.md"))
	require.NoError(t, err)
	assert.Contains(t, string(overview), "# Overview")
	assert.Contains(t, string(overview), "cmd/tool/main.go")

	modules, err := os.ReadFile(filepath.Join(dir, "modules.md"))
	require.NoError(t, err)
	assert.Contains(t, string(modules), "## api")
	assert.Contains(t, string(modules), "constructor injection (Found in 2 of 5 modules)")
}

func TestRendererFlagsDegradedDocuments(t *testing.T) {
	dir := t.TempDir()
	results, summary := sampleResults()

	r := New(dir, zaptest.NewLogger(t))
	require.NoError(t, r.Write(results, summary))

	flows, err := os.ReadFile(filepath.Join(dir, "data-flow.md"))
	require.NoError(t, err)
	assert.Contains(t, string(flows), "generated from static analysis only: api unavailable")
	assert.Contains(t, string(flows), "`internal/api` -> `internal/store`")
}

func TestRendererCreatesOutputDir(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested", "kb")
	results, summary := sampleResults()

	r := New(dir, nil)
	require.NoError(t, r.Write(results, summary))

	_, err := os.Stat(filepath.Join(dir, "README.md"))
	assert.NoError(t, err)
}
