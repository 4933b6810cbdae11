// Package render writes the finished knowledge base as markdown documents,
// one per analysis round plus an index with the validation summary.
package render

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/codeatlas/internal/pipeline"
)

// Renderer writes round results to a directory.
type Renderer struct {
	dir string
	log *zap.Logger
}

// New creates a renderer targeting dir.
func New(dir string, log *zap.Logger) *Renderer {
	if log == nil {
		log = zap.NewNop()
	}
	return &Renderer{dir: dir, log: log}
}

// Write renders every available round document and the index. Degraded rounds
// are rendered too, flagged so readers know the content is static fallback.
func (r *Renderer) Write(results map[int]*pipeline.RoundResult, summary pipeline.Summary) error {
	if err := os.MkdirAll(r.dir, 0o755); err != nil {
		return fmt.Errorf("failed to create output dir: %w", err)
	}

	docs := map[string]string{
		"README.md": r.index(results, summary),
	}
	for round, result := range results {
		name, body := r.document(result)
		if name == "" {
			r.log.Warn("no document template for round", zap.Int("round", round))
			continue
		}
		docs[name] = body
	}

	for name, body := range docs {
		path := filepath.Join(r.dir, name)
		if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
			return fmt.Errorf("failed to write %s: %w", name, err)
		}
		r.log.Debug("document written", zap.String("path", path))
	}
	return nil
}

func (r *Renderer) document(result *pipeline.RoundResult) (string, string) {
	switch data := result.Value.(type) {
	case pipeline.OverviewData:
		return "overview.md", overviewDoc(result, data)
	case pipeline.ArchitectureData:
		return "architecture.md", architectureDoc(result, data)
	case pipeline.DataFlowData:
		return "data-flow.md", dataFlowDoc(result, data)
	case pipeline.InterfacesData:
		return "interfaces.md", interfacesDoc(result, data)
	case pipeline.DeepDive:
		return "modules.md", deepDiveDoc(result, data)
	case pipeline.ConventionsData:
		return "conventions.md", conventionsDoc(result, data)
	}
	return "", ""
}

func (r *Renderer) index(results map[int]*pipeline.RoundResult, summary pipeline.Summary) string {
	var b strings.Builder
	b.WriteString("# Codebase Knowledge Base\n\n")
	b.WriteString(summary.StatusLine() + "\n\n")

	b.WriteString("| Round | Name | Status | Validated | Corrected |\n")
	b.WriteString("|-------|------|--------|-----------|----------|\n")
	for _, round := range summary.Rounds {
		fmt.Fprintf(&b, "| %d | %s | %s | %d | %d |\n",
			round.Round, round.Name, round.Status, round.Validated, round.Corrected)
	}

	var degraded []string
	for _, round := range summary.Rounds {
		result, ok := results[round.Round]
		if !ok || result.Status != pipeline.StatusDegraded {
			continue
		}
		degraded = append(degraded, fmt.Sprintf("round %d (%s) degraded: %s",
			result.Round, result.Name, result.FailureReason))
	}
	if len(degraded) > 0 {
		b.WriteString("\n## Degraded rounds\n\n")
		b.WriteString(strings.Join(degraded, "\n") + "\n")
	}
	return b.String()
}

func header(title string, result *pipeline.RoundResult) string {
	var b strings.Builder
	b.WriteString("# " + title + "\n\n")
	if result.Status == pipeline.StatusDegraded {
		b.WriteString("> This document was generated from static analysis only: " +
			result.FailureReason + "\n\n")
	}
	return b.String()
}

func writeSection(b *strings.Builder, title string, entries []string) {
	if len(entries) == 0 {
		return
	}
	b.WriteString("## " + title + "\n\n")
	for _, entry := range entries {
		b.WriteString("- " + entry + "\n")
	}
	b.WriteString("\n")
}

func overviewDoc(result *pipeline.RoundResult, data pipeline.OverviewData) string {
	var b strings.Builder
	b.WriteString(header("Overview", result))
	if data.Purpose != "" {
		b.WriteString(data.Purpose + "\n\n")
	}
	writeSection(&b, "Languages", data.Languages)
	writeSection(&b, "Entry points", data.EntryPoints)
	writeSection(&b, "Key observations", data.KeyObservations)
	writeSection(&b, "Open questions", data.OpenQuestions)
	return b.String()
}

func architectureDoc(result *pipeline.RoundResult, data pipeline.ArchitectureData) string {
	var b strings.Builder
	b.WriteString(header("Architecture", result))
	for _, m := range data.Modules {
		fmt.Fprintf(&b, "## %s (`%s`)\n\n%s\n\n", m.Name, m.Path, m.Purpose)
		writeSection(&b, "Key files", m.KeyFiles)
	}
	writeSection(&b, "Layering", data.Layering)
	writeSection(&b, "Open questions", data.OpenQuestions)
	return b.String()
}

func dataFlowDoc(result *pipeline.RoundResult, data pipeline.DataFlowData) string {
	var b strings.Builder
	b.WriteString(header("Data Flow", result))
	if len(data.Flows) > 0 {
		b.WriteString("## Flows\n\n")
		for _, f := range data.Flows {
			fmt.Fprintf(&b, "- `%s` -> `%s`: %s\n", f.From, f.To, f.Description)
		}
		b.WriteString("\n")
	}
	writeSection(&b, "Stores", data.Stores)
	writeSection(&b, "Open questions", data.OpenQuestions)
	return b.String()
}

func interfacesDoc(result *pipeline.RoundResult, data pipeline.InterfacesData) string {
	var b strings.Builder
	b.WriteString(header("Interfaces", result))
	for _, i := range data.Interfaces {
		fmt.Fprintf(&b, "## %s\n\n%s `%s`\n\n%s\n\n", i.Name, i.Kind, i.File, i.Description)
		writeSection(&b, "Consumers", i.Consumers)
	}
	writeSection(&b, "Open questions", data.OpenQuestions)
	return b.String()
}

func deepDiveDoc(result *pipeline.RoundResult, data pipeline.DeepDive) string {
	var b strings.Builder
	b.WriteString(header("Module Deep Dive", result))
	for _, m := range data.Modules {
		fmt.Fprintf(&b, "## %s\n\n%s\n\n", m.Name, m.Purpose)
		writeSection(&b, "Key files", m.KeyFiles)
		writeSection(&b, "Findings", m.Findings)
		writeSection(&b, "Patterns", m.Patterns)
	}
	if len(data.CrossCutting) > 0 {
		b.WriteString("## Cross-cutting conventions\n\n")
		for _, c := range data.CrossCutting {
			fmt.Fprintf(&b, "- %s (%s)\n", c.Pattern, c.Frequency)
		}
		b.WriteString("\n")
	}
	return b.String()
}

func conventionsDoc(result *pipeline.RoundResult, data pipeline.ConventionsData) string {
	var b strings.Builder
	b.WriteString(header("Conventions", result))
	writeSection(&b, "Naming", data.Naming)
	writeSection(&b, "Error handling", data.ErrorHandling)
	writeSection(&b, "Testing", data.Testing)
	writeSection(&b, "Open questions", data.OpenQuestions)
	return b.String()
}
