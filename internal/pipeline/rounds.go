package pipeline

import (
	"context"
	"fmt"
	"path/filepath"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/codeatlas/internal/scheduler"
	"github.com/fyrsmithlabs/codeatlas/internal/tokens"
)

// Round numbers. Rounds 1 and 2 are strictly sequential; 3 feeds 4; 5 and 6
// need only the module map from 2, so {3,4}, 5, and 6 run concurrently.
const (
	RoundOverview     = 1
	RoundArchitecture = 2
	RoundDataFlow     = 3
	RoundInterfaces   = 4
	RoundDeepDive     = 5
	RoundConventions  = 6
)

var roundNames = map[int]string{
	RoundOverview:     "Overview",
	RoundArchitecture: "Architecture",
	RoundDataFlow:     "Data Flow",
	RoundInterfaces:   "Interfaces",
	RoundDeepDive:     "Module Deep Dive",
	RoundConventions:  "Conventions",
}

// OverviewData is round 1's output.
type OverviewData struct {
	Purpose         string   `json:"purpose"`
	Languages       []string `json:"languages"`
	EntryPoints     []string `json:"entry_points"`
	KeyObservations []string `json:"key_observations"`
	OpenQuestions   []string `json:"open_questions"`
}

// Summary implements Summarizable.
func (d OverviewData) Summary() ContextSeed {
	seed := ContextSeed{OpenQuestions: d.OpenQuestions}
	if d.Purpose != "" {
		seed.Findings = append(seed.Findings, d.Purpose)
	}
	seed.Findings = append(seed.Findings, d.KeyObservations...)
	for _, entry := range d.EntryPoints {
		seed.Findings = append(seed.Findings, "entry point: "+entry)
	}
	return seed
}

// ModuleSketch is one module as round 2 sees it.
type ModuleSketch struct {
	Name     string   `json:"name"`
	Path     string   `json:"path"`
	Purpose  string   `json:"purpose"`
	KeyFiles []string `json:"key_files"`
}

// ArchitectureData is round 2's output. Its module list drives the round 5
// fan-out.
type ArchitectureData struct {
	Modules       []ModuleSketch `json:"modules"`
	Layering      []string       `json:"layering"`
	OpenQuestions []string       `json:"open_questions"`
}

// Summary implements Summarizable.
func (d ArchitectureData) Summary() ContextSeed {
	seed := ContextSeed{
		Findings:      d.Layering,
		OpenQuestions: d.OpenQuestions,
	}
	for _, m := range d.Modules {
		seed.Modules = append(seed.Modules, m.Name+": "+m.Purpose)
	}
	return seed
}

// Flow is one claimed data movement between two repository paths.
type Flow struct {
	From        string `json:"from"`
	To          string `json:"to"`
	Description string `json:"description"`
}

// DataFlowData is round 3's output.
type DataFlowData struct {
	Flows         []Flow   `json:"flows"`
	Stores        []string `json:"stores"`
	OpenQuestions []string `json:"open_questions"`
}

// Summary implements Summarizable.
func (d DataFlowData) Summary() ContextSeed {
	seed := ContextSeed{
		Findings:      d.Stores,
		OpenQuestions: d.OpenQuestions,
	}
	for _, f := range d.Flows {
		seed.Relationships = append(seed.Relationships, f.From+" -> "+f.To+": "+f.Description)
	}
	return seed
}

// InterfaceDoc documents one public contract.
type InterfaceDoc struct {
	Name        string   `json:"name"`
	File        string   `json:"file"`
	Kind        string   `json:"kind"`
	Description string   `json:"description"`
	Consumers   []string `json:"consumers"`
}

// InterfacesData is round 4's output.
type InterfacesData struct {
	Interfaces    []InterfaceDoc `json:"interfaces"`
	OpenQuestions []string       `json:"open_questions"`
}

// Summary implements Summarizable.
func (d InterfacesData) Summary() ContextSeed {
	seed := ContextSeed{OpenQuestions: d.OpenQuestions}
	for _, i := range d.Interfaces {
		seed.Findings = append(seed.Findings, i.Name+" ("+i.File+"): "+i.Description)
		for _, consumer := range i.Consumers {
			seed.Relationships = append(seed.Relationships, consumer+" uses "+i.Name)
		}
	}
	return seed
}

// ConventionsData is round 6's output.
type ConventionsData struct {
	Naming        []string `json:"naming"`
	ErrorHandling []string `json:"error_handling"`
	Testing       []string `json:"testing"`
	OpenQuestions []string `json:"open_questions"`
}

// Summary implements Summarizable.
func (d ConventionsData) Summary() ContextSeed {
	seed := ContextSeed{OpenQuestions: d.OpenQuestions}
	seed.Findings = append(seed.Findings, d.Naming...)
	seed.Findings = append(seed.Findings, d.ErrorHandling...)
	seed.Findings = append(seed.Findings, d.Testing...)
	return seed
}

// Facts is the static-analysis fact base handed to the model rounds: the file
// inventory, module map, packed file bundle, and the ground truth that claims
// are checked against. Edges carries the observed import graph for the data
// flow fallback.
type Facts struct {
	Files      []string
	Modules    []ModuleInfo
	Bundle     string
	FileTokens int
	Commit     string
	Branch     string
	Ground     GroundTruth
	Edges      []Flow
}

// Pipeline wires the six analysis rounds, the static analysis unit, and the
// document renderer into a scheduler step set. The engine is built after
// analysis completes so its validator sees the run's actual ground truth.
type Pipeline struct {
	// Analyze scans the repository and produces the fact base.
	Analyze func(ctx context.Context) (Facts, error)
	// NewEngine builds the round engine once ground truth exists.
	NewEngine func(ground GroundTruth) *Engine
	// Render writes output documents from the finished round set.
	Render func(ctx context.Context, results map[int]*RoundResult, summary Summary) error

	Store      *Store
	Estimator  tokens.Estimator
	MaxModules int
	BatchSize  int
	Logger     *zap.Logger

	facts  Facts
	engine *Engine
}

// Run executes the full pipeline and returns the validation summary. Degraded
// rounds do not fail the run; only analysis or render errors do.
func (p *Pipeline) Run(ctx context.Context) (Summary, error) {
	if p.Logger == nil {
		p.Logger = zap.NewNop()
	}

	exec, err := scheduler.New(p.Steps(), scheduler.WithLogger(p.Logger))
	if err != nil {
		return Summary{}, err
	}
	outcomes, err := exec.Execute(ctx)
	if err != nil {
		return Summary{}, err
	}

	if out := outcomes["analysis"]; out.State == scheduler.StateFailed {
		return Summary{}, fmt.Errorf("static analysis failed: %w", out.Err)
	}
	if out := outcomes["render"]; out.State == scheduler.StateFailed {
		return Summarize(p.Store), fmt.Errorf("render failed: %w", out.Err)
	}
	return Summarize(p.Store), nil
}

// Steps returns the scheduler step set for one run.
func (p *Pipeline) Steps() []scheduler.Step {
	return []scheduler.Step{
		{
			ID:   "analysis",
			Name: "static analysis",
			Run: func(ctx context.Context) (any, error) {
				facts, err := p.Analyze(ctx)
				if err != nil {
					return nil, err
				}
				p.facts = facts
				p.engine = p.NewEngine(facts.Ground)
				return facts, nil
			},
		},
		p.roundStep(RoundOverview, []string{"analysis"}, p.runOverview),
		p.roundStep(RoundArchitecture, []string{stepID(RoundOverview)}, p.runArchitecture),
		p.roundStep(RoundDataFlow, []string{stepID(RoundArchitecture)}, p.runDataFlow),
		p.roundStep(RoundInterfaces, []string{stepID(RoundDataFlow)}, p.runInterfaces),
		p.roundStep(RoundDeepDive, []string{stepID(RoundArchitecture)}, p.runDeepDive),
		p.roundStep(RoundConventions, []string{stepID(RoundArchitecture)}, p.runConventions),
		{
			ID:   "render",
			Name: "document rendering",
			DependsOn: []string{
				stepID(RoundInterfaces),
				stepID(RoundDeepDive),
				stepID(RoundConventions),
			},
			Run: func(ctx context.Context) (any, error) {
				summary := Summarize(p.Store)
				return summary, p.Render(ctx, p.Store.All(), summary)
			},
		},
	}
}

func stepID(round int) string {
	return fmt.Sprintf("round%d", round)
}

func (p *Pipeline) roundStep(round int, deps []string, run func(ctx context.Context) *RoundResult) scheduler.Step {
	return scheduler.Step{
		ID:        stepID(round),
		Name:      roundNames[round],
		DependsOn: deps,
		Run: func(ctx context.Context) (any, error) {
			result := run(ctx)
			if err := p.Store.Put(result); err != nil {
				return nil, err
			}
			return result, nil
		},
	}
}

func (p *Pipeline) runOverview(ctx context.Context) *RoundResult {
	header := fmt.Sprintf("Repository snapshot: %d files, commit %s, branch %s.",
		len(p.facts.Files), orUnknown(p.facts.Commit), orUnknown(p.facts.Branch))
	return ExecuteRound(ctx, p.engine, RoundOptions[OverviewData]{
		Round: RoundOverview,
		Name:  roundNames[RoundOverview],
		BuildPrompt: func(isRetry bool) Prompt {
			return p.prompt(overviewSystemPrompt, isRetry, nil, header, true)
		},
		Fallback: p.fallbackOverview,
	})
}

func (p *Pipeline) runArchitecture(ctx context.Context) *RoundResult {
	return ExecuteRound(ctx, p.engine, RoundOptions[ArchitectureData]{
		Round: RoundArchitecture,
		Name:  roundNames[RoundArchitecture],
		BuildPrompt: func(isRetry bool) Prompt {
			return p.prompt(architectureSystemPrompt, isRetry, []int{RoundOverview}, "", true)
		},
		Fallback: p.fallbackArchitecture,
	})
}

func (p *Pipeline) runDataFlow(ctx context.Context) *RoundResult {
	return ExecuteRound(ctx, p.engine, RoundOptions[DataFlowData]{
		Round: RoundDataFlow,
		Name:  roundNames[RoundDataFlow],
		BuildPrompt: func(isRetry bool) Prompt {
			return p.prompt(dataFlowSystemPrompt, isRetry, []int{RoundOverview, RoundArchitecture}, "", true)
		},
		Fallback: p.fallbackDataFlow,
	})
}

func (p *Pipeline) runInterfaces(ctx context.Context) *RoundResult {
	return ExecuteRound(ctx, p.engine, RoundOptions[InterfacesData]{
		Round: RoundInterfaces,
		Name:  roundNames[RoundInterfaces],
		BuildPrompt: func(isRetry bool) Prompt {
			return p.prompt(interfacesSystemPrompt, isRetry, []int{RoundArchitecture, RoundDataFlow}, "", true)
		},
		Fallback: func() InterfacesData {
			return InterfacesData{
				OpenQuestions: []string{"interface inventory unavailable: round degraded to static fallback"},
			}
		},
	})
}

func (p *Pipeline) runDeepDive(ctx context.Context) *RoundResult {
	return ExecuteFanOut(ctx, p.engine, FanOutOptions{
		Round:      RoundDeepDive,
		Name:       roundNames[RoundDeepDive],
		Modules:    p.deepDiveModules(),
		MaxModules: p.MaxModules,
		BatchSize:  p.BatchSize,
		BuildPrompt: func(module ModuleInfo, isRetry bool) Prompt {
			extra := fmt.Sprintf("Analyze only the module %q at path %q.\nIts files:\n%s",
				module.Name, module.Path, bulletList(module.Files))
			return p.prompt(moduleDeepDiveSystemPrompt, isRetry, []int{RoundArchitecture}, extra, true)
		},
		Fallback: fallbackModuleReport,
	})
}

func (p *Pipeline) runConventions(ctx context.Context) *RoundResult {
	return ExecuteRound(ctx, p.engine, RoundOptions[ConventionsData]{
		Round: RoundConventions,
		Name:  roundNames[RoundConventions],
		BuildPrompt: func(isRetry bool) Prompt {
			return p.prompt(conventionsSystemPrompt, isRetry, []int{RoundArchitecture}, "", true)
		},
		Fallback: func() ConventionsData {
			return ConventionsData{
				OpenQuestions: []string{"convention catalogue unavailable: round degraded to static fallback"},
			}
		},
	})
}

// prompt assembles a round prompt: prior compressed contexts, an optional
// round-specific instruction, then the packed file bundle.
func (p *Pipeline) prompt(system string, isRetry bool, priorRounds []int, extra string, includeBundle bool) Prompt {
	contextText := p.contextText(priorRounds)

	var user strings.Builder
	if contextText != "" {
		user.WriteString("# Prior analysis\n\n")
		user.WriteString(contextText)
		user.WriteString("\n")
	}
	if extra != "" {
		user.WriteString(extra)
		user.WriteString("\n\n")
	}
	fileTokens := 0
	if includeBundle {
		user.WriteString("# Repository files\n\n")
		user.WriteString(p.facts.Bundle)
		fileTokens = p.facts.FileTokens
	}

	return Prompt{
		System:            systemPromptFor(system, isRetry),
		User:              user.String(),
		Temperature:       temperatureFor(isRetry),
		MaxTokens:         maxOutputTokens,
		ContextTokens:     p.Estimator.Estimate(contextText),
		FileContentTokens: fileTokens,
	}
}

func (p *Pipeline) contextText(rounds []int) string {
	var b strings.Builder
	for _, round := range rounds {
		roundCtx, ok := p.Store.Context(round)
		if !ok {
			continue
		}
		fmt.Fprintf(&b, "## %s (round %d)\n", roundNames[round], round)
		b.WriteString(RenderContext(roundCtx))
	}
	return b.String()
}

// deepDiveModules prefers round 2's module map and falls back to the static
// module inventory when that round degraded or produced nothing usable.
func (p *Pipeline) deepDiveModules() []ModuleInfo {
	result, ok := p.Store.Get(RoundArchitecture)
	if ok {
		if arch, ok := result.Value.(ArchitectureData); ok && len(arch.Modules) > 0 {
			modules := make([]ModuleInfo, 0, len(arch.Modules))
			for _, sketch := range arch.Modules {
				modules = append(modules, p.resolveModule(sketch))
			}
			return modules
		}
	}
	return p.facts.Modules
}

// resolveModule backs a round 2 module sketch with the statically scanned
// file list for the same path, so the fan-out prompt lists real files.
func (p *Pipeline) resolveModule(sketch ModuleSketch) ModuleInfo {
	for _, m := range p.facts.Modules {
		if m.Path == sketch.Path || m.Name == sketch.Name {
			return ModuleInfo{Name: sketch.Name, Path: m.Path, Files: m.Files}
		}
	}
	return ModuleInfo{Name: sketch.Name, Path: sketch.Path, Files: sketch.KeyFiles}
}

var languageByExtension = map[string]string{
	".go":   "go",
	".ts":   "typescript",
	".tsx":  "typescript",
	".js":   "javascript",
	".jsx":  "javascript",
	".mjs":  "javascript",
	".py":   "python",
	".rb":   "ruby",
	".rs":   "rust",
	".java": "java",
}

func (p *Pipeline) fallbackOverview() OverviewData {
	langSet := make(map[string]bool)
	var entryPoints []string
	for _, file := range p.facts.Files {
		if lang, ok := languageByExtension[filepath.Ext(file)]; ok {
			langSet[lang] = true
		}
		base := filepath.Base(file)
		if base == "main.go" || strings.HasPrefix(base, "index.") || strings.HasPrefix(base, "main.") {
			entryPoints = append(entryPoints, file)
		}
	}
	languages := make([]string, 0, len(langSet))
	for lang := range langSet {
		languages = append(languages, lang)
	}
	sort.Strings(languages)

	var observations []string
	for _, m := range p.facts.Modules {
		observations = append(observations, fmt.Sprintf("module %s contains %d files", m.Name, len(m.Files)))
	}

	return OverviewData{
		Purpose: fmt.Sprintf("Repository snapshot at commit %s on branch %s, %d source files.",
			orUnknown(p.facts.Commit), orUnknown(p.facts.Branch), len(p.facts.Files)),
		Languages:       languages,
		EntryPoints:     entryPoints,
		KeyObservations: observations,
		OpenQuestions:   []string{"overview unavailable: round degraded to static fallback"},
	}
}

func (p *Pipeline) fallbackArchitecture() ArchitectureData {
	var data ArchitectureData
	for _, m := range p.facts.Modules {
		sketch := ModuleSketch{Name: m.Name, Path: m.Path, Purpose: "catalogued from directory structure"}
		if len(m.Files) > 5 {
			sketch.KeyFiles = m.Files[:5]
		} else {
			sketch.KeyFiles = m.Files
		}
		data.Modules = append(data.Modules, sketch)
	}
	data.OpenQuestions = []string{"module purposes unavailable: round degraded to static fallback"}
	return data
}

func (p *Pipeline) fallbackDataFlow() DataFlowData {
	return DataFlowData{
		Flows:         append([]Flow(nil), p.facts.Edges...),
		OpenQuestions: []string{"flow descriptions unavailable: edges listed from import graph"},
	}
}

func fallbackModuleReport(module ModuleInfo) ModuleReport {
	files := module.Files
	if len(files) > 5 {
		files = files[:5]
	}
	return ModuleReport{
		Name:     module.Name,
		Purpose:  "catalogued from directory structure",
		KeyFiles: files,
		Findings: []string{fmt.Sprintf("module %s contains %d files", module.Name, len(module.Files))},
	}
}

func bulletList(entries []string) string {
	var b strings.Builder
	for _, entry := range entries {
		b.WriteString("- " + entry + "\n")
	}
	return b.String()
}

func orUnknown(s string) string {
	if s == "" {
		return "unknown"
	}
	return s
}
