package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/codeatlas/internal/claude"
)

func fanOutModules(n int) []ModuleInfo {
	modules := make([]ModuleInfo, n)
	for i := range modules {
		name := fmt.Sprintf("mod%02d", i)
		modules[i] = ModuleInfo{
			Name:  name,
			Path:  "internal/" + name,
			Files: []string{fmt.Sprintf("internal/%s/%s.go", name, name)},
		}
	}
	return modules
}

// moduleReportBody builds a rich per-module response keyed off the module
// name embedded in the prompt.
func moduleReportBody(name string) string {
	report := ModuleReport{
		Name:     name,
		Purpose:  "handles " + name + " concerns, entry in internal/" + name + "/" + name + ".go",
		KeyFiles: []string{"internal/" + name + "/" + name + ".go"},
		Findings: []string{
			"`Process()` in internal/" + name + "/" + name + ".go validates input before dispatch",
			"errors wrap the failing stage name for operator triage",
		},
		Patterns: []string{"constructor injection", "table-driven tests"},
	}
	data, _ := json.Marshal(report)
	return string(data)
}

func moduleNameFromPrompt(user string) string {
	start := strings.Index(user, `module "`)
	if start < 0 {
		return ""
	}
	rest := user[start+len(`module "`):]
	return rest[:strings.Index(rest, `"`)]
}

func fanOutGround(modules []ModuleInfo) fakeGround {
	var files []string
	for _, m := range modules {
		files = append(files, m.Files...)
	}
	return groundWith(files)
}

func fanOutOptions(modules []ModuleInfo) FanOutOptions {
	return FanOutOptions{
		Round:   RoundDeepDive,
		Name:    "Module Deep Dive",
		Modules: modules,
		BuildPrompt: func(module ModuleInfo, isRetry bool) Prompt {
			return Prompt{
				System:      systemPromptFor(moduleDeepDiveSystemPrompt, isRetry),
				User:        fmt.Sprintf("Analyze only the module %q.", module.Name),
				Temperature: temperatureFor(isRetry),
				MaxTokens:   maxOutputTokens,
			}
		},
		Fallback: fallbackModuleReport,
	}
}

func TestExecuteFanOutCapsModuleCount(t *testing.T) {
	modules := fanOutModules(25)
	client := &funcClient{fn: func(req claude.Request) (*claude.Response, error) {
		name := moduleNameFromPrompt(req.UserPrompt)
		return &claude.Response{
			Data:  json.RawMessage(moduleReportBody(name)),
			Model: "claude-sonnet-4-5",
			Usage: claude.Usage{InputTokens: 100, OutputTokens: 50},
		}, nil
	}}
	e := newTestEngine(t, client, fanOutGround(modules), nil)

	result := ExecuteFanOut(context.Background(), e, fanOutOptions(modules))

	assert.Equal(t, 20, client.callCount(), "only the first 20 modules are analyzed")
	dive, ok := result.Value.(DeepDive)
	require.True(t, ok)
	assert.Len(t, dive.Modules, 20)
	assert.Equal(t, StatusSuccess, result.Status)
}

func TestExecuteFanOutSingleFailureDoesNotAbortSiblings(t *testing.T) {
	modules := fanOutModules(5)
	events := &recordingEvents{}
	client := &funcClient{fn: func(req claude.Request) (*claude.Response, error) {
		name := moduleNameFromPrompt(req.UserPrompt)
		if name == "mod02" {
			return nil, fmt.Errorf("timeout")
		}
		return &claude.Response{
			Data:  json.RawMessage(moduleReportBody(name)),
			Model: "claude-sonnet-4-5",
			Usage: claude.Usage{InputTokens: 100, OutputTokens: 50},
		}, nil
	}}
	e := newTestEngine(t, client, fanOutGround(modules), events)

	result := ExecuteFanOut(context.Background(), e, fanOutOptions(modules))

	dive, ok := result.Value.(DeepDive)
	require.True(t, ok)
	// One of five failing is under the retry threshold; the other four stand.
	assert.Len(t, dive.Modules, 4)
	assert.Contains(t, events.moduleFailures, "mod02")
}

func TestExecuteFanOutRetriesFailedSubsetOnly(t *testing.T) {
	modules := fanOutModules(5)
	events := &recordingEvents{}
	var failedOnce = map[string]bool{}
	client := &funcClient{fn: func(req claude.Request) (*claude.Response, error) {
		name := moduleNameFromPrompt(req.UserPrompt)
		if (name == "mod01" || name == "mod03") && !failedOnce[name] {
			failedOnce[name] = true
			return nil, fmt.Errorf("transient failure")
		}
		return &claude.Response{
			Data:  json.RawMessage(moduleReportBody(name)),
			Model: "claude-sonnet-4-5",
			Usage: claude.Usage{InputTokens: 100, OutputTokens: 50},
		}, nil
	}}
	e := newTestEngine(t, client, fanOutGround(modules), events)

	opts := fanOutOptions(modules)
	opts.BatchSize = 1 // serialize so failedOnce needs no locking
	result := ExecuteFanOut(context.Background(), e, opts)

	// 5 first-pass calls, then only the 2 failed modules again.
	assert.Equal(t, 7, client.callCount())
	assert.Equal(t, StatusRetried, result.Status)
	dive, ok := result.Value.(DeepDive)
	require.True(t, ok)
	assert.Len(t, dive.Modules, 5)
	require.NotEmpty(t, events.retries)
	assert.Contains(t, events.retries[0], "failed modules")
}

func TestExecuteFanOutDegradesWhenEverythingFails(t *testing.T) {
	modules := fanOutModules(3)
	client := &funcClient{fn: func(req claude.Request) (*claude.Response, error) {
		return nil, fmt.Errorf("api unavailable")
	}}
	e := newTestEngine(t, client, fanOutGround(modules), nil)

	result := ExecuteFanOut(context.Background(), e, fanOutOptions(modules))

	assert.Equal(t, StatusDegraded, result.Status)
	assert.Contains(t, result.FailureReason, "api unavailable")
	dive, ok := result.Value.(DeepDive)
	require.True(t, ok)
	require.Len(t, dive.Modules, 3, "fallback reports cover every attempted module")
	assert.Equal(t, "catalogued from directory structure", dive.Modules[0].Purpose)
}

func TestDetectCrossCuttingRequiresTwoModules(t *testing.T) {
	reports := []ModuleReport{
		{Name: "api", Patterns: []string{"constructor injection", "singleton registry"}},
		{Name: "store", Patterns: []string{"Constructor Injection"}},
		{Name: "auth", Patterns: []string{}},
		{Name: "cli", Patterns: []string{"table-driven tests"}},
		{Name: "render", Patterns: []string{}},
	}

	conventions := detectCrossCutting(reports)

	require.Len(t, conventions, 1, "patterns seen in one module stay local")
	assert.Equal(t, "constructor injection", conventions[0].Pattern)
	assert.Equal(t, "Found in 2 of 5 modules", conventions[0].Frequency)
}

func TestDetectCrossCuttingCountsDistinctModules(t *testing.T) {
	reports := []ModuleReport{
		{Name: "api", Patterns: []string{"structured logging", "structured logging"}},
		{Name: "api", Patterns: []string{"structured logging"}},
	}

	// Same module twice does not make a pattern cross-cutting.
	assert.Empty(t, detectCrossCutting(reports))
}

func TestExecuteFanOutEmptyModuleList(t *testing.T) {
	client := &funcClient{fn: func(req claude.Request) (*claude.Response, error) {
		t.Fatal("no model call expected")
		return nil, nil
	}}
	e := newTestEngine(t, client, groundWith(nil), nil)

	result := ExecuteFanOut(context.Background(), e, fanOutOptions(nil))

	assert.Equal(t, StatusDegraded, result.Status)
	assert.Contains(t, result.FailureReason, "no modules")
}
