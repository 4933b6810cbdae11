package pipeline

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func engineGround() fakeGround {
	return groundWith([]string{"internal/app/app.go", "internal/app/run.go"})
}

// acceptableBody passes round 1 validation and quality on the first attempt.
func acceptableBody() string {
	note := strings.Repeat("the `Run()` loop in internal/app/app.go drives execution. ", 20)
	return `{"notes":["` + note + `"]}`
}

// highDropBody claims four paths of which two do not exist: drop rate 0.5.
func highDropBody() string {
	return `{"notes":["internal/app/app.go internal/app/run.go internal/fake/a.go internal/fake/b.go"]}`
}

// vagueBody validates cleanly but is far too short for the quality gate.
func vagueBody() string {
	return `{"notes":["see internal/app/app.go"]}`
}

func noteRound(client *scriptedClient, t *testing.T, events Events) (*Engine, RoundOptions[noteData]) {
	e := newTestEngine(t, client, engineGround(), events)
	opts := RoundOptions[noteData]{
		Round: 1,
		Name:  "Overview",
		BuildPrompt: func(isRetry bool) Prompt {
			return Prompt{
				System:      systemPromptFor(overviewSystemPrompt, isRetry),
				User:        "analyze",
				Temperature: temperatureFor(isRetry),
				MaxTokens:   maxOutputTokens,
			}
		},
		Fallback: func() noteData {
			return noteData{Notes: []string{"static fallback"}}
		},
	}
	return e, opts
}

func TestExecuteRoundSuccessSingleCall(t *testing.T) {
	client := &scriptedClient{queue: []scripted{{data: acceptableBody()}}}
	e, opts := noteRound(client, t, nil)

	result := ExecuteRound(context.Background(), e, opts)

	assert.Equal(t, 1, client.callCount())
	assert.Equal(t, StatusSuccess, result.Status)
	assert.True(t, result.Quality.IsAcceptable)
	assert.Equal(t, 1, result.Validation.Validated)
	assert.Zero(t, result.Validation.Corrected)
	assert.Equal(t, 150, result.Tokens)
	assert.Greater(t, result.Cost, 0.0)
	assert.NotEmpty(t, result.Context.Findings)
}

func TestExecuteRoundRetriesOnDropRate(t *testing.T) {
	events := &recordingEvents{}
	client := &scriptedClient{queue: []scripted{
		{data: highDropBody()},
		{data: acceptableBody()},
	}}
	e, opts := noteRound(client, t, events)

	result := ExecuteRound(context.Background(), e, opts)

	assert.Equal(t, 2, client.callCount(), "drop rate 0.5 must trigger exactly one retry")
	assert.Equal(t, StatusRetried, result.Status)
	assert.Zero(t, result.Validation.Corrected, "final validation reflects the retry attempt")
	require.Len(t, events.retries, 1)
	assert.Contains(t, events.retries[0], "drop rate")
	assert.Equal(t, 300, result.Tokens, "both attempts count toward the round's usage")
}

func TestExecuteRoundRetriesOnQualityGate(t *testing.T) {
	events := &recordingEvents{}
	client := &scriptedClient{queue: []scripted{
		{data: vagueBody()},
		{data: acceptableBody()},
	}}
	e, opts := noteRound(client, t, events)

	result := ExecuteRound(context.Background(), e, opts)

	assert.Equal(t, 2, client.callCount())
	assert.Equal(t, StatusRetried, result.Status)
	assert.True(t, result.Quality.IsAcceptable)
	require.Len(t, events.retries, 1)
	assert.Contains(t, events.retries[0], "quality")
}

func TestExecuteRoundRetryBudgetIsOne(t *testing.T) {
	client := &scriptedClient{queue: []scripted{
		{data: highDropBody()},
		{data: vagueBody()},
	}}
	e, opts := noteRound(client, t, nil)

	result := ExecuteRound(context.Background(), e, opts)

	assert.Equal(t, 2, client.callCount(), "a bad retry result must not trigger another attempt")
	assert.Equal(t, StatusRetried, result.Status)
	assert.False(t, result.Quality.IsAcceptable, "the retry's shortcomings are recorded, not re-fixed")
}

func TestExecuteRoundDegradesOnModelError(t *testing.T) {
	client := &scriptedClient{queue: []scripted{{err: errors.New("api unavailable")}}}
	e, opts := noteRound(client, t, nil)

	result := ExecuteRound(context.Background(), e, opts)

	assert.Equal(t, StatusDegraded, result.Status)
	assert.Contains(t, result.FailureReason, "api unavailable")
	assert.Equal(t, noteData{Notes: []string{"static fallback"}}, result.Value)
	assert.Zero(t, result.Validation.Total)
	assert.False(t, result.Quality.IsAcceptable)
	assert.Equal(t, []string{"static fallback"}, result.Context.Findings,
		"fallback output is compressed like normal output")
}

func TestExecuteRoundFallbackIsDeterministic(t *testing.T) {
	run := func() *RoundResult {
		client := &scriptedClient{queue: []scripted{{err: errors.New("boom")}}}
		e, opts := noteRound(client, t, nil)
		return ExecuteRound(context.Background(), e, opts)
	}

	first := run()
	second := run()
	assert.Equal(t, string(first.Data), string(second.Data))
}

func TestExecuteRoundDegradesOnMalformedOutput(t *testing.T) {
	client := &scriptedClient{queue: []scripted{{data: `{"notes": 42}`}}}
	e, opts := noteRound(client, t, nil)

	result := ExecuteRound(context.Background(), e, opts)

	assert.Equal(t, StatusDegraded, result.Status)
	assert.Contains(t, result.FailureReason, "expected shape")
}
