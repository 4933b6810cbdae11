// Package claude provides the model-calling collaborator for analysis rounds.
// The pipeline consumes the Completer interface; HTTPClient implements it
// against the Anthropic messages API.
package claude

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// Usage holds token counters for one completion, including prompt-cache
// activity reported by the API.
type Usage struct {
	InputTokens         int
	OutputTokens        int
	CacheReadTokens     int
	CacheCreationTokens int
}

// Request is one structured completion request. The user prompt must ask for
// JSON output; Data on the response carries the raw JSON document.
type Request struct {
	SystemPrompt string
	UserPrompt   string
	Temperature  float64
	MaxTokens    int
}

// Response is the structured result of one completion.
type Response struct {
	Data     json.RawMessage
	Usage    Usage
	Model    string
	Duration time.Duration
}

// Completer abstracts the model API so the pipeline can be tested with mocks.
type Completer interface {
	// Complete sends one request and returns structured JSON output plus
	// usage counters. Any error is treated by the caller as a degrade
	// trigger.
	Complete(ctx context.Context, req Request) (*Response, error)

	// MaxContextTokens returns the model's context window size.
	MaxContextTokens() int
}

// HTTPClient implements Completer using the Anthropic messages API.
type HTTPClient struct {
	apiKey     string
	baseURL    string
	model      string
	httpClient *http.Client
}

type apiRequest struct {
	Model       string       `json:"model"`
	MaxTokens   int          `json:"max_tokens"`
	Messages    []apiMessage `json:"messages"`
	System      string       `json:"system,omitempty"`
	Temperature float64      `json:"temperature"`
}

type apiMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type apiResponse struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	Model      string `json:"model"`
	StopReason string `json:"stop_reason"`
	Usage      struct {
		InputTokens         int `json:"input_tokens"`
		OutputTokens        int `json:"output_tokens"`
		CacheReadTokens     int `json:"cache_read_input_tokens"`
		CacheCreationTokens int `json:"cache_creation_input_tokens"`
	} `json:"usage"`
}

type apiError struct {
	Error struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error"`
}

// NewHTTPClient creates a new Anthropic API client.
func NewHTTPClient(apiKey, baseURL, model string) (*HTTPClient, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("API key is required")
	}
	if baseURL == "" {
		baseURL = "https://api.anthropic.com"
	}
	if model == "" {
		model = "claude-sonnet-4-5"
	}

	return &HTTPClient{
		apiKey:  apiKey,
		baseURL: baseURL,
		model:   model,
		httpClient: &http.Client{
			Timeout: 120 * time.Second,
		},
	}, nil
}

// MaxContextTokens returns the context window for the configured model.
func (c *HTTPClient) MaxContextTokens() int {
	return 200_000
}

// Complete sends one completion request and parses the JSON document out of
// the model's text response.
func (c *HTTPClient) Complete(ctx context.Context, req Request) (*Response, error) {
	start := time.Now()

	maxTokens := req.MaxTokens
	if maxTokens == 0 {
		maxTokens = 8192
	}

	body := apiRequest{
		Model:       c.model,
		MaxTokens:   maxTokens,
		Temperature: req.Temperature,
		System:      req.SystemPrompt,
		Messages: []apiMessage{
			{Role: "user", Content: ScrubSecrets(req.UserPrompt)},
		},
	}

	jsonData, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/messages", bytes.NewBuffer(jsonData))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("X-API-Key", c.apiKey)
	httpReq.Header.Set("Anthropic-Version", "2023-06-01")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("API request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		var errResp apiError
		if err := json.Unmarshal(respBody, &errResp); err == nil && errResp.Error.Message != "" {
			return nil, fmt.Errorf("API error (%d): %s", resp.StatusCode, errResp.Error.Message)
		}
		return nil, fmt.Errorf("API error (%d): %s", resp.StatusCode, string(respBody))
	}

	var parsed apiResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}
	if len(parsed.Content) == 0 {
		return nil, fmt.Errorf("empty response from API")
	}

	data, err := ExtractJSON(parsed.Content[0].Text)
	if err != nil {
		return nil, fmt.Errorf("model output is not valid JSON: %w", err)
	}

	return &Response{
		Data: data,
		Usage: Usage{
			InputTokens:         parsed.Usage.InputTokens,
			OutputTokens:        parsed.Usage.OutputTokens,
			CacheReadTokens:     parsed.Usage.CacheReadTokens,
			CacheCreationTokens: parsed.Usage.CacheCreationTokens,
		},
		Model:    parsed.Model,
		Duration: time.Since(start),
	}, nil
}

// ExtractJSON pulls the JSON document out of a model text response, stripping
// markdown code fences and surrounding prose if present.
func ExtractJSON(text string) (json.RawMessage, error) {
	trimmed := strings.TrimSpace(text)

	if strings.HasPrefix(trimmed, "```") {
		trimmed = strings.TrimPrefix(trimmed, "```json")
		trimmed = strings.TrimPrefix(trimmed, "```")
		if idx := strings.LastIndex(trimmed, "```"); idx >= 0 {
			trimmed = trimmed[:idx]
		}
		trimmed = strings.TrimSpace(trimmed)
	}

	// Fall back to the outermost braces when the model wrapped the document
	// in prose despite instructions.
	if !strings.HasPrefix(trimmed, "{") && !strings.HasPrefix(trimmed, "[") {
		start := strings.Index(trimmed, "{")
		end := strings.LastIndex(trimmed, "}")
		if start < 0 || end <= start {
			return nil, fmt.Errorf("no JSON object found in response")
		}
		trimmed = trimmed[start : end+1]
	}

	if !json.Valid([]byte(trimmed)) {
		return nil, fmt.Errorf("response is not valid JSON")
	}
	return json.RawMessage(trimmed), nil
}
