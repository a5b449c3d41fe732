// Package openai implements the model backend against OpenAI-compatible
// completion endpoints, including FIM-capable servers that accept a suffix
// field (llama.cpp, vLLM, DeepSeek and friends).
package openai

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"ghosttab/logger"
	"ghosttab/types"
	"ghosttab/utils"
)

// Config describes one OpenAI-compatible endpoint.
type Config struct {
	BaseURL     string
	APIKey      string
	ModelName   string
	Temperature float64
	MaxTokens   int
	TimeoutMs   int
	FIM         bool // endpoint accepts the completions suffix field

	// Per-million-token prices for cost accounting. Zero means free/local.
	InputPricePerM  float64
	OutputPricePerM float64
}

// Model is a types.Model backed by a streaming completions endpoint.
type Model struct {
	cfg        Config
	httpClient *http.Client
	url        string
}

// New creates a model for the given endpoint config.
func New(cfg Config) *Model {
	timeout := time.Duration(0)
	if cfg.TimeoutMs > 0 {
		timeout = time.Duration(cfg.TimeoutMs) * time.Millisecond
	}
	return &Model{
		cfg: cfg,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		url: strings.TrimSuffix(cfg.BaseURL, "/") + "/v1/completions",
	}
}

// ID returns the configured model name.
func (m *Model) ID() string {
	return m.cfg.ModelName
}

// Supports reports the features this endpoint provides.
func (m *Model) Supports(f types.Feature) bool {
	switch f {
	case types.FeatureStreaming:
		return true
	case types.FeatureFIM:
		return m.cfg.FIM
	default:
		return false
	}
}

// GenerateFullText streams a plain completion for prompt, calling emit for
// each text chunk as it arrives.
func (m *Model) GenerateFullText(ctx context.Context, prompt string, emit func(chunk string)) (*types.Usage, error) {
	defer logger.Trace("openai.GenerateFullText")()
	return m.stream(ctx, &request{
		Model:       m.cfg.ModelName,
		Prompt:      prompt,
		Temperature: m.cfg.Temperature,
		MaxTokens:   m.cfg.MaxTokens,
		Stream:      true,
		StreamOpts:  &streamOpts{IncludeUsage: true},
	}, prompt, emit)
}

// GenerateFIM streams a fill-in-middle completion between prefix and suffix.
func (m *Model) GenerateFIM(ctx context.Context, prefix, suffix string, emit func(chunk string)) (*types.Usage, error) {
	defer logger.Trace("openai.GenerateFIM")()
	if !m.cfg.FIM {
		return nil, fmt.Errorf("model %q is not configured for fill-in-middle", m.cfg.ModelName)
	}
	return m.stream(ctx, &request{
		Model:       m.cfg.ModelName,
		Prompt:      prefix,
		Suffix:      suffix,
		Temperature: m.cfg.Temperature,
		MaxTokens:   m.cfg.MaxTokens,
		Stream:      true,
		StreamOpts:  &streamOpts{IncludeUsage: true},
	}, prefix+suffix, emit)
}

type request struct {
	Model       string      `json:"model"`
	Prompt      string      `json:"prompt"`
	Suffix      string      `json:"suffix,omitempty"`
	Temperature float64     `json:"temperature"`
	MaxTokens   int         `json:"max_tokens,omitempty"`
	Stream      bool        `json:"stream"`
	StreamOpts  *streamOpts `json:"stream_options,omitempty"`
}

type streamOpts struct {
	IncludeUsage bool `json:"include_usage"`
}

type chunk struct {
	Choices []choice  `json:"choices"`
	Usage   *apiUsage `json:"usage"`
	Error   *apiError `json:"error"`
}

type choice struct {
	Text         string `json:"text"`
	FinishReason string `json:"finish_reason"`
}

type apiUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
}

type apiError struct {
	Message string `json:"message"`
}

// stream runs one SSE completion request. promptText is only used for token
// estimation when the server omits usage in its final chunk.
func (m *Model) stream(ctx context.Context, req *request, promptText string, emit func(chunk string)) (*types.Usage, error) {
	jsonData, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, "POST", m.url, bytes.NewReader(jsonData))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "text/event-stream")
	if m.cfg.APIKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+m.cfg.APIKey)
	}

	resp, err := m.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("request failed with status %d: %s", resp.StatusCode, string(body))
	}

	var generated strings.Builder
	var usage *apiUsage

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024) // 1MB max line
	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "data:") {
			continue
		}
		data := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		if data == "" || data == "[DONE]" {
			continue
		}

		var c chunk
		if err := json.Unmarshal([]byte(data), &c); err != nil {
			return nil, fmt.Errorf("failed to parse stream chunk: %w", err)
		}
		if c.Error != nil {
			return nil, fmt.Errorf("api error: %s", c.Error.Message)
		}
		if c.Usage != nil {
			usage = c.Usage
		}
		if len(c.Choices) > 0 && c.Choices[0].Text != "" {
			generated.WriteString(c.Choices[0].Text)
			emit(c.Choices[0].Text)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read stream: %w", err)
	}

	if usage == nil {
		// Server did not report usage, estimate from text.
		usage = &apiUsage{
			PromptTokens:     utils.EstimateTokens(promptText),
			CompletionTokens: utils.EstimateTokens(generated.String()),
		}
	}

	return m.usageFor(usage), nil
}

// usageFor converts API token counts into a Usage with cost applied.
func (m *Model) usageFor(u *apiUsage) *types.Usage {
	cost := float64(u.PromptTokens)*m.cfg.InputPricePerM/1e6 +
		float64(u.CompletionTokens)*m.cfg.OutputPricePerM/1e6
	return &types.Usage{
		Cost:         cost,
		InputTokens:  u.PromptTokens,
		OutputTokens: u.CompletionTokens,
	}
}
