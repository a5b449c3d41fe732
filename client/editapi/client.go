// Package editapi is the HTTP client for the remote next-edit prediction
// service. Requests are brotli-compressed JSON; responses are ndjson, one
// byte-range edit per line.
package editapi

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

	"github.com/andybalholm/brotli"
)

// EditRequest is the request format for the edit prediction endpoint.
type EditRequest struct {
	CompletionID string `json:"completion_id"`
	FilePath     string `json:"file_path"`
	FileContents string `json:"file_contents"`
	CursorOffset int    `json:"cursor_offset"`
	LanguageID   string `json:"language_id,omitempty"`
	DeviceID     string `json:"device_id,omitempty"`
	PrivacyMode  bool   `json:"privacy_mode_enabled"`
}

// EditResponse is one predicted byte-range edit.
type EditResponse struct {
	CompletionID string `json:"completion_id"`
	StartIndex   int    `json:"start_index"`
	EndIndex     int    `json:"end_index"`
	Completion   string `json:"completion"`
}

// FeedbackAction is the user outcome reported back to the service.
type FeedbackAction string

// Feedback action constants.
const (
	FeedbackAccept FeedbackAction = "accept"
	FeedbackReject FeedbackAction = "reject"
	FeedbackIgnore FeedbackAction = "ignore"
)

// FeedbackRequest is the request format for the feedback endpoint.
type FeedbackRequest struct {
	CompletionID string         `json:"completion_id"`
	Action       FeedbackAction `json:"action"`
	DeviceID     string         `json:"device_id,omitempty"`
	Additions    int            `json:"additions"`
	Deletions    int            `json:"deletions"`
	LifespanMs   int64          `json:"lifespan_ms,omitempty"`
}

// Client talks to an edit prediction backend.
type Client struct {
	HTTPClient  *http.Client
	URL         string
	feedbackURL string
	AuthToken   string
	UserAgent   string
}

// NewClient creates a client for the given base URL. The feedback endpoint is
// derived from the completion endpoint.
func NewClient(baseURL, apiKey string, timeoutMs int) *Client {
	timeout := time.Duration(0)
	if timeoutMs > 0 {
		timeout = time.Duration(timeoutMs) * time.Millisecond
	}

	url := strings.TrimSuffix(baseURL, "/") + "/v1/edits"
	feedbackURL := strings.TrimSuffix(baseURL, "/") + "/v1/feedback"

	return &Client{
		HTTPClient: &http.Client{
			Timeout: timeout,
		},
		URL:         url,
		feedbackURL: feedbackURL,
		AuthToken:   apiKey,
	}
}

// DoEdits sends an edit prediction request. The response body is ndjson; one
// EditResponse per non-empty line.
func (c *Client) DoEdits(ctx context.Context, req *EditRequest) ([]*EditResponse, error) {
	defer logger.Trace("editapi.DoEdits")()

	jsonData, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	// Compress with brotli, quality 1 for speed.
	var compressed bytes.Buffer
	bw := brotli.NewWriterLevel(&compressed, 1)
	if _, err := bw.Write(jsonData); err != nil {
		return nil, fmt.Errorf("failed to compress request: %w", err)
	}
	if err := bw.Close(); err != nil {
		return nil, fmt.Errorf("failed to close brotli writer: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, "POST", c.URL, &compressed)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Content-Encoding", "br")
	if c.UserAgent != "" {
		httpReq.Header.Set("User-Agent", c.UserAgent)
	}
	if c.AuthToken != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.AuthToken)
	}

	resp, err := c.HTTPClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("request failed with status %d: %s", resp.StatusCode, string(body))
	}

	var results []*EditResponse
	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024) // 1MB max line
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		var edit EditResponse
		if err := json.Unmarshal([]byte(line), &edit); err != nil {
			return nil, fmt.Errorf("failed to parse response line: %w", err)
		}
		results = append(results, &edit)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	return results, nil
}

// SendFeedback reports a suggestion outcome to the service.
func (c *Client) SendFeedback(ctx context.Context, req *FeedbackRequest) error {
	defer logger.Trace("editapi.SendFeedback")()

	jsonData, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("failed to marshal feedback request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, "POST", c.feedbackURL, bytes.NewReader(jsonData))
	if err != nil {
		return fmt.Errorf("failed to create feedback request: %w", err)
	}

	httpReq.Header.Set("Content-Type", "application/json")
	if c.AuthToken != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.AuthToken)
	}

	resp, err := c.HTTPClient.Do(httpReq)
	if err != nil {
		return fmt.Errorf("failed to send feedback request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("feedback request failed with status %d: %s", resp.StatusCode, string(body))
	}

	return nil
}

// ApplyEdits applies byte-range edits to text sequentially, adjusting offsets
// as each edit changes the text length. Returns the final modified text.
func ApplyEdits(text string, edits []*EditResponse) string {
	offset := 0
	for _, edit := range edits {
		start := edit.StartIndex + offset
		end := edit.EndIndex + offset
		if start < 0 {
			start = 0
		}
		if end > len(text) {
			end = len(text)
		}
		if start > end {
			start = end
		}
		text = text[:start] + edit.Completion + text[end:]
		offset += len(edit.Completion) - (edit.EndIndex - edit.StartIndex)
	}
	return text
}
