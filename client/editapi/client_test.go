package editapi

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"ghosttab/assert"

	"github.com/andybalholm/brotli"
)

func TestDoEdits(t *testing.T) {
	var gotReq EditRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/edits", r.URL.Path, "endpoint path")
		assert.Equal(t, "br", r.Header.Get("Content-Encoding"), "brotli content encoding")
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"), "auth header")

		body, err := io.ReadAll(brotli.NewReader(r.Body))
		assert.NoError(t, err, "decompress request")
		assert.NoError(t, json.Unmarshal(body, &gotReq), "parse request")

		io.WriteString(w, `{"completion_id":"c1","start_index":5,"end_index":5,"completion":"bar"}`+"\n")
		io.WriteString(w, "\n") // blank lines are skipped
		io.WriteString(w, `{"completion_id":"c1","start_index":10,"end_index":12,"completion":""}`+"\n")
	}))
	defer server.Close()

	c := NewClient(server.URL, "secret", 5000)
	edits, err := c.DoEdits(context.Background(), &EditRequest{
		CompletionID: "c1",
		FilePath:     "main.go",
		FileContents: "hello world",
		CursorOffset: 5,
	})
	assert.NoError(t, err, "request")

	assert.Equal(t, "c1", gotReq.CompletionID, "completion id sent")
	assert.Equal(t, "main.go", gotReq.FilePath, "file path sent")
	assert.Equal(t, 5, gotReq.CursorOffset, "cursor offset sent")

	assert.Equal(t, 2, len(edits), "edit count")
	assert.Equal(t, "bar", edits[0].Completion, "first edit text")
	assert.Equal(t, 10, edits[1].StartIndex, "second edit range")
}

func TestDoEditsHTTPError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "rate limited", http.StatusTooManyRequests)
	}))
	defer server.Close()

	c := NewClient(server.URL, "", 5000)
	_, err := c.DoEdits(context.Background(), &EditRequest{})
	assert.Error(t, err, "non-200 status")
	assert.Contains(t, err.Error(), "429", "status code in error")
}

func TestSendFeedback(t *testing.T) {
	var gotReq FeedbackRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/feedback", r.URL.Path, "endpoint path")
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&gotReq), "parse request")
	}))
	defer server.Close()

	c := NewClient(server.URL, "", 5000)
	err := c.SendFeedback(context.Background(), &FeedbackRequest{
		CompletionID: "c1",
		Action:       FeedbackAccept,
		Additions:    3,
	})
	assert.NoError(t, err, "request")
	assert.Equal(t, "c1", gotReq.CompletionID, "completion id sent")
	assert.Equal(t, FeedbackAccept, gotReq.Action, "action sent")
	assert.Equal(t, 3, gotReq.Additions, "additions sent")
}

func TestApplyEdits(t *testing.T) {
	tests := []struct {
		name  string
		text  string
		edits []*EditResponse
		want  string
	}{
		{
			name:  "no edits",
			text:  "hello",
			edits: nil,
			want:  "hello",
		},
		{
			name: "insertion",
			text: "hello world",
			edits: []*EditResponse{
				{StartIndex: 5, EndIndex: 5, Completion: ","},
			},
			want: "hello, world",
		},
		{
			name: "replacement",
			text: "hello world",
			edits: []*EditResponse{
				{StartIndex: 6, EndIndex: 11, Completion: "there"},
			},
			want: "hello there",
		},
		{
			name: "deletion",
			text: "hello cruel world",
			edits: []*EditResponse{
				{StartIndex: 5, EndIndex: 11, Completion: ""},
			},
			want: "hello world",
		},
		{
			name: "later edit offsets shift after earlier insertion",
			text: "ab",
			edits: []*EditResponse{
				{StartIndex: 1, EndIndex: 1, Completion: "XX"},
				{StartIndex: 2, EndIndex: 2, Completion: "Y"},
			},
			want: "aXXbY",
		},
		{
			name: "out of range clamps",
			text: "abc",
			edits: []*EditResponse{
				{StartIndex: 2, EndIndex: 99, Completion: "Z"},
			},
			want: "abZ",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ApplyEdits(tt.text, tt.edits), "result")
		})
	}
}
