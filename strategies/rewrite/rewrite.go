// Package rewrite is the prompt-based completion strategy for models without
// native fill-in-middle support: the cursor region is wrapped in edit tags,
// retrieved snippets are prepended, and the model continues at the cursor.
// Generations stream through the shared session tracker.
package rewrite

import (
	"context"
	"strconv"
	"strings"
	"time"

	"ghosttab/logger"
	"ghosttab/session"
	"ghosttab/types"
	"ghosttab/utils"

	"github.com/google/uuid"
)

// ContextTokens is the token budget for the prefix+suffix window embedded in
// the prompt.
const ContextTokens = 1400

// Prompt format constants
const (
	SnippetsStart   = "<|recently_viewed_code_snippets|>\n"
	SnippetsEnd     = "<|/recently_viewed_code_snippets|>\n"
	SnippetStart    = "<|recently_viewed_code_snippet|>\n"
	SnippetEnd      = "<|/recently_viewed_code_snippet|>\n"
	CodeToEditStart = "<|code_to_edit|>\n"
	CodeToEditEnd   = "<|/code_to_edit|>\n"
	CursorTag       = "<|cursor|>"

	snippetFilePathPrefix = "code_snippet_file_path: "
	currentFilePathPrefix = "current_file_path: "
)

type strategy struct {
	tracker *session.Tracker
	cfg     *types.StrategyConfig
}

// New builds the rewrite strategy descriptor, sharing tracker with the other
// session-aware strategies.
func New(tracker *session.Tracker, cfg *types.StrategyConfig) *types.Strategy {
	s := &strategy{tracker: tracker, cfg: cfg}
	return &types.Strategy{
		Name:        "rewrite",
		Description: "tagged-region completion for models without fill-in-middle",
		Priority:    50,
		SupportsModel: func(m types.Model) bool {
			return m.Supports(types.FeatureStreaming)
		},
		Generate: s.generate,
	}
}

func (s *strategy) generate(ctx context.Context, req *types.CompletionRequest, m types.Model, gctx *types.GenerationContext) (*types.CompletionResult, error) {
	defer logger.Trace("rewrite.Generate")()

	prefix, suffix := utils.TrimWindow(req.Prefix, req.Suffix, ContextTokens)

	var snippets []types.Snippet
	if gctx != nil && gctx.ContextProvider != nil {
		pctx, err := gctx.ContextProvider.ContextFor(ctx, req.Input, req.FilePath)
		if err != nil {
			logger.Warn("rewrite: context provider failed, continuing without snippets: %v", err)
		} else if pctx != nil {
			snippets = pctx.Snippets
		}
	}

	prompt := buildPrompt(req.FilePath, prefix, suffix, snippets)

	run := func(ctx context.Context, emit func(chunk string)) (*types.Usage, error) {
		return m.GenerateFullText(ctx, prompt, emit)
	}

	start := time.Now()
	stream := s.tracker.StreamCompletion(ctx, req.Prefix, req.Suffix, prompt, run)

	// Drain the live chunks, recording time to first visible token.
	firstChunkMs := int64(-1)
	for range stream.Chunks() {
		if firstChunkMs < 0 {
			firstChunkMs = time.Since(start).Milliseconds()
		}
	}

	res, err := stream.Wait(ctx)
	if err != nil {
		return nil, err
	}

	result := &types.CompletionResult{
		Text:   cleanCompletion(res.Text),
		Prefix: req.Prefix,
		Suffix: req.Suffix,
		Metadata: map[string]string{
			"completion_id": completionID(req),
			"reused":        strconv.FormatBool(res.Reused),
		},
	}
	if firstChunkMs >= 0 {
		result.Metadata["first_chunk_ms"] = strconv.FormatInt(firstChunkMs, 10)
	}
	if res.Usage != nil {
		result.Usage = *res.Usage
	}
	return result, nil
}

// buildPrompt constructs the tagged prompt: retrieved snippets first, then the
// current file window with the cursor marked.
func buildPrompt(filePath, prefix, suffix string, snippets []types.Snippet) string {
	var sb strings.Builder

	sb.WriteString(SnippetsStart)
	for _, snip := range snippets {
		sb.WriteString(SnippetStart)
		sb.WriteString(snippetFilePathPrefix)
		sb.WriteString(snip.FilePath)
		sb.WriteString("\n")
		sb.WriteString(snip.Content)
		if !strings.HasSuffix(snip.Content, "\n") {
			sb.WriteString("\n")
		}
		sb.WriteString(SnippetEnd)
	}
	sb.WriteString(SnippetsEnd)
	sb.WriteString("\n")

	sb.WriteString(CodeToEditStart)
	sb.WriteString(currentFilePathPrefix)
	sb.WriteString(filePath)
	sb.WriteString("\n")
	sb.WriteString(prefix)
	sb.WriteString(CursorTag)
	sb.WriteString(suffix)
	if !strings.HasSuffix(suffix, "\n") {
		sb.WriteString("\n")
	}
	sb.WriteString(CodeToEditEnd)

	return sb.String()
}

// cleanCompletion strips markdown fencing and the "None" no-prediction marker.
func cleanCompletion(text string) string {
	text = strings.TrimPrefix(text, "```\n")
	text = strings.TrimSuffix(text, "\n```")
	if text == "None" {
		return ""
	}
	return text
}

// completionID returns the caller-supplied id when present, otherwise a fresh
// one.
func completionID(req *types.CompletionRequest) string {
	if req.Input != nil && req.Input.CompletionID != "" {
		return req.Input.CompletionID
	}
	return uuid.NewString()
}
