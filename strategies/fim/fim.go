// Package fim is the fill-in-middle strategy: the model completes between the
// text before and after the cursor. Generations run through the shared session
// tracker so continued typing reuses an in-flight stream instead of
// restarting it.
package fim

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"ghosttab/logger"
	"ghosttab/session"
	"ghosttab/types"
	"ghosttab/utils"

	"github.com/google/uuid"
)

// ContextTokens is the token budget for the prefix+suffix window sent to the
// model.
const ContextTokens = 2048

// promptSep joins prefix and suffix into the session identity string. NUL
// never appears in buffer text, so the join is unambiguous.
const promptSep = "\x00"

type strategy struct {
	tracker *session.Tracker
	cfg     *types.StrategyConfig
}

// New builds the fill-in-middle strategy descriptor. The tracker is shared
// with the other session-aware strategies so at most one generation is in
// flight per editing context.
func New(tracker *session.Tracker, cfg *types.StrategyConfig) *types.Strategy {
	s := &strategy{tracker: tracker, cfg: cfg}
	return &types.Strategy{
		Name:        "fim",
		Description: "fill-in-middle completion at the cursor",
		Priority:    100,
		Capabilities: types.CapabilitySet{
			types.CapValidateConfig,
		},
		SupportsModel: func(m types.Model) bool {
			return m.Supports(types.FeatureFIM)
		},
		Generate:       s.generate,
		ValidateConfig: s.validateConfig,
	}
}

func (s *strategy) validateConfig() error {
	if s.cfg == nil {
		return fmt.Errorf("config cannot be nil")
	}
	if s.cfg.MaxTokens < 0 {
		return fmt.Errorf("max tokens cannot be negative: %d", s.cfg.MaxTokens)
	}
	return nil
}

func (s *strategy) generate(ctx context.Context, req *types.CompletionRequest, m types.Model, gctx *types.GenerationContext) (*types.CompletionResult, error) {
	defer logger.Trace("fim.Generate")()

	prefix, suffix := utils.TrimWindow(req.Prefix, req.Suffix, ContextTokens)
	prompt := prefix + promptSep + suffix

	run := func(ctx context.Context, emit func(chunk string)) (*types.Usage, error) {
		return m.GenerateFIM(ctx, prefix, suffix, emit)
	}

	res, err := s.tracker.GetCompletion(ctx, req.Prefix, req.Suffix, prompt, run)
	if err != nil {
		return nil, err
	}

	text := res.Text

	// If the suggestion just repeats what is already after the cursor on the
	// current line, there is nothing to show.
	afterCursor := req.Suffix
	if i := strings.IndexByte(afterCursor, '\n'); i >= 0 {
		afterCursor = afterCursor[:i]
	}
	if text != "" && text == afterCursor {
		logger.Debug("fim: completion matches text after cursor, dropping")
		text = ""
	}

	result := &types.CompletionResult{
		Text:   text,
		Prefix: req.Prefix,
		Suffix: req.Suffix,
		Metadata: map[string]string{
			"completion_id": completionID(req),
			"reused":        strconv.FormatBool(res.Reused),
		},
	}
	if res.Usage != nil {
		result.Usage = *res.Usage
	}
	return result, nil
}

// completionID returns the caller-supplied id when present, otherwise a fresh
// one.
func completionID(req *types.CompletionRequest) string {
	if req.Input != nil && req.Input.CompletionID != "" {
		return req.Input.CompletionID
	}
	return uuid.NewString()
}
