// Package editpredict is the remote next-edit prediction strategy. It sends
// the whole buffer with the cursor offset to the edits service, applies the
// returned byte-range edits, and keeps only edits that insert at the cursor.
// It also reports suggestion outcomes back to the service.
package editpredict

import (
	"context"
	"fmt"
	"strings"
	"time"

	"ghosttab/client/editapi"
	"ghosttab/logger"
	"ghosttab/metrics"
	"ghosttab/types"

	"github.com/google/uuid"
)

// Predictor holds the client state behind the editpredict strategy. It also
// implements metrics.Sender for feedback reporting.
type Predictor struct {
	cfg    *types.StrategyConfig
	client *editapi.Client
}

// New creates a predictor for the configured edits service.
func New(cfg *types.StrategyConfig) *Predictor {
	return &Predictor{
		cfg:    cfg,
		client: editapi.NewClient(cfg.APIURL, cfg.APIKey, cfg.TimeoutMs),
	}
}

// Strategy returns the registerable strategy descriptor.
func (p *Predictor) Strategy() *types.Strategy {
	return &types.Strategy{
		Name:        "editpredict",
		Description: "next-edit prediction via the remote edits service",
		Priority:    10,
		Capabilities: types.CapabilitySet{
			types.CapShutdown,
			types.CapValidateConfig,
		},
		// The prediction runs server-side, so any local model works.
		SupportsModel:  func(types.Model) bool { return true },
		Generate:       p.generate,
		Shutdown:       p.shutdown,
		ValidateConfig: p.validateConfig,
	}
}

func (p *Predictor) validateConfig() error {
	if p.cfg == nil {
		return fmt.Errorf("config cannot be nil")
	}
	if p.cfg.APIURL == "" {
		return fmt.Errorf("api url cannot be empty")
	}
	return nil
}

func (p *Predictor) shutdown(ctx context.Context) error {
	p.client.HTTPClient.CloseIdleConnections()
	return nil
}

func (p *Predictor) generate(ctx context.Context, req *types.CompletionRequest, m types.Model, gctx *types.GenerationContext) (*types.CompletionResult, error) {
	defer logger.Trace("editpredict.Generate")()

	contents := req.Prefix + req.Suffix
	id := completionID(req)

	edits, err := p.client.DoEdits(ctx, &editapi.EditRequest{
		CompletionID: id,
		FilePath:     req.FilePath,
		FileContents: contents,
		CursorOffset: len(req.Prefix),
		LanguageID:   req.LanguageID,
		DeviceID:     p.cfg.DeviceID,
		PrivacyMode:  p.cfg.PrivacyMode,
	})
	if err != nil {
		return nil, err
	}

	modified := editapi.ApplyEdits(contents, edits)

	// Only an insertion exactly at the cursor can be surfaced as ghost text.
	// Edits elsewhere in the file are dropped.
	text := ""
	if modified != contents {
		if strings.HasPrefix(modified, req.Prefix) && strings.HasSuffix(modified[len(req.Prefix):], req.Suffix) {
			text = modified[len(req.Prefix) : len(modified)-len(req.Suffix)]
		} else {
			logger.Debug("editpredict: %d edit(s) outside the cursor insertion point, dropping", len(edits))
		}
	}

	return &types.CompletionResult{
		Text:   text,
		Prefix: req.Prefix,
		Suffix: req.Suffix,
		Metadata: map[string]string{
			"completion_id": id,
		},
	}, nil
}

// SendMetric implements metrics.Sender.
func (p *Predictor) SendMetric(ctx context.Context, event metrics.Event) {
	var action editapi.FeedbackAction
	switch event.Type {
	case metrics.EventShown:
		// The edits service only has accept/reject/ignore.
		return
	case metrics.EventAccepted:
		action = editapi.FeedbackAccept
	case metrics.EventRejected:
		action = editapi.FeedbackReject
	case metrics.EventIgnored:
		action = editapi.FeedbackIgnore
	default:
		return
	}

	var lifespanMs int64
	if !event.Info.ShownAt.IsZero() {
		lifespanMs = time.Since(event.Info.ShownAt).Milliseconds()
	}

	req := &editapi.FeedbackRequest{
		CompletionID: event.Info.CompletionID,
		Action:       action,
		DeviceID:     p.cfg.DeviceID,
		Additions:    event.Info.Stats.Additions,
		Deletions:    event.Info.Stats.Deletions,
		LifespanMs:   lifespanMs,
	}
	if err := p.client.SendFeedback(ctx, req); err != nil {
		logger.Warn("editpredict: failed to send %s feedback: %v", event.Type, err)
	}
}

// completionID returns the caller-supplied id when present, otherwise a fresh
// one.
func completionID(req *types.CompletionRequest) string {
	if req.Input != nil && req.Input.CompletionID != "" {
		return req.Input.CompletionID
	}
	return uuid.NewString()
}
