package strategy

import (
	"context"
	"fmt"
	"time"

	"ghosttab/logger"
	"ghosttab/types"
)

// Coordinator orchestrates one end-to-end completion attempt: it picks a
// strategy from the catalog (or honors an explicit override), runs it, and
// retries with the configured fallback when the primary fails.
type Coordinator struct {
	catalog  *Catalog
	fallback *types.Strategy
}

// NewCoordinator wires a coordinator to a catalog. fallback may be nil.
func NewCoordinator(catalog *Catalog, fallback *types.Strategy) *Coordinator {
	return &Coordinator{catalog: catalog, fallback: fallback}
}

// ExecuteCompletion selects the best strategy for m (falling back to the
// configured fallback when nothing supports m) and runs it. When the chosen
// strategy fails and a distinct fallback exists, the fallback runs and the
// result is labeled "<failed>-><fallback> (fallback)". A fallback failure is
// surfaced instead of the original error, since it was the last attempt made.
func (co *Coordinator) ExecuteCompletion(ctx context.Context, req *types.CompletionRequest, m types.Model, gctx *types.GenerationContext) (*types.CompletionResult, error) {
	defer logger.Trace("coordinator.ExecuteCompletion")()

	chosen := co.catalog.SelectBest(m)
	if chosen == nil {
		chosen = co.fallback
	}
	if chosen == nil {
		return nil, fmt.Errorf("%w for model %q", ErrNoStrategy, m.ID())
	}

	result, err := co.run(ctx, chosen, req, m, gctx)
	if err == nil {
		result.StrategyUsed = chosen.Name
		return result, nil
	}

	if co.fallback == nil || co.fallback.Name == chosen.Name {
		return nil, err
	}

	logger.Warn("coordinator: strategy %q failed, trying fallback %q: %v",
		chosen.Name, co.fallback.Name, err)

	result, fbErr := co.run(ctx, co.fallback, req, m, gctx)
	if fbErr != nil {
		return nil, fbErr
	}
	result.StrategyUsed = fmt.Sprintf("%s->%s (fallback)", chosen.Name, co.fallback.Name)
	return result, nil
}

// ExecuteCompletionWithStrategy bypasses selection and runs the named
// strategy. The explicit choice is authoritative: an unknown name or an
// unsupported model fails the call, and no fallback is attempted.
func (co *Coordinator) ExecuteCompletionWithStrategy(ctx context.Context, name string, req *types.CompletionRequest, m types.Model, gctx *types.GenerationContext) (*types.CompletionResult, error) {
	s, ok := co.catalog.Get(name)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownStrategy, name)
	}
	if s.SupportsModel == nil || !s.SupportsModel(m) {
		return nil, fmt.Errorf("%w: %q does not support %q", ErrUnsupportedModel, name, m.ID())
	}

	result, err := co.run(ctx, s, req, m, gctx)
	if err != nil {
		return nil, err
	}
	result.StrategyUsed = s.Name
	return result, nil
}

// StrategyInfo returns a read-only view of every registered strategy. When m
// is non-nil, SupportsCurrentModel is computed directly against each
// strategy's predicate; the selection cache is never touched.
func (co *Coordinator) StrategyInfo(m types.Model) []types.StrategyInfo {
	strategies := co.catalog.List()
	infos := make([]types.StrategyInfo, 0, len(strategies))
	for _, s := range strategies {
		info := types.StrategyInfo{
			Name:        s.Name,
			Description: s.Description,
			Priority:    s.Priority,
		}
		if m != nil && s.SupportsModel != nil {
			info.SupportsCurrentModel = s.SupportsModel(m)
		}
		infos = append(infos, info)
	}
	return infos
}

// run executes one strategy and stamps generation timing on success.
func (co *Coordinator) run(ctx context.Context, s *types.Strategy, req *types.CompletionRequest, m types.Model, gctx *types.GenerationContext) (*types.CompletionResult, error) {
	start := time.Now()
	result, err := s.Generate(ctx, req, m, gctx)
	if err != nil {
		return nil, err
	}
	if result == nil {
		return nil, fmt.Errorf("strategy %q returned no result", s.Name)
	}
	if result.GenerationTimeMs == 0 {
		result.GenerationTimeMs = time.Since(start).Milliseconds()
	}
	return result, nil
}
