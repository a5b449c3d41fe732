// Package strategy holds the strategy catalog and the coordinator that
// drives one completion attempt end to end, including fallback on failure.
package strategy

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"ghosttab/logger"
	"ghosttab/types"
)

// Sentinel errors for selection and execution failures.
var (
	ErrNoStrategy       = errors.New("no strategy available")
	ErrUnknownStrategy  = errors.New("unknown strategy")
	ErrUnsupportedModel = errors.New("strategy does not support model")
)

// entry pairs a registered strategy with its registration sequence number,
// which breaks priority ties deterministically (first registered wins).
type entry struct {
	strategy *types.Strategy
	seq      uint64
}

// cached is one memoized selection, tagged with the catalog version it was
// computed under. A hit is valid only while the tags match; any register or
// unregister bumps the version and thereby invalidates every entry at once.
type cached struct {
	strategy *types.Strategy // nil caches "nothing supports this model"
	version  uint64
}

// Catalog is the mutable table of named strategies with cache-accelerated
// best-strategy selection.
type Catalog struct {
	mu      sync.Mutex
	entries map[string]*entry
	nextSeq uint64
	version uint64

	selection map[string]cached // keyed by model id

	// selections counts actual filter/scan passes, for tests that assert
	// the cache short-circuits repeated work.
	selections int
}

// NewCatalog returns an empty catalog.
func NewCatalog() *Catalog {
	return &Catalog{
		entries:   make(map[string]*entry),
		selection: make(map[string]cached),
	}
}

// Register inserts s, overwriting any strategy with the same name, and
// invalidates all cached selections. When s declares config validation, the
// hook runs first and a failure rejects the registration.
func (c *Catalog) Register(s *types.Strategy) error {
	if s == nil || s.Name == "" {
		return fmt.Errorf("strategy name must not be empty")
	}
	if s.Generate == nil {
		return fmt.Errorf("strategy %q has no generate operation", s.Name)
	}
	if s.Capabilities.Has(types.CapValidateConfig) && s.ValidateConfig != nil {
		if err := s.ValidateConfig(); err != nil {
			return fmt.Errorf("strategy %q config invalid: %w", s.Name, err)
		}
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.entries[s.Name]; exists {
		logger.Warn("catalog: overwriting strategy %q", s.Name)
	}
	c.nextSeq++
	c.entries[s.Name] = &entry{strategy: s, seq: c.nextSeq}
	c.invalidateLocked()
	return nil
}

// Unregister removes the named strategy. Returns true when something was
// removed, in which case cached selections are invalidated.
func (c *Catalog) Unregister(name string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.entries[name]; !exists {
		return false
	}
	delete(c.entries, name)
	c.invalidateLocked()
	return true
}

// Get returns the named strategy, or false when absent.
func (c *Catalog) Get(name string) (*types.Strategy, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[name]
	if !ok {
		return nil, false
	}
	return e.strategy, true
}

// List returns every registered strategy in registration order.
func (c *Catalog) List() []*types.Strategy {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.orderedLocked()
}

// SelectBest returns the highest-priority strategy that supports m, or nil
// when none does. Selections are cached per model id and recomputed only
// after a catalog mutation.
func (c *Catalog) SelectBest(m types.Model) *types.Strategy {
	defer logger.Trace("catalog.SelectBest")()

	c.mu.Lock()
	defer c.mu.Unlock()

	key := m.ID()
	if hit, ok := c.selection[key]; ok && hit.version == c.version {
		return hit.strategy
	}

	c.selections++
	var best *entry
	for _, e := range c.entries {
		if e.strategy.SupportsModel == nil || !e.strategy.SupportsModel(m) {
			continue
		}
		if best == nil ||
			e.strategy.Priority > best.strategy.Priority ||
			(e.strategy.Priority == best.strategy.Priority && e.seq < best.seq) {
			best = e
		}
	}

	var picked *types.Strategy
	if best != nil {
		picked = best.strategy
	} else {
		logger.Debug("catalog: no strategy supports model %q", key)
	}
	c.selection[key] = cached{strategy: picked, version: c.version}
	return picked
}

// InitializeAll invokes the startup hook on every strategy that declares one,
// in registration order. A failing hook does not stop the others; all
// failures are collected into the returned error.
func (c *Catalog) InitializeAll(ctx context.Context) error {
	var errs []error
	for _, s := range c.List() {
		if !s.Capabilities.Has(types.CapInitialize) || s.Initialize == nil {
			continue
		}
		if err := s.Initialize(ctx); err != nil {
			logger.Warn("catalog: initialize %q: %v", s.Name, err)
			errs = append(errs, fmt.Errorf("initialize %q: %w", s.Name, err))
		}
	}
	return errors.Join(errs...)
}

// DisposeAll invokes the shutdown hook on every strategy that declares one,
// collecting failures, then clears the catalog.
func (c *Catalog) DisposeAll(ctx context.Context) error {
	var errs []error
	for _, s := range c.List() {
		if !s.Capabilities.Has(types.CapShutdown) || s.Shutdown == nil {
			continue
		}
		if err := s.Shutdown(ctx); err != nil {
			logger.Warn("catalog: shutdown %q: %v", s.Name, err)
			errs = append(errs, fmt.Errorf("shutdown %q: %w", s.Name, err))
		}
	}

	c.mu.Lock()
	c.entries = make(map[string]*entry)
	c.invalidateLocked()
	c.mu.Unlock()

	return errors.Join(errs...)
}

// invalidateLocked bumps the catalog version so every cached selection goes
// stale before the mutating call returns.
func (c *Catalog) invalidateLocked() {
	c.version++
}

// orderedLocked returns strategies sorted by registration sequence.
func (c *Catalog) orderedLocked() []*types.Strategy {
	ordered := make([]*entry, 0, len(c.entries))
	for _, e := range c.entries {
		ordered = append(ordered, e)
	}
	for i := 0; i < len(ordered)-1; i++ {
		for j := i + 1; j < len(ordered); j++ {
			if ordered[j].seq < ordered[i].seq {
				ordered[i], ordered[j] = ordered[j], ordered[i]
			}
		}
	}
	result := make([]*types.Strategy, len(ordered))
	for i, e := range ordered {
		result[i] = e.strategy
	}
	return result
}
