package types

import "context"

// Capability identifies an optional strategy operation. Strategies declare
// the hooks they implement up front so the catalog never has to probe for
// method presence.
type Capability string

// Capability constants for optional strategy hooks.
const (
	CapInitialize     Capability = "initialize"
	CapShutdown       Capability = "shutdown"
	CapValidateConfig Capability = "validate_config"
)

// CapabilitySet is the declared set of optional operations a strategy
// supports.
type CapabilitySet []Capability

// Has reports whether the set declares the given capability.
func (s CapabilitySet) Has(c Capability) bool {
	for _, have := range s {
		if have == c {
			return true
		}
	}
	return false
}

// Strategy describes one named way of producing a completion. Descriptors are
// built once at startup and treated as immutable after registration; only a
// strategy's internal runtime state (captured by its closures) may change.
type Strategy struct {
	Name        string
	Description string

	// Priority orders selection; higher wins. Ties go to the strategy that
	// was registered first.
	Priority int

	// Capabilities gates which optional hooks below the catalog will invoke.
	Capabilities CapabilitySet

	// SupportsModel reports whether this strategy can drive the given model.
	SupportsModel func(m Model) bool

	// Generate runs one completion attempt.
	Generate func(ctx context.Context, req *CompletionRequest, m Model, gctx *GenerationContext) (*CompletionResult, error)

	// Optional hooks, invoked only when declared in Capabilities.
	Initialize     func(ctx context.Context) error
	Shutdown       func(ctx context.Context) error
	ValidateConfig func() error
}

// StrategyInfo is a read-only introspection view of a registered strategy.
type StrategyInfo struct {
	Name                 string
	Description          string
	Priority             int
	SupportsCurrentModel bool
}
