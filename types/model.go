package types

import "context"

// Feature identifies an optional model capability.
type Feature string

// Feature constants checked by strategy applicability predicates.
const (
	FeatureStreaming Feature = "streaming"
	FeatureFIM       Feature = "fim"
)

// Model is the capability surface of an upstream model. Implementations live
// in separate packages (e.g. model/openai); the engine only consumes this
// interface.
type Model interface {
	// ID uniquely identifies the model; it keys the catalog's selection cache.
	ID() string

	// Supports reports whether the model implements the given feature.
	Supports(f Feature) bool

	// GenerateFullText streams generated text chunk by chunk via emit and
	// resolves with usage accounting once the stream ends. Implementations
	// must observe ctx cancellation promptly.
	GenerateFullText(ctx context.Context, prompt string, emit func(chunk string)) (*Usage, error)

	// GenerateFIM is the fill-in-middle call with the same contract.
	GenerateFIM(ctx context.Context, prefix, suffix string, emit func(chunk string)) (*Usage, error)
}

// Snippet is a piece of retrieved context for prompt construction.
type Snippet struct {
	FilePath string
	Content  string
}

// PromptContext is whatever the context provider returns for a request.
type PromptContext struct {
	Snippets []Snippet
}

// ContextProvider supplies prompt context for a request. Injected into each
// strategy's generation call; implementations are out of the engine's scope.
type ContextProvider interface {
	ContextFor(ctx context.Context, input *AutocompleteInput, filePath string) (*PromptContext, error)
}

// GenerationContext bundles the collaborators a strategy may use while
// generating. A nil ContextProvider means no retrieved context is available.
type GenerationContext struct {
	ContextProvider ContextProvider
}
