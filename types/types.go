// Package types holds the completion contract shared by the catalog,
// coordinator, session tracker, and the concrete strategies.
package types

// AutocompleteInput is the opaque request payload forwarded from the editor
// integration. The engine never inspects it beyond the completion id.
type AutocompleteInput struct {
	CompletionID string            // caller-supplied id, empty = strategy generates one
	TriggerKind  string            // "typing", "idle", "manual"
	Extra        map[string]string // strategy-specific passthrough
}

// CompletionRequest describes one completion attempt at a cursor position.
type CompletionRequest struct {
	Prefix     string // text before the cursor
	Suffix     string // text after the cursor
	LanguageID string // editor filetype, e.g. "go"
	Input      *AutocompleteInput

	// Addressing info used by collaborators (context provider, editor),
	// not by the engine's own logic.
	FilePath  string
	CursorRow int // 1-indexed
	CursorCol int // 0-indexed byte column
}

// Usage tracks accounting for a single generation call.
type Usage struct {
	Cost             float64
	InputTokens      int
	OutputTokens     int
	CacheReadTokens  int
	CacheWriteTokens int
}

// Add accumulates another usage record into u.
func (u *Usage) Add(other *Usage) {
	if other == nil {
		return
	}
	u.Cost += other.Cost
	u.InputTokens += other.InputTokens
	u.OutputTokens += other.OutputTokens
	u.CacheReadTokens += other.CacheReadTokens
	u.CacheWriteTokens += other.CacheWriteTokens
}

// CompletionResult is the outcome of a completion attempt. Prefix and Suffix
// echo the request values the suggestion was computed against so downstream
// stripping/validation can detect a stale result.
type CompletionResult struct {
	Text   string
	Prefix string
	Suffix string
	Usage  Usage

	// StrategyUsed is the name of the strategy that produced the result,
	// annotated as "<failed>-><fallback> (fallback)" when recovery happened.
	StrategyUsed string

	GenerationTimeMs int64
	Metadata         map[string]string
}

// StrategyConfig carries the settings a concrete strategy needs to reach its
// backend. Unused fields are ignored by strategies that don't need them.
type StrategyConfig struct {
	APIURL      string
	APIKey      string
	ModelName   string
	Temperature float64
	MaxTokens   int
	TimeoutMs   int
	Version     string
	PrivacyMode bool
	DeviceID    string
}
