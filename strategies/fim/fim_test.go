package fim

import (
	"context"
	"errors"
	"testing"

	"ghosttab/assert"
	"ghosttab/session"
	"ghosttab/types"
)

type fakeModel struct {
	fim    bool
	output string
	err    error

	gotPrefix string
	gotSuffix string
}

func (m *fakeModel) ID() string { return "fake" }

func (m *fakeModel) Supports(f types.Feature) bool {
	return f == types.FeatureStreaming || (f == types.FeatureFIM && m.fim)
}

func (m *fakeModel) GenerateFullText(ctx context.Context, prompt string, emit func(chunk string)) (*types.Usage, error) {
	emit(m.output)
	return &types.Usage{}, m.err
}

func (m *fakeModel) GenerateFIM(ctx context.Context, prefix, suffix string, emit func(chunk string)) (*types.Usage, error) {
	m.gotPrefix = prefix
	m.gotSuffix = suffix
	if m.err != nil {
		return nil, m.err
	}
	emit(m.output)
	return &types.Usage{OutputTokens: 1}, nil
}

func TestDescriptor(t *testing.T) {
	s := New(session.NewTracker(), &types.StrategyConfig{})
	assert.Equal(t, "fim", s.Name, "name")
	assert.True(t, s.Capabilities.Has(types.CapValidateConfig), "declares config validation")
	assert.NoError(t, s.ValidateConfig(), "valid config")

	assert.True(t, s.SupportsModel(&fakeModel{fim: true}), "fim model supported")
	assert.False(t, s.SupportsModel(&fakeModel{fim: false}), "non-fim model rejected")
}

func TestValidateConfig(t *testing.T) {
	s := New(session.NewTracker(), nil)
	assert.Error(t, s.ValidateConfig(), "nil config")

	s = New(session.NewTracker(), &types.StrategyConfig{MaxTokens: -1})
	assert.Error(t, s.ValidateConfig(), "negative max tokens")
}

func TestGenerate(t *testing.T) {
	m := &fakeModel{fim: true, output: "barbaz"}
	s := New(session.NewTracker(), &types.StrategyConfig{})

	req := &types.CompletionRequest{Prefix: "foo", Suffix: "\nrest"}
	result, err := s.Generate(context.Background(), req, m, nil)
	assert.NoError(t, err, "generation")
	assert.Equal(t, "barbaz", result.Text, "generated text")
	assert.Equal(t, "foo", result.Prefix, "request prefix echoed")
	assert.Equal(t, "foo", m.gotPrefix, "trimmed prefix sent")
	assert.Equal(t, "\nrest", m.gotSuffix, "trimmed suffix sent")
	assert.Equal(t, 1, result.Usage.OutputTokens, "usage carried through")
	assert.Equal(t, "false", result.Metadata["reused"], "fresh session")
	assert.True(t, result.Metadata["completion_id"] != "", "completion id generated")
}

func TestGenerateUsesCallerCompletionID(t *testing.T) {
	m := &fakeModel{fim: true, output: "x"}
	s := New(session.NewTracker(), &types.StrategyConfig{})

	req := &types.CompletionRequest{
		Prefix: "foo",
		Input:  &types.AutocompleteInput{CompletionID: "caller-id"},
	}
	result, err := s.Generate(context.Background(), req, m, nil)
	assert.NoError(t, err, "generation")
	assert.Equal(t, "caller-id", result.Metadata["completion_id"], "caller id kept")
}

func TestGenerateDropsEchoOfSuffix(t *testing.T) {
	// The model repeats exactly what already follows the cursor on the line.
	m := &fakeModel{fim: true, output: "())"}
	s := New(session.NewTracker(), &types.StrategyConfig{})

	req := &types.CompletionRequest{Prefix: "foo(", Suffix: "())\nmore"}
	result, err := s.Generate(context.Background(), req, m, nil)
	assert.NoError(t, err, "generation")
	assert.Equal(t, "", result.Text, "echo of existing text dropped")
}

func TestGenerateReusesSession(t *testing.T) {
	m := &fakeModel{fim: true, output: "barbaz"}
	tracker := session.NewTracker()
	s := New(tracker, &types.StrategyConfig{})

	first := &types.CompletionRequest{Prefix: "foo"}
	_, err := s.Generate(context.Background(), first, m, nil)
	assert.NoError(t, err, "first generation")

	// The user typed "bar"; the running session is consumed, not restarted.
	m.gotPrefix = ""
	second := &types.CompletionRequest{Prefix: "foobar"}
	result, err := s.Generate(context.Background(), second, m, nil)
	assert.NoError(t, err, "second generation")
	assert.Equal(t, "baz", result.Text, "typed characters stripped")
	assert.Equal(t, "true", result.Metadata["reused"], "reuse flagged")
	assert.Equal(t, "", m.gotPrefix, "model was not called again")
}

func TestGenerateError(t *testing.T) {
	wantErr := errors.New("backend down")
	m := &fakeModel{fim: true, err: wantErr}
	s := New(session.NewTracker(), &types.StrategyConfig{})

	_, err := s.Generate(context.Background(), &types.CompletionRequest{Prefix: "x"}, m, nil)
	assert.True(t, errors.Is(err, wantErr), "model failure surfaces")
}
