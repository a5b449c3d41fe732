package session

import (
	"context"
	"errors"
	"testing"

	"ghosttab/assert"
	"ghosttab/types"
)

// emitAll returns a producer that emits the given chunks and finishes.
func emitAll(chunks ...string) Producer {
	return func(ctx context.Context, emit func(chunk string)) (*types.Usage, error) {
		for _, c := range chunks {
			emit(c)
		}
		return &types.Usage{OutputTokens: len(chunks)}, nil
	}
}

// blockUntilCancel returns a producer that emits the given chunks and then
// waits for cancellation.
func blockUntilCancel(chunks ...string) Producer {
	return func(ctx context.Context, emit func(chunk string)) (*types.Usage, error) {
		for _, c := range chunks {
			emit(c)
		}
		<-ctx.Done()
		return nil, ctx.Err()
	}
}

// mustNotRun fails the test if the tracker restarts instead of reusing.
func mustNotRun(t *testing.T) Producer {
	return func(ctx context.Context, emit func(chunk string)) (*types.Usage, error) {
		t.Errorf("unexpected restart: reuse was expected")
		return nil, nil
	}
}

// startFinished creates a session and waits for its producer to finish, so
// reuse checks see the complete output.
func startFinished(t *testing.T, tr *Tracker, prefix, suffix, prompt string, run Producer) {
	t.Helper()
	tr.CreateSession(context.Background(), prefix, suffix, prompt, run)
	tr.mu.Lock()
	task := tr.pending.task
	tr.mu.Unlock()
	assert.NoError(t, task.Wait(context.Background()), "session producer finished")
}

func TestShouldReuse(t *testing.T) {
	tests := []struct {
		name   string
		prefix string
		suffix string
		want   bool
	}{
		{"identical position", "foo", "END", true},
		{"typed matching output", "foobar", "END", true},
		{"typed the whole output", "foobarbaz", "END", true},
		{"changed suffix", "foobar", "OTHER", false},
		{"shortened prefix", "fo", "END", false},
		{"edit before captured prefix", "fXo", "END", false},
		{"typed diverging text", "fooqux", "END", false},
		{"typed past the output", "foobarbazz", "END", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tr := NewTracker()
			startFinished(t, tr, "foo", "END", "p", emitAll("bar", "baz"))
			assert.Equal(t, tt.want, tr.ShouldReuse(tt.prefix, tt.suffix), "reuse decision")
		})
	}
}

func TestShouldReuseEmptyTracker(t *testing.T) {
	tr := NewTracker()
	assert.False(t, tr.ShouldReuse("foo", ""), "nothing pending")
}

func TestGetCompletionStripsTyped(t *testing.T) {
	tr := NewTracker()
	startFinished(t, tr, "foo", "", "p", emitAll("barbaz"))

	// The user typed "bar" since the session started; only the remainder is
	// still useful.
	res, err := tr.GetCompletion(context.Background(), "foobar", "", "p", mustNotRun(t))
	assert.NoError(t, err, "completion")
	assert.Equal(t, "baz", res.Text, "typed characters stripped")
	assert.True(t, res.Reused, "session was reused")
	assert.Equal(t, "foo", res.OriginalPrefix, "captured prefix")
	assert.NotNil(t, res.Usage, "usage carried through")
}

func TestGetCompletionExactPosition(t *testing.T) {
	tr := NewTracker()
	startFinished(t, tr, "foo", "", "p", emitAll("barbaz"))

	res, err := tr.GetCompletion(context.Background(), "foo", "", "p", mustNotRun(t))
	assert.NoError(t, err, "completion")
	assert.Equal(t, "barbaz", res.Text, "full output, nothing typed")
	assert.False(t, res.Reused, "same position is not a reuse")
}

func TestGetCompletionRestartsOnMismatch(t *testing.T) {
	tr := NewTracker()
	startFinished(t, tr, "foo", "old", "p", emitAll("bar"))

	res, err := tr.GetCompletion(context.Background(), "foo", "new", "p", emitAll("fresh"))
	assert.NoError(t, err, "completion")
	assert.Equal(t, "fresh", res.Text, "new session output")
	assert.False(t, res.Reused, "restart is not a reuse")
	assert.Equal(t, "new", res.OriginalSuffix, "new session captured the suffix")
}

func TestCreateSessionSupersedesPending(t *testing.T) {
	tr := NewTracker()
	tr.CreateSession(context.Background(), "a", "", "p1", blockUntilCancel("x"))
	tr.mu.Lock()
	first := tr.pending.task
	tr.mu.Unlock()

	tr.CreateSession(context.Background(), "b", "", "p2", emitAll("y"))
	assert.NoError(t, first.Wait(context.Background()), "superseded task ends")
	assert.True(t, errors.Is(first.Err(), ErrAborted), "superseded task reads as aborted")

	res, err := tr.GetCompletion(context.Background(), "b", "", "p2", mustNotRun(t))
	assert.NoError(t, err, "new session completes")
	assert.Equal(t, "y", res.Text, "new session output")
}

func TestGetCompletionAborted(t *testing.T) {
	tr := NewTracker()
	tr.CreateSession(context.Background(), "foo", "", "p", blockUntilCancel())
	tr.mu.Lock()
	task := tr.pending.task
	tr.mu.Unlock()

	task.Cancel()
	_, err := tr.GetCompletion(context.Background(), "foo", "", "p", mustNotRun(t))
	assert.True(t, errors.Is(err, ErrAborted), "aborted session surfaces ErrAborted")
}

func TestStreamCompletionStripsTypedChunks(t *testing.T) {
	tr := NewTracker()
	startFinished(t, tr, "", "", "p", emitAll("a", "b", "c", "d"))

	// The user typed "ab" since the session started.
	stream := tr.StreamCompletion(context.Background(), "ab", "", "p", mustNotRun(t))

	var got []string
	for chunk := range stream.Chunks() {
		got = append(got, chunk)
	}
	assert.Equal(t, 2, len(got), "two chunks pass through")
	assert.Equal(t, "c", got[0], "first visible chunk")
	assert.Equal(t, "d", got[1], "second visible chunk")

	res, err := stream.Wait(context.Background())
	assert.NoError(t, err, "stream result")
	assert.Equal(t, "cd", res.Text, "final text matches the chunks")
	assert.True(t, res.Reused, "reused session")
}

func TestStreamCompletionSplitsMidChunk(t *testing.T) {
	tr := NewTracker()
	startFinished(t, tr, "", "", "p", emitAll("abX", "tail"))

	stream := tr.StreamCompletion(context.Background(), "ab", "", "p", mustNotRun(t))

	var got []string
	for chunk := range stream.Chunks() {
		got = append(got, chunk)
	}
	assert.Equal(t, 2, len(got), "chunk count")
	assert.Equal(t, "X", got[0], "tail consumed inside the chunk")
	assert.Equal(t, "tail", got[1], "later chunks pass through whole")
}

func TestStreamCompletionPassthroughIsOneWay(t *testing.T) {
	tr := NewTracker()
	// The typed tail "ab" exactly consumes the first chunk. The second
	// chunk repeats the same text, but stripping never re-arms.
	startFinished(t, tr, "", "", "p", emitAll("ab", "ab"))

	stream := tr.StreamCompletion(context.Background(), "ab", "", "p", mustNotRun(t))

	var got string
	for chunk := range stream.Chunks() {
		got += chunk
	}
	assert.Equal(t, "ab", got, "stripping never re-arms after the tail is spent")
}

func TestStreamCompletionNoTail(t *testing.T) {
	tr := NewTracker()
	startFinished(t, tr, "foo", "", "p", emitAll("bar"))

	stream := tr.StreamCompletion(context.Background(), "foo", "", "p", mustNotRun(t))
	var got string
	for chunk := range stream.Chunks() {
		got += chunk
	}
	assert.Equal(t, "bar", got, "no typed tail, everything passes through")
}

func TestCancelClearsPending(t *testing.T) {
	tr := NewTracker()
	tr.CreateSession(context.Background(), "foo", "", "p", blockUntilCancel("x"))
	assert.True(t, tr.HasPendingGeneration(), "generation in flight")

	tr.Cancel()
	assert.False(t, tr.HasPendingGeneration(), "cancelled generation cleared")
	assert.False(t, tr.ShouldReuse("foo", ""), "cancelled session is never reused")
}

func TestClearKeepsTaskRunning(t *testing.T) {
	tr := NewTracker()
	tr.CreateSession(context.Background(), "foo", "", "p", emitAll("bar"))
	tr.mu.Lock()
	task := tr.pending.task
	tr.mu.Unlock()

	tr.Clear()
	assert.False(t, tr.HasPendingGeneration(), "tracker forgot the session")
	assert.NoError(t, task.Wait(context.Background()), "task ran to completion")
	assert.NoError(t, task.Err(), "task was not cancelled")
}

func TestHasPendingGenerationFinished(t *testing.T) {
	tr := NewTracker()
	startFinished(t, tr, "foo", "", "p", emitAll("bar"))
	assert.False(t, tr.HasPendingGeneration(), "finished generation is not pending")
}

func TestConcurrentGetCompletion(t *testing.T) {
	tr := NewTracker()
	startFinished(t, tr, "foo", "", "p", emitAll("barbaz"))

	results := make(chan string, 8)
	for i := 0; i < 8; i++ {
		go func() {
			res, err := tr.GetCompletion(context.Background(), "foobar", "", "p", mustNotRun(t))
			if err != nil {
				results <- "error: " + err.Error()
				return
			}
			results <- res.Text
		}()
	}
	for i := 0; i < 8; i++ {
		assert.Equal(t, "baz", <-results, "every caller sees the same reused session")
	}
}

func TestCommonPrefixLen(t *testing.T) {
	assert.Equal(t, 0, commonPrefixLen("", "abc"), "empty a")
	assert.Equal(t, 0, commonPrefixLen("xyz", "abc"), "no overlap")
	assert.Equal(t, 2, commonPrefixLen("abX", "abY"), "partial overlap")
	assert.Equal(t, 3, commonPrefixLen("abc", "abc"), "full overlap")
	assert.Equal(t, 2, commonPrefixLen("ab", "abc"), "a shorter")
}
