package session

import (
	"context"
	"strings"
	"sync"

	"ghosttab/logger"
	"ghosttab/types"
)

// generation is the tracker's record of one in-flight streaming generation:
// the prefix/suffix captured when it started, the prompt it was started with,
// and the running task.
type generation struct {
	prefix string
	suffix string
	prompt string
	task   *Task
}

// Result is what a consumed session resolves to. Text is the task output with
// the characters the user typed since the session started stripped off.
type Result struct {
	Text           string
	Reused         bool
	OriginalPrefix string
	OriginalSuffix string
	Usage          *types.Usage
}

// Tracker owns at most one pending generation per editing context and decides
// whether new keystrokes can keep consuming it. All reuse decisions happen
// atomically under the tracker's lock, so concurrent callers can never reuse
// a session another caller is replacing.
type Tracker struct {
	mu      sync.Mutex
	pending *generation
}

// NewTracker returns an empty tracker.
func NewTracker() *Tracker {
	return &Tracker{}
}

// ShouldReuse reports whether the pending generation, if any, is still
// consistent with the given prefix/suffix. Any violation forces a fresh
// generation: a changed suffix, edits before the session's captured prefix,
// typed text that diverged from the generated output, or a shortened prefix.
func (tr *Tracker) ShouldReuse(prefix, suffix string) bool {
	tr.mu.Lock()
	defer tr.mu.Unlock()
	return tr.shouldReuseLocked(prefix, suffix)
}

func (tr *Tracker) shouldReuseLocked(prefix, suffix string) bool {
	p := tr.pending
	if p == nil {
		return false
	}
	if p.suffix != suffix {
		return false
	}
	if len(p.prefix) > len(prefix) {
		return false
	}
	if !strings.HasPrefix(prefix, p.prefix) {
		return false
	}
	// Everything typed since the session started must match what the
	// generation has produced so far.
	return strings.HasPrefix(p.prefix+p.task.Output(), prefix)
}

// CreateSession cancels any pending generation and starts a new one via run.
// The context handed to run carries the new session's cancellation signal.
func (tr *Tracker) CreateSession(ctx context.Context, prefix, suffix, prompt string, run Producer) {
	tr.mu.Lock()
	defer tr.mu.Unlock()
	tr.createSessionLocked(ctx, prefix, suffix, prompt, run)
}

func (tr *Tracker) createSessionLocked(ctx context.Context, prefix, suffix, prompt string, run Producer) {
	if tr.pending != nil {
		logger.Debug("session: superseding pending generation")
		tr.pending.task.Cancel()
	}
	tr.pending = &generation{
		prefix: prefix,
		suffix: suffix,
		prompt: prompt,
		task:   StartTask(ctx, run),
	}
}

// resolve makes the atomic reuse-or-restart decision and returns the session
// to consume plus the typed-since-start tail for stripping.
func (tr *Tracker) resolve(ctx context.Context, prefix, suffix, prompt string, run Producer) *generation {
	tr.mu.Lock()
	defer tr.mu.Unlock()
	if !tr.shouldReuseLocked(prefix, suffix) {
		tr.createSessionLocked(ctx, prefix, suffix, prompt, run)
	}
	return tr.pending
}

// GetCompletion waits for the pending generation (reusing it when consistent,
// restarting otherwise) and returns its output with the typed-since-start
// characters stripped.
func (tr *Tracker) GetCompletion(ctx context.Context, prefix, suffix, prompt string, run Producer) (*Result, error) {
	defer logger.Trace("session.GetCompletion")()

	sess := tr.resolve(ctx, prefix, suffix, prompt, run)

	if err := sess.task.Wait(ctx); err != nil {
		return nil, err
	}
	if err := sess.task.Err(); err != nil {
		return nil, err
	}

	output := sess.task.Output()
	typed := prefix[len(sess.prefix):]
	text := output[commonPrefixLen(typed, output):]

	return &Result{
		Text:           text,
		Reused:         prefix != sess.prefix,
		OriginalPrefix: sess.prefix,
		OriginalSuffix: sess.suffix,
		Usage:          sess.task.Usage(),
	}, nil
}

// Stream is a live view of a (possibly reused) generation. Chunks yields text
// with the typed-since-start tail stripped; Wait returns the same result
// shape GetCompletion produces.
type Stream struct {
	chunks <-chan string
	sess   *generation
	prefix string
}

// Chunks returns the channel of stripped text chunks. It closes when the
// generation finishes or the stream context is done.
func (s *Stream) Chunks() <-chan string {
	return s.chunks
}

// Wait blocks until the generation ends and returns the final result.
func (s *Stream) Wait(ctx context.Context) (*Result, error) {
	if err := s.sess.task.Wait(ctx); err != nil {
		return nil, err
	}
	if err := s.sess.task.Err(); err != nil {
		return nil, err
	}

	output := s.sess.task.Output()
	typed := s.prefix[len(s.sess.prefix):]
	text := output[commonPrefixLen(typed, output):]

	return &Result{
		Text:           text,
		Reused:         s.prefix != s.sess.prefix,
		OriginalPrefix: s.sess.prefix,
		OriginalSuffix: s.sess.suffix,
		Usage:          s.sess.task.Usage(),
	}, nil
}

// StreamCompletion makes the same reuse decision as GetCompletion and yields
// live chunks. Each incoming chunk first consumes whatever still matches the
// outstanding typed-since-start tail character by character; at the first
// mismatch, or once the tail is exhausted, the remainder of that chunk and
// all later chunks pass through unmodified. The transition is one-way and is
// never re-armed within the same stream.
func (tr *Tracker) StreamCompletion(ctx context.Context, prefix, suffix, prompt string, run Producer) *Stream {
	sess := tr.resolve(ctx, prefix, suffix, prompt, run)

	out := make(chan string, 16)
	go func() {
		defer close(out)

		tail := prefix[len(sess.prefix):]
		passthrough := tail == ""

		for chunk := range sess.task.Subscribe(ctx) {
			if !passthrough {
				n := commonPrefixLen(tail, chunk)
				switch {
				case n == len(chunk) && n < len(tail):
					// Whole chunk was already typed; keep stripping.
					tail = tail[n:]
					continue
				default:
					// Tail exhausted, or first mismatch: pass the rest
					// through from here on.
					passthrough = true
					chunk = chunk[n:]
				}
			}
			if chunk == "" {
				continue
			}
			select {
			case out <- chunk:
			case <-ctx.Done():
				return
			}
		}
	}()

	return &Stream{chunks: out, sess: sess, prefix: prefix}
}

// Cancel cancels the pending generation, if any, and clears it.
func (tr *Tracker) Cancel() {
	tr.mu.Lock()
	defer tr.mu.Unlock()
	if tr.pending != nil {
		tr.pending.task.Cancel()
		tr.pending = nil
	}
}

// Clear forgets the pending generation without cancelling its task. Used when
// a caller has already consumed the result elsewhere and only wants to stop
// treating the task as reusable.
func (tr *Tracker) Clear() {
	tr.mu.Lock()
	defer tr.mu.Unlock()
	tr.pending = nil
}

// HasPendingGeneration reports whether a session exists whose task is still
// running.
func (tr *Tracker) HasPendingGeneration() bool {
	tr.mu.Lock()
	defer tr.mu.Unlock()
	return tr.pending != nil && !tr.pending.task.Finished()
}

// commonPrefixLen returns the length of the longest common prefix of a and b,
// compared byte by byte.
func commonPrefixLen(a, b string) int {
	n := min(len(a), len(b))
	i := 0
	for i < n && a[i] == b[i] {
		i++
	}
	return i
}
