// Package session owns the single in-flight streaming generation per editing
// context: the cancellable task primitive, and the tracker that decides when
// new keystrokes can reuse a running generation instead of restarting it.
package session

import (
	"context"
	"errors"
	"strings"
	"sync"

	"ghosttab/types"
)

// ErrAborted is the outcome of a task whose generation was cancelled. It is
// deliberately distinct from generation failures so callers can tell a
// superseded request from a broken one.
var ErrAborted = errors.New("generation aborted")

// Producer runs the actual generation. It emits chunks as they arrive and
// returns usage accounting once the stream ends. Implementations must observe
// ctx cancellation and stop token production promptly; the task does not
// forcibly terminate work it does not own.
type Producer func(ctx context.Context, emit func(chunk string)) (*types.Usage, error)

// Task is one cancellable streaming generation. It exposes the accumulated
// output so far, a finished flag, and a broadcast subscription mechanism so
// multiple independent consumers can replay and follow the same in-progress
// stream. Late subscribers catch up from the first chunk.
type Task struct {
	mu     sync.Mutex
	cond   *sync.Cond
	chunks []string
	output strings.Builder

	finished bool
	err      error
	usage    *types.Usage

	cancel context.CancelFunc
	done   chan struct{}
}

// StartTask launches run in its own goroutine and returns the task handle.
// The context handed to run carries the task's cancellation signal.
func StartTask(parent context.Context, run Producer) *Task {
	ctx, cancel := context.WithCancel(parent)
	t := &Task{
		cancel: cancel,
		done:   make(chan struct{}),
	}
	t.cond = sync.NewCond(&t.mu)

	go func() {
		defer cancel()
		usage, err := run(ctx, t.append)
		if err == nil && ctx.Err() != nil {
			// Producer returned cleanly after the cancel landed; the
			// output may be truncated, so still report abortion.
			err = ErrAborted
		}
		if errors.Is(err, context.Canceled) {
			err = ErrAborted
		}
		t.finish(usage, err)
	}()

	return t
}

func (t *Task) append(chunk string) {
	if chunk == "" {
		return
	}
	t.mu.Lock()
	if !t.finished {
		t.chunks = append(t.chunks, chunk)
		t.output.WriteString(chunk)
	}
	t.mu.Unlock()
	t.cond.Broadcast()
}

func (t *Task) finish(usage *types.Usage, err error) {
	t.mu.Lock()
	t.finished = true
	t.usage = usage
	t.err = err
	t.mu.Unlock()
	t.cond.Broadcast()
	close(t.done)
}

// Cancel triggers cooperative cancellation of the generation.
func (t *Task) Cancel() {
	t.cancel()
}

// Finished reports whether the generation has ended, for any reason.
func (t *Task) Finished() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.finished
}

// Output returns the text accumulated so far.
func (t *Task) Output() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.output.String()
}

// Err returns the terminal error, valid once Finished reports true.
// ErrAborted marks a cancelled generation.
func (t *Task) Err() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.err
}

// Usage returns the usage accounting reported by the producer, valid once
// Finished reports true. May be nil when the generation failed early.
func (t *Task) Usage() *types.Usage {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.usage
}

// Wait blocks until the generation ends or ctx is done. A nil return means
// the task finished; inspect Err for the task's own outcome.
func (t *Task) Wait(ctx context.Context) error {
	select {
	case <-t.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Subscribe returns a channel that replays every chunk emitted so far and
// then follows the live stream. The channel closes when the task finishes or
// ctx is done. Each subscriber gets an independent cursor.
func (t *Task) Subscribe(ctx context.Context) <-chan string {
	ch := make(chan string, 16)

	go func() {
		defer close(ch)
		// Wake the wait below when the subscriber's ctx ends, so an idle
		// subscription is released without waiting for the next chunk.
		stop := context.AfterFunc(ctx, t.cond.Broadcast)
		defer stop()

		next := 0
		for {
			t.mu.Lock()
			for next >= len(t.chunks) && !t.finished && ctx.Err() == nil {
				t.cond.Wait()
			}
			if ctx.Err() != nil {
				t.mu.Unlock()
				return
			}
			batch := t.chunks[next:]
			next = len(t.chunks)
			finished := t.finished
			t.mu.Unlock()

			for _, chunk := range batch {
				select {
				case ch <- chunk:
				case <-ctx.Done():
					return
				}
			}
			// No chunk is appended after finished is set, so the snapshot
			// taken above is complete.
			if finished {
				return
			}
		}
	}()

	return ch
}
