// Package editor runs the per-buffer completion loop: it debounces editor
// events, asks the coordinator for a suggestion at the cursor, renders the
// result as ghost text, and reports accept/reject outcomes.
package editor

import (
	"context"
	"strconv"
	"strings"
	"sync"
	"time"

	"ghosttab/logger"
	"ghosttab/metrics"
	"ghosttab/session"
	"ghosttab/strategy"
	"ghosttab/text"
	"ghosttab/types"

	"github.com/neovim/go-client/nvim"
)

type state int

const (
	stateIdle state = iota
	statePendingCompletion
	stateHasSuggestion
)

// HLGroup is the highlight group used for ghost text.
const HLGroup = "Comment"

// Config holds the editor loop's tunables.
type Config struct {
	CompletionTimeout   time.Duration
	IdleCompletionDelay time.Duration
	TextChangeDebounce  time.Duration

	// StrategyOverride, when set, bypasses selection and runs the named
	// strategy for every request.
	StrategyOverride string
}

// Editor drives completions for one attached editor instance.
type Editor struct {
	coordinator *strategy.Coordinator
	tracker     *session.Tracker
	model       types.Model
	gctx        *types.GenerationContext
	sender      metrics.Sender // may be nil

	surface Surface

	mu            sync.RWMutex
	state         state
	config        Config
	eventChan     chan Event
	currentCancel context.CancelFunc

	idleTimer       *time.Timer
	textChangeTimer *time.Timer

	mainCtx    context.Context
	mainCancel context.CancelFunc
	stopped    bool
	stopOnce   sync.Once

	shown *shownSuggestion
}

// shownSuggestion is the suggestion currently rendered as ghost text.
type shownSuggestion struct {
	result  *types.CompletionResult
	row     int // 1-indexed line it renders on
	info    metrics.SuggestionInfo
	flushed bool // accept/reject already reported
}

// New creates an editor loop. sender may be nil when no strategy reports
// feedback.
func New(coordinator *strategy.Coordinator, tracker *session.Tracker, m types.Model, gctx *types.GenerationContext, sender metrics.Sender, config Config) *Editor {
	return &Editor{
		coordinator: coordinator,
		tracker:     tracker,
		model:       m,
		gctx:        gctx,
		sender:      sender,
		config:      config,
		state:       stateIdle,
		eventChan:   make(chan Event, 100),
	}
}

// Attach binds the editor loop to a connected nvim instance and allocates the
// ghost text namespace.
func (ed *Editor) Attach(n *nvim.Nvim) error {
	nsID, err := n.CreateNamespace("ghosttab")
	if err != nil {
		return err
	}
	ed.mu.Lock()
	ed.surface = &nvimSurface{n: n, nsID: nsID}
	ed.mu.Unlock()
	return nil
}

// Start launches the event loop.
func (ed *Editor) Start(ctx context.Context) {
	ed.mu.Lock()
	if ed.stopped {
		ed.mu.Unlock()
		return
	}
	ed.mainCtx, ed.mainCancel = context.WithCancel(ctx)
	ed.mu.Unlock()

	go ed.eventLoop(ed.mainCtx)
	logger.Info("editor loop started")
}

// Stop shuts the loop down and cancels any in-flight generation.
func (ed *Editor) Stop() {
	ed.stopOnce.Do(func() {
		ed.mu.Lock()
		defer ed.mu.Unlock()

		ed.stopped = true
		if ed.mainCancel != nil {
			ed.mainCancel()
		}
		if ed.currentCancel != nil {
			ed.currentCancel()
			ed.currentCancel = nil
		}
		ed.stopIdleTimer()
		ed.stopTextChangeTimer()
		ed.tracker.Cancel()
		// eventChan stays open: timers and completion goroutines may still
		// race their stopped check against Stop, and their sends bail out on
		// mainCtx instead. The loop exits through ctx cancellation.

		logger.Info("editor loop stopped")
	})
}

// Notify pushes an editor-side event into the loop. Unknown event names are
// dropped.
func (ed *Editor) Notify(name string) {
	t := EventTypeFromString(name)
	if t == "" {
		logger.Debug("editor: ignoring unknown event %q", name)
		return
	}

	ed.mu.RLock()
	stopped := ed.stopped
	mainCtx := ed.mainCtx
	ed.mu.RUnlock()
	if stopped || mainCtx == nil {
		return
	}

	select {
	case ed.eventChan <- Event{Type: t}:
	case <-mainCtx.Done():
	}
}

func (ed *Editor) eventLoop(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("event loop panic recovered: %v", r)
			ed.eventLoop(ctx) // Restart the event loop
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case event := <-ed.eventChan:
			ed.mu.RLock()
			stopped := ed.stopped
			ed.mu.RUnlock()
			if stopped {
				return
			}

			func() {
				defer func() {
					if r := recover(); r != nil {
						logger.Error("event handler panic recovered for event %v: %v", event.Type, r)
					}
				}()
				ed.handleEvent(event)
			}()
		}
	}
}

func (ed *Editor) handleEvent(event Event) {
	ed.mu.Lock()
	defer ed.mu.Unlock()

	if ed.stopped {
		return
	}

	logger.Debug("handle event: %v", event.Type)

	switch event.Type {
	case EventEsc:
		ed.handleEsc()
	case EventTextChanged:
		ed.handleTextChange()
	case EventTextChangeTimeout:
		ed.handleTextChangeTimeout()
	case EventCursorMovedNormal:
		ed.handleCursorMoveNormal()
	case EventInsertEnter:
		ed.handleInsertEnter()
	case EventInsertLeave:
		ed.handleInsertLeave()
	case EventTab:
		ed.handleTab()
	case EventIdleTimeout:
		ed.handleIdleTimeout()
	case EventCompletionReady:
		ed.handleCompletionReady(event.Data.(*readyPayload))
	case EventCompletionError:
		ed.handleCompletionError(event.Data)
	}
}

// requestCompletion snapshots the buffer around the cursor and runs one
// completion attempt off the event loop.
func (ed *Editor) requestCompletion(trigger string) {
	if ed.stopped || ed.surface == nil {
		return
	}

	req, err := ed.snapshotRequest(trigger)
	if err != nil {
		logger.Warn("editor: buffer snapshot failed: %v", err)
		return
	}

	ed.clearGhostText()
	ed.shown = nil
	ed.state = statePendingCompletion

	if ed.currentCancel != nil {
		ed.currentCancel()
	}
	ctx, cancel := context.WithTimeout(ed.mainCtx, ed.config.CompletionTimeout)
	ed.currentCancel = cancel

	go func() {
		defer cancel()

		var result *types.CompletionResult
		var err error
		if name := ed.config.StrategyOverride; name != "" {
			result, err = ed.coordinator.ExecuteCompletionWithStrategy(ctx, name, req, ed.model, ed.gctx)
		} else {
			result, err = ed.coordinator.ExecuteCompletion(ctx, req, ed.model, ed.gctx)
		}
		if err != nil {
			select {
			case ed.eventChan <- Event{Type: EventCompletionError, Data: err}:
			case <-ed.mainCtx.Done():
			}
			return
		}

		payload := &readyPayload{result: result, row: req.CursorRow, col: req.CursorCol}
		select {
		case ed.eventChan <- Event{Type: EventCompletionReady, Data: payload}:
		case <-ed.mainCtx.Done():
		}
	}()
}

// snapshotRequest reads the current buffer and cursor into a request.
func (ed *Editor) snapshotRequest(trigger string) (*types.CompletionRequest, error) {
	snap, err := ed.surface.Snapshot()
	if err != nil {
		return nil, err
	}

	row, col := snap.Row, snap.Col
	if row < 1 {
		row = 1
	}
	if row > len(snap.Lines) {
		row = len(snap.Lines)
	}

	prefix, suffix := splitAtCursor(snap.Lines, row, col)

	return &types.CompletionRequest{
		Prefix:     prefix,
		Suffix:     suffix,
		LanguageID: snap.Filetype,
		Input:      &types.AutocompleteInput{TriggerKind: trigger},
		FilePath:   snap.FilePath,
		CursorRow:  row,
		CursorCol:  col,
	}, nil
}

// splitAtCursor joins buffer lines into the text before and after the cursor.
// row is 1-indexed, col is a 0-indexed byte column.
func splitAtCursor(lines []string, row, col int) (string, string) {
	if len(lines) == 0 {
		return "", ""
	}

	current := lines[row-1]
	col = min(col, len(current))

	var prefix strings.Builder
	for i := 0; i < row-1; i++ {
		prefix.WriteString(lines[i])
		prefix.WriteString("\n")
	}
	prefix.WriteString(current[:col])

	var suffix strings.Builder
	suffix.WriteString(current[col:])
	for i := row; i < len(lines); i++ {
		suffix.WriteString("\n")
		suffix.WriteString(lines[i])
	}

	return prefix.String(), suffix.String()
}

func (ed *Editor) handleCompletionReady(payload *readyPayload) {
	if ed.surface == nil || ed.state != statePendingCompletion {
		return
	}

	result := payload.result
	if result.Text == "" {
		logger.Debug("editor: empty suggestion from %s", result.StrategyUsed)
		ed.state = stateIdle
		return
	}

	ed.state = stateHasSuggestion
	ed.shown = &shownSuggestion{
		result: result,
		row:    payload.row,
		info: metrics.SuggestionInfo{
			CompletionID: result.Metadata["completion_id"],
			Strategy:     result.StrategyUsed,
			Stats:        text.DiffStats("", result.Text),
			ShownAt:      time.Now(),
		},
	}

	ed.renderGhostText(result.Text, payload.row)
	ed.reportOutcome(metrics.EventShown, false)
}

// renderGhostText shows the suggestion's first line inline at the cursor row,
// with a line counter when the suggestion spans multiple lines.
func (ed *Editor) renderGhostText(suggestion string, row int) {
	first, rest, multi := strings.Cut(suggestion, "\n")
	chunks := []nvim.TextChunk{{Text: first, HLGroup: HLGroup}}
	if multi {
		more := strings.Count(rest, "\n") + 1
		chunks = append(chunks, nvim.TextChunk{
			Text:    " [+" + strconv.Itoa(more) + " lines]",
			HLGroup: "NonText",
		})
	}

	if err := ed.surface.ShowGhostText(row, chunks); err != nil {
		logger.Warn("editor: render failed: %v", err)
	}
}

func (ed *Editor) clearGhostText() {
	if ed.surface == nil {
		return
	}
	if err := ed.surface.ClearGhostText(); err != nil {
		logger.Debug("editor: clearing ghost text failed: %v", err)
	}
}

// acceptSuggestion inserts the shown suggestion at the cursor.
func (ed *Editor) acceptSuggestion() {
	s := ed.shown
	if s == nil {
		return
	}

	ed.clearGhostText()
	if err := ed.surface.InsertAtCursor(s.result.Text); err != nil {
		logger.Error("editor: inserting suggestion failed: %v", err)
		return
	}

	ed.reportOutcome(metrics.EventAccepted, true)
	ed.shown = nil
	ed.state = stateIdle
	ed.tracker.Clear()
}

// reject drops any shown or pending suggestion.
func (ed *Editor) reject() {
	if ed.currentCancel != nil {
		ed.currentCancel()
		ed.currentCancel = nil
	}
	ed.clearGhostText()
	ed.reportOutcome(metrics.EventRejected, true)
	ed.shown = nil
	ed.state = stateIdle
	ed.tracker.Cancel()
}

// dismissShown hides a shown suggestion because the buffer changed, without
// cancelling the generation session: the next request may still reuse it.
func (ed *Editor) dismissShown() {
	ed.clearGhostText()
	ed.reportOutcome(metrics.EventIgnored, true)
	ed.shown = nil
	if ed.state == stateHasSuggestion {
		ed.state = stateIdle
	}
}

// reportOutcome forwards a suggestion outcome to the metrics sender, at most
// one terminal outcome per suggestion. Delivery happens off the event loop.
func (ed *Editor) reportOutcome(t metrics.EventType, terminal bool) {
	s := ed.shown
	if s == nil || ed.sender == nil {
		return
	}
	if terminal {
		if s.flushed {
			return
		}
		s.flushed = true
	}

	event := metrics.Event{Type: t, Info: s.info}
	mainCtx := ed.mainCtx
	go func() {
		ctx, cancel := context.WithTimeout(context.WithoutCancel(mainCtx), 5*time.Second)
		defer cancel()
		ed.sender.SendMetric(ctx, event)
	}()
}
