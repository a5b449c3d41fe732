package editor

import (
	"context"
	"errors"

	"ghosttab/logger"
	"ghosttab/types"
)

type EventType string

// Event type constants
const (
	EventEsc               EventType = "esc"
	EventTextChanged       EventType = "text_changed"
	EventTextChangeTimeout EventType = "trigger_completion"
	EventCursorMovedNormal EventType = "cursor_moved_normal"
	EventInsertEnter       EventType = "insert_enter"
	EventInsertLeave       EventType = "insert_leave"
	EventTab               EventType = "tab"
	EventIdleTimeout       EventType = "idle_timeout"
	EventCompletionReady   EventType = "completion_ready"
	EventCompletionError   EventType = "completion_error"
)

var eventTypeMap = map[string]EventType{
	string(EventEsc):               EventEsc,
	string(EventTextChanged):       EventTextChanged,
	string(EventTextChangeTimeout): EventTextChangeTimeout,
	string(EventCursorMovedNormal): EventCursorMovedNormal,
	string(EventInsertEnter):       EventInsertEnter,
	string(EventInsertLeave):       EventInsertLeave,
	string(EventTab):               EventTab,
	string(EventIdleTimeout):       EventIdleTimeout,
}

// EventTypeFromString maps an editor-side event name to its EventType. Unknown
// names map to the empty type, which the loop ignores.
func EventTypeFromString(s string) EventType {
	return eventTypeMap[s]
}

type Event struct {
	Type EventType
	Data any
}

func (ed *Editor) handleEsc() {
	ed.reject()
	ed.stopIdleTimer()
}

func (ed *Editor) handleTextChange() {
	ed.dismissShown()
	ed.startTextChangeTimer()
}

func (ed *Editor) handleTextChangeTimeout() {
	ed.requestCompletion("typing")
}

func (ed *Editor) handleCursorMoveNormal() {
	ed.reject()
	ed.resetIdleTimer()
}

func (ed *Editor) handleInsertEnter() {
	ed.stopIdleTimer()
}

func (ed *Editor) handleInsertLeave() {
	ed.reject()
	ed.startIdleTimer()
}

func (ed *Editor) handleTab() {
	if ed.surface == nil {
		return
	}
	if ed.state == stateHasSuggestion {
		ed.acceptSuggestion()
	}
}

func (ed *Editor) handleIdleTimeout() {
	if ed.state == stateIdle {
		ed.requestCompletion("idle")
	}
}

func (ed *Editor) handleCompletionError(data any) {
	if err, ok := data.(error); ok && (errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)) {
		logger.Debug("completion canceled: %v", err)
	} else {
		logger.Error("completion error: %v", data)
	}
	if ed.state == statePendingCompletion {
		ed.state = stateIdle
	}
}

// readyPayload carries a finished completion back into the event loop together
// with the cursor position it was requested for.
type readyPayload struct {
	result *types.CompletionResult
	row    int // 1-indexed
	col    int // 0-indexed
}
