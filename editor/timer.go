package editor

import "time"

func (ed *Editor) startIdleTimer() {
	ed.stopIdleTimer()
	ed.idleTimer = time.AfterFunc(ed.config.IdleCompletionDelay, func() {
		// Check if the editor is stopped before sending the event
		ed.mu.RLock()
		stopped := ed.stopped
		mainCtx := ed.mainCtx
		ed.mu.RUnlock()

		if stopped || mainCtx == nil {
			return
		}

		select {
		case ed.eventChan <- Event{Type: EventIdleTimeout}:
		case <-mainCtx.Done():
		}
	})
}

func (ed *Editor) stopIdleTimer() {
	if ed.idleTimer != nil {
		ed.idleTimer.Stop()
		ed.idleTimer = nil
	}
}

func (ed *Editor) resetIdleTimer() {
	ed.stopIdleTimer()
	ed.startIdleTimer()
}

func (ed *Editor) startTextChangeTimer() {
	ed.stopTextChangeTimer()
	ed.textChangeTimer = time.AfterFunc(ed.config.TextChangeDebounce, func() {
		ed.mu.RLock()
		stopped := ed.stopped
		mainCtx := ed.mainCtx
		ed.mu.RUnlock()

		if stopped || mainCtx == nil {
			return
		}

		select {
		case ed.eventChan <- Event{Type: EventTextChangeTimeout}:
		case <-mainCtx.Done():
		}
	})
}

func (ed *Editor) stopTextChangeTimer() {
	if ed.textChangeTimer != nil {
		ed.textChangeTimer.Stop()
		ed.textChangeTimer = nil
	}
}
