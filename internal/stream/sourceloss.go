package stream

import "time"

// sourceLossState is the source-loss state machine:
// SOURCE_OK -> SOURCE_LOST_GRACE -> NO_SOURCE -> (terminated | SOURCE_OK).
type sourceLossState int

const (
	sourceOK sourceLossState = iota
	sourceLostGrace
)

// Source identifies the actor's current frame producer plus the liveness
// channel the actor watches it through. Done may be nil for a source
// with no liveness signal (e.g. a frame injected directly via publish
// with no monitored producer behind it).
type Source struct {
	ID   string
	Done <-chan struct{}
}

// onSourceLost is invoked when the liveness watch on the current source
// fires. It returns true if the actor should terminate.
func (a *Actor) onSourceLost(lost string) bool {
	if lost != a.source {
		// Stale watch from a source we've already replaced; ignore.
		return false
	}

	decision := a.flavor.HandleControl(ControlEvent{Kind: EventSourceLost, Source: lost}, a.context())

	switch decision.Kind {
	case Stop, StopWithReply:
		return true

	case Reply:
		if newSrc, ok := decision.Value.(Source); ok {
			a.adoptSource(newSrc)
		}
		return false

	default: // NoReply
		switch {
		case a.sourceTimeout.immediate():
			return true
		case a.sourceTimeout.disabled():
			a.source = ""
			a.cancelSourceWatch()
			return false
		default:
			a.lossState = sourceLostGrace
			a.hookSourceLoss("source_lost_grace")
			a.armSourceTimeoutTimer(a.sourceTimeout.grace())
			return false
		}
	}
}

// onNoSourceTimer fires when the no_source grace timer expires. Returns
// true if the actor should terminate.
func (a *Actor) onNoSourceTimer() bool {
	a.hookSourceLoss("no_source")
	decision := a.flavor.HandleControl(ControlEvent{Kind: EventNoSource}, a.context())

	switch decision.Kind {
	case Reply:
		if newSrc, ok := decision.Value.(Source); ok {
			a.adoptSource(newSrc)
			// Clients re-receive codec configs on the next frame.
			a.clients.massUpdateState(StateActive, StateStarting)
		}
		return false

	default: // NoReply, Stop, StopWithReply: all terminate
		return true
	}
}

// onInactivityTimeout fires when no mailbox message has arrived within
// the inactivity window. Meaningful only while a source is present;
// returns true if the actor should terminate.
func (a *Actor) onInactivityTimeout() bool {
	if a.source == "" {
		return false
	}
	decision := a.flavor.HandleControl(ControlEvent{Kind: EventTimeout}, a.context())
	switch decision.Kind {
	case Stop, StopWithReply:
		return true
	default:
		return false
	}
}

// adoptSource installs src as the current source: cancels the previous
// liveness watch, resets ts_delta, and arms a fresh watch. Calling this
// twice with the same source id is equivalent to calling it once, with a
// fresh monitor each time.
func (a *Actor) adoptSource(src Source) {
	a.cancelSourceWatch()
	a.cancelSourceTimeoutTimer()
	if a.lossState != sourceOK {
		a.hookSourceLoss("source_ok")
	}
	a.lossState = sourceOK
	a.source = src.ID
	a.tsDelta = nil
	a.armSourceWatch(src)
}

// armSourceWatch spawns the watcher goroutine that maps a source's
// liveness channel firing into a mailbox message, per the "each watched
// entity runs in a task that signals a termination channel the actor
// multiplexes alongside its mailbox" design note.
func (a *Actor) armSourceWatch(src Source) {
	if src.Done == nil {
		a.sourceWatchCancel = nil
		return
	}
	cancel := make(chan struct{})
	a.sourceWatchCancel = func() { close(cancel) }
	id := src.ID
	go func() {
		select {
		case <-src.Done:
			select {
			case a.mailbox <- func() {
				if a.onSourceLost(id) {
					a.requestStop()
				}
			}:
			case <-a.doneCh:
			}
		case <-cancel:
		case <-a.doneCh:
		}
	}()
}

func (a *Actor) cancelSourceWatch() {
	if a.sourceWatchCancel != nil {
		a.sourceWatchCancel()
		a.sourceWatchCancel = nil
	}
}

func (a *Actor) armSourceTimeoutTimer(d time.Duration) {
	a.cancelSourceTimeoutTimer()
	a.sourceTimeoutTimer = time.NewTimer(d)
}

func (a *Actor) cancelSourceTimeoutTimer() {
	if a.sourceTimeoutTimer != nil {
		a.sourceTimeoutTimer.Stop()
		a.sourceTimeoutTimer = nil
	}
}
