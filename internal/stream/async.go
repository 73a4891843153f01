package stream

import (
	"net"

	"streamcore/pkg/frame"
)

// post fire-and-forgets fn onto the mailbox, dropping it silently if the
// actor has already stopped — the shape every fire-and-forget request
// shares (SetSource, SetSocket, PlaySetup, Publish all reply nothing,
// so there is no caller waiting to be told the actor is gone).
func (a *Actor) post(fn func()) {
	select {
	case a.mailbox <- fn:
	case <-a.doneCh:
	}
}

// SetSource installs src as the current frame producer, giving the
// flavor a chance to substitute a different one, and cancels any
// pending no_source grace timer.
func (a *Actor) SetSource(src Source) {
	a.post(func() {
		decision := a.flavor.HandleControl(ControlEvent{Kind: EventSetSource, Source: src.ID}, a.context())
		final := src
		if decision.Kind == Reply {
			if s, ok := decision.Value.(Source); ok {
				final = s
			}
		}
		a.adoptSource(final)
	})
}

// SetSocket transfers socket ownership to the actor and notifies the
// flavor.
func (a *Actor) SetSocket(sock net.Conn) {
	a.post(func() {
		a.flavor.HandleControl(ControlEvent{Kind: EventSetSocket, Socket: sock}, a.context())
	})
}

// PlaySetup forwards runtime toggles to a passive client's ticker; a
// no-op for active or unknown clients. The ticker accepts the message
// without changing its buffer, pacing or content filtering.
func (a *Actor) PlaySetup(id ClientID, opts PlaySetupOptions) {
	a.post(func() {
		c, ok := a.clients.find(id)
		if !ok || c.ticker == nil {
			return
		}
		c.ticker.playSetup(opts)
	})
}

// Publish injects f into the actor's inbound path as if it arrived from
// the current source.
func (a *Actor) Publish(f frame.Frame) {
	a.post(func() {
		if a.handleFrame(f) {
			a.requestStop()
		}
	})
}

// PostInfo delivers an out-of-band message to the flavor's HandleInfo,
// the reply path an offloaded I/O task (a DNS lookup, a token refresh,
// anything a flavor can't do inline in HandleFrame/HandleControl without
// blocking the mailbox) uses to report back. Runs on the actor goroutine
// like every other control path, so HandleInfo can safely read ctx and
// a Stop/StopWithReply verdict terminates the actor the same way a
// source-loss or HandleFrame stop does.
func (a *Actor) PostInfo(msg any) {
	a.post(func() {
		decision := a.flavor.HandleInfo(msg, a.context())
		switch decision.Kind {
		case Stop, StopWithReply:
			a.requestStop()
		}
	})
}
