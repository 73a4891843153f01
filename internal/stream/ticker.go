package stream

import "time"

// tickerCtrlKind enumerates the reconfiguration messages a ticker accepts.
type tickerCtrlKind int

const (
	tickerPause tickerCtrlKind = iota
	tickerResume
	tickerSeek
	tickerPlaySetup
	tickerStop
)

type tickerCtrl struct {
	kind tickerCtrlKind
	key  StorageKey
	dts  int64
	opts PlaySetupOptions
}

// PlaySetupOptions are the runtime toggles play_setup may push to a
// ticker.
type PlaySetupOptions struct {
	BufferMS  *int
	SendVideo *bool
	SendAudio *bool
}

// ticker is the per-passive-client cooperative driver: it issues
// ReadFrame calls back into the actor at the pace implied by
// consecutive frame DTS deltas, draining its initial buffer_ms window as
// fast as possible.
type ticker struct {
	actor  *Actor
	client ClientID
	ctrl   chan tickerCtrl
	stopped chan struct{}
}

func newTicker(a *Actor, id ClientID) *ticker {
	return &ticker{
		actor:   a,
		client:  id,
		ctrl:    make(chan tickerCtrl, 4),
		stopped: make(chan struct{}),
	}
}

func (t *ticker) send(c tickerCtrl) {
	select {
	case t.ctrl <- c:
	case <-t.stopped:
	}
}

func (t *ticker) pause()                    { t.send(tickerCtrl{kind: tickerPause}) }
func (t *ticker) resume()                   { t.send(tickerCtrl{kind: tickerResume}) }
func (t *ticker) seek(key StorageKey, dts int64) { t.send(tickerCtrl{kind: tickerSeek, key: key, dts: dts}) }
func (t *ticker) playSetup(o PlaySetupOptions)    { t.send(tickerCtrl{kind: tickerPlaySetup, opts: o}) }
func (t *ticker) stop()                     { t.send(tickerCtrl{kind: tickerStop}) }

// run is the ticker's goroutine body. startKey/bufferMS seed its initial
// position and pre-push window; it calls back into the actor via
// a.readFrameForTicker, which marshals the read onto the actor's own
// goroutine the same way any other request does.
func (t *ticker) run(startKey StorageKey, bufferMS int) {
	defer close(t.stopped)

	key := startKey
	paused := false
	drainDeadline := time.Now().Add(time.Duration(bufferMS) * time.Millisecond)
	var lastDTS int64
	haveLast := false

	for {
		if paused {
			select {
			case c := <-t.ctrl:
				switch c.kind {
				case tickerResume:
					paused = false
				case tickerSeek:
					key, lastDTS, haveLast = c.key, c.dts, true
					drainDeadline = time.Now()
				case tickerStop:
					return
				case tickerPlaySetup:
					// Accepted and discarded: neither the ticker nor
					// the client registry applies play_setup options.
				}
				continue
			case <-t.actor.doneCh:
				return
			}
		}

		f, nextKey, err := t.actor.readFrameForTicker(t.client, key)
		if err != nil {
			// End of stored sequence (file flavor) or no storage: stop
			// cleanly rather than spin.
			return
		}
		key = nextKey

		var wait time.Duration
		if time.Now().Before(drainDeadline) {
			wait = 0
		} else if haveLast {
			delta := f.DTS - lastDTS
			if delta > 0 {
				wait = time.Duration(delta) * time.Millisecond
			}
		}
		lastDTS, haveLast = f.DTS, true

		t.actor.deliverToPassive(t.client, f)

		if wait == 0 {
			select {
			case c := <-t.ctrl:
				if t.applyImmediate(c, &key, &paused) {
					return
				}
			case <-t.actor.doneCh:
				return
			default:
			}
			continue
		}

		sleepStart := time.Now()
		timer := time.NewTimer(wait)
		select {
		case <-timer.C:
			if lag := time.Since(sleepStart) - wait; lag > 0 {
				t.actor.hookTickerLag(lag)
			}
		case c := <-t.ctrl:
			timer.Stop()
			if t.applyImmediate(c, &key, &paused) {
				return
			}
		case <-t.actor.doneCh:
			timer.Stop()
			return
		}
	}
}

// applyImmediate applies a control message and reports whether the
// ticker should stop running.
func (t *ticker) applyImmediate(c tickerCtrl, key *StorageKey, paused *bool) bool {
	switch c.kind {
	case tickerPause:
		*paused = true
	case tickerResume:
		*paused = false
	case tickerSeek:
		*key = c.key
	case tickerStop:
		return true
	case tickerPlaySetup:
	}
	return false
}
