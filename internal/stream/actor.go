// Package stream implements the per-stream actor: the single-threaded
// owner of fan-out, the client registry, the source-loss state machine,
// and the pluggable flavor/storage adapters. One Actor represents one
// logical stream; external callers address it through the methods in
// requests.go and async.go, never by touching its fields.
package stream

import (
	"context"
	"fmt"
	"time"

	"streamcore/pkg/frame"
)

// Actor is the stream actor itself. Every field below is owned
// exclusively by the goroutine running loop() once Spawn has started it;
// nothing outside this package ever reads or writes them directly.
type Actor struct {
	mailbox       chan func()
	stopCh        chan struct{}
	doneCh        chan struct{}
	stopErr       error
	stopRequested bool

	flavor  Flavor
	options Options

	name, url, host, typ string

	mediaInfo        frame.MediaInfo
	waitingForConfig []chan frame.MediaInfo
	stopWaitTimer    *time.Timer

	storage Storage

	clients           *clientRegistry
	clientWatchCancel map[ClientID]func()

	source             string
	sourceWatchCancel  func()
	sourceTimeout      SourceTimeout
	sourceTimeoutTimer *time.Timer
	lossState          sourceLossState

	tsDelta    *int64
	lastDTS    int64
	lastDTSAt  time.Time

	videoConfig *frame.Frame
	audioConfig *frame.Frame

	glueDeltaMS int64
	transcoder  Transcoder
	transState  any

	createdAt time.Time

	inactivityTimeout time.Duration
	inactivityTimer   *time.Timer
	gcTicker          *time.Ticker
}

// Spawn creates and starts a stream actor, running Flavor.Init
// synchronously before the actor goroutine begins serving its mailbox.
// A non-nil error means Init or Spawn's own option checks rejected the
// configuration (e.g. ErrTimeshiftAndStorage); no goroutine is started
// in that case.
func Spawn(flavor Flavor, opts Options) (*Actor, error) {
	a := &Actor{
		mailbox:           make(chan func(), 32),
		stopCh:            make(chan struct{}),
		doneCh:            make(chan struct{}),
		flavor:            flavor,
		options:           opts,
		name:              opts.Name,
		url:               opts.URL,
		host:              opts.Host,
		typ:               opts.Type,
		clients:           newClientRegistry(),
		clientWatchCancel: make(map[ClientID]func()),
		createdAt:         time.Now(),
	}

	if opts.MediaInfo != nil {
		a.mediaInfo = *opts.MediaInfo
	} else {
		a.mediaInfo = frame.DefaultMediaInfo()
	}

	a.glueDeltaMS = opts.GlueDeltaMS
	a.transcoder = opts.Transcoder
	if a.transcoder == nil {
		a.transcoder = PassthroughTranscoder{}
	}

	a.sourceTimeout = opts.SourceTimeout
	if a.sourceTimeout == (SourceTimeout{}) {
		a.sourceTimeout = DefaultSourceTimeout()
	}

	a.inactivityTimeout = opts.InactivityTimeout
	if a.inactivityTimeout <= 0 {
		a.inactivityTimeout = 120 * time.Second
	}

	stopWait := opts.StopWaitForConfig
	if stopWait <= 0 {
		stopWait = 5 * time.Second
	}

	result, err := flavor.Init(a.context())
	if err != nil {
		return nil, err
	}
	if result.Storage != nil {
		a.storage = result.Storage
	}
	if opts.Timeshift > 0 {
		if a.storage != nil {
			return nil, ErrTimeshiftAndStorage
		}
		if opts.TimeshiftFactory == nil {
			return nil, fmt.Errorf("stream: timeshift requested with no TimeshiftFactory configured")
		}
		a.storage = opts.TimeshiftFactory(opts.Timeshift)
	}
	if result.MediaInfo != nil {
		a.mediaInfo = *result.MediaInfo
	}

	if !a.mediaInfo.Ready() {
		a.stopWaitTimer = time.NewTimer(stopWait)
	}

	gcInterval := opts.GCHintInterval
	if gcInterval <= 0 {
		gcInterval = 30 * time.Second
	}
	a.gcTicker = time.NewTicker(gcInterval)

	a.inactivityTimer = time.NewTimer(a.inactivityTimeout)

	go a.loop()
	return a, nil
}

// context snapshots the read-only view handed to the Flavor.
func (a *Actor) context() StreamContext {
	return StreamContext{
		Name:      a.name,
		URL:       a.url,
		Host:      a.host,
		Type:      a.typ,
		Options:   a.options.Raw,
		MediaInfo: a.mediaInfo,
		LastDTS:   a.lastDTS,
		Source:    a.source,
	}
}

// requestStop closes stopCh exactly once. Every path that can decide to
// terminate the actor (source-loss FSM, publish(frame) returning
// FrameStop, an explicit Stop request) calls this instead of closing
// stopCh directly, since more than one such path can be queued on the
// mailbox before loop() gets a chance to notice the first close.
func (a *Actor) requestStop() {
	if a.stopRequested {
		return
	}
	a.stopRequested = true
	close(a.stopCh)
}

// Done returns a channel closed once the actor has fully stopped.
func (a *Actor) Done() <-chan struct{} { return a.doneCh }

// send marshals fn onto the actor's mailbox, running it on the actor
// goroutine. It blocks until accepted, ctx is done, or the actor has
// stopped.
func (a *Actor) send(ctx context.Context, fn func()) error {
	select {
	case a.mailbox <- fn:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-a.doneCh:
		return ErrActorStopped
	}
}

func timerC(t *time.Timer) <-chan time.Time {
	if t == nil {
		return nil
	}
	return t.C
}

func tickerC(t *time.Ticker) <-chan time.Time {
	if t == nil {
		return nil
	}
	return t.C
}

// loop is the actor's mailbox: every mutation of Actor state happens on
// this goroutine, serializing them by construction.
func (a *Actor) loop() {
	defer a.shutdown()

	for {
		a.inactivityTimer.Reset(a.inactivityTimeout)

		select {
		case fn, ok := <-a.mailbox:
			if !ok {
				return
			}
			fn()

		case <-timerC(a.sourceTimeoutTimer):
			a.sourceTimeoutTimer = nil
			if a.onNoSourceTimer() {
				return
			}

		case <-timerC(a.stopWaitTimer):
			a.stopWaitTimer = nil
			a.onStopWaitForConfig()

		case <-timerC(a.inactivityTimer):
			if a.onInactivityTimeout() {
				return
			}

		case <-tickerC(a.gcTicker):
			// Advisory GC hint; the Go runtime manages its
			// own heap, so there is nothing to do but note the tick for
			// implementations that do want it (none here).

		case <-a.stopCh:
			return
		}
	}
}

func (a *Actor) shutdown() {
	if a.inactivityTimer != nil {
		a.inactivityTimer.Stop()
	}
	if a.sourceTimeoutTimer != nil {
		a.sourceTimeoutTimer.Stop()
	}
	if a.stopWaitTimer != nil {
		a.stopWaitTimer.Stop()
	}
	if a.gcTicker != nil {
		a.gcTicker.Stop()
	}
	for _, c := range a.clients.list() {
		if c.ticker != nil {
			c.ticker.stop()
		}
	}
	a.flushWaiters()
	close(a.doneCh)
}

// flushWaiters answers every pending media_info waiter with whatever is
// known, resolving any still-waiting track list to an empty concrete one.
func (a *Actor) flushWaiters() {
	if len(a.waitingForConfig) == 0 {
		return
	}
	resolved := a.mediaInfo.Resolved()
	for _, ch := range a.waitingForConfig {
		ch <- resolved
		close(ch)
	}
	a.waitingForConfig = nil
	a.hookConfigWaiters(0)
}

func (a *Actor) onStopWaitForConfig() {
	a.mediaInfo = a.mediaInfo.Resolved()
	a.flushWaiters()
}
