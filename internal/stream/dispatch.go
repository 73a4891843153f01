package stream

import (
	"context"
	"time"

	"streamcore/pkg/frame"
)

// internalTimeout bounds the actor round-trips a ticker makes on its own
// behalf (read_frame, delivery), the same way an external caller's
// request is bounded.
const internalTimeout = 10 * time.Second

// handleFrame runs the fan-out pipeline for one frame arriving from the
// current source (or injected via publish).
func (a *Actor) handleFrame(f frame.Frame) bool {
	var ok bool
	a.transState, f, ok = a.transcoder.Apply(a.transState, f)
	if !ok {
		return false
	}

	switch decision := a.flavor.HandleFrame(f, a.context()); decision.Kind {
	case FrameStop:
		return true
	case FrameReply:
		f = decision.Frame
	default: // FrameNoReply
		return false
	}

	if a.tsDelta == nil {
		delta := a.lastDTS - f.DTS
		if a.lastDTSAt.IsZero() {
			// No frame has been emitted yet: nothing to continue from.
			delta = 0
		}
		a.tsDelta = &delta
		if a.glueDeltaMS > 0 && !a.lastDTSAt.IsZero() {
			if gap := time.Since(a.lastDTSAt).Milliseconds(); gap > a.glueDeltaMS {
				f.Discontinuous = true
			}
		}
	}
	f.DTS += *a.tsDelta
	f.PTS += *a.tsDelta

	a.lastDTS = f.DTS
	a.lastDTSAt = time.Now()

	if f.IsConfig() {
		a.cacheConfig(f)
	}

	if a.storage != nil {
		_ = a.storage.WriteFrame(f)
	}

	a.fanOut(f)
	return false
}

// cacheConfig updates the per-track codec-config slot and media_info,
// flushing any media_info waiters once both tracks are concrete
//.
func (a *Actor) cacheConfig(f frame.Frame) {
	switch f.Content {
	case frame.ContentVideo:
		cfg := f
		a.videoConfig = &cfg
		if a.mediaInfo.VideoWaiting() {
			a.mediaInfo.Video = []frame.Track{{Codec: f.Codec, Config: f.Body}}
		}
	case frame.ContentAudio:
		cfg := f
		a.audioConfig = &cfg
		if a.mediaInfo.AudioWaiting() {
			a.mediaInfo.Audio = []frame.Track{{Codec: f.Codec, Config: f.Body}}
		}
	}
	if a.mediaInfo.Ready() {
		if a.stopWaitTimer != nil {
			a.stopWaitTimer.Stop()
			a.stopWaitTimer = nil
		}
		a.flushWaiters()
	}
}

// fanOut delivers f to every active/starting client admitted by its
// filters. Paused and passive clients receive nothing here.
func (a *Actor) fanOut(f frame.Frame) {
	for _, c := range a.clients.list() {
		if c.state != StateActive && c.state != StateStarting {
			continue
		}
		if !c.admits(f.Content) {
			continue
		}

		if c.state == StateStarting {
			if a.videoConfig != nil {
				a.deliverTo(c, *a.videoConfig)
			}
			if a.audioConfig != nil {
				a.deliverTo(c, *a.audioConfig)
			}
			c.state = StateActive
			if f.IsConfig() {
				// Already delivered as the cached config above; avoid a
				// duplicate send of the very frame that primed the cache.
				continue
			}
		}

		a.deliverTo(c, f)
	}
}

// deliverTo stamps and pushes f to c without blocking the actor.
func (a *Actor) deliverTo(c *client, f frame.Frame) {
	out := f.WithStreamID(c.streamTag)
	c.sink.Push(out)
	if !f.IsConfig() {
		a.clients.incrementBytes(c.id, f.Size())
	}
}

// readFrameForTicker is the actor-side half of the ticker's pull loop.
// It runs on the actor goroutine via the mailbox, so it can safely
// touch storage and the client's byte counter.
func (a *Actor) readFrameForTicker(id ClientID, key StorageKey) (frame.Frame, StorageKey, error) {
	ctx, cancel := context.WithTimeout(context.Background(), internalTimeout)
	defer cancel()
	return a.readFrame(ctx, id, key)
}

// readFrame is the shared implementation behind the public ReadFrame
// request and the ticker's internal pulls.
func (a *Actor) readFrame(ctx context.Context, id ClientID, key StorageKey) (frame.Frame, StorageKey, error) {
	reply := make(chan struct {
		f    frame.Frame
		next StorageKey
		err  error
	}, 1)

	err := a.send(ctx, func() {
		if a.storage == nil {
			reply <- struct {
				f    frame.Frame
				next StorageKey
				err  error
			}{err: ErrNoStorage}
			return
		}
		f, next, err := a.storage.ReadFrame(key)
		if err == nil {
			if f.IsConfig() {
				switch f.Content {
				case frame.ContentVideo:
					cfg := f
					a.videoConfig = &cfg
				case frame.ContentAudio:
					cfg := f
					a.audioConfig = &cfg
				}
			} else {
				a.clients.incrementBytes(id, f.Size())
			}
		}
		reply <- struct {
			f    frame.Frame
			next StorageKey
			err  error
		}{f: f, next: next, err: err}
	})
	if err != nil {
		return frame.Frame{}, key, err
	}

	r := <-reply
	return r.f, r.next, r.err
}

// deliverToPassive pushes f (already read from storage by
// readFrameForTicker) to a passive client's sink. Called from the
// ticker's own goroutine, so it only ever touches the client's sink,
// never registry state.
func (a *Actor) deliverToPassive(id ClientID, f frame.Frame) {
	ctx, cancel := context.WithTimeout(context.Background(), internalTimeout)
	defer cancel()

	done := make(chan struct{})
	if err := a.send(ctx, func() {
		defer close(done)
		c, ok := a.clients.find(id)
		if !ok {
			return
		}
		out := f.WithStreamID(c.streamTag)
		c.sink.Push(out)
	}); err != nil {
		return
	}
	<-done
}
