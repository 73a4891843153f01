package stream

import (
	"context"
	"time"

	"streamcore/pkg/frame"
)

// Subscribe adds caller to the client registry in state starting
//. sink receives every frame dispatched to this client;
// done, if non-nil, is the caller's liveness channel — when it closes
// the actor synchronously unsubscribes the client, the same as an
// explicit Unsubscribe.
func (a *Actor) Subscribe(ctx context.Context, sink Sink, done <-chan struct{}, opts SubscribeOptions) (ClientID, error) {
	id := NewClientID()
	errCh := make(chan error, 1)

	err := a.send(ctx, func() {
		if _, exists := a.clients.find(id); exists {
			errCh <- ErrAlreadySubscribed
			return
		}
		c := &client{
			id:        id,
			sink:      sink,
			done:      done,
			streamTag: opts.StreamTag,
			state:     StateStarting,
			sendVideo: opts.sendVideo(),
			sendAudio: opts.sendAudio(),
			bufferMS:  opts.ClientBufferMS,
		}
		a.clients.insert(c)
		a.armClientWatch(id, done)
		errCh <- nil
	})
	if err != nil {
		return ClientID{}, err
	}
	return id, <-errCh
}

// Play subscribes caller and immediately starts the resulting client,
// the composition every ordinary viewer wants. Subscribe alone leaves a
// client in starting, and fan-out already delivers to starting clients
// (cached configs first), so on a stream with no storage frames can
// reach a subscribed client before Start is called; a passive stream's
// ticker only runs once Start is called.
func (a *Actor) Play(ctx context.Context, sink Sink, done <-chan struct{}, opts SubscribeOptions) (ClientID, error) {
	id, err := a.Subscribe(ctx, sink, done, opts)
	if err != nil {
		return ClientID{}, err
	}
	if err := a.Start(ctx, id); err != nil {
		return ClientID{}, err
	}
	return id, nil
}

// Start transitions a client out of starting. A stream
// with a storage adapter installed is a passive (file-like) stream: its
// clients move to passive and get a ticker. A stream with no storage is
// active: a client still in starting is first sent the cached codec
// configs its filters admit, then joins ordinary fan-out.
func (a *Actor) Start(ctx context.Context, id ClientID) error {
	return a.withClient(ctx, id, func(c *client) error {
		if a.storage != nil {
			t := newTicker(a, id)
			c.ticker = t
			c.state = StatePassive
			go t.run(StorageKey(""), c.bufferMS)
			return nil
		}
		if c.state == StateStarting {
			if a.videoConfig != nil && c.admits(frame.ContentVideo) {
				a.deliverTo(c, *a.videoConfig)
			}
			if a.audioConfig != nil && c.admits(frame.ContentAudio) {
				a.deliverTo(c, *a.audioConfig)
			}
		}
		c.state = StateActive
		return nil
	})
}

// Pause halts delivery to the client without losing its position:
// passive clients stop their ticker, active clients simply stop
// receiving fan-out.
func (a *Actor) Pause(ctx context.Context, id ClientID) error {
	return a.withClient(ctx, id, func(c *client) error {
		if c.ticker != nil {
			c.ticker.pause()
		}
		c.state = StatePaused
		return nil
	})
}

// Resume restores the client to its prior active/passive mode
//.
func (a *Actor) Resume(ctx context.Context, id ClientID) error {
	return a.withClient(ctx, id, func(c *client) error {
		if c.ticker != nil {
			c.state = StatePassive
			c.ticker.resume()
			return nil
		}
		c.state = StateActive
		return nil
	})
}

// Unsubscribe removes id from the registry, stopping its ticker if any
// and cancelling its liveness watch. Tolerates an unknown id
//.
func (a *Actor) Unsubscribe(ctx context.Context, id ClientID) error {
	return a.send(ctx, func() { a.doUnsubscribe(id) })
}

func (a *Actor) doUnsubscribe(id ClientID) {
	c, ok := a.clients.find(id)
	if !ok {
		return
	}
	if c.ticker != nil {
		c.ticker.stop()
	}
	if cancel, ok := a.clientWatchCancel[id]; ok {
		cancel()
		delete(a.clientWatchCancel, id)
	}
	a.clients.remove(id)
}

// Stop terminates the actor normally.
func (a *Actor) Stop(ctx context.Context) error {
	err := a.send(ctx, func() { a.requestStop() })
	if err != nil && err != ErrActorStopped {
		return err
	}
	select {
	case <-a.doneCh:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Seek rebases a passive client's ticker to the keyframe nearest dts.
// Active clients and clients on a storage-less stream get an error.
func (a *Actor) Seek(ctx context.Context, id ClientID, dts int64, opts SeekOptions) error {
	return a.withClient(ctx, id, func(c *client) error {
		if c.ticker == nil {
			return ErrNotPassive
		}
		if a.storage == nil {
			return ErrNoStorage
		}
		key, resolved, ok := a.storage.Seek(dts, opts)
		if !ok {
			return ErrNoStorage
		}
		c.ticker.seek(key, resolved)
		return nil
	})
}

// SeekInfo is a pure query over storage (an empty result when the stream
// has no storage). The flavor's HandleControl is called with
// EventSeekInfo first, but its reply does not replace the storage
// answer: only a value of SeekInfo's own unexported result type would,
// and no flavor outside this package can build one.
func (a *Actor) SeekInfo(ctx context.Context, dts int64, opts SeekOptions) (StorageKey, int64, bool, error) {
	type result struct {
		key     StorageKey
		dts     int64
		ok      bool
	}
	resCh := make(chan result, 1)

	err := a.send(ctx, func() {
		decision := a.flavor.HandleControl(ControlEvent{Kind: EventSeekInfo, DTS: dts, SeekOpts: opts}, a.context())
		if decision.Kind == Reply {
			if r, ok := decision.Value.(result); ok {
				resCh <- r
				return
			}
		}
		if a.storage == nil {
			resCh <- result{}
			return
		}
		key, resolved, ok := a.storage.Seek(dts, opts)
		resCh <- result{key: key, dts: resolved, ok: ok}
	})
	if err != nil {
		return "", 0, false, err
	}
	r := <-resCh
	return r.key, r.dts, r.ok, nil
}

// ReadFrame is the public read_frame(key) / read_frame(client, key)
// request. Pass a zero ClientID to read without
// charging any client's byte counter.
func (a *Actor) ReadFrame(ctx context.Context, id ClientID, key StorageKey) (frame.Frame, StorageKey, error) {
	return a.readFrame(ctx, id, key)
}

// MediaInfo returns the current track descriptor, blocking until both
// tracks are concrete if either is still waiting.
func (a *Actor) MediaInfo(ctx context.Context) (frame.MediaInfo, error) {
	resCh := make(chan frame.MediaInfo, 1)

	err := a.send(ctx, func() {
		if a.mediaInfo.Ready() {
			resCh <- a.mergeStorageProperties(a.mediaInfo)
			return
		}
		a.waitingForConfig = append(a.waitingForConfig, resCh)
		a.hookConfigWaiters(len(a.waitingForConfig))
	})
	if err != nil {
		return frame.MediaInfo{}, err
	}

	select {
	case info := <-resCh:
		return info, nil
	case <-ctx.Done():
		return frame.MediaInfo{}, ctx.Err()
	case <-a.doneCh:
		return frame.MediaInfo{}, ErrActorStopped
	}
}

// mergeStorageProperties folds storage.Properties().Duration into a
// media_info reply so a VOD stream reports its total length even when
// the flavor's own MediaInfo never set one.
func (a *Actor) mergeStorageProperties(info frame.MediaInfo) frame.MediaInfo {
	if a.storage == nil {
		return info
	}
	props := a.storage.Properties()
	if props.Duration > 0 {
		info.Duration = props.Duration
	}
	return info
}

// SetMediaInfo installs info and, if it resolves both tracks, answers
// any pending waiters.
func (a *Actor) SetMediaInfo(ctx context.Context, info frame.MediaInfo) error {
	return a.send(ctx, func() {
		a.mediaInfo = info
		if a.mediaInfo.Ready() {
			if a.stopWaitTimer != nil {
				a.stopWaitTimer.Stop()
				a.stopWaitTimer = nil
			}
			a.flushWaiters()
		}
	})
}

// infoKeys are the allowed keys for Info.
var infoKeys = map[string]bool{
	"client_count": true, "url": true, "type": true, "storage": true,
	"clients": true, "last_dts": true, "ts_delay": true, "created_at": true,
	"options": true,
}

// Info returns the requested introspection keys, or ErrBadInfoKey if
// any key is unrecognized.
func (a *Actor) Info(ctx context.Context, keys []string) (map[string]any, error) {
	var bad []string
	for _, k := range keys {
		if !infoKeys[k] {
			bad = append(bad, k)
		}
	}
	if len(bad) > 0 {
		return nil, &ErrBadInfoKey{Keys: bad}
	}

	resCh := make(chan map[string]any, 1)
	err := a.send(ctx, func() {
		out := make(map[string]any, len(keys))
		for _, k := range keys {
			switch k {
			case "client_count":
				out[k] = a.clients.count()
			case "url":
				out[k] = a.url
			case "type":
				out[k] = a.typ
			case "storage":
				out[k] = a.storage != nil
			case "clients":
				out[k] = a.clientSnapshots()
			case "last_dts":
				out[k] = a.lastDTS
			case "ts_delay":
				if a.typ == "file" {
					out[k] = int64(0)
				} else {
					out[k] = time.Since(a.lastDTSAt).Milliseconds()
				}
			case "created_at":
				out[k] = a.createdAt
			case "options":
				out[k] = a.options.Raw
			}
		}
		resCh <- out
	})
	if err != nil {
		return nil, err
	}
	return <-resCh, nil
}

func (a *Actor) clientSnapshots() []ClientID {
	list := a.clients.list()
	out := make([]ClientID, 0, len(list))
	for _, c := range list {
		out = append(out, c.id)
	}
	return out
}

// withClient is the common shape of a sync request addressing a single
// existing client.
func (a *Actor) withClient(ctx context.Context, id ClientID, fn func(*client) error) error {
	errCh := make(chan error, 1)
	err := a.send(ctx, func() {
		c, ok := a.clients.find(id)
		if !ok {
			errCh <- ErrClientNotFound
			return
		}
		errCh <- fn(c)
	})
	if err != nil {
		return err
	}
	return <-errCh
}
