package stream

import (
	"github.com/google/uuid"

	"streamcore/pkg/frame"
)

// ClientID identifies a subscriber. Generated with uuid.New() at
// subscribe time (the core's analogue of watching a caller pid), the same
// identity scheme jmylchreest-tvarr's relay.SegmentClient uses for its
// own per-viewer bookkeeping.
type ClientID uuid.UUID

func NewClientID() ClientID { return ClientID(uuid.New()) }

func (id ClientID) String() string { return uuid.UUID(id).String() }

// ClientState is the client-side state machine: starting, active,
// passive, or paused.
type ClientState string

const (
	StateStarting ClientState = "starting"
	StateActive   ClientState = "active"
	StatePassive  ClientState = "passive"
	StatePaused   ClientState = "paused"
)

// Sink is how the actor delivers a frame to a subscriber without
// blocking on that subscriber. Implementations buffer internally (a
// channel, a ring buffer over a socket writer, ...) and drop on overflow;
// back-pressure policy is the Sink's business, never the actor's.
type Sink interface {
	Push(frame.Frame)
}

// SinkFunc adapts a plain function to a Sink.
type SinkFunc func(frame.Frame)

func (f SinkFunc) Push(fr frame.Frame) { f(fr) }

// SubscribeOptions are the options recognized by Subscribe.
type SubscribeOptions struct {
	StreamTag   string
	ClientBufferMS int
	SendVideo   *bool // nil means "no filter"; defaults applied by registry
	SendAudio   *bool
}

func (o SubscribeOptions) sendVideo() bool {
	return o.SendVideo == nil || *o.SendVideo
}

func (o SubscribeOptions) sendAudio() bool {
	return o.SendAudio == nil || *o.SendAudio
}

// client is one entry in the registry.
type client struct {
	id        ClientID
	sink      Sink
	done      <-chan struct{}
	streamTag string
	state     ClientState
	sendVideo bool
	sendAudio bool
	bufferMS  int
	bytes     uint64

	ticker *ticker // non-nil once started on a stream with storage (passive, or paused from passive)
}

func (c *client) admits(content frame.Content) bool {
	switch content {
	case frame.ContentVideo:
		return c.sendVideo
	case frame.ContentAudio:
		return c.sendAudio
	default:
		return true
	}
}

// clientRegistry is the per-actor subscriber table. It is
// touched exclusively from the actor goroutine, so it carries no locking
// of its own.
type clientRegistry struct {
	byID map[ClientID]*client
}

func newClientRegistry() *clientRegistry {
	return &clientRegistry{byID: make(map[ClientID]*client)}
}

func (r *clientRegistry) insert(c *client) { r.byID[c.id] = c }

func (r *clientRegistry) remove(id ClientID) {
	delete(r.byID, id)
}

func (r *clientRegistry) find(id ClientID) (*client, bool) {
	c, ok := r.byID[id]
	return c, ok
}

// list returns a snapshot slice; callers must not retain pointers across
// mutations they did not themselves perform within the same actor tick.
func (r *clientRegistry) list() []*client {
	out := make([]*client, 0, len(r.byID))
	for _, c := range r.byID {
		out = append(out, c)
	}
	return out
}

func (r *clientRegistry) count() int { return len(r.byID) }

// massUpdateState transitions every client currently in `from` to `to`.
// Used by the source-loss state machine to move all active clients back
// to starting on source failover.
func (r *clientRegistry) massUpdateState(from, to ClientState) {
	for _, c := range r.byID {
		if c.state == from {
			c.state = to
		}
	}
}

func (r *clientRegistry) incrementBytes(id ClientID, n int) {
	if c, ok := r.byID[id]; ok {
		c.bytes += uint64(n)
	}
}
