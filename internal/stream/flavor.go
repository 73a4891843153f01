package stream

import (
	"net"

	"streamcore/pkg/frame"
)

// DecisionKind tags the variant carried by a Decision: reply, no-reply,
// stop, or stop-with-reply, as an exhaustive Go enum instead of an
// interface{} grab bag.
type DecisionKind int

const (
	NoReply DecisionKind = iota
	Reply
	Stop
	StopWithReply
)

// Decision is the tagged-variant return value every Flavor callback uses.
// Build one with the NoReplyDecision/ReplyWith/StopDecision/
// StopWithReplyDecision constructors rather than composing the struct
// literal directly, so the dispatcher's switch over Kind stays exhaustive.
type Decision struct {
	Kind       DecisionKind
	Value      any
	StopReason error
}

// NoReplyDecision is the default: the actor continues, nothing is sent
// back to whoever triggered the callback.
func NoReplyDecision() Decision { return Decision{Kind: NoReply} }

// ReplyWith answers the caller with value and continues.
func ReplyWith(value any) Decision { return Decision{Kind: Reply, Value: value} }

// StopDecision terminates the actor with reason.
func StopDecision(reason error) Decision { return Decision{Kind: Stop, StopReason: reason} }

// StopWithReplyDecision answers the caller with value, then terminates
// the actor with reason. Used by, e.g., a flavor that accepts a
// shutdown-triggering event but still owes a synchronous caller a value.
func StopWithReplyDecision(value any, reason error) Decision {
	return Decision{Kind: StopWithReply, Value: value, StopReason: reason}
}

// ControlKind enumerates the control events the core guarantees to raise
// on Flavor.HandleControl.
type ControlKind int

const (
	EventSetSource ControlKind = iota
	EventSetSocket
	EventSeekInfo
	EventSourceLost
	EventNoSource
	EventTimeout
	EventCustom
)

// ControlEvent is the single argument to HandleControl; only the fields
// relevant to Kind are populated.
type ControlEvent struct {
	Kind ControlKind

	// SetSource / SourceLost
	Source string

	// SetSocket
	Socket net.Conn

	// SeekInfo
	DTS      int64
	SeekOpts SeekOptions

	// Custom: any cast the core didn't itself recognize, forwarded
	// verbatim.
	Custom any
}

// StreamContext is the read-only view of actor state exposed to a Flavor.
// Flavors never hold a pointer into the actor's live state; everything
// they need to decide with is copied in here, and everything they decide
// to change comes back out through a Decision/InitResult/FrameDecision —
// flavors never mutate actor state directly.
type StreamContext struct {
	Name, URL, Host, Type string
	Options                map[string]any
	MediaInfo              frame.MediaInfo
	LastDTS                int64
	Source                 string
}

// InitResult is what Flavor.Init hands back to install the stream's
// storage adapter and (optionally) an initial media_info different from
// the one passed in via options.
type InitResult struct {
	Storage   Storage
	MediaInfo *frame.MediaInfo
}

// FrameDecisionKind tags Flavor.HandleFrame's return.
type FrameDecisionKind int

const (
	FrameNoReply FrameDecisionKind = iota
	FrameReply
	FrameStop
)

// FrameDecision is HandleFrame's tagged-variant return: FrameReply carries
// the (possibly rewritten) frame the core should dispatch; FrameNoReply
// drops it; FrameStop terminates the actor.
type FrameDecision struct {
	Kind       FrameDecisionKind
	Frame      frame.Frame
	StopReason error
}

func FrameReplyWith(f frame.Frame) FrameDecision {
	return FrameDecision{Kind: FrameReply, Frame: f}
}

func FrameDrop() FrameDecision { return FrameDecision{Kind: FrameNoReply} }

func FrameStopDecision(reason error) FrameDecision {
	return FrameDecision{Kind: FrameStop, StopReason: reason}
}

// Flavor is the narrow capability interface every stream-type-specific
// implementation (file, live, mpegts, rtmp, rtsp) plugs into the actor
// through. All strategy that differs between stream types lives behind
// this interface; the core only ever calls into it.
type Flavor interface {
	// Init is called once, synchronously, when the actor starts. A
	// non-nil error stops the actor before it ever processes a message.
	Init(ctx StreamContext) (InitResult, error)

	// HandleFrame is called for every frame arriving from the source,
	// before the core's own dispatch bookkeeping (ts_delta, media_info,
	// storage append, fan-out) runs.
	HandleFrame(f frame.Frame, ctx StreamContext) FrameDecision

	// HandleControl is called for every ControlKind the core raises.
	// The core itself never raises EventCustom: the actor has no entry
	// point for untyped casts, so that kind and ControlEvent.Custom only
	// appear if a flavor's own code builds such an event.
	HandleControl(event ControlEvent, ctx StreamContext) Decision

	// HandleInfo is called for out-of-band messages a flavor's own
	// offloaded I/O tasks post back.
	HandleInfo(msg any, ctx StreamContext) Decision
}
