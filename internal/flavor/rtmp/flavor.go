// Package rtmp is the live-stream flavor ingested over RTMP: FLV/AVCC
// demuxing into frame.Frame (server.go) plus the narrow stream.Flavor
// capability interface (flavor.go). The ingest mechanics and the flavor
// callbacks the actor core itself drives are kept in separate files on
// purpose. A trailing timeshift window, when wanted, is requested
// through stream.Options.Timeshift at spawn time rather than by this
// flavor installing storage itself.
package rtmp

import (
	"streamcore/internal/stream"
	"streamcore/pkg/frame"
)

// Flavor is the stream.Flavor for an RTMP-published live stream.
// HandleFrame passes every frame through unmodified; HandleControl has
// nothing to add beyond the core's own source-loss policy, since RTMP
// publishers have no reconnect protocol of their own for this core to
// intercept.
type Flavor struct{}

var _ stream.Flavor = Flavor{}

func (f Flavor) Init(ctx stream.StreamContext) (stream.InitResult, error) {
	return stream.InitResult{}, nil
}

func (f Flavor) HandleFrame(fr frame.Frame, ctx stream.StreamContext) stream.FrameDecision {
	return stream.FrameReplyWith(fr)
}

func (f Flavor) HandleControl(event stream.ControlEvent, ctx stream.StreamContext) stream.Decision {
	return stream.NoReplyDecision()
}

func (f Flavor) HandleInfo(msg any, ctx stream.StreamContext) stream.Decision {
	return stream.NoReplyDecision()
}
