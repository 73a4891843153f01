// Package live is the flavor for a live source that isn't RTMP-specific:
// anything that calls Actor.Publish/Actor.SetSource directly (an SRT
// relay, a test harness, another process forwarding decoded frames).
// It differs from internal/flavor/rtmp only in owning no ingest
// transport of its own. Neither flavor installs its own storage — a
// trailing timeshift window is a core-level spawn option
// (stream.Options.Timeshift), not something either flavor decides on
// its own, since the option is mutually exclusive with any storage a
// flavor does install.
package live

import (
	"streamcore/internal/stream"
	"streamcore/pkg/frame"
)

// Flavor is the stream.Flavor for a live stream with no flavor-specific
// ingest mechanics of its own.
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
