package stream

import "streamcore/pkg/frame"

// Transcoder is the optional frame transformer applied as the first step
// of dispatch. The core never re-encodes on its
// own; a Transcoder is how that's delegated to an external collaborator.
// Apply may drop a frame by returning ok=false.
type Transcoder interface {
	Apply(state any, f frame.Frame) (newState any, out frame.Frame, ok bool)
}

// PassthroughTranscoder is the default Transcoder: every frame passes
// through unmodified.
type PassthroughTranscoder struct{}

func (PassthroughTranscoder) Apply(state any, f frame.Frame) (any, frame.Frame, bool) {
	return state, f, true
}
