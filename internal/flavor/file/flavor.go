// Package file is the VOD stream flavor: its storage is a durable
// internal/storage.FrameLog opened once at Init from a pre-existing blob
// path, giving every passive client random access into a file that was
// written ahead of time rather than produced live, read back out of the
// same kind of blob Storage this flavor opens its frame log on.
package file

import (
	"fmt"

	"streamcore/internal/storage"
	"streamcore/internal/stream"
	"streamcore/pkg/frame"
)

// pathOption is the stream.Options.Raw key naming the blob path this
// flavor opens its frame log from.
const pathOption = "file_path"

// Flavor is the stream.Flavor for a pre-recorded file stream.
type Flavor struct {
	Backing storage.Storage
}

var _ stream.Flavor = Flavor{}

func (f Flavor) Init(ctx stream.StreamContext) (stream.InitResult, error) {
	path, _ := ctx.Options[pathOption].(string)
	if path == "" {
		return stream.InitResult{}, fmt.Errorf("file: missing %q option", pathOption)
	}

	log, err := storage.OpenFrameLog(f.Backing, path)
	if err != nil {
		return stream.InitResult{}, fmt.Errorf("file: opening %s: %w", path, err)
	}
	return stream.InitResult{Storage: log}, nil
}

func (f Flavor) HandleFrame(fr frame.Frame, ctx stream.StreamContext) stream.FrameDecision {
	return stream.FrameReplyWith(fr)
}

// HandleControl lets a finished ingest (the publisher that wrote the
// frame log and then disconnected) terminate the actor immediately
// rather than sit in a no_source grace period a file stream will never
// recover from.
func (f Flavor) HandleControl(event stream.ControlEvent, ctx stream.StreamContext) stream.Decision {
	switch event.Kind {
	case stream.EventSourceLost:
		return stream.StopDecision(nil)
	default:
		return stream.NoReplyDecision()
	}
}

func (f Flavor) HandleInfo(msg any, ctx stream.StreamContext) stream.Decision {
	return stream.NoReplyDecision()
}
