package stream

import (
	"errors"
	"time"

	"streamcore/pkg/frame"
)

// ErrEOF is returned by Storage.ReadFrame when key addresses the end of
// the stored sequence.
var ErrEOF = errors.New("stream: storage eof")

// StorageKey is an opaque cursor into a Storage adapter's frame sequence.
// The zero value addresses the first frame.
type StorageKey string

// SeekOptions parameterizes Storage.Seek. Direction is accepted but,
// matching the upstream behavior this core reproduces (see DESIGN.md),
// advisory only: seeking always resolves to the first keyframe at or
// after the requested dts, falling back to the keyframe strictly before
// it when none follows.
type SeekOptions struct {
	Direction SeekDirection
}

// SeekDirection is the advisory discriminator accepted by Seek/SeekInfo.
type SeekDirection string

const (
	SeekBefore SeekDirection = "before"
	SeekAfter  SeekDirection = "after"
)

// Properties describes static facts about a Storage adapter's backing
// sequence, merged into media_info replies.
type Properties struct {
	Duration time.Duration
	Extra    map[string]any
}

// Storage is the random-access frame source a flavor plugs in for passive
// clients and seeking. Implementations are owned exclusively by one Actor;
// ReadFrame, Seek, Properties, and WriteFrame are only ever called from
// the actor's own goroutine, so implementations need no internal locking
// for that contract (see internal/storage for concrete backends).
type Storage interface {
	// ReadFrame returns the frame at key plus the key of its successor.
	// Returns ErrEOF once key addresses the end of the sequence.
	ReadFrame(key StorageKey) (frame.Frame, StorageKey, error)

	// Seek resolves dts to the key of the nearest keyframe: the first
	// keyframe at or after dts, or, if none exists, the keyframe
	// strictly before it. ok is false if the adapter has no keyframe at
	// all (empty storage).
	Seek(dts int64, opts SeekOptions) (key StorageKey, resolvedDTS int64, ok bool)

	// Properties reports static facts about the backing sequence.
	Properties() Properties

	// WriteFrame appends a frame for later retrieval. Backings that do
	// not support writing (e.g. a read-only VOD index) may no-op.
	WriteFrame(f frame.Frame) error
}
