package storage

import (
	"strconv"
	"sync"
	"time"

	"streamcore/internal/stream"
	"streamcore/pkg/frame"
)

// Timeshift is an in-memory ring buffer implementing stream.Storage. It
// gives a live flavor a bounded window of recent history so passive
// clients can join mid-stream and seek within it, without the durable
// on-disk bookkeeping a VOD file needs (see framelog.go for that case).
// It keeps the same kind of bounded, keyframe-aware window of recent
// frames a sliding HLS segment window does, generalized from fixed-size
// segments to arbitrary per-frame addressing.
type Timeshift struct {
	mu      sync.Mutex
	window  time.Duration
	frames  []frame.Frame
	nextSeq int64
	base    int64 // sequence number of frames[0]
}

// NewTimeshift creates a ring buffer retaining approximately window of
// history, trimmed lazily on WriteFrame.
func NewTimeshift(window time.Duration) *Timeshift {
	return &Timeshift{window: window}
}

var _ stream.Storage = (*Timeshift)(nil)

func seqKey(seq int64) stream.StorageKey { return stream.StorageKey(strconv.FormatInt(seq, 10)) }

func parseSeqKey(key stream.StorageKey) (int64, bool) {
	if key == "" {
		return 0, true
	}
	n, err := strconv.ParseInt(string(key), 10, 64)
	return n, err == nil
}

// WriteFrame appends f, then trims frames older than window relative to
// the newest DTS seen.
func (t *Timeshift) WriteFrame(f frame.Frame) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.frames = append(t.frames, f)
	t.nextSeq++

	if t.window <= 0 {
		return nil
	}
	cutoff := f.DTS - t.window.Milliseconds()
	trim := 0
	for trim < len(t.frames) && t.frames[trim].DTS < cutoff {
		trim++
	}
	if trim > 0 {
		t.frames = append(t.frames[:0:0], t.frames[trim:]...)
		t.base += int64(trim)
	}
	return nil
}

// ReadFrame returns the frame at the sequence key plus the key of its
// successor, or stream.ErrEOF once key is past the newest frame. A key
// older than the retained window (including "") reads the oldest
// retained frame.
func (t *Timeshift) ReadFrame(key stream.StorageKey) (frame.Frame, stream.StorageKey, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	seq, ok := parseSeqKey(key)
	if !ok {
		return frame.Frame{}, "", stream.ErrEOF
	}
	idx := seq - t.base
	if idx < 0 {
		idx = 0
	}
	if idx >= int64(len(t.frames)) {
		return frame.Frame{}, "", stream.ErrEOF
	}
	next := t.base + idx + 1
	if next-t.base >= int64(len(t.frames)) {
		return t.frames[idx], seqKey(next), nil
	}
	return t.frames[idx], seqKey(next), nil
}

// Seek resolves dts to the nearest keyframe still retained in the
// window: the first keyframe at or after dts, falling back to the
// keyframe strictly before it.
func (t *Timeshift) Seek(dts int64, _ stream.SeekOptions) (stream.StorageKey, int64, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	var before = -1
	for i, f := range t.frames {
		if f.Content != frame.ContentVideo || f.Kind != frame.KindKeyframe {
			continue
		}
		if f.DTS >= dts {
			return seqKey(t.base + int64(i)), f.DTS, true
		}
		before = i
	}
	if before >= 0 {
		return seqKey(t.base + int64(before)), t.frames[before].DTS, true
	}
	return "", 0, false
}

// Properties reports the retained window's span.
func (t *Timeshift) Properties() stream.Properties {
	t.mu.Lock()
	defer t.mu.Unlock()

	if len(t.frames) == 0 {
		return stream.Properties{}
	}
	span := t.frames[len(t.frames)-1].DTS - t.frames[0].DTS
	return stream.Properties{Duration: time.Duration(span) * time.Millisecond}
}
