package storage

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"strconv"
	"sync"
	"time"

	"streamcore/internal/stream"
	"streamcore/pkg/frame"
)

// FrameLog is a durable, append-only sequence of frames backed by a blob
// Storage (local disk or GCS), implementing stream.Storage for the file
// flavor's VOD reads, seeks, and passive-client ticking. It is a thin
// frame-record codec layered on top of the Storage contract, the same
// way the HLS segmenter layers .ts segment writes on that interface.
//
// Frames are encoded as a length-prefixed stream: each record is
// [4-byte big-endian length][gob-independent fixed header][body]. The
// whole log for one stream lives under a single blob key; an in-memory
// index of per-frame offsets and keyframe DTS positions is built once at
// Open and kept current as WriteFrame appends.
type FrameLog struct {
	mu      sync.Mutex
	backing Storage
	path    string

	index     []frameIndexEntry
	data      []byte // cached full log body, appended to in memory and flushed on each write
	keyframes []int  // indices into index of video keyframes, ascending by DTS
}

type frameIndexEntry struct {
	offset int
	length int
	dts    int64
	isKey  bool
}

// OpenFrameLog loads (or creates) the frame log for path on backing,
// decoding its existing records into an in-memory index.
func OpenFrameLog(backing Storage, path string) (*FrameLog, error) {
	fl := &FrameLog{backing: backing, path: path}

	data, err := backing.Read(path)
	if err != nil {
		if exists, _ := backing.Exists(path); !exists {
			return fl, nil
		}
		return nil, fmt.Errorf("opening frame log %s: %w", path, err)
	}
	fl.data = data
	if err := fl.rebuildIndex(); err != nil {
		return nil, fmt.Errorf("indexing frame log %s: %w", path, err)
	}
	return fl, nil
}

var _ stream.Storage = (*FrameLog)(nil)

func (fl *FrameLog) rebuildIndex() error {
	fl.index = fl.index[:0]
	fl.keyframes = fl.keyframes[:0]

	off := 0
	for off < len(fl.data) {
		if off+4 > len(fl.data) {
			return fmt.Errorf("truncated record header at offset %d", off)
		}
		length := int(binary.BigEndian.Uint32(fl.data[off : off+4]))
		recStart := off + 4
		if recStart+length > len(fl.data) {
			return fmt.Errorf("truncated record body at offset %d", off)
		}
		f, err := decodeFrame(fl.data[recStart : recStart+length])
		if err != nil {
			return err
		}
		idx := len(fl.index)
		fl.index = append(fl.index, frameIndexEntry{
			offset: off,
			length: 4 + length,
			dts:    f.DTS,
			isKey:  f.Content == frame.ContentVideo && f.Kind == frame.KindKeyframe,
		})
		if fl.index[idx].isKey {
			fl.keyframes = append(fl.keyframes, idx)
		}
		off = recStart + length
	}
	return nil
}

// WriteFrame appends f to the in-memory log and flushes the log to the
// backing store.
func (fl *FrameLog) WriteFrame(f frame.Frame) error {
	fl.mu.Lock()
	defer fl.mu.Unlock()

	encoded := encodeFrame(f)
	var header [4]byte
	binary.BigEndian.PutUint32(header[:], uint32(len(encoded)))

	idx := len(fl.index)
	fl.index = append(fl.index, frameIndexEntry{
		offset: len(fl.data),
		length: 4 + len(encoded),
		dts:    f.DTS,
		isKey:  f.Content == frame.ContentVideo && f.Kind == frame.KindKeyframe,
	})
	if fl.index[idx].isKey {
		fl.keyframes = append(fl.keyframes, idx)
	}

	fl.data = append(fl.data, header[:]...)
	fl.data = append(fl.data, encoded...)

	return fl.backing.Write(fl.path, fl.data)
}

// ReadFrame returns the frame at the given index key plus the key of its
// successor, or stream.ErrEOF once key addresses the end of the log.
func (fl *FrameLog) ReadFrame(key stream.StorageKey) (frame.Frame, stream.StorageKey, error) {
	fl.mu.Lock()
	defer fl.mu.Unlock()

	idx, ok := fl.indexOf(key)
	if !ok || idx >= len(fl.index) {
		return frame.Frame{}, "", stream.ErrEOF
	}
	entry := fl.index[idx]
	f, err := decodeFrame(fl.data[entry.offset+4 : entry.offset+entry.length])
	if err != nil {
		return frame.Frame{}, "", fmt.Errorf("decoding frame %d: %w", idx, err)
	}
	return f, indexKey(idx + 1), nil
}

// Seek resolves dts to the nearest keyframe: the first keyframe at or
// after dts, or the keyframe strictly before it if none is at or after.
func (fl *FrameLog) Seek(dts int64, _ stream.SeekOptions) (stream.StorageKey, int64, bool) {
	fl.mu.Lock()
	defer fl.mu.Unlock()

	if len(fl.keyframes) == 0 {
		return "", 0, false
	}
	for _, idx := range fl.keyframes {
		if fl.index[idx].dts >= dts {
			return indexKey(idx), fl.index[idx].dts, true
		}
	}
	last := fl.keyframes[len(fl.keyframes)-1]
	return indexKey(last), fl.index[last].dts, true
}

// Properties reports the log's total duration, the span between its
// first and last frame.
func (fl *FrameLog) Properties() stream.Properties {
	fl.mu.Lock()
	defer fl.mu.Unlock()

	if len(fl.index) == 0 {
		return stream.Properties{}
	}
	span := fl.index[len(fl.index)-1].dts - fl.index[0].dts
	return stream.Properties{Duration: time.Duration(span) * time.Millisecond}
}

func (fl *FrameLog) indexOf(key stream.StorageKey) (int, bool) {
	if key == "" {
		return 0, true
	}
	n, err := strconv.Atoi(string(key))
	return n, err == nil
}

func indexKey(idx int) stream.StorageKey { return stream.StorageKey(strconv.Itoa(idx)) }

func encodeFrame(f frame.Frame) []byte {
	var buf bytes.Buffer
	writeString(&buf, string(f.Content))
	writeString(&buf, string(f.Kind))
	writeString(&buf, f.Codec)
	writeInt64(&buf, f.DTS)
	writeInt64(&buf, f.PTS)
	writeString(&buf, f.StreamID)
	writeBytes(&buf, f.Body)
	return buf.Bytes()
}

func decodeFrame(b []byte) (frame.Frame, error) {
	r := bytes.NewReader(b)
	content, err := readString(r)
	if err != nil {
		return frame.Frame{}, err
	}
	kind, err := readString(r)
	if err != nil {
		return frame.Frame{}, err
	}
	codec, err := readString(r)
	if err != nil {
		return frame.Frame{}, err
	}
	dts, err := readInt64(r)
	if err != nil {
		return frame.Frame{}, err
	}
	pts, err := readInt64(r)
	if err != nil {
		return frame.Frame{}, err
	}
	streamID, err := readString(r)
	if err != nil {
		return frame.Frame{}, err
	}
	body, err := readBytes(r)
	if err != nil {
		return frame.Frame{}, err
	}
	return frame.Frame{
		Content:  frame.Content(content),
		Kind:     frame.Kind(kind),
		Codec:    codec,
		DTS:      dts,
		PTS:      pts,
		StreamID: streamID,
		Body:     body,
	}, nil
}

func writeString(buf *bytes.Buffer, s string) { writeBytes(buf, []byte(s)) }

func writeBytes(buf *bytes.Buffer, b []byte) {
	var length [4]byte
	binary.BigEndian.PutUint32(length[:], uint32(len(b)))
	buf.Write(length[:])
	buf.Write(b)
}

func writeInt64(buf *bytes.Buffer, v int64) {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], uint64(v))
	buf.Write(b[:])
}

func readString(r *bytes.Reader) (string, error) {
	b, err := readBytes(r)
	return string(b), err
}

func readBytes(r *bytes.Reader) ([]byte, error) {
	var length [4]byte
	if _, err := io.ReadFull(r, length[:]); err != nil {
		return nil, err
	}
	n := binary.BigEndian.Uint32(length[:])
	b := make([]byte, n)
	if _, err := io.ReadFull(r, b); err != nil {
		return nil, err
	}
	return b, nil
}

func readInt64(r *bytes.Reader) (int64, error) {
	var b [8]byte
	if _, err := io.ReadFull(r, b[:]); err != nil {
		return 0, err
	}
	return int64(binary.BigEndian.Uint64(b[:])), nil
}
