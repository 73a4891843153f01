// Package segmenter packages a running stream actor's frames into HLS
// segments, subscribing to the actor the way any other client would
// rather than reaching into its internals: a sliding-window playlist of
// MPEG-TS segments (no init segment is produced), with payloads muxed
// through internal/muxer rather than concatenated ad hoc.
package segmenter

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"streamcore/internal/metrics"
	"streamcore/internal/muxer"
	"streamcore/internal/storage"
	"streamcore/internal/stream"
	"streamcore/pkg/frame"
)

// Segment is one finalized HLS media segment's metadata.
type Segment struct {
	SequenceNum uint64
	Duration    time.Duration
	Path        string
	Size        int64
	CreatedAt   time.Time
}

// Segmenter packages one or more stream actors' frames into HLS
// segments, persisted through a blob Storage backend.
type Segmenter struct {
	backing storage.Storage
	mux     *muxer.FFmpegMuxer
	metrics *metrics.Metrics

	mu        sync.RWMutex
	playlists map[string]*playlistManager

	segmentDuration time.Duration
	maxSegments     int
}

// New creates a Segmenter persisting segments to backing.
func New(backing storage.Storage, segmentDuration time.Duration, maxSegments int, m *metrics.Metrics) *Segmenter {
	if segmentDuration <= 0 {
		segmentDuration = 2 * time.Second
	}
	if maxSegments <= 0 {
		maxSegments = 10
	}
	return &Segmenter{
		backing:         backing,
		mux:             muxer.NewFFmpegMuxer(),
		metrics:         m,
		playlists:       make(map[string]*playlistManager),
		segmentDuration: segmentDuration,
		maxSegments:     maxSegments,
	}
}

// Start subscribes to a's fan-out and begins segmenting name's frames as
// they arrive, until the actor's Done channel closes or Stop(name) is
// called.
func (s *Segmenter) Start(a *stream.Actor, name string) error {
	s.mu.Lock()
	if _, exists := s.playlists[name]; exists {
		s.mu.Unlock()
		return fmt.Errorf("segmenter: already segmenting %q", name)
	}
	pm := &playlistManager{
		name:           name,
		seg:            s,
		actor:          a,
		targetDuration: s.segmentDuration,
		maxSegments:    s.maxSegments,
		current:        newSegmentBuffer(),
	}
	s.playlists[name] = pm
	s.mu.Unlock()

	done := make(chan struct{})
	id, err := a.Play(context.Background(), stream.SinkFunc(pm.onFrame), done, stream.SubscribeOptions{StreamTag: "segmenter"})
	if err != nil {
		s.mu.Lock()
		delete(s.playlists, name)
		s.mu.Unlock()
		return fmt.Errorf("segmenter: play %q: %w", name, err)
	}
	pm.clientID = id

	go pm.tick(a.Done(), close1(done))
	return nil
}

// close1 returns a function that closes ch exactly once, used as the
// cleanup the playlist manager's ticker goroutine runs when the actor
// it's segmenting finishes.
func close1(ch chan struct{}) func() {
	var once sync.Once
	return func() { once.Do(func() { close(ch) }) }
}

// Stop ends segmentation for name.
func (s *Segmenter) Stop(name string) {
	s.mu.Lock()
	pm, exists := s.playlists[name]
	if exists {
		delete(s.playlists, name)
	}
	s.mu.Unlock()
	if exists {
		pm.stop()
	}
}

// Playlist returns the current M3U8 text for name.
func (s *Segmenter) Playlist(name string) (string, error) {
	s.mu.RLock()
	pm, exists := s.playlists[name]
	s.mu.RUnlock()
	if !exists {
		return "", fmt.Errorf("segmenter: %q is not being segmented", name)
	}
	return pm.generatePlaylist(), nil
}

// ReadSegment returns one media segment's bytes.
func (s *Segmenter) ReadSegment(name string, seq uint64) ([]byte, error) {
	return s.backing.Read(fmt.Sprintf("%s/segment_%d.ts", name, seq))
}

type segmentBuffer struct {
	mu          sync.Mutex
	frames      []frame.Frame
	hasKeyframe bool
	startedAt   time.Time
}

func newSegmentBuffer() *segmentBuffer {
	return &segmentBuffer{startedAt: time.Now()}
}

// playlistManager owns one stream's sliding window of segments.
type playlistManager struct {
	name           string
	seg            *Segmenter
	actor          *stream.Actor
	clientID       stream.ClientID
	mu             sync.RWMutex
	segments       []Segment
	targetDuration time.Duration
	maxSegments    int
	sequenceNumber uint64
	current        *segmentBuffer
	stopOnce       sync.Once
	stopped        chan struct{}
}

func (pm *playlistManager) onFrame(f frame.Frame) {
	pm.current.mu.Lock()
	if f.Content == frame.ContentVideo && f.Kind == frame.KindKeyframe {
		pm.current.hasKeyframe = true
	}
	pm.current.frames = append(pm.current.frames, f)
	pm.current.mu.Unlock()
}

// tick runs the segmentDuration-paced finalize loop until the actor's
// Done channel closes, then unsubscribes.
func (pm *playlistManager) tick(actorDone <-chan struct{}, cleanup func()) {
	defer cleanup()

	ticker := time.NewTicker(pm.targetDuration)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			pm.finalizeSegment()
		case <-actorDone:
			pm.finalizeSegment()
			return
		case <-pm.stopChan():
			return
		}
	}
}

func (pm *playlistManager) stopChan() <-chan struct{} {
	pm.mu.Lock()
	defer pm.mu.Unlock()
	if pm.stopped == nil {
		pm.stopped = make(chan struct{})
	}
	return pm.stopped
}

func (pm *playlistManager) stop() {
	pm.stopOnce.Do(func() {
		pm.stopChan()
		pm.mu.Lock()
		close(pm.stopped)
		pm.mu.Unlock()
		if pm.actor != nil {
			_ = pm.actor.Unsubscribe(context.Background(), pm.clientID)
		}
	})
}

func (pm *playlistManager) finalizeSegment() {
	pm.current.mu.Lock()
	frames := pm.current.frames
	hasKeyframe := pm.current.hasKeyframe
	pm.current.mu.Unlock()

	if len(frames) == 0 || !hasKeyframe {
		return
	}

	data, err := pm.seg.mux.CreateMediaSegment(frames)
	if err != nil {
		log.Printf("segmenter: muxing %q segment: %v", pm.name, err)
		pm.current = newSegmentBuffer()
		return
	}

	pm.mu.Lock()
	seqNum := pm.sequenceNumber
	pm.sequenceNumber++
	path := fmt.Sprintf("%s/segment_%d.ts", pm.name, seqNum)
	pm.mu.Unlock()

	if err := pm.seg.backing.Write(path, data); err != nil {
		log.Printf("segmenter: writing %q segment %d: %v", pm.name, seqNum, err)
		pm.current = newSegmentBuffer()
		return
	}

	seg := Segment{
		SequenceNum: seqNum,
		Duration:    pm.targetDuration,
		Path:        path,
		Size:        int64(len(data)),
		CreatedAt:   time.Now(),
	}

	pm.mu.Lock()
	pm.segments = append(pm.segments, seg)
	var evicted *Segment
	if len(pm.segments) > pm.maxSegments {
		e := pm.segments[0]
		evicted = &e
		pm.segments = pm.segments[1:]
	}
	pm.mu.Unlock()

	if evicted != nil {
		go pm.seg.backing.Delete(evicted.Path)
		if pm.seg.metrics != nil {
			pm.seg.metrics.RecordSegmentDeleted()
		}
	}
	if pm.seg.metrics != nil {
		pm.seg.metrics.RecordSegment(pm.targetDuration.Seconds(), seg.Size)
	}

	pm.current = newSegmentBuffer()
}

func (pm *playlistManager) generatePlaylist() string {
	pm.mu.RLock()
	defer pm.mu.RUnlock()

	out := "#EXTM3U\n#EXT-X-VERSION:7\n"
	out += fmt.Sprintf("#EXT-X-TARGETDURATION:%d\n", int(pm.targetDuration.Seconds()))

	if len(pm.segments) > 0 {
		out += fmt.Sprintf("#EXT-X-MEDIA-SEQUENCE:%d\n", pm.segments[0].SequenceNum)
	} else {
		out += "#EXT-X-MEDIA-SEQUENCE:0\n"
	}

	for _, seg := range pm.segments {
		out += fmt.Sprintf("#EXTINF:%.3f,\nsegment_%d.ts\n", seg.Duration.Seconds(), seg.SequenceNum)
	}

	return out
}
