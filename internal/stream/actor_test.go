package stream

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"streamcore/pkg/frame"
)

// recordingFlavor is a configurable test double implementing Flavor.
// Every callback is recorded so assertions can inspect call order and
// arguments without the test needing its own goroutine-safe bookkeeping.
type recordingFlavor struct {
	mu sync.Mutex

	initResult InitResult
	initErr    error

	onFrame   func(frame.Frame, StreamContext) FrameDecision
	onControl func(ControlEvent, StreamContext) Decision
	onInfo    func(any, StreamContext) Decision

	controls []ControlEvent
	infos    []any
}

func (f *recordingFlavor) Init(ctx StreamContext) (InitResult, error) {
	return f.initResult, f.initErr
}

func (f *recordingFlavor) HandleFrame(fr frame.Frame, ctx StreamContext) FrameDecision {
	if f.onFrame != nil {
		return f.onFrame(fr, ctx)
	}
	return FrameReplyWith(fr)
}

func (f *recordingFlavor) HandleControl(event ControlEvent, ctx StreamContext) Decision {
	f.mu.Lock()
	f.controls = append(f.controls, event)
	f.mu.Unlock()
	if f.onControl != nil {
		return f.onControl(event, ctx)
	}
	return NoReplyDecision()
}

func (f *recordingFlavor) HandleInfo(msg any, ctx StreamContext) Decision {
	f.mu.Lock()
	f.infos = append(f.infos, msg)
	f.mu.Unlock()
	if f.onInfo != nil {
		return f.onInfo(msg, ctx)
	}
	return NoReplyDecision()
}

func (f *recordingFlavor) recordedInfos() []any {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]any, len(f.infos))
	copy(out, f.infos)
	return out
}

func (f *recordingFlavor) recordedControls() []ControlEvent {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]ControlEvent, len(f.controls))
	copy(out, f.controls)
	return out
}

// collectingSink is a Sink that appends every pushed frame, for tests
// that assert on fan-out order and content.
type collectingSink struct {
	mu     sync.Mutex
	frames []frame.Frame
}

func (s *collectingSink) Push(f frame.Frame) {
	s.mu.Lock()
	s.frames = append(s.frames, f)
	s.mu.Unlock()
}

func (s *collectingSink) snapshot() []frame.Frame {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]frame.Frame, len(s.frames))
	copy(out, s.frames)
	return out
}

func videoFrame(dts int64, kind frame.Kind) frame.Frame {
	return frame.Frame{Content: frame.ContentVideo, Kind: kind, Codec: "h264", DTS: dts, PTS: dts, Body: []byte{0x01}}
}

func spawnTestActor(t *testing.T, flavor Flavor, opts Options) *Actor {
	t.Helper()
	a, err := Spawn(flavor, opts)
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = a.Stop(context.Background())
	})
	return a
}

func TestSubscribeStartActiveFanOut(t *testing.T) {
	a := spawnTestActor(t, &recordingFlavor{}, Options{})

	sink := &collectingSink{}
	id, err := a.Subscribe(context.Background(), sink, nil, SubscribeOptions{})
	require.NoError(t, err)
	require.NoError(t, a.Start(context.Background(), id))

	a.Publish(videoFrame(100, frame.KindKeyframe))

	require.Eventually(t, func() bool { return len(sink.snapshot()) == 1 }, time.Second, time.Millisecond)
	assert.Equal(t, int64(100), sink.snapshot()[0].DTS)
}

func TestPlaySubscribesAndStartsInOneCall(t *testing.T) {
	a := spawnTestActor(t, &recordingFlavor{}, Options{})

	sink := &collectingSink{}
	id, err := a.Play(context.Background(), sink, nil, SubscribeOptions{})
	require.NoError(t, err)

	a.Publish(videoFrame(100, frame.KindKeyframe))

	require.Eventually(t, func() bool { return len(sink.snapshot()) == 1 }, time.Second, time.Millisecond)
	assert.Equal(t, int64(100), sink.snapshot()[0].DTS)

	c, ok := a.clients.find(id)
	require.True(t, ok)
	assert.Equal(t, StateActive, c.state)
}

func TestStartingClientPrimedWithCachedConfigBeforeFirstFrame(t *testing.T) {
	// Audio is declared concrete (no audio track) so MediaInfo below
	// returns as soon as the video config is cached instead of blocking
	// on a track that never arrives.
	a := spawnTestActor(t, &recordingFlavor{}, Options{MediaInfo: &frame.MediaInfo{Audio: []frame.Track{}}})

	a.Publish(frame.Frame{Content: frame.ContentVideo, Kind: frame.KindConfig, Codec: "h264", Body: []byte{0xAA}})
	require.Eventually(t, func() bool {
		info, err := a.MediaInfo(context.Background())
		return err == nil && info.VideoWaiting() == false
	}, time.Second, time.Millisecond)

	sink := &collectingSink{}
	id, err := a.Subscribe(context.Background(), sink, nil, SubscribeOptions{})
	require.NoError(t, err)
	require.NoError(t, a.Start(context.Background(), id))

	a.Publish(videoFrame(10, frame.KindKeyframe))

	require.Eventually(t, func() bool { return len(sink.snapshot()) == 2 }, time.Second, time.Millisecond)
	got := sink.snapshot()
	assert.Equal(t, frame.KindConfig, got[0].Kind, "the cached config primes the starting client first")
	assert.Equal(t, frame.KindKeyframe, got[1].Kind)
}

func TestContentFilterDropsAudioWhenDisabled(t *testing.T) {
	a := spawnTestActor(t, &recordingFlavor{}, Options{})

	sink := &collectingSink{}
	noAudio := false
	id, err := a.Subscribe(context.Background(), sink, nil, SubscribeOptions{SendAudio: &noAudio})
	require.NoError(t, err)
	require.NoError(t, a.Start(context.Background(), id))

	a.Publish(frame.Frame{Content: frame.ContentAudio, Kind: frame.KindFrame, DTS: 1})
	a.Publish(videoFrame(2, frame.KindKeyframe))

	require.Eventually(t, func() bool { return len(sink.snapshot()) == 1 }, time.Second, time.Millisecond)
	assert.Equal(t, frame.ContentVideo, sink.snapshot()[0].Content)
}

func TestFrameNoReplyDropsFrame(t *testing.T) {
	flavor := &recordingFlavor{onFrame: func(f frame.Frame, ctx StreamContext) FrameDecision {
		return FrameDrop()
	}}
	a := spawnTestActor(t, flavor, Options{})

	sink := &collectingSink{}
	id, err := a.Subscribe(context.Background(), sink, nil, SubscribeOptions{})
	require.NoError(t, err)
	require.NoError(t, a.Start(context.Background(), id))

	a.Publish(videoFrame(1, frame.KindKeyframe))

	time.Sleep(50 * time.Millisecond)
	assert.Empty(t, sink.snapshot(), "FrameNoReply must drop the frame rather than dispatch it")
}

func TestPauseResumeRoundTrip(t *testing.T) {
	a := spawnTestActor(t, &recordingFlavor{}, Options{})

	sink := &collectingSink{}
	id, err := a.Subscribe(context.Background(), sink, nil, SubscribeOptions{})
	require.NoError(t, err)
	require.NoError(t, a.Start(context.Background(), id))

	require.NoError(t, a.Pause(context.Background(), id))
	a.Publish(videoFrame(1, frame.KindKeyframe))
	time.Sleep(30 * time.Millisecond)
	assert.Empty(t, sink.snapshot(), "paused client gets nothing")

	require.NoError(t, a.Resume(context.Background(), id))
	a.Publish(videoFrame(2, frame.KindKeyframe))
	require.Eventually(t, func() bool { return len(sink.snapshot()) == 1 }, time.Second, time.Millisecond)
}

func TestUnsubscribeTreatsUnknownIDAsNoop(t *testing.T) {
	a := spawnTestActor(t, &recordingFlavor{}, Options{})
	assert.NoError(t, a.Unsubscribe(context.Background(), NewClientID()))
}

func TestInfoRejectsUnknownKeys(t *testing.T) {
	a := spawnTestActor(t, &recordingFlavor{}, Options{})
	_, err := a.Info(context.Background(), []string{"client_count", "bogus"})
	require.Error(t, err)
	var badKey *ErrBadInfoKey
	require.ErrorAs(t, err, &badKey)
	assert.Equal(t, []string{"bogus"}, badKey.Keys)
}

func TestInfoClientCountTracksSubscriptions(t *testing.T) {
	a := spawnTestActor(t, &recordingFlavor{}, Options{})

	info, err := a.Info(context.Background(), []string{"client_count"})
	require.NoError(t, err)
	assert.Equal(t, 0, info["client_count"])

	_, err = a.Subscribe(context.Background(), &collectingSink{}, nil, SubscribeOptions{})
	require.NoError(t, err)

	info, err = a.Info(context.Background(), []string{"client_count"})
	require.NoError(t, err)
	assert.Equal(t, 1, info["client_count"])
}

func TestMediaInfoBlocksUntilBothTracksResolved(t *testing.T) {
	a := spawnTestActor(t, &recordingFlavor{}, Options{})

	resultCh := make(chan frame.MediaInfo, 1)
	go func() {
		info, err := a.MediaInfo(context.Background())
		require.NoError(t, err)
		resultCh <- info
	}()

	select {
	case <-resultCh:
		t.Fatal("media_info resolved before any config frame arrived")
	case <-time.After(50 * time.Millisecond):
	}

	a.Publish(frame.Frame{Content: frame.ContentVideo, Kind: frame.KindConfig, Codec: "h264"})
	a.Publish(frame.Frame{Content: frame.ContentAudio, Kind: frame.KindConfig, Codec: "aac"})

	select {
	case info := <-resultCh:
		assert.True(t, info.Ready())
	case <-time.After(time.Second):
		t.Fatal("media_info never resolved")
	}
}

func TestMediaInfoStopWaitResolvesToEmptyTracks(t *testing.T) {
	a := spawnTestActor(t, &recordingFlavor{}, Options{StopWaitForConfig: 20 * time.Millisecond})

	info, err := a.MediaInfo(context.Background())
	require.NoError(t, err)
	assert.True(t, info.Ready())
	assert.Empty(t, info.Video)
	assert.Empty(t, info.Audio)
}

func TestSourceLossGraceThenRecovery(t *testing.T) {
	flavor := &recordingFlavor{}
	a := spawnTestActor(t, flavor, Options{SourceTimeout: SourceTimeoutAfter(50 * time.Millisecond)})

	done := make(chan struct{})
	a.SetSource(Source{ID: "src-1", Done: done})
	time.Sleep(10 * time.Millisecond)
	close(done)

	require.Eventually(t, func() bool {
		for _, ev := range flavor.recordedControls() {
			if ev.Kind == EventSourceLost {
				return true
			}
		}
		return false
	}, time.Second, time.Millisecond)

	done2 := make(chan struct{})
	a.SetSource(Source{ID: "src-2", Done: done2})

	select {
	case <-a.Done():
		t.Fatal("actor terminated instead of recovering within its grace window")
	case <-time.After(100 * time.Millisecond):
	}
}

func TestSourceLossShutdownTerminatesWithoutGrace(t *testing.T) {
	a := spawnTestActor(t, &recordingFlavor{}, Options{SourceTimeout: SourceTimeoutShutdown()})

	done := make(chan struct{})
	a.SetSource(Source{ID: "src", Done: done})
	close(done)

	select {
	case <-a.Done():
	case <-time.After(time.Second):
		t.Fatal("actor with SourceTimeoutShutdown must stop immediately on source loss")
	}
}

func TestStopIsIdempotentAcrossConcurrentCallers(t *testing.T) {
	a := spawnTestActor(t, &recordingFlavor{}, Options{})

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = a.Stop(context.Background())
		}()
	}
	wg.Wait()

	select {
	case <-a.Done():
	case <-time.After(time.Second):
		t.Fatal("actor never reached done")
	}
}

func TestTransformFFDroppedFrameNeverFansOut(t *testing.T) {
	a := spawnTestActor(t, &recordingFlavor{}, Options{Transcoder: dropEveryOtherTranscoder{}})

	sink := &collectingSink{}
	id, err := a.Subscribe(context.Background(), sink, nil, SubscribeOptions{})
	require.NoError(t, err)
	require.NoError(t, a.Start(context.Background(), id))

	a.Publish(videoFrame(1, frame.KindKeyframe))
	a.Publish(videoFrame(2, frame.KindKeyframe))
	a.Publish(videoFrame(3, frame.KindKeyframe))

	require.Eventually(t, func() bool { return len(sink.snapshot()) == 2 }, time.Second, time.Millisecond)
}

// dropEveryOtherTranscoder drops every second frame it sees, exercising
// the transcoder-drop path at the top of handleFrame.
type dropEveryOtherTranscoder struct{}

func (dropEveryOtherTranscoder) Apply(state any, f frame.Frame) (any, frame.Frame, bool) {
	n, _ := state.(int)
	n++
	return n, f, n%2 != 0
}

// fakeStorage is a minimal Storage double, just enough to prove a
// TimeshiftFactory ran and to stand in for a flavor-installed format.
type fakeStorage struct{}

func (fakeStorage) ReadFrame(key StorageKey) (frame.Frame, StorageKey, error) {
	return frame.Frame{}, "", ErrEOF
}
func (fakeStorage) Seek(dts int64, opts SeekOptions) (StorageKey, int64, bool) { return "", 0, false }
func (fakeStorage) Properties() Properties                                    { return Properties{} }
func (fakeStorage) WriteFrame(f frame.Frame) error                            { return nil }

func TestSpawnRejectsTimeshiftWithNoFactoryConfigured(t *testing.T) {
	_, err := Spawn(&recordingFlavor{}, Options{Timeshift: 30 * time.Second})
	require.Error(t, err)
}

func TestSpawnInstallsStorageFromTimeshiftFactory(t *testing.T) {
	built := false
	opts := Options{
		Timeshift: 30 * time.Second,
		TimeshiftFactory: func(window time.Duration) Storage {
			built = true
			assert.Equal(t, 30*time.Second, window)
			return fakeStorage{}
		},
	}
	a := spawnTestActor(t, &recordingFlavor{}, opts)
	assert.True(t, built)
	assert.NotNil(t, a.storage)
}

func TestGlueDeltaFlagsDiscontinuityAfterLongSourceGap(t *testing.T) {
	a := spawnTestActor(t, &recordingFlavor{}, Options{GlueDeltaMS: 20})

	sink := &collectingSink{}
	id, err := a.Subscribe(context.Background(), sink, nil, SubscribeOptions{})
	require.NoError(t, err)
	require.NoError(t, a.Start(context.Background(), id))

	a.Publish(videoFrame(1, frame.KindKeyframe))
	require.Eventually(t, func() bool { return len(sink.snapshot()) == 1 }, time.Second, time.Millisecond)
	assert.False(t, sink.snapshot()[0].Discontinuous)

	done := make(chan struct{})
	a.SetSource(Source{ID: "src-2", Done: done})
	time.Sleep(40 * time.Millisecond) // exceeds the 20ms glue delta

	a.Publish(videoFrame(1000, frame.KindKeyframe))
	require.Eventually(t, func() bool { return len(sink.snapshot()) == 2 }, time.Second, time.Millisecond)
	assert.True(t, sink.snapshot()[1].Discontinuous, "a gap longer than glue_delta must flag a discontinuity")
}

func TestGlueDeltaDoesNotFlagShortSourceGap(t *testing.T) {
	a := spawnTestActor(t, &recordingFlavor{}, Options{GlueDeltaMS: 500})

	sink := &collectingSink{}
	id, err := a.Subscribe(context.Background(), sink, nil, SubscribeOptions{})
	require.NoError(t, err)
	require.NoError(t, a.Start(context.Background(), id))

	a.Publish(videoFrame(1, frame.KindKeyframe))
	require.Eventually(t, func() bool { return len(sink.snapshot()) == 1 }, time.Second, time.Millisecond)

	done := make(chan struct{})
	a.SetSource(Source{ID: "src-2", Done: done})

	a.Publish(videoFrame(1000, frame.KindKeyframe))
	require.Eventually(t, func() bool { return len(sink.snapshot()) == 2 }, time.Second, time.Millisecond)
	assert.False(t, sink.snapshot()[1].Discontinuous, "a gap shorter than glue_delta must not flag a discontinuity")
}

func TestSpawnRejectsTimeshiftCombinedWithFlavorInstalledStorage(t *testing.T) {
	flavor := &recordingFlavor{initResult: InitResult{Storage: fakeStorage{}}}
	opts := Options{
		Timeshift:        30 * time.Second,
		TimeshiftFactory: func(window time.Duration) Storage { return fakeStorage{} },
	}
	_, err := Spawn(flavor, opts)
	require.ErrorIs(t, err, ErrTimeshiftAndStorage)
}

func TestPostInfoInvokesFlavorHandleInfo(t *testing.T) {
	flavor := &recordingFlavor{}
	a := spawnTestActor(t, flavor, Options{})

	a.PostInfo("token-refreshed")

	require.Eventually(t, func() bool { return len(flavor.recordedInfos()) == 1 }, time.Second, time.Millisecond)
	assert.Equal(t, "token-refreshed", flavor.recordedInfos()[0])
}

func TestPostInfoStopTerminatesActor(t *testing.T) {
	flavor := &recordingFlavor{onInfo: func(any, StreamContext) Decision { return StopDecision(nil) }}
	a := spawnTestActor(t, flavor, Options{})

	a.PostInfo("fatal-token-error")

	select {
	case <-a.Done():
	case <-time.After(time.Second):
		t.Fatal("actor did not stop after PostInfo returned Stop")
	}
}
