package frame

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestWithStreamIDReturnsCopyLeavingOriginalUntouched(t *testing.T) {
	f := Frame{Body: []byte{1, 2, 3}}
	tagged := f.WithStreamID("client-a")

	assert.Equal(t, "client-a", tagged.StreamID)
	assert.Equal(t, "", f.StreamID)
}

func TestWithDTSShiftsBothTimestamps(t *testing.T) {
	f := Frame{DTS: 100, PTS: 120}
	shifted := f.WithDTS(200, 220)

	assert.Equal(t, int64(200), shifted.DTS)
	assert.Equal(t, int64(220), shifted.PTS)
	assert.Equal(t, int64(100), f.DTS, "original must be unmodified")
}

func TestIsConfigOnlyTrueForKindConfig(t *testing.T) {
	assert.True(t, Frame{Kind: KindConfig}.IsConfig())
	assert.False(t, Frame{Kind: KindKeyframe}.IsConfig())
	assert.False(t, Frame{Kind: KindFrame}.IsConfig())
}

func TestSizeReturnsBodyLength(t *testing.T) {
	assert.Equal(t, 3, Frame{Body: []byte{1, 2, 3}}.Size())
	assert.Equal(t, 0, Frame{}.Size())
}

func TestMediaInfoWaitingReflectsNilSlices(t *testing.T) {
	m := MediaInfo{}
	assert.True(t, m.AudioWaiting())
	assert.True(t, m.VideoWaiting())
	assert.False(t, m.Ready())

	m.Audio = []Track{}
	assert.False(t, m.AudioWaiting())
	assert.False(t, m.Ready(), "video still waiting")

	m.Video = []Track{{Codec: "h264"}}
	assert.True(t, m.Ready())
}

func TestResolvedFillsInEmptyTrackListsWithoutTouchingConcreteOnes(t *testing.T) {
	m := MediaInfo{Video: []Track{{Codec: "h264"}}}
	resolved := m.Resolved()

	assert.NotNil(t, resolved.Audio)
	assert.Empty(t, resolved.Audio)
	assert.Equal(t, "h264", resolved.Video[0].Codec)
}

func TestDefaultMediaInfoHasStreamFlowType(t *testing.T) {
	assert.Equal(t, "stream", DefaultMediaInfo().FlowType)
}
