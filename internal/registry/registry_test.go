package registry

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"streamcore/internal/stream"
	"streamcore/pkg/frame"
)

type passthroughFlavor struct{}

func (passthroughFlavor) Init(ctx stream.StreamContext) (stream.InitResult, error) {
	return stream.InitResult{}, nil
}

func (passthroughFlavor) HandleFrame(f frame.Frame, ctx stream.StreamContext) stream.FrameDecision {
	return stream.FrameReplyWith(f)
}

func (passthroughFlavor) HandleControl(event stream.ControlEvent, ctx stream.StreamContext) stream.Decision {
	return stream.NoReplyDecision()
}

func (passthroughFlavor) HandleInfo(msg any, ctx stream.StreamContext) stream.Decision {
	return stream.NoReplyDecision()
}

func TestSpawnRegistersAndGetFindsIt(t *testing.T) {
	r := New()
	a, err := r.Spawn("alpha", passthroughFlavor{}, stream.Options{})
	require.NoError(t, err)
	defer a.Stop(context.Background())

	got, ok := r.Get("alpha")
	require.True(t, ok)
	assert.Same(t, a, got)
	assert.Equal(t, 1, r.Count())
}

func TestSpawnRejectsDuplicateLiveName(t *testing.T) {
	r := New()
	a, err := r.Spawn("alpha", passthroughFlavor{}, stream.Options{})
	require.NoError(t, err)
	defer a.Stop(context.Background())

	_, err = r.Spawn("alpha", passthroughFlavor{}, stream.Options{})
	assert.Error(t, err)
}

func TestSpawnAfterStopReplacesEntry(t *testing.T) {
	r := New()
	a, err := r.Spawn("alpha", passthroughFlavor{}, stream.Options{})
	require.NoError(t, err)
	require.NoError(t, a.Stop(context.Background()))

	require.Eventually(t, func() bool {
		_, ok := r.Get("alpha")
		return !ok
	}, time.Second, time.Millisecond, "registry should drop a terminated actor")

	b, err := r.Spawn("alpha", passthroughFlavor{}, stream.Options{})
	require.NoError(t, err)
	defer b.Stop(context.Background())
	assert.NotSame(t, a, b)
}

func TestNamesReflectsLiveStreams(t *testing.T) {
	r := New()
	a, err := r.Spawn("alpha", passthroughFlavor{}, stream.Options{})
	require.NoError(t, err)
	defer a.Stop(context.Background())
	b, err := r.Spawn("beta", passthroughFlavor{}, stream.Options{})
	require.NoError(t, err)
	defer b.Stop(context.Background())

	assert.ElementsMatch(t, []string{"alpha", "beta"}, r.Names())
}
