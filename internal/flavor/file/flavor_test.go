package file

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"streamcore/internal/storage"
	"streamcore/internal/stream"
)

func TestInitRequiresFilePathOption(t *testing.T) {
	f := Flavor{Backing: nil}
	_, err := f.Init(stream.StreamContext{Options: map[string]any{}})
	assert.Error(t, err)
}

func TestHandleControlSourceLostStopsTheActor(t *testing.T) {
	f := Flavor{}
	decision := f.HandleControl(stream.ControlEvent{Kind: stream.EventSourceLost}, stream.StreamContext{})
	assert.Equal(t, stream.Stop, decision.Kind)
}

func TestHandleControlOtherEventsAreNoReply(t *testing.T) {
	f := Flavor{}
	decision := f.HandleControl(stream.ControlEvent{Kind: stream.EventSetSource}, stream.StreamContext{})
	assert.Equal(t, stream.NoReply, decision.Kind)
}

func TestInitOpensFrameLogAtConfiguredPath(t *testing.T) {
	backing, err := storage.NewLocalStorage(t.TempDir())
	require.NoError(t, err)

	f := Flavor{Backing: backing}
	result, err := f.Init(stream.StreamContext{Options: map[string]any{pathOption: "streams/vod1.log"}})
	require.NoError(t, err)
	require.NotNil(t, result.Storage)
}
