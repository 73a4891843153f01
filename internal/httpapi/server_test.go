package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"streamcore/internal/auth"
	"streamcore/internal/registry"
	"streamcore/internal/segmenter"
	"streamcore/internal/storage"
	"streamcore/internal/stream"
	"streamcore/pkg/frame"
	"streamcore/pkg/models"
)

func init() {
	gin.SetMode(gin.TestMode)
}

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

func newTestServer(t *testing.T) (*Server, *registry.Registry, *segmenter.Segmenter) {
	t.Helper()
	backing, err := storage.NewLocalStorage(t.TempDir())
	require.NoError(t, err)

	reg := registry.New()
	authMgr := auth.New()
	seg := segmenter.New(backing, time.Hour, 5, nil)
	s := New(reg, authMgr, seg, nil, "rtmp://localhost:1935")
	return s, reg, seg
}

func TestHandlePingReturnsPong(t *testing.T) {
	s, _, _ := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/api/ping", nil)
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "pong", body["message"])
}

func TestHandlePublishIssuesTokenAndURL(t *testing.T) {
	s, _, _ := newTestServer(t)
	reqBody, _ := json.Marshal(models.PublishRequest{StreamKey: "mystream", ExpiresIn: 60})
	req := httptest.NewRequest(http.MethodPost, "/api/v1/publish", bytes.NewReader(reqBody))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp models.PublishResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "mystream", resp.StreamKey)
	assert.NotEmpty(t, resp.Token)
	assert.Contains(t, resp.PublishURL, resp.Token)
}

func TestHandlePublishRejectsMissingStreamKey(t *testing.T) {
	s, _, _ := newTestServer(t)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/publish", bytes.NewReader([]byte(`{}`)))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleGetStreamReturnsNotFoundForUnknownName(t *testing.T) {
	s, _, _ := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/api/v1/streams/ghost", nil)
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHandleListStreamsReflectsRegistry(t *testing.T) {
	s, reg, _ := newTestServer(t)
	a, err := reg.Spawn("live1", passthroughFlavor{}, stream.Options{})
	require.NoError(t, err)
	defer a.Stop(context.Background())

	req := httptest.NewRequest(http.MethodGet, "/api/v1/streams", nil)
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp models.StreamListResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, 1, resp.Total)
	assert.Equal(t, "live1", resp.Streams[0].StreamKey)
}

func TestHandleStopStreamStopsTheActorAndRemovesIt(t *testing.T) {
	s, reg, _ := newTestServer(t)
	_, err := reg.Spawn("stopme", passthroughFlavor{}, stream.Options{})
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/streams/stopme/stop", nil)
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Eventually(t, func() bool {
		_, ok := reg.Get("stopme")
		return !ok
	}, time.Second, time.Millisecond, "a stopped stream must leave the registry")
}

func TestHandlePlaylistReturnsNotFoundWhenStreamUnknown(t *testing.T) {
	s, _, _ := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/live/ghost/index.m3u8", nil)
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHandlePlaylistReturnsPlaylistWhenSegmenting(t *testing.T) {
	s, reg, seg := newTestServer(t)
	a, err := reg.Spawn("playlisted", passthroughFlavor{}, stream.Options{})
	require.NoError(t, err)
	defer a.Stop(context.Background())
	require.NoError(t, seg.Start(a, "playlisted"))
	defer seg.Stop("playlisted")

	req := httptest.NewRequest(http.MethodGet, "/live/playlisted/index.m3u8", nil)
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "#EXTM3U")
}

func TestHandleMediaSegmentRejectsNonTSSuffix(t *testing.T) {
	s, _, _ := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/live/name/segment_0.txt", nil)
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHandleMediaSegmentRejectsUnparsableSequenceNumber(t *testing.T) {
	s, _, _ := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/live/name/segment_abc.ts", nil)
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleMediaSegmentServesBytesFromBacking(t *testing.T) {
	backing, err := storage.NewLocalStorage(t.TempDir())
	require.NoError(t, err)
	require.NoError(t, backing.Write("withseg/segment_2.ts", []byte("tsbytes")))

	reg := registry.New()
	authMgr := auth.New()
	seg := segmenter.New(backing, time.Hour, 5, nil)
	s := New(reg, authMgr, seg, nil, "rtmp://localhost:1935")

	req := httptest.NewRequest(http.MethodGet, "/live/withseg/segment_2.ts", nil)
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "tsbytes", rec.Body.String())
}
