// Package httpapi is the control-plane HTTP server: publish-token
// issuance, stream introspection, and HLS playback routes. Stream state
// is read through Actor.Info rather than a struct field, so the HTTP
// layer never touches actor internals directly.
package httpapi

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"streamcore/internal/auth"
	"streamcore/internal/metrics"
	"streamcore/internal/registry"
	"streamcore/internal/segmenter"
	"streamcore/internal/stream"
	"streamcore/pkg/models"
)

// Server is the gin-based control plane.
type Server struct {
	router     *gin.Engine
	registry   *registry.Registry
	auth       *auth.TokenStore
	segmenter  *segmenter.Segmenter
	metrics    *metrics.Metrics
	rtmpPublic string
}

// New creates the control-plane HTTP server.
func New(reg *registry.Registry, authMgr *auth.TokenStore, seg *segmenter.Segmenter, m *metrics.Metrics, rtmpPublicAddr string) *Server {
	s := &Server{
		registry:   reg,
		auth:       authMgr,
		segmenter:  seg,
		metrics:    m,
		rtmpPublic: rtmpPublicAddr,
	}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	router := gin.Default()
	if s.metrics != nil {
		router.Use(s.metricsMiddleware())
	}

	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := router.Group("/api")
	{
		api.GET("/ping", s.handlePing)
		api.POST("/v1/publish", s.handlePublish)
		api.GET("/v1/streams", s.handleListStreams)
		api.GET("/v1/streams/:name", s.handleGetStream)
		api.POST("/v1/streams/:name/stop", s.handleStopStream)
	}

	live := router.Group("/live")
	{
		live.GET("/:name/index.m3u8", s.handlePlaylist)
		live.GET("/:name/:segment", s.handleMediaSegment)
	}

	s.router = router
}

// Run starts the HTTP server and blocks.
func (s *Server) Run(addr string) error {
	return s.router.Run(addr)
}

func (s *Server) metricsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.metrics.RecordHTTPRequest(c.Request.Method, c.FullPath(), c.Writer.Status(), time.Since(start).Seconds())
	}
}

func (s *Server) handlePing(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"message": "pong", "time": time.Now().Unix()})
}

func (s *Server) handlePublish(c *gin.Context) {
	var req models.PublishRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.ExpiresIn == 0 {
		req.ExpiresIn = 3600
	}

	token, err := s.auth.GeneratePublishToken(req.StreamKey, req.ExpiresIn, c.ClientIP())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to generate token"})
		return
	}

	publishURL := fmt.Sprintf("%s/%s?token=%s", s.rtmpPublic, req.StreamKey, token.Token)
	c.JSON(http.StatusOK, models.PublishResponse{
		PublishURL: publishURL,
		StreamKey:  req.StreamKey,
		Token:      token.Token,
		ExpiresAt:  token.ExpiresAt.Format(time.RFC3339),
	})
}

func (s *Server) handleListStreams(c *gin.Context) {
	names := s.registry.Names()
	infos := make([]models.StreamInfo, 0, len(names))
	for _, name := range names {
		a, ok := s.registry.Get(name)
		if !ok {
			continue
		}
		infos = append(infos, s.streamToInfo(name, a))
	}
	c.JSON(http.StatusOK, models.StreamListResponse{Streams: infos, Total: len(infos)})
}

func (s *Server) handleGetStream(c *gin.Context) {
	name := c.Param("name")
	a, ok := s.registry.Get(name)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "stream not found"})
		return
	}
	c.JSON(http.StatusOK, s.streamToInfo(name, a))
}

func (s *Server) handleStopStream(c *gin.Context) {
	name := c.Param("name")
	a, ok := s.registry.Get(name)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "stream not found"})
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()
	if err := a.Stop(ctx); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "stream stopped", "name": name})
}

func (s *Server) handlePlaylist(c *gin.Context) {
	name := c.Param("name")
	if _, ok := s.registry.Get(name); !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "stream not found"})
		return
	}

	playlist, err := s.segmenter.Playlist(name)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "playlist not available"})
		return
	}

	c.Header("Cache-Control", "no-cache, no-store, must-revalidate")
	c.Header("Access-Control-Allow-Origin", "*")
	c.Data(http.StatusOK, "application/vnd.apple.mpegurl", []byte(playlist))
}

func (s *Server) handleMediaSegment(c *gin.Context) {
	name := c.Param("name")
	segmentParam := c.Param("segment")

	if !strings.HasSuffix(segmentParam, ".ts") {
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
		return
	}
	segNumStr := strings.TrimSuffix(strings.TrimPrefix(segmentParam, "segment_"), ".ts")
	segNum, err := strconv.ParseUint(segNumStr, 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid segment number"})
		return
	}

	data, err := s.segmenter.ReadSegment(name, segNum)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "segment not found"})
		return
	}

	c.Header("Cache-Control", "public, max-age=60")
	c.Header("Access-Control-Allow-Origin", "*")
	c.Data(http.StatusOK, "video/mp2t", data)
}

func (s *Server) streamToInfo(name string, a *stream.Actor) models.StreamInfo {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	info := models.StreamInfo{StreamKey: name, Active: true, State: "live"}
	fields, err := a.Info(ctx, []string{"client_count", "created_at", "type"})
	if err != nil {
		return info
	}
	if v, ok := fields["client_count"].(int); ok {
		info.Viewers = v
	}
	if t, ok := fields["created_at"].(time.Time); ok && !t.IsZero() {
		info.StartedAt = t.Format(time.RFC3339)
		info.Duration = int(time.Since(t).Seconds())
	}
	return info
}
