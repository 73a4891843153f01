package rtmp

import (
	"fmt"
	"io"
	"log"
	"net"
	"strings"
	"sync"

	"github.com/yutopp/go-rtmp"
	rtmpmsg "github.com/yutopp/go-rtmp/message"

	"streamcore/internal/auth"
	"streamcore/internal/metrics"
	"streamcore/internal/muxer"
	"streamcore/internal/registry"
	"streamcore/internal/stream"
	"streamcore/pkg/frame"
)

// Server is the RTMP ingest listener: one registry-backed actor per
// published stream key, demuxing FLV/AVCC into frame.Frame and injecting
// it via Actor.Publish.
type Server struct {
	addr     string
	registry *registry.Registry
	auth     *auth.TokenStore
	flavor   func() Flavor
	opts     stream.Options
	metrics  *metrics.Metrics
	onSpawn  func(a *stream.Actor, name string)

	server *rtmp.Server
}

// New creates an RTMP ingest server. optsTemplate supplies the per-actor
// defaults (source_timeout, inactivity, timeshift, ...) applied to every
// spawned stream; flavorFactory builds a fresh Flavor for each publish.
// onSpawn, if non-nil, runs right after a publish successfully spawns a
// new actor — main wires it to the HLS segmenter so every published
// stream gets packaged without this package importing internal/segmenter
// itself.
func New(addr string, reg *registry.Registry, authMgr *auth.TokenStore, m *metrics.Metrics, optsTemplate stream.Options, flavorFactory func() Flavor, onSpawn func(a *stream.Actor, name string)) *Server {
	s := &Server{
		addr:     addr,
		registry: reg,
		auth:     authMgr,
		flavor:   flavorFactory,
		opts:     optsTemplate,
		metrics:  m,
		onSpawn:  onSpawn,
	}
	s.server = rtmp.NewServer(&rtmp.ServerConfig{OnConnect: s.onConnect})
	return s
}

// ListenAndServe starts the RTMP ingest listener and blocks.
func (s *Server) ListenAndServe() error {
	listener, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("rtmp: listen on %s: %w", s.addr, err)
	}
	log.Printf("rtmp: ingest listening on %s", s.addr)
	return s.server.Serve(listener)
}

// Close shuts the RTMP listener down.
func (s *Server) Close() error {
	if s.server != nil {
		return s.server.Close()
	}
	return nil
}

func (s *Server) onConnect(conn net.Conn) (io.ReadWriteCloser, *rtmp.ConnConfig) {
	if s.metrics != nil {
		s.metrics.RecordRTMPConnection()
	}
	h := &connHandler{server: s, conn: conn}
	return conn, &rtmp.ConnConfig{
		Handler: h,
		ControlState: rtmp.StreamControlStateConfig{
			DefaultBandwidthWindowSize: 6 * 1024 * 1024,
		},
	}
}

// connHandler handles one RTMP connection's lifecycle: publish auth,
// FLV/AVCC demuxing, and actor injection.
type connHandler struct {
	rtmp.DefaultHandler

	server *Server
	conn   net.Conn

	mu         sync.RWMutex
	streamKey  string
	actor      *stream.Actor
	sourceDone chan struct{}
	sps, pps   [][]byte
	naluLength int
}

func (h *connHandler) OnConnect(timestamp uint32, cmd *rtmpmsg.NetConnectionConnect) error {
	return nil
}

func (h *connHandler) OnCreateStream(timestamp uint32, cmd *rtmpmsg.NetConnectionCreateStream) error {
	return nil
}

func (h *connHandler) OnPublish(ctx *rtmp.StreamContext, timestamp uint32, cmd *rtmpmsg.NetStreamPublish) error {
	streamKey, token := parseStreamKeyAndToken(cmd.PublishingName)

	if h.server.auth != nil {
		clientIP := h.conn.RemoteAddr().String()
		if err := h.server.auth.ValidateToken(token, streamKey, clientIP); err != nil {
			if h.server.metrics != nil {
				h.server.metrics.RecordRTMPError()
			}
			return fmt.Errorf("rtmp: publish auth failed for %q: %w", streamKey, err)
		}
		h.server.auth.MarkTokenUsed(token)
	}

	a, err := h.server.registry.Spawn(streamKey, h.server.flavor(), h.server.opts)
	if err != nil {
		return fmt.Errorf("rtmp: spawn stream %q: %w", streamKey, err)
	}

	h.mu.Lock()
	h.streamKey = streamKey
	h.actor = a
	h.sourceDone = make(chan struct{})
	h.mu.Unlock()

	a.SetSource(stream.Source{ID: streamKey, Done: h.sourceDone})

	if h.server.onSpawn != nil {
		h.server.onSpawn(a, streamKey)
	}

	log.Printf("rtmp: stream %q live from %s", streamKey, h.conn.RemoteAddr())
	return nil
}

func (h *connHandler) OnSetDataFrame(timestamp uint32, data *rtmpmsg.NetStreamSetDataFrame) error {
	return nil
}

func (h *connHandler) OnAudio(timestamp uint32, payload io.Reader) error {
	h.mu.RLock()
	a := h.actor
	h.mu.RUnlock()
	if a == nil {
		return nil
	}

	buf := make([]byte, 4096)
	n, err := payload.Read(buf)
	if err != nil && err != io.EOF {
		return err
	}
	if n == 0 {
		return nil
	}

	a.Publish(frame.Frame{
		Content: frame.ContentAudio,
		Kind:    frame.KindFrame,
		Codec:   "aac",
		DTS:     int64(timestamp),
		PTS:     int64(timestamp),
		Body:    append([]byte(nil), buf[:n]...),
	})
	if h.server.metrics != nil {
		h.server.metrics.RecordFrame(h.streamKeySnapshot(), false, n)
	}
	return nil
}

func (h *connHandler) OnVideo(timestamp uint32, payload io.Reader) error {
	h.mu.RLock()
	a := h.actor
	h.mu.RUnlock()
	if a == nil {
		return nil
	}

	buf := make([]byte, 65536)
	n, err := payload.Read(buf)
	if err != nil && err != io.EOF {
		return err
	}
	if n == 0 {
		return nil
	}

	isSeq, isKey, avcData, err := muxer.ParseFLVVideoPacket(buf[:n])
	if err != nil {
		return nil
	}

	if isSeq {
		cfg, err := muxer.ParseAVCDecoderConfigurationRecord(avcData)
		if err != nil {
			return nil
		}
		h.mu.Lock()
		h.sps, h.pps, h.naluLength = cfg.SPS, cfg.PPS, int(cfg.NALUnitLength)
		h.mu.Unlock()

		var cfgBody []byte
		for _, s := range cfg.SPS {
			cfgBody = append(cfgBody, s...)
		}
		for _, p := range cfg.PPS {
			cfgBody = append(cfgBody, p...)
		}
		a.Publish(frame.Frame{
			Content: frame.ContentVideo,
			Kind:    frame.KindConfig,
			Codec:   "h264",
			DTS:     int64(timestamp),
			PTS:     int64(timestamp),
			Body:    cfgBody,
		})
		return nil
	}

	annexB, err := muxer.ConvertAVCCFrameToAnnexB(avcData, h.naluLengthSnapshot())
	if err != nil {
		annexB = avcData
	}

	body := annexB
	if isKey {
		h.mu.RLock()
		sps, pps := h.sps, h.pps
		h.mu.RUnlock()
		if len(sps) > 0 && len(pps) > 0 {
			body = muxer.PrependSPSPPSAnnexB(annexB, sps, pps)
		}
	}

	kind := frame.KindFrame
	if isKey {
		kind = frame.KindKeyframe
	}
	a.Publish(frame.Frame{
		Content: frame.ContentVideo,
		Kind:    kind,
		Codec:   "h264",
		DTS:     int64(timestamp),
		PTS:     int64(timestamp),
		Body:    body,
	})
	if h.server.metrics != nil {
		h.server.metrics.RecordFrame(h.streamKeySnapshot(), true, n)
		if isKey {
			h.server.metrics.RecordKeyFrame()
		}
	}
	return nil
}

func (h *connHandler) OnClose() {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.server.metrics != nil {
		h.server.metrics.RecordRTMPDisconnect()
	}
	if h.sourceDone != nil {
		close(h.sourceDone)
		h.sourceDone = nil
	}
	h.actor = nil
}

func (h *connHandler) streamKeySnapshot() string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.streamKey
}

func (h *connHandler) naluLengthSnapshot() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.naluLength == 0 {
		return 4
	}
	return h.naluLength
}

func parseStreamKeyAndToken(publishingName string) (streamKey, token string) {
	idx := strings.IndexByte(publishingName, '?')
	if idx < 0 {
		return publishingName, ""
	}
	streamKey = publishingName[:idx]
	query := publishingName[idx+1:]
	if strings.HasPrefix(query, "token=") {
		token = query[len("token="):]
	}
	return
}
