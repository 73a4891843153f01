package metrics

import (
	"time"

	"streamcore/internal/stream"
)

// StreamHooks adapts Metrics to stream.Hooks, the interface Actor calls
// into for every observability point it marks externally visible. Kept
// in this package rather than internal/stream so the actor core has no
// direct dependency on Prometheus.
type StreamHooks struct {
	M *Metrics
}

var _ stream.Hooks = StreamHooks{}

func (h StreamHooks) SourceLossTransition(state string) {
	h.M.RecordSourceLossTransition(state)
}

func (h StreamHooks) ConfigWaiters(n int) {
	h.M.ConfigWaiters.Set(float64(n))
}

func (h StreamHooks) TickerLag(d time.Duration) {
	h.M.TickerLag.Observe(d.Seconds())
}
