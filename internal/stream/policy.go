package stream

import (
	"time"

	"streamcore/pkg/frame"
)

// sourceTimeoutKind distinguishes the shapes source_timeout may take
//: shutdown on loss, disabled (stay alive forever),
// or a grace period in milliseconds (0 behaves like shutdown). The zero
// value, sourceTimeoutUnset, marks a SourceTimeout nobody configured.
type sourceTimeoutKind int

const (
	sourceTimeoutUnset sourceTimeoutKind = iota
	sourceTimeoutShutdown
	sourceTimeoutDisabled
	sourceTimeoutGrace
)

// SourceTimeout is the immutable-after-init policy governing what happens
// when a stream's source is lost and the flavor doesn't supply a
// replacement.
type SourceTimeout struct {
	kind sourceTimeoutKind
	ms   int64
}

// SourceTimeoutShutdown terminates the actor as soon as the source is
// lost, without waiting on the flavor's handle_control reply to arm
// anything.
func SourceTimeoutShutdown() SourceTimeout { return SourceTimeout{kind: sourceTimeoutShutdown} }

// SourceTimeoutDisabled keeps the actor alive indefinitely with no
// source and no pending timer.
func SourceTimeoutDisabled() SourceTimeout { return SourceTimeout{kind: sourceTimeoutDisabled} }

// SourceTimeoutAfter arms a no_source grace timer for the given duration.
// A non-positive duration behaves like SourceTimeoutShutdown.
func SourceTimeoutAfter(d time.Duration) SourceTimeout {
	return SourceTimeout{kind: sourceTimeoutGrace, ms: d.Milliseconds()}
}

// DefaultSourceTimeout is the 60s grace period applied when a stream is
// configured with no explicit source timeout.
func DefaultSourceTimeout() SourceTimeout { return SourceTimeoutAfter(60 * time.Second) }

func (t SourceTimeout) immediate() bool {
	return t.kind == sourceTimeoutShutdown || (t.kind == sourceTimeoutGrace && t.ms <= 0)
}

func (t SourceTimeout) disabled() bool { return t.kind == sourceTimeoutDisabled }

func (t SourceTimeout) grace() time.Duration { return time.Duration(t.ms) * time.Millisecond }

// Options configure an Actor at spawn time.
type Options struct {
	Name, URL, Host, Type string
	MediaInfo              *frame.MediaInfo
	GlueDeltaMS            int64
	SourceTimeout          SourceTimeout
	ClientsTimeout         time.Duration
	RetryLimit             int
	Transcoder             Transcoder
	Raw                    map[string]any

	InactivityTimeout      time.Duration // default 120s
	StopWaitForConfig      time.Duration // default 5s
	GCHintInterval         time.Duration // default 30s when zero or negative

	// Timeshift, if positive, requests that the core install an
	// in-memory timeshift storage at spawn time via TimeshiftFactory.
	// Mutually exclusive with a flavor that installs its own storage
	// (InitResult.Storage) — Spawn rejects the combination with
	// ErrTimeshiftAndStorage rather than silently picking one.
	Timeshift time.Duration

	// TimeshiftFactory builds the storage Timeshift installs. Required
	// whenever Timeshift is positive; internal/stream has no storage
	// implementation of its own to fall back on (storage.NewTimeshift
	// would import this package, so the construction is injected
	// instead of imported).
	TimeshiftFactory func(window time.Duration) Storage

	// Hooks, if non-nil, receives observability callbacks the core
	// raises at externally visible transitions (source-loss changes,
	// media_info waiters). A nil Hooks is always safe to call into —
	// Actor only ever does so through the nil-checked helpers in
	// hooks.go.
	Hooks Hooks
}

// Hooks lets an embedder (internal/metrics, logging) observe actor
// internals without the stream package importing a metrics library
// itself — callbacks instead of scattered direct calls into a concrete
// observability package.
type Hooks interface {
	SourceLossTransition(state string)
	ConfigWaiters(n int)
	TickerLag(d time.Duration)
}
