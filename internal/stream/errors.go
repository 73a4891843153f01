package stream

import (
	"errors"
	"fmt"
)

// Sentinel errors the core raises or propagates.
var (
	// ErrUnknownRequest is fatal to the actor: a synchronous request
	// with a shape the dispatcher doesn't recognize.
	ErrUnknownRequest = errors.New("stream: unknown_request")

	// ErrTimeshiftAndStorage is fatal at init: the flavor installed a
	// storage adapter and the spawn options also asked for timeshift.
	ErrTimeshiftAndStorage = errors.New("stream: initialized_timeshift_and_storage")

	// ErrNoStorage is a local, non-fatal error: read_frame/seek against
	// a stream without a storage adapter.
	ErrNoStorage = errors.New("stream: no_storage")

	// ErrActorStopped is returned to any caller racing a terminated
	// actor.
	ErrActorStopped = errors.New("stream: actor stopped")

	// ErrAlreadySubscribed is returned when the same caller identity
	// subscribes twice.
	ErrAlreadySubscribed = errors.New("stream: already subscribed")

	// ErrClientNotFound is returned by operations addressing a client
	// id the registry doesn't hold.
	ErrClientNotFound = errors.New("stream: client not found")

	// ErrNotPassive is returned by seek/ticker operations against a
	// client that isn't in passive state.
	ErrNotPassive = errors.New("stream: client is not passive")
)

// ErrBadInfoKey is returned by Info when asked for a key it doesn't
// recognize.
type ErrBadInfoKey struct {
	Keys []string
}

func (e *ErrBadInfoKey) Error() string {
	return fmt.Sprintf("stream: badarg:info_keys %v", e.Keys)
}
