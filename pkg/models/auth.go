// Package models holds the wire types for the control-plane HTTP API:
// requests/responses for minting a publish token and for querying live
// stream state.
package models

import "time"

// PublishToken authorizes one RTMP publish to StreamKey, issued by
// internal/auth and checked by the RTMP flavor's connect handler.
type PublishToken struct {
	Token       string
	StreamKey   string
	CreatedAt   time.Time
	ExpiresAt   time.Time
	PublisherIP string
	IsUsed      bool
}

// IsValid reports whether the token is still unused and unexpired.
func (t *PublishToken) IsValid() bool {
	return !t.IsUsed && time.Now().Before(t.ExpiresAt)
}

// PublishRequest is the body of a request to mint a publish token.
type PublishRequest struct {
	StreamKey string `json:"streamKey" binding:"required"`
	ExpiresIn int    `json:"expiresIn"` // seconds; 0 means the store's default
}

// PublishResponse carries the minted token and the RTMP URL to publish
// to with it.
type PublishResponse struct {
	PublishURL string `json:"publishUrl"`
	StreamKey  string `json:"streamKey"`
	Token      string `json:"token"`
	ExpiresAt  string `json:"expiresAt"`
}

// StreamInfo is the control-plane's view of one live stream.
type StreamInfo struct {
	StreamKey  string         `json:"streamKey"`
	Active     bool           `json:"active"`
	State      string         `json:"state"`
	Viewers    int            `json:"viewers"`
	StartedAt  string         `json:"startedAt,omitempty"`
	Duration   int            `json:"duration,omitempty"` // seconds
	VideoCodec string         `json:"videoCodec,omitempty"`
	AudioCodec string         `json:"audioCodec,omitempty"`
	Resolution string         `json:"resolution,omitempty"` // e.g. "1920x1080"
	Bitrate    int            `json:"bitrate,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
}

// StreamListResponse is the body of a list-streams response.
type StreamListResponse struct {
	Streams []StreamInfo `json:"streams"`
	Total   int          `json:"total"`
}
