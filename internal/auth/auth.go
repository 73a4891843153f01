// Package auth issues and validates the short-lived publish tokens that
// gate who may start a new stream actor over RTMP.
package auth

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"sync"
	"time"

	"streamcore/pkg/models"
)

// TokenStore holds outstanding publish tokens and reaps expired ones on
// a single background sweep rather than one timer per token.
type TokenStore struct {
	mu     sync.RWMutex
	tokens map[string]*models.PublishToken

	defaultExpiration time.Duration
	maxExpiration     time.Duration

	sweepInterval time.Duration
	stopSweep     chan struct{}
	sweepOnce     sync.Once
}

// New creates a TokenStore and starts its background sweep goroutine.
func New() *TokenStore {
	s := &TokenStore{
		tokens:            make(map[string]*models.PublishToken),
		defaultExpiration: time.Hour,
		maxExpiration:     24 * time.Hour,
		sweepInterval:     time.Minute,
		stopSweep:         make(chan struct{}),
	}
	go s.sweepLoop()
	return s
}

func (s *TokenStore) sweepLoop() {
	t := time.NewTicker(s.sweepInterval)
	defer t.Stop()
	for {
		select {
		case <-t.C:
			s.CleanupExpiredTokens()
		case <-s.stopSweep:
			return
		}
	}
}

// Close stops the background sweep. Safe to call more than once.
func (s *TokenStore) Close() {
	s.sweepOnce.Do(func() { close(s.stopSweep) })
}

// GeneratePublishToken mints a token authorizing one publish to
// streamKey, expiring after expiresIn seconds (or the store's default
// if expiresIn is zero), capped at the store's max expiration.
func (s *TokenStore) GeneratePublishToken(streamKey string, expiresIn int, publisherIP string) (*models.PublishToken, error) {
	raw := make([]byte, 32)
	if _, err := rand.Read(raw); err != nil {
		return nil, fmt.Errorf("auth: generating token: %w", err)
	}

	expiration := s.defaultExpiration
	if expiresIn > 0 {
		expiration = time.Duration(expiresIn) * time.Second
	}
	if expiration > s.maxExpiration {
		expiration = s.maxExpiration
	}

	now := time.Now()
	token := &models.PublishToken{
		Token:       hex.EncodeToString(raw),
		StreamKey:   streamKey,
		CreatedAt:   now,
		ExpiresAt:   now.Add(expiration),
		PublisherIP: publisherIP,
	}

	s.mu.Lock()
	s.tokens[token.Token] = token
	s.mu.Unlock()

	return token, nil
}

// ValidateToken reports whether tokenString authorizes a publish to
// streamKey right now. It does not consult publisherIP: RapidRTMP's
// original IP pinning broke behind NAT and reverse proxies in practice,
// so this store only binds a token to the stream key it was issued for.
func (s *TokenStore) ValidateToken(tokenString string, streamKey string, publisherIP string) error {
	s.mu.RLock()
	token, exists := s.tokens[tokenString]
	s.mu.RUnlock()

	if !exists {
		return fmt.Errorf("auth: unknown token")
	}
	if !token.IsValid() {
		return fmt.Errorf("auth: token expired or already used")
	}
	if token.StreamKey != streamKey {
		return fmt.Errorf("auth: token not valid for stream %q", streamKey)
	}
	return nil
}

// MarkTokenUsed flags a token as consumed so it cannot authorize a
// second publish.
func (s *TokenStore) MarkTokenUsed(tokenString string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if token, ok := s.tokens[tokenString]; ok {
		token.IsUsed = true
	}
}

// RevokeToken immediately invalidates a token.
func (s *TokenStore) RevokeToken(tokenString string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.tokens, tokenString)
}

// CleanupExpiredTokens drops every token past its expiration. Called by
// the background sweep; exported so tests can trigger a sweep on demand
// without waiting on the ticker.
func (s *TokenStore) CleanupExpiredTokens() {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now()
	for tokenString, token := range s.tokens {
		if now.After(token.ExpiresAt) {
			delete(s.tokens, tokenString)
		}
	}
}

// TokenCount returns the number of tokens currently held, used and
// unused alike.
func (s *TokenStore) TokenCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.tokens)
}
