// Package auth manages OAuth2 client-credentials tokens for the
// registry API. Token requests go straight to the token endpoint with
// their own short-lived client; they are not routed through the
// gateway and never count against the registry circuit.
package auth

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
	"golang.org/x/sync/singleflight"
)

const (
	// expiryMargin renews tokens this long before their stated expiry
	// so a token never goes stale mid-request.
	expiryMargin = 300 * time.Second

	tokenTimeout = 30 * time.Second
)

// Config carries the client-credentials grant parameters.
type Config struct {
	TokenURL     string
	ClientID     string
	ClientSecret string
	Scope        string
}

// TokenManager caches a bearer token and refreshes it on demand.
// Concurrent callers needing a refresh share a single token request.
type TokenManager struct {
	cc     clientcredentials.Config
	client *http.Client
	margin time.Duration
	group  singleflight.Group
	now    func() time.Time

	mu    sync.RWMutex
	token *oauth2.Token
}

// NewTokenManager builds a manager for the given grant. Scope is a
// space-separated list as it appears in the token request.
func NewTokenManager(cfg Config) *TokenManager {
	return &TokenManager{
		cc: clientcredentials.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			TokenURL:     cfg.TokenURL,
			Scopes:       strings.Fields(cfg.Scope),
		},
		client: &http.Client{Timeout: tokenTimeout},
		margin: expiryMargin,
		now:    time.Now,
	}
}

// Token returns a bearer token, fetching a fresh one when the cached
// token is absent or inside the renewal margin.
func (m *TokenManager) Token(ctx context.Context) (string, error) {
	m.mu.RLock()
	tok := m.token
	m.mu.RUnlock()
	if m.valid(tok) {
		return tok.AccessToken, nil
	}

	v, err, _ := m.group.Do("token", func() (any, error) {
		// Another caller may have refreshed while we waited for the flight.
		m.mu.RLock()
		cur := m.token
		m.mu.RUnlock()
		if m.valid(cur) {
			return cur, nil
		}

		fresh, err := m.cc.Token(context.WithValue(ctx, oauth2.HTTPClient, m.client))
		if err != nil {
			return nil, fmt.Errorf("token request: %w", err)
		}

		m.mu.Lock()
		m.token = fresh
		m.mu.Unlock()

		log.Debug().Time("expiry", fresh.Expiry).Msg("Refreshed registry token")
		return fresh, nil
	})
	if err != nil {
		return "", err
	}
	return v.(*oauth2.Token).AccessToken, nil
}

// Invalidate drops the cached token so the next Token call fetches a
// fresh one. Callers invoke it after an upstream 401.
func (m *TokenManager) Invalidate() {
	m.mu.Lock()
	m.token = nil
	m.mu.Unlock()
}

func (m *TokenManager) valid(tok *oauth2.Token) bool {
	if tok == nil || tok.AccessToken == "" {
		return false
	}
	if tok.Expiry.IsZero() {
		return true
	}
	return m.now().Add(m.margin).Before(tok.Expiry)
}
