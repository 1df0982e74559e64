// Package token maintains the cache of Mercury-issued bearer tokens used to
// authenticate spclient API calls, refreshing them through a Mercury client
// when none of the cached tokens cover the requested scopes.
package token

import (
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"
)

// mercurySender is the subset of mercury.Client a Provider needs.
type mercurySender interface {
	GetJSON(uri string, out interface{}) error
}

// Token is one issued bearer token and the scopes it covers.
type Token struct {
	AccessToken string
	ExpiresIn   int
	Scopes      []string
	IssuedAt    time.Time
}

// expired reports whether t is no longer usable as of now, per the
// resolution that a token is considered expired 10 seconds before its
// server-declared expiry to leave margin for in-flight use.
func (t Token) expired(now time.Time) bool {
	return now.After(t.IssuedAt.Add(time.Duration(t.ExpiresIn-10) * time.Second))
}

func (t Token) coversAll(scopes []string) bool {
	have := make(map[string]bool, len(t.Scopes))
	for _, s := range t.Scopes {
		have[s] = true
	}
	for _, want := range scopes {
		if !have[want] {
			return false
		}
	}
	return true
}

// Provider caches tokens per scope set, fetching a new one via Mercury's
// keymaster endpoint when nothing cached satisfies a request.
type Provider struct {
	mercury  mercurySender
	clientID string
	deviceID string

	mu     sync.Mutex
	tokens []Token

	now func() time.Time
}

// NewProvider builds a Provider that issues keymaster requests through m.
func NewProvider(m mercurySender, clientID, deviceID string) *Provider {
	return &Provider{
		mercury:  m,
		clientID: clientID,
		deviceID: deviceID,
		now:      time.Now,
	}
}

// Get returns a token covering every scope in scopes, reusing a cached one
// if possible and otherwise requesting a fresh one.
func (p *Provider) Get(scopes ...string) (Token, error) {
	p.mu.Lock()
	now := p.now()
	for _, t := range p.tokens {
		if !t.expired(now) && t.coversAll(scopes) {
			p.mu.Unlock()
			return t, nil
		}
	}
	p.mu.Unlock()

	t, err := p.fetch(scopes, now)
	if err != nil {
		return Token{}, err
	}

	p.mu.Lock()
	p.tokens = append(p.tokens, t)
	p.mu.Unlock()
	return t, nil
}

type keymasterResponse struct {
	AccessToken string   `json:"accessToken"`
	ExpiresIn   int      `json:"expiresIn"`
	Scope       []string `json:"scope"`
}

func (p *Provider) fetch(scopes []string, issuedAt time.Time) (Token, error) {
	q := url.Values{}
	q.Set("scope", strings.Join(scopes, ","))
	q.Set("client_id", p.clientID)
	q.Set("device_id", p.deviceID)
	uri := "hm://keymaster/token/authenticated?" + q.Encode()

	var resp keymasterResponse
	if err := p.mercury.GetJSON(uri, &resp); err != nil {
		return Token{}, fmt.Errorf("token: fetching from keymaster: %w", err)
	}

	return Token{
		AccessToken: resp.AccessToken,
		ExpiresIn:   resp.ExpiresIn,
		Scopes:      resp.Scope,
		IssuedAt:    issuedAt,
	}, nil
}
