package token

import (
	"encoding/json"
	"testing"
	"time"
)

type fakeMercury struct {
	calls int
	resp  keymasterResponse
}

func (f *fakeMercury) GetJSON(uri string, out interface{}) error {
	f.calls++
	raw, _ := json.Marshal(f.resp)
	return json.Unmarshal(raw, out)
}

func TestGetFetchesOnceAndCaches(t *testing.T) {
	fm := &fakeMercury{resp: keymasterResponse{AccessToken: "abc", ExpiresIn: 3600, Scope: []string{"streaming"}}}
	p := NewProvider(fm, "client-id", "device-id")

	tok1, err := p.Get("streaming")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if tok1.AccessToken != "abc" {
		t.Fatalf("unexpected token %q", tok1.AccessToken)
	}

	tok2, err := p.Get("streaming")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if tok2.AccessToken != "abc" {
		t.Fatalf("unexpected token %q", tok2.AccessToken)
	}
	if fm.calls != 1 {
		t.Fatalf("expected exactly one keymaster call, got %d", fm.calls)
	}
}

func TestGetRefetchesWhenScopeMissing(t *testing.T) {
	fm := &fakeMercury{resp: keymasterResponse{AccessToken: "first", ExpiresIn: 3600, Scope: []string{"streaming"}}}
	p := NewProvider(fm, "client-id", "device-id")

	if _, err := p.Get("streaming"); err != nil {
		t.Fatalf("Get: %v", err)
	}

	fm.resp = keymasterResponse{AccessToken: "second", ExpiresIn: 3600, Scope: []string{"streaming", "playlist-read"}}
	tok, err := p.Get("streaming", "playlist-read")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if tok.AccessToken != "second" {
		t.Fatalf("expected refetched token, got %q", tok.AccessToken)
	}
	if fm.calls != 2 {
		t.Fatalf("expected two keymaster calls, got %d", fm.calls)
	}
}

func TestTokenExpiredTenSecondMargin(t *testing.T) {
	issued := time.Unix(1000, 0)
	tok := Token{ExpiresIn: 100, IssuedAt: issued}

	if tok.expired(issued.Add(80 * time.Second)) {
		t.Fatalf("expected token to still be valid at 80s of 100s")
	}
	if !tok.expired(issued.Add(91 * time.Second)) {
		t.Fatalf("expected token expired with 10s margin at 91s of 100s")
	}
}

func TestGetRefetchesAfterExpiry(t *testing.T) {
	fm := &fakeMercury{resp: keymasterResponse{AccessToken: "a", ExpiresIn: 20, Scope: []string{"streaming"}}}
	p := NewProvider(fm, "client-id", "device-id")
	start := time.Unix(5000, 0)
	p.now = func() time.Time { return start }

	if _, err := p.Get("streaming"); err != nil {
		t.Fatalf("Get: %v", err)
	}

	p.now = func() time.Time { return start.Add(15 * time.Second) }
	fm.resp.AccessToken = "b"
	tok, err := p.Get("streaming")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if tok.AccessToken != "b" {
		t.Fatalf("expected refreshed token after expiry, got %q", tok.AccessToken)
	}
}
