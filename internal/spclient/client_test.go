package spclient

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/spotifyclient/gosptok/internal/spotifyid"
	"github.com/spotifyclient/gosptok/internal/token"
)

type fixedBearer struct{}

func (fixedBearer) Get(scopes ...string) (token.Token, error) {
	return token.Token{AccessToken: "fake-bearer"}, nil
}

func newTestClient(t *testing.T, handler http.HandlerFunc) (*Client, *httptest.Server) {
	t.Helper()
	srv := httptest.NewTLSServer(handler)
	c := NewClient(strings.TrimPrefix(srv.URL, "https://"), "test-client", fixedBearer{})
	c.httpClient = srv.Client()
	c.clientTokenURL = srv.URL + "/v1/clienttoken"
	return c, srv
}

func TestGetTrackMetadataDecodesResponse(t *testing.T) {
	gid := spotifyid.GID{0x01, 0x02}
	id := spotifyid.NewTrackId(gid)

	c, srv := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if strings.Contains(r.URL.Path, "clienttoken") {
			json.NewEncoder(w).Encode(map[string]interface{}{
				"granted_token": map[string]string{"token": "ct-123"},
			})
			return
		}
		if r.Header.Get("Authorization") != "Bearer fake-bearer" {
			t.Errorf("missing bearer header")
		}
		json.NewEncoder(w).Encode(TrackMetadata{GID: id.HexId(), Name: "Test Track"})
	})
	defer srv.Close()

	meta, err := c.GetTrackMetadata(t.Context(), id)
	if err != nil {
		t.Fatalf("GetTrackMetadata: %v", err)
	}
	if meta.Name != "Test Track" {
		t.Fatalf("unexpected name %q", meta.Name)
	}
}

func TestGetReturnsStatusCodeErrorOnNon2xx(t *testing.T) {
	c, srv := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if strings.Contains(r.URL.Path, "clienttoken") {
			json.NewEncoder(w).Encode(map[string]interface{}{
				"granted_token": map[string]string{"token": "ct-123"},
			})
			return
		}
		w.WriteHeader(http.StatusNotFound)
	})
	defer srv.Close()

	_, err := c.ResolveStorage(t.Context(), ResolveInteractive, spotifyid.FileID{0x01})
	if err == nil {
		t.Fatal("expected error for 404 response")
	}
	var scErr *StatusCodeError
	if !asStatusCodeError(err, &scErr) {
		t.Fatalf("expected *StatusCodeError, got %T: %v", err, err)
	}
	if scErr.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", scErr.Code)
	}
}

func asStatusCodeError(err error, target **StatusCodeError) bool {
	if sc, ok := err.(*StatusCodeError); ok {
		*target = sc
		return true
	}
	return false
}

func TestClientTokenIsCachedAcrossCalls(t *testing.T) {
	var tokenRequests int
	c, srv := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if strings.Contains(r.URL.Path, "clienttoken") {
			tokenRequests++
			json.NewEncoder(w).Encode(map[string]interface{}{
				"granted_token": map[string]string{"token": "ct-123"},
			})
			return
		}
		json.NewEncoder(w).Encode(TrackMetadata{})
	})
	defer srv.Close()

	id := spotifyid.NewTrackId(spotifyid.GID{})
	if _, err := c.GetTrackMetadata(t.Context(), id); err != nil {
		t.Fatalf("GetTrackMetadata: %v", err)
	}
	if _, err := c.GetTrackMetadata(t.Context(), id); err != nil {
		t.Fatalf("GetTrackMetadata: %v", err)
	}
	if tokenRequests != 1 {
		t.Fatalf("expected client-token to be requested once, got %d", tokenRequests)
	}
}
