package spclient

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestResolvePicksFromCandidates(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("type") != "accesspoint" {
			t.Errorf("expected type=accesspoint, got %q", r.URL.RawQuery)
		}
		json.NewEncoder(w).Encode(map[string][]string{
			"accesspoint": {"ap1.example.com:4070", "ap2.example.com:4070"},
		})
	}))
	defer srv.Close()

	r := NewResolver()
	r.baseURL = srv.URL

	host, err := r.Resolve(context.Background(), KindAccessPoint)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if host != "ap1.example.com:4070" && host != "ap2.example.com:4070" {
		t.Fatalf("unexpected host %q", host)
	}
}

func TestResolveErrorsOnEmptyCandidates(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string][]string{"accesspoint": {}})
	}))
	defer srv.Close()

	r := NewResolver()
	r.baseURL = srv.URL

	if _, err := r.Resolve(context.Background(), KindAccessPoint); err == nil {
		t.Fatal("expected error for empty candidate list")
	}
}

func TestResolveErrorsOnNon200(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	r := NewResolver()
	r.baseURL = srv.URL

	if _, err := r.Resolve(context.Background(), KindAccessPoint); err == nil {
		t.Fatal("expected error for 503 response")
	}
}
