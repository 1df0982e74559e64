// Package spclient is the HTTPS client for Spotify's metadata/storage-resolve
// API, the access-point/spclient/dealer resolver, and the client-token
// exchange. Structured like the teacher's control.Client: an *http.Client
// with a request timeout, plus typed GET helpers that decode JSON bodies.
package spclient

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"net/http"
	"time"

	"golang.org/x/time/rate"
)

// PointKind selects which kind of endpoint to resolve.
type PointKind string

const (
	KindAccessPoint PointKind = "accesspoint"
	KindDealer      PointKind = "dealer"
	KindSpclient    PointKind = "spclient"
)

// Resolver looks up a host:port for the given endpoint kind via
// apresolve.spotify.com.
type Resolver struct {
	httpClient *http.Client
	limiter    *rate.Limiter
	baseURL    string
	rng        *rand.Rand
}

// NewResolver builds a Resolver. Resolve calls against apresolve.spotify.com
// are throttled to one per second with a burst of 3, reusing the teacher's
// token-bucket dependency instead of a bespoke backoff.
func NewResolver() *Resolver {
	return &Resolver{
		httpClient: &http.Client{Timeout: 10 * time.Second},
		limiter:    rate.NewLimiter(rate.Limit(1), 3),
		baseURL:    "https://apresolve.spotify.com/",
		rng:        rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

type resolveResponse map[string][]string

// Resolve returns one uniformly-chosen host:port for kind.
func (r *Resolver) Resolve(ctx context.Context, kind PointKind) (string, error) {
	if err := r.limiter.Wait(ctx); err != nil {
		return "", fmt.Errorf("spclient: resolver rate limit: %w", err)
	}

	requestURL := fmt.Sprintf("%s?type=%s", r.baseURL, kind)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, requestURL, nil)
	if err != nil {
		return "", err
	}

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("spclient: resolving %s: %w", kind, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("spclient: resolver returned status %d", resp.StatusCode)
	}

	var parsed resolveResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return "", fmt.Errorf("spclient: decoding resolver response: %w", err)
	}

	candidates := parsed[string(kind)]
	if len(candidates) == 0 {
		return "", fmt.Errorf("spclient: resolver returned no candidates for %s", kind)
	}

	return candidates[r.rng.Intn(len(candidates))], nil
}
