package spclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/spotifyclient/gosptok/internal/spotifyid"
	"github.com/spotifyclient/gosptok/internal/token"
)

// StatusCodeError is returned for any non-2xx API response.
type StatusCodeError struct {
	Code int
	Path string
}

func (e *StatusCodeError) Error() string {
	return fmt.Sprintf("spclient: %s returned status %d", e.Path, e.Code)
}

// bearerSource supplies the Authorization bearer token for API calls.
type bearerSource interface {
	Get(scopes ...string) (token.Token, error)
}

// Client is the HTTPS client for one resolved spclient host.
type Client struct {
	httpClient *http.Client
	host       string
	clientID   string
	bearer     bearerSource

	mu          sync.Mutex
	cachedToken string

	clientTokenURL string
}

// NewClient builds a Client against host (as returned by Resolver.Resolve
// for KindSpclient), authenticating with bearer.
func NewClient(host, clientID string, bearer bearerSource) *Client {
	return &Client{
		httpClient:     &http.Client{Timeout: 15 * time.Second},
		host:           host,
		clientID:       clientID,
		bearer:         bearer,
		clientTokenURL: "https://clienttoken.spotify.com/v1/clienttoken",
	}
}

type clientTokenRequest struct {
	ClientData struct {
		ClientID        string `json:"client_id"`
		ClientVersion   string `json:"client_version"`
		ClientPlatform  string `json:"client_platform,omitempty"`
	} `json:"client_data"`
}

type clientTokenResponse struct {
	GrantedToken struct {
		Token string `json:"token"`
	} `json:"granted_token"`
}

// clientToken returns the cached client-token, requesting one from
// clienttoken.spotify.com on first use.
func (c *Client) clientToken(ctx context.Context) (string, error) {
	c.mu.Lock()
	if c.cachedToken != "" {
		cached := c.cachedToken
		c.mu.Unlock()
		return cached, nil
	}
	c.mu.Unlock()

	var reqBody clientTokenRequest
	reqBody.ClientData.ClientID = c.clientID
	reqBody.ClientData.ClientVersion = "1.0.0"
	payload, err := json.Marshal(reqBody)
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.clientTokenURL, bytes.NewReader(payload))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("spclient: requesting client-token: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", &StatusCodeError{Code: resp.StatusCode, Path: "/v1/clienttoken"}
	}

	var decoded clientTokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return "", fmt.Errorf("spclient: decoding client-token response: %w", err)
	}

	c.mu.Lock()
	c.cachedToken = decoded.GrantedToken.Token
	c.mu.Unlock()
	return decoded.GrantedToken.Token, nil
}

// get issues an authenticated GET against path on the resolved spclient
// host and decodes the JSON body into out.
func (c *Client) get(ctx context.Context, path string, out interface{}) error {
	tok, err := c.bearer.Get("playlist-read")
	if err != nil {
		return fmt.Errorf("spclient: %s: %w", path, err)
	}
	ct, err := c.clientToken(ctx)
	if err != nil {
		return fmt.Errorf("spclient: %s: %w", path, err)
	}

	url := "https://" + c.host + path
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+tok.AccessToken)
	req.Header.Set("client-token", ct)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("spclient: %s: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &StatusCodeError{Code: resp.StatusCode, Path: path}
	}

	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// TrackMetadata is the subset of track metadata fields this client needs to
// pick a format and resolve storage.
type TrackMetadata struct {
	GID   string          `json:"gid"`
	Name  string          `json:"name"`
	Files []MetadataFile  `json:"file"`
	Alts  []AlternativeTrack `json:"alternative,omitempty"`
}

type MetadataFile struct {
	FileID string `json:"file_id"`
	Format string `json:"format"`
}

type AlternativeTrack struct {
	Files []MetadataFile `json:"file"`
}

// GetTrackMetadata fetches GET /metadata/4/track/{hex_id}.
func (c *Client) GetTrackMetadata(ctx context.Context, id spotifyid.PlayableId) (*TrackMetadata, error) {
	var meta TrackMetadata
	path := fmt.Sprintf("/metadata/4/track/%s", id.HexId())
	if err := c.get(ctx, path, &meta); err != nil {
		return nil, err
	}
	return &meta, nil
}

// EpisodeMetadata mirrors TrackMetadata for podcast episodes.
type EpisodeMetadata struct {
	GID   string         `json:"gid"`
	Name  string         `json:"name"`
	Files []MetadataFile `json:"audio"`
}

// GetEpisodeMetadata fetches GET /metadata/4/episode/{hex_id}.
func (c *Client) GetEpisodeMetadata(ctx context.Context, id spotifyid.PlayableId) (*EpisodeMetadata, error) {
	var meta EpisodeMetadata
	path := fmt.Sprintf("/metadata/4/episode/%s", id.HexId())
	if err := c.get(ctx, path, &meta); err != nil {
		return nil, err
	}
	return &meta, nil
}

// StorageResolveResponse is the CDN URL set and fetch policy for one file.
type StorageResolveResponse struct {
	Result string   `json:"result"`
	CDNURL []string `json:"cdnurl"`
}

// ResolveKind selects between regular interactive streaming and the
// separate prefetch endpoint.
type ResolveKind string

const (
	ResolveInteractive         ResolveKind = "interactive"
	ResolveInteractivePrefetch ResolveKind = "interactive_prefetch"
)

// ResolveStorage fetches GET /storage-resolve/files/audio/{kind}/{hex_file_id}.
func (c *Client) ResolveStorage(ctx context.Context, kind ResolveKind, fileID spotifyid.FileID) (*StorageResolveResponse, error) {
	var out StorageResolveResponse
	path := fmt.Sprintf("/storage-resolve/files/audio/%s/%s", kind, fileID.Hex())
	if err := c.get(ctx, path, &out); err != nil {
		return nil, err
	}
	return &out, nil
}
