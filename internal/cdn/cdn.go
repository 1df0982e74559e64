// Package cdn fetches and decrypts audio content from Spotify's storage CDN:
// ranged HTTPS GETs per 128 KiB chunk, AES-CTR decryption via
// internal/audiocrypto, and a bounded worker pool driving the chunk
// requests a chunkedstream.Stream schedules. The worker pool follows the
// teacher's fan-out style from internal/flood/internal/routing, built here
// on golang.org/x/sync/errgroup instead of a hand-rolled WaitGroup, since
// this package needs per-job error propagation that errgroup gives for
// free.
package cdn

import (
	"context"
	"encoding/binary"
	"fmt"
	"math"
	"math/rand"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/spotifyclient/gosptok/internal/audiocrypto"
	"github.com/spotifyclient/gosptok/internal/chunkedstream"
)

// leFloat32 decodes a little-endian IEEE-754 float32, the encoding
// Spotify uses for the normalization block.
func leFloat32(b []byte) float32 {
	return math.Float32frombits(binary.LittleEndian.Uint32(b))
}


// ChunkSize matches the fixed 128 KiB chunk boundary the access point and
// storage CDN both use.
const ChunkSize = audiocrypto.ChunkSize

// blockedSubstrings are CDN host fragments known to serve degraded or
// unavailable audio; candidate URLs containing them are skipped during
// selection.
var blockedSubstrings = []string{"audio4-gm-fb", "audio-gm-fb"}

// SelectURL picks one candidate uniformly at random, skipping any entry
// that contains a blocked substring. Returns an error if every candidate is
// blocked.
func SelectURL(candidates []string, rng *rand.Rand) (string, error) {
	var usable []string
	for _, c := range candidates {
		blocked := false
		for _, b := range blockedSubstrings {
			if strings.Contains(c, b) {
				blocked = true
				break
			}
		}
		if !blocked {
			usable = append(usable, c)
		}
	}
	if len(usable) == 0 {
		return "", fmt.Errorf("cdn: no usable CDN URL among %d candidates", len(candidates))
	}
	return usable[rng.Intn(len(usable))], nil
}

// URLExpiry parses a CDN URL's expiration, trying in order: the
// __token__ query parameter's exp=<unix>, an Expires=<unix> query
// parameter, and a leading "<epoch>_" path prefix. Returns the zero Time
// and false if none are present (the URL is treated as non-expiring).
func URLExpiry(rawURL string) (time.Time, bool) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return time.Time{}, false
	}

	if tok := u.Query().Get("__token__"); tok != "" {
		for _, part := range strings.Split(tok, "~") {
			if strings.HasPrefix(part, "exp=") {
				if sec, err := strconv.ParseInt(strings.TrimPrefix(part, "exp="), 10, 64); err == nil {
					return time.Unix(sec, 0), true
				}
			}
		}
	}

	if exp := u.Query().Get("Expires"); exp != "" {
		if sec, err := strconv.ParseInt(exp, 10, 64); err == nil {
			return time.Unix(sec, 0), true
		}
	}

	segments := strings.Split(strings.Trim(u.Path, "/"), "/")
	if len(segments) > 0 {
		last := segments[len(segments)-1]
		if idx := strings.Index(last, "_"); idx > 0 {
			if sec, err := strconv.ParseInt(last[:idx], 10, 64); err == nil {
				return time.Unix(sec, 0), true
			}
		}
	}

	return time.Time{}, false
}

// Fetcher issues ranged HTTPS requests against one resolved CDN URL,
// decrypts each chunk with key, and installs the result into a
// chunkedstream.Stream. One Fetcher instance backs one open stream.
type Fetcher struct {
	httpClient *http.Client
	url        string
	key        [16]byte
	// identity bypasses decryption entirely, for external-URL episodes
	// that were never Spotify-encrypted.
	identity bool

	mu     sync.Mutex
	stream *chunkedstream.Stream

	jobs chan int
	grp  *errgroup.Group
	ctx  context.Context
}

// NewFetcher builds a Fetcher against the given pre-selected CDN URL and
// per-file AES key, running up to concurrency chunk fetches at once.
func NewFetcher(ctx context.Context, rawURL string, key [16]byte, concurrency int) *Fetcher {
	if concurrency <= 0 {
		concurrency = 4
	}
	grp, grpCtx := errgroup.WithContext(ctx)
	f := &Fetcher{
		httpClient: &http.Client{Timeout: 30 * time.Second},
		url:        rawURL,
		key:        key,
		jobs:       make(chan int, 256),
		grp:        grp,
		ctx:        grpCtx,
	}
	for i := 0; i < concurrency; i++ {
		grp.Go(f.worker)
	}
	return f
}

// Attach binds the Fetcher to the Stream its chunks will be installed
// into. The Stream's Hooks.RequestChunk should call Fetcher.Enqueue.
func (f *Fetcher) Attach(s *chunkedstream.Stream) {
	f.mu.Lock()
	f.stream = s
	f.mu.Unlock()
}

// Enqueue schedules chunk c for fetch. Safe to call from
// chunkedstream.Hooks.RequestChunk.
func (f *Fetcher) Enqueue(c int) {
	select {
	case f.jobs <- c:
	case <-f.ctx.Done():
	}
}

// Close stops accepting new jobs and waits for in-flight fetches to
// finish.
func (f *Fetcher) Close() error {
	close(f.jobs)
	return f.grp.Wait()
}

func (f *Fetcher) worker() error {
	for {
		select {
		case c, ok := <-f.jobs:
			if !ok {
				return nil
			}
			f.fetchChunk(c)
		case <-f.ctx.Done():
			return f.ctx.Err()
		}
	}
}

func (f *Fetcher) fetchChunk(c int) {
	f.mu.Lock()
	stream := f.stream
	f.mu.Unlock()
	if stream == nil {
		return
	}

	start := int64(c) * ChunkSize
	end := start + ChunkSize - 1

	req, err := http.NewRequestWithContext(f.ctx, http.MethodGet, f.url, nil)
	if err != nil {
		stream.FailChunk(c, err)
		return
	}
	req.Header.Set("Range", fmt.Sprintf("bytes=%d-%d", start, end))

	resp, err := f.httpClient.Do(req)
	if err != nil {
		stream.FailChunk(c, err)
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusPartialContent {
		stream.FailChunk(c, fmt.Errorf("cdn: chunk %d: expected 206, got %d", c, resp.StatusCode))
		return
	}

	buf := make([]byte, ChunkSize)
	n, err := readFull(resp.Body, buf)
	if err != nil {
		stream.FailChunk(c, err)
		return
	}
	buf = buf[:n]

	if !f.identity {
		if err := audiocrypto.DecryptChunk(f.key, c, buf); err != nil {
			stream.FailChunk(c, err)
			return
		}
	}

	stream.CompleteChunk(c, buf)
}

// readFull reads until buf is full or the reader is exhausted, returning
// the number of bytes read (which may be less than len(buf) for the final,
// short chunk of content).
func readFull(r interface{ Read([]byte) (int, error) }, buf []byte) (int, error) {
	total := 0
	for total < len(buf) {
		n, err := r.Read(buf[total:])
		total += n
		if err != nil {
			if total > 0 {
				return total, nil
			}
			return total, err
		}
	}
	return total, nil
}
