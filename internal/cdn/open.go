package cdn

import (
	"context"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"regexp"
	"strconv"
	"time"

	"github.com/spotifyclient/gosptok/internal/audiocrypto"
	"github.com/spotifyclient/gosptok/internal/chunkedstream"
)

// Normalization carries the four loudness parameters Spotify embeds at
// offset 144 of an encrypted audio file.
type Normalization struct {
	TrackGainDB float32
	TrackPeak   float32
	AlbumGainDB float32
	AlbumPeak   float32
}

// headerSkipBytes is the fixed 0xA7 = 167-byte container header every
// non-external-URL audio file carries before the payload the decoder
// consumes.
const headerSkipBytes = 0xA7

// normalizationOffset is the byte offset of the 16-byte normalization
// block within the decrypted header.
const normalizationOffset = 144

var contentRangeTotal = regexp.MustCompile(`/(\d+)$`)

// OpenAudio primes a CDN stream for a regular (non external-URL) audio
// file: issues the priming ranged GET, determines total size and chunk
// count, decrypts and installs chunk 0, reads the normalization block, and
// returns a chunkedstream.Stream positioned past the 167-byte header.
func OpenAudio(ctx context.Context, candidates []string, key [16]byte, rng *rand.Rand, hooks chunkedstream.Hooks) (*chunkedstream.Stream, *Normalization, *Fetcher, error) {
	rawURL, err := SelectURL(candidates, rng)
	if err != nil {
		return nil, nil, nil, err
	}

	client := &http.Client{Timeout: 30 * time.Second}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, nil, nil, err
	}
	req.Header.Set("Range", fmt.Sprintf("bytes=0-%d", ChunkSize-1))

	resp, err := client.Do(req)
	if err != nil {
		return nil, nil, nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusPartialContent {
		return nil, nil, nil, fmt.Errorf("cdn: priming GET: expected 206, got %d", resp.StatusCode)
	}

	total, err := parseContentRangeTotal(resp.Header.Get("Content-Range"))
	if err != nil {
		return nil, nil, nil, err
	}

	first := make([]byte, ChunkSize)
	n, err := readFull(resp.Body, first)
	if err != nil {
		return nil, nil, nil, err
	}
	first = first[:n]

	fetcher := NewFetcher(ctx, rawURL, key, 4)

	stream := chunkedstream.New(total, ChunkSize, hooks, true)
	fetcher.Attach(stream)

	decrypted := append([]byte(nil), first...)
	if err := audiocrypto.DecryptChunk(key, 0, decrypted); err != nil {
		return nil, nil, nil, err
	}
	stream.CompleteChunk(0, decrypted)

	var norm *Normalization
	if len(decrypted) >= normalizationOffset+16 {
		norm = parseNormalization(decrypted[normalizationOffset : normalizationOffset+16])
	}

	if err := stream.Skip(headerSkipBytes); err != nil {
		return nil, nil, nil, err
	}

	return stream, norm, fetcher, nil
}

// OpenExternalEpisode resolves a publisher-hosted MP3 via a HEAD redirect
// and returns a stream over it with decryption bypassed (the episode was
// never Spotify-encrypted) and no normalization or header skip applied.
func OpenExternalEpisode(ctx context.Context, publisherURL string, hooks chunkedstream.Hooks) (*chunkedstream.Stream, *Fetcher, error) {
	client := &http.Client{
		Timeout: 30 * time.Second,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}

	resolved := publisherURL
	for redirects := 0; redirects < 10; redirects++ {
		req, err := http.NewRequestWithContext(ctx, http.MethodHead, resolved, nil)
		if err != nil {
			return nil, nil, err
		}
		resp, err := client.Do(req)
		if err != nil {
			return nil, nil, err
		}
		resp.Body.Close()
		if resp.StatusCode >= 300 && resp.StatusCode < 400 {
			loc := resp.Header.Get("Location")
			if loc == "" {
				return nil, nil, fmt.Errorf("cdn: redirect without Location header")
			}
			resolved = loc
			continue
		}
		break
	}

	rangedClient := &http.Client{Timeout: 30 * time.Second}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, resolved, nil)
	if err != nil {
		return nil, nil, err
	}
	req.Header.Set("Range", fmt.Sprintf("bytes=0-%d", ChunkSize-1))
	resp, err := rangedClient.Do(req)
	if err != nil {
		return nil, nil, err
	}
	defer resp.Body.Close()

	var total int64
	if resp.StatusCode == http.StatusPartialContent {
		total, err = parseContentRangeTotal(resp.Header.Get("Content-Range"))
		if err != nil {
			return nil, nil, err
		}
	} else if resp.StatusCode == http.StatusOK {
		total = resp.ContentLength
	} else {
		return nil, nil, fmt.Errorf("cdn: external episode GET: unexpected status %d", resp.StatusCode)
	}

	first := make([]byte, ChunkSize)
	n, err := readFull(resp.Body, first)
	if err != nil {
		return nil, nil, err
	}
	first = first[:n]

	fetcher := NewFetcher(ctx, resolved, [16]byte{}, 4)
	fetcher.identity = true

	stream := chunkedstream.New(total, ChunkSize, hooks, true)
	fetcher.Attach(stream)
	stream.CompleteChunk(0, first)

	return stream, fetcher, nil
}

func parseContentRangeTotal(headerValue string) (int64, error) {
	if headerValue == "" {
		return 0, fmt.Errorf("cdn: priming GET response had no Content-Range header")
	}
	m := contentRangeTotal.FindStringSubmatch(headerValue)
	if m == nil {
		return 0, fmt.Errorf("cdn: could not parse total size from Content-Range %q", headerValue)
	}
	total, err := strconv.ParseInt(m[1], 10, 64)
	if err != nil {
		return 0, fmt.Errorf("cdn: parsing Content-Range total: %w", err)
	}
	return total, nil
}

func parseNormalization(b []byte) *Normalization {
	return &Normalization{
		TrackGainDB: leFloat32(b[0:4]),
		TrackPeak:   leFloat32(b[4:8]),
		AlbumGainDB: leFloat32(b[8:12]),
		AlbumPeak:   leFloat32(b[12:16]),
	}
}

var _ io.Closer = (*Fetcher)(nil)
