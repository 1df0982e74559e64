// Package feeder orchestrates a play request end to end: metadata lookup,
// quality/format selection, storage resolution, audio-key exchange, and
// opening the CDN stream, assembling the result the caller reads from.
// The "wire a handful of internal clients together behind one call" shape
// is grounded on the teacher's cmd/muti-metroo command layer, where a
// single command builder wires config, identity, and transport clients
// into one operation.
package feeder

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"

	"github.com/spotifyclient/gosptok/internal/audiokey"
	"github.com/spotifyclient/gosptok/internal/cdn"
	"github.com/spotifyclient/gosptok/internal/chunkedstream"
	"github.com/spotifyclient/gosptok/internal/spclient"
	"github.com/spotifyclient/gosptok/internal/spotifyid"
)

// Error is returned for feeder-specific failures: no playable file set, no
// format matching the requested quality, or an unsupported storage result.
type Error struct {
	Op  string
	Err error
}

func (e *Error) Error() string { return fmt.Sprintf("feeder: %s: %v", e.Op, e.Err) }
func (e *Error) Unwrap() error { return e.Err }

// SuperAudioFormat selects which codec family to prefer among the formats
// that satisfy a requested quality tier.
type SuperAudioFormat int

const (
	// SuperAudioVorbis prefers Ogg Vorbis variants (the default).
	SuperAudioVorbis SuperAudioFormat = iota
	// SuperAudioLossless prefers FLAC variants.
	SuperAudioLossless
)

// QualityPicker selects one AudioFile from a track/episode's file list
// given a requested quality tier and codec preference.
type QualityPicker interface {
	GetFile(files []spotifyid.AudioFile, quality spotifyid.Quality, super SuperAudioFormat) (spotifyid.AudioFile, error)
}

// DefaultQualityPicker implements the tier/format fallback rules: filter
// by requested quality tier, prefer the configured super format among
// survivors; if the requested tier matches nothing, try the remaining
// tiers in the fixed order very high, high, normal.
type DefaultQualityPicker struct {
	Logger *slog.Logger
}

var qualityFallbackOrder = []spotifyid.Quality{
	spotifyid.QualityVeryHigh,
	spotifyid.QualityHigh,
	spotifyid.QualityNormal,
}

func superForFormat(f spotifyid.FormatTag, want SuperAudioFormat) bool {
	switch want {
	case SuperAudioLossless:
		return f.Super() == spotifyid.SuperFLAC
	default:
		return f.Super() == spotifyid.SuperVorbis
	}
}

// GetFile implements QualityPicker.
func (p DefaultQualityPicker) GetFile(files []spotifyid.AudioFile, quality spotifyid.Quality, super SuperAudioFormat) (spotifyid.AudioFile, error) {
	logger := p.Logger
	if logger == nil {
		logger = slog.Default()
	}

	tiers := []spotifyid.Quality{quality}
	for _, fallback := range qualityFallbackOrder {
		if fallback != quality {
			tiers = append(tiers, fallback)
		}
	}

	for i, tier := range tiers {
		var tierMatches []spotifyid.AudioFile
		for _, f := range files {
			if tier.Accepts(f.Format) {
				tierMatches = append(tierMatches, f)
			}
		}
		if len(tierMatches) == 0 {
			continue
		}
		if i > 0 {
			logger.Warn("feeder: relaxed quality tier", "requested", quality, "used", tier)
		}
		for _, f := range tierMatches {
			if superForFormat(f.Format, super) {
				return f, nil
			}
		}
		return spotifyid.AudioFile{}, &Error{Op: "get_file", Err: fmt.Errorf("no file matches the configured audio format among %d candidates at tier %v", len(tierMatches), tier)}
	}

	return spotifyid.AudioFile{}, &Error{Op: "get_file", Err: fmt.Errorf("no file matches any quality tier among %d candidates", len(files))}
}

// TrackLike is the subset of track/episode metadata the feeder needs,
// satisfied by spclient.TrackMetadata and spclient.EpisodeMetadata after
// normalization (see NormalizeTrack/NormalizeEpisode).
type TrackLike struct {
	GID          spotifyid.GID
	Files        []spotifyid.AudioFile
	Alternatives [][]spotifyid.AudioFile
	ExternalURL  string
}

// NormalizeTrack converts spclient track metadata into a TrackLike,
// skipping any file whose file_id or format fails to parse.
func NormalizeTrack(meta *spclient.TrackMetadata) (TrackLike, error) {
	gid, err := parseGIDHex(meta.GID)
	if err != nil {
		return TrackLike{}, err
	}
	t := TrackLike{GID: gid, Files: convertFiles(meta.Files)}
	for _, alt := range meta.Alts {
		t.Alternatives = append(t.Alternatives, convertFiles(alt.Files))
	}
	return t, nil
}

// NormalizeEpisode converts spclient episode metadata into a TrackLike.
func NormalizeEpisode(meta *spclient.EpisodeMetadata) (TrackLike, error) {
	gid, err := parseGIDHex(meta.GID)
	if err != nil {
		return TrackLike{}, err
	}
	return TrackLike{GID: gid, Files: convertFiles(meta.Files)}, nil
}

func convertFiles(in []spclient.MetadataFile) []spotifyid.AudioFile {
	out := make([]spotifyid.AudioFile, 0, len(in))
	for _, f := range in {
		id, err := spotifyid.FileIDFromHex(f.FileID)
		if err != nil {
			continue
		}
		out = append(out, spotifyid.AudioFile{FileID: id, Format: spotifyid.ParseFormatTag(f.Format)})
	}
	return out
}

func parseGIDHex(hexStr string) (spotifyid.GID, error) {
	id, err := spotifyid.FromHex(spotifyid.KindTrack, hexStr)
	if err != nil {
		return spotifyid.GID{}, err
	}
	return id.GID, nil
}

// pickAlternativeIfNecessary returns track.Files if non-empty, otherwise
// the first alternative's file set, failing if neither has any files.
func pickAlternativeIfNecessary(track TrackLike) ([]spotifyid.AudioFile, error) {
	if len(track.Files) > 0 {
		return track.Files, nil
	}
	for _, alt := range track.Alternatives {
		if len(alt) > 0 {
			return alt, nil
		}
	}
	return nil, &Error{Op: "pick_alternative_if_necessary", Err: fmt.Errorf("track %s has no files on itself or any alternative", track.GID.Hex())}
}

// Metrics records lightweight counters about how a stream was opened,
// mirroring the spec's LoadedStream.metrics field.
type Metrics struct {
	Format        spotifyid.FormatTag
	QualityRelax  bool
	ResolveResult string
}

// LoadedStream is the result of feeding a play request: an open, readable
// stream plus the metadata needed to decode and present it.
type LoadedStream struct {
	Track         TrackLike
	Stream        *chunkedstream.Stream
	Normalization *cdn.Normalization
	Metrics       Metrics
	fetcher       *cdn.Fetcher
}

// Close releases the underlying CDN fetcher and stream.
func (l *LoadedStream) Close() error {
	if l.fetcher != nil {
		l.fetcher.Close()
	}
	return l.Stream.Close()
}

// Feeder wires together the spclient, audio-key, and CDN clients needed
// to turn a PlayableId into a LoadedStream.
type Feeder struct {
	spclient *spclient.Client
	keys     *audiokey.Manager
	picker   QualityPicker
	rng      *rand.Rand
	logger   *slog.Logger
}

// New builds a Feeder. picker defaults to DefaultQualityPicker if nil.
func New(sp *spclient.Client, keys *audiokey.Manager, picker QualityPicker, rng *rand.Rand, logger *slog.Logger) *Feeder {
	if picker == nil {
		picker = DefaultQualityPicker{Logger: logger}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Feeder{spclient: sp, keys: keys, picker: picker, rng: rng, logger: logger}
}

// LoadTrack resolves and opens a stream for a track id at the requested
// quality/format. Files are picked from an alternative when the track
// itself has none (pickAlternativeIfNecessary); a failed
// storage-resolve or key request is returned, not retried.
func (f *Feeder) LoadTrack(ctx context.Context, id spotifyid.PlayableId, quality spotifyid.Quality, super SuperAudioFormat) (*LoadedStream, error) {
	meta, err := f.spclient.GetTrackMetadata(ctx, id)
	if err != nil {
		return nil, &Error{Op: "get_track_metadata", Err: err}
	}
	track, err := NormalizeTrack(meta)
	if err != nil {
		return nil, &Error{Op: "normalize_track", Err: err}
	}
	return f.load(ctx, track, quality, super)
}

// LoadEpisode resolves and opens a stream for an episode id.
func (f *Feeder) LoadEpisode(ctx context.Context, id spotifyid.PlayableId, quality spotifyid.Quality, super SuperAudioFormat) (*LoadedStream, error) {
	meta, err := f.spclient.GetEpisodeMetadata(ctx, id)
	if err != nil {
		return nil, &Error{Op: "get_episode_metadata", Err: err}
	}
	track, err := NormalizeEpisode(meta)
	if err != nil {
		return nil, &Error{Op: "normalize_episode", Err: err}
	}
	return f.load(ctx, track, quality, super)
}

func (f *Feeder) load(ctx context.Context, track TrackLike, quality spotifyid.Quality, super SuperAudioFormat) (*LoadedStream, error) {
	if track.ExternalURL != "" {
		var fetcher *cdn.Fetcher
		hooks := chunkedstream.Hooks{RequestChunk: func(c int) { fetcher.Enqueue(c) }}
		stream, openedFetcher, err := cdn.OpenExternalEpisode(ctx, track.ExternalURL, hooks)
		if err != nil {
			return nil, &Error{Op: "open_external_episode", Err: err}
		}
		fetcher = openedFetcher
		return &LoadedStream{Track: track, Stream: stream, fetcher: fetcher, Metrics: Metrics{ResolveResult: "external_url"}}, nil
	}

	candidates, err := pickAlternativeIfNecessary(track)
	if err != nil {
		return nil, err
	}

	file, err := f.picker.GetFile(candidates, quality, super)
	if err != nil {
		return nil, err
	}

	resolved, err := f.spclient.ResolveStorage(ctx, spclient.ResolveInteractive, file.FileID)
	if err != nil {
		return nil, &Error{Op: "resolve_storage", Err: err}
	}

	if resolved.Result != "CDN" {
		return nil, &Error{Op: "resolve_storage", Err: fmt.Errorf("unsupported storage result %q", resolved.Result)}
	}

	var fileIDArr [20]byte
	copy(fileIDArr[:], file.FileID.Bytes())
	var trackGIDArr [16]byte
	copy(trackGIDArr[:], track.GID.Bytes())

	key, err := f.keys.Get(fileIDArr, trackGIDArr, true)
	if err != nil {
		return nil, &Error{Op: "get_audio_key", Err: err}
	}

	var fetcher *cdn.Fetcher
	hooks := chunkedstream.Hooks{RequestChunk: func(c int) { fetcher.Enqueue(c) }}
	stream, norm, openedFetcher, err := cdn.OpenAudio(ctx, resolved.CDNURL, key, f.rng, hooks)
	if err != nil {
		return nil, &Error{Op: "open_cdn_stream", Err: err}
	}
	fetcher = openedFetcher

	return &LoadedStream{
		Track:         track,
		Stream:        stream,
		Normalization: norm,
		fetcher:       fetcher,
		Metrics:       Metrics{Format: file.Format, ResolveResult: resolved.Result},
	}, nil
}
