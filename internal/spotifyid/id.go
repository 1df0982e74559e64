// Package spotifyid implements the identifier grammar for playable content:
// tagged track/episode ids that round-trip through base62 ids, hex ids, and
// spotify: URIs.
package spotifyid

import (
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"github.com/spotifyclient/gosptok/internal/base62"
)

// GIDSize is the length in bytes of a Spotify GID.
const GIDSize = 16

// base62Width is the fixed width of a base62-encoded GID.
const base62Width = 22

// Kind identifies the variant of a PlayableId.
type Kind int

const (
	// KindUnsupported marks an id whose kind is not Track or Episode.
	KindUnsupported Kind = iota
	KindTrack
	KindEpisode
)

// String returns the lowercase wire name used in spotify: URIs.
func (k Kind) String() string {
	switch k {
	case KindTrack:
		return "track"
	case KindEpisode:
		return "episode"
	default:
		return "unknown"
	}
}

// ErrInvalidID is returned when a base62/hex string or URI cannot be parsed
// into a PlayableId.
var ErrInvalidID = errors.New("spotifyid: invalid identifier")

// GID is a 16-byte binary identifier for a track, episode, album, artist, or
// show.
type GID [GIDSize]byte

// Bytes returns the GID as a byte slice.
func (g GID) Bytes() []byte { return g[:] }

// Hex returns the 32-character lowercase hex representation.
func (g GID) Hex() string { return hex.EncodeToString(g[:]) }

// Base62 returns the 22-character base62 representation.
func (g GID) Base62() string { return base62.Encode(g[:], base62Width) }

func (g GID) IsZero() bool { return g == GID{} }

// PlayableId is a tagged variant over the kinds of content this client can
// request playback for.
type PlayableId struct {
	Kind Kind
	GID  GID
}

// NewTrackId constructs a PlayableId of kind Track from a GID.
func NewTrackId(gid GID) PlayableId { return PlayableId{Kind: KindTrack, GID: gid} }

// NewEpisodeId constructs a PlayableId of kind Episode from a GID.
func NewEpisodeId(gid GID) PlayableId { return PlayableId{Kind: KindEpisode, GID: gid} }

// FromBase62 parses a 22-character base62 id for the given kind.
func FromBase62(kind Kind, id string) (PlayableId, error) {
	if len(id) != base62Width {
		return PlayableId{}, fmt.Errorf("%w: base62 id must be %d characters, got %d", ErrInvalidID, base62Width, len(id))
	}
	raw, err := base62.Decode(id, GIDSize)
	if err != nil {
		return PlayableId{}, fmt.Errorf("%w: %v", ErrInvalidID, err)
	}
	var gid GID
	copy(gid[:], raw)
	return PlayableId{Kind: kind, GID: gid}, nil
}

// FromHex parses a 32-character lowercase hex id for the given kind.
func FromHex(kind Kind, id string) (PlayableId, error) {
	if len(id) != GIDSize*2 {
		return PlayableId{}, fmt.Errorf("%w: hex id must be %d characters, got %d", ErrInvalidID, GIDSize*2, len(id))
	}
	raw, err := hex.DecodeString(id)
	if err != nil {
		return PlayableId{}, fmt.Errorf("%w: %v", ErrInvalidID, err)
	}
	var gid GID
	copy(gid[:], raw)
	return PlayableId{Kind: kind, GID: gid}, nil
}

// FromURI parses "spotify:<kind>:<22 base62 chars>".
func FromURI(uri string) (PlayableId, error) {
	parts := strings.Split(uri, ":")
	if len(parts) != 3 || parts[0] != "spotify" {
		return PlayableId{}, fmt.Errorf("%w: malformed URI %q", ErrInvalidID, uri)
	}

	var kind Kind
	switch parts[1] {
	case "track":
		kind = KindTrack
	case "episode":
		kind = KindEpisode
	default:
		kind = KindUnsupported
	}

	if kind == KindUnsupported {
		return PlayableId{}, fmt.Errorf("%w: unsupported kind %q in URI %q", ErrInvalidID, parts[1], uri)
	}

	return FromBase62(kind, parts[2])
}

// ToSpotifyUri renders the canonical spotify: URI for this id.
func (p PlayableId) ToSpotifyUri() string {
	return fmt.Sprintf("spotify:%s:%s", p.Kind.String(), p.GID.Base62())
}

// HexId returns the 32-character lowercase hex id, as used in metadata and
// storage-resolve API paths.
func (p PlayableId) HexId() string { return p.GID.Hex() }

// IsUnsupported reports whether this id is of an unsupported kind.
func (p PlayableId) IsUnsupported() bool { return p.Kind == KindUnsupported }

// ContentKey is a 16-byte AES key bound to (track/episode GID, file id).
type ContentKey struct {
	TrackGID GID
	FileID   FileID
	Key      [16]byte
}

// FileIDSize is the length in bytes of an AudioFile's file id.
const FileIDSize = 20

// FileID is an opaque per-variant file identifier.
type FileID [FileIDSize]byte

func (f FileID) Hex() string { return hex.EncodeToString(f[:]) }
func (f FileID) Bytes() []byte { return f[:] }
func (f FileID) IsZero() bool { return f == FileID{} }

// FileIDFromHex parses a 40-character lowercase hex file id, as returned
// in track/episode metadata's file_id fields.
func FileIDFromHex(s string) (FileID, error) {
	if len(s) != FileIDSize*2 {
		return FileID{}, fmt.Errorf("%w: file id must be %d hex characters, got %d", ErrInvalidID, FileIDSize*2, len(s))
	}
	raw, err := hex.DecodeString(s)
	if err != nil {
		return FileID{}, fmt.Errorf("%w: %v", ErrInvalidID, err)
	}
	var id FileID
	copy(id[:], raw)
	return id, nil
}

// FormatTag enumerates the encoded variants Spotify serves.
type FormatTag int

const (
	FormatUnknown FormatTag = iota
	FormatOggVorbis96
	FormatOggVorbis160
	FormatOggVorbis320
	FormatMP396
	FormatMP3160
	FormatMP3160Enc
	FormatMP3256
	FormatMP3320
	FormatAAC24
	FormatAAC24Norm
	FormatAAC48
	FormatFLACFlac
	FormatFLACFlac24Bit
)

// formatWireNames maps the wire format strings metadata responses use to
// their FormatTag.
var formatWireNames = map[string]FormatTag{
	"OGG_VORBIS_96":  FormatOggVorbis96,
	"OGG_VORBIS_160": FormatOggVorbis160,
	"OGG_VORBIS_320": FormatOggVorbis320,
	"MP3_96":         FormatMP396,
	"MP3_160":        FormatMP3160,
	"MP3_160_ENC":    FormatMP3160Enc,
	"MP3_256":        FormatMP3256,
	"MP3_320":        FormatMP3320,
	"AAC_24":         FormatAAC24,
	"AAC_24_NORM":    FormatAAC24Norm,
	"AAC_48":         FormatAAC48,
	"FLAC_FLAC":      FormatFLACFlac,
	"FLAC_FLAC_24BIT": FormatFLACFlac24Bit,
}

// ParseFormatTag maps a metadata response's wire format string to a
// FormatTag, returning FormatUnknown for anything unrecognized.
func ParseFormatTag(wire string) FormatTag {
	if tag, ok := formatWireNames[wire]; ok {
		return tag
	}
	return FormatUnknown
}

// SuperFormat groups FormatTag values by codec family.
type SuperFormat int

const (
	SuperUnknown SuperFormat = iota
	SuperMP3
	SuperVorbis
	SuperAAC
	SuperFLAC
)

// Super returns the codec family for a format tag.
func (f FormatTag) Super() SuperFormat {
	switch f {
	case FormatOggVorbis96, FormatOggVorbis160, FormatOggVorbis320:
		return SuperVorbis
	case FormatMP396, FormatMP3160, FormatMP3160Enc, FormatMP3256, FormatMP3320:
		return SuperMP3
	case FormatAAC24, FormatAAC24Norm, FormatAAC48:
		return SuperAAC
	case FormatFLACFlac, FormatFLACFlac24Bit:
		return SuperFLAC
	default:
		return SuperUnknown
	}
}

// AudioFile is a metadata record for one encoded variant of a track.
type AudioFile struct {
	FileID FileID
	Format FormatTag
}

// Quality is an ordered playback-quality tier.
type Quality int

const (
	QualityNormal Quality = iota
	QualityHigh
	QualityVeryHigh
	QualityLossless
)

// formatsForQuality maps a quality tier to the format tags that satisfy it.
var formatsForQuality = map[Quality][]FormatTag{
	QualityNormal:    {FormatOggVorbis96, FormatMP396, FormatAAC24},
	QualityHigh:      {FormatOggVorbis160, FormatMP3160, FormatAAC24Norm},
	QualityVeryHigh:  {FormatOggVorbis320, FormatMP3320, FormatAAC48},
	QualityLossless:  {FormatFLACFlac, FormatFLACFlac24Bit},
}

// Accepts reports whether a format tag satisfies this quality tier.
func (q Quality) Accepts(f FormatTag) bool {
	for _, candidate := range formatsForQuality[q] {
		if candidate == f {
			return true
		}
	}
	return false
}

// StreamId identifies the content being fetched from the CDN: either a file
// id (track/episode audio variant) or a bare episode GID (external URL
// episodes resolved without a file id). Exactly one is set.
type StreamId struct {
	FileID     FileID
	EpisodeGID GID
	hasFile    bool
	hasGID     bool
}

// NewFileStreamId builds a StreamId around a file id.
func NewFileStreamId(id FileID) StreamId { return StreamId{FileID: id, hasFile: true} }

// NewEpisodeStreamId builds a StreamId around a bare episode GID.
func NewEpisodeStreamId(gid GID) StreamId { return StreamId{EpisodeGID: gid, hasGID: true} }

func (s StreamId) IsFile() bool    { return s.hasFile }
func (s StreamId) IsEpisode() bool { return s.hasGID }
