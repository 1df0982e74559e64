package spotifyid

import "testing"

func sampleGID() GID {
	var g GID
	for i := range g {
		g[i] = byte(i + 1)
	}
	return g
}

func TestURIRoundTrip(t *testing.T) {
	id := NewTrackId(sampleGID())
	uri := id.ToSpotifyUri()

	parsed, err := FromURI(uri)
	if err != nil {
		t.Fatalf("FromURI(%q): %v", uri, err)
	}
	if parsed.Kind != KindTrack {
		t.Fatalf("expected KindTrack, got %v", parsed.Kind)
	}
	if parsed.GID != id.GID {
		t.Fatalf("GID mismatch: got %x want %x", parsed.GID, id.GID)
	}
}

func TestBase62HexRoundTrip(t *testing.T) {
	id := NewEpisodeId(sampleGID())

	b62 := id.GID.Base62()
	fromB62, err := FromBase62(KindEpisode, b62)
	if err != nil {
		t.Fatalf("FromBase62: %v", err)
	}
	if fromB62.GID != id.GID {
		t.Fatalf("base62 round trip mismatch: got %x want %x", fromB62.GID, id.GID)
	}

	hexID := id.GID.Hex()
	fromHex, err := FromHex(KindEpisode, hexID)
	if err != nil {
		t.Fatalf("FromHex: %v", err)
	}
	if fromHex.GID != id.GID {
		t.Fatalf("hex round trip mismatch: got %x want %x", fromHex.GID, id.GID)
	}
}

func TestFromURIRejectsUnsupportedKind(t *testing.T) {
	_, err := FromURI("spotify:playlist:0123456789abcdefghijkl")
	if err == nil {
		t.Fatalf("expected error for unsupported kind")
	}
}

func TestFromURIRejectsMalformed(t *testing.T) {
	_, err := FromURI("not-a-uri")
	if err == nil {
		t.Fatalf("expected error for malformed URI")
	}
}

func TestQualityAccepts(t *testing.T) {
	if !QualityHigh.Accepts(FormatOggVorbis160) {
		t.Fatalf("expected QualityHigh to accept FormatOggVorbis160")
	}
	if QualityHigh.Accepts(FormatFLACFlac) {
		t.Fatalf("did not expect QualityHigh to accept FormatFLACFlac")
	}
}

func TestFormatTagSuper(t *testing.T) {
	if FormatMP3320.Super() != SuperMP3 {
		t.Fatalf("expected FormatMP3320 to map to SuperMP3")
	}
	if FormatAAC48.Super() != SuperAAC {
		t.Fatalf("expected FormatAAC48 to map to SuperAAC")
	}
}

func TestStreamIdVariants(t *testing.T) {
	fileId := NewFileStreamId(FileID{0x01})
	if !fileId.IsFile() || fileId.IsEpisode() {
		t.Fatalf("expected file stream id")
	}
	episodeId := NewEpisodeStreamId(sampleGID())
	if !episodeId.IsEpisode() || episodeId.IsFile() {
		t.Fatalf("expected episode stream id")
	}
}
