package feeder

import (
	"testing"

	"github.com/spotifyclient/gosptok/internal/spclient"
	"github.com/spotifyclient/gosptok/internal/spotifyid"
)

func mustFileID(t *testing.T, b byte) spotifyid.FileID {
	t.Helper()
	var id spotifyid.FileID
	for i := range id {
		id[i] = b
	}
	return id
}

func TestDefaultQualityPickerPrefersConfiguredFormat(t *testing.T) {
	files := []spotifyid.AudioFile{
		{FileID: mustFileID(t, 1), Format: spotifyid.FormatOggVorbis320},
		{FileID: mustFileID(t, 2), Format: spotifyid.FormatMP3320},
	}

	picker := DefaultQualityPicker{}
	got, err := picker.GetFile(files, spotifyid.QualityVeryHigh, SuperAudioVorbis)
	if err != nil {
		t.Fatalf("GetFile: %v", err)
	}
	if got.Format != spotifyid.FormatOggVorbis320 {
		t.Fatalf("expected vorbis format, got %v", got.Format)
	}
}

func TestDefaultQualityPickerRelaxesTierWhenNoneMatch(t *testing.T) {
	files := []spotifyid.AudioFile{
		{FileID: mustFileID(t, 1), Format: spotifyid.FormatOggVorbis96},
	}

	picker := DefaultQualityPicker{}
	got, err := picker.GetFile(files, spotifyid.QualityLossless, SuperAudioVorbis)
	if err != nil {
		t.Fatalf("GetFile: %v", err)
	}
	if got.Format != spotifyid.FormatOggVorbis96 {
		t.Fatalf("expected relaxed-tier vorbis format, got %v", got.Format)
	}
}

func TestDefaultQualityPickerFailsWhenNoFormatMatches(t *testing.T) {
	files := []spotifyid.AudioFile{
		{FileID: mustFileID(t, 1), Format: spotifyid.FormatAAC24},
	}

	picker := DefaultQualityPicker{}
	_, err := picker.GetFile(files, spotifyid.QualityNormal, SuperAudioVorbis)
	if err == nil {
		t.Fatal("expected an error when no file matches the configured format")
	}
}

func TestPickAlternativeIfNecessaryFallsBackToAlternative(t *testing.T) {
	alt := []spotifyid.AudioFile{{FileID: mustFileID(t, 3), Format: spotifyid.FormatOggVorbis160}}
	track := TrackLike{Alternatives: [][]spotifyid.AudioFile{alt}}

	got, err := pickAlternativeIfNecessary(track)
	if err != nil {
		t.Fatalf("pickAlternativeIfNecessary: %v", err)
	}
	if len(got) != 1 || got[0].FileID != alt[0].FileID {
		t.Fatalf("expected alternative file set, got %v", got)
	}
}

func TestPickAlternativeIfNecessaryFailsWithNoFiles(t *testing.T) {
	_, err := pickAlternativeIfNecessary(TrackLike{})
	if err == nil {
		t.Fatal("expected an error when track and all alternatives are empty")
	}
}

func TestConvertFilesSkipsUnparseableEntries(t *testing.T) {
	in := []spclient.MetadataFile{
		{FileID: "not-hex", Format: "OGG_VORBIS_96"},
		{FileID: "0102030405060708090a0b0c0d0e0f1011121314", Format: "OGG_VORBIS_160"},
	}
	out := convertFiles(in)
	if len(out) != 1 {
		t.Fatalf("expected 1 parseable file, got %d", len(out))
	}
	if out[0].Format != spotifyid.FormatOggVorbis160 {
		t.Fatalf("expected vorbis 160, got %v", out[0].Format)
	}
}
