package session

import "testing"

func TestAPResponseRoundTrip(t *testing.T) {
	orig := apResponse{
		GSPublicKey: []byte{1, 2, 3, 4, 5},
		GSSignature: []byte{0xaa, 0xbb, 0xcc},
	}
	buf := orig.encode()

	decoded, err := decodeAPResponse(buf)
	if err != nil {
		t.Fatalf("decodeAPResponse: %v", err)
	}
	if string(decoded.GSPublicKey) != string(orig.GSPublicKey) {
		t.Fatalf("GSPublicKey mismatch: got %x want %x", decoded.GSPublicKey, orig.GSPublicKey)
	}
	if string(decoded.GSSignature) != string(orig.GSSignature) {
		t.Fatalf("GSSignature mismatch: got %x want %x", decoded.GSSignature, orig.GSSignature)
	}
}

func TestClientHelloEncodeIncludesNonceAndKey(t *testing.T) {
	h := clientHello{
		ClientNonce: [16]byte{0: 0xa1, 15: 0xb2},
		DHPublicKey: []byte{9, 9, 9},
		Padding:     0x1e,
	}
	buf := h.encode()
	if buf[0] != 1 {
		t.Fatalf("expected cryptosuite byte 1, got %d", buf[0])
	}
	if string(buf[1:17]) != string(h.ClientNonce[:]) {
		t.Fatalf("expected client nonce at bytes 1..16, got %x", buf[1:17])
	}
	if string(buf[17:22]) != string([]byte{0, 3, 9, 9, 9}) {
		t.Fatalf("expected length-prefixed DH key at bytes 17..21, got %x", buf[17:22])
	}
	if buf[len(buf)-1] != 0x1e {
		t.Fatalf("expected trailing padding byte 0x1e, got %#x", buf[len(buf)-1])
	}
}

func TestDeriveChallengeDataIsDeterministic(t *testing.T) {
	shared := []byte("shared-secret-bytes")
	transcript := []byte("transcript-bytes")

	a := deriveChallengeData(shared, transcript)
	b := deriveChallengeData(shared, transcript)

	if len(a) != 100 {
		t.Fatalf("expected 100 bytes, got %d", len(a))
	}
	if string(a) != string(b) {
		t.Fatalf("expected deterministic output for same inputs")
	}
}

func TestDeriveChallengeDataDiffersByTranscript(t *testing.T) {
	shared := []byte("shared-secret-bytes")
	a := deriveChallengeData(shared, []byte("transcript-one"))
	b := deriveChallengeData(shared, []byte("transcript-two"))
	if string(a) == string(b) {
		t.Fatalf("expected different transcripts to produce different data")
	}
}
