package shannon

import (
	"bytes"
	"encoding/hex"
	"testing"
)

// goldenZeroCiphertext is the known-answer ciphertext for key("test key
// 128bits"), nonce(0), encrypt(0x00 x 20), captured from the reference
// implementation.
const goldenZeroCiphertext = "4d7ed39cb695d96acf529770ec7dccbeae2b6f8c"

func freshPair(t *testing.T, key []byte, nonce uint32) (enc, dec *Cipher) {
	t.Helper()
	enc = &Cipher{}
	dec = &Cipher{}
	enc.Key(key)
	dec.Key(key)
	enc.Nonce(nonce)
	dec.Nonce(nonce)
	return enc, dec
}

func TestEncryptDecryptRoundTrip(t *testing.T) {
	cases := []struct {
		name  string
		key   []byte
		nonce uint32
		plain []byte
	}{
		{"empty", []byte("test key 128bits"), 0, nil},
		{"single byte", []byte("test key 128bits"), 0, []byte{0x42}},
		{"exact word", []byte("test key 128bits"), 1, []byte{1, 2, 3, 4}},
		{"multi word plus tail", []byte("test key 128bits"), 7, bytes.Repeat([]byte{0xAB}, 23)},
		{"twenty zero bytes", []byte("test key 128bits"), 0, make([]byte, 20)},
		{"short key", []byte("k"), 42, []byte("hello, world!")},
		{"long buffer", []byte("another test key"), 99, bytes.Repeat([]byte{1, 2, 3}, 100)},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			enc, dec := freshPair(t, tc.key, tc.nonce)

			original := append([]byte(nil), tc.plain...)
			buf := append([]byte(nil), tc.plain...)

			enc.Encrypt(buf)
			if len(buf) > 0 && bytes.Equal(buf, original) {
				t.Fatalf("ciphertext equals plaintext for non-empty input")
			}
			if tc.name == "twenty zero bytes" {
				want, err := hex.DecodeString(goldenZeroCiphertext)
				if err != nil {
					t.Fatalf("decoding golden ciphertext: %v", err)
				}
				if !bytes.Equal(buf, want) {
					t.Fatalf("golden vector mismatch: got %x want %x", buf, want)
				}
			}

			dec.Decrypt(buf)
			if !bytes.Equal(buf, original) {
				t.Fatalf("round trip mismatch: got %x want %x", buf, original)
			}

			encMAC := enc.Finish(4)
			decMAC := dec.Finish(4)
			if !bytes.Equal(encMAC, decMAC) {
				t.Fatalf("MAC mismatch: enc %x dec %x", encMAC, decMAC)
			}
			if len(encMAC) != 4 {
				t.Fatalf("expected 4-byte MAC, got %d bytes", len(encMAC))
			}
		})
	}
}

func TestEncryptIsDeterministic(t *testing.T) {
	key := []byte("test key 128bits")
	plain := bytes.Repeat([]byte{0x11, 0x22, 0x33}, 10)

	a, _ := freshPair(t, key, 5)
	b, _ := freshPair(t, key, 5)

	bufA := append([]byte(nil), plain...)
	bufB := append([]byte(nil), plain...)
	a.Encrypt(bufA)
	b.Encrypt(bufB)

	if !bytes.Equal(bufA, bufB) {
		t.Fatalf("same key/nonce produced different ciphertext")
	}
}

func TestNonceChangesKeystream(t *testing.T) {
	key := []byte("test key 128bits")
	plain := bytes.Repeat([]byte{0x11, 0x22, 0x33}, 10)

	a, _ := freshPair(t, key, 1)
	b, _ := freshPair(t, key, 2)

	bufA := append([]byte(nil), plain...)
	bufB := append([]byte(nil), plain...)
	a.Encrypt(bufA)
	b.Encrypt(bufB)

	if bytes.Equal(bufA, bufB) {
		t.Fatalf("different nonces produced identical ciphertext")
	}
}

func TestEncryptAcrossMultipleCallsMatchesSingleCall(t *testing.T) {
	key := []byte("test key 128bits")
	plain := bytes.Repeat([]byte{0xCD}, 17)

	whole, _ := freshPair(t, key, 3)
	bufWhole := append([]byte(nil), plain...)
	whole.Encrypt(bufWhole)
	macWhole := whole.Finish(4)

	split, _ := freshPair(t, key, 3)
	bufSplit := append([]byte(nil), plain...)
	split.Encrypt(bufSplit[:5])
	split.Encrypt(bufSplit[5:11])
	split.Encrypt(bufSplit[11:])
	macSplit := split.Finish(4)

	if !bytes.Equal(bufWhole, bufSplit) {
		t.Fatalf("split encrypt calls produced different ciphertext: %x vs %x", bufWhole, bufSplit)
	}
	if !bytes.Equal(macWhole, macSplit) {
		t.Fatalf("split encrypt calls produced different MAC: %x vs %x", macWhole, macSplit)
	}
}
