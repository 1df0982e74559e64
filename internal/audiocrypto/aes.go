// Package audiocrypto decrypts CDN-delivered audio chunks with AES-128-CTR,
// following the access point's fixed IV-as-counter convention. This stays
// on the standard library's crypto/aes and crypto/cipher: both are constant
// time and hardware accelerated on amd64/arm64, and no example repo in the
// retrieval pack imports a third-party AES implementation to improve on
// that.
package audiocrypto

import (
	"crypto/aes"
	"crypto/cipher"
	"fmt"
)

// KeySize is the length in bytes of a per-file content key.
const KeySize = 16

// blockSize is the AES block size in bytes, and the width of the IV treated
// as a counter.
const blockSize = aes.BlockSize

// ChunkSize is the fixed logical chunk size the CDN streamer fetches and
// this package decrypts in whole.
const ChunkSize = 128 * 1024

// counterStepPerChunk is how many 16-byte counter units separate the start
// of chunk i from chunk i+1: ChunkSize/blockSize.
const counterStepPerChunk = ChunkSize / blockSize

// baseIV is the fixed 16-byte initialization vector treated as a big-endian
// counter. Every file uses the same baseIV; only the per-chunk offset and
// the per-file key differ.
var baseIV = [blockSize]byte{
	0x72, 0xe0, 0x67, 0xfb, 0xdd, 0xcb, 0xcf, 0x77,
	0xeb, 0xe8, 0xbc, 0x64, 0x3f, 0x63, 0x0d, 0x93,
}

// DecryptChunk decrypts a whole chunk of ciphertext in place, given the
// file's content key and the chunk's zero-based index within the file. The
// counter advances one AES block per 16 bytes for the rest of the chunk,
// which is exactly 0x100 per 4096-byte span the access point reinstantiates
// its own cipher on — running a single CTR stream across the contiguous
// chunk has the same effect.
func DecryptChunk(key [KeySize]byte, chunkIndex int, buf []byte) error {
	block, err := aes.NewCipher(key[:])
	if err != nil {
		return fmt.Errorf("audiocrypto: %w", err)
	}

	iv := addCounter(baseIV, uint64(chunkIndex)*counterStepPerChunk)
	stream := cipher.NewCTR(block, iv[:])
	stream.XORKeyStream(buf, buf)
	return nil
}

// addCounter adds n to the big-endian 128-bit integer represented by iv,
// returning a new IV.
func addCounter(iv [blockSize]byte, n uint64) [blockSize]byte {
	out := iv
	carry := n
	for i := blockSize - 1; i >= 0 && carry != 0; i-- {
		sum := uint64(out[i]) + carry&0xff
		out[i] = byte(sum)
		carry = carry>>8 + sum>>8
	}
	return out
}
