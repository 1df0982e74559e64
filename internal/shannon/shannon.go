// Package shannon implements the Shannon stream cipher used to encrypt the
// session's packet framing once the Diffie-Hellman handshake has completed.
package shannon

import "encoding/binary"

const (
	numWords  = 16
	foldCount = numWords
	initKonst = 0x6996c53a
	keyP      = 13
)

// Cipher is a keyed Shannon stream cipher instance. A Cipher is created with
// Key, then re-seeded per direction with Nonce before each packet.
//
// Cipher is not safe for concurrent use; callers serialize access the same
// way the session serializes writes under its mutex.
type Cipher struct {
	r     [numWords]uint32
	crc   [numWords]uint32
	initR [numWords]uint32
	konst uint32
	sbuf  uint32
	mbuf  uint32
	nbuf  uint
}

func rotl(v uint32, distance uint) uint32 {
	return (v << distance) | (v >> (32 - distance))
}

func (c *Cipher) sbox(i uint32) uint32 {
	i ^= rotl(i, 5) | rotl(i, 7)
	i ^= rotl(i, 19) | rotl(i, 22)
	return i
}

func (c *Cipher) sbox2(i uint32) uint32 {
	i ^= rotl(i, 7) | rotl(i, 22)
	i ^= rotl(i, 5) | rotl(i, 19)
	return i
}

// cycle advances the LFSR by one word, leaving the keystream word in sbuf.
func (c *Cipher) cycle() {
	t := c.r[12] ^ c.r[13] ^ c.konst
	t = c.sbox(t) ^ rotl(c.r[0], 1)
	for i := 1; i < numWords; i++ {
		c.r[i-1] = c.r[i]
	}
	c.r[numWords-1] = t

	t = c.sbox2(c.r[2] ^ c.r[15])
	c.r[0] ^= t
	c.sbuf = t ^ c.r[8] ^ c.r[12]
}

// crcFunc folds a data word into the CRC accumulator.
func (c *Cipher) crcFunc(i uint32) {
	t := c.crc[0] ^ c.crc[2] ^ c.crc[15] ^ i
	for j := 1; j < numWords; j++ {
		c.crc[j-1] = c.crc[j]
	}
	c.crc[numWords-1] = t
}

// macFunc folds a data word into the CRC accumulator and into R, so that the
// MAC produced by Finish depends on every word of plaintext processed.
func (c *Cipher) macFunc(i uint32) {
	c.crcFunc(i)
	c.r[keyP] ^= i
}

func (c *Cipher) initState() {
	c.r[0] = 1
	c.r[1] = 1
	for i := 2; i < numWords; i++ {
		c.r[i] = c.r[i-1] + c.r[i-2]
	}
	c.konst = initKonst
}

func (c *Cipher) saveState() { c.initR = c.r }

func (c *Cipher) reloadState() { c.r = c.initR }

func (c *Cipher) genKonst() { c.konst = c.r[0] }

func (c *Cipher) addKey(k uint32) { c.r[keyP] ^= k }

// diffuse cycles the LFSR foldCount times, discarding the keystream, so that
// every word of R has influenced every other word at least once.
func (c *Cipher) diffuse() {
	for i := 0; i < foldCount; i++ {
		c.cycle()
	}
}

// loadKey absorbs key/nonce material word by word, then folds the resulting
// CRC back into R so short keys still diffuse across all 16 words.
func (c *Cipher) loadKey(key []byte) {
	padded := make([]byte, ((len(key)+3)/4)*4)
	copy(padded, key)
	padded = append(padded, make([]byte, 4)...)
	binary.LittleEndian.PutUint32(padded[len(padded)-4:], uint32(len(key)))

	for i := 0; i+4 <= len(padded); i += 4 {
		c.r[keyP] ^= binary.LittleEndian.Uint32(padded[i : i+4])
		c.cycle()
	}

	c.crc = c.r
	c.diffuse()
	for i := 0; i < numWords; i++ {
		c.r[i] ^= c.crc[i]
	}
}

// Key initializes the cipher state from a key of arbitrary length and
// snapshots R for later Nonce() resets.
func (c *Cipher) Key(key []byte) {
	c.initState()
	c.loadKey(key)
	c.genKonst()
	c.saveState()
	c.nbuf = 0
}

// Nonce restores the post-Key() snapshot and absorbs a 32-bit big-endian
// counter as if it were a key, resetting the carry registers.
func (c *Cipher) Nonce(nonce uint32) {
	var buf [4]byte
	binary.BigEndian.PutUint32(buf[:], nonce)
	c.NonceBytes(buf[:])
}

// NonceBytes is Nonce's general form, accepting an arbitrary-length nonce.
func (c *Cipher) NonceBytes(nonce []byte) {
	c.reloadState()
	c.konst = initKonst
	c.loadKey(nonce)
	c.genKonst()
	c.nbuf = 0
}

// Encrypt XORs buf with the keystream in place, MACing the plaintext as it
// is consumed. buf must not straddle two logical packets: callers that need
// the byte-at-a-time carry register to persist across writes must keep
// using the same Cipher without an intervening Nonce.
func (c *Cipher) Encrypt(buf []byte) {
	i := 0
	n := len(buf)

	if c.nbuf != 0 {
		for c.nbuf != 0 && n != 0 {
			c.mbuf ^= uint32(buf[i]) << (32 - c.nbuf)
			buf[i] ^= byte(c.sbuf >> (32 - c.nbuf))
			i++
			c.nbuf -= 8
			n--
		}
		if c.nbuf != 0 {
			return
		}
		c.macFunc(c.mbuf)
	}

	full := n &^ 0x03
	end := i + full
	for i < end {
		c.cycle()
		t := binary.LittleEndian.Uint32(buf[i : i+4])
		c.macFunc(t)
		t ^= c.sbuf
		binary.LittleEndian.PutUint32(buf[i:i+4], t)
		i += 4
	}
	n &= 0x03
	if n != 0 {
		c.cycle()
		c.mbuf = 0
		c.nbuf = 32
		for c.nbuf != 0 && n != 0 {
			c.mbuf ^= uint32(buf[i]) << (32 - c.nbuf)
			buf[i] ^= byte(c.sbuf >> (32 - c.nbuf))
			i++
			c.nbuf -= 8
			n--
		}
	}
}

// Decrypt XORs buf with the keystream in place, MACing the recovered
// plaintext as it is produced.
func (c *Cipher) Decrypt(buf []byte) {
	i := 0
	n := len(buf)

	if c.nbuf != 0 {
		for c.nbuf != 0 && n != 0 {
			buf[i] ^= byte(c.sbuf >> (32 - c.nbuf))
			c.mbuf ^= uint32(buf[i]) << (32 - c.nbuf)
			i++
			c.nbuf -= 8
			n--
		}
		if c.nbuf != 0 {
			return
		}
		c.macFunc(c.mbuf)
	}

	full := n &^ 0x03
	end := i + full
	for i < end {
		c.cycle()
		t := binary.LittleEndian.Uint32(buf[i : i+4])
		t ^= c.sbuf
		c.macFunc(t)
		binary.LittleEndian.PutUint32(buf[i:i+4], t)
		i += 4
	}
	n &= 0x03
	if n != 0 {
		c.cycle()
		c.mbuf = 0
		c.nbuf = 32
		for c.nbuf != 0 && n != 0 {
			buf[i] ^= byte(c.sbuf >> (32 - c.nbuf))
			c.mbuf ^= uint32(buf[i]) << (32 - c.nbuf)
			i++
			c.nbuf -= 8
			n--
		}
	}
}

// Finish absorbs residual carry state and emits an n-byte MAC.
func (c *Cipher) Finish(n int) []byte {
	if c.nbuf != 0 {
		c.macFunc(c.mbuf)
	}
	c.cycle()
	c.addKey(initKonst ^ (uint32(c.nbuf) << 3))
	c.nbuf = 0
	for j := 0; j < numWords; j++ {
		c.r[j] ^= c.crc[j]
	}
	c.diffuse()

	out := make([]byte, 0, n)
	for len(out) < n {
		c.cycle()
		remaining := n - len(out)
		if remaining >= 4 {
			var word [4]byte
			binary.LittleEndian.PutUint32(word[:], c.sbuf)
			out = append(out, word[:]...)
			continue
		}
		for j := 0; j < remaining; j++ {
			out = append(out, byte(c.sbuf>>(uint(j)*8)))
		}
		break
	}
	return out
}
