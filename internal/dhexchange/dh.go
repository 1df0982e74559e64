// Package dhexchange implements the fixed-group Diffie-Hellman exchange
// used to derive the session's shared secret during key exchange, grounded
// on the teacher's internal/crypto key-agreement helpers but swapping X25519
// for the access point's fixed 768-bit multiplicative group.
package dhexchange

import (
	"crypto/rand"
	"errors"
	"math/big"
)

// privateKeyBytes is the number of random bytes used for the private
// exponent, matching the access point's handshake.
const privateKeyBytes = 95

// generator is the fixed base for the exchange.
var generator = big.NewInt(2)

// prime is the RFC 2409 (MODP group 1) 768-bit prime used by the access
// point's key exchange.
var prime = mustPrime(
	"FFFFFFFFFFFFFFFFC90FDAA22168C234C4C6628B80DC1CD1" +
		"29024E088A67CC74020BBEA63B139B22514A08798E3404DD" +
		"EF9519B3CD3A431B302B0A6DF25F14374FE1356D6D51C245" +
		"E485B576625E7EC6F44C42E9A637ED6B0BFF5CB6F406B7ED",
)

func mustPrime(hexDigits string) *big.Int {
	n, ok := new(big.Int).SetString(hexDigits, 16)
	if !ok {
		panic("dhexchange: invalid baked-in prime")
	}
	return n
}

// ErrInvalidPublicKey is returned when a peer's public key is out of range
// for the fixed group (zero, or >= prime).
var ErrInvalidPublicKey = errors.New("dhexchange: invalid peer public key")

// KeyPair is a Diffie-Hellman keypair over the access point's fixed group.
type KeyPair struct {
	private *big.Int
	public  *big.Int
}

// Generate draws a fresh private exponent from crypto/rand and derives the
// matching public key.
func Generate() (*KeyPair, error) {
	buf := make([]byte, privateKeyBytes)
	if _, err := rand.Read(buf); err != nil {
		return nil, err
	}
	priv := new(big.Int).SetBytes(buf)
	pub := new(big.Int).Exp(generator, priv, prime)
	return &KeyPair{private: priv, public: pub}, nil
}

// PublicKeyBytes returns the public key as a big-endian byte slice, left
// padded to the width of the prime.
func (k *KeyPair) PublicKeyBytes() []byte {
	return leftPad(k.public.Bytes(), (prime.BitLen()+7)/8)
}

// SharedSecret computes the shared secret with a peer's public key, given
// as a big-endian byte slice. The result is left-trimmed of leading zero
// bytes, matching the access point's own encoding.
func (k *KeyPair) SharedSecret(peerPublic []byte) ([]byte, error) {
	peer := new(big.Int).SetBytes(peerPublic)
	if peer.Sign() <= 0 || peer.Cmp(prime) >= 0 {
		return nil, ErrInvalidPublicKey
	}
	shared := new(big.Int).Exp(peer, k.private, prime)
	return shared.Bytes(), nil
}

func leftPad(b []byte, width int) []byte {
	if len(b) >= width {
		return b
	}
	out := make([]byte, width)
	copy(out[width-len(b):], b)
	return out
}
