// Package base62 implements the custom base62 codec used for Spotify ids.
package base62

import (
	"errors"
	"math/big"
)

// alphabet is Spotify's base62 character set: digits, then lowercase, then
// uppercase. This is the inverse ordering of the usual "0-9A-Za-z" scheme.
const alphabet = "0123456789abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ"

// ErrInvalidChar is returned when decoding a string containing a character
// outside the base62 alphabet.
var ErrInvalidChar = errors.New("base62: invalid character")

var (
	base     = big.NewInt(int64(len(alphabet)))
	charToVal [256]int8
)

func init() {
	for i := range charToVal {
		charToVal[i] = -1
	}
	for i, c := range []byte(alphabet) {
		charToVal[c] = int8(i)
	}
}

// Encode converts raw bytes (interpreted as a big-endian integer) to a
// base62 string of exactly width characters, left-padded with the zero
// symbol ('0').
func Encode(data []byte, width int) string {
	n := new(big.Int).SetBytes(data)
	if n.Sign() == 0 {
		return pad("", width)
	}

	buf := make([]byte, 0, width)
	mod := new(big.Int)
	for n.Sign() > 0 {
		n.DivMod(n, base, mod)
		buf = append(buf, alphabet[mod.Int64()])
	}
	// buf is least-significant-first; reverse it.
	for i, j := 0, len(buf)-1; i < j; i, j = i+1, j-1 {
		buf[i], buf[j] = buf[j], buf[i]
	}
	return pad(string(buf), width)
}

func pad(s string, width int) string {
	if len(s) >= width {
		return s
	}
	padding := make([]byte, width-len(s))
	for i := range padding {
		padding[i] = alphabet[0]
	}
	return string(padding) + s
}

// Decode converts a base62 string back to exactly byteLen bytes,
// left-padding the result with zero bytes if the decoded integer is
// shorter than byteLen.
func Decode(s string, byteLen int) ([]byte, error) {
	n := new(big.Int)
	for i := 0; i < len(s); i++ {
		v := charToVal[s[i]]
		if v < 0 {
			return nil, ErrInvalidChar
		}
		n.Mul(n, base)
		n.Add(n, big.NewInt(int64(v)))
	}

	raw := n.Bytes()
	if len(raw) > byteLen {
		// Caller asked for fewer bytes than the integer needs (an
		// oversized input); keep only the low-order byteLen bytes.
		raw = raw[len(raw)-byteLen:]
	}

	out := make([]byte, byteLen)
	copy(out[byteLen-len(raw):], raw)
	return out, nil
}
