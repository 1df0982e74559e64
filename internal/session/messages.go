package session

import (
	"crypto/hmac"
	"crypto/sha1"
	"encoding/binary"
	"fmt"
)

func hmacSHA1(key, msg []byte) []byte {
	h := hmac.New(sha1.New, key)
	h.Write(msg)
	return h.Sum(nil)
}

// putLV appends a length-prefixed (uint16 BE) field to buf.
func putLV(buf []byte, v []byte) []byte {
	var l [2]byte
	binary.BigEndian.PutUint16(l[:], uint16(len(v)))
	buf = append(buf, l[:]...)
	buf = append(buf, v...)
	return buf
}

// readLV reads a length-prefixed field from buf starting at off, returning
// the value and the new offset.
func readLV(buf []byte, off int) ([]byte, int, error) {
	if off+2 > len(buf) {
		return nil, 0, fmt.Errorf("session: truncated length-prefixed field")
	}
	l := int(binary.BigEndian.Uint16(buf[off : off+2]))
	off += 2
	if off+l > len(buf) {
		return nil, 0, fmt.Errorf("session: truncated length-prefixed field body")
	}
	return buf[off : off+l], off + l, nil
}

// clientHello is the minimal subset of the access point's key-exchange
// ClientHello this client sends: crypto suite (always Shannon), 16-byte
// client nonce, DH public value, and a padding byte. No build string is
// carried in it.
// Encoded as a sequence of length-prefixed fields rather than real
// protobuf wire bytes: generating the actual .proto bindings requires
// protoc, which this environment cannot invoke.
type clientHello struct {
	ClientNonce [16]byte
	DHPublicKey []byte
	Padding     byte
}

func (h *clientHello) encode() []byte {
	buf := make([]byte, 0, 2+16+2+len(h.DHPublicKey)+1)
	buf = append(buf, 1) // cryptosuite: SHANNON
	buf = append(buf, h.ClientNonce[:]...)
	buf = putLV(buf, h.DHPublicKey)
	buf = append(buf, h.Padding)
	return buf
}

// apResponse is the access point's key-exchange challenge: its DH public
// value and the RSA signature over it.
type apResponse struct {
	GSPublicKey []byte
	GSSignature []byte
}

func decodeAPResponse(buf []byte) (*apResponse, error) {
	gs, off, err := readLV(buf, 0)
	if err != nil {
		return nil, err
	}
	sig, _, err := readLV(buf, off)
	if err != nil {
		return nil, err
	}
	return &apResponse{GSPublicKey: gs, GSSignature: sig}, nil
}

// encode is the inverse of decodeAPResponse, used by tests to build
// fixtures and by any future fake access point.
func (r *apResponse) encode() []byte {
	buf := putLV(nil, r.GSPublicKey)
	buf = putLV(buf, r.GSSignature)
	return buf
}

// clientResponsePlaintext carries the client's HMAC-SHA1 answer to the
// access point's key-exchange challenge.
type clientResponsePlaintext struct {
	HMAC []byte
}

func (r *clientResponsePlaintext) encode() []byte {
	return putLV(nil, r.HMAC)
}
