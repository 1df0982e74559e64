package session

import (
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha1"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math/big"
	"net"
	"time"

	"github.com/spotifyclient/gosptok/internal/dhexchange"
	"github.com/spotifyclient/gosptok/internal/shannon"
)

// helloMagic is the two-byte prefix ("protocol 0, revision 4") the access
// point expects before the length-prefixed ClientHello.
var helloMagic = [2]byte{0x00, 0x04}

// ErrHandshakeRejected is returned when the access point responds to the
// key-exchange challenge with an error frame instead of silence.
var ErrHandshakeRejected = errors.New("session: access point rejected key exchange")

// ErrSignatureInvalid is returned when the access point's RSA signature
// over its Diffie-Hellman public value does not verify.
var ErrSignatureInvalid = errors.New("session: access point signature check failed")

// serverPublicKey is the access point's baked-in RSA public key used to
// verify the gs_signature field of APResponseMessage. The exponent is
// fixed at 65537 per the access point's own key-exchange contract.
var serverPublicKey = &rsa.PublicKey{
	N: mustModulus(),
	E: 65537,
}

func mustModulus() *big.Int {
	n, ok := new(big.Int).SetString(
		"8FE351712EFD5EBFAF5589514D0B6078116F9C12493DF0A45D53633EC57FE50"+
			"6F3B97CE278FC585DD1D4AC1BF5ECEB5460A8471686D7EB88B778F1CF6DAB4D"+
			"7166BE4A0716F8F7173991FC832EA64073DF6257E97F7072A1EF8FD8FC583A3"+
			"C55A6E36BEEA5FF0DE1B51959ADA9096457895B23272329DA089BEB4469472C"+
			"4AE1", 16)
	if !ok {
		panic("session: invalid baked-in server modulus")
	}
	return n
}

// handshakeResult carries the two Shannon ciphers derived from a
// successful key exchange, one per direction.
type handshakeResult struct {
	Send *shannon.Cipher
	Recv *shannon.Cipher
}

// accumulator records every handshake byte written and read, in order; the
// final authentication HMAC is computed over this accumulated transcript,
// matching the access point's own challenge-response scheme.
type accumulator struct {
	buf []byte
}

func (a *accumulator) Write(p []byte) { a.buf = append(a.buf, p...) }

// performHandshake runs the plaintext Diffie-Hellman key exchange over
// conn and returns the two ciphers the rest of the session will use. This
// is dialer-only: the access point never initiates, so there is no
// listener-side counterpart (unlike the teacher's peer.Handshaker, which
// supports both).
func performHandshake(conn net.Conn, timeout time.Duration) (*handshakeResult, error) {
	if timeout > 0 {
		if err := conn.SetDeadline(time.Now().Add(timeout)); err != nil {
			return nil, err
		}
		defer conn.SetDeadline(time.Time{})
	}

	acc := &accumulator{}

	keys, err := dhexchange.Generate()
	if err != nil {
		return nil, fmt.Errorf("session: generating DH keypair: %w", err)
	}

	var nonce [16]byte
	if _, err := rand.Read(nonce[:]); err != nil {
		return nil, err
	}

	hello := clientHello{
		ClientNonce: nonce,
		DHPublicKey: keys.PublicKeyBytes(),
		Padding:     0x1e,
	}
	helloBytes := hello.encode()

	frame := make([]byte, 2+4+len(helloBytes))
	copy(frame[:2], helloMagic[:])
	binary.BigEndian.PutUint32(frame[2:6], uint32(len(frame)))
	copy(frame[6:], helloBytes)

	if _, err := conn.Write(frame); err != nil {
		return nil, fmt.Errorf("session: writing ClientHello: %w", err)
	}
	acc.Write(frame)

	var lenBuf [4]byte
	if _, err := io.ReadFull(conn, lenBuf[:]); err != nil {
		return nil, fmt.Errorf("session: reading APResponseMessage length: %w", err)
	}
	acc.Write(lenBuf[:])
	respLen := binary.BigEndian.Uint32(lenBuf[:])
	if respLen < 4 || respLen > 1<<20 {
		return nil, fmt.Errorf("session: implausible APResponseMessage length %d", respLen)
	}

	respBuf := make([]byte, respLen-4)
	if _, err := io.ReadFull(conn, respBuf); err != nil {
		return nil, fmt.Errorf("session: reading APResponseMessage: %w", err)
	}
	acc.Write(respBuf)

	resp, err := decodeAPResponse(respBuf)
	if err != nil {
		return nil, fmt.Errorf("session: decoding APResponseMessage: %w", err)
	}

	if err := verifySignature(resp.GSPublicKey, resp.GSSignature); err != nil {
		return nil, err
	}

	shared, err := keys.SharedSecret(resp.GSPublicKey)
	if err != nil {
		return nil, fmt.Errorf("session: computing shared secret: %w", err)
	}

	data := deriveChallengeData(shared, acc.buf)
	challenge := hmacSHA1(data[:20], acc.buf)

	respPlain := clientResponsePlaintext{HMAC: challenge}
	respPlainBytes := respPlain.encode()

	outFrame := make([]byte, 4+len(respPlainBytes))
	binary.BigEndian.PutUint32(outFrame[:4], uint32(len(outFrame)))
	copy(outFrame[4:], respPlainBytes)
	if _, err := conn.Write(outFrame); err != nil {
		return nil, fmt.Errorf("session: writing ClientResponsePlaintext: %w", err)
	}

	if err := checkRejection(conn); err != nil {
		return nil, err
	}

	send := &shannon.Cipher{}
	recv := &shannon.Cipher{}
	send.Key(data[20:52])
	recv.Key(data[52:84])

	return &handshakeResult{Send: send, Recv: recv}, nil
}

// checkRejection gives the access point one second to respond with an
// error frame instead of silence; silence means the challenge succeeded.
func checkRejection(conn net.Conn) error {
	if err := conn.SetReadDeadline(time.Now().Add(1 * time.Second)); err != nil {
		return err
	}
	defer conn.SetReadDeadline(time.Time{})

	var lenBuf [4]byte
	n, err := io.ReadFull(conn, lenBuf[:])
	if err != nil {
		if ne, ok := err.(net.Error); ok && ne.Timeout() {
			return nil
		}
		if n == 0 {
			return nil
		}
		return err
	}

	length := binary.BigEndian.Uint32(lenBuf[:])
	if length < 4 {
		return ErrHandshakeRejected
	}
	payload := make([]byte, length-4)
	io.ReadFull(conn, payload)
	return fmt.Errorf("%w: %x", ErrHandshakeRejected, payload)
}

// deriveChallengeData expands the shared secret into 100 bytes by
// concatenating HMAC-SHA1(shared, transcript || i) for i = 1..5.
func deriveChallengeData(shared, transcript []byte) []byte {
	data := make([]byte, 0, 100)
	for i := byte(1); i <= 5; i++ {
		msg := append(append([]byte(nil), transcript...), i)
		data = append(data, hmacSHA1(shared, msg)...)
	}
	return data
}

func verifySignature(gs, signature []byte) error {
	digest := sha1.Sum(gs)
	if err := rsa.VerifyPKCS1v15(serverPublicKey, crypto.SHA1, digest[:], signature); err != nil {
		return ErrSignatureInvalid
	}
	return nil
}
