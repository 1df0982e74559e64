package session

import (
	"crypto/rand"
	"errors"
	"fmt"

	"github.com/spotifyclient/gosptok/internal/apframe"
)

// ErrAuthFailed is returned when the access point responds to login with
// an AuthFailure packet.
var ErrAuthFailed = errors.New("session: authentication failed")

// loginResult is what a successful login yields: a reusable credential
// blob to persist for future logins, and the canonical username the
// access point resolved.
type loginResult struct {
	Username        string
	ReusableAuthData []byte
}

// encodeLoginCredentials packs the minimal login payload the access point
// needs: authentication type, username, opaque auth data, and this
// client's device id and build string. Manually length-prefixed, for the
// same reason clientHello is: no protoc in this environment.
func encodeLoginCredentials(creds Credentials, device DeviceInfo) []byte {
	buf := []byte{byte(creds.Typ)}
	buf = putLV(buf, []byte(creds.Username))

	authData := creds.AuthData
	if creds.Typ == AuthUserPass && authData == nil {
		authData = []byte(creds.Password)
	}
	buf = putLV(buf, authData)
	buf = putLV(buf, device.DeviceID[:])
	buf = putLV(buf, []byte(device.DeviceName))
	buf = putLV(buf, []byte(device.BuildInfo))
	return buf
}

// decodeAPWelcome parses the APWelcome payload: canonical username and the
// reusable credential blob to persist for subsequent logins.
func decodeAPWelcome(buf []byte) (*loginResult, error) {
	username, off, err := readLV(buf, 0)
	if err != nil {
		return nil, err
	}
	reusable, _, err := readLV(buf, off)
	if err != nil {
		return nil, err
	}
	return &loginResult{Username: string(username), ReusableAuthData: reusable}, nil
}

// decodeAuthFailure parses the single-byte error code carried by an
// AuthFailure packet.
func decodeAuthFailure(buf []byte) error {
	if len(buf) == 0 {
		return fmt.Errorf("%w: empty error code", ErrAuthFailed)
	}
	return fmt.Errorf("%w: code %d", ErrAuthFailed, buf[0])
}

// login sends the login packet and waits for APWelcome or AuthFailure.
func login(rw *apframe.Writer, r *apframe.Reader, creds Credentials, device DeviceInfo) (*loginResult, error) {
	payload := encodeLoginCredentials(creds, device)
	if err := rw.WritePacket(apframe.CmdLogin, payload); err != nil {
		return nil, fmt.Errorf("session: sending login packet: %w", err)
	}

	pkt, err := r.ReadPacket()
	if err != nil {
		return nil, fmt.Errorf("session: reading login response: %w", err)
	}

	switch pkt.Cmd {
	case apframe.CmdAPWelcome:
		result, err := decodeAPWelcome(pkt.Payload)
		if err != nil {
			return nil, fmt.Errorf("session: decoding APWelcome: %w", err)
		}
		return result, nil
	case apframe.CmdAuthFailure:
		return nil, decodeAuthFailure(pkt.Payload)
	default:
		return nil, fmt.Errorf("session: unexpected packet cmd %#x during login", pkt.Cmd)
	}
}

// postLoginHandshake sends the two housekeeping packets the access point
// expects immediately after a successful welcome: a 20-byte random blob
// and the client's preferred locale.
func postLoginHandshake(w *apframe.Writer, preferredLocale string) error {
	var blob [20]byte
	if _, err := rand.Read(blob[:]); err != nil {
		return err
	}
	if err := w.WritePacket(apframe.CmdUnknown0x0f, blob[:]); err != nil {
		return err
	}
	return w.WritePacket(apframe.CmdPreferredLocale, []byte(preferredLocale))
}
