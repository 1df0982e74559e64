// Package session owns the TCP connection to a Spotify access point: key
// exchange, login, encrypted packet I/O, the receiver loop, and reconnect.
// Structured the same way the teacher's internal/peer package structures a
// mesh peer connection, adapted to a single always-dialed remote and the
// access point's own handshake and packet framing.
package session

import (
	"log/slog"
	"time"
)

// Credentials is the reusable login credential persisted after a
// successful authentication, so future sessions can skip interactive
// login. AuthData holds the opaque blob the access point issued; for
// username/password logins it is unset and Username/Password are used
// instead.
type Credentials struct {
	Typ      AuthType
	Username string
	Password string
	AuthData []byte
}

// AuthType mirrors the access point's LoginCredentials.AuthenticationType.
type AuthType int

const (
	AuthUserPass AuthType = iota
	AuthStoredSpotifyCredentials
	AuthSpotifyToken
)

// DeviceInfo identifies this client to the access point during login.
type DeviceInfo struct {
	DeviceID   [16]byte
	DeviceName string
	BuildInfo  string
}

// Config configures a Session. Field shapes mirror the teacher's
// peer.ConnectionConfig: timeouts plus callbacks invoked from the
// receiver's goroutine.
type Config struct {
	Device DeviceInfo

	// ResolveAccessPoint returns a host:port to dial. Called once per
	// connection attempt, including reconnects, so it can round-robin or
	// re-resolve.
	ResolveAccessPoint func() (string, error)

	HandshakeTimeout time.Duration
	PingTimeout      time.Duration

	// OnPacket is invoked from the receiver goroutine for packet commands
	// the session itself does not own (audio-key, channel). Mercury
	// commands (0xb2..0xb5) go to MercuryHandler instead, when set.
	OnPacket func(cmd byte, payload []byte)

	// MercuryHandler, if set, receives every mercury_{req,sub,unsub,event}
	// packet. Callers wire this to mercury.Client.HandlePacket once the
	// multiplexer is constructed around this Session.
	MercuryHandler func(cmd byte, payload []byte) error

	// OnDisconnect is invoked once per connection loss, before a
	// reconnect attempt is scheduled.
	OnDisconnect func(err error)

	Logger *slog.Logger

	Reconnect ReconnectConfig
}

// DefaultConfig returns a Config with the spec's fixed timeouts filled in.
func DefaultConfig(device DeviceInfo, resolve func() (string, error)) Config {
	return Config{
		Device:             device,
		ResolveAccessPoint: resolve,
		HandshakeTimeout:   10 * time.Second,
		PingTimeout:        125 * time.Second,
		Logger:             slog.Default(),
		Reconnect:          DefaultReconnectConfig(),
	}
}
