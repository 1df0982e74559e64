package session

import (
	"encoding/xml"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/spotifyclient/gosptok/internal/apframe"
)

// State is the session's connection state, mirroring the teacher's
// peer.ConnectionState atomic state machine.
type State int32

const (
	StateDisconnected State = iota
	StateConnecting
	StateHandshaking
	StateConnected
	StateReconnecting
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "DISCONNECTED"
	case StateConnecting:
		return "CONNECTING"
	case StateHandshaking:
		return "HANDSHAKING"
	case StateConnected:
		return "CONNECTED"
	case StateReconnecting:
		return "RECONNECTING"
	default:
		return "UNKNOWN"
	}
}

// ErrClosed is returned by Send and other operations once the session has
// been closed.
var ErrClosed = errors.New("session: closed")

// Session owns the access point TCP connection, the two Shannon ciphers,
// and the receiver goroutine. It exclusively owns the transport socket and
// cipher pair, matching the ownership rule from the data model: managers
// (mercury, audio-key) hold a reference to the Session, not to the
// socket directly.
type Session struct {
	cfg Config

	mu     sync.Mutex // guards conn, reader, writer
	conn   net.Conn
	reader *apframe.Reader
	writer *apframe.Writer

	state atomic.Int32

	welcomeMu sync.RWMutex
	welcome   *loginResult
	creds     Credentials

	attrsMu        sync.RWMutex
	countryCode    string
	userAttributes map[string]string

	lastPing atomic.Int64 // unix nanos

	reconnector *Reconnector

	closeOnce sync.Once
	closed    chan struct{}
}

// New constructs a Session but does not connect; call Connect to dial and
// authenticate for the first time.
func New(cfg Config, creds Credentials) *Session {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	s := &Session{
		cfg:            cfg,
		creds:          creds,
		userAttributes: make(map[string]string),
		closed:         make(chan struct{}),
	}
	s.state.Store(int32(StateDisconnected))
	s.reconnector = NewReconnector(cfg.Reconnect, s.reconnectOnce)
	return s
}

// State returns the current connection state.
func (s *Session) State() State { return State(s.state.Load()) }

// Done returns a channel closed once the session has been permanently
// closed via Close.
func (s *Session) Done() <-chan struct{} { return s.closed }

// CountryCode returns the country code reported by the access point, or
// "" if not yet received.
func (s *Session) CountryCode() string {
	s.attrsMu.RLock()
	defer s.attrsMu.RUnlock()
	return s.countryCode
}

// UserAttribute returns a product-info attribute, or "" if absent.
func (s *Session) UserAttribute(key string) string {
	s.attrsMu.RLock()
	defer s.attrsMu.RUnlock()
	return s.userAttributes[key]
}

// Username returns the canonical username resolved at login, or "" before
// a successful Connect.
func (s *Session) Username() string {
	s.welcomeMu.RLock()
	defer s.welcomeMu.RUnlock()
	if s.welcome == nil {
		return ""
	}
	return s.welcome.Username
}

// ReusableCredentials returns the credential blob to persist for future
// logins, or nil before a successful Connect.
func (s *Session) ReusableCredentials() []byte {
	s.welcomeMu.RLock()
	defer s.welcomeMu.RUnlock()
	if s.welcome == nil {
		return nil
	}
	return s.welcome.ReusableAuthData
}

// Connect dials the access point, performs key exchange and login, and
// starts the receiver loop.
func (s *Session) Connect() error {
	s.state.Store(int32(StateConnecting))

	addr, err := s.cfg.ResolveAccessPoint()
	if err != nil {
		return fmt.Errorf("session: resolving access point: %w", err)
	}

	conn, err := net.Dial("tcp", addr)
	if err != nil {
		return fmt.Errorf("session: dialing %s: %w", addr, err)
	}

	s.state.Store(int32(StateHandshaking))
	hs, err := performHandshake(conn, s.cfg.HandshakeTimeout)
	if err != nil {
		conn.Close()
		return err
	}

	reader := apframe.NewReader(conn, hs.Recv)
	writer := apframe.NewWriter(conn, hs.Send)

	result, err := login(writer, reader, s.creds, s.cfg.Device)
	if err != nil {
		conn.Close()
		return err
	}
	if err := postLoginHandshake(writer, "en"); err != nil {
		conn.Close()
		return err
	}

	s.mu.Lock()
	s.conn = conn
	s.reader = reader
	s.writer = writer
	s.mu.Unlock()

	s.welcomeMu.Lock()
	s.welcome = result
	s.welcomeMu.Unlock()

	s.state.Store(int32(StateConnected))
	s.lastPing.Store(time.Now().UnixNano())
	s.reconnector.Reset()

	go s.receiveLoop(conn, reader)
	go s.pingWatchdog()

	return nil
}

// Send writes a packet to the access point.
func (s *Session) Send(cmd byte, payload []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.writer == nil {
		return ErrClosed
	}
	return s.writer.WritePacket(cmd, payload)
}

func (s *Session) receiveLoop(conn net.Conn, reader *apframe.Reader) {
	for {
		pkt, err := reader.ReadPacket()
		if err != nil {
			select {
			case <-s.closed:
				return
			default:
			}
			s.handleDisconnect(err)
			return
		}
		s.dispatch(pkt)
	}
}

func (s *Session) dispatch(pkt *apframe.Packet) {
	switch pkt.Cmd {
	case apframe.CmdPing:
		s.lastPing.Store(time.Now().UnixNano())
		_ = s.Send(apframe.CmdPong, pkt.Payload)
	case apframe.CmdCountryCode:
		s.attrsMu.Lock()
		s.countryCode = string(pkt.Payload)
		s.attrsMu.Unlock()
	case apframe.CmdProductInfo:
		s.parseProductInfo(pkt.Payload)
	case apframe.CmdLicenseVersion:
		// informational only
	case apframe.CmdMercuryReq, apframe.CmdMercurySub, apframe.CmdMercuryUnsub, apframe.CmdMercuryEvent:
		if s.cfg.MercuryHandler != nil {
			if err := s.cfg.MercuryHandler(pkt.Cmd, pkt.Payload); err != nil {
				s.cfg.Logger.Warn("session: mercury handler error", "error", err)
			}
		}
	default:
		if s.cfg.OnPacket != nil {
			s.cfg.OnPacket(pkt.Cmd, pkt.Payload)
		}
	}
}

// productInfoDoc is the minimal XML shape of the product_info payload: a
// flat bag of tag/value pairs under <products><product>.
type productInfoDoc struct {
	XMLName xml.Name `xml:"products"`
	Product struct {
		Attrs []productAttr `xml:",any"`
	} `xml:"product"`
}

type productAttr struct {
	XMLName xml.Name
	Value   string `xml:",chardata"`
}

func (s *Session) parseProductInfo(payload []byte) {
	var doc productInfoDoc
	if err := xml.Unmarshal(payload, &doc); err != nil {
		s.cfg.Logger.Warn("session: failed to parse product_info", "error", err)
		return
	}
	s.attrsMu.Lock()
	for _, a := range doc.Product.Attrs {
		s.userAttributes[a.XMLName.Local] = a.Value
	}
	s.attrsMu.Unlock()
}

func (s *Session) pingWatchdog() {
	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-s.closed:
			return
		case <-ticker.C:
			last := time.Unix(0, s.lastPing.Load())
			if time.Since(last) > s.cfg.PingTimeout {
				s.handleDisconnect(fmt.Errorf("session: no ping received within %s", s.cfg.PingTimeout))
				return
			}
		}
	}
}

func (s *Session) handleDisconnect(err error) {
	s.state.Store(int32(StateReconnecting))
	s.mu.Lock()
	if s.conn != nil {
		s.conn.Close()
		s.conn = nil
	}
	s.mu.Unlock()

	if s.cfg.OnDisconnect != nil {
		s.cfg.OnDisconnect(err)
	}
	s.reconnector.Schedule()
}

// reconnectOnce is the Reconnector callback: re-resolve, redial, redo key
// exchange and login with the stored reusable credential.
func (s *Session) reconnectOnce() error {
	select {
	case <-s.closed:
		return nil
	default:
	}

	reusable := s.ReusableCredentials()
	if len(reusable) > 0 {
		s.creds = Credentials{
			Typ:      AuthStoredSpotifyCredentials,
			Username: s.Username(),
			AuthData: reusable,
		}
	}
	return s.Connect()
}

// Close tears down the connection and stops the receiver loop permanently.
func (s *Session) Close() error {
	var err error
	s.closeOnce.Do(func() {
		s.reconnector.Stop()
		s.state.Store(int32(StateDisconnected))
		s.mu.Lock()
		if s.conn != nil {
			err = s.conn.Close()
		}
		s.mu.Unlock()
		close(s.closed)
	})
	return err
}
