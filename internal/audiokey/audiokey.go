// Package audiokey implements the per-file AES key exchange carried over
// the session's packet channel: request/response keyed by a local sequence
// number, turned into a blocking call the same way internal/mercury turns
// its sequence-numbered frames into SendSync, and the same way the
// teacher's rpc.Executor.Execute turns exec.Cmd into a context-bounded call.
package audiokey

import (
	"encoding/binary"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"
)

// requestTimeout is how long Get waits for a response before retrying (or
// giving up, if this is already the retry).
const requestTimeout = 20 * time.Second

const (
	cmdRequestKey  = 0x0c
	cmdAesKey      = 0x0d
	cmdAesKeyError = 0x0e
)

// Error wraps the uint16 error code the access point returns in an
// aes_key_error packet.
type Error struct {
	Code uint16
}

func (e *Error) Error() string {
	return fmt.Sprintf("audiokey: access point returned error code %d", e.Code)
}

var errTimeout = errors.New("audiokey: request timed out")

// sender is the minimal session contract this manager needs.
type sender interface {
	Send(cmd byte, payload []byte) error
}

type pendingKey struct {
	key chan [16]byte
	err chan error
}

// Manager issues audio-key requests over a Session and dispatches the
// responses the session's receive loop feeds it via HandlePacket.
type Manager struct {
	send sender

	nextSeq atomic.Uint32

	mu      sync.Mutex
	pending map[uint32]*pendingKey
}

// NewManager builds a Manager that writes requests via send.
func NewManager(send sender) *Manager {
	return &Manager{send: send, pending: make(map[uint32]*pendingKey)}
}

// HandlePacket feeds one received aes_key or aes_key_error packet (cmd
// 0x0d/0x0e) into the manager. The first 4 bytes of the payload are the
// echoed sequence number.
func (m *Manager) HandlePacket(cmd byte, payload []byte) error {
	if len(payload) < 4 {
		return fmt.Errorf("audiokey: packet shorter than the 4-byte sequence field")
	}
	seq := binary.BigEndian.Uint32(payload[0:4])

	m.mu.Lock()
	entry, ok := m.pending[seq]
	if ok {
		delete(m.pending, seq)
	}
	m.mu.Unlock()
	if !ok {
		return nil
	}

	switch cmd {
	case cmdAesKey:
		if len(payload) < 4+16 {
			entry.err <- fmt.Errorf("audiokey: aes_key payload too short")
			return nil
		}
		var key [16]byte
		copy(key[:], payload[4:20])
		entry.key <- key
	case cmdAesKeyError:
		if len(payload) < 4+2 {
			entry.err <- fmt.Errorf("audiokey: aes_key_error payload too short")
			return nil
		}
		entry.err <- &Error{Code: binary.BigEndian.Uint16(payload[4:6])}
	default:
		entry.err <- fmt.Errorf("audiokey: unexpected command %#x", cmd)
	}
	return nil
}

// Get requests the AES key for fileID/trackGID, retrying exactly once on
// timeout when retry is true.
func (m *Manager) Get(fileID [20]byte, trackGID [16]byte, retry bool) ([16]byte, error) {
	key, err := m.attempt(fileID, trackGID)
	if err == nil {
		return key, nil
	}
	if !retry || !errors.Is(err, errTimeout) {
		return [16]byte{}, err
	}
	return m.attempt(fileID, trackGID)
}

func (m *Manager) attempt(fileID [20]byte, trackGID [16]byte) ([16]byte, error) {
	seq := m.nextSeq.Add(1)

	entry := &pendingKey{key: make(chan [16]byte, 1), err: make(chan error, 1)}
	m.mu.Lock()
	m.pending[seq] = entry
	m.mu.Unlock()

	req := make([]byte, 0, 16+16+4+2)
	req = append(req, fileID[:]...)
	req = append(req, trackGID[:]...)
	req = binary.BigEndian.AppendUint32(req, seq)
	req = append(req, 0x00, 0x00)

	if err := m.send.Send(cmdRequestKey, req); err != nil {
		m.mu.Lock()
		delete(m.pending, seq)
		m.mu.Unlock()
		return [16]byte{}, fmt.Errorf("audiokey: sending request: %w", err)
	}

	select {
	case key := <-entry.key:
		return key, nil
	case err := <-entry.err:
		return [16]byte{}, err
	case <-time.After(requestTimeout):
		m.mu.Lock()
		delete(m.pending, seq)
		m.mu.Unlock()
		return [16]byte{}, errTimeout
	}
}
