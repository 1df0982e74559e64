package audiokey

import (
	"encoding/binary"
	"sync"
	"testing"
	"time"
)

type captureSender struct {
	mu   sync.Mutex
	last []byte
}

func (s *captureSender) Send(cmd byte, payload []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.last = append([]byte(nil), payload...)
	return nil
}

func (s *captureSender) lastSeq() uint32 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return binary.BigEndian.Uint32(s.last[36:40])
}

func TestGetReturnsKeyOnSuccess(t *testing.T) {
	sender := &captureSender{}
	mgr := NewManager(sender)

	var fileID [20]byte
	var gid [16]byte
	for i := range fileID {
		fileID[i] = byte(i)
	}

	resultCh := make(chan [16]byte, 1)
	errCh := make(chan error, 1)
	go func() {
		key, err := mgr.Get(fileID, gid, true)
		if err != nil {
			errCh <- err
			return
		}
		resultCh <- key
	}()

	time.Sleep(20 * time.Millisecond)
	seq := sender.lastSeq()

	resp := make([]byte, 4+16)
	binary.BigEndian.PutUint32(resp[0:4], seq)
	for i := 0; i < 16; i++ {
		resp[4+i] = byte(0xa0 + i)
	}
	if err := mgr.HandlePacket(cmdAesKey, resp); err != nil {
		t.Fatalf("HandlePacket: %v", err)
	}

	select {
	case key := <-resultCh:
		if key[0] != 0xa0 {
			t.Fatalf("unexpected key %x", key)
		}
	case err := <-errCh:
		t.Fatalf("unexpected error: %v", err)
	case <-time.After(time.Second):
		t.Fatal("Get did not return in time")
	}
}

func TestGetReturnsErrorOnAesKeyError(t *testing.T) {
	sender := &captureSender{}
	mgr := NewManager(sender)

	var fileID [20]byte
	var gid [16]byte

	errCh := make(chan error, 1)
	go func() {
		_, err := mgr.Get(fileID, gid, false)
		errCh <- err
	}()

	time.Sleep(20 * time.Millisecond)
	seq := sender.lastSeq()

	resp := make([]byte, 4+2)
	binary.BigEndian.PutUint32(resp[0:4], seq)
	binary.BigEndian.PutUint16(resp[4:6], 7)
	if err := mgr.HandlePacket(cmdAesKeyError, resp); err != nil {
		t.Fatalf("HandlePacket: %v", err)
	}

	select {
	case err := <-errCh:
		keyErr, ok := err.(*Error)
		if !ok {
			t.Fatalf("expected *Error, got %T: %v", err, err)
		}
		if keyErr.Code != 7 {
			t.Fatalf("expected code 7, got %d", keyErr.Code)
		}
	case <-time.After(time.Second):
		t.Fatal("Get did not return in time")
	}
}
