package session

import (
	"sync"
	"time"
)

// ReconnectConfig controls the exponential backoff used when the receiver
// loop hits a fatal error or the 125-second ping timeout fires. Shape and
// behavior lifted from the teacher's peer.ReconnectConfig/Reconnector.
type ReconnectConfig struct {
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Multiplier   float64
	MaxAttempts  int
	Jitter       float64
}

// DefaultReconnectConfig mirrors the teacher's peer.DefaultReconnectConfig.
func DefaultReconnectConfig() ReconnectConfig {
	return ReconnectConfig{
		InitialDelay: 1 * time.Second,
		MaxDelay:     60 * time.Second,
		Multiplier:   2.0,
		MaxAttempts:  0,
		Jitter:       0.2,
	}
}

// Reconnector schedules reconnect attempts for the single access-point
// connection a Session owns. Unlike the teacher's peer.Reconnector, there
// is only ever one address in flight, so the per-address map collapses to
// a single piece of state; the backoff and pause/resume behavior otherwise
// follows the same shape.
type Reconnector struct {
	cfg      ReconnectConfig
	callback func() error

	mu        sync.Mutex
	attempts  int
	nextDelay time.Duration
	timer     *time.Timer
	closed    bool
	paused    bool
	scheduled bool
}

// NewReconnector creates a Reconnector that invokes callback on each
// attempt.
func NewReconnector(cfg ReconnectConfig, callback func() error) *Reconnector {
	return &Reconnector{
		cfg:       cfg,
		callback:  callback,
		nextDelay: cfg.InitialDelay,
	}
}

// Schedule arms a reconnect attempt after the current backoff delay.
func (r *Reconnector) Schedule() {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed || r.paused {
		return
	}
	if r.cfg.MaxAttempts > 0 && r.attempts >= r.cfg.MaxAttempts {
		return
	}
	if r.timer != nil {
		r.timer.Stop()
	}

	delay := r.addJitter(r.nextDelay)
	r.scheduled = true
	r.timer = time.AfterFunc(delay, r.attempt)
}

func (r *Reconnector) attempt() {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	r.attempts++
	next := time.Duration(float64(r.nextDelay) * r.cfg.Multiplier)
	if next > r.cfg.MaxDelay {
		next = r.cfg.MaxDelay
	}
	r.nextDelay = next
	r.scheduled = false
	r.mu.Unlock()

	if err := r.callback(); err != nil {
		r.Schedule()
		return
	}

	r.Reset()
}

func (r *Reconnector) addJitter(d time.Duration) time.Duration {
	if r.cfg.Jitter <= 0 {
		return d
	}
	jitterRange := float64(d) * r.cfg.Jitter
	jitter := (float64(time.Now().UnixNano()%1000)/1000.0 - 0.5) * 2 * jitterRange
	result := time.Duration(float64(d) + jitter)
	if result < 0 {
		result = d
	}
	return result
}

// Reset clears backoff state after a successful reconnect.
func (r *Reconnector) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.timer != nil {
		r.timer.Stop()
	}
	r.attempts = 0
	r.nextDelay = r.cfg.InitialDelay
	r.scheduled = false
}

// Pause stops any pending attempt without resetting the backoff schedule.
func (r *Reconnector) Pause() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.paused || r.closed {
		return
	}
	r.paused = true
	if r.timer != nil {
		r.timer.Stop()
		r.timer = nil
	}
	r.scheduled = false
}

// Resume allows Schedule to arm attempts again.
func (r *Reconnector) Resume() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.paused = false
}

// Stop permanently disables the reconnector.
func (r *Reconnector) Stop() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = true
	if r.timer != nil {
		r.timer.Stop()
	}
	r.scheduled = false
}

// IsScheduled reports whether a reconnect attempt is currently pending.
func (r *Reconnector) IsScheduled() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.scheduled
}
