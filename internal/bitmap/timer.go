package bitmap

import (
	"sync"
	"time"
)

// Timer calls a function on a fixed period until stopped. Stopping keeps the
// period so the timer can be restarted later.
type Timer struct {
	mu      sync.Mutex
	period  time.Duration
	fn      func()
	stop    chan struct{}
	running bool
}

// NewTimer creates a stopped timer
func NewTimer(period time.Duration, fn func()) *Timer {
	if period <= 0 {
		period = 3 * time.Second
	}
	return &Timer{period: period, fn: fn}
}

// Start begins ticking. Starting a running timer does nothing.
func (t *Timer) Start() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.running {
		return
	}
	t.stop = make(chan struct{})
	t.running = true
	go t.loop(time.NewTicker(t.period), t.stop)
}

// Stop halts ticking without waiting for an in-flight call to return, so the
// callback itself may stop and restart the timer.
func (t *Timer) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.running {
		return
	}
	close(t.stop)
	t.running = false
}

func (t *Timer) IsRunning() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.running
}

func (t *Timer) Period() time.Duration {
	return t.period
}

func (t *Timer) loop(ticker *time.Ticker, stop <-chan struct{}) {
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			select {
			case <-stop:
				return
			default:
			}
			t.fn()
		}
	}
}
