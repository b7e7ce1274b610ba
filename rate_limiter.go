package saldo

import (
	"container/list"
	"context"
	"sync"
	"time"
)

// Limiter is the admission-control interface consulted before a request is
// sent. Admit blocks while the caller is queued and returns nil once the
// call may proceed.
type Limiter interface {
	Admit(ctx context.Context) error
}

// RateLimiterConfig holds sliding-window rate limiter configuration.
type RateLimiterConfig struct {
	// MaxRequests is the number of admissions allowed per Window.
	MaxRequests int
	// Window is the sliding window the admissions are counted over.
	Window time.Duration
	// QueueExcess queues callers over the limit instead of rejecting them.
	QueueExcess bool
	// MaxQueueSize caps queued callers; further callers fail fast.
	MaxQueueSize int
}

func (c RateLimiterConfig) withDefaults() RateLimiterConfig {
	if c.MaxRequests == 0 {
		c.MaxRequests = 100
	}
	if c.Window == 0 {
		c.Window = time.Second
	}
	if c.MaxQueueSize == 0 {
		c.MaxQueueSize = 100
	}
	return c
}

type limiterWaiter struct {
	ready   chan struct{}
	element *list.Element
}

// SlidingWindowLimiter admits up to MaxRequests calls per sliding Window,
// tracked as admission timestamps. Excess callers either fail immediately
// with ErrRateLimited or queue FIFO and are woken as the oldest admissions
// age out of the window.
type SlidingWindowLimiter struct {
	config RateLimiterConfig

	mu         sync.Mutex
	timestamps []time.Time
	queue      *list.List
	timer      *time.Timer
}

// NewSlidingWindowLimiter creates a limiter with the given configuration.
func NewSlidingWindowLimiter(config RateLimiterConfig) *SlidingWindowLimiter {
	return &SlidingWindowLimiter{
		config: config.withDefaults(),
		queue:  list.New(),
	}
}

// Admit implements the Limiter interface. Queued callers are admitted FIFO;
// cancellation removes the caller from the queue.
func (l *SlidingWindowLimiter) Admit(ctx context.Context) error {
	now := time.Now()
	l.mu.Lock()
	l.pruneLocked(now)

	// Queued callers go first; a fresh arrival may only slip through when
	// nobody is waiting.
	if l.queue.Len() == 0 && len(l.timestamps) < l.config.MaxRequests {
		l.timestamps = append(l.timestamps, now)
		l.mu.Unlock()
		return nil
	}

	if !l.config.QueueExcess {
		l.mu.Unlock()
		return ErrRateLimited
	}
	if l.queue.Len() >= l.config.MaxQueueSize {
		l.mu.Unlock()
		return ErrRateLimitQueueFull
	}

	w := &limiterWaiter{ready: make(chan struct{})}
	w.element = l.queue.PushBack(w)
	l.scheduleWakeLocked(now)
	l.mu.Unlock()

	select {
	case <-w.ready:
		return nil
	case <-ctx.Done():
		l.mu.Lock()
		if w.element != nil {
			l.queue.Remove(w.element)
			w.element = nil
		}
		l.mu.Unlock()
		return ctx.Err()
	}
}

// Release signals that an admitted operation finished. The window itself
// drains by time, so this only gives queued waiters an extra chance to run
// if room has opened.
func (l *SlidingWindowLimiter) Release() {
	l.mu.Lock()
	l.dispatchLocked(time.Now())
	l.mu.Unlock()
}

// InWindow returns the number of admissions inside the current window.
func (l *SlidingWindowLimiter) InWindow() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.pruneLocked(time.Now())
	return len(l.timestamps)
}

// QueueLength returns the number of callers currently queued.
func (l *SlidingWindowLimiter) QueueLength() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.queue.Len()
}

// pruneLocked drops admissions that have aged out. Caller holds mu.
func (l *SlidingWindowLimiter) pruneLocked(now time.Time) {
	cutoff := now.Add(-l.config.Window)
	i := 0
	for i < len(l.timestamps) && !l.timestamps[i].After(cutoff) {
		i++
	}
	if i > 0 {
		l.timestamps = append(l.timestamps[:0], l.timestamps[i:]...)
	}
}

// dispatchLocked admits queued waiters while the window has room, then
// schedules the next timer wake if any remain. Caller holds mu.
func (l *SlidingWindowLimiter) dispatchLocked(now time.Time) {
	l.pruneLocked(now)
	for l.queue.Len() > 0 && len(l.timestamps) < l.config.MaxRequests {
		e := l.queue.Front()
		w := e.Value.(*limiterWaiter)
		l.queue.Remove(e)
		w.element = nil
		l.timestamps = append(l.timestamps, now)
		close(w.ready)
	}
	if l.queue.Len() > 0 {
		l.scheduleWakeLocked(now)
	}
}

// scheduleWakeLocked arms the timer for the moment the oldest admission
// leaves the window. Caller holds mu.
func (l *SlidingWindowLimiter) scheduleWakeLocked(now time.Time) {
	if len(l.timestamps) == 0 {
		return
	}
	wakeIn := l.timestamps[0].Add(l.config.Window).Sub(now)
	if wakeIn < time.Millisecond {
		wakeIn = time.Millisecond
	}
	if l.timer == nil {
		l.timer = time.AfterFunc(wakeIn, l.onTimer)
		return
	}
	l.timer.Reset(wakeIn)
}

func (l *SlidingWindowLimiter) onTimer() {
	l.mu.Lock()
	l.dispatchLocked(time.Now())
	l.mu.Unlock()
}
