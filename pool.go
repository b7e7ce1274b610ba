package saldo

import (
	"container/list"
	"context"
	"sync"
	"sync/atomic"
	"time"
)

// ConnectionPoolConfig holds connection pool limits.
type ConnectionPoolConfig struct {
	// MaxPerHost caps concurrent slots per host.
	MaxPerHost int
	// MaxTotal caps concurrent slots across all hosts.
	MaxTotal int
	// MaxQueueSize caps waiting acquirers; further acquires fail fast.
	MaxQueueSize int
}

func (c ConnectionPoolConfig) withDefaults() ConnectionPoolConfig {
	if c.MaxPerHost == 0 {
		c.MaxPerHost = 10
	}
	if c.MaxTotal == 0 {
		c.MaxTotal = 100
	}
	if c.MaxQueueSize == 0 {
		c.MaxQueueSize = 100
	}
	return c
}

// PoolSlot is the ownership token for one permitted concurrent connection.
// The acquiring call owns it exclusively and must release it exactly once on
// every exit path; extra releases are no-ops.
type PoolSlot struct {
	pool       *ConnectionPool
	host       string
	acquiredAt time.Time
	released   uint32
}

// Host returns the host this slot counts against.
func (s *PoolSlot) Host() string {
	return s.host
}

// Release returns the slot to the pool and wakes the oldest eligible
// waiter. Safe to call more than once; only the first call has effect.
func (s *PoolSlot) Release() {
	if !atomic.CompareAndSwapUint32(&s.released, 0, 1) {
		return
	}
	s.pool.release(s.host)
}

type poolWaiter struct {
	host    string
	ready   chan *PoolSlot
	element *list.Element
}

// ConnectionPool bounds concurrent connections per host and overall.
// Acquirers beyond the limits queue FIFO up to MaxQueueSize; a release
// hands the freed capacity to the oldest waiter whose host has room.
type ConnectionPool struct {
	config ConnectionPoolConfig

	mu      sync.Mutex
	perHost map[string]int
	total   int
	queue   *list.List
}

// NewConnectionPool creates a pool with the given limits.
func NewConnectionPool(config ConnectionPoolConfig) *ConnectionPool {
	return &ConnectionPool{
		config:  config.withDefaults(),
		perHost: make(map[string]int),
		queue:   list.New(),
	}
}

// Acquire obtains a slot for host, blocking while the host or pool is at
// capacity. Returns ErrPoolQueueFull when the waiter queue is full, or the
// context error if ctx ends while queued.
func (p *ConnectionPool) Acquire(ctx context.Context, host string) (*PoolSlot, error) {
	p.mu.Lock()

	if p.hasCapacityLocked(host) {
		slot := p.grantLocked(host)
		p.mu.Unlock()
		return slot, nil
	}

	if p.queue.Len() >= p.config.MaxQueueSize {
		p.mu.Unlock()
		return nil, ErrPoolQueueFull
	}

	w := &poolWaiter{
		host:  host,
		ready: make(chan *PoolSlot, 1),
	}
	w.element = p.queue.PushBack(w)
	p.mu.Unlock()

	select {
	case slot := <-w.ready:
		return slot, nil
	case <-ctx.Done():
		p.mu.Lock()
		if w.element != nil {
			p.queue.Remove(w.element)
			w.element = nil
			p.mu.Unlock()
			return nil, ctx.Err()
		}
		p.mu.Unlock()
		// A release granted the slot concurrently with cancellation; give
		// it straight back so the count stays balanced.
		slot := <-w.ready
		slot.Release()
		return nil, ctx.Err()
	}
}

// release is called by PoolSlot.Release.
func (p *ConnectionPool) release(host string) {
	p.mu.Lock()

	if n := p.perHost[host]; n <= 1 {
		delete(p.perHost, host)
	} else {
		p.perHost[host] = n - 1
	}
	if p.total > 0 {
		p.total--
	}

	// Wake the oldest waiter whose host has room. Waiters for saturated
	// hosts keep their place in line.
	for e := p.queue.Front(); e != nil; e = e.Next() {
		w := e.Value.(*poolWaiter)
		if !p.hasCapacityLocked(w.host) {
			continue
		}
		p.queue.Remove(e)
		w.element = nil
		slot := p.grantLocked(w.host)
		p.mu.Unlock()
		w.ready <- slot
		return
	}

	p.mu.Unlock()
}

// hasCapacityLocked reports room for one more slot on host. Caller holds mu.
func (p *ConnectionPool) hasCapacityLocked(host string) bool {
	return p.perHost[host] < p.config.MaxPerHost && p.total < p.config.MaxTotal
}

// grantLocked increments the counters and mints a slot. Caller holds mu.
func (p *ConnectionPool) grantLocked(host string) *PoolSlot {
	p.perHost[host]++
	p.total++
	return &PoolSlot{
		pool:       p,
		host:       host,
		acquiredAt: time.Now(),
	}
}

// PoolStats is a point-in-time snapshot of pool occupancy.
type PoolStats struct {
	Total   int
	PerHost map[string]int
	Queued  int
}

// Stats returns a snapshot of current occupancy and queue depth.
func (p *ConnectionPool) Stats() PoolStats {
	p.mu.Lock()
	defer p.mu.Unlock()
	perHost := make(map[string]int, len(p.perHost))
	for host, n := range p.perHost {
		perHost[host] = n
	}
	return PoolStats{
		Total:   p.total,
		PerHost: perHost,
		Queued:  p.queue.Len(),
	}
}

// ActiveForHost returns the slots currently held against host.
func (p *ConnectionPool) ActiveForHost(host string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.perHost[host]
}
