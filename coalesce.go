package saldo

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"sync"
	"time"
)

// CoalescedRequest is one in-flight call shared by every concurrent caller
// with the same fingerprint. The owner performs the network call and
// completes the entry; subscribers wait on it and each receive their own
// copy of the result.
type CoalescedRequest struct {
	fingerprint string
	startedAt   time.Time
	done        chan struct{}

	mu          sync.Mutex
	resp        *http.Response
	body        []byte
	err         error
	subscribers int
}

// Subscribers returns how many callers are attached, the owner included.
func (cr *CoalescedRequest) Subscribers() int {
	cr.mu.Lock()
	defer cr.mu.Unlock()
	return cr.subscribers
}

// Wait blocks until the owning call settles or ctx ends. On success each
// waiter receives a response with its own body reader and header copy.
func (cr *CoalescedRequest) Wait(ctx context.Context) (*http.Response, error) {
	select {
	case <-cr.done:
		cr.mu.Lock()
		defer cr.mu.Unlock()
		return cr.materializeLocked()
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// materializeLocked builds a caller-private copy of the settled result.
// Caller holds mu.
func (cr *CoalescedRequest) materializeLocked() (*http.Response, error) {
	if cr.err != nil || cr.resp == nil {
		return nil, cr.err
	}
	clone := *cr.resp
	clone.Header = cr.resp.Header.Clone()
	clone.Body = io.NopCloser(bytes.NewReader(cr.body))
	return &clone, nil
}

// CoalescingTracker merges concurrent identical reads into one underlying
// network call. The first caller for a fingerprint becomes the owner; later
// callers arriving while the call is in flight and inside the coalescing
// window attach as subscribers. Entries are removed as soon as the owner
// completes them.
type CoalescingTracker struct {
	window  time.Duration
	mu      sync.RWMutex
	entries map[string]*CoalescedRequest
}

// NewCoalescingTracker returns a tracker that attaches subscribers to calls
// started no longer than window ago.
func NewCoalescingTracker(window time.Duration) *CoalescingTracker {
	if window <= 0 {
		window = DefaultCoalescingWindow
	}
	return &CoalescingTracker{
		window:  window,
		entries: make(map[string]*CoalescedRequest),
	}
}

// Join registers interest in a fingerprint. It returns (entry, true) for
// the owner who must call Complete, and (entry, false) for a subscriber who
// should Wait. An in-flight entry older than the window is not joinable; it
// is displaced by a fresh entry whose caller becomes the new owner, so
// newcomers arriving during a long-running stale call still coalesce among
// themselves. Stale waiters keep their pointer and settle when the old
// owner completes.
func (t *CoalescingTracker) Join(key string) (*CoalescedRequest, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if entry, exists := t.entries[key]; exists && time.Since(entry.startedAt) <= t.window {
		entry.mu.Lock()
		entry.subscribers++
		entry.mu.Unlock()
		return entry, false
	}

	entry := &CoalescedRequest{
		fingerprint: key,
		startedAt:   time.Now(),
		done:        make(chan struct{}),
		subscribers: 1,
	}
	t.entries[key] = entry
	return entry, true
}

// Complete settles the owner's entry: the response body is buffered once,
// all subscribers are woken, and the entry is removed so later callers
// start fresh. The owner receives its own materialized copy in return,
// since buffering consumed the original body. Removal is by identity: a
// stale owner whose entry was already displaced settles only its own
// waiters and leaves the replacement in flight.
func (t *CoalescingTracker) Complete(entry *CoalescedRequest, resp *http.Response, err error) (*http.Response, error) {
	t.mu.Lock()
	if t.entries[entry.fingerprint] == entry {
		delete(t.entries, entry.fingerprint)
	}
	t.mu.Unlock()

	var body []byte
	if err == nil && resp != nil && resp.Body != nil {
		body, err = io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			resp = nil
			err = &ClientError{
				Type:    ErrorTypeNetwork,
				Message: "reading response body failed",
				Cause:   err,
			}
		}
	}

	entry.mu.Lock()
	entry.resp = resp
	entry.body = body
	entry.err = err
	close(entry.done)
	result, resultErr := entry.materializeLocked()
	entry.mu.Unlock()

	return result, resultErr
}

// InFlight returns the number of fingerprints currently being coalesced.
func (t *CoalescingTracker) InFlight() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.entries)
}

// DefaultCoalesceCondition enables coalescing for safe read methods only.
func DefaultCoalesceCondition(req *http.Request) bool {
	switch req.Method {
	case http.MethodGet, http.MethodHead, http.MethodOptions:
		return true
	default:
		return false
	}
}
