// Package waiter implements the in-memory correlation registry: a map from
// request id to a pending waiter, with per-waiter timeout and
// cancellation. Modeled on the teacher's PacketHandler, which keeps a
// mutex-guarded map of in-flight session state and resolves entries by id
// as matching data arrives — generalised here from a packet cache to a
// registry of futures.
package waiter

import (
	"context"
	"sync"
	"time"

	"github.com/nbd-wtf/go-nostr"

	"github.com/synvya/nostr-rr/internal/metrics"
	"github.com/synvya/nostr-rr/internal/rrerr"
	"github.com/synvya/nostr-rr/internal/rumor"
)

// entry is one pending waiter. Only Await (and CancelAll) removes it from
// the registry's map, so Register (which inserts it) always happens-before any Deliver or
// Cancel that might otherwise race a concurrent Await's lookup.
type entry struct {
	resultCh chan result
	once     sync.Once
	timer    *time.Timer
}

type result struct {
	rumor *nostr.Event
	err   error
}

func (e *entry) complete(r result) bool {
	done := false
	e.once.Do(func() {
		e.resultCh <- r
		close(e.resultCh)
		done = true
	})
	return done
}

// Registry is the in-memory waiter registry. The zero value is not usable;
// construct with New.
type Registry struct {
	mu      sync.Mutex
	waiters map[string]*entry
}

// New returns an empty registry.
func New() *Registry {
	return &Registry{waiters: make(map[string]*entry)}
}

// Register records a waiter for requestID and arms its timeout immediately,
// independent of when (or whether) Await is later called for it. This is
// the synchronous half of wait(): it must complete before the caller
// publishes the outgoing wrap, so a response (or an early Deliver) racing
// the publish can never be missed. requestData is accepted for interface
// symmetry with the durable registry's Register and is unused here.
//
// Registration is exclusive: a second Register for the same requestID
// while one is outstanding fails immediately with AlreadyWaiting.
func (r *Registry) Register(_ context.Context, requestID string, timeout time.Duration, _ []byte) error {
	r.mu.Lock()
	if _, exists := r.waiters[requestID]; exists {
		r.mu.Unlock()
		return rrerr.New(rrerr.KindAlreadyWaiting, "waiter already registered for "+requestID)
	}
	e := &entry{resultCh: make(chan result, 1)}
	e.timer = time.AfterFunc(timeout, func() {
		if e.complete(result{err: rrerr.New(rrerr.KindTimeout, "waiter timed out")}) {
			metrics.WaitersTimedOut.Inc()
		}
	})
	r.waiters[requestID] = e
	r.mu.Unlock()
	metrics.WaitersPending.Set(float64(r.PendingCount()))
	return nil
}

// Await blocks until the waiter registered for requestID is completed by a
// Deliver, a Cancel, its own timeout, or ctx being cancelled — whichever
// comes first — then removes it from the registry. Awaiting a requestID
// that was never registered (or has already been awaited) fails with
// NotFound.
func (r *Registry) Await(ctx context.Context, requestID string) (*nostr.Event, error) {
	r.mu.Lock()
	e, ok := r.waiters[requestID]
	r.mu.Unlock()
	if !ok {
		return nil, rrerr.New(rrerr.KindNotFound, "no waiter registered for "+requestID)
	}

	defer func() {
		e.timer.Stop()
		r.mu.Lock()
		if cur, ok := r.waiters[requestID]; ok && cur == e {
			delete(r.waiters, requestID)
		}
		r.mu.Unlock()
		metrics.WaitersPending.Set(float64(r.PendingCount()))
	}()

	select {
	case res := <-e.resultCh:
		return res.rumor, res.err
	case <-ctx.Done():
		e.complete(result{err: rrerr.New(rrerr.KindCancelled, "await cancelled")})
		return nil, rrerr.New(rrerr.KindCancelled, "await cancelled")
	}
}

// Deliver looks for an "e" tag in rumorEvt referencing a pending request
// id; if found, it completes that waiter's future and returns true. The
// entry is left in the registry for Await to remove — this is what lets
// Deliver run safely before Await has started waiting on it. Delivering to
// an id with no waiter (already completed, or never registered) is a
// no-op that returns false — this is how duplicate delivery across relays
// is tolerated (spec.md §8.4/§8.8).
func (r *Registry) Deliver(rumorEvt *nostr.Event) bool {
	requestID, ok := rumor.RequestID(rumorEvt)
	if !ok {
		return false
	}

	r.mu.Lock()
	e, exists := r.waiters[requestID]
	r.mu.Unlock()
	if !exists {
		return false
	}

	delivered := e.complete(result{rumor: rumorEvt})
	if delivered {
		e.timer.Stop()
		metrics.WaitersDelivered.Inc()
	}
	return delivered
}

// Cancel completes the waiter for requestID with Cancelled, leaving it for
// Await to remove. Returns false if there was no such waiter.
func (r *Registry) Cancel(requestID string) bool {
	r.mu.Lock()
	e, exists := r.waiters[requestID]
	r.mu.Unlock()
	if !exists {
		return false
	}
	cancelled := e.complete(result{err: rrerr.New(rrerr.KindCancelled, "waiter cancelled")})
	if cancelled {
		e.timer.Stop()
	}
	return cancelled
}

// CancelAll cancels every pending waiter with Cancelled("all") and removes
// it immediately, e.g. on process shutdown. A goroutine already blocked in
// Await for one of these ids still observes the cancellation, since it
// holds its own reference to the entry independent of the map.
func (r *Registry) CancelAll() {
	r.mu.Lock()
	entries := make([]*entry, 0, len(r.waiters))
	for id := range r.waiters {
		entries = append(entries, r.waiters[id])
		delete(r.waiters, id)
	}
	r.mu.Unlock()

	for _, e := range entries {
		e.timer.Stop()
		e.complete(result{err: rrerr.New(rrerr.KindCancelled, "cancelled: all")})
	}
	metrics.WaitersPending.Set(0)
}

// PendingCount returns a consistent snapshot of the number of outstanding waiters.
func (r *Registry) PendingCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.waiters)
}

// PendingIDs returns a consistent snapshot of outstanding request ids.
func (r *Registry) PendingIDs() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	ids := make([]string, 0, len(r.waiters))
	for id := range r.waiters {
		ids = append(ids, id)
	}
	return ids
}

// IsPending reports whether requestID currently has an outstanding waiter.
func (r *Registry) IsPending(requestID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.waiters[requestID]
	return ok
}
