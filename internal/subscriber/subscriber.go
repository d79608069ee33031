// Package subscriber implements the persistent, multi-relay, auto-
// reconnecting subscription for gift-wrapped events addressed to this
// process's public key. Grounded on the teacher's
// SubscribeToGiftWrapEvents (filter shape, kind 1059 + "#p") and its
// client-side reconnection posture in client_nostr.go, adapted from a
// polling read loop to an event-driven one over relayconn connections.
package subscriber

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/nbd-wtf/go-nostr"

	"github.com/synvya/nostr-rr/internal/envelope"
	"github.com/synvya/nostr-rr/internal/metrics"
	"github.com/synvya/nostr-rr/internal/relayconn"
)

// DefaultReconnectDelay is how long the subscriber waits before retrying a
// relay after an involuntary disconnect.
const DefaultReconnectDelay = 5 * time.Second

// resumptionWindow is how far back "since" reaches on (re)subscribe, to
// cover jittered gift-wrap timestamps that may sit up to two days in the
// past.
const resumptionWindow = 2 * 24 * time.Hour

// Config configures a Subscriber. OnError gets the relay URL as its second
// argument for connect, subscribe and CLOSED errors; for a gift wrap that
// fails to unwrap, unseal or verify it gets that wrap's pubkey instead.
type Config struct {
	Relays         []string
	RecipientSK    string
	OnRumor        func(rumor *nostr.Event, wrap *nostr.Event)
	OnError        func(err error, relay string)
	ReconnectDelay time.Duration
}

// Subscriber maintains one connection per relay, each subscribed to gift
// wraps tagged for this process's public key.
type Subscriber struct {
	cfg   Config
	subID string

	mu        sync.Mutex
	running   bool
	stopped   bool
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	since     nostr.Timestamp
	recipient string
}

// New constructs a Subscriber; it does not connect until Start is called.
func New(cfg Config) (*Subscriber, error) {
	if cfg.ReconnectDelay <= 0 {
		cfg.ReconnectDelay = DefaultReconnectDelay
	}
	pk, err := nostr.GetPublicKey(cfg.RecipientSK)
	if err != nil {
		return nil, err
	}
	return &Subscriber{
		cfg:       cfg,
		subID:     uuid.NewString(),
		since:     nostr.Timestamp(time.Now().Add(-resumptionWindow).Unix()),
		recipient: pk,
	}, nil
}

// Start opens one connection per relay and subscribes on each. Idempotent:
// calling Start while already running is a no-op.
func (s *Subscriber) Start(ctx context.Context) {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return
	}
	runCtx, cancel := context.WithCancel(ctx)
	s.running = true
	s.stopped = false
	s.cancel = cancel
	s.mu.Unlock()

	for _, url := range s.cfg.Relays {
		s.wg.Add(1)
		go func(url string) {
			defer s.wg.Done()
			s.connectLoop(runCtx, url)
		}(url)
	}
}

// Stop closes every relay connection (sending CLOSE for the subscription
// first) and suppresses further reconnection. Idempotent.
func (s *Subscriber) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.stopped = true
	s.running = false
	cancel := s.cancel
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	s.wg.Wait()
}

func (s *Subscriber) isStopped() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stopped
}

func (s *Subscriber) currentSince() nostr.Timestamp {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.since
}

func (s *Subscriber) observeEventTime(ts nostr.Timestamp) {
	s.mu.Lock()
	defer s.mu.Unlock()
	candidate := nostr.Timestamp(int64(ts) - 1)
	if candidate > s.since {
		s.since = candidate
	}
}

// connectLoop owns one relay's connection for the lifetime of the
// subscriber, reconnecting with cfg.ReconnectDelay after an involuntary
// disconnect until Stop() is called.
func (s *Subscriber) connectLoop(ctx context.Context, url string) {
	for {
		if ctx.Err() != nil {
			return
		}

		conn := relayconn.New(url)
		if err := conn.Open(ctx); err != nil {
			s.reportError(err, url)
			if !s.sleepOrStop(ctx) {
				return
			}
			continue
		}

		filters := nostr.Filters{{
			Kinds: []int{envelope.GiftWrapKind},
			Tags:  nostr.TagMap{"p": []string{s.recipient}},
			Since: ptr(s.currentSince()),
		}}

		sub, err := conn.Subscribe(ctx, filters)
		if err != nil {
			s.reportError(err, url)
			conn.Close()
			if !s.sleepOrStop(ctx) {
				return
			}
			continue
		}

		s.readLoop(ctx, conn, sub, url)

		if ctx.Err() != nil || s.isStopped() {
			return
		}

		metrics.SubscriberReconnects.WithLabelValues(url).Inc()
		if !s.sleepOrStop(ctx) {
			return
		}
	}
}

// readLoop consumes one relay's subscription until its Events channel
// closes (involuntary disconnect) or the context is cancelled (Stop()).
// EOSE/NOTICE/CLOSED are informational and never tear the subscription
// down on their own.
func (s *Subscriber) readLoop(ctx context.Context, conn *relayconn.Conn, sub *nostr.Subscription, url string) {
	defer conn.Close()
	for {
		select {
		case evt, ok := <-sub.Events:
			if !ok {
				conn.NotifyInvoluntaryClose()
				return
			}
			s.handleEvent(evt)

		case <-sub.EndOfStoredEvents:
			// informational: resumption backlog has been delivered.

		case reason, ok := <-sub.ClosedReason:
			if ok {
				s.reportError(rrOnClose(reason), url)
			}

		case <-ctx.Done():
			return
		}
	}
}

func (s *Subscriber) handleEvent(evt *nostr.Event) {
	if evt.Kind != envelope.GiftWrapKind {
		return // non-1059 events are ignored silently
	}

	sealed, err := envelope.Unwrap(evt, s.cfg.RecipientSK)
	if err != nil {
		metrics.SubscriberDecryptFailures.Inc()
		s.reportError(err, evt.PubKey)
		return
	}
	rumorEvt, err := envelope.Unseal(sealed, s.cfg.RecipientSK)
	if err != nil {
		metrics.SubscriberDecryptFailures.Inc()
		s.reportError(err, evt.PubKey)
		return
	}
	if err := envelope.VerifyAuthorship(rumorEvt, sealed); err != nil {
		metrics.SubscriberDecryptFailures.Inc()
		s.reportError(err, evt.PubKey)
		return
	}

	s.observeEventTime(evt.CreatedAt)
	if s.cfg.OnRumor != nil {
		s.cfg.OnRumor(rumorEvt, evt)
	}
}

func (s *Subscriber) reportError(err error, relay string) {
	if s.cfg.OnError != nil {
		s.cfg.OnError(err, relay)
	}
}

// sleepOrStop waits cfg.ReconnectDelay, returning false if ctx was
// cancelled in the meantime (meaning the caller should exit rather than
// retry).
func (s *Subscriber) sleepOrStop(ctx context.Context) bool {
	t := time.NewTimer(s.cfg.ReconnectDelay)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}

func ptr(ts nostr.Timestamp) *nostr.Timestamp { return &ts }

func rrOnClose(reason string) error {
	return &closedError{reason: reason}
}

type closedError struct{ reason string }

func (e *closedError) Error() string { return "relay sent CLOSED: " + e.reason }
