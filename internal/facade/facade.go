// Package facade ties the envelope, rumor, publisher and correlation
// layers together behind the single operation the rest of this system
// calls: RequestResponse. Grounded on the teacher's
// CreateEphemeralGiftWrappedEvent, which composes rumor→seal→wrap in
// exactly this order before handing the result to the transport layer.
package facade

import (
	"context"
	"encoding/json"
	"time"

	"github.com/nbd-wtf/go-nostr"

	"github.com/synvya/nostr-rr/internal/envelope"
	"github.com/synvya/nostr-rr/internal/keys"
	"github.com/synvya/nostr-rr/internal/publisher"
	"github.com/synvya/nostr-rr/internal/rrerr"
)

// Correlator is satisfied by both the in-memory waiter registry
// (internal/waiter) and the durable registry (internal/durable): the two
// registries share this contract by design (spec.md §9, "Two registries,
// one contract"). Register is synchronous and must return before the
// caller publishes the outgoing wrap, so that a response racing the
// publish is never missed; Await then blocks for the result.
type Correlator interface {
	Register(ctx context.Context, requestID string, timeout time.Duration, requestData []byte) error
	Await(ctx context.Context, requestID string) (*nostr.Event, error)
	Cancel(requestID string) bool
	// Deliver hands a received response rumor to the registry, completing
	// whichever pending Await it correlates with by its "e" tag. It is the
	// registry-side counterpart of a running subscriber's OnRumor callback
	// and returns false if the rumor correlates with no pending request.
	Deliver(rumorEvt *nostr.Event) bool
}

// DefaultWaitTimeout is the facade's default correlation timeout.
const DefaultWaitTimeout = 30 * time.Second

// Facade is the request/response entry point. It is safe for concurrent
// use by many callers — RequestResponse is re-entrant, per spec.md §5.
type Facade struct {
	Identity   keys.Identity
	Publisher  *publisher.Publisher
	Correlator Correlator
}

// New constructs a Facade over the given identity, publisher and
// correlator (either an in-memory waiter.Registry or a durable.Registry).
func New(identity keys.Identity, pub *publisher.Publisher, correlator Correlator) *Facade {
	return &Facade{Identity: identity, Publisher: pub, Correlator: correlator}
}

// RequestResponse builds a rumor from partial, registers a waiter for its
// id, seals and wraps it to recipientPK, publishes the wrap to every
// configured relay, and returns the matching response rumor once a
// running subscriber's callback delivers it. If no relay accepts the wrap
// it fails with PublishFailed; any other failure is returned as the failing
// step reported it (rumor build, Register such as AlreadyWaiting, seal or
// wrap, Publish, or Await such as Timeout or Cancelled).
func (f *Facade) RequestResponse(ctx context.Context, partial envelope.RumorPartial, recipientPK string, timeout time.Duration) (*nostr.Event, error) {
	if timeout <= 0 {
		timeout = DefaultWaitTimeout
	}

	rumorEvt, err := envelope.MakeRumor(partial, f.Identity.PrivateKeyHex)
	if err != nil {
		return nil, err
	}

	rumorBlob, err := json.Marshal(rumorEvt)
	if err != nil {
		return nil, rrerr.Wrap(rrerr.KindBuildInvalid, "marshal rumor for registration", err)
	}
	if err := f.Correlator.Register(ctx, rumorEvt.ID, timeout, rumorBlob); err != nil {
		return nil, err
	}

	awaitCtx, cancelAwait := context.WithCancel(ctx)
	defer cancelAwait()
	waitCh := make(chan waitResult, 1)
	go func() {
		evt, err := f.Correlator.Await(awaitCtx, rumorEvt.ID)
		waitCh <- waitResult{evt: evt, err: err}
	}()
	// cancelWaiter cancels the registration and waits for the Await
	// goroutine to return, so a failure return leaves no waiter behind.
	cancelWaiter := func() {
		f.Correlator.Cancel(rumorEvt.ID)
		cancelAwait()
		<-waitCh
	}

	sealed, err := envelope.Seal(rumorEvt, f.Identity.PrivateKeyHex, recipientPK)
	if err != nil {
		cancelWaiter()
		return nil, err
	}
	wrapped, err := envelope.Wrap(sealed, recipientPK)
	if err != nil {
		cancelWaiter()
		return nil, err
	}

	result, err := f.Publisher.Publish(ctx, wrapped)
	if err != nil {
		cancelWaiter()
		return nil, err
	}
	if result.SuccessCount == 0 {
		cancelWaiter()
		return nil, rrerr.New(rrerr.KindPublishFailed, "no relay accepted the event")
	}

	res := <-waitCh
	return res.evt, res.err
}

type waitResult struct {
	evt *nostr.Event
	err error
}
