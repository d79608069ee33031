// Package relayconn wraps a single relay connection: the state machine
// (Idle → Connecting → Open → Closing/Closed), and the send/receive
// surface used by the publisher and subscriber. It does not pool
// connections and does not auto-reconnect — that policy lives one layer up
// in internal/subscriber. Built directly on go-nostr's per-relay Relay
// type, the same library the teacher's NostrRelayHandler uses through its
// pool, but at the single-connection granularity the spec's component D
// calls for.
package relayconn

import (
	"context"
	"sync"

	"github.com/nbd-wtf/go-nostr"

	"github.com/synvya/nostr-rr/internal/rrerr"
)

// State is the relay connection's lifecycle state.
type State int

const (
	StateIdle State = iota
	StateConnecting
	StateOpen
	StateClosing
	StateClosed
)

// DisconnectCause distinguishes a caller-initiated Close from a socket
// error or remote close.
type DisconnectCause int

const (
	// CauseNone means the connection has not disconnected.
	CauseNone DisconnectCause = iota
	// CauseIntentional means a prior Close() call produced this disconnect.
	CauseIntentional
	// CauseInvoluntary means the socket errored or the remote end closed it.
	CauseInvoluntary
)

// Conn is a single relay session.
type Conn struct {
	URL string

	mu     sync.Mutex
	state  State
	cause  DisconnectCause
	relay  *nostr.Relay
	closed chan struct{}
}

// New returns an idle connection for url; call Open to connect.
func New(url string) *Conn {
	return &Conn{URL: url, state: StateIdle, closed: make(chan struct{})}
}

// Open connects to the relay. Only valid from Idle or Closed.
func (c *Conn) Open(ctx context.Context) error {
	c.mu.Lock()
	if c.state == StateOpen || c.state == StateConnecting {
		c.mu.Unlock()
		return nil
	}
	c.state = StateConnecting
	c.mu.Unlock()

	relay, err := nostr.RelayConnect(ctx, c.URL)
	if err != nil {
		c.mu.Lock()
		c.state = StateClosed
		c.cause = CauseInvoluntary
		c.mu.Unlock()
		return rrerr.Wrap(rrerr.KindRelayProtocol, "connect to "+c.URL, err)
	}

	c.mu.Lock()
	c.relay = relay
	c.state = StateOpen
	c.closed = make(chan struct{})
	c.mu.Unlock()
	return nil
}

// State returns the current lifecycle state.
func (c *Conn) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Publish sends an EVENT frame and waits for the relay's OK response (or
// ctx's deadline, whichever comes first). go-nostr's Relay.Publish already
// implements the EVENT→OK round trip this requires.
func (c *Conn) Publish(ctx context.Context, evt nostr.Event) error {
	c.mu.Lock()
	relay := c.relay
	state := c.state
	c.mu.Unlock()
	if state != StateOpen || relay == nil {
		return rrerr.New(rrerr.KindRelayProtocol, "publish on a connection that is not open")
	}
	if err := relay.Publish(ctx, evt); err != nil {
		return rrerr.Wrap(rrerr.KindRelayProtocol, "publish to "+c.URL, err)
	}
	return nil
}

// Subscribe sends a REQ frame with the given filters and returns the
// underlying subscription (Events, EndOfStoredEvents and ClosedReason
// channels), per the wire protocol in spec.md §4.D/§6.
func (c *Conn) Subscribe(ctx context.Context, filters nostr.Filters) (*nostr.Subscription, error) {
	c.mu.Lock()
	relay := c.relay
	state := c.state
	c.mu.Unlock()
	if state != StateOpen || relay == nil {
		return nil, rrerr.New(rrerr.KindRelayProtocol, "subscribe on a connection that is not open")
	}
	sub, err := relay.Subscribe(ctx, filters)
	if err != nil {
		return nil, rrerr.Wrap(rrerr.KindRelayProtocol, "subscribe to "+c.URL, err)
	}
	return sub, nil
}

// Close sends CLOSE (implicitly, via the underlying relay connection
// teardown) and marks the disconnect as intentional, so the owning
// subscriber does not schedule a reconnect for it.
func (c *Conn) Close() error {
	c.mu.Lock()
	if c.state == StateClosed || c.state == StateClosing {
		c.mu.Unlock()
		return nil
	}
	c.state = StateClosing
	relay := c.relay
	c.mu.Unlock()

	var err error
	if relay != nil {
		err = relay.Close()
	}

	c.mu.Lock()
	c.state = StateClosed
	c.cause = CauseIntentional
	close(c.closed)
	c.mu.Unlock()

	if err != nil {
		return rrerr.Wrap(rrerr.KindRelayProtocol, "close "+c.URL, err)
	}
	return nil
}

// NotifyInvoluntaryClose records that the connection dropped for a reason
// other than a prior Close() call (e.g. the relay's context was cancelled
// by the underlying transport). The subscriber calls this from its read
// loop when it observes the relay's event channel close without having
// called Close itself.
func (c *Conn) NotifyInvoluntaryClose() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == StateClosed {
		return
	}
	c.state = StateClosed
	c.cause = CauseInvoluntary
	select {
	case <-c.closed:
	default:
		close(c.closed)
	}
}

// Cause reports why the connection is no longer open. Meaningless while
// State() == StateOpen.
func (c *Conn) Cause() DisconnectCause {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cause
}

// Done returns a channel closed when the connection transitions to Closed,
// for either reason.
func (c *Conn) Done() <-chan struct{} {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}
