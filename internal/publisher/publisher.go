// Package publisher fans a single event out to N relays concurrently,
// aggregating per-relay accept/reject outcomes. Grounded on the teacher's
// PublishEvent (which fans out via a pool and counts successes/errors) but
// restructured to open one connection per relay per publish — "no shared
// pooling with the subscriber" is a spec requirement, not an accident of
// the teacher's design.
package publisher

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/nbd-wtf/go-nostr"

	"github.com/synvya/nostr-rr/internal/metrics"
	"github.com/synvya/nostr-rr/internal/relayconn"
	"github.com/synvya/nostr-rr/internal/rrerr"
)

// DefaultTimeout is the per-relay wait for an OK response.
const DefaultTimeout = 5 * time.Second

// RelayResult is one relay's outcome for a single publish.
type RelayResult struct {
	Relay   string
	Success bool
	Err     string
}

// Result is the aggregated outcome of publishing to every configured relay.
type Result struct {
	Total        int
	SuccessCount int
	FailureCount int
	PerRelay     []RelayResult
}

// Publisher holds the relay set and default timeout for publish calls.
type Publisher struct {
	Relays  []string
	Timeout time.Duration
}

// New constructs a Publisher over relays with the given per-relay timeout;
// timeout <= 0 selects DefaultTimeout.
func New(relays []string, timeout time.Duration) *Publisher {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Publisher{Relays: relays, Timeout: timeout}
}

// Publish opens a fresh connection to each relay in parallel, sends evt,
// and waits up to p.Timeout for that relay's OK. The aggregate resolves
// only once every per-relay outcome is known. success_count == 0 is
// reported as PublishFailed by the caller (the facade); this function
// itself never returns an error for partial or total rejection — per-relay
// failures are data, not control flow, per spec.md §7.
func (p *Publisher) Publish(ctx context.Context, evt *nostr.Event) (Result, error) {
	if len(p.Relays) == 0 {
		return Result{}, rrerr.New(rrerr.KindConfigInvalid, "no relays configured")
	}

	results := make([]RelayResult, len(p.Relays))
	var wg sync.WaitGroup
	wg.Add(len(p.Relays))

	for i, url := range p.Relays {
		go func(i int, url string) {
			defer wg.Done()
			results[i] = p.publishOne(ctx, url, evt)
		}(i, url)
	}
	wg.Wait()

	agg := Result{Total: len(results), PerRelay: results}
	for _, r := range results {
		if r.Success {
			agg.SuccessCount++
		} else {
			agg.FailureCount++
		}
	}
	metrics.PublishAttempts.Add(float64(agg.Total))
	metrics.PublishAccepted.Add(float64(agg.SuccessCount))
	metrics.PublishRejected.Add(float64(agg.FailureCount))
	return agg, nil
}

func (p *Publisher) publishOne(ctx context.Context, url string, evt *nostr.Event) RelayResult {
	conn := relayconn.New(url)
	connectCtx, cancelConnect := context.WithTimeout(ctx, p.Timeout)
	defer cancelConnect()
	if err := conn.Open(connectCtx); err != nil {
		return RelayResult{Relay: url, Success: false, Err: err.Error()}
	}
	defer conn.Close()

	publishCtx, cancelPublish := context.WithTimeout(ctx, p.Timeout)
	defer cancelPublish()

	err := conn.Publish(publishCtx, *evt)
	if err != nil {
		msg := err.Error()
		if publishCtx.Err() != nil && !isExplicitReject(msg) {
			msg = "closed before OK"
		}
		return RelayResult{Relay: url, Success: false, Err: msg}
	}
	return RelayResult{Relay: url, Success: true}
}

// isExplicitReject reports whether the relay actually replied with a
// negative OK (as opposed to the connection dying or the deadline expiring
// with no reply at all).
func isExplicitReject(msg string) bool {
	return strings.Contains(msg, "msg:") || strings.Contains(msg, "blocked") || strings.Contains(msg, "rejected")
}
