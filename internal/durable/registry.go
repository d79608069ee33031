package durable

import (
	"context"
	"encoding/json"
	"log"
	"time"

	"github.com/nbd-wtf/go-nostr"

	"github.com/synvya/nostr-rr/internal/rumor"
	"github.com/synvya/nostr-rr/internal/rrerr"
)

// rowTTL is the durable row's time-to-live from creation, per spec.md §3.
const rowTTL = 300 * time.Second

// DefaultPollInterval is how often Wait re-reads the row while pending.
const DefaultPollInterval = 2 * time.Second

const keyPrefix = "waiter:"

// RowStatus mirrors the durable waiter row's one-shot status transition:
// pending -> (confirmed | denied).
type RowStatus string

const (
	StatusPending   RowStatus = "pending"
	StatusConfirmed RowStatus = "confirmed"
	StatusDenied    RowStatus = "denied"
)

// Row is the durable waiter row shape from spec.md §3.
type Row struct {
	RequestID          string          `json:"request_id"`
	Status             RowStatus       `json:"status"`
	CreatedAt          time.Time       `json:"created_at"`
	ExpiresAt          time.Time       `json:"expires_at"`
	RequestData        json.RawMessage `json:"request_data"`
	ResponseData       json.RawMessage `json:"response_data,omitempty"`
	ResponseReceivedAt *time.Time      `json:"response_received_at,omitempty"`
}

// Registry is the durable correlation registry, satisfying the same
// wait(request_id, timeout) contract as the in-memory waiter registry
// (internal/waiter), but readable and writable across process instances
// via Store.
type Registry struct {
	store Store
}

// New returns a Registry backed by store.
func New(store Store) *Registry {
	return &Registry{store: store}
}

// CreatePending writes a new row in the pending state for requestID,
// embedding requestData (typically the marshaled rumor) for provenance.
func (r *Registry) CreatePending(ctx context.Context, requestID string, requestData []byte) error {
	now := time.Now()
	row := Row{
		RequestID:   requestID,
		Status:      StatusPending,
		CreatedAt:   now,
		ExpiresAt:   now.Add(rowTTL),
		RequestData: requestData,
	}
	blob, err := json.Marshal(row)
	if err != nil {
		return rrerr.Wrap(rrerr.KindBuildInvalid, "marshal durable row", err)
	}
	return r.store.Put(ctx, keyPrefix+requestID, blob, rowTTL)
}

// UpdateWithResponse is called by the out-of-band writer (the recipient's
// own process, or a second instance of this one) once it has a response
// rumor for requestID. Status becomes confirmed if the rumor's tags
// contain ["status","confirmed"], else denied. A row that is no longer
// pending is left unchanged and the call fails with NotFound.
func (r *Registry) UpdateWithResponse(ctx context.Context, requestID string, responseRumor *nostr.Event) error {
	blob, ok, err := r.store.Get(ctx, keyPrefix+requestID)
	if err != nil {
		return err
	}
	if !ok {
		return rrerr.New(rrerr.KindNotFound, "no durable row for "+requestID)
	}
	var row Row
	if err := json.Unmarshal(blob, &row); err != nil {
		return rrerr.Wrap(rrerr.KindBuildInvalid, "unmarshal durable row", err)
	}
	if row.Status != StatusPending {
		return rrerr.New(rrerr.KindNotFound, "no pending durable row for "+requestID)
	}

	status := StatusDenied
	if resp, parseErr := rumor.ParseReservationResponse(responseRumor); parseErr == nil && resp.Status == rumor.StatusConfirmed {
		status = StatusConfirmed
	}

	responseBlob, err := json.Marshal(responseRumor)
	if err != nil {
		return rrerr.Wrap(rrerr.KindBuildInvalid, "marshal response rumor", err)
	}
	now := time.Now()
	row.Status = status
	row.ResponseData = responseBlob
	row.ResponseReceivedAt = &now

	out, err := json.Marshal(row)
	if err != nil {
		return rrerr.Wrap(rrerr.KindBuildInvalid, "marshal durable row", err)
	}
	remaining := time.Until(row.ExpiresAt)
	if remaining <= 0 {
		remaining = time.Second
	}
	return r.store.Put(ctx, keyPrefix+requestID, out, remaining)
}

// Register writes the pending row for requestID via CreatePending,
// satisfying the synchronous half of the Correlator contract that
// waiter.Registry's Register also implements. The timeout argument is not
// used: the row's own TTL (rowTTL, fixed at 300s per spec.md §3) governs
// its lifetime, and Await waits up to rowTTL whatever timeout is passed
// here.
func (r *Registry) Register(ctx context.Context, requestID string, _ time.Duration, requestData []byte) error {
	return r.CreatePending(ctx, requestID, requestData)
}

// Cancel is a no-op for the durable registry: there is no in-process
// future to resolve, only a row that will expire via its TTL. It exists so
// Registry satisfies the same Correlator shape as waiter.Registry.
func (r *Registry) Cancel(string) bool { return false }

// Deliver is the durable registry's counterpart of waiter.Registry.Deliver:
// it extracts the response rumor's correlating request id from its "e" tag
// and writes it via UpdateWithResponse, so any process polling WaitPoll for
// that id observes it on its next read. Returns false if the rumor carries
// no "e" tag or UpdateWithResponse fails (e.g. no matching row, or a row
// that already holds a response, which is how duplicate delivery across
// relays is tolerated).
func (r *Registry) Deliver(rumorEvt *nostr.Event) bool {
	requestID, ok := rumor.RequestID(rumorEvt)
	if !ok {
		return false
	}
	return r.UpdateWithResponse(context.Background(), requestID, rumorEvt) == nil
}

// Await polls the row for requestID with DefaultPollInterval until it
// transitions out of pending with a response attached, rowTTL has elapsed
// since the call began, or ctx is cancelled. The row must already exist
// (via Register); a missing row fails with NotFound.
func (r *Registry) Await(ctx context.Context, requestID string) (*nostr.Event, error) {
	return r.WaitPoll(ctx, requestID, 0, DefaultPollInterval)
}

// WaitPoll polls the row for requestID every pollInterval (DefaultPollInterval
// if <= 0) until it transitions out of pending with a response attached,
// the deadline passes, or the row is found missing. The deadline is rowTTL
// after the call begins, or timeout after it if timeout is > 0 and
// shorter; the row's stored ExpiresAt is not consulted. Transient read
// errors are logged and retried until the deadline.
func (r *Registry) WaitPoll(ctx context.Context, requestID string, timeout, pollInterval time.Duration) (*nostr.Event, error) {
	if pollInterval <= 0 {
		pollInterval = DefaultPollInterval
	}
	deadline := time.Now().Add(rowTTL)
	if timeout > 0 && time.Now().Add(timeout).Before(deadline) {
		deadline = time.Now().Add(timeout)
	}
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	check := func() (*nostr.Event, bool, error) {
		blob, ok, err := r.store.Get(ctx, keyPrefix+requestID)
		if err != nil {
			log.Printf("durable registry: transient read error for %s: %v", requestID, err)
			return nil, false, nil
		}
		if !ok {
			return nil, true, rrerr.New(rrerr.KindNotFound, "durable row not found for "+requestID)
		}
		var row Row
		if err := json.Unmarshal(blob, &row); err != nil {
			log.Printf("durable registry: malformed row for %s: %v", requestID, err)
			return nil, false, nil
		}
		if row.Status == StatusPending || len(row.ResponseData) == 0 {
			return nil, false, nil
		}
		var evt nostr.Event
		if err := json.Unmarshal(row.ResponseData, &evt); err != nil {
			return nil, true, rrerr.Wrap(rrerr.KindBuildInvalid, "unmarshal response rumor", err)
		}
		return &evt, true, nil
	}

	if evt, done, err := check(); done {
		return evt, err
	}

	for {
		select {
		case <-ticker.C:
			if evt, done, err := check(); done {
				return evt, err
			}
			if time.Now().After(deadline) {
				return nil, rrerr.New(rrerr.KindTimeout, "durable waiter timed out")
			}
		case <-ctx.Done():
			return nil, rrerr.New(rrerr.KindCancelled, "durable wait cancelled")
		}
		if time.Now().After(deadline) {
			return nil, rrerr.New(rrerr.KindTimeout, "durable waiter timed out")
		}
	}
}
