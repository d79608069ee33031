package durable_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/nbd-wtf/go-nostr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/synvya/nostr-rr/internal/durable"
	"github.com/synvya/nostr-rr/internal/rrerr"
	"github.com/synvya/nostr-rr/internal/rumor"
)

// memStore is an in-memory Store stand-in so these tests don't need an
// on-disk badger database.
type memStore struct {
	mu   sync.Mutex
	data map[string][]byte
}

func newMemStore() *memStore { return &memStore{data: make(map[string][]byte)} }

func (m *memStore) Put(_ context.Context, key string, value []byte, _ time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = append([]byte(nil), value...)
	return nil
}

func (m *memStore) Get(_ context.Context, key string) ([]byte, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.data[key]
	return v, ok, nil
}

func (m *memStore) Close() error { return nil }

func responseRumor(t *testing.T, requestID string, status rumor.ReservationStatus) *nostr.Event {
	t.Helper()
	resp := rumor.ReservationResponse{
		CustomerPK:     "deadbeef00112233445566778899aabbccddeeff00112233445566778899aa",
		RequestRumorID: requestID,
		Status:         status,
		Time:           1893456000,
		TZID:           "UTC",
		Duration:       7200,
	}
	tags, err := resp.BuildTags()
	require.NoError(t, err)
	return &nostr.Event{Kind: rumor.KindReservationResponse, Tags: tags}
}

func TestRegisterThenUpdateThenAwaitConfirmed(t *testing.T) {
	reg := durable.New(newMemStore())
	ctx := context.Background()
	requestID := "0123456789abcdef0123456789abcdef0123456789abcdef0123456789abcd"

	require.NoError(t, reg.Register(ctx, requestID, time.Second, []byte(`{}`)))

	done := make(chan struct{})
	var evt *nostr.Event
	var awaitErr error
	go func() {
		evt, awaitErr = reg.WaitPoll(ctx, requestID, time.Second, 5*time.Millisecond)
		close(done)
	}()

	time.Sleep(10 * time.Millisecond)
	require.NoError(t, reg.UpdateWithResponse(ctx, requestID, responseRumor(t, requestID, rumor.StatusConfirmed)))

	<-done
	require.NoError(t, awaitErr)
	require.NotNil(t, evt)
	assert.Equal(t, rumor.KindReservationResponse, evt.Kind)
}

func TestUpdateWithResponseMarksDeclinedAsNonConfirmed(t *testing.T) {
	store := newMemStore()
	reg := durable.New(store)
	ctx := context.Background()
	requestID := "1123456789abcdef0123456789abcdef0123456789abcdef0123456789abcd"

	require.NoError(t, reg.Register(ctx, requestID, time.Second, []byte(`{}`)))
	require.NoError(t, reg.UpdateWithResponse(ctx, requestID, responseRumor(t, requestID, rumor.StatusDeclined)))

	evt, err := reg.WaitPoll(ctx, requestID, time.Second, 5*time.Millisecond)
	require.NoError(t, err)
	parsed, err := rumor.ParseReservationResponse(evt)
	require.NoError(t, err)
	assert.Equal(t, rumor.StatusDeclined, parsed.Status)
}

func TestAwaitUnknownRowFailsWithNotFound(t *testing.T) {
	reg := durable.New(newMemStore())
	_, err := reg.Await(context.Background(), "never-registered")
	assert.ErrorIs(t, err, rrerr.NotFound)
}

func TestAwaitTimesOutWithoutUpdate(t *testing.T) {
	reg := durable.New(newMemStore())
	ctx := context.Background()
	requestID := "2223456789abcdef0123456789abcdef0123456789abcdef0123456789abcd"
	require.NoError(t, reg.Register(ctx, requestID, time.Second, []byte(`{}`)))

	_, err := reg.WaitPoll(ctx, requestID, 30*time.Millisecond, 5*time.Millisecond)
	assert.ErrorIs(t, err, rrerr.Timeout)
}

func TestCancelIsANoOp(t *testing.T) {
	reg := durable.New(newMemStore())
	assert.False(t, reg.Cancel("anything"))
}
