package waiter_test

import (
	"context"
	"testing"
	"time"

	"github.com/nbd-wtf/go-nostr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/synvya/nostr-rr/internal/rrerr"
	"github.com/synvya/nostr-rr/internal/waiter"
)

func TestRegisterThenDeliverResolvesAwait(t *testing.T) {
	r := waiter.New()
	ctx := context.Background()
	require.NoError(t, r.Register(ctx, "req-1", time.Second, nil))

	want := &nostr.Event{ID: "resp-event", Tags: nostr.Tags{{"e", "req-1"}}}

	done := make(chan struct{})
	var got *nostr.Event
	var gotErr error
	go func() {
		got, gotErr = r.Await(ctx, "req-1")
		close(done)
	}()

	delivered := r.Deliver(want)
	assert.True(t, delivered)

	<-done
	require.NoError(t, gotErr)
	assert.Equal(t, want, got)
}

func TestDeliverBeforeAwaitStillDelivers(t *testing.T) {
	r := waiter.New()
	ctx := context.Background()
	require.NoError(t, r.Register(ctx, "req-2", time.Second, nil))

	want := &nostr.Event{ID: "resp-event", Tags: nostr.Tags{{"e", "req-2"}}}
	assert.True(t, r.Deliver(want))

	got, err := r.Await(ctx, "req-2")
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestDeliverToUnknownIDIsNoOp(t *testing.T) {
	r := waiter.New()
	delivered := r.Deliver(&nostr.Event{Tags: nostr.Tags{{"e", "no-such-request"}}})
	assert.False(t, delivered)
}

func TestDuplicateDeliveryIsTolerated(t *testing.T) {
	r := waiter.New()
	ctx := context.Background()
	require.NoError(t, r.Register(ctx, "req-3", time.Second, nil))

	first := &nostr.Event{ID: "first", Tags: nostr.Tags{{"e", "req-3"}}}
	second := &nostr.Event{ID: "second", Tags: nostr.Tags{{"e", "req-3"}}}

	assert.True(t, r.Deliver(first))
	assert.False(t, r.Deliver(second))

	got, err := r.Await(ctx, "req-3")
	require.NoError(t, err)
	assert.Equal(t, first, got)
}

func TestAwaitTimesOutWithoutDelivery(t *testing.T) {
	r := waiter.New()
	ctx := context.Background()
	require.NoError(t, r.Register(ctx, "req-4", 20*time.Millisecond, nil))

	_, err := r.Await(ctx, "req-4")
	assert.ErrorIs(t, err, rrerr.Timeout)
}

func TestCancelResolvesAwaitWithCancelled(t *testing.T) {
	r := waiter.New()
	ctx := context.Background()
	require.NoError(t, r.Register(ctx, "req-5", time.Second, nil))

	assert.True(t, r.Cancel("req-5"))

	_, err := r.Await(ctx, "req-5")
	assert.ErrorIs(t, err, rrerr.Cancelled)
}

func TestRegisterExclusiveFailsOnDuplicate(t *testing.T) {
	r := waiter.New()
	ctx := context.Background()
	require.NoError(t, r.Register(ctx, "req-6", time.Second, nil))

	err := r.Register(ctx, "req-6", time.Second, nil)
	assert.ErrorIs(t, err, rrerr.AlreadyWaiting)
}

func TestAwaitUnknownIDFailsWithNotFound(t *testing.T) {
	r := waiter.New()
	_, err := r.Await(context.Background(), "never-registered")
	assert.ErrorIs(t, err, rrerr.NotFound)
}

func TestAwaitRespectsExternalContextCancellation(t *testing.T) {
	r := waiter.New()
	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, r.Register(context.Background(), "req-7", time.Minute, nil))

	cancel()
	_, err := r.Await(ctx, "req-7")
	assert.ErrorIs(t, err, rrerr.Cancelled)
}

func TestAfterAwaitRegistryIsClean(t *testing.T) {
	r := waiter.New()
	ctx := context.Background()
	require.NoError(t, r.Register(ctx, "req-8", 10*time.Millisecond, nil))
	_, _ = r.Await(ctx, "req-8")

	assert.False(t, r.IsPending("req-8"))
	assert.Equal(t, 0, r.PendingCount())
}

func TestCancelAllResolvesEveryPendingWaiter(t *testing.T) {
	r := waiter.New()
	ctx := context.Background()
	require.NoError(t, r.Register(ctx, "a", time.Minute, nil))
	require.NoError(t, r.Register(ctx, "b", time.Minute, nil))

	doneA := make(chan error, 1)
	doneB := make(chan error, 1)
	go func() { _, err := r.Await(ctx, "a"); doneA <- err }()
	go func() { _, err := r.Await(ctx, "b"); doneB <- err }()

	// give the goroutines a moment to reach Await's blocking select
	time.Sleep(10 * time.Millisecond)
	r.CancelAll()

	assert.ErrorIs(t, <-doneA, rrerr.Cancelled)
	assert.ErrorIs(t, <-doneB, rrerr.Cancelled)
}
