package publisher

import (
	"context"
	"testing"
	"time"

	"github.com/nbd-wtf/go-nostr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/synvya/nostr-rr/internal/rrerr"
)

func TestNewAppliesDefaultTimeoutWhenNonPositive(t *testing.T) {
	p := New([]string{"wss://relay.example.invalid"}, 0)
	assert.Equal(t, DefaultTimeout, p.Timeout)

	p = New([]string{"wss://relay.example.invalid"}, -time.Second)
	assert.Equal(t, DefaultTimeout, p.Timeout)

	p = New([]string{"wss://relay.example.invalid"}, 3*time.Second)
	assert.Equal(t, 3*time.Second, p.Timeout)
}

func TestPublishWithNoRelaysFailsWithConfigInvalid(t *testing.T) {
	p := New(nil, time.Second)
	_, err := p.Publish(context.Background(), &nostr.Event{})
	assert.ErrorIs(t, err, rrerr.ConfigInvalid)
}

func TestPublishAggregatesPerRelayFailuresWhenRelaysAreUnreachable(t *testing.T) {
	p := New([]string{"wss://relay.one.invalid", "wss://relay.two.invalid"}, 50*time.Millisecond)
	res, err := p.Publish(context.Background(), &nostr.Event{})
	require.NoError(t, err, "Publish itself never errors on partial/total relay rejection")
	assert.Equal(t, 2, res.Total)
	assert.Equal(t, 0, res.SuccessCount)
	assert.Equal(t, 2, res.FailureCount)
	assert.Len(t, res.PerRelay, 2)
	for _, r := range res.PerRelay {
		assert.False(t, r.Success)
		assert.NotEmpty(t, r.Err)
	}
}

func TestIsExplicitRejectRecognizesRelayOKReasons(t *testing.T) {
	assert.True(t, isExplicitReject("msg: rate-limited"))
	assert.True(t, isExplicitReject("this event was blocked by the relay"))
	assert.True(t, isExplicitReject("rejected: pow required"))
	assert.False(t, isExplicitReject("context deadline exceeded"))
	assert.False(t, isExplicitReject("dial tcp: connection refused"))
}
