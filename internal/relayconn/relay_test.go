package relayconn_test

import (
	"context"
	"testing"

	"github.com/nbd-wtf/go-nostr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/synvya/nostr-rr/internal/relayconn"
)

func TestNewStartsIdle(t *testing.T) {
	c := relayconn.New("wss://relay.example.invalid")
	assert.Equal(t, relayconn.StateIdle, c.State())
	assert.Equal(t, relayconn.CauseNone, c.Cause())
}

func TestPublishBeforeOpenFails(t *testing.T) {
	c := relayconn.New("wss://relay.example.invalid")
	err := c.Publish(context.Background(), nostr.Event{})
	assert.Error(t, err)
}

func TestSubscribeBeforeOpenFails(t *testing.T) {
	c := relayconn.New("wss://relay.example.invalid")
	_, err := c.Subscribe(context.Background(), nostr.Filters{{Kinds: []int{1}}})
	assert.Error(t, err)
}

func TestCloseOnIdleConnectionIsIdempotentAndIntentional(t *testing.T) {
	c := relayconn.New("wss://relay.example.invalid")
	require.NoError(t, c.Close())
	assert.Equal(t, relayconn.StateClosed, c.State())
	assert.Equal(t, relayconn.CauseIntentional, c.Cause())

	// a second Close must not panic on a double channel-close or block.
	require.NoError(t, c.Close())

	select {
	case <-c.Done():
	default:
		t.Fatal("Done() channel should be closed after Close()")
	}
}

func TestNotifyInvoluntaryCloseMarksCauseAndIsIdempotent(t *testing.T) {
	c := relayconn.New("wss://relay.example.invalid")
	c.NotifyInvoluntaryClose()
	assert.Equal(t, relayconn.StateClosed, c.State())
	assert.Equal(t, relayconn.CauseInvoluntary, c.Cause())

	// calling it twice must not panic on a double channel-close.
	c.NotifyInvoluntaryClose()

	select {
	case <-c.Done():
	default:
		t.Fatal("Done() channel should be closed after an involuntary close")
	}
}

func TestNotifyInvoluntaryCloseDoesNotOverrideAnIntentionalClose(t *testing.T) {
	c := relayconn.New("wss://relay.example.invalid")
	require.NoError(t, c.Close())
	c.NotifyInvoluntaryClose()
	assert.Equal(t, relayconn.CauseIntentional, c.Cause())
}

