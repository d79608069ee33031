package rrerr_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/synvya/nostr-rr/internal/rrerr"
)

func TestNewAndKindOf(t *testing.T) {
	err := rrerr.New(rrerr.KindTimeout, "waited too long")
	assert.Equal(t, rrerr.KindTimeout, rrerr.KindOf(err))
	assert.Contains(t, err.Error(), "waited too long")
}

func TestWrapPreservesCause(t *testing.T) {
	cause := errors.New("underlying failure")
	err := rrerr.Wrap(rrerr.KindDecryptFailed, "decrypt seal", cause)
	assert.True(t, errors.Is(err, cause))
	assert.Equal(t, rrerr.KindDecryptFailed, rrerr.KindOf(err))
}

func TestIsMatchesByKindNotMessage(t *testing.T) {
	a := rrerr.New(rrerr.KindTimeout, "first message")
	b := rrerr.New(rrerr.KindTimeout, "second message")
	assert.True(t, errors.Is(a, b))

	c := rrerr.New(rrerr.KindCancelled, "first message")
	assert.False(t, errors.Is(a, c))
}

func TestSentinelsMatchOfKind(t *testing.T) {
	err := rrerr.New(rrerr.KindAlreadyWaiting, "duplicate registration")
	require.True(t, errors.Is(err, rrerr.OfKind(rrerr.KindAlreadyWaiting)))
	assert.False(t, errors.Is(err, rrerr.NotFound))
}

func TestKindOfNonRrerrReturnsEmpty(t *testing.T) {
	assert.Equal(t, rrerr.Kind(""), rrerr.KindOf(errors.New("plain error")))
}
