package nostrcrypto_test

import (
	"testing"
	"time"

	"github.com/nbd-wtf/go-nostr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/synvya/nostr-rr/internal/nostrcrypto"
)

func TestConversationKeyIsSymmetric(t *testing.T) {
	skA, pkA := newKeypair(t)
	skB, pkB := newKeypair(t)

	keyAB, err := nostrcrypto.ConversationKey(skA, pkB)
	require.NoError(t, err)
	keyBA, err := nostrcrypto.ConversationKey(skB, pkA)
	require.NoError(t, err)

	assert.Equal(t, keyAB, keyBA)
}

func TestEncryptDecryptRoundTrip(t *testing.T) {
	skA, _ := newKeypair(t)
	_, pkB := newKeypair(t)

	key, err := nostrcrypto.ConversationKey(skA, pkB)
	require.NoError(t, err)

	ciphertext, err := nostrcrypto.Encrypt("hello from A", key)
	require.NoError(t, err)

	plaintext, err := nostrcrypto.Decrypt(ciphertext, key)
	require.NoError(t, err)
	assert.Equal(t, "hello from A", plaintext)
}

func TestDecryptFailsClosedOnWrongKey(t *testing.T) {
	skA, _ := newKeypair(t)
	_, pkB := newKeypair(t)
	_, pkC := newKeypair(t)

	rightKey, err := nostrcrypto.ConversationKey(skA, pkB)
	require.NoError(t, err)
	wrongKey, err := nostrcrypto.ConversationKey(skA, pkC)
	require.NoError(t, err)

	ciphertext, err := nostrcrypto.Encrypt("secret", rightKey)
	require.NoError(t, err)

	_, err = nostrcrypto.Decrypt(ciphertext, wrongKey)
	assert.Error(t, err)
}

func TestSignAndVerify(t *testing.T) {
	sk, pk := newKeypair(t)
	evt := &nostr.Event{
		PubKey:    pk,
		CreatedAt: nostr.Timestamp(time.Now().Unix()),
		Kind:      1,
		Tags:      nostr.Tags{},
		Content:   "hello",
	}
	evt.ID = nostrcrypto.EventID(evt)

	require.NoError(t, nostrcrypto.Sign(evt, sk))
	ok, err := nostrcrypto.Verify(evt)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestJitteredTimestampIsInThePastWithinBound(t *testing.T) {
	now := time.Now().Unix()
	for i := 0; i < 20; i++ {
		ts := int64(nostrcrypto.JitteredTimestamp())
		assert.LessOrEqual(t, ts, now)
		assert.GreaterOrEqual(t, ts, now-2*86400)
	}
}

func newKeypair(t *testing.T) (sk, pk string) {
	t.Helper()
	sk = nostr.GeneratePrivateKey()
	pk, err := nostr.GetPublicKey(sk)
	require.NoError(t, err)
	return sk, pk
}
