package keys_test

import (
	"testing"

	"github.com/nbd-wtf/go-nostr/nip19"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/synvya/nostr-rr/internal/keys"
)

func TestGenerateProducesValidKeypair(t *testing.T) {
	id, err := keys.Generate()
	require.NoError(t, err)
	assert.Len(t, id.PrivateKeyHex, 64)
	assert.Len(t, id.PublicKeyHex, 64)

	reparsed, err := keys.ParsePrivateKey(id.PrivateKeyHex)
	require.NoError(t, err)
	assert.Equal(t, id.PublicKeyHex, reparsed.PublicKeyHex)
}

func TestParsePrivateKeyAcceptsNsec(t *testing.T) {
	id, err := keys.Generate()
	require.NoError(t, err)

	nsec, err := nip19.EncodePrivateKey(id.PrivateKeyHex)
	require.NoError(t, err)

	parsed, err := keys.ParsePrivateKey(nsec)
	require.NoError(t, err)
	assert.Equal(t, id.PrivateKeyHex, parsed.PrivateKeyHex)
	assert.Equal(t, id.PublicKeyHex, parsed.PublicKeyHex)
}

func TestParsePrivateKeyRejectsMalformedNsec(t *testing.T) {
	_, err := keys.ParsePrivateKey("nsec1notvalidbech32")
	assert.Error(t, err)
}

func TestParsePrivateKeyRejectsShortHex(t *testing.T) {
	_, err := keys.ParsePrivateKey("deadbeef")
	assert.Error(t, err)
}

func TestParsePublicKeyAcceptsNpub(t *testing.T) {
	id, err := keys.Generate()
	require.NoError(t, err)

	npub, err := nip19.EncodePublicKey(id.PublicKeyHex)
	require.NoError(t, err)

	pk, err := keys.ParsePublicKey(npub)
	require.NoError(t, err)
	assert.Equal(t, id.PublicKeyHex, pk)
}

func TestParsePublicKeyRejectsMalformedNpub(t *testing.T) {
	_, err := keys.ParsePublicKey("npub1notvalidbech32")
	assert.Error(t, err)
}

func TestParsePublicKeyAcceptsHex(t *testing.T) {
	id, err := keys.Generate()
	require.NoError(t, err)

	pk, err := keys.ParsePublicKey(id.PublicKeyHex)
	require.NoError(t, err)
	assert.Equal(t, id.PublicKeyHex, pk)
}
