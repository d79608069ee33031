// Package nostrcrypto holds the shared-secret derivation, authenticated
// encryption and event-hashing/signing primitives the envelope layer is
// built on. It is a thin, typed wrapper around go-nostr's NIP-44
// implementation — the construction itself (ChaCha20 + HMAC-SHA256 framing,
// versioned, base64 output) is NIP-44 v2 and must not be reimplemented here.
package nostrcrypto

import (
	"crypto/rand"
	"math/big"
	"time"

	"github.com/nbd-wtf/go-nostr"
	"github.com/nbd-wtf/go-nostr/nip44"

	"github.com/synvya/nostr-rr/internal/rrerr"
)

// maxJitterSeconds bounds how far into the past a sealed/wrapped event's
// created_at may be randomised, per the gift-wrap timestamp-jitter rule.
const maxJitterSeconds = 2 * 86400

// ConversationKey derives the 32-byte symmetric key shared by sk and pk.
// It is deterministic and symmetric: ConversationKey(a, B) == ConversationKey(b, A).
func ConversationKey(sk, pk string) ([32]byte, error) {
	key, err := nip44.GenerateConversationKey(pk, sk)
	if err != nil {
		return [32]byte{}, rrerr.Wrap(rrerr.KindEncryptFailed, "derive conversation key", err)
	}
	return key, nil
}

// Encrypt authenticates and encrypts plaintext under key, returning the
// versioned, base64-framed NIP-44 ciphertext.
func Encrypt(plaintext string, key [32]byte) (string, error) {
	ct, err := nip44.Encrypt(plaintext, key)
	if err != nil {
		return "", rrerr.Wrap(rrerr.KindEncryptFailed, "nip44 encrypt", err)
	}
	return ct, nil
}

// Decrypt authenticates and decrypts ciphertext under key. It fails closed
// on a wrong key, corrupted framing, or an unrecognised version byte.
func Decrypt(ciphertext string, key [32]byte) (string, error) {
	pt, err := nip44.Decrypt(ciphertext, key)
	if err != nil {
		return "", rrerr.Wrap(rrerr.KindDecryptFailed, "nip44 decrypt", err)
	}
	return pt, nil
}

// EventID computes the canonical SHA-256 id of an unsigned event, matching
// the NIP-01 `[0, pubkey, created_at, kind, tags, content]` serialisation
// that go-nostr's Event.GetID implements.
func EventID(evt *nostr.Event) string {
	return evt.GetID()
}

// Sign produces a BIP-340 Schnorr signature over evt's id using sk, and
// stores both id and signature on evt.
func Sign(evt *nostr.Event, sk string) error {
	if err := evt.Sign(sk); err != nil {
		return rrerr.Wrap(rrerr.KindEncryptFailed, "sign event", err)
	}
	return nil
}

// Verify checks evt's signature against its own pubkey and id.
func Verify(evt *nostr.Event) (bool, error) {
	ok, err := evt.CheckSignature()
	if err != nil {
		return false, rrerr.Wrap(rrerr.KindDecryptFailed, "check signature", err)
	}
	return ok, nil
}

// JitteredTimestamp returns now shifted backwards by a uniformly random
// offset in [0, 2*86400) seconds, for use as the created_at of a seal or
// gift wrap. The real rumor timestamp is never jittered — only the two
// envelope layers are, to defeat timing correlation on the relay.
func JitteredTimestamp() nostr.Timestamp {
	now := time.Now().Unix()
	offset, err := rand.Int(rand.Reader, big.NewInt(maxJitterSeconds))
	if err != nil {
		// crypto/rand failing is effectively unrecoverable; fall back to no
		// jitter rather than panic so a seal/wrap still gets produced.
		return nostr.Timestamp(now)
	}
	return nostr.Timestamp(now - offset.Int64())
}
