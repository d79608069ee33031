// Package envelope implements the three-layer gift-wrap scheme: rumor →
// seal (kind 13) → gift wrap (kind 1059). Grounded on the teacher's
// createEphemeralRumor/createEphemeralSeal/createEphemeralGiftWrap trio
// (adapted from ephemeral 20000-series kinds back to the standard NIP-59
// kinds 13/1059 the spec requires) and cross-checked against the
// paulborile-glienicke NIP-59 reference's CreateSeal/CreateGiftWrap/Unwrap*.
package envelope

import (
	"encoding/json"
	"time"

	"github.com/nbd-wtf/go-nostr"

	"github.com/synvya/nostr-rr/internal/keys"
	"github.com/synvya/nostr-rr/internal/nostrcrypto"
	"github.com/synvya/nostr-rr/internal/rrerr"
)

const (
	// SealKind is the NIP-59 seal event kind.
	SealKind = 13
	// GiftWrapKind is the NIP-59 gift wrap event kind.
	GiftWrapKind = 1059
)

// RumorPartial describes the caller-supplied fields of a rumor before the
// envelope layer fills in pubkey/id.
type RumorPartial struct {
	Kind      int
	Tags      nostr.Tags
	Content   string
	CreatedAt time.Time // zero value means "now"
}

// MakeRumor fills pubkey, created_at (defaulting to now) and computes id.
// The result is never signed — a rumor has no sig field.
func MakeRumor(partial RumorPartial, authorSK string) (*nostr.Event, error) {
	pk, err := nostr.GetPublicKey(authorSK)
	if err != nil {
		return nil, rrerr.Wrap(rrerr.KindBuildInvalid, "derive author pubkey", err)
	}

	createdAt := partial.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}

	tags := partial.Tags
	if tags == nil {
		tags = nostr.Tags{}
	}

	rumor := &nostr.Event{
		PubKey:    pk,
		CreatedAt: nostr.Timestamp(createdAt.Unix()),
		Kind:      partial.Kind,
		Tags:      tags,
		Content:   partial.Content,
	}
	rumor.ID = nostrcrypto.EventID(rumor)
	return rumor, nil
}

// Seal wraps rumor in a signed kind-13 event, authored by authorSK, whose
// content is rumor encrypted under the conversation key shared with
// recipientPK. Tags are always empty on a seal — any tag here is a
// protocol error on both emit and receive.
func Seal(rumor *nostr.Event, authorSK, recipientPK string) (*nostr.Event, error) {
	rumorJSON, err := json.Marshal(rumor)
	if err != nil {
		return nil, rrerr.Wrap(rrerr.KindBuildInvalid, "marshal rumor", err)
	}

	convKey, err := nostrcrypto.ConversationKey(authorSK, recipientPK)
	if err != nil {
		return nil, err
	}
	ciphertext, err := nostrcrypto.Encrypt(string(rumorJSON), convKey)
	if err != nil {
		return nil, err
	}

	authorPK, err := nostr.GetPublicKey(authorSK)
	if err != nil {
		return nil, rrerr.Wrap(rrerr.KindBuildInvalid, "derive author pubkey", err)
	}

	seal := &nostr.Event{
		PubKey:    authorPK,
		CreatedAt: nostrcrypto.JitteredTimestamp(),
		Kind:      SealKind,
		Tags:      nostr.Tags{},
		Content:   ciphertext,
	}
	seal.ID = nostrcrypto.EventID(seal)
	if err := nostrcrypto.Sign(seal, authorSK); err != nil {
		return nil, err
	}
	return seal, nil
}

// Wrap wraps seal in a signed kind-1059 event authored by a freshly
// generated, one-time-use ephemeral key. The ephemeral secret key is
// dropped before Wrap returns — it is never retained and never reused to
// sign anything else.
func Wrap(seal *nostr.Event, recipientPK string) (*nostr.Event, error) {
	ephemeral, err := keys.Generate()
	if err != nil {
		return nil, err
	}

	sealJSON, err := json.Marshal(seal)
	if err != nil {
		return nil, rrerr.Wrap(rrerr.KindBuildInvalid, "marshal seal", err)
	}

	convKey, err := nostrcrypto.ConversationKey(ephemeral.PrivateKeyHex, recipientPK)
	if err != nil {
		return nil, err
	}
	ciphertext, err := nostrcrypto.Encrypt(string(sealJSON), convKey)
	if err != nil {
		return nil, err
	}

	wrap := &nostr.Event{
		PubKey:    ephemeral.PublicKeyHex,
		CreatedAt: nostrcrypto.JitteredTimestamp(),
		Kind:      GiftWrapKind,
		Tags:      nostr.Tags{{"p", recipientPK}},
		Content:   ciphertext,
	}
	wrap.ID = nostrcrypto.EventID(wrap)
	if err := nostrcrypto.Sign(wrap, ephemeral.PrivateKeyHex); err != nil {
		return nil, err
	}
	// ephemeral.PrivateKeyHex goes out of scope here; nothing retains it.
	return wrap, nil
}

// Unwrap opens a gift wrap addressed to recipientSK's owner, returning the
// sealed event inside. A gift wrap must carry exactly one "p" tag, and it
// must name this recipient — any other shape is a protocol error on
// receive, not just on emit.
func Unwrap(wrap *nostr.Event, recipientSK string) (*nostr.Event, error) {
	if wrap.Kind != GiftWrapKind {
		return nil, rrerr.New(rrerr.KindWrongKind, "event is not a gift wrap")
	}
	recipientPK, err := nostr.GetPublicKey(recipientSK)
	if err != nil {
		return nil, rrerr.Wrap(rrerr.KindBuildInvalid, "derive recipient pubkey", err)
	}
	if err := requireSoleRecipientTag(wrap.Tags, recipientPK); err != nil {
		return nil, err
	}

	convKey, err := nostrcrypto.ConversationKey(recipientSK, wrap.PubKey)
	if err != nil {
		return nil, err
	}
	plaintext, err := nostrcrypto.Decrypt(wrap.Content, convKey)
	if err != nil {
		return nil, err
	}

	var seal nostr.Event
	if err := json.Unmarshal([]byte(plaintext), &seal); err != nil {
		return nil, rrerr.Wrap(rrerr.KindDecryptFailed, "parse sealed event", err)
	}
	if seal.Kind != SealKind {
		return nil, rrerr.New(rrerr.KindWrongKind, "unwrapped event is not a seal")
	}
	return &seal, nil
}

// Unseal opens a seal addressed to recipientSK's owner, returning the
// contained rumor. Callers MUST re-verify rumor.PubKey == seal.PubKey
// themselves (AuthorMismatch is not raised here because the unsealed
// rumor's pubkey assertion is the caller's trust decision, not a decoding
// failure) — see the subscriber's handleEvent for the check.
func Unseal(seal *nostr.Event, recipientSK string) (*nostr.Event, error) {
	if seal.Kind != SealKind {
		return nil, rrerr.New(rrerr.KindWrongKind, "event is not a seal")
	}
	if len(seal.Tags) != 0 {
		return nil, rrerr.New(rrerr.KindRelayProtocol, "seal must carry no tags")
	}

	convKey, err := nostrcrypto.ConversationKey(recipientSK, seal.PubKey)
	if err != nil {
		return nil, err
	}
	plaintext, err := nostrcrypto.Decrypt(seal.Content, convKey)
	if err != nil {
		return nil, err
	}

	var rumor nostr.Event
	if err := json.Unmarshal([]byte(plaintext), &rumor); err != nil {
		return nil, rrerr.Wrap(rrerr.KindDecryptFailed, "parse rumor", err)
	}
	return &rumor, nil
}

// VerifyAuthorship checks that a rumor's claimed pubkey matches the pubkey
// that signed the seal it was recovered from, per the round-trip property
// in spec.md §8.2. It is deliberately separate from Unseal so a caller can
// choose to log-and-drop mismatches rather than hard-fail.
func VerifyAuthorship(rumor, seal *nostr.Event) error {
	if rumor.PubKey != seal.PubKey {
		return rrerr.New(rrerr.KindAuthorMismatch, "rumor author does not match seal author")
	}
	return nil
}

// requireSoleRecipientTag enforces a gift wrap's tag shape: exactly one "p"
// tag, naming recipientPK. A wrap with extra tags, no tag, or a tag naming
// someone else is rejected before decryption is even attempted.
func requireSoleRecipientTag(tags nostr.Tags, recipientPK string) error {
	pTags := 0
	matched := false
	for _, tag := range tags {
		if len(tag) < 1 || tag[0] != "p" {
			continue
		}
		pTags++
		if len(tag) >= 2 && tag[1] == recipientPK {
			matched = true
		}
	}
	if pTags != 1 || !matched {
		return rrerr.New(rrerr.KindRelayProtocol, "gift wrap must carry exactly one p tag addressed to the recipient")
	}
	return nil
}
