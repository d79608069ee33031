// Package keys manages a single process identity: loading, generating and
// decoding Nostr keypairs. Modeled on the teacher's KeyManager, generalised
// to accept hex or bech32 (nsec1/npub1) input per NIP-19.
package keys

import (
	"crypto/rand"
	"encoding/hex"
	"strings"

	"github.com/nbd-wtf/go-nostr"
	"github.com/nbd-wtf/go-nostr/nip19"

	"github.com/synvya/nostr-rr/internal/rrerr"
)

// Identity is a single process's Nostr keypair.
type Identity struct {
	PrivateKeyHex string
	PublicKeyHex  string
}

// Generate creates a fresh random identity. Used for ephemeral wrap keys
// and for bootstrapping a new process identity when none is configured.
func Generate() (Identity, error) {
	skBytes := make([]byte, 32)
	if _, err := rand.Read(skBytes); err != nil {
		return Identity{}, rrerr.Wrap(rrerr.KindConfigInvalid, "generate private key", err)
	}
	sk := hex.EncodeToString(skBytes)
	pk, err := nostr.GetPublicKey(sk)
	if err != nil {
		return Identity{}, rrerr.Wrap(rrerr.KindConfigInvalid, "derive public key", err)
	}
	return Identity{PrivateKeyHex: sk, PublicKeyHex: pk}, nil
}

// ParsePrivateKey accepts a hex private key or a bech32 nsec1 string and
// returns the identity it names. Decode failures are a hard error — the
// spec's open question on bech32 leniency is resolved as strict rejection;
// there is no fallback to treating undecodable input as a raw value.
func ParsePrivateKey(input string) (Identity, error) {
	sk := input
	if strings.HasPrefix(input, "nsec1") {
		prefix, value, err := nip19.Decode(input)
		if err != nil {
			return Identity{}, rrerr.Wrap(rrerr.KindConfigInvalid, "decode nsec", err)
		}
		if prefix != "nsec" {
			return Identity{}, rrerr.New(rrerr.KindConfigInvalid, "not an nsec key: "+prefix)
		}
		skStr, ok := value.(string)
		if !ok {
			return Identity{}, rrerr.New(rrerr.KindConfigInvalid, "malformed nsec payload")
		}
		sk = skStr
	}
	if !isHex32(sk) {
		return Identity{}, rrerr.New(rrerr.KindConfigInvalid, "private key must be 64 lowercase hex chars or nsec1...")
	}
	pk, err := nostr.GetPublicKey(sk)
	if err != nil {
		return Identity{}, rrerr.Wrap(rrerr.KindConfigInvalid, "derive public key", err)
	}
	return Identity{PrivateKeyHex: sk, PublicKeyHex: pk}, nil
}

// ParsePublicKey accepts a hex public key or a bech32 npub1 string.
func ParsePublicKey(input string) (string, error) {
	if strings.HasPrefix(input, "npub1") {
		prefix, value, err := nip19.Decode(input)
		if err != nil {
			return "", rrerr.Wrap(rrerr.KindConfigInvalid, "decode npub", err)
		}
		if prefix != "npub" {
			return "", rrerr.New(rrerr.KindConfigInvalid, "not an npub key: "+prefix)
		}
		pk, ok := value.(string)
		if !ok {
			return "", rrerr.New(rrerr.KindConfigInvalid, "malformed npub payload")
		}
		if !isHex32(pk) {
			return "", rrerr.New(rrerr.KindConfigInvalid, "decoded npub is not 32-byte hex")
		}
		return pk, nil
	}
	if !isHex32(input) {
		return "", rrerr.New(rrerr.KindConfigInvalid, "public key must be 64 lowercase hex chars or npub1...")
	}
	return input, nil
}

func isHex32(s string) bool {
	if len(s) != 64 {
		return false
	}
	for _, c := range s {
		if !((c >= '0' && c <= '9') || (c >= 'a' && c <= 'f')) {
			return false
		}
	}
	return true
}
