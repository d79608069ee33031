// Package config loads the process-wide configuration named in spec.md
// §6: identity, relay set, response timeout, and the optional durable
// store settings. It is constructed once in main and passed down
// explicitly — no hidden singleton, per spec.md §9's "Global state" note.
// Loading follows the teacher's flag-driven style, optionally seeded from
// a .env file via github.com/joho/godotenv the way SAGE-X-project-sage
// loads its own environment-specific settings.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/synvya/nostr-rr/internal/keys"
	"github.com/synvya/nostr-rr/internal/rrerr"
)

const (
	minResponseTimeout = 1000 * time.Millisecond
	maxResponseTimeout = 120000 * time.Millisecond
)

// Config is the process-wide, load-once configuration block.
type Config struct {
	Identity         keys.Identity
	Relays           []string
	ResponseTimeout  time.Duration
	DurableTableName string // empty means: use the in-memory registry
	KVRegion         string
}

// Options are the raw inputs to Load, typically populated from flags or
// environment variables by the caller (see cmd/rrdemo).
type Options struct {
	PrivateKey       string // hex or nsec1...
	RelayURLs        string // comma-separated wss://... list
	ResponseTimeout  time.Duration
	DurableTableName string
	KVRegion         string
}

// LoadDotEnv loads a .env file at path into the process environment if it
// exists; a missing file is not an error. Call this before reading
// environment variables into Options.
func LoadDotEnv(path string) error {
	if path == "" {
		path = ".env"
	}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		return rrerr.Wrap(rrerr.KindConfigInvalid, "load .env", err)
	}
	return nil
}

// OptionsFromEnv reads Options from environment variables, applying
// defaults for anything unset. Intended to be layered under explicit
// flags in main.
func OptionsFromEnv() Options {
	timeout := 5000 * time.Millisecond
	if v := os.Getenv("RR_RESPONSE_TIMEOUT_MS"); v != "" {
		if ms, err := strconv.Atoi(v); err == nil {
			timeout = time.Duration(ms) * time.Millisecond
		}
	}
	return Options{
		PrivateKey:       os.Getenv("RR_PRIVATE_KEY"),
		RelayURLs:        os.Getenv("RR_RELAYS"),
		ResponseTimeout:  timeout,
		DurableTableName: os.Getenv("RR_DURABLE_TABLE"),
		KVRegion:         defaultString(os.Getenv("RR_KV_REGION"), "local"),
	}
}

// Load validates opts and resolves them into a Config. Every constraint in
// spec.md §6's configuration table is enforced here; a violation is
// ConfigInvalid.
func Load(opts Options) (Config, error) {
	if opts.PrivateKey == "" {
		return Config{}, rrerr.New(rrerr.KindConfigInvalid, "private key is required")
	}
	identity, err := keys.ParsePrivateKey(opts.PrivateKey)
	if err != nil {
		return Config{}, err
	}

	relays := splitRelays(opts.RelayURLs)
	if len(relays) == 0 {
		return Config{}, rrerr.New(rrerr.KindConfigInvalid, "at least one relay URL is required")
	}
	for _, r := range relays {
		if !strings.HasPrefix(r, "wss://") && !strings.HasPrefix(r, "ws://") {
			return Config{}, rrerr.New(rrerr.KindConfigInvalid, "relay URL must be ws(s)://: "+r)
		}
	}

	timeout := opts.ResponseTimeout
	if timeout == 0 {
		timeout = 5000 * time.Millisecond
	}
	if timeout < minResponseTimeout || timeout > maxResponseTimeout {
		return Config{}, rrerr.New(rrerr.KindConfigInvalid, "response timeout must be between 1000 and 120000 ms")
	}

	return Config{
		Identity:         identity,
		Relays:           relays,
		ResponseTimeout:  timeout,
		DurableTableName: opts.DurableTableName,
		KVRegion:         defaultString(opts.KVRegion, "local"),
	}, nil
}

// UsesDurableRegistry reports whether the durable (external KV) waiter
// registry should be used in place of the in-memory one.
func (c Config) UsesDurableRegistry() bool {
	return c.DurableTableName != ""
}

func splitRelays(csv string) []string {
	var out []string
	for _, part := range strings.Split(csv, ",") {
		p := strings.TrimSpace(part)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

func defaultString(v, def string) string {
	if v == "" {
		return def
	}
	return v
}
