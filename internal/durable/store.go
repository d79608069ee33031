// Package durable implements the second, external-key-value-backed
// correlation registry (component H): the same wait(request_id, timeout)
// contract as the in-memory waiter registry, but backed by a row an
// out-of-band writer (a second process) updates. The concrete store is
// github.com/dgraph-io/badger/v4, the embedded KV library carried from the
// kwsantiago-orly (orly.dev) reference in the example pack — it is wrapped
// behind a narrow Store interface so a networked KV service (DynamoDB and
// similar) could stand in for it without touching Registry.
package durable

import (
	"context"
	"time"
)

// Store is the minimal key-value contract Registry needs. Implementations
// must make Put durable before returning and Get reflect the latest Put
// from any process sharing the same backing store.
type Store interface {
	Put(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Close() error
}
