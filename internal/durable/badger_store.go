package durable

import (
	"context"
	"time"

	"github.com/dgraph-io/badger/v4"

	"github.com/synvya/nostr-rr/internal/rrerr"
)

// BadgerStore is a Store backed by an embedded badger database. It stands
// in for the networked key-value table (DynamoDB-shaped in the original
// source) the spec's durable registry is written against — same Put/Get
// contract, swappable without changing Registry.
type BadgerStore struct {
	db *badger.DB
}

// OpenBadgerStore opens (creating if absent) a badger database at dir.
func OpenBadgerStore(dir string) (*BadgerStore, error) {
	opts := badger.DefaultOptions(dir)
	db, err := badger.Open(opts)
	if err != nil {
		return nil, rrerr.Wrap(rrerr.KindConfigInvalid, "open durable store", err)
	}
	return &BadgerStore{db: db}, nil
}

// Put writes value under key with the given TTL.
func (s *BadgerStore) Put(_ context.Context, key string, value []byte, ttl time.Duration) error {
	return s.db.Update(func(txn *badger.Txn) error {
		entry := badger.NewEntry([]byte(key), value)
		if ttl > 0 {
			entry = entry.WithTTL(ttl)
		}
		return txn.SetEntry(entry)
	})
}

// Get reads the value stored under key, if present and unexpired.
func (s *BadgerStore) Get(_ context.Context, key string) ([]byte, bool, error) {
	var value []byte
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(key))
		if err != nil {
			return err
		}
		return item.Value(func(v []byte) error {
			value = append([]byte(nil), v...)
			return nil
		})
	})
	if err == badger.ErrKeyNotFound {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, rrerr.Wrap(rrerr.KindNotFound, "read durable row "+key, err)
	}
	return value, true, nil
}

// Close releases the underlying database.
func (s *BadgerStore) Close() error {
	return s.db.Close()
}
