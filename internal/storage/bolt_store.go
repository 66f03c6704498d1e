package storage

import (
	"encoding/binary"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	bolt "go.etcd.io/bbolt"
)

const (
	sessionBucket    = "sessions"
	expiryValueBytes = 8
)

// boltStore implements a Store backed by BoltDB. Values are stored as an
// 8-byte big-endian expiry followed by the raw value.
type boltStore struct {
	db              *bolt.DB
	cleanupMu       sync.Mutex
	lastCleanup     atomic.Int64
	ttl             time.Duration
	cleanupInterval time.Duration
}

// openBolt initializes a BoltDB-backed Store.
func openBolt(path string, opts Options) (Store, error) {
	dir := filepath.Dir(path)
	if dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create storage directory: %w", err)
		}
	}

	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("open bbolt db: %w", err)
	}
	if err := db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(sessionBucket))
		return err
	}); err != nil {
		db.Close()
		return nil, fmt.Errorf("init bucket: %w", err)
	}

	store := &boltStore{
		db:              db,
		ttl:             opts.TTL,
		cleanupInterval: opts.CleanupInterval,
	}
	store.lastCleanup.Store(time.Now().Unix())
	return store, nil
}

// Close closes the BoltDB store.
func (b *boltStore) Close() error {
	if b == nil || b.db == nil {
		return nil
	}
	return b.db.Close()
}

// Get returns the live value for key. Expired entries are removed on read.
func (b *boltStore) Get(key string) (string, bool, error) {
	if b == nil || b.db == nil {
		return "", false, nil
	}

	now := time.Now()
	if err := b.maybeCleanupExpired(now); err != nil {
		return "", false, err
	}

	var (
		value string
		found bool
	)
	err := b.db.Update(func(tx *bolt.Tx) error {
		bucket := tx.Bucket([]byte(sessionBucket))
		if bucket == nil {
			return fmt.Errorf("session bucket missing")
		}

		k := []byte(key)
		raw := bucket.Get(k)
		if raw == nil {
			return nil
		}

		expiry, payload, ok := decodeEntry(raw)
		if !ok || !expiry.After(now) {
			return bucket.Delete(k)
		}

		value = string(payload)
		found = true
		return nil
	})
	return value, found, err
}

// Set stores value under key, replacing any previous entry and resetting its expiry.
func (b *boltStore) Set(key, value string) error {
	if b == nil || b.db == nil {
		return nil
	}

	now := time.Now()
	if err := b.maybeCleanupExpired(now); err != nil {
		return err
	}

	return b.db.Update(func(tx *bolt.Tx) error {
		bucket := tx.Bucket([]byte(sessionBucket))
		if bucket == nil {
			return fmt.Errorf("session bucket missing")
		}
		return bucket.Put([]byte(key), encodeEntry(now.Add(b.ttl), value))
	})
}

// Delete removes key. Missing keys are not an error.
func (b *boltStore) Delete(key string) error {
	if b == nil || b.db == nil {
		return nil
	}
	return b.db.Update(func(tx *bolt.Tx) error {
		bucket := tx.Bucket([]byte(sessionBucket))
		if bucket == nil {
			return fmt.Errorf("session bucket missing")
		}
		return bucket.Delete([]byte(key))
	})
}

// maybeCleanupExpired removes expired entries on a fixed cadence to avoid unbounded growth.
func (b *boltStore) maybeCleanupExpired(now time.Time) error {
	if b == nil || b.db == nil {
		return nil
	}

	last := time.Unix(b.lastCleanup.Load(), 0)
	if now.Sub(last) < b.cleanupInterval {
		return nil
	}

	b.cleanupMu.Lock()
	defer b.cleanupMu.Unlock()

	last = time.Unix(b.lastCleanup.Load(), 0)
	if now.Sub(last) < b.cleanupInterval {
		return nil
	}

	err := b.db.Update(func(tx *bolt.Tx) error {
		bucket := tx.Bucket([]byte(sessionBucket))
		if bucket == nil {
			return fmt.Errorf("session bucket missing")
		}

		cursor := bucket.Cursor()
		for k, v := cursor.First(); k != nil; k, v = cursor.Next() {
			expiry, _, ok := decodeEntry(v)
			if !ok || !expiry.After(now) {
				if err := cursor.Delete(); err != nil {
					return err
				}
			}
		}
		return nil
	})
	if err == nil {
		b.lastCleanup.Store(now.Unix())
	}
	return err
}

func encodeEntry(expiry time.Time, value string) []byte {
	buf := make([]byte, expiryValueBytes+len(value))
	binary.BigEndian.PutUint64(buf, uint64(expiry.UnixNano()))
	copy(buf[expiryValueBytes:], value)
	return buf
}

// decodeEntry splits a stored value into its expiry and payload.
func decodeEntry(raw []byte) (time.Time, []byte, bool) {
	if len(raw) < expiryValueBytes {
		return time.Time{}, nil, false
	}
	nanos := int64(binary.BigEndian.Uint64(raw[:expiryValueBytes]))
	if nanos <= 0 {
		return time.Time{}, nil, false
	}
	payload := make([]byte, len(raw)-expiryValueBytes)
	copy(payload, raw[expiryValueBytes:])
	return time.Unix(0, nanos), payload, true
}
