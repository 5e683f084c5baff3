package stats

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"go.etcd.io/bbolt"
)

// bucketCalls maps code|url -> 8-byte big-endian count.
var bucketCalls = []byte("calls")

// BoltStore implements Store using bbolt.
type BoltStore struct {
	db     *bbolt.DB
	logger *slog.Logger
	noSync bool
}

// BoltOption configures a BoltStore.
type BoltOption func(*BoltStore)

// WithBoltLogger sets the logger for the store.
func WithBoltLogger(logger *slog.Logger) BoltOption {
	return func(b *BoltStore) {
		b.logger = logger
	}
}

// WithNoSync disables fsync per transaction.
// Use only for testing, never in production.
func WithNoSync(noSync bool) BoltOption {
	return func(b *BoltStore) {
		b.noSync = noSync
	}
}

// OpenBolt opens (creating if needed) the bbolt database at path.
func OpenBolt(path string, opts ...BoltOption) (*BoltStore, error) {
	b := &BoltStore{logger: slog.Default()}
	for _, opt := range opts {
		opt(b)
	}

	db, err := bbolt.Open(path, 0o600, &bbolt.Options{
		Timeout: 1 * time.Second,
		NoSync:  b.noSync,
	})
	if err != nil {
		return nil, fmt.Errorf("opening stats database: %w", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists(bucketCalls); err != nil {
			return fmt.Errorf("creating bucket %s: %w", bucketCalls, err)
		}
		return nil
	})
	if err != nil {
		_ = db.Close()
		return nil, err
	}

	b.db = db
	b.logger.Debug("opened stats database", "path", path)
	return b, nil
}

// Load returns every persisted count.
func (b *BoltStore) Load() (map[Call]int, error) {
	calls := make(map[Call]int)
	err := b.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketCalls).ForEach(func(k, v []byte) error {
			call, err := decodeCallKey(k)
			if err != nil {
				return err
			}
			if len(v) != 8 {
				return fmt.Errorf("invalid count for %s: %d bytes", k, len(v))
			}
			calls[call] = int(binary.BigEndian.Uint64(v)) //nolint:gosec // counts never approach the int limit
			return nil
		})
	})
	if err != nil {
		return nil, fmt.Errorf("loading call counts: %w", err)
	}
	return calls, nil
}

// Increment adds one to the persisted count for call. Concurrent calls are
// coalesced into one transaction by bbolt's batching, so each caller may wait
// up to MaxBatchDelay but the store pays one fsync per batch.
func (b *BoltStore) Increment(call Call) error {
	return b.db.Batch(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket(bucketCalls)
		key := encodeCallKey(call)

		var n uint64
		if v := bucket.Get(key); len(v) == 8 {
			n = binary.BigEndian.Uint64(v)
		}

		buf := make([]byte, 8)
		binary.BigEndian.PutUint64(buf, n+1)
		return bucket.Put(key, buf)
	})
}

// Close closes the database and releases resources.
func (b *BoltStore) Close() error {
	if b.db == nil {
		return nil
	}
	b.logger.Debug("closing stats database")
	return b.db.Close()
}

// encodeCallKey formats a call as "<code>|<url>". The code goes first since
// URLs may contain the separator.
func encodeCallKey(call Call) []byte {
	return []byte(strconv.Itoa(call.Code) + "|" + call.URL)
}

func decodeCallKey(k []byte) (Call, error) {
	code, url, ok := bytes.Cut(k, []byte("|"))
	if !ok {
		return Call{}, fmt.Errorf("invalid call key %q", k)
	}
	n, err := strconv.Atoi(string(code))
	if err != nil {
		return Call{}, fmt.Errorf("invalid call key %q: %w", k, err)
	}
	return Call{URL: string(url), Code: n}, nil
}

var _ Store = (*BoltStore)(nil)
