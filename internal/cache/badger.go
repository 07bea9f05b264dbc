package cache

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/dgraph-io/badger/v4"

	"github.com/JNZader/kirolint/internal/logger"
	"github.com/JNZader/kirolint/internal/matcher"
)

// BadgerCache persists findings in a Badger database. Entries expire
// through Badger's native TTL.
type BadgerCache struct {
	db  *badger.DB
	ttl time.Duration
	log *logger.Logger

	hits   int64
	misses int64
}

// NewBadgerCache opens or creates a database in dir.
func NewBadgerCache(dir string, ttl time.Duration) (*BadgerCache, error) {
	if dir == "" {
		return nil, errors.New("badger cache requires a directory")
	}
	badgerOpts := badger.DefaultOptions(dir)
	badgerOpts.Logger = nil

	db, err := badger.Open(badgerOpts)
	if err != nil {
		return nil, fmt.Errorf("opening badger db: %w", err)
	}
	return &BadgerCache{
		db:  db,
		ttl: ttl,
		log: logger.Default().WithPrefix("CACHE"),
	}, nil
}

// Compile-time interface checks.
var (
	_ Cache = (*BadgerCache)(nil)
	_ Cache = (*LRUCache)(nil)
)

func (c *BadgerCache) Get(key string) ([]matcher.Finding, bool, error) {
	var findings []matcher.Finding

	err := c.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(key))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &findings)
		})
	})

	if errors.Is(err, badger.ErrKeyNotFound) {
		atomic.AddInt64(&c.misses, 1)
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("reading cache entry: %w", err)
	}

	atomic.AddInt64(&c.hits, 1)
	return findings, true, nil
}

func (c *BadgerCache) Set(key string, findings []matcher.Finding) error {
	if findings == nil {
		findings = []matcher.Finding{}
	}
	data, err := json.Marshal(findings)
	if err != nil {
		return fmt.Errorf("marshaling findings: %w", err)
	}

	return c.db.Update(func(txn *badger.Txn) error {
		return txn.SetEntry(badger.NewEntry([]byte(key), data).WithTTL(c.ttl))
	})
}

func (c *BadgerCache) Clear() error {
	return c.db.DropAll()
}

func (c *BadgerCache) Close() error {
	return c.db.Close()
}

// Stats counts live keys with a key-only iteration.
func (c *BadgerCache) Stats() Stats {
	entries := 0
	err := c.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false

		it := txn.NewIterator(opts)
		defer it.Close() //nolint:errcheck

		for it.Rewind(); it.Valid(); it.Next() {
			entries++
		}
		return nil
	})
	if err != nil {
		c.log.Warn("Counting cache entries failed: %v", err)
	}

	return Stats{
		Hits:    atomic.LoadInt64(&c.hits),
		Misses:  atomic.LoadInt64(&c.misses),
		Entries: entries,
	}
}
