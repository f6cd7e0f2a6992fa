// Package badger implements pkg/cache.Store on top of BadgerDB, an
// embedded, crash-consistent key-value store.
package badger

import (
	"context"
	"encoding/json"
	"fmt"

	badgerdb "github.com/dgraph-io/badger/v4"

	"github.com/dirlistener/dirlistener/pkg/cache"
	"github.com/dirlistener/dirlistener/pkg/entry"
)

// Store is a BadgerDB-backed implementation of cache.Store. All entry and
// cursor writes go through badger.Txn, so a crash mid-write leaves either
// the old record or the new one, never a partial one.
type Store struct {
	db *badgerdb.DB
}

// Options configures Open.
type Options struct {
	// Path is the directory BadgerDB will use for its SST files and
	// value log. It is created if it does not exist.
	Path string

	// InMemory runs BadgerDB as a pure in-memory store, ignoring Path.
	// Used by tests; never set in production, since the whole point of
	// the cache is to survive a restart.
	InMemory bool
}

// Open creates or opens the entry cache at opts.Path. BadgerDB's own
// internal logging is disabled; the listener logs cache operations itself
// through internal/logger at the call sites that matter operationally.
func Open(opts Options) (*Store, error) {
	badgerOpts := badgerdb.DefaultOptions(opts.Path).
		WithInMemory(opts.InMemory).
		WithLogger(nil)

	db, err := badgerdb.Open(badgerOpts)
	if err != nil {
		return nil, fmt.Errorf("cache: open badger store: %w", err)
	}

	return &Store{db: db}, nil
}

var _ cache.Store = (*Store)(nil)

// Get implements cache.Store.
func (s *Store) Get(ctx context.Context, dn entry.DN) (*entry.Entry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var e *entry.Entry
	err := s.db.View(func(txn *badgerdb.Txn) error {
		item, err := txn.Get(keyEntry(dn.String()))
		if err == badgerdb.ErrKeyNotFound {
			return cache.ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("cache: get %s: %w", dn, err)
		}
		return item.Value(func(val []byte) error {
			decoded, decErr := entry.Decode(dn, val)
			if decErr != nil {
				return fmt.Errorf("%w: %s: %v", cache.ErrCorrupt, dn, decErr)
			}
			e = decoded
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return e, nil
}

// Put implements cache.Store.
func (s *Store) Put(ctx context.Context, e *entry.Entry) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	return s.db.Update(func(txn *badgerdb.Txn) error {
		if err := txn.Set(keyEntry(e.DN.String()), entry.Encode(e)); err != nil {
			return fmt.Errorf("cache: put %s: %w", e.DN, err)
		}
		return nil
	})
}

// Delete implements cache.Store.
func (s *Store) Delete(ctx context.Context, dn entry.DN) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	return s.db.Update(func(txn *badgerdb.Txn) error {
		if err := txn.Delete(keyEntry(dn.String())); err != nil {
			return fmt.Errorf("cache: delete %s: %w", dn, err)
		}
		return nil
	})
}

// Walk implements cache.Store.
func (s *Store) Walk(ctx context.Context, fn func(*entry.Entry) error) error {
	return s.db.View(func(txn *badgerdb.Txn) error {
		opts := badgerdb.DefaultIteratorOptions
		opts.Prefix = []byte(prefixEntry)
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(opts.Prefix); it.ValidForPrefix(opts.Prefix); it.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}

			item := it.Item()
			dn := entry.DN(dnFromEntryKey(item.KeyCopy(nil)))

			var walkErr error
			err := item.Value(func(val []byte) error {
				decoded, err := entry.Decode(dn, val)
				if err != nil {
					return fmt.Errorf("%w: %s: %v", cache.ErrCorrupt, dn, err)
				}
				walkErr = fn(decoded)
				return nil
			})
			if err != nil {
				return err
			}
			if walkErr != nil {
				return walkErr
			}
		}
		return nil
	})
}

// Count implements cache.Store.
func (s *Store) Count(ctx context.Context) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	n := 0
	err := s.db.View(func(txn *badgerdb.Txn) error {
		opts := badgerdb.DefaultIteratorOptions
		opts.Prefix = []byte(prefixEntry)
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(opts.Prefix); it.ValidForPrefix(opts.Prefix); it.Next() {
			n++
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("cache: count: %w", err)
	}
	return n, nil
}

// cursorRecord is the JSON wire shape for cache.Cursor. Unlike entries,
// the cursor is tiny and updated far less often than entries, so it does
// not need the entry package's hand-rolled binary format.
type cursorRecord struct {
	NotifierID    string `json:"notifier_id"`
	ChangeNumber  uint64 `json:"change_number"`
	SchemaID      string `json:"schema_id"`
	ModuleSetHash string `json:"module_set_hash"`
}

// Cursor implements cache.Store.
func (s *Store) Cursor(ctx context.Context) (cache.Cursor, error) {
	if err := ctx.Err(); err != nil {
		return cache.Cursor{}, err
	}

	var rec cursorRecord
	err := s.db.View(func(txn *badgerdb.Txn) error {
		item, err := txn.Get(keyCursor())
		if err == badgerdb.ErrKeyNotFound {
			return cache.ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("cache: get cursor: %w", err)
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &rec)
		})
	})
	if err != nil {
		return cache.Cursor{}, err
	}

	return cache.Cursor{
		NotifierID:    rec.NotifierID,
		ChangeNumber:  rec.ChangeNumber,
		SchemaID:      rec.SchemaID,
		ModuleSetHash: rec.ModuleSetHash,
	}, nil
}

// PutCursor implements cache.Store.
func (s *Store) PutCursor(ctx context.Context, c cache.Cursor) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	val, err := json.Marshal(cursorRecord{
		NotifierID:    c.NotifierID,
		ChangeNumber:  c.ChangeNumber,
		SchemaID:      c.SchemaID,
		ModuleSetHash: c.ModuleSetHash,
	})
	if err != nil {
		return fmt.Errorf("cache: marshal cursor: %w", err)
	}

	return s.db.Update(func(txn *badgerdb.Txn) error {
		if err := txn.Set(keyCursor(), val); err != nil {
			return fmt.Errorf("cache: put cursor: %w", err)
		}
		return nil
	})
}

// Close implements cache.Store.
func (s *Store) Close() error {
	return s.db.Close()
}
