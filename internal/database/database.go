// Package database provides the namespaced key-value store every
// component persists through (spec.md §6, "Persisted state layout").
// It is a thin interface over github.com/syndtr/goleveldb, the same
// on-disk engine the teacher repo wraps in its own tosdb package
// (tosdb/leveldb/leveldb_test.go shows the same storage.NewMemStorage
// construction used here for tests).
package database

import (
	"errors"

	"github.com/golang/snappy"
	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/iterator"
	"github.com/syndtr/goleveldb/leveldb/opt"
	"github.com/syndtr/goleveldb/leveldb/storage"
	"github.com/syndtr/goleveldb/leveldb/util"
)

// ErrKeyNotFound is returned when a lookup misses.
var ErrKeyNotFound = leveldb.ErrNotFound

// KeyValueStore is the interface every component depends on. Components
// never reach for *leveldb.DB directly so the backend can be swapped
// (tests use an in-memory storage.Storage) without touching call sites.
type KeyValueStore interface {
	Get(key []byte) ([]byte, error)
	Has(key []byte) (bool, error)
	Put(key, value []byte) error
	Delete(key []byte) error
	NewIterator(prefix []byte) iterator.Iterator
	NewBatch() Batch
	Close() error
}

// Batch accumulates writes for atomic commit, matching the teacher's
// convention of opening, mutating and committing a transaction in a
// bounded scope without holding it across an await on external I/O
// (spec.md §5).
type Batch interface {
	Put(key, value []byte) error
	Delete(key []byte) error
	Write() error
	Reset()
	Len() int
}

type levelDB struct {
	db *leveldb.DB
}

// Open opens (or creates) a goleveldb database rooted at path.
func Open(path string) (KeyValueStore, error) {
	db, err := leveldb.OpenFile(path, &opt.Options{})
	if err != nil {
		return nil, err
	}
	return &levelDB{db: db}, nil
}

// OpenMemory returns an ephemeral in-memory database, used by tests and
// by components that only need a process-local scratch store.
func OpenMemory() KeyValueStore {
	db, err := leveldb.Open(storage.NewMemStorage(), nil)
	if err != nil {
		// storage.NewMemStorage never fails to open; a failure here is an
		// internal invariant violation, not a recoverable I/O error.
		panic(err)
	}
	return &levelDB{db: db}
}

func (l *levelDB) Get(key []byte) ([]byte, error) { return l.db.Get(key, nil) }

func (l *levelDB) Has(key []byte) (bool, error) { return l.db.Has(key, nil) }

func (l *levelDB) Put(key, value []byte) error { return l.db.Put(key, value, nil) }

func (l *levelDB) Delete(key []byte) error { return l.db.Delete(key, nil) }

func (l *levelDB) NewIterator(prefix []byte) iterator.Iterator {
	return l.db.NewIterator(util.BytesPrefix(prefix), nil)
}

func (l *levelDB) NewBatch() Batch { return &levelBatch{db: l.db, b: new(leveldb.Batch)} }

func (l *levelDB) Close() error { return l.db.Close() }

type levelBatch struct {
	db *leveldb.DB
	b  *leveldb.Batch
}

func (b *levelBatch) Put(key, value []byte) error { b.b.Put(key, value); return nil }
func (b *levelBatch) Delete(key []byte) error      { b.b.Delete(key); return nil }
func (b *levelBatch) Write() error                 { return b.db.Write(b.b, nil) }
func (b *levelBatch) Reset()                       { b.b.Reset() }
func (b *levelBatch) Len() int                      { return b.b.Len() }

// CompressBlob and DecompressBlob wrap snappy compression for large
// blobs (Batch/Plan payloads) before they hit the KV store, the way
// go-ethereum-family nodes snappy-compress block/receipt blobs.
func CompressBlob(data []byte) []byte { return snappy.Encode(nil, data) }

func DecompressBlob(data []byte) ([]byte, error) {
	out, err := snappy.Decode(nil, data)
	if err != nil {
		return nil, errors.New("database: corrupt snappy blob: " + err.Error())
	}
	return out, nil
}
