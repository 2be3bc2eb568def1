package store

import (
	"fmt"

	bolt "go.etcd.io/bbolt"
)

// BoltAdapter satisfies Lmdb on top of go.etcd.io/bbolt. Every on-disk
// viewer environment is a single bbolt file, matching "one
// on-disk key-value environment per viewer."
type BoltAdapter struct {
	db *bolt.DB
}

// OpenBolt opens (creating if absent) the bbolt file at path.
func OpenBolt(path string) (*BoltAdapter, error) {
	db, err := bolt.Open(path, 0600, nil)
	if err != nil {
		return nil, fmt.Errorf("store: open bolt db at %q: %w", path, err)
	}
	return &BoltAdapter{db: db}, nil
}

func (a *BoltAdapter) Update(fn func(Tx) error) error {
	return a.db.Update(func(tx *bolt.Tx) error { return fn(boltTx{tx}) })
}

func (a *BoltAdapter) View(fn func(Tx) error) error {
	return a.db.View(func(tx *bolt.Tx) error { return fn(boltTx{tx}) })
}

func (a *BoltAdapter) Close() error { return a.db.Close() }

type boltTx struct{ tx *bolt.Tx }

func (t boltTx) Bucket(name []byte) Bucket {
	b := t.tx.Bucket(name)
	if b == nil {
		return nil
	}
	return boltBucket{b}
}

func (t boltTx) CreateBucketIfNotExists(name []byte) (Bucket, error) {
	b, err := t.tx.CreateBucketIfNotExists(name)
	if err != nil {
		return nil, err
	}
	return boltBucket{b}, nil
}

type boltBucket struct{ b *bolt.Bucket }

func (b boltBucket) Get(key []byte) []byte       { return b.b.Get(key) }
func (b boltBucket) Put(key, value []byte) error { return b.b.Put(key, value) }
func (b boltBucket) Delete(key []byte) error     { return b.b.Delete(key) }
func (b boltBucket) Cursor() Cursor              { return boltCursor{b.b.Cursor()} }

type boltCursor struct{ c *bolt.Cursor }

func (c boltCursor) First() ([]byte, []byte)              { return c.c.First() }
func (c boltCursor) Last() ([]byte, []byte)               { return c.c.Last() }
func (c boltCursor) Next() ([]byte, []byte)               { return c.c.Next() }
func (c boltCursor) Prev() ([]byte, []byte)               { return c.c.Prev() }
func (c boltCursor) Seek(prefix []byte) ([]byte, []byte) { return c.c.Seek(prefix) }
