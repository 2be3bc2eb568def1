// Package store implements EventStore: transactional persistence of
// events, profiles, follow lists and derived timeline indices, on top
// of an Lmdb capability that the raw embedded transactional key-value
// store treats as an external collaborator, specified only
// by the cursor/transaction contract it exposes.
package store

// Lmdb is the raw embedded key-value capability: named buckets,
// transactions, and ordered cursors. The production adapter
// (BoltAdapter, in boltadapter.go) backs this with go.etcd.io/bbolt,
// the pure-Go descendant of LMDB with an API built around the same
// bucket/cursor/transaction shape.
type Lmdb interface {
	Update(fn func(Tx) error) error
	View(fn func(Tx) error) error
	Close() error
}

// Tx is a single read or read-write transaction.
type Tx interface {
	Bucket(name []byte) Bucket
	CreateBucketIfNotExists(name []byte) (Bucket, error)
}

// Bucket is a named, ordered key-value namespace within a transaction.
type Bucket interface {
	Get(key []byte) []byte
	Put(key, value []byte) error
	Delete(key []byte) error
	Cursor() Cursor
}

// Cursor iterates a Bucket's keys in lexicographic order.
type Cursor interface {
	First() (k, v []byte)
	Last() (k, v []byte)
	Next() (k, v []byte)
	Prev() (k, v []byte)
	Seek(prefix []byte) (k, v []byte)
}
