package store

import "sort"

// MemAdapter is an in-memory Lmdb implementation used by tests; it
// satisfies the same transactional
// cursor contract as BoltAdapter without touching disk.
type MemAdapter struct {
	buckets map[string]map[string][]byte
}

func NewMemAdapter() *MemAdapter {
	return &MemAdapter{buckets: map[string]map[string][]byte{}}
}

func (m *MemAdapter) Update(fn func(Tx) error) error { return fn(memTx{m}) }
func (m *MemAdapter) View(fn func(Tx) error) error   { return fn(memTx{m}) }
func (m *MemAdapter) Close() error                   { return nil }

type memTx struct{ m *MemAdapter }

func (t memTx) Bucket(name []byte) Bucket {
	b, ok := t.m.buckets[string(name)]
	if !ok {
		return nil
	}
	return &memBucket{data: b}
}

func (t memTx) CreateBucketIfNotExists(name []byte) (Bucket, error) {
	b, ok := t.m.buckets[string(name)]
	if !ok {
		b = map[string][]byte{}
		t.m.buckets[string(name)] = b
	}
	return &memBucket{data: b}, nil
}

type memBucket struct{ data map[string][]byte }

func (b *memBucket) Get(key []byte) []byte { return b.data[string(key)] }

func (b *memBucket) Put(key, value []byte) error {
	cp := make([]byte, len(value))
	copy(cp, value)
	b.data[string(key)] = cp
	return nil
}

func (b *memBucket) Delete(key []byte) error {
	delete(b.data, string(key))
	return nil
}

func (b *memBucket) Cursor() Cursor {
	keys := make([]string, 0, len(b.data))
	for k := range b.data {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return &memCursor{bucket: b, keys: keys, pos: -1}
}

type memCursor struct {
	bucket *memBucket
	keys   []string
	pos    int
}

func (c *memCursor) at(i int) ([]byte, []byte) {
	if i < 0 || i >= len(c.keys) {
		c.pos = len(c.keys)
		return nil, nil
	}
	c.pos = i
	k := c.keys[i]
	return []byte(k), c.bucket.data[k]
}

func (c *memCursor) First() ([]byte, []byte) { return c.at(0) }
func (c *memCursor) Last() ([]byte, []byte)  { return c.at(len(c.keys) - 1) }
func (c *memCursor) Next() ([]byte, []byte)  { return c.at(c.pos + 1) }
func (c *memCursor) Prev() ([]byte, []byte)  { return c.at(c.pos - 1) }

func (c *memCursor) Seek(prefix []byte) ([]byte, []byte) {
	i := sort.SearchStrings(c.keys, string(prefix))
	return c.at(i)
}
