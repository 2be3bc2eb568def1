package store

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/corvidlabs/inboxcore/internal/cryptocap"
	"github.com/corvidlabs/inboxcore/internal/nostrtypes"
	"github.com/corvidlabs/inboxcore/internal/unwrap"
)

// EventStore is the transactional persistence layer for events, profiles,
// follow lists and derived timeline indices. Writers are
// serialized by a single process-wide lock; readers take a snapshot
// View transaction and never block on it.
type EventStore struct {
	db Lmdb
	mu sync.Mutex
	crypto cryptocap.Crypto

	// Viewer identifies whose gift wraps this store can unwrap, and
	// ViewerPrivHex is the key material CryptoUnwrap needs to do it.
	// Both are supplied by InboxModel at construction time, never
	// mutated afterward.
	Viewer nostrtypes.PubKey
	ViewerPrivHex string
}

// New opens an EventStore over db, creating the five named tables plus
// the derived auxiliary indices (relay lists, latest-timestamp) if
// absent.
func New(db Lmdb, crypto cryptocap.Crypto, viewer nostrtypes.PubKey, viewerPrivHex string) (*EventStore, error) {
	s := &EventStore{db: db, crypto: crypto, Viewer: viewer, ViewerPrivHex: viewerPrivHex}
	err := db.Update(func(tx Tx) error {
		for _, b := range allBuckets {
			if _, err := tx.CreateBucketIfNotExists(b); err != nil {
				return fmt.Errorf("store: create bucket %s: %w", b, err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return s, nil
}

func (s *EventStore) Close() error { return s.db.Close() }

// storedEvent is the JSON persisted in the events table.
type storedEvent struct {
	Event nostrtypes.Event
	Relays []string
}

// storedProfile is the JSON persisted in the profiles table.
type storedProfile struct {
	Profile nostrtypes.Profile
	CreatedAt int64
	ID [32]byte
}

// storedFollows is the JSON persisted in the follows table.
type storedFollows struct {
	Follows []storedFollow
	CreatedAt int64
	ID [32]byte
}

type storedFollow struct {
	Target string
	RelayHint string
	Petname string
}

// storedRelays is the JSON persisted in the two relay-list tables.
type storedRelays struct {
	Relays []nostrtypes.Relay
	CreatedAt int64
	ID [32]byte
}

// PutEvent is put_event: validate, upsert into events
// with relay-set union, then dispatch side effects by kind — all
// inside one write transaction.
func (s *EventStore) PutEvent(ev nostrtypes.Event, fromRelays map[string]struct{}) error {
	if !ev.HasValidID() || !s.crypto.Verify(ev.ID, ev.Sig, ev.PubKey) {
		return fmt.Errorf("store: %w", ErrInvalidEvent)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	return s.db.Update(func(tx Tx) error {
		merged, changed, err := s.upsertEvent(tx, ev, fromRelays)
		if err != nil {
			return err
		}
		if !changed {
			// Already known under identical content; relay-set unchanged.
			// Re-running side effects would be harmless (idempotent) but
			// wasteful, so skip them.
			return nil
		}
		_ = merged
		return s.applyKindSideEffects(tx, ev)
	})
}

var ErrInvalidEvent = fmt.Errorf("invalid event")
var ErrStoreUnavailable = fmt.Errorf("store unavailable")

func (s *EventStore) upsertEvent(tx Tx, ev nostrtypes.Event, fromRelays map[string]struct{}) (storedEvent, bool, error) {
	b := tx.Bucket(bucketEvents)
	existingRaw := b.Get(ev.ID[:])

	var se storedEvent
	changed := existingRaw == nil
	if existingRaw != nil {
		if err := json.Unmarshal(existingRaw, &se); err != nil {
			return storedEvent{}, false, fmt.Errorf("store: decode existing event %s: %w", ev.ID, err)
		}
	} else {
		se = storedEvent{Event: ev}
	}

	relaySet := map[string]struct{}{}
	for _, r := range se.Relays {
		relaySet[r] = struct{}{}
	}
	for r := range fromRelays {
		if _, ok := relaySet[r]; !ok {
			relaySet[r] = struct{}{}
			changed = true
		}
	}
	se.Relays = se.Relays[:0]
	for r := range relaySet {
		se.Relays = append(se.Relays, r)
	}

	data, err := json.Marshal(se)
	if err != nil {
		return storedEvent{}, false, fmt.Errorf("store: encode event %s: %w", ev.ID, err)
	}
	if err := b.Put(ev.ID[:], data); err != nil {
		return storedEvent{}, false, fmt.Errorf("store: put event %s: %w", ev.ID, err)
	}
	return se, changed, nil
}
