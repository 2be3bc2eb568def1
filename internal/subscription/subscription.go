// Package subscription implements SubscriptionManager: subscription id
// allocation, per-(relay, sub_id) bookkeeping, and the single shared
// ingest queue every relay's events feed into.
package subscription

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"sync"

	"github.com/corvidlabs/inboxcore/internal/nostrtypes"
)

// EventKind tags the SubscriptionEvent variant.
type EventKind int

const (
	EventAppeared EventKind = iota
	EventEose
	EventClosed
)

// IngestItem is one (relay_uri, SubscriptionEvent) pair delivered on the
// shared ingest queue.
type IngestItem struct {
	Relay  string
	SubID  string
	Kind   EventKind
	Event  nostrtypes.Event // EventAppeared only
	Reason string           // EventClosed only
}

// State is a subscription's lifecycle stage.
type State int

const (
	StateActive State = iota
	StateStopped
)

// Entry is the bookkeeping kept per (relay, sub_id): filter, state, and
// running counters.
type Entry struct {
	Relay      string
	Filters    []nostrtypes.Filter
	State      State
	EventCount int
	ByteCount  int64
}

// sender is the minimal relay-facing capability the manager needs;
// relayconn.Conn satisfies it without this package importing relayconn
// and creating a cycle.
type sender interface {
	Subscribe(subID string, filters []nostrtypes.Filter)
	Unsubscribe(subID string)
}

// Manager allocates subscription ids and owns the shared ingest queue.
// Safe for concurrent use.
type Manager struct {
	mu      sync.Mutex
	entries map[string]*Entry // keyed by sub_id

	// Queue is the single shared ingest channel every relay's delivered
	// frames are translated onto. It is bounded by queueCapacity and
	// batch-drained by the caller (InboxModel) to bound memory.
	Queue chan IngestItem
}

func New(queueCapacity int) *Manager {
	return &Manager{
		entries: map[string]*Entry{},
		Queue:   make(chan IngestItem, queueCapacity),
	}
}

// newSubID allocates a random 16-hex-character id from 64 bits of
// entropy.
func newSubID() (string, error) {
	var b [8]byte
	if _, err := rand.Read(b[:]); err != nil {
		return "", fmt.Errorf("subscription: generate id: %w", err)
	}
	return hex.EncodeToString(b[:]), nil
}

// Subscribe allocates an id, records the entry, and sends REQ via conn.
// Fails if conn is nil (the relay is not connected).
func (m *Manager) Subscribe(relay string, conn sender, filters []nostrtypes.Filter) (string, error) {
	if conn == nil {
		return "", fmt.Errorf("subscription: relay %s is not connected", relay)
	}
	id, err := newSubID()
	if err != nil {
		return "", err
	}

	m.mu.Lock()
	m.entries[id] = &Entry{Relay: relay, Filters: filters, State: StateActive}
	m.mu.Unlock()

	conn.Subscribe(id, filters)
	return id, nil
}

// Stop sends CLOSE and removes the registration. Idempotent — stopping
// an unknown or already-stopped id is a no-op.
func (m *Manager) Stop(conn sender, subID string) {
	m.mu.Lock()
	entry, ok := m.entries[subID]
	if ok {
		delete(m.entries, subID)
	}
	m.mu.Unlock()

	if !ok {
		return
	}
	if conn != nil {
		conn.Unsubscribe(subID)
	}
	_ = entry
}

// StopAll applies Stop to every subscription currently registered on
// that relay.
func (m *Manager) StopAll(conn sender, relay string) {
	m.mu.Lock()
	var ids []string
	for id, e := range m.entries {
		if e.Relay == relay {
			ids = append(ids, id)
		}
	}
	m.mu.Unlock()

	for _, id := range ids {
		m.Stop(conn, id)
	}
}

// Entry returns a snapshot of the bookkeeping for subID, if it exists.
func (m *Manager) Entry(subID string) (Entry, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[subID]
	if !ok {
		return Entry{}, false
	}
	return *e, true
}

// RecordDelivery updates an entry's counters for a newly-delivered event
// and pushes the corresponding IngestItem onto the shared queue.
func (m *Manager) RecordDelivery(relay, subID string, ev nostrtypes.Event, byteLen int) {
	m.mu.Lock()
	if e, ok := m.entries[subID]; ok {
		e.EventCount++
		e.ByteCount += int64(byteLen)
	}
	m.mu.Unlock()

	m.Queue <- IngestItem{Relay: relay, SubID: subID, Kind: EventAppeared, Event: ev}
}

// RecordEose pushes an Eose SubscriptionEvent for subID.
func (m *Manager) RecordEose(relay, subID string) {
	m.Queue <- IngestItem{Relay: relay, SubID: subID, Kind: EventEose}
}

// RecordClosed marks subID stopped (the relay initiated the close) and
// pushes a Closed SubscriptionEvent.
func (m *Manager) RecordClosed(relay, subID, reason string) {
	m.mu.Lock()
	if e, ok := m.entries[subID]; ok {
		e.State = StateStopped
	}
	m.mu.Unlock()

	m.Queue <- IngestItem{Relay: relay, SubID: subID, Kind: EventClosed, Reason: reason}
}

// DrainBatch pulls up to max queued items without blocking once the
// queue is empty.
func (m *Manager) DrainBatch(max int) []IngestItem {
	batch := make([]IngestItem, 0, max)
	for len(batch) < max {
		select {
		case item := <-m.Queue:
			batch = append(batch, item)
		default:
			return batch
		}
	}
	return batch
}
