// Package nostrtypes is the data model shared by every component of the
// InboxModel core: events, tags, kinds, filters, profiles, follows and
// relays, plus the canonical encoding that gives an event its id.
package nostrtypes

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
)

// PubKey is a 32-byte X-only public key, hex-encoded at the boundary.
type PubKey [32]byte

func (pk PubKey) String() string { return hex.EncodeToString(pk[:]) }

// ParsePubKey decodes a 64-hex-character public key.
func ParsePubKey(s string) (PubKey, error) {
	var pk PubKey
	b, err := hex.DecodeString(s)
	if err != nil {
		return pk, fmt.Errorf("nostrtypes: parse pubkey: %w", err)
	}
	if len(b) != 32 {
		return pk, fmt.Errorf("nostrtypes: pubkey must be 32 bytes, got %d", len(b))
	}
	copy(pk[:], b)
	return pk, nil
}

// EventID is the 32-byte canonical id of an event.
type EventID [32]byte

func (id EventID) String() string { return hex.EncodeToString(id[:]) }

// ParseEventID decodes a 64-hex-character event id.
func ParseEventID(s string) (EventID, error) {
	var id EventID
	b, err := hex.DecodeString(s)
	if err != nil {
		return id, fmt.Errorf("nostrtypes: parse event id: %w", err)
	}
	if len(b) != 32 {
		return id, fmt.Errorf("nostrtypes: event id must be 32 bytes, got %d", len(b))
	}
	copy(id[:], b)
	return id, nil
}

// Less gives EventID the lexicographic order uses to break
// created_at ties deterministically across replicas.
func (id EventID) Less(other EventID) bool {
	for i := range id {
		if id[i] != other[i] {
			return id[i] < other[i]
		}
	}
	return false
}

// Kind is the protocol event kind. Unknown kinds are persisted but not
// routed.
type Kind uint16

const (
	KindMetadata Kind = 0
	KindShortTextNote Kind = 1
	KindFollowList Kind = 3
	KindEventDeletion Kind = 5
	KindRepost Kind = 6
	KindReaction Kind = 7
	KindComment Kind = 1111
	KindSeal Kind = 13
	KindGiftWrap Kind = 1059
	KindRelayListMetadata Kind = 10002
	KindPreferredDMRelays Kind = 10050
)

// Timestamp is integer seconds since epoch.
type Timestamp int64

// Event is the immutable, signed protocol event.
type Event struct {
	ID EventID
	PubKey PubKey
	CreatedAt Timestamp
	Kind Kind
	Tags []Tag
	Content string
	Sig [64]byte
}

// CanonicalID recomputes the id a correctly-formed event must carry: the
// SHA-256 of the canonical JSON serialization of
// [0, pubkey, created_at, kind, tags, content].
func (e Event) CanonicalID() EventID {
	raw := []any{
		0,
		e.PubKey.String(),
		int64(e.CreatedAt),
		uint16(e.Kind),
		tagsToWire(e.Tags),
		e.Content,
	}
	// A plain json.Marshal HTML-escapes '<', '>' and '&' into <-style
	// sequences, which would corrupt the canonical serialization for any
	// event whose content or tags contain them. SetEscapeHTML(false) keeps
	// this byte-for-byte with what every other NIP-01 implementation hashes.
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(raw); err != nil {
		// raw is built entirely from primitives and strings; Marshal
		// cannot fail on it.
		panic(fmt.Sprintf("nostrtypes: canonical id marshal: %v", err))
	}
	// Encoder.Encode appends a trailing newline; the canonical form has none.
	b := bytes.TrimRight(buf.Bytes(), "\n")
	return sha256.Sum256(b)
}

// HasValidID reports whether e.ID matches its canonical id.
func (e Event) HasValidID() bool {
	return e.ID == e.CanonicalID()
}
