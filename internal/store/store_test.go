package store

import (
	"encoding/json"
	"testing"

	"github.com/corvidlabs/inboxcore/internal/nostrtypes"
)

// fakeCrypto lets store tests drive PutEvent without real signatures:
// Verify is unconditionally true (event validity is exercised in
// cryptocap's own tests), Decrypt looks ciphertexts up in a map.
type fakeCrypto struct {
	plaintexts map[string]string
}

func (f fakeCrypto) Verify(nostrtypes.EventID, [64]byte, nostrtypes.PubKey) bool { return true }

func (f fakeCrypto) Decrypt(ciphertext, _ string, _ nostrtypes.PubKey) (string, error) {
	pt, ok := f.plaintexts[ciphertext]
	if !ok {
		return "", errNoPlaintext
	}
	return pt, nil
}

var errNoPlaintext = &noPlaintextErr{}

type noPlaintextErr struct{}

func (*noPlaintextErr) Error() string { return "no plaintext registered for ciphertext" }

func pk(b byte) nostrtypes.PubKey {
	var p nostrtypes.PubKey
	p[31] = b
	return p
}

func sealed(t *testing.T, pubkey nostrtypes.PubKey, createdAt int64, kind int, tags [][]string, content, sig string) string {
	t.Helper()
	type payload struct {
		PubKey string `json:"pubkey"`
		CreatedAt int64 `json:"created_at"`
		Kind int `json:"kind"`
		Tags [][]string `json:"tags"`
		Content string `json:"content"`
		Sig string `json:"sig,omitempty"`
	}
	b, err := json.Marshal(payload{PubKey: pubkey.String(), CreatedAt: createdAt, Kind: kind, Tags: tags, Content: content, Sig: sig})
	if err != nil {
		t.Fatalf("marshal sealed payload: %v", err)
	}
	return string(b)
}

func hexSig64() string {
	b := make([]byte, 64)
	const hexdigits = "0123456789abcdef"
	out := make([]byte, 128)
	for i := range b {
		out[2*i] = hexdigits[0]
		out[2*i+1] = hexdigits[0]
	}
	return string(out)
}

func newStore(t *testing.T, viewer nostrtypes.PubKey, crypto fakeCrypto) *EventStore {
	t.Helper()
	s, err := New(NewMemAdapter(), crypto, viewer, "viewer-priv")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return s
}

func metadataEvent(author nostrtypes.PubKey, createdAt int64, name string) nostrtypes.Event {
	ev := nostrtypes.Event{
		PubKey: author,
		CreatedAt: nostrtypes.Timestamp(createdAt),
		Kind: nostrtypes.KindMetadata,
		Content: `{"name":"` + name + `"}`,
	}
	ev.ID = ev.CanonicalID()
	return ev
}

func TestPutEventProfileLastWriterWins(t *testing.T) {
	author := pk(1)
	s := newStore(t, pk(9), fakeCrypto{})

	older := metadataEvent(author, 100, "alice")
	newer := metadataEvent(author, 200, "alice2")

	if err := s.PutEvent(newer, nil); err != nil {
		t.Fatalf("PutEvent(newer): %v", err)
	}
	if err := s.PutEvent(older, nil); err != nil {
		t.Fatalf("PutEvent(older): %v", err)
	}

	profile, ts, err := s.GetProfile(author)
	if err != nil {
		t.Fatalf("GetProfile: %v", err)
	}
	if ts != 200 || profile.Name != "alice2" {
		t.Fatalf("expected the newer profile to win, got %+v ts=%d", profile, ts)
	}
}

func TestPutEventProfileTieBreakByLowerID(t *testing.T) {
	author := pk(1)
	s := newStore(t, pk(9), fakeCrypto{})

	a := metadataEvent(author, 100, "aaa")
	b := metadataEvent(author, 100, "bbb")
	lower, higher := a, b
	lowerName := "aaa"
	if !a.ID.Less(b.ID) {
		lower, higher = b, a
		lowerName = "bbb"
	}

	if err := s.PutEvent(higher, nil); err != nil {
		t.Fatalf("PutEvent(higher): %v", err)
	}
	if err := s.PutEvent(lower, nil); err != nil {
		t.Fatalf("PutEvent(lower): %v", err)
	}

	profile, _, err := s.GetProfile(author)
	if err != nil {
		t.Fatalf("GetProfile: %v", err)
	}
	if profile.Name != lowerName {
		t.Fatalf("expected the lower-id profile %q to win the created_at tie, got %q", lowerName, profile.Name)
	}
	ev, found, err := s.GetEvent(lower.ID)
	if err != nil || !found {
		t.Fatalf("expected lower-id event to still be stored, found=%v err=%v", found, err)
	}
	_ = ev
}

func TestPutEventIdempotentRelayMerge(t *testing.T) {
	author := pk(1)
	s := newStore(t, pk(9), fakeCrypto{})
	ev := nostrtypes.Event{PubKey: author, CreatedAt: 10, Kind: nostrtypes.KindShortTextNote, Content: "hello"}
	ev.ID = ev.CanonicalID()

	if err := s.PutEvent(ev, map[string]struct{}{"wss://a": {}}); err != nil {
		t.Fatalf("PutEvent first: %v", err)
	}
	if err := s.PutEvent(ev, map[string]struct{}{"wss://b": {}}); err != nil {
		t.Fatalf("PutEvent second: %v", err)
	}

	stored, found, err := s.GetEvent(ev.ID)
	if err != nil || !found {
		t.Fatalf("GetEvent: found=%v err=%v", found, err)
	}
	if len(stored.Relays) != 2 {
		t.Fatalf("expected relay set to be unioned to 2, got %v", stored.Relays)
	}

	ids, err := s.GetTimelineIDs(TimelinePost, author, 0)
	if err != nil {
		t.Fatalf("GetTimelineIDs: %v", err)
	}
	if len(ids) != 1 {
		t.Fatalf("expected exactly one timeline entry despite two puts, got %d", len(ids))
	}
}

func TestGetTimelineIDsNewestFirst(t *testing.T) {
	author := pk(1)
	s := newStore(t, pk(9), fakeCrypto{})

	for i, ts := range []int64{100, 300, 200} {
		ev := nostrtypes.Event{PubKey: author, CreatedAt: nostrtypes.Timestamp(ts), Kind: nostrtypes.KindShortTextNote, Content: "n"}
		ev.Tags = []nostrtypes.Tag{{Kind: nostrtypes.TagOther, Raw: []string{"idx", string(rune('a' + i))}}}
		ev.ID = ev.CanonicalID()
		if err := s.PutEvent(ev, nil); err != nil {
			t.Fatalf("PutEvent %d: %v", i, err)
		}
	}

	ids, err := s.GetTimelineIDs(TimelinePost, author, 0)
	if err != nil {
		t.Fatalf("GetTimelineIDs: %v", err)
	}
	if len(ids) != 3 {
		t.Fatalf("expected 3 entries, got %d", len(ids))
	}

	var order []nostrtypes.Timestamp
	for _, id := range ids {
		ev, found, err := s.GetEvent(id)
		if err != nil || !found {
			t.Fatalf("GetEvent(%s): found=%v err=%v", id, found, err)
		}
		order = append(order, ev.Event.CreatedAt)
	}
	if order[0] != 300 || order[1] != 200 || order[2] != 100 {
		t.Fatalf("expected newest-first order [300 200 100], got %v", order)
	}
}

func TestDeletionAuthority(t *testing.T) {
	author := pk(1)
	impostor := pk(2)
	s := newStore(t, pk(9), fakeCrypto{})

	note := nostrtypes.Event{PubKey: author, CreatedAt: 10, Kind: nostrtypes.KindShortTextNote, Content: "mine"}
	note.ID = note.CanonicalID()
	if err := s.PutEvent(note, nil); err != nil {
		t.Fatalf("PutEvent(note): %v", err)
	}

	badDeletion := nostrtypes.Event{
		PubKey: impostor,
		CreatedAt: 20,
		Kind: nostrtypes.KindEventDeletion,
		Tags: []nostrtypes.Tag{{Kind: nostrtypes.TagE, EventID: note.ID}},
	}
	badDeletion.ID = badDeletion.CanonicalID()
	if err := s.PutEvent(badDeletion, nil); err != nil {
		t.Fatalf("PutEvent(badDeletion): %v", err)
	}
	if _, found, _ := s.GetEvent(note.ID); !found {
		t.Fatal("a deletion from a non-author must not remove the event")
	}

	goodDeletion := nostrtypes.Event{
		PubKey: author,
		CreatedAt: 30,
		Kind: nostrtypes.KindEventDeletion,
		Tags: []nostrtypes.Tag{{Kind: nostrtypes.TagE, EventID: note.ID}},
	}
	goodDeletion.ID = goodDeletion.CanonicalID()
	if err := s.PutEvent(goodDeletion, nil); err != nil {
		t.Fatalf("PutEvent(goodDeletion): %v", err)
	}
	if _, found, _ := s.GetEvent(note.ID); found {
		t.Fatal("a deletion from the author must remove the event")
	}
	ids, err := s.GetTimelineIDs(TimelinePost, author, 0)
	if err != nil {
		t.Fatalf("GetTimelineIDs: %v", err)
	}
	if len(ids) != 0 {
		t.Fatalf("expected the timeline entry to be removed too, got %v", ids)
	}
}

func TestRepostWithInvalidInnerSkipsTimeline(t *testing.T) {
	author := pk(1)
	s := newStore(t, pk(9), fakeCrypto{})

	repost := nostrtypes.Event{PubKey: author, CreatedAt: 10, Kind: nostrtypes.KindRepost, Content: "not an event"}
	repost.ID = repost.CanonicalID()
	if err := s.PutEvent(repost, nil); err != nil {
		t.Fatalf("PutEvent(repost): %v", err)
	}

	if _, found, _ := s.GetEvent(repost.ID); !found {
		t.Fatal("the repost event itself should still be stored")
	}
	ids, err := s.GetTimelineIDs(TimelinePost, author, 0)
	if err != nil {
		t.Fatalf("GetTimelineIDs: %v", err)
	}
	if len(ids) != 0 {
		t.Fatalf("a repost with no valid embedded event must not gain a timeline entry, got %v", ids)
	}
}

func TestGiftWrapToViewerIndexesSenderAsParticipant(t *testing.T) {
	viewer := pk(9)
	sender := pk(1)

	rumorJSON := sealed(t, sender, 500, int(nostrtypes.KindShortTextNote), [][]string{{"p", viewer.String()}}, "hi", "")
	sealJSON := sealed(t, sender, 501, int(nostrtypes.KindSeal), nil, "rumor-ct", hexSig64())

	crypto := fakeCrypto{plaintexts: map[string]string{
		"outer-ct": sealJSON,
		"rumor-ct": rumorJSON,
	}}
	s := newStore(t, viewer, crypto)

	wrap := nostrtypes.Event{PubKey: sender, CreatedAt: 600, Kind: nostrtypes.KindGiftWrap, Content: "outer-ct"}
	wrap.ID = wrap.CanonicalID()
	if err := s.PutEvent(wrap, nil); err != nil {
		t.Fatalf("PutEvent(wrap): %v", err)
	}

	ids, err := s.GetTimelineIDs(TimelineChat, sender, 0)
	if err != nil {
		t.Fatalf("GetTimelineIDs: %v", err)
	}
	if len(ids) != 1 || ids[0] != wrap.ID {
		t.Fatalf("expected sender to be indexed as the chat participant, got %v", ids)
	}
}

func TestDefaultRelayListWriteOnlyIfMissing(t *testing.T) {
	pkv := pk(1)
	s := newStore(t, pk(9), fakeCrypto{})

	if err := s.PutDefaultRelayList(nostrtypes.KindRelayListMetadata, pkv, []nostrtypes.Relay{{URI: "wss://default"}}); err != nil {
		t.Fatalf("PutDefaultRelayList: %v", err)
	}
	if err := s.PutDefaultRelayList(nostrtypes.KindRelayListMetadata, pkv, []nostrtypes.Relay{{URI: "wss://should-not-apply"}}); err != nil {
		t.Fatalf("PutDefaultRelayList(second): %v", err)
	}

	relays, err := s.GetGeneralRelays(pkv)
	if err != nil {
		t.Fatalf("GetGeneralRelays: %v", err)
	}
	if len(relays) != 1 || relays[0].URI != "wss://default" {
		t.Fatalf("expected the first default to stick, got %v", relays)
	}
}
