package store

import (
	"encoding/json"
	"fmt"

	"github.com/corvidlabs/inboxcore/internal/nostrtypes"
	"github.com/corvidlabs/inboxcore/internal/unwrap"
)

// applyKindSideEffects is per-kind dispatch, run inside
// the same transaction as the events-table upsert.
func (s *EventStore) applyKindSideEffects(tx Tx, ev nostrtypes.Event) error {
	switch ev.Kind {
	case nostrtypes.KindShortTextNote, nostrtypes.KindComment:
		return s.indexPost(tx, ev.PubKey, ev.CreatedAt, ev.ID)

	case nostrtypes.KindRepost:
		return s.applyRepost(tx, ev)

	case nostrtypes.KindGiftWrap:
		return s.applyGiftWrap(tx, ev)

	case nostrtypes.KindEventDeletion:
		return s.applyDeletion(tx, ev)

	case nostrtypes.KindMetadata:
		return s.applyMetadata(tx, ev)

	case nostrtypes.KindFollowList:
		return s.applyFollowList(tx, ev)

	case nostrtypes.KindRelayListMetadata:
		return s.applyRelayList(tx, bucketRelayGeneral, ev)

	case nostrtypes.KindPreferredDMRelays:
		return s.applyRelayList(tx, bucketRelayDM, ev)
	}
	return nil
}

func (s *EventStore) indexPost(tx Tx, author nostrtypes.PubKey, ts nostrtypes.Timestamp, id nostrtypes.EventID) error {
	b := tx.Bucket(bucketPostTimeline)
	if err := b.Put(timelineKey(author, ts, id), id[:]); err != nil {
		return fmt.Errorf("store: index post timeline: %w", err)
	}
	return s.bumpLatestTS(tx, author, nostrtypes.KindShortTextNote, ts)
}

// applyRepost indexes a kind=6 repost under the reposter's own
// created_at, but only if its content decodes
// to a valid embedded event and the repost itself carries at least one
// ETag.
func (s *EventStore) applyRepost(tx Tx, ev nostrtypes.Event) error {
	var inner nostrtypes.Event
	if err := json.Unmarshal([]byte(ev.Content), &inner); err != nil || !inner.HasValidID() {
		return nil // persisted already by upsertEvent; no timeline entry.
	}
	if !s.crypto.Verify(inner.ID, inner.Sig, inner.PubKey) {
		return nil
	}
	hasETag := false
	for _, t := range ev.Tags {
		if t.Kind == nostrtypes.TagE {
			hasETag = true
			break
		}
	}
	if !hasETag {
		return nil
	}
	return s.indexPost(tx, ev.PubKey, ev.CreatedAt, ev.ID)
}

func (s *EventStore) applyGiftWrap(tx Tx, ev nostrtypes.Event) error {
	rumor, err := unwrap.Unwrap(s.crypto, ev, s.ViewerPrivHex)
	if err != nil {
		// DecryptError: dropped, with no store effect beyond the
		// events-table upsert already committed. The failure is not
		// counted and is not reported to the caller.
		return nil
	}
	participants := unwrap.Participants(rumor, s.Viewer)
	b := tx.Bucket(bucketChatTimeline)
	for _, p := range participants {
		key := timelineKey(p, rumor.CreatedAt, ev.ID)
		if err := b.Put(key, ev.ID[:]); err != nil {
			return fmt.Errorf("store: index chat timeline: %w", err)
		}
		if err := s.bumpLatestTS(tx, p, nostrtypes.KindGiftWrap, rumor.CreatedAt); err != nil {
			return err
		}
	}
	return nil
}

// applyDeletion handles EventDeletion: only the target's own author may
// delete it, and only the events table / post_timeline entries are
// touched. chat_timeline entries are keyed by participant rather than
// author and are out of scope for author-based deletion authority.
func (s *EventStore) applyDeletion(tx Tx, ev nostrtypes.Event) error {
	eventsB := tx.Bucket(bucketEvents)
	for _, t := range ev.Tags {
		if t.Kind != nostrtypes.TagE {
			continue
		}
		raw := eventsB.Get(t.EventID[:])
		if raw == nil {
			continue
		}
		var se storedEvent
		if err := json.Unmarshal(raw, &se); err != nil {
			continue // corrupt value; skip rather than abort the batch.
		}
		if se.Event.PubKey != ev.PubKey {
			continue // cross-author deletion: ignored.
		}
		if err := eventsB.Delete(t.EventID[:]); err != nil {
			return fmt.Errorf("store: delete event %s: %w", t.EventID, err)
		}
		postB := tx.Bucket(bucketPostTimeline)
		key := timelineKey(se.Event.PubKey, se.Event.CreatedAt, se.Event.ID)
		if err := postB.Delete(key); err != nil {
			return fmt.Errorf("store: delete timeline entry for %s: %w", t.EventID, err)
		}
	}
	return nil
}

func (s *EventStore) applyMetadata(tx Tx, ev nostrtypes.Event) error {
	b := tx.Bucket(bucketProfiles)
	existing := b.Get(ev.PubKey[:])
	if existing != nil {
		var sp storedProfile
		if err := json.Unmarshal(existing, &sp); err == nil {
			if !wins(int64(ev.CreatedAt), ev.ID, sp.CreatedAt, sp.ID) {
				return nil
			}
		}
	}
	var profile nostrtypes.Profile
	if err := json.Unmarshal([]byte(ev.Content), &profile); err != nil {
		return nil // malformed profile JSON: drop, don't corrupt the table.
	}
	data, err := json.Marshal(storedProfile{Profile: profile, CreatedAt: int64(ev.CreatedAt), ID: ev.ID})
	if err != nil {
		return fmt.Errorf("store: encode profile: %w", err)
	}
	if err := b.Put(ev.PubKey[:], data); err != nil {
		return fmt.Errorf("store: put profile: %w", err)
	}
	return s.bumpLatestTS(tx, ev.PubKey, nostrtypes.KindMetadata, ev.CreatedAt)
}

func (s *EventStore) applyFollowList(tx Tx, ev nostrtypes.Event) error {
	b := tx.Bucket(bucketFollows)
	if existing := b.Get(ev.PubKey[:]); existing != nil {
		var sf storedFollows
		if err := json.Unmarshal(existing, &sf); err == nil {
			if !wins(int64(ev.CreatedAt), ev.ID, sf.CreatedAt, sf.ID) {
				return nil
			}
		}
	}
	follows := nostrtypes.FollowsFromTags(ev.Tags)
	sf := storedFollows{CreatedAt: int64(ev.CreatedAt), ID: ev.ID}
	for _, f := range follows {
		sf.Follows = append(sf.Follows, storedFollow{Target: f.Target.String(), RelayHint: f.RelayHint, Petname: f.Petname})
	}
	data, err := json.Marshal(sf)
	if err != nil {
		return fmt.Errorf("store: encode follows: %w", err)
	}
	if err := b.Put(ev.PubKey[:], data); err != nil {
		return fmt.Errorf("store: put follows: %w", err)
	}
	return s.bumpLatestTS(tx, ev.PubKey, nostrtypes.KindFollowList, ev.CreatedAt)
}

func (s *EventStore) applyRelayList(tx Tx, bucket []byte, ev nostrtypes.Event) error {
	b := tx.Bucket(bucket)
	if existing := b.Get(ev.PubKey[:]); existing != nil {
		var sr storedRelays
		if err := json.Unmarshal(existing, &sr); err == nil {
			if !wins(int64(ev.CreatedAt), ev.ID, sr.CreatedAt, sr.ID) {
				return nil
			}
		}
	}
	var relays []nostrtypes.Relay
	for _, r := range nostrtypes.RelaysFromTags(ev.Tags) {
		if r.Valid() {
			relays = append(relays, r)
		}
	}
	data, err := json.Marshal(storedRelays{Relays: relays, CreatedAt: int64(ev.CreatedAt), ID: ev.ID})
	if err != nil {
		return fmt.Errorf("store: encode relay list: %w", err)
	}
	if err := b.Put(ev.PubKey[:], data); err != nil {
		return fmt.Errorf("store: put relay list: %w", err)
	}
	return s.bumpLatestTS(tx, ev.PubKey, ev.Kind, ev.CreatedAt)
}

func (s *EventStore) bumpLatestTS(tx Tx, pk nostrtypes.PubKey, kind nostrtypes.Kind, ts nostrtypes.Timestamp) error {
	b := tx.Bucket(bucketLatestTS)
	key := latestTSKey(pk, kind)
	cur := int64(0)
	if raw := b.Get(key); raw != nil && len(raw) == 8 {
		cur = int64(beUint64(raw))
	}
	if int64(ts) <= cur {
		return nil
	}
	return b.Put(key, beBytes(uint64(ts)))
}

// wins implements last-writer-wins tie-break: strictly
// newer created_at wins; on a tie, the lower id wins for determinism
// across replicas.
func wins(newCreatedAt int64, newID nostrtypes.EventID, oldCreatedAt int64, oldID [32]byte) bool {
	if newCreatedAt != oldCreatedAt {
		return newCreatedAt > oldCreatedAt
	}
	return newID.Less(nostrtypes.EventID(oldID))
}
