package store

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/corvidlabs/inboxcore/internal/nostrtypes"
)

// TimelineKind selects which derived timeline get_timeline_ids reads
// from.
type TimelineKind int

const (
	TimelinePost TimelineKind = iota
	TimelineChat
)

// GetEvent is get_event(id). A stored value that fails to decode is
// reported as absent (found=false), never as a crash; the decode
// failure itself is not logged.
func (s *EventStore) GetEvent(id nostrtypes.EventID) (nostrtypes.EventWithRelays, bool, error) {
	var out nostrtypes.EventWithRelays
	found := false
	err := s.db.View(func(tx Tx) error {
		b := tx.Bucket(bucketEvents)
		raw := b.Get(id[:])
		if raw == nil {
			return nil
		}
		var se storedEvent
		if err := json.Unmarshal(raw, &se); err != nil {
			return nil // decode failure on a single value: skip, don't fail the read.
		}
		relays := map[string]struct{}{}
		for _, r := range se.Relays {
			relays[r] = struct{}{}
		}
		out = nostrtypes.EventWithRelays{Event: se.Event, Relays: relays}
		found = true
		return nil
	})
	if err != nil {
		return nostrtypes.EventWithRelays{}, false, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return out, found, nil
}

// GetProfile is get_profile(pk); absent returns a zero Profile with
// ts=0.
func (s *EventStore) GetProfile(pk nostrtypes.PubKey) (nostrtypes.Profile, int64, error) {
	var profile nostrtypes.Profile
	var ts int64
	err := s.db.View(func(tx Tx) error {
		raw := tx.Bucket(bucketProfiles).Get(pk[:])
		if raw == nil {
			return nil
		}
		var sp storedProfile
		if err := json.Unmarshal(raw, &sp); err != nil {
			return nil
		}
		profile, ts = sp.Profile, sp.CreatedAt
		return nil
	})
	if err != nil {
		return nostrtypes.Profile{}, 0, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return profile, ts, nil
}

// GetFollows is get_follows(pk).
func (s *EventStore) GetFollows(pk nostrtypes.PubKey) ([]nostrtypes.Follow, error) {
	var out []nostrtypes.Follow
	err := s.db.View(func(tx Tx) error {
		raw := tx.Bucket(bucketFollows).Get(pk[:])
		if raw == nil {
			return nil
		}
		var sf storedFollows
		if err := json.Unmarshal(raw, &sf); err != nil {
			return nil
		}
		for _, f := range sf.Follows {
			target, err := nostrtypes.ParsePubKey(f.Target)
			if err != nil {
				continue
			}
			out = append(out, nostrtypes.Follow{Target: target, RelayHint: f.RelayHint, Petname: f.Petname})
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return out, nil
}

func (s *EventStore) getRelayList(bucket []byte, pk nostrtypes.PubKey) ([]nostrtypes.Relay, error) {
	var out []nostrtypes.Relay
	err := s.db.View(func(tx Tx) error {
		raw := tx.Bucket(bucket).Get(pk[:])
		if raw == nil {
			return nil
		}
		var sr storedRelays
		if err := json.Unmarshal(raw, &sr); err != nil {
			return nil
		}
		out = sr.Relays
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return out, nil
}

// GetGeneralRelays is get_general_relays(pk): the relay list from the
// identity's RelayListMetadata event.
func (s *EventStore) GetGeneralRelays(pk nostrtypes.PubKey) ([]nostrtypes.Relay, error) {
	return s.getRelayList(bucketRelayGeneral, pk)
}

// GetDMRelays is get_dm_relays(pk): the relay list from the identity's
// PreferredDMRelays event.
func (s *EventStore) GetDMRelays(pk nostrtypes.PubKey) ([]nostrtypes.Relay, error) {
	return s.getRelayList(bucketRelayDM, pk)
}

// HasRelayList reports whether pk has a stored RelayListMetadata, used
// by InboxModel's cold-start check.
func (s *EventStore) HasRelayList(pk nostrtypes.PubKey) (bool, error) {
	var has bool
	err := s.db.View(func(tx Tx) error {
		has = tx.Bucket(bucketRelayGeneral).Get(pk[:]) != nil
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return has, nil
}

// HasDMRelays reports whether pk has a stored PreferredDMRelays list.
func (s *EventStore) HasDMRelays(pk nostrtypes.PubKey) (bool, error) {
	var has bool
	err := s.db.View(func(tx Tx) error {
		has = tx.Bucket(bucketRelayDM).Get(pk[:]) != nil
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return has, nil
}

// PutDefaultRelayList writes relays for pk's RelayListMetadata/
// PreferredDMRelays only if absent.
func (s *EventStore) PutDefaultRelayList(bucketKind nostrtypes.Kind, pk nostrtypes.PubKey, relays []nostrtypes.Relay) error {
	bucket := bucketRelayGeneral
	if bucketKind == nostrtypes.KindPreferredDMRelays {
		bucket = bucketRelayDM
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.db.Update(func(tx Tx) error {
		b := tx.Bucket(bucket)
		if b.Get(pk[:]) != nil {
			return nil
		}
		data, err := json.Marshal(storedRelays{Relays: relays})
		if err != nil {
			return fmt.Errorf("store: encode default relay list: %w", err)
		}
		return b.Put(pk[:], data)
	})
}

// GetTimelineIDs is get_timeline_ids(kind, author, limit): a forward
// cursor scan over the author's prefix, newest-first. Keys are
// (author, invertedTimestamp(ts), event_id), and invertedTimestamp is
// MAX_I64 minus ts, so a larger created_at sorts to a smaller key —
// ascending key order is already newest-first.
func (s *EventStore) GetTimelineIDs(kind TimelineKind, author nostrtypes.PubKey, limit int) ([]nostrtypes.EventID, error) {
	bucket := bucketPostTimeline
	if kind == TimelineChat {
		bucket = bucketChatTimeline
	}
	var out []nostrtypes.EventID
	err := s.db.View(func(tx Tx) error {
		b := tx.Bucket(bucket)
		c := b.Cursor()
		prefix := timelinePrefix(author)
		k, v := c.Seek(prefix)
		for k != nil && bytes.HasPrefix(k, prefix) && (limit <= 0 || len(out) < limit) {
			var id nostrtypes.EventID
			copy(id[:], v)
			out = append(out, id)
			k, v = c.Next()
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return out, nil
}

// GetLatestTimestamp is get_latest_timestamp(pks, kinds): the minimum
// over authors of the maximum created_at stored for each (pk, kind)
// combination, used to derive `since` for resubscription. Returns (0, false) when any author has no data for any of the
// kinds, in which case callers should subscribe without a since bound.
func (s *EventStore) GetLatestTimestamp(pks []nostrtypes.PubKey, kinds []nostrtypes.Kind) (nostrtypes.Timestamp, bool, error) {
	if len(pks) == 0 || len(kinds) == 0 {
		return 0, false, nil
	}
	var min int64 = -1
	anyAuthorHasData := true
	err := s.db.View(func(tx Tx) error {
		b := tx.Bucket(bucketLatestTS)
		for _, pk := range pks {
			var max int64 = -1
			for _, kind := range kinds {
				raw := b.Get(latestTSKey(pk, kind))
				if raw == nil || len(raw) != 8 {
					continue
				}
				v := int64(beUint64(raw))
				if v > max {
					max = v
				}
			}
			if max < 0 {
				anyAuthorHasData = false
				continue
			}
			if min < 0 || max < min {
				min = max
			}
		}
		return nil
	})
	if err != nil {
		return 0, false, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	if min < 0 || !anyAuthorHasData {
		// At least one author has no recorded activity for these
		// kinds: we cannot safely exclude history for them, so the
		// caller should not apply a since bound.
		return 0, false, nil
	}
	return nostrtypes.Timestamp(min), true, nil
}
