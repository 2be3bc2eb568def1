package store

import (
	"encoding/binary"
	"math"

	"github.com/corvidlabs/inboxcore/internal/nostrtypes"
)

var (
	bucketEvents = []byte("events")
	bucketProfiles = []byte("profiles")
	bucketFollows = []byte("follows")
	bucketPostTimeline = []byte("post_timeline")
	bucketChatTimeline = []byte("chat_timeline")
	// bucketRelayGeneral/bucketRelayDM and bucketLatestTS are derived
	// indices whose existence is implied by get_general_relays/
	// get_dm_relays/get_latest_timestamp — see DESIGN.md's open-question
	// resolution.
	bucketRelayGeneral = []byte("relay_lists_general")
	bucketRelayDM = []byte("relay_lists_dm")
	bucketLatestTS = []byte("latest_ts")
)

var allBuckets = [][]byte{
	bucketEvents, bucketProfiles, bucketFollows,
	bucketPostTimeline, bucketChatTimeline,
	bucketRelayGeneral, bucketRelayDM, bucketLatestTS,
}

// invertedTimestamp computes inverted_ts = MAX_I64 - created_at,
// big-endian, so a forward cursor over a fixed author prefix yields
// newest-first.
func invertedTimestamp(ts nostrtypes.Timestamp) uint64 {
	return uint64(math.MaxInt64) - uint64(ts)
}

// timelineKey builds the (author, invTs, event_id) composite key used
// for idempotent timeline inserts.
func timelineKey(author nostrtypes.PubKey, ts nostrtypes.Timestamp, id nostrtypes.EventID) []byte {
	key := make([]byte, 32+8+32)
	copy(key[:32], author[:])
	binary.BigEndian.PutUint64(key[32:40], invertedTimestamp(ts))
	copy(key[40:], id[:])
	return key
}

func timelinePrefix(author nostrtypes.PubKey) []byte {
	return author[:]
}

func latestTSKey(pk nostrtypes.PubKey, kind nostrtypes.Kind) []byte {
	key := make([]byte, 32+2)
	copy(key[:32], pk[:])
	binary.BigEndian.PutUint16(key[32:], uint16(kind))
	return key
}

func beUint64(b []byte) uint64 { return binary.BigEndian.Uint64(b) }

func beBytes(v uint64) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, v)
	return b
}
