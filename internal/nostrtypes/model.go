package nostrtypes

import "net/url"

// Profile is the last-writer-wins kind-0 payload.
type Profile struct {
	Name string `json:"name"`
	About string `json:"about"`
	PictureURL string `json:"picture"`
	NIP05 string `json:"nip05"`
}

// Follow is one entry of a followed identity's contact list.
type Follow struct {
	Target PubKey
	RelayHint string // empty if none
	Petname string // empty if none
}

// RelayRole distinguishes what a relay is declared useful for.
type RelayRole int

const (
	RelayBoth RelayRole = iota
	RelayInboxOnly
	RelayOutboxOnly
	RelayDM
)

// Relay is a declared relay URI plus its role.
type Relay struct {
	URI string
	Role RelayRole
}

// Valid reports whether the URI is ws:// or wss:// with a non-empty host.
func (r Relay) Valid() bool {
	u, err := url.Parse(r.URI)
	if err != nil {
		return false
	}
	if u.Scheme != "ws" && u.Scheme != "wss" {
		return false
	}
	return u.Host != ""
}

// EventWithRelays pairs a canonical event with the set of relay URIs it
// has been observed on.
type EventWithRelays struct {
	Event Event
	Relays map[string]struct{}
}

// MergeRelays unions in into e's relay set and reports whether anything
// new was added.
func (e *EventWithRelays) MergeRelays(in map[string]struct{}) bool {
	if e.Relays == nil {
		e.Relays = map[string]struct{}{}
	}
	changed := false
	for r := range in {
		if _, ok := e.Relays[r]; !ok {
			e.Relays[r] = struct{}{}
			changed = true
		}
	}
	return changed
}

// RelaysFromTags extracts the Relay list a RelayListMetadata or
// PreferredDMRelays event's tags describe, mapping the NIP-65-style
// "read"/"write" marker onto InboxOnly/OutboxOnly and an absent marker
// onto Both.
func RelaysFromTags(tags []Tag) []Relay {
	var out []Relay
	for _, t := range tags {
		if t.Kind != TagRelay {
			continue
		}
		role := RelayBoth
		switch t.Marker {
		case "read":
			role = RelayInboxOnly
		case "write":
			role = RelayOutboxOnly
		}
		out = append(out, Relay{URI: t.RelayURI, Role: role})
	}
	return out
}

// FollowsFromTags extracts the ordered Follow list a FollowList event's
// PTags describe.
func FollowsFromTags(tags []Tag) []Follow {
	var out []Follow
	for _, t := range tags {
		if t.Kind != TagP {
			continue
		}
		out = append(out, Follow{Target: t.PubKey, RelayHint: t.RelayHint, Petname: t.Petname})
	}
	return out
}

// Filter is a subscription filter.
type Filter struct {
	Authors []PubKey
	Kinds []Kind
	TagP []PubKey
	Since *Timestamp
	Until *Timestamp
	Limit int
}
