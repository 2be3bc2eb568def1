package nostrtypes

// Tag is a tagged variant over the tag shapes the core cares about:
// ETag, PTag, RelayTag and a catch-all Other, dispatched by the tag's
// first element.
type TagKind int

const (
	TagOther TagKind = iota
	TagE
	TagP
	TagRelay
)

// Tag preserves order within an event.
type Tag struct {
	Kind TagKind

	// ETag
	EventID EventID
	RelayHint string
	Marker string
	hasMarker bool
	hasHint bool

	// PTag
	PubKey PubKey
	Petname string

	// RelayTag
	RelayURI string

	// Other: the raw, unrecognized tag, first element included.
	Raw []string
}

// ParseTag classifies a raw tag array by its first element.
func ParseTag(raw []string) Tag {
	if len(raw) == 0 {
		return Tag{Kind: TagOther, Raw: raw}
	}
	switch raw[0] {
	case "e":
		if len(raw) < 2 {
			break
		}
		id, err := ParseEventID(raw[1])
		if err != nil {
			break
		}
		t := Tag{Kind: TagE, EventID: id, Raw: raw}
		if len(raw) >= 3 && raw[2] != "" {
			t.RelayHint = raw[2]
			t.hasHint = true
		}
		if len(raw) >= 4 && raw[3] != "" {
			t.Marker = raw[3]
			t.hasMarker = true
		}
		return t
	case "p":
		if len(raw) < 2 {
			break
		}
		pk, err := ParsePubKey(raw[1])
		if err != nil {
			break
		}
		t := Tag{Kind: TagP, PubKey: pk, Raw: raw}
		if len(raw) >= 3 && raw[2] != "" {
			t.RelayHint = raw[2]
			t.hasHint = true
		}
		if len(raw) >= 4 && raw[3] != "" {
			t.Petname = raw[3]
		}
		return t
	case "r":
		if len(raw) < 2 {
			break
		}
		t := Tag{Kind: TagRelay, RelayURI: raw[1], Raw: raw}
		if len(raw) >= 3 && raw[2] != "" {
			t.Marker = raw[2]
			t.hasMarker = true
		}
		return t
	}
	return Tag{Kind: TagOther, Raw: raw}
}

// HasRelayHint reports whether an ETag/PTag carries a non-empty relay hint.
func (t Tag) HasRelayHint() bool { return t.hasHint }

// HasMarker reports whether an ETag carries a marker (e.g. "reply", "root").
func (t Tag) HasMarker() bool { return t.hasMarker }

// tagsToWire renders tags back to the raw [][]string shape used by the
// canonical id computation and the wire protocol.
func tagsToWire(tags []Tag) [][]string {
	out := make([][]string, len(tags))
	for i, t := range tags {
		if t.Raw != nil {
			out[i] = t.Raw
			continue
		}
		out[i] = []string{}
	}
	return out
}
