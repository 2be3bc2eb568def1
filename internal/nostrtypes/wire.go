package nostrtypes

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
)

// wireEvent mirrors the JSON shape in: hex ids/keys/sig,
// tags as [][]string.
type wireEvent struct {
	ID        string     `json:"id"`
	PubKey    string     `json:"pubkey"`
	CreatedAt int64      `json:"created_at"`
	Kind      int        `json:"kind"`
	Tags      [][]string `json:"tags"`
	Content   string     `json:"content"`
	Sig       string     `json:"sig"`
}

// MarshalJSON renders an Event per the wire format.
func (e Event) MarshalJSON() ([]byte, error) {
	return json.Marshal(wireEvent{
		ID:        e.ID.String(),
		PubKey:    e.PubKey.String(),
		CreatedAt: int64(e.CreatedAt),
		Kind:      int(e.Kind),
		Tags:      tagsToWire(e.Tags),
		Content:   e.Content,
		Sig:       hex.EncodeToString(e.Sig[:]),
	})
}

// UnmarshalJSON parses an Event per the wire format. It does not validate
// the signature or id — callers must call CanonicalID/HasValidID
// separately on every externally sourced event before any side effect.
func (e *Event) UnmarshalJSON(data []byte) error {
	var w wireEvent
	if err := json.Unmarshal(data, &w); err != nil {
		return fmt.Errorf("nostrtypes: decode event: %w", err)
	}
	id, err := ParseEventID(w.ID)
	if err != nil {
		return fmt.Errorf("nostrtypes: decode event id: %w", err)
	}
	pk, err := ParsePubKey(w.PubKey)
	if err != nil {
		return fmt.Errorf("nostrtypes: decode event pubkey: %w", err)
	}
	sigBytes, err := hex.DecodeString(w.Sig)
	if err != nil || len(sigBytes) != 64 {
		return fmt.Errorf("nostrtypes: decode event sig: invalid hex signature")
	}
	tags := make([]Tag, len(w.Tags))
	for i, raw := range w.Tags {
		tags[i] = ParseTag(raw)
	}
	var sig [64]byte
	copy(sig[:], sigBytes)
	*e = Event{
		ID:        id,
		PubKey:    pk,
		CreatedAt: Timestamp(w.CreatedAt),
		Kind:      Kind(w.Kind),
		Tags:      tags,
		Content:   w.Content,
		Sig:       sig,
	}
	return nil
}

// wireFilter mirrors filter object.
type wireFilter struct {
	Authors []string `json:"authors,omitempty"`
	Kinds   []int    `json:"kinds,omitempty"`
	TagP    []string `json:"#p,omitempty"`
	Since   *int64   `json:"since,omitempty"`
	Until   *int64   `json:"until,omitempty"`
	Limit   int      `json:"limit,omitempty"`
}

// MarshalJSON renders a Filter per the wire format.
func (f Filter) MarshalJSON() ([]byte, error) {
	w := wireFilter{Limit: f.Limit}
	for _, a := range f.Authors {
		w.Authors = append(w.Authors, a.String())
	}
	for _, k := range f.Kinds {
		w.Kinds = append(w.Kinds, int(k))
	}
	for _, p := range f.TagP {
		w.TagP = append(w.TagP, p.String())
	}
	if f.Since != nil {
		v := int64(*f.Since)
		w.Since = &v
	}
	if f.Until != nil {
		v := int64(*f.Until)
		w.Until = &v
	}
	return json.Marshal(w)
}
