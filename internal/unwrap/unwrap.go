// Package unwrap implements a stateless nested-decryption pipeline
// that peels a GiftWrap event down to the Rumor underneath, via an
// intermediate Seal.
package unwrap

import (
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/corvidlabs/inboxcore/internal/cryptocap"
	"github.com/corvidlabs/inboxcore/internal/nostrtypes"
)

var (
	ErrDecryptFailed = errors.New("unwrap: decrypt failed")
	ErrInvalidInnerSignature = errors.New("unwrap: invalid inner signature")
	ErrAuthorMismatch = errors.New("unwrap: seal/rumor author mismatch")
)

// Rumor is the unsigned event skeleton inside a seal.
type Rumor struct {
	PubKey nostrtypes.PubKey
	CreatedAt nostrtypes.Timestamp
	Kind nostrtypes.Kind
	Tags []nostrtypes.Tag
	Content string
}

// sealedPayload is the JSON shape of both the seal's content (a rumor)
// and the gift wrap's content (a seal), which is itself serialized as
// the standard wire event minus signature validity requirements for the
// rumor case (rumors are never signed).
type sealedPayload struct {
	PubKey string `json:"pubkey"`
	CreatedAt int64 `json:"created_at"`
	Kind int `json:"kind"`
	Tags [][]string `json:"tags"`
	Content string `json:"content"`
	Sig string `json:"sig,omitempty"`
}

// Unwrap performs the four-step pipeline:
// 1. decrypt g.Content with the viewer's key against g.PubKey to get a Seal;
// 2. validate the Seal's signature;
// 3. decrypt the Seal's content against the Seal's author to get a Rumor;
// 4. require Seal.PubKey == Rumor.PubKey.
func Unwrap(crypto cryptocap.Crypto, g nostrtypes.Event, viewerPrivHex string) (Rumor, error) {
	if g.Kind != nostrtypes.KindGiftWrap {
		return Rumor{}, fmt.Errorf("unwrap: event kind %d is not a gift wrap", g.Kind)
	}

	sealPlain, err := crypto.Decrypt(g.Content, viewerPrivHex, g.PubKey)
	if err != nil {
		return Rumor{}, fmt.Errorf("%w: outer layer: %v", ErrDecryptFailed, err)
	}

	var sealWire sealedPayload
	if err := json.Unmarshal([]byte(sealPlain), &sealWire); err != nil {
		return Rumor{}, fmt.Errorf("%w: decode seal: %v", ErrDecryptFailed, err)
	}
	seal, sealSig, err := sealEventFromPayload(sealWire)
	if err != nil {
		return Rumor{}, fmt.Errorf("%w: %v", ErrDecryptFailed, err)
	}
	if seal.Kind != nostrtypes.KindSeal {
		return Rumor{}, fmt.Errorf("%w: inner event is not a seal (kind=%d)", ErrDecryptFailed, seal.Kind)
	}

	seal.ID = seal.CanonicalID()
	if !crypto.Verify(seal.ID, sealSig, seal.PubKey) {
		return Rumor{}, ErrInvalidInnerSignature
	}

	rumorPlain, err := crypto.Decrypt(seal.Content, viewerPrivHex, seal.PubKey)
	if err != nil {
		return Rumor{}, fmt.Errorf("%w: inner layer: %v", ErrDecryptFailed, err)
	}

	var rumorWire sealedPayload
	if err := json.Unmarshal([]byte(rumorPlain), &rumorWire); err != nil {
		return Rumor{}, fmt.Errorf("%w: decode rumor: %v", ErrDecryptFailed, err)
	}
	rumor, err := rumorFromPayload(rumorWire)
	if err != nil {
		return Rumor{}, fmt.Errorf("%w: %v", ErrDecryptFailed, err)
	}

	if seal.PubKey != rumor.PubKey {
		return Rumor{}, ErrAuthorMismatch
	}

	return rumor, nil
}

func sealEventFromPayload(w sealedPayload) (nostrtypes.Event, [64]byte, error) {
	pk, err := nostrtypes.ParsePubKey(w.PubKey)
	if err != nil {
		return nostrtypes.Event{}, [64]byte{}, fmt.Errorf("seal pubkey: %w", err)
	}
	tags := make([]nostrtypes.Tag, len(w.Tags))
	for i, raw := range w.Tags {
		tags[i] = nostrtypes.ParseTag(raw)
	}
	sigBytes, err := hex.DecodeString(w.Sig)
	if err != nil || len(sigBytes) != 64 {
		return nostrtypes.Event{}, [64]byte{}, fmt.Errorf("seal sig: invalid hex signature")
	}
	var sig [64]byte
	copy(sig[:], sigBytes)
	return nostrtypes.Event{
		PubKey: pk,
		CreatedAt: nostrtypes.Timestamp(w.CreatedAt),
		Kind: nostrtypes.Kind(w.Kind),
		Tags: tags,
		Content: w.Content,
	}, sig, nil
}

func rumorFromPayload(w sealedPayload) (Rumor, error) {
	pk, err := nostrtypes.ParsePubKey(w.PubKey)
	if err != nil {
		return Rumor{}, fmt.Errorf("rumor pubkey: %w", err)
	}
	tags := make([]nostrtypes.Tag, len(w.Tags))
	for i, raw := range w.Tags {
		tags[i] = nostrtypes.ParseTag(raw)
	}
	return Rumor{
		PubKey: pk,
		CreatedAt: nostrtypes.Timestamp(w.CreatedAt),
		Kind: nostrtypes.Kind(w.Kind),
		Tags: tags,
		Content: w.Content,
	}, nil
}

// Participants computes the chat_timeline participant set for a
// decrypted rumor: if the rumor author is the viewer, participants are
// every PTag target; otherwise participants are (author ∪ PTag targets)
// minus the viewer.
func Participants(rumor Rumor, viewer nostrtypes.PubKey) []nostrtypes.PubKey {
	set := map[nostrtypes.PubKey]struct{}{}
	if rumor.PubKey == viewer {
		for _, t := range rumor.Tags {
			if t.Kind == nostrtypes.TagP {
				set[t.PubKey] = struct{}{}
			}
		}
	} else {
		set[rumor.PubKey] = struct{}{}
		for _, t := range rumor.Tags {
			if t.Kind == nostrtypes.TagP {
				set[t.PubKey] = struct{}{}
			}
		}
		delete(set, viewer)
	}
	out := make([]nostrtypes.PubKey, 0, len(set))
	for pk := range set {
		out = append(out, pk)
	}
	sortPubKeys(out)
	return out
}

func sortPubKeys(pks []nostrtypes.PubKey) {
	for i := 1; i < len(pks); i++ {
		for j := i; j > 0 && pks[j-1].String() > pks[j].String(); j-- {
			pks[j-1], pks[j] = pks[j], pks[j-1]
		}
	}
}
