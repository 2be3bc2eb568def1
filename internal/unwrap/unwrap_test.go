package unwrap

import (
	"encoding/hex"
	"encoding/json"
	"errors"
	"testing"

	"github.com/corvidlabs/inboxcore/internal/nostrtypes"
)

// fakeCrypto lets tests drive Unwrap's control flow without real ECDH:
// Decrypt just looks up ciphertext in a map, Verify is toggled by a flag.
type fakeCrypto struct {
	plaintexts map[string]string
	verifyOK bool
}

func (f fakeCrypto) Decrypt(ciphertext string, _ string, _ nostrtypes.PubKey) (string, error) {
	pt, ok := f.plaintexts[ciphertext]
	if !ok {
		return "", errNotFound
	}
	return pt, nil
}

func (f fakeCrypto) Verify(nostrtypes.EventID, [64]byte, nostrtypes.PubKey) bool {
	return f.verifyOK
}

var errNotFound = &notFoundErr{}

type notFoundErr struct{}

func (*notFoundErr) Error() string { return "ciphertext not found" }

func pk(b byte) nostrtypes.PubKey {
	var p nostrtypes.PubKey
	p[31] = b
	return p
}

func hexSig() string { return hex.EncodeToString(make([]byte, 64)) }

func TestUnwrapSuccess(t *testing.T) {
	sender := pk(1)
	viewer := pk(2)

	rumorJSON, _ := json.Marshal(sealedPayload{
		PubKey: sender.String(),
		CreatedAt: 500,
		Kind: 1,
		Tags: [][]string{{"p", viewer.String()}},
		Content: "hi",
	})
	sealJSON, _ := json.Marshal(sealedPayload{
		PubKey: sender.String(),
		CreatedAt: 501,
		Kind: 13,
		Content: "rumor-ct",
		Sig: hexSig(),
	})

	crypto := fakeCrypto{
		plaintexts: map[string]string{
			"outer-ct": string(sealJSON),
			"rumor-ct": string(rumorJSON),
		},
		verifyOK: true,
	}

	g := nostrtypes.Event{
		PubKey: sender,
		Kind: nostrtypes.KindGiftWrap,
		Content: "outer-ct",
	}

	rumor, err := Unwrap(crypto, g, "viewer-priv")
	if err != nil {
		t.Fatalf("Unwrap: %v", err)
	}
	if rumor.PubKey != sender || rumor.Content != "hi" {
		t.Fatalf("unexpected rumor: %+v", rumor)
	}
	_ = viewer
}

func TestUnwrapAuthorMismatch(t *testing.T) {
	sender := pk(1)
	other := pk(3)

	rumorJSON, _ := json.Marshal(sealedPayload{PubKey: other.String(), CreatedAt: 1, Kind: 1, Content: "x"})
	sealJSON, _ := json.Marshal(sealedPayload{PubKey: sender.String(), CreatedAt: 2, Kind: 13, Content: "rumor-ct", Sig: hexSig()})

	crypto := fakeCrypto{
		plaintexts: map[string]string{
			"outer-ct": string(sealJSON),
			"rumor-ct": string(rumorJSON),
		},
		verifyOK: true,
	}
	g := nostrtypes.Event{PubKey: sender, Kind: nostrtypes.KindGiftWrap, Content: "outer-ct"}

	_, err := Unwrap(crypto, g, "viewer-priv")
	if err != ErrAuthorMismatch {
		t.Fatalf("expected ErrAuthorMismatch, got %v", err)
	}
}

func TestUnwrapInvalidInnerSignature(t *testing.T) {
	sender := pk(1)
	sealJSON, _ := json.Marshal(sealedPayload{PubKey: sender.String(), CreatedAt: 2, Kind: 13, Content: "rumor-ct", Sig: hexSig()})

	crypto := fakeCrypto{
		plaintexts: map[string]string{"outer-ct": string(sealJSON)},
		verifyOK: false,
	}
	g := nostrtypes.Event{PubKey: sender, Kind: nostrtypes.KindGiftWrap, Content: "outer-ct"}

	_, err := Unwrap(crypto, g, "viewer-priv")
	if err != ErrInvalidInnerSignature {
		t.Fatalf("expected ErrInvalidInnerSignature, got %v", err)
	}
}

func TestUnwrapDecryptFailed(t *testing.T) {
	sender := pk(1)
	crypto := fakeCrypto{plaintexts: map[string]string{}, verifyOK: true}
	g := nostrtypes.Event{PubKey: sender, Kind: nostrtypes.KindGiftWrap, Content: "missing"}

	_, err := Unwrap(crypto, g, "viewer-priv")
	if !errors.Is(err, ErrDecryptFailed) {
		t.Fatalf("expected ErrDecryptFailed, got %v", err)
	}
}

func TestParticipantsSelfAuthored(t *testing.T) {
	viewer := pk(1)
	u1, u2 := pk(2), pk(3)
	rumor := Rumor{
		PubKey: viewer,
		Tags: []nostrtypes.Tag{
			nostrtypes.ParseTag([]string{"p", u1.String()}),
			nostrtypes.ParseTag([]string{"p", u2.String()}),
		},
	}
	got := Participants(rumor, viewer)
	if len(got) != 2 {
		t.Fatalf("expected 2 participants, got %d: %+v", len(got), got)
	}
	for _, p := range got {
		if p == viewer {
			t.Fatal("viewer must not be its own participant for self-authored rumors' PTag set")
		}
	}
}

func TestParticipantsFromOther(t *testing.T) {
	viewer := pk(1)
	u1, u2 := pk(2), pk(3)
	rumor := Rumor{
		PubKey: u1,
		Tags: []nostrtypes.Tag{
			nostrtypes.ParseTag([]string{"p", viewer.String()}),
			nostrtypes.ParseTag([]string{"p", u2.String()}),
		},
	}
	got := Participants(rumor, viewer)
	set := map[nostrtypes.PubKey]bool{}
	for _, p := range got {
		set[p] = true
	}
	if !set[u1] || !set[u2] || set[viewer] {
		t.Fatalf("unexpected participants: %+v", got)
	}
}
