package cryptocap

import (
	"crypto/sha256"
	"testing"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/schnorr"

	"github.com/corvidlabs/inboxcore/internal/nostrtypes"
)

func TestSchnorrVerify(t *testing.T) {
	priv, err := btcec.NewPrivateKey()
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	var pk nostrtypes.PubKey
	copy(pk[:], schnorr.SerializePubKey(priv.PubKey()))

	id := sha256.Sum256([]byte("hello"))
	sig, err := schnorr.Sign(priv, id[:])
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	var sigArr [64]byte
	copy(sigArr[:], sig.Serialize())

	c := Schnorr{}
	if !c.Verify(nostrtypes.EventID(id), sigArr, pk) {
		t.Fatal("expected signature to verify")
	}

	tampered := id
	tampered[0] ^= 0xff
	if c.Verify(nostrtypes.EventID(tampered), sigArr, pk) {
		t.Fatal("expected signature over a different id to fail verification")
	}
}
