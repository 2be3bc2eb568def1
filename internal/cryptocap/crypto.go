// Package cryptocap is the signature-verification and decrypt
// capability, covering both Schnorr verification and the NIP-44 ECDH
// decrypt primitive needed to peel a gift wrap. KeyStore only returns
// key material; it performs no cryptographic operations itself.
package cryptocap

import (
	"fmt"

	"github.com/btcsuite/btcd/btcec/v2/schnorr"
	"github.com/nbd-wtf/go-nostr/nip44"

	"github.com/corvidlabs/inboxcore/internal/nostrtypes"
)

// Crypto is the capability the core depends on for signature
// verification and the ECDH decrypt that unwraps sealed messages. It
// takes no ambient state; every call is self-contained.
type Crypto interface {
	// Verify reports whether sig is a valid Schnorr signature over id by pk.
	Verify(id nostrtypes.EventID, sig [64]byte, pk nostrtypes.PubKey) bool

	// Decrypt performs a NIP-44 ECDH decrypt: derive the shared
	// conversation key between viewerPriv and senderPub, then decrypt
	// ciphertext.
	Decrypt(ciphertext string, viewerPrivHex string, senderPub nostrtypes.PubKey) (string, error)
}

// Schnorr is the default Crypto implementation, grounded on the
// secp256k1/Schnorr primitives go-nostr itself is built on and on
// go-nostr's nip44 package for the conversation-key ECDH.
type Schnorr struct{}

func (Schnorr) Verify(id nostrtypes.EventID, sig [64]byte, pk nostrtypes.PubKey) bool {
	pubKey, err := schnorr.ParsePubKey(pk[:])
	if err != nil {
		return false
	}
	signature, err := schnorr.ParseSignature(sig[:])
	if err != nil {
		return false
	}
	return signature.Verify(id[:], pubKey)
}

func (Schnorr) Decrypt(ciphertext string, viewerPrivHex string, senderPub nostrtypes.PubKey) (string, error) {
	key, err := nip44.GenerateConversationKey(senderPub.String(), viewerPrivHex)
	if err != nil {
		return "", fmt.Errorf("cryptocap: derive conversation key: %w", err)
	}
	plaintext, err := nip44.Decrypt(ciphertext, key)
	if err != nil {
		return "", fmt.Errorf("cryptocap: nip44 decrypt: %w", err)
	}
	return plaintext, nil
}
