// Package keystore resolves the viewer's nostr keypair from a file or
// an environment variable, accepting a raw-hex or bech32 "nsec"
// private key.
package keystore

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/nbd-wtf/go-nostr"
	"github.com/nbd-wtf/go-nostr/nip19"

	"github.com/corvidlabs/inboxcore/internal/nostrtypes"
)

// Keys holds the viewer's nostr key pair, hex-encoded as the wire
// format and library calls expect.
type Keys struct {
	PrivateKeyHex string
	PublicKeyHex  string
	PubKey        nostrtypes.PubKey
}

// KeyStore loads the viewer's keypair. It is an interface so InboxModel
// can be driven by any key-management backend (file, env, hardware
// signer) without the core depending on a concrete source.
type KeyStore interface {
	Load() (Keys, error)
}

// FileOrEnv resolves a private key from a file path (if set) falling
// back to an environment variable.
type FileOrEnv struct {
	PrivateKeyFile string
	EnvVar         string // e.g. "INBOXCORE_PRIVATE_KEY"
}

func (f FileOrEnv) Load() (Keys, error) {
	raw, err := f.readRaw()
	if err != nil {
		return Keys{}, err
	}
	if raw == "" {
		return Keys{}, fmt.Errorf("keystore: no private key: set private_key_file or %s", f.EnvVar)
	}

	sk := raw
	if strings.HasPrefix(raw, "nsec") {
		prefix, val, err := nip19.Decode(raw)
		if err != nil {
			return Keys{}, fmt.Errorf("keystore: decode nsec: %w", err)
		}
		if prefix != "nsec" {
			return Keys{}, fmt.Errorf("keystore: expected nsec prefix, got %s", prefix)
		}
		sk = val.(string)
	}

	pkHex, err := nostr.GetPublicKey(sk)
	if err != nil {
		return Keys{}, fmt.Errorf("keystore: derive public key: %w", err)
	}
	pk, err := nostrtypes.ParsePubKey(pkHex)
	if err != nil {
		return Keys{}, fmt.Errorf("keystore: parse derived public key: %w", err)
	}

	return Keys{PrivateKeyHex: sk, PublicKeyHex: pkHex, PubKey: pk}, nil
}

func (f FileOrEnv) readRaw() (string, error) {
	if f.PrivateKeyFile != "" {
		path := f.PrivateKeyFile
		if strings.HasPrefix(path, "~/") {
			if home, err := os.UserHomeDir(); err == nil {
				path = filepath.Join(home, path[2:])
			}
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return "", fmt.Errorf("keystore: read %q: %w", path, err)
		}
		return strings.TrimSpace(string(data)), nil
	}
	if f.EnvVar != "" {
		return os.Getenv(f.EnvVar), nil
	}
	return "", nil
}

// Generate creates a fresh keypair and its bech32 forms, for the CLI's
// "keygen" command.
func Generate() (sk, nsec, npub string, err error) {
	sk = nostr.GeneratePrivateKey()
	pk, err := nostr.GetPublicKey(sk)
	if err != nil {
		return "", "", "", fmt.Errorf("keystore: derive public key: %w", err)
	}
	nsec, err = nip19.EncodePrivateKey(sk)
	if err != nil {
		return "", "", "", fmt.Errorf("keystore: encode nsec: %w", err)
	}
	npub, err = nip19.EncodePublicKey(pk)
	if err != nil {
		return "", "", "", fmt.Errorf("keystore: encode npub: %w", err)
	}
	return sk, nsec, npub, nil
}

// WriteKeyFile writes nsec to path, refusing to overwrite an existing
// file.
func WriteKeyFile(path, nsec string) error {
	if strings.HasPrefix(path, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			path = filepath.Join(home, path[2:])
		}
	}
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("keystore: %s already exists, refusing to overwrite", path)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("keystore: create directory: %w", err)
	}
	if err := os.WriteFile(path, []byte(nsec+"\n"), 0600); err != nil {
		return fmt.Errorf("keystore: write key file: %w", err)
	}
	return nil
}
