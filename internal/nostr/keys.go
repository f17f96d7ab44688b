package nostr

import (
	"encoding/hex"
	"fmt"

	"github.com/btcsuite/btcd/btcec/v2"
)

// GeneratePrivateKey returns a fresh secp256k1 secret key as 64 hex chars.
func GeneratePrivateKey() (string, error) {
	privKey, err := btcec.NewPrivateKey()
	if err != nil {
		return "", fmt.Errorf("generating private key: %w", err)
	}
	return hex.EncodeToString(privKey.Serialize()), nil
}

// GetPublicKey derives the x-only public key (64 hex chars) for a secret key.
func GetPublicKey(privKeyHex string) (string, error) {
	privKey, err := parsePrivKeyHex(privKeyHex)
	if err != nil {
		return "", err
	}
	return hex.EncodeToString(privKey.PubKey().SerializeCompressed()[1:]), nil
}

func parsePrivKeyHex(privKeyHex string) (*btcec.PrivateKey, error) {
	privBytes, err := hex.DecodeString(privKeyHex)
	if err != nil {
		return nil, fmt.Errorf("invalid private key hex: %w", err)
	}
	if len(privBytes) != 32 {
		return nil, fmt.Errorf("private key must be 32 bytes, got %d", len(privBytes))
	}
	privKey, _ := btcec.PrivKeyFromBytes(privBytes)
	return privKey, nil
}

// parsePubKeyHex parses a 32-byte x-only public key. Nostr keys omit the
// parity byte, so try the even-y form first and fall back to odd.
func parsePubKeyHex(pubKeyHex string) (*btcec.PublicKey, error) {
	pubBytes, err := hex.DecodeString(pubKeyHex)
	if err != nil {
		return nil, fmt.Errorf("invalid public key hex: %w", err)
	}
	if len(pubBytes) != 32 {
		return nil, fmt.Errorf("public key must be 32 bytes, got %d", len(pubBytes))
	}
	pubKey, err := btcec.ParsePubKey(append([]byte{0x02}, pubBytes...))
	if err != nil {
		pubKey, err = btcec.ParsePubKey(append([]byte{0x03}, pubBytes...))
		if err != nil {
			return nil, fmt.Errorf("parsing public key: %w", err)
		}
	}
	return pubKey, nil
}
