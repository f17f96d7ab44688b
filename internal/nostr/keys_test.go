package nostr

import (
	"encoding/hex"
	"strings"
	"testing"
)

func TestGeneratePrivateKey(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 8; i++ {
		key, err := GeneratePrivateKey()
		if err != nil {
			t.Fatalf("GeneratePrivateKey: %v", err)
		}
		if len(key) != 64 {
			t.Fatalf("key length = %d, want 64", len(key))
		}
		if _, err := hex.DecodeString(key); err != nil {
			t.Fatalf("key is not hex: %v", err)
		}
		if seen[key] {
			t.Fatal("duplicate key generated")
		}
		seen[key] = true
	}
}

func TestGetPublicKeyKnownPoint(t *testing.T) {
	// Secret key 1 maps to the secp256k1 generator point.
	secret := strings.Repeat("0", 63) + "1"
	pub, err := GetPublicKey(secret)
	if err != nil {
		t.Fatalf("GetPublicKey: %v", err)
	}
	const generatorX = "79be667ef9dcbbac55a06295ce870b07029bfcdb2dce28d959f2815b16f81798"
	if pub != generatorX {
		t.Errorf("pubkey = %s, want %s", pub, generatorX)
	}
}

func TestGetPublicKeyRejectsBadInput(t *testing.T) {
	if _, err := GetPublicKey("not hex"); err == nil {
		t.Error("non-hex secret accepted")
	}
	if _, err := GetPublicKey("abcd"); err == nil {
		t.Error("short secret accepted")
	}
}

func TestParsePubKeyHexBothParities(t *testing.T) {
	// Any real x-only key parses regardless of the hidden y parity; run a
	// few fresh keys through to cover both branches over time.
	for i := 0; i < 8; i++ {
		_, pub := testKeyPair(t)
		if _, err := parsePubKeyHex(pub); err != nil {
			t.Fatalf("parsePubKeyHex(%s): %v", pub, err)
		}
	}
	if _, err := parsePubKeyHex("zz" + strings.Repeat("0", 62)); err == nil {
		t.Error("non-hex pubkey parsed")
	}
	if _, err := parsePubKeyHex("abcd"); err == nil {
		t.Error("short pubkey parsed")
	}
}
