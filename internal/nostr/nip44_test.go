package nostr

import (
	"encoding/base64"
	"strings"
	"testing"
)

func testKeyPair(t *testing.T) (priv, pub string) {
	t.Helper()
	priv, err := GeneratePrivateKey()
	if err != nil {
		t.Fatalf("GeneratePrivateKey: %v", err)
	}
	pub, err = GetPublicKey(priv)
	if err != nil {
		t.Fatalf("GetPublicKey: %v", err)
	}
	return priv, pub
}

func TestConversationKeyIsSymmetric(t *testing.T) {
	alicePriv, alicePub := testKeyPair(t)
	bobPriv, bobPub := testKeyPair(t)

	fromAlice, err := GetConversationKey(alicePriv, bobPub)
	if err != nil {
		t.Fatalf("GetConversationKey(alice): %v", err)
	}
	fromBob, err := GetConversationKey(bobPriv, alicePub)
	if err != nil {
		t.Fatalf("GetConversationKey(bob): %v", err)
	}
	if string(fromAlice) != string(fromBob) {
		t.Error("conversation keys differ between the two sides")
	}
	if len(fromAlice) != 32 {
		t.Errorf("conversation key length = %d, want 32", len(fromAlice))
	}
}

func TestNip44RoundTrip(t *testing.T) {
	alicePriv, _ := testKeyPair(t)
	_, bobPub := testKeyPair(t)
	convKey, err := GetConversationKey(alicePriv, bobPub)
	if err != nil {
		t.Fatalf("GetConversationKey: %v", err)
	}

	for _, msg := range []string{
		"a",
		"hello world",
		strings.Repeat("x", 31),
		strings.Repeat("y", 32),
		strings.Repeat("z", 33),
		`{"result_type":"get_info","error":null,"result":{"alias":"node"}}`,
		strings.Repeat("long", 500),
	} {
		payload, err := Nip44Encrypt(msg, convKey)
		if err != nil {
			t.Fatalf("encrypt %d bytes: %v", len(msg), err)
		}
		got, err := Nip44Decrypt(payload, convKey)
		if err != nil {
			t.Fatalf("decrypt %d bytes: %v", len(msg), err)
		}
		if got != msg {
			t.Errorf("round trip of %d bytes came back different", len(msg))
		}
	}
}

func TestNip44EncryptRejectsEmptyAndOversized(t *testing.T) {
	convKey := make([]byte, 32)
	if _, err := Nip44Encrypt("", convKey); err == nil {
		t.Error("empty plaintext accepted")
	}
	if _, err := Nip44Encrypt(strings.Repeat("a", 65536), convKey); err == nil {
		t.Error("oversized plaintext accepted")
	}
}

func TestNip44DecryptRejectsDamage(t *testing.T) {
	alicePriv, _ := testKeyPair(t)
	_, bobPub := testKeyPair(t)
	convKey, err := GetConversationKey(alicePriv, bobPub)
	if err != nil {
		t.Fatalf("GetConversationKey: %v", err)
	}
	payload, err := Nip44Encrypt("attack at dawn", convKey)
	if err != nil {
		t.Fatalf("encrypt: %v", err)
	}

	// Flip one ciphertext byte, the mac must catch it.
	raw, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		t.Fatalf("decode payload: %v", err)
	}
	raw[40] ^= 0x01
	if _, err := Nip44Decrypt(base64.StdEncoding.EncodeToString(raw), convKey); err == nil {
		t.Error("tampered ciphertext decrypted")
	}

	// Wrong conversation key.
	otherKey := make([]byte, 32)
	copy(otherKey, convKey)
	otherKey[0] ^= 0xff
	if _, err := Nip44Decrypt(payload, otherKey); err == nil {
		t.Error("payload decrypted under the wrong key")
	}

	if _, err := Nip44Decrypt("#v3-paylod", convKey); err == nil {
		t.Error("future version marker accepted")
	}
	if _, err := Nip44Decrypt("too short", convKey); err == nil {
		t.Error("short payload accepted")
	}
}

func TestCalcPaddedLenSchedule(t *testing.T) {
	cases := []struct{ in, want int }{
		{1, 32},
		{16, 32},
		{32, 32},
		{33, 64},
		{64, 64},
		{65, 96},
		{100, 128},
		{256, 256},
		{257, 320},
		{320, 320},
		{321, 384},
		{1000, 1024},
		{65535, 65536},
	}
	for _, tc := range cases {
		if got := calcPaddedLen(tc.in); got != tc.want {
			t.Errorf("calcPaddedLen(%d) = %d, want %d", tc.in, got, tc.want)
		}
	}
}
