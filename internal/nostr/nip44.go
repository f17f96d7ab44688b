package nostr

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"strings"

	"github.com/btcsuite/btcd/btcec/v2"
	"golang.org/x/crypto/chacha20"
	"golang.org/x/crypto/hkdf"
)

const (
	nip44Version      = byte(2)
	nip44MinPlaintext = 1
	nip44MaxPlaintext = 65535
)

// GetConversationKey derives the NIP-44 v2 conversation key shared by two
// parties: hkdf-extract(sha256, ecdh_x, salt "nip44-v2"). The key is
// symmetric, so either side derives the same value.
func GetConversationKey(privKeyHex, pubKeyHex string) ([]byte, error) {
	privKey, err := parsePrivKeyHex(privKeyHex)
	if err != nil {
		return nil, err
	}
	pubKey, err := parsePubKeyHex(pubKeyHex)
	if err != nil {
		return nil, err
	}
	sharedX := btcec.GenerateSharedSecret(privKey, pubKey)
	if len(sharedX) < 32 {
		padded := make([]byte, 32)
		copy(padded[32-len(sharedX):], sharedX)
		sharedX = padded
	}
	return hkdf.Extract(sha256.New, sharedX, []byte("nip44-v2")), nil
}

// Nip44Encrypt encrypts plaintext into a NIP-44 v2 payload using a fresh
// random nonce.
func Nip44Encrypt(plaintext string, conversationKey []byte) (string, error) {
	nonce := make([]byte, 32)
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("generating nonce: %w", err)
	}
	return nip44EncryptWithNonce(plaintext, conversationKey, nonce)
}

func nip44EncryptWithNonce(plaintext string, conversationKey, nonce []byte) (string, error) {
	chachaKey, chachaNonce, hmacKey, err := getMessageKeys(conversationKey, nonce)
	if err != nil {
		return "", err
	}
	padded, err := pad([]byte(plaintext))
	if err != nil {
		return "", err
	}
	ciphertext := make([]byte, len(padded))
	stream, err := chacha20.NewUnauthenticatedCipher(chachaKey, chachaNonce)
	if err != nil {
		return "", fmt.Errorf("initializing cipher: %w", err)
	}
	stream.XORKeyStream(ciphertext, padded)
	mac, err := hmacAAD(hmacKey, ciphertext, nonce)
	if err != nil {
		return "", err
	}
	payload := make([]byte, 0, 1+len(nonce)+len(ciphertext)+len(mac))
	payload = append(payload, nip44Version)
	payload = append(payload, nonce...)
	payload = append(payload, ciphertext...)
	payload = append(payload, mac...)
	return base64.StdEncoding.EncodeToString(payload), nil
}

// Nip44Decrypt authenticates and decrypts a NIP-44 v2 payload.
func Nip44Decrypt(payload string, conversationKey []byte) (string, error) {
	if strings.HasPrefix(payload, "#") {
		return "", errors.New("unsupported payload version")
	}
	if len(payload) < 132 || len(payload) > 87472 {
		return "", fmt.Errorf("invalid payload length: %d", len(payload))
	}
	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return "", fmt.Errorf("invalid base64: %w", err)
	}
	if len(data) < 99 || len(data) > 65603 {
		return "", fmt.Errorf("invalid data length: %d", len(data))
	}
	if data[0] != nip44Version {
		return "", fmt.Errorf("unknown payload version %d", data[0])
	}
	nonce := data[1:33]
	ciphertext := data[33 : len(data)-32]
	mac := data[len(data)-32:]

	chachaKey, chachaNonce, hmacKey, err := getMessageKeys(conversationKey, nonce)
	if err != nil {
		return "", err
	}
	expectedMac, err := hmacAAD(hmacKey, ciphertext, nonce)
	if err != nil {
		return "", err
	}
	if !hmac.Equal(expectedMac, mac) {
		return "", errors.New("invalid mac")
	}
	padded := make([]byte, len(ciphertext))
	stream, err := chacha20.NewUnauthenticatedCipher(chachaKey, chachaNonce)
	if err != nil {
		return "", fmt.Errorf("initializing cipher: %w", err)
	}
	stream.XORKeyStream(padded, ciphertext)
	return unpad(padded)
}

// getMessageKeys expands the conversation key with the message nonce into
// the per-message chacha key, chacha nonce and hmac key.
func getMessageKeys(conversationKey, nonce []byte) (chachaKey, chachaNonce, hmacKey []byte, err error) {
	if len(conversationKey) != 32 {
		return nil, nil, nil, fmt.Errorf("conversation key must be 32 bytes, got %d", len(conversationKey))
	}
	if len(nonce) != 32 {
		return nil, nil, nil, fmt.Errorf("nonce must be 32 bytes, got %d", len(nonce))
	}
	expand := hkdf.Expand(sha256.New, conversationKey, nonce)
	keys := make([]byte, 76)
	if _, err := io.ReadFull(expand, keys); err != nil {
		return nil, nil, nil, fmt.Errorf("deriving message keys: %w", err)
	}
	return keys[0:32], keys[32:44], keys[44:76], nil
}

// calcPaddedLen implements the NIP-44 padding schedule: everything up to 32
// bytes pads to 32, larger plaintexts round up to a chunk determined by the
// next power of two.
func calcPaddedLen(unpaddedLen int) int {
	if unpaddedLen <= 32 {
		return 32
	}
	nextPower := 1 << (int(math.Floor(math.Log2(float64(unpaddedLen-1)))) + 1)
	chunk := 32
	if nextPower > 256 {
		chunk = nextPower / 8
	}
	return chunk * ((unpaddedLen-1)/chunk + 1)
}

func pad(plaintext []byte) ([]byte, error) {
	n := len(plaintext)
	if n < nip44MinPlaintext || n > nip44MaxPlaintext {
		return nil, fmt.Errorf("plaintext length %d out of range", n)
	}
	padded := make([]byte, 2+calcPaddedLen(n))
	binary.BigEndian.PutUint16(padded[0:2], uint16(n))
	copy(padded[2:], plaintext)
	return padded, nil
}

func unpad(padded []byte) (string, error) {
	if len(padded) < 2+32 {
		return "", errors.New("invalid padding")
	}
	n := int(binary.BigEndian.Uint16(padded[0:2]))
	if n < nip44MinPlaintext || n > nip44MaxPlaintext ||
		n > len(padded)-2 ||
		len(padded) != 2+calcPaddedLen(n) {
		return "", errors.New("invalid padding")
	}
	return string(padded[2 : 2+n]), nil
}

// hmacAAD computes hmac-sha256 over aad || message; NIP-44 binds the nonce
// to the ciphertext this way.
func hmacAAD(key, message, aad []byte) ([]byte, error) {
	if len(aad) != 32 {
		return nil, fmt.Errorf("aad must be 32 bytes, got %d", len(aad))
	}
	mac := hmac.New(sha256.New, key)
	mac.Write(aad)
	mac.Write(message)
	return mac.Sum(nil), nil
}
