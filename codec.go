package main

import (
	"encoding/json"
	"fmt"
	"time"

	"cln-nwc/internal/nostr"
)

// Nostr event kinds of the wallet-connect protocol.
const (
	kindWalletInfo        = 13194
	kindWalletRequest     = 23194
	kindWalletResponse    = 23195
	kindNotificationNip04 = 23196
	kindNotificationNip44 = 23197
)

// requestCipher identifies which encryption a request arrived under. The
// reply goes back under the same one.
type requestCipher int

const (
	cipherNip44 requestCipher = iota
	cipherNip04
)

func (c requestCipher) String() string {
	if c == cipherNip04 {
		return "nip04"
	}
	return "nip44_v2"
}

// requestCodec encrypts, decrypts and signs the traffic of one connection.
// The NIP-44 conversation key is derived once per session.
type requestCodec struct {
	walletKey string
	clientPub string
	convKey   []byte
}

func newRequestCodec(walletKey, clientPub string) (*requestCodec, error) {
	convKey, err := nostr.GetConversationKey(walletKey, clientPub)
	if err != nil {
		return nil, fmt.Errorf("derive conversation key: %w", err)
	}
	return &requestCodec{walletKey: walletKey, clientPub: clientPub, convKey: convKey}, nil
}

// decrypt tries NIP-44 first and falls back to NIP-04 exactly once. The two
// formats are mutually exclusive, so a well-formed payload only ever
// decrypts under its own cipher.
func (c *requestCodec) decrypt(content string) (string, requestCipher, error) {
	plaintext, err44 := nostr.Nip44Decrypt(content, c.convKey)
	if err44 == nil {
		return plaintext, cipherNip44, nil
	}
	plaintext, err04 := nostr.Nip04Decrypt(content, c.walletKey, c.clientPub)
	if err04 == nil {
		return plaintext, cipherNip04, nil
	}
	return "", cipherNip44, fmt.Errorf("nip44: %v; nip04: %v", err44, err04)
}

func (c *requestCodec) encrypt(plaintext string, cipher requestCipher) (string, error) {
	if cipher == cipherNip04 {
		return nostr.Nip04Encrypt(plaintext, c.walletKey, c.clientPub)
	}
	return nostr.Nip44Encrypt(plaintext, c.convKey)
}

// responseEvent builds a signed kind-23195 event answering the request
// event, encrypted under the cipher the request arrived with. A non-empty
// correlationID (batch item id) is carried as a d tag.
func (c *requestCodec) responseEvent(resp *Response, requestEventID, correlationID string, cipher requestCipher) (*nostr.Event, error) {
	payload, err := json.Marshal(resp)
	if err != nil {
		return nil, fmt.Errorf("encode response: %w", err)
	}
	content, err := c.encrypt(string(payload), cipher)
	if err != nil {
		return nil, fmt.Errorf("encrypt response: %w", err)
	}
	tags := [][]string{{"e", requestEventID}, {"p", c.clientPub}}
	if correlationID != "" {
		tags = append(tags, []string{"d", correlationID})
	}
	ev := &nostr.Event{
		Kind:      kindWalletResponse,
		CreatedAt: time.Now().Unix(),
		Tags:      tags,
		Content:   content,
	}
	if err := ev.Sign(c.walletKey); err != nil {
		return nil, fmt.Errorf("sign response: %w", err)
	}
	return ev, nil
}

// notificationEvents builds the signed notification pair for one payload:
// the same plaintext under NIP-04 as kind 23196 and under NIP-44 as kind
// 23197, so clients of either generation can read it.
func (c *requestCodec) notificationEvents(payload string) ([]*nostr.Event, error) {
	variants := []struct {
		kind   int
		cipher requestCipher
	}{
		{kindNotificationNip04, cipherNip04},
		{kindNotificationNip44, cipherNip44},
	}
	out := make([]*nostr.Event, 0, len(variants))
	for _, v := range variants {
		content, err := c.encrypt(payload, v.cipher)
		if err != nil {
			return nil, fmt.Errorf("encrypt %s notification: %w", v.cipher, err)
		}
		ev := &nostr.Event{
			Kind:      v.kind,
			CreatedAt: time.Now().Unix(),
			Tags:      [][]string{{"p", c.clientPub}},
			Content:   content,
		}
		if err := ev.Sign(c.walletKey); err != nil {
			return nil, fmt.Errorf("sign %s notification: %w", v.cipher, err)
		}
		out = append(out, ev)
	}
	return out, nil
}
