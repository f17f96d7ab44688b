package nostr

import (
	"encoding/hex"
	"errors"
	"fmt"
	"net/url"
)

// URIScheme is the wallet-connect URI scheme.
const URIScheme = "nostr+walletconnect"

// WalletConnectURI carries everything a client needs to reach a wallet
// service: the service public key, the relays it listens on, and the
// client secret used to sign and encrypt requests.
type WalletConnectURI struct {
	WalletPubKey string
	Relays       []string
	Secret       string
}

// String renders the canonical nostr+walletconnect:// form.
func (u *WalletConnectURI) String() string {
	params := url.Values{}
	for _, r := range u.Relays {
		params.Add("relay", r)
	}
	params.Set("secret", u.Secret)
	return fmt.Sprintf("%s://%s?%s", URIScheme, u.WalletPubKey, params.Encode())
}

// ParseWalletConnectURI parses and validates a wallet-connect URI.
func ParseWalletConnectURI(raw string) (*WalletConnectURI, error) {
	parsed, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("invalid uri: %w", err)
	}
	if parsed.Scheme != URIScheme {
		return nil, fmt.Errorf("unexpected scheme %q", parsed.Scheme)
	}
	pubkey := parsed.Host
	if pubkey == "" {
		// the slash-less nostr+walletconnect:pubkey?... form
		pubkey = parsed.Opaque
	}
	if !isHex32(pubkey) {
		return nil, fmt.Errorf("invalid wallet pubkey %q", ShortID(pubkey))
	}
	query := parsed.Query()
	secret := query.Get("secret")
	if !isHex32(secret) {
		return nil, errors.New("missing or invalid secret")
	}
	return &WalletConnectURI{
		WalletPubKey: pubkey,
		Relays:       query["relay"],
		Secret:       secret,
	}, nil
}

// isHex32 reports whether s encodes exactly 32 bytes of hex.
func isHex32(s string) bool {
	if len(s) != 64 {
		return false
	}
	_, err := hex.DecodeString(s)
	return err == nil
}
