package nostr

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/btcsuite/btcd/btcec/v2/schnorr"
)

// Event is a NIP-01 event.
type Event struct {
	ID        string     `json:"id"`
	PubKey    string     `json:"pubkey"`
	CreatedAt int64      `json:"created_at"`
	Kind      int        `json:"kind"`
	Tags      [][]string `json:"tags"`
	Content   string     `json:"content"`
	Sig       string     `json:"sig"`
}

// ComputeID serializes the event per NIP-01 and returns its sha256 hex digest.
func (e *Event) ComputeID() string {
	tags := e.Tags
	if tags == nil {
		tags = [][]string{}
	}
	serialized := fmt.Sprintf(`[0,%s,%d,%d,%s,%s]`,
		encodeJSON(e.PubKey),
		e.CreatedAt,
		e.Kind,
		encodeJSON(tags),
		encodeJSON(e.Content),
	)
	hash := sha256.Sum256([]byte(serialized))
	return hex.EncodeToString(hash[:])
}

// Sign derives the author public key from the secret key, computes the
// event id and attaches a Schnorr signature over it.
func (e *Event) Sign(privKeyHex string) error {
	privKey, err := parsePrivKeyHex(privKeyHex)
	if err != nil {
		return err
	}
	e.PubKey = hex.EncodeToString(privKey.PubKey().SerializeCompressed()[1:])
	e.ID = e.ComputeID()
	idBytes, err := hex.DecodeString(e.ID)
	if err != nil {
		return fmt.Errorf("invalid event id: %w", err)
	}
	sig, err := schnorr.Sign(privKey, idBytes)
	if err != nil {
		return fmt.Errorf("signing event: %w", err)
	}
	e.Sig = hex.EncodeToString(sig.Serialize())
	return nil
}

// Verify recomputes the event id and checks the Schnorr signature against it.
func (e *Event) Verify() bool {
	if len(e.Sig) != 128 || len(e.PubKey) != 64 {
		return false
	}
	if e.ID != e.ComputeID() {
		return false
	}
	sigBytes, err := hex.DecodeString(e.Sig)
	if err != nil {
		return false
	}
	pubKeyBytes, err := hex.DecodeString(e.PubKey)
	if err != nil {
		return false
	}
	idBytes, err := hex.DecodeString(e.ID)
	if err != nil {
		return false
	}
	sig, err := schnorr.ParseSignature(sigBytes)
	if err != nil {
		return false
	}
	pubKey, err := schnorr.ParsePubKey(pubKeyBytes)
	if err != nil {
		return false
	}
	return sig.Verify(idBytes, pubKey)
}

// TagValue returns the first value of the named tag, or "" when absent.
func (e *Event) TagValue(name string) string {
	for _, tag := range e.Tags {
		if len(tag) >= 2 && tag[0] == name {
			return tag[1]
		}
	}
	return ""
}

// IsExpired reports whether the event carries an expiration tag (NIP-40)
// at or before now. Unparseable expiration values are ignored.
func (e *Event) IsExpired(now time.Time) bool {
	v := e.TagValue("expiration")
	if v == "" {
		return false
	}
	ts, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
	if err != nil {
		return false
	}
	return ts <= now.Unix()
}

// ShortID truncates an id or pubkey to 12 chars for logging.
func ShortID(id string) string {
	if len(id) >= 12 {
		return id[:12]
	}
	return id
}

// encodeJSON marshals without HTML escaping, which would corrupt the
// canonical serialization that event ids are computed over.
func encodeJSON(v interface{}) string {
	var sb strings.Builder
	enc := json.NewEncoder(&sb)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return ""
	}
	return strings.TrimSuffix(sb.String(), "\n")
}
