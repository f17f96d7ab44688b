package nostr

import (
	"strings"
	"testing"
	"time"
)

func TestSignAndVerify(t *testing.T) {
	key, err := GeneratePrivateKey()
	if err != nil {
		t.Fatalf("GeneratePrivateKey: %v", err)
	}
	ev := &Event{
		Kind:      23195,
		CreatedAt: 1700000000,
		Tags:      [][]string{{"e", "abc"}, {"p", "def"}},
		Content:   "hello",
	}
	if err := ev.Sign(key); err != nil {
		t.Fatalf("Sign: %v", err)
	}
	if len(ev.ID) != 64 {
		t.Errorf("event id length = %d, want 64", len(ev.ID))
	}
	if len(ev.Sig) != 128 {
		t.Errorf("sig length = %d, want 128", len(ev.Sig))
	}
	wantPub, err := GetPublicKey(key)
	if err != nil {
		t.Fatalf("GetPublicKey: %v", err)
	}
	if ev.PubKey != wantPub {
		t.Errorf("pubkey = %s, want %s", ev.PubKey, wantPub)
	}
	if !ev.Verify() {
		t.Error("signed event does not verify")
	}
}

func TestVerifyRejectsTampering(t *testing.T) {
	key, err := GeneratePrivateKey()
	if err != nil {
		t.Fatalf("GeneratePrivateKey: %v", err)
	}
	ev := &Event{Kind: 1, CreatedAt: 1700000000, Content: "original"}
	if err := ev.Sign(key); err != nil {
		t.Fatalf("Sign: %v", err)
	}

	tampered := *ev
	tampered.Content = "changed"
	if tampered.Verify() {
		t.Error("event with changed content verifies")
	}

	badSig := *ev
	badSig.Sig = strings.Repeat("0", 128)
	if badSig.Verify() {
		t.Error("event with zeroed signature verifies")
	}

	noSig := *ev
	noSig.Sig = ""
	if noSig.Verify() {
		t.Error("event without signature verifies")
	}
}

func TestComputeIDIgnoresNilVsEmptyTags(t *testing.T) {
	a := &Event{PubKey: strings.Repeat("a", 64), Kind: 1, CreatedAt: 1, Content: "x", Tags: nil}
	b := &Event{PubKey: strings.Repeat("a", 64), Kind: 1, CreatedAt: 1, Content: "x", Tags: [][]string{}}
	if a.ComputeID() != b.ComputeID() {
		t.Error("nil and empty tag lists hash differently")
	}
}

func TestComputeIDDoesNotEscapeHTML(t *testing.T) {
	a := &Event{Kind: 1, Content: "a < b & c > d"}
	b := &Event{Kind: 1, Content: "a < b & c > d"}
	if a.ComputeID() != b.ComputeID() {
		t.Error("equivalent contents hash differently")
	}
}

func TestTagValue(t *testing.T) {
	ev := &Event{Tags: [][]string{
		{"e", "first"},
		{"e", "second"},
		{"short"},
		{"p", "pubkey"},
	}}
	if got := ev.TagValue("e"); got != "first" {
		t.Errorf("TagValue(e) = %q, want first", got)
	}
	if got := ev.TagValue("p"); got != "pubkey" {
		t.Errorf("TagValue(p) = %q, want pubkey", got)
	}
	if got := ev.TagValue("short"); got != "" {
		t.Errorf("TagValue(short) = %q, want empty", got)
	}
	if got := ev.TagValue("missing"); got != "" {
		t.Errorf("TagValue(missing) = %q, want empty", got)
	}
}

func TestIsExpired(t *testing.T) {
	now := time.Unix(1700000000, 0)
	cases := []struct {
		name string
		tags [][]string
		want bool
	}{
		{"no tag", nil, false},
		{"future", [][]string{{"expiration", "1700000001"}}, false},
		{"exactly now", [][]string{{"expiration", "1700000000"}}, true},
		{"past", [][]string{{"expiration", "1699999999"}}, true},
		{"padded past", [][]string{{"expiration", " 1699999999 "}}, true},
		{"garbage", [][]string{{"expiration", "soon"}}, false},
	}
	for _, tc := range cases {
		ev := &Event{Tags: tc.tags}
		if got := ev.IsExpired(now); got != tc.want {
			t.Errorf("%s: IsExpired = %v, want %v", tc.name, got, tc.want)
		}
	}
}

func TestShortID(t *testing.T) {
	if got := ShortID("0123456789abcdef"); got != "0123456789ab" {
		t.Errorf("ShortID = %q", got)
	}
	if got := ShortID("abc"); got != "abc" {
		t.Errorf("ShortID short input = %q", got)
	}
}
