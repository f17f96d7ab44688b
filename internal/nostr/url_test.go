package nostr

import "testing"

func TestNormalizeRelayURL(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"wss://relay.damus.io", "wss://relay.damus.io"},
		{"  wss://relay.damus.io  ", "wss://relay.damus.io"},
		{"WSS://RELAY.Example.COM", "wss://relay.example.com"},
		{"wss://relay.damus.io/", "wss://relay.damus.io"},
		{"wss://relay.example.com:7777", "wss://relay.example.com:7777"},
		{"wss://relay.example.com/nostr", "wss://relay.example.com/nostr"},
		{"ws://localhost:8080", "ws://localhost:8080"},
		{"relay.example.com", ""},
		{"https://relay.example.com", ""},
		{"wss://https://relay.example.com", ""},
		{"", ""},
		{"   ", ""},
		{"wss://", ""},
	}
	for _, tc := range cases {
		if got := NormalizeRelayURL(tc.in); got != tc.want {
			t.Errorf("NormalizeRelayURL(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}
