package nostr

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

// fakeRelay speaks just enough of the relay protocol to exercise the
// client: it records REQ subscriptions, acks published events, and can
// push events back to the subscriber.
type fakeRelay struct {
	accept bool

	mu      sync.Mutex
	writeMu sync.Mutex
	conn    *websocket.Conn
	subID   string
	inbound []Event
}

func newFakeRelay(t *testing.T, accept bool) (*fakeRelay, string) {
	t.Helper()
	fr := &fakeRelay{accept: accept}
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		fr.mu.Lock()
		fr.conn = conn
		fr.mu.Unlock()
		fr.serve(conn)
	}))
	t.Cleanup(srv.Close)
	return fr, "ws" + strings.TrimPrefix(srv.URL, "http")
}

func (fr *fakeRelay) serve(conn *websocket.Conn) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		var msg []json.RawMessage
		if err := json.Unmarshal(data, &msg); err != nil || len(msg) == 0 {
			continue
		}
		var typ string
		if err := json.Unmarshal(msg[0], &typ); err != nil {
			continue
		}
		switch typ {
		case "REQ":
			if len(msg) < 2 {
				continue
			}
			var subID string
			if err := json.Unmarshal(msg[1], &subID); err != nil {
				continue
			}
			fr.mu.Lock()
			fr.subID = subID
			fr.mu.Unlock()
			fr.write([]interface{}{"EOSE", subID})
		case "EVENT":
			if len(msg) < 2 {
				continue
			}
			var ev Event
			if err := json.Unmarshal(msg[1], &ev); err != nil {
				continue
			}
			fr.mu.Lock()
			fr.inbound = append(fr.inbound, ev)
			fr.mu.Unlock()
			fr.write([]interface{}{"OK", ev.ID, fr.accept, ""})
		}
	}
}

func (fr *fakeRelay) write(v interface{}) {
	fr.mu.Lock()
	conn := fr.conn
	fr.mu.Unlock()
	if conn == nil {
		return
	}
	fr.writeMu.Lock()
	defer fr.writeMu.Unlock()
	conn.WriteJSON(v)
}

// push delivers an event to the connected subscriber under the recorded
// subscription id.
func (fr *fakeRelay) push(ev *Event) {
	fr.mu.Lock()
	subID := fr.subID
	fr.mu.Unlock()
	fr.write([]interface{}{"EVENT", subID, ev})
}

func (fr *fakeRelay) waitForSub(timeout time.Duration) string {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		fr.mu.Lock()
		id := fr.subID
		fr.mu.Unlock()
		if id != "" {
			return id
		}
		time.Sleep(10 * time.Millisecond)
	}
	return ""
}

func signedTestEvent(t *testing.T, content string) *Event {
	t.Helper()
	priv, pub := testKeyPair(t)
	ev := &Event{
		PubKey:    pub,
		CreatedAt: time.Now().Unix(),
		Kind:      1,
		Content:   content,
	}
	if err := ev.Sign(priv); err != nil {
		t.Fatalf("Sign: %v", err)
	}
	return ev
}

func TestClientPublishAndSubscribe(t *testing.T) {
	fr, url := newFakeRelay(t, true)

	client := NewClient([]string{url})
	defer client.Shutdown()
	client.Connect(context.Background())
	if n := client.WaitForConnection(5 * time.Second); n != 1 {
		t.Fatalf("connected relays = %d, want 1", n)
	}

	if err := client.Subscribe(&Filter{Kinds: []int{1}}); err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	if fr.waitForSub(5*time.Second) == "" {
		t.Fatal("relay never received the subscription")
	}

	out := signedTestEvent(t, "outbound")
	if n := client.Publish(context.Background(), out); n != 1 {
		t.Fatalf("accepting relays = %d, want 1", n)
	}
	fr.mu.Lock()
	received := len(fr.inbound)
	fr.mu.Unlock()
	if received != 1 {
		t.Fatalf("relay received %d events, want 1", received)
	}

	in := signedTestEvent(t, "pushed from relay")
	fr.push(in)
	select {
	case got := <-client.Events():
		if got.ID != in.ID {
			t.Errorf("event id = %s, want %s", got.ID, in.ID)
		}
		if got.Content != "pushed from relay" {
			t.Errorf("content = %q", got.Content)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("pushed event never arrived")
	}
}

func TestClientPublishRejected(t *testing.T) {
	_, url := newFakeRelay(t, false)

	client := NewClient([]string{url})
	defer client.Shutdown()
	client.Connect(context.Background())
	if n := client.WaitForConnection(5 * time.Second); n != 1 {
		t.Fatalf("connected relays = %d, want 1", n)
	}

	ev := signedTestEvent(t, "rejected")
	if n := client.Publish(context.Background(), ev); n != 0 {
		t.Fatalf("accepting relays = %d, want 0", n)
	}
}

func TestClientDropsUnverifiableEvents(t *testing.T) {
	fr, url := newFakeRelay(t, true)

	client := NewClient([]string{url})
	defer client.Shutdown()
	client.Connect(context.Background())
	if n := client.WaitForConnection(5 * time.Second); n != 1 {
		t.Fatalf("connected relays = %d, want 1", n)
	}
	if err := client.Subscribe(&Filter{Kinds: []int{1}}); err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	if fr.waitForSub(5*time.Second) == "" {
		t.Fatal("relay never received the subscription")
	}

	forged := signedTestEvent(t, "forged")
	forged.Content = "tampered after signing"
	fr.push(forged)
	good := signedTestEvent(t, "good")
	fr.push(good)

	select {
	case got := <-client.Events():
		if got.ID != good.ID {
			t.Errorf("event id = %s, want the untampered event %s", got.ID, good.ID)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("untampered event never arrived")
	}
}

func TestClientUnreachableRelay(t *testing.T) {
	client := NewClient([]string{"ws://127.0.0.1:1"})
	defer client.Shutdown()
	client.Connect(context.Background())
	if n := client.WaitForConnection(5 * time.Second); n != 0 {
		t.Fatalf("connected relays = %d, want 0", n)
	}
	if err := client.Subscribe(&Filter{Kinds: []int{1}}); err == nil {
		t.Fatal("Subscribe succeeded with no connections")
	}
	if n := client.Publish(context.Background(), signedTestEvent(t, "nobody listening")); n != 0 {
		t.Fatalf("accepting relays = %d, want 0", n)
	}
}

func TestClientShutdown(t *testing.T) {
	_, url := newFakeRelay(t, true)

	client := NewClient([]string{url})
	client.Connect(context.Background())
	if n := client.WaitForConnection(5 * time.Second); n != 1 {
		t.Fatalf("connected relays = %d, want 1", n)
	}
	events := client.Events()

	client.Shutdown()
	if !client.IsShutdown() {
		t.Error("IsShutdown = false after Shutdown")
	}
	if got := client.Relays(); len(got) != 0 {
		t.Errorf("Relays() = %v, want empty", got)
	}
	select {
	case _, open := <-events:
		if open {
			t.Error("received event after shutdown")
		}
	case <-time.After(5 * time.Second):
		t.Fatal("events channel never closed")
	}

	// Connect after Shutdown stays a no-op.
	client.Connect(context.Background())
	if n := client.WaitForConnection(time.Second); n != 0 {
		t.Errorf("connected relays after shutdown = %d, want 0", n)
	}
}
