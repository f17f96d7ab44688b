package nostr

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	dialTimeout   = 10 * time.Second
	writeTimeout  = 10 * time.Second
	okTimeout     = 10 * time.Second
	pingInterval  = 30 * time.Second
	pongWait      = 90 * time.Second
	eventChanSize = 100
)

// Client maintains websocket connections to a fixed relay set and merges
// inbound events from every relay into one stream. It does not reconnect on
// its own: when the last relay connection drops, the stream returned by
// Events closes, and the owner decides whether to dial again with Connect.
// Shutdown empties the relay set and makes the client terminal.
type Client struct {
	mu     sync.RWMutex
	urls   []string
	conns  map[string]*relayConn
	events chan Event
	dials  chan struct{}
	shut   bool
}

// NewClient prepares a client for the given relay URLs without connecting.
func NewClient(urls []string) *Client {
	return &Client{
		urls:  append([]string(nil), urls...),
		conns: make(map[string]*relayConn),
	}
}

// Relays returns the configured relay set. Empty after Shutdown.
func (c *Client) Relays() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]string(nil), c.urls...)
}

// Connect dials every relay in the set in the background, replacing any
// previous connections. Use WaitForConnection to learn how many dials
// succeeded.
func (c *Client) Connect(ctx context.Context) {
	c.mu.Lock()
	if c.shut {
		c.mu.Unlock()
		return
	}
	for _, rc := range c.conns {
		rc.close()
	}
	c.conns = make(map[string]*relayConn)
	events := make(chan Event, eventChanSize)
	dials := make(chan struct{})
	c.events = events
	c.dials = dials
	urls := append([]string(nil), c.urls...)
	c.mu.Unlock()

	go func() {
		var readers sync.WaitGroup
		var dialWg sync.WaitGroup
		for _, u := range urls {
			dialWg.Add(1)
			go func(u string) {
				defer dialWg.Done()
				dialer := &websocket.Dialer{HandshakeTimeout: dialTimeout}
				conn, _, err := dialer.DialContext(ctx, u, nil)
				if err != nil {
					slog.Warn("relay dial failed", "url", u, "error", err)
					return
				}
				rc := &relayConn{
					url:       u,
					conn:      conn,
					events:    events,
					okWaiters: make(map[string]chan bool),
					done:      make(chan struct{}),
				}
				c.mu.Lock()
				if c.shut || c.events != events {
					// Superseded by Shutdown or a newer Connect.
					c.mu.Unlock()
					conn.Close()
					return
				}
				c.conns[u] = rc
				readers.Add(1)
				c.mu.Unlock()
				go rc.readLoop(&readers)
				go rc.pingLoop()
				slog.Info("relay connected", "url", u)
			}(u)
		}
		dialWg.Wait()
		close(dials)
		readers.Wait()
		close(events)
	}()
}

// WaitForConnection blocks until every dial attempt of the current Connect
// has settled or the timeout elapses, and returns how many relays are
// connected. Zero with IsShutdown false means every relay is currently
// unreachable and the caller should back off and retry.
func (c *Client) WaitForConnection(timeout time.Duration) int {
	c.mu.RLock()
	dials := c.dials
	c.mu.RUnlock()
	if dials != nil {
		select {
		case <-dials:
		case <-time.After(timeout):
		}
	}
	return c.ConnectedCount()
}

// Events returns the merged inbound stream for the current connection
// generation. The channel closes when every relay connection has ended.
// Only valid after Connect.
func (c *Client) Events() <-chan Event {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.events
}

// ConnectedCount reports how many relay connections are currently live.
func (c *Client) ConnectedCount() int {
	return len(c.liveConns())
}

// Publish sends an already-signed event to every connected relay and waits
// for their verdicts. It returns how many relays accepted the event.
func (c *Client) Publish(ctx context.Context, ev *Event) int {
	conns := c.liveConns()
	if len(conns) == 0 {
		return 0
	}
	msg := []interface{}{"EVENT", ev}
	results := make(chan bool, len(conns))
	var wg sync.WaitGroup
	for _, rc := range conns {
		wg.Add(1)
		go func(rc *relayConn) {
			defer wg.Done()
			ok := rc.expectOK(ev.ID)
			if err := rc.writeJSON(msg); err != nil {
				rc.forgetOK(ev.ID)
				slog.Warn("relay publish failed", "url", rc.url, "event_id", ShortID(ev.ID), "error", err)
				return
			}
			select {
			case accepted := <-ok:
				if accepted {
					results <- true
				} else {
					slog.Warn("relay rejected event", "url", rc.url, "event_id", ShortID(ev.ID))
				}
			case <-time.After(okTimeout):
				rc.forgetOK(ev.ID)
				slog.Warn("relay did not acknowledge event", "url", rc.url, "event_id", ShortID(ev.ID))
			case <-ctx.Done():
				rc.forgetOK(ev.ID)
			}
		}(rc)
	}
	wg.Wait()
	close(results)
	accepted := 0
	for range results {
		accepted++
	}
	return accepted
}

// Subscribe opens one subscription with the given filter on every connected
// relay. Matching events arrive merged on the Events channel.
func (c *Client) Subscribe(filter *Filter) error {
	conns := c.liveConns()
	if len(conns) == 0 {
		return errors.New("no connected relays")
	}
	subID := uuid.NewString()[:8]
	msg := []interface{}{"REQ", subID, filter}
	sent := 0
	for _, rc := range conns {
		if err := rc.writeJSON(msg); err != nil {
			slog.Warn("relay subscribe failed", "url", rc.url, "error", err)
			rc.close()
			continue
		}
		sent++
	}
	if sent == 0 {
		return errors.New("subscribe failed on every relay")
	}
	return nil
}

// Disconnect closes all relay connections but keeps the relay set, so a
// later Connect can dial again.
func (c *Client) Disconnect() {
	for _, rc := range c.liveConns() {
		rc.close()
	}
}

// Shutdown closes all connections and empties the relay set. The client is
// terminal afterwards: Connect becomes a no-op returning zero.
func (c *Client) Shutdown() {
	c.mu.Lock()
	c.shut = true
	c.urls = nil
	conns := make([]*relayConn, 0, len(c.conns))
	for _, rc := range c.conns {
		conns = append(conns, rc)
	}
	c.mu.Unlock()
	for _, rc := range conns {
		rc.close()
	}
}

// IsShutdown reports whether Shutdown was called.
func (c *Client) IsShutdown() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.shut
}

func (c *Client) liveConns() []*relayConn {
	c.mu.RLock()
	defer c.mu.RUnlock()
	conns := make([]*relayConn, 0, len(c.conns))
	for _, rc := range c.conns {
		if !rc.isClosed() {
			conns = append(conns, rc)
		}
	}
	return conns
}

// relayConn is one websocket connection to one relay.
type relayConn struct {
	url     string
	conn    *websocket.Conn
	writeMu sync.Mutex
	events  chan<- Event

	okMu      sync.Mutex
	okWaiters map[string]chan bool

	closeOnce sync.Once
	done      chan struct{}
}

func (rc *relayConn) close() {
	rc.closeOnce.Do(func() {
		close(rc.done)
		rc.conn.Close()
		rc.okMu.Lock()
		for id, ch := range rc.okWaiters {
			delete(rc.okWaiters, id)
			select {
			case ch <- false:
			default:
			}
		}
		rc.okMu.Unlock()
	})
}

func (rc *relayConn) isClosed() bool {
	select {
	case <-rc.done:
		return true
	default:
		return false
	}
}

func (rc *relayConn) writeJSON(v interface{}) error {
	rc.writeMu.Lock()
	defer rc.writeMu.Unlock()
	rc.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return rc.conn.WriteJSON(v)
}

func (rc *relayConn) expectOK(eventID string) <-chan bool {
	ch := make(chan bool, 1)
	rc.okMu.Lock()
	rc.okWaiters[eventID] = ch
	rc.okMu.Unlock()
	return ch
}

func (rc *relayConn) forgetOK(eventID string) {
	rc.okMu.Lock()
	delete(rc.okWaiters, eventID)
	rc.okMu.Unlock()
}

func (rc *relayConn) readLoop(wg *sync.WaitGroup) {
	defer wg.Done()
	defer rc.close()
	rc.conn.SetReadDeadline(time.Now().Add(pongWait))
	rc.conn.SetPongHandler(func(string) error {
		return rc.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		_, data, err := rc.conn.ReadMessage()
		if err != nil {
			if !rc.isClosed() {
				slog.Info("relay connection lost", "url", rc.url, "error", err)
			}
			return
		}
		rc.conn.SetReadDeadline(time.Now().Add(pongWait))
		rc.handleMessage(data)
	}
}

func (rc *relayConn) handleMessage(data []byte) {
	var msg []json.RawMessage
	if err := json.Unmarshal(data, &msg); err != nil || len(msg) == 0 {
		return
	}
	var typ string
	if err := json.Unmarshal(msg[0], &typ); err != nil {
		return
	}
	switch typ {
	case "EVENT":
		if len(msg) < 3 {
			return
		}
		var ev Event
		if err := json.Unmarshal(msg[2], &ev); err != nil {
			slog.Debug("relay sent malformed event", "url", rc.url, "error", err)
			return
		}
		if !ev.Verify() {
			slog.Warn("dropping event with invalid signature", "url", rc.url, "event_id", ShortID(ev.ID))
			return
		}
		select {
		case rc.events <- ev:
		default:
			slog.Warn("event buffer full, dropping event", "url", rc.url, "event_id", ShortID(ev.ID))
		}
	case "OK":
		if len(msg) < 3 {
			return
		}
		var id string
		var accepted bool
		if err := json.Unmarshal(msg[1], &id); err != nil {
			return
		}
		if err := json.Unmarshal(msg[2], &accepted); err != nil {
			return
		}
		rc.okMu.Lock()
		ch, ok := rc.okWaiters[id]
		if ok {
			delete(rc.okWaiters, id)
		}
		rc.okMu.Unlock()
		if ok {
			select {
			case ch <- accepted:
			default:
			}
		}
	case "EOSE":
		// end of stored events; live events keep flowing on the same sub
	case "CLOSED":
		var reason string
		if len(msg) >= 3 {
			_ = json.Unmarshal(msg[2], &reason)
		}
		slog.Warn("relay closed subscription", "url", rc.url, "reason", reason)
		rc.close()
	case "NOTICE":
		var notice string
		if len(msg) >= 2 {
			_ = json.Unmarshal(msg[1], &notice)
		}
		slog.Info("relay notice", "url", rc.url, "notice", notice)
	}
}

func (rc *relayConn) pingLoop() {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-rc.done:
			return
		case <-ticker.C:
			if err := rc.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeTimeout)); err != nil {
				rc.close()
				return
			}
		}
	}
}
