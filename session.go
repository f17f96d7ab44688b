package main

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"cln-nwc/internal/nostr"
)

const (
	// connectWait bounds how long a session waits for its relays before
	// backing off.
	connectWait = 30 * time.Second
	// reconnectBackoff spaces retries after a failed attempt or a dropped
	// stream.
	reconnectBackoff = 5 * time.Second
)

// SessionHandle pairs one live relay client with the counterparty it
// serves. The relay client owns the websocket connections, the codec owns
// the session keys.
type SessionHandle struct {
	label     string
	walletPub string
	clientPub string
	relay     *nostr.Client
	codec     *requestCodec
}

// SessionRegistry owns the live sessions, at most one per label. It is the
// fanout target for notifications and the teardown point for shutdown.
type SessionRegistry struct {
	mu       sync.Mutex
	sessions map[string]*SessionHandle
}

func NewSessionRegistry() *SessionRegistry {
	return &SessionRegistry{sessions: make(map[string]*SessionHandle)}
}

func (r *SessionRegistry) add(label string, h *SessionHandle) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.sessions[label]; ok {
		return fmt.Errorf("a session for label %q is already running", label)
	}
	r.sessions[label] = h
	return nil
}

func (r *SessionRegistry) remove(label string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sessions, label)
}

// removeHandle drops the registry entry only when it still points at h, so
// a session draining after teardown cannot evict its replacement.
func (r *SessionRegistry) removeHandle(label string, h *SessionHandle) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.sessions[label] == h {
		delete(r.sessions, label)
	}
}

func (r *SessionRegistry) get(label string) *SessionHandle {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.sessions[label]
}

func (r *SessionRegistry) snapshot() []*SessionHandle {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*SessionHandle, 0, len(r.sessions))
	for _, h := range r.sessions {
		out = append(out, h)
	}
	return out
}

// shutdownAll tears down every live session.
func (r *SessionRegistry) shutdownAll() {
	for _, h := range r.snapshot() {
		h.relay.Shutdown()
	}
}

// startSession derives the session identity from a record, registers the
// handle and spawns the relay loop.
func startSession(s *PluginState, label string, rec *ConnectionRecord) error {
	// Sessions speak to the relays baked into the connection URI, so a
	// later relay option change never strands already issued URIs.
	uri, err := nostr.ParseWalletConnectURI(rec.URI)
	if err != nil {
		return fmt.Errorf("connection %q: %w", label, err)
	}
	walletPub, err := rec.WalletPubKey()
	if err != nil {
		return fmt.Errorf("connection %q: %w", label, err)
	}
	clientPub, err := nostr.GetPublicKey(uri.Secret)
	if err != nil {
		return fmt.Errorf("connection %q: %w", label, err)
	}
	codec, err := newRequestCodec(rec.WalletKey, clientPub)
	if err != nil {
		return fmt.Errorf("connection %q: %w", label, err)
	}

	handle := &SessionHandle{
		label:     label,
		walletPub: walletPub,
		clientPub: clientPub,
		relay:     nostr.NewClient(uri.Relays),
		codec:     codec,
	}
	if err := s.sessions.add(label, handle); err != nil {
		return err
	}
	go runSession(s, handle)
	return nil
}

// stopSession tears down the session and its budget job. Safe to call when
// nothing is running for the label.
func stopSession(s *PluginState, label string) {
	s.stopBudgetJob(label)
	if h := s.sessions.get(label); h != nil {
		s.sessions.remove(label)
		h.relay.Shutdown()
	}
}

// runSession is the per-connection lifecycle: connect, advertise,
// subscribe, consume, reconnect. It exits once the relay set has been
// emptied by Shutdown.
func runSession(s *PluginState, h *SessionHandle) {
	ctx := context.Background()
	for {
		if h.relay.IsShutdown() {
			break
		}
		h.relay.Connect(ctx)
		connected := h.relay.WaitForConnection(connectWait)
		if h.relay.IsShutdown() {
			break
		}
		if connected == 0 {
			slog.Warn("No relay connected", "label", h.label)
			h.relay.Disconnect()
			time.Sleep(reconnectBackoff)
			continue
		}

		if err := advertiseCapabilities(ctx, s, h); err != nil {
			slog.Warn("Could not advertise capabilities", "label", h.label, "error", err)
			h.relay.Disconnect()
			time.Sleep(reconnectBackoff)
			continue
		}

		// The since bound keeps requests from before this attempt, already
		// answered or long stale, from being replayed at us.
		filter := &nostr.Filter{
			Kinds:   []int{kindWalletRequest},
			Authors: []string{h.clientPub},
			PTags:   []string{h.walletPub},
			Since:   time.Now().Unix(),
		}
		if err := h.relay.Subscribe(filter); err != nil {
			slog.Warn("Subscribe failed", "label", h.label, "error", err)
			h.relay.Disconnect()
			time.Sleep(reconnectBackoff)
			continue
		}
		slog.Info("Session listening", "label", h.label, "relays", connected)

		for ev := range h.relay.Events() {
			handleRequest(ctx, s, h, &ev)
		}
	}
	s.sessions.removeHandle(h.label, h)
	slog.Info("Session terminated", "label", h.label)
}

// advertiseCapabilities publishes the kind-13194 info event for one
// session, derived from the record's current standing so budget changes
// show up on the next advertisement. At least one relay must accept it.
func advertiseCapabilities(ctx context.Context, s *PluginState, h *SessionHandle) error {
	s.nodeMu.Lock()
	rec, err := s.records.Load(ctx, h.label)
	s.nodeMu.Unlock()
	if err != nil {
		return err
	}
	methods, topics := buildCapabilities(isReadOnly(rec), s.cfg.OfferSupport, s.holdActive(), s.cfg.Notifications)

	tags := [][]string{{"encryption", "nip44_v2 nip04"}}
	if s.cfg.Notifications {
		tags = append(tags, []string{"notifications", strings.Join(topics, " ")})
	}
	ev := &nostr.Event{
		Kind:      kindWalletInfo,
		CreatedAt: time.Now().Unix(),
		Tags:      tags,
		Content:   strings.Join(methods, " "),
	}
	if err := ev.Sign(h.codec.walletKey); err != nil {
		return fmt.Errorf("sign info event: %w", err)
	}
	if h.relay.Publish(ctx, ev) == 0 {
		return fmt.Errorf("no relay accepted the info event")
	}
	return nil
}

// handleRequest services one inbound event. Anything that fails before the
// request is understood is dropped with a log line; once understood, every
// outcome is answered, each response best effort.
func handleRequest(ctx context.Context, s *PluginState, h *SessionHandle, ev *nostr.Event) {
	if ev.IsExpired(time.Now()) {
		slog.Warn("Dropping expired request", "label", h.label, "event", nostr.ShortID(ev.ID))
		return
	}
	plaintext, cipher, err := h.codec.decrypt(ev.Content)
	if err != nil {
		slog.Warn("Could not decrypt request", "label", h.label, "event", nostr.ShortID(ev.ID), "error", err)
		return
	}
	req, err := parseRequest(plaintext)
	if err != nil {
		slog.Warn("Could not parse request", "label", h.label, "event", nostr.ShortID(ev.ID), "error", err)
		return
	}
	slog.Debug("Handling request", "label", h.label, "method", req.Method, "event", nostr.ShortID(ev.ID))

	responses, err := dispatch(ctx, s, h.label, req)
	if err != nil {
		slog.Warn("Dropping malformed request", "label", h.label, "method", req.Method, "error", err)
		return
	}
	for _, tr := range responses {
		respEv, err := h.codec.responseEvent(tr.resp, ev.ID, tr.id, cipher)
		if err != nil {
			slog.Warn("Could not build response", "label", h.label, "method", req.Method, "error", err)
			continue
		}
		if h.relay.Publish(ctx, respEv) == 0 {
			slog.Warn("No relay accepted the response", "label", h.label, "method", req.Method)
		}
	}
}
