package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"cln-nwc/internal/nostr"
	"cln-nwc/internal/store"
)

// pluginName doubles as the store namespace for connection records.
const pluginName = "cln-nwc"

// BudgetIntervalConfig describes a refilling budget: every IntervalSecs
// seconds after LastReset the budget snaps back to ResetBudgetMsat.
// Timestamps are unix seconds.
type BudgetIntervalConfig struct {
	IntervalSecs    uint64 `json:"interval_secs"`
	ResetBudgetMsat uint64 `json:"reset_budget_msat"`
	LastReset       uint64 `json:"last_reset"`
}

// ConnectionRecord is the persisted state of one wallet connection: the
// client-facing URI, the wallet-side signing key and the spending budget.
type ConnectionRecord struct {
	URI        string                `json:"uri"`
	WalletKey  string                `json:"walletkey"`
	BudgetMsat *uint64               `json:"budget_msat,omitempty"`
	Interval   *BudgetIntervalConfig `json:"interval_config,omitempty"`
}

// WalletPubKey derives the x-only public key of the wallet signing key.
func (r *ConnectionRecord) WalletPubKey() (string, error) {
	return nostr.GetPublicKey(r.WalletKey)
}

// ClientPubKey derives the x-only public key of the client secret embedded
// in the connection URI.
func (r *ConnectionRecord) ClientPubKey() (string, error) {
	uri, err := nostr.ParseWalletConnectURI(r.URI)
	if err != nil {
		return "", err
	}
	return nostr.GetPublicKey(uri.Secret)
}

// normalizeLegacyRecord rewrites records from releases that encoded
// read-only as an interval refilling to zero. Such records become a plain
// zero budget with no interval. Reports whether the record changed.
func normalizeLegacyRecord(rec *ConnectionRecord) bool {
	if rec.Interval != nil && rec.Interval.ResetBudgetMsat == 0 {
		zero := uint64(0)
		rec.BudgetMsat = &zero
		rec.Interval = nil
		return true
	}
	return false
}

// StoredConnection pairs a record with its label for listing.
type StoredConnection struct {
	Label  string
	Record *ConnectionRecord
}

// RecordStore reads and writes connection records under the plugin
// namespace. It does not synchronize; callers hold the node lock across
// read-modify-write sequences.
type RecordStore struct {
	backend store.Backend
}

func newRecordStore(backend store.Backend) *RecordStore {
	return &RecordStore{backend: backend}
}

func recordKey(label string) []string {
	return []string{pluginName, label}
}

// Load returns the record for label, failing when none exists.
func (s *RecordStore) Load(ctx context.Context, label string) (*ConnectionRecord, error) {
	raw, ok, err := s.backend.Get(ctx, recordKey(label))
	if err != nil {
		return nil, fmt.Errorf("load connection %q: %w", label, err)
	}
	if !ok {
		return nil, fmt.Errorf("no connection found for label %q", label)
	}
	var rec ConnectionRecord
	if err := json.Unmarshal([]byte(raw), &rec); err != nil {
		return nil, fmt.Errorf("corrupt record for label %q: %w", label, err)
	}
	return &rec, nil
}

// Save writes the record, creating or replacing it.
func (s *RecordStore) Save(ctx context.Context, label string, rec *ConnectionRecord) error {
	raw, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encode record for label %q: %w", label, err)
	}
	if err := s.backend.Put(ctx, recordKey(label), string(raw)); err != nil {
		return fmt.Errorf("save connection %q: %w", label, err)
	}
	return nil
}

// Create writes a brand-new record, failing when the label is taken.
func (s *RecordStore) Create(ctx context.Context, label string, rec *ConnectionRecord) error {
	raw, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encode record for label %q: %w", label, err)
	}
	err = s.backend.PutNew(ctx, recordKey(label), string(raw))
	if errors.Is(err, store.ErrExists) {
		return fmt.Errorf("a connection labeled %q already exists", label)
	}
	if err != nil {
		return fmt.Errorf("create connection %q: %w", label, err)
	}
	return nil
}

// Delete removes the record for label.
func (s *RecordStore) Delete(ctx context.Context, label string) error {
	err := s.backend.Delete(ctx, recordKey(label))
	if errors.Is(err, store.ErrNotFound) {
		return fmt.Errorf("no connection found for label %q", label)
	}
	if err != nil {
		return fmt.Errorf("delete connection %q: %w", label, err)
	}
	return nil
}

// List returns every stored connection. Corrupt entries are logged and
// skipped so one bad record cannot take down the rest.
func (s *RecordStore) List(ctx context.Context) ([]StoredConnection, error) {
	entries, err := s.backend.List(ctx, []string{pluginName})
	if err != nil {
		return nil, fmt.Errorf("list connections: %w", err)
	}
	out := make([]StoredConnection, 0, len(entries))
	for _, e := range entries {
		label := e.Key[len(e.Key)-1]
		var rec ConnectionRecord
		if err := json.Unmarshal([]byte(e.Value), &rec); err != nil {
			slog.Warn("skipping corrupt connection record", "label", label, "error", err)
			continue
		}
		out = append(out, StoredConnection{Label: label, Record: &rec})
	}
	return out, nil
}
