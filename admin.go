package main

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"cln-nwc/internal/nostr"

	"github.com/skip2/go-qrcode"
)

// adminCreate handles nip47-create: mint a fresh connection, persist it
// with must-create semantics and bring its session up.
func adminCreate(ctx context.Context, s *PluginState, params json.RawMessage) (any, error) {
	args, err := parseAdminArgs(params)
	if err != nil {
		return nil, err
	}

	walletKey, err := nostr.GeneratePrivateKey()
	if err != nil {
		return nil, err
	}
	walletPub, err := nostr.GetPublicKey(walletKey)
	if err != nil {
		return nil, err
	}
	clientKey, err := nostr.GeneratePrivateKey()
	if err != nil {
		return nil, err
	}
	clientPub, err := nostr.GetPublicKey(clientKey)
	if err != nil {
		return nil, err
	}

	uri := nostr.WalletConnectURI{
		WalletPubKey: walletPub,
		Relays:       s.cfg.Relays,
		Secret:       clientKey,
	}
	rec := &ConnectionRecord{
		URI:        uri.String(),
		WalletKey:  walletKey,
		BudgetMsat: args.budgetMsat,
	}
	if args.intervalSecs != nil {
		rec.Interval = &BudgetIntervalConfig{
			IntervalSecs:    *args.intervalSecs,
			ResetBudgetMsat: *args.budgetMsat,
			LastReset:       uint64(time.Now().Unix()),
		}
	}

	s.nodeMu.Lock()
	err = s.records.Create(ctx, args.label, rec)
	s.nodeMu.Unlock()
	if err != nil {
		return nil, err
	}

	if err := startSession(s, args.label, rec); err != nil {
		return nil, err
	}
	if rec.Interval != nil {
		s.startBudgetJob(args.label)
	}
	slog.Info("Connection created", "label", args.label)

	result := map[string]any{
		"uri":              rec.URI,
		"label":            args.label,
		"walletkey_public": walletPub,
		"clientkey_public": clientPub,
		"qr":               qrDataURL(rec.URI),
	}
	if args.budgetMsat != nil {
		result["budget_msat"] = *args.budgetMsat
	}
	if rec.Interval != nil {
		result["interval_config"] = rec.Interval
	}
	return result, nil
}

// adminRevoke handles nip47-revoke: tear the session down and delete the
// record.
func adminRevoke(ctx context.Context, s *PluginState, params json.RawMessage) (any, error) {
	label, err := parseLabelArg(params)
	if err != nil {
		return nil, err
	}

	stopSession(s, label)

	s.nodeMu.Lock()
	err = s.records.Delete(ctx, label)
	s.nodeMu.Unlock()
	if err != nil {
		return nil, err
	}
	slog.Info("Connection revoked", "label", label)
	return map[string]string{"revoked": label}, nil
}

// adminBudget handles nip47-budget: replace the budget and interval of an
// existing connection. A flip of the read-only standing re-advertises the
// capabilities so clients pick up the change.
func adminBudget(ctx context.Context, s *PluginState, params json.RawMessage) (any, error) {
	args, err := parseAdminArgs(params)
	if err != nil {
		return nil, err
	}

	s.stopBudgetJob(args.label)

	s.nodeMu.Lock()
	rec, err := s.records.Load(ctx, args.label)
	if err != nil {
		s.nodeMu.Unlock()
		return nil, err
	}
	wasReadOnly := isReadOnly(rec)

	rec.BudgetMsat = args.budgetMsat
	rec.Interval = nil
	if args.budgetMsat != nil && args.intervalSecs != nil {
		rec.Interval = &BudgetIntervalConfig{
			IntervalSecs:    *args.intervalSecs,
			ResetBudgetMsat: *args.budgetMsat,
			LastReset:       uint64(time.Now().Unix()),
		}
	}
	nowReadOnly := isReadOnly(rec)

	if err := s.records.Save(ctx, args.label, rec); err != nil {
		s.nodeMu.Unlock()
		return nil, err
	}
	s.nodeMu.Unlock()

	if rec.Interval != nil {
		s.startBudgetJob(args.label)
	}

	if wasReadOnly != nowReadOnly {
		h := s.sessions.get(args.label)
		if h == nil {
			return nil, fmt.Errorf("no running session for label %q", args.label)
		}
		if err := advertiseCapabilities(ctx, s, h); err != nil {
			return nil, fmt.Errorf("re-advertise capabilities: %w", err)
		}
	}
	slog.Info("Budget updated", "label", args.label)
	return map[string]string{"budget_updated": args.label}, nil
}

// adminList handles nip47-list: dump one or all connection records with
// their derived public keys.
func adminList(ctx context.Context, s *PluginState, params json.RawMessage) (any, error) {
	label, err := parseOptionalLabelArg(params)
	if err != nil {
		return nil, err
	}

	s.nodeMu.Lock()
	defer s.nodeMu.Unlock()

	var stored []StoredConnection
	if label != "" {
		rec, err := s.records.Load(ctx, label)
		if err != nil {
			return nil, err
		}
		stored = []StoredConnection{{Label: label, Record: rec}}
	} else {
		stored, err = s.records.List(ctx)
		if err != nil {
			return nil, err
		}
	}

	out := make([]map[string]any, 0, len(stored))
	for _, sc := range stored {
		entry, err := describeConnection(sc.Record)
		if err != nil {
			return nil, err
		}
		out = append(out, map[string]any{sc.Label: entry})
	}
	return out, nil
}

// describeConnection flattens a record for listing. The wallet secret stays
// visible, the command runs on the operator's own node.
func describeConnection(rec *ConnectionRecord) (map[string]any, error) {
	walletPub, err := rec.WalletPubKey()
	if err != nil {
		return nil, err
	}
	clientPub, err := rec.ClientPubKey()
	if err != nil {
		return nil, err
	}
	entry := map[string]any{
		"uri":              rec.URI,
		"walletkey":        rec.WalletKey,
		"walletkey_public": walletPub,
		"clientkey_public": clientPub,
	}
	if rec.BudgetMsat != nil {
		entry["budget_msat"] = *rec.BudgetMsat
	}
	if rec.Interval != nil {
		entry["interval_config"] = rec.Interval
	}
	return entry, nil
}

// qrDataURL renders the pairing URI as a PNG data URL.
func qrDataURL(content string) string {
	png, err := qrcode.Encode(content, qrcode.Medium, 256)
	if err != nil {
		slog.Warn("Could not render QR code", "error", err)
		return ""
	}
	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(png)
}
