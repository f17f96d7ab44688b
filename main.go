package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"cln-nwc/internal/cln"
	"cln-nwc/internal/hold"
	"cln-nwc/internal/nostr"
	"cln-nwc/internal/store"
)

// Plugin option names.
const (
	optRelays        = "nip47-relays"
	optNotifications = "nip47-notifications"
	optStore         = "nip47-store"
	optStoreRedisURL = "nip47-store-redis-url"
)

// startupDelay spaces plugin restarts so re-published info events get
// fresh timestamps and therefore fresh event ids. Relays drop exact
// duplicates and some disconnect the sender.
const startupDelay = 1 * time.Second

func main() {
	p := cln.NewPlugin(os.Stdin, os.Stdout)
	InitLogger(p)

	s := &PluginState{
		sessions:   NewSessionRegistry(),
		budgetJobs: newBudgetJobs(),
	}

	p.AddOption(cln.Option{
		Name:        optRelays,
		Type:        "string",
		Description: "Nostr relay used for NWC. Can be stated multiple times.",
		Multi:       true,
	})
	p.AddOption(cln.Option{
		Name:        optNotifications,
		Type:        "bool",
		Default:     true,
		Description: "Enable/disable NWC notifications. Default is `true`.",
	})
	p.AddOption(cln.Option{
		Name:        optStore,
		Type:        "string",
		Default:     "datastore",
		Description: "Where to keep connection records: `datastore` or `redis`.",
	})
	p.AddOption(cln.Option{
		Name:        optStoreRedisURL,
		Type:        "string",
		Default:     "",
		Description: "Redis URL for the `redis` record store.",
	})

	p.AddMethod("nip47-create", "label [budget_msat] [interval]", "Create a new NWC connection",
		func(ctx context.Context, params json.RawMessage) (any, error) {
			return adminCreate(ctx, s, params)
		})
	p.AddMethod("nip47-revoke", "label", "Revoke an NWC connection",
		func(ctx context.Context, params json.RawMessage) (any, error) {
			return adminRevoke(ctx, s, params)
		})
	p.AddMethod("nip47-budget", "label [budget_msat] [interval]", "Set the budget of an NWC connection",
		func(ctx context.Context, params json.RawMessage) (any, error) {
			return adminBudget(ctx, s, params)
		})
	p.AddMethod("nip47-list", "[label]", "List NWC connections",
		func(ctx context.Context, params json.RawMessage) (any, error) {
			return adminList(ctx, s, params)
		})

	p.AddSubscription("invoice_payment", func(ctx context.Context, params json.RawMessage) {
		paymentReceivedHandler(ctx, s, params)
	})
	p.AddSubscription("sendpay_success", func(ctx context.Context, params json.RawMessage) {
		paymentSentHandler(ctx, s, params)
	})
	p.AddSubscription("shutdown", func(ctx context.Context, params json.RawMessage) {
		s.sessions.shutdownAll()
		s.budgetJobs.stopAll()
		os.Exit(0)
	})

	// The concrete client outlives init so the hold probe can reach RPC
	// methods outside the handler surface.
	var node *cln.Client
	p.OnInit(func(ctx context.Context, p *cln.Plugin) error {
		var err error
		node, err = cln.Dial(ctx, p.Configuration().RpcPath())
		if err != nil {
			return fmt.Errorf("connecting to lightning rpc: %w", err)
		}
		return initState(ctx, p, s, node)
	})
	p.OnStart(func(ctx context.Context, p *cln.Plugin) {
		startPlugin(ctx, p, s, node)
	})

	if err := p.Run(context.Background()); err != nil {
		slog.Error("Plugin terminated", "error", err)
		os.Exit(1)
	}
}

// initState assembles the runtime configuration during init. An error
// disables the plugin with its message.
func initState(ctx context.Context, p *cln.Plugin, s *PluginState, node *cln.Client) error {
	info, err := node.GetInfo(ctx)
	if err != nil {
		return fmt.Errorf("getinfo: %w", err)
	}

	rawRelays := p.OptionStringArray(optRelays)
	if len(rawRelays) == 0 {
		return fmt.Errorf("empty %s option, must specify at least one relay url", optRelays)
	}
	relays := make([]string, 0, len(rawRelays))
	for _, r := range rawRelays {
		normalized := nostr.NormalizeRelayURL(r)
		if normalized == "" {
			return fmt.Errorf("invalid relay url %q", r)
		}
		relays = append(relays, normalized)
	}

	offerSupport, err := atOrAboveVersion(info.Version, clnVersionOffers)
	if err != nil {
		slog.Warn("Could not parse node version, offers stay off", "version", info.Version, "error", err)
		offerSupport = false
	}

	var backend store.Backend
	switch name := p.OptionString(optStore); name {
	case "datastore":
		backend = store.NewDatastore(node)
	case "redis":
		redisURL := p.OptionString(optStoreRedisURL)
		if redisURL == "" {
			return fmt.Errorf("the redis store requires %s", optStoreRedisURL)
		}
		backend, err = store.NewRedis(redisURL)
		if err != nil {
			return fmt.Errorf("connecting to redis: %w", err)
		}
	default:
		return fmt.Errorf("unknown %s value %q", optStore, name)
	}

	s.cfg = Config{
		Relays:        relays,
		Notifications: p.OptionBool(optNotifications),
		ClnVersion:    info.Version,
		Network:       info.Network,
		OfferSupport:  offerSupport,
	}
	s.node = node
	s.records = newRecordStore(backend)
	return nil
}

// startPlugin brings up the long-lived pieces once init is answered: the
// hold companion when its plugin is present, then every stored connection.
func startPlugin(ctx context.Context, p *cln.Plugin, s *PluginState, node *cln.Client) {
	if err := connectHoldCompanion(ctx, p, s, node); err != nil {
		slog.Info("Hold support not active", "reason", err)
	} else {
		slog.Info("Hold support active, resuming pending invoices")
		loadPendingHoldInvoices(ctx, s)
	}

	time.Sleep(startupDelay)

	if err := loadConnections(ctx, s); err != nil {
		slog.Error("Could not load connections", "error", err)
	}
}

// connectHoldCompanion probes for the hold plugin and dials its socket with
// the mutual TLS material it drops inside the lightning dir. Any missing
// piece means no hold support this run.
func connectHoldCompanion(ctx context.Context, p *cln.Plugin, s *PluginState, node *cln.Client) error {
	s.nodeMu.Lock()
	hostConf, err := node.ListConfig(ctx, "hold-grpc-host")
	if err == nil && (hostConf == nil || hostConf.ValueStr == nil) {
		err = errors.New("hold-grpc-host not configured")
	}
	var portConf *cln.ConfigValue
	if err == nil {
		portConf, err = node.ListConfig(ctx, "hold-grpc-port")
		if err == nil && (portConf == nil || portConf.ValueInt == nil) {
			err = errors.New("hold-grpc-port not configured")
		}
	}
	s.nodeMu.Unlock()
	if err != nil {
		return err
	}

	certDir := filepath.Join(p.Configuration().LightningDir, "hold")
	caCert, err := os.ReadFile(filepath.Join(certDir, "ca.pem"))
	if err != nil {
		return err
	}
	clientCert, err := os.ReadFile(filepath.Join(certDir, "client.pem"))
	if err != nil {
		return err
	}
	clientKey, err := os.ReadFile(filepath.Join(certDir, "client-key.pem"))
	if err != nil {
		return err
	}

	companion, err := hold.New(hold.Config{
		Host:       *hostConf.ValueStr,
		Port:       *portConf.ValueInt,
		CACert:     caCert,
		ClientCert: clientCert,
		ClientKey:  clientKey,
	})
	if err != nil {
		return err
	}
	if err := companion.Connect(ctx); err != nil {
		return err
	}
	s.hold = companion
	return nil
}

// loadPendingHoldInvoices resumes acceptance watches for hold invoices
// still open across the restart.
func loadPendingHoldInvoices(ctx context.Context, s *PluginState) {
	invoices, err := s.hold.List(ctx, "")
	if err != nil {
		slog.Error("Could not list hold invoices", "error", err)
		return
	}
	for _, inv := range invoices {
		if inv.State == hold.StateUnpaid || inv.State == hold.StateAccepted {
			slog.Debug("Resuming hold invoice watch", "payment_hash", inv.PaymentHash)
			go watchHoldInvoice(s, inv.PaymentHash)
		}
	}
}

// loadConnections starts a session for every stored record. One broken
// record only loses its own connection, the rest keep running. Records from
// releases that encoded read-only as a zero refill interval are rewritten
// on the way through.
func loadConnections(ctx context.Context, s *PluginState) error {
	s.nodeMu.Lock()
	stored, err := s.records.List(ctx)
	s.nodeMu.Unlock()
	if err != nil {
		return err
	}
	started := 0
	for _, sc := range stored {
		if normalizeLegacyRecord(sc.Record) {
			s.nodeMu.Lock()
			err := s.records.Save(ctx, sc.Label, sc.Record)
			s.nodeMu.Unlock()
			if err != nil {
				slog.Error("Could not rewrite legacy record", "label", sc.Label, "error", err)
				continue
			}
			slog.Info("Rewrote legacy read-only record", "label", sc.Label)
		}
		if err := startSession(s, sc.Label, sc.Record); err != nil {
			slog.Error("Could not start session", "label", sc.Label, "error", err)
			continue
		}
		if sc.Record.Interval != nil {
			s.startBudgetJob(sc.Label)
		}
		started++
	}
	slog.Info("Connections loaded", "started", started, "stored", len(stored))
	return nil
}
