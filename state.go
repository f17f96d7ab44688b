package main

import (
	"context"
	"sync"

	"cln-nwc/internal/cln"
	"cln-nwc/internal/hold"
)

// lightningNode is the slice of the node RPC surface the wallet handlers
// use. *cln.Client implements it; tests substitute a fake.
type lightningNode interface {
	GetInfo(ctx context.Context) (*cln.GetinfoResult, error)
	Decode(ctx context.Context, s string) (*cln.DecodeResult, error)
	Invoice(ctx context.Context, p cln.InvoiceParams) (*cln.InvoiceResult, error)
	Pay(ctx context.Context, p cln.PayParams) (*cln.PayResult, error)
	Xpay(ctx context.Context, p cln.XpayParams) (*cln.PayResult, error)
	Keysend(ctx context.Context, p cln.KeysendParams) (*cln.PayResult, error)
	ListInvoices(ctx context.Context, p cln.ListInvoicesParams) ([]cln.Invoice, error)
	ListPays(ctx context.Context, p cln.ListPaysParams) ([]cln.Pay, error)
	ListPeerChannels(ctx context.Context) ([]cln.Channel, error)
	Offer(ctx context.Context, p cln.OfferParams) (*cln.OfferResult, error)
	FetchInvoice(ctx context.Context, p cln.FetchInvoiceParams) (*cln.FetchInvoiceResult, error)
}

// holdCompanion is the slice of the hold companion surface the handlers
// use. *hold.Client implements it.
type holdCompanion interface {
	Invoice(ctx context.Context, req hold.InvoiceRequest) (*hold.InvoiceResponse, error)
	Cancel(ctx context.Context, paymentHash string) error
	Settle(ctx context.Context, preimage string) error
	List(ctx context.Context, paymentHash string) ([]hold.Invoice, error)
	Track(ctx context.Context, paymentHash string) (<-chan hold.State, error)
}

// Config is the startup configuration assembled during init.
type Config struct {
	// Relays is the normalized nip47-relays option.
	Relays []string
	// Notifications mirrors the nip47-notifications option.
	Notifications bool
	// ClnVersion is the node's version string from getinfo.
	ClnVersion string
	// Network is the chain the node runs on.
	Network string
	// OfferSupport gates the BOLT12 method set.
	OfferSupport bool
}

// PluginState carries everything the handlers share. The node mutex
// serializes every node call; spend handlers hold it across
// load-check-execute-debit-persist so budget updates never race.
type PluginState struct {
	cfg Config

	nodeMu sync.Mutex
	node   lightningNode

	records    *RecordStore
	sessions   *SessionRegistry
	budgetJobs *budgetJobs

	// hold is nil until the companion is detected.
	hold holdCompanion
}

func (s *PluginState) holdActive() bool {
	return s.hold != nil
}
