package main

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cln-nwc/internal/cln"
	"cln-nwc/internal/store"
)

// fakeNode implements lightningNode with per-call hooks. Calls without a
// hook fail, so a test only wires what its path is allowed to touch.
type fakeNode struct {
	getInfo          func() (*cln.GetinfoResult, error)
	decode           func(s string) (*cln.DecodeResult, error)
	invoice          func(p cln.InvoiceParams) (*cln.InvoiceResult, error)
	pay              func(p cln.PayParams) (*cln.PayResult, error)
	xpay             func(p cln.XpayParams) (*cln.PayResult, error)
	keysend          func(p cln.KeysendParams) (*cln.PayResult, error)
	listInvoices     func(p cln.ListInvoicesParams) ([]cln.Invoice, error)
	listPays         func(p cln.ListPaysParams) ([]cln.Pay, error)
	listPeerChannels func() ([]cln.Channel, error)
	offer            func(p cln.OfferParams) (*cln.OfferResult, error)
	fetchInvoice     func(p cln.FetchInvoiceParams) (*cln.FetchInvoiceResult, error)
}

var errNotWired = errors.New("unexpected node call")

func (f *fakeNode) GetInfo(ctx context.Context) (*cln.GetinfoResult, error) {
	if f.getInfo == nil {
		return nil, errNotWired
	}
	return f.getInfo()
}

func (f *fakeNode) Decode(ctx context.Context, s string) (*cln.DecodeResult, error) {
	if f.decode == nil {
		return nil, errNotWired
	}
	return f.decode(s)
}

func (f *fakeNode) Invoice(ctx context.Context, p cln.InvoiceParams) (*cln.InvoiceResult, error) {
	if f.invoice == nil {
		return nil, errNotWired
	}
	return f.invoice(p)
}

func (f *fakeNode) Pay(ctx context.Context, p cln.PayParams) (*cln.PayResult, error) {
	if f.pay == nil {
		return nil, errNotWired
	}
	return f.pay(p)
}

func (f *fakeNode) Xpay(ctx context.Context, p cln.XpayParams) (*cln.PayResult, error) {
	if f.xpay == nil {
		return nil, errNotWired
	}
	return f.xpay(p)
}

func (f *fakeNode) Keysend(ctx context.Context, p cln.KeysendParams) (*cln.PayResult, error) {
	if f.keysend == nil {
		return nil, errNotWired
	}
	return f.keysend(p)
}

func (f *fakeNode) ListInvoices(ctx context.Context, p cln.ListInvoicesParams) ([]cln.Invoice, error) {
	if f.listInvoices == nil {
		return nil, errNotWired
	}
	return f.listInvoices(p)
}

func (f *fakeNode) ListPays(ctx context.Context, p cln.ListPaysParams) ([]cln.Pay, error) {
	if f.listPays == nil {
		return nil, errNotWired
	}
	return f.listPays(p)
}

func (f *fakeNode) ListPeerChannels(ctx context.Context) ([]cln.Channel, error) {
	if f.listPeerChannels == nil {
		return nil, errNotWired
	}
	return f.listPeerChannels()
}

func (f *fakeNode) Offer(ctx context.Context, p cln.OfferParams) (*cln.OfferResult, error) {
	if f.offer == nil {
		return nil, errNotWired
	}
	return f.offer(p)
}

func (f *fakeNode) FetchInvoice(ctx context.Context, p cln.FetchInvoiceParams) (*cln.FetchInvoiceResult, error) {
	if f.fetchInvoice == nil {
		return nil, errNotWired
	}
	return f.fetchInvoice(p)
}

func newTestState(t *testing.T, node lightningNode) *PluginState {
	t.Helper()
	return &PluginState{
		cfg: Config{
			Relays:        []string{"wss://relay.example.com"},
			Notifications: true,
			ClnVersion:    "v24.11.0",
			Network:       "bitcoin",
			OfferSupport:  true,
		},
		node:       node,
		records:    newRecordStore(store.NewMemory()),
		sessions:   NewSessionRegistry(),
		budgetJobs: newBudgetJobs(),
	}
}

func saveTestRecord(t *testing.T, s *PluginState, label string, budget *uint64, interval *BudgetIntervalConfig) {
	t.Helper()
	rec := testRecord(t, budget, interval)
	require.NoError(t, s.records.Save(context.Background(), label, rec))
}

func loadBudget(t *testing.T, s *PluginState, label string) *uint64 {
	t.Helper()
	rec, err := s.records.Load(context.Background(), label)
	require.NoError(t, err)
	return rec.BudgetMsat
}

func msatPtr(v uint64) *cln.Msat {
	m := cln.Msat(v)
	return &m
}

func bolt11Result(amountMsat *uint64, hash string) *cln.DecodeResult {
	dec := &cln.DecodeResult{
		Type:        cln.DecodeBolt11Invoice,
		Valid:       true,
		PaymentHash: hash,
	}
	if amountMsat != nil {
		dec.AmountMsat = msatPtr(*amountMsat)
	}
	return dec
}

func paid(amount uint64) *cln.PayResult {
	return &cln.PayResult{
		PaymentPreimage: "00112233",
		AmountMsat:      cln.Msat(amount),
		AmountSentMsat:  cln.Msat(amount),
		Status:          "complete",
	}
}

// Paying within the budget succeeds and debits the sent amount.
func TestPayInvoiceDebitsBudget(t *testing.T) {
	node := &fakeNode{
		decode: func(s string) (*cln.DecodeResult, error) {
			return bolt11Result(u64ptr(500_000), "hash1"), nil
		},
		xpay: func(p cln.XpayParams) (*cln.PayResult, error) {
			return paid(500_000), nil
		},
	}
	s := newTestState(t, node)
	saveTestRecord(t, s, "alice", u64ptr(1_000_000), nil)

	result, id, nerr := payInvoice(context.Background(), s, "alice", &PayInvoiceParams{
		Invoice: "lnbc1...",
		Amount:  u64ptr(500_000),
	})
	require.Nil(t, nerr)
	assert.Equal(t, "hash1", id)
	assert.Equal(t, "00112233", result.Preimage)

	budget := loadBudget(t, s, "alice")
	require.NotNil(t, budget)
	assert.Equal(t, uint64(500_000), *budget)
}

// A request amount disagreeing with the invoice amount is refused before
// any payment attempt.
func TestPayInvoiceAmountMismatch(t *testing.T) {
	node := &fakeNode{
		decode: func(s string) (*cln.DecodeResult, error) {
			return bolt11Result(u64ptr(500_000), "hash1"), nil
		},
		// xpay left unwired on purpose: reaching it fails the test.
	}
	s := newTestState(t, node)
	saveTestRecord(t, s, "alice", u64ptr(1_000_000), nil)

	_, _, nerr := payInvoice(context.Background(), s, "alice", &PayInvoiceParams{
		Invoice: "lnbc1...",
		Amount:  u64ptr(600_000),
	})
	require.NotNil(t, nerr)
	assert.Equal(t, ErrCodeOther, nerr.Code)

	budget := loadBudget(t, s, "alice")
	require.NotNil(t, budget)
	assert.Equal(t, uint64(1_000_000), *budget)
}

func TestPayInvoiceQuotaExceeded(t *testing.T) {
	node := &fakeNode{
		decode: func(s string) (*cln.DecodeResult, error) {
			return bolt11Result(u64ptr(500_000), "hash1"), nil
		},
	}
	s := newTestState(t, node)
	saveTestRecord(t, s, "alice", u64ptr(100), nil)

	_, _, nerr := payInvoice(context.Background(), s, "alice", &PayInvoiceParams{Invoice: "lnbc1..."})
	require.NotNil(t, nerr)
	assert.Equal(t, ErrCodeQuotaExceeded, nerr.Code)
}

func TestPayInvoiceUnbudgetedNeverPersists(t *testing.T) {
	node := &fakeNode{
		decode: func(s string) (*cln.DecodeResult, error) {
			return bolt11Result(u64ptr(500_000), "hash1"), nil
		},
		xpay: func(p cln.XpayParams) (*cln.PayResult, error) {
			return paid(500_000), nil
		},
	}
	s := newTestState(t, node)
	saveTestRecord(t, s, "alice", nil, nil)

	_, _, nerr := payInvoice(context.Background(), s, "alice", &PayInvoiceParams{Invoice: "lnbc1..."})
	require.Nil(t, nerr)
	assert.Nil(t, loadBudget(t, s, "alice"))
}

func TestPayInvoiceRejectsNonInvoice(t *testing.T) {
	node := &fakeNode{
		decode: func(s string) (*cln.DecodeResult, error) {
			return &cln.DecodeResult{Type: cln.DecodeBolt12Offer, Valid: true}, nil
		},
	}
	s := newTestState(t, node)
	saveTestRecord(t, s, "alice", nil, nil)

	_, _, nerr := payInvoice(context.Background(), s, "alice", &PayInvoiceParams{Invoice: "lno1..."})
	require.NotNil(t, nerr)
	assert.Equal(t, ErrCodeOther, nerr.Code)
}

// Nodes below the xpay threshold use the legacy pay command and its error
// space.
func TestPayInvoiceLegacyPath(t *testing.T) {
	payCalled := false
	node := &fakeNode{
		decode: func(s string) (*cln.DecodeResult, error) {
			return bolt11Result(u64ptr(1000), "hash1"), nil
		},
		pay: func(p cln.PayParams) (*cln.PayResult, error) {
			payCalled = true
			return nil, &cln.RPCError{Code: 206, Message: "insufficient funds"}
		},
	}
	s := newTestState(t, node)
	s.cfg.ClnVersion = "v23.05.2"
	saveTestRecord(t, s, "alice", nil, nil)

	_, _, nerr := payInvoice(context.Background(), s, "alice", &PayInvoiceParams{Invoice: "lnbc1..."})
	require.NotNil(t, nerr)
	assert.True(t, payCalled)
	assert.Equal(t, ErrCodeInsufficientBalance, nerr.Code)
}

// A failing item in the middle of a batch loses only itself; every item
// gets a response carrying its own correlation id.
func TestMultiPayInvoiceNeverAbortsEarly(t *testing.T) {
	amounts := map[string]uint64{"inv-a": 100, "inv-b": 200, "inv-c": 300}
	node := &fakeNode{
		decode: func(s string) (*cln.DecodeResult, error) {
			return bolt11Result(u64ptr(amounts[s]), "hash-"+s), nil
		},
		xpay: func(p cln.XpayParams) (*cln.PayResult, error) {
			if p.InvString == "inv-b" {
				return nil, &cln.RPCError{Code: 205, Message: "no route"}
			}
			return paid(amounts[p.InvString]), nil
		},
	}
	s := newTestState(t, node)
	saveTestRecord(t, s, "alice", u64ptr(10_000), nil)

	responses := multiPayInvoice(context.Background(), s, "alice", &MultiPayInvoiceParams{
		Invoices: []PayInvoiceParams{
			{ID: "first", Invoice: "inv-a"},
			{ID: "second", Invoice: "inv-b"},
			{ID: "third", Invoice: "inv-c"},
		},
	})
	require.Len(t, responses, 3)
	assert.Equal(t, "first", responses[0].id)
	assert.Nil(t, responses[0].resp.Error)
	assert.Equal(t, "second", responses[1].id)
	require.NotNil(t, responses[1].resp.Error)
	assert.Equal(t, ErrCodePaymentFailed, responses[1].resp.Error.Code)
	assert.Equal(t, "third", responses[2].id)
	assert.Nil(t, responses[2].resp.Error)

	// Only the two successful items were debited.
	budget := loadBudget(t, s, "alice")
	require.NotNil(t, budget)
	assert.Equal(t, uint64(9_600), *budget)
}

func TestPayKeysendRefusesCallerPreimage(t *testing.T) {
	s := newTestState(t, &fakeNode{})
	saveTestRecord(t, s, "alice", nil, nil)

	_, nerr := payKeysend(context.Background(), s, "alice", &PayKeysendParams{
		Amount:   1000,
		Pubkey:   "02deadbeef",
		Preimage: "aabb",
	})
	require.NotNil(t, nerr)
	assert.Equal(t, ErrCodeOther, nerr.Code)
}

func TestPayKeysendRejectsBadPubkey(t *testing.T) {
	s := newTestState(t, &fakeNode{})
	saveTestRecord(t, s, "alice", nil, nil)

	_, nerr := payKeysend(context.Background(), s, "alice", &PayKeysendParams{
		Amount: 1000,
		Pubkey: "not-hex",
	})
	require.NotNil(t, nerr)
	assert.Equal(t, ErrCodeOther, nerr.Code)
}

func TestPayKeysendDebitsBudget(t *testing.T) {
	node := &fakeNode{
		keysend: func(p cln.KeysendParams) (*cln.PayResult, error) {
			assert.Equal(t, uint64(1000), p.AmountMsat)
			assert.Equal(t, "aabb", p.ExtraTLVs["696969"])
			return paid(1000), nil
		},
	}
	s := newTestState(t, node)
	saveTestRecord(t, s, "alice", u64ptr(5000), nil)

	result, nerr := payKeysend(context.Background(), s, "alice", &PayKeysendParams{
		Amount:     1000,
		Pubkey:     "0279be667ef9dcbbac55a06295ce870b07029bfcdb2dce28d959f2815b16f81798",
		TLVRecords: []TLVRecord{{Type: 696969, Value: "\xaa\xbb"}},
	})
	require.Nil(t, nerr)
	assert.NotEmpty(t, result.Preimage)

	budget := loadBudget(t, s, "alice")
	require.NotNil(t, budget)
	assert.Equal(t, uint64(4000), *budget)
}

func TestGetBalanceReportsBudget(t *testing.T) {
	s := newTestState(t, &fakeNode{})
	saveTestRecord(t, s, "alice", u64ptr(123_456), nil)

	result, nerr := getBalance(context.Background(), s, "alice")
	require.Nil(t, nerr)
	assert.Equal(t, uint64(123_456), result.Balance)
}

func TestGetBalanceSumsUsableChannels(t *testing.T) {
	node := &fakeNode{
		listPeerChannels: func() ([]cln.Channel, error) {
			return []cln.Channel{
				{State: cln.ChannelStateNormal, SpendableMsat: msatPtr(1000)},
				{State: cln.ChannelStateAwaitingSplice, SpendableMsat: msatPtr(500)},
				{State: "OPENINGD", SpendableMsat: msatPtr(9999)},
			}, nil
		},
	}
	s := newTestState(t, node)
	saveTestRecord(t, s, "alice", nil, nil)

	result, nerr := getBalance(context.Background(), s, "alice")
	require.Nil(t, nerr)
	assert.Equal(t, uint64(1500), result.Balance)
}

func TestGetInfoMethodsFollowReadOnly(t *testing.T) {
	alias := "carol"
	node := &fakeNode{
		getInfo: func() (*cln.GetinfoResult, error) {
			return &cln.GetinfoResult{
				ID:          "02abc",
				Alias:       &alias,
				Color:       "ff9900",
				Network:     "bitcoin",
				Blockheight: 800_000,
				Version:     "v24.11.0",
			}, nil
		},
	}
	s := newTestState(t, node)
	saveTestRecord(t, s, "alice", u64ptr(0), nil)

	result, nerr := getInfo(context.Background(), s, "alice")
	require.Nil(t, nerr)
	assert.Equal(t, "carol", result.Alias)
	assert.Equal(t, "mainnet", result.Network)
	assert.NotContains(t, result.Methods, methodPayInvoice)
	assert.Contains(t, result.Methods, methodGetBalance)

	saveTestRecord(t, s, "bob", u64ptr(1000), nil)
	result, nerr = getInfo(context.Background(), s, "bob")
	require.Nil(t, nerr)
	assert.Contains(t, result.Methods, methodPayInvoice)
}

func TestLookupInvoiceNotFound(t *testing.T) {
	node := &fakeNode{
		listInvoices: func(p cln.ListInvoicesParams) ([]cln.Invoice, error) { return nil, nil },
		listPays:     func(p cln.ListPaysParams) ([]cln.Pay, error) { return nil, nil },
	}
	s := newTestState(t, node)

	_, nerr := lookupInvoice(context.Background(), s, &LookupInvoiceParams{PaymentHash: "deadbeef"})
	require.NotNil(t, nerr)
	assert.Equal(t, ErrCodeNotFound, nerr.Code)
}

func TestLookupInvoiceNeedsSelector(t *testing.T) {
	s := newTestState(t, &fakeNode{})
	_, nerr := lookupInvoice(context.Background(), s, &LookupInvoiceParams{})
	require.NotNil(t, nerr)
	assert.Equal(t, ErrCodeOther, nerr.Code)
}

func TestMakeInvoiceDescriptionHashContract(t *testing.T) {
	_, nerr := checkDescriptionHash("", "aabbcc")
	require.NotNil(t, nerr)
	assert.Equal(t, ErrCodeOther, nerr.Code)

	_, nerr = checkDescriptionHash("escrow order 1", "0000000000000000000000000000000000000000000000000000000000000000")
	require.NotNil(t, nerr)
	assert.Equal(t, ErrCodeOther, nerr.Code)

	deschashonly, nerr := checkDescriptionHash("plain", "")
	require.Nil(t, nerr)
	assert.False(t, deschashonly)

	sum := sha256.Sum256([]byte("escrow order 1"))
	deschashonly, nerr = checkDescriptionHash("escrow order 1", hex.EncodeToString(sum[:]))
	require.Nil(t, nerr)
	assert.True(t, deschashonly)
}

func TestMakeInvoiceAnyAmount(t *testing.T) {
	node := &fakeNode{
		invoice: func(p cln.InvoiceParams) (*cln.InvoiceResult, error) {
			assert.True(t, p.AmountMsat.Any)
			assert.Equal(t, defaultInvoiceDescription, p.Description)
			return &cln.InvoiceResult{Bolt11: "lnbc1...", PaymentHash: "h", ExpiresAt: 1_900_000_000}, nil
		},
	}
	s := newTestState(t, node)

	result, nerr := makeInvoice(context.Background(), s, &MakeInvoiceParams{Amount: 0})
	require.Nil(t, nerr)
	assert.Equal(t, "lnbc1...", result.Invoice)
}

func TestPayOfferChecksQuotedAmount(t *testing.T) {
	node := &fakeNode{
		fetchInvoice: func(p cln.FetchInvoiceParams) (*cln.FetchInvoiceResult, error) {
			return &cln.FetchInvoiceResult{Invoice: "lni1..."}, nil
		},
		decode: func(s string) (*cln.DecodeResult, error) {
			return &cln.DecodeResult{
				Type:               cln.DecodeBolt12Invoice,
				Valid:              true,
				InvoicePaymentHash: "offerhash",
				InvoiceAmountMsat:  msatPtr(2000),
			}, nil
		},
	}
	s := newTestState(t, node)
	saveTestRecord(t, s, "alice", u64ptr(10_000), nil)

	// The issuer quoted 2000 but the caller asked for 1500.
	_, id, nerr := payOffer(context.Background(), s, "alice", &PayOfferParams{
		Offer:  "lno1...",
		Amount: u64ptr(1500),
	})
	require.NotNil(t, nerr)
	assert.Equal(t, ErrCodeOther, nerr.Code)
	assert.Equal(t, "offerhash", id)
}

func TestGetOfferInfoRejectsInvoice(t *testing.T) {
	node := &fakeNode{
		decode: func(s string) (*cln.DecodeResult, error) {
			return bolt11Result(u64ptr(1), "h"), nil
		},
	}
	s := newTestState(t, node)

	_, nerr := getOfferInfo(context.Background(), s, &GetOfferInfoParams{Offer: "lnbc1..."})
	require.NotNil(t, nerr)
	assert.Equal(t, ErrCodeOther, nerr.Code)
}
