package main

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cln-nwc/internal/nostr"
	"cln-nwc/internal/store"
)

func testRecord(t *testing.T, budget *uint64, interval *BudgetIntervalConfig) *ConnectionRecord {
	t.Helper()
	walletKey, err := nostr.GeneratePrivateKey()
	require.NoError(t, err)
	walletPub, err := nostr.GetPublicKey(walletKey)
	require.NoError(t, err)
	clientKey, err := nostr.GeneratePrivateKey()
	require.NoError(t, err)
	uri := nostr.WalletConnectURI{
		WalletPubKey: walletPub,
		Relays:       []string{"wss://relay.example.com"},
		Secret:       clientKey,
	}
	return &ConnectionRecord{
		URI:        uri.String(),
		WalletKey:  walletKey,
		BudgetMsat: budget,
		Interval:   interval,
	}
}

func TestRecordStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := newRecordStore(store.NewMemory())
	rec := testRecord(t, u64ptr(1000), &BudgetIntervalConfig{
		IntervalSecs:    3600,
		ResetBudgetMsat: 1000,
		LastReset:       1700000000,
	})

	require.NoError(t, s.Create(ctx, "alice", rec))

	loaded, err := s.Load(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, rec.URI, loaded.URI)
	assert.Equal(t, rec.WalletKey, loaded.WalletKey)
	require.NotNil(t, loaded.BudgetMsat)
	assert.Equal(t, uint64(1000), *loaded.BudgetMsat)
	require.NotNil(t, loaded.Interval)
	assert.Equal(t, uint64(3600), loaded.Interval.IntervalSecs)
}

func TestRecordStoreCreateRefusesDuplicate(t *testing.T) {
	ctx := context.Background()
	s := newRecordStore(store.NewMemory())
	require.NoError(t, s.Create(ctx, "alice", testRecord(t, nil, nil)))

	err := s.Create(ctx, "alice", testRecord(t, nil, nil))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already exists")
}

func TestRecordStoreLoadMissing(t *testing.T) {
	s := newRecordStore(store.NewMemory())
	_, err := s.Load(context.Background(), "ghost")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no connection found")
}

func TestRecordStoreDelete(t *testing.T) {
	ctx := context.Background()
	s := newRecordStore(store.NewMemory())
	require.NoError(t, s.Create(ctx, "alice", testRecord(t, nil, nil)))
	require.NoError(t, s.Delete(ctx, "alice"))

	_, err := s.Load(ctx, "alice")
	assert.Error(t, err)
	assert.Error(t, s.Delete(ctx, "alice"))
}

func TestRecordStoreList(t *testing.T) {
	ctx := context.Background()
	backend := store.NewMemory()
	s := newRecordStore(backend)
	require.NoError(t, s.Create(ctx, "alice", testRecord(t, u64ptr(5), nil)))
	require.NoError(t, s.Create(ctx, "bob", testRecord(t, nil, nil)))
	// A corrupt entry only loses itself.
	require.NoError(t, backend.Put(ctx, recordKey("mallory"), "{not json"))

	stored, err := s.List(ctx)
	require.NoError(t, err)
	labels := make([]string, 0, len(stored))
	for _, sc := range stored {
		labels = append(labels, sc.Label)
	}
	assert.ElementsMatch(t, []string{"alice", "bob"}, labels)
}

func TestRecordKeysDerive(t *testing.T) {
	rec := testRecord(t, nil, nil)
	walletPub, err := rec.WalletPubKey()
	require.NoError(t, err)
	assert.Len(t, walletPub, 64)

	clientPub, err := rec.ClientPubKey()
	require.NoError(t, err)
	assert.Len(t, clientPub, 64)
	assert.NotEqual(t, walletPub, clientPub)
}

func TestNormalizeLegacyRecord(t *testing.T) {
	rec := testRecord(t, u64ptr(500), &BudgetIntervalConfig{
		IntervalSecs:    3600,
		ResetBudgetMsat: 0,
	})
	assert.True(t, normalizeLegacyRecord(rec))
	assert.Nil(t, rec.Interval)
	require.NotNil(t, rec.BudgetMsat)
	assert.Equal(t, uint64(0), *rec.BudgetMsat)
	assert.True(t, isReadOnly(rec))

	// A live interval is left alone.
	rec = testRecord(t, u64ptr(500), &BudgetIntervalConfig{
		IntervalSecs:    3600,
		ResetBudgetMsat: 500,
	})
	assert.False(t, normalizeLegacyRecord(rec))
	assert.NotNil(t, rec.Interval)
}
