package main

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseRequest(t *testing.T) {
	req, err := parseRequest(`{"method":"get_balance","params":{}}`)
	require.NoError(t, err)
	assert.Equal(t, methodGetBalance, req.Method)
}

func TestParseRequestRejectsUnknownMethod(t *testing.T) {
	_, err := parseRequest(`{"method":"drain_wallet"}`)
	assert.Error(t, err)
}

func TestParseRequestRejectsGarbage(t *testing.T) {
	_, err := parseRequest(`{"method":`)
	assert.Error(t, err)
}

func TestDispatchGetBalance(t *testing.T) {
	s := newTestState(t, &fakeNode{})
	saveTestRecord(t, s, "alice", u64ptr(777), nil)

	responses, err := dispatch(context.Background(), s, "alice", &Request{Method: methodGetBalance})
	require.NoError(t, err)
	require.Len(t, responses, 1)
	assert.Empty(t, responses[0].id)
	assert.Equal(t, methodGetBalance, responses[0].resp.ResultType)
	require.Nil(t, responses[0].resp.Error)
	result, ok := responses[0].resp.Result.(*GetBalanceResult)
	require.True(t, ok)
	assert.Equal(t, uint64(777), result.Balance)
}

func TestDispatchMalformedParamsDropsEvent(t *testing.T) {
	s := newTestState(t, &fakeNode{})
	_, err := dispatch(context.Background(), s, "alice", &Request{
		Method: methodPayInvoice,
		Params: []byte(`{"invoice": 42}`),
	})
	assert.Error(t, err)
}

func TestDispatchHoldWithoutCompanion(t *testing.T) {
	s := newTestState(t, &fakeNode{})
	require.False(t, s.holdActive())

	for _, method := range walletHoldMethods {
		responses, err := dispatch(context.Background(), s, "alice", &Request{Method: method})
		require.NoError(t, err, method)
		require.Len(t, responses, 1, method)
		require.NotNil(t, responses[0].resp.Error, method)
		assert.Equal(t, ErrCodeNotImplemented, responses[0].resp.Error.Code, method)
	}
}

func TestDispatchBatchResponsesKeepIDs(t *testing.T) {
	s := newTestState(t, &fakeNode{})
	saveTestRecord(t, s, "alice", u64ptr(0), nil)

	// Both items fail the budget check on a read-only connection, but both
	// still get their own tagged response.
	responses, err := dispatch(context.Background(), s, "alice", &Request{
		Method: methodMultiPayKeysend,
		Params: []byte(`{"keysends":[
			{"id":"k1","amount":10,"pubkey":"02aa"},
			{"id":"k2","amount":20,"pubkey":"02bb"}
		]}`),
	})
	require.NoError(t, err)
	require.Len(t, responses, 2)
	assert.Equal(t, "k1", responses[0].id)
	assert.Equal(t, "k2", responses[1].id)
	for _, tr := range responses {
		require.NotNil(t, tr.resp.Error)
		assert.Equal(t, methodMultiPayKeysend, tr.resp.ResultType)
	}
}
