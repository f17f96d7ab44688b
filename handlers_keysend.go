package main

import (
	"context"
	"encoding/hex"
	"strconv"
	"time"

	"github.com/btcsuite/btcd/btcec/v2"

	"cln-nwc/internal/cln"
)

// payKeysend pushes a spontaneous payment to a node. The preimage belongs
// to the sender side here, so a caller-supplied one is refused.
func payKeysend(ctx context.Context, s *PluginState, label string, p *PayKeysendParams) (*PayKeysendResult, *NIP47Error) {
	s.nodeMu.Lock()
	defer s.nodeMu.Unlock()

	if p.Preimage != "" {
		return nil, otherError("CLN generates the preimage itself!")
	}

	rec, err := s.records.Load(ctx, label)
	if err != nil {
		return nil, internalError(err)
	}
	if err := checkBudget(&p.Amount, nil, rec.BudgetMsat); err != nil {
		return nil, budgetError(err)
	}

	rawKey, err := hex.DecodeString(p.Pubkey)
	if err != nil {
		return nil, otherError(err.Error())
	}
	if _, err := btcec.ParsePubKey(rawKey); err != nil {
		return nil, otherError(err.Error())
	}

	var extraTLVs map[string]string
	if len(p.TLVRecords) > 0 {
		extraTLVs = make(map[string]string, len(p.TLVRecords))
		for _, tlv := range p.TLVRecords {
			extraTLVs[strconv.FormatUint(tlv.Type, 10)] = hex.EncodeToString([]byte(tlv.Value))
		}
	}

	res, err := s.node.Keysend(ctx, cln.KeysendParams{
		Destination: p.Pubkey,
		AmountMsat:  p.Amount,
		ExtraTLVs:   extraTLVs,
	})
	if err != nil {
		return nil, mapKeysendError(err)
	}
	if nerr := settleBudget(ctx, s, label, rec, uint64(res.AmountSentMsat)); nerr != nil {
		return nil, nerr
	}
	return &PayKeysendResult{Preimage: res.PaymentPreimage}, nil
}

// keysendID correlates keysend responses: the caller id when given, the
// destination otherwise.
func keysendID(p *PayKeysendParams) string {
	if p.ID != "" {
		return p.ID
	}
	return p.Pubkey
}

func multiPayKeysend(ctx context.Context, s *PluginState, label string, p *MultiPayKeysendParams) []taggedResponse {
	responses := make([]taggedResponse, 0, len(p.Keysends))
	for i := range p.Keysends {
		item := &p.Keysends[i]
		result, nerr := payKeysend(ctx, s, label, item)
		responses = append(responses, taggedResponse{
			resp: buildResponse(methodMultiPayKeysend, result, nerr),
			id:   keysendID(item),
		})
		time.Sleep(batchItemDelay)
	}
	return responses
}
