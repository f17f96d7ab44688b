// Package cln speaks lightningd's JSON-RPC dialect, both as a client over
// the node's unix socket and as a plugin host on stdin/stdout. Messages in
// either direction are JSON values separated by blank lines.
package cln

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"sync"
	"time"
)

// Client is a JSON-RPC client for a lightningd unix socket. One call is in
// flight at a time; concurrent callers queue on an internal mutex.
type Client struct {
	mu     sync.Mutex
	conn   net.Conn
	dec    *json.Decoder
	nextID uint64
}

// Dial connects to the lightningd RPC socket at path.
func Dial(ctx context.Context, path string) (*Client, error) {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "unix", path)
	if err != nil {
		return nil, fmt.Errorf("dial lightning rpc: %w", err)
	}
	return &Client{conn: conn, dec: json.NewDecoder(conn)}, nil
}

func (c *Client) Close() error {
	return c.conn.Close()
}

type rpcEnvelope struct {
	ID     json.RawMessage `json:"id"`
	Result json.RawMessage `json:"result"`
	Error  *RPCError       `json:"error"`
}

// Call invokes method with params and unmarshals the result into result,
// which may be nil to discard it. Errors from the node are returned as
// *RPCError.
func (c *Client) Call(ctx context.Context, method string, params, result any) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.nextID++
	id := c.nextID
	if params == nil {
		params = struct{}{}
	}
	req := map[string]any{
		"jsonrpc": "2.0",
		"id":      id,
		"method":  method,
		"params":  params,
	}
	buf, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("marshal %s request: %w", method, err)
	}

	if deadline, ok := ctx.Deadline(); ok {
		if err := c.conn.SetDeadline(deadline); err != nil {
			return err
		}
		defer c.conn.SetDeadline(time.Time{})
	}

	if _, err := c.conn.Write(append(buf, '\n', '\n')); err != nil {
		return fmt.Errorf("write %s request: %w", method, err)
	}

	for {
		var env rpcEnvelope
		if err := c.dec.Decode(&env); err != nil {
			return fmt.Errorf("read %s response: %w", method, err)
		}
		var got uint64
		if err := json.Unmarshal(env.ID, &got); err != nil || got != id {
			// Not ours; lightningd only interleaves responses when a
			// caller abandoned one, so skip it.
			continue
		}
		if env.Error != nil {
			return env.Error
		}
		if result == nil {
			return nil
		}
		if err := json.Unmarshal(env.Result, result); err != nil {
			return fmt.Errorf("unmarshal %s result: %w", method, err)
		}
		return nil
	}
}

// GetInfo returns the node summary.
func (c *Client) GetInfo(ctx context.Context) (*GetinfoResult, error) {
	var res GetinfoResult
	if err := c.Call(ctx, "getinfo", nil, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// Decode decodes a BOLT11 or BOLT12 string.
func (c *Client) Decode(ctx context.Context, s string) (*DecodeResult, error) {
	params := struct {
		String string `json:"string"`
	}{s}
	var res DecodeResult
	if err := c.Call(ctx, "decode", params, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// Invoice creates a BOLT11 invoice.
func (c *Client) Invoice(ctx context.Context, p InvoiceParams) (*InvoiceResult, error) {
	var res InvoiceResult
	if err := c.Call(ctx, "invoice", p, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// Pay pays an invoice with the legacy pay command.
func (c *Client) Pay(ctx context.Context, p PayParams) (*PayResult, error) {
	var res PayResult
	if err := c.Call(ctx, "pay", p, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// Xpay pays an invoice with the xpay command (24.11 and later).
func (c *Client) Xpay(ctx context.Context, p XpayParams) (*PayResult, error) {
	var res PayResult
	if err := c.Call(ctx, "xpay", p, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// Keysend sends a spontaneous payment.
func (c *Client) Keysend(ctx context.Context, p KeysendParams) (*PayResult, error) {
	var res PayResult
	if err := c.Call(ctx, "keysend", p, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// ListInvoices lists invoices, optionally narrowed by label, invoice string
// or payment hash.
func (c *Client) ListInvoices(ctx context.Context, p ListInvoicesParams) ([]Invoice, error) {
	var res struct {
		Invoices []Invoice `json:"invoices"`
	}
	if err := c.Call(ctx, "listinvoices", p, &res); err != nil {
		return nil, err
	}
	return res.Invoices, nil
}

// ListPays lists outgoing payments.
func (c *Client) ListPays(ctx context.Context, p ListPaysParams) ([]Pay, error) {
	var res struct {
		Pays []Pay `json:"pays"`
	}
	if err := c.Call(ctx, "listpays", p, &res); err != nil {
		return nil, err
	}
	return res.Pays, nil
}

// ListPeerChannels lists channels with all peers.
func (c *Client) ListPeerChannels(ctx context.Context) ([]Channel, error) {
	var res struct {
		Channels []Channel `json:"channels"`
	}
	if err := c.Call(ctx, "listpeerchannels", nil, &res); err != nil {
		return nil, err
	}
	return res.Channels, nil
}

// Offer creates a BOLT12 offer.
func (c *Client) Offer(ctx context.Context, p OfferParams) (*OfferResult, error) {
	var res OfferResult
	if err := c.Call(ctx, "offer", p, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// FetchInvoice fetches a BOLT12 invoice for an offer.
func (c *Client) FetchInvoice(ctx context.Context, p FetchInvoiceParams) (*FetchInvoiceResult, error) {
	var res FetchInvoiceResult
	if err := c.Call(ctx, "fetchinvoice", p, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// ListConfigs returns a single config entry, or nil when unset.
func (c *Client) ListConfig(ctx context.Context, name string) (*ConfigValue, error) {
	params := struct {
		Config string `json:"config"`
	}{name}
	var res struct {
		Configs map[string]ConfigValue `json:"configs"`
	}
	if err := c.Call(ctx, "listconfigs", params, &res); err != nil {
		return nil, err
	}
	if v, ok := res.Configs[name]; ok {
		return &v, nil
	}
	return nil, nil
}

// ConfigValue is one entry of `listconfigs`.
type ConfigValue struct {
	ValueStr  *string `json:"value_str,omitempty"`
	ValueInt  *int64  `json:"value_int,omitempty"`
	ValueMsat *Msat   `json:"value_msat,omitempty"`
	Set       *bool   `json:"set,omitempty"`
}

// Datastore writes a datastore entry.
func (c *Client) Datastore(ctx context.Context, p DatastoreParams) (*DatastoreEntry, error) {
	var res DatastoreEntry
	if err := c.Call(ctx, "datastore", p, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// ListDatastore lists entries at or below key.
func (c *Client) ListDatastore(ctx context.Context, key []string) ([]DatastoreEntry, error) {
	params := struct {
		Key []string `json:"key,omitempty"`
	}{key}
	var res struct {
		Datastore []DatastoreEntry `json:"datastore"`
	}
	if err := c.Call(ctx, "listdatastore", params, &res); err != nil {
		return nil, err
	}
	return res.Datastore, nil
}

// DelDatastore removes the entry at key.
func (c *Client) DelDatastore(ctx context.Context, key []string) (*DatastoreEntry, error) {
	params := struct {
		Key []string `json:"key"`
	}{key}
	var res DatastoreEntry
	if err := c.Call(ctx, "deldatastore", params, &res); err != nil {
		return nil, err
	}
	return &res, nil
}
