// Package hold talks to the hold-invoice companion plugin over its
// mutually-authenticated TLS websocket. Unary calls are plain JSON-RPC;
// state tracking is a hold.track request followed by hold.state
// notifications for the watched payment hash until a terminal state.
package hold

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// State of a hold invoice.
type State string

const (
	StateUnpaid    State = "unpaid"
	StateAccepted  State = "accepted"
	StatePaid      State = "paid"
	StateCancelled State = "cancelled"
)

// Terminal reports whether no further transitions can follow.
func (s State) Terminal() bool {
	return s == StatePaid || s == StateCancelled
}

// CodeInvoiceNotFound is the companion's error code for an unknown payment
// hash.
const CodeInvoiceNotFound = 2001

// RPCError is an error returned by the companion.
type RPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *RPCError) Error() string {
	return fmt.Sprintf("hold error %d: %s", e.Code, e.Message)
}

// IsNotFound reports whether err is the companion's unknown-hash error.
func IsNotFound(err error) bool {
	var rpcErr *RPCError
	return errors.As(err, &rpcErr) && rpcErr.Code == CodeInvoiceNotFound
}

// Config describes how to reach the companion. The certificate material is
// the companion's own CA plus the client pair it issues alongside.
type Config struct {
	Host       string
	Port       int64
	CACert     []byte
	ClientCert []byte
	ClientKey  []byte
}

// InvoiceRequest creates a hold invoice for an externally supplied payment
// hash.
type InvoiceRequest struct {
	PaymentHash     string  `json:"payment_hash"`
	AmountMsat      uint64  `json:"amount_msat"`
	Description     string  `json:"description,omitempty"`
	DescriptionHash string  `json:"description_hash,omitempty"`
	Expiry          *uint64 `json:"expiry,omitempty"`
}

// InvoiceResponse is the created hold invoice.
type InvoiceResponse struct {
	Invoice string `json:"invoice"`
}

// Invoice is one element of a list response.
type Invoice struct {
	PaymentHash string `json:"payment_hash"`
	State       State  `json:"state"`
	Invoice     string `json:"invoice"`
	AmountMsat  uint64 `json:"amount_msat"`
	CreatedAt   int64  `json:"created_at"`
}

type callResult struct {
	raw json.RawMessage
	err error
}

// Client is a connection to the companion. The socket is dialed on first
// use and redialed after a failure on the next call.
type Client struct {
	cfg     Config
	tlsConf *tls.Config

	writeMu sync.Mutex

	mu      sync.Mutex
	conn    *websocket.Conn
	nextID  uint64
	pending map[uint64]chan callResult
	tracks  map[string]chan State
}

// New prepares a client; it does not connect until the first call.
func New(cfg Config) (*Client, error) {
	pool := x509.NewCertPool()
	if !pool.AppendCertsFromPEM(cfg.CACert) {
		return nil, errors.New("invalid CA certificate")
	}
	cert, err := tls.X509KeyPair(cfg.ClientCert, cfg.ClientKey)
	if err != nil {
		return nil, fmt.Errorf("load client certificate: %w", err)
	}
	return &Client{
		cfg: cfg,
		tlsConf: &tls.Config{
			RootCAs:      pool,
			Certificates: []tls.Certificate{cert},
			// The companion issues its server certificate for "hold".
			ServerName: "hold",
		},
		pending: make(map[uint64]chan callResult),
		tracks:  make(map[string]chan State),
	}, nil
}

// Connect dials the companion if not already connected.
func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ensureConnLocked(ctx)
}

func (c *Client) ensureConnLocked(ctx context.Context) error {
	if c.conn != nil {
		return nil
	}
	dialer := websocket.Dialer{
		HandshakeTimeout: 10 * time.Second,
		TLSClientConfig:  c.tlsConf,
	}
	url := fmt.Sprintf("wss://%s:%d/", c.cfg.Host, c.cfg.Port)
	conn, _, err := dialer.DialContext(ctx, url, nil)
	if err != nil {
		return fmt.Errorf("dial hold companion: %w", err)
	}
	c.conn = conn
	go c.readLoop(conn)
	return nil
}

type wireMsg struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      *uint64         `json:"id,omitempty"`
	Method  string          `json:"method,omitempty"`
	Params  json.RawMessage `json:"params,omitempty"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *RPCError       `json:"error,omitempty"`
}

func (c *Client) call(ctx context.Context, method string, params, result any) error {
	c.mu.Lock()
	if err := c.ensureConnLocked(ctx); err != nil {
		c.mu.Unlock()
		return err
	}
	conn := c.conn
	c.nextID++
	id := c.nextID
	ch := make(chan callResult, 1)
	c.pending[id] = ch
	c.mu.Unlock()

	raw, err := json.Marshal(params)
	if err != nil {
		c.dropPending(id)
		return err
	}
	msg := wireMsg{JSONRPC: "2.0", ID: &id, Method: method, Params: raw}

	c.writeMu.Lock()
	err = conn.WriteJSON(msg)
	c.writeMu.Unlock()
	if err != nil {
		c.dropPending(id)
		return fmt.Errorf("write %s: %w", method, err)
	}

	select {
	case res := <-ch:
		if res.err != nil {
			return res.err
		}
		if result == nil {
			return nil
		}
		return json.Unmarshal(res.raw, result)
	case <-ctx.Done():
		c.dropPending(id)
		return ctx.Err()
	}
}

func (c *Client) dropPending(id uint64) {
	c.mu.Lock()
	delete(c.pending, id)
	c.mu.Unlock()
}

func (c *Client) readLoop(conn *websocket.Conn) {
	for {
		var msg wireMsg
		if err := conn.ReadJSON(&msg); err != nil {
			c.teardown(conn, err)
			return
		}
		switch {
		case msg.ID != nil:
			c.mu.Lock()
			ch, ok := c.pending[*msg.ID]
			if ok {
				delete(c.pending, *msg.ID)
			}
			c.mu.Unlock()
			if !ok {
				continue
			}
			if msg.Error != nil {
				ch <- callResult{err: msg.Error}
			} else {
				ch <- callResult{raw: msg.Result}
			}
		case msg.Method == "hold.state":
			var st struct {
				PaymentHash string `json:"payment_hash"`
				State       State  `json:"state"`
			}
			if err := json.Unmarshal(msg.Params, &st); err != nil {
				continue
			}
			c.mu.Lock()
			ch, ok := c.tracks[st.PaymentHash]
			if ok && st.State.Terminal() {
				delete(c.tracks, st.PaymentHash)
			}
			c.mu.Unlock()
			if !ok {
				continue
			}
			select {
			case ch <- st.State:
			default:
			}
			if st.State.Terminal() {
				close(ch)
			}
		}
	}
}

// teardown fails all in-flight calls and ends all track streams after a
// connection loss. The next call redials.
func (c *Client) teardown(conn *websocket.Conn, err error) {
	conn.Close()
	c.mu.Lock()
	if c.conn != conn {
		c.mu.Unlock()
		return
	}
	c.conn = nil
	pending := c.pending
	tracks := c.tracks
	c.pending = make(map[uint64]chan callResult)
	c.tracks = make(map[string]chan State)
	c.mu.Unlock()

	for _, ch := range pending {
		ch <- callResult{err: fmt.Errorf("hold companion connection lost: %w", err)}
	}
	for _, ch := range tracks {
		close(ch)
	}
}

// Invoice creates a hold invoice.
func (c *Client) Invoice(ctx context.Context, req InvoiceRequest) (*InvoiceResponse, error) {
	var res InvoiceResponse
	if err := c.call(ctx, "hold.invoice", req, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// Cancel releases the held HTLCs of the invoice with the given payment hash.
func (c *Client) Cancel(ctx context.Context, paymentHash string) error {
	params := struct {
		PaymentHash string `json:"payment_hash"`
	}{paymentHash}
	return c.call(ctx, "hold.cancel", params, nil)
}

// Settle claims the held HTLCs with the preimage.
func (c *Client) Settle(ctx context.Context, preimage string) error {
	params := struct {
		Preimage string `json:"preimage"`
	}{preimage}
	return c.call(ctx, "hold.settle", params, nil)
}

// List returns hold invoices, all of them when paymentHash is empty.
func (c *Client) List(ctx context.Context, paymentHash string) ([]Invoice, error) {
	params := struct {
		PaymentHash string `json:"payment_hash,omitempty"`
	}{paymentHash}
	var res struct {
		Invoices []Invoice `json:"invoices"`
	}
	if err := c.call(ctx, "hold.list", params, &res); err != nil {
		return nil, err
	}
	return res.Invoices, nil
}

// Track subscribes to state changes of one hold invoice. The channel closes
// after a terminal state or on connection loss.
func (c *Client) Track(ctx context.Context, paymentHash string) (<-chan State, error) {
	ch := make(chan State, 8)
	c.mu.Lock()
	if _, ok := c.tracks[paymentHash]; ok {
		c.mu.Unlock()
		return nil, fmt.Errorf("already tracking %s", paymentHash)
	}
	c.tracks[paymentHash] = ch
	c.mu.Unlock()

	params := struct {
		PaymentHash string `json:"payment_hash"`
	}{paymentHash}
	if err := c.call(ctx, "hold.track", params, nil); err != nil {
		c.mu.Lock()
		if c.tracks[paymentHash] == ch {
			delete(c.tracks, paymentHash)
		}
		c.mu.Unlock()
		return nil, err
	}
	return ch, nil
}

// Close shuts the connection down.
func (c *Client) Close() error {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		return nil
	}
	return conn.Close()
}
