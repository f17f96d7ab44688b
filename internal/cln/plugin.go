package cln

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"sync"
)

// MethodHandler serves one custom RPC method. The returned value is
// marshaled as the JSON-RPC result; a non-nil error becomes a JSON-RPC
// error with the handler's message.
type MethodHandler func(ctx context.Context, params json.RawMessage) (any, error)

// NotificationHandler consumes one node notification. Notifications carry no
// response.
type NotificationHandler func(ctx context.Context, params json.RawMessage)

// Option declares a plugin option for the getmanifest reply.
type Option struct {
	Name        string
	Type        string // "string", "bool", "int" or "flag"
	Default     any
	Description string
	Multi       bool
}

// Configuration is the node-side configuration delivered with init.
type Configuration struct {
	LightningDir string `json:"lightning-dir"`
	RpcFile      string `json:"rpc-file"`
	Network      string `json:"network"`
}

// RpcPath returns the full path of the node's RPC socket.
func (c Configuration) RpcPath() string {
	return filepath.Join(c.LightningDir, c.RpcFile)
}

type rpcMethod struct {
	name        string
	usage       string
	description string
	handler     MethodHandler
}

// Plugin hosts a lightningd plugin over an in/out stream pair (normally
// stdin/stdout). Register options, methods and subscriptions before calling
// Run; lightningd sends getmanifest first, then init, then traffic.
type Plugin struct {
	in  io.Reader
	out io.Writer

	writeMu sync.Mutex

	options []Option
	methods map[string]*rpcMethod
	order   []string
	subs    map[string]NotificationHandler
	dynamic bool

	onInit  func(ctx context.Context, p *Plugin) error
	onStart func(ctx context.Context, p *Plugin)

	confMu sync.RWMutex
	conf   Configuration
	values map[string]any
}

// NewPlugin returns a host reading requests from in and writing replies to
// out.
func NewPlugin(in io.Reader, out io.Writer) *Plugin {
	return &Plugin{
		in:      in,
		out:     out,
		methods: make(map[string]*rpcMethod),
		subs:    make(map[string]NotificationHandler),
		dynamic: true,
	}
}

// AddOption declares an option.
func (p *Plugin) AddOption(opt Option) {
	p.options = append(p.options, opt)
}

// AddMethod registers a custom RPC method.
func (p *Plugin) AddMethod(name, usage, description string, h MethodHandler) {
	p.methods[name] = &rpcMethod{name: name, usage: usage, description: description, handler: h}
	p.order = append(p.order, name)
}

// AddSubscription registers a handler for a node notification topic.
func (p *Plugin) AddSubscription(topic string, h NotificationHandler) {
	p.subs[topic] = h
}

// SetDynamic controls whether the plugin may be started and stopped at
// runtime. Defaults to true.
func (p *Plugin) SetDynamic(dynamic bool) {
	p.dynamic = dynamic
}

// OnInit installs the configure hook, called when init arrives and before it
// is answered. Returning an error disables the plugin with that message.
func (p *Plugin) OnInit(fn func(ctx context.Context, p *Plugin) error) {
	p.onInit = fn
}

// OnStart installs the start hook, launched in its own goroutine right after
// the init reply is written.
func (p *Plugin) OnStart(fn func(ctx context.Context, p *Plugin)) {
	p.onStart = fn
}

// Configuration returns the init-time node configuration.
func (p *Plugin) Configuration() Configuration {
	p.confMu.RLock()
	defer p.confMu.RUnlock()
	return p.conf
}

// OptionString returns a string option value, or its declared default.
func (p *Plugin) OptionString(name string) string {
	p.confMu.RLock()
	defer p.confMu.RUnlock()
	if v, ok := p.values[name].(string); ok {
		return v
	}
	return ""
}

// OptionBool returns a bool option value, or its declared default.
func (p *Plugin) OptionBool(name string) bool {
	p.confMu.RLock()
	defer p.confMu.RUnlock()
	if v, ok := p.values[name].(bool); ok {
		return v
	}
	return false
}

// OptionStringArray returns all values of a multi string option.
func (p *Plugin) OptionStringArray(name string) []string {
	p.confMu.RLock()
	defer p.confMu.RUnlock()
	if v, ok := p.values[name].([]string); ok {
		return v
	}
	return nil
}

// Log emits a log notification, routed into the node's own log. Level is one
// of "debug", "info", "unusual" or "broken".
func (p *Plugin) Log(level, message string) {
	p.notify("log", map[string]string{"level": level, "message": message})
}

type wireRequest struct {
	ID     json.RawMessage `json:"id"`
	Method string          `json:"method"`
	Params json.RawMessage `json:"params"`
}

// Run serves the plugin protocol until in is closed.
func (p *Plugin) Run(ctx context.Context) error {
	dec := json.NewDecoder(p.in)
	for {
		var req wireRequest
		if err := dec.Decode(&req); err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return fmt.Errorf("read plugin request: %w", err)
		}
		switch {
		case req.Method == "getmanifest":
			p.respond(req.ID, p.manifest())
		case req.Method == "init":
			p.handleInit(ctx, req)
		case len(req.ID) == 0:
			if h, ok := p.subs[req.Method]; ok {
				go h(ctx, req.Params)
			}
		default:
			m, ok := p.methods[req.Method]
			if !ok {
				p.respondError(req.ID, -32601, fmt.Sprintf("unknown method %q", req.Method))
				continue
			}
			go func(req wireRequest) {
				res, err := m.handler(ctx, req.Params)
				if err != nil {
					p.respondError(req.ID, -32600, err.Error())
					return
				}
				p.respond(req.ID, res)
			}(req)
		}
	}
}

func (p *Plugin) manifest() map[string]any {
	opts := make([]map[string]any, 0, len(p.options))
	for _, o := range p.options {
		m := map[string]any{
			"name":        o.Name,
			"type":        o.Type,
			"default":     o.Default,
			"description": o.Description,
		}
		if o.Multi {
			m["multi"] = true
		}
		opts = append(opts, m)
	}
	methods := make([]map[string]string, 0, len(p.order))
	for _, name := range p.order {
		m := p.methods[name]
		methods = append(methods, map[string]string{
			"name":        m.name,
			"usage":       m.usage,
			"description": m.description,
		})
	}
	subs := make([]string, 0, len(p.subs))
	for topic := range p.subs {
		subs = append(subs, topic)
	}
	return map[string]any{
		"options":       opts,
		"rpcmethods":    methods,
		"subscriptions": subs,
		"dynamic":       p.dynamic,
		"nonnumericids": true,
	}
}

func (p *Plugin) handleInit(ctx context.Context, req wireRequest) {
	var init struct {
		Options       map[string]json.RawMessage `json:"options"`
		Configuration Configuration              `json:"configuration"`
	}
	if err := json.Unmarshal(req.Params, &init); err != nil {
		p.respondError(req.ID, -32602, fmt.Sprintf("malformed init: %v", err))
		return
	}

	values := make(map[string]any, len(p.options))
	for _, o := range p.options {
		raw, ok := init.Options[o.Name]
		if !ok {
			if o.Default != nil {
				values[o.Name] = o.Default
			}
			continue
		}
		v, err := parseOptionValue(o, raw)
		if err != nil {
			p.respond(req.ID, map[string]any{"disable": fmt.Sprintf("option %s: %v", o.Name, err)})
			return
		}
		values[o.Name] = v
	}

	p.confMu.Lock()
	p.conf = init.Configuration
	p.values = values
	p.confMu.Unlock()

	if p.onInit != nil {
		if err := p.onInit(ctx, p); err != nil {
			p.respond(req.ID, map[string]any{"disable": err.Error()})
			return
		}
	}
	p.respond(req.ID, struct{}{})
	if p.onStart != nil {
		go p.onStart(ctx, p)
	}
}

func parseOptionValue(o Option, raw json.RawMessage) (any, error) {
	switch {
	case o.Multi:
		var vs []string
		if err := json.Unmarshal(raw, &vs); err != nil {
			// A multi option set once arrives as a bare string.
			var v string
			if err := json.Unmarshal(raw, &v); err != nil {
				return nil, err
			}
			vs = []string{v}
		}
		return vs, nil
	case o.Type == "bool" || o.Type == "flag":
		var v bool
		if err := json.Unmarshal(raw, &v); err != nil {
			return nil, err
		}
		return v, nil
	case o.Type == "int":
		var v int64
		if err := json.Unmarshal(raw, &v); err != nil {
			return nil, err
		}
		return v, nil
	default:
		var v string
		if err := json.Unmarshal(raw, &v); err != nil {
			return nil, err
		}
		return v, nil
	}
}

func (p *Plugin) respond(id json.RawMessage, result any) {
	p.write(map[string]any{"jsonrpc": "2.0", "id": id, "result": result})
}

func (p *Plugin) respondError(id json.RawMessage, code int, message string) {
	p.write(map[string]any{
		"jsonrpc": "2.0",
		"id":      id,
		"error":   map[string]any{"code": code, "message": message},
	})
}

func (p *Plugin) notify(method string, params any) {
	p.write(map[string]any{"jsonrpc": "2.0", "method": method, "params": params})
}

func (p *Plugin) write(msg any) {
	buf, err := json.Marshal(msg)
	if err != nil {
		return
	}
	p.writeMu.Lock()
	defer p.writeMu.Unlock()
	p.out.Write(append(buf, '\n', '\n'))
}
