package main

import (
	"context"
	"log/slog"
	"os"
	"strings"

	"cln-nwc/internal/cln"
)

// InitLogger routes the default slog logger into lightningd's log via
// plugin log notifications, so plugin lines appear in the node's own log
// with its levels. Log level is controlled by LOG_LEVEL env var
// (debug/info/warn/error).
func InitLogger(p *cln.Plugin) {
	levelStr := strings.ToLower(os.Getenv("LOG_LEVEL"))
	var level slog.Level
	switch levelStr {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	slog.SetDefault(slog.New(&clnLogHandler{plugin: p, level: level}))
}

// clnLogHandler formats records as "message key=value ..." and forwards
// them as log notifications. lightningd has no debug/info/warn/error split;
// warnings map to "unusual" and errors to "broken".
type clnLogHandler struct {
	plugin *cln.Plugin
	level  slog.Level
	attrs  []slog.Attr
	groups []string
}

func (h *clnLogHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level
}

func (h *clnLogHandler) Handle(_ context.Context, r slog.Record) error {
	var sb strings.Builder
	sb.WriteString(r.Message)
	for _, a := range h.attrs {
		h.appendAttr(&sb, a)
	}
	r.Attrs(func(a slog.Attr) bool {
		h.appendAttr(&sb, a)
		return true
	})
	h.plugin.Log(clnLogLevel(r.Level), sb.String())
	return nil
}

func (h *clnLogHandler) appendAttr(sb *strings.Builder, a slog.Attr) {
	if a.Equal(slog.Attr{}) {
		return
	}
	sb.WriteByte(' ')
	for _, g := range h.groups {
		sb.WriteString(g)
		sb.WriteByte('.')
	}
	sb.WriteString(a.Key)
	sb.WriteByte('=')
	sb.WriteString(a.Value.String())
}

func (h *clnLogHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	next := *h
	next.attrs = append(append([]slog.Attr(nil), h.attrs...), attrs...)
	return &next
}

func (h *clnLogHandler) WithGroup(name string) slog.Handler {
	next := *h
	next.groups = append(append([]string(nil), h.groups...), name)
	return &next
}

func clnLogLevel(level slog.Level) string {
	switch {
	case level < slog.LevelInfo:
		return "debug"
	case level < slog.LevelWarn:
		return "info"
	case level < slog.LevelError:
		return "unusual"
	default:
		return "broken"
	}
}
