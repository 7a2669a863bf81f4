package logger

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/dusted-go/logging/prettylog"
)

// LevelLifecycle marks the startup/success banners of a build. It sits above
// INFO so that lifecycle messages survive even when per-layer INFO output is
// filtered out.
const LevelLifecycle = slog.Level(2)

// FooterHandler is an slog.Handler that funnels every record through a
// Logger, so records emitted from engine-internal goroutines interleave
// correctly with footer redraws.
type FooterHandler struct {
	logger *Logger
	level  slog.Leveler
	attrs  []slog.Attr
}

// NewRootLog returns the handler used before any command-specific logger is
// configured.
func NewRootLog(logOpts slog.HandlerOptions) slog.Handler {
	return slog.NewTextHandler(os.Stdout, &logOpts)
}

// NewHandler selects the handler for a build: records go through the footer
// logger when the output is a terminal, otherwise through a pretty-printing
// plain handler backed by the same serialized writer.
func NewHandler(l *Logger, tty bool, logOpts slog.HandlerOptions) slog.Handler {
	if tty {
		return &FooterHandler{logger: l, level: logOpts.Level}
	}
	return prettylog.New(&logOpts, prettylog.WithDestinationWriter(l))
}

func (h *FooterHandler) Enabled(_ context.Context, level slog.Level) bool {
	minLevel := slog.LevelInfo
	if h.level != nil {
		minLevel = h.level.Level()
	}
	return level >= minLevel
}

func (h *FooterHandler) WithGroup(string) slog.Handler {
	// Groups are not used by any of the build components.
	return h
}

func (h *FooterHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &FooterHandler{
		logger: h.logger,
		level:  h.level,
		attrs:  append(append([]slog.Attr{}, h.attrs...), attrs...),
	}
}

func (h *FooterHandler) Handle(_ context.Context, r slog.Record) error {
	buf := make([]byte, 0, 256)
	buf = fmt.Appendf(buf, "%s", r.Message)
	for _, a := range h.attrs {
		buf = appendAttr(buf, a)
	}
	r.Attrs(func(a slog.Attr) bool {
		buf = appendAttr(buf, a)
		return true
	})
	h.logger.Log(string(buf))
	return nil
}

func appendAttr(buf []byte, a slog.Attr) []byte {
	a.Value = a.Value.Resolve()
	if a.Equal(slog.Attr{}) {
		return buf
	}
	switch a.Value.Kind() {
	case slog.KindString:
		buf = fmt.Appendf(buf, " %s=%q", a.Key, a.Value.String())
	case slog.KindTime:
		buf = fmt.Appendf(buf, " %s=%s", a.Key, a.Value.Time().Format(time.RFC3339Nano))
	case slog.KindGroup:
		for _, ga := range a.Value.Group() {
			buf = appendAttr(buf, ga)
		}
	default:
		buf = fmt.Appendf(buf, " %s=%v", a.Key, a.Value)
	}
	return buf
}
