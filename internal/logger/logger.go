package logger

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"

	"github.com/fatih/color"
)

// ConsoleHandler is a slog.Handler that writes colored, single-line
// records to a writer. Levels are colorized so join/leave/relay
// activity is scannable during development.
type ConsoleHandler struct {
	mu       sync.Mutex
	writer   io.Writer
	attrs    []slog.Attr
	logLevel slog.Level
}

func NewConsoleHandler(w io.Writer, level slog.Level) *ConsoleHandler {
	return &ConsoleHandler{writer: w, logLevel: level}
}

func (h *ConsoleHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.logLevel
}

func (h *ConsoleHandler) Handle(_ context.Context, r slog.Record) error {
	level := r.Level.String()

	switch r.Level {
	case slog.LevelDebug:
		level = color.MagentaString(level)
	case slog.LevelInfo:
		level = color.BlueString(level)
	case slog.LevelWarn:
		level = color.YellowString(level)
	case slog.LevelError:
		level = color.RedString(level)
	}

	line := fmt.Sprintf(
		"%s | %-5s | %s",
		color.GreenString(r.Time.Format("2006-01-02T15:04:05")),
		level,
		r.Message,
	)

	for _, attr := range h.attrs {
		line += color.CyanString(fmt.Sprintf(" %s=%v", attr.Key, attr.Value))
	}
	r.Attrs(func(attr slog.Attr) bool {
		line += color.CyanString(fmt.Sprintf(" %s=%v", attr.Key, attr.Value))
		return true
	})

	line += "\n"

	h.mu.Lock()
	defer h.mu.Unlock()
	_, err := io.WriteString(h.writer, line)
	return err
}

func (h *ConsoleHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	newAttrs := make([]slog.Attr, 0, len(h.attrs)+len(attrs))
	newAttrs = append(newAttrs, h.attrs...)
	newAttrs = append(newAttrs, attrs...)

	return &ConsoleHandler{
		writer:   h.writer,
		attrs:    newAttrs,
		logLevel: h.logLevel,
	}
}

func (h *ConsoleHandler) WithGroup(name string) slog.Handler {
	// Groups are not used by this server; attrs stay flat.
	return h
}

// Init installs the console handler as the default slog logger.
// Debug level is enabled outside production.
func Init(environment string) {
	level := slog.LevelDebug
	if environment == "production" {
		level = slog.LevelInfo
	}
	slog.SetDefault(slog.New(NewConsoleHandler(os.Stdout, level)))
}
