package logger

import (
	"context"
	"encoding/json"
	"io"
	"log"
	"os"

	"device-ingest/configs"

	"github.com/fatih/color"
	"golang.org/x/exp/slog"
)

// New builds the application logger for env. local gets colored text,
// dev gets JSON at debug level, anything else JSON at info level.
func New(env string) *slog.Logger {
	switch env {
	case configs.EnvLocal:
		return setupPrettySlog()
	case configs.EnvDev:
		return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}))
	default:
		return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	}
}

func setupPrettySlog() *slog.Logger {
	return slog.New(newPrettyHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}))
}

type prettyHandler struct {
	slog.Handler
	l     *log.Logger
	attrs []slog.Attr
}

func newPrettyHandler(out io.Writer, opts *slog.HandlerOptions) *prettyHandler {
	return &prettyHandler{
		Handler: slog.NewJSONHandler(out, opts),
		l:       log.New(out, "", 0),
	}
}

func (h *prettyHandler) Handle(_ context.Context, r slog.Record) error {
	level := r.Level.String() + ":"
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

	fields := make(map[string]any, r.NumAttrs()+len(h.attrs))
	for _, a := range h.attrs {
		fields[a.Key] = a.Value.Any()
	}
	r.Attrs(func(a slog.Attr) bool {
		v := a.Value.Any()
		if err, ok := v.(error); ok {
			v = err.Error()
		}
		fields[a.Key] = v
		return true
	})

	var extra string
	if len(fields) > 0 {
		b, err := json.MarshalIndent(fields, "", "  ")
		if err != nil {
			return err
		}
		extra = string(b)
	}

	h.l.Println(r.Time.Format("[15:04:05.000]"), level, color.CyanString(r.Message), color.WhiteString(extra))
	return nil
}

func (h *prettyHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	merged := make([]slog.Attr, 0, len(h.attrs)+len(attrs))
	merged = append(merged, h.attrs...)
	merged = append(merged, attrs...)
	return &prettyHandler{Handler: h.Handler.WithAttrs(attrs), l: h.l, attrs: merged}
}

func (h *prettyHandler) WithGroup(name string) slog.Handler {
	return &prettyHandler{Handler: h.Handler.WithGroup(name), l: h.l, attrs: h.attrs}
}
