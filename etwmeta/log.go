package etwmeta

import (
	"context"
	"log/slog"
	"os"
	"strconv"
)

const (
	// Custom levels
	LogLevelTrace = slog.Level(-8)
)

// SetLoggerHandler sets a custom logger for the parsers
func SetLoggerHandler(h slog.Handler) {
	if h == nil {
		return // Keep default
	}
	slog.SetDefault(slog.New(h))
}

func SetLoggerLevel(level slog.Level) {
	slog.SetLogLoggerLevel(level)
}

func SetDebugLevel(addSource bool) {
	h := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level:     slog.LevelDebug,
		AddSource: addSource,
	})
	slog.SetDefault(slog.New(h))
}

// Logs trace messages, level = -8
func LogTrace(msg string, args ...any) {
	slog.Default().Log(context.Background(), LogLevelTrace, msg, args...)
}

// https://pkg.go.dev/log/slog@go1.23.4#hdr-Performance_considerations
type lazyModelSummary struct {
	m *Manifest
}

func (l lazyModelSummary) LogValue() slog.Value {
	// Called only if log is enabled
	return slog.GroupValue(
		slog.String("provider", l.m.ProviderName),
		slog.String("guid", l.m.ProviderGUID.String()),
		slog.String("counts", strconv.Itoa(len(l.m.Events))+" events, "+
			strconv.Itoa(len(l.m.Templates))+" templates, "+
			strconv.Itoa(len(l.m.Keywords))+" keywords"),
	)
}
