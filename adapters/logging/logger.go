package logging

import (
	"fmt"
	"strings"

	"github.com/ThreeDotsLabs/watermill"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// New builds a JSON production logger at the given level
func New(level string) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	cfg.Encoding = "json"

	var lvl zapcore.Level
	if err := lvl.UnmarshalText([]byte(strings.ToLower(level))); err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", level, err)
	}
	cfg.Level = zap.NewAtomicLevelAt(lvl)

	return cfg.Build()
}

// WatermillLogger routes watermill logs into zap
type WatermillLogger struct {
	log *zap.Logger
}

// NewWatermillLogger wraps log as a watermill.LoggerAdapter
func NewWatermillLogger(log *zap.Logger) watermill.LoggerAdapter {
	return &WatermillLogger{log: log}
}

func (w *WatermillLogger) Error(msg string, err error, fields watermill.LogFields) {
	w.log.Error(msg, append(zapFields(fields), zap.Error(err))...)
}

func (w *WatermillLogger) Info(msg string, fields watermill.LogFields) {
	w.log.Info(msg, zapFields(fields)...)
}

func (w *WatermillLogger) Debug(msg string, fields watermill.LogFields) {
	w.log.Debug(msg, zapFields(fields)...)
}

// Trace is folded into debug, zap has no lower level
func (w *WatermillLogger) Trace(msg string, fields watermill.LogFields) {
	w.log.Debug(msg, zapFields(fields)...)
}

func (w *WatermillLogger) With(fields watermill.LogFields) watermill.LoggerAdapter {
	return &WatermillLogger{log: w.log.With(zapFields(fields)...)}
}

func zapFields(fields watermill.LogFields) []zap.Field {
	out := make([]zap.Field, 0, len(fields))
	for k, v := range fields {
		out = append(out, zap.Any(k, v))
	}
	return out
}
