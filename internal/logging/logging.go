// Package logging builds the zap loggers used across topster.
package logging

import (
	"context"
	"os"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/term"
)

// Config holds logger configuration.
type Config struct {
	Level       string `toml:"level"`
	Encoding    string `toml:"encoding"` // json, console or auto
	Development bool   `toml:"development"`
}

// DefaultConfig returns the default logger configuration.
func DefaultConfig() Config {
	return Config{
		Level:    "warn",
		Encoding: "auto",
	}
}

// Build creates a logger writing to stderr.
func (c Config) Build() (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(c.Level)
	if err != nil {
		level = zapcore.WarnLevel
	}

	var zc zap.Config
	if c.Development {
		zc = zap.NewDevelopmentConfig()
	} else {
		zc = zap.NewProductionConfig()
		zc.EncoderConfig.TimeKey = "timestamp"
		zc.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
		zc.Sampling = nil
	}

	zc.Encoding = c.encoding()
	if zc.Encoding == "console" {
		zc.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	}
	zc.Level = zap.NewAtomicLevelAt(level)
	zc.OutputPaths = []string{"stderr"}
	zc.ErrorOutputPaths = []string{"stderr"}
	zc.DisableStacktrace = !c.Development

	return zc.Build()
}

func (c Config) encoding() string {
	switch c.Encoding {
	case "json", "console":
		return c.Encoding
	}
	if term.IsTerminal(int(os.Stderr.Fd())) {
		return "console"
	}
	return "json"
}

// OrNop returns l, or a no-op logger when l is nil.
func OrNop(l *zap.Logger) *zap.Logger {
	if l == nil {
		return zap.NewNop()
	}
	return l
}

type ctxKey struct{}

// WithRequest tags l with a fresh request_id and stores it in ctx.
func WithRequest(ctx context.Context, l *zap.Logger) (context.Context, *zap.Logger) {
	l = OrNop(l).With(zap.String("request_id", uuid.NewString()))
	return context.WithValue(ctx, ctxKey{}, l), l
}

// FromContext returns the request logger stored by WithRequest, or fallback.
func FromContext(ctx context.Context, fallback *zap.Logger) *zap.Logger {
	if l, ok := ctx.Value(ctxKey{}).(*zap.Logger); ok {
		return l
	}
	return OrNop(fallback)
}
