package logger

import (
	"fmt"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Options selects level and encoding.
type Options struct {
	Level       string // debug, info, warn, error
	Format      string // json or console
	Development bool
}

// New builds the process logger from the production preset, switching to a
// console encoder with ISO8601 time when asked.
func New(opts Options) (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(opts.Level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", opts.Level, err)
	}

	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(level)
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	cfg.EncoderConfig.EncodeDuration = zapcore.StringDurationEncoder
	switch opts.Format {
	case "", "json":
	case "console":
		cfg.Encoding = "console"
	default:
		return nil, fmt.Errorf("invalid log format %q", opts.Format)
	}
	if opts.Development {
		cfg.Development = true
		cfg.Sampling = nil
	}

	return cfg.Build()
}

// Must is New for process entry points, falling back to a plain production
// logger when the options are invalid.
func Must(opts Options) *zap.Logger {
	log, err := New(opts)
	if err == nil {
		return log
	}
	log, _ = zap.NewProduction()
	log.Warn("Invalid logger options, using defaults", zap.Error(err))
	return log
}
