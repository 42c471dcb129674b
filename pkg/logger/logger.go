// Package logger owns the process-wide zap logger and the request-scoped
// fields carried through a context.Context.
//
// Components log through a child of the global logger tagged with their
// name. Fields that belong to one request, such as its id, travel in the
// context and are attached with FromContext:
//
//	ctx = logger.WithRequestID(ctx, id)
//	logger.FromContext(ctx, p.logger).Debug("handle borrowed")
package logger

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Field names shared by every component's log lines.
const (
	FieldPool      = "pool"
	FieldTable     = "table"
	FieldRequestID = "request_id"
)

var (
	mu     sync.RWMutex
	global *zap.Logger
)

type fieldsKey struct{}

// Config selects the level, encoding and destinations of the global logger.
type Config struct {
	Level       string   `yaml:"level" json:"level" toml:"level" mapstructure:"level"`
	Development bool     `yaml:"development" json:"development" toml:"development" mapstructure:"development"`
	Encoding    string   `yaml:"encoding" json:"encoding" toml:"encoding" mapstructure:"encoding"` // json or console
	OutputPaths []string `yaml:"output_paths" json:"output_paths" toml:"output_paths" mapstructure:"output_paths"`
}

// DefaultConfig logs JSON at info level to stdout.
func DefaultConfig() Config {
	return Config{
		Level:    "info",
		Encoding: "json",
	}
}

// Init builds the global logger from cfg. Only the first successful call
// takes effect; later calls are no-ops.
func Init(cfg Config) error {
	mu.Lock()
	defer mu.Unlock()
	if global != nil {
		return nil
	}
	l, err := build(cfg)
	if err != nil {
		return err
	}
	global = l
	return nil
}

func build(cfg Config) (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level: %w", err)
	}

	enc := zap.NewProductionEncoderConfig()
	enc.TimeKey = "timestamp"
	enc.MessageKey = "message"
	enc.EncodeTime = zapcore.ISO8601TimeEncoder
	enc.EncodeDuration = zapcore.StringDurationEncoder
	if cfg.Development {
		enc.EncodeLevel = zapcore.CapitalColorLevelEncoder
	}

	zcfg := zap.Config{
		Level:            zap.NewAtomicLevelAt(level),
		Development:      cfg.Development,
		Encoding:         cfg.Encoding,
		EncoderConfig:    enc,
		OutputPaths:      cfg.OutputPaths,
		ErrorOutputPaths: []string{"stderr"},
	}
	if zcfg.Encoding == "" {
		zcfg.Encoding = "json"
	}
	if len(zcfg.OutputPaths) == 0 {
		zcfg.OutputPaths = []string{"stdout"}
	}

	var opts []zap.Option
	if cfg.Development {
		opts = append(opts, zap.AddStacktrace(zapcore.ErrorLevel))
	}
	l, err := zcfg.Build(opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to build logger: %w", err)
	}
	return l, nil
}

// Get returns the global logger, initializing it with DefaultConfig on
// first use.
func Get() *zap.Logger {
	mu.RLock()
	l := global
	mu.RUnlock()
	if l != nil {
		return l
	}
	if err := Init(DefaultConfig()); err != nil {
		return zap.NewNop()
	}
	mu.RLock()
	defer mu.RUnlock()
	return global
}

// With returns a child of the global logger.
func With(fields ...zap.Field) *zap.Logger {
	return Get().With(fields...)
}

// Sync flushes the global logger.
func Sync() error {
	mu.RLock()
	defer mu.RUnlock()
	if global == nil {
		return nil
	}
	return global.Sync()
}

// ContextWith returns a copy of ctx that also carries fields.
func ContextWith(ctx context.Context, fields ...zap.Field) context.Context {
	prev, _ := ctx.Value(fieldsKey{}).([]zap.Field)
	merged := make([]zap.Field, 0, len(prev)+len(fields))
	merged = append(merged, prev...)
	merged = append(merged, fields...)
	return context.WithValue(ctx, fieldsKey{}, merged)
}

// WithRequestID tags ctx with a request id.
func WithRequestID(ctx context.Context, id string) context.Context {
	return ContextWith(ctx, zap.String(FieldRequestID, id))
}

// FromContext returns base with the fields carried by ctx attached.
func FromContext(ctx context.Context, base *zap.Logger) *zap.Logger {
	if base == nil {
		base = Get()
	}
	if ctx == nil {
		return base
	}
	fields, _ := ctx.Value(fieldsKey{}).([]zap.Field)
	if len(fields) == 0 {
		return base
	}
	return base.With(fields...)
}

// WithContext is FromContext over the global logger.
func WithContext(ctx context.Context) *zap.Logger {
	return FromContext(ctx, Get())
}
