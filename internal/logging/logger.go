// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package logging provides the structured logger used across the
// tunnel's components. It mirrors the With/Trace/Debug/Info/Warn/
// Error/Crit shape of the teacher's log package, backed directly by
// go.uber.org/zap instead of a private logging module.
package logging

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Logger is the structured logger interface passed to the proxy
// orchestrator and used by the cmd layer.
type Logger interface {
	With(fields ...zap.Field) Logger

	Trace(msg string, fields ...zap.Field)
	Debug(msg string, fields ...zap.Field)
	Info(msg string, fields ...zap.Field)
	Warn(msg string, fields ...zap.Field)
	Error(msg string, fields ...zap.Field)
	Crit(msg string, fields ...zap.Field)

	Sync() error
}

type zapLogger struct {
	z *zap.Logger
}

// New builds a Logger writing JSON to stderr at the given level
// ("debug", "info", "warn", "error"). An empty or unrecognized level
// defaults to "info".
func New(level string) (Logger, error) {
	var lvl zapcore.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		lvl = zapcore.InfoLevel
	}
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(lvl)
	cfg.EncoderConfig.TimeKey = "ts"
	z, err := cfg.Build(zap.AddCallerSkip(1))
	if err != nil {
		return nil, err
	}
	return &zapLogger{z: z}, nil
}

// Nop returns a Logger that discards everything, for tests and
// call sites that haven't been wired to a real sink.
func Nop() Logger {
	return &zapLogger{z: zap.NewNop()}
}

func (l *zapLogger) With(fields ...zap.Field) Logger {
	return &zapLogger{z: l.z.With(fields...)}
}

func (l *zapLogger) Trace(msg string, fields ...zap.Field) { l.z.Debug(msg, fields...) }
func (l *zapLogger) Debug(msg string, fields ...zap.Field) { l.z.Debug(msg, fields...) }
func (l *zapLogger) Info(msg string, fields ...zap.Field)  { l.z.Info(msg, fields...) }
func (l *zapLogger) Warn(msg string, fields ...zap.Field)  { l.z.Warn(msg, fields...) }
func (l *zapLogger) Error(msg string, fields ...zap.Field) { l.z.Error(msg, fields...) }
func (l *zapLogger) Crit(msg string, fields ...zap.Field)  { l.z.Error(msg, fields...) }

func (l *zapLogger) Sync() error { return l.z.Sync() }
