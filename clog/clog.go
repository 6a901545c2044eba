// Package clog is the severity-tagged log sink shared by every cyclone
// package. It mirrors cyclone's original L_TRACE..L_FATAL levels on top
// of zap, so the core never talks to a concrete logging backend directly.
package clog

import (
	"os"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Level is one of the six severities the core may log at.
type Level int8

const (
	LevelTrace Level = iota - 2
	LevelDebug
	LevelInfo
	LevelWarn
	LevelError
	LevelFatal
)

func (l Level) zapLevel() zapcore.Level {
	if l < LevelDebug {
		return zapcore.DebugLevel - 1
	}
	switch l {
	case LevelDebug:
		return zapcore.DebugLevel
	case LevelInfo:
		return zapcore.InfoLevel
	case LevelWarn:
		return zapcore.WarnLevel
	case LevelError:
		return zapcore.ErrorLevel
	default:
		return zapcore.FatalLevel
	}
}

func traceLevelEncoder(lvl zapcore.Level, enc zapcore.PrimitiveArrayEncoder) {
	if lvl < zapcore.DebugLevel {
		enc.AppendString("TRACE")
		return
	}
	zapcore.CapitalLevelEncoder(lvl, enc)
}

var (
	mu        sync.RWMutex
	base      *zap.Logger
	threshold = zap.NewAtomicLevelAt(zapcore.InfoLevel)
)

func defaultCore() zapcore.Core {
	return NewCore(zapcore.AddSync(os.Stderr))
}

// NewCore builds a core using the same encoder and level threshold as
// the default stderr sink, but writing to ws instead — for redirecting
// output to a log file via SetSink.
func NewCore(ws zapcore.WriteSyncer) zapcore.Core {
	cfg := zap.NewDevelopmentEncoderConfig()
	cfg.EncodeLevel = traceLevelEncoder
	enc := zapcore.NewConsoleEncoder(cfg)
	return zapcore.NewCore(enc, zapcore.Lock(ws), threshold)
}

func init() {
	base = zap.New(defaultCore(), zap.AddCallerSkip(1))
}

// SetSink swaps the underlying zap core, e.g. to redirect a library
// embedder's logs to a file or to silence them entirely (io.Discard).
func SetSink(core zapcore.Core) {
	mu.Lock()
	defer mu.Unlock()
	base = zap.New(core, zap.AddCallerSkip(1))
}

// SetThreshold sets the global level floor; messages below it are
// dropped before formatting, matching cyclone's setLogThreshold.
func SetThreshold(l Level) {
	threshold.SetLevel(l.zapLevel())
}

func logger() *zap.Logger {
	mu.RLock()
	defer mu.RUnlock()
	return base
}

// Trace logs at the finest severity, synthesized one level below zap's
// own Debug since zap has no native Trace level.
func Trace(msg string, fields ...zap.Field) {
	if ce := logger().Check(zapcore.DebugLevel-1, msg); ce != nil {
		ce.Write(fields...)
	}
}

func Debug(msg string, fields ...zap.Field) { logger().Debug(msg, fields...) }
func Info(msg string, fields ...zap.Field)  { logger().Info(msg, fields...) }
func Warn(msg string, fields ...zap.Field)  { logger().Warn(msg, fields...) }
func Error(msg string, fields ...zap.Field) { logger().Error(msg, fields...) }

// Fatal logs at the highest severity and aborts the process, mirroring
// cyclone's L_FATAL contract for resource-exhaustion and misuse faults.
func Fatal(msg string, fields ...zap.Field) { logger().Fatal(msg, fields...) }
