package logger

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	gormlogger "gorm.io/gorm/logger"
)

// Logger wraps a zap SugaredLogger with key/value helpers
type Logger struct {
	SugaredLogger *zap.SugaredLogger
}

// New builds a logger for the given environment ("prod" gives JSON output)
func New(mode, level string) (*Logger, error) {
	var cfg zap.Config
	switch strings.ToLower(mode) {
	case "prod", "production":
		cfg = zap.NewProductionConfig()
	default:
		cfg = zap.NewDevelopmentConfig()
	}
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		lvl = zapcore.InfoLevel
	}
	cfg.Level = zap.NewAtomicLevelAt(lvl)

	zapLogger, err := cfg.Build()
	if err != nil {
		return nil, err
	}
	return &Logger{SugaredLogger: zapLogger.Sugar()}, nil
}

// Nop returns a logger that discards everything
func Nop() *Logger {
	return &Logger{SugaredLogger: zap.NewNop().Sugar()}
}

// Sync flushes buffered log entries
func (l *Logger) Sync() {
	_ = l.SugaredLogger.Sync()
}

// Debug logs a message with key/value pairs at debug level
func (l *Logger) Debug(msg string, keysAndValues ...interface{}) {
	l.SugaredLogger.Debugw(msg, keysAndValues...)
}

// Info logs a message with key/value pairs at info level
func (l *Logger) Info(msg string, keysAndValues ...interface{}) {
	l.SugaredLogger.Infow(msg, keysAndValues...)
}

// Warn logs a message with key/value pairs at warn level
func (l *Logger) Warn(msg string, keysAndValues ...interface{}) {
	l.SugaredLogger.Warnw(msg, keysAndValues...)
}

// Error logs a message with key/value pairs at error level
func (l *Logger) Error(msg string, keysAndValues ...interface{}) {
	l.SugaredLogger.Errorw(msg, keysAndValues...)
}

// Fatal logs a message with key/value pairs then exits the process
func (l *Logger) Fatal(msg string, keysAndValues ...interface{}) {
	l.SugaredLogger.Fatalw(msg, keysAndValues...)
}

// With returns a child logger that adds the key/value pairs to every entry
func (l *Logger) With(keysAndValues ...interface{}) *Logger {
	return &Logger{SugaredLogger: l.SugaredLogger.With(keysAndValues...)}
}

// GormLogger routes gorm's SQL logging through zap. Slow queries are
// logged at warn, failures at error, everything else at debug.
type GormLogger struct {
	log           *Logger
	SlowThreshold time.Duration
}

// NewGormLogger creates a gorm logger adapter
func NewGormLogger(log *Logger, slowThreshold time.Duration) *GormLogger {
	return &GormLogger{log: log.With("component", "gorm"), SlowThreshold: slowThreshold}
}

// LogMode keeps the zap level as the only level control
func (g *GormLogger) LogMode(gormlogger.LogLevel) gormlogger.Interface {
	return g
}

// Info logs gorm info messages
func (g *GormLogger) Info(_ context.Context, msg string, data ...interface{}) {
	g.log.SugaredLogger.Infof(msg, data...)
}

// Warn logs gorm warnings
func (g *GormLogger) Warn(_ context.Context, msg string, data ...interface{}) {
	g.log.SugaredLogger.Warnf(msg, data...)
}

// Error logs gorm errors
func (g *GormLogger) Error(_ context.Context, msg string, data ...interface{}) {
	g.log.SugaredLogger.Errorf(msg, data...)
}

// Trace logs one executed statement with its duration and row count
func (g *GormLogger) Trace(_ context.Context, begin time.Time, fc func() (string, int64), err error) {
	elapsed := time.Since(begin)
	sql, rows := fc()

	switch {
	case err != nil && !errors.Is(err, gormlogger.ErrRecordNotFound):
		g.log.Error("gorm query failed", "sql", sql, "rows", rows, "elapsed", elapsed, "error", err)
	case g.SlowThreshold > 0 && elapsed > g.SlowThreshold:
		g.log.Warn("gorm slow query", "sql", sql, "rows", rows, "elapsed", elapsed)
	default:
		g.log.Debug("gorm query", "sql", sql, "rows", rows, "elapsed", elapsed)
	}
}
