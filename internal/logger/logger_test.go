package logger

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
	gormlogger "gorm.io/gorm/logger"
)

func observed() (*Logger, *observer.ObservedLogs) {
	core, logs := observer.New(zapcore.DebugLevel)
	return &Logger{SugaredLogger: zap.New(core).Sugar()}, logs
}

func TestLoggerLevelsAndWith(t *testing.T) {
	log, logs := observed()
	child := log.With("service", "SearchService")

	child.Debug("debug", "k", 1)
	child.Info("info")
	child.Warn("warn")
	log.Error("error", "error", "boom")

	entries := logs.All()
	want := []zapcore.Level{zapcore.DebugLevel, zapcore.InfoLevel, zapcore.WarnLevel, zapcore.ErrorLevel}
	if len(entries) != len(want) {
		t.Fatalf("entries: want=%d got=%d", len(want), len(entries))
	}
	for i, lvl := range want {
		if entries[i].Level != lvl {
			t.Fatalf("entry %d level: want=%s got=%s", i, lvl, entries[i].Level)
		}
	}
	if got := entries[0].ContextMap()["service"]; got != "SearchService" {
		t.Fatalf("With field: want=SearchService got=%v", got)
	}
	if got := entries[0].ContextMap()["k"]; got != int64(1) {
		t.Fatalf("key/value field: want=1 got=%v (%T)", got, got)
	}
	if _, ok := entries[3].ContextMap()["service"]; ok {
		t.Fatal("parent logger should not carry the child's fields")
	}
}

func TestGormLoggerTrace(t *testing.T) {
	log, logs := observed()
	g := NewGormLogger(log, 100*time.Millisecond)
	ctx := context.Background()
	stmt := func() (string, int64) { return "SELECT 1", 1 }

	g.Trace(ctx, time.Now(), stmt, nil)
	g.Trace(ctx, time.Now().Add(-time.Second), stmt, nil)
	g.Trace(ctx, time.Now(), stmt, errors.New("syntax error"))
	g.Trace(ctx, time.Now(), stmt, gormlogger.ErrRecordNotFound)

	entries := logs.All()
	want := []zapcore.Level{zapcore.DebugLevel, zapcore.WarnLevel, zapcore.ErrorLevel, zapcore.DebugLevel}
	if len(entries) != len(want) {
		t.Fatalf("entries: want=%d got=%d", len(want), len(entries))
	}
	for i, lvl := range want {
		if entries[i].Level != lvl {
			t.Fatalf("entry %d level: want=%s got=%s", i, lvl, entries[i].Level)
		}
		if entries[i].ContextMap()["component"] != "gorm" {
			t.Fatalf("entry %d: missing component field", i)
		}
	}
}
