package logger

import (
	"context"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestNewLogger(t *testing.T) {
	for _, env := range []string{"prod", "local", "dev"} {
		l, err := NewLogger(env)
		if err != nil {
			t.Fatalf("NewLogger(%q): %v", env, err)
		}
		if l == nil {
			t.Fatalf("NewLogger(%q) returned nil", env)
		}
	}
}

func TestNewLoggerLevelOverride(t *testing.T) {
	l, err := NewLogger("prod", "warn")
	if err != nil {
		t.Fatalf("NewLogger: %v", err)
	}
	if l.Core().Enabled(zapcore.InfoLevel) {
		t.Error("info should be disabled at warn level")
	}
	if !l.Core().Enabled(zapcore.WarnLevel) {
		t.Error("warn should be enabled")
	}
}

func TestNewLoggerErrors(t *testing.T) {
	if _, err := NewLogger("staging"); err == nil {
		t.Error("expected error for unknown environment")
	}
	if _, err := NewLogger("local", "loud"); err == nil {
		t.Error("expected error for unknown level")
	}
}

func TestFromContextFallback(t *testing.T) {
	if FromContext(context.Background(), nil) == nil {
		t.Fatal("FromContext should never return nil")
	}

	fallback := zap.NewExample()
	if FromContext(context.Background(), fallback) != fallback {
		t.Error("empty context should yield the fallback")
	}

	l := zap.NewExample()
	ctx := ContextWithLogger(context.Background(), l)
	if FromContext(ctx, fallback) != l {
		t.Error("context logger should win over the fallback")
	}
}

func TestWithFieldsAccumulates(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	base := zap.New(core)

	ctx := WithFields(context.Background(), base, zap.Float64("percentage", 50))
	ctx = WithFields(ctx, nil, zap.Int("trial", 2))
	FromContext(ctx, nil).Info("trial finished")

	entries := logs.All()
	if len(entries) != 1 {
		t.Fatalf("got %d entries, want 1", len(entries))
	}
	fields := entries[0].ContextMap()
	if fields["percentage"] != 50.0 || fields["trial"] != int64(2) {
		t.Errorf("fields = %v", fields)
	}
}
