package log

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"testing"

	"savetrack/internal/core"
)

func TestLoggerAddsComponent(t *testing.T) {
	buf := &bytes.Buffer{}
	logger := NewWithWriter(buf, slog.LevelInfo, ComponentApp).WithComponent(ComponentSync)

	logger.Info("goal adjusted", FieldGoalID, "g1")

	out := buf.String()
	if !strings.Contains(out, "component=goalsync") || !strings.Contains(out, "goal_id=g1") {
		t.Fatalf("unexpected output: %s", out)
	}
	if strings.Count(out, "component=") != 1 {
		t.Fatalf("component must be logged once: %s", out)
	}
}

func TestFromContext(t *testing.T) {
	buf := &bytes.Buffer{}
	ctx := WithContext(context.Background(), NewWithWriter(buf, slog.LevelDebug, ComponentLedger))

	FromContext(ctx).DebugContext(ctx, "hello")
	if buf.Len() == 0 {
		t.Fatal("expected output from context logger")
	}

	if FromContext(context.Background()).Component() != "unknown" {
		t.Fatal("expected fallback logger")
	}
}

func TestParseLevel(t *testing.T) {
	cases := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"WARN":    slog.LevelWarn,
		"error":   slog.LevelError,
		"":        slog.LevelInfo,
		"verbose": slog.LevelInfo,
	}
	for in, want := range cases {
		if got := ParseLevel(in); got != want {
			t.Errorf("ParseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestErrorType(t *testing.T) {
	cases := []struct {
		err  error
		want string
	}{
		{nil, ""},
		{fmt.Errorf("get goal: %w", core.ErrNotFound), ErrorTypeNotFound},
		{core.ErrInvalidAmount, ErrorTypeValidation},
		{core.ErrDuplicateGoal, ErrorTypeConflict},
		{core.ErrUnauthorized, ErrorTypeAuth},
		{core.Unavailable("commit", errors.New("disk I/O error")), ErrorTypeDatabase},
		{core.Unavailable("commit", context.DeadlineExceeded), ErrorTypeTimeout},
		{errors.New("boom"), ErrorTypeInternal},
	}
	for _, tc := range cases {
		if got := ErrorType(tc.err); got != tc.want {
			t.Errorf("ErrorType(%v) = %q, want %q", tc.err, got, tc.want)
		}
	}
}

func TestStructuredLoggerLogError(t *testing.T) {
	buf := &bytes.Buffer{}
	sl := NewStructuredLogger(NewWithWriter(buf, slog.LevelInfo, ComponentDeposit))

	sl.LogError(context.Background(), "deposit failed", core.ErrInvalidAmount, OpDeposit, NewFields().WithOwner("alice"))

	out := buf.String()
	for _, want := range []string{"operation=deposit", "owner_id=alice", "error_type=validation_error"} {
		if !strings.Contains(out, want) {
			t.Fatalf("missing %q in %s", want, out)
		}
	}
}

func TestJSONOutputAndLevelFilter(t *testing.T) {
	buf := &bytes.Buffer{}
	logger := New(Config{Level: slog.LevelWarn, Component: ComponentOutbox, Output: buf, JSON: true})

	logger.Info("dropped")
	logger.WarnContext(context.Background(), "broker slow", FieldEventID, int64(7))

	out := buf.String()
	if strings.Contains(out, "dropped") {
		t.Fatalf("info must be filtered at warn level: %s", out)
	}
	if !strings.Contains(out, `"component":"outbox"`) || !strings.Contains(out, `"msg":"broker slow"`) {
		t.Fatalf("unexpected JSON output: %s", out)
	}
}
