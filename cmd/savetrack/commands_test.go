package main

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"

	"savetrack/internal/amqp"
	"savetrack/internal/core"
	"savetrack/internal/goalsync"
	"savetrack/internal/log"
	"savetrack/internal/services"
	"savetrack/internal/store/memory"
)

func newTestApp(out *bytes.Buffer) *app {
	logger := log.NewWithWriter(io.Discard, slog.LevelError, "test")
	st := memory.New()
	engine := goalsync.NewEngine(goalsync.WithLogger(logger))
	return &app{
		ledger:  services.NewLedgerService(st, engine, logger),
		goals:   services.NewGoalService(st, logger),
		deposit: services.NewDepositService(st, engine, logger),
		owner:   "alice",
		out:     out,
	}
}

func mustRun(t *testing.T, a *app, args ...string) {
	t.Helper()
	if err := a.run(context.Background(), args[0], args[1:]); err != nil {
		t.Fatalf("%v: %v", args, err)
	}
}

func TestCommandsVacationFlow(t *testing.T) {
	var out bytes.Buffer
	a := newTestApp(&out)
	ctx := context.Background()

	mustRun(t, a, "goal-add", "-name", "Vacation", "-target", "1000", "-deadline", "2025-08-01")
	mustRun(t, a, "record", "-kind", "income", "-category", "vacation", "-amount", "400")
	mustRun(t, a, "record", "-kind", "income", "-category", "Vacation", "-amount", "700,00")
	mustRun(t, a, "record", "-category", "Food", "-amount", "25.5", "-notes", "lunch")

	goals, err := a.goals.ListGoals(ctx, "alice")
	if err != nil || len(goals) != 1 {
		t.Fatalf("goals: %+v %v", goals, err)
	}
	if goals[0].Current.Cents != 110000 || goals[0].Status != core.Completed {
		t.Fatalf("unexpected goal %+v", goals[0])
	}

	out.Reset()
	mustRun(t, a, "goals")
	for _, want := range []string{"Vacation", "1100.00", "1000.00", "2025-08-01", "Completed"} {
		if !strings.Contains(out.String(), want) {
			t.Errorf("goals output missing %q:\n%s", want, out.String())
		}
	}

	out.Reset()
	mustRun(t, a, "summary")
	for _, want := range []string{"1100.00", "25.50", "1074.50", "EXPENSE BY CATEGORY", "Food", "DATE"} {
		if !strings.Contains(out.String(), want) {
			t.Errorf("summary output missing %q:\n%s", want, out.String())
		}
	}
}

func TestListSearch(t *testing.T) {
	var out bytes.Buffer
	a := newTestApp(&out)

	mustRun(t, a, "record", "-category", "Food", "-amount", "12", "-notes", "Lunch with Bob")
	mustRun(t, a, "record", "-category", "Transport", "-amount", "3", "-notes", "bus")
	mustRun(t, a, "record", "-category", "Seafood", "-amount", "30")

	out.Reset()
	mustRun(t, a, "list", "-search", "food")
	if !strings.Contains(out.String(), "Food") || !strings.Contains(out.String(), "Seafood") || strings.Contains(out.String(), "Transport") {
		t.Fatalf("search by category:\n%s", out.String())
	}

	out.Reset()
	mustRun(t, a, "list", "-search", "BOB")
	if !strings.Contains(out.String(), "Lunch with Bob") || strings.Contains(out.String(), "Seafood") {
		t.Fatalf("search by notes:\n%s", out.String())
	}

	out.Reset()
	mustRun(t, a, "list")
	if strings.Count(out.String(), "\n") != 4 {
		t.Fatalf("list without search must show header and all rows:\n%s", out.String())
	}
}

func TestCommandsDepositAmendRemove(t *testing.T) {
	var out bytes.Buffer
	a := newTestApp(&out)
	ctx := context.Background()

	g, err := a.goals.CreateGoal(ctx, "alice", "Car", core.Money{Cents: 50000}, nil)
	if err != nil {
		t.Fatal(err)
	}

	mustRun(t, a, "deposit", "-amount", "200", g.ID)
	txs, _ := a.ledger.ListTransactions(ctx, "alice")
	if len(txs) != 1 || txs[0].Category != core.SavingsCategory {
		t.Fatalf("expected one savings transaction, got %+v", txs)
	}

	mustRun(t, a, "amend", "-amount", "150", txs[0].ID)
	if got, _ := a.goals.GetGoal(ctx, "alice", g.ID); got.Current.Cents != 15000 {
		t.Fatalf("amend must re-apply the deposit, current=%d", got.Current.Cents)
	}

	mustRun(t, a, "remove", txs[0].ID)
	if got, _ := a.goals.GetGoal(ctx, "alice", g.ID); got.Current.Cents != 0 {
		t.Fatalf("remove must reverse the deposit, current=%d", got.Current.Cents)
	}

	mustRun(t, a, "goal-update", "-target", "100", "-deadline", "none", g.ID)
	mustRun(t, a, "goal-remove", g.ID)
	if _, err := a.goals.GetGoal(ctx, "alice", g.ID); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("expected goal removed, got %v", err)
	}
}

func TestCommandErrors(t *testing.T) {
	var out bytes.Buffer
	a := newTestApp(&out)

	tests := []struct {
		name string
		args []string
		want error
	}{
		{"unknown command", []string{"explode"}, errUsage},
		{"unknown flag", []string{"record", "-colour", "red"}, errUsage},
		{"remove without id", []string{"remove"}, errUsage},
		{"deposit with two ids", []string{"deposit", "-amount", "1", "a", "b"}, errUsage},
		{"bad amount", []string{"record", "-amount", "abc"}, core.ErrInvalidAmount},
		{"bad kind", []string{"record", "-kind", "gift", "-amount", "1"}, core.ErrInvalidKind},
		{"unknown transaction", []string{"remove", "missing"}, core.ErrNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := a.run(context.Background(), tt.args[0], tt.args[1:])
			if !errors.Is(err, tt.want) {
				t.Fatalf("got %v, want %v", err, tt.want)
			}
		})
	}
}

func TestWatchFiltersByOwner(t *testing.T) {
	var out bytes.Buffer
	a := newTestApp(&out)
	a.consume = func(_ context.Context, handle func(*amqp.EventMessage) error) error {
		for i, owner := range []string{"alice", "bob"} {
			msg := amqp.NewEventMessage(int64(i+1), core.Event{Type: core.EventGoalDeposited, OwnerID: owner, GoalID: "g-" + owner})
			if err := handle(msg); err != nil {
				return err
			}
		}
		return nil
	}

	mustRun(t, a, "watch")
	if !strings.Contains(out.String(), "g-alice") || strings.Contains(out.String(), "g-bob") {
		t.Fatalf("watch must show only the owner's events:\n%s", out.String())
	}

	out.Reset()
	mustRun(t, a, "watch", "-all")
	if !strings.Contains(out.String(), "g-bob") {
		t.Fatalf("watch -all must show every event:\n%s", out.String())
	}
}
