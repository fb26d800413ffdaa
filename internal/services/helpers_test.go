package services

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"savetrack/internal/core"
	"savetrack/internal/goalsync"
	"savetrack/internal/log"
	"savetrack/internal/storage"
	"savetrack/internal/store"
	"savetrack/internal/store/memory"
)

var testClock = time.Date(2025, 3, 14, 9, 30, 0, 0, time.UTC)

type backend struct {
	name string
	open func(t *testing.T) store.Store
}

var backends = []backend{
	{"memory", func(t *testing.T) store.Store { return memory.New() }},
	{"sqlite", func(t *testing.T) store.Store {
		t.Helper()
		repo, err := storage.NewSQLiteRepository(filepath.Join(t.TempDir(), "savetrack.db"))
		if err != nil {
			t.Fatalf("open sqlite: %v", err)
		}
		t.Cleanup(func() { repo.Close() })
		return repo
	}},
}

// eachBackend runs fn once per store implementation.
func eachBackend(t *testing.T, fn func(t *testing.T, st store.Store)) {
	for _, b := range backends {
		t.Run(b.name, func(t *testing.T) {
			fn(t, b.open(t))
		})
	}
}

type suite struct {
	ledger  *LedgerService
	goals   *GoalService
	deposit *DepositService
}

func testLogger() *log.Logger {
	return log.NewWithWriter(io.Discard, slog.LevelError, "test")
}

func newSuite(st store.Store) *suite {
	logger := testLogger()
	clock := func() time.Time { return testClock }
	engine := goalsync.NewEngine(goalsync.WithLogger(logger), goalsync.WithClock(clock))

	s := &suite{
		ledger:  NewLedgerService(st, engine, logger),
		goals:   NewGoalService(st, logger),
		deposit: NewDepositService(st, engine, logger),
	}
	s.ledger.now = clock
	s.goals.now = clock
	s.deposit.now = clock
	return s
}

func (s *suite) mustGoal(t *testing.T, owner, name string, target int64) core.Goal {
	t.Helper()
	g, err := s.goals.CreateGoal(context.Background(), owner, name, core.Money{Cents: target}, nil)
	if err != nil {
		t.Fatalf("create goal %q: %v", name, err)
	}
	return g
}

func (s *suite) mustRecord(t *testing.T, owner string, kind core.Kind, category string, cents int64) core.Transaction {
	t.Helper()
	tx, err := s.ledger.RecordTransaction(context.Background(), owner, RecordRequest{
		Kind:     kind,
		Category: category,
		Amount:   core.Money{Cents: cents},
	})
	if err != nil {
		t.Fatalf("record %s %s %d: %v", kind, category, cents, err)
	}
	return tx
}

func (s *suite) expectGoal(t *testing.T, g core.Goal, cents int64, status core.Status) {
	t.Helper()
	got, err := s.goals.GetGoal(context.Background(), g.OwnerID, g.ID)
	if err != nil {
		t.Fatalf("get goal: %v", err)
	}
	if got.Current.Cents != cents || got.Status != status {
		t.Fatalf("goal %s: got current=%d status=%q, want %d %q", g.Name, got.Current.Cents, got.Status, cents, status)
	}
}

// failingStore is a memory store whose units of work reject ledger inserts.
type failingStore struct {
	*memory.Store
	err error
}

func (f *failingStore) Atomically(ctx context.Context, fn func(tx store.Tx) error) error {
	return f.Store.Atomically(ctx, func(tx store.Tx) error {
		return fn(failingTx{Tx: tx, err: f.err})
	})
}

type failingTx struct {
	store.Tx
	err error
}

func (f failingTx) PutTransaction(context.Context, core.Transaction) error {
	return f.err
}

var errLedgerDown = core.Unavailable("create transaction", errors.New("disk I/O error"))
