package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"savetrack/internal/core"
	"savetrack/internal/store"

	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

// SQLiteRepository is the durable store.Store. All writes go through a single
// connection, so units of work are serialized and commit before returning.
type SQLiteRepository struct {
	*repo
	db *sql.DB
}

// repo implements store.Tx over either the pool or an open *sql.Tx.
type repo struct {
	queries *Queries
	now     func() time.Time
}

// DSN adds the pragmas the repository relies on to a database path. Units of
// work take the write lock at BEGIN, since the CLI and the worker share the file
// and a deferred read-then-write upgrade fails with SQLITE_BUSY.
func DSN(dbPath string) string {
	return dbPath + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_txlock=immediate"
}

func NewSQLiteRepository(dbPath string) (*SQLiteRepository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", DSN(dbPath))
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	// Run migrations
	if err := RunMigrations(DSN(dbPath)); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLiteRepository{
		repo: &repo{queries: New(db), now: time.Now},
		db:   db,
	}, nil
}

func (r *SQLiteRepository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

// Atomically implements store.Store. fn's writes commit together or roll back together.
func (r *SQLiteRepository) Atomically(ctx context.Context, fn func(tx store.Tx) error) (err error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return core.Unavailable("begin transaction", err)
	}
	defer func() {
		if err != nil {
			if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
				slog.ErrorContext(ctx, "Rollback failed", "error", rbErr)
			}
		}
	}()

	if err = fn(&repo{queries: r.queries.WithTx(tx), now: r.now}); err != nil {
		return err
	}
	if err = tx.Commit(); err != nil {
		return core.Unavailable("commit transaction", err)
	}
	return nil
}

// PutTransaction implements store.LedgerStore
func (r *repo) PutTransaction(ctx context.Context, t core.Transaction) error {
	row := Transaction{
		ID:          t.ID,
		OwnerID:     t.OwnerID,
		Kind:        string(t.Kind),
		Category:    t.Category,
		AmountCents: t.Amount.Cents,
		OccurredOn:  t.OccurredAt.String(),
		Notes:       t.Notes,
		GoalID:      t.GoalID,
		Channel:     string(t.Channel),
		CreatedAt:   t.CreatedAt.UnixMilli(),
		UpdatedAt:   t.UpdatedAt.UnixMilli(),
	}
	if t.IdempotencyKey != "" {
		row.IdempotencyKey = sql.NullString{String: t.IdempotencyKey, Valid: true}
	}
	if err := r.queries.CreateTransaction(ctx, row); err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("create transaction %s: %w", t.ID, core.ErrConflict)
		}
		return core.Unavailable("create transaction", err)
	}
	return nil
}

func (r *repo) GetTransaction(ctx context.Context, ownerID, id string) (core.Transaction, error) {
	row, err := r.queries.GetTransaction(ctx, id, ownerID)
	if err != nil {
		return core.Transaction{}, mapReadErr("transaction "+id, err)
	}
	return toCoreTransaction(row)
}

func (r *repo) FindTransactionByKey(ctx context.Context, ownerID, key string) (core.Transaction, error) {
	row, err := r.queries.GetTransactionByKey(ctx, ownerID, key)
	if err != nil {
		return core.Transaction{}, mapReadErr(fmt.Sprintf("transaction with key %q", key), err)
	}
	return toCoreTransaction(row)
}

func (r *repo) UpdateTransaction(ctx context.Context, ownerID, id string, p core.TransactionPatch) (core.Transaction, error) {
	current, err := r.GetTransaction(ctx, ownerID, id)
	if err != nil {
		return core.Transaction{}, err
	}
	updated := p.Apply(current)
	updated.UpdatedAt = r.now().UTC()

	n, err := r.queries.UpdateTransactionFields(ctx, UpdateTransactionFieldsParams{
		Kind:        string(updated.Kind),
		Category:    updated.Category,
		AmountCents: updated.Amount.Cents,
		OccurredOn:  updated.OccurredAt.String(),
		Notes:       updated.Notes,
		UpdatedAt:   updated.UpdatedAt.UnixMilli(),
		ID:          id,
		OwnerID:     ownerID,
	})
	if err != nil {
		return core.Transaction{}, core.Unavailable("update transaction", err)
	}
	if n == 0 {
		return core.Transaction{}, fmt.Errorf("transaction %s: %w", id, core.ErrNotFound)
	}
	return updated, nil
}

func (r *repo) SetContribution(ctx context.Context, ownerID, id, goalID string, ch core.Channel) error {
	n, err := r.queries.SetContribution(ctx, goalID, string(ch), id, ownerID)
	if err != nil {
		return core.Unavailable("set contribution", err)
	}
	if n == 0 {
		return fmt.Errorf("transaction %s: %w", id, core.ErrNotFound)
	}
	return nil
}

func (r *repo) DeleteTransaction(ctx context.Context, ownerID, id string) error {
	n, err := r.queries.DeleteTransaction(ctx, id, ownerID)
	if err != nil {
		return core.Unavailable("delete transaction", err)
	}
	if n == 0 {
		return fmt.Errorf("transaction %s: %w", id, core.ErrNotFound)
	}
	return nil
}

func (r *repo) ListTransactions(ctx context.Context, ownerID string) ([]core.Transaction, error) {
	rows, err := r.queries.ListTransactions(ctx, ownerID)
	if err != nil {
		return nil, core.Unavailable("list transactions", err)
	}
	out := make([]core.Transaction, 0, len(rows))
	for _, row := range rows {
		t, err := toCoreTransaction(row)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, nil
}

// PutGoal implements store.GoalStore
func (r *repo) PutGoal(ctx context.Context, g core.Goal) error {
	err := r.queries.CreateGoal(ctx, Goal{
		ID:           g.ID,
		OwnerID:      g.OwnerID,
		Name:         g.Name,
		TargetCents:  g.Target.Cents,
		CurrentCents: g.Current.Cents,
		Deadline:     deadlineParam(g.Deadline),
		Status:       string(core.DeriveStatus(g.Current, g.Target)),
		CreatedAt:    g.CreatedAt.UnixMilli(),
		UpdatedAt:    g.UpdatedAt.UnixMilli(),
	})
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("create goal %q: %w", g.Name, core.ErrDuplicateGoal)
		}
		return core.Unavailable("create goal", err)
	}
	return nil
}

func (r *repo) GetGoal(ctx context.Context, ownerID, id string) (core.Goal, error) {
	row, err := r.queries.GetGoal(ctx, id, ownerID)
	if err != nil {
		return core.Goal{}, mapReadErr("goal "+id, err)
	}
	return toCoreGoal(row)
}

func (r *repo) FindGoalByName(ctx context.Context, ownerID, name string) (core.Goal, error) {
	row, err := r.queries.GetGoalByName(ctx, ownerID, name)
	if err != nil {
		return core.Goal{}, mapReadErr(fmt.Sprintf("goal %q", name), err)
	}
	return toCoreGoal(row)
}

func (r *repo) UpdateGoal(ctx context.Context, ownerID, id string, p core.GoalPatch) (core.Goal, error) {
	current, err := r.GetGoal(ctx, ownerID, id)
	if err != nil {
		return core.Goal{}, err
	}
	updated := p.Apply(current)

	row, err := r.queries.UpdateGoalFields(ctx, UpdateGoalFieldsParams{
		Name:        updated.Name,
		TargetCents: updated.Target.Cents,
		Deadline:    deadlineParam(updated.Deadline),
		UpdatedAt:   r.now().UnixMilli(),
		ID:          id,
		OwnerID:     ownerID,
	})
	if err != nil {
		if isUniqueViolation(err) {
			return core.Goal{}, fmt.Errorf("rename goal to %q: %w", updated.Name, core.ErrDuplicateGoal)
		}
		return core.Goal{}, mapReadErr("goal "+id, err)
	}
	return toCoreGoal(row)
}

// AdjustGoal implements the atomic increment-and-clamp primitive.
func (r *repo) AdjustGoal(ctx context.Context, ownerID, id string, delta int64) (core.Goal, error) {
	row, err := r.queries.AdjustGoal(ctx, delta, r.now().UnixMilli(), id, ownerID, core.MaxCents)
	if errors.Is(err, sql.ErrNoRows) {
		if _, getErr := r.GetGoal(ctx, ownerID, id); getErr != nil {
			return core.Goal{}, getErr
		}
		return core.Goal{}, fmt.Errorf("adjust goal %s by %d: %w", id, delta, core.ErrAmountTooLarge)
	}
	if err != nil {
		return core.Goal{}, mapReadErr("adjust goal "+id, err)
	}
	return toCoreGoal(row)
}

func (r *repo) DeleteGoal(ctx context.Context, ownerID, id string) error {
	n, err := r.queries.DeleteGoal(ctx, id, ownerID)
	if err != nil {
		return core.Unavailable("delete goal", err)
	}
	if n == 0 {
		return fmt.Errorf("goal %s: %w", id, core.ErrNotFound)
	}
	return nil
}

func (r *repo) ListGoals(ctx context.Context, ownerID string) ([]core.Goal, error) {
	rows, err := r.queries.ListGoals(ctx, ownerID)
	if err != nil {
		return nil, core.Unavailable("list goals", err)
	}
	out := make([]core.Goal, 0, len(rows))
	for _, row := range rows {
		g, err := toCoreGoal(row)
		if err != nil {
			return nil, err
		}
		out = append(out, g)
	}
	return out, nil
}

// EnqueueEvent implements store.Outbox
func (r *repo) EnqueueEvent(ctx context.Context, e core.Event) error {
	payload, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	if err := r.queries.EnqueueOutbox(ctx, string(e.Type), string(payload), r.now().UnixMilli()); err != nil {
		return core.Unavailable("enqueue event", err)
	}
	return nil
}

// PendingEvents implements store.OutboxReader
func (r *repo) PendingEvents(ctx context.Context, limit int) ([]store.OutboxEntry, error) {
	rows, err := r.queries.PendingOutbox(ctx, int64(limit))
	if err != nil {
		return nil, core.Unavailable("pending events", err)
	}
	out := make([]store.OutboxEntry, 0, len(rows))
	for _, row := range rows {
		var e core.Event
		if err := json.Unmarshal([]byte(row.Payload), &e); err != nil {
			return nil, fmt.Errorf("decode outbox event %d: %w", row.ID, err)
		}
		out = append(out, store.OutboxEntry{
			ID:        row.ID,
			Event:     e,
			Attempts:  int(row.Attempts),
			LastError: row.LastError,
			CreatedAt: time.UnixMilli(row.CreatedAt).UTC(),
		})
	}
	return out, nil
}

func (r *repo) MarkEventPublished(ctx context.Context, id int64) error {
	n, err := r.queries.MarkOutboxPublished(ctx, r.now().UnixMilli(), id)
	return outboxResult("mark event published", id, n, err)
}

func (r *repo) MarkEventAttempt(ctx context.Context, id int64, errMsg string) error {
	n, err := r.queries.MarkOutboxAttempt(ctx, errMsg, id)
	return outboxResult("mark event attempt", id, n, err)
}

func (r *repo) MarkEventFailed(ctx context.Context, id int64, errMsg string) error {
	n, err := r.queries.MarkOutboxFailed(ctx, errMsg, id)
	return outboxResult("mark event failed", id, n, err)
}

func (r *repo) CleanupPublishedEvents(ctx context.Context, olderThan time.Time) (int64, error) {
	n, err := r.queries.CleanupOutbox(ctx, olderThan.UnixMilli())
	if err != nil {
		return 0, core.Unavailable("cleanup events", err)
	}
	return n, nil
}

func outboxResult(op string, id, n int64, err error) error {
	if err != nil {
		return core.Unavailable(op, err)
	}
	if n == 0 {
		return fmt.Errorf("%s %d: %w", op, id, core.ErrNotFound)
	}
	return nil
}

func toCoreGoal(row Goal) (core.Goal, error) {
	g := core.Goal{
		ID:        row.ID,
		OwnerID:   row.OwnerID,
		Name:      row.Name,
		Target:    core.Money{Cents: row.TargetCents},
		Current:   core.Money{Cents: row.CurrentCents},
		Status:    core.Status(row.Status),
		CreatedAt: time.UnixMilli(row.CreatedAt).UTC(),
		UpdatedAt: time.UnixMilli(row.UpdatedAt).UTC(),
	}
	if row.Deadline.Valid {
		d, err := core.ParseDate(row.Deadline.String)
		if err != nil {
			return core.Goal{}, fmt.Errorf("goal %s deadline %q: %w", row.ID, row.Deadline.String, err)
		}
		g.Deadline = &d
	}
	return g, nil
}

func toCoreTransaction(row Transaction) (core.Transaction, error) {
	d, err := core.ParseDate(row.OccurredOn)
	if err != nil {
		return core.Transaction{}, fmt.Errorf("transaction %s date %q: %w", row.ID, row.OccurredOn, err)
	}
	return core.Transaction{
		ID:             row.ID,
		OwnerID:        row.OwnerID,
		Kind:           core.Kind(row.Kind),
		Category:       row.Category,
		Amount:         core.Money{Cents: row.AmountCents},
		OccurredAt:     d,
		Notes:          row.Notes,
		GoalID:         row.GoalID,
		Channel:        core.Channel(row.Channel),
		IdempotencyKey: row.IdempotencyKey.String,
		CreatedAt:      time.UnixMilli(row.CreatedAt).UTC(),
		UpdatedAt:      time.UnixMilli(row.UpdatedAt).UTC(),
	}, nil
}

func deadlineParam(d *core.Date) sql.NullString {
	if d == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: d.String(), Valid: true}
}

func mapReadErr(what string, err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%s: %w", what, core.ErrNotFound)
	}
	return core.Unavailable(what, err)
}

func isUniqueViolation(err error) bool {
	var se *sqlite.Error
	if !errors.As(err, &se) {
		return false
	}
	switch se.Code() {
	case sqlite3.SQLITE_CONSTRAINT_UNIQUE, sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY:
		return true
	}
	return false
}

var _ store.Store = (*SQLiteRepository)(nil)
