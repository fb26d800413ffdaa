// Package memory is a process-local implementation of store.Store.
// It is safe for concurrent use; units of work are serialized on a single mutex.
package memory

import (
	"context"
	"fmt"
	"maps"
	"strings"
	"sync"
	"time"

	"savetrack/internal/core"
	"savetrack/internal/store"
)

const (
	outboxPending   = "pending"
	outboxPublished = "published"
	outboxFailed    = "failed"
)

type Store struct {
	mu  sync.Mutex
	st  *state
	now func() time.Time
}

type outboxItem struct {
	entry       store.OutboxEntry
	status      string
	publishedAt time.Time
}

// state holds the records. Its methods assume the caller owns Store.mu.
type state struct {
	goals  map[string]core.Goal
	txs    map[string]core.Transaction
	outbox []outboxItem
	nextID int64
	now    func() time.Time
}

func New() *Store {
	s := &Store{now: time.Now}
	s.st = &state{
		goals: make(map[string]core.Goal),
		txs:   make(map[string]core.Transaction),
		now:   func() time.Time { return s.now() },
	}
	return s
}

// Atomically runs fn against a working copy and publishes it only if fn succeeds.
func (s *Store) Atomically(ctx context.Context, fn func(tx store.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("begin unit of work: %w", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	work := s.st.clone()
	if err := fn(work); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("commit unit of work: %w", err)
	}
	s.st = work
	return nil
}

func (s *Store) Close() error { return nil }

func (s *Store) PutTransaction(ctx context.Context, t core.Transaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.st.PutTransaction(ctx, t)
}

func (s *Store) GetTransaction(ctx context.Context, ownerID, id string) (core.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.st.GetTransaction(ctx, ownerID, id)
}

func (s *Store) FindTransactionByKey(ctx context.Context, ownerID, key string) (core.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.st.FindTransactionByKey(ctx, ownerID, key)
}

func (s *Store) UpdateTransaction(ctx context.Context, ownerID, id string, p core.TransactionPatch) (core.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.st.UpdateTransaction(ctx, ownerID, id, p)
}

func (s *Store) SetContribution(ctx context.Context, ownerID, id, goalID string, ch core.Channel) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.st.SetContribution(ctx, ownerID, id, goalID, ch)
}

func (s *Store) DeleteTransaction(ctx context.Context, ownerID, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.st.DeleteTransaction(ctx, ownerID, id)
}

func (s *Store) ListTransactions(ctx context.Context, ownerID string) ([]core.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.st.ListTransactions(ctx, ownerID)
}

func (s *Store) PutGoal(ctx context.Context, g core.Goal) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.st.PutGoal(ctx, g)
}

func (s *Store) GetGoal(ctx context.Context, ownerID, id string) (core.Goal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.st.GetGoal(ctx, ownerID, id)
}

func (s *Store) FindGoalByName(ctx context.Context, ownerID, name string) (core.Goal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.st.FindGoalByName(ctx, ownerID, name)
}

func (s *Store) UpdateGoal(ctx context.Context, ownerID, id string, p core.GoalPatch) (core.Goal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.st.UpdateGoal(ctx, ownerID, id, p)
}

func (s *Store) AdjustGoal(ctx context.Context, ownerID, id string, delta int64) (core.Goal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.st.AdjustGoal(ctx, ownerID, id, delta)
}

func (s *Store) DeleteGoal(ctx context.Context, ownerID, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.st.DeleteGoal(ctx, ownerID, id)
}

func (s *Store) ListGoals(ctx context.Context, ownerID string) ([]core.Goal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.st.ListGoals(ctx, ownerID)
}

func (s *Store) EnqueueEvent(ctx context.Context, e core.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.st.EnqueueEvent(ctx, e)
}

func (s *Store) PendingEvents(_ context.Context, limit int) ([]store.OutboxEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []store.OutboxEntry
	for _, it := range s.st.outbox {
		if it.status != outboxPending {
			continue
		}
		out = append(out, it.entry)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

func (s *Store) MarkEventPublished(_ context.Context, id int64) error {
	return s.markEvent(id, func(it *outboxItem) {
		it.status = outboxPublished
		it.publishedAt = s.now()
	})
}

func (s *Store) MarkEventAttempt(_ context.Context, id int64, errMsg string) error {
	return s.markEvent(id, func(it *outboxItem) {
		it.entry.Attempts++
		it.entry.LastError = errMsg
	})
}

func (s *Store) MarkEventFailed(_ context.Context, id int64, errMsg string) error {
	return s.markEvent(id, func(it *outboxItem) {
		it.entry.Attempts++
		it.entry.LastError = errMsg
		it.status = outboxFailed
	})
}

func (s *Store) CleanupPublishedEvents(_ context.Context, olderThan time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	kept := s.st.outbox[:0]
	var removed int64
	for _, it := range s.st.outbox {
		if it.status == outboxPublished && it.publishedAt.Before(olderThan) {
			removed++
			continue
		}
		kept = append(kept, it)
	}
	s.st.outbox = kept
	return removed, nil
}

func (s *Store) markEvent(id int64, fn func(*outboxItem)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.st.outbox {
		if s.st.outbox[i].entry.ID == id {
			fn(&s.st.outbox[i])
			return nil
		}
	}
	return fmt.Errorf("outbox event %d: %w", id, core.ErrNotFound)
}

func (st *state) clone() *state {
	return &state{
		goals:  maps.Clone(st.goals),
		txs:    maps.Clone(st.txs),
		outbox: append([]outboxItem(nil), st.outbox...),
		nextID: st.nextID,
		now:    st.now,
	}
}

func (st *state) PutTransaction(_ context.Context, t core.Transaction) error {
	if _, exists := st.txs[t.ID]; exists {
		return fmt.Errorf("transaction %s: %w", t.ID, core.ErrConflict)
	}
	if t.IdempotencyKey != "" {
		if _, err := st.FindTransactionByKey(context.Background(), t.OwnerID, t.IdempotencyKey); err == nil {
			return fmt.Errorf("idempotency key %q: %w", t.IdempotencyKey, core.ErrConflict)
		}
	}
	st.txs[t.ID] = t
	return nil
}

func (st *state) GetTransaction(_ context.Context, ownerID, id string) (core.Transaction, error) {
	t, ok := st.txs[id]
	if !ok || t.OwnerID != ownerID {
		return core.Transaction{}, fmt.Errorf("transaction %s: %w", id, core.ErrNotFound)
	}
	return t, nil
}

func (st *state) FindTransactionByKey(_ context.Context, ownerID, key string) (core.Transaction, error) {
	if key != "" {
		for _, t := range st.txs {
			if t.OwnerID == ownerID && t.IdempotencyKey == key {
				return t, nil
			}
		}
	}
	return core.Transaction{}, fmt.Errorf("transaction with key %q: %w", key, core.ErrNotFound)
}

func (st *state) UpdateTransaction(ctx context.Context, ownerID, id string, p core.TransactionPatch) (core.Transaction, error) {
	t, err := st.GetTransaction(ctx, ownerID, id)
	if err != nil {
		return core.Transaction{}, err
	}
	t = p.Apply(t)
	t.UpdatedAt = st.now().UTC()
	st.txs[id] = t
	return t, nil
}

func (st *state) SetContribution(ctx context.Context, ownerID, id, goalID string, ch core.Channel) error {
	t, err := st.GetTransaction(ctx, ownerID, id)
	if err != nil {
		return err
	}
	t.GoalID, t.Channel = goalID, ch
	st.txs[id] = t
	return nil
}

func (st *state) DeleteTransaction(ctx context.Context, ownerID, id string) error {
	if _, err := st.GetTransaction(ctx, ownerID, id); err != nil {
		return err
	}
	delete(st.txs, id)
	return nil
}

func (st *state) ListTransactions(_ context.Context, ownerID string) ([]core.Transaction, error) {
	out := make([]core.Transaction, 0)
	for _, t := range st.txs {
		if t.OwnerID == ownerID {
			out = append(out, t)
		}
	}
	store.SortTransactions(out)
	return out, nil
}

func (st *state) PutGoal(ctx context.Context, g core.Goal) error {
	if _, exists := st.goals[g.ID]; exists {
		return fmt.Errorf("goal %s: %w", g.ID, core.ErrConflict)
	}
	if _, err := st.FindGoalByName(ctx, g.OwnerID, g.Name); err == nil {
		return fmt.Errorf("goal %q: %w", g.Name, core.ErrDuplicateGoal)
	}
	st.goals[g.ID] = copyGoal(g)
	return nil
}

func (st *state) GetGoal(_ context.Context, ownerID, id string) (core.Goal, error) {
	g, ok := st.goals[id]
	if !ok || g.OwnerID != ownerID {
		return core.Goal{}, fmt.Errorf("goal %s: %w", id, core.ErrNotFound)
	}
	return copyGoal(g), nil
}

func (st *state) FindGoalByName(_ context.Context, ownerID, name string) (core.Goal, error) {
	for _, g := range st.goals {
		if g.OwnerID == ownerID && g.Name == name {
			return copyGoal(g), nil
		}
	}
	return core.Goal{}, fmt.Errorf("goal %q: %w", name, core.ErrNotFound)
}

func (st *state) UpdateGoal(ctx context.Context, ownerID, id string, p core.GoalPatch) (core.Goal, error) {
	g, err := st.GetGoal(ctx, ownerID, id)
	if err != nil {
		return core.Goal{}, err
	}
	updated := p.Apply(g)
	if updated.Name != g.Name {
		if other, err := st.FindGoalByName(ctx, ownerID, updated.Name); err == nil && other.ID != id {
			return core.Goal{}, fmt.Errorf("goal %q: %w", updated.Name, core.ErrDuplicateGoal)
		}
	}
	updated.UpdatedAt = st.now().UTC()
	st.goals[id] = copyGoal(updated)
	return updated, nil
}

func (st *state) AdjustGoal(ctx context.Context, ownerID, id string, delta int64) (core.Goal, error) {
	g, err := st.GetGoal(ctx, ownerID, id)
	if err != nil {
		return core.Goal{}, err
	}
	switch {
	case delta > core.MaxCents-g.Current.Cents:
		return core.Goal{}, fmt.Errorf("adjust goal %s by %d: %w", id, delta, core.ErrAmountTooLarge)
	case delta < -g.Current.Cents:
		g.Current = core.Money{}
	default:
		g.Current.Cents += delta
	}
	g.Status = core.DeriveStatus(g.Current, g.Target)
	g.UpdatedAt = st.now().UTC()
	st.goals[id] = copyGoal(g)
	return g, nil
}

func (st *state) DeleteGoal(ctx context.Context, ownerID, id string) error {
	if _, err := st.GetGoal(ctx, ownerID, id); err != nil {
		return err
	}
	delete(st.goals, id)
	return nil
}

func (st *state) ListGoals(_ context.Context, ownerID string) ([]core.Goal, error) {
	out := make([]core.Goal, 0)
	for _, g := range st.goals {
		if g.OwnerID == ownerID {
			out = append(out, copyGoal(g))
		}
	}
	store.SortGoals(out)
	return out, nil
}

func (st *state) EnqueueEvent(_ context.Context, e core.Event) error {
	if strings.TrimSpace(string(e.Type)) == "" {
		return fmt.Errorf("enqueue event: %w", core.ErrInvalidArgument)
	}
	st.nextID++
	st.outbox = append(st.outbox, outboxItem{
		entry:  store.OutboxEntry{ID: st.nextID, Event: e, CreatedAt: st.now().UTC()},
		status: outboxPending,
	})
	return nil
}

func copyGoal(g core.Goal) core.Goal {
	if g.Deadline != nil {
		d := *g.Deadline
		g.Deadline = &d
	}
	return g
}

var _ store.Store = (*Store)(nil)
