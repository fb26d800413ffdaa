// Package goalsync keeps goal accumulators consistent with the ledger.
//
// The engine computes the delta a transaction contributes to a goal and
// applies or reverses it through store.Tx. It holds no locks of its own:
// every accumulator change goes through the store's atomic AdjustGoal, and
// callers run each engine pass inside store.Store.Atomically together with the
// ledger write that triggered it, so a reader never sees half of a pass.
//
// A transaction joins a goal through one of two channels:
//
//   - category: an Income whose category equals the goal name (exact match)
//     at the moment it is recorded or amended.
//   - deposit: a Savings expense written by the deposit path, which already
//     moved the goal itself.
//
// The goal ID and channel are captured on the transaction when the delta is
// applied. Reversal uses the captured goal, never the current category text,
// so renaming a goal or a transaction cannot redirect an old contribution.
package goalsync

import (
	"context"
	"errors"
	"fmt"
	"time"

	"savetrack/internal/core"
	"savetrack/internal/log"
	"savetrack/internal/store"
)

type Engine struct {
	logger *log.Logger
	now    func() time.Time
}

type Option func(*Engine)

func WithLogger(l *log.Logger) Option {
	return func(e *Engine) { e.logger = l.WithComponent(log.ComponentSync) }
}

func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

func NewEngine(opts ...Option) *Engine {
	e := &Engine{
		logger: log.New(log.DefaultConfig()).WithComponent(log.ComponentSync),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// ApplyCreate applies a freshly written transaction to the goal named by its
// category. Only Income takes part in category matching; deposit-channel
// transactions are skipped because the deposit path already moved the goal.
// A missing goal is not an error. The returned transaction carries the
// captured contribution.
func (e *Engine) ApplyCreate(ctx context.Context, tx store.Tx, ownerID string, t core.Transaction) (core.Transaction, error) {
	if err := checkOwner(ownerID, t); err != nil {
		return t, err
	}
	if t.Channel == core.ChannelDeposit {
		return t, nil
	}
	if t.Kind != core.Income {
		return t, nil
	}

	goal, err := tx.FindGoalByName(ctx, ownerID, t.Category)
	if errors.Is(err, core.ErrNotFound) {
		e.logger.DebugContext(ctx, "No goal matches category",
			log.FieldTransactionID, t.ID,
			log.FieldCategory, t.Category)
		return t, nil
	}
	if err != nil {
		return t, fmt.Errorf("find goal for category %q: %w", t.Category, err)
	}

	goal, err = e.adjust(ctx, tx, log.OpApply, t, goal.ID, t.Amount.Cents)
	if err != nil {
		return t, err
	}
	if err := tx.SetContribution(ctx, ownerID, t.ID, goal.ID, core.ChannelCategory); err != nil {
		return t, fmt.Errorf("record contribution: %w", err)
	}
	t.GoalID, t.Channel = goal.ID, core.ChannelCategory
	return t, nil
}

// ApplyDelete reverses whatever t contributed, clamping the goal at zero.
// It must run while t is still stored; the captured contribution is cleared.
// A captured goal that has since been deleted makes this a no-op.
func (e *Engine) ApplyDelete(ctx context.Context, tx store.Tx, ownerID string, t core.Transaction) (core.Transaction, error) {
	if err := checkOwner(ownerID, t); err != nil {
		return t, err
	}
	if !t.Contributes() {
		return t, nil
	}

	if _, err := e.adjust(ctx, tx, log.OpReverse, t, t.GoalID, -t.Amount.Cents); err != nil && !errors.Is(err, core.ErrNotFound) {
		return t, err
	}
	if err := tx.SetContribution(ctx, ownerID, t.ID, "", core.ChannelNone); err != nil {
		return t, fmt.Errorf("clear contribution: %w", err)
	}
	t.GoalID, t.Channel = "", core.ChannelNone
	return t, nil
}

// ApplyUpdate moves a transaction's contribution from its old shape to its new
// one: the old delta is reversed and the new one applied against the goal state
// left by the reversal. A category change can therefore move the amount from
// one goal to another. updated must already be stored.
//
// Deposit transactions stay bound to their goal: kind and category are fixed,
// an amount change is re-applied to the captured goal.
func (e *Engine) ApplyUpdate(ctx context.Context, tx store.Tx, ownerID string, old, updated core.Transaction) (core.Transaction, error) {
	if err := checkOwner(ownerID, old); err != nil {
		return updated, err
	}
	if err := checkOwner(ownerID, updated); err != nil {
		return updated, err
	}
	if old.ID != updated.ID {
		return updated, fmt.Errorf("update %s with %s: %w", old.ID, updated.ID, core.ErrInvalidArgument)
	}

	if old.Channel == core.ChannelDeposit {
		return e.reapplyDeposit(ctx, tx, ownerID, old, updated)
	}

	if _, err := e.ApplyDelete(ctx, tx, ownerID, old); err != nil {
		return updated, err
	}
	updated.GoalID, updated.Channel = "", core.ChannelNone
	return e.ApplyCreate(ctx, tx, ownerID, updated)
}

func (e *Engine) reapplyDeposit(ctx context.Context, tx store.Tx, ownerID string, old, updated core.Transaction) (core.Transaction, error) {
	if updated.Kind != old.Kind || updated.Category != old.Category {
		return updated, core.ErrReservedChannel
	}
	if _, err := e.ApplyDelete(ctx, tx, ownerID, old); err != nil {
		return updated, err
	}
	updated.GoalID, updated.Channel = "", core.ChannelNone

	goal, err := e.adjust(ctx, tx, log.OpApply, updated, old.GoalID, updated.Amount.Cents)
	if errors.Is(err, core.ErrNotFound) {
		// Goal removed since the deposit; the expense stays as plain spending.
		return updated, nil
	}
	if err != nil {
		return updated, err
	}
	if err := tx.SetContribution(ctx, ownerID, updated.ID, goal.ID, core.ChannelDeposit); err != nil {
		return updated, fmt.Errorf("record contribution: %w", err)
	}
	updated.GoalID, updated.Channel = goal.ID, core.ChannelDeposit
	return updated, nil
}

// adjust applies delta to one goal and queues the progress event in the same
// unit of work. The event carries the change actually made, which is smaller
// than a reversal's delta when the goal clamps at zero.
func (e *Engine) adjust(ctx context.Context, tx store.Tx, op string, t core.Transaction, goalID string, delta int64) (core.Goal, error) {
	before, err := tx.GetGoal(ctx, t.OwnerID, goalID)
	if err != nil {
		return core.Goal{}, fmt.Errorf("load goal %s: %w", goalID, err)
	}
	goal, err := tx.AdjustGoal(ctx, t.OwnerID, goalID, delta)
	if err != nil {
		return core.Goal{}, fmt.Errorf("adjust goal %s by %d: %w", goalID, delta, err)
	}
	applied := goal.Current.Cents - before.Current.Cents

	err = tx.EnqueueEvent(ctx, core.Event{
		Type:          core.EventGoalProgressed,
		OwnerID:       t.OwnerID,
		GoalID:        goal.ID,
		TransactionID: t.ID,
		DeltaCents:    applied,
		CurrentCents:  goal.Current.Cents,
		Status:        goal.Status,
		At:            e.now().UTC(),
	})
	if err != nil {
		return core.Goal{}, fmt.Errorf("enqueue progress event: %w", err)
	}

	log.NewStructuredLogger(e.logger).LogGoalAdjusted(ctx, op, t, goal, applied)
	return goal, nil
}

func checkOwner(ownerID string, t core.Transaction) error {
	if ownerID == "" || t.OwnerID != ownerID {
		return fmt.Errorf("transaction %s: %w", t.ID, core.ErrUnauthorized)
	}
	return nil
}
