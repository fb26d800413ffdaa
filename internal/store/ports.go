// Package store declares the persistence ports the sync engine and services depend on.
package store

import (
	"context"
	"time"

	"savetrack/internal/core"
)

// Ports for outbound adapters. Every read and write is scoped to an owner;
// a record owned by someone else is reported as core.ErrNotFound.
type (
	LedgerStore interface {
		PutTransaction(ctx context.Context, t core.Transaction) error
		GetTransaction(ctx context.Context, ownerID, id string) (core.Transaction, error)
		// FindTransactionByKey looks a transaction up by its idempotency key.
		FindTransactionByKey(ctx context.Context, ownerID, key string) (core.Transaction, error)
		UpdateTransaction(ctx context.Context, ownerID, id string, p core.TransactionPatch) (core.Transaction, error)
		// SetContribution records which goal, through which channel, the transaction moved.
		SetContribution(ctx context.Context, ownerID, id, goalID string, ch core.Channel) error
		DeleteTransaction(ctx context.Context, ownerID, id string) error
		// ListTransactions returns the owner's ledger, newest first.
		ListTransactions(ctx context.Context, ownerID string) ([]core.Transaction, error)
	}

	GoalStore interface {
		PutGoal(ctx context.Context, g core.Goal) error
		GetGoal(ctx context.Context, ownerID, id string) (core.Goal, error)
		// FindGoalByName matches name exactly (case-sensitive).
		FindGoalByName(ctx context.Context, ownerID, name string) (core.Goal, error)
		UpdateGoal(ctx context.Context, ownerID, id string, p core.GoalPatch) (core.Goal, error)
		// AdjustGoal atomically adds delta cents to the goal's current amount,
		// floors the result at zero and recomputes status.
		AdjustGoal(ctx context.Context, ownerID, id string, delta int64) (core.Goal, error)
		DeleteGoal(ctx context.Context, ownerID, id string) error
		// ListGoals orders by deadline ascending with undated goals last.
		ListGoals(ctx context.Context, ownerID string) ([]core.Goal, error)
	}

	Outbox interface {
		EnqueueEvent(ctx context.Context, e core.Event) error
	}

	// Tx is the view of the store available inside a unit of work.
	Tx interface {
		LedgerStore
		GoalStore
		Outbox
	}

	// OutboxReader drains committed events for publication.
	OutboxReader interface {
		PendingEvents(ctx context.Context, limit int) ([]OutboxEntry, error)
		MarkEventPublished(ctx context.Context, id int64) error
		MarkEventAttempt(ctx context.Context, id int64, errMsg string) error
		MarkEventFailed(ctx context.Context, id int64, errMsg string) error
		CleanupPublishedEvents(ctx context.Context, olderThan time.Time) (int64, error)
	}

	Store interface {
		Tx
		OutboxReader
		// Atomically runs fn as one unit of work: either every write fn made is
		// committed or none is. fn must not retain tx after returning.
		Atomically(ctx context.Context, fn func(tx Tx) error) error
		Close() error
	}
)

// OutboxEntry is a queued event with its delivery bookkeeping.
type OutboxEntry struct {
	ID        int64
	Event     core.Event
	Attempts  int
	LastError string
	CreatedAt time.Time
}
