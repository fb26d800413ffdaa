package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"savetrack/internal/core"
	"savetrack/internal/goalsync"
	"savetrack/internal/log"
	"savetrack/internal/store"
)

// RecordRequest is the input to RecordTransaction. A zero Date means today.
type RecordRequest struct {
	Kind     core.Kind
	Category string
	Amount   core.Money
	Date     core.Date
	Notes    string

	// IdempotencyKey makes a retried request return the first result
	// instead of recording the transaction twice.
	IdempotencyKey string
}

// LedgerService orchestrates transaction writes and the goal sync pass each one triggers
type LedgerService struct {
	store  store.Store
	engine *goalsync.Engine
	logger *log.Logger
	now    func() time.Time
	newID  func() string
}

func NewLedgerService(st store.Store, engine *goalsync.Engine, logger *log.Logger) *LedgerService {
	return &LedgerService{
		store:  st,
		engine: engine,
		logger: logger.WithComponent(log.ComponentLedger),
		now:    time.Now,
		newID:  uuid.NewString,
	}
}

// RecordTransaction stores a new transaction and applies it to the goal named
// by its category in the same unit of work.
func (s *LedgerService) RecordTransaction(ctx context.Context, ownerID string, req RecordRequest) (core.Transaction, error) {
	if err := requireOwner(ownerID); err != nil {
		return core.Transaction{}, err
	}

	now := s.now().UTC()
	t := core.Transaction{
		ID:             s.newID(),
		OwnerID:        ownerID,
		Kind:           req.Kind,
		Category:       core.NormalizeCategory(req.Category),
		Amount:         req.Amount,
		OccurredAt:     req.Date,
		Notes:          strings.TrimSpace(req.Notes),
		IdempotencyKey: strings.TrimSpace(req.IdempotencyKey),
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if t.OccurredAt.IsZero() {
		t.OccurredAt = core.DateOf(now)
	}
	if err := t.Validate(); err != nil {
		return core.Transaction{}, err
	}

	dated := !req.Date.IsZero()
	var replayed bool
	err := s.store.Atomically(ctx, func(tx store.Tx) error {
		if t.IdempotencyKey != "" {
			existing, err := tx.FindTransactionByKey(ctx, ownerID, t.IdempotencyKey)
			if err == nil {
				if err := sameRecord(existing, t, dated); err != nil {
					return err
				}
				t, replayed = existing, true
				return nil
			}
			if !errors.Is(err, core.ErrNotFound) {
				return err
			}
		}

		if err := tx.PutTransaction(ctx, t); err != nil {
			return fmt.Errorf("put transaction: %w", err)
		}
		applied, err := s.engine.ApplyCreate(ctx, tx, ownerID, t)
		if err != nil {
			return err
		}
		t = applied
		return tx.EnqueueEvent(ctx, transactionEvent(core.EventTransactionRecorded, t, now))
	})
	if err != nil && t.IdempotencyKey != "" && errors.Is(err, core.ErrConflict) {
		// Lost a race with a concurrent retry carrying the same key.
		existing, findErr := s.store.FindTransactionByKey(ctx, ownerID, t.IdempotencyKey)
		if findErr == nil {
			if err = sameRecord(existing, t, dated); err == nil {
				t, replayed = existing, true
			}
		}
	}
	if err != nil {
		s.logFailure(ctx, "Failed to record transaction", err, log.OpCreate, ownerID)
		return core.Transaction{}, err
	}

	if replayed {
		s.logger.InfoContext(ctx, "Replayed idempotent transaction",
			log.FieldOwnerID, ownerID,
			log.FieldTransactionID, t.ID)
		return t, nil
	}
	s.logger.InfoContext(ctx, "Transaction recorded", log.NewFields().WithTransaction(t).ToSlice()...)
	return t, nil
}

// AmendTransaction patches a transaction in place. When amount, kind or
// category change, the old contribution is reversed and the new one applied
// within the same unit of work.
func (s *LedgerService) AmendTransaction(ctx context.Context, ownerID, id string, p core.TransactionPatch) (core.Transaction, error) {
	if err := requireOwner(ownerID); err != nil {
		return core.Transaction{}, err
	}

	var out core.Transaction
	err := s.store.Atomically(ctx, func(tx store.Tx) error {
		old, err := tx.GetTransaction(ctx, ownerID, id)
		if err != nil {
			return err
		}
		if err := p.Apply(old).Validate(); err != nil {
			return err
		}

		updated, err := tx.UpdateTransaction(ctx, ownerID, id, p)
		if err != nil {
			return fmt.Errorf("update transaction: %w", err)
		}
		if core.AffectsGoals(old, updated) {
			if updated, err = s.engine.ApplyUpdate(ctx, tx, ownerID, old, updated); err != nil {
				return err
			}
		}
		out = updated
		return tx.EnqueueEvent(ctx, transactionEvent(core.EventTransactionAmended, updated, s.now().UTC()))
	})
	if err != nil {
		s.logFailure(ctx, "Failed to amend transaction", err, log.OpUpdate, ownerID)
		return core.Transaction{}, err
	}

	s.logger.InfoContext(ctx, "Transaction amended", log.NewFields().WithTransaction(out).ToSlice()...)
	return out, nil
}

// RemoveTransaction reverses the transaction's contribution and deletes it.
func (s *LedgerService) RemoveTransaction(ctx context.Context, ownerID, id string) error {
	if err := requireOwner(ownerID); err != nil {
		return err
	}

	err := s.store.Atomically(ctx, func(tx store.Tx) error {
		t, err := tx.GetTransaction(ctx, ownerID, id)
		if err != nil {
			return err
		}
		reversed, err := s.engine.ApplyDelete(ctx, tx, ownerID, t)
		if err != nil {
			return err
		}
		if err := tx.DeleteTransaction(ctx, ownerID, id); err != nil {
			return fmt.Errorf("delete transaction: %w", err)
		}
		return tx.EnqueueEvent(ctx, transactionEvent(core.EventTransactionRemoved, reversed, s.now().UTC()))
	})
	if err != nil {
		s.logFailure(ctx, "Failed to remove transaction", err, log.OpDelete, ownerID)
		return err
	}

	s.logger.InfoContext(ctx, "Transaction removed",
		log.FieldOwnerID, ownerID,
		log.FieldTransactionID, id)
	return nil
}

func (s *LedgerService) GetTransaction(ctx context.Context, ownerID, id string) (core.Transaction, error) {
	if err := requireOwner(ownerID); err != nil {
		return core.Transaction{}, err
	}
	return s.store.GetTransaction(ctx, ownerID, id)
}

// SearchTransactions returns the owner's transactions whose category or notes
// contain term, newest first.
func (s *LedgerService) SearchTransactions(ctx context.Context, ownerID, term string) ([]core.Transaction, error) {
	txs, err := s.ListTransactions(ctx, ownerID)
	if err != nil {
		return nil, err
	}
	out := txs[:0]
	for _, t := range txs {
		if t.Matches(term) {
			out = append(out, t)
		}
	}
	return out, nil
}

// ListTransactions returns the owner's ledger, newest first.
func (s *LedgerService) ListTransactions(ctx context.Context, ownerID string) ([]core.Transaction, error) {
	if err := requireOwner(ownerID); err != nil {
		return nil, err
	}
	return s.store.ListTransactions(ctx, ownerID)
}

// Summary totals the owner's ledger with its category and daily breakdowns.
// Deposits count as expenses, so money set aside for a goal lowers the balance.
func (s *LedgerService) Summary(ctx context.Context, ownerID string) (core.Summary, error) {
	txs, err := s.ListTransactions(ctx, ownerID)
	if err != nil {
		return core.Summary{}, err
	}
	return core.Summarize(txs)
}

func (s *LedgerService) logFailure(ctx context.Context, msg string, err error, op, ownerID string) {
	log.NewStructuredLogger(s.logger).LogError(ctx, msg, err, op, log.NewFields().WithOwner(ownerID))
}

func transactionEvent(typ core.EventType, t core.Transaction, at time.Time) core.Event {
	return core.Event{
		Type:          typ,
		OwnerID:       t.OwnerID,
		GoalID:        t.GoalID,
		TransactionID: t.ID,
		At:            at,
	}
}

// sameRecord checks that a key hit is a retry of req and not a different
// request reusing the key. The date only counts when the caller supplied one.
func sameRecord(existing, req core.Transaction, dated bool) error {
	same := existing.Channel != core.ChannelDeposit &&
		existing.Kind == req.Kind &&
		existing.Category == req.Category &&
		existing.Amount == req.Amount &&
		existing.Notes == req.Notes &&
		(!dated || existing.OccurredAt.Equal(req.OccurredAt.Time))
	if !same {
		return fmt.Errorf("idempotency key %q already used for another request: %w", req.IdempotencyKey, core.ErrConflict)
	}
	return nil
}

// requireOwner rejects calls that carry no authenticated owner.
func requireOwner(ownerID string) error {
	if strings.TrimSpace(ownerID) == "" {
		return fmt.Errorf("missing owner: %w", core.ErrUnauthorized)
	}
	return nil
}
