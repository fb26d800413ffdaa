package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"savetrack/internal/core"
	"savetrack/internal/goalsync"
	"savetrack/internal/log"
	"savetrack/internal/store"
)

const depositNotePrefix = "Deposit to goal: "

// DepositService moves money into a goal and records it as a Savings expense
type DepositService struct {
	store  store.Store
	engine *goalsync.Engine
	logger *log.Logger
	now    func() time.Time
	newID  func() string
}

func NewDepositService(st store.Store, engine *goalsync.Engine, logger *log.Logger) *DepositService {
	return &DepositService{
		store:  st,
		engine: engine,
		logger: logger.WithComponent(log.ComponentDeposit),
		now:    time.Now,
		newID:  uuid.NewString,
	}
}

// Deposit increments the goal and inserts the matching Savings expense in one
// unit of work; if either write fails neither is kept. The expense is bound to
// the goal through the deposit channel, so category matching never counts it
// a second time. A non-empty idempotency key makes retries return the first
// result.
func (s *DepositService) Deposit(ctx context.Context, ownerID, goalID string, amount core.Money, idempotencyKey string) (core.Goal, core.Transaction, error) {
	if err := requireOwner(ownerID); err != nil {
		return core.Goal{}, core.Transaction{}, err
	}
	if err := amount.Validate(); err != nil {
		return core.Goal{}, core.Transaction{}, err
	}
	key := strings.TrimSpace(idempotencyKey)

	var (
		goal     core.Goal
		t        core.Transaction
		replayed bool
	)
	err := s.store.Atomically(ctx, func(tx store.Tx) error {
		if key != "" {
			existing, err := tx.FindTransactionByKey(ctx, ownerID, key)
			if err == nil {
				return s.replay(ctx, tx, ownerID, goalID, amount, existing, &goal, &t, &replayed)
			}
			if !errors.Is(err, core.ErrNotFound) {
				return err
			}
		}

		current, err := tx.GetGoal(ctx, ownerID, goalID)
		if err != nil {
			return err
		}
		goal, err = tx.AdjustGoal(ctx, ownerID, goalID, amount.Cents)
		if err != nil {
			return fmt.Errorf("adjust goal: %w", err)
		}

		now := s.now().UTC()
		t = core.Transaction{
			ID:             s.newID(),
			OwnerID:        ownerID,
			Kind:           core.Expense,
			Category:       core.SavingsCategory,
			Amount:         amount,
			OccurredAt:     core.DateOf(now),
			Notes:          depositNote(current.Name),
			GoalID:         goal.ID,
			Channel:        core.ChannelDeposit,
			IdempotencyKey: key,
			CreatedAt:      now,
			UpdatedAt:      now,
		}
		if err := tx.PutTransaction(ctx, t); err != nil {
			return fmt.Errorf("record savings transaction: %w", err)
		}
		// Deposit-channel transactions are skipped by category matching; the
		// pass still runs so every ledger insert goes through the engine.
		if t, err = s.engine.ApplyCreate(ctx, tx, ownerID, t); err != nil {
			return err
		}

		return tx.EnqueueEvent(ctx, core.Event{
			Type:          core.EventGoalDeposited,
			OwnerID:       ownerID,
			GoalID:        goal.ID,
			TransactionID: t.ID,
			DeltaCents:    amount.Cents,
			CurrentCents:  goal.Current.Cents,
			Status:        goal.Status,
			At:            now,
		})
	})
	if err != nil {
		log.NewStructuredLogger(s.logger).LogError(ctx, "Deposit failed", err, log.OpDeposit,
			log.NewFields().WithOwner(ownerID))
		return core.Goal{}, core.Transaction{}, err
	}

	if replayed {
		s.logger.InfoContext(ctx, "Replayed idempotent deposit",
			log.FieldOwnerID, ownerID,
			log.FieldGoalID, goal.ID,
			log.FieldTransactionID, t.ID)
		return goal, t, nil
	}
	fields := log.NewFields().WithTransaction(t).WithGoal(goal).WithOperation(log.OpDeposit)
	s.logger.InfoContext(ctx, "Deposit recorded", fields.ToSlice()...)
	return goal, t, nil
}

// replay resolves a retried deposit to its first outcome. A key already used
// for something other than a deposit of amount into goalID is a conflict.
func (s *DepositService) replay(ctx context.Context, tx store.Tx, ownerID, goalID string, amount core.Money, existing core.Transaction, goal *core.Goal, t *core.Transaction, replayed *bool) error {
	if existing.Channel != core.ChannelDeposit || existing.GoalID != goalID || existing.Amount != amount {
		return fmt.Errorf("idempotency key %q already used: %w", existing.IdempotencyKey, core.ErrConflict)
	}
	g, err := tx.GetGoal(ctx, ownerID, goalID)
	if err != nil {
		return err
	}
	*goal, *t, *replayed = g, existing, true
	return nil
}

func depositNote(goalName string) string {
	note := depositNotePrefix + goalName
	if utf8.RuneCountInString(note) <= core.MaxNotesLength {
		return note
	}
	return string([]rune(note)[:core.MaxNotesLength])
}
