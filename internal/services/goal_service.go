package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"savetrack/internal/core"
	"savetrack/internal/log"
	"savetrack/internal/store"
)

// GoalService manages savings goals. It never writes a goal's current amount;
// that is moved only by the sync engine and deposits.
type GoalService struct {
	store  store.Store
	logger *log.Logger
	now    func() time.Time
	newID  func() string
}

func NewGoalService(st store.Store, logger *log.Logger) *GoalService {
	return &GoalService{
		store:  st,
		logger: logger.WithComponent(log.ComponentGoals),
		now:    time.Now,
		newID:  uuid.NewString,
	}
}

// CreateGoal starts a goal at zero. Income recorded earlier under the same
// category is not counted retroactively.
func (s *GoalService) CreateGoal(ctx context.Context, ownerID, name string, target core.Money, deadline *core.Date) (core.Goal, error) {
	if err := requireOwner(ownerID); err != nil {
		return core.Goal{}, err
	}

	now := s.now().UTC()
	g := core.Goal{
		ID:        s.newID(),
		OwnerID:   ownerID,
		Name:      strings.TrimSpace(name),
		Target:    target,
		Deadline:  deadline,
		CreatedAt: now,
		UpdatedAt: now,
	}
	g.Status = core.DeriveStatus(g.Current, g.Target)
	if err := g.Validate(); err != nil {
		return core.Goal{}, err
	}

	if err := s.store.PutGoal(ctx, g); err != nil {
		log.NewStructuredLogger(s.logger).LogError(ctx, "Failed to create goal", err, log.OpCreate,
			log.NewFields().WithOwner(ownerID))
		return core.Goal{}, fmt.Errorf("create goal %q: %w", g.Name, err)
	}

	s.logger.InfoContext(ctx, "Goal created", log.NewFields().WithGoal(g).WithOwner(ownerID).ToSlice()...)
	return g, nil
}

// UpdateGoal changes name, target or deadline. Status is recomputed against the
// new target. Renaming does not re-link transactions recorded under the old name.
func (s *GoalService) UpdateGoal(ctx context.Context, ownerID, id string, p core.GoalPatch) (core.Goal, error) {
	if err := requireOwner(ownerID); err != nil {
		return core.Goal{}, err
	}
	if p.Name != nil && strings.TrimSpace(*p.Name) == "" {
		return core.Goal{}, core.ErrEmptyGoalName
	}
	if p.Target != nil {
		if err := p.Target.Validate(); err != nil {
			return core.Goal{}, err
		}
	}

	g, err := s.store.UpdateGoal(ctx, ownerID, id, p)
	if err != nil {
		return core.Goal{}, fmt.Errorf("update goal %s: %w", id, err)
	}

	s.logger.InfoContext(ctx, "Goal updated", log.NewFields().WithGoal(g).WithOwner(ownerID).ToSlice()...)
	return g, nil
}

// RemoveGoal deletes the goal. Transactions that contributed to it, deposits
// included, are left untouched.
func (s *GoalService) RemoveGoal(ctx context.Context, ownerID, id string) error {
	if err := requireOwner(ownerID); err != nil {
		return err
	}

	err := s.store.Atomically(ctx, func(tx store.Tx) error {
		if err := tx.DeleteGoal(ctx, ownerID, id); err != nil {
			return err
		}
		return tx.EnqueueEvent(ctx, core.Event{
			Type:    core.EventGoalRemoved,
			OwnerID: ownerID,
			GoalID:  id,
			At:      s.now().UTC(),
		})
	})
	if err != nil {
		return fmt.Errorf("remove goal %s: %w", id, err)
	}

	s.logger.InfoContext(ctx, "Goal removed",
		log.FieldOwnerID, ownerID,
		log.FieldGoalID, id)
	return nil
}

func (s *GoalService) GetGoal(ctx context.Context, ownerID, id string) (core.Goal, error) {
	if err := requireOwner(ownerID); err != nil {
		return core.Goal{}, err
	}
	return s.store.GetGoal(ctx, ownerID, id)
}

// ListGoals returns goals ordered by deadline, undated goals last.
func (s *GoalService) ListGoals(ctx context.Context, ownerID string) ([]core.Goal, error) {
	if err := requireOwner(ownerID); err != nil {
		return nil, err
	}
	return s.store.ListGoals(ctx, ownerID)
}
