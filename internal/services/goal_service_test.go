package services

import (
	"context"
	"errors"
	"testing"

	"savetrack/internal/core"
	"savetrack/internal/store"
	"savetrack/internal/store/memory"
)

func TestCreateGoalValidation(t *testing.T) {
	s := newSuite(memory.New())
	ctx := context.Background()

	tests := []struct {
		name   string
		owner  string
		goal   string
		target int64
		want   error
	}{
		{"empty name", "alice", "  ", 100, core.ErrEmptyGoalName},
		{"zero target", "alice", "Car", 0, core.ErrInvalidAmount},
		{"missing owner", "", "Car", 100, core.ErrUnauthorized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := s.goals.CreateGoal(ctx, tt.owner, tt.goal, core.Money{Cents: tt.target}, nil)
			if !errors.Is(err, tt.want) {
				t.Fatalf("got %v, want %v", err, tt.want)
			}
		})
	}

	g, err := s.goals.CreateGoal(ctx, "alice", "  Car ", core.Money{Cents: 100}, nil)
	if err != nil {
		t.Fatal(err)
	}
	if g.Name != "Car" || g.Current.Cents != 0 || g.Status != core.InProgress {
		t.Fatalf("unexpected goal %+v", g)
	}
	if _, err := s.goals.CreateGoal(ctx, "alice", "Car", core.Money{Cents: 500}, nil); !errors.Is(err, core.ErrConflict) {
		t.Fatalf("duplicate name must conflict, got %v", err)
	}
}

func TestUpdateGoal(t *testing.T) {
	eachBackend(t, func(t *testing.T, st store.Store) {
		ctx := context.Background()
		s := newSuite(st)
		g := s.mustGoal(t, "alice", "Vacation", 100000)
		s.mustRecord(t, "alice", core.Income, "Vacation", 40000)

		target := core.Money{Cents: 30000}
		updated, err := s.goals.UpdateGoal(ctx, "alice", g.ID, core.GoalPatch{Target: &target})
		if err != nil {
			t.Fatal(err)
		}
		if updated.Status != core.Completed || updated.Current.Cents != 40000 {
			t.Fatalf("lowering the target must complete the goal: %+v", updated)
		}

		name := "Holiday"
		if _, err := s.goals.UpdateGoal(ctx, "alice", g.ID, core.GoalPatch{Name: &name}); err != nil {
			t.Fatal(err)
		}
		// Income under the old name no longer matches.
		s.mustRecord(t, "alice", core.Income, "Vacation", 1000)
		s.expectGoal(t, g, 40000, core.Completed)

		empty := ""
		if _, err := s.goals.UpdateGoal(ctx, "alice", g.ID, core.GoalPatch{Name: &empty}); !errors.Is(err, core.ErrEmptyGoalName) {
			t.Fatalf("expected empty name error, got %v", err)
		}
		if _, err := s.goals.UpdateGoal(ctx, "bob", g.ID, core.GoalPatch{Name: &name}); !errors.Is(err, core.ErrNotFound) {
			t.Fatalf("foreign update must be NotFound, got %v", err)
		}
	})
}

func TestListGoalsByDeadline(t *testing.T) {
	s := newSuite(memory.New())
	ctx := context.Background()
	soon := core.NewDate(2025, 6, 1)
	later := core.NewDate(2026, 1, 1)

	for _, g := range []struct {
		name     string
		deadline *core.Date
	}{
		{"Someday", nil},
		{"Later", &later},
		{"Soon", &soon},
	} {
		if _, err := s.goals.CreateGoal(ctx, "alice", g.name, core.Money{Cents: 100}, g.deadline); err != nil {
			t.Fatal(err)
		}
	}

	goals, err := s.goals.ListGoals(ctx, "alice")
	if err != nil {
		t.Fatal(err)
	}
	want := []string{"Soon", "Later", "Someday"}
	if len(goals) != len(want) {
		t.Fatalf("got %d goals, want %d", len(goals), len(want))
	}
	for i, g := range goals {
		if g.Name != want[i] {
			t.Fatalf("position %d: got %s, want %s", i, g.Name, want[i])
		}
	}

	if others, _ := s.goals.ListGoals(ctx, "bob"); len(others) != 0 {
		t.Fatalf("bob must not see alice's goals, got %d", len(others))
	}
}

func TestRemoveGoal(t *testing.T) {
	st := memory.New()
	s := newSuite(st)
	ctx := context.Background()
	g := s.mustGoal(t, "alice", "Vacation", 1000)

	if err := s.goals.RemoveGoal(ctx, "bob", g.ID); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("expected NotFound, got %v", err)
	}
	if err := s.goals.RemoveGoal(ctx, "alice", g.ID); err != nil {
		t.Fatal(err)
	}
	if _, err := s.goals.GetGoal(ctx, "alice", g.ID); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("expected NotFound after removal, got %v", err)
	}

	pending, _ := st.PendingEvents(ctx, 0)
	if len(pending) != 1 || pending[0].Event.Type != core.EventGoalRemoved || pending[0].Event.GoalID != g.ID {
		t.Fatalf("unexpected events %+v", pending)
	}
}
