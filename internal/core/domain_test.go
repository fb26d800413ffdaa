package core

import (
	"errors"
	"math"
	"strings"
	"testing"
	"time"
)

func TestNormalizeCategory(t *testing.T) {
	cases := map[string]string{
		"vacation":   "Vacation",
		"VACATION":   "Vacation",
		"  vaCation ": "Vacation",
		"élan":       "Élan",
		"":           "",
		"   ":        "",
		"new car":    "New car",
	}
	for in, want := range cases {
		if got := NormalizeCategory(in); got != want {
			t.Errorf("NormalizeCategory(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestDeriveStatus(t *testing.T) {
	target := Money{Cents: 1000}
	if DeriveStatus(Money{Cents: 999}, target) != InProgress {
		t.Fatal("below target must be in progress")
	}
	if DeriveStatus(Money{Cents: 1000}, target) != Completed {
		t.Fatal("equal to target must be completed")
	}
	if DeriveStatus(Money{Cents: 1100}, target) != Completed {
		t.Fatal("above target must be completed")
	}
}

func TestParseKind(t *testing.T) {
	for _, in := range []string{"income", "Income", " INCOME "} {
		if k, err := ParseKind(in); err != nil || k != Income {
			t.Fatalf("%q: got %v, %v", in, k, err)
		}
	}
	if _, err := ParseKind("transfer"); !errors.Is(err, ErrInvalidArgument) {
		t.Fatalf("expected invalid argument, got %v", err)
	}
}

func TestDateValidate(t *testing.T) {
	if err := NewDate(2025, 1, 1).Validate(); err != nil {
		t.Fatalf("expected ok, got %v", err)
	}
	if err := (Date{Time: time.Time{}}).Validate(); !errors.Is(err, ErrInvalidArgument) {
		t.Fatalf("expected invalid argument for zero date, got %v", err)
	}
	if _, err := ParseDate("2025-13-01"); !errors.Is(err, ErrInvalidDate) {
		t.Fatalf("expected ErrInvalidDate, got %v", err)
	}
	d, err := ParseDate("2025-02-03")
	if err != nil || d.String() != "2025-02-03" {
		t.Fatalf("unexpected parse: %v %v", d, err)
	}
}

func TestTransactionValidate(t *testing.T) {
	good := Transaction{
		OwnerID:    "u1",
		Kind:       Income,
		Category:   "Vacation",
		Amount:     Money{Cents: 100},
		OccurredAt: NewDate(2025, 1, 1),
	}
	if err := good.Validate(); err != nil {
		t.Fatalf("expected ok, got %v", err)
	}

	mutate := []func(*Transaction){
		func(tx *Transaction) { tx.OwnerID = "" },
		func(tx *Transaction) { tx.Kind = "Transfer" },
		func(tx *Transaction) { tx.Category = " " },
		func(tx *Transaction) { tx.Amount = Money{} },
		func(tx *Transaction) { tx.Amount = Money{Cents: -5} },
		func(tx *Transaction) { tx.OccurredAt = Date{} },
		func(tx *Transaction) { tx.Notes = strings.Repeat("x", MaxNotesLength+1) },
	}
	for i, m := range mutate {
		tx := good
		m(&tx)
		if err := tx.Validate(); !errors.Is(err, ErrInvalidArgument) {
			t.Fatalf("case %d expected invalid argument, got %v", i, err)
		}
	}
}

func TestGoalPatchRecomputesStatus(t *testing.T) {
	g := Goal{OwnerID: "u1", Name: "Car", Target: Money{Cents: 1000}, Current: Money{Cents: 600}, Status: InProgress}
	lower := Money{Cents: 500}
	g = GoalPatch{Target: &lower}.Apply(g)
	if g.Status != Completed {
		t.Fatalf("lowering target below current must complete the goal, got %s", g.Status)
	}

	d := NewDate(2026, 6, 1)
	g = GoalPatch{Deadline: &d}.Apply(g)
	if g.Deadline == nil || !g.Deadline.Equal(d.Time) {
		t.Fatalf("deadline not applied: %v", g.Deadline)
	}
	g = GoalPatch{ClearDeadline: true}.Apply(g)
	if g.Deadline != nil {
		t.Fatal("deadline not cleared")
	}
}

func TestAffectsGoals(t *testing.T) {
	old := Transaction{Kind: Income, Category: "Vacation", Amount: Money{Cents: 100}, Notes: "a"}
	notes := "b"
	if AffectsGoals(old, TransactionPatch{Notes: &notes}.Apply(old)) {
		t.Fatal("a notes-only change must not trigger a sync pass")
	}
	cat := "car"
	if !AffectsGoals(old, TransactionPatch{Category: &cat}.Apply(old)) {
		t.Fatal("a category change must trigger a sync pass")
	}
}

func TestSummarize(t *testing.T) {
	mar1, mar2 := NewDate(2025, 3, 1), NewDate(2025, 3, 2)
	s, err := Summarize([]Transaction{
		{Kind: Expense, Category: "Food", Amount: Money{Cents: 300}, OccurredAt: mar2},
		{Kind: Income, Category: "Salary", Amount: Money{Cents: 1000}, OccurredAt: mar1},
		{Kind: Expense, Category: "Rent", Amount: Money{Cents: 900}, OccurredAt: mar1},
		{Kind: Expense, Category: "Food", Amount: Money{Cents: 200}, OccurredAt: mar1},
	})
	if err != nil {
		t.Fatal(err)
	}
	if s.Income.Cents != 1000 || s.Expense.Cents != 1400 || s.Balance.Cents != -400 || s.Count != 4 {
		t.Fatalf("unexpected summary: %+v", s)
	}

	wantCategories := []CategoryAmount{{"Rent", Money{Cents: 900}}, {"Food", Money{Cents: 500}}}
	if len(s.ByCategory) != len(wantCategories) {
		t.Fatalf("expected %d categories, got %+v", len(wantCategories), s.ByCategory)
	}
	for i, want := range wantCategories {
		if s.ByCategory[i] != want {
			t.Errorf("category %d = %+v, want %+v", i, s.ByCategory[i], want)
		}
	}

	wantDaily := []struct {
		date            Date
		income, expense int64
	}{
		{mar1, 1000, 1100},
		{mar2, 0, 300},
	}
	if len(s.Daily) != len(wantDaily) {
		t.Fatalf("expected %d days, got %+v", len(wantDaily), s.Daily)
	}
	for i, want := range wantDaily {
		got := s.Daily[i]
		if got.Date.String() != want.date.String() || got.Income.Cents != want.income || got.Expense.Cents != want.expense {
			t.Errorf("day %d = %+v, want %+v", i, got, want)
		}
	}
}

func TestSummarizeReportsOverflow(t *testing.T) {
	huge := Transaction{Kind: Income, Category: "Salary", Amount: Money{Cents: math.MaxInt64 / 2}, OccurredAt: NewDate(2025, 1, 1)}
	if _, err := Summarize([]Transaction{huge, huge, huge}); !errors.Is(err, ErrAmountOverflow) {
		t.Fatalf("expected ErrAmountOverflow, got %v", err)
	}
}

func TestTransactionMatches(t *testing.T) {
	tx := Transaction{Category: "Food", Notes: "Lunch with Sam"}
	tests := []struct {
		term string
		want bool
	}{
		{"", true},
		{"food", true},
		{"FO", true},
		{"lunch", true},
		{" sam ", true},
		{"rent", false},
	}
	for _, tt := range tests {
		if got := tx.Matches(tt.term); got != tt.want {
			t.Errorf("Matches(%q) = %v, want %v", tt.term, got, tt.want)
		}
	}
}
