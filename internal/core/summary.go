package core

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// CategoryAmount represents an amount aggregated by category name.
type CategoryAmount struct {
	Name   string
	Amount Money
}

// DayTotals is one point of the daily income/expense series.
type DayTotals struct {
	Date    Date
	Income  Money
	Expense Money
}

// Summary is the owner's net position across the whole ledger.
type Summary struct {
	Income  Money
	Expense Money
	// Balance is Income minus Expense and may be negative.
	Balance Money
	Count   int

	// ByCategory breaks expenses down by category, largest first.
	ByCategory []CategoryAmount
	// Daily holds one entry per day that has transactions, oldest first.
	Daily []DayTotals
}

// Summarize folds a ledger into its totals. A total that would leave the
// int64 range is reported as ErrAmountOverflow.
func Summarize(txs []Transaction) (Summary, error) {
	var s Summary
	days := make(map[string]*DayTotals)
	categories := make(map[string]Money)

	for _, t := range txs {
		day, ok := days[t.OccurredAt.String()]
		if !ok {
			day = &DayTotals{Date: t.OccurredAt}
			days[t.OccurredAt.String()] = day
		}

		// Per-day and per-category sums are bounded by the checked totals.
		var err error
		switch t.Kind {
		case Income:
			if s.Income, err = s.Income.CheckedAdd(t.Amount); err != nil {
				return Summary{}, fmt.Errorf("income total: %w", err)
			}
			day.Income, _ = day.Income.CheckedAdd(t.Amount)
		case Expense:
			if s.Expense, err = s.Expense.CheckedAdd(t.Amount); err != nil {
				return Summary{}, fmt.Errorf("expense total: %w", err)
			}
			day.Expense, _ = day.Expense.CheckedAdd(t.Amount)
			categories[t.Category], _ = categories[t.Category].CheckedAdd(t.Amount)
		}
		s.Count++
	}
	s.Balance = Money{Cents: s.Income.Cents - s.Expense.Cents}

	for name, amount := range categories {
		s.ByCategory = append(s.ByCategory, CategoryAmount{Name: name, Amount: amount})
	}
	sort.Slice(s.ByCategory, func(i, j int) bool {
		a, b := s.ByCategory[i], s.ByCategory[j]
		if a.Amount.Cents != b.Amount.Cents {
			return a.Amount.Cents > b.Amount.Cents
		}
		return a.Name < b.Name
	})

	for _, day := range days {
		s.Daily = append(s.Daily, *day)
	}
	sort.Slice(s.Daily, func(i, j int) bool {
		return s.Daily[i].Date.Before(s.Daily[j].Date.Time)
	})
	return s, nil
}

// Matches reports whether term occurs in the transaction's category or notes,
// ignoring case. An empty term matches everything.
func (t Transaction) Matches(term string) bool {
	term = strings.ToLower(strings.TrimSpace(term))
	if term == "" {
		return true
	}
	return strings.Contains(strings.ToLower(t.Category), term) ||
		strings.Contains(strings.ToLower(t.Notes), term)
}

const (
	EventTransactionRecorded EventType = "transaction.recorded"
	EventTransactionAmended  EventType = "transaction.amended"
	EventTransactionRemoved  EventType = "transaction.removed"
	EventGoalProgressed      EventType = "goal.progressed"
	EventGoalDeposited       EventType = "goal.deposited"
	EventGoalRemoved         EventType = "goal.removed"
)

type EventType string

// Event is a committed change announced to downstream consumers. Events are
// written in the same unit of work as the change they describe.
type Event struct {
	Type          EventType `json:"type"`
	OwnerID       string    `json:"owner_id"`
	GoalID        string    `json:"goal_id,omitempty"`
	TransactionID string    `json:"transaction_id,omitempty"`
	DeltaCents    int64     `json:"delta_cents,omitempty"`
	CurrentCents  int64     `json:"current_cents,omitempty"`
	Status        Status    `json:"status,omitempty"`
	At            time.Time `json:"at"`
}
