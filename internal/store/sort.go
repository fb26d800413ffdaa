package store

import (
	"sort"

	"savetrack/internal/core"
)

// SortGoals orders goals by deadline ascending, undated goals last, then by
// creation time so equal deadlines list deterministically.
func SortGoals(goals []core.Goal) {
	sort.SliceStable(goals, func(i, j int) bool {
		a, b := goals[i], goals[j]
		switch {
		case a.Deadline == nil && b.Deadline == nil:
			return a.CreatedAt.Before(b.CreatedAt)
		case a.Deadline == nil:
			return false
		case b.Deadline == nil:
			return true
		case !a.Deadline.Equal(b.Deadline.Time):
			return a.Deadline.Before(b.Deadline.Time)
		default:
			return a.CreatedAt.Before(b.CreatedAt)
		}
	})
}

// SortTransactions orders a ledger newest first by ledger date, then creation time.
func SortTransactions(txs []core.Transaction) {
	sort.SliceStable(txs, func(i, j int) bool {
		a, b := txs[i], txs[j]
		if !a.OccurredAt.Equal(b.OccurredAt.Time) {
			return a.OccurredAt.After(b.OccurredAt.Time)
		}
		return a.CreatedAt.After(b.CreatedAt)
	})
}
