package storage

import (
	"context"
	"database/sql"
)

const goalColumns = `id, owner_id, name, target_cents, current_cents, deadline, status, created_at, updated_at`

const transactionColumns = `id, owner_id, kind, category, amount_cents, occurred_on, notes, goal_id, channel, idempotency_key, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanGoal(row rowScanner) (Goal, error) {
	var g Goal
	err := row.Scan(&g.ID, &g.OwnerID, &g.Name, &g.TargetCents, &g.CurrentCents,
		&g.Deadline, &g.Status, &g.CreatedAt, &g.UpdatedAt)
	return g, err
}

func scanTransaction(row rowScanner) (Transaction, error) {
	var t Transaction
	err := row.Scan(&t.ID, &t.OwnerID, &t.Kind, &t.Category, &t.AmountCents, &t.OccurredOn,
		&t.Notes, &t.GoalID, &t.Channel, &t.IdempotencyKey, &t.CreatedAt, &t.UpdatedAt)
	return t, err
}

const createGoal = `
INSERT INTO goals (` + goalColumns + `)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`

func (q *Queries) CreateGoal(ctx context.Context, g Goal) error {
	_, err := q.db.ExecContext(ctx, createGoal,
		g.ID, g.OwnerID, g.Name, g.TargetCents, g.CurrentCents, g.Deadline, g.Status, g.CreatedAt, g.UpdatedAt)
	return err
}

const getGoal = `SELECT ` + goalColumns + ` FROM goals WHERE id = ? AND owner_id = ?`

func (q *Queries) GetGoal(ctx context.Context, id, ownerID string) (Goal, error) {
	return scanGoal(q.db.QueryRowContext(ctx, getGoal, id, ownerID))
}

const getGoalByName = `SELECT ` + goalColumns + ` FROM goals WHERE owner_id = ? AND name = ?`

// GetGoalByName relies on the default BINARY collation, so the match is case-sensitive.
func (q *Queries) GetGoalByName(ctx context.Context, ownerID, name string) (Goal, error) {
	return scanGoal(q.db.QueryRowContext(ctx, getGoalByName, ownerID, name))
}

const updateGoalFields = `
UPDATE goals
SET name = ?1,
    target_cents = ?2,
    deadline = ?3,
    status = CASE WHEN current_cents >= ?2 THEN 'Completed' ELSE 'In Progress' END,
    updated_at = ?4
WHERE id = ?5 AND owner_id = ?6
RETURNING ` + goalColumns

type UpdateGoalFieldsParams struct {
	Name        string
	TargetCents int64
	Deadline    sql.NullString
	UpdatedAt   int64
	ID          string
	OwnerID     string
}

// UpdateGoalFields never writes current_cents; status is derived from the stored value.
func (q *Queries) UpdateGoalFields(ctx context.Context, arg UpdateGoalFieldsParams) (Goal, error) {
	return scanGoal(q.db.QueryRowContext(ctx, updateGoalFields,
		arg.Name, arg.TargetCents, arg.Deadline, arg.UpdatedAt, arg.ID, arg.OwnerID))
}

const adjustGoal = `
UPDATE goals
SET current_cents = MAX(0, current_cents + ?1),
    status = CASE WHEN MAX(0, current_cents + ?1) >= target_cents THEN 'Completed' ELSE 'In Progress' END,
    updated_at = ?2
WHERE id = ?3 AND owner_id = ?4 AND ?1 <= ?5 - current_cents
RETURNING ` + goalColumns

// AdjustGoal is a single statement so concurrent deltas never overwrite each other.
// No row comes back when the goal is missing or the result would pass maxCents.
func (q *Queries) AdjustGoal(ctx context.Context, delta, updatedAt int64, id, ownerID string, maxCents int64) (Goal, error) {
	return scanGoal(q.db.QueryRowContext(ctx, adjustGoal, delta, updatedAt, id, ownerID, maxCents))
}

const deleteGoal = `DELETE FROM goals WHERE id = ? AND owner_id = ?`

func (q *Queries) DeleteGoal(ctx context.Context, id, ownerID string) (int64, error) {
	res, err := q.db.ExecContext(ctx, deleteGoal, id, ownerID)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

const listGoals = `
SELECT ` + goalColumns + `
FROM goals
WHERE owner_id = ?
ORDER BY deadline IS NULL, deadline ASC, created_at ASC`

func (q *Queries) ListGoals(ctx context.Context, ownerID string) ([]Goal, error) {
	rows, err := q.db.QueryContext(ctx, listGoals, ownerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []Goal
	for rows.Next() {
		g, err := scanGoal(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, g)
	}
	return items, rows.Err()
}

const createTransaction = `
INSERT INTO transactions (` + transactionColumns + `)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

func (q *Queries) CreateTransaction(ctx context.Context, t Transaction) error {
	_, err := q.db.ExecContext(ctx, createTransaction,
		t.ID, t.OwnerID, t.Kind, t.Category, t.AmountCents, t.OccurredOn, t.Notes,
		t.GoalID, t.Channel, t.IdempotencyKey, t.CreatedAt, t.UpdatedAt)
	return err
}

const getTransaction = `SELECT ` + transactionColumns + ` FROM transactions WHERE id = ? AND owner_id = ?`

func (q *Queries) GetTransaction(ctx context.Context, id, ownerID string) (Transaction, error) {
	return scanTransaction(q.db.QueryRowContext(ctx, getTransaction, id, ownerID))
}

const getTransactionByKey = `SELECT ` + transactionColumns + ` FROM transactions WHERE owner_id = ? AND idempotency_key = ?`

func (q *Queries) GetTransactionByKey(ctx context.Context, ownerID, key string) (Transaction, error) {
	return scanTransaction(q.db.QueryRowContext(ctx, getTransactionByKey, ownerID, key))
}

const updateTransactionFields = `
UPDATE transactions
SET kind = ?, category = ?, amount_cents = ?, occurred_on = ?, notes = ?, updated_at = ?
WHERE id = ? AND owner_id = ?`

type UpdateTransactionFieldsParams struct {
	Kind        string
	Category    string
	AmountCents int64
	OccurredOn  string
	Notes       string
	UpdatedAt   int64
	ID          string
	OwnerID     string
}

func (q *Queries) UpdateTransactionFields(ctx context.Context, arg UpdateTransactionFieldsParams) (int64, error) {
	res, err := q.db.ExecContext(ctx, updateTransactionFields,
		arg.Kind, arg.Category, arg.AmountCents, arg.OccurredOn, arg.Notes, arg.UpdatedAt, arg.ID, arg.OwnerID)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

const setContribution = `UPDATE transactions SET goal_id = ?, channel = ? WHERE id = ? AND owner_id = ?`

func (q *Queries) SetContribution(ctx context.Context, goalID, channel, id, ownerID string) (int64, error) {
	res, err := q.db.ExecContext(ctx, setContribution, goalID, channel, id, ownerID)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

const deleteTransaction = `DELETE FROM transactions WHERE id = ? AND owner_id = ?`

func (q *Queries) DeleteTransaction(ctx context.Context, id, ownerID string) (int64, error) {
	res, err := q.db.ExecContext(ctx, deleteTransaction, id, ownerID)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

const listTransactions = `
SELECT ` + transactionColumns + `
FROM transactions
WHERE owner_id = ?
ORDER BY occurred_on DESC, created_at DESC`

func (q *Queries) ListTransactions(ctx context.Context, ownerID string) ([]Transaction, error) {
	rows, err := q.db.QueryContext(ctx, listTransactions, ownerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []Transaction
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, t)
	}
	return items, rows.Err()
}

const enqueueOutbox = `INSERT INTO outbox (event_type, payload, created_at) VALUES (?, ?, ?)`

func (q *Queries) EnqueueOutbox(ctx context.Context, eventType, payload string, createdAt int64) error {
	_, err := q.db.ExecContext(ctx, enqueueOutbox, eventType, payload, createdAt)
	return err
}

const pendingOutbox = `
SELECT id, event_type, payload, status, attempts, last_error, created_at, published_at
FROM outbox
WHERE status = 'pending'
ORDER BY id
LIMIT ?`

func (q *Queries) PendingOutbox(ctx context.Context, limit int64) ([]Outbox, error) {
	rows, err := q.db.QueryContext(ctx, pendingOutbox, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []Outbox
	for rows.Next() {
		var o Outbox
		if err := rows.Scan(&o.ID, &o.EventType, &o.Payload, &o.Status, &o.Attempts,
			&o.LastError, &o.CreatedAt, &o.PublishedAt); err != nil {
			return nil, err
		}
		items = append(items, o)
	}
	return items, rows.Err()
}

const markOutboxPublished = `UPDATE outbox SET status = 'published', published_at = ? WHERE id = ?`

func (q *Queries) MarkOutboxPublished(ctx context.Context, publishedAt, id int64) (int64, error) {
	res, err := q.db.ExecContext(ctx, markOutboxPublished, publishedAt, id)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

const markOutboxAttempt = `UPDATE outbox SET attempts = attempts + 1, last_error = ? WHERE id = ?`

func (q *Queries) MarkOutboxAttempt(ctx context.Context, lastError string, id int64) (int64, error) {
	res, err := q.db.ExecContext(ctx, markOutboxAttempt, lastError, id)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

const markOutboxFailed = `UPDATE outbox SET status = 'failed', attempts = attempts + 1, last_error = ? WHERE id = ?`

func (q *Queries) MarkOutboxFailed(ctx context.Context, lastError string, id int64) (int64, error) {
	res, err := q.db.ExecContext(ctx, markOutboxFailed, lastError, id)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

const cleanupOutbox = `DELETE FROM outbox WHERE status = 'published' AND published_at < ?`

func (q *Queries) CleanupOutbox(ctx context.Context, before int64) (int64, error) {
	res, err := q.db.ExecContext(ctx, cleanupOutbox, before)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
