package storage

import (
	"context"
	"database/sql"
)

// DBTX is satisfied by both *sql.DB and *sql.Tx.
type DBTX interface {
	ExecContext(context.Context, string, ...interface{}) (sql.Result, error)
	QueryContext(context.Context, string, ...interface{}) (*sql.Rows, error)
	QueryRowContext(context.Context, string, ...interface{}) *sql.Row
}

func New(db DBTX) *Queries {
	return &Queries{db: db}
}

type Queries struct {
	db DBTX
}

func (q *Queries) WithTx(tx *sql.Tx) *Queries {
	return &Queries{db: tx}
}

// Row types mirror the tables one to one.

type Goal struct {
	ID           string
	OwnerID      string
	Name         string
	TargetCents  int64
	CurrentCents int64
	Deadline     sql.NullString
	Status       string
	CreatedAt    int64
	UpdatedAt    int64
}

type Transaction struct {
	ID             string
	OwnerID        string
	Kind           string
	Category       string
	AmountCents    int64
	OccurredOn     string
	Notes          string
	GoalID         string
	Channel        string
	IdempotencyKey sql.NullString
	CreatedAt      int64
	UpdatedAt      int64
}

type Outbox struct {
	ID          int64
	EventType   string
	Payload     string
	Status      string
	Attempts    int64
	LastError   string
	CreatedAt   int64
	PublishedAt sql.NullInt64
}
