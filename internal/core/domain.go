package core

import (
	"strings"
	"time"
	"unicode"
	"unicode/utf8"
)

const (
	Income  Kind = "Income"
	Expense Kind = "Expense"
)

const (
	InProgress Status = "In Progress"
	Completed  Status = "Completed"
)

// Contribution channels through which a transaction can move a goal's accumulator.
const (
	ChannelNone     Channel = ""
	ChannelCategory Channel = "category"
	ChannelDeposit  Channel = "deposit"
)

const (
	// SavingsCategory is the reserved ledger category for deposit transactions.
	SavingsCategory = "Savings"
	MaxNotesLength  = 500
	DateLayout      = "2006-01-02"
)

type (
	Kind    string
	Status  string
	Channel string

	Date struct {
		time.Time
	}

	Money struct {
		Cents int64
	}

	Transaction struct {
		ID         string
		OwnerID    string
		Kind       Kind
		Category   string
		Amount     Money
		OccurredAt Date
		Notes      string

		// GoalID and Channel record which goal this transaction contributed to
		// when it was applied, so reversal never re-resolves by name.
		GoalID  string
		Channel Channel

		// IdempotencyKey is optional; a retried write with the same key returns
		// the original record instead of creating a second one.
		IdempotencyKey string

		CreatedAt time.Time
		UpdatedAt time.Time
	}

	Goal struct {
		ID        string
		OwnerID   string
		Name      string
		Target    Money
		Current   Money
		Deadline  *Date
		Status    Status
		CreatedAt time.Time
		UpdatedAt time.Time
	}

	// TransactionPatch lists the mutable transaction fields; nil means unchanged.
	TransactionPatch struct {
		Kind       *Kind
		Category   *string
		Amount     *Money
		OccurredAt *Date
		Notes      *string
	}

	// GoalPatch lists the client-writable goal fields. Current is deliberately absent.
	GoalPatch struct {
		Name          *string
		Target        *Money
		Deadline      *Date
		ClearDeadline bool
	}
)

func (k Kind) Valid() bool {
	return k == Income || k == Expense
}

// ParseKind accepts the kind names case-insensitively.
func ParseKind(s string) (Kind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "income":
		return Income, nil
	case "expense":
		return Expense, nil
	}
	return "", ErrInvalidKind
}

// DeriveStatus is the only place goal status is computed.
func DeriveStatus(current, target Money) Status {
	if current.Cents >= target.Cents {
		return Completed
	}
	return InProgress
}

// NormalizeCategory trims s and title-cases it: first rune upper, the rest lower.
func NormalizeCategory(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return ""
	}
	r, size := utf8.DecodeRuneInString(s)
	return string(unicode.ToUpper(r)) + strings.ToLower(s[size:])
}

// NewDate creates a new Date from year, month, day
func NewDate(year, month, day int) Date {
	return Date{Time: time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)}
}

// DateOf truncates t to its calendar day in UTC.
func DateOf(t time.Time) Date {
	t = t.UTC()
	return NewDate(t.Year(), int(t.Month()), t.Day())
}

// ParseDate parses a YYYY-MM-DD ledger date.
func ParseDate(s string) (Date, error) {
	t, err := time.Parse(DateLayout, strings.TrimSpace(s))
	if err != nil {
		return Date{}, ErrInvalidDate
	}
	return Date{Time: t}, nil
}

func (d Date) String() string {
	return d.Format(DateLayout)
}

func (d Date) Validate() error {
	if d.IsZero() {
		return ErrInvalidDate
	}
	return nil
}

func (m Money) Validate() error {
	if m.Cents <= 0 {
		return ErrInvalidAmount
	}
	if m.Cents > MaxCents {
		return ErrAmountTooLarge
	}
	return nil
}

func (t Transaction) Validate() error {
	if strings.TrimSpace(t.OwnerID) == "" {
		return ErrEmptyOwner
	}
	if !t.Kind.Valid() {
		return ErrInvalidKind
	}
	if strings.TrimSpace(t.Category) == "" {
		return ErrEmptyCategory
	}
	if err := t.Amount.Validate(); err != nil {
		return err
	}
	if err := t.OccurredAt.Validate(); err != nil {
		return err
	}
	if utf8.RuneCountInString(t.Notes) > MaxNotesLength {
		return ErrNotesTooLong
	}
	return nil
}

// Contributes reports whether t currently holds a delta on some goal.
func (t Transaction) Contributes() bool {
	return t.GoalID != "" && t.Channel != ChannelNone
}

func (g Goal) Validate() error {
	if strings.TrimSpace(g.OwnerID) == "" {
		return ErrEmptyOwner
	}
	if strings.TrimSpace(g.Name) == "" {
		return ErrEmptyGoalName
	}
	if err := g.Target.Validate(); err != nil {
		return err
	}
	if g.Current.Cents < 0 {
		return ErrNegativeAmount
	}
	if g.Current.Cents > MaxCents {
		return ErrAmountTooLarge
	}
	return nil
}

// Apply returns t with the patch applied. Category is normalized.
func (p TransactionPatch) Apply(t Transaction) Transaction {
	if p.Kind != nil {
		t.Kind = *p.Kind
	}
	if p.Category != nil {
		t.Category = NormalizeCategory(*p.Category)
	}
	if p.Amount != nil {
		t.Amount = *p.Amount
	}
	if p.OccurredAt != nil {
		t.OccurredAt = *p.OccurredAt
	}
	if p.Notes != nil {
		t.Notes = *p.Notes
	}
	return t
}

// AffectsGoals reports whether moving from old to updated needs a sync pass.
func AffectsGoals(old, updated Transaction) bool {
	return old.Kind != updated.Kind ||
		old.Category != updated.Category ||
		old.Amount != updated.Amount
}

// Apply returns g with the patch applied and its status recomputed.
func (p GoalPatch) Apply(g Goal) Goal {
	if p.Name != nil {
		g.Name = strings.TrimSpace(*p.Name)
	}
	if p.Target != nil {
		g.Target = *p.Target
	}
	if p.ClearDeadline {
		g.Deadline = nil
	} else if p.Deadline != nil {
		d := *p.Deadline
		g.Deadline = &d
	}
	g.Status = DeriveStatus(g.Current, g.Target)
	return g
}
