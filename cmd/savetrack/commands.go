package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"savetrack/internal/amqp"
	"savetrack/internal/core"
	"savetrack/internal/services"
)

var errUsage = errors.New("invalid usage")

type app struct {
	ledger  *services.LedgerService
	goals   *services.GoalService
	deposit *services.DepositService
	owner   string
	out     io.Writer
	consume func(ctx context.Context, handle func(*amqp.EventMessage) error) error
}

type command struct {
	name    string
	summary string
	run     func(a *app, ctx context.Context, args []string) error
}

var commands = []command{
	{"record", "record an income or expense", (*app).record},
	{"amend", "change fields of a transaction", (*app).amend},
	{"remove", "delete a transaction", (*app).remove},
	{"list", "list transactions, newest first, optionally filtered", (*app).list},
	{"summary", "show totals with per-category and daily breakdowns", (*app).summary},
	{"goal-add", "create a savings goal", (*app).goalAdd},
	{"goal-update", "rename a goal or change its target or deadline", (*app).goalUpdate},
	{"goal-remove", "delete a goal", (*app).goalRemove},
	{"goals", "list goals by deadline", (*app).listGoals},
	{"deposit", "move money into a goal", (*app).depositTo},
	{"watch", "print events relayed to the broker", (*app).watch},
}

func (a *app) run(ctx context.Context, name string, args []string) error {
	for _, c := range commands {
		if c.name == name {
			return c.run(a, ctx, args)
		}
	}
	return fmt.Errorf("%w: unknown command %q", errUsage, name)
}

func (a *app) flags(name string) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	return fs
}

func parse(fs *flag.FlagSet, args []string) error {
	if err := fs.Parse(args); err != nil {
		return fmt.Errorf("%w: %s: %v", errUsage, fs.Name(), err)
	}
	return nil
}

// visited reports the flags set explicitly on the command line.
func visited(fs *flag.FlagSet) map[string]bool {
	set := make(map[string]bool)
	fs.Visit(func(f *flag.Flag) { set[f.Name] = true })
	return set
}

func oneArg(fs *flag.FlagSet) (string, error) {
	if fs.NArg() != 1 {
		return "", fmt.Errorf("%w: %s expects exactly one ID", errUsage, fs.Name())
	}
	return fs.Arg(0), nil
}

func (a *app) record(ctx context.Context, args []string) error {
	fs := a.flags("record")
	kind := fs.String("kind", "expense", "income or expense")
	category := fs.String("category", "", "category; income matching a goal name moves that goal")
	amount := fs.String("amount", "", "amount, e.g. 12.50")
	date := fs.String("date", "", "date as YYYY-MM-DD (default today)")
	notes := fs.String("notes", "", "free text")
	key := fs.String("key", "", "idempotency key")
	if err := parse(fs, args); err != nil {
		return err
	}

	req := services.RecordRequest{Category: *category, Notes: *notes, IdempotencyKey: *key}
	var err error
	if req.Kind, err = core.ParseKind(*kind); err != nil {
		return err
	}
	if req.Amount, err = core.ParseAmount(*amount); err != nil {
		return err
	}
	if *date != "" {
		if req.Date, err = core.ParseDate(*date); err != nil {
			return err
		}
	}

	t, err := a.ledger.RecordTransaction(ctx, a.owner, req)
	if err != nil {
		return err
	}
	fmt.Fprintf(a.out, "recorded %s\n", t.ID)
	return nil
}

func (a *app) amend(ctx context.Context, args []string) error {
	fs := a.flags("amend")
	kind := fs.String("kind", "", "income or expense")
	category := fs.String("category", "", "new category")
	amount := fs.String("amount", "", "new amount")
	date := fs.String("date", "", "new date as YYYY-MM-DD")
	notes := fs.String("notes", "", "new notes")
	if err := parse(fs, args); err != nil {
		return err
	}
	id, err := oneArg(fs)
	if err != nil {
		return err
	}

	var p core.TransactionPatch
	set := visited(fs)
	if set["kind"] {
		k, err := core.ParseKind(*kind)
		if err != nil {
			return err
		}
		p.Kind = &k
	}
	if set["category"] {
		p.Category = category
	}
	if set["amount"] {
		m, err := core.ParseAmount(*amount)
		if err != nil {
			return err
		}
		p.Amount = &m
	}
	if set["date"] {
		d, err := core.ParseDate(*date)
		if err != nil {
			return err
		}
		p.OccurredAt = &d
	}
	if set["notes"] {
		p.Notes = notes
	}

	t, err := a.ledger.AmendTransaction(ctx, a.owner, id, p)
	if err != nil {
		return err
	}
	fmt.Fprintf(a.out, "amended %s\n", t.ID)
	return nil
}

func (a *app) remove(ctx context.Context, args []string) error {
	fs := a.flags("remove")
	if err := parse(fs, args); err != nil {
		return err
	}
	id, err := oneArg(fs)
	if err != nil {
		return err
	}
	if err := a.ledger.RemoveTransaction(ctx, a.owner, id); err != nil {
		return err
	}
	fmt.Fprintf(a.out, "removed %s\n", id)
	return nil
}

func (a *app) list(ctx context.Context, args []string) error {
	fs := a.flags("list")
	search := fs.String("search", "", "only transactions whose category or notes contain this text")
	if err := parse(fs, args); err != nil {
		return err
	}
	txs, err := a.ledger.SearchTransactions(ctx, a.owner, *search)
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(a.out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tDATE\tKIND\tCATEGORY\tAMOUNT\tNOTES")
	for _, t := range txs {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n", t.ID, t.OccurredAt, t.Kind, t.Category, t.Amount, t.Notes)
	}
	return w.Flush()
}

func (a *app) summary(ctx context.Context, args []string) error {
	fs := a.flags("summary")
	if err := parse(fs, args); err != nil {
		return err
	}
	s, err := a.ledger.Summary(ctx, a.owner)
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(a.out, 0, 4, 2, ' ', 0)
	fmt.Fprintf(w, "Income\t%s\n", s.Income)
	fmt.Fprintf(w, "Expense\t%s\n", s.Expense)
	fmt.Fprintf(w, "Balance\t%s\n", s.Balance)
	fmt.Fprintf(w, "Transactions\t%d\n", s.Count)

	if len(s.ByCategory) > 0 {
		fmt.Fprintln(w, "\nEXPENSE BY CATEGORY\tAMOUNT")
		for _, c := range s.ByCategory {
			fmt.Fprintf(w, "%s\t%s\n", c.Name, c.Amount)
		}
	}
	if len(s.Daily) > 0 {
		fmt.Fprintln(w, "\nDATE\tINCOME\tEXPENSE")
		for _, d := range s.Daily {
			fmt.Fprintf(w, "%s\t%s\t%s\n", d.Date, d.Income, d.Expense)
		}
	}
	return w.Flush()
}

func (a *app) goalAdd(ctx context.Context, args []string) error {
	fs := a.flags("goal-add")
	name := fs.String("name", "", "goal name; income in this category counts toward it")
	target := fs.String("target", "", "target amount")
	deadline := fs.String("deadline", "", "optional deadline as YYYY-MM-DD")
	if err := parse(fs, args); err != nil {
		return err
	}

	amount, err := core.ParseAmount(*target)
	if err != nil {
		return err
	}
	var due *core.Date
	if *deadline != "" {
		d, err := core.ParseDate(*deadline)
		if err != nil {
			return err
		}
		due = &d
	}

	g, err := a.goals.CreateGoal(ctx, a.owner, *name, amount, due)
	if err != nil {
		return err
	}
	fmt.Fprintf(a.out, "created goal %s (%s)\n", g.ID, g.Name)
	return nil
}

func (a *app) goalUpdate(ctx context.Context, args []string) error {
	fs := a.flags("goal-update")
	name := fs.String("name", "", "new name")
	target := fs.String("target", "", "new target amount")
	deadline := fs.String("deadline", "", "new deadline as YYYY-MM-DD, or \"none\" to clear it")
	if err := parse(fs, args); err != nil {
		return err
	}
	id, err := oneArg(fs)
	if err != nil {
		return err
	}

	var p core.GoalPatch
	set := visited(fs)
	if set["name"] {
		p.Name = name
	}
	if set["target"] {
		m, err := core.ParseAmount(*target)
		if err != nil {
			return err
		}
		p.Target = &m
	}
	if set["deadline"] {
		if strings.EqualFold(*deadline, "none") {
			p.ClearDeadline = true
		} else {
			d, err := core.ParseDate(*deadline)
			if err != nil {
				return err
			}
			p.Deadline = &d
		}
	}

	g, err := a.goals.UpdateGoal(ctx, a.owner, id, p)
	if err != nil {
		return err
	}
	fmt.Fprintf(a.out, "updated goal %s: %s of %s (%s)\n", g.ID, g.Current, g.Target, g.Status)
	return nil
}

func (a *app) goalRemove(ctx context.Context, args []string) error {
	fs := a.flags("goal-remove")
	if err := parse(fs, args); err != nil {
		return err
	}
	id, err := oneArg(fs)
	if err != nil {
		return err
	}
	if err := a.goals.RemoveGoal(ctx, a.owner, id); err != nil {
		return err
	}
	fmt.Fprintf(a.out, "removed goal %s\n", id)
	return nil
}

func (a *app) listGoals(ctx context.Context, args []string) error {
	fs := a.flags("goals")
	if err := parse(fs, args); err != nil {
		return err
	}
	goals, err := a.goals.ListGoals(ctx, a.owner)
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(a.out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tNAME\tCURRENT\tTARGET\tDEADLINE\tSTATUS")
	for _, g := range goals {
		deadline := "-"
		if g.Deadline != nil {
			deadline = g.Deadline.String()
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n", g.ID, g.Name, g.Current, g.Target, deadline, g.Status)
	}
	return w.Flush()
}

func (a *app) depositTo(ctx context.Context, args []string) error {
	fs := a.flags("deposit")
	amount := fs.String("amount", "", "amount to deposit")
	key := fs.String("key", "", "idempotency key")
	if err := parse(fs, args); err != nil {
		return err
	}
	id, err := oneArg(fs)
	if err != nil {
		return err
	}
	m, err := core.ParseAmount(*amount)
	if err != nil {
		return err
	}

	g, t, err := a.deposit.Deposit(ctx, a.owner, id, m, *key)
	if err != nil {
		return err
	}
	fmt.Fprintf(a.out, "deposited %s into %s: %s of %s (%s), transaction %s\n",
		t.Amount, g.Name, g.Current, g.Target, g.Status, t.ID)
	return nil
}

func (a *app) watch(ctx context.Context, args []string) error {
	fs := a.flags("watch")
	all := fs.Bool("all", false, "show events of every owner")
	if err := parse(fs, args); err != nil {
		return err
	}
	if a.consume == nil {
		return errors.New("event watching is not available")
	}

	w := tabwriter.NewWriter(a.out, 0, 4, 2, ' ', 0)
	return a.consume(ctx, func(msg *amqp.EventMessage) error {
		e := msg.Event
		if !*all && e.OwnerID != a.owner {
			return nil
		}
		fmt.Fprintf(w, "%d\t%s\t%s\tgoal=%s\ttx=%s\tdelta=%d\n",
			msg.ID, e.At.Format("2006-01-02 15:04:05"), e.Type, e.GoalID, e.TransactionID, e.DeltaCents)
		return w.Flush()
	})
}
