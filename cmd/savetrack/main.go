package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"savetrack/internal/amqp"
	"savetrack/internal/cli"
	"savetrack/internal/goalsync"
	"savetrack/internal/log"
	"savetrack/internal/services"
)

func main() {
	os.Exit(run())
}

func run() int {
	cli.LoadEnvFile()
	logger := cli.SetupLogger(log.ComponentCLI)
	cfg := cli.LoadAndValidateConfig(logger)

	fs := flag.NewFlagSet("savetrack", flag.ExitOnError)
	owner := fs.String("owner", cfg.DefaultOwner, "owner identity (defaults to SAVETRACK_OWNER)")
	fs.Usage = func() { usage(fs) }
	_ = fs.Parse(os.Args[1:])

	if fs.NArg() == 0 {
		fs.Usage()
		return 2
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	res := cli.InitStore(ctx, logger, cfg)
	defer func() {
		if err := res.Cleanup(); err != nil {
			logger.Error("Failed to close store", log.FieldError, err)
		}
	}()

	engine := goalsync.NewEngine(goalsync.WithLogger(logger))
	a := &app{
		ledger:  services.NewLedgerService(res.Store, engine, logger),
		goals:   services.NewGoalService(res.Store, logger),
		deposit: services.NewDepositService(res.Store, engine, logger),
		owner:   *owner,
		out:     os.Stdout,
		consume: func(ctx context.Context, handle func(*amqp.EventMessage) error) error {
			client, err := cli.InitPublisher(logger, cfg)
			if err != nil {
				return err
			}
			if client == nil {
				return errors.New("AMQP_URL is not set")
			}
			defer client.Close()
			return client.Consume(ctx, handle)
		},
	}

	if err := a.run(ctx, fs.Arg(0), fs.Args()[1:]); err != nil {
		if errors.Is(err, errUsage) {
			fs.Usage()
			return 2
		}
		fmt.Fprintln(os.Stderr, "savetrack:", err)
		return 1
	}
	return 0
}

func usage(fs *flag.FlagSet) {
	fmt.Fprintf(fs.Output(), "Usage: savetrack [-owner ID] <command> [flags]\n\nCommands:\n")
	for _, c := range commands {
		fmt.Fprintf(fs.Output(), "  %-12s %s\n", c.name, c.summary)
	}
	fmt.Fprintln(fs.Output(), "\nGlobal flags:")
	fs.PrintDefaults()
}
