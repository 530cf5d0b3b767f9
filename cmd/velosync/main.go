// Command velosync runs the sync engine from the command line, without the HTTP server.
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"
	"github.com/urfave/cli/v2"
	"github.com/velomail/velo/backend/internal/app"
	"github.com/velomail/velo/backend/internal/config"
	"github.com/velomail/velo/backend/internal/db"
	"github.com/velomail/velo/backend/internal/logging"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newApp(withEngine).RunContext(ctx, os.Args); err != nil {
		log.Fatal().Err(err).Msg("velosync failed")
	}
}

// engine is what the commands need from the assembled application.
type engine interface {
	Initial(ctx context.Context, accountID string, daysBack int) (int, error)
	Delta(ctx context.Context, accountID string) (int, error)
	Backfill(ctx context.Context, accountID string) (int, error)
	EvictOldest(ctx context.Context) (int64, error)
}

// engineFunc runs fn with an engine and releases it afterwards.
type engineFunc func(ctx context.Context, fn func(engine) error) error

func newApp(withEngine engineFunc) *cli.App {
	accountFlag := &cli.StringFlag{
		Name:     "account",
		Aliases:  []string{"a"},
		Usage:    "account `ID`",
		Required: true,
	}

	return &cli.App{
		Name:  "velosync",
		Usage: "sync IMAP accounts into the Velo database",
		Commands: []*cli.Command{
			{
				Name:  "initial",
				Usage: "run an initial sync of an account",
				Flags: []cli.Flag{
					accountFlag,
					&cli.IntFlag{
						Name:  "days",
						Usage: "only sync messages from the last `N` days",
						Value: 365,
					},
				},
				Action: func(c *cli.Context) error {
					if c.Int("days") <= 0 {
						return cli.Exit("--days must be positive", 2)
					}
					return withEngine(c.Context, func(e engine) error {
						stored, err := e.Initial(c.Context, c.String("account"), c.Int("days"))
						if err != nil {
							return err
						}
						return report(c.App.Writer, "stored %d messages\n", stored)
					})
				},
			},
			{
				Name:  "delta",
				Usage: "fetch messages that arrived since the last sync",
				Flags: []cli.Flag{accountFlag},
				Action: func(c *cli.Context) error {
					return withEngine(c.Context, func(e engine) error {
						stored, err := e.Delta(c.Context, c.String("account"))
						if err != nil {
							return err
						}
						return report(c.App.Writer, "stored %d messages\n", stored)
					})
				},
			},
			{
				Name:  "backfill",
				Usage: "categorize inbox threads that have no category yet",
				Flags: []cli.Flag{accountFlag},
				Action: func(c *cli.Context) error {
					return withEngine(c.Context, func(e engine) error {
						n, err := e.Backfill(c.Context, c.String("account"))
						if err != nil {
							return err
						}
						return report(c.App.Writer, "categorized %d threads\n", n)
					})
				},
			},
			{
				Name:  "evict",
				Usage: "trim the attachment cache below its size limit",
				Action: func(c *cli.Context) error {
					return withEngine(c.Context, func(e engine) error {
						freed, err := e.EvictOldest(c.Context)
						if err != nil {
							return err
						}
						return report(c.App.Writer, "freed %d bytes\n", freed)
					})
				},
			},
		},
	}
}

func report(w io.Writer, format string, args ...any) error {
	_, err := fmt.Fprintf(w, format, args...)
	return err
}

// appEngine adapts app.App to engine.
type appEngine struct {
	*app.App
}

func (e appEngine) Initial(ctx context.Context, accountID string, daysBack int) (int, error) {
	return e.Runner.Initial(ctx, accountID, daysBack)
}

func (e appEngine) Delta(ctx context.Context, accountID string) (int, error) {
	return e.Runner.Delta(ctx, accountID)
}

func (e appEngine) EvictOldest(ctx context.Context) (int64, error) {
	return e.Cache.EvictOldest(ctx)
}

func withEngine(ctx context.Context, fn func(engine) error) error {
	cfg, err := config.NewConfig()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	logging.Setup(cfg.Environment, cfg.LogLevel)

	pool, err := db.NewConnection(ctx, cfg)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer db.CloseConnection(pool)

	a, err := app.New(cfg, pool)
	if err != nil {
		return err
	}
	defer a.Close(context.Background())

	return fn(appEngine{a})
}
