// Command indexctl administers the embedding pipeline: it provisions the
// vector index and database schema, submits jobs, inspects the idempotency
// ledger, and queries or deletes indexed documents.
//
// Usage:
//
//	indexctl [--config configs/development.yaml] <command> [flags]
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/Adithya-Monish-Kumar-K/Document-Embedding-Pipeline/internal/app"
	"github.com/Adithya-Monish-Kumar-K/Document-Embedding-Pipeline/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/Document-Embedding-Pipeline/pkg/logger"
	"github.com/joho/godotenv"
	"github.com/urfave/cli/v2"
)

const appKey = "app"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newApp().RunContext(ctx, os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "indexctl: %v\n", err)
		os.Exit(1)
	}
}

func newApp() *cli.App {
	return &cli.App{
		Name:  "indexctl",
		Usage: "Administer the document embedding pipeline",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Path to config file (empty for defaults and EW_* variables only)",
				Value:   "configs/development.yaml",
			},
			&cli.StringFlag{
				Name:    "log-level",
				Aliases: []string{"l"},
				Usage:   "Set logging level (debug, info, warn, error)",
				Value:   "warn",
			},
		},
		Before: setup,
		After:  teardown,
		Commands: []*cli.Command{
			{
				Name:   "migrate",
				Usage:  "Apply Postgres migrations and the Cassandra ledger schema",
				Action: migrateCommand,
				Flags: []cli.Flag{
					&cli.IntFlag{
						Name:  "down",
						Usage: "Roll back this many Postgres migrations instead",
					},
					&cli.IntFlag{
						Name:  "replication-factor",
						Usage: "Replication factor for a newly created Cassandra keyspace",
						Value: 1,
					},
				},
			},
			{
				Name:   "provision",
				Usage:  "Create the vector index for the configured backend and dimension",
				Action: provisionCommand,
			},
			{
				Name:   "publish",
				Usage:  "Submit document jobs to the embedding queue",
				Action: publishCommand,
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "id", Usage: "Document id"},
					&cli.StringFlag{Name: "owner", Usage: "Owner id"},
					&cli.StringFlag{Name: "type", Usage: "Document type (pdf, text, markdown, html, url, image)"},
					&cli.StringFlag{Name: "source", Usage: "Source reference (s3://bucket/key, https://..., or a key in the default bucket)"},
					&cli.StringFlag{
						Name:    "file",
						Aliases: []string{"f"},
						Usage:   "Publish every job in a JSON-lines file instead",
					},
				},
			},
			{
				Name:      "ledger",
				Usage:     "Show the ledger entry for each document id",
				ArgsUsage: "<document-id>...",
				Action:    ledgerCommand,
			},
			{
				Name:   "query",
				Usage:  "Embed text and list the nearest documents",
				Action: queryCommand,
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:     "text",
						Aliases:  []string{"t"},
						Usage:    "Query text",
						Required: true,
					},
					&cli.IntFlag{
						Name:    "top-k",
						Aliases: []string{"k"},
						Usage:   "Number of matches to return",
						Value:   10,
					},
				},
			},
			{
				Name:      "delete",
				Usage:     "Remove documents from the vector index",
				ArgsUsage: "<document-id>...",
				Action:    deleteCommand,
			},
		},
	}
}

func setup(c *cli.Context) error {
	_ = godotenv.Load()
	cfg, err := config.Load(c.String("config"))
	if err != nil {
		return err
	}
	logger.Setup(c.String("log-level"), "text")
	c.App.Metadata = map[string]interface{}{appKey: app.New(cfg, nil, nil)}
	return nil
}

func teardown(c *cli.Context) error {
	if a, ok := c.App.Metadata[appKey].(*app.App); ok {
		return a.Close()
	}
	return nil
}

func appFrom(c *cli.Context) *app.App {
	return c.App.Metadata[appKey].(*app.App)
}
