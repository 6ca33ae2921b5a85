package main

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/Adithya-Monish-Kumar-K/Document-Embedding-Pipeline/internal/ingestion"
	"github.com/Adithya-Monish-Kumar-K/Document-Embedding-Pipeline/internal/ingestion/codec"
	"github.com/Adithya-Monish-Kumar-K/Document-Embedding-Pipeline/internal/ingestion/ledger"
	"github.com/Adithya-Monish-Kumar-K/Document-Embedding-Pipeline/pkg/cassandra"
	"github.com/Adithya-Monish-Kumar-K/Document-Embedding-Pipeline/pkg/postgres"
	"github.com/urfave/cli/v2"
)

var errAnyID = errors.New("at least one document id is required")

func migrateCommand(c *cli.Context) error {
	cfg := appFrom(c).Config
	usesPostgres := cfg.Ledger.Backend == "postgres" || cfg.Index.Backend == "pgvector"

	if steps := c.Int("down"); steps > 0 {
		if !usesPostgres {
			return errors.New("--down only applies to Postgres migrations")
		}
		if err := postgres.Rollback(cfg.Postgres.URL(), steps); err != nil {
			return err
		}
		fmt.Fprintf(c.App.Writer, "rolled back %d migration(s)\n", steps)
		return nil
	}

	if usesPostgres {
		if err := postgres.Migrate(cfg.Postgres.URL()); err != nil {
			return err
		}
		fmt.Fprintln(c.App.Writer, "postgres migrations applied")
	}
	if cfg.Ledger.Backend == "cassandra" {
		if err := cassandra.EnsureKeyspace(c.Context, cfg.Cassandra, c.Int("replication-factor")); err != nil {
			return err
		}
		client, err := appFrom(c).Cassandra()
		if err != nil {
			return err
		}
		if err := ledger.NewCassandra(client, ledger.Policy{}).EnsureSchema(c.Context); err != nil {
			return err
		}
		fmt.Fprintf(c.App.Writer, "cassandra ledger schema ready in keyspace %s\n", cfg.Cassandra.Keyspace)
	}
	if !usesPostgres && cfg.Ledger.Backend != "cassandra" {
		fmt.Fprintln(c.App.Writer, "nothing to migrate")
	}
	return nil
}

func provisionCommand(c *cli.Context) error {
	idx, err := appFrom(c).Index()
	if err != nil {
		return err
	}
	if err := idx.Provision(c.Context); err != nil {
		return err
	}
	cfg := appFrom(c).Config.Index
	fmt.Fprintf(c.App.Writer, "index %s ready (backend %s, dimension %d)\n", cfg.Name, cfg.Backend, idx.Dimension())
	return nil
}

func publishCommand(c *cli.Context) error {
	var jobs []ingestion.DocumentJob
	if path := c.String("file"); path != "" {
		loaded, err := readJobs(path)
		if err != nil {
			return err
		}
		jobs = loaded
	} else {
		if c.String("id") == "" || c.String("source") == "" {
			return errors.New("either --file or --id and --source are required")
		}
		jobs = []ingestion.DocumentJob{{
			ID:        c.String("id"),
			OwnerID:   c.String("owner"),
			Type:      ingestion.DocumentType(c.String("type")),
			SourceRef: c.String("source"),
		}}
	}

	pub, err := appFrom(c).Publisher()
	if err != nil {
		return err
	}
	n, err := pub.PublishAll(c.Context, jobs)
	fmt.Fprintf(c.App.Writer, "published %d of %d job(s)\n", n, len(jobs))
	return err
}

// readJobs loads one job per line. Blank lines are skipped and every line
// must pass the same validation the worker applies.
func readJobs(path string) ([]ingestion.DocumentJob, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var jobs []ingestion.DocumentJob
	scanner := bufio.NewScanner(f)
	line := 0
	for scanner.Scan() {
		line++
		raw := scanner.Bytes()
		if len(raw) == 0 {
			continue
		}
		job, err := codec.Decode(raw)
		if err != nil {
			return nil, fmt.Errorf("%s:%d: %w", path, line, err)
		}
		jobs = append(jobs, job)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return jobs, nil
}

func ledgerCommand(c *cli.Context) error {
	if c.NArg() == 0 {
		return errAnyID
	}
	l, err := appFrom(c).Ledger()
	if err != nil {
		return err
	}
	enc := json.NewEncoder(c.App.Writer)
	for _, id := range c.Args().Slice() {
		entry, err := l.Get(c.Context, id)
		if err != nil {
			return err
		}
		if err := enc.Encode(entry); err != nil {
			return err
		}
	}
	return nil
}

func queryCommand(c *cli.Context) error {
	a := appFrom(c)
	emb, err := a.Embedder(c.Context)
	if err != nil {
		return err
	}
	vec, err := emb.Generate(c.Context, ingestion.TypeText, []byte(c.String("text")))
	if err != nil {
		return err
	}
	idx, err := a.Index()
	if err != nil {
		return err
	}
	matches, err := idx.Query(c.Context, vec, c.Int("top-k"))
	if err != nil {
		return err
	}
	for _, m := range matches {
		fmt.Fprintf(c.App.Writer, "%-36s %.4f %v\n", m.ID, m.Score, m.Metadata[ingestion.MetaOwnerID])
	}
	return nil
}

func deleteCommand(c *cli.Context) error {
	if c.NArg() == 0 {
		return errAnyID
	}
	idx, err := appFrom(c).Index()
	if err != nil {
		return err
	}
	for _, id := range c.Args().Slice() {
		if err := idx.Delete(c.Context, id); err != nil {
			return err
		}
		fmt.Fprintf(c.App.Writer, "deleted %s\n", id)
	}
	return nil
}
