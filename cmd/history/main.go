// Command history inspects the relay's SQLite telemetry history.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"

	"cloudpico-bthome/internal/store"
)

const usage = `usage: %s <command>
  migrate                  apply pending schema migrations
  latest <station> [n]     print the newest n observations as JSON lines (default 10)
  count <station>          print the number of stored observations
`

func main() {
	if len(os.Args) < 2 {
		fmt.Fprintf(os.Stderr, usage, os.Args[0])
		os.Exit(1)
	}

	dbPath := os.Getenv("SQLITE_PATH")
	if dbPath == "" {
		dbPath = "./data/relay.db"
	}
	dbPath = filepath.Clean(dbPath)

	// Open applies migrations, so "migrate" only needs to open and close.
	db, err := store.Open(dbPath, nil)
	if err != nil {
		fmt.Fprintf(os.Stderr, "db open: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		if closeErr := store.Close(db); closeErr != nil {
			slog.Error("db close", "err", closeErr)
		}
	}()

	if err := run(context.Background(), store.NewRepository(db), os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "%s: %v\n", os.Args[1], err)
		os.Exit(1)
	}
}

func run(ctx context.Context, repo store.Repository, args []string) error {
	switch args[0] {
	case "migrate":
		fmt.Println("migrations applied")
		return nil

	case "latest":
		if len(args) < 2 {
			return fmt.Errorf("missing station")
		}
		limit := 10
		if len(args) > 2 {
			n, err := strconv.Atoi(args[2])
			if err != nil || n <= 0 {
				return fmt.Errorf("invalid count %q", args[2])
			}
			limit = n
		}
		rows, err := repo.LatestTelemetry(ctx, args[1], limit)
		if err != nil {
			return err
		}
		enc := json.NewEncoder(os.Stdout)
		for _, t := range rows {
			if err := enc.Encode(t); err != nil {
				return err
			}
		}
		return nil

	case "count":
		if len(args) < 2 {
			return fmt.Errorf("missing station")
		}
		n, err := repo.CountTelemetry(ctx, args[1])
		if err != nil {
			return err
		}
		fmt.Println(n)
		return nil

	default:
		return fmt.Errorf("unknown command")
	}
}
