// Command migrate applies the embedded schema migrations and exits.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"HoneyHubUsers/internal/config"
	"HoneyHubUsers/internal/store/postgres"
	"HoneyHubUsers/internal/store/sqlite"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Args[1:], os.Stdout); err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "migrate: %v\n", err)
		os.Exit(1)
	}
}

// run defaults the driver and DSN from the service configuration so the tool
// migrates the same database the server would open.
func run(ctx context.Context, args []string, out io.Writer) error {
	driver, dsn := "", ""
	if cfg, err := config.Load(); err == nil {
		driver, dsn = cfg.DBDriver, cfg.DBDSN
	}

	fs := flag.NewFlagSet("migrate", flag.ContinueOnError)
	fs.SetOutput(out)
	fs.StringVar(&driver, "driver", driver, "database driver: postgres or sqlite")
	fs.StringVar(&dsn, "dsn", dsn, "postgres DSN or sqlite file path")
	timeout := fs.Duration("timeout", 2*time.Minute, "overall timeout")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if dsn == "" {
		return errors.New("dsn is required")
	}

	ctx, cancel := context.WithTimeout(ctx, *timeout)
	defer cancel()

	switch driver {
	case config.DriverPostgres:
		pool, err := postgres.Open(ctx, dsn, 2)
		if err != nil {
			return err
		}
		defer pool.Close()

		applied, err := postgres.Migrate(ctx, pool)
		if err != nil {
			return err
		}
		if len(applied) == 0 {
			_, _ = fmt.Fprintln(out, "schema up to date")
		}
		for _, name := range applied {
			_, _ = fmt.Fprintf(out, "applied %s\n", name)
		}
		return nil

	case config.DriverSQLite:
		db, err := sqlite.Open(dsn)
		if err != nil {
			return err
		}
		defer db.Close()
		_, _ = fmt.Fprintln(out, "schema up to date")
		return nil

	default:
		return fmt.Errorf("unsupported driver %q", driver)
	}
}
