// Command cache-purge deletes durable cache rows that no lookup can serve
// any more. It reads the same environment as the service.
//
// Usage:
//
//	cache-purge [-older-than 14d] [-timeout 10m]
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/joho/godotenv"

	"places-cache/internal/app"
	"places-cache/internal/common/logging"
	"places-cache/internal/common/utils"
	"places-cache/internal/config"
	"places-cache/internal/storage"
)

func main() {
	_ = godotenv.Load()

	opts, err := parseFlags(os.Args[1:], os.Stderr)
	if errors.Is(err, flag.ErrHelp) {
		os.Exit(0)
	}
	if err != nil {
		os.Exit(2)
	}

	logging.InitGlobalLogger("cache-purge")
	defer logging.MustSync()

	if _, err := run(config.Load(), opts); err != nil {
		fmt.Fprintf(os.Stderr, "cache-purge: %v\n", err)
		logging.MustSync()
		os.Exit(1)
	}
}

type options struct {
	// olderThan is the raw -older-than value; empty means the longest durable TTL
	olderThan string
	timeout   time.Duration
}

func parseFlags(args []string, output io.Writer) (options, error) {
	var opts options
	fs := flag.NewFlagSet("cache-purge", flag.ContinueOnError)
	fs.SetOutput(output)
	fs.StringVar(&opts.olderThan, "older-than", "", "purge rows older than this, e.g. 14d (default: the longest durable TTL)")
	fs.DurationVar(&opts.timeout, "timeout", 10*time.Minute, "abort the purge after this long")
	if err := fs.Parse(args); err != nil {
		return options{}, err
	}
	return opts, nil
}

// purgeAge resolves -older-than against the configured TTLs
func purgeAge(cfg *config.Config, olderThan string) (time.Duration, error) {
	age := cfg.LongestDurableTTL()
	if olderThan != "" {
		d, err := utils.ParseDuration(olderThan)
		if err != nil {
			return 0, fmt.Errorf("invalid -older-than: %w", err)
		}
		age = d
	}
	if age <= 0 {
		return 0, fmt.Errorf("refusing to purge with a non-positive age %v; check the TTL settings", age)
	}
	return age, nil
}

// run purges the durable tier named by cfg and returns the number of rows deleted
func run(cfg *config.Config, opts options) (int64, error) {
	if err := cfg.ValidateDurableTier(); err != nil {
		return 0, err
	}

	olderThan, err := purgeAge(cfg, opts.olderThan)
	if err != nil {
		return 0, err
	}

	durable, err := storage.NewDurableTier(cfg)
	if err != nil {
		return 0, err
	}
	if durable == nil {
		return 0, fmt.Errorf("DURABLE_TIER is none, nothing to purge")
	}
	defer durable.Close()

	timeout := opts.timeout
	if timeout <= 0 {
		timeout = 10 * time.Minute
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	start := time.Now()
	deleted, err := app.PurgeStale(ctx, durable, olderThan)
	if err != nil {
		return 0, err
	}

	logging.Info("Purged stale cache entries",
		logging.Field{Key: "durable_tier", Value: durable.Name()},
		logging.Field{Key: "older_than", Value: olderThan},
		logging.Field{Key: "deleted", Value: deleted},
		logging.Field{Key: "duration", Value: time.Since(start)},
	)
	return deleted, nil
}
