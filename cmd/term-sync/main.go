// Command term-sync enqueues the taxonomy synchronization jobs and processes
// them: term trees and the flat taxonomy list are pulled from the remote site
// and written to the database through stored procedures.
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/Sternrassler/go-term-sync/pkg/client"
	"github.com/Sternrassler/go-term-sync/pkg/config"
	"github.com/Sternrassler/go-term-sync/pkg/credentials"
	"github.com/Sternrassler/go-term-sync/pkg/logging"
	"github.com/Sternrassler/go-term-sync/pkg/metrics"
	"github.com/Sternrassler/go-term-sync/pkg/worker"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd(os.Stdout).ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// app carries the state shared by all subcommands after configuration is loaded.
type app struct {
	out    io.Writer
	cfg    config.Config
	logger zerolog.Logger

	envFile     string
	metricsAddr string
	logLevel    string
}

func newRootCmd(out io.Writer) *cobra.Command {
	a := &app{out: out}

	root := &cobra.Command{
		Use:   "term-sync",
		Short: "Synchronize taxonomy terms from GetOrganized into the RPA database",
		Long: `term-sync keeps the RPA database in line with the taxonomy maintained in
GetOrganized.

The enqueue command puts one work item per catalog job on the Redis work
queue; the work command takes items off the queue and runs them. A single
job can also be run directly with the run command.

Configuration is read from the environment (and a .env file if present):
  MAX_CONCURRENCY, MAX_RETRIES, RETRY_BASE_DELAY   dispatch limits
  REDIS_URL, QUEUE_NAME, QUEUE_REFERENCE_TTL       work queue
  GO_API_USERNAME, GO_API_PASSWORD                 remote account
  DBCONNECTIONSTRINGPROD, DB_DRIVER                database
  JOB_CATALOG                                      optional YAML job catalog
`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.load()
		},
	}
	root.SetOut(out)

	root.PersistentFlags().StringVar(&a.envFile, "env-file", "", "Load environment variables from this file")
	root.PersistentFlags().StringVar(&a.metricsAddr, "metrics-addr", "", "Expose Prometheus metrics on this address (overrides METRICS_ADDR)")
	root.PersistentFlags().StringVar(&a.logLevel, "log-level", "", "Log level: debug, info, warn, error (overrides LOG_LEVEL)")

	root.AddCommand(
		newEnqueueCmd(a),
		newWorkCmd(a),
		newRunCmd(a),
		newJobsCmd(a),
	)
	return root
}

func (a *app) load() error {
	cfg, err := config.Load(a.envFile)
	if err != nil {
		return err
	}
	if a.metricsAddr != "" {
		cfg.MetricsAddr = a.metricsAddr
	}
	if a.logLevel != "" {
		cfg.LogLevel = a.logLevel
	}

	a.cfg = cfg
	logging.Setup(cfg.Logging(os.Stderr))
	a.logger = logging.NewLogger("cli")
	return nil
}

// startMetrics serves metrics in the background when an address is configured.
func (a *app) startMetrics(ctx context.Context) {
	if a.cfg.MetricsAddr == "" {
		return
	}
	go func() {
		if err := metrics.Serve(ctx, a.cfg.MetricsAddr, a.logger); err != nil {
			a.logger.Error().Err(err).Msg("Metrics listener stopped")
		}
	}()
}

func (a *app) redisClient(ctx context.Context) (*redis.Client, error) {
	opts, err := a.cfg.RedisOptions()
	if err != nil {
		return nil, err
	}
	rdb := redis.NewClient(opts)
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("connect to redis at %s: %w", opts.Addr, err)
	}
	a.logger.Info().Str("addr", opts.Addr).Msg("Connected to Redis")
	return rdb, nil
}

func (a *app) processor() *worker.Processor {
	base := client.DefaultConfig("", "")
	base.Timeout = a.cfg.HTTPTimeout
	base.RateLimit = a.cfg.HTTPRateLimit

	return worker.NewProcessor(worker.Options{
		Credentials: credentials.EnvProvider{},
		NewRemote:   worker.NewRemoteFactory(base, a.logger),
		OpenStore:   worker.NewSQLStoreOpener(a.cfg.DBDriver, a.logger),
		Lenient:     a.cfg.TreeFetchLenient,
	}, a.logger)
}
