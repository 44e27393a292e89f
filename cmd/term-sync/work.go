package main

import (
	"fmt"
	"time"

	"github.com/Sternrassler/go-term-sync/pkg/queue"
	"github.com/spf13/cobra"
)

func newWorkCmd(a *app) *cobra.Command {
	var (
		once bool
		wait time.Duration
	)

	cmd := &cobra.Command{
		Use:   "work",
		Short: "Process work items from the queue",
		Long: `Take work items off the Redis queue one at a time and run the job each one
describes. A job whose fetch fails is logged and skipped; the worker moves on.

By default the worker runs until interrupted. With --once it stops as soon as
the queue is empty.
`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			rdb, err := a.redisClient(ctx)
			if err != nil {
				return err
			}
			defer rdb.Close()

			a.startMetrics(ctx)
			q := queue.NewRedisQueue(rdb, a.cfg.QueueName, a.logger)

			stats, err := a.processor().Drain(ctx, q, wait, once)
			fmt.Fprintf(a.out, "Processed %d items: %d succeeded, %d skipped, %d failed\n",
				stats.Processed, stats.Succeeded, stats.Skipped, stats.Failed)
			return err
		},
	}

	cmd.Flags().BoolVar(&once, "once", false, "Stop when the queue is empty")
	cmd.Flags().DurationVar(&wait, "wait", 5*time.Second, "How long to block waiting for an item")
	return cmd
}
