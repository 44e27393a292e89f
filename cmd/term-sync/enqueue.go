package main

import (
	"context"
	"fmt"
	"time"

	"github.com/Sternrassler/go-term-sync/pkg/dispatch"
	"github.com/Sternrassler/go-term-sync/pkg/jobs"
	"github.com/Sternrassler/go-term-sync/pkg/queue"
	"github.com/robfig/cron/v3"
	"github.com/spf13/cobra"
)

// scheduleParser accepts standard five-field specs, an optional seconds field
// and descriptors such as @daily.
var scheduleParser = cron.NewParser(cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

func newEnqueueCmd(a *app) *cobra.Command {
	var schedule string

	cmd := &cobra.Command{
		Use:   "enqueue",
		Short: "Put one work item per catalog job on the queue",
		Long: `Build today's work items from the job catalog and add them to the Redis
work queue, MAX_CONCURRENCY at a time with up to MAX_RETRIES attempts each.

With --schedule the command keeps running and enqueues on every tick:
  term-sync enqueue --schedule "0 5 * * *"
  term-sync enqueue --schedule @daily
`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			cat, err := jobs.LoadCatalog(a.cfg.JobCatalog)
			if err != nil {
				return err
			}

			var sched cron.Schedule
			if schedule != "" {
				if sched, err = scheduleParser.Parse(schedule); err != nil {
					return fmt.Errorf("invalid --schedule %q: %w", schedule, err)
				}
			}

			rdb, err := a.redisClient(ctx)
			if err != nil {
				return err
			}
			defer rdb.Close()

			q := queue.NewRedisQueue(rdb, a.cfg.QueueName, a.logger)
			q.SetReferenceTTL(a.cfg.QueueReferenceTTL)
			d := dispatch.New(q, a.cfg.Dispatch(), a.logger)
			a.startMetrics(ctx)

			if sched == nil {
				summary := d.Dispatch(ctx, cat.WorkItems(time.Now()))
				printSummary(a, summary)
				if summary.Failed > 0 {
					return fmt.Errorf("%d of %d items could not be enqueued", summary.Failed, summary.Total)
				}
				return nil
			}
			return runScheduled(ctx, a, sched, func(now time.Time) {
				printSummary(a, d.Dispatch(ctx, cat.WorkItems(now)))
			})
		},
	}

	cmd.Flags().StringVar(&schedule, "schedule", "", "Cron spec; keep running and enqueue on every tick")
	return cmd
}

// runScheduled calls fn on every tick of sched until ctx is done.
func runScheduled(ctx context.Context, a *app, sched cron.Schedule, fn func(now time.Time)) error {
	c := cron.New(cron.WithParser(scheduleParser))
	c.Schedule(sched, cron.FuncJob(func() { fn(time.Now()) }))
	c.Start()

	a.logger.Info().
		Time("next", sched.Next(time.Now())).
		Msg("Scheduler started")

	<-ctx.Done()
	<-c.Stop().Done()
	a.logger.Info().Msg("Scheduler stopped")
	return nil
}

func printSummary(a *app, s dispatch.Summary) {
	fmt.Fprintf(a.out, "Summary: %d succeeded, %d failed out of %d\n", s.Succeeded, s.Failed, s.Total)
}
