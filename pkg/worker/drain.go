package worker

import (
	"context"
	"errors"
	"time"

	"github.com/Sternrassler/go-term-sync/pkg/queue"
)

// Source yields queued entries.
type Source interface {
	Next(ctx context.Context, timeout time.Duration) (*queue.Entry, error)
}

// DrainStats counts processed items.
type DrainStats struct {
	Processed int
	Succeeded int
	Skipped   int
	Failed    int
}

// Drain processes items from src one at a time. With untilEmpty it returns as
// soon as a wait times out; otherwise it runs until ctx is done. Per-item
// failures are logged and counted, never returned.
func (p *Processor) Drain(ctx context.Context, src Source, wait time.Duration, untilEmpty bool) (DrainStats, error) {
	var stats DrainStats

	for {
		if err := ctx.Err(); err != nil {
			return stats, nil
		}

		entry, err := src.Next(ctx, wait)
		switch {
		case errors.Is(err, queue.ErrEmpty):
			if untilEmpty {
				p.logger.Info().Int("processed", stats.Processed).Msg("Queue drained")
				return stats, nil
			}
			continue
		case errors.Is(err, queue.ErrInvalidEntry):
			stats.Failed++
			p.logger.Error().Err(err).Msg("Discarding unreadable queue entry")
			continue
		case err != nil:
			if ctx.Err() != nil {
				return stats, nil
			}
			return stats, err
		}

		stats.Processed++
		report, _ := p.Process(ctx, entry.Item.Data, entry.Item.Reference)
		switch report.Outcome {
		case OutcomeSucceeded:
			stats.Succeeded++
		case OutcomeSkipped:
			stats.Skipped++
		default:
			stats.Failed++
		}
	}
}
