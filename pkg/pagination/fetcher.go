package pagination

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
)

var pagesFetched = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "termsync_pages_fetched_total",
	Help: "Total listing pages fetched by source",
}, []string{"source"})

// ErrTooManyPages is returned when a listing exceeds Config.MaxPages.
var ErrTooManyPages = errors.New("page limit exceeded")

// Config holds fetcher configuration.
type Config struct {
	// MaxPages bounds a single walk so that a server repeating its cursor
	// cannot loop forever.
	MaxPages int
}

// DefaultConfig returns the default fetcher configuration.
func DefaultConfig() Config {
	return Config{
		MaxPages: 10000,
	}
}

// Page is one decoded page of a listing.
type Page[T any] struct {
	Items []T

	// Next is the cursor of the following page. Empty means this is the last page.
	Next string
}

// Source fetches and decodes single pages of one listing.
type Source[T any] interface {
	// Name labels the listing in logs and metrics.
	Name() string

	// FetchPage fetches the page addressed by cursor.
	FetchPage(ctx context.Context, cursor string) (Page[T], error)
}

// Fetcher drives sources page by page.
type Fetcher struct {
	config Config
	logger zerolog.Logger
}

// NewFetcher creates a new fetcher.
func NewFetcher(config Config, logger zerolog.Logger) *Fetcher {
	if config.MaxPages <= 0 {
		config.MaxPages = DefaultConfig().MaxPages
	}

	return &Fetcher{
		config: config,
		logger: logger,
	}
}

// Collect fetches every page of src starting at cursor start and returns the
// concatenation of all page items in page order.
func Collect[T any](ctx context.Context, f *Fetcher, src Source[T], start string) ([]T, error) {
	begin := time.Now()
	name := src.Name()

	var all []T
	cursor := start
	for page := 1; ; page++ {
		if page > f.config.MaxPages {
			return nil, fmt.Errorf("%s: %w (%d)", name, ErrTooManyPages, f.config.MaxPages)
		}

		p, err := src.FetchPage(ctx, cursor)
		if err != nil {
			f.logger.Warn().
				Err(err).
				Str("source", name).
				Int("page", page).
				Msg("Page fetch failed")
			return nil, fmt.Errorf("%s page %d: %w", name, page, err)
		}

		pagesFetched.WithLabelValues(name).Inc()
		all = append(all, p.Items...)

		f.logger.Info().
			Str("source", name).
			Str("cursor", cursor).
			Int("page", page).
			Int("items", len(p.Items)).
			Msg("Fetched page")

		if p.Next == "" {
			f.logger.Debug().
				Str("source", name).
				Int("pages", page).
				Int("items", len(all)).
				Dur("duration", time.Since(begin)).
				Msg("Fetch complete")
			return all, nil
		}
		cursor = p.Next
	}
}
