// Package worker processes dispatched work items: it resolves credentials,
// decodes the job and runs the flat list or term tree pipeline against the
// remote site and the store.
package worker

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/Sternrassler/go-term-sync/pkg/client"
	"github.com/Sternrassler/go-term-sync/pkg/credentials"
	"github.com/Sternrassler/go-term-sync/pkg/jobs"
	"github.com/Sternrassler/go-term-sync/pkg/logging"
	"github.com/Sternrassler/go-term-sync/pkg/pagination"
	"github.com/Sternrassler/go-term-sync/pkg/store"
	"github.com/Sternrassler/go-term-sync/pkg/taxonomy"
	"github.com/Sternrassler/go-term-sync/pkg/termtree"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
)

// Prometheus metrics for job processing.
var (
	jobsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "termsync_jobs_total",
		Help: "Total processed jobs by kind and outcome",
	}, []string{"kind", "outcome"})

	jobDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "termsync_job_duration_seconds",
		Help:    "Job processing time by kind",
		Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600},
	}, []string{"kind"})
)

// Job outcomes.
const (
	OutcomeSucceeded = "succeeded"
	OutcomeSkipped   = "skipped"
	OutcomeFailed    = "failed"
)

var (
	// ErrJobSkipped wraps fetch-level failures: the job wrote nothing and was
	// abandoned for this run.
	ErrJobSkipped = errors.New("job skipped")

	// ErrEmptyItem is returned for items without data or reference.
	ErrEmptyItem = errors.New("item data and reference are required")
)

// Remote is the subset of the HTTP client the pipelines use.
type Remote interface {
	termtree.Poster
	taxonomy.PageFetcher
	FormDigest(ctx context.Context, url string) (string, error)
}

// RemoteFactory creates a remote client for the resolved credentials.
type RemoteFactory func(creds credentials.Credentials) (Remote, error)

// StoreOpener opens the store for the resolved credentials. The closer is
// called when the job finishes.
type StoreOpener func(ctx context.Context, creds credentials.Credentials) (store.Executor, io.Closer, error)

// Options configures a Processor.
type Options struct {
	Credentials credentials.Provider
	NewRemote   RemoteFactory
	OpenStore   StoreOpener

	// Lenient keeps building a term tree when a subtree lookup fails.
	Lenient bool
}

// Report describes one processed job.
type Report struct {
	Job     jobs.Job
	Outcome string

	// Rows is the number of list rows fetched (taxonomy jobs).
	Rows int
	// Tree is the fetched hierarchy (term jobs).
	Tree *termtree.Node

	Succeeded int
	Failed    int
	Duration  time.Duration
}

// Processor runs jobs.
type Processor struct {
	opts   Options
	logger zerolog.Logger
}

// NewProcessor creates a processor.
func NewProcessor(opts Options, logger zerolog.Logger) *Processor {
	return &Processor{
		opts:   opts,
		logger: logger.With().Str("component", "worker").Logger(),
	}
}

// Process handles one queued item. The job name is recovered from reference.
func (p *Processor) Process(ctx context.Context, payload map[string]any, reference string) (Report, error) {
	if len(payload) == 0 || reference == "" {
		jobsTotal.WithLabelValues("unknown", OutcomeFailed).Inc()
		itemLogger := logging.ForItem(p.logger, reference)
		itemLogger.Error().
			Int("fields", len(payload)).
			Err(ErrEmptyItem).
			Msg("Invalid work item")
		return Report{Outcome: OutcomeFailed}, ErrEmptyItem
	}

	job, err := jobs.FromPayload(jobs.NameFromReference(reference), payload)
	if err != nil {
		jobsTotal.WithLabelValues("unknown", OutcomeFailed).Inc()
		itemLogger := logging.ForItem(p.logger, reference)
		itemLogger.Error().Err(err).Msg("Invalid work item")
		return Report{Outcome: OutcomeFailed}, fmt.Errorf("decode item %s: %w", reference, err)
	}
	return p.run(ctx, job, logging.ForItem(p.logger, reference))
}

// RunJob runs job directly, without a queue.
func (p *Processor) RunJob(ctx context.Context, job jobs.Job) (Report, error) {
	if err := job.Validate(); err != nil {
		return Report{Job: job, Outcome: OutcomeFailed}, err
	}
	return p.run(ctx, job, p.logger)
}

func (p *Processor) run(ctx context.Context, job jobs.Job, logger zerolog.Logger) (Report, error) {
	logger = logger.With().
		Str("job", job.Name).
		Str("kind", string(job.Kind)).
		Str("case_type", job.CaseType).
		Logger()

	start := time.Now()
	report, err := p.execute(ctx, job, logger)
	report.Job = job
	report.Duration = time.Since(start)

	switch {
	case err == nil:
		report.Outcome = OutcomeSucceeded
		logger.Info().
			Int("succeeded", report.Succeeded).
			Int("failed", report.Failed).
			Dur("duration", report.Duration).
			Msg("Job finished")
	case errors.Is(err, ErrJobSkipped):
		report.Outcome = OutcomeSkipped
		logger.Error().Err(err).Msg("Job skipped")
	default:
		report.Outcome = OutcomeFailed
		logger.Error().Err(err).Msg("Job failed")
	}

	jobsTotal.WithLabelValues(string(job.Kind), report.Outcome).Inc()
	jobDuration.WithLabelValues(string(job.Kind)).Observe(report.Duration.Seconds())
	return report, err
}

func (p *Processor) execute(ctx context.Context, job jobs.Job, logger zerolog.Logger) (Report, error) {
	creds, err := p.opts.Credentials.Credentials()
	if err != nil {
		return Report{}, skipped("resolve credentials", err)
	}

	remote, err := p.opts.NewRemote(creds)
	if err != nil {
		return Report{}, fmt.Errorf("create remote client: %w", err)
	}

	exec, closer, err := p.opts.OpenStore(ctx, creds)
	if err != nil {
		return Report{}, fmt.Errorf("open store: %w", err)
	}
	if closer != nil {
		defer closer.Close()
	}

	logger.Info().Str("object_type", objectType(job)).Msg("Job started")

	switch job.Kind {
	case jobs.KindTaxonomy:
		return p.pullList(ctx, job, remote, exec, logger)
	case jobs.KindTerm:
		return p.pullTree(ctx, job, remote, exec, logger)
	default:
		return Report{}, fmt.Errorf("%w %q", jobs.ErrUnknownKind, job.Kind)
	}
}

func (p *Processor) pullList(ctx context.Context, job jobs.Job, remote Remote, exec store.Executor, logger zerolog.Logger) (Report, error) {
	puller := taxonomy.NewPuller(remote, exec, logger)
	res, err := puller.Pull(ctx, taxonomy.Params{
		BaseURL:  job.BaseURL,
		CaseType: job.CaseType,
		ViewID:   job.Flat.ViewID,
	})
	if err != nil {
		return Report{}, fetchFailed(ctx, "fetch taxonomy list", err)
	}
	return Report{Rows: res.Rows, Succeeded: res.Succeeded, Failed: res.Failed}, nil
}

func (p *Processor) pullTree(ctx context.Context, job jobs.Job, remote Remote, exec store.Executor, logger zerolog.Logger) (Report, error) {
	cfg := termtree.Config{
		BaseURL:   job.BaseURL,
		CaseType:  job.CaseType,
		TermSetID: job.Tree.TermSetID,
		Lenient:   p.opts.Lenient,
	}

	digest, err := remote.FormDigest(ctx, cfg.FormDigestURL())
	if err != nil {
		return Report{}, fetchFailed(ctx, "obtain form digest", err)
	}

	tree, err := termtree.NewBuilder(remote, digest, cfg, logger).Build(ctx, job.Tree.StartTermID)
	if err != nil {
		return Report{}, fetchFailed(ctx, "fetch term tree", err)
	}

	res := termtree.NewInserter(exec, job.Tree.Procedure(), job.Tree.TermSetID, logger).Insert(ctx, tree)
	return Report{Tree: tree, Succeeded: res.Succeeded, Failed: res.Failed}, nil
}

func objectType(job jobs.Job) string {
	if job.Tree != nil && job.Tree.ObjectType != "" {
		return job.Tree.ObjectType
	}
	return "taxonomy list"
}

func skipped(step string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrJobSkipped, step, err)
}

// fetchFailed skips the job for remote failures (transport, decode, digest or
// a runaway listing). Cancellation and anything else fail it.
func fetchFailed(ctx context.Context, step string, err error) error {
	if ctx.Err() == nil && (client.IsFetchError(err) || errors.Is(err, pagination.ErrTooManyPages)) {
		return skipped(step, err)
	}
	return fmt.Errorf("%s: %w", step, err)
}

// NewRemoteFactory returns a factory building NTLM clients from base with the
// resolved account filled in.
func NewRemoteFactory(base client.Config, logger zerolog.Logger) RemoteFactory {
	return func(creds credentials.Credentials) (Remote, error) {
		cfg := base
		cfg.Username = creds.Username
		cfg.Password = creds.Password
		return client.New(cfg, logger)
	}
}

// NewSQLStoreOpener returns an opener connecting with driver to the
// credentials' connection string.
func NewSQLStoreOpener(driver string, logger zerolog.Logger) StoreOpener {
	return func(ctx context.Context, creds credentials.Credentials) (store.Executor, io.Closer, error) {
		db, err := store.Open(ctx, driver, creds.ConnectionString)
		if err != nil {
			return nil, nil, err
		}
		exec, err := store.NewSQLExecutor(db, driver, logger)
		if err != nil {
			db.Close()
			return nil, nil, err
		}
		return exec, db, nil
	}
}
