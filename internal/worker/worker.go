// Package worker bootstraps the River job queue: document generation
// retries and the periodic identity reconciliation.
package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/d9705996/protestpro/internal/apperr"
	"github.com/d9705996/protestpro/internal/documents"
	"github.com/d9705996/protestpro/internal/identity"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/riverqueue/river"
	"github.com/riverqueue/river/riverdriver/riverpgxv5"
	"github.com/riverqueue/river/rivermigrate"
)

// ErrDisabled is returned by EnqueueGenerate when no queue is running.
var ErrDisabled = errors.New("job queue disabled")

// GenerateDocumentArgs retries a document generation.
type GenerateDocumentArgs struct {
	UserID       string `json:"user_id"`
	PropertyID   string `json:"property_id"`
	DocumentType string `json:"document_type"`
}

// Kind returns the unique job type identifier.
func (GenerateDocumentArgs) Kind() string { return "generate_document" }

// ReconcileArgs runs one identity reconciliation pass.
type ReconcileArgs struct{}

// Kind returns the unique job type identifier.
func (ReconcileArgs) Kind() string { return "reconcile_identities" }

// Generator produces documents. documents.Generator satisfies it.
type Generator interface {
	Generate(ctx context.Context, req documents.Request) (*documents.Result, error)
}

// Reconciler compares provider accounts with profiles.
// identity.Reconciler satisfies it.
type Reconciler interface {
	Run(ctx context.Context) (*identity.ReconcileReport, error)
}

// GenerateDocumentWorker runs GenerateDocumentArgs jobs. Generation is
// idempotent per day, so a retry after a partial success returns the stored
// document.
type GenerateDocumentWorker struct {
	river.WorkerDefaults[GenerateDocumentArgs]
	Docs Generator
	Log  *slog.Logger
}

func (w *GenerateDocumentWorker) Work(ctx context.Context, job *river.Job[GenerateDocumentArgs]) error {
	req := documents.Request{
		UserID:       job.Args.UserID,
		PropertyID:   job.Args.PropertyID,
		DocumentType: job.Args.DocumentType,
	}
	res, err := w.Docs.Generate(ctx, req)
	if err != nil {
		switch apperr.KindOf(err) {
		case apperr.KindValidation, apperr.KindNotFound, apperr.KindConfig:
			// Retrying cannot fix the input or the deployment.
			return river.JobCancel(err)
		}
		return err
	}
	w.Log.InfoContext(ctx, "document retry succeeded", "type", req.DocumentType, "path", res.Filename, "existing", res.IsExisting)
	return nil
}

// Timeout bounds one attempt.
func (w *GenerateDocumentWorker) Timeout(*river.Job[GenerateDocumentArgs]) time.Duration {
	return 2 * time.Minute
}

// ReconcileWorker runs ReconcileArgs jobs.
type ReconcileWorker struct {
	river.WorkerDefaults[ReconcileArgs]
	Reconciler Reconciler
}

func (w *ReconcileWorker) Work(ctx context.Context, _ *river.Job[ReconcileArgs]) error {
	if _, err := w.Reconciler.Run(ctx); err != nil {
		return fmt.Errorf("reconcile identities: %w", err)
	}
	return nil
}

// Queue is the interface exposed by both the real River client and noopQueue.
type Queue interface {
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
	EnqueueGenerate(ctx context.Context, req documents.Request) error
}

// Deps are the services the jobs call.
type Deps struct {
	Docs              Generator
	Reconciler        Reconciler
	ReconcileInterval time.Duration
}

// Client wraps river.Client and exposes a Start/Stop lifecycle.
type Client struct {
	client *river.Client[pgx.Tx]
	log    *slog.Logger
}

// Start begins processing queued jobs.
func (c *Client) Start(ctx context.Context) error { return c.client.Start(ctx) }

// Stop gracefully shuts down the worker client.
func (c *Client) Stop(ctx context.Context) error { return c.client.Stop(ctx) }

// EnqueueGenerate schedules a generation retry. Duplicate requests within
// an hour collapse into one job.
func (c *Client) EnqueueGenerate(ctx context.Context, req documents.Request) error {
	res, err := c.client.Insert(ctx, GenerateDocumentArgs{
		UserID:       req.UserID,
		PropertyID:   req.PropertyID,
		DocumentType: req.DocumentType,
	}, &river.InsertOpts{
		MaxAttempts: 5,
		UniqueOpts:  river.UniqueOpts{ByArgs: true, ByPeriod: time.Hour},
	})
	if err != nil {
		return fmt.Errorf("enqueue generate_document: %w", err)
	}
	c.log.InfoContext(ctx, "document retry enqueued", "job_id", res.Job.ID, "duplicate", res.UniqueSkippedAsDuplicate)
	return nil
}

// noopQueue is used when River is unavailable (e.g. DB_DRIVER=sqlite).
type noopQueue struct{ log *slog.Logger }

func (n *noopQueue) Start(_ context.Context) error {
	n.log.Info("worker queue disabled (sqlite driver, River requires postgres)")
	return nil
}
func (n *noopQueue) Stop(_ context.Context) error { return nil }

func (n *noopQueue) EnqueueGenerate(ctx context.Context, req documents.Request) error {
	n.log.WarnContext(ctx, "document retry dropped", "user_id", req.UserID, "property_id", req.PropertyID, "type", req.DocumentType)
	return ErrDisabled
}

// New creates a queue implementation appropriate for the given driver.
//   - "postgres": returns a fully-functional River client backed by pool.
//   - anything else: returns a no-op queue that logs a startup notice.
//
// pool may be nil when driver != "postgres".
func New(_ context.Context, pool *pgxpool.Pool, driver string, concurrency int, log *slog.Logger, deps Deps) (Queue, error) {
	if driver != "postgres" {
		return &noopQueue{log: log}, nil
	}
	workers := river.NewWorkers()
	river.AddWorker(workers, &GenerateDocumentWorker{Docs: deps.Docs, Log: log})
	river.AddWorker(workers, &ReconcileWorker{Reconciler: deps.Reconciler})

	var periodic []*river.PeriodicJob
	if deps.ReconcileInterval > 0 {
		periodic = append(periodic, river.NewPeriodicJob(
			river.PeriodicInterval(deps.ReconcileInterval),
			func() (river.JobArgs, *river.InsertOpts) { return ReconcileArgs{}, nil },
			&river.PeriodicJobOpts{RunOnStart: true},
		))
	}

	client, err := river.NewClient(riverpgxv5.New(pool), &river.Config{
		Queues: map[string]river.QueueConfig{
			river.QueueDefault: {MaxWorkers: concurrency},
		},
		Workers:      workers,
		PeriodicJobs: periodic,
		Logger:       log,
	})
	if err != nil {
		return nil, fmt.Errorf("create river client: %w", err)
	}
	return &Client{client: client, log: log}, nil
}

// MigrateRiver runs River's built-in schema migrations against the given pool.
// Only call this when DB_DRIVER=postgres.
func MigrateRiver(ctx context.Context, db *pgxpool.Pool) error {
	migrator, err := rivermigrate.New(riverpgxv5.New(db), nil)
	if err != nil {
		return fmt.Errorf("create river migrator: %w", err)
	}
	if _, err := migrator.Migrate(ctx, rivermigrate.DirectionUp, nil); err != nil {
		return fmt.Errorf("run river migrations: %w", err)
	}
	return nil
}
