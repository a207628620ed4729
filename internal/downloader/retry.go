package downloader

import (
	"context"
	"log/slog"
	"net/http"

	"golang.org/x/time/rate"

	"github.com/agleyzer/hlsdump/internal/catalog"
	"github.com/agleyzer/hlsdump/internal/metrics"
	"github.com/agleyzer/hlsdump/internal/queue"
	"github.com/agleyzer/hlsdump/internal/segment"
)

// RetryWorker gives each deferred segment exactly one more attempt, with no
// timeout. Whatever happens, the task is never queued again.
type RetryWorker struct {
	client   *http.Client
	namer    segment.Namer
	tasks    *queue.Queue[segment.RetryTask]
	limiter  *rate.Limiter
	recorder Recorder
	logger   *slog.Logger
}

// NewRetryWorker creates a retry worker. ratePerSecond paces attempts;
// zero or negative means unlimited.
func NewRetryWorker(client *http.Client, namer segment.Namer, tasks *queue.Queue[segment.RetryTask], ratePerSecond float64, logger *slog.Logger) *RetryWorker {
	limit := rate.Inf
	if ratePerSecond > 0 {
		limit = rate.Limit(ratePerSecond)
	}

	return &RetryWorker{
		client:  client,
		namer:   namer,
		tasks:   tasks,
		limiter: rate.NewLimiter(limit, 1),
		logger:  logger,
	}
}

// SetRecorder installs a recorder notified of every recovered segment.
func (r *RetryWorker) SetRecorder(rec Recorder) {
	r.recorder = rec
}

// Run drains the retry queue until it is closed (returning nil) or ctx is cancelled.
func (r *RetryWorker) Run(ctx context.Context) error {
	for {
		task, ok := r.tasks.Get(ctx)
		if !ok {
			return ctx.Err()
		}
		r.Retry(ctx, task)
		r.tasks.Done()
	}
}

// Retry makes the single attempt for task. Failures are logged, counted and
// returned wrapped in ErrRetryAttempt; the caller must not re-enqueue.
func (r *RetryWorker) Retry(ctx context.Context, task segment.RetryTask) (Outcome, error) {
	outcome, err := r.retry(ctx, task)
	metrics.ObserveRetry(outcome.String())
	return outcome, err
}

func (r *RetryWorker) retry(ctx context.Context, task segment.RetryTask) (Outcome, error) {
	if fileExists(task.Path) {
		r.logger.Info("retry: file already exists, skipping", "path", task.Path)
		return OutcomeSkipped, nil
	}

	if err := r.limiter.Wait(ctx); err != nil {
		return r.drop(task, &SegmentError{Kind: ErrRetryAttempt, URL: task.URL, Err: err})
	}

	n, err := fetchToFile(ctx, r.client, task.URL, task.Path)
	if err != nil {
		return r.drop(task, &SegmentError{Kind: ErrRetryAttempt, URL: task.URL, Err: err})
	}

	r.logger.Info("retry: retrieved deferred segment", "path", task.Path)
	if r.recorder != nil {
		entry := catalog.Entry{
			Path:     task.Path,
			Prefix:   r.namer.Prefix(),
			Epoch:    task.Epoch,
			Sequence: task.Sequence,
			URL:      task.URL,
			Source:   catalog.SourceRetry,
			Bytes:    n,
		}
		if err := r.recorder.Record(ctx, entry); err != nil {
			r.logger.Warn("failed to catalog segment", "path", task.Path, "error", err)
		}
	}
	return OutcomeSaved, nil
}

func (r *RetryWorker) drop(task segment.RetryTask, err error) (Outcome, error) {
	r.logger.Warn("retry: dropped deferred segment", "seq", task.Sequence, "url", task.URL, "error", err)
	return OutcomeDropped, err
}
