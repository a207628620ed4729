// Package downloader saves media segments to disk. A Worker drains the
// segment queue one task at a time; segments that fail recoverably are handed
// to a RetryWorker for a single best-effort attempt.
package downloader

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/agleyzer/hlsdump/internal/catalog"
	"github.com/agleyzer/hlsdump/internal/metrics"
	"github.com/agleyzer/hlsdump/internal/queue"
	"github.com/agleyzer/hlsdump/internal/segment"
	"github.com/agleyzer/hlsdump/internal/stats"
)

// RetryEnqueuer accepts deferred segments.
type RetryEnqueuer interface {
	Put(task segment.RetryTask) error
}

// Worker downloads segment tasks strictly in queue order. It owns the stats
// counters and the last seen sequence number; nothing else writes them.
type Worker struct {
	client   *http.Client
	namer    segment.Namer
	tasks    *queue.Queue[segment.Task]
	retries  RetryEnqueuer
	stats    *stats.Collector
	recorder Recorder
	logger   *slog.Logger

	lastSeen    uint64
	hasLastSeen bool
}

// NewWorker creates a worker consuming tasks and deferring into retries.
func NewWorker(client *http.Client, namer segment.Namer, tasks *queue.Queue[segment.Task], retries RetryEnqueuer, logger *slog.Logger) *Worker {
	return &Worker{
		client:  client,
		namer:   namer,
		tasks:   tasks,
		retries: retries,
		stats:   stats.NewCollector(),
		logger:  logger,
	}
}

// SetRecorder installs a recorder notified of every saved segment.
func (w *Worker) SetRecorder(r Recorder) {
	w.recorder = r
}

// Stats returns a snapshot of the counters. Safe for concurrent use.
func (w *Worker) Stats() stats.Stats {
	return w.stats.Snapshot()
}

// Run processes tasks until the queue is closed and drained (returning nil)
// or ctx is cancelled.
func (w *Worker) Run(ctx context.Context) error {
	for {
		task, ok := w.tasks.Get(ctx)
		if !ok {
			return ctx.Err()
		}
		w.Process(ctx, task)
		w.tasks.Done()
	}
}

// Process handles one task: counts it, accounts for sequence gaps, saves it
// and reports the counters.
func (w *Worker) Process(ctx context.Context, task segment.Task) Outcome {
	w.stats.AddTotal()

	// Gap accounting ignores epochs: segments lost across a sequence reset
	// are not counted.
	if w.hasLastSeen && task.Sequence > w.lastSeen+1 {
		gap := task.Sequence - w.lastSeen
		w.stats.AddMissed(gap)
		metrics.SegmentsMissed.Add(float64(gap))
	}

	outcome, _ := w.SaveSegment(ctx, task)

	w.lastSeen = task.Sequence
	w.hasLastSeen = true

	metrics.ObserveSegment(outcome.String())
	s := w.stats.Snapshot()
	w.logger.Info("segment processed",
		"seq", task.Sequence,
		"epoch", task.Epoch,
		"outcome", outcome.String(),
		"total", s.Total,
		"failed", s.Failed,
		"missed", s.Missed,
		"targetDuration", task.TargetDuration,
	)
	return outcome
}

// SaveSegment downloads task to its deterministic path. An existing file is
// treated as already saved and no request is made. The request must finish
// within the task's target duration.
func (w *Worker) SaveSegment(ctx context.Context, task segment.Task) (Outcome, error) {
	path := w.namer.Path(task.Epoch, task.Sequence)

	if fileExists(path) {
		w.logger.Info("file already exists, skipping", "path", path)
		return OutcomeSkipped, nil
	}

	reqCtx := ctx
	if task.TargetDuration > 0 {
		var cancel context.CancelFunc
		reqCtx, cancel = context.WithTimeout(ctx, task.TargetDuration)
		defer cancel()
	}

	start := time.Now()
	n, err := fetchToFile(reqCtx, w.client, task.URL, path)
	if err != nil {
		if Deferrable(err) {
			w.DeferSegment(task, path, err)
			return OutcomeDeferred, err
		}
		w.logger.Warn("failed to fetch segment", "seq", task.Sequence, "url", task.URL, "error", err)
		w.stats.AddFailed()
		return OutcomeFailed, err
	}

	metrics.SegmentDuration.Observe(time.Since(start).Seconds())
	metrics.SegmentBytes.Add(float64(n))

	w.record(ctx, catalog.Entry{
		Path:     path,
		Prefix:   w.namer.Prefix(),
		Epoch:    task.Epoch,
		Sequence: task.Sequence,
		URL:      task.URL,
		Source:   catalog.SourcePrimary,
		Bytes:    n,
	})
	return OutcomeSaved, nil
}

// DeferSegment removes whatever is stored at path, queues the segment for a
// retry and counts it as failed. cause is the classified download error. The
// failure is not reconciled if the retry later succeeds.
func (w *Worker) DeferSegment(task segment.Task, path string, cause error) {
	if err := removeFile(path); err != nil {
		w.logger.Debug("failed to remove partial segment", "path", path, "error", err)
	}

	rt := segment.RetryTask{URL: task.URL, Path: path, Sequence: task.Sequence, Epoch: task.Epoch}
	if err := w.retries.Put(rt); err != nil {
		w.logger.Warn("retry queue unavailable, dropping segment", "seq", task.Sequence, "error", err)
	}

	w.stats.AddFailed()
	w.logger.Info("deferring segment", "seq", task.Sequence, "url", task.URL, "error", cause)
}

func (w *Worker) record(ctx context.Context, entry catalog.Entry) {
	if w.recorder == nil {
		return
	}
	if err := w.recorder.Record(ctx, entry); err != nil {
		w.logger.Warn("failed to catalog segment", "path", entry.Path, "error", err)
	}
}
