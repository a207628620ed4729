// Package pipeline wires the playlist poller, the segment worker and the
// retry worker together and owns their shutdown.
package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/agleyzer/hlsdump/internal/downloader"
	"github.com/agleyzer/hlsdump/internal/metrics"
	"github.com/agleyzer/hlsdump/internal/playlist"
	"github.com/agleyzer/hlsdump/internal/queue"
	"github.com/agleyzer/hlsdump/internal/segment"
	"github.com/agleyzer/hlsdump/internal/stats"
	"github.com/agleyzer/hlsdump/internal/tracker"
)

// Config holds the settings of one recording.
type Config struct {
	PlaylistURL string
	Folder      string
	NamePrefix  string

	// PlaylistAttempts is the number of consecutive playlist failures tolerated.
	PlaylistAttempts int
	// Backoff overrides the wait between playlist attempts; nil means 3^n seconds.
	Backoff func(attempt int) time.Duration
	// DrainTimeout bounds how long queued segments are still downloaded after
	// an interrupt.
	DrainTimeout time.Duration
	// RetryRate limits retry attempts per second; zero means unlimited.
	RetryRate float64
}

// Pipeline records one stream. Run may be called again after it returns, for
// example when a standby node regains leadership.
type Pipeline struct {
	cfg          Config
	client       *http.Client
	fetcher      playlist.Fetcher
	recorder     downloader.Recorder
	checkpointer playlist.Checkpointer
	logger       *slog.Logger

	mu     sync.Mutex
	poller *playlist.Poller
	worker *downloader.Worker
	active bool
}

// New creates a pipeline. client downloads segments; fetcher loads the playlist.
func New(cfg Config, client *http.Client, fetcher playlist.Fetcher, logger *slog.Logger) *Pipeline {
	return &Pipeline{
		cfg:     cfg,
		client:  client,
		fetcher: fetcher,
		logger:  logger,
	}
}

// SetRecorder installs the catalog that saved segments are reported to.
func (p *Pipeline) SetRecorder(r downloader.Recorder) {
	p.recorder = r
}

// SetCheckpointer installs the sink for tracker checkpoints.
func (p *Pipeline) SetCheckpointer(c playlist.Checkpointer) {
	p.checkpointer = c
}

// Run records until the playlist ends (nil), ctx is cancelled (ctx.Err())
// or the playlist can no longer be fetched (playlist.ErrPlaylistExhausted).
//
// When the poller stops, the segment queue is closed. After an ended
// playlist every queued segment and retry is finished; after an exhausted
// playlist every queued segment is. On interrupt the worker gets
// DrainTimeout to empty the queue before in-flight downloads are cancelled.
func (p *Pipeline) Run(ctx context.Context, tr *tracker.Tracker) error {
	if err := PrepareFolder(p.cfg.Folder); err != nil {
		return err
	}

	namer := segment.FileNamer{Folder: p.cfg.Folder, NamePrefix: p.cfg.NamePrefix}
	tasks := queue.New[segment.Task]()
	retries := queue.New[segment.RetryTask]()
	// Whatever the workers did not get to is lost.
	defer tasks.Discard()
	defer retries.Discard()
	tasks.Observe(func(n int) { metrics.SetQueueDepth("segments", n) })
	retries.Observe(func(n int) { metrics.SetQueueDepth("retries", n) })

	poller := playlist.NewPoller(playlist.Config{
		PlaylistURL: p.cfg.PlaylistURL,
		MaxAttempts: p.cfg.PlaylistAttempts,
		Backoff:     p.cfg.Backoff,
	}, p.fetcher, tr, tasks, p.logger.With("role", "poller"))
	if p.checkpointer != nil {
		poller.SetCheckpointer(p.checkpointer)
	}

	worker := downloader.NewWorker(p.client, namer, tasks, retries, p.logger.With("role", "worker"))
	retry := downloader.NewRetryWorker(p.client, namer, retries, p.cfg.RetryRate, p.logger.With("role", "retry"))
	if p.recorder != nil {
		worker.SetRecorder(p.recorder)
		retry.SetRecorder(p.recorder)
	}

	p.setActive(poller, worker, true)
	defer p.setActive(poller, worker, false)

	// Workers outlive ctx so they can drain after an interrupt.
	workCtx, cancelWork := context.WithCancel(context.WithoutCancel(ctx))
	defer cancelWork()

	g, gctx := errgroup.WithContext(workCtx)
	g.Go(func() error { return worker.Run(gctx) })
	g.Go(func() error { return retry.Run(gctx) })

	pollErr := poller.Run(ctx)
	tasks.Close()

	exhausted := errors.Is(pollErr, playlist.ErrPlaylistExhausted)
	switch {
	case pollErr == nil:
		p.logger.Info("playlist ended, finishing queued segments", "pending", tasks.Len())
		if tasks.Join(ctx) == nil {
			retries.Close()
			_ = retries.Join(ctx)
		}
	case exhausted:
		p.logger.Info("playlist unavailable, finishing queued segments", "pending", tasks.Len())
		_ = tasks.Join(ctx)
	}
	// An interrupt bounds whatever is still queued by DrainTimeout.
	if (pollErr != nil && !exhausted) || ctx.Err() != nil {
		p.drain(tasks)
	}

	cancelWork()
	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		p.logger.Warn("worker stopped with error", "error", err)
	}

	s := worker.Stats()
	p.logger.Info("recording stopped", "total", s.Total, "failed", s.Failed, "missed", s.Missed)

	switch {
	case pollErr != nil && !errors.Is(pollErr, context.Canceled) && !errors.Is(pollErr, context.DeadlineExceeded):
		return pollErr
	case ctx.Err() != nil:
		return ctx.Err()
	default:
		return nil
	}
}

// drain gives the worker DrainTimeout to finish the closed segment queue.
func (p *Pipeline) drain(tasks *queue.Queue[segment.Task]) {
	pending := tasks.Len()
	if pending == 0 {
		return
	}

	p.logger.Info("draining segment queue", "pending", pending, "timeout", p.cfg.DrainTimeout)
	ctx, cancel := context.WithTimeout(context.Background(), p.cfg.DrainTimeout)
	defer cancel()

	if err := tasks.Join(ctx); err != nil {
		p.logger.Warn("drain timed out, abandoning segments", "pending", tasks.Len())
	}
}

func (p *Pipeline) setActive(poller *playlist.Poller, worker *downloader.Worker, active bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.poller = poller
	p.worker = worker
	p.active = active
}

// Stats returns the counters of the current (or last) run.
func (p *Pipeline) Stats() stats.Stats {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.worker == nil {
		return stats.Stats{}
	}
	return p.worker.Stats()
}

// Epoch returns the overflow epoch of the current (or last) run.
func (p *Pipeline) Epoch() uint64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.poller == nil {
		return 0
	}
	return p.poller.Epoch()
}

// Recording reports whether Run is in progress.
func (p *Pipeline) Recording() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.active
}
