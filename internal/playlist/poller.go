package playlist

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sync/atomic"
	"time"

	"github.com/agleyzer/hlsdump/internal/metrics"
	"github.com/agleyzer/hlsdump/internal/segment"
	"github.com/agleyzer/hlsdump/internal/tracker"
)

// DefaultMaxAttempts is the number of consecutive playlist failures tolerated.
const DefaultMaxAttempts = 3

// Enqueuer accepts tasks in emission order.
type Enqueuer interface {
	Put(task segment.Task) error
}

// Checkpointer receives the tracker state after every diff.
type Checkpointer interface {
	Checkpoint(state tracker.State) error
}

// Config controls the poll loop.
type Config struct {
	// PlaylistURL is the media playlist to refresh
	PlaylistURL string

	// MaxAttempts is the number of consecutive fetch failures before giving up
	MaxAttempts int

	// Backoff returns the wait after the n-th consecutive failure (n >= 1)
	Backoff func(attempt int) time.Duration
}

// ExponentialBackoff waits 3^attempt seconds.
func ExponentialBackoff(attempt int) time.Duration {
	return time.Duration(math.Pow(3, float64(attempt))) * time.Second
}

// Poller periodically refreshes the playlist and enqueues unseen segments.
// It is the only writer of the tracker it is given.
type Poller struct {
	cfg        Config
	fetcher    Fetcher
	tracker    *tracker.Tracker
	queue      Enqueuer
	checkpoint Checkpointer
	logger     *slog.Logger

	// epoch mirrors the tracker epoch for concurrent readers.
	epoch atomic.Uint64
}

// NewPoller creates a poller. Zero Config fields fall back to defaults.
func NewPoller(cfg Config, fetcher Fetcher, tr *tracker.Tracker, queue Enqueuer, logger *slog.Logger) *Poller {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = DefaultMaxAttempts
	}
	if cfg.Backoff == nil {
		cfg.Backoff = ExponentialBackoff
	}

	p := &Poller{
		cfg:     cfg,
		fetcher: fetcher,
		tracker: tr,
		queue:   queue,
		logger:  logger,
	}
	p.epoch.Store(tr.Epoch())
	return p
}

// Epoch returns the overflow epoch of the most recent snapshot. Safe for
// concurrent use.
func (p *Poller) Epoch() uint64 {
	return p.epoch.Load()
}

// SetCheckpointer installs c to receive tracker state after every diff.
func (p *Poller) SetCheckpointer(c Checkpointer) {
	p.checkpoint = c
}

// Run polls until ctx is cancelled, the playlist ends, or fetching fails
// MaxAttempts times in a row. A nil return means the playlist ended.
func (p *Poller) Run(ctx context.Context) error {
	p.logger.Info("starting playlist polling", "url", p.cfg.PlaylistURL)

	failures := 0
	for {
		snap, err := p.fetcher.Fetch(ctx, p.cfg.PlaylistURL)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			metrics.ObservePlaylistFetch(false)

			failures++
			if failures >= p.cfg.MaxAttempts {
				p.logger.Error("failed to get the playlist", "attempts", failures, "error", err)
				return fmt.Errorf("%w after %d attempts: %w", ErrPlaylistExhausted, failures, err)
			}

			wait := p.cfg.Backoff(failures)
			p.logger.Warn("playlist fetch failed, backing off",
				"attempt", failures,
				"wait", wait,
				"error", err,
			)
			if err := sleep(ctx, wait); err != nil {
				return err
			}
			continue
		}
		metrics.ObservePlaylistFetch(true)
		failures = 0

		if err := p.Process(snap); err != nil {
			return err
		}

		if snap.Ended {
			p.logger.Info("playlist ended", "url", p.cfg.PlaylistURL)
			return nil
		}

		if err := sleep(ctx, snap.TargetDuration/2); err != nil {
			return err
		}
	}
}

// Process diffs snap against the tracker and enqueues every unseen segment.
func (p *Poller) Process(snap *Snapshot) error {
	count := len(snap.SegmentURLs)
	w := p.tracker.Observe(snap.SequenceStart, count)

	if w.Reset {
		p.logger.Warn("media sequence reset detected",
			"sequenceStart", snap.SequenceStart,
			"epoch", w.Epoch,
		)
		metrics.OverflowEpoch.Set(float64(w.Epoch))
	}
	p.epoch.Store(w.Epoch)

	for i := w.First; i < count; i++ {
		task := segment.Task{
			Sequence:       snap.SequenceStart + uint64(i),
			Epoch:          w.Epoch,
			URL:            snap.SegmentURLs[i],
			TargetDuration: snap.TargetDuration,
		}
		if err := p.queue.Put(task); err != nil {
			return fmt.Errorf("enqueue segment %d: %w", task.Sequence, err)
		}
	}

	if w.First == count {
		p.logger.Debug("playlist unchanged", "sequenceStart", snap.SequenceStart)
	} else {
		p.logger.Debug("queued new segments",
			"first", snap.SequenceStart+uint64(w.First),
			"count", count-w.First,
			"epoch", w.Epoch,
		)
	}

	if p.checkpoint != nil {
		if err := p.checkpoint.Checkpoint(p.tracker.State()); err != nil {
			p.logger.Warn("failed to checkpoint tracker state", "error", err)
		}
	}

	return nil
}

// sleep waits for d or until ctx is done.
func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
