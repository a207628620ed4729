package pipeline

import (
	"context"
	"errors"
	"time"

	"github.com/agleyzer/hlsdump/internal/tracker"
)

// Leadership is the view of the raft group the standby loop needs.
type Leadership interface {
	IsLeader() bool
	LeadershipChanges() <-chan bool
	Resume() (state tracker.State, ok bool, err error)
	Reset() error
}

// RunStandby records only while this node leads the group. On every
// election win the tracker is restored from the replicated checkpoint, so
// segments the previous leader already queued are not queued again. Losing
// leadership stops the local recording; the loop then waits to be elected
// again. It returns when ctx is cancelled, the playlist ends or recording
// fails fatally.
func (p *Pipeline) RunStandby(ctx context.Context, l Leadership) error {
	tr := tracker.New()
	changes := l.LeadershipChanges()

	for {
		if !l.IsLeader() {
			p.logger.Info("standing by for leadership")
			if err := waitForLeadership(ctx, changes, l); err != nil {
				return err
			}
		}

		state, ok, err := l.Resume()
		if err != nil {
			p.logger.Warn("failed to read replicated checkpoint", "error", err)
			if err := pause(ctx, standbyRetryInterval); err != nil {
				return err
			}
			continue
		}
		if ok {
			tr.Restore(state)
			p.logger.Info("resuming from replicated checkpoint", "epoch", tr.Epoch())
		} else if err := l.Reset(); err != nil {
			p.logger.Warn("failed to reset replicated checkpoint", "error", err)
			if err := pause(ctx, standbyRetryInterval); err != nil {
				return err
			}
			continue
		}

		err = p.lead(ctx, changes, tr)
		if errors.Is(err, errLostLeadership) {
			continue
		}
		return err
	}
}

var errLostLeadership = errors.New("lost leadership")

// standbyRetryInterval spaces out attempts to read the replicated state.
var standbyRetryInterval = time.Second

// lead runs the pipeline until it returns or leadership is lost.
func (p *Pipeline) lead(ctx context.Context, changes <-chan bool, tr *tracker.Tracker) error {
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- p.Run(runCtx, tr) }()

	for {
		select {
		case err := <-done:
			return err
		case leader := <-changes:
			if leader {
				continue
			}
			p.logger.Warn("lost leadership, stopping recording")
			cancel()
			<-done
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return errLostLeadership
		}
	}
}

func waitForLeadership(ctx context.Context, changes <-chan bool, l Leadership) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case leader := <-changes:
			if leader && l.IsLeader() {
				return nil
			}
		}
	}
}

func pause(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
