package downloader

import (
	"context"

	"github.com/agleyzer/hlsdump/internal/catalog"
	"github.com/agleyzer/hlsdump/internal/metrics"
)

// Outcome is the terminal result of one download attempt.
type Outcome int

const (
	// OutcomeSaved means the segment was written to disk.
	OutcomeSaved Outcome = iota
	// OutcomeSkipped means the segment file already existed.
	OutcomeSkipped
	// OutcomeDeferred means the segment was handed to the retry worker.
	OutcomeDeferred
	// OutcomeFailed means the segment was counted as failed and dropped.
	OutcomeFailed
	// OutcomeDropped means a retry attempt failed; the segment is lost.
	OutcomeDropped
)

func (o Outcome) String() string {
	switch o {
	case OutcomeSaved:
		return metrics.OutcomeSaved
	case OutcomeSkipped:
		return metrics.OutcomeSkipped
	case OutcomeDeferred:
		return metrics.OutcomeDeferred
	case OutcomeFailed:
		return metrics.OutcomeFailed
	case OutcomeDropped:
		return metrics.OutcomeDropped
	default:
		return "unknown"
	}
}

// Recorder is told about every segment that reached disk.
type Recorder interface {
	Record(ctx context.Context, entry catalog.Entry) error
}
