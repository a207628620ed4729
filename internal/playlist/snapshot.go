// Package playlist polls a live media playlist and turns every newly published
// segment into a download task.
package playlist

import (
	"context"
	"time"
)

// Snapshot is one parsed refresh of a media playlist.
type Snapshot struct {
	// SequenceStart is the media sequence number of the first segment
	SequenceStart uint64

	// SegmentURLs holds absolute segment URLs in playlist order
	SegmentURLs []string

	// TargetDuration is the nominal segment length
	TargetDuration time.Duration

	// Ended is set when the playlist carries EXT-X-ENDLIST
	Ended bool
}

// Fetcher retrieves and parses the playlist at url.
type Fetcher interface {
	Fetch(ctx context.Context, url string) (*Snapshot, error)
}

// FetcherFunc adapts a function to the Fetcher interface.
type FetcherFunc func(ctx context.Context, url string) (*Snapshot, error)

// Fetch calls f(ctx, url).
func (f FetcherFunc) Fetch(ctx context.Context, url string) (*Snapshot, error) {
	return f(ctx, url)
}
