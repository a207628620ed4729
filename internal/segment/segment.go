// Package segment defines the units of work that flow through the download pipeline.
package segment

import (
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"path/filepath"
	"time"
)

// Task is a newly discovered media segment waiting to be downloaded.
type Task struct {
	// Sequence is the media sequence number of the segment
	Sequence uint64

	// Epoch is the overflow epoch the segment was discovered in.
	// It changes whenever the server resets its sequence numbering.
	Epoch uint64

	// URL is the absolute segment URL
	URL string

	// TargetDuration is the playlist target duration at discovery time
	TargetDuration time.Duration
}

// RetryTask is a deferred segment handed to the retry worker.
type RetryTask struct {
	URL  string
	Path string

	// Sequence and Epoch are carried for bookkeeping only
	Sequence uint64
	Epoch    uint64
}

// Namer maps a segment to its file path.
type Namer interface {
	Path(epoch, sequence uint64) string
	Prefix() string
}

// FileNamer lays segments out as {Folder}/{NamePrefix}-{epoch}#{sequence}.ts.
type FileNamer struct {
	Folder     string
	NamePrefix string
}

// Path returns the deterministic path of a segment.
func (n FileNamer) Path(epoch, sequence uint64) string {
	return filepath.Join(n.Folder, fmt.Sprintf("%s-%d#%d.ts", n.NamePrefix, epoch, sequence))
}

// Prefix returns the name prefix shared by all segments of a recording.
func (n FileNamer) Prefix() string {
	return n.NamePrefix
}

// DefaultPrefix derives a name prefix from the playlist URL so that recordings
// of different streams into the same folder never collide.
func DefaultPrefix(playlistURL string) string {
	sum := md5.Sum([]byte(playlistURL))
	return "video-" + hex.EncodeToString(sum[:])
}
