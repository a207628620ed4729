package downloader

import (
	"context"
	"errors"
	"io"
	"io/fs"
	"net/http"
	"os"
	"sync"

	"github.com/google/renameio/v2"
)

// ChunkSize is the amount of segment data held in memory at a time.
const ChunkSize = 32 * 1024

var bufferPool = sync.Pool{
	New: func() any {
		buf := make([]byte, ChunkSize)
		return &buf
	},
}

// fileExists reports whether something is already stored at path.
func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// fetchToFile downloads url into path in ChunkSize chunks and returns the
// number of bytes written. The data lands in a temporary file that replaces
// path only once the whole body has been received, so an interrupted
// download never leaves a partial file at path.
func fetchToFile(ctx context.Context, client *http.Client, url, path string) (int64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return 0, &SegmentError{Kind: ErrSegmentHTTP, URL: url, Err: err}
	}

	resp, err := client.Do(req)
	if err != nil {
		return 0, &SegmentError{Kind: ErrSegmentTransport, URL: url, Err: err}
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return 0, &SegmentError{Kind: ErrSegmentNotFound, URL: url, StatusCode: resp.StatusCode}
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		return 0, &SegmentError{Kind: ErrSegmentHTTP, URL: url, StatusCode: resp.StatusCode}
	}

	pending, err := renameio.NewPendingFile(path, renameio.WithPermissions(0o644))
	if err != nil {
		return 0, &SegmentError{Kind: ErrSegmentStorage, URL: url, Err: err}
	}
	// No-op once the file has been committed.
	defer pending.Cleanup()

	bufp := bufferPool.Get().(*[]byte)
	defer bufferPool.Put(bufp)
	buf := *bufp

	var written int64
	for {
		n, rerr := resp.Body.Read(buf)
		if n > 0 {
			if _, werr := pending.Write(buf[:n]); werr != nil {
				return written, &SegmentError{Kind: ErrSegmentStorage, URL: url, Err: werr}
			}
			written += int64(n)
		}
		if errors.Is(rerr, io.EOF) {
			break
		}
		if rerr != nil {
			return written, &SegmentError{Kind: ErrSegmentTransport, URL: url, Err: rerr}
		}
	}

	if err := pending.CloseAtomicallyReplace(); err != nil {
		return written, &SegmentError{Kind: ErrSegmentStorage, URL: url, Err: err}
	}
	return written, nil
}

// removeFile deletes path, ignoring a missing file. Other errors are returned
// for logging only.
func removeFile(path string) error {
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}
