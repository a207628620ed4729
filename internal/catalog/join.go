package catalog

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"

	"github.com/google/renameio/v2"
)

// JoinResult summarises a Join.
type JoinResult struct {
	Segments int
	Missing  int
	Bytes    int64
}

// Join concatenates the catalogued segments of prefix into output in
// playback order. Entries whose file has disappeared are skipped and counted
// as missing. output is replaced atomically.
func (c *Catalog) Join(ctx context.Context, prefix, output string) (JoinResult, error) {
	var res JoinResult

	if prefix == "" {
		prefixes, err := c.Prefixes(ctx)
		if err != nil {
			return res, err
		}
		switch len(prefixes) {
		case 0:
			return res, ErrEmpty
		case 1:
			prefix = prefixes[0]
		default:
			return res, fmt.Errorf("catalog holds %d recordings, choose one with --prefix: %v", len(prefixes), prefixes)
		}
	}

	entries, err := c.List(ctx, prefix)
	if err != nil {
		return res, err
	}

	pending, err := renameio.NewPendingFile(output, renameio.WithPermissions(0o644))
	if err != nil {
		return res, fmt.Errorf("create output: %w", err)
	}
	defer pending.Cleanup()

	for _, e := range entries {
		if err := ctx.Err(); err != nil {
			return res, err
		}

		n, err := appendFile(pending, e.Path)
		if errors.Is(err, fs.ErrNotExist) {
			res.Missing++
			continue
		}
		if err != nil {
			return res, err
		}
		res.Segments++
		res.Bytes += n
	}

	if err := pending.CloseAtomicallyReplace(); err != nil {
		return res, fmt.Errorf("finalize output: %w", err)
	}
	return res, nil
}

func appendFile(w io.Writer, path string) (int64, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()

	n, err := io.Copy(w, f)
	if err != nil {
		return n, fmt.Errorf("append %s: %w", path, err)
	}
	return n, nil
}
