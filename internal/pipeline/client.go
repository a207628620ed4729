package pipeline

import (
	"errors"
	"fmt"
	"net/http"
	"os"
)

// ErrNotDirectory is returned when the output folder exists but is not a directory.
var ErrNotDirectory = errors.New("not a directory")

// PrepareFolder creates folder if it does not exist.
func PrepareFolder(folder string) error {
	info, err := os.Stat(folder)
	switch {
	case err == nil:
		if !info.IsDir() {
			return fmt.Errorf("output folder %s: %w", folder, ErrNotDirectory)
		}
		return nil
	case errors.Is(err, os.ErrNotExist):
		if err := os.MkdirAll(folder, 0o755); err != nil {
			return fmt.Errorf("create output folder: %w", err)
		}
		return nil
	default:
		return fmt.Errorf("stat output folder: %w", err)
	}
}

// NewHTTPClient returns a client that sends userAgent with every request.
// Per-request deadlines come from contexts, so the client has no timeout.
func NewHTTPClient(userAgent string) *http.Client {
	return &http.Client{
		Transport: &userAgentTransport{
			base:      http.DefaultTransport,
			userAgent: userAgent,
		},
	}
}

type userAgentTransport struct {
	base      http.RoundTripper
	userAgent string
}

func (t *userAgentTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if t.userAgent == "" {
		return t.base.RoundTrip(req)
	}
	r := req.Clone(req.Context())
	r.Header.Set("User-Agent", t.userAgent)
	return t.base.RoundTrip(r)
}
