package cluster

import (
	"io"
	"os"

	"github.com/hashicorp/go-hclog"
)

// newNoOpHCLogger creates a no-op hclog.Logger for Raft to avoid excessive logging.
func newNoOpHCLogger() hclog.Logger {
	return hclog.New(&hclog.LoggerOptions{
		Name:   "raft",
		Level:  hclog.Off,
		Output: io.Discard,
	})
}

// newRaftLogger returns the logger handed to Raft. Raft is silent unless
// verbose is set, in which case it logs at debug level to out (stderr if nil).
func newRaftLogger(verbose bool, out io.Writer) hclog.Logger {
	if !verbose {
		return newNoOpHCLogger()
	}
	if out == nil {
		out = os.Stderr
	}
	return hclog.New(&hclog.LoggerOptions{
		Name:   "raft",
		Level:  hclog.Debug,
		Output: out,
	})
}
