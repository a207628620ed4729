// Package cluster replicates playlist tracker checkpoints across a Raft
// group so a standby recorder can take over without re-downloading segments
// the previous leader already queued.
package cluster

import (
	"bytes"
	"encoding/gob"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/hashicorp/raft"

	"github.com/agleyzer/hlsdump/internal/tracker"
)

func init() {
	// Register types for gob encoding/decoding
	gob.Register(CheckpointCommand{})
	gob.Register(ResetCommand{})
}

// ErrStaleCheckpoint is returned by Apply for a checkpoint whose epoch is older
// than the replicated one.
var ErrStaleCheckpoint = errors.New("stale checkpoint")

// ClusterState is the state shared by all nodes.
type ClusterState struct {
	// PlaylistURL identifies the stream the checkpoint belongs to.
	PlaylistURL string
	// Tracker is the last checkpointed tracker state.
	Tracker tracker.State
	// Writer is the node that wrote the last checkpoint.
	Writer string
	// Checkpoints counts the applied checkpoints.
	Checkpoints uint64
	// UpdatedAt is the leader's clock when the last checkpoint was taken.
	UpdatedAt time.Time
}

// CommandType identifies the type of Raft command.
type CommandType uint8

const (
	// CommandCheckpoint stores a tracker checkpoint.
	CommandCheckpoint CommandType = 1
	// CommandReset forgets the stored checkpoint.
	CommandReset CommandType = 2
)

// Command represents a Raft log command.
type Command struct {
	Type CommandType
	Data any
}

// CheckpointCommand carries one tracker checkpoint.
type CheckpointCommand struct {
	PlaylistURL string
	State       tracker.State
	Writer      string
	Timestamp   time.Time
}

// ResetCommand clears the checkpoint, for example when the recorded stream changes.
type ResetCommand struct {
	PlaylistURL string
}

// CheckpointFSM implements raft.FSM over ClusterState.
type CheckpointFSM struct {
	mu     sync.RWMutex
	state  ClusterState
	logger *slog.Logger
}

// NewCheckpointFSM creates an empty FSM.
func NewCheckpointFSM(logger *slog.Logger) *CheckpointFSM {
	return &CheckpointFSM{logger: logger}
}

// Apply applies a Raft log entry to the FSM.
func (f *CheckpointFSM) Apply(log *raft.Log) any {
	var cmd Command
	if err := gob.NewDecoder(bytes.NewReader(log.Data)).Decode(&cmd); err != nil {
		f.logger.Error("failed to decode command", "error", err)
		return fmt.Errorf("decode command: %w", err)
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	switch cmd.Type {
	case CommandCheckpoint:
		return f.applyCheckpoint(cmd.Data)
	case CommandReset:
		return f.applyReset(cmd.Data)
	default:
		f.logger.Error("unknown command type", "type", cmd.Type)
		return fmt.Errorf("unknown command type: %d", cmd.Type)
	}
}

func (f *CheckpointFSM) applyCheckpoint(data any) any {
	c, ok := data.(CheckpointCommand)
	if !ok {
		return fmt.Errorf("invalid checkpoint command data")
	}

	// Epochs only move forward for a given stream.
	if c.PlaylistURL == f.state.PlaylistURL && c.State.Epoch < f.state.Tracker.Epoch {
		f.logger.Warn("rejected stale checkpoint",
			"epoch", c.State.Epoch,
			"current_epoch", f.state.Tracker.Epoch,
			"writer", c.Writer)
		return fmt.Errorf("%w: epoch %d < %d", ErrStaleCheckpoint, c.State.Epoch, f.state.Tracker.Epoch)
	}

	f.state = ClusterState{
		PlaylistURL: c.PlaylistURL,
		Tracker:     copyTrackerState(c.State),
		Writer:      c.Writer,
		Checkpoints: f.state.Checkpoints + 1,
		UpdatedAt:   c.Timestamp,
	}
	f.logger.Debug("applied checkpoint", "epoch", c.State.Epoch, "writer", c.Writer)
	return nil
}

func (f *CheckpointFSM) applyReset(data any) any {
	c, ok := data.(ResetCommand)
	if !ok {
		return fmt.Errorf("invalid reset command data")
	}

	f.state = ClusterState{PlaylistURL: c.PlaylistURL}
	f.logger.Info("reset checkpoint", "playlist", c.PlaylistURL)
	return nil
}

// Snapshot returns an FSMSnapshot for creating a point-in-time snapshot.
func (f *CheckpointFSM) Snapshot() (raft.FSMSnapshot, error) {
	return &fsmSnapshot{state: f.GetState()}, nil
}

// Restore restores the FSM state from a snapshot.
func (f *CheckpointFSM) Restore(snapshot io.ReadCloser) error {
	defer snapshot.Close()

	var state ClusterState
	if err := gob.NewDecoder(snapshot).Decode(&state); err != nil {
		return fmt.Errorf("decode snapshot: %w", err)
	}

	f.mu.Lock()
	f.state = state
	f.mu.Unlock()

	f.logger.Info("restored FSM state from snapshot", "epoch", state.Tracker.Epoch, "checkpoints", state.Checkpoints)
	return nil
}

// GetState returns a deep copy of the current FSM state.
func (f *CheckpointFSM) GetState() ClusterState {
	f.mu.RLock()
	defer f.mu.RUnlock()

	s := f.state
	s.Tracker = copyTrackerState(f.state.Tracker)
	return s
}

func copyTrackerState(s tracker.State) tracker.State {
	t := tracker.New()
	t.Restore(s)
	return t.State()
}

// fsmSnapshot implements raft.FSMSnapshot.
type fsmSnapshot struct {
	state ClusterState
}

// Persist writes the snapshot to the given sink.
func (s *fsmSnapshot) Persist(sink raft.SnapshotSink) error {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(s.state); err != nil {
		sink.Cancel()
		return fmt.Errorf("encode snapshot: %w", err)
	}

	if _, err := sink.Write(buf.Bytes()); err != nil {
		sink.Cancel()
		return fmt.Errorf("write snapshot: %w", err)
	}

	return sink.Close()
}

// Release releases any resources held by the snapshot.
func (s *fsmSnapshot) Release() {}

// EncodeCommand encodes a command for Raft submission.
func EncodeCommand(cmd Command) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(cmd); err != nil {
		return nil, fmt.Errorf("encode command: %w", err)
	}
	return buf.Bytes(), nil
}
