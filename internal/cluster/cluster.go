package cluster

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/hashicorp/raft"

	"github.com/agleyzer/hlsdump/internal/tracker"
)

var (
	// ErrNotLeader is returned when a write is attempted on a follower.
	ErrNotLeader = errors.New("not the cluster leader")
	// ErrNotStarted is returned before Start or after Shutdown.
	ErrNotStarted = errors.New("cluster not started")
)

// Manager runs this node's Raft instance and exposes the replicated
// checkpoint to the recorder.
type Manager struct {
	config    Config
	raft      *raft.Raft
	fsm       *CheckpointFSM
	transport *raft.NetworkTransport
	leaderCh  chan bool
	logger    *slog.Logger
	mu        sync.RWMutex
	shutdown  bool
}

// NewManager creates a new cluster manager.
func NewManager(config Config, logger *slog.Logger) (*Manager, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &Manager{
		config:   config,
		fsm:      NewCheckpointFSM(logger),
		leaderCh: make(chan bool, 16),
		logger:   logger,
	}, nil
}

// Start initializes and starts the Raft cluster.
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.raft != nil {
		return fmt.Errorf("cluster already started")
	}

	raftConfig := raft.DefaultConfig()
	// Use bind address as LocalID for consistency with bootstrap configuration
	raftConfig.LocalID = raft.ServerID(m.config.BindAddr)
	raftConfig.HeartbeatTimeout = m.config.HeartbeatTimeout
	raftConfig.ElectionTimeout = m.config.ElectionTimeout
	raftConfig.LeaderLeaseTimeout = m.config.HeartbeatTimeout
	raftConfig.SnapshotInterval = m.config.SnapshotInterval
	raftConfig.SnapshotThreshold = m.config.SnapshotThreshold
	raftConfig.NotifyCh = m.leaderCh
	raftConfig.Logger = newRaftLogger(m.config.Verbose, m.config.LogOutput)

	// Checkpoints live only as long as a quorum does.
	logStore := raft.NewInmemStore()
	stableStore := raft.NewInmemStore()
	snapshotStore := raft.NewInmemSnapshotStore()

	addr, err := net.ResolveTCPAddr("tcp", m.config.BindAddr)
	if err != nil {
		return fmt.Errorf("resolve bind address: %w", err)
	}

	transport, err := raft.NewTCPTransport(m.config.BindAddr, addr, 3, 10*time.Second, nil)
	if err != nil {
		return fmt.Errorf("create transport: %w", err)
	}
	m.transport = transport

	r, err := raft.NewRaft(raftConfig, m.fsm, logStore, stableStore, snapshotStore, transport)
	if err != nil {
		transport.Close()
		return fmt.Errorf("create raft: %w", err)
	}
	m.raft = r

	configuration := raft.Configuration{
		Servers: make([]raft.Server, 0, len(m.config.Peers)),
	}
	for _, peer := range m.config.Peers {
		configuration.Servers = append(configuration.Servers, raft.Server{
			ID:       raft.ServerID(peer),
			Address:  raft.ServerAddress(peer),
			Suffrage: raft.Voter,
		})
	}

	future := m.raft.BootstrapCluster(configuration)
	if err := future.Error(); err != nil && err != raft.ErrCantBootstrap {
		m.logger.Error("failed to bootstrap cluster", "error", err)
		// Continue anyway - node might be joining existing cluster
	}

	m.logger.Info("cluster started",
		"node_id", m.config.RaftID,
		"bind", m.config.BindAddr,
		"peers", len(m.config.Peers))

	return nil
}

// Checkpoint replicates the tracker state. Only the leader may call it; it
// returns once a quorum has committed the entry.
func (m *Manager) Checkpoint(state tracker.State) error {
	return m.apply(Command{
		Type: CommandCheckpoint,
		Data: CheckpointCommand{
			PlaylistURL: m.config.PlaylistURL,
			State:       state,
			Writer:      m.config.RaftID,
			Timestamp:   time.Now(),
		},
	})
}

// Reset discards the replicated checkpoint and claims it for this node's stream.
func (m *Manager) Reset() error {
	return m.apply(Command{
		Type: CommandReset,
		Data: ResetCommand{PlaylistURL: m.config.PlaylistURL},
	})
}

func (m *Manager) apply(cmd Command) error {
	m.mu.RLock()
	if m.shutdown {
		m.mu.RUnlock()
		return fmt.Errorf("cluster is shut down")
	}
	r := m.raft
	m.mu.RUnlock()

	if r == nil {
		return ErrNotStarted
	}
	if r.State() != raft.Leader {
		return ErrNotLeader
	}

	data, err := EncodeCommand(cmd)
	if err != nil {
		return fmt.Errorf("encode command: %w", err)
	}

	future := r.Apply(data, m.config.ApplyTimeout)
	if err := future.Error(); err != nil {
		return fmt.Errorf("apply command: %w", err)
	}
	if err, ok := future.Response().(error); ok {
		return err
	}
	return nil
}

// Resume waits until every committed entry has been applied locally and
// returns the tracker state to continue from. ok is false when the
// replicated checkpoint belongs to a different stream or there is none.
func (m *Manager) Resume() (state tracker.State, ok bool, err error) {
	m.mu.RLock()
	r := m.raft
	m.mu.RUnlock()

	if r == nil {
		return tracker.State{}, false, ErrNotStarted
	}

	if err := r.Barrier(m.config.ApplyTimeout).Error(); err != nil {
		return tracker.State{}, false, fmt.Errorf("barrier: %w", err)
	}

	cs := m.fsm.GetState()
	if cs.Checkpoints == 0 || cs.PlaylistURL != m.config.PlaylistURL {
		return tracker.State{}, false, nil
	}
	return cs.Tracker, true, nil
}

// LeadershipChanges delivers true when this node becomes leader and false
// when it steps down.
func (m *Manager) LeadershipChanges() <-chan bool {
	return m.leaderCh
}

// GetState returns the current FSM state.
func (m *Manager) GetState() ClusterState {
	return m.fsm.GetState()
}

// IsLeader returns true if this node is the Raft leader.
func (m *Manager) IsLeader() bool {
	m.mu.RLock()
	r := m.raft
	m.mu.RUnlock()

	if r == nil {
		return false
	}

	return r.State() == raft.Leader
}

// LeaderAddr returns the address of the current Raft leader.
func (m *Manager) LeaderAddr() string {
	m.mu.RLock()
	r := m.raft
	m.mu.RUnlock()

	if r == nil {
		return ""
	}

	leaderAddr, _ := r.LeaderWithID()
	return string(leaderAddr)
}

// State returns the current Raft state.
func (m *Manager) State() string {
	m.mu.RLock()
	r := m.raft
	m.mu.RUnlock()

	if r == nil {
		return "NotStarted"
	}
	return r.State().String()
}

// NodeID returns this node's Raft ID.
func (m *Manager) NodeID() string {
	return m.config.RaftID
}

// Shutdown gracefully shuts down the Raft cluster.
func (m *Manager) Shutdown() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.shutdown {
		return nil
	}

	m.shutdown = true

	if m.raft != nil {
		if err := m.raft.Shutdown().Error(); err != nil {
			m.logger.Error("failed to shutdown raft", "error", err)
			return fmt.Errorf("shutdown raft: %w", err)
		}
	}

	if m.transport != nil {
		if err := m.transport.Close(); err != nil {
			m.logger.Error("failed to close transport", "error", err)
			return fmt.Errorf("close transport: %w", err)
		}
	}

	m.logger.Info("cluster shut down")
	return nil
}

// WaitForLeader blocks until a leader is elected or context is canceled.
func (m *Manager) WaitForLeader(ctx context.Context) error {
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if m.LeaderAddr() != "" {
				return nil
			}
		}
	}
}
