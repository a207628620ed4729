// Package integration provides integration testing utilities for hlsdump.
package integration

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"
)

// LiveStream serves a sliding-window media playlist whose head advances by
// one segment every Interval.
type LiveStream struct {
	Interval time.Duration
	Window   int

	mu      sync.Mutex
	base    uint64
	started time.Time
	ended   bool
}

// NewLiveStream returns a stream that starts at sequence base.
func NewLiveStream(base uint64, window int, interval time.Duration) *LiveStream {
	return &LiveStream{
		Interval: interval,
		Window:   window,
		base:     base,
		started:  time.Now(),
	}
}

// head returns the media sequence of the first segment in the window.
func (s *LiveStream) head() uint64 {
	return s.base + uint64(time.Since(s.started)/s.Interval)
}

// Reset restarts numbering at base, the way an encoder restart does.
func (s *LiveStream) Reset(base uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.base = base
	s.started = time.Now()
}

// End freezes the window and appends EXT-X-ENDLIST.
func (s *LiveStream) End() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.base = s.head()
	s.ended = true
}

// Playlist renders the current window.
func (s *LiveStream) Playlist() string {
	s.mu.Lock()
	defer s.mu.Unlock()

	head := s.base
	if !s.ended {
		head = s.head()
	}

	var b strings.Builder
	b.WriteString("#EXTM3U\n#EXT-X-VERSION:3\n#EXT-X-TARGETDURATION:1\n")
	fmt.Fprintf(&b, "#EXT-X-MEDIA-SEQUENCE:%d\n", head)
	for i := 0; i < s.Window; i++ {
		fmt.Fprintf(&b, "#EXTINF:1.0,\nsegment%d.ts\n", head+uint64(i))
	}
	if s.ended {
		b.WriteString("#EXT-X-ENDLIST\n")
	}
	return b.String()
}

// ServeHTTP answers the playlist and any segmentN.ts path.
func (s *LiveStream) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	name := filepath.Base(r.URL.Path)
	switch {
	case name == "live.m3u8":
		w.Header().Set("Content-Type", "application/vnd.apple.mpegurl")
		_, _ = w.Write([]byte(s.Playlist()))
	case strings.HasPrefix(name, "segment") && strings.HasSuffix(name, ".ts"):
		_, _ = fmt.Fprintf(w, "[%s]", name)
	default:
		http.NotFound(w, r)
	}
}

// TestHarness runs one or more hlsdump processes against a LiveStream.
type TestHarness struct {
	t       *testing.T
	stream  *LiveStream
	origin  *httptest.Server
	binary  string
	nodes   []*Node
	baseDir string
}

// Node is a single running hlsdump process.
type Node struct {
	ID         string
	Folder     string
	StatusPort int
	RaftAddr   string
	Cmd        *exec.Cmd
	Cancel     context.CancelFunc

	done chan struct{}
	err  error
}

// Report mirrors the /health response body.
type Report struct {
	Status string `json:"status"`
	Stats  struct {
		Total  uint64 `json:"total"`
		Failed uint64 `json:"failed"`
		Missed uint64 `json:"missed"`
	} `json:"stats"`
	Epoch     uint64 `json:"epoch"`
	Role      string `json:"role"`
	Recording bool   `json:"recording"`
	RunID     string `json:"run_id"`
}

// NewTestHarness starts the origin server for stream.
func NewTestHarness(t *testing.T, stream *LiveStream) *TestHarness {
	t.Helper()

	binary := findBinary(t)
	h := &TestHarness{
		t:       t,
		stream:  stream,
		origin:  httptest.NewServer(stream),
		binary:  binary,
		baseDir: t.TempDir(),
	}
	t.Cleanup(h.Cleanup)
	return h
}

// PlaylistURL returns the origin's playlist address.
func (h *TestHarness) PlaylistURL() string {
	return h.origin.URL + "/live.m3u8"
}

// StartNode runs hlsdump with its own folder and status port. Extra flags
// are appended after the defaults.
func (h *TestHarness) StartNode(id string, extra ...string) *Node {
	h.t.Helper()

	folder := filepath.Join(h.baseDir, id)
	node := &Node{
		ID:         id,
		Folder:     folder,
		StatusPort: findAvailablePort(h.t),
		done:       make(chan struct{}),
	}

	args := []string{
		"record",
		"--listen", fmt.Sprintf("127.0.0.1:%d", node.StatusPort),
		"--name-prefix", "live",
		"--drain-timeout", "2s",
	}
	args = append(args, extra...)
	args = append(args, h.PlaylistURL(), folder)

	ctx, cancel := context.WithCancel(context.Background())
	node.Cancel = cancel
	node.Cmd = exec.CommandContext(ctx, h.binary, args...)
	node.Cmd.Cancel = func() error { return node.Cmd.Process.Signal(os.Interrupt) }
	node.Cmd.WaitDelay = 10 * time.Second
	node.Cmd.Stdout = os.Stdout
	node.Cmd.Stderr = os.Stderr

	if err := node.Cmd.Start(); err != nil {
		cancel()
		h.t.Fatalf("failed to start hlsdump %s: %v", id, err)
	}
	go func() {
		node.err = node.Cmd.Wait()
		close(node.done)
	}()

	h.nodes = append(h.nodes, node)
	waitForServer(h.t, node.HealthURL(), 15*time.Second)
	h.t.Logf("Started hlsdump %s (status port %d)", id, node.StatusPort)
	return node
}

// StartCluster runs n nodes that form one raft group.
func (h *TestHarness) StartCluster(n int) []*Node {
	h.t.Helper()

	addrs := make([]string, n)
	for i := range addrs {
		addrs[i] = fmt.Sprintf("127.0.0.1:%d", findAvailablePort(h.t))
	}
	peers := strings.Join(addrs, ",")

	nodes := make([]*Node, n)
	for i := range nodes {
		nodes[i] = h.StartNode(fmt.Sprintf("node%d", i+1),
			"--catalog", "",
			"--raft-id", fmt.Sprintf("node%d", i+1),
			"--raft-bind", addrs[i],
			"--raft-peers", peers,
		)
		nodes[i].RaftAddr = addrs[i]
	}
	return nodes
}

// Stop interrupts the node and waits for it to exit.
func (h *TestHarness) Stop(node *Node) error {
	h.t.Helper()

	node.Cancel()
	<-node.done
	h.t.Logf("Stopped hlsdump %s", node.ID)
	return node.err
}

// Kill ends the node without giving it a chance to drain.
func (h *TestHarness) Kill(node *Node) {
	h.t.Helper()

	_ = node.Cmd.Process.Kill()
	<-node.done
	node.Cancel()
	h.t.Logf("Killed hlsdump %s", node.ID)
}

// Wait blocks until the node exits on its own.
func (h *TestHarness) Wait(node *Node, timeout time.Duration) error {
	h.t.Helper()

	select {
	case <-node.done:
		return node.err
	case <-time.After(timeout):
		h.t.Fatalf("hlsdump %s did not exit within %v", node.ID, timeout)
		return nil
	}
}

// Cleanup stops every node that is still running and the origin server.
func (h *TestHarness) Cleanup() {
	for _, node := range h.nodes {
		node.Cancel()
		<-node.done
	}
	h.nodes = nil
	h.origin.Close()
}

// HealthURL returns the node's /health address.
func (n *Node) HealthURL() string {
	return fmt.Sprintf("http://127.0.0.1:%d/health", n.StatusPort)
}

// Exited reports whether the process has ended.
func (n *Node) Exited() bool {
	select {
	case <-n.done:
		return true
	default:
		return false
	}
}

// Health fetches the node's status report.
func (n *Node) Health() (*Report, error) {
	resp, err := http.Get(n.HealthURL())
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}

	var report Report
	if err := json.NewDecoder(resp.Body).Decode(&report); err != nil {
		return nil, err
	}
	return &report, nil
}

// Segments lists the segment files the node has written, sorted.
func (n *Node) Segments(t *testing.T) []string {
	t.Helper()

	entries, err := os.ReadDir(n.Folder)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		t.Fatalf("failed to read %s: %v", n.Folder, err)
	}

	var names []string
	for _, e := range entries {
		if strings.HasSuffix(e.Name(), ".ts") {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)
	return names
}

// findBinary locates the hlsdump binary.
func findBinary(t *testing.T) string {
	t.Helper()

	candidates := []string{
		"../../hlsdump",        // From test/integration
		"./hlsdump",            // From project root
		"../hlsdump",           // From test directory
		"./cmd/hlsdump/hlsdump", // Built in place
	}

	for _, path := range candidates {
		if _, err := os.Stat(path); err == nil {
			absPath, _ := filepath.Abs(path)
			t.Logf("Found hlsdump binary at: %s", absPath)
			return absPath
		}
	}

	t.Skip("hlsdump binary not found. Run 'go build -o hlsdump ./cmd/hlsdump' first")
	return ""
}

// waitForServer waits for a server to become available.
func waitForServer(t *testing.T, url string, timeout time.Duration) {
	t.Helper()

	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		resp, err := http.Get(url)
		if err == nil {
			resp.Body.Close()
			if resp.StatusCode < 500 {
				return
			}
		}
		time.Sleep(100 * time.Millisecond)
	}

	t.Fatalf("server at %s did not become ready within %v", url, timeout)
}

// findAvailablePort finds an available TCP port.
func findAvailablePort(t *testing.T) int {
	t.Helper()

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("failed to find available port: %v", err)
	}
	defer listener.Close()

	return listener.Addr().(*net.TCPAddr).Port
}

// WaitForCondition polls until a condition is met or timeout occurs.
func WaitForCondition(t *testing.T, condition func() bool, timeout time.Duration, description string) {
	t.Helper()

	deadline := time.Now().Add(timeout)
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	for {
		if condition() {
			return
		}
		if time.Now().After(deadline) {
			t.Fatalf("timeout waiting for condition: %s", description)
		}
		<-ticker.C
	}
}
