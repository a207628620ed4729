// Package integration provides integration tests for hlsdump.
package integration

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

// segmentFile returns the name hlsdump gives a segment with the "live" prefix.
func segmentFile(epoch, seq uint64) string {
	return fmt.Sprintf("live-%d#%d.ts", epoch, seq)
}

// parseSegmentFile splits a segment file name into epoch and sequence.
func parseSegmentFile(t *testing.T, name string) (epoch, seq uint64) {
	t.Helper()

	if _, err := fmt.Sscanf(name, "live-%d#%d.ts", &epoch, &seq); err != nil {
		t.Fatalf("unexpected segment file name %q: %v", name, err)
	}
	return epoch, seq
}

// TestLiveRecording verifies that every segment of a sliding live playlist is
// saved once, in order, until the playlist ends.
func TestLiveRecording(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	stream := NewLiveStream(100, 3, 300*time.Millisecond)
	harness := NewTestHarness(t, stream)
	node := harness.StartNode("solo")

	// Phase 1: the recorder reports itself and starts writing.
	t.Log("Phase 1: Verifying status report...")
	report, err := node.Health()
	if err != nil {
		t.Fatalf("failed to fetch health: %v", err)
	}
	if report.Status != "ok" {
		t.Errorf("expected status ok, got %q", report.Status)
	}
	if report.Role != "standalone" {
		t.Errorf("expected role standalone, got %q", report.Role)
	}
	if report.RunID == "" {
		t.Error("expected a run id from the catalog")
	}

	WaitForCondition(t, func() bool {
		return len(node.Segments(t)) >= 8
	}, 15*time.Second, "eight segments recorded")

	// Phase 2: ending the stream lets hlsdump drain and exit cleanly.
	t.Log("Phase 2: Ending the stream...")
	stream.End()
	if err := harness.Wait(node, 15*time.Second); err != nil {
		t.Fatalf("hlsdump exited with error after end of stream: %v", err)
	}

	// Phase 3: the recording is gapless and every file is complete.
	t.Log("Phase 3: Verifying recorded files...")
	files := map[string]bool{}
	var last uint64
	for _, name := range node.Segments(t) {
		epoch, seq := parseSegmentFile(t, name)
		if epoch != 0 {
			t.Errorf("unexpected epoch %d in %s", epoch, name)
		}
		if seq > last {
			last = seq
		}
		files[name] = true
	}
	if last < 107 {
		t.Fatalf("expected recording to reach sequence 107, last is %d", last)
	}
	for seq := uint64(100); seq <= last; seq++ {
		name := segmentFile(0, seq)
		if !files[name] {
			t.Errorf("missing %s", name)
			continue
		}
		data, err := os.ReadFile(filepath.Join(node.Folder, name))
		if err != nil {
			t.Fatalf("failed to read %s: %v", name, err)
		}
		if want := fmt.Sprintf("[segment%d.ts]", seq); string(data) != want {
			t.Errorf("%s: expected %q, got %q", name, want, data)
		}
	}

	if _, err := os.Stat(filepath.Join(node.Folder, "hlsdump.db")); err != nil {
		t.Errorf("expected segment catalog in folder: %v", err)
	}
}

// TestSequenceReset verifies that a media sequence going backwards starts a
// new epoch and that files of both epochs survive side by side.
func TestSequenceReset(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	stream := NewLiveStream(500, 3, 300*time.Millisecond)
	harness := NewTestHarness(t, stream)
	node := harness.StartNode("reset")

	WaitForCondition(t, func() bool {
		return len(node.Segments(t)) >= 4
	}, 15*time.Second, "segments before reset")

	t.Log("Resetting stream sequence to 0...")
	stream.Reset(0)

	WaitForCondition(t, func() bool {
		report, err := node.Health()
		return err == nil && report.Epoch == 1
	}, 10*time.Second, "epoch 1 reported")

	WaitForCondition(t, func() bool {
		_, err := os.Stat(filepath.Join(node.Folder, segmentFile(1, 2)))
		return err == nil
	}, 10*time.Second, "epoch 1 segments recorded")

	stream.End()
	if err := harness.Wait(node, 15*time.Second); err != nil {
		t.Fatalf("hlsdump exited with error: %v", err)
	}

	var before, after int
	for _, name := range node.Segments(t) {
		epoch, seq := parseSegmentFile(t, name)
		switch epoch {
		case 0:
			if seq < 500 {
				t.Errorf("epoch 0 file with reset sequence: %s", name)
			}
			before++
		case 1:
			after++
		default:
			t.Errorf("unexpected epoch in %s", name)
		}
	}
	if before < 4 {
		t.Errorf("expected at least 4 segments before reset, got %d", before)
	}
	// The first snapshot after the reset is enqueued in full.
	for seq := uint64(0); seq <= 2; seq++ {
		if _, err := os.Stat(filepath.Join(node.Folder, segmentFile(1, seq))); err != nil {
			t.Errorf("missing %s after reset", segmentFile(1, seq))
		}
	}
	if after < 3 {
		t.Errorf("expected at least 3 segments after reset, got %d", after)
	}
}

// TestInterruptLeavesCompleteFiles verifies that an interrupted recording
// exits non-zero and never leaves a partial file at a segment path.
func TestInterruptLeavesCompleteFiles(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	stream := NewLiveStream(0, 5, 200*time.Millisecond)
	harness := NewTestHarness(t, stream)
	node := harness.StartNode("interrupt")

	WaitForCondition(t, func() bool {
		return len(node.Segments(t)) >= 5
	}, 15*time.Second, "segments recorded")

	if err := harness.Stop(node); err == nil {
		t.Error("expected non-zero exit after interrupt")
	}

	entries, err := os.ReadDir(node.Folder)
	if err != nil {
		t.Fatalf("failed to read folder: %v", err)
	}
	for _, e := range entries {
		name := e.Name()
		if strings.HasPrefix(name, "hlsdump.db") {
			continue
		}
		if !strings.HasSuffix(name, ".ts") || strings.HasPrefix(name, ".") {
			t.Errorf("unexpected leftover file %s", name)
			continue
		}
		_, seq := parseSegmentFile(t, name)
		data, err := os.ReadFile(filepath.Join(node.Folder, name))
		if err != nil {
			t.Fatalf("failed to read %s: %v", name, err)
		}
		if want := fmt.Sprintf("[segment%d.ts]", seq); string(data) != want {
			t.Errorf("%s: expected %q, got %q", name, want, data)
		}
	}
}
