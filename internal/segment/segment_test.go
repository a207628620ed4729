package segment

import (
	"path/filepath"
	"strings"
	"testing"
)

func TestFileNamer_Path(t *testing.T) {
	n := FileNamer{Folder: "out", NamePrefix: "video-abc"}

	tests := []struct {
		name     string
		epoch    uint64
		sequence uint64
		want     string
	}{
		{"first epoch", 0, 12, filepath.Join("out", "video-abc-0#12.ts")},
		{"after reset", 1, 12, filepath.Join("out", "video-abc-1#12.ts")},
		{"large sequence", 3, 1 << 40, filepath.Join("out", "video-abc-3#1099511627776.ts")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := n.Path(tt.epoch, tt.sequence); got != tt.want {
				t.Errorf("Path(%d, %d) = %q, want %q", tt.epoch, tt.sequence, got, tt.want)
			}
		})
	}
}

func TestFileNamer_EpochsNeverCollide(t *testing.T) {
	n := FileNamer{Folder: "out", NamePrefix: "p"}
	seen := make(map[string]bool)
	for epoch := uint64(0); epoch < 3; epoch++ {
		for seq := uint64(0); seq < 20; seq++ {
			p := n.Path(epoch, seq)
			if seen[p] {
				t.Fatalf("path %s produced twice", p)
			}
			seen[p] = true
		}
	}
}

func TestDefaultPrefix(t *testing.T) {
	a := DefaultPrefix("https://example.com/live.m3u8")
	b := DefaultPrefix("https://example.com/live.m3u8")
	c := DefaultPrefix("https://example.com/other.m3u8")

	if a != b {
		t.Errorf("prefix not deterministic: %s != %s", a, b)
	}
	if a == c {
		t.Errorf("different URLs share prefix %s", a)
	}
	if !strings.HasPrefix(a, "video-") || len(a) != len("video-")+32 {
		t.Errorf("unexpected prefix format %q", a)
	}
}
