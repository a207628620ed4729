package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/agleyzer/hlsdump/internal/catalog"
	"github.com/agleyzer/hlsdump/internal/segment"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestNewLogger(t *testing.T) {
	tests := []struct {
		name      string
		verbose   bool
		format    string
		wantDebug bool
		wantJSON  bool
	}{
		{"text info", false, "text", false, false},
		{"text debug", true, "text", true, false},
		{"json info", false, "json", false, true},
		{"json debug", true, "json", true, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			logger := newLogger(&buf, tt.verbose, tt.format)

			if got := logger.Enabled(context.Background(), -4); got != tt.wantDebug {
				t.Errorf("debug enabled = %v, want %v", got, tt.wantDebug)
			}

			logger.Info("hello", "seq", 7)
			line := buf.String()
			isJSON := json.Valid(bytes.TrimSpace(buf.Bytes()))
			if isJSON != tt.wantJSON {
				t.Errorf("output %q: json = %v, want %v", line, isJSON, tt.wantJSON)
			}
			if !strings.Contains(line, "hello") {
				t.Errorf("output %q does not contain the message", line)
			}
		})
	}
}

func TestRootCmd_Args(t *testing.T) {
	tests := []struct {
		name    string
		args    []string
		wantErr string
	}{
		{"no arguments", nil, "accepts 2 arg(s)"},
		{"missing folder", []string{"http://example.com/a.m3u8"}, "accepts 2 arg(s)"},
		{"non-http url", []string{"ftp://example.com/a.m3u8", t.TempDir()}, "http or https"},
		{"bad log format", []string{"--log-format", "xml", "http://example.com/a.m3u8", t.TempDir()}, "log-format"},
		{"partial raft settings", []string{"--raft-id", "n1", "http://example.com/a.m3u8", t.TempDir()}, "cluster"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := execute(t, tt.args...)
			if err == nil {
				t.Fatal("Execute() error = nil")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Execute() error = %v, want it to mention %q", err, tt.wantErr)
			}
		})
	}
}

func TestVersionCmd(t *testing.T) {
	out, err := execute(t, "version")
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if strings.TrimSpace(out) != "hlsdump v"+version {
		t.Errorf("version output = %q", out)
	}
}

func TestRecordFolderIsAFile(t *testing.T) {
	file := filepath.Join(t.TempDir(), "file")
	if err := os.WriteFile(file, nil, 0644); err != nil {
		t.Fatal(err)
	}

	_, err := execute(t, "record", "--catalog", "", "http://127.0.0.1:1/a.m3u8", file)
	if err == nil || !strings.Contains(err.Error(), "not a directory") {
		t.Errorf("Execute() error = %v, want not a directory", err)
	}
}

func newStreamServer(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/live/index.m3u8", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/vnd.apple.mpegurl")
		fmt.Fprint(w, `#EXTM3U
#EXT-X-VERSION:3
#EXT-X-TARGETDURATION:2
#EXT-X-MEDIA-SEQUENCE:5
#EXTINF:2.000,
5.ts
#EXTINF:2.000,
6.ts
#EXTINF:2.000,
7.ts
#EXT-X-ENDLIST
`)
	})
	mux.HandleFunc("/live/", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, "[%s]", strings.TrimPrefix(r.URL.Path, "/live/"))
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestRecordAndJoin(t *testing.T) {
	srv := newStreamServer(t)
	folder := filepath.Join(t.TempDir(), "rec")
	playlistURL := srv.URL + "/live/index.m3u8"

	if _, err := execute(t, playlistURL, folder); err != nil {
		t.Fatalf("record: %v", err)
	}

	namer := segment.FileNamer{Folder: folder, NamePrefix: segment.DefaultPrefix(playlistURL)}
	for seq := uint64(5); seq <= 7; seq++ {
		data, err := os.ReadFile(namer.Path(0, seq))
		if err != nil {
			t.Fatalf("segment %d: %v", seq, err)
		}
		if want := fmt.Sprintf("[%d.ts]", seq); string(data) != want {
			t.Errorf("segment %d = %q, want %q", seq, data, want)
		}
	}
	if _, err := os.Stat(filepath.Join(folder, catalog.DefaultName)); err != nil {
		t.Errorf("catalog not created: %v", err)
	}

	output := filepath.Join(t.TempDir(), "joined.ts")
	out, err := execute(t, "join", folder, output)
	if err != nil {
		t.Fatalf("join: %v", err)
	}
	if !strings.Contains(out, "3 segments") {
		t.Errorf("join output = %q", out)
	}

	data, err := os.ReadFile(output)
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "[5.ts][6.ts][7.ts]" {
		t.Errorf("joined content = %q", data)
	}
}

func TestJoin_NoCatalog(t *testing.T) {
	_, err := execute(t, "join", t.TempDir(), filepath.Join(t.TempDir(), "out.ts"))
	if err == nil || !strings.Contains(err.Error(), "no segment catalog") {
		t.Errorf("Execute() error = %v, want missing catalog", err)
	}
}
