package main

import (
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gridfetch/gridfetch/pkg/corelib/store"
)

func TestGetAppBuildsExpectedCommandTree(t *testing.T) {
	app := getApp()
	names := map[string]bool{}
	for _, c := range app.Commands {
		names[c.Name] = true
	}
	for _, want := range []string{"add", "list", "status", "pause", "resume", "cancel", "queue", "native-host", "ext-bridge", "help", "version"} {
		if !names[want] {
			t.Errorf("command tree missing %q", want)
		}
	}
}

// captureStdout redirects os.Stdout for the duration of fn and returns
// everything written to it.
func captureStdout(t *testing.T, fn func()) string {
	t.Helper()
	r, w, err := os.Pipe()
	if err != nil {
		t.Fatalf("Pipe: %v", err)
	}
	orig := os.Stdout
	os.Stdout = w
	defer func() { os.Stdout = orig }()

	fn()

	w.Close()
	data, _ := io.ReadAll(r)
	return string(data)
}

func TestLogFileFlagWritesLogOutput(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.ServeContent(w, r, "greeting.txt", time.Time{}, strings.NewReader("hi"))
	}))
	defer srv.Close()

	dbPath := filepath.Join(t.TempDir(), "gridfetch.db")
	destDir := t.TempDir()
	logPath := filepath.Join(t.TempDir(), "gridfetch.log")

	captureStdout(t, func() {
		app := getApp()
		err := app.Run([]string{
			"gridfetch", "--db-path", dbPath, "--log-file", logPath,
			"add", "--start-paused", "--detach", "--dir", destDir, srv.URL,
		})
		if err != nil {
			t.Fatalf("app.Run: %v", err)
		}
	})

	if _, err := os.Stat(logPath); err != nil {
		t.Fatalf("--log-file did not create %s: %v", logPath, err)
	}
}

func TestAddDetachEnqueuesTaskWithoutBlocking(t *testing.T) {
	body := "hello from gridfetch"
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.ServeContent(w, r, "greeting.txt", time.Time{}, strings.NewReader(body))
	}))
	defer srv.Close()

	dbPath := filepath.Join(t.TempDir(), "gridfetch.db")
	destDir := t.TempDir()

	out := captureStdout(t, func() {
		app := getApp()
		err := app.Run([]string{
			"gridfetch", "--db-path", dbPath,
			"add", "--detach", "--dir", destDir, srv.URL,
		})
		if err != nil {
			t.Fatalf("app.Run: %v", err)
		}
	})

	if len(out) == 0 {
		t.Fatal("expected add --detach to print the queued task id")
	}

	st, err := store.Open(dbPath)
	if err != nil {
		t.Fatalf("store.Open: %v", err)
	}
	defer st.Close()
	tasks, err := st.FetchTasksWhere("1 = 1")
	if err != nil {
		t.Fatalf("FetchTasksWhere: %v", err)
	}
	if len(tasks) != 1 {
		t.Fatalf("len(tasks) = %d, want 1", len(tasks))
	}
	if tasks[0].SourceURL != srv.URL {
		t.Fatalf("SourceURL = %q, want %q", tasks[0].SourceURL, srv.URL)
	}
}
