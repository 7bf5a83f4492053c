package main

import (
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestListShowsQueuedTask(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "gridfetch.db")
	destDir := t.TempDir()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.ServeContent(w, r, "greeting.txt", time.Time{}, strings.NewReader("hello there"))
	}))
	defer srv.Close()

	captureStdout(t, func() {
		app := getApp()
		err := app.Run([]string{
			"gridfetch", "--db-path", dbPath,
			"add", "--start-paused", "--detach", "--dir", destDir, srv.URL,
		})
		if err != nil {
			t.Fatalf("add: %v", err)
		}
	})

	out := captureStdout(t, func() {
		app := getApp()
		if err := app.Run([]string{"gridfetch", "--db-path", dbPath, "list"}); err != nil {
			t.Fatalf("list: %v", err)
		}
	})
	if !strings.Contains(out, srv.URL) {
		t.Fatalf("list output = %q, want the queued task's source URL", out)
	}
}

func TestListReportsEmptyStore(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "gridfetch.db")

	out := captureStdout(t, func() {
		app := getApp()
		if err := app.Run([]string{"gridfetch", "--db-path", dbPath, "list"}); err != nil {
			t.Fatalf("list: %v", err)
		}
	})
	if !strings.Contains(out, "no downloads tracked") {
		t.Fatalf("list output on empty store = %q, want the no-downloads message", out)
	}
}
