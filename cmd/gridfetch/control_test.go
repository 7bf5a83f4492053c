package main

import (
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func addPausedTask(t *testing.T, dbPath, destDir string) string {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.ServeContent(w, r, "greeting.txt", time.Time{}, strings.NewReader("hello"))
	}))
	t.Cleanup(srv.Close)

	out := captureStdout(t, func() {
		app := getApp()
		err := app.Run([]string{
			"gridfetch", "--db-path", dbPath,
			"add", "--start-paused", "--detach", "--dir", destDir, srv.URL,
		})
		if err != nil {
			t.Fatalf("add --start-paused: %v", err)
		}
	})
	fields := strings.Fields(out)
	if len(fields) != 2 || fields[0] != "queued" {
		t.Fatalf("add output = %q, want \"queued <id>\"", out)
	}
	return fields[1]
}

func TestResumeAndCancelDispatch(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "gridfetch.db")
	destDir := t.TempDir()
	taskID := addPausedTask(t, dbPath, destDir)

	out := captureStdout(t, func() {
		app := getApp()
		if err := app.Run([]string{"gridfetch", "--db-path", dbPath, "resume", taskID}); err != nil {
			t.Fatalf("resume: %v", err)
		}
	})
	if !strings.Contains(out, "resumed: "+taskID) {
		t.Fatalf("resume output = %q, want a resumed confirmation for %s", out, taskID)
	}

	out = captureStdout(t, func() {
		app := getApp()
		if err := app.Run([]string{"gridfetch", "--db-path", dbPath, "cancel", taskID}); err != nil {
			t.Fatalf("cancel: %v", err)
		}
	})
	if !strings.Contains(out, "cancelled: "+taskID) {
		t.Fatalf("cancel output = %q, want a cancelled confirmation for %s", out, taskID)
	}
}

func TestControlCommandsRequireTaskID(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "gridfetch.db")

	out := captureStdout(t, func() {
		app := getApp()
		if err := app.Run([]string{"gridfetch", "--db-path", dbPath, "pause"}); err != nil {
			t.Fatalf("pause with no args: %v", err)
		}
	})
	if !strings.Contains(out, "usage: gridfetch pause <task-id>") {
		t.Fatalf("pause output = %q, want a usage error", out)
	}
}
