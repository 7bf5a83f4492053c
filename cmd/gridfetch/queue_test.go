package main

import (
	"path/filepath"
	"strings"
	"testing"
)

func TestQueueCreateListSet(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "gridfetch.db")

	out := captureStdout(t, func() {
		app := getApp()
		err := app.Run([]string{
			"gridfetch", "--db-path", dbPath,
			"queue", "create", "--max-concurrent", "2", "bulk",
		})
		if err != nil {
			t.Fatalf("queue create: %v", err)
		}
	})
	if !strings.Contains(out, "created queue") {
		t.Fatalf("queue create output = %q, want a created-queue confirmation", out)
	}

	out = captureStdout(t, func() {
		app := getApp()
		err := app.Run([]string{"gridfetch", "--db-path", dbPath, "queue", "list"})
		if err != nil {
			t.Fatalf("queue list: %v", err)
		}
	})
	if !strings.Contains(out, "bulk") || !strings.Contains(out, "Default") {
		t.Fatalf("queue list output = %q, want both the default and created queues", out)
	}

	out = captureStdout(t, func() {
		app := getApp()
		err := app.Run([]string{
			"gridfetch", "--db-path", dbPath,
			"queue", "set", "--max-concurrent", "5", "--inactive", "bulk",
		})
		if err != nil {
			t.Fatalf("queue set: %v", err)
		}
	})
	if !strings.Contains(out, "updated queue bulk") {
		t.Fatalf("queue set output = %q, want an updated-queue confirmation", out)
	}

	out = captureStdout(t, func() {
		app := getApp()
		err := app.Run([]string{"gridfetch", "--db-path", dbPath, "queue", "list"})
		if err != nil {
			t.Fatalf("queue list after set: %v", err)
		}
	})
	if !strings.Contains(out, "inactive") || !strings.Contains(out, "max_concurrent=5") {
		t.Fatalf("queue list after set = %q, want inactive state and updated budget", out)
	}
}

func TestQueueSetUnknownNameReportsError(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "gridfetch.db")

	out := captureStdout(t, func() {
		app := getApp()
		err := app.Run([]string{"gridfetch", "--db-path", dbPath, "queue", "set", "nope"})
		if err != nil {
			t.Fatalf("queue set: %v", err)
		}
	})
	if !strings.Contains(out, "resolve_queue") {
		t.Fatalf("queue set on unknown name = %q, want a resolve_queue error report", out)
	}
}
