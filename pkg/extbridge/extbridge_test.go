package extbridge

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/gridfetch/gridfetch/pkg/corelib"
	"github.com/gridfetch/gridfetch/pkg/logger"
)

type fakeClient struct {
	mu    sync.Mutex
	calls []struct {
		url  string
		opts ClientOptions
	}
}

func (f *fakeClient) AddDownload(ctx context.Context, url string, opts ClientOptions) (corelib.ID, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, struct {
		url  string
		opts ClientOptions
	}{url, opts})
	return corelib.NewID(), nil
}

func (f *fakeClient) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func (f *fakeClient) firstURL() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.calls) == 0 {
		return ""
	}
	return f.calls[0].url
}

func writeRequest(t *testing.T, dir, name string, req Request) {
	t.Helper()
	data, err := json.Marshal(req)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, name), data, 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
}

func waitUntil(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}

func TestBridgeConsumesDroppedRequestAndDeletesFile(t *testing.T) {
	dir := t.TempDir()
	writeRequest(t, dir, "1.json", Request{URL: "https://example.test/a.bin", Filename: "a.bin"})

	client := &fakeClient{}
	b := New(dir, 20*time.Millisecond, client, logger.NewNopLogger())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go b.Run(ctx)
	defer b.Stop()

	waitUntil(t, func() bool { return client.callCount() == 1 })

	if got := client.firstURL(); got != "https://example.test/a.bin" {
		t.Fatalf("AddDownload called with url %q", got)
	}
	if _, err := os.Stat(filepath.Join(dir, "1.json")); !os.IsNotExist(err) {
		t.Fatal("expected request file to be removed after consumption")
	}
}

func TestBridgeIgnoresNonJSONFiles(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("hello"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	client := &fakeClient{}
	b := New(dir, 20*time.Millisecond, client, logger.NewNopLogger())
	ctx, cancel := context.WithCancel(context.Background())
	go b.Run(ctx)
	time.Sleep(80 * time.Millisecond)
	cancel()
	b.Stop()

	if client.callCount() != 0 {
		t.Fatalf("callCount = %d, want 0 for a non-JSON file", client.callCount())
	}
	if _, err := os.Stat(filepath.Join(dir, "notes.txt")); err != nil {
		t.Fatal("non-JSON file should be left untouched")
	}
}

func TestBridgeDropsRequestMissingURL(t *testing.T) {
	dir := t.TempDir()
	writeRequest(t, dir, "bad.json", Request{Filename: "a.bin"})

	client := &fakeClient{}
	b := New(dir, 20*time.Millisecond, client, logger.NewNopLogger())
	ctx, cancel := context.WithCancel(context.Background())
	go b.Run(ctx)
	defer b.Stop()
	defer cancel()

	waitUntil(t, func() bool {
		_, err := os.Stat(filepath.Join(dir, "bad.json"))
		return os.IsNotExist(err)
	})
	if client.callCount() != 0 {
		t.Fatalf("callCount = %d, want 0 for a request with no url", client.callCount())
	}
}

func TestStopHaltsPolling(t *testing.T) {
	dir := t.TempDir()
	client := &fakeClient{}
	b := New(dir, 20*time.Millisecond, client, logger.NewNopLogger())

	ctx := context.Background()
	go b.Run(ctx)
	b.Stop()

	writeRequest(t, dir, "late.json", Request{URL: "https://example.test/late.bin"})
	time.Sleep(60 * time.Millisecond)

	if client.callCount() != 0 {
		t.Fatal("Bridge kept polling after Stop")
	}
}
