// Package extbridge implements the browser extension bridge's
// filesystem-drop transport: browsers that can't hold a native-messaging
// pipe open (or whose extension API the user hasn't granted the native
// host permission to) drop one JSON file per download request into a
// well-known directory; this package polls that directory, starts each
// request through internal/app.Root, and deletes the file once consumed.
//
// Poll-and-consume runs as a ticker-driven goroutine with a stop
// channel, and watches the directory with stdlib os.ReadDir rather than
// a filesystem-event-notification library, since a plain poll is simpler
// to reason about for the handful of files this directory ever holds at
// once.
package extbridge

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/gridfetch/gridfetch/pkg/corelib"
	"github.com/gridfetch/gridfetch/pkg/logger"
)

// DefaultPollInterval is how often the pending-requests directory is
// scanned when the caller doesn't override it.
const DefaultPollInterval = time.Second

// Request is the on-disk shape of one dropped download request, named
// to match the browser extension's own field casing.
type Request struct {
	URL                  string `json:"url"`
	Cookies              string `json:"cookies,omitempty"`
	Referrer             string `json:"referrer,omitempty"`
	UserAgent            string `json:"userAgent,omitempty"`
	Filename             string `json:"filename,omitempty"`
	DestinationDirectory string `json:"destinationDirectory,omitempty"`
}

// Client is the subset of internal/app.Root the bridge drives.
type Client interface {
	AddDownload(ctx context.Context, url string, opts ClientOptions) (corelib.ID, error)
}

// ClientOptions mirrors internal/app.AddOptions, keeping this package
// decoupled from internal/app's own option struct so it can be unit
// tested against a fake Client.
type ClientOptions struct {
	SuggestedFilename    string
	Cookies              string
	UserAgent            string
	Referer              string
	DestinationDirectory string
}

// defaultDestinationDirectory is used for dropped requests that don't
// name one explicitly.
const defaultDestinationDirectory = "."

// Bridge polls dir for *.json request files and starts each one as a
// download, deleting the file once it has been successfully handed off.
type Bridge struct {
	dir      string
	interval time.Duration
	client   Client
	log      logger.Logger

	stopCh chan struct{}
	doneCh chan struct{}
}

// New builds a Bridge watching dir. interval <= 0 defaults to
// DefaultPollInterval.
func New(dir string, interval time.Duration, client Client, log logger.Logger) *Bridge {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	if log == nil {
		log = logger.NewNopLogger()
	}
	return &Bridge{
		dir:      dir,
		interval: interval,
		client:   client,
		log:      log,
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}
}

// Run polls until ctx is canceled or Stop is called.
func (b *Bridge) Run(ctx context.Context) {
	defer close(b.doneCh)
	ticker := time.NewTicker(b.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-b.stopCh:
			return
		case <-ticker.C:
			b.scanOnce(ctx)
		}
	}
}

// Stop halts Run and waits for it to return.
func (b *Bridge) Stop() {
	close(b.stopCh)
	<-b.doneCh
}

// scanOnce lists dir, processing entries in name order so request files
// dropped in quick succession are admitted deterministically (useful
// for tests and for predictable queue ordering under ties).
func (b *Bridge) scanOnce(ctx context.Context) {
	entries, err := os.ReadDir(b.dir)
	if err != nil {
		b.log.Warning("extbridge: read %s: %v", b.dir, err)
		return
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if !e.IsDir() && filepath.Ext(e.Name()) == ".json" {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	for _, name := range names {
		b.consume(ctx, filepath.Join(b.dir, name))
	}
}

func (b *Bridge) consume(ctx context.Context, path string) {
	data, err := os.ReadFile(path)
	if err != nil {
		// Another process (or a prior tick) may have already consumed it.
		return
	}

	var req Request
	if err := json.Unmarshal(data, &req); err != nil {
		b.log.Warning("extbridge: malformed request %s: %v", path, err)
		_ = os.Remove(path)
		return
	}
	if req.URL == "" {
		b.log.Warning("extbridge: request %s has no url", path)
		_ = os.Remove(path)
		return
	}

	destDir := req.DestinationDirectory
	if destDir == "" {
		destDir = defaultDestinationDirectory
	}

	_, err = b.client.AddDownload(ctx, req.URL, ClientOptions{
		SuggestedFilename:    req.Filename,
		Cookies:              req.Cookies,
		UserAgent:            req.UserAgent,
		Referer:              req.Referrer,
		DestinationDirectory: destDir,
	})
	if err != nil {
		b.log.Error("extbridge: add_download for %s failed: %v", path, err)
		return
	}
	if err := os.Remove(path); err != nil {
		b.log.Warning("extbridge: remove consumed request %s: %v", path, err)
	}
}
