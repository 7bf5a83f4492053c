package nativehost

import (
	"context"

	"github.com/gridfetch/gridfetch/internal/app"
	"github.com/gridfetch/gridfetch/pkg/corelib"
)

// rootAdapter satisfies Client over *app.Root, translating between the
// wire protocol's option/result shapes and the application root's own
// types.
type rootAdapter struct {
	root *app.Root
}

// NewRootClient wraps root as a nativehost.Client.
func NewRootClient(root *app.Root) Client {
	return &rootAdapter{root: root}
}

func (a *rootAdapter) AddDownload(ctx context.Context, url string, opts AddOptions) (corelib.ID, error) {
	return a.root.AddDownload(ctx, url, app.AddOptions{
		ConnectionCount:      opts.ConnectionCount,
		QueueID:              opts.QueueID,
		SuggestedFilename:    opts.SuggestedFilename,
		Cookies:              opts.Cookies,
		UserAgent:            opts.UserAgent,
		Referer:              opts.Referer,
		DestinationDirectory: opts.DestinationDirectory,
	})
}

func (a *rootAdapter) Pause(taskID corelib.ID) error  { return a.root.Pause(taskID) }
func (a *rootAdapter) Resume(taskID corelib.ID) error { return a.root.Resume(taskID) }
func (a *rootAdapter) Cancel(taskID corelib.ID) error { return a.root.Cancel(taskID) }

func (a *rootAdapter) Status(taskID corelib.ID) (TaskStatusResult, error) {
	s, err := a.root.Status(taskID)
	if err != nil {
		return TaskStatusResult{}, err
	}
	return TaskStatusResult{
		ID:              string(s.ID),
		SourceURL:       s.SourceURL,
		DestinationPath: s.DestinationPath,
		Status:          string(s.Status),
		ErrorMessage:    s.ErrorMessage,
		TotalBytes:      s.TotalBytes,
		DownloadedBytes: s.DownloadedBytes,
		BytesPerSecond:  s.BytesPerSecond,
	}, nil
}
