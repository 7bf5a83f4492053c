package extbridge

import (
	"context"

	"github.com/gridfetch/gridfetch/internal/app"
	"github.com/gridfetch/gridfetch/pkg/corelib"
)

type rootAdapter struct {
	root *app.Root
}

// NewRootClient wraps root as an extbridge.Client.
func NewRootClient(root *app.Root) Client {
	return &rootAdapter{root: root}
}

func (a *rootAdapter) AddDownload(ctx context.Context, url string, opts ClientOptions) (corelib.ID, error) {
	return a.root.AddDownload(ctx, url, app.AddOptions{
		SuggestedFilename:    opts.SuggestedFilename,
		Cookies:              opts.Cookies,
		UserAgent:            opts.UserAgent,
		Referer:              opts.Referer,
		DestinationDirectory: opts.DestinationDirectory,
	})
}
