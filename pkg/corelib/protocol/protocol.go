// Package protocol implements the Network Probe (C3) and Range Fetcher
// (C4): dynamic dispatch over network transports for metadata discovery
// and byte-range retrieval.
//
// One scheme-dispatch router sits in front of per-transport adapters
// (http.go/ftp.go/sftp.go), each implementing a narrow two-operation
// interface — probe metadata, fetch a byte range — rather than a
// monolithic download-lifecycle interface.
package protocol

import (
	"context"
	"io"

	"github.com/gridfetch/gridfetch/pkg/corelib"
)

// ProbeResult is the metadata discovered about a remote resource before
// any segment is fetched.
type ProbeResult struct {
	ContentLength     int64
	ContentType       string
	AcceptsRanges     bool
	LastModified      string
	ETag              string
	FinalURL          string
	SuggestedFilename string
}

// Validators extracts the ETag/Last-Modified pair used by the Task
// Coordinator to detect that a resource changed between probe and resume.
func (r ProbeResult) Validators() corelib.Validators {
	return corelib.Validators{ETag: r.ETag, LastModified: r.LastModified}
}

// Prober discovers metadata about a resource without transferring its
// body — the Network Probe.
type Prober interface {
	Probe(ctx context.Context, rawURL string, creds corelib.Credentials) (ProbeResult, error)
}

// Fetcher opens a byte-range stream of a resource's body — the Range
// Fetcher. end < 0 means "read to end of resource".
type Fetcher interface {
	Fetch(ctx context.Context, rawURL string, start, end int64, creds corelib.Credentials) (io.ReadCloser, error)
}

// Downloader is the full capability a transport must provide: probing and
// fetching the same resource.
type Downloader interface {
	Prober
	Fetcher
}
