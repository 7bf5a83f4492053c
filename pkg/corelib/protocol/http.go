package protocol

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"path"
	"strconv"
	"strings"

	"github.com/gridfetch/gridfetch/pkg/corelib"
	"github.com/gridfetch/gridfetch/pkg/corelib/errs"
)

// maxRedirects mirrors net/http's own 10-hop default, made explicit here
// so the final URL after any redirects is always recorded.
const maxRedirects = 10

// HTTPDownloader is the HTTP/HTTPS Prober and Fetcher: a HEAD-first probe
// that falls back to a single-byte ranged GET when the server doesn't
// answer HEAD usefully.
type HTTPDownloader struct {
	client *http.Client
}

// NewHTTP builds an HTTPDownloader. A nil client gets one configured with
// the redirect cap and HTTP/2 transport.
func NewHTTP(client *http.Client) *HTTPDownloader {
	if client == nil {
		client = &http.Client{
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				if len(via) >= maxRedirects {
					return fmt.Errorf("stopped after %d redirects", maxRedirects)
				}
				return nil
			},
		}
	}
	return &HTTPDownloader{client: client}
}

func (h *HTTPDownloader) newRequest(ctx context.Context, method, rawURL string, creds corelib.Credentials) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errs.ErrInvalidURL, err)
	}
	creds.Headers().Set(req.Header)
	return req, nil
}

// Probe issues HEAD first; on a non-2xx status, a missing Content-Length,
// or an HTML response body for an extensionless URL (almost always a
// redirect/landing page standing in for the real download) it falls back
// to a ranged GET of the first byte and re-reads headers from that
// response. The final URL after following redirects is always recorded.
func (h *HTTPDownloader) Probe(ctx context.Context, rawURL string, creds corelib.Credentials) (ProbeResult, error) {
	req, err := h.newRequest(ctx, http.MethodHead, rawURL, creds)
	if err != nil {
		return ProbeResult{}, err
	}
	resp, err := h.client.Do(req)
	if err == nil {
		defer resp.Body.Close()
		ok := resp.StatusCode >= 200 && resp.StatusCode < 300 && resp.ContentLength >= 0
		if ok && !isHTMLOnExtensionlessURL(resp.Header.Get("Content-Type"), rawURL) {
			return probeResultFromResponse(resp), nil
		}
	}

	req, err = h.newRequest(ctx, http.MethodGet, rawURL, creds)
	if err != nil {
		return ProbeResult{}, err
	}
	req.Header.Set("Range", "bytes=0-0")
	resp, err = h.client.Do(req)
	if err != nil {
		return ProbeResult{}, classifyTransportErr(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return ProbeResult{}, statusToErr(resp.StatusCode)
	}

	result := probeResultFromResponse(resp)
	if resp.StatusCode == http.StatusPartialContent {
		result.AcceptsRanges = true
		if total, ok := totalFromContentRange(resp.Header.Get("Content-Range")); ok {
			result.ContentLength = total
		}
	}
	return result, nil
}

func probeResultFromResponse(resp *http.Response) ProbeResult {
	finalURL := ""
	if resp.Request != nil && resp.Request.URL != nil {
		finalURL = resp.Request.URL.String()
	}
	return ProbeResult{
		ContentLength:     resp.ContentLength,
		ContentType:       resp.Header.Get("Content-Type"),
		AcceptsRanges:     resp.Header.Get("Accept-Ranges") == "bytes",
		LastModified:      resp.Header.Get("Last-Modified"),
		ETag:              resp.Header.Get("ETag"),
		FinalURL:          finalURL,
		SuggestedFilename: filenameFromContentDisposition(resp.Header.Get("Content-Disposition")),
	}
}

// isHTMLOnExtensionlessURL reports whether contentType is text/html (or
// XHTML) and rawURL's path has no file extension — the case where a probe
// response is almost always a redirect/landing page standing in for the
// real resource, not the resource itself.
func isHTMLOnExtensionlessURL(contentType, rawURL string) bool {
	mediaType := contentType
	if idx := strings.Index(mediaType, ";"); idx >= 0 {
		mediaType = mediaType[:idx]
	}
	mediaType = strings.ToLower(strings.TrimSpace(mediaType))
	if mediaType != "text/html" && mediaType != "application/xhtml+xml" {
		return false
	}

	parsed, err := url.Parse(rawURL)
	if err != nil {
		return false
	}
	segment := path.Base(parsed.Path)
	return segment == "" || segment == "." || segment == "/" || !strings.Contains(segment, ".")
}

// totalFromContentRange parses "bytes 0-0/12345" into 12345.
func totalFromContentRange(header string) (int64, bool) {
	idx := strings.LastIndex(header, "/")
	if idx < 0 || idx == len(header)-1 {
		return 0, false
	}
	total, err := strconv.ParseInt(header[idx+1:], 10, 64)
	if err != nil {
		return 0, false
	}
	return total, true
}

// filenameFromContentDisposition decodes the filename parameter of a
// Content-Disposition header, preferring the RFC 5987 extended
// filename* form (e.g. "UTF-8''report%20final.pdf") over the plain one.
func filenameFromContentDisposition(header string) string {
	if header == "" {
		return ""
	}
	_, params, err := mime.ParseMediaType(header)
	if err != nil {
		return ""
	}
	if v, ok := params["filename*"]; ok {
		if name, ok := decodeExtendedFilename(v); ok {
			return name
		}
	}
	return params["filename"]
}

func decodeExtendedFilename(v string) (string, bool) {
	parts := strings.SplitN(v, "''", 2)
	if len(parts) != 2 {
		return "", false
	}
	decoded, err := url.QueryUnescape(parts[1])
	if err != nil {
		return "", false
	}
	return decoded, true
}

// Fetch opens a lazy, non-restartable range stream: exactly one GET whose
// response body the caller drains and closes.
func (h *HTTPDownloader) Fetch(ctx context.Context, rawURL string, start, end int64, creds corelib.Credentials) (io.ReadCloser, error) {
	req, err := h.newRequest(ctx, http.MethodGet, rawURL, creds)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Range", rangeHeader(start, end))

	resp, err := h.client.Do(req)
	if err != nil {
		return nil, classifyTransportErr(err)
	}
	if resp.StatusCode >= 400 {
		resp.Body.Close()
		return nil, statusToErr(resp.StatusCode)
	}
	// A non-zero start demands 206: a 200 here means the origin ignored
	// the Range header and is about to hand back the whole body from byte
	// zero, which would otherwise get written at the wrong offset.
	if start > 0 && resp.StatusCode != http.StatusPartialContent {
		resp.Body.Close()
		return nil, errs.ErrRangeIgnored
	}
	return resp.Body, nil
}

func rangeHeader(start, end int64) string {
	if end < 0 {
		return fmt.Sprintf("bytes=%d-", start)
	}
	return fmt.Sprintf("bytes=%d-%d", start, end)
}

// statusToErr translates HTTP status codes into the error taxonomy.
func statusToErr(code int) error {
	switch code {
	case http.StatusRequestedRangeNotSatisfiable:
		return errs.ErrRangeNotSatisfiable
	case http.StatusServiceUnavailable:
		return errs.ErrServiceUnavailable
	default:
		return errs.NewServerError(code)
	}
}

func classifyTransportErr(err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return fmt.Errorf("%w: %v", errs.ErrConnectionFailed, err)
}
