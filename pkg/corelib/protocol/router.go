package protocol

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strings"

	"github.com/gridfetch/gridfetch/pkg/corelib"
	"github.com/gridfetch/gridfetch/pkg/corelib/errs"
)

// ErrUnsupportedScheme is returned when a URL's scheme has no registered
// Downloader.
var ErrUnsupportedScheme = fmt.Errorf("%w: unsupported scheme", errs.ErrInvalidURL)

// SchemeRouter dispatches Probe/Fetch calls to the Downloader registered
// for a URL's scheme.
type SchemeRouter struct {
	routes map[string]Downloader
}

// NewSchemeRouter builds a router pre-registered with HTTP/HTTPS, FTP/FTPS,
// and SFTP as pluggable transports.
func NewSchemeRouter() *SchemeRouter {
	return NewSchemeRouterWithClient(nil)
}

// NewSchemeRouterWithClient is NewSchemeRouter, but HTTP/HTTPS requests are
// issued through httpClient instead of the zero-value client (see
// NewProxyClient for building one that routes through an HTTP/HTTPS/SOCKS5
// proxy). A nil httpClient behaves exactly like NewSchemeRouter.
func NewSchemeRouterWithClient(httpClient *http.Client) *SchemeRouter {
	r := &SchemeRouter{routes: make(map[string]Downloader)}
	httpD := NewHTTP(httpClient)
	r.Register("http", httpD)
	r.Register("https", httpD)
	ftpD := NewFTP()
	r.Register("ftp", ftpD)
	r.Register("ftps", ftpD)
	r.Register("sftp", NewSFTP())
	return r
}

// Register adds or replaces the Downloader for scheme (case-insensitive).
func (r *SchemeRouter) Register(scheme string, d Downloader) {
	r.routes[strings.ToLower(scheme)] = d
}

func (r *SchemeRouter) resolve(rawURL string) (Downloader, error) {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errs.ErrInvalidURL, err)
	}
	scheme := strings.ToLower(parsed.Scheme)
	d, ok := r.routes[scheme]
	if !ok {
		return nil, fmt.Errorf("%w %q — supported: %s", ErrUnsupportedScheme, scheme, strings.Join(r.SupportedSchemes(), ", "))
	}
	return d, nil
}

// SupportedSchemes lists the schemes currently registered, sorted.
func (r *SchemeRouter) SupportedSchemes() []string {
	out := make([]string, 0, len(r.routes))
	for scheme := range r.routes {
		out = append(out, scheme)
	}
	sort.Strings(out)
	return out
}

// Probe dispatches to the registered Downloader for rawURL's scheme.
func (r *SchemeRouter) Probe(ctx context.Context, rawURL string, creds corelib.Credentials) (ProbeResult, error) {
	d, err := r.resolve(rawURL)
	if err != nil {
		return ProbeResult{}, err
	}
	return d.Probe(ctx, rawURL, creds)
}

// Fetch dispatches to the registered Downloader for rawURL's scheme.
func (r *SchemeRouter) Fetch(ctx context.Context, rawURL string, start, end int64, creds corelib.Credentials) (io.ReadCloser, error) {
	d, err := r.resolve(rawURL)
	if err != nil {
		return nil, err
	}
	return d.Fetch(ctx, rawURL, start, end, creds)
}

var _ Downloader = (*SchemeRouter)(nil)
