package protocol

import (
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"golang.org/x/net/proxy"

	"github.com/gridfetch/gridfetch/pkg/corelib/errs"
)

// ErrUnsupportedProxyScheme is returned by NewProxyClient for any scheme
// other than http, https, or socks5.
var ErrUnsupportedProxyScheme = fmt.Errorf("%w: unsupported proxy scheme", errs.ErrInvalidURL)

// NewProxyClient builds an *http.Client that routes every request through
// rawURL, an http://, https://, or socks5:// proxy (optionally carrying
// userinfo credentials). An empty rawURL returns a plain client with no
// proxy at all.
func NewProxyClient(rawURL string) (*http.Client, error) {
	if rawURL == "" {
		return &http.Client{}, nil
	}
	parsed, err := url.Parse(rawURL)
	if err != nil || parsed.Host == "" {
		return nil, fmt.Errorf("%w: %v", errs.ErrInvalidURL, err)
	}

	transport := &http.Transport{}
	switch strings.ToLower(parsed.Scheme) {
	case "http", "https":
		transport.Proxy = http.ProxyURL(parsed)
	case "socks5":
		var auth *proxy.Auth
		if parsed.User != nil {
			pass, _ := parsed.User.Password()
			auth = &proxy.Auth{User: parsed.User.Username(), Password: pass}
		}
		dialer, err := proxy.SOCKS5("tcp", parsed.Host, auth, proxy.Direct)
		if err != nil {
			return nil, err
		}
		transport.Dial = dialer.Dial
	default:
		return nil, fmt.Errorf("%w %q", ErrUnsupportedProxyScheme, parsed.Scheme)
	}

	return &http.Client{Transport: transport}, nil
}
