package protocol

import (
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"net"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/jlaffaye/ftp"

	"github.com/gridfetch/gridfetch/pkg/corelib"
	"github.com/gridfetch/gridfetch/pkg/corelib/errs"
)

// FTPDownloader handles ftp:// and ftps:// sources as a pluggable
// transport alongside HTTP and SFTP, kept behind the narrower
// Prober/Fetcher split rather than a monolithic download-lifecycle
// interface.
type FTPDownloader struct {
	dialTimeout time.Duration
}

// NewFTP builds an FTPDownloader with a 30s dial timeout.
func NewFTP() *FTPDownloader {
	return &FTPDownloader{dialTimeout: 30 * time.Second}
}

func (d *FTPDownloader) connect(ctx context.Context, rawURL string, creds corelib.Credentials) (*ftp.ServerConn, string, error) {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return nil, "", fmt.Errorf("%w: %v", errs.ErrInvalidURL, err)
	}
	scheme := strings.ToLower(parsed.Scheme)
	if scheme != "ftp" && scheme != "ftps" {
		return nil, "", fmt.Errorf("%w: unsupported scheme %q", errs.ErrInvalidURL, scheme)
	}

	host := parsed.Host
	if parsed.Port() == "" {
		host = net.JoinHostPort(parsed.Hostname(), "21")
	}

	user, pass := "anonymous", "anonymous"
	if parsed.User != nil {
		user = parsed.User.Username()
		if p, ok := parsed.User.Password(); ok {
			pass = p
		}
	}

	opts := []ftp.DialOption{
		ftp.DialWithTimeout(d.dialTimeout),
		ftp.DialWithContext(ctx),
	}
	if scheme == "ftps" {
		hostname := parsed.Hostname()
		opts = append(opts, ftp.DialWithExplicitTLS(&tls.Config{
			ServerName: hostname,
			MinVersion: tls.VersionTLS12,
		}))
	}

	conn, err := ftp.Dial(host, opts...)
	if err != nil {
		return nil, "", fmt.Errorf("%w: dial %s: %v", errs.ErrConnectionFailed, host, err)
	}
	if err := conn.Login(user, pass); err != nil {
		conn.Quit()
		return nil, "", fmt.Errorf("%w: login: %v", errs.ErrConnectionFailed, err)
	}
	return conn, parsed.Path, nil
}

// Probe connects, logs in, and reads the file size via FTP's SIZE command.
func (d *FTPDownloader) Probe(ctx context.Context, rawURL string, creds corelib.Credentials) (ProbeResult, error) {
	conn, ftpPath, err := d.connect(ctx, rawURL, creds)
	if err != nil {
		return ProbeResult{}, err
	}
	defer conn.Quit()

	size, err := conn.FileSize(ftpPath)
	if err != nil {
		return ProbeResult{}, fmt.Errorf("%w: size %s: %v", errs.ErrConnectionFailed, ftpPath, err)
	}
	return ProbeResult{
		ContentLength:     size,
		AcceptsRanges:     true,
		FinalURL:          rawURL,
		SuggestedFilename: path.Base(ftpPath),
	}, nil
}

// Fetch opens a new control connection and issues RETR from the given
// offset via REST. FTP has no server-side range end, so for end >= 0 the
// returned stream is capped client-side at end-start+1 bytes; a negative
// end reads to the end of the file.
func (d *FTPDownloader) Fetch(ctx context.Context, rawURL string, start, end int64, creds corelib.Credentials) (io.ReadCloser, error) {
	conn, ftpPath, err := d.connect(ctx, rawURL, creds)
	if err != nil {
		return nil, err
	}
	if err := conn.Type(ftp.TransferTypeBinary); err != nil {
		conn.Quit()
		return nil, fmt.Errorf("%w: set binary type: %v", errs.ErrConnectionFailed, err)
	}

	resp, err := conn.RetrFrom(ftpPath, uint64(start))
	if err != nil {
		conn.Quit()
		return nil, fmt.Errorf("%w: retr %s at %d: %v", errs.ErrConnectionFailed, ftpPath, start, err)
	}

	body := io.ReadCloser(resp)
	if end >= 0 {
		limit := end - start + 1
		if limit < 0 {
			limit = 0
		}
		body = limitedReadCloser{Reader: io.LimitReader(resp, limit), closer: resp}
	}
	return &ftpStream{ReadCloser: body, conn: conn}, nil
}

// ftpStream closes both the RETR response and the control connection it
// came from when the caller is done reading.
type ftpStream struct {
	io.ReadCloser
	conn *ftp.ServerConn
}

func (s *ftpStream) Close() error {
	err := s.ReadCloser.Close()
	s.conn.Quit()
	return err
}

type limitedReadCloser struct {
	io.Reader
	closer io.Closer
}

func (l limitedReadCloser) Close() error { return l.closer.Close() }
