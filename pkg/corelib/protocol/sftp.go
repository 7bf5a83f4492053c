package protocol

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/url"
	"path"
	"strings"

	"github.com/pkg/sftp"
	"golang.org/x/crypto/ssh"

	"github.com/gridfetch/gridfetch/pkg/corelib"
	"github.com/gridfetch/gridfetch/pkg/corelib/errs"
)

// SFTPDownloader is the SSH-backed transport: password auth from the URL
// userinfo when present, falling back to any configured signer (e.g. a
// loaded private key) otherwise.
type SFTPDownloader struct {
	// Signers are tried, in order, when the URL carries no password.
	Signers []ssh.Signer
	// HostKeyCallback defaults to ssh.InsecureIgnoreHostKey if unset; set
	// explicitly to pin host keys in production deployments.
	HostKeyCallback ssh.HostKeyCallback
}

// NewSFTP builds an SFTPDownloader with no signers configured; callers
// add key-based auth via Signers before first use.
func NewSFTP() *SFTPDownloader {
	return &SFTPDownloader{}
}

func (d *SFTPDownloader) dial(ctx context.Context, rawURL string, creds corelib.Credentials) (*ssh.Client, *sftp.Client, string, error) {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return nil, nil, "", fmt.Errorf("%w: %v", errs.ErrInvalidURL, err)
	}
	if strings.ToLower(parsed.Scheme) != "sftp" {
		return nil, nil, "", fmt.Errorf("%w: unsupported scheme %q", errs.ErrInvalidURL, parsed.Scheme)
	}

	host := parsed.Host
	if parsed.Port() == "" {
		host = net.JoinHostPort(parsed.Hostname(), "22")
	}

	user := "anonymous"
	var auths []ssh.AuthMethod
	if parsed.User != nil {
		user = parsed.User.Username()
		if pass, ok := parsed.User.Password(); ok {
			auths = append(auths, ssh.Password(pass))
		}
	}
	if len(d.Signers) > 0 {
		auths = append(auths, ssh.PublicKeys(d.Signers...))
	}

	hostKeyCallback := d.HostKeyCallback
	if hostKeyCallback == nil {
		hostKeyCallback = ssh.InsecureIgnoreHostKey()
	}

	sshConn, err := ssh.Dial("tcp", host, &ssh.ClientConfig{
		User:            user,
		Auth:            auths,
		HostKeyCallback: hostKeyCallback,
	})
	if err != nil {
		return nil, nil, "", fmt.Errorf("%w: dial %s: %v", errs.ErrConnectionFailed, host, err)
	}

	client, err := sftp.NewClient(sshConn)
	if err != nil {
		sshConn.Close()
		return nil, nil, "", fmt.Errorf("%w: sftp handshake: %v", errs.ErrConnectionFailed, err)
	}
	return sshConn, client, parsed.Path, nil
}

// Probe stats the remote path over an SFTP session.
func (d *SFTPDownloader) Probe(ctx context.Context, rawURL string, creds corelib.Credentials) (ProbeResult, error) {
	sshConn, client, remotePath, err := d.dial(ctx, rawURL, creds)
	if err != nil {
		return ProbeResult{}, err
	}
	defer sshConn.Close()
	defer client.Close()

	info, err := client.Stat(remotePath)
	if err != nil {
		return ProbeResult{}, fmt.Errorf("%w: stat %s: %v", errs.ErrConnectionFailed, remotePath, err)
	}
	return ProbeResult{
		ContentLength:     info.Size(),
		AcceptsRanges:     true,
		LastModified:      info.ModTime().UTC().Format("Mon, 02 Jan 2006 15:04:05 GMT"),
		FinalURL:          rawURL,
		SuggestedFilename: path.Base(remotePath),
	}, nil
}

// Fetch opens the remote file and seeks to start; end bounds the stream
// with an io.LimitReader since SFTP has no server-side range concept.
func (d *SFTPDownloader) Fetch(ctx context.Context, rawURL string, start, end int64, creds corelib.Credentials) (io.ReadCloser, error) {
	sshConn, client, remotePath, err := d.dial(ctx, rawURL, creds)
	if err != nil {
		return nil, err
	}

	f, err := client.Open(remotePath)
	if err != nil {
		client.Close()
		sshConn.Close()
		return nil, fmt.Errorf("%w: open %s: %v", errs.ErrConnectionFailed, remotePath, err)
	}
	if _, err := f.Seek(start, io.SeekStart); err != nil {
		f.Close()
		client.Close()
		sshConn.Close()
		return nil, fmt.Errorf("%w: seek %s to %d: %v", errs.ErrIO, remotePath, start, err)
	}

	var r io.Reader = f
	if end >= 0 {
		limit := end - start + 1
		if limit < 0 {
			limit = 0
		}
		r = io.LimitReader(f, limit)
	}
	return &sftpStream{Reader: r, file: f, client: client, conn: sshConn}, nil
}

// sftpStream closes the remote file handle, the SFTP session, and the
// underlying SSH connection together when the caller is done reading.
type sftpStream struct {
	io.Reader
	file   *sftp.File
	client *sftp.Client
	conn   *ssh.Client
}

func (s *sftpStream) Close() error {
	err := s.file.Close()
	s.client.Close()
	s.conn.Close()
	return err
}
