package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"github.com/pkg/sftp"
	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/knownhosts"

	"github.com/nao1215/webget/internal/model"
)

// SFTPSession is an open SFTP connection to one server.
type SFTPSession struct {
	conn   *ssh.Client
	client *sftp.Client
}

// DialSFTP connects and authenticates against the SSH server named by
// the URL. User and password in the URL take precedence over the
// configured options. Host keys are verified against known_hosts
// unless the options opt out explicitly.
func DialSFTP(ctx context.Context, u *url.URL, opts *model.SSHOptions, timeout time.Duration) (*SFTPSession, error) {
	if opts == nil {
		opts = &model.SSHOptions{}
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	user := opts.User
	if u.User != nil && u.User.Username() != "" {
		user = u.User.Username()
	}
	if user == "" {
		return nil, fmt.Errorf("%w: %s", ErrSSHUserRequired, u.Host)
	}

	auth, err := sshAuthMethods(u, opts)
	if err != nil {
		return nil, err
	}

	hostKeys, err := hostKeyCallback(opts)
	if err != nil {
		return nil, err
	}

	cfg := &ssh.ClientConfig{
		User:            user,
		Auth:            auth,
		HostKeyCallback: hostKeys,
		Timeout:         timeout,
	}

	addr := sftpAddr(u, opts)
	conn, err := (&net.Dialer{Timeout: timeout}).DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", addr, err)
	}

	// Bound the handshake; a connected but silent server would
	// otherwise hang here. The deadline is cleared once the session is
	// up so long file reads are governed by the caller's context.
	if err := conn.SetDeadline(time.Now().Add(timeout)); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("set handshake deadline: %w", err)
	}

	sshConn, chans, reqs, err := ssh.NewClientConn(conn, addr, cfg)
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("ssh handshake with %s: %w", addr, err)
	}
	if err := conn.SetDeadline(time.Time{}); err != nil {
		_ = sshConn.Close()
		return nil, fmt.Errorf("clear handshake deadline: %w", err)
	}

	sshClient := ssh.NewClient(sshConn, chans, reqs)
	sftpClient, err := sftp.NewClient(sshClient)
	if err != nil {
		_ = sshClient.Close()
		return nil, fmt.Errorf("open sftp subsystem on %s: %w", addr, err)
	}

	return &SFTPSession{conn: sshClient, client: sftpClient}, nil
}

// Open opens a remote file for reading and reports its size. The
// returned reader is seekable, so callers decide the resume offset
// after inspecting the size.
func (s *SFTPSession) Open(path string) (io.ReadSeekCloser, int64, error) {
	f, err := s.client.Open(path)
	if err != nil {
		return nil, 0, fmt.Errorf("open %s: %w", path, err)
	}
	fi, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, 0, fmt.Errorf("stat %s: %w", path, err)
	}
	return f, fi.Size(), nil
}

// Close shuts down the SFTP subsystem and the SSH connection.
func (s *SFTPSession) Close() error {
	return errors.Join(s.client.Close(), s.conn.Close())
}

// sshAuthMethods builds the authentication chain: private key first
// when configured, then password.
func sshAuthMethods(u *url.URL, opts *model.SSHOptions) ([]ssh.AuthMethod, error) {
	password := opts.Password
	if u.User != nil {
		if p, ok := u.User.Password(); ok {
			password = p
		}
	}

	var auth []ssh.AuthMethod
	if opts.PrivateKeyPath != "" {
		pem, err := os.ReadFile(opts.PrivateKeyPath)
		if err != nil {
			return nil, fmt.Errorf("read private key: %w", err)
		}
		signer, err := ssh.ParsePrivateKey(pem)
		if err != nil {
			var missing *ssh.PassphraseMissingError
			if errors.As(err, &missing) && password != "" {
				signer, err = ssh.ParsePrivateKeyWithPassphrase(pem, []byte(password))
			}
			if err != nil {
				return nil, fmt.Errorf("parse private key: %w", err)
			}
		}
		auth = append(auth, ssh.PublicKeys(signer))
	}
	if password != "" {
		auth = append(auth, ssh.Password(password))
	}
	if len(auth) == 0 {
		return nil, ErrSSHAuthRequired
	}
	return auth, nil
}

// hostKeyCallback builds host key verification from the options:
// explicit known_hosts path, the user's default file, or the insecure
// opt-out.
func hostKeyCallback(opts *model.SSHOptions) (ssh.HostKeyCallback, error) {
	if opts.InsecureIgnoreHostKey {
		//nolint:gosec // explicit user opt-in
		return ssh.InsecureIgnoreHostKey(), nil
	}
	path := opts.KnownHostsPath
	if path == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("locate known_hosts: %w", err)
		}
		path = filepath.Join(home, ".ssh", "known_hosts")
	}
	cb, err := knownhosts.New(path)
	if err != nil {
		return nil, fmt.Errorf("load known_hosts %s: %w", path, err)
	}
	return cb, nil
}

// sftpAddr resolves the dial address: URL port, configured port, then
// the SSH default.
func sftpAddr(u *url.URL, opts *model.SSHOptions) string {
	port := u.Port()
	if port == "" && opts.Port > 0 {
		port = fmt.Sprintf("%d", opts.Port)
	}
	if port == "" {
		port = "22"
	}
	return net.JoinHostPort(u.Hostname(), port)
}
