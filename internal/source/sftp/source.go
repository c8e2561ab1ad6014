// Package sftp implements core.Source over SFTP, the transfer protocol the
// laboratories upload result files with.
package sftp

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"path"
	"strconv"
	"strings"
	"time"

	"github.com/JonMunkholm/labimport/internal/core"
	"github.com/pkg/sftp"
	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/knownhosts"
)

// DefaultTimeout bounds the TCP dial and SSH handshake.
const DefaultTimeout = 30 * time.Second

// Config holds the endpoint credentials and the fixed upload directory.
type Config struct {
	Host       string
	Port       int
	Username   string
	Password   string
	Directory  string
	KnownHosts string // OpenSSH known_hosts file; empty skips host key verification
	Timeout    time.Duration
}

// Validate reports missing settings.
func (c Config) Validate() error {
	var errs []error
	if strings.TrimSpace(c.Host) == "" {
		errs = append(errs, errors.New("host is required"))
	}
	if c.Port < 1 || c.Port > 65535 {
		errs = append(errs, fmt.Errorf("port %d out of range", c.Port))
	}
	if c.Username == "" {
		errs = append(errs, errors.New("username is required"))
	}
	if c.Directory == "" {
		errs = append(errs, errors.New("directory is required"))
	}
	return errors.Join(errs...)
}

func (c Config) addr() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

// Source is a connected SFTP session bound to one directory.
type Source struct {
	client *sftp.Client
	conn   io.Closer // underlying SSH connection, nil in tests
	dir    string
}

// Dial connects and authenticates with password and keyboard-interactive auth.
func Dial(ctx context.Context, cfg Config) (*Source, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("source connect: %w", err)
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}

	hostKey, err := hostKeyCallback(cfg.KnownHosts)
	if err != nil {
		return nil, fmt.Errorf("source connect: %w", err)
	}

	sshCfg := &ssh.ClientConfig{
		User: cfg.Username,
		Auth: []ssh.AuthMethod{
			ssh.Password(cfg.Password),
			ssh.KeyboardInteractive(func(_, _ string, questions []string, _ []bool) ([]string, error) {
				answers := make([]string, len(questions))
				for i := range answers {
					answers[i] = cfg.Password
				}
				return answers, nil
			}),
		},
		HostKeyCallback: hostKey,
		Timeout:         cfg.Timeout,
	}

	dialer := net.Dialer{Timeout: cfg.Timeout}
	netConn, err := dialer.DialContext(ctx, "tcp", cfg.addr())
	if err != nil {
		return nil, fmt.Errorf("source connect: %w", err)
	}
	if deadline, ok := ctx.Deadline(); ok {
		_ = netConn.SetDeadline(deadline)
	}

	sshConn, chans, reqs, err := ssh.NewClientConn(netConn, cfg.addr(), sshCfg)
	if err != nil {
		netConn.Close()
		return nil, fmt.Errorf("source connect: %w", err)
	}
	// The run timeout is enforced through ctx from here on.
	_ = netConn.SetDeadline(time.Time{})
	sshClient := ssh.NewClient(sshConn, chans, reqs)

	client, err := sftp.NewClient(sshClient)
	if err != nil {
		sshClient.Close()
		return nil, fmt.Errorf("source connect: sftp subsystem: %w", err)
	}

	return newSource(client, sshClient, cfg.Directory), nil
}

func newSource(client *sftp.Client, conn io.Closer, dir string) *Source {
	return &Source{client: client, conn: conn, dir: dir}
}

func hostKeyCallback(knownHostsFile string) (ssh.HostKeyCallback, error) {
	if knownHostsFile == "" {
		slog.Warn("sftp host key not verified, set KNOWN_HOSTS to enable verification")
		return ssh.InsecureIgnoreHostKey(), nil
	}
	cb, err := knownhosts.New(knownHostsFile)
	if err != nil {
		return nil, fmt.Errorf("load known hosts: %w", err)
	}
	return cb, nil
}

func (s *Source) Driver() core.Driver { return core.DriverSFTP }

// List returns the regular files of the upload directory in server order.
func (s *Source) List(ctx context.Context) ([]core.RemoteFile, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	entries, err := s.client.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("source list %s: %w", s.dir, err)
	}

	var files []core.RemoteFile
	for _, e := range entries {
		if !e.Mode().IsRegular() || strings.HasPrefix(e.Name(), ".") {
			continue
		}
		files = append(files, core.RemoteFile{
			Path:    path.Join(s.dir, e.Name()),
			Size:    e.Size(),
			ModTime: e.ModTime(),
		})
	}
	return files, nil
}

func (s *Source) Open(_ context.Context, p string) (io.ReadCloser, error) {
	return s.client.Open(p)
}

func (s *Source) Delete(_ context.Context, p string) error {
	if err := s.client.Remove(p); err != nil {
		return fmt.Errorf("source delete %s: %w", p, err)
	}
	return nil
}

// Close ends the SFTP session and the SSH connection.
func (s *Source) Close() error {
	err := s.client.Close()
	if s.conn != nil {
		if cerr := s.conn.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}
	return err
}
