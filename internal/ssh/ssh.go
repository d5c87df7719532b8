package ssh

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/sftp"
	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/agent"
	"golang.org/x/crypto/ssh/knownhosts"

	"github.com/eniac111/ansimple/internal/log"
	"github.com/eniac111/ansimple/internal/types"
)

const defaultPort = 22

// ErrNoAuthMethods is returned when neither a key nor an agent is usable.
var ErrNoAuthMethods = errors.New("no authentication methods available")

// Config describes how to authenticate and verify hosts. Only non-interactive
// methods are ever used: keys and the SSH agent, never passwords.
type Config struct {
	// Port is used for hosts without an ansible_port variable. 0 means 22.
	Port int
	// KeyPath is a private key to offer. When empty and Signers is empty,
	// the default keys under ~/.ssh are tried.
	KeyPath string
	// Signers are offered before any key loaded from disk.
	Signers []ssh.Signer
	// Agent enables authentication through $SSH_AUTH_SOCK.
	Agent bool
	// KnownHostsPath defaults to ~/.ssh/known_hosts.
	KnownHostsPath string
	// HostKeyCallback overrides known_hosts verification when set.
	HostKeyCallback       ssh.HostKeyCallback
	InsecureIgnoreHostKey bool
	Logger                *log.Logger
}

// Client is a connection pool of SSH clients keyed by user@address. It
// satisfies engine.Remote.
type Client struct {
	cfg       Config
	auth      []ssh.AuthMethod
	hostKeys  ssh.HostKeyCallback
	agentConn net.Conn
	logger    *log.Logger

	mu    sync.Mutex
	conns map[string]*ssh.Client
}

// New prepares authentication and host key verification.
func New(cfg Config) (*Client, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = log.Discard()
	}
	c := &Client{cfg: cfg, logger: logger, conns: map[string]*ssh.Client{}}

	signers := append([]ssh.Signer(nil), cfg.Signers...)
	if cfg.KeyPath != "" {
		signer, err := loadKey(cfg.KeyPath)
		if err != nil {
			return nil, err
		}
		signers = append(signers, signer)
	}

	if cfg.KeyPath == "" && len(cfg.Signers) == 0 {
		if home, err := os.UserHomeDir(); err == nil {
			for _, name := range []string{"id_ed25519", "id_ecdsa", "id_rsa"} {
				path := filepath.Join(home, ".ssh", name)
				signer, err := loadKey(path)
				if err != nil {
					logger.WithError(err).Debug("skipping default SSH key", "path", path)
					continue
				}
				logger.Debug("using default SSH key", "path", path)
				signers = append(signers, signer)
			}
		}
	}
	if len(signers) > 0 {
		c.auth = append(c.auth, ssh.PublicKeys(signers...))
	}

	if cfg.Agent {
		if sock := os.Getenv("SSH_AUTH_SOCK"); sock != "" {
			conn, err := net.Dial("unix", sock)
			if err == nil {
				c.agentConn = conn
				c.auth = append(c.auth, ssh.PublicKeysCallback(agent.NewClient(conn).Signers))
				logger.Debug("using SSH agent", "socket", sock)
			} else {
				logger.WithError(err).Debug("failed to connect to SSH agent")
			}
		}
	}

	if len(c.auth) == 0 {
		return nil, ErrNoAuthMethods
	}

	hostKeys, err := hostKeyCallback(cfg)
	if err != nil {
		c.Close()
		return nil, err
	}
	c.hostKeys = hostKeys
	return c, nil
}

func loadKey(path string) (ssh.Signer, error) {
	key, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read SSH key: %w", err)
	}
	signer, err := ssh.ParsePrivateKey(key)
	if err != nil {
		// Passphrase-protected keys are left to the agent.
		return nil, fmt.Errorf("failed to parse SSH key %s: %w", path, err)
	}
	return signer, nil
}

func hostKeyCallback(cfg Config) (ssh.HostKeyCallback, error) {
	switch {
	case cfg.HostKeyCallback != nil:
		return cfg.HostKeyCallback, nil
	case cfg.InsecureIgnoreHostKey:
		return ssh.InsecureIgnoreHostKey(), nil
	}
	path := cfg.KnownHostsPath
	if path == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("failed to locate known_hosts: %w", err)
		}
		path = filepath.Join(home, ".ssh", "known_hosts")
	}
	cb, err := knownhosts.New(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load known_hosts: %w", err)
	}
	return cb, nil
}

// Close closes every pooled connection and the agent socket.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	var errs []error
	for key, conn := range c.conns {
		if err := conn.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
			errs = append(errs, err)
		}
		delete(c.conns, key)
	}
	if c.agentConn != nil {
		errs = append(errs, c.agentConn.Close())
		c.agentConn = nil
	}
	return errors.Join(errs...)
}

func (c *Client) address(host types.Host) (string, error) {
	port := c.cfg.Port
	if port == 0 {
		port = defaultPort
	}
	if p := host.Var("ansible_port"); p != "" {
		n, err := strconv.Atoi(p)
		if err != nil || n <= 0 || n > 65535 {
			return "", fmt.Errorf("invalid ansible_port %q for host %s", p, host.Name)
		}
		port = n
	}
	return net.JoinHostPort(host.Address(), strconv.Itoa(port)), nil
}

// dial opens an authenticated connection. ctx bounds both the TCP connect and
// the SSH handshake.
func (c *Client) dial(ctx context.Context, identity, addr string) (*ssh.Client, error) {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("failed to dial SSH: %w", err)
	}
	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	}
	stop := context.AfterFunc(ctx, func() {
		_ = conn.SetDeadline(time.Unix(1, 0))
	})
	config := &ssh.ClientConfig{
		User:            identity,
		Auth:            c.auth,
		HostKeyCallback: c.hostKeys,
	}
	sc, chans, reqs, err := ssh.NewClientConn(conn, addr, config)
	stop()
	if err != nil {
		conn.Close()
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, fmt.Errorf("SSH handshake with %s: %w", addr, ctxErr)
		}
		return nil, fmt.Errorf("SSH handshake with %s: %w", addr, err)
	}
	_ = conn.SetDeadline(time.Time{})
	return ssh.NewClient(sc, chans, reqs), nil
}

func (c *Client) store(key string, conn *ssh.Client) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if old, ok := c.conns[key]; ok && old != conn {
		old.Close()
	}
	c.conns[key] = conn
}

func (c *Client) evict(key string, conn *ssh.Client) {
	c.mu.Lock()
	if cur, ok := c.conns[key]; ok && cur == conn {
		delete(c.conns, key)
	}
	c.mu.Unlock()
	conn.Close()
}

func (c *Client) connection(ctx context.Context, identity string, host types.Host) (string, *ssh.Client, error) {
	addr, err := c.address(host)
	if err != nil {
		return "", nil, err
	}
	key := identity + "@" + addr

	c.mu.Lock()
	conn, ok := c.conns[key]
	c.mu.Unlock()
	if ok {
		return key, conn, nil
	}

	conn, err = c.dial(ctx, identity, addr)
	if err != nil {
		return "", nil, err
	}
	c.store(key, conn)
	return key, conn, nil
}

// Probe establishes a fresh authenticated connection and opens a session on
// it without running anything. The connection is kept for later commands.
func (c *Client) Probe(ctx context.Context, identity string, host types.Host) error {
	addr, err := c.address(host)
	if err != nil {
		return err
	}
	conn, err := c.dial(ctx, identity, addr)
	if err != nil {
		return err
	}
	session, err := conn.NewSession()
	if err != nil {
		conn.Close()
		return fmt.Errorf("failed to open session on %s: %w", addr, err)
	}
	session.Close()
	c.store(identity+"@"+addr, conn)
	return nil
}

// Execute runs command on host. Commands spanning several lines are uploaded
// as a script over SFTP and run with sh.
func (c *Client) Execute(ctx context.Context, identity string, host types.Host, command string) (types.CommandResult, error) {
	res := types.CommandResult{ExitStatus: -1}

	key, conn, err := c.connection(ctx, identity, host)
	if err != nil {
		return res, err
	}

	if strings.Contains(strings.TrimRight(command, "\n"), "\n") {
		// SFTP calls take no context; dropping the connection unblocks them.
		stop := context.AfterFunc(ctx, func() { c.evict(key, conn) })
		path, err := UploadScript(conn, command)
		if !stop() {
			return res, fmt.Errorf("staging script interrupted: %w", ctx.Err())
		}
		if err != nil {
			return res, err
		}
		c.logger.Debug("staged script", "host", host.Name, "path", path)
		command = fmt.Sprintf("sh %[1]s; rc=$?; rm -f %[1]s; exit $rc", path)
	}

	session, err := conn.NewSession()
	if err != nil {
		c.evict(key, conn)
		return res, fmt.Errorf("failed to create session: %w", err)
	}
	defer session.Close()

	var stdout, stderr bytes.Buffer
	session.Stdout = &stdout
	session.Stderr = &stderr

	done := make(chan error, 1)
	go func() { done <- session.Run(command) }()

	select {
	case err = <-done:
	case <-ctx.Done():
		_ = session.Signal(ssh.SIGKILL)
		// Dropping the connection guarantees Run returns.
		c.evict(key, conn)
		<-done
		res.Stdout, res.Stderr = stdout.String(), stderr.String()
		return res, fmt.Errorf("command interrupted: %w", ctx.Err())
	}

	res.Stdout, res.Stderr = stdout.String(), stderr.String()
	var exitErr *ssh.ExitError
	switch {
	case err == nil:
		res.ExitStatus = 0
		return res, nil
	case errors.As(err, &exitErr):
		res.ExitStatus = exitErr.ExitStatus()
		return res, nil
	default:
		c.evict(key, conn)
		return res, fmt.Errorf("failed to run command: %w", err)
	}
}

// UploadScript writes script to a fresh file under /tmp over SFTP and returns
// its path.
func UploadScript(sshClient *ssh.Client, script string) (string, error) {
	sftpClient, err := sftp.NewClient(sshClient)
	if err != nil {
		return "", fmt.Errorf("failed to start sftp: %w", err)
	}
	defer sftpClient.Close()

	remotePath := "/tmp/ansimple-" + uuid.NewString() + ".sh"
	dstFile, err := sftpClient.OpenFile(remotePath, os.O_WRONLY|os.O_CREATE|os.O_EXCL)
	if err != nil {
		return "", fmt.Errorf("failed to create %s: %w", remotePath, err)
	}
	defer dstFile.Close()

	if err := sftpClient.Chmod(remotePath, 0o700); err != nil {
		return "", fmt.Errorf("failed to chmod %s: %w", remotePath, err)
	}
	if _, err := dstFile.Write([]byte(script)); err != nil {
		return "", fmt.Errorf("failed to write %s: %w", remotePath, err)
	}
	return remotePath, nil
}
