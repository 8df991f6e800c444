package remote

import (
	"context"
	"fmt"
	"net"
	"os"
	"time"

	"golang.org/x/crypto/ssh"

	"github.com/sddcinfo/provisioning-server/pkg/types"
)

// SSHExecutor runs commands over SSH with public-key auth. One executor
// per node; connections are dialed per call because reprovisioned hosts
// drop and re-key between calls.
type SSHExecutor struct {
	Host        string
	Port        int
	User        string
	DialTimeout time.Duration

	signer ssh.Signer
}

// NewSSHExecutor creates an executor from a PEM-encoded private key.
func NewSSHExecutor(host string, port int, user string, privateKey []byte) (*SSHExecutor, error) {
	signer, err := ssh.ParsePrivateKey(privateKey)
	if err != nil {
		return nil, fmt.Errorf("failed to parse private key: %w", err)
	}
	if port == 0 {
		port = 22
	}
	return &SSHExecutor{
		Host:        host,
		Port:        port,
		User:        user,
		DialTimeout: 10 * time.Second,
		signer:      signer,
	}, nil
}

// NewSSHExecutorFromFile creates an executor reading the key from disk.
func NewSSHExecutorFromFile(host string, port int, user, keyPath string) (*SSHExecutor, error) {
	key, err := os.ReadFile(keyPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read private key %s: %w", keyPath, err)
	}
	return NewSSHExecutor(host, port, user, key)
}

// Run executes command on the remote host and returns its combined
// output. Failures are returned as RemoteCommandError so callers can
// move to the next fallback in their ordered list.
func (e *SSHExecutor) Run(ctx context.Context, command string) (string, error) {
	config := &ssh.ClientConfig{
		User: e.User,
		Auth: []ssh.AuthMethod{
			ssh.PublicKeys(e.signer),
		},
		// Fleet nodes are reinstalled and re-keyed constantly; host key
		// pinning would reject every freshly provisioned node.
		HostKeyCallback: ssh.InsecureIgnoreHostKey(),
		Timeout:         e.DialTimeout,
	}

	addr := net.JoinHostPort(e.Host, fmt.Sprintf("%d", e.Port))

	dialer := &net.Dialer{Timeout: e.DialTimeout}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return "", &types.RemoteCommandError{Op: command, Err: fmt.Errorf("dial %s: %w", addr, err)}
	}

	sshConn, chans, reqs, err := ssh.NewClientConn(conn, addr, config)
	if err != nil {
		conn.Close()
		return "", &types.RemoteCommandError{Op: command, Err: fmt.Errorf("ssh handshake: %w", err)}
	}
	client := ssh.NewClient(sshConn, chans, reqs)
	defer client.Close()

	session, err := client.NewSession()
	if err != nil {
		return "", &types.RemoteCommandError{Op: command, Err: fmt.Errorf("new session: %w", err)}
	}
	defer session.Close()

	output, err := session.CombinedOutput(command)
	if err != nil {
		return string(output), &types.RemoteCommandError{Op: command, Output: string(output), Err: err}
	}

	return string(output), nil
}
