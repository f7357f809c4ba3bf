package power

import (
	"context"
	"fmt"
	"net"
	"time"

	"golang.org/x/crypto/ssh"
)

// SSHShutdown powers off the server over SSH.
type SSHShutdown struct {
	addr     string
	user     string
	password string
	timeout  time.Duration
}

// NewSSHShutdown creates the SSH shutdown transport. Host may include a port;
// 22 is assumed otherwise.
func NewSSHShutdown(host, user, password string) *SSHShutdown {
	if _, _, err := net.SplitHostPort(host); err != nil {
		host = net.JoinHostPort(host, "22")
	}
	return &SSHShutdown{
		addr:     host,
		user:     user,
		password: password,
		timeout:  15 * time.Second,
	}
}

// Shutdown connects and issues a poweroff.
func (s *SSHShutdown) Shutdown(ctx context.Context) error {
	config := &ssh.ClientConfig{
		User:            s.user,
		Auth:            []ssh.AuthMethod{ssh.Password(s.password)},
		HostKeyCallback: ssh.InsecureIgnoreHostKey(), // LAN-only target
		Timeout:         s.timeout,
	}

	var d net.Dialer
	netConn, err := d.DialContext(ctx, "tcp", s.addr)
	if err != nil {
		return fmt.Errorf("dial %s: %w", s.addr, err)
	}

	conn, chans, reqs, err := ssh.NewClientConn(netConn, s.addr, config)
	if err != nil {
		_ = netConn.Close()
		return fmt.Errorf("ssh handshake: %w", err)
	}
	client := ssh.NewClient(conn, chans, reqs)
	defer func() { _ = client.Close() }()

	session, err := client.NewSession()
	if err != nil {
		return fmt.Errorf("ssh session: %w", err)
	}
	defer func() { _ = session.Close() }()

	// The connection drops as the host powers off; that is not a failure.
	if err := session.Run("sudo shutdown -h now"); err != nil {
		if _, ok := err.(*ssh.ExitMissingError); ok {
			return nil
		}
		return fmt.Errorf("shutdown command: %w", err)
	}
	return nil
}
