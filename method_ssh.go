package goSession

import (
	"context"
	"errors"
	"log"
	"net"
	"strconv"
	"strings"
	"time"

	"golang.org/x/crypto/ssh"
)

const sshDefaultTimeout = 5 * time.Second

// sshMethod delegates authentication to a remote SSH host: credentials are
// valid when the remote accepts a password handshake for them. Parameters:
//
//	host        remote address (required)
//	port        remote port, default 22
//	timeout     dial timeout in seconds, default 5
//	banner      optional substring the server banner must contain
//	fingerprint optional SHA256 host key fingerprint to pin
//
// Any transport-level failure degrades to "not authenticated" for this one
// method; it is never reported as an authentication success, and fallback
// methods still get their chance.
type sshMethod struct {
	addr        string
	timeout     time.Duration
	banner      string
	fingerprint string
}

func newSSHMethod(_ MethodDeps, params map[string]string) (AuthMethod, error) {
	host := params["host"]
	if host == "" {
		return nil, errors.New("ssh method requires a host parameter")
	}
	port := params["port"]
	if port == "" {
		port = "22"
	}

	timeout := sshDefaultTimeout
	if raw := params["timeout"]; raw != "" {
		secs, err := strconv.Atoi(raw)
		if err != nil || secs <= 0 {
			return nil, errors.New("ssh method timeout parameter invalid")
		}
		timeout = time.Duration(secs) * time.Second
	}

	return &sshMethod{
		addr:        net.JoinHostPort(host, port),
		timeout:     timeout,
		banner:      params["banner"],
		fingerprint: params["fingerprint"],
	}, nil
}

// Authenticate opens a short-lived password-authenticated SSH session.
//
// Authenticate may return an error when input validation, dependency calls, or security checks fail.
// Authenticate does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (m *sshMethod) Authenticate(ctx context.Context, username, password string) (bool, error) {
	if username == "" || password == "" {
		return false, nil
	}

	var banner strings.Builder

	cfg := &ssh.ClientConfig{
		User:    username,
		Auth:    []ssh.AuthMethod{ssh.Password(password)},
		Timeout: m.timeout,
		BannerCallback: func(message string) error {
			banner.WriteString(message)
			return nil
		},
		HostKeyCallback: m.hostKeyCallback(),
	}

	dialer := net.Dialer{Timeout: m.timeout}
	conn, err := dialer.DialContext(ctx, "tcp", m.addr)
	if err != nil {
		log.Printf("goSession: ssh auth transport failure for %s: %v", m.addr, err)
		return false, nil
	}

	sshConn, chans, reqs, err := ssh.NewClientConn(conn, m.addr, cfg)
	if err != nil {
		_ = conn.Close()
		// Covers both bad credentials and handshake failures; the remote
		// does not let us tell them apart and neither do we.
		return false, nil
	}

	client := ssh.NewClient(sshConn, chans, reqs)
	defer client.Close()

	if m.banner != "" && !strings.Contains(banner.String(), m.banner) {
		log.Printf("goSession: ssh auth banner mismatch for %s", m.addr)
		return false, nil
	}

	return true, nil
}

func (m *sshMethod) hostKeyCallback() ssh.HostKeyCallback {
	if m.fingerprint == "" {
		// The remote is an authentication oracle, not a data channel;
		// deployments that care pin the fingerprint parameter.
		return ssh.InsecureIgnoreHostKey()
	}

	want := m.fingerprint
	return func(hostname string, remote net.Addr, key ssh.PublicKey) error {
		if ssh.FingerprintSHA256(key) != want {
			return errors.New("ssh host key fingerprint mismatch")
		}
		return nil
	}
}
