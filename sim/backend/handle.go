// Package backend owns the lifecycle of one external simulator instance:
// launching the child process, dialing its control socket, exchanging
// request/response frames, and tearing everything down exactly once.
package backend

import (
	"fmt"
	"net"
	"os/exec"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// Config holds connection parameters for one backend instance.
type Config struct {
	Binary         string        // simulator executable; empty means attach to an already-running backend
	Args           []string      // arguments passed to the executable
	Host           string        // control socket host (default 127.0.0.1)
	Port           int           // control socket port
	ConnectTimeout time.Duration // overall budget for spawn + dial + handshake
	RequestTimeout time.Duration // per-request read/write deadline
	Label          string        // handshake label, shows up in backend logs
}

const (
	defaultConnectTimeout = 30 * time.Second
	defaultRequestTimeout = 30 * time.Second
	dialRetryInterval     = 200 * time.Millisecond
)

// Handle is the exclusive owner of one backend process and its socket.
// At most one request may be in flight at a time; Request enforces this.
type Handle struct {
	proc *exec.Cmd
	conn net.Conn

	requestTimeout time.Duration

	mu        sync.Mutex // serializes requests on the connection
	closeOnce sync.Once
}

// Launch starts the configured simulator process (if a binary is given),
// dials its control socket with retries until ConnectTimeout elapses, and
// performs the protocol handshake. On any failure every partially-acquired
// resource is released before returning.
func Launch(cfg Config) (*Handle, error) {
	if cfg.Port <= 0 {
		return nil, fmt.Errorf("backend port not configured")
	}
	host := cfg.Host
	if host == "" {
		host = "127.0.0.1"
	}
	connectTimeout := cfg.ConnectTimeout
	if connectTimeout <= 0 {
		connectTimeout = defaultConnectTimeout
	}
	requestTimeout := cfg.RequestTimeout
	if requestTimeout <= 0 {
		requestTimeout = defaultRequestTimeout
	}

	h := &Handle{requestTimeout: requestTimeout}

	if cfg.Binary != "" {
		h.proc = exec.Command(cfg.Binary, cfg.Args...)
		if err := h.proc.Start(); err != nil {
			return nil, fmt.Errorf("start %s: %w", cfg.Binary, err)
		}
		logrus.Debugf("backend process %s started (pid %d)", cfg.Binary, h.proc.Process.Pid)
	}

	addr := fmt.Sprintf("%s:%d", host, cfg.Port)
	deadline := time.Now().Add(connectTimeout)
	var conn net.Conn
	var err error
	for {
		conn, err = net.DialTimeout("tcp", addr, dialRetryInterval)
		if err == nil {
			break
		}
		if time.Now().After(deadline) {
			h.Close()
			return nil, fmt.Errorf("dial %s: %w", addr, err)
		}
		time.Sleep(dialRetryInterval)
	}
	h.conn = conn

	if _, err := h.Request(CmdHandshake, []byte(cfg.Label)); err != nil {
		h.Close()
		return nil, fmt.Errorf("handshake: %w", err)
	}
	logrus.Debugf("backend connected at %s", addr)
	return h, nil
}

// Attach wraps an existing connection in a Handle. Used when the caller
// already owns a socket (tests, pre-started simulators); no process is
// supervised and no handshake is performed.
func Attach(conn net.Conn, requestTimeout time.Duration) *Handle {
	if requestTimeout <= 0 {
		requestTimeout = defaultRequestTimeout
	}
	return &Handle{conn: conn, requestTimeout: requestTimeout}
}

// Request sends one command frame and blocks until the reply arrives or the
// request deadline expires. Error replies from the backend come back as
// errors; transport errors poison the connection and the caller must treat
// the handle as failed.
func (h *Handle) Request(cmd byte, payload []byte) ([]byte, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.conn == nil {
		return nil, fmt.Errorf("handle is closed")
	}
	if err := h.conn.SetDeadline(time.Now().Add(h.requestTimeout)); err != nil {
		return nil, err
	}
	if err := WriteFrame(h.conn, cmd, payload); err != nil {
		return nil, fmt.Errorf("write command 0x%02x: %w", cmd, err)
	}
	replyCmd, reply, err := ReadFrame(h.conn)
	if err != nil {
		return nil, fmt.Errorf("read reply to 0x%02x: %w", cmd, err)
	}
	if replyCmd != cmd {
		return nil, fmt.Errorf("reply command 0x%02x does not match request 0x%02x", replyCmd, cmd)
	}
	return decodeReply(reply)
}

// Close tears down the socket and the child process. Idempotent: the second
// and later calls are no-ops. Safe after a partial Launch; never returns an
// error and never panics.
func (h *Handle) Close() {
	h.closeOnce.Do(func() {
		if h.conn != nil {
			if err := h.conn.Close(); err != nil {
				logrus.Debugf("backend socket close: %v", err)
			}
			h.mu.Lock()
			h.conn = nil
			h.mu.Unlock()
		}
		if h.proc != nil && h.proc.Process != nil {
			if err := h.proc.Process.Kill(); err != nil {
				logrus.Debugf("backend process kill: %v", err)
			}
			// Reap so no zombie outlives the handle.
			if err := h.proc.Wait(); err != nil {
				logrus.Debugf("backend process wait: %v", err)
			}
		}
	})
}
