package checker

import (
	"context"
	"net"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
)

// Reachability is the outcome of a liveness probe.
type Reachability int

const (
	// Unknown means the probe could not be attempted (bad input).
	Unknown Reachability = iota
	Reachable
	Unreachable
)

func (r Reachability) String() string {
	switch r {
	case Reachable:
		return "reachable"
	case Unreachable:
		return "unreachable"
	default:
		return "unknown"
	}
}

// DefaultTimeout bounds a single TCP connect attempt.
const DefaultTimeout = 2 * time.Second

// TCPChecker dials host:port and closes the connection immediately. No
// data is exchanged.
type TCPChecker struct {
	Timeout time.Duration
	Log     *zap.Logger
}

// NewTCPChecker returns a checker with the given per-attempt timeout.
func NewTCPChecker(timeout time.Duration, log *zap.Logger) *TCPChecker {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &TCPChecker{Timeout: timeout, Log: log}
}

// Reachable never returns an error: dial failures and timeouts are
// Unreachable, malformed input is Unknown.
func (c *TCPChecker) Reachable(ctx context.Context, host, port string) Reachability {
	host = strings.TrimSpace(host)
	n, err := strconv.Atoi(strings.TrimSpace(port))
	if host == "" || err != nil || n <= 0 || n > 65535 {
		return Unknown
	}

	ctx, cancel := context.WithTimeout(ctx, c.Timeout)
	defer cancel()

	addr := net.JoinHostPort(host, strconv.Itoa(n))
	t0 := time.Now()
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", addr)
	ms := time.Since(t0).Milliseconds()
	if err != nil {
		c.Log.Debug("tcp check failed", zap.String("addr", addr), zap.Int64("ms", ms), zap.Error(err))
		return Unreachable
	}
	_ = conn.Close()
	c.Log.Debug("tcp check ok", zap.String("addr", addr), zap.Int64("ms", ms))
	return Reachable
}
