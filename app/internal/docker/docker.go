// Package docker reads container state from `docker ps`.
package docker

import (
	"context"
	"maps"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"feederconsole/app/internal/shell"
)

// Client caches the running-container table. A refresh runs at most once
// per cacheFor, no matter how many callers ask.
type Client struct {
	Runner  shell.Runner
	Binary  string
	Timeout time.Duration
	Log     *zap.Logger

	mu       sync.Mutex
	cachedAt time.Time
	cached   map[string]string
	cacheFor time.Duration
	now      func() time.Time
}

// NewClient returns a client that shells out to the docker CLI.
func NewClient(runner shell.Runner, cacheFor, timeout time.Duration, log *zap.Logger) *Client {
	if runner == nil {
		runner = shell.Exec{}
	}
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Client{
		Runner:   runner,
		Binary:   "docker",
		Timeout:  timeout,
		Log:      log,
		cached:   map[string]string{},
		cacheFor: cacheFor,
		now:      time.Now,
	}
}

// Status returns the `docker ps` status column for a running container.
func (c *Client) Status(ctx context.Context, name string) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.refreshLocked(ctx)
	s, ok := c.cached[name]
	return s, ok
}

// All returns a copy of every running container and its status.
func (c *Client) All(ctx context.Context) map[string]string {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.refreshLocked(ctx)
	return maps.Clone(c.cached)
}

// Invalidate forces the next call to run `docker ps`.
func (c *Client) Invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cachedAt = time.Time{}
}

func (c *Client) refreshLocked(ctx context.Context) {
	now := c.now()
	if !c.cachedAt.IsZero() && now.Sub(c.cachedAt) < c.cacheFor {
		return
	}
	// Stamp before running so a failing docker is not retried on every call.
	c.cachedAt = now
	c.cached = map[string]string{}

	ctx, cancel := context.WithTimeout(ctx, c.Timeout)
	defer cancel()
	out, err := c.Runner.Run(ctx, c.Binary, "ps", "--filter", "status=running", "--format", "{{.Names}};{{.Status}}")
	if err != nil {
		c.Log.Warn("docker ps failed", zap.Error(err))
		return
	}
	c.cached = ParsePS(out)
}

// ParsePS parses `name;status` lines.
func ParsePS(out []byte) map[string]string {
	table := map[string]string{}
	for _, line := range strings.Split(string(out), "\n") {
		name, status, ok := strings.Cut(strings.TrimSpace(line), ";")
		if !ok || name == "" {
			continue
		}
		table[name] = status
	}
	return table
}

// Running reports whether a status string describes a live container.
func Running(status string) bool {
	s := strings.ToLower(strings.TrimSpace(status))
	return strings.HasPrefix(s, "up") || strings.Contains(s, "running")
}
