// Package alerts delivers aggregator outage and recovery notices to a
// generic webhook and to Discord.
package alerts

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"
)

// Kind of an alert event.
type Kind string

const (
	KindDown Kind = "down"
	KindUp   Kind = "up"
)

// Event is one aggregator transition worth telling someone about.
type Event struct {
	Kind       Kind      `json:"status"`
	Aggregator string    `json:"aggregator"`
	Beast      string    `json:"beast"`
	Mlat       string    `json:"mlat"`
	Streak     int       `json:"streak,omitempty"`
	At         time.Time `json:"timestamp"`
}

// Subject is the one-line headline for e.
func (e Event) Subject() string {
	if e.Kind == KindUp {
		return fmt.Sprintf("✅ Feed Recovered: %s", e.Aggregator)
	}
	return fmt.Sprintf("🔴 Feed Down: %s", e.Aggregator)
}

// Message is the plain-text body for e.
func (e Event) Message() string {
	if e.Kind == KindUp {
		return fmt.Sprintf("The %s feed is healthy again (beast %s, mlat %s).", e.Aggregator, e.Beast, e.Mlat)
	}
	return fmt.Sprintf("The %s feed has been unhealthy for %d consecutive checks (beast %s, mlat %s).",
		e.Aggregator, e.Streak, e.Beast, e.Mlat)
}

// Config selects the channels. An empty URL disables that channel.
type Config struct {
	WebhookURL    string
	WebhookSecret string
	DiscordURL    string
	Timeout       time.Duration
	QueueSize     int
}

// Notifier queues events and sends them from Run.
type Notifier struct {
	cfg    Config
	client *http.Client
	log    *zap.Logger
	queue  chan Event
}

// New returns a notifier. A nil client gets one with cfg.Timeout.
func New(cfg Config, client *http.Client, log *zap.Logger) *Notifier {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 32
	}
	if client == nil {
		client = &http.Client{Timeout: cfg.Timeout}
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Notifier{cfg: cfg, client: client, log: log, queue: make(chan Event, cfg.QueueSize)}
}

// Enabled reports whether any channel is configured.
func (n *Notifier) Enabled() bool {
	return n.cfg.WebhookURL != "" || n.cfg.DiscordURL != ""
}

// Notify enqueues e without blocking. It returns false when the event was
// dropped because the queue is full or no channel is configured.
func (n *Notifier) Notify(e Event) bool {
	if !n.Enabled() {
		return false
	}
	select {
	case n.queue <- e:
		return true
	default:
		n.log.Warn("alert queue full, dropping event",
			zap.String("aggregator", e.Aggregator), zap.String("kind", string(e.Kind)))
		return false
	}
}

// Run delivers queued events until ctx is done.
func (n *Notifier) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case e := <-n.queue:
			n.Send(ctx, e)
		}
	}
}

// Send delivers e to every configured channel and returns the first error.
func (n *Notifier) Send(ctx context.Context, e Event) error {
	var first error
	if n.cfg.WebhookURL != "" {
		if err := n.sendWebhook(ctx, e); err != nil {
			n.log.Error("webhook notification failed", zap.String("aggregator", e.Aggregator), zap.Error(err))
			first = err
		}
	}
	if n.cfg.DiscordURL != "" {
		if err := n.sendDiscord(ctx, e); err != nil {
			n.log.Error("discord notification failed", zap.String("aggregator", e.Aggregator), zap.Error(err))
			if first == nil {
				first = err
			}
		}
	}
	return first
}

func (n *Notifier) post(req *http.Request) error {
	resp, err := n.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("%s: unexpected status %d", req.URL.Host, resp.StatusCode)
	}
	n.log.Debug("notification sent", zap.String("host", req.URL.Host), zap.Int("status", resp.StatusCode))
	return nil
}
