package aggstatus

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"feederconsole/app/internal/docker"
	"feederconsole/app/internal/feedstats"
	"feederconsole/app/internal/registry"
)

// Thresholds for the beast connector uptime and the mlat-client sync
// percentages.
const (
	BeastGoodAfterSeconds = 20
	MlatGoodMinPercent    = 10
	MlatGoodMaxBadPercent = 5
	MlatBadPercent        = 15

	DefaultTTL        = 10 * time.Second
	DefaultStaleAfter = 60 * time.Second
	DefaultRunDir     = "/run/adsb-feeder-ultrafeeder"
)

// Flags is the read side of the configuration store.
type Flags interface {
	Bool(key string) bool
}

// ContainerProber reports a running container's status string.
type ContainerProber interface {
	Status(ctx context.Context, name string) (string, bool)
}

// Snapshot is one aggregator's last reconciled state.
type Snapshot struct {
	Aggregator string    `json:"aggregator"`
	Beast      Status    `json:"beast"`
	Mlat       Status    `json:"mlat"`
	Container  *string   `json:"container"`
	Symbol     string    `json:"symbol"`
	Enabled    bool      `json:"enabled"`
	CheckedAt  time.Time `json:"checked_at"`
}

// IsGood reports a live beast feed with MLAT either synced or not in use.
func (s Snapshot) IsGood() bool {
	return s.Beast == Good && (s.Mlat == Good || s.Mlat == Disabled)
}

func (s Snapshot) clone() Snapshot {
	if s.Container != nil {
		c := *s.Container
		s.Container = &c
	}
	return s
}

// Options tunes a Reconciler. Zero values take the defaults.
type Options struct {
	RunDir     string
	TTL        time.Duration
	StaleAfter time.Duration
	Log        *zap.Logger
	Now        func() time.Time
}

func (o Options) withDefaults() Options {
	if o.RunDir == "" {
		o.RunDir = DefaultRunDir
	}
	if o.TTL <= 0 {
		o.TTL = DefaultTTL
	}
	if o.StaleAfter <= 0 {
		o.StaleAfter = DefaultStaleAfter
	}
	if o.Log == nil {
		o.Log = zap.NewNop()
	}
	if o.Now == nil {
		o.Now = time.Now
	}
	return o
}

// Reconciler owns one aggregator's snapshot. The lock is held across the
// whole freshness check, probe and update, so concurrent callers inside
// the TTL share one probe.
type Reconciler struct {
	id         registry.Identity
	flags      Flags
	containers ContainerProber
	opts       Options

	mu   sync.Mutex
	snap Snapshot
}

// NewReconciler returns a reconciler that has not probed yet.
func NewReconciler(id registry.Identity, flags Flags, containers ContainerProber, opts Options) *Reconciler {
	opts = opts.withDefaults()
	return &Reconciler{
		id:         id,
		flags:      flags,
		containers: containers,
		opts:       opts,
		snap:       Snapshot{Aggregator: id.Name, Beast: Unknown, Mlat: Unknown, Symbol: Unknown.Symbol()},
	}
}

// Name is the aggregator this reconciler tracks.
func (r *Reconciler) Name() string {
	return r.id.Name
}

// Check returns the cached snapshot while it is younger than the TTL,
// otherwise probes. It never fails: every I/O problem maps to a status.
func (r *Reconciler) Check(ctx context.Context, force bool) Snapshot {
	s, _ := r.check(ctx, force)
	return s
}

// check also reports whether a probe ran.
func (r *Reconciler) check(ctx context.Context, force bool) (Snapshot, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.opts.Now()
	if !force && !r.snap.CheckedAt.IsZero() && now.Sub(r.snap.CheckedAt) < r.opts.TTL {
		return r.snap.clone(), false
	}

	next := r.probe(ctx, now)
	next.Symbol = next.Beast.Symbol()
	if next.CheckedAt.Before(r.snap.CheckedAt) {
		next.CheckedAt = r.snap.CheckedAt
	}
	r.snap = next
	return r.snap.clone(), true
}

func (r *Reconciler) probe(ctx context.Context, now time.Time) Snapshot {
	s := Snapshot{Aggregator: r.id.Name, CheckedAt: now}

	if !r.flags.Bool(r.id.EnabledKey) {
		s.Beast, s.Mlat = Disabled, Disabled
		return s
	}
	s.Enabled = true

	status, ok := r.containers.Status(ctx, r.id.Container)
	if !ok || !docker.Running(status) {
		s.Beast, s.Mlat = ContainerDown, ContainerDown
		return s
	}
	s.Container = &status
	s.Beast = r.beast()
	s.Mlat = r.mlat(now)
	return s
}

func (r *Reconciler) beast() Status {
	reading := feedstats.ReadConnectorStatus(feedstats.StatsPath(r.opts.RunDir), r.id.BeastHost)
	switch reading.Kind {
	case feedstats.Missing:
		return Disconnected
	case feedstats.OK:
		return BeastStatus(reading.Seconds)
	case feedstats.NoMatch:
		r.opts.Log.Debug("no beast connector series",
			zap.String("aggregator", r.id.Name), zap.String("host", r.id.BeastHost))
		return Unknown
	default:
		r.opts.Log.Warn("beast stats unreadable", zap.String("aggregator", r.id.Name), zap.Error(reading.Err))
		return Unknown
	}
}

func (r *Reconciler) mlat(now time.Time) Status {
	if !r.flags.Bool(r.id.MlatKey) {
		return Disabled
	}
	name := ""
	if r.id.MlatHost != "" && r.id.MlatPort != "" {
		name = feedstats.SyncFileName(r.id.MlatHost, r.id.MlatPort)
	}
	reading := feedstats.ReadSync(feedstats.SyncDir(r.opts.RunDir), name)
	switch reading.Kind {
	case feedstats.OK:
		return MlatStatus(reading.GoodPercent, reading.BadPercent, now.Sub(reading.Now), r.opts.StaleAfter)
	case feedstats.Malformed:
		r.opts.Log.Warn("mlat sync stats unreadable",
			zap.String("aggregator", r.id.Name), zap.String("file", reading.File), zap.Error(reading.Err))
		return Unknown
	default:
		return Disconnected
	}
}

// BeastStatus maps connector uptime seconds to a status.
func BeastStatus(seconds float64) Status {
	switch {
	case seconds <= 0:
		return Disconnected
	case seconds > BeastGoodAfterSeconds:
		return Good
	default:
		return Warning
	}
}

// MlatStatus maps sync percentages and the sample age to a status. A sample
// in neither the good nor the bad band is a warning.
func MlatStatus(good, bad float64, age, staleAfter time.Duration) Status {
	switch {
	case age > staleAfter:
		return Disconnected
	case good > MlatGoodMinPercent && bad <= MlatGoodMaxBadPercent:
		return Good
	case bad > MlatBadPercent:
		return Bad
	default:
		return Warning
	}
}
