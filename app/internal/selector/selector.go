// Package selector decides which TAK relay host the feeder daemon should
// connect to.
package selector

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"feederconsole/app/internal/checker"
	"feederconsole/app/internal/tailnet"
)

// Keys read from the appliance .env.
const (
	KeyEnabled       = "TAK_ENABLED"
	KeyMode          = "TAK_CONNECTION_MODE"
	KeyPrimary       = "TAK_SERVER_HOST_PRIMARY"
	KeyFallback      = "TAK_SERVER_HOST_FALLBACK"
	KeyPort          = "TAK_SERVER_PORT"
	KeyMlatEnabled   = "TAK_MLAT_ENABLED"
	KeyMlatPort      = "TAK_MLAT_PORT"
	KeyMlatLocalPort = "TAK_MLAT_LOCAL_PORT"
	KeyStrategy      = "TAK_SELECTION_STRATEGY"
	KeyNetworkSuffix = "TAK_PRIVATE_NETWORK_SUFFIX"
)

// Documented defaults.
const (
	DefaultPort          = "30004"
	DefaultMlatPort      = "30105"
	DefaultMlatLocalPort = "39010"
	DefaultPrimary       = "100.117.34.88"
	DefaultFallback      = "104.225.219.254"
	DefaultSuffix        = "ts.net"
)

// Mode selects the decision branch.
type Mode string

const (
	ModePrimary  Mode = "primary"
	ModeFallback Mode = "fallback"
	ModeAuto     Mode = "auto"
	ModeMonitor  Mode = "monitor"
)

// ParseMode treats anything unrecognized as auto.
func ParseMode(s string) Mode {
	switch m := Mode(strings.ToLower(strings.TrimSpace(s))); m {
	case ModePrimary, ModeFallback, ModeAuto, ModeMonitor:
		return m
	}
	return ModeAuto
}

// Strategy is how auto mode judges the primary host.
type Strategy string

const (
	// StrategyReachability dials primary:port, then fallback:port.
	StrategyReachability Strategy = "reachability"
	// StrategyPrivateNetwork trusts the primary only while the node is
	// joined to the expected mesh namespace.
	StrategyPrivateNetwork Strategy = "private-network"
)

// ParseStrategy treats anything unrecognized as reachability.
func ParseStrategy(s string) Strategy {
	if Strategy(strings.ToLower(strings.TrimSpace(s))) == StrategyPrivateNetwork {
		return StrategyPrivateNetwork
	}
	return StrategyReachability
}

// Reason explains a Decision.
type Reason string

const (
	ReasonPrimaryForced     Reason = "primary-forced"
	ReasonFallbackForced    Reason = "fallback-forced"
	ReasonPrimaryAuto       Reason = "primary-auto"
	ReasonFallbackAuto      Reason = "fallback-auto"
	ReasonTailscaleActive   Reason = "tailscale-active"
	ReasonTailscaleInactive Reason = "tailscale-inactive"
	ReasonPrimaryDefault    Reason = "primary-default"
	ReasonMonitorMode       Reason = "monitor-mode"
	ReasonPrimaryFallback   Reason = "primary-fallback"
	ReasonFallbackOnly      Reason = "fallback-only"
	ReasonDisabled          Reason = "disabled"
)

// Decision is the chosen relay host. Host is empty only with ReasonDisabled,
// which means the TAK relay must be omitted.
type Decision struct {
	Host   string `json:"host"`
	Reason Reason `json:"reason"`
}

// Disabled reports whether no host could be chosen.
func (d Decision) Disabled() bool {
	return d.Host == ""
}

// Role names a candidate's slot.
type Role string

const (
	RolePrimary  Role = "primary"
	RoleFallback Role = "fallback"
)

// Candidate is one configured host with its probe result for this call.
type Candidate struct {
	Role      Role                 `json:"role"`
	Address   string               `json:"address"`
	Reachable checker.Reachability `json:"-"`
}

// Settings is the selector's view of the configuration.
type Settings struct {
	Mode          Mode
	Strategy      Strategy
	Primary       string
	Fallback      string
	Port          string
	NetworkSuffix string
}

// Getter is the read side of the configuration store.
type Getter interface {
	Get(key, def string) string
}

// ReadSettings pulls the selector keys out of the store. Addresses are
// trimmed and may be empty.
func ReadSettings(cfg Getter) Settings {
	return Settings{
		Mode:          ParseMode(cfg.Get(KeyMode, string(ModeAuto))),
		Strategy:      ParseStrategy(cfg.Get(KeyStrategy, string(StrategyReachability))),
		Primary:       strings.TrimSpace(cfg.Get(KeyPrimary, "")),
		Fallback:      strings.TrimSpace(cfg.Get(KeyFallback, "")),
		Port:          cfg.Get(KeyPort, DefaultPort),
		NetworkSuffix: cfg.Get(KeyNetworkSuffix, DefaultSuffix),
	}
}

// ReachabilityProber tests host:port liveness.
type ReachabilityProber interface {
	Reachable(ctx context.Context, host, port string) checker.Reachability
}

// NetworkProber reports mesh VPN status.
type NetworkProber interface {
	Status(ctx context.Context) tailnet.Status
}

// Selector holds only its collaborators; every call probes afresh.
type Selector struct {
	Reach   ReachabilityProber
	Network NetworkProber
	Log     *zap.Logger
}

// New returns a selector. A nil prober reads as "never reachable".
func New(reach ReachabilityProber, network NetworkProber, log *zap.Logger) *Selector {
	if log == nil {
		log = zap.NewNop()
	}
	return &Selector{Reach: reach, Network: network, Log: log}
}

// Select reads the settings from cfg and decides.
func (s *Selector) Select(ctx context.Context, cfg Getter) Decision {
	return s.Decide(ctx, ReadSettings(cfg))
}

// Decide evaluates the rules in order; the first match wins.
func (s *Selector) Decide(ctx context.Context, st Settings) Decision {
	primary, fallback := st.Primary, st.Fallback
	var d Decision

	switch {
	case st.Mode == ModePrimary && primary != "":
		d = Decision{primary, ReasonPrimaryForced}
	case st.Mode == ModeFallback && fallback != "":
		d = Decision{fallback, ReasonFallbackForced}
	case st.Mode == ModeAuto:
		d = s.auto(ctx, st)
	case st.Mode == ModeMonitor && primary != "":
		// An external watchdog handles failover; never probe here.
		d = Decision{primary, ReasonMonitorMode}
	}

	if d.Reason == "" {
		switch {
		case primary != "":
			d = Decision{primary, ReasonPrimaryFallback}
		case fallback != "":
			d = Decision{fallback, ReasonFallbackOnly}
		default:
			d = Decision{"", ReasonDisabled}
		}
	}

	s.Log.Info("relay host selected",
		zap.String("mode", string(st.Mode)),
		zap.String("strategy", string(st.Strategy)),
		zap.String("host", d.Host),
		zap.String("reason", string(d.Reason)),
	)
	return d
}

// auto returns a zero Decision when it has nothing to offer, letting the
// last-resort rules apply.
func (s *Selector) auto(ctx context.Context, st Settings) Decision {
	if st.Strategy == StrategyPrivateNetwork {
		return s.autoPrivateNetwork(ctx, st)
	}

	p := Candidate{Role: RolePrimary, Address: st.Primary}
	if p.Address != "" {
		p.Reachable = s.reachable(ctx, p.Address, st.Port)
		if p.Reachable == checker.Reachable {
			return Decision{p.Address, ReasonPrimaryAuto}
		}
	}
	f := Candidate{Role: RoleFallback, Address: st.Fallback}
	if f.Address != "" {
		f.Reachable = s.reachable(ctx, f.Address, st.Port)
		if f.Reachable == checker.Reachable {
			return Decision{f.Address, ReasonFallbackAuto}
		}
	}
	s.Log.Warn("no relay host reachable",
		zap.String("primary", p.Address), zap.Stringer("primary_probe", p.Reachable),
		zap.String("fallback", f.Address), zap.Stringer("fallback_probe", f.Reachable),
	)
	if p.Address != "" {
		return Decision{p.Address, ReasonPrimaryDefault}
	}
	return Decision{}
}

func (s *Selector) autoPrivateNetwork(ctx context.Context, st Settings) Decision {
	var ns tailnet.Status
	if s.Network != nil {
		ns = s.Network.Status(ctx)
	}
	// A node joined to some other tailnet is treated exactly like one that
	// is not joined at all.
	onNetwork := ns.Active && tailnet.InNamespace(ns.Identity, st.NetworkSuffix)
	if ns.Active && !onNetwork {
		s.Log.Warn("private network active under unexpected namespace",
			zap.String("identity", ns.Identity), zap.String("expected_suffix", st.NetworkSuffix))
	}

	switch {
	case onNetwork && st.Primary != "":
		return Decision{st.Primary, ReasonTailscaleActive}
	case !onNetwork && st.Fallback != "":
		return Decision{st.Fallback, ReasonTailscaleInactive}
	case st.Primary != "":
		return Decision{st.Primary, ReasonPrimaryDefault}
	}
	return Decision{}
}

func (s *Selector) reachable(ctx context.Context, host, port string) checker.Reachability {
	if s.Reach == nil {
		return checker.Unknown
	}
	return s.Reach.Reachable(ctx, host, port)
}
