// Package feedconfig builds ULTRAFEEDER_CONFIG, the relay directive list the
// ultrafeeder container reads on startup.
package feedconfig

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"feederconsole/app/internal/registry"
	"feederconsole/app/internal/selector"
)

// Key is the .env key the container reads.
const Key = "ULTRAFEEDER_CONFIG"

// beastFormat is the readsb output format every beast relay uses.
const beastFormat = "beast_reduce_plus_out"

// Directive kinds.
const (
	KindBeast = "adsb"
	KindMlat  = "mlat"
)

// Directive is one relay entry.
type Directive struct {
	Kind       string `json:"kind"`
	Aggregator string `json:"aggregator"`
	Host       string `json:"host"`
	Port       string `json:"port"`
	// Extra is the beast format for adsb entries and the local results
	// port for mlat entries.
	Extra string `json:"extra"`
	UUID  string `json:"uuid,omitempty"`
}

func (d Directive) String() string {
	s := strings.Join([]string{d.Kind, d.Host, d.Port, d.Extra}, ",")
	if d.UUID != "" {
		s += ",uuid=" + d.UUID
	}
	return s
}

// Plan is a built configuration and how it came about.
type Plan struct {
	Decision   selector.Decision `json:"decision"`
	Directives []Directive       `json:"directives"`
	// Skipped lists enabled aggregators missing a required key.
	Skipped []string `json:"skipped,omitempty"`
}

// String is the value written to Key.
func (p Plan) String() string {
	parts := make([]string, len(p.Directives))
	for i, d := range p.Directives {
		parts[i] = d.String()
	}
	return strings.Join(parts, ";")
}

// Feeds counts beast relays.
func (p Plan) Feeds() int {
	n := 0
	for _, d := range p.Directives {
		if d.Kind == KindBeast {
			n++
		}
	}
	return n
}

// Reader is the read side of the configuration store.
type Reader interface {
	Get(key, def string) string
	Lookup(key string) (string, bool)
	Bool(key string) bool
}

// Build lays out the TAK relay first, then each enabled aggregator in
// registry order. A disabled decision omits the TAK relay entirely.
func Build(cfg Reader, d selector.Decision, reg *registry.Registry) Plan {
	p := Plan{Decision: d}

	if isTrue(cfg.Get(selector.KeyEnabled, "true")) && !d.Disabled() {
		p.Directives = append(p.Directives, Directive{
			Kind: KindBeast, Aggregator: "tak", Host: d.Host,
			Port: cfg.Get(selector.KeyPort, selector.DefaultPort), Extra: beastFormat,
		})
		if isTrue(cfg.Get(selector.KeyMlatEnabled, "true")) {
			p.Directives = append(p.Directives, Directive{
				Kind: KindMlat, Aggregator: "tak", Host: d.Host,
				Port:  cfg.Get(selector.KeyMlatPort, selector.DefaultMlatPort),
				Extra: cfg.Get(selector.KeyMlatLocalPort, selector.DefaultMlatLocalPort),
			})
		}
	}

	for _, id := range reg.All() {
		if id.BeastHost == "" || !cfg.Bool(id.EnabledKey) {
			continue
		}
		if !hasAll(cfg, id.RequiredKeys) {
			p.Skipped = append(p.Skipped, id.Name)
			continue
		}
		uuid := ""
		if id.UUIDKey != "" {
			uuid = cfg.Get(id.UUIDKey, "")
		}
		p.Directives = append(p.Directives, Directive{
			Kind: KindBeast, Aggregator: id.Name, Host: id.BeastHost,
			Port: id.BeastPort, Extra: beastFormat, UUID: uuid,
		})
		if id.MlatHost != "" && mlatWanted(cfg, id.MlatKey) {
			p.Directives = append(p.Directives, Directive{
				Kind: KindMlat, Aggregator: id.Name, Host: id.MlatHost,
				Port: id.MlatPort, Extra: id.MlatLocalPort, UUID: uuid,
			})
		}
	}
	return p
}

// mlatWanted treats an unset MLAT flag as on; only an explicit negative
// value drops the mlat relay.
func mlatWanted(cfg Reader, key string) bool {
	if v, ok := cfg.Lookup(key); !ok || strings.TrimSpace(v) == "" {
		return true
	}
	return cfg.Bool(key)
}

func hasAll(cfg Reader, keys []string) bool {
	for _, k := range keys {
		if cfg.Get(k, "") == "" {
			return false
		}
	}
	return true
}

func isTrue(v string) bool {
	return strings.EqualFold(strings.TrimSpace(v), "true")
}

// Store is what Rebuild needs from the configuration store.
type Store interface {
	Reader
	Set(key, value string) error
}

// Decider picks the TAK relay host.
type Decider interface {
	Select(ctx context.Context, cfg selector.Getter) selector.Decision
}

// Rebuild selects a host, builds the plan and writes Key back into cfg.
func Rebuild(ctx context.Context, cfg Store, sel Decider, reg *registry.Registry, log *zap.Logger) (Plan, error) {
	if log == nil {
		log = zap.NewNop()
	}
	p := Build(cfg, sel.Select(ctx, cfg), reg)
	if err := cfg.Set(Key, p.String()); err != nil {
		return p, fmt.Errorf("write %s: %w", Key, err)
	}
	if p.Decision.Disabled() {
		log.Warn("no TAK relay host configured; relay omitted")
	}
	for _, name := range p.Skipped {
		log.Warn("aggregator enabled but not configured", zap.String("aggregator", name))
	}
	log.Info("feed configuration rebuilt",
		zap.Int("feeds", p.Feeds()),
		zap.String("tak_host", p.Decision.Host),
		zap.String("reason", string(p.Decision.Reason)),
	)
	return p, nil
}
