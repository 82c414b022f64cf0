package selector

import (
	"context"
	"reflect"
	"sync"
	"testing"

	"feederconsole/app/internal/checker"
	"feederconsole/app/internal/envstore"
	"feederconsole/app/internal/tailnet"
)

// fakeReach answers from a fixed host table and records every probe.
type fakeReach struct {
	mu    sync.Mutex
	up    map[string]bool
	calls []string
}

func (f *fakeReach) Reachable(_ context.Context, host, port string) checker.Reachability {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, host+":"+port)
	if f.up[host] {
		return checker.Reachable
	}
	return checker.Unreachable
}

func (f *fakeReach) probes() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

type fakeNet struct {
	st    tailnet.Status
	calls int
}

func (f *fakeNet) Status(context.Context) tailnet.Status {
	f.calls++
	return f.st
}

func TestDecide(t *testing.T) {
	tests := []struct {
		name string
		st   Settings
		up   map[string]bool
		want Decision
	}{
		{
			name: "forced primary ignores reachability",
			st:   Settings{Mode: ModePrimary, Primary: "10.0.0.1", Fallback: "10.0.0.2", Port: "30004"},
			up:   map[string]bool{"10.0.0.2": true},
			want: Decision{"10.0.0.1", ReasonPrimaryForced},
		},
		{
			name: "forced fallback",
			st:   Settings{Mode: ModeFallback, Primary: "10.0.0.1", Fallback: "10.0.0.2", Port: "30004"},
			up:   map[string]bool{"10.0.0.1": true},
			want: Decision{"10.0.0.2", ReasonFallbackForced},
		},
		{
			name: "forced primary without primary falls to fallback-only",
			st:   Settings{Mode: ModePrimary, Fallback: "10.0.0.2", Port: "30004"},
			want: Decision{"10.0.0.2", ReasonFallbackOnly},
		},
		{
			name: "forced fallback without fallback uses primary",
			st:   Settings{Mode: ModeFallback, Primary: "10.0.0.1", Port: "30004"},
			want: Decision{"10.0.0.1", ReasonPrimaryFallback},
		},
		{
			name: "auto primary reachable",
			st:   Settings{Mode: ModeAuto, Primary: "10.0.0.1", Fallback: "10.0.0.2", Port: "30004"},
			up:   map[string]bool{"10.0.0.1": true, "10.0.0.2": true},
			want: Decision{"10.0.0.1", ReasonPrimaryAuto},
		},
		{
			name: "auto primary down fallback up",
			st:   Settings{Mode: ModeAuto, Primary: "10.0.0.1", Fallback: "10.0.0.2", Port: "30004"},
			up:   map[string]bool{"10.0.0.2": true},
			want: Decision{"10.0.0.2", ReasonFallbackAuto},
		},
		{
			name: "auto nothing reachable keeps primary",
			st:   Settings{Mode: ModeAuto, Primary: "10.0.0.1", Fallback: "10.0.0.2", Port: "30004"},
			want: Decision{"10.0.0.1", ReasonPrimaryDefault},
		},
		{
			name: "auto empty primary reachable fallback",
			st:   Settings{Mode: ModeAuto, Fallback: "10.0.0.2", Port: "30004"},
			up:   map[string]bool{"10.0.0.2": true},
			want: Decision{"10.0.0.2", ReasonFallbackAuto},
		},
		{
			name: "auto empty primary unreachable fallback",
			st:   Settings{Mode: ModeAuto, Fallback: "10.0.0.2", Port: "30004"},
			want: Decision{"10.0.0.2", ReasonFallbackOnly},
		},
		{
			name: "monitor",
			st:   Settings{Mode: ModeMonitor, Primary: "10.0.0.1", Fallback: "10.0.0.2", Port: "30004"},
			want: Decision{"10.0.0.1", ReasonMonitorMode},
		},
		{
			name: "monitor without primary",
			st:   Settings{Mode: ModeMonitor, Fallback: "10.0.0.2", Port: "30004"},
			want: Decision{"10.0.0.2", ReasonFallbackOnly},
		},
		{
			name: "nothing configured",
			st:   Settings{Mode: ModeAuto, Port: "30004"},
			want: Decision{"", ReasonDisabled},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := New(&fakeReach{up: tt.up}, nil, nil)
			got := s.Decide(context.Background(), tt.st)
			if got != tt.want {
				t.Errorf("Decide = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestSelect_ProbesPrimaryThenFallback(t *testing.T) {
	cfg := envstore.FromMap(map[string]string{
		KeyMode:     "auto",
		KeyPrimary:  "10.0.0.1",
		KeyFallback: "10.0.0.2",
		KeyPort:     "30004",
	})
	r := &fakeReach{up: map[string]bool{"10.0.0.2": true}}
	got := New(r, nil, nil).Select(context.Background(), cfg)
	if got != (Decision{"10.0.0.2", ReasonFallbackAuto}) {
		t.Fatalf("Select = %+v", got)
	}
	want := []string{"10.0.0.1:30004", "10.0.0.2:30004"}
	if !reflect.DeepEqual(r.calls, want) {
		t.Errorf("probes = %v, want %v", r.calls, want)
	}
}

func TestSelect_ForcedAndMonitorNeverProbe(t *testing.T) {
	for _, mode := range []string{"primary", "fallback", "monitor"} {
		cfg := envstore.FromMap(map[string]string{
			KeyMode: mode, KeyPrimary: "10.0.0.1", KeyFallback: "10.0.0.2",
		})
		r := &fakeReach{}
		n := &fakeNet{}
		New(r, n, nil).Select(context.Background(), cfg)
		if r.probes() != 0 || n.calls != 0 {
			t.Errorf("mode %s probed: reach=%d net=%d", mode, r.probes(), n.calls)
		}
	}
}

func TestSelect_Idempotent(t *testing.T) {
	cfg := envstore.FromMap(map[string]string{
		KeyPrimary: "10.0.0.1", KeyFallback: "10.0.0.2",
	})
	s := New(&fakeReach{up: map[string]bool{"10.0.0.1": true}}, nil, nil)
	first := s.Select(context.Background(), cfg)
	for i := 0; i < 3; i++ {
		if got := s.Select(context.Background(), cfg); got != first {
			t.Fatalf("call %d = %+v, want %+v", i, got, first)
		}
	}
}

func TestSelect_UnknownModeIsAuto(t *testing.T) {
	cfg := envstore.FromMap(map[string]string{
		KeyMode: "sideways", KeyPrimary: "10.0.0.1",
	})
	got := New(&fakeReach{up: map[string]bool{"10.0.0.1": true}}, nil, nil).Select(context.Background(), cfg)
	if got.Reason != ReasonPrimaryAuto {
		t.Errorf("reason = %s, want primary-auto", got.Reason)
	}
}

func TestSelect_UsesConfiguredPort(t *testing.T) {
	cfg := envstore.FromMap(map[string]string{KeyPrimary: "10.0.0.1", KeyPort: "31000"})
	r := &fakeReach{}
	New(r, nil, nil).Select(context.Background(), cfg)
	if len(r.calls) != 1 || r.calls[0] != "10.0.0.1:31000" {
		t.Errorf("probes = %v", r.calls)
	}
}

func TestDecide_PrivateNetwork(t *testing.T) {
	base := Settings{
		Mode: ModeAuto, Strategy: StrategyPrivateNetwork,
		Primary: "100.64.0.1", Fallback: "203.0.113.5", Port: "30004", NetworkSuffix: "tail1234.ts.net",
	}
	tests := []struct {
		name string
		st   tailnet.Status
		want Decision
	}{
		{"active in namespace", tailnet.Status{Active: true, Identity: "feeder.tail1234.ts.net"}, Decision{"100.64.0.1", ReasonTailscaleActive}},
		{"inactive", tailnet.Status{}, Decision{"203.0.113.5", ReasonTailscaleInactive}},
		{"active in other namespace", tailnet.Status{Active: true, Identity: "feeder.other.ts.net"}, Decision{"203.0.113.5", ReasonTailscaleInactive}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := &fakeReach{}
			got := New(r, &fakeNet{st: tt.st}, nil).Decide(context.Background(), base)
			if got != tt.want {
				t.Errorf("Decide = %+v, want %+v", got, tt.want)
			}
			if r.probes() != 0 {
				t.Errorf("private-network strategy should not dial, got %v", r.calls)
			}
		})
	}
}

func TestDecide_PrivateNetworkWithoutFallback(t *testing.T) {
	st := Settings{Mode: ModeAuto, Strategy: StrategyPrivateNetwork, Primary: "100.64.0.1", NetworkSuffix: "ts.net"}
	got := New(nil, &fakeNet{}, nil).Decide(context.Background(), st)
	if got != (Decision{"100.64.0.1", ReasonPrimaryDefault}) {
		t.Errorf("Decide = %+v", got)
	}
}

func TestParseMode(t *testing.T) {
	tests := map[string]Mode{
		"primary": ModePrimary, " Fallback ": ModeFallback, "MONITOR": ModeMonitor,
		"auto": ModeAuto, "": ModeAuto, "bogus": ModeAuto,
	}
	for in, want := range tests {
		if got := ParseMode(in); got != want {
			t.Errorf("ParseMode(%q) = %s, want %s", in, got, want)
		}
	}
}

func TestFillDefaults_FixedPoint(t *testing.T) {
	values := map[string]string{KeyPrimary: "10.9.9.9", KeyPort: "  "}
	fill := FillDefaults(values)
	if _, ok := fill[KeyPrimary]; ok {
		t.Error("present primary must not be overwritten")
	}
	if fill[KeyPort] != DefaultPort {
		t.Errorf("blank port fill = %q, want %s", fill[KeyPort], DefaultPort)
	}
	for k, v := range fill {
		values[k] = v
	}
	if again := FillDefaults(values); len(again) != 0 {
		t.Errorf("second pass should be a no-op, got %v", again)
	}
}

func TestEnsureDefaults(t *testing.T) {
	st := envstore.FromMap(map[string]string{KeyMode: "primary"})
	filled, err := EnsureDefaults(st)
	if err != nil {
		t.Fatal(err)
	}
	want := []string{KeyEnabled, KeyFallback, KeyPrimary, KeyPort}
	if !reflect.DeepEqual(filled, want) {
		t.Errorf("filled = %v, want %v", filled, want)
	}
	if got := st.Get(KeyMode, ""); got != "primary" {
		t.Errorf("mode = %q, want untouched primary", got)
	}
	if got := st.Get(KeyPrimary, ""); got != DefaultPrimary {
		t.Errorf("primary = %q", got)
	}
	again, err := EnsureDefaults(st)
	if err != nil || again != nil {
		t.Errorf("second EnsureDefaults = %v, %v; want nothing", again, err)
	}
}

func TestMigrateLegacy(t *testing.T) {
	st := envstore.FromMap(map[string]string{
		KeyPrimary:  "192.0.2.10",
		KeyFallback: "192.0.2.99",
	})
	table := map[string]string{"192.0.2.10": "100.117.34.88", "192.0.2.1": "unused"}
	changed, err := MigrateLegacy(st, table)
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(changed, []string{KeyPrimary}) {
		t.Errorf("changed = %v", changed)
	}
	if got := st.Get(KeyPrimary, ""); got != "100.117.34.88" {
		t.Errorf("primary = %q", got)
	}
	if got := st.Get(KeyFallback, ""); got != "192.0.2.99" {
		t.Errorf("fallback should be untouched, got %q", got)
	}
	if again, _ := MigrateLegacy(st, table); again != nil {
		t.Errorf("second migration = %v, want nothing", again)
	}
}
