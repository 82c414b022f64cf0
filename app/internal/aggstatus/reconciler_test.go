package aggstatus

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"feederconsole/app/internal/envstore"
	"feederconsole/app/internal/registry"
)

type fakeContainers struct {
	mu     sync.Mutex
	status map[string]string
	calls  atomic.Int32
	delay  time.Duration
}

func (f *fakeContainers) Status(_ context.Context, name string) (string, bool) {
	f.calls.Add(1)
	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.status[name]
	return s, ok
}

func (f *fakeContainers) set(name, status string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.status[name] = status
}

// clock is a settable time source.
type clock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

var testID = registry.Identity{
	Name: "adsbx", Container: "adsbx",
	EnabledKey: "AF_IS_ADSBX_ENABLED", MlatKey: "FEEDER_ADSBX_MLAT",
}

func writeBeast(t *testing.T, runDir string, seconds int) {
	t.Helper()
	path := filepath.Join(runDir, "readsb", "stats.prom")
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	body := fmt.Sprintf("readsb_net_connector_status{host=\"feed1.adsbexchange.com\",port=\"30004\"} %d\n", seconds)
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
}

func writeSync(t *testing.T, runDir string, good, bad float64, at time.Time) {
	t.Helper()
	dir := filepath.Join(runDir, "mlat-client")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatal(err)
	}
	b, _ := json.Marshal(map[string]float64{
		"good_sync_percentage_last_hour": good,
		"bad_sync_percentage_last_hour":  bad,
		"now":                            float64(at.Unix()),
	})
	if err := os.WriteFile(filepath.Join(dir, "feed.adsbexchange.com:31090.json"), b, 0o644); err != nil {
		t.Fatal(err)
	}
}

type fixture struct {
	runDir     string
	flags      *envstore.Store
	containers *fakeContainers
	clock      *clock
	r          *Reconciler
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		runDir: t.TempDir(),
		flags: envstore.FromMap(map[string]string{
			"AF_IS_ADSBX_ENABLED": "true",
			"FEEDER_ADSBX_MLAT":   "yes",
		}),
		containers: &fakeContainers{status: map[string]string{"adsbx": "Up 3 hours"}},
		clock:      &clock{t: time.Now().Truncate(time.Second)},
	}
	f.r = NewReconciler(testID, f.flags, f.containers, Options{RunDir: f.runDir, Now: f.clock.Now})
	return f
}

func TestCheck_CacheWinsWithinTTL(t *testing.T) {
	f := newFixture(t)
	writeBeast(t, f.runDir, 300)
	writeSync(t, f.runDir, 50, 1, f.clock.Now())

	first := f.r.Check(context.Background(), false)
	if first.Beast != Good || first.Mlat != Good {
		t.Fatalf("first check = %+v", first)
	}

	writeBeast(t, f.runDir, 0)
	f.containers.set("adsbx", "Exited (1)")
	f.clock.Advance(9 * time.Second)

	second := f.r.Check(context.Background(), false)
	if second.Beast != first.Beast || second.Mlat != first.Mlat || !second.CheckedAt.Equal(first.CheckedAt) {
		t.Errorf("cached check = %+v, want %+v", second, first)
	}
	if n := f.containers.calls.Load(); n != 1 {
		t.Errorf("container probes = %d, want 1", n)
	}

	forced := f.r.Check(context.Background(), true)
	if forced.Beast != ContainerDown || forced.Mlat != ContainerDown {
		t.Errorf("forced check = %+v, want container_down", forced)
	}
}

func TestCheck_ReprobesAfterTTL(t *testing.T) {
	f := newFixture(t)
	writeBeast(t, f.runDir, 300)
	f.r.Check(context.Background(), false)

	writeBeast(t, f.runDir, 5)
	f.clock.Advance(DefaultTTL)
	if got := f.r.Check(context.Background(), false); got.Beast != Warning {
		t.Errorf("beast after TTL = %v, want warning", got.Beast)
	}
}

func TestCheck_DisabledEvenWhenRunning(t *testing.T) {
	f := newFixture(t)
	if err := f.flags.Set("AF_IS_ADSBX_ENABLED", "false"); err != nil {
		t.Fatal(err)
	}
	writeBeast(t, f.runDir, 300)

	got := f.r.Check(context.Background(), true)
	if got.Beast != Disabled || got.Mlat != Disabled || got.Container != nil || got.Enabled {
		t.Errorf("disabled check = %+v", got)
	}
	if n := f.containers.calls.Load(); n != 0 {
		t.Errorf("disabled aggregator probed the container runtime %d times", n)
	}
	if got.Symbol != "○" {
		t.Errorf("symbol = %q", got.Symbol)
	}
}

func TestCheck_ContainerDown(t *testing.T) {
	tests := []struct {
		name   string
		status map[string]string
	}{
		{"absent", map[string]string{}},
		{"not running", map[string]string{"adsbx": "Exited (0) 2 minutes ago"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			f.containers.status = tt.status
			writeBeast(t, f.runDir, 300)
			got := f.r.Check(context.Background(), true)
			if got.Beast != ContainerDown || got.Mlat != ContainerDown {
				t.Errorf("check = %+v, want container_down", got)
			}
			if got.Container != nil {
				t.Errorf("container = %q, want nil", *got.Container)
			}
		})
	}
}

func TestCheck_BeastBoundaries(t *testing.T) {
	tests := []struct {
		seconds int
		want    Status
	}{
		{0, Disconnected},
		{1, Warning},
		{20, Warning},
		{21, Good},
	}
	for _, tt := range tests {
		f := newFixture(t)
		writeBeast(t, f.runDir, tt.seconds)
		if got := f.r.Check(context.Background(), true); got.Beast != tt.want {
			t.Errorf("seconds=%d: beast = %v, want %v", tt.seconds, got.Beast, tt.want)
		}
	}
}

func TestCheck_BeastMissingAndMalformed(t *testing.T) {
	f := newFixture(t)
	if got := f.r.Check(context.Background(), true); got.Beast != Disconnected {
		t.Errorf("missing stats: beast = %v, want disconnected", got.Beast)
	}

	path := filepath.Join(f.runDir, "readsb", "stats.prom")
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte("readsb_net_connector_status{host=\"x\" garbage\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if got := f.r.Check(context.Background(), true); got.Beast != Unknown {
		t.Errorf("malformed stats: beast = %v, want unknown", got.Beast)
	}
}

func TestCheck_MlatBoundaries(t *testing.T) {
	tests := []struct {
		name      string
		good, bad float64
		age       time.Duration
		want      Status
	}{
		{"good", 11, 5, 0, Good},
		{"bad just above good band", 11, 6, 0, Warning},
		{"bad", 5, 16, 0, Bad},
		{"inconclusive gap", 8, 10, 0, Warning},
		{"stale", 90, 0, 61 * time.Second, Disconnected},
		{"exactly sixty seconds", 90, 0, 60 * time.Second, Good},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			writeBeast(t, f.runDir, 300)
			writeSync(t, f.runDir, tt.good, tt.bad, f.clock.Now().Add(-tt.age))
			if got := f.r.Check(context.Background(), true); got.Mlat != tt.want {
				t.Errorf("mlat = %v, want %v", got.Mlat, tt.want)
			}
		})
	}
}

func TestCheck_MlatMissingMalformedDisabled(t *testing.T) {
	f := newFixture(t)
	writeBeast(t, f.runDir, 300)
	if got := f.r.Check(context.Background(), true); got.Mlat != Disconnected {
		t.Errorf("no mlat dir: mlat = %v, want disconnected", got.Mlat)
	}

	dir := filepath.Join(f.runDir, "mlat-client")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "x.json"), []byte("{not json"), 0o644); err != nil {
		t.Fatal(err)
	}
	if got := f.r.Check(context.Background(), true); got.Mlat != Unknown {
		t.Errorf("malformed sync: mlat = %v, want unknown", got.Mlat)
	}

	if err := f.flags.Set("FEEDER_ADSBX_MLAT", "no"); err != nil {
		t.Fatal(err)
	}
	got := f.r.Check(context.Background(), true)
	if got.Mlat != Disabled {
		t.Errorf("mlat flag off: mlat = %v, want disabled", got.Mlat)
	}
	if !got.IsGood() {
		t.Error("good beast with mlat disabled should be good")
	}
}

func TestCheck_CheckedAtNeverMovesBack(t *testing.T) {
	f := newFixture(t)
	first := f.r.Check(context.Background(), true)
	f.clock.Advance(-time.Hour)
	second := f.r.Check(context.Background(), true)
	if second.CheckedAt.Before(first.CheckedAt) {
		t.Errorf("CheckedAt went from %v to %v", first.CheckedAt, second.CheckedAt)
	}
}

func TestCheck_ConcurrentCallersShareOneProbe(t *testing.T) {
	f := newFixture(t)
	f.containers.delay = 20 * time.Millisecond
	writeBeast(t, f.runDir, 300)

	var wg sync.WaitGroup
	results := make([]Snapshot, 16)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i] = f.r.Check(context.Background(), false)
		}(i)
	}
	wg.Wait()

	if n := f.containers.calls.Load(); n != 1 {
		t.Errorf("container probes = %d, want 1", n)
	}
	for i, s := range results {
		if !s.CheckedAt.Equal(results[0].CheckedAt) || s.Beast != results[0].Beast {
			t.Errorf("result %d = %+v differs from %+v", i, s, results[0])
		}
	}
}

func TestCheck_ReturnsCopies(t *testing.T) {
	f := newFixture(t)
	writeBeast(t, f.runDir, 300)
	first := f.r.Check(context.Background(), true)
	*first.Container = "tampered"
	if got := f.r.Check(context.Background(), false); *got.Container != "Up 3 hours" {
		t.Errorf("container = %q, cached snapshot was mutated", *got.Container)
	}
}

func TestIsGood(t *testing.T) {
	tests := []struct {
		beast, mlat Status
		want        bool
	}{
		{Good, Good, true},
		{Good, Disabled, true},
		{Good, Warning, false},
		{Warning, Good, false},
		{Disabled, Disabled, false},
	}
	for _, tt := range tests {
		if got := (Snapshot{Beast: tt.beast, Mlat: tt.mlat}).IsGood(); got != tt.want {
			t.Errorf("IsGood(%v, %v) = %v", tt.beast, tt.mlat, got)
		}
	}
}

func TestStatusText(t *testing.T) {
	b, err := json.Marshal(Snapshot{Beast: ContainerDown, Mlat: Good})
	if err != nil {
		t.Fatal(err)
	}
	var raw map[string]any
	if err := json.Unmarshal(b, &raw); err != nil {
		t.Fatal(err)
	}
	if raw["beast"] != "container_down" || raw["mlat"] != "good" {
		t.Errorf("json = %s", b)
	}
	if raw["container"] != nil {
		t.Errorf("container should encode as null, got %v", raw["container"])
	}

	var s Status
	if err := s.UnmarshalText([]byte("warning")); err != nil || s != Warning {
		t.Errorf("UnmarshalText = %v, %v", s, err)
	}
	if _, err := ParseStatus("sideways"); err == nil {
		t.Error("ParseStatus should reject unknown names")
	}
	if Status(99).String() != "unknown" || Status(99).Symbol() != "?" {
		t.Error("out-of-range status should read as unknown")
	}
}
