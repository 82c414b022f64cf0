package cmd

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"go.uber.org/zap"

	"feederconsole/app/internal/aggstatus"
	"feederconsole/app/internal/alerts"
	"feederconsole/app/internal/database"
	"feederconsole/app/internal/metrics"
	"feederconsole/app/internal/monitor"
	"feederconsole/app/internal/selector"
)

type emptySource struct{}

func (emptySource) CheckAll(context.Context, bool) []aggstatus.Snapshot { return nil }

func initDB(t *testing.T) {
	t.Helper()
	if err := database.Init(":memory:"); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { database.Close() })
}

func snapshot(beast aggstatus.Status, at time.Time) aggstatus.Snapshot {
	up := "Up 1 minute"
	return aggstatus.Snapshot{
		Aggregator: "adsbx", Beast: beast, Mlat: aggstatus.Disabled,
		Container: &up, Enabled: true, CheckedAt: at,
	}
}

func TestStatusObserver_RecordsChangesOnly(t *testing.T) {
	initDB(t)
	o := &statusObserver{log: zap.NewNop(), tracker: monitor.NewTracker(3)}
	t0 := time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)

	o.observe(snapshot(aggstatus.Good, t0))
	o.observe(snapshot(aggstatus.Good, t0.Add(10*time.Second)))
	o.observe(snapshot(aggstatus.Warning, t0.Add(20*time.Second)))

	hist, err := database.GetStatusHistory("adsbx", 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(hist) != 2 {
		t.Fatalf("history rows = %d, want 2", len(hist))
	}
	if hist[0].Beast != "warning" {
		t.Errorf("newest = %+v", hist[0])
	}
}

func TestStatusObserver_AlertsOnTripAndRecovery(t *testing.T) {
	initDB(t)
	got := make(chan alerts.Event, 4)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		var e alerts.Event
		_ = json.Unmarshal(b, &e)
		got <- e
	}))
	defer srv.Close()

	n := alerts.New(alerts.Config{WebhookURL: srv.URL}, nil, nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go n.Run(ctx)

	collector := metrics.New(emptySource{})
	o := &statusObserver{log: zap.NewNop(), metrics: collector, tracker: monitor.NewTracker(2), notifier: n}
	t0 := time.Now()
	o.observe(snapshot(aggstatus.Disconnected, t0))
	o.observe(snapshot(aggstatus.Disconnected, t0.Add(10*time.Second)))
	o.observe(snapshot(aggstatus.Disconnected, t0.Add(20*time.Second)))
	o.observe(snapshot(aggstatus.Good, t0.Add(30*time.Second)))

	want := []alerts.Kind{alerts.KindDown, alerts.KindUp}
	for i, k := range want {
		select {
		case e := <-got:
			if e.Kind != k || e.Aggregator != "adsbx" {
				t.Errorf("event %d = %+v, want %s", i, e, k)
			}
		case <-time.After(5 * time.Second):
			t.Fatalf("event %d not delivered", i)
		}
	}
	select {
	case e := <-got:
		t.Errorf("unexpected extra event %+v", e)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestStatusObserver_DisabledResetsStreak(t *testing.T) {
	tr := monitor.NewTracker(2)
	o := &statusObserver{log: zap.NewNop(), tracker: tr}
	s := snapshot(aggstatus.Disconnected, time.Now())
	o.observe(s)
	s.Enabled = false
	o.observe(s)
	if tr.Streak("adsbx") != 0 {
		t.Errorf("streak = %d, want 0 after a disabled snapshot", tr.Streak("adsbx"))
	}
}

func TestDecisionRecorder_SkipsRepeats(t *testing.T) {
	initDB(t)
	collector := metrics.New(emptySource{})
	r := &decisionRecorder{log: zap.NewNop(), metrics: collector, now: time.Now}
	st := selector.Settings{Mode: selector.ModeAuto, Strategy: selector.StrategyReachability}

	a := selector.Decision{Host: "10.0.0.1", Reason: selector.ReasonPrimaryAuto}
	b := selector.Decision{Host: "10.0.0.2", Reason: selector.ReasonFallbackAuto}
	r.record(a, st)
	r.record(a, st)
	r.record(b, st)

	recs, err := database.GetDecisions(10)
	if err != nil {
		t.Fatal(err)
	}
	if len(recs) != 2 {
		t.Errorf("stored decisions = %d, want 2", len(recs))
	}
	if n := testutil.CollectAndCount(collector, "feederconsole_relay_decisions_total"); n != 2 {
		t.Errorf("decision series = %d, want 2", n)
	}
}
