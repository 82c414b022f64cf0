package cmd

import (
	"fmt"
	"time"

	"go.uber.org/zap"

	"feederconsole/app/internal/aggstatus"
	"feederconsole/app/internal/alerts"
	"feederconsole/app/internal/database"
	"feederconsole/app/internal/metrics"
	"feederconsole/app/internal/monitor"
	"feederconsole/app/internal/selector"
	"feederconsole/app/internal/stats"
)

// statusObserver persists fresh snapshots, counts unhealthy streaks and
// raises alerts when a streak trips or recovers.
type statusObserver struct {
	log      *zap.Logger
	metrics  *metrics.Collector
	tracker  *monitor.Tracker
	notifier *alerts.Notifier
	uptime   *stats.Calculator
}

func (o *statusObserver) observe(s aggstatus.Snapshot) {
	if o.metrics != nil {
		o.metrics.ObserveSnapshot(s)
	}

	container := ""
	if s.Container != nil {
		container = *s.Container
	}
	if database.DB != nil {
		changed, err := database.RecordStatus(s.CheckedAt, s.Aggregator, s.Beast.String(), s.Mlat.String(), container)
		switch {
		case err != nil:
			o.log.Warn("record status", zap.String("aggregator", s.Aggregator), zap.Error(err))
		case changed:
			if o.uptime != nil {
				o.uptime.Invalidate(s.Aggregator)
			}
			o.log.Info("aggregator status changed",
				zap.String("aggregator", s.Aggregator),
				zap.Stringer("beast", s.Beast),
				zap.Stringer("mlat", s.Mlat),
			)
			_ = database.InsertLog(database.LogLevelInfo, database.LogCategoryStatus, s.Aggregator,
				"Status changed", fmt.Sprintf("beast=%s mlat=%s container=%s", s.Beast, s.Mlat, container))
		}
	}

	// Switched-off aggregators are neither healthy nor failing.
	if !s.Enabled {
		o.tracker.Reset(s.Aggregator)
		return
	}
	streak, tr := o.tracker.Observe(s.Aggregator, s.IsGood())
	var kind alerts.Kind
	switch tr {
	case monitor.Tripped:
		kind = alerts.KindDown
	case monitor.Recovered:
		kind = alerts.KindUp
	default:
		return
	}
	o.log.Warn("aggregator alert", zap.String("aggregator", s.Aggregator), zap.Stringer("transition", tr), zap.Int("streak", streak))
	if o.notifier != nil {
		o.notifier.Notify(alerts.Event{
			Kind:       kind,
			Aggregator: s.Aggregator,
			Beast:      s.Beast.String(),
			Mlat:       s.Mlat.String(),
			Streak:     streak,
			At:         s.CheckedAt,
		})
	}
}

// decisionRecorder counts every decision and stores the ones that differ
// from the last stored decision.
type decisionRecorder struct {
	log     *zap.Logger
	metrics *metrics.Collector
	now     func() time.Time
}

func (r *decisionRecorder) record(d selector.Decision, st selector.Settings) {
	if r.metrics != nil {
		r.metrics.ObserveDecision(d)
	}
	if database.DB == nil {
		return
	}
	last, err := database.LastDecision()
	if err != nil {
		r.log.Warn("load last decision", zap.Error(err))
	}
	if last != nil && last.Host == d.Host && last.Reason == string(d.Reason) {
		return
	}
	if err := database.RecordDecision(r.now(), d.Host, string(d.Reason), string(st.Mode), string(st.Strategy)); err != nil {
		r.log.Warn("record decision", zap.Error(err))
		return
	}
	_ = database.InsertLog(database.LogLevelInfo, database.LogCategorySelection, "",
		"Relay host changed", fmt.Sprintf("host=%s reason=%s", d.Host, d.Reason))
}
