package handlers

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"go.uber.org/zap"

	"feederconsole/app/internal/database"
	"feederconsole/app/internal/feedconfig"
	"feederconsole/app/internal/selector"
)

// HandleToggleAggregator switches an aggregator on or off, rebuilds the
// feed configuration and returns a fresh snapshot.
func HandleToggleAggregator(d *Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		name := r.PathValue("name")
		var enable bool
		switch r.PathValue("action") {
		case "enable":
			enable = true
		case "disable":
		default:
			writeError(w, http.StatusNotFound, "not_found", "action must be enable or disable")
			return
		}

		id, ok := d.Registry.Get(name)
		if !ok {
			writeError(w, http.StatusNotFound, "not_found", "unknown aggregator "+name)
			return
		}
		if err := d.Store.Set(id.EnabledKey, strconv.FormatBool(enable)); err != nil {
			d.logger().Error("write enable flag", zap.String("key", id.EnabledKey), zap.Error(err))
			writeError(w, http.StatusInternalServerError, "server_error", "could not save configuration")
			return
		}
		d.audit(database.LogLevelInfo, database.LogCategoryConfig, id.Name,
			"Aggregator "+r.PathValue("action")+"d", fmt.Sprintf("%s=%t", id.EnabledKey, enable))

		plan, err := d.rebuild(r)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "server_error", "could not rebuild feed configuration")
			return
		}
		snap, _ := d.Manager.CheckOne(r.Context(), id.Name, true)
		writeJSON(w, http.StatusOK, map[string]any{"aggregator": snap, "plan": plan})
	}
}

// HandleRebuild reselects the relay host and rewrites the feed configuration.
func HandleRebuild(d *Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		plan, err := d.rebuild(r)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "server_error", "could not rebuild feed configuration")
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"plan": plan, "config": plan.String()})
	}
}

func (d *Deps) rebuild(r *http.Request) (feedconfig.Plan, error) {
	plan, err := feedconfig.Rebuild(r.Context(), d.Store, d.Selector, d.Registry, d.logger())
	if err != nil {
		d.logger().Error("rebuild feed config", zap.Error(err))
		d.audit(database.LogLevelError, database.LogCategoryConfig, "", "Feed config rebuild failed", err.Error())
		return plan, err
	}
	d.decided(plan.Decision, selector.ReadSettings(d.Store))
	d.audit(database.LogLevelInfo, database.LogCategoryConfig, "", "Feed config rebuilt",
		fmt.Sprintf("feeds=%d host=%s reason=%s", plan.Feeds(), plan.Decision.Host, plan.Decision.Reason))
	return plan, nil
}

// HandleGetLogs returns system logs with optional filtering, plus level counts.
func HandleGetLogs(d *Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if database.DB == nil {
			writeError(w, http.StatusServiceUnavailable, "unavailable", "logs are not recorded")
			return
		}
		q := r.URL.Query()
		f := database.LogFilter{
			Level:      q.Get("level"),
			Category:   q.Get("category"),
			Aggregator: q.Get("aggregator"),
			Limit:      queryInt(r, "limit", 100, 500),
		}
		f.Offset, _ = strconv.Atoi(q.Get("offset"))
		if since := q.Get("since"); since != "" {
			t, err := time.Parse(time.RFC3339, since)
			if err != nil {
				writeError(w, http.StatusBadRequest, "bad_request", "since must be an RFC 3339 timestamp")
				return
			}
			f.Since = t
		}

		logs, err := database.GetLogs(f)
		if err != nil {
			d.logger().Error("load logs", zap.Error(err))
			writeError(w, http.StatusInternalServerError, "server_error", "could not load logs")
			return
		}
		stats, err := database.GetLogStats()
		if err != nil {
			d.logger().Error("load log stats", zap.Error(err))
			writeError(w, http.StatusInternalServerError, "server_error", "could not load logs")
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"logs": logs, "stats": stats})
	}
}
