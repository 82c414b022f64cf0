package handlers

import (
	"net/http"
	"time"

	"go.uber.org/zap"

	"feederconsole/app/internal/database"
	"feederconsole/app/internal/feedconfig"
	"feederconsole/app/internal/models"
	"feederconsole/app/internal/selector"
	"feederconsole/app/internal/stats"
)

// HandleAggregators returns every aggregator's snapshot. ?force=1 bypasses
// the status cache.
func HandleAggregators(d *Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		snaps := d.Manager.CheckAll(r.Context(), queryBool(r, "force"))
		writeJSON(w, http.StatusOK, map[string]any{"aggregators": snaps})
	}
}

// HandleAggregator returns one aggregator's snapshot.
func HandleAggregator(d *Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		name := r.PathValue("name")
		s, ok := d.Manager.CheckOne(r.Context(), name, queryBool(r, "force"))
		if !ok {
			writeError(w, http.StatusNotFound, "not_found", "unknown aggregator "+name)
			return
		}
		writeJSON(w, http.StatusOK, s)
	}
}

// HandleHealthy lists aggregators that are good and those switched on.
func HandleHealthy(d *Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		good := d.Manager.Good(r.Context())
		if good == nil {
			good = []string{}
		}
		enabled := d.Manager.Enabled()
		if enabled == nil {
			enabled = []string{}
		}
		writeJSON(w, http.StatusOK, map[string]any{"good": good, "enabled": enabled})
	}
}

type connectionResponse struct {
	Decision     selector.Decision      `json:"decision"`
	Mode         selector.Mode          `json:"mode"`
	Strategy     selector.Strategy      `json:"strategy"`
	Primary      string                 `json:"primary"`
	Fallback     string                 `json:"fallback"`
	Port         string                 `json:"port"`
	FeedConfig   string                 `json:"feed_config"`
	LastRecorded *models.DecisionRecord `json:"last_recorded,omitempty"`
}

// HandleConnection runs the relay host selection against the current
// configuration and reports the result.
func HandleConnection(d *Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		st := selector.ReadSettings(d.Store)
		dec := d.Selector.Select(r.Context(), d.Store)
		d.decided(dec, st)

		resp := connectionResponse{
			Decision:   dec,
			Mode:       st.Mode,
			Strategy:   st.Strategy,
			Primary:    st.Primary,
			Fallback:   st.Fallback,
			Port:       st.Port,
			FeedConfig: d.Store.Get(feedconfig.Key, ""),
		}
		if database.DB != nil {
			last, err := database.LastDecision()
			if err != nil {
				d.logger().Warn("load last decision", zap.Error(err))
			}
			resp.LastRecorded = last
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

// HandleHistory returns recorded status changes and relay decisions.
func HandleHistory(d *Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if database.DB == nil {
			writeError(w, http.StatusServiceUnavailable, "unavailable", "history is not recorded")
			return
		}
		limit := queryInt(r, "limit", 100, 1000)

		changes, err := database.GetStatusHistory(r.URL.Query().Get("aggregator"), limit)
		if err != nil {
			d.logger().Error("load status history", zap.Error(err))
			writeError(w, http.StatusInternalServerError, "server_error", "could not load history")
			return
		}
		decisions, err := database.GetDecisions(limit)
		if err != nil {
			d.logger().Error("load decisions", zap.Error(err))
			writeError(w, http.StatusInternalServerError, "server_error", "could not load history")
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"status": changes, "decisions": decisions})
	}
}

// HandleUptime returns each aggregator's healthy share of the last ?hours
// (default 24, at most 30 days). ?aggregator narrows it to one.
func HandleUptime(d *Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if database.DB == nil {
			writeError(w, http.StatusServiceUnavailable, "unavailable", "history is not recorded")
			return
		}
		window := time.Duration(queryInt(r, "hours", 24, 24*30)) * time.Hour

		names := d.Manager.Names()
		if name := r.URL.Query().Get("aggregator"); name != "" {
			if _, ok := d.Registry.Get(name); !ok {
				writeError(w, http.StatusNotFound, "not_found", "unknown aggregator")
				return
			}
			names = []string{name}
		}

		out := make([]stats.Uptime, 0, len(names))
		for _, name := range names {
			u, err := d.Uptime.Uptime(name, window)
			if err != nil {
				d.logger().Error("compute uptime", zap.String("aggregator", name), zap.Error(err))
				writeError(w, http.StatusInternalServerError, "server_error", "could not compute uptime")
				return
			}
			out = append(out, u)
		}
		writeJSON(w, http.StatusOK, out)
	}
}
