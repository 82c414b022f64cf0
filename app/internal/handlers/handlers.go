// Package handlers serves the console's JSON API.
package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"feederconsole/app/internal/aggstatus"
	"feederconsole/app/internal/auth"
	"feederconsole/app/internal/database"
	"feederconsole/app/internal/feedconfig"
	"feederconsole/app/internal/ratelimit"
	"feederconsole/app/internal/registry"
	"feederconsole/app/internal/selector"
	"feederconsole/app/internal/stats"
)

// Deps is everything the handlers read or change.
type Deps struct {
	Auth     *auth.Auth
	Manager  *aggstatus.Manager
	Registry *registry.Registry
	Store    feedconfig.Store
	Selector feedconfig.Decider
	Log      *zap.Logger

	// Uptime serves /api/uptime; SetupRoutes supplies one when nil.
	Uptime *stats.Calculator

	// Gatherer backs /metrics; nil means prometheus.DefaultGatherer.
	Gatherer prometheus.Gatherer

	// Nil limiters disable rate limiting.
	LoginLimiter *ratelimit.Limiter
	APILimiter   *ratelimit.Limiter
	TrustProxy   bool

	// OnDecision is told about every relay decision a handler takes.
	OnDecision func(selector.Decision, selector.Settings)
}

func (d *Deps) logger() *zap.Logger {
	if d.Log == nil {
		return zap.NewNop()
	}
	return d.Log
}

func (d *Deps) decided(dec selector.Decision, st selector.Settings) {
	if d.OnDecision != nil {
		d.OnDecision(dec, st)
	}
}

// audit writes to system_logs when a database is open.
func (d *Deps) audit(level, category, aggregator, message, details string) {
	if database.DB == nil {
		return
	}
	if err := database.InsertLog(level, category, aggregator, message, details); err != nil {
		d.logger().Warn("audit log insert failed", zap.Error(err))
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, map[string]string{"error": code, "message": message})
}

// queryInt reads a positive integer parameter, clamped to max.
func queryInt(r *http.Request, key string, def, max int) int {
	n, err := strconv.Atoi(r.URL.Query().Get(key))
	if err != nil || n <= 0 {
		return def
	}
	if n > max {
		return max
	}
	return n
}

func queryBool(r *http.Request, key string) bool {
	switch r.URL.Query().Get(key) {
	case "1", "true", "yes":
		return true
	}
	return false
}
