package handlers

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"feederconsole/app/internal/security"
	"feederconsole/app/internal/stats"
)

const uptimeCacheTTL = 30 * time.Second

// SetupRoutes configures all HTTP routes and middlewares
func SetupRoutes(d *Deps) http.Handler {
	clientIP := func(r *http.Request) string { return security.ClientIP(r, d.TrustProxy) }

	if d.Uptime == nil {
		d.Uptime = stats.NewCalculator(uptimeCacheTTL)
	}

	api := http.NewServeMux()

	// Public read-only API
	api.HandleFunc("GET /api/aggregators", HandleAggregators(d))
	api.HandleFunc("GET /api/aggregators/healthy", HandleHealthy(d))
	api.HandleFunc("GET /api/aggregators/{name}", HandleAggregator(d))
	api.HandleFunc("GET /api/connection", HandleConnection(d))
	api.HandleFunc("GET /api/history", HandleHistory(d))
	api.HandleFunc("GET /api/uptime", HandleUptime(d))

	// Auth routes
	var login http.Handler = HandleLogin(d)
	if d.LoginLimiter != nil {
		login = d.LoginLimiter.Middleware(clientIP, login)
	}
	api.Handle("POST /api/login", login)
	api.HandleFunc("POST /api/logout", HandleLogout(d))
	api.HandleFunc("GET /api/me", HandleWhoAmI(d))

	// Admin API routes (session + CSRF)
	api.HandleFunc("POST /api/admin/aggregators/{name}/{action}", d.Auth.RequireAuth(HandleToggleAggregator(d)))
	api.HandleFunc("POST /api/admin/rebuild", d.Auth.RequireAuth(HandleRebuild(d)))
	api.HandleFunc("GET /api/admin/logs", d.Auth.RequireAuth(HandleGetLogs(d)))

	var apiHandler http.Handler = api
	if d.APILimiter != nil {
		apiHandler = d.APILimiter.Middleware(clientIP, api)
	}

	gatherer := d.Gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}

	mux := http.NewServeMux()
	mux.Handle("/api/", apiHandler)
	mux.Handle("GET /metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
	})

	return security.SecureHeaders(mux)
}
