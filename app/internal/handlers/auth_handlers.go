package handlers

import (
	"encoding/json"
	"net/http"

	"go.uber.org/zap"

	"feederconsole/app/internal/database"
	"feederconsole/app/internal/security"
)

// HandleWhoAmI returns current authentication status
func HandleWhoAmI(d *Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		type resp struct {
			Authenticated bool   `json:"authenticated"`
			User          string `json:"user,omitempty"`
		}
		me := resp{Authenticated: false}

		if s, err := d.Auth.ParseSession(r); err == nil {
			me.Authenticated = true
			me.User = s.U
		}
		writeJSON(w, http.StatusOK, me)
	}
}

// HandleLogin authenticates the admin and issues session and CSRF cookies.
func HandleLogin(d *Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var c struct {
			Username string `json:"username"`
			Password string `json:"password"`
		}
		if err := json.NewDecoder(r.Body).Decode(&c); err != nil {
			writeError(w, http.StatusBadRequest, "bad_request", "expected JSON credentials")
			return
		}

		ip := security.ClientIP(r, d.TrustProxy)
		if !d.Auth.CheckCredentials(c.Username, c.Password) {
			d.logger().Warn("login failed", zap.String("user", c.Username), zap.String("ip", ip))
			d.audit(database.LogLevelWarn, database.LogCategorySecurity, "", "Login failed", "ip="+ip)
			writeError(w, http.StatusUnauthorized, "unauthorized", "invalid credentials")
			return
		}

		csrf, err := d.Auth.MakeSessionCookie(w, c.Username)
		if err != nil {
			d.logger().Error("issue session", zap.Error(err))
			writeError(w, http.StatusInternalServerError, "server_error", "could not create session")
			return
		}
		if d.LoginLimiter != nil {
			d.LoginLimiter.Reset(ip)
		}
		d.logger().Info("login", zap.String("user", c.Username), zap.String("ip", ip))
		d.audit(database.LogLevelInfo, database.LogCategorySecurity, "", "Login succeeded", "ip="+ip)
		writeJSON(w, http.StatusOK, map[string]any{"ok": true, "csrf": csrf})
	}
}

// HandleLogout logs out the current user
func HandleLogout(d *Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		d.Auth.ClearSessionCookie(w)
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
	}
}
