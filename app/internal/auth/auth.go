// Package auth guards the console's admin endpoints with a signed session
// cookie and a double-submit CSRF token.
package auth

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"
)

// Cookie and header names.
const (
	SessionCookie = "sess"
	CSRFCookie    = "csrf"
	CSRFHeader    = "X-CSRF-Token"
)

// Session errors.
var (
	ErrNoSession = errors.New("no session")
	ErrBadCookie = errors.New("malformed session cookie")
	ErrBadSig    = errors.New("bad session signature")
	ErrExpired   = errors.New("session expired")
)

// Auth holds the single admin account and the cookie signing key.
type Auth struct {
	User           string
	Hash           []byte
	HmacSecret     []byte
	InsecureDev    bool
	SessionMaxAgeS int

	now func() time.Time
}

// Session is the signed cookie payload.
type Session struct {
	U   string `json:"u"`
	Exp int64  `json:"exp"`
}

// NewAuth creates a new Auth instance
func NewAuth(user string, hash []byte, secret []byte, insecure bool, maxAge int) *Auth {
	return &Auth{
		User:           user,
		Hash:           hash,
		HmacSecret:     secret,
		InsecureDev:    insecure,
		SessionMaxAgeS: maxAge,
		now:            time.Now,
	}
}

// CheckCredentials compares against the configured account. The bcrypt
// comparison runs even for a wrong user name.
func (a *Auth) CheckCredentials(user, password string) bool {
	if user == "" || password == "" || len(a.Hash) == 0 {
		return false
	}
	userOK := subtle.ConstantTimeCompare([]byte(user), []byte(a.User)) == 1
	passOK := bcrypt.CompareHashAndPassword(a.Hash, []byte(password)) == nil
	return userOK && passOK
}

// SetCSRFCookie issues a fresh CSRF token readable by page scripts.
func (a *Auth) SetCSRFCookie(w http.ResponseWriter) (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	val := base64.RawURLEncoding.EncodeToString(b)
	http.SetCookie(w, a.cookie(CSRFCookie, val, a.SessionMaxAgeS, false))
	return val, nil
}

// VerifyCSRF requires the header to echo the cookie.
func (a *Auth) VerifyCSRF(r *http.Request) bool {
	cookieVal := ""
	if c, err := r.Cookie(CSRFCookie); err == nil {
		cookieVal = c.Value
	}
	headerVal := r.Header.Get(CSRFHeader)
	return cookieVal != "" && headerVal != "" &&
		subtle.ConstantTimeCompare([]byte(cookieVal), []byte(headerVal)) == 1
}

// MakeSessionCookie signs a session for username and issues a CSRF token
// alongside it.
func (a *Auth) MakeSessionCookie(w http.ResponseWriter, username string) (string, error) {
	maxAge := time.Duration(a.SessionMaxAgeS) * time.Second
	payload, err := json.Marshal(Session{U: username, Exp: a.now().Add(maxAge).Unix()})
	if err != nil {
		return "", err
	}
	val := base64.RawURLEncoding.EncodeToString(payload) + "." + a.sign(payload)
	http.SetCookie(w, a.cookie(SessionCookie, val, a.SessionMaxAgeS, true))
	return a.SetCSRFCookie(w)
}

// ClearSessionCookie expires both the session and CSRF cookies.
func (a *Auth) ClearSessionCookie(w http.ResponseWriter) {
	http.SetCookie(w, a.cookie(SessionCookie, "", -1, true))
	http.SetCookie(w, a.cookie(CSRFCookie, "", -1, false))
}

// cookie builds a console cookie. The CSRF cookie stays script-readable so
// the UI can echo it in CSRFHeader.
func (a *Auth) cookie(name, value string, maxAge int, httpOnly bool) *http.Cookie {
	return &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		MaxAge:   maxAge,
		HttpOnly: httpOnly,
		SameSite: http.SameSiteStrictMode,
		Secure:   !a.InsecureDev,
	}
}

// ParseSession validates the session cookie.
func (a *Auth) ParseSession(r *http.Request) (*Session, error) {
	c, err := r.Cookie(SessionCookie)
	if err != nil || c.Value == "" {
		return nil, ErrNoSession
	}
	enc, sig, ok := strings.Cut(c.Value, ".")
	if !ok || strings.Contains(sig, ".") {
		return nil, ErrBadCookie
	}
	raw, err := base64.RawURLEncoding.DecodeString(enc)
	if err != nil {
		return nil, ErrBadCookie
	}
	if !hmac.Equal([]byte(a.sign(raw)), []byte(sig)) {
		return nil, ErrBadSig
	}
	var s Session
	if err := json.Unmarshal(raw, &s); err != nil {
		return nil, ErrBadCookie
	}
	if a.now().Unix() > s.Exp {
		return nil, ErrExpired
	}
	return &s, nil
}

// RequireAuth rejects requests without a valid session, and non-GET
// requests without a matching CSRF token.
func (a *Auth) RequireAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if _, err := a.ParseSession(r); err != nil {
			deny(w, http.StatusUnauthorized, "unauthorized", "login required")
			return
		}
		if r.Method != http.MethodGet && !a.VerifyCSRF(r) {
			deny(w, http.StatusForbidden, "forbidden", "missing or mismatched CSRF token")
			return
		}
		next(w, r)
	}
}

func deny(w http.ResponseWriter, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": code, "message": message})
}

func (a *Auth) sign(b []byte) string {
	m := hmac.New(sha256.New, a.HmacSecret)
	m.Write(b)
	return base64.RawURLEncoding.EncodeToString(m.Sum(nil))
}
