package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"golang.org/x/crypto/bcrypt"
)

// Config holds the console's own settings. Appliance settings (feeds,
// relay hosts, aggregator flags) live in the appliance .env at EnvFile.
type Config struct {
	// Auth
	AuthUser       string
	AuthHash       []byte
	HmacSecret     []byte
	InsecureDev    bool
	SessionMaxAgeS int

	// Server
	Port   string
	DBPath string

	// Appliance
	EnvFile         string
	RunDir          string
	AggregatorsFile string

	// Probing
	StatusTTL      time.Duration
	DockerCacheTTL time.Duration
	ProbeTimeout   time.Duration
	CommandTimeout time.Duration
	MlatStaleAfter time.Duration

	// Alerts
	AlertWebhookURL    string
	AlertWebhookSecret string
	AlertDiscordURL    string
	AlertAfterChecks   int

	// HTTP hardening
	TrustProxy        bool
	LoginPerMinute    int
	APIPerMinute      int
	HistoryRetainDays int

	// Logging
	LogLevel       string
	LogDevelopment bool
}

// Load reads configuration from environment variables, after merging an
// optional .env in the working directory.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		AuthUser:        getenv("CONSOLE_USER", "admin"),
		InsecureDev:     envBool("INSECURE_DEV", false),
		SessionMaxAgeS:  envInt("SESSION_MAX_AGE_SECONDS", 86400),
		Port:            getenv("PORT", "5000"),
		DBPath:          getenv("DB_PATH", "/opt/adsb/var/console.db"),
		EnvFile:         getenv("ADSB_ENV_FILE", "/opt/adsb/config/.env"),
		RunDir:          strings.TrimSuffix(getenv("ULTRAFEEDER_RUN_DIR", "/run/adsb-feeder-ultrafeeder"), "/"),
		AggregatorsFile: getenv("AGGREGATORS_FILE", ""),
		StatusTTL:       envDurSecs("STATUS_TTL_SECONDS", 10),
		DockerCacheTTL:  envDurSecs("DOCKER_CACHE_SECONDS", 10),
		ProbeTimeout:    envDurSecs("PROBE_TIMEOUT_SECONDS", 2),
		CommandTimeout:  envDurSecs("COMMAND_TIMEOUT_SECONDS", 5),
		MlatStaleAfter:  envDurSecs("MLAT_STALE_SECONDS", 60),
		LogLevel:        getenv("LOG_LEVEL", "info"),
		LogDevelopment:  envBool("LOG_DEVELOPMENT", false),

		AlertWebhookURL:    getenv("ALERT_WEBHOOK_URL", ""),
		AlertWebhookSecret: getenv("ALERT_WEBHOOK_SECRET", ""),
		AlertDiscordURL:    getenv("ALERT_DISCORD_URL", ""),
		AlertAfterChecks:   envInt("ALERT_AFTER_CHECKS", 3),

		TrustProxy:        envBool("TRUST_PROXY", false),
		LoginPerMinute:    envInt("LOGIN_PER_MINUTE", 5),
		APIPerMinute:      envInt("API_PER_MINUTE", 120),
		HistoryRetainDays: envInt("HISTORY_RETAIN_DAYS", 30),
	}

	if hp := getenv("CONSOLE_PASSWORD_BCRYPT", ""); hp != "" {
		cfg.AuthHash = []byte(hp)
	} else if pw := getenv("CONSOLE_PASSWORD", ""); pw != "" {
		h, err := bcrypt.GenerateFromPassword([]byte(pw), bcrypt.DefaultCost)
		if err != nil {
			return nil, fmt.Errorf("hash console password: %w", err)
		}
		cfg.AuthHash = h
	}
	cfg.HmacSecret = []byte(getenv("CONSOLE_SECRET", ""))

	return cfg, nil
}

// ValidateAuth reports whether the admin login is usable. Read-only
// commands do not need it; the HTTP server does.
func (c *Config) ValidateAuth() error {
	if len(c.AuthHash) == 0 {
		return errors.New("missing CONSOLE_PASSWORD or CONSOLE_PASSWORD_BCRYPT")
	}
	if len(c.HmacSecret) < 32 {
		return errors.New("CONSOLE_SECRET must be at least 32 bytes (use a long random string)")
	}
	return nil
}

// Helper functions
func getenv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func envInt(k string, def int) int {
	if v := os.Getenv(k); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func envBool(k string, def bool) bool {
	v := strings.ToLower(getenv(k, ""))
	if v == "" {
		return def
	}
	return v == "1" || v == "true" || v == "yes"
}

func envDurSecs(k string, def int) time.Duration {
	return time.Duration(envInt(k, def)) * time.Second
}
