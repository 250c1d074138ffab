package config

import (
	"errors"
	"fmt"
	"log/slog"
	"net/netip"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	Database  DatabaseConfig
	Redis     RedisConfig
	Members   MembersConfig
	FaceID    FaceIDConfig
	Session   SessionConfig
	Web       WebConfig
	RateLimit RateLimitConfig
	Log       LogConfig
}

type DatabaseConfig struct {
	URL           string // PostgreSQL connection URL (optional, in-memory store if empty)
	MaxOpenConns  int    // Maximum open connections (default 25)
	MaxIdleConns  int    // Maximum idle connections (default 5)
	HNSWIndexPath string // Path to persist the profile HNSW index (optional, rebuilt on startup if empty)
}

type RedisConfig struct {
	URL string // redis://host:6379/0, enables the shared session denylist
}

type MembersConfig struct {
	DatabaseURL string // MariaDB DSN of the club member database
	File        string // YAML member list, used when DatabaseURL is empty
}

type FaceIDConfig struct {
	DescriptorDim   int
	MatchThreshold  float64
	Matcher         string // "linear" or "hnsw"
	MaxScan         int
	LoginTimeout    time.Duration
	RetentionDays   int
	CleanupInterval time.Duration
}

type SessionConfig struct {
	Secret string
	TTL    time.Duration
	Issuer string
}

type WebConfig struct {
	Host           string
	Port           int
	AllowedOrigins []string
	TrustedProxies []string // peers whose forwarding headers are honored
	CookieSecure   *bool    // nil means derive from the request
}

type RateLimitConfig struct {
	LoginRPS   float64
	LoginBurst int
}

type LogConfig struct {
	Level  string
	Format string // "text" or "json"
}

// Matcher names.
const (
	MatcherLinear = "linear"
	MatcherHNSW   = "hnsw"
)

// envInt reads an environment variable and parses it as a positive integer.
// Returns the default value if the env var is unset, empty, or invalid.
func envInt(key string, defaultVal int) int {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	if n, err := strconv.Atoi(s); err == nil && n > 0 {
		return n
	}
	return defaultVal
}

// envFloat reads a non-negative float, falling back to defaultVal.
func envFloat(key string, defaultVal float64) float64 {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil && f >= 0 {
		return f
	}
	return defaultVal
}

// envDuration reads a time.ParseDuration value, falling back to defaultVal.
func envDuration(key string, defaultVal time.Duration) time.Duration {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	if d, err := time.ParseDuration(s); err == nil && d > 0 {
		return d
	}
	return defaultVal
}

// envInterval is envDuration that also accepts 0, meaning disabled.
func envInterval(key string, defaultVal time.Duration) time.Duration {
	if os.Getenv(key) == "0" {
		return 0
	}
	return envDuration(key, defaultVal)
}

// envBool returns nil when the variable is unset or unparsable.
func envBool(key string) *bool {
	s := os.Getenv(key)
	if s == "" {
		return nil
	}
	b, err := strconv.ParseBool(s)
	if err != nil {
		return nil
	}
	return &b
}

func envString(key, defaultVal string) string {
	if s := os.Getenv(key); s != "" {
		return s
	}
	return defaultVal
}

func envList(key string) []string {
	var out []string
	for _, s := range strings.Split(os.Getenv(key), ",") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

func Load() *Config {
	secret := os.Getenv("SESSION_SECRET")
	if secret == "" {
		secret = os.Getenv("WEB_SESSION_SECRET")
	}

	return &Config{
		Database: DatabaseConfig{
			URL:           os.Getenv("DATABASE_URL"),
			MaxOpenConns:  envInt("DATABASE_MAX_OPEN_CONNS", 25),
			MaxIdleConns:  envInt("DATABASE_MAX_IDLE_CONNS", 5),
			HNSWIndexPath: os.Getenv("HNSW_INDEX_PATH"),
		},
		Redis: RedisConfig{
			URL: os.Getenv("REDIS_URL"),
		},
		Members: MembersConfig{
			DatabaseURL: os.Getenv("MEMBERS_DATABASE_URL"),
			File:        os.Getenv("MEMBERS_FILE"),
		},
		FaceID: FaceIDConfig{
			DescriptorDim:   envInt("FACEID_DESCRIPTOR_DIM", 128),
			MatchThreshold:  envFloat("FACEID_MATCH_THRESHOLD", 0.6),
			Matcher:         strings.ToLower(envString("FACEID_MATCHER", MatcherLinear)),
			MaxScan:         envInt("FACEID_MAX_SCAN", 50000),
			LoginTimeout:    envDuration("FACEID_LOGIN_TIMEOUT", 5*time.Second),
			RetentionDays:   envInt("FACEID_RETENTION_DAYS", 90),
			CleanupInterval: envInterval("FACEID_CLEANUP_INTERVAL", 24*time.Hour),
		},
		Session: SessionConfig{
			Secret: secret,
			TTL:    envDuration("SESSION_TTL", 7*24*time.Hour),
			Issuer: envString("SESSION_ISSUER", "faceid"),
		},
		Web: WebConfig{
			Host:           envString("WEB_HOST", "0.0.0.0"),
			Port:           envInt("WEB_PORT", 8080),
			AllowedOrigins: envList("WEB_ALLOWED_ORIGINS"),
			TrustedProxies: envList("WEB_TRUSTED_PROXIES"),
			CookieSecure:   envBool("WEB_COOKIE_SECURE"),
		},
		RateLimit: RateLimitConfig{
			LoginRPS:   envFloat("LOGIN_RATE_LIMIT_RPS", 1),
			LoginBurst: envInt("LOGIN_RATE_LIMIT_BURST", 5),
		},
		Log: LogConfig{
			Level:  envString("LOG_LEVEL", "info"),
			Format: strings.ToLower(envString("LOG_FORMAT", "text")),
		},
	}
}

// Validate reports settings the server cannot start with.
func (c *Config) Validate() error {
	var errs []error
	if len(c.Session.Secret) < 32 {
		errs = append(errs, errors.New("SESSION_SECRET must be at least 32 bytes"))
	}
	if c.FaceID.MatchThreshold >= 1 {
		errs = append(errs, fmt.Errorf("FACEID_MATCH_THRESHOLD must be below 1, got %g", c.FaceID.MatchThreshold))
	}
	if c.FaceID.Matcher != MatcherLinear && c.FaceID.Matcher != MatcherHNSW {
		errs = append(errs, fmt.Errorf("FACEID_MATCHER must be %q or %q, got %q", MatcherLinear, MatcherHNSW, c.FaceID.Matcher))
	}
	for _, p := range c.Web.TrustedProxies {
		if !validProxyEntry(p) {
			errs = append(errs, fmt.Errorf("WEB_TRUSTED_PROXIES entry %q is not an IP or CIDR prefix", p))
		}
	}
	return errors.Join(errs...)
}

func validProxyEntry(s string) bool {
	if strings.Contains(s, "/") {
		_, err := netip.ParsePrefix(s)
		return err == nil
	}
	_, err := netip.ParseAddr(s)
	return err == nil
}

// SlogLevel maps Log.Level to a slog.Level, defaulting to info.
func (c *LogConfig) SlogLevel() slog.Level {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.Level)); err != nil {
		return slog.LevelInfo
	}
	return level
}
