package config

import (
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// Config holds everything a single guard run needs.
type Config struct {
	// ZoneID identifies the Cloudflare zone.
	ZoneID string
	// APIToken is the bearer credential for the Cloudflare API.
	APIToken string
	// APIBaseURL is the Cloudflare API root.
	APIBaseURL string
	// LoadThreshold is the 5-minute load average above which under_attack is enabled.
	LoadThreshold float64
	// LowLoadMode is the security level used when load is normal.
	LowLoadMode string
	// CacheFile stores the last known remote mode.
	CacheFile string
	// TimestampFile stores the Unix time the current under_attack window began.
	TimestampFile string
	// Cooldown is how long under_attack is held after activation.
	Cooldown time.Duration
	// LockFile guards against concurrent runs. Empty means derive from ZoneID.
	LockFile string
	// MetricsTextfile is where Prometheus gauges are written. Empty disables it.
	MetricsTextfile string
	// LogLevel is the minimum log level name.
	LogLevel string
	// Alert holds notification settings.
	Alert Alert
}

// Alert holds notification settings.
type Alert struct {
	// Mode selects the channel: none, slack, email or command.
	Mode string
	// TimestampFile stores the time of the last notification.
	TimestampFile string
	// Cooldown is the minimum spacing between two notifications.
	Cooldown time.Duration
	// SlackWebhook is the incoming webhook URL.
	SlackWebhook string
	// SlackUseBlocks switches from plain text to Block Kit payloads.
	SlackUseBlocks bool
	// EmailTo is the recipient address.
	EmailTo string
	// EmailFrom is the sender address.
	EmailFrom string
	// EmailSubjectPrefix is prepended to the subject line.
	EmailSubjectPrefix string
	// Command is a shell template; #MSG# is replaced with the quoted message.
	Command string
}

// Alert channel names.
const (
	AlertModeNone    = "none"
	AlertModeSlack   = "slack"
	AlertModeEmail   = "email"
	AlertModeCommand = "command"
)

// Configuration keys.
const (
	KeyZoneID             = "ZONE_ID"
	KeyAPIToken           = "CF_API_TOKEN"
	KeyAPIBaseURL         = "CF_API_URL"
	KeyLoadThreshold      = "LOAD_THRESHOLD"
	KeyLowLoadMode        = "LOW_LOAD_MODE"
	KeyCacheFile          = "CACHE_FILE"
	KeyTimestampFile      = "TIMESTAMP_FILE"
	KeyCooldownHours      = "COOLDOWN_HOURS"
	KeyLockFile           = "LOCK_FILE"
	KeyMetricsTextfile    = "METRICS_TEXTFILE"
	KeyLogLevel           = "LOG_LEVEL"
	KeyAlertMode          = "ALERT_MODE"
	KeyAlertTimestampFile = "ALERT_TS_FILE"
	KeyAlertCooldownMin   = "ALERT_COOLDOWN_MIN"
	KeySlackWebhook       = "ALERT_SLACK_WEBHOOK"
	KeySlackUseBlocks     = "ALERT_SLACK_USE_BLOCKS"
	KeyEmailTo            = "ALERT_EMAIL_TO"
	KeyEmailFrom          = "ALERT_EMAIL_FROM"
	KeyEmailSubjectPrefix = "ALERT_EMAIL_SUBJECT_PREFIX"
	KeyAlertCommand       = "ALERT_COMMAND"
)

const (
	// DefaultConfigPath is used when neither a flag nor the environment names a file.
	DefaultConfigPath = "/etc/cf-under-attack.conf"

	// ConfigPathEnv overrides DefaultConfigPath.
	ConfigPathEnv = "CF_GUARD_CONFIG"

	// DefaultAPIBaseURL is the Cloudflare v4 API root.
	DefaultAPIBaseURL = "https://api.cloudflare.com/client/v4"

	// DefaultLoadThreshold is the default 5-minute load threshold.
	DefaultLoadThreshold = 7.0

	// DefaultLowLoadMode is the default normal security level.
	DefaultLowLoadMode = "medium"

	// DefaultCacheFile is the default cache file location.
	DefaultCacheFile = "/tmp/cf_mode_cache"

	// DefaultTimestampFile is the default activation timestamp location.
	DefaultTimestampFile = "/tmp/cf_under_attack_timestamp"

	// DefaultCooldownHours is the default hysteresis window in hours.
	DefaultCooldownHours = 3.0

	// DefaultAlertTimestampFile is the default alert cooldown timestamp location.
	DefaultAlertTimestampFile = "/tmp/cf_under_attack_alert_ts"

	// DefaultAlertCooldownMinutes is the default spacing between alerts.
	DefaultAlertCooldownMinutes = 30.0

	// DefaultEmailSubjectPrefix is prepended to alert e-mail subjects.
	DefaultEmailSubjectPrefix = "[CF Guard]"

	// DefaultLogLevel is the default log level.
	DefaultLogLevel = "info"

	// DefaultFilePermissions is the permission for state files written by the guard.
	DefaultFilePermissions = 0o600
)

var (
	// ErrMissingCredentials is returned when the zone or token is not configured.
	ErrMissingCredentials = errors.New("missing ZONE_ID or CF_API_TOKEN in config")
	// errConfigIsNotSet is returned when a nil configuration is provided.
	errConfigIsNotSet = errors.New("configuration is not set")
)

// ResolvePath picks the configuration path: explicit value, then the
// CF_GUARD_CONFIG environment variable, then DefaultConfigPath.
func ResolvePath(explicit string) string {
	if explicit != "" {
		return explicit
	}

	if fromEnv := os.Getenv(ConfigPathEnv); fromEnv != "" {
		return fromEnv
	}

	return DefaultConfigPath
}

// Load reads configuration from the provided path.
// It does not validate credentials; call Validate for that.
func Load(path string) (*Config, error) {
	path = ResolvePath(path)

	contents, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	var values map[string]string

	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		values, err = parseYAML(contents)
		if err != nil {
			return nil, fmt.Errorf("unmarshal config: %w", err)
		}
	default:
		values = parseKeyValue(contents)
	}

	return FromValues(values), nil
}

// FromValues builds a Config from raw key/value pairs, applying defaults for
// missing keys and for values that fail to parse.
func FromValues(values map[string]string) *Config {
	get := func(key, fallback string) string {
		if v := values[key]; v != "" {
			return v
		}

		return fallback
	}

	// An explicitly empty ALERT_TS_FILE disables alert rate limiting.
	alertTimestampFile, ok := values[KeyAlertTimestampFile]
	if !ok {
		alertTimestampFile = DefaultAlertTimestampFile
	}

	cfg := &Config{
		ZoneID:          get(KeyZoneID, ""),
		APIToken:        get(KeyAPIToken, ""),
		APIBaseURL:      get(KeyAPIBaseURL, DefaultAPIBaseURL),
		LoadThreshold:   round2(parseFloat(values[KeyLoadThreshold], DefaultLoadThreshold)),
		LowLoadMode:     get(KeyLowLoadMode, DefaultLowLoadMode),
		CacheFile:       get(KeyCacheFile, DefaultCacheFile),
		TimestampFile:   get(KeyTimestampFile, DefaultTimestampFile),
		Cooldown:        hours(parseFloat(values[KeyCooldownHours], DefaultCooldownHours)),
		LockFile:        get(KeyLockFile, ""),
		MetricsTextfile: get(KeyMetricsTextfile, ""),
		LogLevel:        get(KeyLogLevel, DefaultLogLevel),
		Alert: Alert{
			Mode:               strings.ToLower(get(KeyAlertMode, AlertModeNone)),
			TimestampFile:      alertTimestampFile,
			Cooldown:           minutes(parseFloat(values[KeyAlertCooldownMin], DefaultAlertCooldownMinutes)),
			SlackWebhook:       get(KeySlackWebhook, ""),
			SlackUseBlocks:     strings.ToLower(get(KeySlackUseBlocks, "true")) == "true",
			EmailTo:            get(KeyEmailTo, ""),
			EmailFrom:          get(KeyEmailFrom, ""),
			EmailSubjectPrefix: get(KeyEmailSubjectPrefix, DefaultEmailSubjectPrefix),
			Command:            get(KeyAlertCommand, ""),
		},
	}

	return cfg
}

// Validate checks that the required credentials are present.
func Validate(cfg *Config) error {
	if cfg == nil {
		return errConfigIsNotSet
	}

	if cfg.ZoneID == "" || cfg.APIToken == "" {
		return ErrMissingCredentials
	}

	return nil
}

// ResolveLockFile returns the lock path, derived from the zone when not set.
func (c *Config) ResolveLockFile() string {
	if c.LockFile != "" {
		return c.LockFile
	}

	return filepath.Join(os.TempDir(), "cf_guard_"+c.ZoneID+".lock")
}

// parseFloat returns fallback when s is empty or not a number.
func parseFloat(s string, fallback float64) float64 {
	if s == "" {
		return fallback
	}

	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return fallback
	}

	return v
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

func hours(h float64) time.Duration {
	return time.Duration(h * float64(time.Hour))
}

func minutes(m float64) time.Duration {
	return time.Duration(m * float64(time.Minute))
}
