package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
)

// Config holds the hub configuration.
type Config struct {
	Host                     string
	Port                     string
	SQLiteDBPath             string
	HubEnv                   string
	AllowTestMode            bool
	JWTSecret                string
	JWTAccessTokenExpirySec  int
	JWTRefreshTokenExpirySec int
	PairingCodeTTLSeconds    int

	// HEOS platform settings. HEOSHost is optional; the controller
	// library locates a device on its own when it is empty.
	HEOSHost        string
	HEOSName        string
	HEOSUsername    string
	HEOSPassword    string
	HEOSFixturePath string

	// Host runtime settings
	PollSchedule      string
	ExecutorWorkers   int
	ExecutorQueueSize int
	UpdateQueueSize   int

	AuditRetentionDays int

	ArtworkTimeoutMs  int
	ArtworkMaxRetries int

	MQTT   MQTTConfig
	Influx InfluxConfig

	MCPEnabled bool
	MCPBaseURL string
}

// MQTTConfig configures the MQTT bridge.
type MQTTConfig struct {
	Enabled     bool
	Host        string
	Port        int
	TLS         bool
	ClientID    string
	Username    string
	Password    string
	QoS         int
	TopicPrefix string
}

// InfluxConfig configures the state history writer.
type InfluxConfig struct {
	Enabled              bool
	URL                  string
	Token                string
	Org                  string
	Bucket               string
	BatchSize            int
	FlushIntervalSeconds int
}

// ArtworkTimeout returns the artwork proxy timeout as a duration.
func (cfg Config) ArtworkTimeout() time.Duration {
	return time.Duration(cfg.ArtworkTimeoutMs) * time.Millisecond
}

// Load reads configuration from environment variables with defaults.
func Load() (Config, error) {
	cfg := Config{
		Host:                     envString("HOST", "0.0.0.0"),
		Port:                     envString("PORT", "9100"),
		SQLiteDBPath:             envString("SQLITE_DB_PATH", "./data/heos-hub.db"),
		HubEnv:                   envString("HUB_ENV", "development"),
		AllowTestMode:            envBool("ALLOW_TEST_MODE", false),
		JWTSecret:                envString("JWT_SECRET", ""),
		JWTAccessTokenExpirySec:  envInt("JWT_ACCESS_TOKEN_EXPIRY", 3600),
		JWTRefreshTokenExpirySec: envInt("JWT_REFRESH_TOKEN_EXPIRY", 2592000),
		PairingCodeTTLSeconds:    envInt("PAIRING_CODE_TTL_SECONDS", 300),

		HEOSHost:        envString("HEOS_HOST", ""),
		HEOSName:        envString("HEOS_NAME", "HEOS Player"),
		HEOSUsername:    envString("HEOS_USERNAME", ""),
		HEOSPassword:    envString("HEOS_PASSWORD", ""),
		HEOSFixturePath: envString("HEOS_FIXTURE_PATH", "./assets/fixtures/heos-fleet.yaml"),

		PollSchedule:      envString("HOST_POLL_SCHEDULE", "@every 30s"),
		ExecutorWorkers:   envInt("EXECUTOR_WORKERS", 4),
		ExecutorQueueSize: envInt("EXECUTOR_QUEUE_SIZE", 64),
		UpdateQueueSize:   envInt("UPDATE_QUEUE_SIZE", 256),

		AuditRetentionDays: envInt("AUDIT_RETENTION_DAYS", 90),

		ArtworkTimeoutMs:  envInt("ARTWORK_TIMEOUT_MS", 5000),
		ArtworkMaxRetries: envInt("ARTWORK_MAX_RETRIES", 2),

		MQTT: MQTTConfig{
			Enabled:     envBool("MQTT_ENABLED", false),
			Host:        envString("MQTT_HOST", ""),
			Port:        envInt("MQTT_PORT", 1883),
			TLS:         envBool("MQTT_TLS", false),
			ClientID:    envString("MQTT_CLIENT_ID", "heos-hub"),
			Username:    envString("MQTT_USERNAME", ""),
			Password:    envString("MQTT_PASSWORD", ""),
			QoS:         envInt("MQTT_QOS", 1),
			TopicPrefix: envString("MQTT_TOPIC_PREFIX", "heoshub"),
		},
		Influx: InfluxConfig{
			Enabled:              envBool("INFLUX_ENABLED", false),
			URL:                  envString("INFLUX_URL", ""),
			Token:                envString("INFLUX_TOKEN", ""),
			Org:                  envString("INFLUX_ORG", ""),
			Bucket:               envString("INFLUX_BUCKET", "heos"),
			BatchSize:            envInt("INFLUX_BATCH_SIZE", 100),
			FlushIntervalSeconds: envInt("INFLUX_FLUSH_INTERVAL_SECONDS", 10),
		},

		MCPEnabled: envBool("MCP_ENABLED", true),
		MCPBaseURL: envString("MCP_BASE_URL", ""),
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks cross-field constraints.
func (cfg Config) Validate() error {
	if len(strings.TrimSpace(cfg.JWTSecret)) < 32 {
		return fmt.Errorf("JWT_SECRET must be at least 32 characters")
	}
	if _, err := cron.ParseStandard(cfg.PollSchedule); err != nil {
		return fmt.Errorf("HOST_POLL_SCHEDULE is invalid: %w", err)
	}
	if cfg.ExecutorWorkers < 1 {
		return fmt.Errorf("EXECUTOR_WORKERS must be at least 1")
	}
	if cfg.MQTT.Enabled {
		if cfg.MQTT.Host == "" {
			return fmt.Errorf("MQTT_HOST is required when MQTT_ENABLED=true")
		}
		if cfg.MQTT.QoS < 0 || cfg.MQTT.QoS > 2 {
			return fmt.Errorf("MQTT_QOS must be 0, 1 or 2")
		}
	}
	if cfg.Influx.Enabled {
		missing := make([]string, 0, 4)
		if cfg.Influx.URL == "" {
			missing = append(missing, "INFLUX_URL")
		}
		if cfg.Influx.Token == "" {
			missing = append(missing, "INFLUX_TOKEN")
		}
		if cfg.Influx.Org == "" {
			missing = append(missing, "INFLUX_ORG")
		}
		if cfg.Influx.Bucket == "" {
			missing = append(missing, "INFLUX_BUCKET")
		}
		if len(missing) > 0 {
			return fmt.Errorf("influx enabled but missing %s", strings.Join(missing, ", "))
		}
	}
	return nil
}

func envString(key, fallback string) string {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	return val
}

func envInt(key string, fallback int) int {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(val)
	if err != nil {
		return fallback
	}
	return parsed
}

func envBool(key string, fallback bool) bool {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	return strings.EqualFold(val, "true")
}
