package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Device     DeviceConfig
	History    HistoryConfig
	Thresholds ThresholdConfig
	Retention  RetentionConfig
	Database   DatabaseConfig
	Redis      RedisConfig
	Kafka      KafkaConfig
	API        APIConfig
	Log        LogConfig
}

// DeviceConfig describes the shared-memory telemetry source.
type DeviceConfig struct {
	Path         string
	NumSites     int
	PollInterval time.Duration
	RetryBackoff time.Duration
}

type HistoryConfig struct {
	AnomalyWindow  int // samples kept for anomaly scoring
	RetainedWindow int // samples kept per site overall
}

// ThresholdConfig holds the alert thresholds. Fixed for the lifetime of a run.
type ThresholdConfig struct {
	AnomalyScore float64
	Utilization  float64
	ErrorCount   int
}

type RetentionConfig struct {
	Window      time.Duration
	SweepPeriod time.Duration
}

type DatabaseConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	DBName   string
	SSLMode  string
}

func (d DatabaseConfig) ConnectionString() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.User, d.Password, d.DBName, d.SSLMode)
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	TTL      time.Duration
}

type KafkaConfig struct {
	Brokers      []string
	TopicMetrics string
	GroupID      string
}

type APIConfig struct {
	Port int
}

type LogConfig struct {
	Level string
	File  string
}

func Load() (*Config, error) {
	// Load .env file if it exists (ignore error if not present)
	_ = godotenv.Load()

	config := &Config{
		Device: DeviceConfig{
			Path:         getEnv("DEVICE_PATH", "/proc/optifiber/myinfo"),
			NumSites:     getEnvAsInt("DEVICE_NUM_SITES", 4),
			PollInterval: getEnvAsDuration("POLL_INTERVAL", 1*time.Second),
			RetryBackoff: getEnvAsDuration("RETRY_BACKOFF", 5*time.Second),
		},
		History: HistoryConfig{
			AnomalyWindow:  getEnvAsInt("HISTORY_ANOMALY_WINDOW", 60),
			RetainedWindow: getEnvAsInt("HISTORY_RETAINED_WINDOW", 86400),
		},
		Thresholds: ThresholdConfig{
			AnomalyScore: getEnvAsFloat("THRESHOLD_ANOMALY_SCORE", 0.8),
			Utilization:  getEnvAsFloat("THRESHOLD_UTILIZATION", 90.0),
			ErrorCount:   getEnvAsInt("THRESHOLD_ERROR_COUNT", 10),
		},
		Retention: RetentionConfig{
			Window:      getEnvAsDuration("RETENTION_WINDOW", 30*24*time.Hour),
			SweepPeriod: getEnvAsDuration("RETENTION_SWEEP_PERIOD", 1*time.Hour),
		},
		Database: DatabaseConfig{
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnvAsInt("DB_PORT", 5432),
			User:     getEnv("DB_USER", "optilink_user"),
			Password: getEnv("DB_PASSWORD", "optilink_pass"),
			DBName:   getEnv("DB_NAME", "optilink_db"),
			SSLMode:  getEnv("DB_SSLMODE", "disable"),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", "localhost:6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvAsInt("REDIS_DB", 0),
			TTL:      getEnvAsDuration("REDIS_LATEST_TTL", 5*time.Minute),
		},
		Kafka: KafkaConfig{
			Brokers:      strings.Split(getEnv("KAFKA_BROKERS", "localhost:9092"), ","),
			TopicMetrics: getEnv("KAFKA_TOPIC_METRICS", "optilink.metrics.enriched"),
			GroupID:      getEnv("KAFKA_GROUP_ID", "optilink-ingest"),
		},
		API: APIConfig{
			Port: getEnvAsInt("API_PORT", 5000),
		},
		Log: LogConfig{
			Level: getEnv("LOG_LEVEL", "info"),
			File:  getEnv("LOG_FILE", ""),
		},
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

// Validate rejects configurations the pipeline cannot run with. A failure here
// is fatal at startup.
func (c *Config) Validate() error {
	if c.Device.NumSites <= 0 {
		return fmt.Errorf("config: DEVICE_NUM_SITES must be positive, got %d", c.Device.NumSites)
	}
	if c.Device.PollInterval <= 0 {
		return fmt.Errorf("config: POLL_INTERVAL must be positive, got %v", c.Device.PollInterval)
	}
	if c.Device.RetryBackoff <= 0 {
		return fmt.Errorf("config: RETRY_BACKOFF must be positive, got %v", c.Device.RetryBackoff)
	}
	if c.History.AnomalyWindow <= 0 || c.History.RetainedWindow <= 0 {
		return fmt.Errorf("config: history windows must be positive, got anomaly=%d retained=%d",
			c.History.AnomalyWindow, c.History.RetainedWindow)
	}
	if c.Thresholds.AnomalyScore < 0 || c.Thresholds.AnomalyScore > 1 {
		return fmt.Errorf("config: THRESHOLD_ANOMALY_SCORE must be in [0,1], got %v", c.Thresholds.AnomalyScore)
	}
	if c.Thresholds.Utilization < 0 || c.Thresholds.Utilization > 100 {
		return fmt.Errorf("config: THRESHOLD_UTILIZATION must be in [0,100], got %v", c.Thresholds.Utilization)
	}
	if c.Thresholds.ErrorCount < 0 {
		return fmt.Errorf("config: THRESHOLD_ERROR_COUNT must not be negative, got %d", c.Thresholds.ErrorCount)
	}
	if c.Retention.Window <= 0 {
		return fmt.Errorf("config: RETENTION_WINDOW must be positive, got %v", c.Retention.Window)
	}
	if c.Retention.SweepPeriod <= 0 {
		return fmt.Errorf("config: RETENTION_SWEEP_PERIOD must be positive, got %v", c.Retention.SweepPeriod)
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseFloat(valueStr, 64); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if value, err := time.ParseDuration(valueStr); err == nil {
		return value
	}
	return defaultValue
}
