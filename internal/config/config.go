package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
	_ "time/tzdata"

	"github.com/joho/godotenv"
)

// Config aggregates all runtime settings required by the engine.
type Config struct {
	AppName     string
	Environment string
	HTTP        HTTPConfig
	Database    DatabaseConfig
	Redis       RedisConfig
	Identity    IdentityConfig
	Engine      EngineConfig
	Buffer      BufferConfig
	MQTT        MQTTConfig
	Context     ContextConfig
	Logger      LoggerConfig
	Migrations  MigrationsConfig
}

// HTTPConfig drives the ops server (health and metrics only).
type HTTPConfig struct {
	Host          string
	Port          string
	ReadTimeout   time.Duration
	WriteTimeout  time.Duration
	IdleTimeout   time.Duration
	EnableMetrics bool
}

type DatabaseConfig struct {
	URL             string
	Host            string
	Port            string
	Name            string
	User            string
	Password        string
	MaxOpenConns    int
	MaxIdleConns    int
	MaxConnLifetime time.Duration
	SSLMode         string
}

type RedisConfig struct {
	URL      string
	Password string
	DB       int
}

// IdentityConfig configures token verification and the directory caches.
type IdentityConfig struct {
	Secret    string
	Issuer    string
	CacheTTL  time.Duration
	CacheSize int
}

// EngineConfig holds the knobs of the lifecycle engine itself.
type EngineConfig struct {
	TimeZone        string
	UpsertChunkSize int
	IsolationLevel  string
}

type BufferConfig struct {
	Enabled       bool
	Path          string
	MaxSize       int
	DrainSchedule string
	DrainBatch    int
	MaxRetry      int
	MaxAge        time.Duration
}

type MQTTConfig struct {
	Enabled  bool
	Broker   string
	ClientID string
	Username string
	Password string
	Topic    string
	QoS      int
}

type ContextConfig struct {
	RequestTimeout  time.Duration
	ShutdownTimeout time.Duration
}

type LoggerConfig struct {
	Level    string
	Encoding string
}

type MigrationsConfig struct {
	Enabled bool
	Path    string
}

// Load reads configuration from environment variables (optionally .env)
// and applies defaults so the engine can boot in any environment.
func Load() (*Config, error) {
	_ = godotenv.Load(".env")

	cfg := &Config{
		AppName:     getString("APP_NAME", "lifecycle-engine"),
		Environment: getString("APP_ENV", "development"),
		HTTP: HTTPConfig{
			Host:          getString("SERVER_HOST", "0.0.0.0"),
			Port:          getString("SERVER_PORT", "8080"),
			ReadTimeout:   getDuration("SERVER_READ_TIMEOUT", 10*time.Second),
			WriteTimeout:  getDuration("SERVER_WRITE_TIMEOUT", 10*time.Second),
			IdleTimeout:   getDuration("SERVER_IDLE_TIMEOUT", 120*time.Second),
			EnableMetrics: getBool("SERVER_ENABLE_METRICS", true),
		},
		Database: DatabaseConfig{
			URL:             os.Getenv("DATABASE_URL"),
			Host:            getString("DB_HOST", "localhost"),
			Port:            getString("DB_PORT", "5432"),
			Name:            getString("DB_NAME", "optimce"),
			User:            getString("DB_USER", "optimce"),
			Password:        os.Getenv("DB_PASSWORD"),
			MaxOpenConns:    getInt("DB_MAX_OPEN_CONNS", 25),
			MaxIdleConns:    getInt("DB_MAX_IDLE_CONNS", 5),
			MaxConnLifetime: getDuration("DB_CONN_LIFETIME", time.Hour),
			SSLMode:         getString("DB_SSLMODE", "disable"),
		},
		Redis: RedisConfig{
			URL:      os.Getenv("REDIS_URL"),
			Password: os.Getenv("REDIS_PASSWORD"),
			DB:       getInt("REDIS_DB", 0),
		},
		Identity: IdentityConfig{
			Secret:    os.Getenv("JWT_SECRET"),
			Issuer:    os.Getenv("JWT_ISSUER"),
			CacheTTL:  getDuration("IDENTITY_CACHE_TTL", 5*time.Minute),
			CacheSize: getInt("IDENTITY_CACHE_SIZE", 1024),
		},
		Engine: EngineConfig{
			TimeZone:        getString("ENGINE_TIME_ZONE", "Europe/Brussels"),
			UpsertChunkSize: getInt("ENGINE_UPSERT_CHUNK_SIZE", 1000),
			IsolationLevel:  getString("ENGINE_ISOLATION_LEVEL", "repeatable read"),
		},
		Buffer: BufferConfig{
			Enabled:       getBool("BUFFER_ENABLED", true),
			Path:          getString("BOLTDB_PATH", "./data/buffer.db"),
			MaxSize:       getInt("BUFFER_MAX_SIZE", 100_000),
			DrainSchedule: getString("BUFFER_DRAIN_SCHEDULE", "@every 30s"),
			DrainBatch:    getInt("BUFFER_DRAIN_BATCH", 50),
			MaxRetry:      getInt("MAX_RETRY_ATTEMPTS", 5),
			MaxAge:        getDuration("BUFFER_MAX_AGE", 7*24*time.Hour),
		},
		MQTT: MQTTConfig{
			Enabled:  getBool("MQTT_ENABLED", false),
			Broker:   getString("MQTT_BROKER", "tcp://localhost:1883"),
			ClientID: getString("MQTT_CLIENT_ID", "lifecycle-engine"),
			Username: os.Getenv("MQTT_USERNAME"),
			Password: os.Getenv("MQTT_PASSWORD"),
			Topic:    getString("MQTT_TOPIC", "communities/+/consumption"),
			QoS:      getInt("MQTT_QOS", 1),
		},
		Context: ContextConfig{
			RequestTimeout:  getDuration("REQUEST_TIMEOUT_SECONDS", 30*time.Second),
			ShutdownTimeout: getDuration("SHUTDOWN_TIMEOUT_SECONDS", 15*time.Second),
		},
		Logger: LoggerConfig{
			Level:    getString("LOG_LEVEL", "info"),
			Encoding: getString("LOG_ENCODING", "json"),
		},
		Migrations: MigrationsConfig{
			Enabled: getBool("RUN_MIGRATIONS", true),
			Path:    getString("MIGRATIONS_PATH", "./assets/migrations"),
		},
	}

	if cfg.Database.URL == "" {
		cfg.Database.URL = buildPostgresURL(cfg)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// MustLoad panics if configuration cannot be loaded.
func MustLoad() *Config {
	cfg, err := Load()
	if err != nil {
		panic(err)
	}
	return cfg
}

// Validate rejects settings the engine cannot run with.
func (c *Config) Validate() error {
	if c.Engine.UpsertChunkSize <= 0 {
		return fmt.Errorf("ENGINE_UPSERT_CHUNK_SIZE must be positive, got %d", c.Engine.UpsertChunkSize)
	}
	if _, err := c.Location(); err != nil {
		return err
	}
	switch strings.ToLower(c.Engine.IsolationLevel) {
	case "read committed", "repeatable read", "serializable":
	default:
		return fmt.Errorf("unsupported ENGINE_ISOLATION_LEVEL %q", c.Engine.IsolationLevel)
	}
	if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
		return fmt.Errorf("MQTT_QOS must be 0, 1 or 2")
	}
	return nil
}

// Location resolves the engine time zone used for "today".
func (c *Config) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(c.Engine.TimeZone)
	if err != nil {
		return nil, fmt.Errorf("invalid ENGINE_TIME_ZONE %q: %w", c.Engine.TimeZone, err)
	}
	return loc, nil
}

func buildPostgresURL(cfg *Config) string {
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s",
		cfg.Database.User,
		cfg.Database.Password,
		cfg.Database.Host,
		cfg.Database.Port,
		cfg.Database.Name,
		cfg.Database.SSLMode,
	)
}

func getString(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func getInt(key string, fallback int) int {
	if val := os.Getenv(key); val != "" {
		if parsed, err := strconv.Atoi(val); err == nil {
			return parsed
		}
	}
	return fallback
}

func getBool(key string, fallback bool) bool {
	if val := os.Getenv(key); val != "" {
		if parsed, err := strconv.ParseBool(val); err == nil {
			return parsed
		}
	}
	return fallback
}

func getDuration(key string, fallback time.Duration) time.Duration {
	if val := os.Getenv(key); val != "" {
		if parsed, err := time.ParseDuration(val); err == nil {
			return parsed
		}
		if seconds, err := strconv.Atoi(val); err == nil {
			return time.Duration(seconds) * time.Second
		}
	}
	return fallback
}

// Address returns the listen address of the ops server.
func (c *Config) Address() string {
	return fmt.Sprintf("%s:%s", c.HTTP.Host, c.HTTP.Port)
}
