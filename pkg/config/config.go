package config

import (
	"errors"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	EnvDevelopment = "development"
	EnvProduction  = "production"
)

type Config struct {
	Env       string
	Port      int
	APIPrefix string

	Database  DatabaseConfig
	Redis     RedisConfig
	CORS      CORSConfig
	Log       LogConfig
	Engine    EngineConfig
	Scheduler SchedulerConfig
	Scan      ScanConfig
	Catalog   CatalogConfig
	Tiering   TieringConfig
}

type DatabaseConfig struct {
	Host         string
	Port         int
	User         string
	Password     string
	Name         string
	SSLMode      string
	MaxOpenConns int
	MaxIdleConns int
}

type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

type CORSConfig struct {
	AllowedOrigins []string
}

type LogConfig struct {
	Level  string
	Format string
}

// EngineConfig configures the external transfer engine subprocess.
type EngineConfig struct {
	Binary        string
	Transfers     int
	Checkers      int
	StatsInterval time.Duration
	ExtraFlags    []string
	DryRun        bool
}

// SchedulerConfig governs the periodic schedule evaluation loop.
type SchedulerConfig struct {
	Enabled      bool
	TickInterval time.Duration
}

// ScanConfig tunes the filesystem scan worker pool.
type ScanConfig struct {
	WorkerConcurrency int
	QueueSize         int
	ExcludePatterns   []string
	FollowSymlinks    bool
	MaxDepth          int
}

// CatalogConfig governs catalog query caching and risk thresholds.
type CatalogConfig struct {
	CacheTTL        time.Duration
	AtRiskStaleDays int
}

// TieringConfig controls file temperature and log retention rotation.
type TieringConfig struct {
	Enabled             bool
	Interval            time.Duration
	ArchiveDir          string
	HotRetention        time.Duration
	WarmRetentionMonths int
	HotAccessDays       int
	WarmAccessDays      int
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetConfigFile(".env")
	v.SetConfigType("env")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, err
		}
	}

	cfg := &Config{}

	cfg.Env = v.GetString("ENV")
	cfg.Port = v.GetInt("PORT")
	cfg.APIPrefix = v.GetString("API_PREFIX")

	cfg.Database = DatabaseConfig{
		Host:         v.GetString("DB_HOST"),
		Port:         v.GetInt("DB_PORT"),
		User:         v.GetString("DB_USER"),
		Password:     v.GetString("DB_PASSWORD"),
		Name:         v.GetString("DB_NAME"),
		SSLMode:      v.GetString("DB_SSL_MODE"),
		MaxOpenConns: v.GetInt("DB_MAX_OPEN_CONNS"),
		MaxIdleConns: v.GetInt("DB_MAX_IDLE_CONNS"),
	}

	cfg.Redis = RedisConfig{
		Host:     v.GetString("REDIS_HOST"),
		Port:     v.GetInt("REDIS_PORT"),
		Password: v.GetString("REDIS_PASSWORD"),
		DB:       v.GetInt("REDIS_DB"),
	}

	cfg.CORS = CORSConfig{AllowedOrigins: splitAndTrim(v.GetString("ALLOWED_ORIGINS"))}

	cfg.Log = LogConfig{
		Level:  v.GetString("LOG_LEVEL"),
		Format: v.GetString("LOG_FORMAT"),
	}

	cfg.Engine = EngineConfig{
		Binary:        v.GetString("ENGINE_BINARY"),
		Transfers:     v.GetInt("ENGINE_TRANSFERS"),
		Checkers:      v.GetInt("ENGINE_CHECKERS"),
		StatsInterval: parseDuration(v.GetString("ENGINE_STATS_INTERVAL"), time.Minute),
		ExtraFlags:    splitAndTrim(v.GetString("ENGINE_EXTRA_FLAGS")),
		DryRun:        v.GetBool("ENGINE_DRY_RUN"),
	}

	cfg.Scheduler = SchedulerConfig{
		Enabled:      v.GetBool("ENABLE_SCHEDULER"),
		TickInterval: parseDuration(v.GetString("SCHEDULER_TICK_INTERVAL"), time.Second),
	}

	cfg.Scan = ScanConfig{
		WorkerConcurrency: v.GetInt("SCAN_WORKER_CONCURRENCY"),
		QueueSize:         v.GetInt("SCAN_QUEUE_SIZE"),
		ExcludePatterns:   splitAndTrim(v.GetString("SCAN_EXCLUDE_PATTERNS")),
		FollowSymlinks:    v.GetBool("SCAN_FOLLOW_SYMLINKS"),
		MaxDepth:          v.GetInt("SCAN_MAX_DEPTH"),
	}

	cfg.Catalog = CatalogConfig{
		CacheTTL:        parseDuration(v.GetString("CATALOG_CACHE_TTL"), 5*time.Minute),
		AtRiskStaleDays: v.GetInt("CATALOG_AT_RISK_STALE_DAYS"),
	}

	cfg.Tiering = TieringConfig{
		Enabled:             v.GetBool("ENABLE_TIERING"),
		Interval:            parseDuration(v.GetString("TIERING_INTERVAL"), 24*time.Hour),
		ArchiveDir:          v.GetString("TIERING_ARCHIVE_DIR"),
		HotRetention:        parseDuration(v.GetString("TIERING_HOT_RETENTION"), 30*24*time.Hour),
		WarmRetentionMonths: v.GetInt("TIERING_WARM_RETENTION_MONTHS"),
		HotAccessDays:       v.GetInt("TIERING_HOT_ACCESS_DAYS"),
		WarmAccessDays:      v.GetInt("TIERING_WARM_ACCESS_DAYS"),
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("ENV", EnvDevelopment)
	v.SetDefault("PORT", 8080)
	v.SetDefault("API_PREFIX", "/api")

	v.SetDefault("DB_HOST", "localhost")
	v.SetDefault("DB_PORT", 5432)
	v.SetDefault("DB_USER", "postgres")
	v.SetDefault("DB_PASSWORD", "postgres")
	v.SetDefault("DB_NAME", "arkivo")
	v.SetDefault("DB_SSL_MODE", "disable")
	v.SetDefault("DB_MAX_OPEN_CONNS", 10)
	v.SetDefault("DB_MAX_IDLE_CONNS", 5)

	v.SetDefault("REDIS_HOST", "localhost")
	v.SetDefault("REDIS_PORT", 6379)
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)

	v.SetDefault("ALLOWED_ORIGINS", "")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")

	v.SetDefault("ENGINE_BINARY", "rclone")
	v.SetDefault("ENGINE_TRANSFERS", 4)
	v.SetDefault("ENGINE_CHECKERS", 8)
	v.SetDefault("ENGINE_STATS_INTERVAL", "1m")
	v.SetDefault("ENGINE_EXTRA_FLAGS", "")
	v.SetDefault("ENGINE_DRY_RUN", false)

	v.SetDefault("ENABLE_SCHEDULER", true)
	v.SetDefault("SCHEDULER_TICK_INTERVAL", "1s")

	v.SetDefault("SCAN_WORKER_CONCURRENCY", 1)
	v.SetDefault("SCAN_QUEUE_SIZE", 8)
	v.SetDefault("SCAN_EXCLUDE_PATTERNS", ".git,node_modules,.DS_Store")
	v.SetDefault("SCAN_FOLLOW_SYMLINKS", false)
	v.SetDefault("SCAN_MAX_DEPTH", 0)

	v.SetDefault("CATALOG_CACHE_TTL", "5m")
	v.SetDefault("CATALOG_AT_RISK_STALE_DAYS", 30)

	v.SetDefault("ENABLE_TIERING", true)
	v.SetDefault("TIERING_INTERVAL", "24h")
	v.SetDefault("TIERING_ARCHIVE_DIR", "./archive")
	v.SetDefault("TIERING_HOT_RETENTION", "720h")
	v.SetDefault("TIERING_WARM_RETENTION_MONTHS", 24)
	v.SetDefault("TIERING_HOT_ACCESS_DAYS", 30)
	v.SetDefault("TIERING_WARM_ACCESS_DAYS", 180)
}

func parseDuration(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}

	d, err := time.ParseDuration(raw)
	if err != nil {
		return fallback
	}

	return d
}

func splitAndTrim(raw string) []string {
	if raw == "" {
		return nil
	}

	parts := strings.Split(raw, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}

	return result
}
