package config

import (
	"errors"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	EnvDevelopment = "development"
	EnvProduction  = "production"
)

// Dispatch modes for generation jobs.
const (
	DispatchMemory = "memory"
	DispatchRedis  = "redis"
	DispatchSync   = "sync"
)

// Storage drivers.
const (
	StorageLocal = "local"
	StorageMinio = "minio"
)

type Config struct {
	Env       string
	Port      int
	APIPrefix string

	Database   DatabaseConfig
	Redis      RedisConfig
	JWT        JWTConfig
	CORS       CORSConfig
	Log        LogConfig
	Storage    StorageConfig
	LLM        LLMConfig
	Generation GenerationConfig
	Reaper     ReaperConfig
	Segment    SegmentConfig
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

type JWTConfig struct {
	Secret string
}

type CORSConfig struct {
	AllowedOrigins []string
}

type LogConfig struct {
	Level  string
	Format string
}

// StorageConfig selects where uploaded materials live.
type StorageConfig struct {
	Driver          string
	LocalDir        string
	MaxUploadBytes  int64
	MinioEndpoint   string
	MinioAccessKey  string
	MinioSecretKey  string
	MinioBucket     string
	MinioUseSSL     bool
	MinioAutoCreate bool
}

// LLMConfig points the text generator at an OpenAI-compatible endpoint.
type LLMConfig struct {
	BaseURL     string
	APIKey      string
	Model       string
	Temperature float32
	Timeout     time.Duration
}

// GenerationConfig tunes job dispatch and prompt size.
type GenerationConfig struct {
	DispatchMode    string
	Workers         int
	QueueBuffer     int
	QueueKey        string
	MaxRetries      int
	MaxContextChars int
	RecoverOnStart  bool
}

// ReaperConfig controls the stuck-job sweeper.
type ReaperConfig struct {
	Enabled        bool
	Interval       time.Duration
	StaleThreshold time.Duration
}

// SegmentConfig tunes the heading heuristics.
type SegmentConfig struct {
	MaxHeadingChars int
	MaxHeadingWords int
	FontSizeRatio   float64
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
		if !errors.As(err, &notFound) && !errors.Is(err, os.ErrNotExist) {
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

	cfg.JWT = JWTConfig{Secret: v.GetString("JWT_SECRET")}

	cfg.CORS = CORSConfig{AllowedOrigins: splitAndTrim(v.GetString("ALLOWED_ORIGINS"))}

	cfg.Log = LogConfig{
		Level:  v.GetString("LOG_LEVEL"),
		Format: v.GetString("LOG_FORMAT"),
	}

	maxUpload := v.GetInt64("STORAGE_MAX_UPLOAD_BYTES")
	if maxUpload <= 0 {
		maxUpload = 25 * 1024 * 1024
	}
	cfg.Storage = StorageConfig{
		Driver:          strings.ToLower(v.GetString("STORAGE_DRIVER")),
		LocalDir:        v.GetString("STORAGE_LOCAL_DIR"),
		MaxUploadBytes:  maxUpload,
		MinioEndpoint:   v.GetString("MINIO_ENDPOINT"),
		MinioAccessKey:  v.GetString("MINIO_ACCESS_KEY"),
		MinioSecretKey:  v.GetString("MINIO_SECRET_KEY"),
		MinioBucket:     v.GetString("MINIO_BUCKET"),
		MinioUseSSL:     v.GetBool("MINIO_USE_SSL"),
		MinioAutoCreate: v.GetBool("MINIO_AUTO_CREATE_BUCKET"),
	}

	cfg.LLM = LLMConfig{
		BaseURL:     v.GetString("LLM_BASE_URL"),
		APIKey:      v.GetString("LLM_API_KEY"),
		Model:       v.GetString("LLM_MODEL"),
		Temperature: float32(v.GetFloat64("LLM_TEMPERATURE")),
		Timeout:     parseDuration(v.GetString("LLM_TIMEOUT"), 2*time.Minute),
	}

	cfg.Generation = GenerationConfig{
		DispatchMode:    strings.ToLower(v.GetString("DISPATCH_MODE")),
		Workers:         v.GetInt("GENERATION_WORKERS"),
		QueueBuffer:     v.GetInt("GENERATION_QUEUE_BUFFER"),
		QueueKey:        v.GetString("GENERATION_QUEUE_KEY"),
		MaxRetries:      v.GetInt("GENERATION_MAX_RETRIES"),
		MaxContextChars: v.GetInt("GENERATION_MAX_CONTEXT_CHARS"),
		RecoverOnStart:  v.GetBool("GENERATION_RECOVER_ON_START"),
	}

	cfg.Reaper = ReaperConfig{
		Enabled:        v.GetBool("REAPER_ENABLED"),
		Interval:       parseDuration(v.GetString("REAPER_INTERVAL"), 5*time.Minute),
		StaleThreshold: parseDuration(v.GetString("REAPER_STALE_THRESHOLD"), 30*time.Minute),
	}

	cfg.Segment = SegmentConfig{
		MaxHeadingChars: v.GetInt("SEGMENT_MAX_HEADING_CHARS"),
		MaxHeadingWords: v.GetInt("SEGMENT_MAX_HEADING_WORDS"),
		FontSizeRatio:   v.GetFloat64("SEGMENT_FONT_RATIO"),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects option values the services cannot run with.
func (c *Config) Validate() error {
	switch c.Storage.Driver {
	case StorageLocal:
	case StorageMinio:
		if c.Storage.MinioEndpoint == "" || c.Storage.MinioBucket == "" {
			return errors.New("MINIO_ENDPOINT and MINIO_BUCKET are required when STORAGE_DRIVER=minio")
		}
	default:
		return errors.New("STORAGE_DRIVER must be one of local, minio")
	}
	switch c.Generation.DispatchMode {
	case DispatchMemory, DispatchRedis, DispatchSync:
	default:
		return errors.New("DISPATCH_MODE must be one of memory, redis, sync")
	}
	if c.Reaper.Enabled && c.Reaper.StaleThreshold <= 0 {
		return errors.New("REAPER_STALE_THRESHOLD must be positive")
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("ENV", EnvDevelopment)
	v.SetDefault("PORT", 8080)
	v.SetDefault("API_PREFIX", "/api/v1")

	v.SetDefault("DB_HOST", "localhost")
	v.SetDefault("DB_PORT", 5432)
	v.SetDefault("DB_USER", "postgres")
	v.SetDefault("DB_PASSWORD", "postgres")
	v.SetDefault("DB_NAME", "qbank")
	v.SetDefault("DB_SSL_MODE", "disable")
	v.SetDefault("DB_MAX_OPEN_CONNS", 10)
	v.SetDefault("DB_MAX_IDLE_CONNS", 5)

	v.SetDefault("REDIS_HOST", "localhost")
	v.SetDefault("REDIS_PORT", 6379)
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)

	v.SetDefault("JWT_SECRET", "dev_secret")

	v.SetDefault("ALLOWED_ORIGINS", "")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")

	v.SetDefault("STORAGE_DRIVER", StorageLocal)
	v.SetDefault("STORAGE_LOCAL_DIR", "./materials")
	v.SetDefault("STORAGE_MAX_UPLOAD_BYTES", 25*1024*1024)
	v.SetDefault("MINIO_ENDPOINT", "")
	v.SetDefault("MINIO_ACCESS_KEY", "")
	v.SetDefault("MINIO_SECRET_KEY", "")
	v.SetDefault("MINIO_BUCKET", "course-materials")
	v.SetDefault("MINIO_USE_SSL", false)
	v.SetDefault("MINIO_AUTO_CREATE_BUCKET", true)

	v.SetDefault("LLM_BASE_URL", "https://api.openai.com/v1")
	v.SetDefault("LLM_API_KEY", "")
	v.SetDefault("LLM_MODEL", "gpt-4o-mini")
	v.SetDefault("LLM_TEMPERATURE", 0.4)
	v.SetDefault("LLM_TIMEOUT", "2m")

	v.SetDefault("DISPATCH_MODE", DispatchMemory)
	v.SetDefault("GENERATION_WORKERS", 2)
	v.SetDefault("GENERATION_QUEUE_BUFFER", 32)
	v.SetDefault("GENERATION_QUEUE_KEY", "qbank:generation-jobs")
	v.SetDefault("GENERATION_MAX_RETRIES", 1)
	v.SetDefault("GENERATION_MAX_CONTEXT_CHARS", 24000)
	v.SetDefault("GENERATION_RECOVER_ON_START", true)

	v.SetDefault("REAPER_ENABLED", true)
	v.SetDefault("REAPER_INTERVAL", "5m")
	v.SetDefault("REAPER_STALE_THRESHOLD", "30m")

	v.SetDefault("SEGMENT_MAX_HEADING_CHARS", 90)
	v.SetDefault("SEGMENT_MAX_HEADING_WORDS", 12)
	v.SetDefault("SEGMENT_FONT_RATIO", 1.15)
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
