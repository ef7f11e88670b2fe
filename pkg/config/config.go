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

	Database   DatabaseConfig
	Redis      RedisConfig
	JWT        JWTConfig
	CORS       CORSConfig
	Log        LogConfig
	Thresholds ThresholdsConfig
	Evolution  EvolutionConfig
	GenAI      GenAIConfig
	Summary    SummaryConfig
	Exports    ExportsConfig
	Storage    StorageConfig
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
	Secret            string
	Expiration        time.Duration
	RefreshExpiration time.Duration
}

type CORSConfig struct {
	AllowedOrigins []string
}

type LogConfig struct {
	Level  string
	Format string
}

// ThresholdsConfig holds the default step thresholds applied to pets whose
// owner has not tuned their own boundaries yet.
type ThresholdsConfig struct {
	DefaultSad    int
	DefaultActive int
}

// EvolutionConfig governs evolution eligibility and the generation worker.
type EvolutionConfig struct {
	Enabled      bool
	DaysRequired int
	QueueBuffer  int
}

// GenAIConfig configures the appearance image generator.
type GenAIConfig struct {
	Enabled bool
	APIKey  string
	Model   string
	Size    string
	Timeout time.Duration
}

// SummaryConfig tunes caching for mood summary reads.
type SummaryConfig struct {
	CacheTTL time.Duration
}

// ExportsConfig controls mood-history export generation.
type ExportsConfig struct {
	Enabled bool
}

// StorageConfig controls the local file store shared by exports and
// generated appearance images, and the signing of download links.
type StorageConfig struct {
	Dir             string
	SignedURLSecret string
	SignedURLTTL    time.Duration
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

	cfg.JWT = JWTConfig{
		Secret:            v.GetString("JWT_SECRET"),
		Expiration:        parseDuration(v.GetString("JWT_EXPIRATION"), 24*time.Hour),
		RefreshExpiration: parseDuration(v.GetString("REFRESH_TOKEN_EXPIRATION"), 7*24*time.Hour),
	}

	cfg.CORS = CORSConfig{AllowedOrigins: splitAndTrim(v.GetString("ALLOWED_ORIGINS"))}

	cfg.Log = LogConfig{
		Level:  v.GetString("LOG_LEVEL"),
		Format: v.GetString("LOG_FORMAT"),
	}

	cfg.Thresholds = ThresholdsConfig{
		DefaultSad:    v.GetInt("THRESHOLD_DEFAULT_SAD"),
		DefaultActive: v.GetInt("THRESHOLD_DEFAULT_ACTIVE"),
	}

	cfg.Evolution = EvolutionConfig{
		Enabled:      v.GetBool("ENABLE_EVOLUTION"),
		DaysRequired: v.GetInt("EVOLUTION_DAYS_REQUIRED"),
		QueueBuffer:  v.GetInt("EVOLUTION_QUEUE_BUFFER"),
	}

	cfg.GenAI = GenAIConfig{
		Enabled: v.GetBool("ENABLE_GENAI"),
		APIKey:  v.GetString("OPENAI_API_KEY"),
		Model:   v.GetString("GENAI_IMAGE_MODEL"),
		Size:    v.GetString("GENAI_IMAGE_SIZE"),
		Timeout: parseDuration(v.GetString("GENAI_TIMEOUT"), 90*time.Second),
	}

	cfg.Summary = SummaryConfig{
		CacheTTL: parseDuration(v.GetString("SUMMARY_CACHE_TTL"), 10*time.Minute),
	}

	cfg.Exports = ExportsConfig{
		Enabled: v.GetBool("ENABLE_EXPORTS"),
	}

	cfg.Storage = StorageConfig{
		Dir:             v.GetString("STORAGE_DIR"),
		SignedURLSecret: v.GetString("SIGNED_URL_SECRET"),
		SignedURLTTL:    parseDuration(v.GetString("SIGNED_URL_TTL"), 24*time.Hour),
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("ENV", EnvDevelopment)
	v.SetDefault("PORT", 8080)
	v.SetDefault("API_PREFIX", "/api/v1")

	v.SetDefault("DB_HOST", "localhost")
	v.SetDefault("DB_PORT", 5432)
	v.SetDefault("DB_USER", "postgres")
	v.SetDefault("DB_PASSWORD", "postgres")
	v.SetDefault("DB_NAME", "symbi")
	v.SetDefault("DB_SSL_MODE", "disable")
	v.SetDefault("DB_MAX_OPEN_CONNS", 10)
	v.SetDefault("DB_MAX_IDLE_CONNS", 5)

	v.SetDefault("REDIS_HOST", "localhost")
	v.SetDefault("REDIS_PORT", 6379)
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)

	v.SetDefault("JWT_SECRET", "dev_secret")
	v.SetDefault("JWT_EXPIRATION", "24h")
	v.SetDefault("REFRESH_TOKEN_EXPIRATION", "168h")

	v.SetDefault("ALLOWED_ORIGINS", "")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")

	v.SetDefault("THRESHOLD_DEFAULT_SAD", 2000)
	v.SetDefault("THRESHOLD_DEFAULT_ACTIVE", 8000)

	v.SetDefault("ENABLE_EVOLUTION", true)
	v.SetDefault("EVOLUTION_DAYS_REQUIRED", 30)
	v.SetDefault("EVOLUTION_QUEUE_BUFFER", 8)

	v.SetDefault("ENABLE_GENAI", false)
	v.SetDefault("OPENAI_API_KEY", "")
	v.SetDefault("GENAI_IMAGE_MODEL", "dall-e-3")
	v.SetDefault("GENAI_IMAGE_SIZE", "1024x1024")
	v.SetDefault("GENAI_TIMEOUT", "90s")

	v.SetDefault("SUMMARY_CACHE_TTL", "10m")

	v.SetDefault("ENABLE_EXPORTS", true)
	v.SetDefault("STORAGE_DIR", "./data")
	v.SetDefault("SIGNED_URL_SECRET", "dev_download_secret")
	v.SetDefault("SIGNED_URL_TTL", "24h")
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
