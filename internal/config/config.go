package config

import (
	"time"

	"github.com/bazaar/bazaar/backend/identity/pkg/logger"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds application configuration
type Config struct {
	Server    ServerConfig
	MongoDB   MongoDBConfig
	Redis     RedisConfig
	JWT       JWTConfig
	Session   SessionConfig
	RateLimit RateLimitConfig
}

type ServerConfig struct {
	Port         string
	Host         string
	Environment  string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// MongoDBConfig is optional: without a URI the user directory and the
// persistent audit trail are disabled.
type MongoDBConfig struct {
	URI      string
	Database string
	Timeout  time.Duration
}

type RedisConfig struct {
	Host     string
	Port     string
	Password string
	DB       int
}

type JWTConfig struct {
	Secret               string
	Issuer               string
	Audience             string
	AccessTokenTTL       time.Duration
	RefreshTokenTTL      time.Duration
	RegistrationTokenTTL time.Duration
}

// SessionConfig bounds device sessions. MaxLifetime is absolute from creation;
// IdleTimeout slides with (throttled) activity.
type SessionConfig struct {
	TTLCeiling       time.Duration
	IdleTimeout      time.Duration
	MaxLifetime      time.Duration
	ActivityThrottle time.Duration
	ClockSkew        time.Duration
}

type RateLimitConfig struct {
	Enabled       bool
	UseRedis      bool
	RPS           float64
	Burst         int
	WindowSeconds int
}

// LoadConfig loads configuration from environment variables and .env file
func LoadConfig() (*Config, error) {
	_ = godotenv.Load(".env")

	viper.AutomaticEnv()

	viper.SetDefault("SERVER_PORT", "5002")
	viper.SetDefault("SERVER_HOST", "0.0.0.0")
	viper.SetDefault("SERVER_ENVIRONMENT", "development")
	viper.SetDefault("MONGODB_DATABASE", "bazaar")
	viper.SetDefault("MONGODB_TIMEOUT", 10)
	viper.SetDefault("REDIS_PORT", "6379")
	viper.SetDefault("REDIS_DB", 0)
	viper.SetDefault("JWT_ISSUER", "bazaar-identity")
	viper.SetDefault("JWT_AUDIENCE", "bazaar-clients")
	viper.SetDefault("JWT_ACCESS_TOKEN_TTL", 60)
	viper.SetDefault("JWT_REFRESH_TOKEN_TTL", 43200)
	viper.SetDefault("JWT_REGISTRATION_TOKEN_TTL", 5)
	viper.SetDefault("SESSION_TTL_CEILING", "720h")
	viper.SetDefault("SESSION_IDLE_TIMEOUT", "720h")
	viper.SetDefault("SESSION_MAX_LIFETIME", "2160h")
	viper.SetDefault("SESSION_ACTIVITY_THROTTLE", "5m")
	viper.SetDefault("SESSION_CLOCK_SKEW", "60s")
	viper.SetDefault("RATE_LIMIT_ENABLED", true)
	viper.SetDefault("RATE_LIMIT_USE_REDIS", true)
	viper.SetDefault("RATE_LIMIT_RPS", 5)
	viper.SetDefault("RATE_LIMIT_BURST", 10)
	viper.SetDefault("RATE_LIMIT_WINDOW_SECONDS", 60)

	cfg := &Config{
		Server: ServerConfig{
			Port:         viper.GetString("SERVER_PORT"),
			Host:         viper.GetString("SERVER_HOST"),
			Environment:  viper.GetString("SERVER_ENVIRONMENT"),
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 30 * time.Second,
		},
		MongoDB: MongoDBConfig{
			URI:      viper.GetString("MONGODB_URI"),
			Database: viper.GetString("MONGODB_DATABASE"),
			Timeout:  time.Duration(viper.GetInt("MONGODB_TIMEOUT")) * time.Second,
		},
		Redis: RedisConfig{
			Host:     viper.GetString("REDIS_HOST"),
			Port:     viper.GetString("REDIS_PORT"),
			Password: viper.GetString("REDIS_PASSWORD"),
			DB:       viper.GetInt("REDIS_DB"),
		},
		JWT: JWTConfig{
			Secret:               viper.GetString("JWT_SECRET"),
			Issuer:               viper.GetString("JWT_ISSUER"),
			Audience:             viper.GetString("JWT_AUDIENCE"),
			AccessTokenTTL:       time.Duration(viper.GetInt("JWT_ACCESS_TOKEN_TTL")) * time.Minute,
			RefreshTokenTTL:      time.Duration(viper.GetInt("JWT_REFRESH_TOKEN_TTL")) * time.Minute,
			RegistrationTokenTTL: time.Duration(viper.GetInt("JWT_REGISTRATION_TOKEN_TTL")) * time.Minute,
		},
		Session: SessionConfig{
			TTLCeiling:       viper.GetDuration("SESSION_TTL_CEILING"),
			IdleTimeout:      viper.GetDuration("SESSION_IDLE_TIMEOUT"),
			MaxLifetime:      viper.GetDuration("SESSION_MAX_LIFETIME"),
			ActivityThrottle: viper.GetDuration("SESSION_ACTIVITY_THROTTLE"),
			ClockSkew:        viper.GetDuration("SESSION_CLOCK_SKEW"),
		},
		RateLimit: RateLimitConfig{
			Enabled:       viper.GetBool("RATE_LIMIT_ENABLED"),
			UseRedis:      viper.GetBool("RATE_LIMIT_USE_REDIS"),
			RPS:           viper.GetFloat64("RATE_LIMIT_RPS"),
			Burst:         viper.GetInt("RATE_LIMIT_BURST"),
			WindowSeconds: viper.GetInt("RATE_LIMIT_WINDOW_SECONDS"),
		},
	}

	// Basic validation
	if cfg.JWT.Secret == "" {
		logger.Warn("JWT_SECRET is not set; set a secure value in production")
	}
	if cfg.Session.IdleTimeout > cfg.Session.TTLCeiling {
		logger.Warnf("SESSION_IDLE_TIMEOUT (%s) exceeds SESSION_TTL_CEILING (%s); clamping", cfg.Session.IdleTimeout, cfg.Session.TTLCeiling)
		cfg.Session.IdleTimeout = cfg.Session.TTLCeiling
	}

	return cfg, nil
}

// Defaults returns the configuration used when nothing is set in the
// environment. Tests build on it instead of calling LoadConfig.
func Defaults() *Config {
	return &Config{
		Server: ServerConfig{Port: "5002", Host: "0.0.0.0", Environment: "test"},
		JWT: JWTConfig{
			Issuer:               "bazaar-identity",
			Audience:             "bazaar-clients",
			AccessTokenTTL:       time.Hour,
			RefreshTokenTTL:      30 * 24 * time.Hour,
			RegistrationTokenTTL: 5 * time.Minute,
		},
		Session: SessionConfig{
			TTLCeiling:       30 * 24 * time.Hour,
			IdleTimeout:      30 * 24 * time.Hour,
			MaxLifetime:      90 * 24 * time.Hour,
			ActivityThrottle: 5 * time.Minute,
			ClockSkew:        60 * time.Second,
		},
		RateLimit: RateLimitConfig{RPS: 5, Burst: 10, WindowSeconds: 60},
	}
}
