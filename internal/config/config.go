package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Database  DatabaseConfig  `mapstructure:"db"`
	Redis     RedisConfig     `mapstructure:"redis"`
	Auth      AuthConfig      `mapstructure:"auth"`
	Generator GeneratorConfig `mapstructure:"openai"`
	Client    ClientConfig    `mapstructure:"kanso"`
}

type ServerConfig struct {
	Port           string        `mapstructure:"port"`
	AllowedOrigins []string      `mapstructure:"allowed_origins"`
	RateLimit      int           `mapstructure:"rate_limit"`
	RateWindow     time.Duration `mapstructure:"rate_window"`
}

type DatabaseConfig struct {
	Host     string `mapstructure:"host"`
	Port     string `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	Name     string `mapstructure:"name"`
	// Driver empty means the in-memory repositories.
	Driver string `mapstructure:"driver"`
}

func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=disable",
		d.User, d.Password, d.Host, d.Port, d.Name)
}

type RedisConfig struct {
	Host     string `mapstructure:"host"`
	Port     string `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	Enabled  bool   `mapstructure:"enabled"`
}

type AuthConfig struct {
	JWTSecret       string        `mapstructure:"jwt_secret"`
	Issuer          string        `mapstructure:"jwt_issuer"`
	TokenTTL        time.Duration `mapstructure:"token_ttl"`
	VerificationKey string        `mapstructure:"verification_key"`
}

type GeneratorConfig struct {
	APIKey        string  `mapstructure:"api_key"`
	BaseURL       string  `mapstructure:"base_url"`
	Model         string  `mapstructure:"model"`
	RatePerMinute float64 `mapstructure:"rate_per_minute"`
	CacheSize     int     `mapstructure:"cache_size"`
}

// ClientConfig drives the local replica CLI.
type ClientConfig struct {
	RemoteURL    string        `mapstructure:"remote_url"`
	Token        string        `mapstructure:"token"`
	UserID       string        `mapstructure:"user_id"`
	DataDir      string        `mapstructure:"data_dir"`
	SyncInterval time.Duration `mapstructure:"sync_interval"`
}

var ErrMissingJWTSecret = errors.New("config: JWT_SECRET is required")

// Load reads .env (if present), an optional config file and the environment.
// Environment keys are the upper-cased paths with dots replaced: DB_HOST,
// REDIS_PORT, AUTH_JWT_SECRET. A few legacy names are bound explicitly.
func Load(configFile string) (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	setDefaults(v)

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for key, env := range map[string]string{
		"server.port":           "PORT",
		"auth.jwt_secret":       "JWT_SECRET",
		"auth.verification_key": "ENTITLEMENT_VERIFICATION_KEY",
		"openai.api_key":        "OPENAI_API_KEY",
		"kanso.remote_url":      "KANSO_REMOTE_URL",
		"kanso.data_dir":        "KANSO_DATA_DIR",
		"kanso.token":           "KANSO_TOKEN",
		"kanso.user_id":         "KANSO_USER_ID",
	} {
		if err := v.BindEnv(key, env); err != nil {
			return nil, fmt.Errorf("config: bind %s: %w", env, err)
		}
	}

	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("config: error reading %s: %w", configFile, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("config: error unmarshalling: %w", err)
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", "8080")
	v.SetDefault("server.allowed_origins", []string{"*"})
	v.SetDefault("server.rate_limit", 120)
	v.SetDefault("server.rate_window", time.Minute)

	v.SetDefault("db.host", "localhost")
	v.SetDefault("db.port", "5432")
	v.SetDefault("db.user", "kanso_user")
	v.SetDefault("db.password", "secret")
	v.SetDefault("db.name", "kanso_db")
	v.SetDefault("db.driver", "pgx")

	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", "6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.enabled", true)

	v.SetDefault("auth.jwt_secret", "")
	v.SetDefault("auth.jwt_issuer", "kanso-resilience-engine")
	v.SetDefault("auth.token_ttl", 24*time.Hour)
	v.SetDefault("auth.verification_key", "")

	v.SetDefault("openai.api_key", "")
	v.SetDefault("openai.base_url", "")
	v.SetDefault("openai.model", "gpt-4o-mini")
	v.SetDefault("openai.rate_per_minute", 20.0)
	v.SetDefault("openai.cache_size", 256)

	v.SetDefault("kanso.remote_url", "http://localhost:8080")
	v.SetDefault("kanso.token", "")
	v.SetDefault("kanso.user_id", "")
	v.SetDefault("kanso.data_dir", "")
	v.SetDefault("kanso.sync_interval", time.Minute)
}

// ValidateServer checks the settings the API server cannot start without.
func (c *Config) ValidateServer() error {
	if c.Auth.JWTSecret == "" {
		return ErrMissingJWTSecret
	}
	return nil
}
