package configs

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	EnvLocal = "local"
	EnvDev   = "dev"
	EnvProd  = "prod"
)

type Config struct {
	Env        string
	ServerPort string

	DatabaseURL  string
	ReadReplicas int
	RedisURL     string

	JWTSecret       string
	JWTTTL          time.Duration
	AdminAPIKeyHash string

	RateLimitPolicy      string
	RateLimitWindow      time.Duration
	RateLimitMaxRequests int
	RateLimitShared      bool
	SweepInterval        time.Duration
	AutoRegister         bool

	CacheTTL        time.Duration
	UploadDir       string
	MaxUploadBytes  int64
	EnableWebSocket bool
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("APP_ENV", EnvLocal)
	v.SetDefault("SERVER_PORT", "3000")
	v.SetDefault("DATABASE_URL", "root:password@tcp(localhost:3306)/device_ingest?charset=utf8mb4&parseTime=True&loc=UTC")
	v.SetDefault("READ_REPLICAS", 0)
	v.SetDefault("REDIS_URL", "localhost:6379")
	v.SetDefault("JWT_SECRET", "")
	v.SetDefault("JWT_TTL", "1h")
	v.SetDefault("ADMIN_API_KEY_HASH", "")
	v.SetDefault("RATE_LIMIT_POLICY", "sliding")
	v.SetDefault("RATE_LIMIT_WINDOW", "1m")
	v.SetDefault("RATE_LIMIT_MAX_REQUESTS", 100)
	v.SetDefault("RATE_LIMIT_SHARED", false)
	v.SetDefault("SWEEP_INTERVAL", "5m")
	v.SetDefault("AUTO_REGISTER", true)
	v.SetDefault("CACHE_TTL", "30s")
	v.SetDefault("UPLOAD_DIR", "uploads")
	v.SetDefault("MAX_UPLOAD_BYTES", 50<<20)
	v.SetDefault("ENABLE_WEBSOCKET", true)
}

// LoadConfig reads an optional .env file and then the process environment.
func LoadConfig() (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.AutomaticEnv()
	setDefaults(v)

	cfg := &Config{
		Env:                  strings.ToLower(v.GetString("APP_ENV")),
		ServerPort:           v.GetString("SERVER_PORT"),
		DatabaseURL:          v.GetString("DATABASE_URL"),
		ReadReplicas:         v.GetInt("READ_REPLICAS"),
		RedisURL:             v.GetString("REDIS_URL"),
		JWTSecret:            v.GetString("JWT_SECRET"),
		JWTTTL:               v.GetDuration("JWT_TTL"),
		AdminAPIKeyHash:      v.GetString("ADMIN_API_KEY_HASH"),
		RateLimitPolicy:      strings.ToLower(v.GetString("RATE_LIMIT_POLICY")),
		RateLimitWindow:      v.GetDuration("RATE_LIMIT_WINDOW"),
		RateLimitMaxRequests: v.GetInt("RATE_LIMIT_MAX_REQUESTS"),
		RateLimitShared:      v.GetBool("RATE_LIMIT_SHARED"),
		SweepInterval:        v.GetDuration("SWEEP_INTERVAL"),
		AutoRegister:         v.GetBool("AUTO_REGISTER"),
		CacheTTL:             v.GetDuration("CACHE_TTL"),
		UploadDir:            v.GetString("UPLOAD_DIR"),
		MaxUploadBytes:       v.GetInt64("MAX_UPLOAD_BYTES"),
		EnableWebSocket:      v.GetBool("ENABLE_WEBSOCKET"),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that the configuration is coherent.
func (c *Config) Validate() error {
	var errs []error

	switch c.Env {
	case EnvLocal, EnvDev, EnvProd:
	default:
		errs = append(errs, fmt.Errorf("invalid APP_ENV %q: must be %s, %s or %s", c.Env, EnvLocal, EnvDev, EnvProd))
	}
	if port, err := strconv.Atoi(c.ServerPort); err != nil || port < 1 || port > 65535 {
		errs = append(errs, fmt.Errorf("invalid SERVER_PORT %q: must be in range 1..65535", c.ServerPort))
	}
	if c.DatabaseURL == "" {
		errs = append(errs, errors.New("invalid DATABASE_URL: must not be empty"))
	}
	if c.ReadReplicas < 0 {
		errs = append(errs, errors.New("invalid READ_REPLICAS: must be >= 0"))
	}
	if c.JWTSecret == "" {
		errs = append(errs, errors.New("invalid JWT_SECRET: must not be empty"))
	}
	if c.JWTTTL <= 0 {
		errs = append(errs, errors.New("invalid JWT_TTL: must be > 0"))
	}
	if c.RateLimitPolicy != "sliding" && c.RateLimitPolicy != "fixed" {
		errs = append(errs, fmt.Errorf("invalid RATE_LIMIT_POLICY %q: must be sliding or fixed", c.RateLimitPolicy))
	}
	if c.RateLimitWindow <= 0 {
		errs = append(errs, errors.New("invalid RATE_LIMIT_WINDOW: must be > 0"))
	}
	if c.RateLimitMaxRequests <= 0 {
		errs = append(errs, errors.New("invalid RATE_LIMIT_MAX_REQUESTS: must be > 0"))
	}
	if c.SweepInterval <= 0 {
		errs = append(errs, errors.New("invalid SWEEP_INTERVAL: must be > 0"))
	}
	if c.UploadDir == "" {
		errs = append(errs, errors.New("invalid UPLOAD_DIR: must not be empty"))
	}
	if c.MaxUploadBytes <= 0 {
		errs = append(errs, errors.New("invalid MAX_UPLOAD_BYTES: must be > 0"))
	}

	return errors.Join(errs...)
}
