package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	Server          ServerConfig              `mapstructure:"server"`
	Database        DatabaseConfig            `mapstructure:"database"`
	State           StateConfig               `mapstructure:"state"`
	JWT             JWTConfig                 `mapstructure:"jwt"`
	Admin           AdminConfig               `mapstructure:"admin"`
	CORS            CORSConfig                `mapstructure:"cors"`
	Log             LogConfig                 `mapstructure:"log"`
	Crypto          CryptoConfig              `mapstructure:"crypto"`
	Verification    VerificationConfig        `mapstructure:"verification"`
	Render          RenderConfig              `mapstructure:"render"`
	Templates       map[string]TemplateConfig `mapstructure:"templates"`
	DefaultTemplate string                    `mapstructure:"default_template"`
	Usage           UsageConfig               `mapstructure:"usage"`
	Batch           BatchConfig               `mapstructure:"batch"`
}

type ServerConfig struct {
	Host                    string        `mapstructure:"host"`
	Port                    int           `mapstructure:"port"`
	Mode                    string        `mapstructure:"mode"`
	ReadTimeout             time.Duration `mapstructure:"read_timeout"`
	WriteTimeout            time.Duration `mapstructure:"write_timeout"`
	GracefulShutdownTimeout time.Duration `mapstructure:"graceful_shutdown_timeout"`
	MaxUploadBytes          int64         `mapstructure:"max_upload_bytes"`
}

type DatabaseConfig struct {
	Postgres PostgresConfig `mapstructure:"postgres"`
	Redis    RedisConfig    `mapstructure:"redis"`
}

type PostgresConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	DB              string        `mapstructure:"db"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	SSLMode         string        `mapstructure:"sslmode"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	AutoMigrate     bool          `mapstructure:"auto_migrate"`
}

type RedisConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	PoolSize int    `mapstructure:"pool_size"`
}

type StateConfig struct {
	Backend string `mapstructure:"backend"` // "redis" | "memory"
}

type JWTConfig struct {
	SigningKey     string        `mapstructure:"signing_key"`
	Issuer         string        `mapstructure:"issuer"`
	AccessTokenTTL time.Duration `mapstructure:"access_token_ttl"`
}

type AdminConfig struct {
	AccountIDs []string `mapstructure:"account_ids"`
}

type CORSConfig struct {
	AllowedOrigins   []string      `mapstructure:"allowed_origins"`
	AllowedMethods   []string      `mapstructure:"allowed_methods"`
	AllowedHeaders   []string      `mapstructure:"allowed_headers"`
	AllowCredentials bool          `mapstructure:"allow_credentials"`
	MaxAge           time.Duration `mapstructure:"max_age"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

type CryptoConfig struct {
	Secret string `mapstructure:"secret"`
	// LegacyPassphrase enables reading payloads written by the previous CBC scheme.
	LegacyPassphrase string `mapstructure:"legacy_passphrase"`
}

type VerificationConfig struct {
	BaseURL string `mapstructure:"base_url"`
}

type RenderConfig struct {
	MinSize  int    `mapstructure:"min_size"`
	MaxSize  int    `mapstructure:"max_size"`
	LogoPath string `mapstructure:"logo_path"`
}

type TemplateConfig struct {
	Size            int     `mapstructure:"size"`
	ForegroundColor string  `mapstructure:"foreground_color"`
	BackgroundColor string  `mapstructure:"background_color"`
	Logo            bool    `mapstructure:"logo"`
	LogoRatio       float64 `mapstructure:"logo_ratio"`
}

// UsageConfig holds plan defaults; zero means unlimited.
type UsageConfig struct {
	LifetimeLimit int64 `mapstructure:"lifetime_limit"`
	MonthlyLimit  int64 `mapstructure:"monthly_limit"`
}

type BatchConfig struct {
	MaxSize        int           `mapstructure:"max_size"`
	LockTTL        time.Duration `mapstructure:"lock_ttl"`
	LockWait       time.Duration `mapstructure:"lock_wait"`
	IdempotencyTTL time.Duration `mapstructure:"idempotency_ttl"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.mode", "release")
	v.SetDefault("server.read_timeout", 15*time.Second)
	v.SetDefault("server.write_timeout", 60*time.Second)
	v.SetDefault("server.graceful_shutdown_timeout", 10*time.Second)
	v.SetDefault("server.max_upload_bytes", 1<<20)

	v.SetDefault("database.postgres.host", "localhost")
	v.SetDefault("database.postgres.port", 5432)
	v.SetDefault("database.postgres.db", "codehub")
	v.SetDefault("database.postgres.user", "codehub")
	v.SetDefault("database.postgres.password", "")
	v.SetDefault("database.postgres.sslmode", "disable")
	v.SetDefault("database.postgres.max_idle_conns", 5)
	v.SetDefault("database.postgres.max_open_conns", 20)
	v.SetDefault("database.postgres.conn_max_lifetime", time.Hour)
	v.SetDefault("database.postgres.auto_migrate", false)

	v.SetDefault("database.redis.host", "localhost")
	v.SetDefault("database.redis.port", 6379)
	v.SetDefault("database.redis.password", "")
	v.SetDefault("database.redis.db", 0)
	v.SetDefault("database.redis.pool_size", 10)

	v.SetDefault("state.backend", "memory")

	v.SetDefault("jwt.signing_key", "")
	v.SetDefault("jwt.issuer", "codehub")
	v.SetDefault("jwt.access_token_ttl", time.Hour)

	v.SetDefault("admin.account_ids", []string{})

	v.SetDefault("cors.allowed_origins", []string{"*"})
	v.SetDefault("cors.allowed_methods", []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"})
	v.SetDefault("cors.allowed_headers", []string{"Authorization", "Content-Type", "Idempotency-Key"})
	v.SetDefault("cors.allow_credentials", false)
	v.SetDefault("cors.max_age", 12*time.Hour)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	v.SetDefault("crypto.secret", "")
	v.SetDefault("crypto.legacy_passphrase", "")

	v.SetDefault("verification.base_url", "")

	v.SetDefault("render.min_size", 128)
	v.SetDefault("render.max_size", 2048)
	v.SetDefault("render.logo_path", "")

	v.SetDefault("templates.classic.size", 512)
	v.SetDefault("default_template", "classic")

	v.SetDefault("usage.lifetime_limit", 0)
	v.SetDefault("usage.monthly_limit", 0)

	v.SetDefault("batch.max_size", 1000)
	v.SetDefault("batch.lock_ttl", 2*time.Minute)
	v.SetDefault("batch.lock_wait", 5*time.Second)
	v.SetDefault("batch.idempotency_ttl", 24*time.Hour)
}

// LoadDotEnv loads a .env file into the process environment.
// It reports false without error when the file does not exist.
func LoadDotEnv(path string) (bool, error) {
	if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	if err := godotenv.Load(path); err != nil {
		return false, fmt.Errorf("load env file %s: %w", path, err)
	}
	return true, nil
}

// Load reads config.yaml, overlays environment variables, and returns Config.
// A missing file leaves defaults and environment in effect.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)
	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	// Environment variable override: DATABASE_POSTGRES_HOST -> database.postgres.host
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks settings the service cannot start without.
func (c *Config) Validate() error {
	var errs []error
	if c.Crypto.Secret == "" {
		errs = append(errs, errors.New("crypto.secret is required"))
	}
	if c.JWT.SigningKey == "" {
		errs = append(errs, errors.New("jwt.signing_key is required"))
	}
	if c.Verification.BaseURL == "" {
		errs = append(errs, errors.New("verification.base_url is required"))
	}
	if _, ok := c.Templates[c.DefaultTemplate]; !ok {
		errs = append(errs, fmt.Errorf("default_template %q is not defined under templates", c.DefaultTemplate))
	}
	if c.Render.MinSize <= 0 || c.Render.MaxSize < c.Render.MinSize {
		errs = append(errs, errors.New("render.min_size and render.max_size must form a positive range"))
	}
	switch c.State.Backend {
	case "redis", "memory":
	default:
		errs = append(errs, fmt.Errorf("state.backend must be redis or memory, got %q", c.State.Backend))
	}
	return errors.Join(errs...)
}
