package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ManuelReschke/zalohook/internal/pkg/env"
	"github.com/ManuelReschke/zalohook/internal/pkg/signature"
)

const (
	DefaultSignatureHeader = "X-ZEvent-Signature"
	DefaultMaxPayloadBytes = 1_000_000
)

// Config contains runtime configuration required by the service.
type Config struct {
	Host       string
	Port       string
	AppEnv     string
	TrustProxy bool

	Zalo      ZaloConfig
	RateLimit RateLimitConfig
	Database  DatabaseConfig
	Cache     CacheConfig
	Admin     AdminConfig

	MaxPayloadBytes int
}

type ZaloConfig struct {
	AppID              string
	SecretKey          string
	SignatureHeader    string
	SignatureScheme    signature.Scheme
	TimestampTolerance time.Duration
	SkipVerification   bool
}

type RateLimitConfig struct {
	Limit   int
	Window  time.Duration
	Timeout time.Duration
}

type DatabaseConfig struct {
	Driver      string
	Host        string
	Port        string
	User        string
	Password    string
	Name        string
	AutoMigrate bool
	Timeout     time.Duration
}

type CacheConfig struct {
	URL      string
	Host     string
	Port     string
	Password string
	DB       int
}

// AdminConfig guards the inspection API. An empty PasswordHash disables it.
type AdminConfig struct {
	User         string
	PasswordHash string
}

func (a AdminConfig) Enabled() bool {
	return a.User != "" && a.PasswordHash != ""
}

// Load reads the configuration from the loaded .env map and the process
// environment.
func Load() (Config, error) {
	scheme, err := signature.ParseScheme(env.GetEnv("WEBHOOK_SIGNATURE_SCHEME", string(signature.SchemeHMACSHA256)))
	if err != nil {
		return Config{}, err
	}

	cfg := Config{
		Host:       env.GetEnv("APP_HOST", "0.0.0.0"),
		Port:       env.GetEnv("APP_PORT", "4000"),
		AppEnv:     env.GetEnv("APP_ENV", "prod"),
		TrustProxy: env.GetBool("TRUST_PROXY", false),
		Zalo: ZaloConfig{
			AppID:              strings.TrimSpace(env.GetEnv("ZALO_APP_ID", "")),
			SecretKey:          env.GetEnv("ZALO_OA_SECRET_KEY", ""),
			SignatureHeader:    env.GetEnv("WEBHOOK_SIGNATURE_HEADER", DefaultSignatureHeader),
			SignatureScheme:    scheme,
			TimestampTolerance: time.Duration(env.GetInt("WEBHOOK_TIMESTAMP_TOLERANCE", 300)) * time.Second,
			SkipVerification:   env.GetBool("SKIP_SIGNATURE_VERIFICATION", false),
		},
		RateLimit: RateLimitConfig{
			Limit:   env.GetInt("RATE_LIMIT_PER_MINUTE", 100),
			Window:  time.Duration(env.GetInt("RATE_LIMIT_WINDOW", 60)) * time.Second,
			Timeout: time.Duration(env.GetInt("RATE_LIMIT_TIMEOUT_MS", 2000)) * time.Millisecond,
		},
		Database: LoadDatabase(),
		Cache: CacheConfig{
			URL:      env.GetEnv("CACHE_URL", ""),
			Host:     env.GetEnv("CACHE_HOST", "localhost"),
			Port:     env.GetEnv("CACHE_PORT", "6379"),
			Password: env.GetEnv("CACHE_PASSWORD", ""),
			DB:       env.GetInt("CACHE_DB", 0),
		},
		Admin: AdminConfig{
			User:         env.GetEnv("ADMIN_USER", "admin"),
			PasswordHash: env.GetEnv("ADMIN_PASSWORD_HASH", ""),
		},
		MaxPayloadBytes: env.GetInt("MAX_PAYLOAD_BYTES", DefaultMaxPayloadBytes),
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// LoadDatabase reads only the event store settings, for tools that do not
// need webhook credentials.
func LoadDatabase() DatabaseConfig {
	db := DatabaseConfig{
		Driver:      strings.ToLower(env.GetEnv("DB_DRIVER", "mysql")),
		Host:        env.GetEnv("DB_HOST", "127.0.0.1"),
		Port:        env.GetEnv("DB_PORT", ""),
		User:        env.GetEnv("DB_USER", "zalohook"),
		Password:    env.GetEnv("DB_PASSWORD", ""),
		Name:        env.GetEnv("DB_NAME", "zalohook_db"),
		AutoMigrate: env.GetBool("DB_AUTO_MIGRATE", true),
		Timeout:     time.Duration(env.GetInt("STORE_TIMEOUT_MS", 5000)) * time.Millisecond,
	}
	if db.Port == "" {
		db.Port = defaultDBPort(db.Driver)
	}
	return db
}

// Validate rejects configurations the service cannot run safely with.
func (c Config) Validate() error {
	var errs []error

	if c.Zalo.SkipVerification {
		if c.AppEnv != "dev" {
			errs = append(errs, errors.New("SKIP_SIGNATURE_VERIFICATION is only allowed with APP_ENV=dev"))
		}
	} else {
		if c.Zalo.AppID == "" {
			errs = append(errs, errors.New("ZALO_APP_ID required"))
		}
		if c.Zalo.SecretKey == "" {
			errs = append(errs, errors.New("ZALO_OA_SECRET_KEY required"))
		}
	}
	if strings.TrimSpace(c.Zalo.SignatureHeader) == "" {
		errs = append(errs, errors.New("WEBHOOK_SIGNATURE_HEADER must not be empty"))
	}
	if c.Zalo.TimestampTolerance <= 0 {
		errs = append(errs, errors.New("WEBHOOK_TIMESTAMP_TOLERANCE must be positive"))
	}
	if c.RateLimit.Limit <= 0 {
		errs = append(errs, errors.New("RATE_LIMIT_PER_MINUTE must be positive"))
	}
	if c.RateLimit.Window <= 0 {
		errs = append(errs, errors.New("RATE_LIMIT_WINDOW must be positive"))
	}
	if c.MaxPayloadBytes <= 0 {
		errs = append(errs, errors.New("MAX_PAYLOAD_BYTES must be positive"))
	}
	switch c.Database.Driver {
	case "mysql", "postgres":
	default:
		errs = append(errs, fmt.Errorf("DB_DRIVER %q is not supported (mysql, postgres)", c.Database.Driver))
	}

	return errors.Join(errs...)
}

func (c Config) ListenAddr() string {
	return fmt.Sprintf("%s:%s", c.Host, c.Port)
}

func defaultDBPort(driver string) string {
	if driver == "postgres" {
		return "5432"
	}
	return "3306"
}
