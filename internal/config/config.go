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
	Database DatabaseConfig
	Redis    RedisConfig
	Server   ServerConfig
	Auth     AuthConfig
	Email    EmailConfig
}

type DatabaseConfig struct {
	Host              string
	Port              int
	User              string
	Password          string
	Name              string
	SSLMode           string
	MaxConns          int32
	MinConns          int32
	MaxConnLifetime   time.Duration
	MaxConnIdleTime   time.Duration
	HealthCheckPeriod time.Duration
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

type ServerConfig struct {
	Port           string
	Env            string
	LogLevel       string
	AllowedOrigins []string
	TrustedProxies []string
	// Requests per minute per client IP on credential-accepting routes,
	// and per user on authenticated routes.
	AuthRateLimit int
	UserRateLimit int
	ReadTimeout   time.Duration
	WriteTimeout  time.Duration
	IdleTimeout   time.Duration
}

type AuthConfig struct {
	JWTSecret          string
	LinkTokenSecret    string
	AccessTokenExpiry  time.Duration
	RefreshTokenExpiry time.Duration
	CleanupInterval    time.Duration

	OTPLength      int
	OTPExpiry      time.Duration
	OTPMaxAttempts int

	MagicLinkExpiry     time.Duration
	PasswordResetExpiry time.Duration
	ConfirmationExpiry  time.Duration

	// StorageTimeout bounds every store and channel call made on behalf of a request.
	StorageTimeout time.Duration

	TimingDelayBaseMs   int
	TimingDelayRandomMs int

	BcryptCost   int
	CookieDomain string
}

type EmailConfig struct {
	AWSRegion   string
	FromAddress string
	AppBaseURL  string
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	jwtSecret := getEnv("JWT_SECRET", "")
	if jwtSecret == "" {
		return nil, fmt.Errorf("JWT_SECRET is required")
	}

	linkSecret := getEnv("LINK_TOKEN_SECRET", "")
	if linkSecret == "" {
		return nil, fmt.Errorf("LINK_TOKEN_SECRET is required")
	}

	env := getEnv("ENV", "development")

	cfg := &Config{
		Database: DatabaseConfig{
			Host:              getEnv("DB_HOST", "localhost"),
			Port:              getEnvAsInt("DB_PORT", 5432),
			User:              getEnv("DB_USER", "postgres"),
			Password:          getEnv("DB_PASSWORD", ""),
			Name:              getEnv("DB_NAME", "cadence"),
			SSLMode:           getEnv("DB_SSLMODE", "disable"),
			MaxConns:          int32(getEnvAsInt("DB_MAX_CONNS", 25)),
			MinConns:          int32(getEnvAsInt("DB_MIN_CONNS", 5)),
			MaxConnLifetime:   getEnvAsDuration("DB_MAX_CONN_LIFETIME", 5*time.Minute),
			MaxConnIdleTime:   getEnvAsDuration("DB_MAX_CONN_IDLE_TIME", 1*time.Minute),
			HealthCheckPeriod: getEnvAsDuration("DB_HEALTH_CHECK_PERIOD", 1*time.Minute),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", "localhost:6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvAsInt("REDIS_DB", 0),
		},
		Server: ServerConfig{
			Port:           getEnv("PORT", "8080"),
			Env:            env,
			LogLevel:       getEnv("LOG_LEVEL", "info"),
			AllowedOrigins: parseAllowedOrigins(env),
			TrustedProxies: splitList(getEnv("TRUSTED_PROXIES", "")),
			AuthRateLimit:  getEnvAsInt("AUTH_RATE_LIMIT_PER_MINUTE", 10),
			UserRateLimit:  getEnvAsInt("USER_RATE_LIMIT_PER_MINUTE", 120),
			ReadTimeout:    getEnvAsDuration("SERVER_READ_TIMEOUT", 15*time.Second),
			WriteTimeout:   getEnvAsDuration("SERVER_WRITE_TIMEOUT", 15*time.Second),
			IdleTimeout:    getEnvAsDuration("SERVER_IDLE_TIMEOUT", 60*time.Second),
		},
		Auth: AuthConfig{
			JWTSecret:           jwtSecret,
			LinkTokenSecret:     linkSecret,
			AccessTokenExpiry:   getEnvAsDuration("ACCESS_TOKEN_EXPIRY", 15*time.Minute),
			RefreshTokenExpiry:  getEnvAsDuration("REFRESH_TOKEN_EXPIRY", 30*24*time.Hour),
			CleanupInterval:     getEnvAsDuration("TOKEN_CLEANUP_INTERVAL", 1*time.Hour),
			OTPLength:           getEnvAsInt("OTP_LENGTH", 6),
			OTPExpiry:           getEnvAsDuration("OTP_EXPIRY", 5*time.Minute),
			OTPMaxAttempts:      getEnvAsInt("OTP_MAX_ATTEMPTS", 5),
			MagicLinkExpiry:     getEnvAsDuration("MAGIC_LINK_EXPIRY", 15*time.Minute),
			PasswordResetExpiry: getEnvAsDuration("PASSWORD_RESET_EXPIRY", 30*time.Minute),
			ConfirmationExpiry:  getEnvAsDuration("CONFIRMATION_EXPIRY", 24*time.Hour),
			StorageTimeout:      getEnvAsDuration("STORAGE_TIMEOUT", 3*time.Second),
			TimingDelayBaseMs:   getEnvAsInt("TIMING_DELAY_BASE_MS", 500),
			TimingDelayRandomMs: getEnvAsInt("TIMING_DELAY_RANDOM_MS", 100),
			BcryptCost:          getEnvAsInt("BCRYPT_COST", 12),
			CookieDomain:        getEnv("COOKIE_DOMAIN", ""),
		},
		Email: EmailConfig{
			AWSRegion:   getEnv("AWS_REGION", "us-east-1"),
			FromAddress: getEnv("EMAIL_FROM_ADDRESS", "no-reply@cadence.local"),
			AppBaseURL:  strings.TrimRight(getEnv("APP_BASE_URL", "http://localhost:5173"), "/"),
		},
	}

	if cfg.Database.Password == "" {
		return nil, fmt.Errorf("DB_PASSWORD is required")
	}

	if err := validateSecret("JWT_SECRET", jwtSecret, env); err != nil {
		return nil, err
	}
	if err := validateSecret("LINK_TOKEN_SECRET", linkSecret, env); err != nil {
		return nil, err
	}
	if linkSecret == jwtSecret {
		return nil, fmt.Errorf("LINK_TOKEN_SECRET must differ from JWT_SECRET")
	}

	if cfg.Auth.OTPLength < 6 || cfg.Auth.OTPLength > 8 {
		return nil, fmt.Errorf("OTP_LENGTH must be between 6 and 8 (got %d)", cfg.Auth.OTPLength)
	}
	if cfg.Auth.OTPMaxAttempts < 1 {
		return nil, fmt.Errorf("OTP_MAX_ATTEMPTS must be positive (got %d)", cfg.Auth.OTPMaxAttempts)
	}

	if cfg.Auth.BcryptCost < 10 && env == "production" {
		return nil, fmt.Errorf("BCRYPT_COST must be at least 10 in production (got %d)", cfg.Auth.BcryptCost)
	}

	return cfg, nil
}

// validateSecret enforces minimum security standards for signing secrets
func validateSecret(name, secret, env string) error {
	minLength := 16
	if env == "production" {
		minLength = 32 // 256 bits
	}

	if len(secret) < minLength {
		return fmt.Errorf("%s must be at least %d characters in %s environment (got %d)",
			name, minLength, env, len(secret))
	}

	weakSecrets := []string{
		"secret", "test", "password", "12345", "changeme",
		"admin", "root", "default", "example",
	}

	secretLower := strings.ToLower(secret)
	for _, weak := range weakSecrets {
		if secretLower == weak {
			return fmt.Errorf("%s cannot be a common weak value", name)
		}
	}

	return nil
}

func (c *DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Name, c.SSLMode,
	)
}

func getEnv(key, defaultVal string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultVal
}

func getEnvAsInt(key string, defaultVal int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultVal
}

func getEnvAsDuration(key string, defaultVal time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultVal
}

func splitList(s string) []string {
	if s == "" {
		return []string{}
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func parseAllowedOrigins(env string) []string {
	if env == "production" {
		return splitList(getEnv("ALLOWED_ORIGINS", ""))
	}

	// Development: allow localhost variants
	return []string{
		"http://localhost:3000",
		"http://localhost:8080",
		"http://localhost:5173", // Vite default
		"http://127.0.0.1:3000",
		"http://127.0.0.1:8080",
		"http://127.0.0.1:5173",
	}
}
