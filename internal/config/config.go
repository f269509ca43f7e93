package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Redis    RedisConfig
	JWT      JWTConfig
	Security SecurityConfig
	SMTP     SMTPConfig
	CORS     CORSConfig
	Logging  LoggingConfig
}

type ServerConfig struct {
	Port string
	Host string
	Env  string
}

type DatabaseConfig struct {
	Host     string
	Port     string
	User     string
	Password string
	Name     string
}

// RedisConfig points at the reset-token ledger. An empty Addr disables it.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// KeyMaterial holds a PEM key pair given inline or as file paths. Inline
// values win.
type KeyMaterial struct {
	PrivateKey     string
	PublicKey      string
	PrivateKeyFile string
	PublicKeyFile  string
}

type JWTConfig struct {
	Issuer         string
	Access         KeyMaterial
	Reset          KeyMaterial
	AccessLifetime time.Duration
	ResetLifetime  time.Duration
}

type SecurityConfig struct {
	BcryptCost int
	// ResetURL is the page that receives ?token=<reset token>.
	ResetURL string
}

type SMTPConfig struct {
	Host     string
	Port     string
	Username string
	Password string
	From     string
}

type CORSConfig struct {
	AllowedOrigins string
	AllowedMethods string
	AllowedHeaders string
}

type LoggingConfig struct {
	Level string
}

func Load() (*Config, error) {
	godotenv.Load()

	accessLifetime, err := time.ParseDuration(getEnv("JWT_ACCESS_EXPIRATION", "15m"))
	if err != nil {
		return nil, fmt.Errorf("invalid JWT_ACCESS_EXPIRATION: %w", err)
	}

	resetLifetime, err := time.ParseDuration(getEnv("JWT_RESET_EXPIRATION", "15m"))
	if err != nil {
		return nil, fmt.Errorf("invalid JWT_RESET_EXPIRATION: %w", err)
	}

	cfg := &Config{
		Server: ServerConfig{
			Port: getEnv("PORT", "8080"),
			Host: getEnv("HOST", "0.0.0.0"),
			Env:  getEnv("ENV", "development"),
		},
		Database: DatabaseConfig{
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnv("DB_PORT", "5984"),
			User:     getEnv("DB_USER", "admin"),
			Password: getEnv("DB_PASSWORD", "password"),
			Name:     getEnv("DB_NAME", "identity"),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", ""),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvAsInt("REDIS_DB", 0),
		},
		JWT: JWTConfig{
			Issuer: getEnv("JWT_ISSUER", "identity-server"),
			Access: KeyMaterial{
				PrivateKey:     getEnv("JWT_ACCESS_PRIVATE_KEY", ""),
				PublicKey:      getEnv("JWT_ACCESS_PUBLIC_KEY", ""),
				PrivateKeyFile: getEnv("JWT_ACCESS_PRIVATE_KEY_FILE", ""),
				PublicKeyFile:  getEnv("JWT_ACCESS_PUBLIC_KEY_FILE", ""),
			},
			Reset: KeyMaterial{
				PrivateKey:     getEnv("JWT_RESET_PRIVATE_KEY", ""),
				PublicKey:      getEnv("JWT_RESET_PUBLIC_KEY", ""),
				PrivateKeyFile: getEnv("JWT_RESET_PRIVATE_KEY_FILE", ""),
				PublicKeyFile:  getEnv("JWT_RESET_PUBLIC_KEY_FILE", ""),
			},
			AccessLifetime: accessLifetime,
			ResetLifetime:  resetLifetime,
		},
		Security: SecurityConfig{
			BcryptCost: getEnvAsInt("BCRYPT_COST", 12),
			ResetURL:   getEnv("PASSWORD_RESET_URL", ""),
		},
		SMTP: SMTPConfig{
			Host:     getEnv("SMTP_HOST", ""),
			Port:     getEnv("SMTP_PORT", "587"),
			Username: getEnv("SMTP_USERNAME", ""),
			Password: getEnv("SMTP_PASSWORD", ""),
			From:     getEnv("SMTP_FROM", "no-reply@localhost"),
		},
		CORS: CORSConfig{
			AllowedOrigins: getEnv("CORS_ALLOWED_ORIGINS", "*"),
			AllowedMethods: getEnv("CORS_ALLOWED_METHODS", "GET,POST,PUT,DELETE,OPTIONS"),
			AllowedHeaders: getEnv("CORS_ALLOWED_HEADERS", "Content-Type,Authorization"),
		},
		Logging: LoggingConfig{
			Level: getEnv("LOG_LEVEL", "info"),
		},
	}

	if cfg.JWT.AccessLifetime <= 0 || cfg.JWT.ResetLifetime <= 0 {
		return nil, errors.New("token lifetimes must be positive")
	}

	return cfg, nil
}

func (c *Config) IsDevelopment() bool {
	return c.Server.Env == "development"
}

// ErrNoKeyMaterial is returned by KeyMaterial.Read when nothing is configured.
var ErrNoKeyMaterial = errors.New("no key material configured")

// Read returns the private and public PEM blocks.
func (k KeyMaterial) Read() (privatePEM, publicPEM []byte, err error) {
	if privatePEM, err = readPEM(k.PrivateKey, k.PrivateKeyFile); err != nil {
		return nil, nil, fmt.Errorf("private key: %w", err)
	}
	if publicPEM, err = readPEM(k.PublicKey, k.PublicKeyFile); err != nil {
		return nil, nil, fmt.Errorf("public key: %w", err)
	}
	return privatePEM, publicPEM, nil
}

func (k KeyMaterial) Configured() bool {
	return k.PrivateKey != "" || k.PrivateKeyFile != "" || k.PublicKey != "" || k.PublicKeyFile != ""
}

func readPEM(inline, path string) ([]byte, error) {
	if inline != "" {
		return []byte(inline), nil
	}
	if path == "" {
		return nil, ErrNoKeyMaterial
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return data, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}
