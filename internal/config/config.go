package config

import (
	"os"
	"strconv"
	"time"
)

type Config struct {
	DB     DBConfig
	MinIO  MinIOConfig
	JWT    JWTConfig
	Server ServerConfig
	SMTP   SMTPConfig
	Claims ClaimsConfig
	Invite InviteConfig
}

type DBConfig struct {
	Host     string
	Port     string
	User     string
	Password string
	Name     string
	SSLMode  string
}

type MinIOConfig struct {
	Endpoint       string
	PublicEndpoint string
	AccessKey      string
	SecretKey      string
	Bucket         string
	UseSSL         bool
}

type JWTConfig struct {
	Secret          string
	ExpirationHours int
}

type ServerConfig struct {
	Port        string
	FrontendURL string
}

type SMTPConfig struct {
	Host     string
	Port     string
	User     string
	Password string
	From     string
	Enabled  bool
}

// ClaimsConfig holds the claim lifecycle policy knobs. Expiration is
// checked passively on every read and enforced physically by the sweeper.
type ClaimsConfig struct {
	ExpirationDays            int
	PurchasedSuppressesExpiry bool
	NotifyOnUnpurchase        bool
	SweepInterval             time.Duration
}

type InviteConfig struct {
	ExpirationDays int
}

func Load() *Config {
	return &Config{
		DB: DBConfig{
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnv("DB_PORT", "5432"),
			User:     getEnv("DB_USER", "wishlane"),
			Password: getEnv("DB_PASSWORD", "wishlane_secret"),
			Name:     getEnv("DB_NAME", "wishlane"),
			SSLMode:  getEnv("DB_SSLMODE", "disable"),
		},
		MinIO: MinIOConfig{
			Endpoint:       getEnv("MINIO_ENDPOINT", "localhost:9000"),
			PublicEndpoint: getEnv("MINIO_PUBLIC_ENDPOINT", getEnv("MINIO_ENDPOINT", "localhost:9000")),
			AccessKey:      getEnv("MINIO_ACCESS_KEY", "wishlane"),
			SecretKey:      getEnv("MINIO_SECRET_KEY", "wishlane_secret"),
			Bucket:         getEnv("MINIO_BUCKET", "wishlane-images"),
			UseSSL:         getEnvAsBool("MINIO_USE_SSL", false),
		},
		JWT: JWTConfig{
			Secret:          getEnv("JWT_SECRET", "change-me-in-production"),
			ExpirationHours: getEnvAsInt("JWT_EXPIRATION_HOURS", 24),
		},
		Server: ServerConfig{
			Port:        getEnv("SERVER_PORT", "8080"),
			FrontendURL: getEnv("FRONTEND_URL", "http://localhost:3001"),
		},
		SMTP: SMTPConfig{
			Host:     getEnv("SMTP_HOST", "localhost"),
			Port:     getEnv("SMTP_PORT", "587"),
			User:     getEnv("SMTP_USER", ""),
			Password: getEnv("SMTP_PASSWORD", ""),
			From:     getEnv("SMTP_FROM", "no-reply@wishlane.local"),
			Enabled:  getEnvAsBool("SMTP_ENABLED", false),
		},
		Claims: ClaimsConfig{
			ExpirationDays:            getEnvAsInt("CLAIM_EXPIRATION_DAYS", 30),
			PurchasedSuppressesExpiry: getEnvAsBool("CLAIM_PURCHASED_SUPPRESSES_EXPIRY", true),
			NotifyOnUnpurchase:        getEnvAsBool("CLAIM_NOTIFY_ON_UNPURCHASE", false),
			SweepInterval:             getEnvAsDuration("CLAIM_SWEEP_INTERVAL", 1*time.Hour),
		},
		Invite: InviteConfig{
			ExpirationDays: getEnvAsInt("INVITE_EXPIRATION_DAYS", 14),
		},
	}
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	if value, ok := os.LookupEnv(key); ok {
		parsed, err := strconv.Atoi(value)
		if err == nil {
			return parsed
		}
	}
	return fallback
}

func getEnvAsDuration(key string, fallback time.Duration) time.Duration {
	if value, ok := os.LookupEnv(key); ok {
		parsed, err := time.ParseDuration(value)
		if err == nil {
			return parsed
		}
	}
	return fallback
}

func getEnvAsBool(key string, fallback bool) bool {
	if value, ok := os.LookupEnv(key); ok {
		parsed, err := strconv.ParseBool(value)
		if err == nil {
			return parsed
		}
	}
	return fallback
}
