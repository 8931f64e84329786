package config

import (
	"os"
	"strconv"
	"time"
)

// Config captures process-level configuration for the server.
type Config struct {
	Addr          string
	LogLevel      string
	PostgresURL   string
	RedisURL      string
	KafkaBrokers  string
	JWTSigningKey string

	// Invite gating. UsersLimit is a global soft cap, PendingLimit the
	// per-person default for outstanding pending connections.
	UsersLimit   int
	PendingLimit int

	// Outbound channels. Empty host or URL falls back to log-only
	// delivery.
	SMTPHost      string
	SMTPPort      int
	SMTPUsername  string
	SMTPPassword  string
	SMTPFrom      string
	SMSGatewayURL string
	SMSAPIKey     string
}

// OTPCodeTTL bounds how long an SMS verification code stays redeemable.
var OTPCodeTTL = 10 * time.Minute

// FromEnv builds a Config from environment variables so main stays lean.
func FromEnv() Config {
	addr := os.Getenv("CONTACTSHARE_ADDR")
	if addr == "" {
		addr = ":8080"
	}

	jwtSigningKey := os.Getenv("JWT_SIGNING_KEY")
	if jwtSigningKey == "" {
		// Use a default for development - should be overridden in production
		jwtSigningKey = "dev-secret-key-change-in-production"
	}

	return Config{
		Addr:          addr,
		LogLevel:      os.Getenv("LOG_LEVEL"),
		PostgresURL:   os.Getenv("POSTGRES_URL"),
		RedisURL:      os.Getenv("REDIS_URL"),
		KafkaBrokers:  os.Getenv("KAFKA_BROKERS"),
		JWTSigningKey: jwtSigningKey,
		UsersLimit:    envInt("USERS_LIMIT", 10000),
		PendingLimit:  envInt("PENDING_INVITES_LIMIT", 25),
		SMTPHost:      os.Getenv("SMTP_HOST"),
		SMTPPort:      envInt("SMTP_PORT", 587),
		SMTPUsername:  os.Getenv("SMTP_USERNAME"),
		SMTPPassword:  os.Getenv("SMTP_PASSWORD"),
		SMTPFrom:      os.Getenv("SMTP_FROM"),
		SMSGatewayURL: os.Getenv("SMS_GATEWAY_URL"),
		SMSAPIKey:     os.Getenv("SMS_API_KEY"),
	}
}

func envInt(key string, fallback int) int {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return fallback
	}
	return n
}
