// Package config provides configuration management functionality.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// Config holds application configuration
type Config struct {
	DataDir        string // Base directory for the SQLite databases (always absolute)
	Port           int
	LogLevel       string
	DevMode        bool
	JWTSecret      string   // HMAC secret for the admin API bearer tokens
	AllowedOrigins []string // CORS origins for the admin frontend
	Daraja         DarajaConfig
}

// DarajaConfig holds M-Pesa Daraja gateway credentials and endpoints
type DarajaConfig struct {
	BaseURL            string // https://api.safaricom.co.ke or the sandbox host
	ConsumerKey        string
	ConsumerSecret     string
	ShortCode          string // BusinessShortCode for STK push
	PassKey            string
	PartyB             string // Till / paybill number credited by STK push
	AccountReference   string
	CallbackURL        string // STK result callback
	C2BConfirmationURL string
	C2BValidationURL   string
	PullShortCode      string // Organization shortcode registered for pull queries
	PullCallbackURL    string
}

// Load reads configuration from environment variables (.env supported)
func Load() (*Config, error) {
	_ = godotenv.Load()

	// Resolve the data directory to an absolute path and make sure it exists,
	// so relative working directories never scatter database files around.
	dataDir := getEnv("PLOTPAY_DATA_DIR", "./data")
	absDataDir, err := filepath.Abs(dataDir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve data directory path: %w", err)
	}
	if err := os.MkdirAll(absDataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	cfg := &Config{
		DataDir:        absDataDir,
		Port:           getEnvAsInt("PORT", 5000),
		LogLevel:       getEnv("LOG_LEVEL", "info"),
		DevMode:        getEnvAsBool("DEV_MODE", false),
		JWTSecret:      getEnv("JWT_SECRET", ""),
		AllowedOrigins: splitList(getEnv("ALLOWED_ORIGINS", "http://localhost:8080")),
		Daraja: DarajaConfig{
			BaseURL:            getEnv("DARAJA_BASE_URL", "https://api.safaricom.co.ke"),
			ConsumerKey:        getEnv("DARAJA_CONSUMER_KEY", ""),
			ConsumerSecret:     getEnv("DARAJA_CONSUMER_SECRET", ""),
			ShortCode:          getEnv("DARAJA_SHORTCODE", ""),
			PassKey:            getEnv("DARAJA_PASSKEY", ""),
			PartyB:             getEnv("DARAJA_PARTY_B", ""),
			AccountReference:   getEnv("DARAJA_ACCOUNT_REF", "Jowabu"),
			CallbackURL:        getEnv("CALLBACK_URL", ""),
			C2BConfirmationURL: getEnv("C2B_CONFIRMATION_URL", ""),
			C2BValidationURL:   getEnv("C2B_VALIDATION_URL", ""),
			PullShortCode:      getEnv("DARAJA_PULL_SHORTCODE", ""),
			PullCallbackURL:    getEnv("PULL_CALLBACK_URL", ""),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks if required configuration is present
func (c *Config) Validate() error {
	// Daraja credentials are optional so the admin surface can run without
	// gateway access (e.g. local development against recorded callbacks).
	if !c.DevMode && c.JWTSecret == "" {
		return fmt.Errorf("JWT_SECRET is required outside dev mode")
	}
	return nil
}

// Helper functions
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}

func splitList(value string) []string {
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
