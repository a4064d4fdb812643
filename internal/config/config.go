// Package config centralizes the environment-driven configuration every
// binary in this module reads, per the variables named in the external
// interfaces section of the system spec.
package config

import (
	"fmt"
	"os"
	"strconv"
)

// Config is the fully-resolved process configuration.
type Config struct {
	Port              string
	DatabaseURL       string
	JWTSecret         string
	JWTRefreshSecret  string
	FrontURL          string
	APIBaseURL        string
	DefaultAdminEmail string
	DefaultAdminPass  string

	ResendAPIKey   string
	ResendFrom     string
	ZapiInstanceID string
	ZapiToken      string
	ZapiClientTok  string

	AsaasBaseURL string
	AsaasAPIKey  string

	PadesCertPath string
	PadesCertPass string

	UploadsDir string
	GRPCPort   string
}

// minSecretBytes is the 256-bit floor the spec requires for both JWT secrets.
const minSecretBytes = 32

// Load reads and validates configuration from the process environment.
func Load() (Config, error) {
	cfg := Config{
		Port:              getenv("PORT", "8080"),
		DatabaseURL:       os.Getenv("DATABASE_URL"),
		JWTSecret:         os.Getenv("JWT_SECRET"),
		JWTRefreshSecret:  os.Getenv("JWT_REFRESH_SECRET"),
		FrontURL:          getenv("FRONT_URL", "http://localhost:3000"),
		APIBaseURL:        getenv("API_BASE_URL", "http://localhost:8080"),
		DefaultAdminEmail: os.Getenv("DEFAULT_ADMIN_EMAIL"),
		DefaultAdminPass:  os.Getenv("DEFAULT_ADMIN_PASSWORD"),
		ResendAPIKey:      os.Getenv("RESEND_API_KEY"),
		ResendFrom:        os.Getenv("RESEND_FROM_EMAIL"),
		ZapiInstanceID:    os.Getenv("ZAPI_INSTANCE_ID"),
		ZapiToken:         os.Getenv("ZAPI_TOKEN"),
		ZapiClientTok:     os.Getenv("ZAPI_CLIENT_TOKEN"),
		AsaasBaseURL:      os.Getenv("ASAAS_BASE_URL"),
		AsaasAPIKey:       os.Getenv("ASAAS_API_KEY"),
		PadesCertPath:     os.Getenv("PADES_CERTIFICATE_PATH"),
		PadesCertPass:     os.Getenv("PADES_CERTIFICATE_PASSWORD"),
		UploadsDir:        getenv("UPLOADS_DIR", "uploads"),
		GRPCPort:          getenv("GRPC_PORT", "9090"),
	}
	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) validate() error {
	if c.DatabaseURL == "" {
		return fmt.Errorf("config: DATABASE_URL is required")
	}
	if len(c.JWTSecret) < minSecretBytes {
		return fmt.Errorf("config: JWT_SECRET must be at least %d bytes", minSecretBytes)
	}
	if len(c.JWTRefreshSecret) < minSecretBytes {
		return fmt.Errorf("config: JWT_REFRESH_SECRET must be at least %d bytes", minSecretBytes)
	}
	return nil
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// Atoi is a small convenience wrapper for parsing numeric env overrides
// that config.Load does not own. No package in this module calls it; the
// rate limit and pool sizes are fixed in code.
func Atoi(v string, fallback int) int {
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}
