package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
)

const (
	// EnvDevelopment selects the local dev-server redirect URI.
	EnvDevelopment = "development"
	// EnvProduction derives the redirect URI from the marketplace root URL.
	EnvProduction = "production"
)

// Config holds all configuration for the service.
type Config struct {
	Server struct {
		Port        int `json:"port" validate:"gte=0"`
		MetricsPort int `json:"metrics_port" validate:"gte=0"`
	} `json:"server"`

	LogLevel string `json:"log_level" validate:"oneof=debug info warn error"`

	// Environment is resolved once at load time; it decides the redirect
	// URI for the whole process. Dev and production URIs must never be
	// mixed within one deployment.
	Environment string `json:"environment" validate:"oneof=development production"`

	DB struct {
		FilePath string `json:"file_path" validate:"required"`
	} `json:"db"`

	// EncryptionKey protects profile data at rest (AES-256-GCM).
	EncryptionKey string `json:"encryption_key" validate:"required,len=32"`

	MercadoPago struct {
		// AppID and AppSecret are not required at load time: a missing
		// app ID produces a degraded authorization request with a logged
		// diagnostic rather than a startup failure.
		AppID                 string `json:"app_id"`
		AppSecret             string `json:"app_secret"`
		AuthorizationEndpoint string `json:"authorization_endpoint" validate:"required,url"`
		TokenEndpoint         string `json:"token_endpoint" validate:"required,url"`
	} `json:"mercado_pago"`

	Marketplace struct {
		RootURL    string `json:"root_url"`
		DevAPIPort int    `json:"dev_api_port" validate:"gte=0"`
	} `json:"marketplace"`
}

// Load reads configuration from a file and overrides with environment variables.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	if err := cfg.applyEnvOverrides(); err != nil {
		return nil, fmt.Errorf("applying environment overrides: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
}

// applyEnvOverrides overrides config fields with environment variables.
func (c *Config) applyEnvOverrides() error {
	// Mercado Pago overrides
	if v := os.Getenv("MP_APP_ID"); v != "" {
		c.MercadoPago.AppID = v
	}
	if v := os.Getenv("MP_APP_SECRET"); v != "" {
		c.MercadoPago.AppSecret = v
	}

	// Marketplace overrides
	if v := os.Getenv("MARKETPLACE_ROOT_URL"); v != "" {
		c.Marketplace.RootURL = v
	}
	if v := os.Getenv("DEV_API_SERVER_PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("parsing DEV_API_SERVER_PORT: %w", err)
		}
		c.Marketplace.DevAPIPort = port
	}

	// Server overrides
	if v := os.Getenv("HTTP_PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("parsing HTTP_PORT: %w", err)
		}
		c.Server.Port = port
	}
	if v := os.Getenv("METRICS_PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("parsing METRICS_PORT: %w", err)
		}
		c.Server.MetricsPort = port
	}

	if v := os.Getenv("LOG_LEVEL"); v != "" {
		c.LogLevel = v
	}
	if v := os.Getenv("ENVIRONMENT"); v != "" {
		c.Environment = v
	}
	if v := os.Getenv("DB_PATH"); v != "" {
		c.DB.FilePath = v
	}
	if v := os.Getenv("ENCRYPTION_KEY"); v != "" {
		c.EncryptionKey = v
	}

	return nil
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	validate := validator.New()
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}

	if c.Environment == EnvProduction && c.Marketplace.RootURL == "" {
		return fmt.Errorf("marketplace root URL is required in production")
	}
	if c.Environment == EnvDevelopment && c.Marketplace.DevAPIPort == 0 && c.Marketplace.RootURL == "" {
		return fmt.Errorf("development requires either a dev API port or a marketplace root URL")
	}

	return nil
}

// CallbackRedirectURI derives the OAuth redirect URI for this deployment.
// The same value is used when building the authorization URL and when
// exchanging the code; Mercado Pago rejects the exchange if they differ.
func (c *Config) CallbackRedirectURI() string {
	if c.Environment == EnvDevelopment && c.Marketplace.DevAPIPort > 0 {
		return fmt.Sprintf("http://localhost:%d/api/mp/oauth/callback", c.Marketplace.DevAPIPort)
	}
	root := strings.TrimSuffix(c.Marketplace.RootURL, "/")
	return root + "/api/mp/oauth/callback"
}
