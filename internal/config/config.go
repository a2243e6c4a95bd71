package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

const (
	envPrefix           = "SAPO"
	defaultHTTPAddress  = "0.0.0.0:8080"
	defaultDatabasePath = "sapo.db"
	defaultLogLevel     = "info"
	defaultJWKSURL      = "https://www.googleapis.com/oauth2/v3/certs"
	defaultTokenTTLMins = 720
	defaultUploadExpiry = 5
)

// AppConfig captures runtime configuration for the API server.
type AppConfig struct {
	HTTPAddress      string
	DatabasePath     string
	LogLevel         string
	AuthSigningKey   string
	AdminEmail       string
	GoogleClientID   string
	GoogleJWKSURL    string
	TokenTTLMinutes  int
	S3Bucket         string
	S3Region         string
	MediaBaseURL     string
	UploadExpiryMins int
	AllowedOrigins   []string
}

// MediaEnabled reports whether image uploads are configured.
func (c AppConfig) MediaEnabled() bool {
	return strings.TrimSpace(c.S3Bucket) != ""
}

// NewViper returns a viper instance with defaults and env bindings configured.
func NewViper() *viper.Viper {
	configViper := viper.New()
	ApplyDefaults(configViper)
	return configViper
}

// ApplyDefaults configures defaults and env bindings on the provided viper instance.
func ApplyDefaults(configViper *viper.Viper) {
	configViper.SetEnvPrefix(envPrefix)
	configViper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	configViper.AutomaticEnv()

	configViper.SetDefault("http.address", defaultHTTPAddress)
	configViper.SetDefault("database.path", defaultDatabasePath)
	configViper.SetDefault("log.level", defaultLogLevel)
	configViper.SetDefault("google.jwks_url", defaultJWKSURL)
	configViper.SetDefault("token.ttl_minutes", defaultTokenTTLMins)
	configViper.SetDefault("s3.upload_expiry_minutes", defaultUploadExpiry)
	configViper.SetDefault("http.allowed_origins", []string{"*"})
}

// Load parses runtime configuration from viper.
func Load(configViper *viper.Viper) (AppConfig, error) {
	cfg := AppConfig{
		HTTPAddress:      configViper.GetString("http.address"),
		DatabasePath:     configViper.GetString("database.path"),
		LogLevel:         configViper.GetString("log.level"),
		AuthSigningKey:   configViper.GetString("auth.signing_secret"),
		AdminEmail:       configViper.GetString("admin.email"),
		GoogleClientID:   configViper.GetString("google.client_id"),
		GoogleJWKSURL:    configViper.GetString("google.jwks_url"),
		TokenTTLMinutes:  configViper.GetInt("token.ttl_minutes"),
		S3Bucket:         configViper.GetString("s3.bucket"),
		S3Region:         configViper.GetString("s3.region"),
		MediaBaseURL:     configViper.GetString("s3.public_base_url"),
		UploadExpiryMins: configViper.GetInt("s3.upload_expiry_minutes"),
		AllowedOrigins:   configViper.GetStringSlice("http.allowed_origins"),
	}

	if err := cfg.validate(); err != nil {
		return AppConfig{}, err
	}

	return cfg, nil
}

func (c AppConfig) validate() error {
	if strings.TrimSpace(c.DatabasePath) == "" {
		return fmt.Errorf("database.path is required")
	}
	if strings.TrimSpace(c.AuthSigningKey) == "" {
		return fmt.Errorf("auth.signing_secret is required")
	}
	if strings.TrimSpace(c.AdminEmail) == "" {
		return fmt.Errorf("admin.email is required")
	}
	if strings.TrimSpace(c.GoogleClientID) == "" {
		return fmt.Errorf("google.client_id is required")
	}
	if c.TokenTTLMinutes <= 0 {
		return fmt.Errorf("token.ttl_minutes must be positive")
	}
	if c.MediaEnabled() {
		if strings.TrimSpace(c.S3Region) == "" {
			return fmt.Errorf("s3.region is required when s3.bucket is set")
		}
		if strings.TrimSpace(c.MediaBaseURL) == "" {
			return fmt.Errorf("s3.public_base_url is required when s3.bucket is set")
		}
	}
	return nil
}
