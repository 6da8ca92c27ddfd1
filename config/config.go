package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// ServerConfig holds all configuration for the auth service.
// Tags use mapstructure for Viper unmarshalling; keys double as environment
// variable names.
type ServerConfig struct {
	HTTPPort string `mapstructure:"HTTP_PORT"`

	// MongoURI empty selects the in-process store.
	MongoURI    string `mapstructure:"MONGO_URI"`
	MongoDBName string `mapstructure:"MONGO_DB_NAME"`

	// RedisAddr empty selects the in-process claims cache.
	RedisAddr string `mapstructure:"REDIS_ADDR"`

	LogLevel        string `mapstructure:"LOG_LEVEL"`
	LogPretty       bool   `mapstructure:"LOG_PRETTY"`
	OtelServiceName string `mapstructure:"OTEL_SERVICE_NAME"`

	Issuer          string `mapstructure:"ISSUER"`
	JWTSecretKey    string `mapstructure:"JWT_SECRET_KEY"`
	VerificationURL string `mapstructure:"VERIFICATION_URL"`

	SessionTokenTTLHour   int `mapstructure:"SESSION_TOKEN_TTL_HOUR"`
	DeviceSessionTTLMin   int `mapstructure:"DEVICE_SESSION_TTL_MIN"`
	DevicePollIntervalSec int `mapstructure:"DEVICE_POLL_INTERVAL_SEC"`
	RefreshBufferMin      int `mapstructure:"REFRESH_BUFFER_MIN"`

	// OAuth client pairs. Device-flow logins and interactive logins are
	// issued against different client credentials; refreshes must reuse the
	// original pair.
	GoogleDeviceClientID     string `mapstructure:"GOOGLE_DEVICE_CLIENT_ID"`
	GoogleDeviceClientSecret string `mapstructure:"GOOGLE_DEVICE_CLIENT_SECRET"`
	GoogleWebClientID        string `mapstructure:"GOOGLE_WEB_CLIENT_ID"`
	GoogleWebClientSecret    string `mapstructure:"GOOGLE_WEB_CLIENT_SECRET"`

	// Access gate.
	MaintenanceMode  bool     `mapstructure:"MAINTENANCE_MODE"`
	AllowlistEnabled bool     `mapstructure:"ALLOWLIST_ENABLED"`
	Allowlist        []string `mapstructure:"ALLOWLIST"`
	DefaultTier      string   `mapstructure:"DEFAULT_TIER"`
	MaxAccounts      int      `mapstructure:"MAX_ACCOUNTS"`
	MaxDashboards    int      `mapstructure:"MAX_DASHBOARDS"`
}

// LoadConfig reads configuration from file, environment variables, and
// defaults.
func LoadConfig() (*ServerConfig, error) {
	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("yaml")

	v.AddConfigPath("/etc/hearthview/")
	v.AddConfigPath("$HOME/.hearthview")
	v.AddConfigPath(".")

	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	v.SetDefault("HTTP_PORT", "8080")
	v.SetDefault("MONGO_URI", "")
	v.SetDefault("MONGO_DB_NAME", "hearthview_auth")
	v.SetDefault("REDIS_ADDR", "")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_PRETTY", false)
	v.SetDefault("OTEL_SERVICE_NAME", "hearthview-auth")
	v.SetDefault("ISSUER", "hearthview-auth")
	v.SetDefault("JWT_SECRET_KEY", "a_very_secret_jwt_key_change_me") // CHANGE IN PRODUCTION
	v.SetDefault("VERIFICATION_URL", "https://hearthview.app/link")
	v.SetDefault("SESSION_TOKEN_TTL_HOUR", 72) // covers a TV's unattended runtime
	v.SetDefault("DEVICE_SESSION_TTL_MIN", 10)
	v.SetDefault("DEVICE_POLL_INTERVAL_SEC", 5)
	v.SetDefault("REFRESH_BUFFER_MIN", 5)
	v.SetDefault("MAINTENANCE_MODE", false)
	v.SetDefault("ALLOWLIST_ENABLED", false)
	v.SetDefault("DEFAULT_TIER", "beta")
	v.SetDefault("MAX_ACCOUNTS", 10)
	v.SetDefault("MAX_DASHBOARDS", 10)

	if err := v.ReadInConfig(); err != nil {
		// A missing config file is fine; defaults and env vars apply.
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var cfg ServerConfig
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unable to decode config into struct: %w", err)
	}

	return &cfg, nil
}
