package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Store backends.
const (
	StoreMemory = "memory"
	StoreRedis  = "redis"
	StoreMongo  = "mongo"
	StoreBolt   = "bolt"
)

// ServerConfig holds all configuration for the server.
// Tags use mapstructure for Viper unmarshalling and env for environment variable binding.
type ServerConfig struct {
	HTTPPort     string `mapstructure:"HTTP_PORT"`
	PublicURL    string `mapstructure:"PUBLIC_URL"` // externally reachable base URL, used for the redirect URI and webhooks
	RedirectPath string `mapstructure:"REDIRECT_PATH"`

	ClientID          string `mapstructure:"CLIENT_ID"`
	ClientSecret      string `mapstructure:"CLIENT_SECRET"`
	AuthorizeEndpoint string `mapstructure:"AUTHORIZE_ENDPOINT"`
	TokenEndpoint     string `mapstructure:"TOKEN_ENDPOINT"`
	UserInfoEndpoint  string `mapstructure:"USERINFO_ENDPOINT"`
	RevokeEndpoint    string `mapstructure:"REVOKE_ENDPOINT"`
	Scope             string `mapstructure:"SCOPE"`
	APIVersion        string `mapstructure:"API_VERSION"`

	PluginID               string `mapstructure:"PLUGIN_ID"`
	PluginParentDomain     string `mapstructure:"PLUGIN_PARENT_DOMAIN"`
	AllowedOrigins         string `mapstructure:"ALLOWED_ORIGINS"` // comma separated
	RootRedirectURL        string `mapstructure:"ROOT_REDIRECT_URL"`
	AccountEngagementHosts string `mapstructure:"ACCOUNT_ENGAGEMENT_HOSTS"` // comma separated

	HandoffTTL  time.Duration `mapstructure:"HANDOFF_TTL"`
	ResultTTL   time.Duration `mapstructure:"RESULT_TTL"`
	HTTPTimeout time.Duration `mapstructure:"HTTP_TIMEOUT"`

	EphemeralStore string `mapstructure:"EPHEMERAL_STORE"`
	DurableStore   string `mapstructure:"DURABLE_STORE"`

	RedisAddr      string `mapstructure:"REDIS_ADDR"`
	RedisPassword  string `mapstructure:"REDIS_PASSWORD"`
	RedisDB        int    `mapstructure:"REDIS_DB"`
	RedisKeyPrefix string `mapstructure:"REDIS_KEY_PREFIX"`

	MongoURI        string `mapstructure:"MONGO_URI"`
	MongoDBName     string `mapstructure:"MONGO_DB_NAME"`
	MongoCollection string `mapstructure:"MONGO_COLLECTION"`

	BoltPath string `mapstructure:"BOLT_PATH"`

	LogLevel        string `mapstructure:"LOG_LEVEL"`
	LogPretty       bool   `mapstructure:"LOG_PRETTY"`
	OtelServiceName string `mapstructure:"OTEL_SERVICE_NAME"`
}

// LoadConfig reads configuration from file, environment variables, and defaults.
func LoadConfig() (*ServerConfig, error) {
	v := viper.New()

	// Set configuration file name and type
	v.SetConfigName("config")
	v.SetConfigType("yaml")

	v.AddConfigPath("/etc/framer-salesforce-api/")
	v.AddConfigPath("$HOME/.framer-salesforce-api")
	v.AddConfigPath(".")

	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setDefaults(v)

	// Every key is bound explicitly so that environment-only configuration
	// reaches Unmarshal.
	for _, key := range keys {
		if err := v.BindEnv(key); err != nil {
			return nil, fmt.Errorf("failed to bind %s: %w", key, err)
		}
	}

	if err := v.ReadInConfig(); err != nil {
		// A missing config file is fine; defaults and env vars apply.
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var cfg ServerConfig
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unable to decode config into struct: %w", err)
	}

	return &cfg, nil
}

var keys = []string{
	"HTTP_PORT", "PUBLIC_URL", "REDIRECT_PATH",
	"CLIENT_ID", "CLIENT_SECRET",
	"AUTHORIZE_ENDPOINT", "TOKEN_ENDPOINT", "USERINFO_ENDPOINT", "REVOKE_ENDPOINT",
	"SCOPE", "API_VERSION",
	"PLUGIN_ID", "PLUGIN_PARENT_DOMAIN", "ALLOWED_ORIGINS", "ROOT_REDIRECT_URL", "ACCOUNT_ENGAGEMENT_HOSTS",
	"HANDOFF_TTL", "RESULT_TTL", "HTTP_TIMEOUT",
	"EPHEMERAL_STORE", "DURABLE_STORE",
	"REDIS_ADDR", "REDIS_PASSWORD", "REDIS_DB", "REDIS_KEY_PREFIX",
	"MONGO_URI", "MONGO_DB_NAME", "MONGO_COLLECTION",
	"BOLT_PATH",
	"LOG_LEVEL", "LOG_PRETTY", "OTEL_SERVICE_NAME",
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("HTTP_PORT", "8080")
	v.SetDefault("REDIRECT_PATH", "/auth/redirect")
	v.SetDefault("AUTHORIZE_ENDPOINT", "https://login.salesforce.com/services/oauth2/authorize")
	v.SetDefault("TOKEN_ENDPOINT", "https://login.salesforce.com/services/oauth2/token")
	v.SetDefault("USERINFO_ENDPOINT", "https://login.salesforce.com/services/oauth2/userinfo")
	v.SetDefault("REVOKE_ENDPOINT", "https://login.salesforce.com/services/oauth2/revoke")
	v.SetDefault("SCOPE", "api refresh_token")
	v.SetDefault("API_VERSION", "v62.0")
	v.SetDefault("PLUGIN_PARENT_DOMAIN", "framercanvas.com")
	v.SetDefault("ROOT_REDIRECT_URL", "https://framer.com")
	v.SetDefault("ACCOUNT_ENGAGEMENT_HOSTS", "go.pardot.com,pi.pardot.com")
	v.SetDefault("HANDOFF_TTL", 60*time.Second)
	v.SetDefault("RESULT_TTL", 300*time.Second)
	v.SetDefault("HTTP_TIMEOUT", 30*time.Second)
	v.SetDefault("EPHEMERAL_STORE", StoreMemory)
	v.SetDefault("DURABLE_STORE", StoreMemory)
	v.SetDefault("REDIS_ADDR", "localhost:6379")
	v.SetDefault("REDIS_KEY_PREFIX", "sfapi")
	v.SetDefault("MONGO_URI", "mongodb://localhost:27017")
	v.SetDefault("MONGO_DB_NAME", "framer_salesforce_api")
	v.SetDefault("MONGO_COLLECTION", "sfapi_kv")
	v.SetDefault("BOLT_PATH", "data/sfapi.db")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_PRETTY", false)
	v.SetDefault("OTEL_SERVICE_NAME", "framer-salesforce-api")
}

// Validate checks the settings the server cannot start without.
func (c *ServerConfig) Validate() error {
	var errs []error

	if c.ClientID == "" || c.ClientSecret == "" {
		errs = append(errs, errors.New("CLIENT_ID and CLIENT_SECRET are required"))
	}
	if c.PublicURL == "" {
		errs = append(errs, errors.New("PUBLIC_URL is required"))
	}

	for name, backend := range map[string]string{"EPHEMERAL_STORE": c.EphemeralStore, "DURABLE_STORE": c.DurableStore} {
		switch backend {
		case StoreMemory, StoreRedis, StoreMongo, StoreBolt:
		default:
			errs = append(errs, fmt.Errorf("%s: unknown store %q", name, backend))
		}
	}

	return errors.Join(errs...)
}

// RedirectURL is the OAuth redirect URI registered with the connected app.
func (c *ServerConfig) RedirectURL() string {
	return strings.TrimRight(c.PublicURL, "/") + c.RedirectPath
}

// AllowedOriginList splits ALLOWED_ORIGINS.
func (c *ServerConfig) AllowedOriginList() []string {
	return splitList(c.AllowedOrigins)
}

// AccountEngagementHostList splits ACCOUNT_ENGAGEMENT_HOSTS.
func (c *ServerConfig) AccountEngagementHostList() []string {
	return splitList(c.AccountEngagementHosts)
}

func splitList(s string) []string {
	var out []string
	for _, item := range strings.Split(s, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}

	return out
}
