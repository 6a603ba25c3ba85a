package config

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type binding struct {
	key      string
	env      string
	def      any
	required bool
	secret   bool
}

var bindings = []binding{
	{key: "app.env", env: "APP_ENV", def: "development"},
	{key: "app.port", env: "PORT", def: "8080"},
	{key: "app.frontend_url", env: "FRONTEND_URL", def: "http://localhost:3000"},
	{key: "app.backend_url", env: "BACKEND_URL", def: "http://localhost:8080"},
	{key: "app.admin_token", env: "ADMIN_TOKEN", def: "", secret: true},

	{key: "log.level", env: "LOG_LEVEL", def: "info"},
	{key: "log.format", env: "LOG_FORMAT", def: "json"},

	{key: "database.url", env: "DATABASE_URL", def: "", required: true, secret: true},
	{key: "database.max_open_conns", env: "DATABASE_MAX_OPEN_CONNS", def: 25},
	{key: "database.max_idle_conns", env: "DATABASE_MAX_IDLE_CONNS", def: 5},
	{key: "database.conn_lifetime", env: "DATABASE_CONN_LIFETIME", def: "5m"},

	{key: "redis.url", env: "REDIS_URL", def: "", required: true, secret: true},

	{key: "auth.access_secret", env: "JWT_ACCESS_SECRET", def: "", required: true, secret: true},
	{key: "auth.refresh_secret", env: "JWT_REFRESH_SECRET", def: "", required: true, secret: true},
	{key: "auth.access_ttl", env: "JWT_ACCESS_TTL", def: "15m"},
	{key: "auth.refresh_ttl", env: "JWT_REFRESH_TTL", def: "720h"},
	{key: "auth.secure_cookies", env: "SECURE_COOKIES", def: true},

	{key: "stripe.secret_key", env: "STRIPE_SECRET_KEY", def: "", secret: true},
	{key: "stripe.webhook_secret", env: "STRIPE_WEBHOOK_SECRET", def: "", secret: true},
	{key: "stripe.price_pro", env: "STRIPE_PRICE_PRO", def: ""},
	{key: "stripe.price_agency", env: "STRIPE_PRICE_AGENCY", def: ""},
	{key: "stripe.publishable_key", env: "STRIPE_PUBLISHABLE_KEY", def: ""},

	{key: "facebook.app_id", env: "FACEBOOK_APP_ID", def: ""},
	{key: "facebook.app_secret", env: "FACEBOOK_APP_SECRET", def: "", secret: true},
	{key: "facebook.graph_version", env: "FACEBOOK_GRAPH_VERSION", def: "v19.0"},
	{key: "facebook.base_url", env: "FACEBOOK_GRAPH_URL", def: "https://graph.facebook.com"},
	{key: "facebook.rate_limit", env: "FACEBOOK_RATE_LIMIT", def: 5.0},
	{key: "facebook.metrics_ttl", env: "FACEBOOK_METRICS_TTL", def: "15m"},

	{key: "workflow.analysis_url", env: "N8N_ANALYSIS_WEBHOOK_URL", def: ""},
	{key: "workflow.timeout", env: "N8N_TIMEOUT", def: "30s"},
	{key: "workflow.shared_secret", env: "N8N_SHARED_SECRET", def: "", secret: true},

	{key: "blob.region", env: "AWS_REGION", def: ""},
	{key: "blob.bucket", env: "AWS_BUCKET_NAME", def: ""},
	{key: "blob.access_key", env: "AWS_S3_BUCKET_ACCESS_KEY", def: "", secret: true},
	{key: "blob.secret_key", env: "AWS_S3_BUCKET_SECRET_ACCESS_KEY", def: "", secret: true},
	{key: "blob.url_ttl", env: "EXPORT_URL_TTL", def: "15m"},

	{key: "notify.region", env: "SES_REGION", def: ""},
	{key: "notify.from_email", env: "SES_FROM_EMAIL", def: ""},
}

// Load reads an optional .env file and then the process environment.
func Load() (*Config, error) {
	if _, err := os.Stat(".env"); err == nil {
		if err := godotenv.Load(".env"); err != nil {
			return nil, fmt.Errorf("error loading .env file: %w", err)
		}
	}

	return fromViper(newViper())
}

func newViper() *viper.Viper {
	v := viper.New()
	for _, b := range bindings {
		v.SetDefault(b.key, b.def)
		_ = v.BindEnv(b.key, b.env)
	}
	return v
}

func fromViper(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if cfg.Workflow.Timeout <= 0 {
		cfg.Workflow.Timeout = defaultWorkflowTimeout
	}
	if cfg.Facebook.RateLimit <= 0 {
		cfg.Facebook.RateLimit = 5
	}

	return &cfg, nil
}

// EnvStatus describes one environment variable for operator diagnostics.
type EnvStatus struct {
	Name     string
	Key      string
	Required bool
	Set      bool
	Secret   bool
}

// Report lists every bound variable and whether it is present in the environment.
func (c *Config) Report() []EnvStatus {
	out := make([]EnvStatus, 0, len(bindings))
	for _, b := range bindings {
		_, set := os.LookupEnv(b.env)
		out = append(out, EnvStatus{
			Name:     b.env,
			Key:      b.key,
			Required: b.required,
			Set:      set,
			Secret:   b.secret,
		})
	}
	return out
}
