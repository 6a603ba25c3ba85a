package config

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

type Config struct {
	App      AppConfig      `mapstructure:"app"`
	Log      LogConfig      `mapstructure:"log"`
	Database DatabaseConfig `mapstructure:"database"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Auth     AuthConfig     `mapstructure:"auth"`
	Stripe   StripeConfig   `mapstructure:"stripe"`
	Facebook FacebookConfig `mapstructure:"facebook"`
	Workflow WorkflowConfig `mapstructure:"workflow"`
	Blob     BlobConfig     `mapstructure:"blob"`
	Notify   NotifyConfig   `mapstructure:"notify"`
}

type AppConfig struct {
	Env         string `mapstructure:"env"`
	Port        string `mapstructure:"port"`
	FrontendURL string `mapstructure:"frontend_url"`
	BackendURL  string `mapstructure:"backend_url"`
	AdminToken  string `mapstructure:"admin_token"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

type DatabaseConfig struct {
	URL          string        `mapstructure:"url"`
	MaxOpenConns int           `mapstructure:"max_open_conns"`
	MaxIdleConns int           `mapstructure:"max_idle_conns"`
	ConnLifetime time.Duration `mapstructure:"conn_lifetime"`
}

type RedisConfig struct {
	URL string `mapstructure:"url"`
}

type AuthConfig struct {
	AccessSecret  string        `mapstructure:"access_secret"`
	RefreshSecret string        `mapstructure:"refresh_secret"`
	AccessTTL     time.Duration `mapstructure:"access_ttl"`
	RefreshTTL    time.Duration `mapstructure:"refresh_ttl"`
	SecureCookies bool          `mapstructure:"secure_cookies"`
}

// StripeConfig holds billing credentials. Price ids map onto the paid plans.
type StripeConfig struct {
	SecretKey      string `mapstructure:"secret_key"`
	WebhookSecret  string `mapstructure:"webhook_secret"`
	PriceProID     string `mapstructure:"price_pro"`
	PriceAgencyID  string `mapstructure:"price_agency"`
	PublishableKey string `mapstructure:"publishable_key"`
}

func (s StripeConfig) Enabled() bool {
	return s.SecretKey != ""
}

type FacebookConfig struct {
	AppID        string        `mapstructure:"app_id"`
	AppSecret    string        `mapstructure:"app_secret"`
	GraphVersion string        `mapstructure:"graph_version"`
	BaseURL      string        `mapstructure:"base_url"`
	RateLimit    float64       `mapstructure:"rate_limit"`
	MetricsTTL   time.Duration `mapstructure:"metrics_ttl"`
}

// CanExchangeTokens reports whether short-lived user tokens can be traded for long-lived ones.
func (f FacebookConfig) CanExchangeTokens() bool {
	return f.AppID != "" && f.AppSecret != ""
}

type WorkflowConfig struct {
	AnalysisURL  string        `mapstructure:"analysis_url"`
	Timeout      time.Duration `mapstructure:"timeout"`
	SharedSecret string        `mapstructure:"shared_secret"`
}

func (w WorkflowConfig) Enabled() bool {
	return w.AnalysisURL != ""
}

type BlobConfig struct {
	Region    string        `mapstructure:"region"`
	Bucket    string        `mapstructure:"bucket"`
	AccessKey string        `mapstructure:"access_key"`
	SecretKey string        `mapstructure:"secret_key"`
	URLTTL    time.Duration `mapstructure:"url_ttl"`
}

func (b BlobConfig) Enabled() bool {
	return b.Region != "" && b.Bucket != "" && b.AccessKey != "" && b.SecretKey != ""
}

type NotifyConfig struct {
	Region    string `mapstructure:"region"`
	FromEmail string `mapstructure:"from_email"`
}

func (n NotifyConfig) Enabled() bool {
	return n.Region != "" && n.FromEmail != ""
}

const defaultWorkflowTimeout = 30 * time.Second

// Validate checks the settings the server cannot start without.
func (c *Config) Validate() error {
	required := map[string]string{
		"DATABASE_URL":       c.Database.URL,
		"REDIS_URL":          c.Redis.URL,
		"JWT_ACCESS_SECRET":  c.Auth.AccessSecret,
		"JWT_REFRESH_SECRET": c.Auth.RefreshSecret,
	}

	var missing []string
	for name, val := range required {
		if strings.TrimSpace(val) == "" {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		sort.Strings(missing)
		return fmt.Errorf("missing required environment variables: %s", strings.Join(missing, ", "))
	}

	if c.Auth.AccessSecret == c.Auth.RefreshSecret {
		return fmt.Errorf("JWT_ACCESS_SECRET and JWT_REFRESH_SECRET must differ")
	}

	return nil
}

// PlanForPrice maps a Stripe price id back onto a plan name.
func (s StripeConfig) PlanForPrice(priceID string) (string, bool) {
	switch priceID {
	case "":
		return "", false
	case s.PriceProID:
		return "pro", true
	case s.PriceAgencyID:
		return "agency", true
	}
	return "", false
}

// PriceForPlan is the inverse of PlanForPrice.
func (s StripeConfig) PriceForPlan(plan string) (string, bool) {
	switch plan {
	case "pro":
		return s.PriceProID, s.PriceProID != ""
	case "agency":
		return s.PriceAgencyID, s.PriceAgencyID != ""
	}
	return "", false
}

// ConfiguredPrices lists every non-empty plan price id.
func (s StripeConfig) ConfiguredPrices() []string {
	var out []string
	for _, p := range []string{s.PriceProID, s.PriceAgencyID} {
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
