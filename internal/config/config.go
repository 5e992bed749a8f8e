package config

import (
	"time"

	"github.com/kelseyhightower/envconfig"
)

const (
	DefaultWelcomeSubject = "[{site_title}] Welcome {user_login}"
	DefaultWelcomeBody    = "Hello {user_login},\n\nThank you for registering to {site_title}.\nWe added your account to {site_title}.\nYour username of this site is \"{user_login}\" and your registered E-mail address is \"{user_email}\".\nPlease login using above username and configured password via the following URL.\n{login_url}\n\nBest regards,\n-- \n{site_title} admin team\n"

	DefaultResetSubject = "[{site_title}] Password Reset Requested for {user_login}"
	DefaultResetBody    = "Hello {user_login},\n\nSomeone requested that the password be reset for your account \"{user_login}\".\nIf this was a mistake, just ignore this email and nothing will happen.\nTo reset your password, visit the following address.\n{resetpass_url}\n\nThis password reset request originated from the IP address \"{user_ip}\".\n\nBest regards,\n-- \n{site_title} admin team\n"
)

type Config struct {
	// ----------------------------
	// SMTP
	// ----------------------------
	SMTPHost      string `envconfig:"SMTP_HOST" default:"localhost"`
	SMTPPort      int    `envconfig:"SMTP_PORT" default:"1025"`
	SMTPUser      string `envconfig:"SMTP_USER" default:""`
	SMTPPassword  string `envconfig:"SMTP_PASSWORD" default:""`
	SMTPFrom      string `envconfig:"SMTP_FROM" default:"noreply@anemone.bio"`
	RetryAttempts int    `envconfig:"RETRY_ATTEMPTS" default:"3"`

	// ----------------------------
	// Site
	// ----------------------------
	SiteTitle string `envconfig:"SITE_TITLE" default:"ANEMONE DB"`
	HomeURL   string `envconfig:"HOME_URL" default:"https://db.anemone.bio"`
	LoginURL  string `envconfig:"LOGIN_URL" default:""`

	// ----------------------------
	// Bulk mail
	// ----------------------------
	TickPeriod  time.Duration `envconfig:"MAIL_TICK_PERIOD" default:"10m"`
	SendBudget  time.Duration `envconfig:"MAIL_SEND_BUDGET" default:"60s"`
	TickLockID  int64         `envconfig:"MAIL_TICK_LOCK_ID" default:"7301"`
	SweepPeriod time.Duration `envconfig:"DD_PASS_SWEEP_PERIOD" default:"10m"`

	// ----------------------------
	// Credentials
	// ----------------------------
	CredentialTTL time.Duration `envconfig:"DD_PASS_TTL" default:"240h"`
	ResetKeyTTL   time.Duration `envconfig:"RESET_KEY_TTL" default:"24h"`

	// ----------------------------
	// Templates
	// ----------------------------
	WelcomeSubject string `envconfig:"WELCOME_EMAIL_SUBJECT"`
	WelcomeBody    string `envconfig:"WELCOME_EMAIL_BODY"`
	ResetSubject   string `envconfig:"RESET_EMAIL_SUBJECT"`
	ResetBody      string `envconfig:"RESET_EMAIL_BODY"`

	// ----------------------------
	// Security
	// ----------------------------
	APIToken    string        `envconfig:"API_TOKEN" required:"true"`
	NonceSecret string        `envconfig:"NONCE_SECRET" required:"true"`
	NonceTTL    time.Duration `envconfig:"NONCE_TTL" default:"12h"`
	AuthLogPath string        `envconfig:"AUTH_FAILURE_LOG" default:"/var/log/wp_auth_failure.log"`

	// ----------------------------
	// HTTP API
	// ----------------------------
	APIPort string `envconfig:"API_PORT" default:"8080"`

	// ----------------------------
	// Metrics
	// ----------------------------
	MetricsPort string `envconfig:"METRICS_PORT" default:"9090"`

	// ----------------------------
	// Database
	// ----------------------------
	DatabaseURL string `envconfig:"DATABASE_URL" required:"true"`
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, err
	}
	cfg.applyDefaults()
	return &cfg, nil
}

// applyDefaults fills values that derive from other fields or are too long for a tag.
func (c *Config) applyDefaults() {
	if c.LoginURL == "" {
		c.LoginURL = c.HomeURL + "/wp-login.php"
	}
	if c.WelcomeSubject == "" {
		c.WelcomeSubject = DefaultWelcomeSubject
	}
	if c.WelcomeBody == "" {
		c.WelcomeBody = DefaultWelcomeBody
	}
	if c.ResetSubject == "" {
		c.ResetSubject = DefaultResetSubject
	}
	if c.ResetBody == "" {
		c.ResetBody = DefaultResetBody
	}
}
