package config

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/anemone")
	t.Setenv("API_TOKEN", "token")
	t.Setenv("NONCE_SECRET", "secret")
	t.Setenv("HOME_URL", "https://example.org")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 10*time.Minute, cfg.TickPeriod)
	assert.Equal(t, 60*time.Second, cfg.SendBudget)
	assert.Equal(t, 240*time.Hour, cfg.CredentialTTL)
	assert.Equal(t, "https://example.org/wp-login.php", cfg.LoginURL)
	assert.Equal(t, DefaultWelcomeBody, cfg.WelcomeBody)
	assert.Equal(t, DefaultResetSubject, cfg.ResetSubject)
	assert.Equal(t, int64(7301), cfg.TickLockID)
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/anemone")
	t.Setenv("API_TOKEN", "token")
	t.Setenv("NONCE_SECRET", "secret")
	t.Setenv("LOGIN_URL", "https://example.org/login")
	t.Setenv("MAIL_TICK_PERIOD", "1m")
	t.Setenv("MAIL_SEND_BUDGET", "30s")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "https://example.org/login", cfg.LoginURL)
	assert.Equal(t, time.Minute, cfg.TickPeriod)
	assert.Equal(t, 30*time.Second, cfg.SendBudget)
}

func TestLoad_MissingRequired(t *testing.T) {
	for _, key := range []string{"DATABASE_URL", "API_TOKEN", "NONCE_SECRET"} {
		t.Setenv(key, "")
		require.NoError(t, os.Unsetenv(key))
	}

	_, err := Load()
	assert.Error(t, err)
}
