package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeDefaults(t *testing.T) {
	v := New()
	v.Set("session_secret", "s3cret")

	cfg, err := Decode(v)
	require.NoError(t, err)
	assert.Equal(t, "8080", cfg.ServerPort)
	assert.Equal(t, "http://localhost:8080", cfg.AppURL)
	assert.Equal(t, 14*24*time.Hour, cfg.SessionTTL)
	assert.True(t, cfg.Worker.Enabled)
	assert.Equal(t, 5*time.Second, cfg.Worker.PollInterval)
	assert.Equal(t, 25, cfg.Worker.MaxAttempts)
	assert.Equal(t, 4*time.Hour, cfg.Worker.MaxRunTime)
	assert.Equal(t, 587, cfg.Email.SMTPPort)
}

func TestDecodeTrimsAppURL(t *testing.T) {
	v := New()
	v.Set("session_secret", "s3cret")
	v.Set("app_url", " https://status.example.com/ ")

	cfg, err := Decode(v)
	require.NoError(t, err)
	assert.Equal(t, "https://status.example.com", cfg.AppURL)
}

func TestDecodeRequiresSessionSecret(t *testing.T) {
	_, err := Decode(New())
	assert.EqualError(t, err, "session_secret must be set")
}

func TestEnvironmentOverrides(t *testing.T) {
	t.Setenv("STATUSIFY_SESSION_SECRET", "from-env")
	t.Setenv("STATUSIFY_WORKER_MAX_ATTEMPTS", "3")
	t.Setenv("STATUSIFY_EMAIL_SMTP_HOST", "smtp.example.com")

	cfg, err := Decode(New())
	require.NoError(t, err)
	assert.Equal(t, "from-env", cfg.SessionSecret)
	assert.Equal(t, 3, cfg.Worker.MaxAttempts)
	assert.Equal(t, "smtp.example.com", cfg.Email.SMTPHost)
}
