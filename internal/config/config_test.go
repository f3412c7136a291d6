package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromEnv_Defaults(t *testing.T) {
	t.Setenv("DISPATCHER_BASE_URL", "https://dispatcher.example.com/rest/")

	cfg, err := FromEnv()
	require.NoError(t, err)

	assert.Equal(t, "https://dispatcher.example.com/rest", cfg.Dispatcher.BaseURL)
	assert.Equal(t, "PILOT", cfg.Dispatcher.Site)
	assert.Equal(t, 30*time.Second, cfg.Dispatcher.Timeout)
	assert.Equal(t, time.Minute, cfg.Poll.Interval)
	assert.Equal(t, 6*time.Hour, cfg.Escalation.Threshold)
	assert.Equal(t, 30*time.Minute, cfg.Escalation.Stage2Delay)
	assert.Equal(t, 60*time.Minute, cfg.Escalation.Stage3Delay)
	assert.Equal(t, "Urgent: Pending Dispatcher Tasks Alert", cfg.Escalation.Subject)
	assert.Equal(t, ":5000", cfg.API.Port)
	assert.Equal(t, "/api", cfg.API.BasePath)
	assert.Equal(t, "logs", cfg.Logging.Dir)
}

func TestFromEnv_Overrides(t *testing.T) {
	t.Setenv("DISPATCHER_BASE_URL", "http://localhost:8020")
	t.Setenv("DISPATCHER_SITE", "PROD")
	t.Setenv("ESCALATION_THRESHOLD", "2h")
	t.Setenv("ESCALATION_STAGE2_DELAY", "10m")
	t.Setenv("ESCALATION_TO", "ops@example.com, lead@example.com")
	t.Setenv("ESCALATION_CC", "admin@example.com")
	t.Setenv("EMAIL_SMTP_SERVER", "smtp.example.com")
	t.Setenv("EMAIL_USERNAME", "bot@example.com")
	t.Setenv("TELEGRAM_CHAT_IDS", "100,-200")

	cfg, err := FromEnv()
	require.NoError(t, err)

	assert.Equal(t, "PROD", cfg.Dispatcher.Site)
	assert.Equal(t, 2*time.Hour, cfg.Escalation.Threshold)
	assert.Equal(t, 10*time.Minute, cfg.Escalation.Stage2Delay)
	assert.Equal(t, []string{"ops@example.com", "lead@example.com"}, cfg.Escalation.To)
	assert.Equal(t, []string{"admin@example.com"}, cfg.Escalation.CC)
	assert.Equal(t, "bot@example.com", cfg.Email.From)
	assert.Equal(t, []int64{100, -200}, cfg.Telegram.ChatIDs)
}

func TestFromEnv_Invalid(t *testing.T) {
	tests := map[string]map[string]string{
		"missing base url": {},
		"bad duration": {
			"DISPATCHER_BASE_URL":  "http://localhost",
			"ESCALATION_THRESHOLD": "six hours",
		},
		"email without recipients": {
			"DISPATCHER_BASE_URL": "http://localhost",
			"EMAIL_SMTP_SERVER":   "smtp.example.com",
		},
		"bad chat id": {
			"DISPATCHER_BASE_URL": "http://localhost",
			"TELEGRAM_CHAT_IDS":   "abc",
		},
	}
	for name, env := range tests {
		t.Run(name, func(t *testing.T) {
			t.Setenv("DISPATCHER_BASE_URL", "")
			for k, v := range env {
				t.Setenv(k, v)
			}
			_, err := FromEnv()
			assert.Error(t, err)
		})
	}
}
