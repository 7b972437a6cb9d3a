package app

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoadConfigDefaults(t *testing.T) {
	t.Setenv("STORE", "Memory")
	t.Setenv("BASE_CURRENCY", "eur")

	cfg, err := LoadConfig()
	require.NoError(t, err)
	require.True(t, cfg.InMemory())
	require.Equal(t, "EUR", cfg.BaseCurrency)
	require.Equal(t, 10*time.Second, cfg.PostingLockTTL)
	require.Equal(t, "30 0 * * *", cfg.FXRevaluationCron)
	require.Equal(t, "127.0.0.1:1025", cfg.SMTPAddr())
}

func TestLoadConfigRejectsInvalidValues(t *testing.T) {
	cases := map[string]map[string]string{
		"store":           {"STORE": "sqlite"},
		"currency":        {"STORE": "memory", "BASE_CURRENCY": "XYZW"},
		"negative ttl":    {"STORE": "memory", "POSTING_LOCK_TTL": "-1s"},
		"production auth": {"STORE": "memory", "APP_ENV": "production"},
	}
	for name, env := range cases {
		t.Run(name, func(t *testing.T) {
			for k, v := range env {
				t.Setenv(k, v)
			}
			_, err := LoadConfig()
			require.Error(t, err)
		})
	}
}
