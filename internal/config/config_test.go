// File: internal/config/config_test.go
package config

import (
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewDefaultConfig(t *testing.T) {
	cfg := NewDefaultConfig()

	assert.Equal(t, "info", cfg.Logger.Level)
	assert.Equal(t, "visor-cli", cfg.Logger.ServiceName)

	assert.Equal(t, 640, cfg.Detector.TileSize)
	assert.Equal(t, 96, cfg.Detector.TileOverlap)
	assert.Equal(t, 4, cfg.Detector.Concurrency)
	assert.InDelta(t, 0.45, cfg.Detector.IoUThreshold, 1e-9)

	assert.Equal(t, 2, cfg.Verifier.MaxAttempts)
	assert.Equal(t, 250*time.Millisecond, cfg.Verifier.SettleDelay)
	require.Len(t, cfg.Verifier.Backoff, 3)
	assert.Equal(t, 300*time.Millisecond, cfg.Verifier.Backoff[0])

	assert.Equal(t, time.Minute, cfg.Session.RequestTimeout)
	assert.True(t, cfg.Dispatcher.EnableFallback)
	assert.False(t, cfg.Journal.Enabled)

	t.Run("defaults validate", func(t *testing.T) {
		assert.NoError(t, cfg.Validate())
	})
}

func TestNewConfigFromViper(t *testing.T) {
	t.Run("applies overrides on top of defaults", func(t *testing.T) {
		v := viper.New()
		SetDefaults(v)
		v.Set("window.title_pattern", "CATIA")
		v.Set("detector.concurrency", 8)
		v.Set("verifier.max_attempts", 5)

		cfg, err := NewConfigFromViper(v)
		require.NoError(t, err)
		assert.Equal(t, "CATIA", cfg.Window.TitlePattern)
		assert.Equal(t, 8, cfg.Detector.Concurrency)
		assert.Equal(t, 5, cfg.Verifier.MaxAttempts)
		// Untouched values keep their defaults.
		assert.Equal(t, 640, cfg.Detector.TileSize)
	})

	t.Run("rejects invalid configurations", func(t *testing.T) {
		v := viper.New()
		SetDefaults(v)
		v.Set("detector.concurrency", 0)
		_, err := NewConfigFromViper(v)
		assert.Error(t, err)
	})

	t.Run("reads the journal URL from the environment", func(t *testing.T) {
		t.Setenv("VISOR_JOURNAL_URL", "postgres://visor:pw@localhost:5432/visor")
		v := viper.New()
		SetDefaults(v)
		v.Set("journal.enabled", true)

		cfg, err := NewConfigFromViper(v)
		require.NoError(t, err)
		assert.Equal(t, "postgres://visor:pw@localhost:5432/visor", cfg.Journal.URL)
	})
}

func TestValidate(t *testing.T) {
	base := func() *Config { return NewDefaultConfig() }

	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"zero detector concurrency", func(c *Config) { c.Detector.Concurrency = 0 }},
		{"zero tile size", func(c *Config) { c.Detector.TileSize = 0 }},
		{"overlap at least tile size", func(c *Config) { c.Detector.TileOverlap = c.Detector.TileSize }},
		{"negative overlap", func(c *Config) { c.Detector.TileOverlap = -1 }},
		{"iou threshold out of range", func(c *Config) { c.Detector.IoUThreshold = 1.5 }},
		{"confidence threshold out of range", func(c *Config) { c.Detector.ConfidenceThreshold = -0.1 }},
		{"negative max attempts", func(c *Config) { c.Verifier.MaxAttempts = -1 }},
		{"decreasing backoff", func(c *Config) {
			c.Verifier.Backoff = []time.Duration{time.Second, 100 * time.Millisecond}
		}},
		{"non-positive request timeout", func(c *Config) { c.Session.RequestTimeout = 0 }},
		{"journal enabled without URL", func(c *Config) { c.Journal.Enabled = true; c.Journal.URL = "" }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := base()
			tc.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}

	t.Run("a single-entry backoff schedule is valid", func(t *testing.T) {
		cfg := base()
		cfg.Verifier.Backoff = []time.Duration{500 * time.Millisecond}
		assert.NoError(t, cfg.Validate())
	})
}
