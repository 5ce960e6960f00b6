// File: internal/config/config.go
package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// Config holds the entire application configuration.
type Config struct {
	Logger     LoggerConfig     `mapstructure:"logger" yaml:"logger"`
	Detector   DetectorConfig   `mapstructure:"detector" yaml:"detector"`
	Backend    BackendConfig    `mapstructure:"backend" yaml:"backend"`
	Window     WindowConfig     `mapstructure:"window" yaml:"window"`
	Injector   InjectorConfig   `mapstructure:"injector" yaml:"injector"`
	Dispatcher DispatcherConfig `mapstructure:"dispatcher" yaml:"dispatcher"`
	Verifier   VerifierConfig   `mapstructure:"verifier" yaml:"verifier"`
	Session    SessionConfig    `mapstructure:"session" yaml:"session"`
	Journal    JournalConfig    `mapstructure:"journal" yaml:"journal"`
}

// LoggerConfig holds all the configuration for the logger.
type LoggerConfig struct {
	Level       string      `mapstructure:"level" yaml:"level"`
	Format      string      `mapstructure:"format" yaml:"format"`
	AddSource   bool        `mapstructure:"add_source" yaml:"add_source"`
	ServiceName string      `mapstructure:"service_name" yaml:"service_name"`
	LogFile     string      `mapstructure:"log_file" yaml:"log_file"`
	MaxSize     int         `mapstructure:"max_size" yaml:"max_size"`
	MaxBackups  int         `mapstructure:"max_backups" yaml:"max_backups"`
	MaxAge      int         `mapstructure:"max_age" yaml:"max_age"`
	Compress    bool        `mapstructure:"compress" yaml:"compress"`
	Colors      ColorConfig `mapstructure:"colors" yaml:"colors"`
}

// ColorConfig defines the color codes for different log levels.
type ColorConfig struct {
	Debug  string `mapstructure:"debug" yaml:"debug"`
	Info   string `mapstructure:"info" yaml:"info"`
	Warn   string `mapstructure:"warn" yaml:"warn"`
	Error  string `mapstructure:"error" yaml:"error"`
	DPanic string `mapstructure:"dpanic" yaml:"dpanic"`
	Panic  string `mapstructure:"panic" yaml:"panic"`
	Fatal  string `mapstructure:"fatal" yaml:"fatal"`
}

// DetectorConfig tunes the perception pipeline: how the screenshot is tiled,
// how many tiles are inferred concurrently, and how duplicates from
// overlapping tiles are suppressed.
type DetectorConfig struct {
	Endpoint            string        `mapstructure:"endpoint" yaml:"endpoint"`
	ConfidenceThreshold float64       `mapstructure:"confidence_threshold" yaml:"confidence_threshold"`
	Timeout             time.Duration `mapstructure:"timeout" yaml:"timeout"`
	TileSize            int           `mapstructure:"tile_size" yaml:"tile_size"`
	TileOverlap         int           `mapstructure:"tile_overlap" yaml:"tile_overlap"`
	Concurrency         int           `mapstructure:"concurrency" yaml:"concurrency"`
	IoUThreshold        float64       `mapstructure:"iou_threshold" yaml:"iou_threshold"`
}

// BackendConfig points at the structured automation bridge of the target
// application. An empty endpoint disables the structured path; structured
// and hybrid operations then resolve through their visual fallback.
type BackendConfig struct {
	Endpoint string        `mapstructure:"endpoint" yaml:"endpoint"`
	Timeout  time.Duration `mapstructure:"timeout" yaml:"timeout"`
}

// WindowConfig identifies the target application window and bounds the
// locate/activate polling.
type WindowConfig struct {
	TitlePattern   string        `mapstructure:"title_pattern" yaml:"title_pattern"`
	LocateTimeout  time.Duration `mapstructure:"locate_timeout" yaml:"locate_timeout"`
	LocateInterval time.Duration `mapstructure:"locate_interval" yaml:"locate_interval"`
}

// InjectorConfig shapes the synthesized mouse movement.
type InjectorConfig struct {
	// StepsPerSecond is the cursor waypoint rate along a trajectory.
	StepsPerSecond int `mapstructure:"steps_per_second" yaml:"steps_per_second"`
	// MoveDuration is the wall time budget for one cursor travel.
	MoveDuration time.Duration `mapstructure:"move_duration" yaml:"move_duration"`
	// JitterAmplitude scales the perlin deviation, in pixels.
	JitterAmplitude float64       `mapstructure:"jitter_amplitude" yaml:"jitter_amplitude"`
	ClickHold       time.Duration `mapstructure:"click_hold" yaml:"click_hold"`
}

// DispatcherConfig governs modality selection and fallback.
type DispatcherConfig struct {
	EnableFallback bool `mapstructure:"enable_fallback" yaml:"enable_fallback"`
}

// VerifierConfig bounds the retry/escalation loop.
type VerifierConfig struct {
	MaxAttempts int `mapstructure:"max_attempts" yaml:"max_attempts"`
	// Backoff is the monotonically non-decreasing wait schedule between
	// attempts; the last entry repeats when attempts outnumber entries.
	Backoff     []time.Duration `mapstructure:"backoff" yaml:"backoff"`
	SettleDelay time.Duration   `mapstructure:"settle_delay" yaml:"settle_delay"`
}

// SessionConfig bounds one ActionRequest end to end.
type SessionConfig struct {
	// RequestTimeout is the cumulative ceiling across
	// capture+detect+dispatch+verify for a single request.
	RequestTimeout time.Duration `mapstructure:"request_timeout" yaml:"request_timeout"`
}

// JournalConfig configures the optional action journal.
type JournalConfig struct {
	Enabled bool   `mapstructure:"enabled" yaml:"enabled"`
	URL     string `mapstructure:"url" yaml:"url"`
}

// SetDefaults initializes default values for all configuration parameters.
func SetDefaults(v *viper.Viper) {
	// -- Logger --
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "console")
	v.SetDefault("logger.add_source", false)
	v.SetDefault("logger.service_name", "visor-cli")
	v.SetDefault("logger.log_file", "visor.log")
	v.SetDefault("logger.max_size", 100)
	v.SetDefault("logger.max_backups", 5)
	v.SetDefault("logger.max_age", 30)
	v.SetDefault("logger.compress", true)

	// -- Detector --
	v.SetDefault("detector.confidence_threshold", 0.35)
	v.SetDefault("detector.timeout", "15s")
	v.SetDefault("detector.tile_size", 640)
	v.SetDefault("detector.tile_overlap", 96)
	v.SetDefault("detector.concurrency", 4)
	v.SetDefault("detector.iou_threshold", 0.45)

	// -- Backend --
	v.SetDefault("backend.endpoint", "")
	v.SetDefault("backend.timeout", "20s")

	// -- Window --
	v.SetDefault("window.title_pattern", "")
	v.SetDefault("window.locate_timeout", "30s")
	v.SetDefault("window.locate_interval", "500ms")

	// -- Injector --
	v.SetDefault("injector.steps_per_second", 120)
	v.SetDefault("injector.move_duration", "350ms")
	v.SetDefault("injector.jitter_amplitude", 2.5)
	v.SetDefault("injector.click_hold", "60ms")

	// -- Dispatcher --
	v.SetDefault("dispatcher.enable_fallback", true)

	// -- Verifier --
	v.SetDefault("verifier.max_attempts", 2)
	v.SetDefault("verifier.backoff", []string{"300ms", "800ms", "1.5s"})
	v.SetDefault("verifier.settle_delay", "250ms")

	// -- Session --
	v.SetDefault("session.request_timeout", "60s")

	// -- Journal --
	v.SetDefault("journal.enabled", false)
}

// NewDefaultConfig creates a configuration struct populated with defaults.
func NewDefaultConfig() *Config {
	v := viper.New()
	SetDefaults(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		// Cannot happen with defaults alone.
		panic(fmt.Sprintf("failed to unmarshal default config: %v", err))
	}
	return &cfg
}

// NewConfigFromViper creates a configuration instance from a viper object.
func NewConfigFromViper(v *viper.Viper) (*Config, error) {
	var cfg Config

	v.BindEnv("journal.url", "VISOR_JOURNAL_URL")

	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

// Validate checks the configuration for required fields and sane values.
func (c *Config) Validate() error {
	if c.Detector.Concurrency <= 0 {
		return fmt.Errorf("detector.concurrency must be a positive integer")
	}
	if c.Detector.TileSize <= 0 {
		return fmt.Errorf("detector.tile_size must be a positive integer")
	}
	if c.Detector.TileOverlap < 0 || c.Detector.TileOverlap >= c.Detector.TileSize {
		return fmt.Errorf("detector.tile_overlap must be in [0, tile_size)")
	}
	if c.Detector.IoUThreshold <= 0 || c.Detector.IoUThreshold > 1 {
		return fmt.Errorf("detector.iou_threshold must be in (0, 1]")
	}
	if c.Detector.ConfidenceThreshold < 0 || c.Detector.ConfidenceThreshold > 1 {
		return fmt.Errorf("detector.confidence_threshold must be in [0, 1]")
	}
	if c.Verifier.MaxAttempts < 0 {
		return fmt.Errorf("verifier.max_attempts must not be negative")
	}
	for i := 1; i < len(c.Verifier.Backoff); i++ {
		if c.Verifier.Backoff[i] < c.Verifier.Backoff[i-1] {
			return fmt.Errorf("verifier.backoff must be non-decreasing")
		}
	}
	if c.Session.RequestTimeout <= 0 {
		return fmt.Errorf("session.request_timeout must be a positive duration")
	}
	if c.Journal.Enabled && c.Journal.URL == "" {
		return fmt.Errorf("journal.url is required when journal.enabled is set")
	}
	return nil
}
