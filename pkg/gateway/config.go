// Package gateway loads configuration and wires the recognizer vendor into
// the server.
package gateway

import (
	"fmt"

	"github.com/spf13/viper"

	"github.com/eduassist/speechgate/pkg/server"
)

type Config struct {
	Server        server.Config       `mapstructure:"server"`
	Vendor        VendorConfig        `mapstructure:"vendor"`
	Environment   string              `mapstructure:"environment"`
	LogLevel      string              `mapstructure:"log_level"`
	LogFormat     string              `mapstructure:"log_format"`
	SentryDSN     string              `mapstructure:"sentry_dsn"`
	Privacy       PrivacyConfig       `mapstructure:"privacy"`
	Observability ObservabilityConfig `mapstructure:"observability"`
}

// VendorConfig selects the speech provider and carries its free-form
// settings, validated per vendor at factory build time.
type VendorConfig struct {
	Provider string         `mapstructure:"provider"`
	Settings map[string]any `mapstructure:"settings"`
}

type PrivacyConfig struct {
	RedactPII bool `mapstructure:"redact_pii"`
}

type ObservabilityConfig struct {
	MetricsFile     string  `mapstructure:"metrics_file"`
	FrameSampleRate float64 `mapstructure:"frame_sample_rate"`
}

func LoadConfig(path string) (Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetDefault("server.addr", ":8000")
	v.SetDefault("server.stream_path", "/v1/speech/stt/stream")
	v.SetDefault("server.transcribe_path", "/v1/speech/stt")
	v.SetDefault("server.initial_silence_ms", 4000)
	v.SetDefault("server.end_silence_ms", 800)
	v.SetDefault("server.include_raw", false)
	v.SetDefault("server.normalize_target", 30000)
	v.SetDefault("server.normalize_max_gain", 3.0)
	v.SetDefault("server.send_buffer", 64)
	v.SetDefault("server.write_timeout_ms", 5000)
	v.SetDefault("server.ready_timeout_ms", 10000)
	v.SetDefault("server.sync_timeout_ms", 30000)
	v.SetDefault("vendor.provider", "deepgram")
	v.SetDefault("environment", "development")
	v.SetDefault("log_level", "info")
	v.SetDefault("log_format", "text")
	v.SetDefault("privacy.redact_pii", true)
	v.SetDefault("observability.metrics_file", "")
	v.SetDefault("observability.frame_sample_rate", 0.01)

	v.SetEnvPrefix("SPEECHGATE")
	v.AutomaticEnv()
	_ = v.BindEnv("server.api_key", "SPEECHGATE_API_KEY", "API_KEY")

	if err := v.ReadInConfig(); err != nil {
		return Config{}, fmt.Errorf("read config: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal: %w", err)
	}
	return cfg, nil
}
