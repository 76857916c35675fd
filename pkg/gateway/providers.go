package gateway

import (
	"fmt"
	"strings"

	"github.com/eduassist/speechgate/pkg/configutil"
	"github.com/eduassist/speechgate/pkg/providers/deepgram"
	"github.com/eduassist/speechgate/pkg/providers/mock"
	"github.com/eduassist/speechgate/pkg/recognizer"
)

type deepgramSettings struct {
	APIKey string `mapstructure:"api_key"`
	Model  string `mapstructure:"model"`
}

type mockSettings struct {
	Transcript     string `mapstructure:"transcript"`
	Interim        string `mapstructure:"interim"`
	EmitInterim    *bool  `mapstructure:"emit_interim"`
	AutoFinalBytes int    `mapstructure:"auto_final_bytes"`
	DetectSilence  *bool  `mapstructure:"detect_silence"`
}

// BuildFactory turns the vendor config into a per-session recognizer
// factory. Settings are schema-validated so config typos fail at startup.
func BuildFactory(cfg VendorConfig) (recognizer.Factory, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Provider)) {
	case "", "deepgram":
		if err := configutil.ValidateSettings(cfg.Settings, configutil.Schema{
			Required: []string{"api_key"},
			Optional: []string{"model"},
		}); err != nil {
			return nil, fmt.Errorf("vendor.settings: %w", err)
		}
		var settings deepgramSettings
		if err := configutil.DecodeSettings(cfg.Settings, &settings); err != nil {
			return nil, fmt.Errorf("vendor.settings: %w", err)
		}
		if err := configutil.RequireString(settings.APIKey, "vendor.settings.api_key"); err != nil {
			return nil, err
		}
		return func(rc recognizer.Config) recognizer.Recognizer {
			return deepgram.New(rc, deepgram.Settings{
				APIKey: settings.APIKey,
				Model:  settings.Model,
			})
		}, nil

	case "mock":
		if err := configutil.ValidateSettings(cfg.Settings, configutil.Schema{
			Optional: []string{"transcript", "interim", "emit_interim", "auto_final_bytes", "detect_silence"},
		}); err != nil {
			return nil, fmt.Errorf("vendor.settings: %w", err)
		}
		var settings mockSettings
		if err := configutil.DecodeSettings(cfg.Settings, &settings); err != nil {
			return nil, fmt.Errorf("vendor.settings: %w", err)
		}
		return func(rc recognizer.Config) recognizer.Recognizer {
			return mock.New(mock.Config{
				StreamID:       rc.StreamID,
				Transcript:     settings.Transcript,
				Interim:        settings.Interim,
				EmitInterim:    configutil.BoolValue(settings.EmitInterim, true),
				AutoFinalBytes: settings.AutoFinalBytes,
				DetectSilence:  configutil.BoolValue(settings.DetectSilence, true),
				IncludeRaw:     rc.IncludeRaw,
			})
		}, nil

	default:
		return nil, fmt.Errorf("unknown vendor provider %q", cfg.Provider)
	}
}
