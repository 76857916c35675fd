package configutil

import (
	"strings"
	"testing"
)

type sampleSettings struct {
	APIKey  string `mapstructure:"api_key"`
	Model   string `mapstructure:"model"`
	Retries int    `mapstructure:"retries"`
}

func TestDecodeSettingsKeySpellings(t *testing.T) {
	cases := []map[string]any{
		{"api_key": "k", "model": "nova-2", "retries": 3},
		{"api-key": "k", "Model": "nova-2", "retries": "3"},
		{"APIKey": "k", "MODEL": "nova-2", "Retries": 3},
	}
	for _, input := range cases {
		var out sampleSettings
		if err := DecodeSettings(input, &out); err != nil {
			t.Fatalf("decode %v: %v", input, err)
		}
		if out.APIKey != "k" || out.Model != "nova-2" || out.Retries != 3 {
			t.Fatalf("decode %v: got %+v", input, out)
		}
	}
}

func TestDecodeSettingsEmptyInput(t *testing.T) {
	out := sampleSettings{APIKey: "keep"}
	if err := DecodeSettings(nil, &out); err != nil {
		t.Fatalf("decode nil: %v", err)
	}
	if out.APIKey != "keep" {
		t.Fatalf("nil input overwrote existing values: %+v", out)
	}
}

func TestValidateSettings(t *testing.T) {
	schema := Schema{Required: []string{"api_key"}, Optional: []string{"model"}}

	if err := ValidateSettings(map[string]any{"api_key": "k", "model": "m"}, schema); err != nil {
		t.Fatalf("valid settings rejected: %v", err)
	}

	err := ValidateSettings(map[string]any{"model": "m"}, schema)
	if err == nil || !strings.Contains(err.Error(), "missing: api_key") {
		t.Fatalf("expected missing api_key, got %v", err)
	}

	err = ValidateSettings(map[string]any{"api_key": "k", "modle": "typo"}, schema)
	if err == nil || !strings.Contains(err.Error(), "unknown: modle") {
		t.Fatalf("expected unknown key error, got %v", err)
	}

	err = ValidateSettings(map[string]any{"api_key": "  "}, schema)
	if err == nil || !strings.Contains(err.Error(), "missing: api_key") {
		t.Fatalf("expected blank required value to count as missing, got %v", err)
	}

	if err := ValidateSettings(map[string]any{"api_key": "k", "extra": 1}, Schema{
		Required:     []string{"api_key"},
		AllowUnknown: true,
	}); err != nil {
		t.Fatalf("AllowUnknown still rejected: %v", err)
	}
}

func TestRequireString(t *testing.T) {
	if err := RequireString("value", "field"); err != nil {
		t.Fatalf("non-empty rejected: %v", err)
	}
	if err := RequireString("  ", "vendor.settings.api_key"); err == nil {
		t.Fatalf("blank accepted")
	}
}

func TestPointerFallbacks(t *testing.T) {
	if BoolValue(nil, true) != true {
		t.Fatalf("nil bool fallback broken")
	}
	f := false
	if BoolValue(&f, true) != false {
		t.Fatalf("explicit false ignored")
	}
	if IntValue(nil, 7) != 7 {
		t.Fatalf("nil int fallback broken")
	}
	n := 0
	if IntValue(&n, 7) != 0 {
		t.Fatalf("explicit zero ignored")
	}
}
