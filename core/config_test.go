package core

import (
	"context"
	"testing"
)

func TestDefaultConfig_Validates(t *testing.T) {
	cfg := DefaultConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config should validate: %v", err)
	}
}

func TestConfigValidate_RejectsBadValues(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"empty client name", func(c *Config) { c.ClientName = "  " }},
		{"negative http timeout", func(c *Config) { c.HTTP.TimeoutMS = -1 }},
		{"negative poll attempts", func(c *Config) { c.Payments.MaxAttempts = -1 }},
		{"negative poll interval", func(c *Config) { c.Payments.PollIntervalMS = -1 }},
		{"negative offline retries", func(c *Config) { c.Offline.MaxRetries = -1 }},
		{"negative probe interval", func(c *Config) { c.Offline.ProbeIntervalMS = -1 }},
		{"negative reconnect attempts", func(c *Config) { c.Realtime.MaxReconnectAttempts = -1 }},
		{"negative reconnect delay", func(c *Config) { c.Realtime.ReconnectDelayMS = -1 }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tc.mutate(&cfg)
			if err := cfg.Validate(); err == nil {
				t.Fatalf("expected validation error")
			}
		})
	}
}

func TestResolveConfig_RuntimeOverridesDefaults(t *testing.T) {
	runtime := Config{}
	runtime.HTTP.BaseURL = "https://api.fundi.test"
	runtime.Payments.MaxAttempts = 3

	resolved, err := ResolveConfig(context.Background(), nil, nil, runtime)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}

	if resolved.HTTP.BaseURL != "https://api.fundi.test" {
		t.Fatalf("expected runtime base url, got %q", resolved.HTTP.BaseURL)
	}
	if resolved.Payments.MaxAttempts != 3 {
		t.Fatalf("expected runtime attempts, got %d", resolved.Payments.MaxAttempts)
	}
	// untouched sections keep defaults
	if resolved.ClientName != DefaultConfig().ClientName {
		t.Fatalf("expected default client name, got %q", resolved.ClientName)
	}
	if resolved.Offline.MaxRetries != DefaultConfig().Offline.MaxRetries {
		t.Fatalf("expected default offline retries, got %d", resolved.Offline.MaxRetries)
	}
}

func TestResolveConfig_LoaderValuesLayerBetween(t *testing.T) {
	provider := NewCfgxConfigProvider(staticRawConfigLoader{Values: map[string]any{
		"client_name": "loaded-name",
		"http": map[string]any{
			"base_url": "https://loaded.fundi.test",
		},
	}})

	runtime := Config{}
	runtime.HTTP.BaseURL = "https://runtime.fundi.test"

	resolved, err := ResolveConfig(context.Background(), provider, GoOptionsResolver{}, runtime)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}

	if resolved.ClientName != "loaded-name" {
		t.Fatalf("expected loaded client name, got %q", resolved.ClientName)
	}
	if resolved.HTTP.BaseURL != "https://runtime.fundi.test" {
		t.Fatalf("expected runtime to win over loaded, got %q", resolved.HTTP.BaseURL)
	}
}
