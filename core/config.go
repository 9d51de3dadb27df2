package core

import (
	"fmt"
	"net/url"
	"strings"
)

type HTTPConfig struct {
	BaseURL              string `koanf:"base_url" mapstructure:"base_url"`
	TimeoutMS            int    `koanf:"timeout_ms" mapstructure:"timeout_ms"`
	RefreshPath          string `koanf:"refresh_path" mapstructure:"refresh_path"`
	MaxResponseBodyBytes int64  `koanf:"max_response_body_bytes" mapstructure:"max_response_body_bytes"`
}

type PaymentsConfig struct {
	MaxAttempts    int `koanf:"max_attempts" mapstructure:"max_attempts"`
	PollIntervalMS int `koanf:"poll_interval_ms" mapstructure:"poll_interval_ms"`
}

type OfflineConfig struct {
	MaxRetries      int `koanf:"max_retries" mapstructure:"max_retries"`
	ProbeIntervalMS int `koanf:"probe_interval_ms" mapstructure:"probe_interval_ms"`
}

type RealtimeConfig struct {
	URL                  string `koanf:"url" mapstructure:"url"`
	MaxReconnectAttempts int    `koanf:"max_reconnect_attempts" mapstructure:"max_reconnect_attempts"`
	ReconnectDelayMS     int    `koanf:"reconnect_delay_ms" mapstructure:"reconnect_delay_ms"`
}

type Config struct {
	ClientName string         `koanf:"client_name" mapstructure:"client_name"`
	HTTP       HTTPConfig     `koanf:"http" mapstructure:"http"`
	Payments   PaymentsConfig `koanf:"payments" mapstructure:"payments"`
	Offline    OfflineConfig  `koanf:"offline" mapstructure:"offline"`
	Realtime   RealtimeConfig `koanf:"realtime" mapstructure:"realtime"`
}

func DefaultConfig() Config {
	return Config{
		ClientName: "fundi-client",
		HTTP: HTTPConfig{
			TimeoutMS:            30_000,
			RefreshPath:          "/api/auth/refresh",
			MaxResponseBodyBytes: 10 << 20,
		},
		Payments: PaymentsConfig{
			MaxAttempts:    24,
			PollIntervalMS: 5_000,
		},
		Offline: OfflineConfig{
			MaxRetries:      5,
			ProbeIntervalMS: 15_000,
		},
		Realtime: RealtimeConfig{
			MaxReconnectAttempts: 5,
			ReconnectDelayMS:     3_000,
		},
	}
}

func (c Config) Validate() error {
	if strings.TrimSpace(c.ClientName) == "" {
		return fmt.Errorf("core: client_name is required")
	}
	if trimmed := strings.TrimSpace(c.HTTP.BaseURL); trimmed != "" {
		if _, err := url.Parse(trimmed); err != nil {
			return fmt.Errorf("core: http.base_url is invalid: %w", err)
		}
	}
	if c.HTTP.TimeoutMS < 0 {
		return fmt.Errorf("core: http.timeout_ms must not be negative")
	}
	if c.Payments.MaxAttempts < 0 {
		return fmt.Errorf("core: payments.max_attempts must not be negative")
	}
	if c.Payments.PollIntervalMS < 0 {
		return fmt.Errorf("core: payments.poll_interval_ms must not be negative")
	}
	if c.Offline.MaxRetries < 0 {
		return fmt.Errorf("core: offline.max_retries must not be negative")
	}
	if c.Offline.ProbeIntervalMS < 0 {
		return fmt.Errorf("core: offline.probe_interval_ms must not be negative")
	}
	if c.Realtime.MaxReconnectAttempts < 0 {
		return fmt.Errorf("core: realtime.max_reconnect_attempts must not be negative")
	}
	if c.Realtime.ReconnectDelayMS < 0 {
		return fmt.Errorf("core: realtime.reconnect_delay_ms must not be negative")
	}
	return nil
}
