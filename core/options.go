package core

import (
	"context"
	"fmt"
	"strings"

	"github.com/goliatone/go-config/cfgx"
	opts "github.com/goliatone/go-options"
)

type staticRawConfigLoader struct {
	Values map[string]any
}

func (l staticRawConfigLoader) LoadRaw(context.Context) (map[string]any, error) {
	if len(l.Values) == 0 {
		return map[string]any{}, nil
	}
	out := make(map[string]any, len(l.Values))
	for key, value := range l.Values {
		out[key] = value
	}
	return out, nil
}

type CfgxConfigProvider struct {
	Loader RawConfigLoader
}

func NewCfgxConfigProvider(loader RawConfigLoader) *CfgxConfigProvider {
	return &CfgxConfigProvider{Loader: loader}
}

func (p *CfgxConfigProvider) Load(ctx context.Context, defaults Config) (Config, error) {
	if p == nil {
		return defaults, nil
	}
	loader := p.Loader
	if loader == nil {
		loader = staticRawConfigLoader{}
	}
	raw, err := loader.LoadRaw(ctx)
	if err != nil {
		return Config{}, err
	}
	cfg, err := cfgx.Build[Config](raw,
		cfgx.WithDefaults(defaults),
		cfgx.WithValidator[Config]((*Config).Validate),
	)
	if err != nil {
		return Config{}, err
	}
	return cfg, nil
}

type GoOptionsResolver struct{}

func (GoOptionsResolver) Resolve(defaults Config, loaded Config, runtime Config) (Config, error) {
	defaultLayer := configToLayerMap(defaults, true)
	loadedLayer := configToLayerMap(loaded, false)
	runtimeLayer := configToLayerMap(runtime, false)

	stack, err := opts.NewStack(
		opts.NewLayer(
			opts.NewScope("defaults", 0),
			defaultLayer,
			opts.WithSnapshotID[map[string]any]("defaults"),
		),
		opts.NewLayer(
			opts.NewScope("config", 10),
			loadedLayer,
			opts.WithSnapshotID[map[string]any]("config"),
		),
		opts.NewLayer(
			opts.NewScope("runtime", 20),
			runtimeLayer,
			opts.WithSnapshotID[map[string]any]("runtime"),
		),
	)
	if err != nil {
		return Config{}, fmt.Errorf("core: options stack build failed: %w", err)
	}
	merged, err := stack.Merge()
	if err != nil {
		return Config{}, fmt.Errorf("core: options merge failed: %w", err)
	}
	resolved, err := cfgx.Build[Config](merged.Value,
		cfgx.WithDefaults(defaults),
		cfgx.WithValidator[Config]((*Config).Validate),
	)
	if err != nil {
		return Config{}, err
	}
	if err := resolved.Validate(); err != nil {
		return Config{}, err
	}
	return resolved, nil
}

func configToLayerMap(cfg Config, includeZero bool) map[string]any {
	layer := map[string]any{}
	if includeZero || strings.TrimSpace(cfg.ClientName) != "" {
		layer["client_name"] = cfg.ClientName
	}

	httpLayer := map[string]any{}
	if includeZero || strings.TrimSpace(cfg.HTTP.BaseURL) != "" {
		httpLayer["base_url"] = cfg.HTTP.BaseURL
	}
	if includeZero || cfg.HTTP.TimeoutMS != 0 {
		httpLayer["timeout_ms"] = cfg.HTTP.TimeoutMS
	}
	if includeZero || strings.TrimSpace(cfg.HTTP.RefreshPath) != "" {
		httpLayer["refresh_path"] = cfg.HTTP.RefreshPath
	}
	if includeZero || cfg.HTTP.MaxResponseBodyBytes != 0 {
		httpLayer["max_response_body_bytes"] = cfg.HTTP.MaxResponseBodyBytes
	}
	if len(httpLayer) > 0 {
		layer["http"] = httpLayer
	}

	paymentsLayer := map[string]any{}
	if includeZero || cfg.Payments.MaxAttempts != 0 {
		paymentsLayer["max_attempts"] = cfg.Payments.MaxAttempts
	}
	if includeZero || cfg.Payments.PollIntervalMS != 0 {
		paymentsLayer["poll_interval_ms"] = cfg.Payments.PollIntervalMS
	}
	if len(paymentsLayer) > 0 {
		layer["payments"] = paymentsLayer
	}

	offlineLayer := map[string]any{}
	if includeZero || cfg.Offline.MaxRetries != 0 {
		offlineLayer["max_retries"] = cfg.Offline.MaxRetries
	}
	if includeZero || cfg.Offline.ProbeIntervalMS != 0 {
		offlineLayer["probe_interval_ms"] = cfg.Offline.ProbeIntervalMS
	}
	if len(offlineLayer) > 0 {
		layer["offline"] = offlineLayer
	}

	realtimeLayer := map[string]any{}
	if includeZero || strings.TrimSpace(cfg.Realtime.URL) != "" {
		realtimeLayer["url"] = cfg.Realtime.URL
	}
	if includeZero || cfg.Realtime.MaxReconnectAttempts != 0 {
		realtimeLayer["max_reconnect_attempts"] = cfg.Realtime.MaxReconnectAttempts
	}
	if includeZero || cfg.Realtime.ReconnectDelayMS != 0 {
		realtimeLayer["reconnect_delay_ms"] = cfg.Realtime.ReconnectDelayMS
	}
	if len(realtimeLayer) > 0 {
		layer["realtime"] = realtimeLayer
	}

	return layer
}

// ResolveConfig layers defaults, provider-loaded values, and runtime
// overrides into the effective configuration.
func ResolveConfig(ctx context.Context, provider ConfigProvider, resolver OptionsResolver, runtime Config) (Config, error) {
	defaults := DefaultConfig()
	if provider == nil {
		provider = NewCfgxConfigProvider(nil)
	}
	if resolver == nil {
		resolver = GoOptionsResolver{}
	}
	loaded, err := provider.Load(ctx, defaults)
	if err != nil {
		return Config{}, err
	}
	return resolver.Resolve(defaults, loaded, runtime)
}
