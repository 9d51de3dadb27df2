// Package fundiclient is the resilient request layer for the Fundi
// marketplace mobile client: authenticated HTTP with single-flight token
// refresh, mobile-money payment polling, a durable offline action queue,
// and the realtime booking channel.
package fundiclient

import "github.com/fundiapp/go-fundi-client/core"

type Config = core.Config
type HTTPConfig = core.HTTPConfig
type PaymentsConfig = core.PaymentsConfig
type OfflineConfig = core.OfflineConfig
type RealtimeConfig = core.RealtimeConfig

type Credential = core.Credential
type CredentialStore = core.CredentialStore
type OfflineAction = core.OfflineAction
type OfflineActionStore = core.OfflineActionStore
type PaymentStatus = core.PaymentStatus
type PaymentResult = core.PaymentResult
type FlushReport = core.FlushReport

type Logger = core.Logger
type LoggerProvider = core.LoggerProvider
type MetricsRecorder = core.MetricsRecorder
type ConfigProvider = core.ConfigProvider
type OptionsResolver = core.OptionsResolver

func DefaultConfig() Config {
	return core.DefaultConfig()
}
