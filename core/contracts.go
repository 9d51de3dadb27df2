package core

import (
	"context"
	"net/http"

	glog "github.com/goliatone/go-logger/glog"
)

type Logger = glog.Logger

type LoggerProvider = glog.LoggerProvider

type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// CredentialStore persists the session credential pair. A store instance is
// scoped to one logged-in identity. Get returns a zero credential, not an
// error, when no session exists. Save persists both tokens in one write.
type CredentialStore interface {
	Get(ctx context.Context) (Credential, error)
	Save(ctx context.Context, cred Credential) error
	Clear(ctx context.Context) error
}

// OfflineActionStore is the durable backing collection for the offline
// queue. ListPending returns actions in insertion order. The store is owned
// exclusively by the queue component.
type OfflineActionStore interface {
	Append(ctx context.Context, action OfflineAction) (OfflineAction, error)
	ListPending(ctx context.Context) ([]OfflineAction, error)
	ListDead(ctx context.Context) ([]OfflineAction, error)
	Update(ctx context.Context, action OfflineAction) error
	Remove(ctx context.Context, id string) error
	MarkDead(ctx context.Context, id string, reason string) error
	Clear(ctx context.Context) error
}

type MetricsRecorder interface {
	IncCounter(ctx context.Context, name string, value int64, tags map[string]string)
	ObserveHistogram(ctx context.Context, name string, value float64, tags map[string]string)
}

type ConfigProvider interface {
	Load(ctx context.Context, defaults Config) (Config, error)
}

type RawConfigLoader interface {
	LoadRaw(ctx context.Context) (map[string]any, error)
}

type OptionsResolver interface {
	Resolve(defaults Config, loaded Config, runtime Config) (Config, error)
}
