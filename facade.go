package fundiclient

import (
	"context"
	"fmt"
	"strings"

	glog "github.com/goliatone/go-logger/glog"
	repositorycache "github.com/goliatone/go-repository-cache/cache"

	"github.com/fundiapp/go-fundi-client/client"
	"github.com/fundiapp/go-fundi-client/core"
	"github.com/fundiapp/go-fundi-client/offline"
	"github.com/fundiapp/go-fundi-client/payments"
	"github.com/fundiapp/go-fundi-client/realtime"
	"github.com/fundiapp/go-fundi-client/session"
	sqlstore "github.com/fundiapp/go-fundi-client/store/sql"
)

// App wires the full client stack from one configuration: HTTP core with
// refresh coordination, payment APIs and poller, offline queue with
// connectivity monitor, realtime channel, and session manager. Subsystems
// share one credential store so a refresh or logout is visible everywhere.
type App struct {
	config  core.Config
	logger  core.Logger
	metrics core.MetricsRecorder

	credentials core.CredentialStore
	actions     core.OfflineActionStore

	http     *client.Client
	payments *payments.API
	poller   *payments.Poller
	queue    *offline.Queue
	monitor  *offline.Monitor
	realtime *realtime.Client
	session  *session.Manager
}

type Option func(*appBuilder)

type appBuilder struct {
	logger            core.Logger
	loggerProvider    core.LoggerProvider
	metrics           core.MetricsRecorder
	httpDoer          core.HTTPDoer
	credentials       core.CredentialStore
	actions           core.OfflineActionStore
	configProvider    core.ConfigProvider
	optionsResolver   core.OptionsResolver
	persistenceClient any
	identity          string
	credentialCache   repositorycache.CacheService
	realtimeDialer    realtime.Dialer
	probePath         string
	flushOnReconnect  bool
}

func WithLogger(logger core.Logger) Option {
	return func(b *appBuilder) { b.logger = logger }
}

func WithLoggerProvider(provider core.LoggerProvider) Option {
	return func(b *appBuilder) { b.loggerProvider = provider }
}

func WithMetricsRecorder(recorder core.MetricsRecorder) Option {
	return func(b *appBuilder) { b.metrics = recorder }
}

// WithHTTPDoer swaps the transport used by the HTTP core.
func WithHTTPDoer(doer core.HTTPDoer) Option {
	return func(b *appBuilder) { b.httpDoer = doer }
}

func WithCredentialStore(store core.CredentialStore) Option {
	return func(b *appBuilder) { b.credentials = store }
}

func WithOfflineActionStore(store core.OfflineActionStore) Option {
	return func(b *appBuilder) { b.actions = store }
}

func WithConfigProvider(provider core.ConfigProvider) Option {
	return func(b *appBuilder) { b.configProvider = provider }
}

func WithOptionsResolver(resolver core.OptionsResolver) Option {
	return func(b *appBuilder) { b.optionsResolver = resolver }
}

// WithPersistenceClient supplies a bun-backed database. Combined with
// WithIdentity it replaces the in-memory stores with SQL-backed ones.
func WithPersistenceClient(persistenceClient any) Option {
	return func(b *appBuilder) { b.persistenceClient = persistenceClient }
}

// WithIdentity scopes SQL-backed stores to one local account.
func WithIdentity(identity string) Option {
	return func(b *appBuilder) { b.identity = strings.TrimSpace(identity) }
}

// WithCredentialCache fronts SQL credential reads with a cache service.
func WithCredentialCache(cacheService repositorycache.CacheService) Option {
	return func(b *appBuilder) { b.credentialCache = cacheService }
}

func WithRealtimeDialer(dialer realtime.Dialer) Option {
	return func(b *appBuilder) { b.realtimeDialer = dialer }
}

// WithProbePath overrides the endpoint the connectivity monitor pings.
func WithProbePath(path string) Option {
	return func(b *appBuilder) { b.probePath = path }
}

// WithoutFlushOnReconnect disables the automatic queue flush when the
// connectivity monitor observes an offline-to-online transition.
func WithoutFlushOnReconnect() Option {
	return func(b *appBuilder) { b.flushOnReconnect = false }
}

// New builds the full client stack. The runtime cfg is layered on top of
// defaults and any provider-loaded values before subsystems are built.
func New(cfg Config, opts ...Option) (*App, error) {
	b := appBuilder{flushOnReconnect: true}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt(&b)
	}

	provider, logger := glog.Resolve("fundi-client", b.loggerProvider, b.logger)
	logger = glog.Ensure(logger)
	if provider != nil {
		if named := provider.GetLogger("fundi-client"); named != nil {
			logger = glog.Ensure(named)
		}
	}
	if b.metrics == nil {
		b.metrics = core.NopMetricsRecorder{}
	}

	finalConfig, err := core.ResolveConfig(context.Background(), b.configProvider, b.optionsResolver, cfg)
	if err != nil {
		return nil, err
	}
	if err := finalConfig.Validate(); err != nil {
		return nil, err
	}

	credentials, actions, err := resolveStores(&b)
	if err != nil {
		return nil, err
	}

	httpClient, err := client.New(finalConfig,
		client.WithHTTPClient(b.httpDoer),
		client.WithCredentialStore(credentials),
		client.WithLogger(logger),
		client.WithMetricsRecorder(b.metrics),
	)
	if err != nil {
		return nil, err
	}

	paymentsAPI, err := payments.NewAPI(httpClient)
	if err != nil {
		return nil, err
	}
	poller, err := payments.NewPoller(finalConfig, paymentsAPI,
		payments.WithPollerLogger(logger),
		payments.WithPollerMetrics(b.metrics),
	)
	if err != nil {
		return nil, err
	}

	sender, err := offline.NewClientSender(httpClient)
	if err != nil {
		return nil, err
	}
	queue, err := offline.NewQueue(finalConfig, sender,
		offline.WithStore(actions),
		offline.WithLogger(logger),
		offline.WithMetricsRecorder(b.metrics),
	)
	if err != nil {
		return nil, err
	}
	probe, err := offline.NewHTTPProbe(httpClient, b.probePath)
	if err != nil {
		return nil, err
	}
	monitor, err := offline.NewMonitor(finalConfig, probe,
		offline.WithMonitorLogger(logger),
	)
	if err != nil {
		return nil, err
	}
	if b.flushOnReconnect {
		monitor.OnOnline(func(ctx context.Context) {
			queue.Flush(ctx)
		})
	}

	var realtimeClient *realtime.Client
	if strings.TrimSpace(finalConfig.Realtime.URL) != "" {
		realtimeOpts := []realtime.Option{
			realtime.WithLogger(logger),
			realtime.WithMetricsRecorder(b.metrics),
		}
		if b.realtimeDialer != nil {
			realtimeOpts = append(realtimeOpts, realtime.WithDialer(b.realtimeDialer))
		}
		realtimeClient, err = realtime.New(finalConfig, accessTokenFunc(credentials), realtimeOpts...)
		if err != nil {
			return nil, err
		}
	}

	sessionOpts := []session.Option{
		session.WithLogger(logger),
		session.WithTeardown(queue.Clear),
	}
	if realtimeClient != nil {
		rt := realtimeClient
		sessionOpts = append(sessionOpts, session.WithTeardown(func(context.Context) error {
			return rt.Disconnect()
		}))
	}
	sessionManager, err := session.NewManager(httpClient, credentials, sessionOpts...)
	if err != nil {
		return nil, err
	}

	return &App{
		config:      finalConfig,
		logger:      logger,
		metrics:     b.metrics,
		credentials: credentials,
		actions:     actions,
		http:        httpClient,
		payments:    paymentsAPI,
		poller:      poller,
		queue:       queue,
		monitor:     monitor,
		realtime:    realtimeClient,
		session:     sessionManager,
	}, nil
}

func resolveStores(b *appBuilder) (core.CredentialStore, core.OfflineActionStore, error) {
	credentials := b.credentials
	actions := b.actions
	if (credentials == nil || actions == nil) && b.persistenceClient != nil {
		if b.identity == "" {
			return nil, nil, fmt.Errorf("fundiclient: identity is required with a persistence client")
		}
		var factoryOpts []sqlstore.FactoryOption
		if b.credentialCache != nil {
			factoryOpts = append(factoryOpts, sqlstore.WithCredentialCache(b.credentialCache))
		}
		factory := sqlstore.NewRepositoryFactory(b.identity, factoryOpts...)
		if err := factory.BuildStores(b.persistenceClient); err != nil {
			return nil, nil, err
		}
		if credentials == nil {
			credentials = factory.CredentialStore()
		}
		if actions == nil {
			actions = factory.OfflineActionStore()
		}
	}
	if credentials == nil {
		credentials = core.NewMemoryCredentialStore()
	}
	if actions == nil {
		actions = core.NewMemoryOfflineActionStore()
	}
	return credentials, actions, nil
}

func accessTokenFunc(credentials core.CredentialStore) realtime.TokenFunc {
	return func(ctx context.Context) (string, error) {
		cred, err := credentials.Get(ctx)
		if err != nil {
			return "", err
		}
		return cred.AccessToken, nil
	}
}

// Start begins background work: the connectivity monitor loop and, when
// configured, the realtime channel connection.
func (a *App) Start(ctx context.Context) error {
	if a == nil {
		return fmt.Errorf("fundiclient: app is nil")
	}
	a.monitor.Start(ctx)
	if a.realtime != nil {
		if err := a.realtime.Connect(ctx); err != nil {
			return err
		}
	}
	return nil
}

// Stop halts background work. Queued offline actions and credentials are
// left in place for the next start.
func (a *App) Stop() error {
	if a == nil {
		return nil
	}
	a.monitor.Stop()
	if a.realtime != nil {
		return a.realtime.Disconnect()
	}
	return nil
}

func (a *App) Config() core.Config {
	if a == nil {
		return core.Config{}
	}
	return a.config
}

func (a *App) HTTP() *client.Client {
	if a == nil {
		return nil
	}
	return a.http
}

func (a *App) Payments() *payments.API {
	if a == nil {
		return nil
	}
	return a.payments
}

func (a *App) Poller() *payments.Poller {
	if a == nil {
		return nil
	}
	return a.poller
}

func (a *App) Offline() *offline.Queue {
	if a == nil {
		return nil
	}
	return a.queue
}

func (a *App) Monitor() *offline.Monitor {
	if a == nil {
		return nil
	}
	return a.monitor
}

func (a *App) Realtime() *realtime.Client {
	if a == nil {
		return nil
	}
	return a.realtime
}

func (a *App) Session() *session.Manager {
	if a == nil {
		return nil
	}
	return a.session
}

func (a *App) Credentials() core.CredentialStore {
	if a == nil {
		return nil
	}
	return a.credentials
}
