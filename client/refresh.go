package client

import (
	"context"
	"fmt"
	"strings"
	"sync"

	glog "github.com/goliatone/go-logger/glog"

	"github.com/fundiapp/go-fundi-client/core"
)

// RefreshFunc exchanges a refresh token for a new credential pair.
type RefreshFunc func(ctx context.Context, refreshToken string) (core.Credential, error)

// RefreshCoordinator guarantees at most one refresh call is in flight no
// matter how many requests observe a 401 concurrently. Callers arriving
// while a refresh runs join a wait-list and all settle with the same
// outcome: success (retry with the new token) or a session-expired error.
//
// A refresh runs to completion once started; there is no caller-facing
// cancellation because partially persisted credential state is unsafe.
type RefreshCoordinator struct {
	mu         sync.Mutex
	refreshing bool
	waiters    []chan error

	credentials core.CredentialStore
	refresh     RefreshFunc
	logger      core.Logger
	metrics     core.MetricsRecorder
}

type CoordinatorOption func(*RefreshCoordinator)

func WithCoordinatorLogger(logger core.Logger) CoordinatorOption {
	return func(rc *RefreshCoordinator) {
		rc.logger = logger
	}
}

func WithCoordinatorMetrics(recorder core.MetricsRecorder) CoordinatorOption {
	return func(rc *RefreshCoordinator) {
		rc.metrics = recorder
	}
}

func NewRefreshCoordinator(credentials core.CredentialStore, refresh RefreshFunc, opts ...CoordinatorOption) (*RefreshCoordinator, error) {
	if credentials == nil {
		return nil, fmt.Errorf("client: credential store is required")
	}
	if refresh == nil {
		return nil, fmt.Errorf("client: refresh func is required")
	}
	rc := &RefreshCoordinator{
		credentials: credentials,
		refresh:     refresh,
		metrics:     core.NopMetricsRecorder{},
	}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt(rc)
	}
	rc.logger = glog.Ensure(rc.logger)
	return rc, nil
}

// Refresh settles when the current (or newly started) refresh completes.
// A nil return means new tokens are persisted and the caller should retry
// its original request once. A non-nil return is terminal for the session:
// stored credentials are already cleared.
func (rc *RefreshCoordinator) Refresh(ctx context.Context) error {
	if rc == nil {
		return core.NewError("client: refresh coordinator is not configured", core.CategoryInternal, core.ClientErrorInternal)
	}
	if ctx == nil {
		ctx = context.Background()
	}

	rc.mu.Lock()
	if rc.refreshing {
		waiter := make(chan error, 1)
		rc.waiters = append(rc.waiters, waiter)
		rc.mu.Unlock()
		select {
		case <-ctx.Done():
			return core.WrapError(ctx.Err(), core.CategoryOperation, "client: refresh wait abandoned", core.ClientErrorTimeout)
		case err := <-waiter:
			return err
		}
	}
	rc.refreshing = true
	rc.mu.Unlock()

	err := rc.run(ctx)
	rc.settle(ctx, err)
	return err
}

func (rc *RefreshCoordinator) run(ctx context.Context) error {
	cred, err := rc.credentials.Get(ctx)
	if err != nil {
		return core.WrapError(err, core.CategoryInternal, "client: read credential for refresh", core.ClientErrorInternal)
	}
	if strings.TrimSpace(cred.RefreshToken) == "" {
		// no refresh token means no network call: the session is gone
		_ = rc.credentials.Clear(ctx)
		return core.NewSessionExpiredError(nil)
	}

	next, refreshErr := rc.refresh(ctx, cred.RefreshToken)
	if refreshErr != nil {
		_ = rc.credentials.Clear(ctx)
		return core.NewSessionExpiredError(refreshErr)
	}
	if next.AccessToken == "" || next.RefreshToken == "" {
		_ = rc.credentials.Clear(ctx)
		return core.NewSessionExpiredError(nil)
	}
	if saveErr := rc.credentials.Save(ctx, next); saveErr != nil {
		return core.WrapError(saveErr, core.CategoryInternal, "client: persist refreshed credential", core.ClientErrorInternal)
	}
	return nil
}

func (rc *RefreshCoordinator) settle(ctx context.Context, err error) {
	rc.mu.Lock()
	rc.refreshing = false
	waiters := rc.waiters
	rc.waiters = nil
	rc.mu.Unlock()

	for _, waiter := range waiters {
		waiter <- err
	}

	status := "success"
	if err != nil {
		status = "failure"
	}
	rc.metrics.IncCounter(ctx, "client.refresh.total", 1, map[string]string{"status": status})
	if err != nil {
		rc.logger.Error("token refresh failed, session torn down", "waiters", len(waiters), "error", err.Error())
		return
	}
	rc.logger.Info("token refresh succeeded", "waiters", len(waiters))
}
