package offline

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/fundiapp/go-fundi-client/client"
	"github.com/fundiapp/go-fundi-client/core"
)

// Caller is the slice of the HTTP core the queue needs for replay.
type Caller interface {
	Send(ctx context.Context, req client.Request) (client.Response, error)
}

// NewClientSender replays queued actions through the HTTP core, which keeps
// credential stamping and 401 recovery identical to live requests.
func NewClientSender(caller Caller) (ActionSender, error) {
	if caller == nil {
		return nil, fmt.Errorf("offline: http caller is required")
	}
	return ActionSenderFunc(func(ctx context.Context, action core.OfflineAction) error {
		var body any
		if len(action.Payload) > 0 {
			body = action.Payload
		}
		_, err := caller.Send(ctx, client.Request{
			Method: action.Method,
			Path:   action.Path,
			Body:   body,
		})
		return err
	}), nil
}

const defaultProbeTimeout = 5 * time.Second

// NewHTTPProbe probes reachability with an unauthenticated request. Any
// server response, including an error status, means the transport is up;
// only connectivity and timeout failures count as offline.
func NewHTTPProbe(caller Caller, path string) (Probe, error) {
	if caller == nil {
		return nil, fmt.Errorf("offline: http caller is required")
	}
	path = strings.TrimSpace(path)
	if path == "" {
		path = "/api/health"
	}
	return func(ctx context.Context) error {
		_, err := caller.Send(ctx, client.Request{
			Method:   http.MethodGet,
			Path:     path,
			SkipAuth: true,
			Timeout:  defaultProbeTimeout,
		})
		if err != nil && (core.IsConnectivityError(err) || core.IsTimeoutError(err)) {
			return err
		}
		return nil
	}, nil
}
