package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	glog "github.com/goliatone/go-logger/glog"

	"github.com/fundiapp/go-fundi-client/core"
)

const defaultClientTimeout = 30 * time.Second
const defaultResponseBodyLimit int64 = 10 << 20 // 10 MiB

// Request describes one outbound call. Body is JSON-marshalled unless it is
// already a []byte or json.RawMessage.
type Request struct {
	Method   string
	Path     string
	Query    map[string]string
	Headers  map[string]string
	Body     any
	Timeout  time.Duration
	SkipAuth bool
}

type Response struct {
	StatusCode int
	Headers    map[string]string
	Body       []byte
}

func (r Response) DecodeJSON(out any) error {
	if out == nil {
		return nil
	}
	if len(r.Body) == 0 {
		return fmt.Errorf("client: response body is empty")
	}
	if err := json.Unmarshal(r.Body, out); err != nil {
		return core.WrapError(err, core.CategoryExternal, "client: decode response body", core.ClientErrorServer)
	}
	return nil
}

// Client is the HTTP core for the marketplace API. It stamps every request
// with the stored access token, normalizes failures into the client error
// taxonomy, and hands 401 responses to the refresh coordinator before a
// single retry of the original request.
type Client struct {
	baseURL              string
	httpClient           core.HTTPDoer
	credentials          core.CredentialStore
	coordinator          *RefreshCoordinator
	logger               core.Logger
	metrics              core.MetricsRecorder
	timeout              time.Duration
	refreshPath          string
	maxResponseBodyBytes int64
	defaultHeaders       map[string]string
}

type Option func(*builder)

type builder struct {
	httpClient  core.HTTPDoer
	credentials core.CredentialStore
	coordinator *RefreshCoordinator
	refreshFunc RefreshFunc
	logger      core.Logger
	metrics     core.MetricsRecorder
	headers     map[string]string
}

func WithHTTPClient(doer core.HTTPDoer) Option {
	return func(b *builder) {
		b.httpClient = doer
	}
}

func WithCredentialStore(store core.CredentialStore) Option {
	return func(b *builder) {
		b.credentials = store
	}
}

func WithRefreshCoordinator(coordinator *RefreshCoordinator) Option {
	return func(b *builder) {
		b.coordinator = coordinator
	}
}

func WithRefreshFunc(refresh RefreshFunc) Option {
	return func(b *builder) {
		b.refreshFunc = refresh
	}
}

func WithLogger(logger core.Logger) Option {
	return func(b *builder) {
		b.logger = logger
	}
}

func WithMetricsRecorder(recorder core.MetricsRecorder) Option {
	return func(b *builder) {
		b.metrics = recorder
	}
}

func WithDefaultHeader(key, value string) Option {
	return func(b *builder) {
		if b.headers == nil {
			b.headers = map[string]string{}
		}
		b.headers[strings.TrimSpace(key)] = strings.TrimSpace(value)
	}
}

func New(cfg core.Config, opts ...Option) (*Client, error) {
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.HTTP.BaseURL), "/")
	if baseURL == "" {
		return nil, fmt.Errorf("client: http.base_url is required")
	}
	if _, err := url.Parse(baseURL); err != nil {
		return nil, fmt.Errorf("client: http.base_url is invalid: %w", err)
	}

	b := builder{}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt(&b)
	}

	_, logger := glog.Resolve("client", nil, b.logger)
	logger = glog.Ensure(logger)

	timeout := defaultClientTimeout
	if cfg.HTTP.TimeoutMS > 0 {
		timeout = time.Duration(cfg.HTTP.TimeoutMS) * time.Millisecond
	}
	maxBody := cfg.HTTP.MaxResponseBodyBytes
	if maxBody <= 0 {
		maxBody = defaultResponseBodyLimit
	}
	refreshPath := strings.TrimSpace(cfg.HTTP.RefreshPath)
	if refreshPath == "" {
		refreshPath = core.DefaultConfig().HTTP.RefreshPath
	}

	if b.httpClient == nil {
		b.httpClient = &http.Client{Timeout: timeout}
	}
	if b.credentials == nil {
		b.credentials = core.NewMemoryCredentialStore()
	}
	if b.metrics == nil {
		b.metrics = core.NopMetricsRecorder{}
	}

	c := &Client{
		baseURL:              baseURL,
		httpClient:           b.httpClient,
		credentials:          b.credentials,
		logger:               logger,
		metrics:              b.metrics,
		timeout:              timeout,
		refreshPath:          refreshPath,
		maxResponseBodyBytes: maxBody,
		defaultHeaders:       b.headers,
	}

	coordinator := b.coordinator
	if coordinator == nil {
		refresh := b.refreshFunc
		if refresh == nil {
			refresh = c.refreshCredential
		}
		built, err := NewRefreshCoordinator(b.credentials, refresh,
			WithCoordinatorLogger(logger),
			WithCoordinatorMetrics(b.metrics),
		)
		if err != nil {
			return nil, err
		}
		coordinator = built
	}
	c.coordinator = coordinator

	return c, nil
}

// Coordinator exposes the refresh coordinator so callers sharing this client
// can observe session teardown.
func (c *Client) Coordinator() *RefreshCoordinator {
	if c == nil {
		return nil
	}
	return c.coordinator
}

// Send executes one request. On 401 the refresh coordinator runs (or is
// joined, if a refresh is already in flight) and the request is retried
// exactly once with the new token. Every failure is returned as a taxonomy
// error; raw transport errors never propagate.
func (c *Client) Send(ctx context.Context, req Request) (Response, error) {
	if c == nil || c.httpClient == nil {
		return Response{}, core.NewError("client: http client is not configured", core.CategoryInternal, core.ClientErrorInternal)
	}
	if ctx == nil {
		ctx = context.Background()
	}

	token := ""
	if !req.SkipAuth {
		cred, err := c.credentials.Get(ctx)
		if err != nil {
			return Response{}, core.WrapError(err, core.CategoryInternal, "client: read credential", core.ClientErrorInternal)
		}
		token = strings.TrimSpace(cred.AccessToken)
	}

	res, err := c.do(ctx, req, token)
	if err != nil {
		return Response{}, err
	}
	if res.StatusCode >= 200 && res.StatusCode < 300 {
		return res, nil
	}

	if res.StatusCode == http.StatusUnauthorized && !req.SkipAuth {
		if refreshErr := c.coordinator.Refresh(ctx); refreshErr != nil {
			return Response{}, refreshErr
		}
		cred, credErr := c.credentials.Get(ctx)
		if credErr != nil {
			return Response{}, core.WrapError(credErr, core.CategoryInternal, "client: read refreshed credential", core.ClientErrorInternal)
		}
		retryRes, retryErr := c.do(ctx, req, strings.TrimSpace(cred.AccessToken))
		if retryErr != nil {
			return Response{}, retryErr
		}
		if retryRes.StatusCode >= 200 && retryRes.StatusCode < 300 {
			return retryRes, nil
		}
		// already retried once; even a second 401 surfaces as-is
		return Response{}, statusError(retryRes)
	}

	return Response{}, statusError(res)
}

func (c *Client) do(ctx context.Context, req Request, token string) (Response, error) {
	method := strings.TrimSpace(strings.ToUpper(req.Method))
	if method == "" {
		method = http.MethodGet
	}
	path := strings.TrimSpace(req.Path)
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	parsedURL, err := url.Parse(c.baseURL + path)
	if err != nil {
		return Response{}, core.WrapError(err, core.CategoryBadInput, "client: invalid request path", core.ClientErrorBadInput)
	}
	query := parsedURL.Query()
	for key, value := range req.Query {
		if strings.TrimSpace(key) == "" {
			continue
		}
		query.Set(strings.TrimSpace(key), value)
	}
	parsedURL.RawQuery = query.Encode()

	body, err := encodeBody(req.Body)
	if err != nil {
		return Response{}, err
	}

	requestCtx := ctx
	cancel := func() {}
	timeout := req.Timeout
	if timeout <= 0 {
		timeout = c.timeout
	}
	if timeout > 0 {
		requestCtx, cancel = context.WithTimeout(ctx, timeout)
	}
	defer cancel()

	httpReq, err := http.NewRequestWithContext(requestCtx, method, parsedURL.String(), bytes.NewReader(body))
	if err != nil {
		return Response{}, core.WrapError(err, core.CategoryBadInput, "client: create http request", core.ClientErrorBadInput)
	}
	for key, value := range c.defaultHeaders {
		if strings.TrimSpace(key) == "" {
			continue
		}
		httpReq.Header.Set(key, value)
	}
	if len(body) > 0 {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	httpReq.Header.Set("Accept", "application/json")
	for key, value := range req.Headers {
		if strings.TrimSpace(key) == "" {
			continue
		}
		httpReq.Header.Set(strings.TrimSpace(key), value)
	}
	if token != "" {
		httpReq.Header.Set("Authorization", "Bearer "+token)
	}

	startedAt := time.Now().UTC()
	httpRes, err := c.httpClient.Do(httpReq)
	if err != nil {
		c.observeRequest(ctx, method, path, 0, startedAt)
		return Response{}, core.NormalizeTransportError(err, "client: execute http request")
	}
	defer httpRes.Body.Close()

	payload, err := io.ReadAll(io.LimitReader(httpRes.Body, c.maxResponseBodyBytes+1))
	if err != nil {
		return Response{}, core.NormalizeTransportError(err, "client: read response body")
	}
	if int64(len(payload)) > c.maxResponseBodyBytes {
		return Response{}, core.NewError(
			fmt.Sprintf("client: response body exceeds limit of %d bytes", c.maxResponseBodyBytes),
			core.CategoryExternal,
			core.ClientErrorServer,
		).WithCode(httpRes.StatusCode)
	}

	c.observeRequest(ctx, method, path, httpRes.StatusCode, startedAt)
	return Response{
		StatusCode: httpRes.StatusCode,
		Headers:    flattenHeaders(httpRes.Header),
		Body:       payload,
	}, nil
}

// refreshCredential is the default refresh call: it posts the refresh token
// without a bearer header so a rejected refresh cannot recurse into another
// refresh.
func (c *Client) refreshCredential(ctx context.Context, refreshToken string) (core.Credential, error) {
	res, err := c.do(ctx, Request{
		Method:   http.MethodPost,
		Path:     c.refreshPath,
		Body:     map[string]any{"refreshToken": refreshToken},
		SkipAuth: true,
	}, "")
	if err != nil {
		return core.Credential{}, err
	}
	if res.StatusCode < 200 || res.StatusCode >= 300 {
		return core.Credential{}, statusError(res)
	}

	var envelope struct {
		AccessToken  string `json:"accessToken"`
		RefreshToken string `json:"refreshToken"`
		Data         struct {
			AccessToken  string `json:"accessToken"`
			RefreshToken string `json:"refreshToken"`
		} `json:"data"`
	}
	if err := json.Unmarshal(res.Body, &envelope); err != nil {
		return core.Credential{}, core.WrapError(err, core.CategoryExternal, "client: decode refresh response", core.ClientErrorServer)
	}
	cred := core.Credential{
		AccessToken:  strings.TrimSpace(envelope.AccessToken),
		RefreshToken: strings.TrimSpace(envelope.RefreshToken),
	}
	if cred.AccessToken == "" {
		cred.AccessToken = strings.TrimSpace(envelope.Data.AccessToken)
		cred.RefreshToken = strings.TrimSpace(envelope.Data.RefreshToken)
	}
	if cred.AccessToken == "" || cred.RefreshToken == "" {
		return core.Credential{}, core.NewError("client: refresh response is missing tokens", core.CategoryExternal, core.ClientErrorServer)
	}
	return cred, nil
}

func (c *Client) observeRequest(ctx context.Context, method string, path string, statusCode int, startedAt time.Time) {
	if c == nil || c.metrics == nil {
		return
	}
	tags := map[string]string{
		"method": method,
		"status": fmt.Sprintf("%d", statusCode),
	}
	c.metrics.IncCounter(ctx, "client.request.total", 1, tags)
	c.metrics.ObserveHistogram(ctx, "client.request.duration_ms", float64(time.Since(startedAt).Milliseconds()), tags)
	if c.logger != nil && statusCode >= 500 {
		c.logger.Error("request failed upstream", "method", method, "path", path, "status_code", statusCode)
	}
}

func encodeBody(body any) ([]byte, error) {
	switch typed := body.(type) {
	case nil:
		return nil, nil
	case []byte:
		return typed, nil
	case json.RawMessage:
		return typed, nil
	default:
		encoded, err := json.Marshal(typed)
		if err != nil {
			return nil, core.WrapError(err, core.CategoryBadInput, "client: encode request body", core.ClientErrorBadInput)
		}
		return encoded, nil
	}
}

func flattenHeaders(headers http.Header) map[string]string {
	if len(headers) == 0 {
		return map[string]string{}
	}
	flat := make(map[string]string, len(headers))
	for key, values := range headers {
		if len(values) == 0 {
			flat[key] = ""
			continue
		}
		flat[key] = strings.Join(values, ",")
	}
	return flat
}
