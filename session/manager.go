package session

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	glog "github.com/goliatone/go-logger/glog"

	"github.com/fundiapp/go-fundi-client/client"
	"github.com/fundiapp/go-fundi-client/core"
)

// Caller is the slice of the HTTP core the session manager needs.
type Caller interface {
	Send(ctx context.Context, req client.Request) (client.Response, error)
}

type LoginRequest struct {
	Phone    string `json:"phone"`
	Email    string `json:"email,omitempty"`
	Password string `json:"password"`
}

type RegisterRequest struct {
	Name     string `json:"name"`
	Phone    string `json:"phone"`
	Email    string `json:"email,omitempty"`
	Password string `json:"password"`
	Role     string `json:"role"`
}

type User struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Phone string `json:"phone"`
	Email string `json:"email"`
	Role  string `json:"role"`
}

type authPayload struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
	User         User   `json:"user"`
	RequiresOTP  bool   `json:"requiresOtp"`
}

// Manager owns session initialization and teardown. It is the only writer
// of the credential store besides the refresh coordinator; both tokens are
// persisted together or not at all.
type Manager struct {
	caller      Caller
	credentials core.CredentialStore
	logger      core.Logger

	// perishable local state cleared alongside the credential on logout
	onTeardown []func(ctx context.Context) error
}

type Option func(*Manager)

func WithLogger(logger core.Logger) Option {
	return func(m *Manager) {
		m.logger = logger
	}
}

// WithTeardown registers extra per-identity state to clear on logout, such
// as the offline action queue.
func WithTeardown(teardown func(ctx context.Context) error) Option {
	return func(m *Manager) {
		if teardown != nil {
			m.onTeardown = append(m.onTeardown, teardown)
		}
	}
}

func NewManager(caller Caller, credentials core.CredentialStore, opts ...Option) (*Manager, error) {
	if caller == nil {
		return nil, fmt.Errorf("session: http caller is required")
	}
	if credentials == nil {
		return nil, fmt.Errorf("session: credential store is required")
	}
	m := &Manager{
		caller:      caller,
		credentials: credentials,
	}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt(m)
	}
	m.logger = glog.Ensure(m.logger)
	return m, nil
}

func (m *Manager) Login(ctx context.Context, req LoginRequest) (User, error) {
	if strings.TrimSpace(req.Phone) == "" && strings.TrimSpace(req.Email) == "" {
		return User{}, core.NewError("session: phone or email is required", core.CategoryBadInput, core.ClientErrorBadInput)
	}
	if strings.TrimSpace(req.Password) == "" {
		return User{}, core.NewError("session: password is required", core.CategoryBadInput, core.ClientErrorBadInput)
	}
	return m.authenticate(ctx, "/api/auth/login", req)
}

func (m *Manager) Register(ctx context.Context, req RegisterRequest) (User, error) {
	if strings.TrimSpace(req.Phone) == "" {
		return User{}, core.NewError("session: phone is required", core.CategoryBadInput, core.ClientErrorBadInput)
	}
	if strings.TrimSpace(req.Password) == "" {
		return User{}, core.NewError("session: password is required", core.CategoryBadInput, core.ClientErrorBadInput)
	}
	return m.authenticate(ctx, "/api/auth/register", req)
}

// VerifyOTP completes a login or registration that required a one-time
// code. The response carries the credential pair.
func (m *Manager) VerifyOTP(ctx context.Context, phone string, code string) (User, error) {
	phone = strings.TrimSpace(phone)
	code = strings.TrimSpace(code)
	if phone == "" || code == "" {
		return User{}, core.NewError("session: phone and code are required", core.CategoryBadInput, core.ClientErrorBadInput)
	}
	return m.authenticate(ctx, "/api/auth/otp/verify", map[string]any{
		"phone": phone,
		"code":  code,
	})
}

func (m *Manager) authenticate(ctx context.Context, path string, body any) (User, error) {
	res, err := m.caller.Send(ctx, client.Request{
		Method:   http.MethodPost,
		Path:     path,
		Body:     body,
		SkipAuth: true,
	})
	if err != nil {
		return User{}, err
	}

	var payload authPayload
	if err := res.DecodeJSON(&payload); err != nil {
		return User{}, err
	}
	if payload.RequiresOTP {
		// no tokens yet; the caller must follow up with VerifyOTP
		return payload.User, nil
	}
	cred := core.Credential{
		AccessToken:  strings.TrimSpace(payload.AccessToken),
		RefreshToken: strings.TrimSpace(payload.RefreshToken),
	}
	if cred.AccessToken == "" || cred.RefreshToken == "" {
		return User{}, core.NewError("session: auth response is missing tokens", core.CategoryExternal, core.ClientErrorServer)
	}
	if err := m.credentials.Save(ctx, cred); err != nil {
		return User{}, err
	}
	m.logger.Info("session established", "path", path)
	return payload.User, nil
}

// Logout ends the session. The server call is best effort; local teardown
// always runs so no credential or queued state outlives the identity.
func (m *Manager) Logout(ctx context.Context) error {
	_, err := m.caller.Send(ctx, client.Request{
		Method: http.MethodPost,
		Path:   "/api/auth/logout",
	})
	if err != nil {
		m.logger.Error("logout call failed, clearing local session anyway", "error", err.Error())
	}

	if clearErr := m.credentials.Clear(ctx); clearErr != nil {
		return core.WrapError(clearErr, core.CategoryInternal, "session: clear credential", core.ClientErrorInternal)
	}
	for _, teardown := range m.onTeardown {
		if teardownErr := teardown(ctx); teardownErr != nil {
			m.logger.Error("session teardown step failed", "error", teardownErr.Error())
		}
	}
	m.logger.Info("session cleared")
	return nil
}
