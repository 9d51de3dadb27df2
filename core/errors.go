package core

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strings"

	goerrors "github.com/goliatone/go-errors"
)

type Category = goerrors.Category

const (
	CategoryAuth       = goerrors.CategoryAuth
	CategoryAuthz      = goerrors.CategoryAuthz
	CategoryBadInput   = goerrors.CategoryBadInput
	CategoryValidation = goerrors.CategoryValidation
	CategoryNotFound   = goerrors.CategoryNotFound
	CategoryRateLimit  = goerrors.CategoryRateLimit
	CategoryExternal   = goerrors.CategoryExternal
	CategoryOperation  = goerrors.CategoryOperation
	CategoryInternal   = goerrors.CategoryInternal
)

const (
	ClientErrorBadInput       = "CLIENT_BAD_INPUT"
	ClientErrorConnectivity   = "CLIENT_CONNECTIVITY"
	ClientErrorUnauthorized   = "CLIENT_UNAUTHORIZED"
	ClientErrorForbidden      = "CLIENT_FORBIDDEN"
	ClientErrorNotFound       = "CLIENT_NOT_FOUND"
	ClientErrorValidation     = "CLIENT_VALIDATION"
	ClientErrorRateLimited    = "CLIENT_RATE_LIMITED"
	ClientErrorServer         = "CLIENT_SERVER_ERROR"
	ClientErrorTimeout        = "CLIENT_TIMEOUT"
	ClientErrorSessionExpired = "CLIENT_SESSION_EXPIRED"
	ClientErrorPaymentFailed  = "CLIENT_PAYMENT_FAILED"
	ClientErrorPollExhausted  = "CLIENT_POLL_EXHAUSTED"
	ClientErrorInternal       = "CLIENT_INTERNAL_ERROR"
)

// statusClass maps an inclusive HTTP status range to the client error
// taxonomy. Ranges are evaluated in order; the first match wins.
type statusClass struct {
	From     int
	To       int
	Category Category
	TextCode string
}

var statusTaxonomy = []statusClass{
	{http.StatusUnauthorized, http.StatusUnauthorized, CategoryAuth, ClientErrorUnauthorized},
	{http.StatusForbidden, http.StatusForbidden, CategoryAuthz, ClientErrorForbidden},
	{http.StatusNotFound, http.StatusNotFound, CategoryNotFound, ClientErrorNotFound},
	{http.StatusRequestTimeout, http.StatusRequestTimeout, CategoryOperation, ClientErrorTimeout},
	{http.StatusTooManyRequests, http.StatusTooManyRequests, CategoryRateLimit, ClientErrorRateLimited},
	{400, 499, CategoryValidation, ClientErrorValidation},
	{500, 599, CategoryExternal, ClientErrorServer},
}

// ClassifyStatus resolves a non-2xx HTTP status into the error taxonomy.
func ClassifyStatus(statusCode int) (Category, string) {
	for _, class := range statusTaxonomy {
		if statusCode >= class.From && statusCode <= class.To {
			return class.Category, class.TextCode
		}
	}
	return CategoryExternal, ClientErrorServer
}

func NewError(message string, category Category, textCode string) *goerrors.Error {
	return goerrors.New(message, category).WithTextCode(textCode)
}

func WrapError(source error, category Category, message string, textCode string) *goerrors.Error {
	if source == nil {
		return NewError(message, category, textCode)
	}
	return goerrors.Wrap(source, category, message).WithTextCode(textCode)
}

// NewStatusError builds the taxonomy error for a server-issued non-2xx
// response. serverCode and serverMessage come from the optional error
// envelope and may be empty; extra metadata entries are merged alongside
// the status fields.
func NewStatusError(statusCode int, serverCode string, serverMessage string, extra ...map[string]any) *goerrors.Error {
	category, textCode := ClassifyStatus(statusCode)
	message := strings.TrimSpace(serverMessage)
	if message == "" {
		message = http.StatusText(statusCode)
	}
	err := goerrors.New(message, category).
		WithCode(statusCode).
		WithTextCode(textCode)
	metadata := map[string]any{"status_code": statusCode}
	if trimmed := strings.TrimSpace(serverCode); trimmed != "" {
		metadata["server_code"] = trimmed
	}
	for _, entries := range extra {
		for key, value := range entries {
			metadata[key] = value
		}
	}
	err.WithMetadata(metadata)
	return err
}

// NormalizeTransportError converts a raw transport failure into the
// taxonomy: deadline and timeout conditions become timeout errors, every
// other transport-level failure is connectivity-class (the request never
// produced a server response).
func NormalizeTransportError(source error, message string) *goerrors.Error {
	if source == nil {
		return nil
	}
	if errors.Is(source, context.DeadlineExceeded) {
		return WrapError(source, CategoryOperation, message, ClientErrorTimeout)
	}
	var netErr net.Error
	if errors.As(source, &netErr) && netErr.Timeout() {
		return WrapError(source, CategoryOperation, message, ClientErrorTimeout)
	}
	return WrapError(source, CategoryExternal, message, ClientErrorConnectivity)
}

func NewSessionExpiredError(source error) *goerrors.Error {
	message := "session expired, re-authentication required"
	if source == nil {
		return NewError(message, CategoryAuth, ClientErrorSessionExpired).WithCode(http.StatusUnauthorized)
	}
	return goerrors.Wrap(source, CategoryAuth, message).
		WithCode(http.StatusUnauthorized).
		WithTextCode(ClientErrorSessionExpired)
}

func errTextCode(err error) string {
	var richErr *goerrors.Error
	if goerrors.As(err, &richErr) {
		return strings.TrimSpace(strings.ToUpper(richErr.TextCode))
	}
	return ""
}

// IsConnectivityError reports a connectivity-class failure: the request
// never reached the server, so a retry may succeed.
func IsConnectivityError(err error) bool {
	return errTextCode(err) == ClientErrorConnectivity
}

func IsAuthError(err error) bool {
	switch errTextCode(err) {
	case ClientErrorUnauthorized, ClientErrorSessionExpired:
		return true
	}
	return false
}

func IsSessionExpiredError(err error) bool {
	return errTextCode(err) == ClientErrorSessionExpired
}

func IsValidationError(err error) bool {
	switch errTextCode(err) {
	case ClientErrorValidation, ClientErrorBadInput:
		return true
	}
	return false
}

func IsTimeoutError(err error) bool {
	return errTextCode(err) == ClientErrorTimeout
}

func IsPollExhaustedError(err error) bool {
	return errTextCode(err) == ClientErrorPollExhausted
}

func IsPaymentFailedError(err error) bool {
	return errTextCode(err) == ClientErrorPaymentFailed
}

// IsRetryableError reports whether a failed replay may succeed on a later
// attempt without user intervention.
func IsRetryableError(err error) bool {
	switch errTextCode(err) {
	case ClientErrorConnectivity, ClientErrorTimeout, ClientErrorServer, ClientErrorRateLimited:
		return true
	}
	return false
}
