package core

import (
	"context"
	"errors"
	"fmt"
	"testing"

	goerrors "github.com/goliatone/go-errors"
)

func TestClassifyStatus_FirstMatchWins(t *testing.T) {
	cases := []struct {
		status   int
		category Category
		textCode string
	}{
		{401, CategoryAuth, ClientErrorUnauthorized},
		{403, CategoryAuthz, ClientErrorForbidden},
		{404, CategoryNotFound, ClientErrorNotFound},
		{408, CategoryOperation, ClientErrorTimeout},
		{429, CategoryRateLimit, ClientErrorRateLimited},
		{400, CategoryValidation, ClientErrorValidation},
		{422, CategoryValidation, ClientErrorValidation},
		{500, CategoryExternal, ClientErrorServer},
		{503, CategoryExternal, ClientErrorServer},
		{599, CategoryExternal, ClientErrorServer},
	}
	for _, tc := range cases {
		category, textCode := ClassifyStatus(tc.status)
		if category != tc.category {
			t.Fatalf("status %d: expected category %v, got %v", tc.status, tc.category, category)
		}
		if textCode != tc.textCode {
			t.Fatalf("status %d: expected text code %q, got %q", tc.status, tc.textCode, textCode)
		}
	}
}

func TestClassifyStatus_UnknownDefaultsToServer(t *testing.T) {
	category, textCode := ClassifyStatus(600)
	if category != CategoryExternal || textCode != ClientErrorServer {
		t.Fatalf("expected server-class default, got %v %q", category, textCode)
	}
}

func TestNewStatusError_CarriesServerEnvelope(t *testing.T) {
	err := NewStatusError(422, "INVALID_PHONE", "phone number is invalid")

	var richErr *goerrors.Error
	if !goerrors.As(err, &richErr) {
		t.Fatalf("expected rich error")
	}
	if richErr.Code != 422 {
		t.Fatalf("expected code 422, got %d", richErr.Code)
	}
	if richErr.TextCode != ClientErrorValidation {
		t.Fatalf("expected validation text code, got %q", richErr.TextCode)
	}
	if richErr.Message != "phone number is invalid" {
		t.Fatalf("expected server message, got %q", richErr.Message)
	}
	if richErr.Metadata["server_code"] != "INVALID_PHONE" {
		t.Fatalf("expected server code metadata, got %v", richErr.Metadata["server_code"])
	}
	if richErr.Metadata["status_code"] != 422 {
		t.Fatalf("expected status metadata, got %v", richErr.Metadata["status_code"])
	}
}

func TestNewStatusError_FallsBackToStatusText(t *testing.T) {
	err := NewStatusError(503, "", "  ")
	var richErr *goerrors.Error
	if !goerrors.As(err, &richErr) {
		t.Fatalf("expected rich error")
	}
	if richErr.Message == "" {
		t.Fatalf("expected non-empty fallback message")
	}
	if _, ok := richErr.Metadata["server_code"]; ok {
		t.Fatalf("expected no server code metadata for blank code")
	}
}

type timeoutNetError struct{}

func (timeoutNetError) Error() string   { return "i/o timeout" }
func (timeoutNetError) Timeout() bool   { return true }
func (timeoutNetError) Temporary() bool { return true }

func TestNormalizeTransportError_Timeouts(t *testing.T) {
	deadlineErr := NormalizeTransportError(fmt.Errorf("request: %w", context.DeadlineExceeded), "request failed")
	if !IsTimeoutError(deadlineErr) {
		t.Fatalf("expected deadline to classify as timeout, got %v", deadlineErr)
	}

	netTimeout := NormalizeTransportError(timeoutNetError{}, "request failed")
	if !IsTimeoutError(netTimeout) {
		t.Fatalf("expected net timeout to classify as timeout, got %v", netTimeout)
	}
}

func TestNormalizeTransportError_ConnectivityByDefault(t *testing.T) {
	err := NormalizeTransportError(errors.New("connection refused"), "request failed")
	if !IsConnectivityError(err) {
		t.Fatalf("expected connectivity classification, got %v", err)
	}
	if IsRetryableError(err) != true {
		t.Fatalf("expected connectivity to be retryable")
	}
}

func TestNormalizeTransportError_NilSource(t *testing.T) {
	if err := NormalizeTransportError(nil, "request failed"); err != nil {
		t.Fatalf("expected nil for nil source, got %v", err)
	}
}

func TestNewSessionExpiredError_Predicates(t *testing.T) {
	err := NewSessionExpiredError(errors.New("refresh rejected"))
	if !IsSessionExpiredError(err) {
		t.Fatalf("expected session expired predicate")
	}
	if !IsAuthError(err) {
		t.Fatalf("expected auth predicate for session expiry")
	}
	if IsRetryableError(err) {
		t.Fatalf("session expiry must not be retryable")
	}
}

func TestIsRetryableError_Taxonomy(t *testing.T) {
	retryable := []error{
		NewStatusError(500, "", ""),
		NewStatusError(429, "", ""),
		NewError("offline", CategoryExternal, ClientErrorConnectivity),
		NewError("slow", CategoryOperation, ClientErrorTimeout),
	}
	for _, err := range retryable {
		if !IsRetryableError(err) {
			t.Fatalf("expected retryable: %v", err)
		}
	}

	definitive := []error{
		NewStatusError(400, "", ""),
		NewStatusError(403, "", ""),
		NewStatusError(404, "", ""),
		NewSessionExpiredError(nil),
		errors.New("plain error"),
	}
	for _, err := range definitive {
		if IsRetryableError(err) {
			t.Fatalf("expected non-retryable: %v", err)
		}
	}
}
