package payments

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/fundiapp/go-fundi-client/client"
	"github.com/fundiapp/go-fundi-client/core"
)

// Caller is the slice of the HTTP core the payments API needs.
type Caller interface {
	Send(ctx context.Context, req client.Request) (client.Response, error)
}

type InitiateRequest struct {
	BookingID   string `json:"bookingId"`
	PhoneNumber string `json:"phoneNumber"`
	Provider    string `json:"provider"`
	Amount      string `json:"amount"`
	Currency    string `json:"currency"`
}

type Transaction struct {
	TransactionID string             `json:"transactionId"`
	Status        core.PaymentStatus `json:"status"`
	Provider      string             `json:"provider"`
	Amount        string             `json:"amount"`
	Currency      string             `json:"currency"`
	Reference     string             `json:"reference"`
}

type HistoryEntry struct {
	TransactionID string             `json:"transactionId"`
	BookingID     string             `json:"bookingId"`
	Status        core.PaymentStatus `json:"status"`
	Amount        string             `json:"amount"`
	Currency      string             `json:"currency"`
	CreatedAt     string             `json:"createdAt"`
}

// API wraps the mobile-money payment endpoints.
type API struct {
	caller Caller
}

func NewAPI(caller Caller) (*API, error) {
	if caller == nil {
		return nil, fmt.Errorf("payments: http caller is required")
	}
	return &API{caller: caller}, nil
}

// Initiate starts a mobile-money charge. The returned transaction is almost
// always pending; callers hand it to the poller for a terminal result.
func (a *API) Initiate(ctx context.Context, req InitiateRequest) (Transaction, error) {
	if strings.TrimSpace(req.BookingID) == "" {
		return Transaction{}, core.NewError("payments: booking id is required", core.CategoryBadInput, core.ClientErrorBadInput)
	}
	if strings.TrimSpace(req.PhoneNumber) == "" {
		return Transaction{}, core.NewError("payments: phone number is required", core.CategoryBadInput, core.ClientErrorBadInput)
	}
	res, err := a.caller.Send(ctx, client.Request{
		Method: http.MethodPost,
		Path:   "/api/payments/momo/initiate",
		Body:   req,
	})
	if err != nil {
		return Transaction{}, err
	}
	var out Transaction
	if err := res.DecodeJSON(&out); err != nil {
		return Transaction{}, err
	}
	return out, nil
}

// Verify confirms a charge after the user approved the mobile-money prompt.
func (a *API) Verify(ctx context.Context, transactionID string, otp string) (Transaction, error) {
	transactionID = strings.TrimSpace(transactionID)
	if transactionID == "" {
		return Transaction{}, core.NewError("payments: transaction id is required", core.CategoryBadInput, core.ClientErrorBadInput)
	}
	res, err := a.caller.Send(ctx, client.Request{
		Method: http.MethodPost,
		Path:   "/api/payments/momo/verify",
		Body: map[string]any{
			"transactionId": transactionID,
			"otp":           strings.TrimSpace(otp),
		},
	})
	if err != nil {
		return Transaction{}, err
	}
	var out Transaction
	if err := res.DecodeJSON(&out); err != nil {
		return Transaction{}, err
	}
	return out, nil
}

// Status fetches the current state of a transaction. Used by the poller; one
// call per poll attempt.
func (a *API) Status(ctx context.Context, transactionID string) (core.PaymentResult, error) {
	transactionID = strings.TrimSpace(transactionID)
	if transactionID == "" {
		return core.PaymentResult{}, core.NewError("payments: transaction id is required", core.CategoryBadInput, core.ClientErrorBadInput)
	}
	res, err := a.caller.Send(ctx, client.Request{
		Method: http.MethodGet,
		Path:   "/api/payments/status/" + transactionID,
	})
	if err != nil {
		return core.PaymentResult{}, err
	}
	var payload struct {
		TransactionID string             `json:"transactionId"`
		Status        core.PaymentStatus `json:"status"`
		Provider      string             `json:"provider"`
		Amount        string             `json:"amount"`
		Currency      string             `json:"currency"`
		FailureReason string             `json:"failureReason"`
	}
	if err := res.DecodeJSON(&payload); err != nil {
		return core.PaymentResult{}, err
	}
	result := core.PaymentResult{
		TransactionID: payload.TransactionID,
		Status:        payload.Status,
		Provider:      payload.Provider,
		Amount:        payload.Amount,
		Currency:      payload.Currency,
		FailureReason: payload.FailureReason,
	}
	if result.TransactionID == "" {
		result.TransactionID = transactionID
	}
	return result, nil
}

func (a *API) History(ctx context.Context) ([]HistoryEntry, error) {
	res, err := a.caller.Send(ctx, client.Request{
		Method: http.MethodGet,
		Path:   "/api/payments/history",
	})
	if err != nil {
		return nil, err
	}
	var out []HistoryEntry
	if err := res.DecodeJSON(&out); err != nil {
		return nil, err
	}
	return out, nil
}

func (a *API) Refund(ctx context.Context, transactionID string, reason string) (Transaction, error) {
	transactionID = strings.TrimSpace(transactionID)
	if transactionID == "" {
		return Transaction{}, core.NewError("payments: transaction id is required", core.CategoryBadInput, core.ClientErrorBadInput)
	}
	res, err := a.caller.Send(ctx, client.Request{
		Method: http.MethodPost,
		Path:   "/api/payments/refund/" + transactionID,
		Body:   map[string]any{"reason": strings.TrimSpace(reason)},
	})
	if err != nil {
		return Transaction{}, err
	}
	var out Transaction
	if err := res.DecodeJSON(&out); err != nil {
		return Transaction{}, err
	}
	return out, nil
}

var _ StatusFetcher = (*API)(nil)
