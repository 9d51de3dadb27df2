package client

import (
	"encoding/json"
	"strings"

	goerrors "github.com/goliatone/go-errors"

	"github.com/fundiapp/go-fundi-client/core"
)

// errorEnvelope covers the body shapes the backend uses for failures. Every
// field is optional; the HTTP status alone is enough to classify.
type errorEnvelope struct {
	Code    string            `json:"code"`
	Message string            `json:"message"`
	Errors  map[string]string `json:"errors"`
	Error   struct {
		Code    string            `json:"code"`
		Message string            `json:"message"`
		Fields  map[string]string `json:"fields"`
	} `json:"error"`
}

// statusError maps a non-2xx response into the taxonomy, carrying the
// machine-readable server code and any field-level validation detail.
func statusError(res Response) *goerrors.Error {
	serverCode := ""
	serverMessage := ""
	var fields map[string]string

	if len(res.Body) > 0 {
		var envelope errorEnvelope
		if err := json.Unmarshal(res.Body, &envelope); err == nil {
			serverCode = strings.TrimSpace(envelope.Code)
			serverMessage = strings.TrimSpace(envelope.Message)
			fields = envelope.Errors
			if serverCode == "" {
				serverCode = strings.TrimSpace(envelope.Error.Code)
			}
			if serverMessage == "" {
				serverMessage = strings.TrimSpace(envelope.Error.Message)
			}
			if len(fields) == 0 {
				fields = envelope.Error.Fields
			}
		}
	}

	if len(fields) > 0 {
		return core.NewStatusError(res.StatusCode, serverCode, serverMessage, map[string]any{"fields": fields})
	}
	return core.NewStatusError(res.StatusCode, serverCode, serverMessage)
}
