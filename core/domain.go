package core

import (
	"strings"
	"time"
)

// Credential is the bearer credential pair for the current session. Both
// tokens are written together or not at all; a credential with only one of
// the two populated is invalid.
type Credential struct {
	AccessToken  string
	RefreshToken string
}

func (c Credential) IsZero() bool {
	return strings.TrimSpace(c.AccessToken) == "" && strings.TrimSpace(c.RefreshToken) == ""
}

func (c Credential) Validate() error {
	hasAccess := strings.TrimSpace(c.AccessToken) != ""
	hasRefresh := strings.TrimSpace(c.RefreshToken) != ""
	if hasAccess != hasRefresh {
		return NewError("core: credential requires both access and refresh tokens", CategoryBadInput, ClientErrorBadInput)
	}
	return nil
}

type PaymentStatus string

const (
	PaymentStatusPending   PaymentStatus = "pending"
	PaymentStatusCompleted PaymentStatus = "completed"
	PaymentStatusFailed    PaymentStatus = "failed"
	PaymentStatusCancelled PaymentStatus = "cancelled"
)

// IsTerminal reports whether no further status transition can occur.
func (s PaymentStatus) IsTerminal() bool {
	switch s {
	case PaymentStatusCompleted, PaymentStatusFailed, PaymentStatusCancelled:
		return true
	}
	return false
}

type PaymentResult struct {
	TransactionID string
	Status        PaymentStatus
	Provider      string
	Amount        string
	Currency      string
	FailureReason string
	Metadata      map[string]any
}

type OfflineActionStatus string

const (
	OfflineActionStatusPending OfflineActionStatus = "pending"
	OfflineActionStatusDead    OfflineActionStatus = "dead"
)

// OfflineAction is a mutation captured while no transport was reachable,
// replayed in insertion order once connectivity resumes.
type OfflineAction struct {
	ID         string
	Method     string
	Path       string
	Payload    map[string]any
	Status     OfflineActionStatus
	RetryCount int
	LastError  string
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

type FlushOutcome string

const (
	FlushOutcomeReplayed FlushOutcome = "replayed"
	FlushOutcomeDead     FlushOutcome = "dead"
	FlushOutcomeDeferred FlushOutcome = "deferred"
)

type FlushItemResult struct {
	ActionID string
	Method   string
	Path     string
	Outcome  FlushOutcome
	Error    string
}

// FlushReport captures the result of one queue flush. Flush itself never
// fails; per-item outcomes are recorded here.
type FlushReport struct {
	StartedAt time.Time
	Duration  time.Duration
	Replayed  int
	Dead      int
	Deferred  int
	Skipped   bool
	Aborted   bool
	Items     []FlushItemResult
}
