package payments

import (
	"context"
	"fmt"
	"time"

	glog "github.com/goliatone/go-logger/glog"

	"github.com/fundiapp/go-fundi-client/core"
)

const (
	defaultPollMaxAttempts = 24
	defaultPollInterval    = 5 * time.Second
)

// StatusFetcher issues one status request per poll attempt.
type StatusFetcher interface {
	Status(ctx context.Context, transactionID string) (core.PaymentResult, error)
}

// Poller converts the asynchronous mobile-money workflow into a terminal
// result by polling the status endpoint a bounded number of times.
type Poller struct {
	fetcher  StatusFetcher
	attempts int
	interval time.Duration
	logger   core.Logger
	metrics  core.MetricsRecorder

	// wait is swappable so tests can run without real delays
	wait func(ctx context.Context, delay time.Duration) error
}

type PollerOption func(*Poller)

func WithPollerLogger(logger core.Logger) PollerOption {
	return func(p *Poller) {
		p.logger = logger
	}
}

func WithPollerMetrics(recorder core.MetricsRecorder) PollerOption {
	return func(p *Poller) {
		p.metrics = recorder
	}
}

func NewPoller(cfg core.Config, fetcher StatusFetcher, opts ...PollerOption) (*Poller, error) {
	if fetcher == nil {
		return nil, fmt.Errorf("payments: status fetcher is required")
	}
	attempts := cfg.Payments.MaxAttempts
	if attempts <= 0 {
		attempts = defaultPollMaxAttempts
	}
	interval := defaultPollInterval
	if cfg.Payments.PollIntervalMS > 0 {
		interval = time.Duration(cfg.Payments.PollIntervalMS) * time.Millisecond
	}
	p := &Poller{
		fetcher:  fetcher,
		attempts: attempts,
		interval: interval,
		metrics:  core.NopMetricsRecorder{},
		wait:     core.WaitWithContext,
	}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt(p)
	}
	p.logger = glog.Ensure(p.logger)
	return p, nil
}

type PollOptions struct {
	MaxAttempts int
	Interval    time.Duration
}

// Poll issues status requests until a terminal status arrives or maxAttempts
// requests have been made. Attempts count requests issued, starting at 1;
// maxAttempts is an inclusive bound. A request-level timeout or
// connectivity failure consumes one attempt rather than aborting the poll.
//
// Exhausting attempts with the payment still pending fails with a poll
// exhaustion error: the payment's true outcome is unknown, which is distinct
// from a server-reported failed payment. Cancelling ctx stops the loop
// without a result.
func (p *Poller) Poll(ctx context.Context, transactionID string, opts PollOptions) (core.PaymentResult, error) {
	if p == nil || p.fetcher == nil {
		return core.PaymentResult{}, core.NewError("payments: poller is not configured", core.CategoryInternal, core.ClientErrorInternal)
	}
	if ctx == nil {
		ctx = context.Background()
	}
	maxAttempts := opts.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = p.attempts
	}
	interval := opts.Interval
	if interval <= 0 {
		interval = p.interval
	}

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return core.PaymentResult{}, core.WrapError(err, core.CategoryOperation, "payments: poll cancelled", core.ClientErrorTimeout)
		}

		result, err := p.fetcher.Status(ctx, transactionID)
		switch {
		case err == nil:
			if result.Status.IsTerminal() {
				return p.finish(ctx, transactionID, result, attempt)
			}
			lastErr = nil
		case core.IsRetryableError(err):
			// one failed request is one consumed attempt, not an abort
			lastErr = err
		default:
			return core.PaymentResult{}, err
		}

		if attempt == maxAttempts {
			break
		}
		if waitErr := p.wait(ctx, interval); waitErr != nil {
			return core.PaymentResult{}, core.WrapError(waitErr, core.CategoryOperation, "payments: poll cancelled", core.ClientErrorTimeout)
		}
	}

	p.metrics.IncCounter(ctx, "payments.poll.total", 1, map[string]string{"outcome": "exhausted"})
	p.logger.Info("payment poll exhausted, status unknown", "transaction_id", transactionID, "attempts", maxAttempts)
	metadata := map[string]any{"transaction_id": transactionID, "attempts": maxAttempts}
	if lastErr != nil {
		metadata["last_error"] = lastErr.Error()
	}
	exhausted := core.NewError(
		fmt.Sprintf("payments: status still unresolved after %d attempts", maxAttempts),
		core.CategoryOperation,
		core.ClientErrorPollExhausted,
	).WithMetadata(metadata)
	return core.PaymentResult{}, exhausted
}

func (p *Poller) finish(ctx context.Context, transactionID string, result core.PaymentResult, attempt int) (core.PaymentResult, error) {
	p.metrics.IncCounter(ctx, "payments.poll.total", 1, map[string]string{"outcome": string(result.Status)})
	p.logger.Info("payment poll settled",
		"transaction_id", transactionID,
		"status", string(result.Status),
		"attempts", attempt,
	)
	if result.Status == core.PaymentStatusCompleted {
		return result, nil
	}
	reason := result.FailureReason
	if reason == "" {
		reason = fmt.Sprintf("payment %s", result.Status)
	}
	return result, core.NewError("payments: "+reason, core.CategoryOperation, core.ClientErrorPaymentFailed).
		WithMetadata(map[string]any{
			"transaction_id": transactionID,
			"status":         string(result.Status),
		})
}
