package offline

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	glog "github.com/goliatone/go-logger/glog"
	"github.com/google/uuid"

	"github.com/fundiapp/go-fundi-client/core"
)

const defaultMaxRetries = 5

// ActionSender replays one queued action against the live API.
type ActionSender interface {
	SendAction(ctx context.Context, action core.OfflineAction) error
}

// ActionSenderFunc adapts a function to the ActionSender contract.
type ActionSenderFunc func(ctx context.Context, action core.OfflineAction) error

func (f ActionSenderFunc) SendAction(ctx context.Context, action core.OfflineAction) error {
	return f(ctx, action)
}

// Queue is the durable FIFO collection of mutations captured while no
// transport was reachable. Flush replays actions strictly in insertion
// order, one at a time, because later actions may depend on earlier ones.
type Queue struct {
	mu       sync.Mutex
	flushing bool

	store      core.OfflineActionStore
	sender     ActionSender
	maxRetries int
	logger     core.Logger
	metrics    core.MetricsRecorder
	now        func() time.Time
}

type Option func(*Queue)

func WithLogger(logger core.Logger) Option {
	return func(q *Queue) {
		q.logger = logger
	}
}

func WithMetricsRecorder(recorder core.MetricsRecorder) Option {
	return func(q *Queue) {
		q.metrics = recorder
	}
}

func WithStore(store core.OfflineActionStore) Option {
	return func(q *Queue) {
		q.store = store
	}
}

func NewQueue(cfg core.Config, sender ActionSender, opts ...Option) (*Queue, error) {
	if sender == nil {
		return nil, fmt.Errorf("offline: action sender is required")
	}
	maxRetries := cfg.Offline.MaxRetries
	if maxRetries <= 0 {
		maxRetries = defaultMaxRetries
	}
	q := &Queue{
		sender:     sender,
		maxRetries: maxRetries,
		metrics:    core.NopMetricsRecorder{},
		now: func() time.Time {
			return time.Now().UTC()
		},
	}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt(q)
	}
	if q.store == nil {
		q.store = core.NewMemoryOfflineActionStore()
	}
	q.logger = glog.Ensure(q.logger)
	return q, nil
}

// Enqueue persists a mutation for later replay. The action is durable as
// soon as Enqueue returns.
func (q *Queue) Enqueue(ctx context.Context, method string, path string, payload map[string]any) (core.OfflineAction, error) {
	if q == nil || q.store == nil {
		return core.OfflineAction{}, core.NewError("offline: queue is not configured", core.CategoryInternal, core.ClientErrorInternal)
	}
	method = strings.TrimSpace(strings.ToUpper(method))
	if method == "" {
		return core.OfflineAction{}, core.NewError("offline: action method is required", core.CategoryBadInput, core.ClientErrorBadInput)
	}
	path = strings.TrimSpace(path)
	if path == "" {
		return core.OfflineAction{}, core.NewError("offline: action path is required", core.CategoryBadInput, core.ClientErrorBadInput)
	}

	action := core.OfflineAction{
		ID:        uuid.NewString(),
		Method:    method,
		Path:      path,
		Payload:   payload,
		Status:    core.OfflineActionStatusPending,
		CreatedAt: q.now(),
	}
	stored, err := q.store.Append(ctx, action)
	if err != nil {
		return core.OfflineAction{}, core.WrapError(err, core.CategoryInternal, "offline: persist action", core.ClientErrorInternal)
	}
	q.metrics.IncCounter(ctx, "offline.enqueue.total", 1, map[string]string{"method": method})
	q.logger.Info("queued offline action", "action_id", stored.ID, "method", method, "path", path)
	return stored, nil
}

// Pending returns the actions awaiting replay, oldest first.
func (q *Queue) Pending(ctx context.Context) ([]core.OfflineAction, error) {
	if q == nil || q.store == nil {
		return nil, core.NewError("offline: queue is not configured", core.CategoryInternal, core.ClientErrorInternal)
	}
	return q.store.ListPending(ctx)
}

// Dead returns actions that exhausted their retries or were rejected
// outright by the server. They are retained for inspection, never silently
// dropped.
func (q *Queue) Dead(ctx context.Context) ([]core.OfflineAction, error) {
	if q == nil || q.store == nil {
		return nil, core.NewError("offline: queue is not configured", core.CategoryInternal, core.ClientErrorInternal)
	}
	return q.store.ListDead(ctx)
}

// Flush replays pending actions in FIFO order, awaiting each action before
// starting the next. It never fails; per-item outcomes land in the report.
//
// A connectivity-class failure leaves the remaining queue intact and aborts
// the flush, to be retried on the next connectivity event. If the item has
// exhausted its retry ceiling it is dead-lettered first and the flush aborts
// without it. A definitive server rejection dead-letters the
// item and replay continues with the next one.
//
// Only one flush runs at a time; a flush invoked while another is in
// progress is a no-op recorded as Skipped.
func (q *Queue) Flush(ctx context.Context) core.FlushReport {
	report := core.FlushReport{StartedAt: q.now()}
	if q == nil || q.store == nil || q.sender == nil {
		report.Skipped = true
		return report
	}
	if ctx == nil {
		ctx = context.Background()
	}

	q.mu.Lock()
	if q.flushing {
		q.mu.Unlock()
		report.Skipped = true
		return report
	}
	q.flushing = true
	q.mu.Unlock()
	defer func() {
		q.mu.Lock()
		q.flushing = false
		q.mu.Unlock()
	}()

	actions, err := q.store.ListPending(ctx)
	if err != nil {
		q.logger.Error("flush aborted, could not read queue", "error", err.Error())
		report.Aborted = true
		report.Duration = q.now().Sub(report.StartedAt)
		return report
	}

	for _, action := range actions {
		item := core.FlushItemResult{
			ActionID: action.ID,
			Method:   action.Method,
			Path:     action.Path,
		}

		sendErr := q.sender.SendAction(ctx, action)
		if sendErr == nil {
			if removeErr := q.store.Remove(ctx, action.ID); removeErr != nil {
				q.logger.Error("replayed action could not be removed", "action_id", action.ID, "error", removeErr.Error())
			}
			item.Outcome = core.FlushOutcomeReplayed
			report.Replayed++
			report.Items = append(report.Items, item)
			continue
		}

		if core.IsSessionExpiredError(sendErr) {
			// replay cannot proceed without a session; the queue stays
			// intact for after re-authentication
			item.Outcome = core.FlushOutcomeDeferred
			item.Error = sendErr.Error()
			report.Deferred++
			report.Items = append(report.Items, item)
			report.Aborted = true
			q.logger.Info("flush deferred, session expired", "action_id", action.ID)
			break
		}

		if core.IsRetryableError(sendErr) {
			action.RetryCount++
			action.LastError = sendErr.Error()
			if action.RetryCount >= q.maxRetries {
				// retry ceiling reached: a transient failure class is now
				// treated as permanent to avoid unbounded retries
				q.markDead(ctx, action, sendErr)
				item.Outcome = core.FlushOutcomeDead
				item.Error = sendErr.Error()
				report.Dead++
				report.Items = append(report.Items, item)
				report.Aborted = true
				break
			}
			if updateErr := q.store.Update(ctx, action); updateErr != nil {
				q.logger.Error("retry count could not be persisted", "action_id", action.ID, "error", updateErr.Error())
			}
			item.Outcome = core.FlushOutcomeDeferred
			item.Error = sendErr.Error()
			report.Deferred++
			report.Items = append(report.Items, item)
			report.Aborted = true
			q.logger.Info("flush deferred on connectivity failure",
				"action_id", action.ID,
				"retry_count", action.RetryCount,
			)
			break
		}

		// definitive rejection: remove from the live queue but keep the
		// action inspectable in its dead-letter state
		q.markDead(ctx, action, sendErr)
		item.Outcome = core.FlushOutcomeDead
		item.Error = sendErr.Error()
		report.Dead++
		report.Items = append(report.Items, item)
	}

	report.Duration = q.now().Sub(report.StartedAt)
	q.metrics.IncCounter(ctx, "offline.flush.total", 1, map[string]string{
		"aborted": fmt.Sprintf("%t", report.Aborted),
	})
	q.metrics.ObserveHistogram(ctx, "offline.flush.duration_ms", float64(report.Duration.Milliseconds()), nil)
	q.logger.Info("flush finished",
		"replayed", report.Replayed,
		"dead", report.Dead,
		"deferred", report.Deferred,
		"aborted", report.Aborted,
	)
	return report
}

func (q *Queue) markDead(ctx context.Context, action core.OfflineAction, cause error) {
	if err := q.store.MarkDead(ctx, action.ID, cause.Error()); err != nil {
		q.logger.Error("action could not be dead-lettered", "action_id", action.ID, "error", err.Error())
	}
}

// Clear drops all queued and dead-lettered actions. Called on logout; the
// queue is scoped to the logged-in identity.
func (q *Queue) Clear(ctx context.Context) error {
	if q == nil || q.store == nil {
		return nil
	}
	return q.store.Clear(ctx)
}
