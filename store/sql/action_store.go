package sqlstore

import (
	"context"
	"fmt"
	"strings"
	"time"

	repository "github.com/goliatone/go-repository-bun"
	"github.com/uptrace/bun"

	"github.com/fundiapp/go-fundi-client/core"
)

// OfflineActionStore is the durable queue backing. Pending actions are
// returned in insertion order; dead-lettered actions stay inspectable until
// the identity's state is cleared.
type OfflineActionStore struct {
	db       *bun.DB
	repo     repository.Repository[*offlineActionRecord]
	identity string
}

func NewOfflineActionStore(db *bun.DB, identity string) (*OfflineActionStore, error) {
	if db == nil {
		return nil, fmt.Errorf("sqlstore: bun db is required")
	}
	identity = strings.TrimSpace(identity)
	if identity == "" {
		return nil, fmt.Errorf("sqlstore: identity is required")
	}
	repo := repository.NewRepository[*offlineActionRecord](db, offlineActionHandlers())
	if validator, ok := repo.(repository.Validator); ok {
		if err := validator.Validate(); err != nil {
			return nil, fmt.Errorf("sqlstore: invalid offline action repository wiring: %w", err)
		}
	}
	return &OfflineActionStore{db: db, repo: repo, identity: identity}, nil
}

func (s *OfflineActionStore) Append(ctx context.Context, action core.OfflineAction) (core.OfflineAction, error) {
	if s == nil || s.repo == nil {
		return core.OfflineAction{}, fmt.Errorf("sqlstore: offline action store is not configured")
	}
	if strings.TrimSpace(action.ID) == "" {
		return core.OfflineAction{}, fmt.Errorf("sqlstore: offline action id is required")
	}
	now := time.Now().UTC()
	if action.CreatedAt.IsZero() {
		action.CreatedAt = now
	}
	if action.Status == "" {
		action.Status = core.OfflineActionStatusPending
	}
	record := &offlineActionRecord{
		ID:         strings.TrimSpace(action.ID),
		Identity:   s.identity,
		Method:     strings.TrimSpace(action.Method),
		Path:       strings.TrimSpace(action.Path),
		Payload:    copyAnyMap(action.Payload),
		Status:     string(action.Status),
		RetryCount: action.RetryCount,
		LastError:  action.LastError,
		CreatedAt:  action.CreatedAt,
		UpdatedAt:  now,
	}
	inserted, err := s.repo.Create(ctx, record)
	if err != nil {
		return core.OfflineAction{}, err
	}
	return inserted.toDomain(), nil
}

func (s *OfflineActionStore) ListPending(ctx context.Context) ([]core.OfflineAction, error) {
	return s.listByStatus(ctx, core.OfflineActionStatusPending)
}

func (s *OfflineActionStore) ListDead(ctx context.Context) ([]core.OfflineAction, error) {
	return s.listByStatus(ctx, core.OfflineActionStatusDead)
}

func (s *OfflineActionStore) listByStatus(ctx context.Context, status core.OfflineActionStatus) ([]core.OfflineAction, error) {
	if s == nil || s.repo == nil {
		return nil, fmt.Errorf("sqlstore: offline action store is not configured")
	}
	records, _, err := s.repo.List(ctx,
		repository.SelectBy("identity", "=", s.identity),
		repository.SelectBy("status", "=", string(status)),
		repository.OrderBy("seq ASC"),
	)
	if err != nil {
		return nil, err
	}
	out := make([]core.OfflineAction, 0, len(records))
	for _, record := range records {
		out = append(out, record.toDomain())
	}
	return out, nil
}

func (s *OfflineActionStore) Update(ctx context.Context, action core.OfflineAction) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("sqlstore: offline action store is not configured")
	}
	result, err := s.db.NewUpdate().
		Model((*offlineActionRecord)(nil)).
		Set("retry_count = ?", action.RetryCount).
		Set("last_error = ?", action.LastError).
		Set("updated_at = ?", time.Now().UTC()).
		Where("id = ?", strings.TrimSpace(action.ID)).
		Where("identity = ?", s.identity).
		Exec(ctx)
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err == nil && affected == 0 {
		return fmt.Errorf("sqlstore: offline action %q not found", action.ID)
	}
	return nil
}

func (s *OfflineActionStore) Remove(ctx context.Context, id string) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("sqlstore: offline action store is not configured")
	}
	_, err := s.db.NewDelete().
		Model((*offlineActionRecord)(nil)).
		Where("id = ?", strings.TrimSpace(id)).
		Where("identity = ?", s.identity).
		Exec(ctx)
	return err
}

func (s *OfflineActionStore) MarkDead(ctx context.Context, id string, reason string) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("sqlstore: offline action store is not configured")
	}
	_, err := s.db.NewUpdate().
		Model((*offlineActionRecord)(nil)).
		Set("status = ?", string(core.OfflineActionStatusDead)).
		Set("last_error = ?", strings.TrimSpace(reason)).
		Set("updated_at = ?", time.Now().UTC()).
		Where("id = ?", strings.TrimSpace(id)).
		Where("identity = ?", s.identity).
		Exec(ctx)
	return err
}

func (s *OfflineActionStore) Clear(ctx context.Context) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("sqlstore: offline action store is not configured")
	}
	_, err := s.db.NewDelete().
		Model((*offlineActionRecord)(nil)).
		Where("identity = ?", s.identity).
		Exec(ctx)
	return err
}

func (r *offlineActionRecord) toDomain() core.OfflineAction {
	if r == nil {
		return core.OfflineAction{}
	}
	return core.OfflineAction{
		ID:         r.ID,
		Method:     r.Method,
		Path:       r.Path,
		Payload:    copyAnyMap(r.Payload),
		Status:     core.OfflineActionStatus(r.Status),
		RetryCount: r.RetryCount,
		LastError:  r.LastError,
		CreatedAt:  r.CreatedAt,
		UpdatedAt:  r.UpdatedAt,
	}
}

var _ core.OfflineActionStore = (*OfflineActionStore)(nil)
