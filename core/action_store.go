package core

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"
)

// MemoryOfflineActionStore is the in-process queue backing used in tests and
// as a fallback when no durable store is wired. Ordering follows insertion.
type MemoryOfflineActionStore struct {
	mu      sync.Mutex
	actions []OfflineAction
}

func NewMemoryOfflineActionStore() *MemoryOfflineActionStore {
	return &MemoryOfflineActionStore{}
}

func (s *MemoryOfflineActionStore) Append(_ context.Context, action OfflineAction) (OfflineAction, error) {
	if s == nil {
		return OfflineAction{}, fmt.Errorf("core: offline action store is not configured")
	}
	if strings.TrimSpace(action.ID) == "" {
		return OfflineAction{}, fmt.Errorf("core: offline action id is required")
	}
	now := time.Now().UTC()
	if action.CreatedAt.IsZero() {
		action.CreatedAt = now
	}
	action.UpdatedAt = now
	if action.Status == "" {
		action.Status = OfflineActionStatusPending
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.actions {
		if existing.ID == action.ID {
			return OfflineAction{}, fmt.Errorf("core: offline action %q already queued", action.ID)
		}
	}
	s.actions = append(s.actions, cloneOfflineAction(action))
	return action, nil
}

func (s *MemoryOfflineActionStore) ListPending(_ context.Context) ([]OfflineAction, error) {
	return s.listByStatus(OfflineActionStatusPending)
}

func (s *MemoryOfflineActionStore) ListDead(_ context.Context) ([]OfflineAction, error) {
	return s.listByStatus(OfflineActionStatusDead)
}

func (s *MemoryOfflineActionStore) listByStatus(status OfflineActionStatus) ([]OfflineAction, error) {
	if s == nil {
		return nil, fmt.Errorf("core: offline action store is not configured")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]OfflineAction, 0, len(s.actions))
	for _, action := range s.actions {
		if action.Status == status {
			out = append(out, cloneOfflineAction(action))
		}
	}
	return out, nil
}

func (s *MemoryOfflineActionStore) Update(_ context.Context, action OfflineAction) error {
	if s == nil {
		return fmt.Errorf("core: offline action store is not configured")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, existing := range s.actions {
		if existing.ID == action.ID {
			action.UpdatedAt = time.Now().UTC()
			s.actions[i] = cloneOfflineAction(action)
			return nil
		}
	}
	return fmt.Errorf("core: offline action %q not found", action.ID)
}

func (s *MemoryOfflineActionStore) Remove(_ context.Context, id string) error {
	if s == nil {
		return fmt.Errorf("core: offline action store is not configured")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, existing := range s.actions {
		if existing.ID == id {
			s.actions = append(s.actions[:i], s.actions[i+1:]...)
			return nil
		}
	}
	return fmt.Errorf("core: offline action %q not found", id)
}

func (s *MemoryOfflineActionStore) MarkDead(_ context.Context, id string, reason string) error {
	if s == nil {
		return fmt.Errorf("core: offline action store is not configured")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, existing := range s.actions {
		if existing.ID == id {
			existing.Status = OfflineActionStatusDead
			existing.LastError = strings.TrimSpace(reason)
			existing.UpdatedAt = time.Now().UTC()
			s.actions[i] = existing
			return nil
		}
	}
	return fmt.Errorf("core: offline action %q not found", id)
}

func (s *MemoryOfflineActionStore) Clear(_ context.Context) error {
	if s == nil {
		return nil
	}
	s.mu.Lock()
	s.actions = nil
	s.mu.Unlock()
	return nil
}

func cloneOfflineAction(action OfflineAction) OfflineAction {
	cloned := action
	if len(action.Payload) > 0 {
		payload := make(map[string]any, len(action.Payload))
		for key, value := range action.Payload {
			payload[key] = value
		}
		cloned.Payload = payload
	}
	return cloned
}

var _ OfflineActionStore = (*MemoryOfflineActionStore)(nil)
