package core

import (
	"context"
	"fmt"
	"sync"
)

// MemoryCredentialStore keeps the credential pair in process memory. It is
// the default store for tests and for hosts that wire their own secure
// storage at a higher level.
type MemoryCredentialStore struct {
	mu   sync.RWMutex
	cred Credential
	set  bool
}

func NewMemoryCredentialStore() *MemoryCredentialStore {
	return &MemoryCredentialStore{}
}

func (s *MemoryCredentialStore) Get(_ context.Context) (Credential, error) {
	if s == nil {
		return Credential{}, fmt.Errorf("core: credential store is not configured")
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.set {
		return Credential{}, nil
	}
	return s.cred, nil
}

func (s *MemoryCredentialStore) Save(_ context.Context, cred Credential) error {
	if s == nil {
		return fmt.Errorf("core: credential store is not configured")
	}
	if cred.IsZero() {
		return NewError("core: credential is required", CategoryBadInput, ClientErrorBadInput)
	}
	if err := cred.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	s.cred = cred
	s.set = true
	s.mu.Unlock()
	return nil
}

func (s *MemoryCredentialStore) Clear(_ context.Context) error {
	if s == nil {
		return nil
	}
	s.mu.Lock()
	s.cred = Credential{}
	s.set = false
	s.mu.Unlock()
	return nil
}

var _ CredentialStore = (*MemoryCredentialStore)(nil)
