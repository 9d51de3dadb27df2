package core

import (
	"context"
	"testing"
)

func TestMemoryCredentialStore_GetBeforeSaveReturnsZero(t *testing.T) {
	store := NewMemoryCredentialStore()
	cred, err := store.Get(context.Background())
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if !cred.IsZero() {
		t.Fatalf("expected zero credential before save, got %+v", cred)
	}
}

func TestMemoryCredentialStore_SaveRequiresBothTokens(t *testing.T) {
	store := NewMemoryCredentialStore()
	if err := store.Save(context.Background(), Credential{AccessToken: "only-access"}); err == nil {
		t.Fatalf("expected error for partial pair")
	}
	if err := store.Save(context.Background(), Credential{RefreshToken: "only-refresh"}); err == nil {
		t.Fatalf("expected error for partial pair")
	}
}

func TestMemoryCredentialStore_SaveGetClearRoundTrip(t *testing.T) {
	store := NewMemoryCredentialStore()
	ctx := context.Background()

	saved := Credential{AccessToken: "access-1", RefreshToken: "refresh-1"}
	if err := store.Save(ctx, saved); err != nil {
		t.Fatalf("save: %v", err)
	}

	cred, err := store.Get(ctx)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if cred != saved {
		t.Fatalf("expected %+v, got %+v", saved, cred)
	}

	if err := store.Clear(ctx); err != nil {
		t.Fatalf("clear: %v", err)
	}
	cred, err = store.Get(ctx)
	if err != nil {
		t.Fatalf("get after clear: %v", err)
	}
	if !cred.IsZero() {
		t.Fatalf("expected zero credential after clear, got %+v", cred)
	}
}

func TestMemoryCredentialStore_ClearIsIdempotent(t *testing.T) {
	store := NewMemoryCredentialStore()
	ctx := context.Background()
	if err := store.Clear(ctx); err != nil {
		t.Fatalf("clear empty store: %v", err)
	}
	if err := store.Clear(ctx); err != nil {
		t.Fatalf("repeat clear: %v", err)
	}
}
