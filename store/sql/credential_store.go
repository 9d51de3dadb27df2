package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/uptrace/bun"

	"github.com/fundiapp/go-fundi-client/core"
)

// CredentialStore keeps the session credential pair in the local database,
// scoped to one identity. Save writes both tokens in a single upsert so a
// partial pair can never be observed.
type CredentialStore struct {
	db       *bun.DB
	identity string
}

func NewCredentialStore(db *bun.DB, identity string) (*CredentialStore, error) {
	if db == nil {
		return nil, fmt.Errorf("sqlstore: bun db is required")
	}
	identity = strings.TrimSpace(identity)
	if identity == "" {
		return nil, fmt.Errorf("sqlstore: identity is required")
	}
	return &CredentialStore{db: db, identity: identity}, nil
}

func (s *CredentialStore) Get(ctx context.Context) (core.Credential, error) {
	if s == nil || s.db == nil {
		return core.Credential{}, fmt.Errorf("sqlstore: credential store is not configured")
	}
	record := &credentialRecord{}
	err := s.db.NewSelect().
		Model(record).
		Where("identity = ?", s.identity).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return core.Credential{}, nil
		}
		return core.Credential{}, err
	}
	return core.Credential{
		AccessToken:  record.AccessToken,
		RefreshToken: record.RefreshToken,
	}, nil
}

func (s *CredentialStore) Save(ctx context.Context, cred core.Credential) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("sqlstore: credential store is not configured")
	}
	if cred.IsZero() {
		return core.NewError("sqlstore: credential is required", core.CategoryBadInput, core.ClientErrorBadInput)
	}
	if err := cred.Validate(); err != nil {
		return err
	}

	now := time.Now().UTC()
	record := &credentialRecord{
		Identity:     s.identity,
		AccessToken:  cred.AccessToken,
		RefreshToken: cred.RefreshToken,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	_, err := s.db.NewInsert().
		Model(record).
		On("CONFLICT (identity) DO UPDATE").
		Set("access_token = EXCLUDED.access_token").
		Set("refresh_token = EXCLUDED.refresh_token").
		Set("updated_at = EXCLUDED.updated_at").
		Exec(ctx)
	return err
}

func (s *CredentialStore) Clear(ctx context.Context) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("sqlstore: credential store is not configured")
	}
	_, err := s.db.NewDelete().
		Model((*credentialRecord)(nil)).
		Where("identity = ?", s.identity).
		Exec(ctx)
	return err
}

var _ core.CredentialStore = (*CredentialStore)(nil)
