package sqlstore

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	repositorycache "github.com/goliatone/go-repository-cache/cache"

	"github.com/fundiapp/go-fundi-client/core"
)

const credentialCacheKeyPrefix = "fundi-client::credential::v1"

// CachedCredentialStore fronts credential reads with an in-process cache.
// Every request stamps a token, so the read path is hot; writes and clears
// invalidate before returning so the refresh coordinator's new pair is the
// next value observed.
type CachedCredentialStore struct {
	base     core.CredentialStore
	cache    repositorycache.CacheService
	identity string
}

func NewCachedCredentialStore(
	base core.CredentialStore,
	cacheService repositorycache.CacheService,
	identity string,
) (*CachedCredentialStore, error) {
	if base == nil {
		return nil, fmt.Errorf("sqlstore: base credential store is required")
	}
	if cacheService == nil {
		return nil, fmt.Errorf("sqlstore: credential cache service is required")
	}
	identity = strings.TrimSpace(identity)
	if identity == "" {
		return nil, fmt.Errorf("sqlstore: identity is required")
	}
	return &CachedCredentialStore{base: base, cache: cacheService, identity: identity}, nil
}

// CredentialCacheKey is the deterministic cache key contract:
// fundi-client::credential::v1::<identity> with the identity URL-path
// escaped.
func CredentialCacheKey(identity string) string {
	return credentialCacheKeyPrefix + "::" + url.PathEscape(strings.TrimSpace(identity))
}

func (s *CachedCredentialStore) Get(ctx context.Context) (core.Credential, error) {
	if s == nil || s.base == nil || s.cache == nil {
		return core.Credential{}, fmt.Errorf("sqlstore: cached credential store is not configured")
	}
	cred, err := repositorycache.GetOrFetch(ctx, s.cache, CredentialCacheKey(s.identity), func(ctx context.Context) (core.Credential, error) {
		return s.base.Get(ctx)
	})
	if err != nil {
		return core.Credential{}, err
	}
	return cred, nil
}

func (s *CachedCredentialStore) Save(ctx context.Context, cred core.Credential) error {
	if s == nil || s.base == nil || s.cache == nil {
		return fmt.Errorf("sqlstore: cached credential store is not configured")
	}
	if err := s.base.Save(ctx, cred); err != nil {
		return err
	}
	return s.cache.Delete(ctx, CredentialCacheKey(s.identity))
}

func (s *CachedCredentialStore) Clear(ctx context.Context) error {
	if s == nil || s.base == nil || s.cache == nil {
		return fmt.Errorf("sqlstore: cached credential store is not configured")
	}
	if err := s.base.Clear(ctx); err != nil {
		return err
	}
	return s.cache.Delete(ctx, CredentialCacheKey(s.identity))
}

var _ core.CredentialStore = (*CachedCredentialStore)(nil)
