package sqlstore

import (
	"fmt"
	"strings"

	persistence "github.com/goliatone/go-persistence-bun"
	repositorycache "github.com/goliatone/go-repository-cache/cache"
	"github.com/uptrace/bun"

	"github.com/fundiapp/go-fundi-client/core"
)

// RepositoryFactory builds the identity-scoped SQL stores over one bun
// connection. The identity is the local account the stores belong to; a
// fresh factory is expected after login switches accounts.
type RepositoryFactory struct {
	db       *bun.DB
	identity string
	cache    repositorycache.CacheService

	credentialStore    core.CredentialStore
	offlineActionStore *OfflineActionStore
}

type FactoryOption func(*RepositoryFactory)

// WithCredentialCache fronts credential reads with the given cache service.
func WithCredentialCache(cacheService repositorycache.CacheService) FactoryOption {
	return func(f *RepositoryFactory) {
		f.cache = cacheService
	}
}

func NewRepositoryFactory(identity string, options ...FactoryOption) *RepositoryFactory {
	factory := &RepositoryFactory{identity: strings.TrimSpace(identity)}
	for _, option := range options {
		if option != nil {
			option(factory)
		}
	}
	return factory
}

func NewRepositoryFactoryFromPersistence(client *persistence.Client, identity string, options ...FactoryOption) (*RepositoryFactory, error) {
	factory := NewRepositoryFactory(identity, options...)
	if err := factory.BuildStores(client); err != nil {
		return nil, err
	}
	return factory, nil
}

func NewRepositoryFactoryFromDB(db *bun.DB, identity string, options ...FactoryOption) (*RepositoryFactory, error) {
	factory := NewRepositoryFactory(identity, options...)
	if err := factory.BuildStores(db); err != nil {
		return nil, err
	}
	return factory, nil
}

func (f *RepositoryFactory) BuildStores(persistenceClient any) error {
	if f == nil {
		return fmt.Errorf("sqlstore: repository factory is nil")
	}
	if f.identity == "" {
		return fmt.Errorf("sqlstore: identity is required")
	}
	if f.db == nil {
		db, err := resolveBunDB(persistenceClient)
		if err != nil {
			return err
		}
		f.db = db
	}
	if f.credentialStore != nil && f.offlineActionStore != nil {
		return nil
	}
	return f.initStores()
}

func (f *RepositoryFactory) CredentialStore() core.CredentialStore {
	if f == nil {
		return nil
	}
	return f.credentialStore
}

func (f *RepositoryFactory) OfflineActionStore() core.OfflineActionStore {
	if f == nil {
		return nil
	}
	return f.offlineActionStore
}

func (f *RepositoryFactory) DB() *bun.DB {
	if f == nil {
		return nil
	}
	return f.db
}

func (f *RepositoryFactory) initStores() error {
	credentialStore, err := NewCredentialStore(f.db, f.identity)
	if err != nil {
		return err
	}
	if f.cache != nil {
		cached, cacheErr := NewCachedCredentialStore(credentialStore, f.cache, f.identity)
		if cacheErr != nil {
			return cacheErr
		}
		f.credentialStore = cached
	} else {
		f.credentialStore = credentialStore
	}

	offlineActionStore, err := NewOfflineActionStore(f.db, f.identity)
	if err != nil {
		return err
	}
	f.offlineActionStore = offlineActionStore
	return nil
}

func resolveBunDB(candidate any) (*bun.DB, error) {
	switch typed := candidate.(type) {
	case nil:
		return nil, fmt.Errorf("sqlstore: persistence client is required")
	case *bun.DB:
		return typed, nil
	case interface{ DB() *bun.DB }:
		db := typed.DB()
		if db == nil {
			return nil, fmt.Errorf("sqlstore: persistence client returned nil bun db")
		}
		return db, nil
	default:
		return nil, fmt.Errorf("sqlstore: unsupported persistence client type %T", candidate)
	}
}
