package sqlstore

import (
	"time"

	"github.com/uptrace/bun"
)

// credentialRecord holds the session credential pair for one identity. One
// row per identity; both tokens always written in the same statement.
type credentialRecord struct {
	bun.BaseModel `bun:"table:client_credentials,alias:cc"`

	Identity     string    `bun:"identity,pk"`
	AccessToken  string    `bun:"access_token,notnull"`
	RefreshToken string    `bun:"refresh_token,notnull"`
	CreatedAt    time.Time `bun:"created_at,nullzero,notnull,default:current_timestamp"`
	UpdatedAt    time.Time `bun:"updated_at,nullzero,notnull,default:current_timestamp"`
}

// offlineActionRecord rows carry a database-assigned seq so replay order
// stays stable even when created_at collides at the column's precision.
type offlineActionRecord struct {
	bun.BaseModel `bun:"table:client_offline_actions,alias:coa"`

	Seq        int64          `bun:"seq,pk,autoincrement"`
	ID         string         `bun:"id,notnull,unique"`
	Identity   string         `bun:"identity,notnull"`
	Method     string         `bun:"method,notnull"`
	Path       string         `bun:"path,notnull"`
	Payload    map[string]any `bun:"payload,type:jsonb"`
	Status     string         `bun:"status,notnull"`
	RetryCount int            `bun:"retry_count,notnull"`
	LastError  string         `bun:"last_error"`
	CreatedAt  time.Time      `bun:"created_at,nullzero,notnull,default:current_timestamp"`
	UpdatedAt  time.Time      `bun:"updated_at,nullzero,notnull,default:current_timestamp"`
}
