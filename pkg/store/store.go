// Package store defines the persistence boundary for connection records and
// provides two implementations: an in-memory store for tests and the CLI,
// and a PostgreSQL-backed store for deployments. The broker core treats
// records as opaque key/value rows and never assumes a specific storage
// technology; only the encrypted parameter blob and the status field are
// ever written by the core.
package store

import (
	"context"
	"time"

	"github.com/connectorhq/meridian/pkg/secret"
)

// Status is the last-known health of a connection record.
type Status string

const (
	StatusUnknown   Status = "unknown"
	StatusHealthy   Status = "healthy"
	StatusUnhealthy Status = "unhealthy"
)

// ConnectionRecord is the persisted identity and encrypted parameters for
// one configured connector instance. The Params blob is opaque to every
// component except the vault.
type ConnectionRecord struct {
	ID          string                  `json:"id"`
	Tag         string                  `json:"tag"`
	Label       string                  `json:"label"`
	Description string                  `json:"description,omitempty"`
	Params      secret.EncryptedPayload `json:"params"`
	Status      Status                  `json:"status"`
	LastTestAt  time.Time               `json:"last_test_at,omitempty"`
	CreatedAt   time.Time               `json:"created_at"`
	UpdatedAt   time.Time               `json:"updated_at"`
}

// Store is the persistence collaborator contract. Implementations must
// return a not_found error kind for missing IDs so callers can distinguish
// a deleted record from a decryption failure, and a conflict error kind for
// duplicate labels.
type Store interface {
	LoadRecord(ctx context.Context, id string) (*ConnectionRecord, error)
	SaveRecord(ctx context.Context, record *ConnectionRecord) error
	DeleteRecord(ctx context.Context, id string) error
	ListRecords(ctx context.Context) ([]*ConnectionRecord, error)
}
