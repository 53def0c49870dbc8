package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/connectorhq/meridian/pkg/meridianerrors"
	"github.com/connectorhq/meridian/pkg/secret"
)

func testRecord(id, label string) *ConnectionRecord {
	now := time.Now().UTC()
	return &ConnectionRecord{
		ID:    id,
		Tag:   "postgresql",
		Label: label,
		Params: secret.EncryptedPayload{
			KeyVersion: 1,
			Nonce:      []byte{1, 2, 3},
			Ciphertext: []byte{4, 5, 6},
		},
		Status:    StatusUnknown,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func TestMemoryStoreSaveAndLoad(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	require.NoError(t, s.SaveRecord(ctx, testRecord("id-1", "primary")))

	record, err := s.LoadRecord(ctx, "id-1")
	require.NoError(t, err)
	assert.Equal(t, "primary", record.Label)

	// The returned record is a copy; mutating it does not affect the store.
	record.Label = "mutated"
	reloaded, err := s.LoadRecord(ctx, "id-1")
	require.NoError(t, err)
	assert.Equal(t, "primary", reloaded.Label)
}

func TestMemoryStoreLoadMissing(t *testing.T) {
	s := NewMemoryStore()

	_, err := s.LoadRecord(context.Background(), "missing")
	require.Error(t, err)
	assert.True(t, meridianerrors.IsType(err, meridianerrors.ErrorTypeNotFound))
}

func TestMemoryStoreDuplicateLabel(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	require.NoError(t, s.SaveRecord(ctx, testRecord("id-1", "primary")))

	err := s.SaveRecord(ctx, testRecord("id-2", "primary"))
	require.Error(t, err)
	assert.True(t, meridianerrors.IsType(err, meridianerrors.ErrorTypeConflict))

	// Re-saving the same record under its own ID is an update, not a clash.
	updated := testRecord("id-1", "primary")
	updated.Status = StatusHealthy
	require.NoError(t, s.SaveRecord(ctx, updated))
}

func TestMemoryStoreDelete(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	require.NoError(t, s.SaveRecord(ctx, testRecord("id-1", "primary")))
	require.NoError(t, s.DeleteRecord(ctx, "id-1"))

	_, err := s.LoadRecord(ctx, "id-1")
	require.Error(t, err)
	assert.True(t, meridianerrors.IsType(err, meridianerrors.ErrorTypeNotFound))

	err = s.DeleteRecord(ctx, "id-1")
	require.Error(t, err)
	assert.True(t, meridianerrors.IsType(err, meridianerrors.ErrorTypeNotFound))
}

func TestMemoryStoreList(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	records, err := s.ListRecords(ctx)
	require.NoError(t, err)
	assert.Empty(t, records)

	require.NoError(t, s.SaveRecord(ctx, testRecord("id-1", "one")))
	require.NoError(t, s.SaveRecord(ctx, testRecord("id-2", "two")))

	records, err = s.ListRecords(ctx)
	require.NoError(t, err)
	assert.Len(t, records, 2)
}
