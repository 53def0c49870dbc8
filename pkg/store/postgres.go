package store

import (
	"context"
	"errors"
	"time"

	"github.com/goccy/go-json"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/connectorhq/meridian/pkg/meridianerrors"
	"github.com/connectorhq/meridian/pkg/secret"
)

// uniqueViolation is the PostgreSQL error code for unique constraint hits.
const uniqueViolation = "23505"

// PostgresStore persists connection records in a PostgreSQL table. Only the
// encrypted parameter blob is stored; plaintext parameters never reach this
// layer.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore connects to PostgreSQL and ensures the records table
// exists.
func NewPostgresStore(ctx context.Context, connString string) (*PostgresStore, error) {
	cfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, meridianerrors.Wrap(err, meridianerrors.ErrorTypeConfig,
			"failed to parse store connection string")
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, meridianerrors.Wrap(err, meridianerrors.ErrorTypeConnection,
			"failed to create store connection pool")
	}

	s := &PostgresStore{pool: pool}
	if err := s.ensureSchema(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

func (s *PostgresStore) ensureSchema(ctx context.Context) error {
	const ddl = `
		CREATE TABLE IF NOT EXISTS connections (
			id          TEXT PRIMARY KEY,
			tag         TEXT NOT NULL,
			label       TEXT NOT NULL UNIQUE,
			description TEXT NOT NULL DEFAULT '',
			params      JSONB NOT NULL,
			status      TEXT NOT NULL DEFAULT 'unknown',
			last_test_at TIMESTAMPTZ,
			created_at  TIMESTAMPTZ NOT NULL,
			updated_at  TIMESTAMPTZ NOT NULL
		)
	`
	if _, err := s.pool.Exec(ctx, ddl); err != nil {
		return meridianerrors.Wrap(err, meridianerrors.ErrorTypeInternal,
			"failed to ensure connections table")
	}
	return nil
}

// LoadRecord returns the record with the given ID.
func (s *PostgresStore) LoadRecord(ctx context.Context, id string) (*ConnectionRecord, error) {
	const query = `
		SELECT id, tag, label, description, params, status, last_test_at, created_at, updated_at
		FROM connections WHERE id = $1
	`

	var (
		record     ConnectionRecord
		paramsJSON []byte
		lastTestAt *time.Time
	)
	err := s.pool.QueryRow(ctx, query, id).Scan(
		&record.ID, &record.Tag, &record.Label, &record.Description,
		&paramsJSON, &record.Status, &lastTestAt, &record.CreatedAt, &record.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, meridianerrors.Newf(meridianerrors.ErrorTypeNotFound,
			"connection %s not found", id)
	}
	if err != nil {
		return nil, meridianerrors.Wrap(err, meridianerrors.ErrorTypeInternal,
			"failed to load connection record")
	}

	if lastTestAt != nil {
		record.LastTestAt = *lastTestAt
	}

	var payload secret.EncryptedPayload
	if err := json.Unmarshal(paramsJSON, &payload); err != nil {
		return nil, meridianerrors.Wrap(err, meridianerrors.ErrorTypeInternal,
			"failed to decode stored payload envelope")
	}
	record.Params = payload

	return &record, nil
}

// SaveRecord inserts or updates a record keyed by ID.
func (s *PostgresStore) SaveRecord(ctx context.Context, record *ConnectionRecord) error {
	paramsJSON, err := json.Marshal(record.Params)
	if err != nil {
		return meridianerrors.Wrap(err, meridianerrors.ErrorTypeInternal,
			"failed to encode payload envelope")
	}

	const query = `
		INSERT INTO connections (id, tag, label, description, params, status, last_test_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, NULLIF($7, 'epoch'::timestamptz), $8, $9)
		ON CONFLICT (id) DO UPDATE SET
			label = EXCLUDED.label,
			description = EXCLUDED.description,
			params = EXCLUDED.params,
			status = EXCLUDED.status,
			last_test_at = EXCLUDED.last_test_at,
			updated_at = EXCLUDED.updated_at
	`

	lastTestAt := record.LastTestAt
	if lastTestAt.IsZero() {
		lastTestAt = time.Unix(0, 0).UTC()
	}

	_, err = s.pool.Exec(ctx, query,
		record.ID, record.Tag, record.Label, record.Description,
		paramsJSON, record.Status, lastTestAt, record.CreatedAt, record.UpdatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return meridianerrors.Newf(meridianerrors.ErrorTypeConflict,
				"a connection labeled %q already exists", record.Label)
		}
		return meridianerrors.Wrap(err, meridianerrors.ErrorTypeInternal,
			"failed to save connection record")
	}
	return nil
}

// DeleteRecord removes a record and its ciphertext permanently.
func (s *PostgresStore) DeleteRecord(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM connections WHERE id = $1`, id)
	if err != nil {
		return meridianerrors.Wrap(err, meridianerrors.ErrorTypeInternal,
			"failed to delete connection record")
	}
	if tag.RowsAffected() == 0 {
		return meridianerrors.Newf(meridianerrors.ErrorTypeNotFound,
			"connection %s not found", id)
	}
	return nil
}

// ListRecords returns all records ordered by label.
func (s *PostgresStore) ListRecords(ctx context.Context) ([]*ConnectionRecord, error) {
	const query = `
		SELECT id, tag, label, description, params, status, last_test_at, created_at, updated_at
		FROM connections ORDER BY label
	`

	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, meridianerrors.Wrap(err, meridianerrors.ErrorTypeInternal,
			"failed to list connection records")
	}
	defer rows.Close()

	var records []*ConnectionRecord
	for rows.Next() {
		var (
			record     ConnectionRecord
			paramsJSON []byte
			lastTestAt *time.Time
		)
		if err := rows.Scan(
			&record.ID, &record.Tag, &record.Label, &record.Description,
			&paramsJSON, &record.Status, &lastTestAt, &record.CreatedAt, &record.UpdatedAt); err != nil {
			return nil, meridianerrors.Wrap(err, meridianerrors.ErrorTypeInternal,
				"failed to scan connection record")
		}
		if lastTestAt != nil {
			record.LastTestAt = *lastTestAt
		}
		var payload secret.EncryptedPayload
		if err := json.Unmarshal(paramsJSON, &payload); err != nil {
			return nil, meridianerrors.Wrap(err, meridianerrors.ErrorTypeInternal,
				"failed to decode stored payload envelope")
		}
		record.Params = payload
		records = append(records, &record)
	}
	if err := rows.Err(); err != nil {
		return nil, meridianerrors.Wrap(err, meridianerrors.ErrorTypeInternal,
			"error iterating connection records")
	}

	return records, nil
}

// Close releases the underlying connection pool.
func (s *PostgresStore) Close() {
	s.pool.Close()
}
