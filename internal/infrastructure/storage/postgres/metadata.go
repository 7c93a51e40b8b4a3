package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"certflow/internal/domain/metastore"
)

var _ metastore.Store = (*MetadataStore)(nil)

// MetadataStore persists entity metadata in the sys_metadata table, one
// row per (kind, entity_id, meta_key).
type MetadataStore struct {
	db QuerierProvider
}

// NewMetadataStore creates a metadata store.
func NewMetadataStore(db QuerierProvider) *MetadataStore {
	return &MetadataStore{db: db}
}

// Get returns the stored value, or "" when the key is absent.
func (s *MetadataStore) Get(ctx context.Context, kind metastore.Kind, entityID, key string) (string, error) {
	q := s.db.GetQuerier(ctx)

	var value string
	err := q.QueryRow(ctx, `
		SELECT meta_value FROM sys_metadata
		WHERE kind = $1 AND entity_id = $2 AND meta_key = $3
	`, string(kind), entityID, key).Scan(&value)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("get metadata %s/%s/%s: %w", kind, entityID, key, err)
	}
	return value, nil
}

// Set writes the value, replacing any existing one.
func (s *MetadataStore) Set(ctx context.Context, kind metastore.Kind, entityID, key, value string) error {
	q := s.db.GetQuerier(ctx)

	_, err := q.Exec(ctx, `
		INSERT INTO sys_metadata (kind, entity_id, meta_key, meta_value, updated_at)
		VALUES ($1, $2, $3, $4, NOW())
		ON CONFLICT (kind, entity_id, meta_key)
		DO UPDATE SET meta_value = $4, updated_at = NOW()
	`, string(kind), entityID, key, value)
	if err != nil {
		return fmt.Errorf("set metadata %s/%s/%s: %w", kind, entityID, key, err)
	}
	return nil
}
