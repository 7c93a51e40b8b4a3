// Package metastore provides key-value metadata attached to platform
// entities (orders, users, products). The fulfillment core keeps its
// certificate-number records and archive pointers here.
package metastore

import (
	"context"
	"sync"
)

// Kind names the entity family a metadata row belongs to.
type Kind string

const (
	KindOrder   Kind = "order"
	KindUser    Kind = "user"
	KindProduct Kind = "product"
)

// KeyCertificateZip is the user-metadata key holding the purchaser's
// current archive file name.
const KeyCertificateZip = "_certificate_zip_file"

// Store is durable entity metadata.
//
// Get returns "" for an absent key; Set replaces an existing value.
type Store interface {
	Get(ctx context.Context, kind Kind, entityID, key string) (string, error)
	Set(ctx context.Context, kind Kind, entityID, key, value string) error
}

// MemoryStore is an in-memory Store for tests.
type MemoryStore struct {
	mu     sync.RWMutex
	values map[string]string
}

// NewMemoryStore creates an empty in-memory metadata store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{values: make(map[string]string)}
}

var _ Store = (*MemoryStore)(nil)

func compose(kind Kind, entityID, key string) string {
	return string(kind) + "\x00" + entityID + "\x00" + key
}

// Get implements Store.
func (s *MemoryStore) Get(ctx context.Context, kind Kind, entityID, key string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.values[compose(kind, entityID, key)], nil
}

// Set implements Store.
func (s *MemoryStore) Set(ctx context.Context, kind Kind, entityID, key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.values[compose(kind, entityID, key)] = value
	return nil
}
