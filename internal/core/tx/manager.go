// Package tx defines the transaction management contract the domain layer
// depends on. The PostgreSQL implementation lives in
// internal/infrastructure/storage/postgres.
package tx

import (
	"context"
)

// Manager runs a function inside a database transaction.
//
// RunInTransaction commits when fn returns nil and rolls back otherwise.
// Nested calls reuse the transaction already carried in ctx.
type Manager interface {
	RunInTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}

// ReadOnlyManager extends Manager for query paths that never write.
type ReadOnlyManager interface {
	Manager

	// ReadOnly executes fn in a read-only transaction.
	ReadOnly(ctx context.Context, fn func(ctx context.Context) error) error
}
