// Package storage defines the persistence interfaces of the run history.
// Backends such as PostgreSQL provide the implementations.
package storage

import "context"

// AllStorage groups every domain-specific storage capability.
type AllStorage interface {
	RunStorage
}

// TxStorage is a storage handle bound to a database transaction. It becomes
// unusable after Commit or Rollback.
type TxStorage interface {
	AllStorage

	// Commit persists every change made through the handle.
	Commit() error
	// Rollback discards every uncommitted change.
	Rollback() error
}

// Storage is a non-transactional handle that can start transactions.
type Storage interface {
	AllStorage

	// Close releases the underlying connection pool.
	Close() error
	// Ping checks that the backend is reachable.
	Ping(ctx context.Context) error

	// Begin starts a transaction.
	Begin(ctx context.Context) (TxStorage, error)
	// WithTx runs cb in a transaction, committing when cb returns nil and
	// rolling back otherwise.
	WithTx(ctx context.Context, cb func(storage AllStorage) error) error
}
