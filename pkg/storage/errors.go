package storage

import "errors"

var (
	// ErrAlreadyInTx is returned by operations that need a non-transactional
	// handle, such as Begin or Migrate, when called inside a transaction.
	ErrAlreadyInTx = errors.New("already in tx")
	// ErrNotInTx is returned by Commit and Rollback outside a transaction.
	ErrNotInTx = errors.New("not in tx")
	// ErrNotConnected is returned when a handle has no connection pool.
	ErrNotConnected = errors.New("not connected")
)
