package repositories

import (
	"errors"
	"fmt"
)

func asRepositoryError(err error) (RepositoryError, bool) {
	var repoErr RepositoryError
	if errors.As(err, &repoErr) {
		return repoErr, true
	}
	return nil, false
}

// storeError is the RepositoryError returned by the in-memory stores.
type storeError struct {
	op       string
	msg      string
	notFound bool
	conflict bool
}

func (e *storeError) Error() string { return fmt.Sprintf("%s: %s", e.op, e.msg) }

func (e *storeError) IsNotFound() bool { return e.notFound }

func (e *storeError) IsConflict() bool { return e.conflict }

func (e *storeError) IsUnavailable() bool { return false }

func notFoundError(op, key string) error {
	return &storeError{op: op, msg: fmt.Sprintf("%q not found", key), notFound: true}
}

func conflictError(op, key string) error {
	return &storeError{op: op, msg: fmt.Sprintf("%q already exists", key), conflict: true}
}
