package firestore

import (
	"context"
	"errors"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// Kind buckets gRPC status codes into the cases repositories care about.
type Kind int

const (
	KindOther Kind = iota
	KindNotFound
	KindConflict
	KindUnavailable
)

func kindOf(code codes.Code) Kind {
	switch code {
	case codes.NotFound:
		return KindNotFound
	case codes.AlreadyExists, codes.Aborted, codes.FailedPrecondition:
		return KindConflict
	case codes.Unavailable, codes.ResourceExhausted, codes.Internal, codes.DeadlineExceeded:
		return KindUnavailable
	}
	return KindOther
}

// Error is a classified Firestore failure. It satisfies repositories.RepositoryError.
type Error struct {
	Op   string
	Kind Kind
	Err  error
}

func (e *Error) Error() string {
	if e.Op == "" {
		return "firestore: " + e.Err.Error()
	}
	return "firestore: " + e.Op + ": " + e.Err.Error()
}

func (e *Error) Unwrap() error { return e.Err }

func (e *Error) IsNotFound() bool    { return e.Kind == KindNotFound }
func (e *Error) IsConflict() bool    { return e.Kind == KindConflict }
func (e *Error) IsUnavailable() bool { return e.Kind == KindUnavailable }

// WrapError classifies err under op. Caller cancellation is returned as the plain context
// error so handlers can tell it apart from backend failures.
func WrapError(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || status.Code(err) == codes.Canceled {
		return context.Canceled
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return context.DeadlineExceeded
	}
	var classified *Error
	if errors.As(err, &classified) {
		return classified
	}
	return &Error{Op: op, Kind: kindOf(status.Code(err)), Err: err}
}
