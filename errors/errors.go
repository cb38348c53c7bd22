package errors

import (
	"context"
	sterrors "errors"
	"fmt"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

var (
	ErrNotFound         = sterrors.New("not found")
	ErrForbidden        = sterrors.New("forbidden")
	ErrInvalidArgument  = sterrors.New("invalid argument")
	ErrProcessorFailure = sterrors.New("processor failure")
	ErrStorageFailure   = sterrors.New("storage failure")

	ErrAlreadyExists      = sterrors.New("already exists")
	ErrInvalidCredentials = sterrors.New("invalid credentials")
	ErrWeakSecret         = fmt.Errorf("%w: secret does not meet complexity rules", ErrInvalidArgument)

	ErrWorkerPanic = fmt.Errorf("worker panic")
	ErrEmptyWords  = fmt.Errorf("no words have been found")
)

// ProcessorError reports a failing service handler. It unwraps to both
// ErrProcessorFailure and the handler's own error.
type ProcessorError struct {
	Service string
	Cause   error
}

func (e *ProcessorError) Error() string {
	if e.Cause == nil {
		return fmt.Sprintf("%s: service %q", ErrProcessorFailure, e.Service)
	}
	return fmt.Sprintf("%s: service %q: %v", ErrProcessorFailure, e.Service, e.Cause)
}

func (e *ProcessorError) Unwrap() []error {
	if e.Cause == nil {
		return []error{ErrProcessorFailure}
	}
	return []error{ErrProcessorFailure, e.Cause}
}

// StorageError reports an I/O failure of the message store or one of its indexes.
type StorageError struct {
	Op    string
	Path  string
	Cause error
}

func (e *StorageError) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("%s: %s: %v", ErrStorageFailure, e.Op, e.Cause)
	}
	return fmt.Sprintf("%s: %s %s: %v", ErrStorageFailure, e.Op, e.Path, e.Cause)
}

func (e *StorageError) Unwrap() []error {
	return []error{ErrStorageFailure, e.Cause}
}

// NewStorageError wraps cause unless it is nil.
func NewStorageError(op, path string, cause error) error {
	if cause == nil {
		return nil
	}
	return &StorageError{Op: op, Path: path, Cause: cause}
}

// Is and As are re-exported so callers importing this package under the
// name "errors" keep access to the standard helpers.
func Is(err, target error) bool { return sterrors.Is(err, target) }

func As(err error, target any) bool { return sterrors.As(err, target) }

func Join(errs ...error) error { return sterrors.Join(errs...) }

// MapToGRPCError translates the error taxonomy into gRPC status errors.
func MapToGRPCError(err error) error {
	if err == nil {
		return nil
	}
	if _, ok := status.FromError(err); ok {
		return err
	}
	// A processor error also unwraps to its handler's cause, which must not
	// change the code the caller sees.
	switch {
	case sterrors.Is(err, ErrProcessorFailure):
		return status.Error(codes.FailedPrecondition, err.Error())
	case sterrors.Is(err, ErrInvalidCredentials):
		return status.Error(codes.Unauthenticated, err.Error())
	case sterrors.Is(err, ErrAlreadyExists):
		return status.Error(codes.AlreadyExists, err.Error())
	case sterrors.Is(err, ErrInvalidArgument):
		return status.Error(codes.InvalidArgument, err.Error())
	case sterrors.Is(err, ErrForbidden):
		return status.Error(codes.PermissionDenied, err.Error())
	case sterrors.Is(err, ErrNotFound):
		return status.Error(codes.NotFound, err.Error())
	case sterrors.Is(err, ErrStorageFailure):
		return status.Error(codes.Unavailable, err.Error())
	case sterrors.Is(err, context.Canceled):
		return status.Error(codes.Canceled, err.Error())
	case sterrors.Is(err, context.DeadlineExceeded):
		return status.Error(codes.DeadlineExceeded, err.Error())
	default:
		return status.Error(codes.Internal, err.Error())
	}
}
