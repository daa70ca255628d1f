package movements

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidIdentifier indicates that the case's stored number does not parse as a CNJ identifier.
	ErrInvalidIdentifier = errors.New("movements: invalid case identifier")

	errMissingDatabase     = errors.New("database handle is required")
	errMissingIDProvider   = errors.New("id provider is required")
	errMissingCases        = errors.New("case repository is required")
	errMissingFetcher      = errors.New("movement fetcher is required")
	errMissingStore        = errors.New("store is required")
	errMissingSynchronizer = errors.New("synchronizer is required")
)

// ServiceError carries a stable operation.reason code alongside its cause.
type ServiceError struct {
	code string
	err  error
}

func (e *ServiceError) Error() string {
	if e.err == nil {
		return e.code
	}
	return fmt.Sprintf("%s: %v", e.code, e.err)
}

func (e *ServiceError) Unwrap() error {
	return e.err
}

// Code returns the operation.reason code.
func (e *ServiceError) Code() string {
	return e.code
}

func newServiceError(operation, reason string, cause error) error {
	return &ServiceError{code: fmt.Sprintf("%s.%s", operation, reason), err: cause}
}
