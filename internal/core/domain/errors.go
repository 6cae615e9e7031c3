package domain

import "errors"

// Error taxonomy. Adapters map these to transport status codes.
var (
	ErrValidation     = errors.New("validation failed")
	ErrAuthentication = errors.New("authentication failed")
	ErrAuthorization  = errors.New("account is not allowed to sign in")
	ErrUserNotFound   = errors.New("user not found")
	ErrUserExists     = errors.New("user already exists")
	ErrStorage        = errors.New("storage failure")
	ErrForbidden      = errors.New("access forbidden")
)

// Token-level authentication failures. All of them are ErrAuthentication.
var (
	ErrNoToken      = &authError{code: "no_token", msg: "authentication token missing"}
	ErrTokenInvalid = &authError{code: "token_invalid", msg: "authentication token invalid or expired"}
)

type authError struct {
	code string
	msg  string
}

func (e *authError) Error() string { return e.msg }

// Code is the machine-readable reason sent to clients.
func (e *authError) Code() string { return e.code }

func (e *authError) Is(target error) bool { return target == ErrAuthentication }

// ValidationError describes malformed input. Its message is safe to show to users.
type ValidationError struct {
	Field   string
	Message string
}

func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{Field: field, Message: message}
}

func (e *ValidationError) Error() string { return e.Message }

func (e *ValidationError) Is(target error) bool { return target == ErrValidation }

// StorageError wraps a backend I/O or serialization failure.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string { return "storage: " + e.Op + ": " + e.Err.Error() }

func (e *StorageError) Unwrap() error { return e.Err }

func (e *StorageError) Is(target error) bool { return target == ErrStorage }
