package auth

import (
	"errors"
)

// Authentication errors
var (
	ErrUserDeclined       = errors.New("user declined authentication")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrUnsupportedMethod  = errors.New("authentication method not supported")
	ErrTimeout            = errors.New("authentication timed out")
	ErrOsAuthFailure      = errors.New("os authentication failure")
	ErrSecretStore        = errors.New("secret store failure")
	ErrPolicyBlocked      = errors.New("authentication blocked by system policy")
	ErrOther              = errors.New("authentication error")
)

// StoreError wraps a hard secret store fault. A missing entry is not a
// StoreError; only failures that must stop the credential cascade are.
type StoreError struct {
	Err error
}

// Error implements the error interface
func (e *StoreError) Error() string {
	return "secret store failure: " + e.Err.Error()
}

// Unwrap returns the underlying error
func (e *StoreError) Unwrap() error {
	return e.Err
}

// Is matches the ErrSecretStore sentinel
func (e *StoreError) Is(target error) bool {
	return target == ErrSecretStore
}
