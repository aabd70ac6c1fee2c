// Package verr defines the error taxonomy surfaced across the vault/sync boundary.
package verr

import "fmt"

// InputError is a malformed argument: wrong key length, empty bytes, unknown id.
type InputError struct {
	Msg string
}

func (e *InputError) Error() string { return e.Msg }

func Input(format string, args ...any) error {
	return &InputError{Msg: fmt.Sprintf(format, args...)}
}

// AuthError covers an uninitialized vault, wrong password, or a key that fails validation.
type AuthError struct {
	Msg string
}

func (e *AuthError) Error() string { return e.Msg }

func Auth(format string, args ...any) error {
	return &AuthError{Msg: fmt.Sprintf(format, args...)}
}

// DecryptError means ciphertext was tampered with or the AAD/key didn't match.
type DecryptError struct {
	Msg string
}

func (e *DecryptError) Error() string { return e.Msg }

func Decrypt(format string, args ...any) error {
	return &DecryptError{Msg: fmt.Sprintf(format, args...)}
}

// SchemaError means the database's user_version is unknown or newer than this binary.
type SchemaError struct {
	Msg string
}

func (e *SchemaError) Error() string { return e.Msg }

func Schema(format string, args ...any) error {
	return &SchemaError{Msg: fmt.Sprintf(format, args...)}
}

// RemoteError is a transport or HTTP-status failure against the blob backend; retryable.
type RemoteError struct {
	Msg string
	Err error
}

func (e *RemoteError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Msg, e.Err)
	}
	return e.Msg
}

func (e *RemoteError) Unwrap() error { return e.Err }

func Remote(msg string, err error) error {
	return &RemoteError{Msg: msg, Err: err}
}

// ProviderError is a non-2xx response from an LLM or embedding provider.
type ProviderError struct {
	Msg        string
	StatusCode int
}

func (e *ProviderError) Error() string { return e.Msg }

func Provider(statusCode int, format string, args ...any) error {
	return &ProviderError{Msg: fmt.Sprintf(format, args...), StatusCode: statusCode}
}

// NotFoundError is a missing attachment, id, or remote object.
type NotFoundError struct {
	Msg string
}

func (e *NotFoundError) Error() string { return e.Msg }

func NotFound(format string, args ...any) error {
	return &NotFoundError{Msg: fmt.Sprintf(format, args...)}
}

// ConflictError is e.g. an attachment sha256 collision against different bytes.
type ConflictError struct {
	Msg string
}

func (e *ConflictError) Error() string { return e.Msg }

func Conflict(format string, args ...any) error {
	return &ConflictError{Msg: fmt.Sprintf(format, args...)}
}
