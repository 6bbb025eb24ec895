package provider

import (
	"errors"
	"fmt"
)

var (
	// ErrNotConnected marks an operation attempted on a disconnected
	// provider instance. Always a caller bug, never retried.
	ErrNotConnected = errors.New("provider is not connected")

	// ErrNotFound marks a message or folder ID that does not resolve.
	ErrNotFound = errors.New("not found")

	// ErrInvalidArgument marks caller-supplied input the provider cannot
	// act on, e.g. uploading a message without raw content.
	ErrInvalidArgument = errors.New("invalid argument")
)

// ConnectionError wraps an auth, network or session failure at connect time.
type ConnectionError struct {
	Err error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("connection failed: %v", e.Err)
}

func (e *ConnectionError) Unwrap() error { return e.Err }

// ProviderError carries a provider-native failure description verbatim so
// operators can diagnose against the provider's documentation.
type ProviderError struct {
	Op   string
	Desc string
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("%s: %s", e.Op, e.Desc)
}
