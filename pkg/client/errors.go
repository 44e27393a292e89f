package client

import (
	"errors"
	"fmt"
)

// Common errors returned by the client.
var (
	// ErrDigestNotFound is returned when the digest page carries no formDigestValue.
	ErrDigestNotFound = errors.New("form digest value not found")
)

// TransportError reports a request that did not complete with a 2xx status,
// either because of a network failure or an error response.
type TransportError struct {
	URL        string
	StatusCode int
	ErrorClass ErrorClass
	Message    string
	Err        error
}

// Error implements the error interface.
func (e *TransportError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s error (status %d) for %s: %s: %v",
			e.ErrorClass, e.StatusCode, e.URL, e.Message, e.Err)
	}
	return fmt.Sprintf("%s error (status %d) for %s: %s",
		e.ErrorClass, e.StatusCode, e.URL, e.Message)
}

// Unwrap implements error unwrapping for errors.Is/As.
func (e *TransportError) Unwrap() error {
	return e.Err
}

// DecodeError reports a response body that could not be parsed into the
// expected shape.
type DecodeError struct {
	URL string
	Err error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode response from %s: %v", e.URL, e.Err)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

// AuthError reports a failure to obtain the request digest.
type AuthError struct {
	URL string
	Err error
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("request digest from %s: %v", e.URL, e.Err)
}

func (e *AuthError) Unwrap() error {
	return e.Err
}

// IsFetchError reports whether err aborts a job's fetch: transport, decode
// or authentication failures.
func IsFetchError(err error) bool {
	var te *TransportError
	var de *DecodeError
	var ae *AuthError
	return errors.As(err, &te) || errors.As(err, &de) || errors.As(err, &ae)
}
