package cloud

import (
	"errors"
	"fmt"
)

// Sentinel errors for cloud API operations.
//
// These errors can be checked using errors.Is() for specific handling:
//
//	if errors.Is(err, cloud.ErrTransport) {
//	    // Network failure or 5xx; the call never produced a usable response
//	}
var (
	// ErrTransport indicates a network failure or a 5xx response.
	ErrTransport = errors.New("cloud: transport failure")

	// ErrNotAuthenticated indicates an operation that requires a valid
	// session was attempted without one.
	ErrNotAuthenticated = errors.New("cloud: not authenticated")

	// ErrVerificationFailed indicates a two-factor confirmation step was
	// rejected by the API.
	ErrVerificationFailed = errors.New("cloud: verification failed")

	// ErrInvalidCountryCode indicates a country code that is not a valid
	// ISO-3166-1 alpha-2 code.
	ErrInvalidCountryCode = errors.New("cloud: invalid country code")

	// ErrInvalidLanguageCode indicates a language code that is not a valid
	// ISO-639-1 code.
	ErrInvalidLanguageCode = errors.New("cloud: invalid language code")
)

// BusinessError is an application-level failure carried inside a
// well-formed response envelope. It is distinct from the HTTP status:
// the transport succeeded, the API said no.
type BusinessError struct {
	Code int
	Msg  string
}

func (e *BusinessError) Error() string {
	return fmt.Sprintf("cloud: api error %d: %s", e.Code, e.Msg)
}
