package traccar

import "fmt"

// AuthError means the telemetry service rejected the configured
// credentials.
type AuthError struct {
	Status int
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("traccar: authentication rejected (HTTP %d)", e.Status)
}

// ConnectivityError means the service could not be reached at the
// transport level.
type ConnectivityError struct {
	Endpoint string
	Err      error
}

func (e *ConnectivityError) Error() string {
	return fmt.Sprintf("traccar: %s unreachable: %v", e.Endpoint, e.Err)
}

func (e *ConnectivityError) Unwrap() error { return e.Err }

// DataFormatError means the service responded but the payload could not be
// parsed.
type DataFormatError struct {
	Endpoint string
	Err      error
}

func (e *DataFormatError) Error() string {
	return fmt.Sprintf("traccar: unparsable payload from %s: %v", e.Endpoint, e.Err)
}

func (e *DataFormatError) Unwrap() error { return e.Err }
