package datajud

import (
	"encoding/json"
	"errors"
	"fmt"
)

var (
	// ErrMissingAPIKey indicates the client was constructed without an API key.
	ErrMissingAPIKey = errors.New("datajud: api key is required")
	// ErrMissingBaseURL indicates the client was constructed without a base URL.
	ErrMissingBaseURL = errors.New("datajud: base url is required")
)

// RoutingError reports that an identifier cannot be mapped to a search endpoint.
// No network call is made when it is returned.
type RoutingError struct {
	Reason string
}

func (e *RoutingError) Error() string {
	return "datajud: cannot route identifier: " + e.Reason
}

// RemoteError reports a transport failure or a non-2xx response from the
// judiciary search service.
type RemoteError struct {
	StatusCode int
	Payload    json.RawMessage
	Err        error
}

func (e *RemoteError) Error() string {
	switch {
	case e.Err != nil && e.StatusCode == 0:
		return fmt.Sprintf("datajud: request failed: %v", e.Err)
	case len(e.Payload) > 0:
		return fmt.Sprintf("datajud: unexpected status %d: %s", e.StatusCode, truncate(string(e.Payload), maxErrorPayloadInMessage))
	default:
		return fmt.Sprintf("datajud: unexpected status %d", e.StatusCode)
	}
}

func (e *RemoteError) Unwrap() error {
	return e.Err
}

const maxErrorPayloadInMessage = 512

func truncate(value string, limit int) string {
	if len(value) <= limit {
		return value
	}
	return value[:limit] + "..."
}
