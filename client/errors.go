package client

import (
	"errors"
	"fmt"
	"net/http"
)

type ErrorKind string

const (
	// TransientUpstreamError is a 5xx answer, worth retrying with a smaller request.
	TransientUpstreamError ErrorKind = "TransientUpstreamError"
	// UpstreamRejection is any other non-2xx answer or a response that cannot be followed.
	UpstreamRejection ErrorKind = "UpstreamRejection"
	ConnectionError   ErrorKind = "ConnectionError"
	DecodeError       ErrorKind = "DecodeError"
)

type ClientError struct {
	StatusCode      int
	Kind            ErrorKind
	Description     string
	URL             string
	ResponseHeaders http.Header
}

func (e *ClientError) Error() string {
	if e.StatusCode == 0 {
		return fmt.Sprintf("%s: %s (%s)", e.Kind, e.Description, e.URL)
	}
	return fmt.Sprintf("%s: status %d: %s (%s)", e.Kind, e.StatusCode, e.Description, e.URL)
}

// ErrorResponse is the body speedrun.com sends along with a non-2xx status.
type ErrorResponse struct {
	Status  int    `json:"status"`
	Message string `json:"message"`
}

func kindForStatus(statusCode int) ErrorKind {
	if statusCode >= 500 {
		return TransientUpstreamError
	}
	return UpstreamRejection
}

// AsClientError unwraps err down to the ClientError it carries, if any.
func AsClientError(err error) (*ClientError, bool) {
	var clientErr *ClientError
	if errors.As(err, &clientErr) {
		return clientErr, true
	}
	return nil, false
}

func IsKind(err error, kind ErrorKind) bool {
	clientErr, ok := AsClientError(err)
	return ok && clientErr.Kind == kind
}

func IsNotFound(err error) bool {
	clientErr, ok := AsClientError(err)
	return ok && clientErr.StatusCode == http.StatusNotFound
}
