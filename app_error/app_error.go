package app_error

import (
	"context"
	"errors"
	"net/http"
	"scoreboard/client"

	"github.com/gin-gonic/gin"
)

type statusError struct {
	error
	status int
}

func (e statusError) Unwrap() error {
	return e.error
}

func (e statusError) HTTPStatus() int {
	return e.status
}

// New attaches an HTTP status to err.
func New(err error, status int) error {
	return statusError{error: err, status: status}
}

// HTTPStatus picks the status to answer with for err. Upstream failures map
// to 404 when speedrun.com did not know the resource and to 502 otherwise.
func HTTPStatus(err error) int {
	var withStatus statusError
	if errors.As(err, &withStatus) {
		return withStatus.HTTPStatus()
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return http.StatusGatewayTimeout
	}
	if clientErr, ok := client.AsClientError(err); ok {
		switch {
		case clientErr.StatusCode == http.StatusNotFound:
			return http.StatusNotFound
		case clientErr.Kind == client.TransientUpstreamError, clientErr.Kind == client.ConnectionError:
			return http.StatusBadGateway
		}
	}
	return http.StatusInternalServerError
}

func WithHTTPStatus(c *gin.Context, err error, status int) {
	c.JSON(status, gin.H{"error": err.Error()})
}

func Respond(c *gin.Context, err error) {
	WithHTTPStatus(c, err, HTTPStatus(err))
}
