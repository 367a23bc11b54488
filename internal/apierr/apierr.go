// Package apierr carries HTTP-classified errors from inner components to
// the outermost request handler, which is the only place that converts
// them into client-visible responses.
package apierr

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
)

type Error struct {
	Status  int
	Message string
}

func (e *Error) Error() string {
	return e.Message
}

func New(status int, message string) *Error {
	return &Error{Status: status, Message: message}
}

func Newf(status int, format string, args ...any) *Error {
	return &Error{Status: status, Message: fmt.Sprintf(format, args...)}
}

func Unauthorized(message string) *Error {
	return New(http.StatusUnauthorized, message)
}

func Forbidden(message string) *Error {
	return New(http.StatusForbidden, message)
}

func BadRequest(message string) *Error {
	return New(http.StatusBadRequest, message)
}

// Upstream classifies a backend / identity-provider / storage failure.
func Upstream(message string) *Error {
	return New(http.StatusBadGateway, message)
}

// Config classifies a missing or invalid deployment setting. Always fatal
// to the request, never retried.
func Config(message string) *Error {
	return New(http.StatusInternalServerError, message)
}

// StatusOf returns the HTTP status carried by err, or 500 for plain errors.
func StatusOf(err error) int {
	var apiErr *Error
	if errors.As(err, &apiErr) {
		return apiErr.Status
	}
	return http.StatusInternalServerError
}

// Respond writes err as the JSON error response. Inner layers never write
// a response themselves; handlers funnel every failure through here.
func Respond(c *gin.Context, err error) {
	var apiErr *Error
	if errors.As(err, &apiErr) {
		c.JSON(apiErr.Status, gin.H{"error": apiErr.Message})
		return
	}
	c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
}
