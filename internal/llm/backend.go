package llm

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"syscall"
)

// DefaultModel is used when neither the call nor the config names a model.
const DefaultModel = "gemini-2.0-flash"

var ErrEmptyResponse = errors.New("EMPTY_MODEL_RESPONSE")

// Request is one single-turn generation.
type Request struct {
	System string
	User   string
	Model  string
}

// Backend performs one generation attempt. Retries belong to Client.
type Backend interface {
	Generate(ctx context.Context, req Request) (string, error)
}

// StatusError is a non-2xx answer from the model API.
type StatusError struct {
	Code    int
	Message string
}

func (e *StatusError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("model API status %d", e.Code)
	}
	return fmt.Sprintf("model API status %d: %s", e.Code, e.Message)
}

// retryableStatus is the set of statuses worth another attempt.
var retryableStatus = map[int]bool{
	http.StatusTooManyRequests:     true,
	http.StatusInternalServerError: true,
	http.StatusBadGateway:          true,
	http.StatusServiceUnavailable:  true,
	http.StatusGatewayTimeout:      true,
}

// IsRetryable reports whether err is a rate limit, a transient server
// status or a network failure.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	var se *StatusError
	if errors.As(err, &se) {
		return retryableStatus[se.Code]
	}
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) ||
		errors.Is(err, syscall.ECONNRESET) || errors.Is(err, syscall.ECONNREFUSED) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne)
}
