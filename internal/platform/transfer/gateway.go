// Package transfer is the client for the external value-transfer rail that
// carries payouts and refunds.
package transfer

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/shopspring/decimal"
)

// Request is a single transfer. IdempotencyKey must be stable across retries of
// the same logical transfer; the rail moves value at most once per key.
type Request struct {
	Recipient      string
	Amount         decimal.Decimal
	IdempotencyKey string
}

// Gateway sends transfers and returns the rail's handle for the transfer.
type Gateway interface {
	Send(ctx context.Context, req Request) (string, error)
}

// RetryableError is a failure that may succeed if the same request is sent again.
type RetryableError struct {
	StatusCode int
	Err        error
}

func (e *RetryableError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("transfer failed with status %d: %v", e.StatusCode, e.Err)
	}
	return fmt.Sprintf("transfer failed: %v", e.Err)
}

func (e *RetryableError) Unwrap() error {
	return e.Err
}

// PermanentError is a rejection that will not change on retry, such as an
// unknown recipient.
type PermanentError struct {
	StatusCode int
	Code       string
	Message    string
}

func (e *PermanentError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("transfer rejected (%s): %s", e.Code, e.Message)
	}
	return fmt.Sprintf("transfer rejected with status %d: %s", e.StatusCode, e.Message)
}

// IsRetryable reports whether err is worth another attempt. Unknown errors are
// treated as transient.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	var permanent *PermanentError
	return !errors.As(err, &permanent)
}

// classifyStatus maps a non-2xx status to a retry decision.
func classifyStatus(status int) bool {
	switch {
	case status == http.StatusRequestTimeout, status == http.StatusTooManyRequests:
		return true
	case status >= http.StatusInternalServerError:
		return true
	default:
		return false
	}
}
