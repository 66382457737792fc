package provider

import (
	"context"
	"errors"
	"time"
)

// Message is one email to be delivered through a transport.
type Message struct {
	To       string
	Subject  string
	HTML     string
	Text     string
	Headers  map[string]string
	Metadata map[string]string
}

// SendResult is the outcome of a single delivery attempt. Err is set when
// Success is false; ProviderID identifies which provider handled the send.
type SendResult struct {
	Success    bool
	ProviderID string
	MessageID  string
	Err        error
	SentAt     time.Time
}

// Transport delivers one message through a concrete provider. Adapters
// return (result, nil) for provider-level rejections and reserve the error
// return for failures building or issuing the request; both paths are
// classified by IsTransient before the dispatcher decides to retry.
type Transport interface {
	Send(ctx context.Context, msg *Message) (*SendResult, error)
}

// TransientError marks a failure worth retrying: throttling, 5xx-equivalent
// provider errors, timeouts. Anything not wrapped in it is permanent.
type TransientError struct {
	Err error
}

func (e *TransientError) Error() string { return "transient: " + e.Err.Error() }
func (e *TransientError) Unwrap() error { return e.Err }

// Transient wraps err as retryable. Returns nil for a nil err.
func Transient(err error) error {
	if err == nil {
		return nil
	}
	return &TransientError{Err: err}
}

// IsTransient reports whether err (anywhere in its chain) is retryable.
func IsTransient(err error) bool {
	var te *TransientError
	return errors.As(err, &te)
}
