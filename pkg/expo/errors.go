package expo

import (
	"errors"
	"fmt"

	"github.com/tinywideclouds/go-expo-push/pkg/dispatch"
)

// Validation and dispatch errors.
var (
	// ErrNoValidTokens is returned when no usable Expo push token survives validation.
	ErrNoValidTokens = errors.New("no valid expo push tokens provided")

	// ErrInvalidMessagePriority is returned for a priority outside default|normal|high.
	ErrInvalidMessagePriority = errors.New("priority must be one of default, normal or high")

	// ErrEmptyMessageList is returned when Push is called with nothing queued.
	ErrEmptyMessageList = errors.New("you must have at least one message to push")

	// ErrNoRecipient is returned when a message has no `to` and no default recipients exist.
	ErrNoRecipient = errors.New("you must have at least one recipient")

	// ErrUnexpectedReceipts is returned when the receipts endpoint returns non-map data.
	ErrUnexpectedReceipts = errors.New("unexpected receipts payload from expo")

	// ErrUnsupportedHook is returned when registering a hook under an unknown event name.
	ErrUnsupportedHook = errors.New("unsupported hook event")

	// ErrNoSubscriptionStore is returned by subscription calls on a client built without storage.
	ErrNoSubscriptionStore = errors.New("client has no subscription storage configured")
)

// Shared errors re-exported for callers that only import this package.
var (
	ErrInvalidTokenInput = dispatch.ErrInvalidTokenInput
	ErrInvalidChannel    = dispatch.ErrInvalidChannel
	ErrPathNotFound      = dispatch.ErrPathNotFound
	ErrInvalidFileType   = dispatch.ErrInvalidFileType
	ErrUnableToRead      = dispatch.ErrUnableToRead
	ErrUnableToWrite     = dispatch.ErrUnableToWrite
	ErrUnsupportedDriver = dispatch.ErrUnsupportedDriver
)

// InvalidMessageDataError is returned when `data` is list-shaped or a scalar.
type InvalidMessageDataError struct {
	TypeName string
}

func (e *InvalidMessageDataError) Error() string {
	return fmt.Sprintf("message data must be an object or a key/value map, %s given", e.TypeName)
}

// InvalidMessageFieldError is returned when a message attribute has the wrong type.
type InvalidMessageFieldError struct {
	Field    string
	Expected string
	Got      string
}

func (e *InvalidMessageFieldError) Error() string {
	return fmt.Sprintf("message field %q expects %s, %s given", e.Field, e.Expected, e.Got)
}

// UnexpectedTicketCountError is returned when Expo answers with a different number of
// tickets than entries were sent.
type UnexpectedTicketCountError struct {
	Expected int
	Actual   int
}

func (e *UnexpectedTicketCountError) Error() string {
	return fmt.Sprintf("expected expo to respond with %d %s but received %d",
		e.Expected, pluralize(e.Expected, "ticket", "tickets"), e.Actual)
}

// RemoteAPIError carries the first error reported by the Expo API.
type RemoteAPIError struct {
	Message    string
	Code       int
	StatusCode int
}

func (e *RemoteAPIError) Error() string {
	return fmt.Sprintf("expo api error (code %d): %s", e.Code, e.Message)
}

// DispatchError wraps a validation failure detected while preparing a push.
type DispatchError struct {
	Msg string
	Err error
}

func (e *DispatchError) Error() string {
	if e.Err == nil {
		return e.Msg
	}
	return e.Msg + ": " + e.Err.Error()
}

func (e *DispatchError) Unwrap() error { return e.Err }

func pluralize(n int, singular, plural string) string {
	if n == 1 {
		return singular
	}
	return plural
}
