package expo

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/tinywideclouds/go-expo-push/pkg/dispatch"
)

// Ticket status and error codes reported by Expo.
const (
	StatusOK    = "ok"
	StatusError = "error"

	ErrorDeviceNotRegistered = "DeviceNotRegistered"
)

// TicketDetails is the optional error detail object on a ticket or receipt.
type TicketDetails struct {
	Error         string `json:"error,omitempty"`
	ExpoPushToken string `json:"expoPushToken,omitempty"`
}

// Ticket is one entry of the push/send response, aligned by index with the sent entries.
type Ticket struct {
	Status  string         `json:"status"`
	ID      string         `json:"id,omitempty"`
	Message string         `json:"message,omitempty"`
	Details *TicketDetails `json:"details,omitempty"`
}

// DeviceNotRegistered reports whether the ticket says the token is no longer valid.
func (t Ticket) DeviceNotRegistered() bool {
	return t.Details != nil && t.Details.Error == ErrorDeviceNotRegistered
}

// Receipt is one entry of the getReceipts response.
type Receipt struct {
	Status  string         `json:"status"`
	Message string         `json:"message,omitempty"`
	Details *TicketDetails `json:"details,omitempty"`
}

// Response wraps a raw Expo API response.
type Response struct {
	StatusCode int
	Body       []byte

	decoded map[string]any
}

func newResponse(raw *dispatch.RawResponse) *Response {
	r := &Response{StatusCode: raw.StatusCode, Body: raw.Body}
	var decoded any
	if err := strictDecode(raw.Body, &decoded); err == nil {
		r.decoded, _ = decoded.(map[string]any)
	}
	return r
}

// Ok reports a 200 response without a top-level "errors" key.
func (r *Response) Ok() bool {
	if r.StatusCode != http.StatusOK {
		return false
	}
	_, hasErrors := r.decoded["errors"]
	return !hasErrors
}

// Data returns the "data" field of a successful response, nil otherwise.
func (r *Response) Data() any {
	if !r.Ok() {
		return nil
	}
	return r.decoded["data"]
}

// Tickets decodes the data array of a push/send response. The slice is nil when
// data is missing or not a list.
func (r *Response) Tickets() ([]Ticket, error) {
	list, ok := r.Data().([]any)
	if !ok {
		return nil, nil
	}
	tickets := make([]Ticket, len(list))
	if err := remarshal(list, &tickets); err != nil {
		return nil, err
	}
	return tickets, nil
}

// Receipts decodes the data map of a getReceipts response, keyed by ticket id.
func (r *Response) Receipts() (map[string]Receipt, error) {
	switch data := r.Data().(type) {
	case map[string]any:
		receipts := make(map[string]Receipt, len(data))
		if err := remarshal(data, &receipts); err != nil {
			return nil, err
		}
		return receipts, nil
	case []any:
		// an empty map is sometimes serialized as an empty list
		if len(data) == 0 {
			return map[string]Receipt{}, nil
		}
	}
	return nil, ErrUnexpectedReceipts
}

// Err classifies a failed response. It returns nil when the response is Ok.
func (r *Response) Err() error {
	if r.Ok() {
		return nil
	}
	return classifyError(r.StatusCode, r.Body)
}

type apiError struct {
	Code    any    `json:"code"`
	Message string `json:"message"`
}

// classifyError extracts the first error of an Expo error response. Bodies that
// are not JSON objects with a non-empty "errors" list become a generic "text" error.
// Only the first error is surfaced.
func classifyError(status int, body []byte) *RemoteAPIError {
	var envelope struct {
		Errors []apiError `json:"errors"`
	}
	if err := strictDecode(body, &envelope); err != nil || len(envelope.Errors) == 0 {
		return &RemoteAPIError{Message: string(body), Code: status, StatusCode: status}
	}

	first := envelope.Errors[0]
	switch code := first.Code.(type) {
	case string:
		return &RemoteAPIError{Message: code + ": " + first.Message, Code: status, StatusCode: status}
	case float64:
		return &RemoteAPIError{Message: first.Message, Code: int(code), StatusCode: status}
	default:
		return &RemoteAPIError{Message: first.Message, StatusCode: status}
	}
}

// strictDecode decodes exactly one JSON value and rejects trailing content.
func strictDecode(body []byte, v any) error {
	dec := json.NewDecoder(bytes.NewReader(body))
	if err := dec.Decode(v); err != nil {
		return err
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return errors.New("unexpected trailing data after json value")
	}
	return nil
}

func remarshal(in, out any) error {
	raw, err := json.Marshal(in)
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, out)
}
