package dispatch

import "errors"

// Input errors shared by the client and the subscription layer.
var (
	// ErrInvalidTokenInput is returned when a token argument is neither a string nor a list.
	ErrInvalidTokenInput = errors.New("tokens must be a string or a non-empty list of strings")

	// ErrInvalidChannel is returned for a channel name that is empty once trimmed.
	ErrInvalidChannel = errors.New("channel name must not be empty")
)

// Storage errors.
var (
	// ErrPathNotFound is returned when a file driver is pointed at a path that does not exist.
	ErrPathNotFound = errors.New("storage path not found")

	// ErrInvalidFileType is returned when a file driver path is not a .json document.
	ErrInvalidFileType = errors.New("storage file must be a .json document")

	// ErrUnableToRead covers I/O failures and malformed JSON on read.
	ErrUnableToRead = errors.New("unable to read subscription storage")

	// ErrUnableToWrite covers I/O failures on write, including a vanished path.
	ErrUnableToWrite = errors.New("unable to write subscription storage")

	// ErrUnencodableDocument is returned when a document holds invalid UTF-8.
	ErrUnencodableDocument = errors.New("subscription document cannot be encoded as json")

	// ErrUnsupportedDriver is returned for an unknown storage driver key.
	ErrUnsupportedDriver = errors.New("unsupported storage driver")
)
