package domain

import (
	"errors"
	"fmt"
)

// Error classes. Transport adapters map them to status codes with errors.Is.
var (
	// ErrConfig means the server is missing configuration it needs to
	// authenticate or process events. Requests are rejected, never accepted.
	ErrConfig = errors.New("billing: server configuration error")

	// ErrAuth means the request could not be authenticated.
	ErrAuth = errors.New("billing: unauthenticated event")

	// ErrValidation means the event could not be parsed or is missing data.
	ErrValidation = errors.New("billing: invalid event")

	// ErrPersistence means the record store failed. The event counts as
	// unprocessed and a redelivery is expected.
	ErrPersistence = errors.New("billing: persistence failure")
)

var (
	ErrInvalidPayload = fmt.Errorf("%w: invalid payload", ErrValidation)
	ErrInvalidUser    = fmt.Errorf("%w: missing or invalid user_id", ErrValidation)
)
