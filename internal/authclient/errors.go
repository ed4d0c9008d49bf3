package authclient

import "errors"

var (
	// ErrMalformedResponse means the server answered but not in a usable shape.
	ErrMalformedResponse = errors.New("malformed auth response")
	// ErrInvalidPayload wraps request validation failures; nothing is sent.
	ErrInvalidPayload = errors.New("invalid request payload")
)
