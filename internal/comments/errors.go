package comments

import (
	"errors"
	"fmt"
)

var (
	// ErrValidation is returned before any network call when a body is
	// empty, and for 400 responses.
	ErrValidation = errors.New("comments: invalid input")
	// ErrUnauthorized covers 401/403 and a missing credential.
	ErrUnauthorized = errors.New("comments: not authorized")
	// ErrServer covers transport failures, 5xx and undecodable payloads.
	ErrServer = errors.New("comments: server error")
	// ErrNotFound is a stale id. It is also an ErrServer.
	ErrNotFound = fmt.Errorf("comments: not found: %w", ErrServer)
	// ErrViewClosed is returned when a response arrives after View.Close.
	ErrViewClosed = errors.New("comments: view closed")
)
