package app

import "errors"

var (
	// ErrEmptyMessage marks a send with no content after trimming; the
	// call is a no-op.
	ErrEmptyMessage = errors.New("message is empty")
	// ErrSessionNotFound marks a send against an unknown session id.
	ErrSessionNotFound = errors.New("session not found")
	// ErrTurnInFlight rejects a send while another turn for the same
	// session is still being processed.
	ErrTurnInFlight = errors.New("another turn is already in flight for this session")
)
