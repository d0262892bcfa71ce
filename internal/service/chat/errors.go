package chat

import "errors"

var (
	ErrInvalidPayload      = errors.New("invalid message payload")
	ErrEmptyText           = errors.New("message text is empty")
	ErrTextTooLong         = errors.New("message text is too long")
	ErrMissingParticipant  = errors.New("participant id is required")
	ErrDuplicateConnection = errors.New("connection already registered")
	ErrPeerClosed          = errors.New("connection closed")
	ErrSendBufferFull      = errors.New("connection send buffer full")
)
