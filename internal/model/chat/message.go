package chat

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// ErrMalformedFrame is returned when an inbound frame is not a JSON object.
var ErrMalformedFrame = errors.New("malformed chat frame")

// Message is one persisted chat line. Its JSON form is the frame delivered
// to every client, both during history replay and for live broadcasts.
type Message struct {
	ID        string `json:"id"`
	UserID    string `json:"userId"`
	Username  string `json:"username"`
	Text      string `json:"text"`
	Timestamp int64  `json:"timestamp"`
}

// CreatedAt returns the server-assigned receipt time.
func (m Message) CreatedAt() time.Time {
	return time.UnixMilli(m.Timestamp).UTC()
}

// Inbound is the frame a client submits. Any id or timestamp it carries is
// dropped during decoding.
type Inbound struct {
	UserID   string `json:"userId" validate:"required"`
	Username string `json:"username"`
	Text     string `json:"text" validate:"required"`
}

// ErrorFrame reports a rejected inbound frame back to its sender.
type ErrorFrame struct {
	Error string `json:"error"`
}

// DecodeInbound parses a raw client frame.
func DecodeInbound(raw []byte) (Inbound, error) {
	var in Inbound
	if err := json.Unmarshal(raw, &in); err != nil {
		return Inbound{}, fmt.Errorf("%w: %v", ErrMalformedFrame, err)
	}
	return in, nil
}
