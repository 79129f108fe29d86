package address

import (
	"errors"
	"strconv"
	"strings"
)

// ErrInvalidAddress is returned when an address is missing one of its parts.
var ErrInvalidAddress = errors.New("address: transport, conversation and user ids are required")

// Address identifies where messages for one conversation are delivered.
// It is captured from an inbound message and never mutated afterwards.
type Address struct {
	TransportID    string `json:"transportId"`
	ConversationID string `json:"conversationId"`
	UserID         string `json:"userId"`
}

// New builds an Address from its three parts.
func New(transportID, conversationID, userID string) Address {
	return Address{
		TransportID:    transportID,
		ConversationID: conversationID,
		UserID:         userID,
	}
}

// Validate checks that every part of the address is set.
func (a Address) Validate() error {
	if strings.TrimSpace(a.TransportID) == "" ||
		strings.TrimSpace(a.ConversationID) == "" ||
		strings.TrimSpace(a.UserID) == "" {
		return ErrInvalidAddress
	}
	return nil
}

// Key returns a stable string usable as a map or database key.
// Parts are length-prefixed so that separators inside ids cannot collide.
func (a Address) Key() string {
	var b strings.Builder
	for _, part := range []string{a.TransportID, a.ConversationID, a.UserID} {
		b.WriteString(strconv.Itoa(len(part)))
		b.WriteByte(':')
		b.WriteString(part)
	}
	return b.String()
}

// String renders the address for humans. Use logging.TruncateID on the
// parts instead when writing to logs.
func (a Address) String() string {
	return a.TransportID + "/" + a.ConversationID + "/" + a.UserID
}
