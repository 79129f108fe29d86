package messaging

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"authbot/internal/address"
)

// ErrInvalidEnvelope is returned when an inbound message cannot be decoded
// or names an incomplete address.
var ErrInvalidEnvelope = errors.New("messaging: invalid envelope")

// Messenger pushes text into a conversation.
type Messenger interface {
	Deliver(ctx context.Context, addr address.Address, text string) error
}

// TurnHandler receives user turns from a transport.
type TurnHandler interface {
	HandleTurn(ctx context.Context, addr address.Address, text string) error
}

// TurnHandlerFunc adapts a function to TurnHandler.
type TurnHandlerFunc func(ctx context.Context, addr address.Address, text string) error

func (f TurnHandlerFunc) HandleTurn(ctx context.Context, addr address.Address, text string) error {
	return f(ctx, addr, text)
}

// Envelope is the wire format shared by every transport, in both directions.
type Envelope struct {
	Address address.Address `json:"address"`
	Text    string          `json:"text"`
}

// DecodeEnvelope parses and validates an inbound envelope.
func DecodeEnvelope(data []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return Envelope{}, fmt.Errorf("%w: %v", ErrInvalidEnvelope, err)
	}
	if err := env.Address.Validate(); err != nil {
		return Envelope{}, fmt.Errorf("%w: %v", ErrInvalidEnvelope, err)
	}
	return env, nil
}
