package events

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Envelope is the wire form of an event. The payload stays opaque until
// Decode maps it onto the concrete variant for the kind.
type Envelope struct {
	EventID    uuid.UUID       `json:"event_id"`
	Kind       Kind            `json:"kind"`
	OccurredAt time.Time       `json:"occurred_at"`
	Payload    json.RawMessage `json:"payload"`
}

// Encode wraps an event into its envelope wire form.
func Encode(evt Event) ([]byte, error) {
	payload, err := json.Marshal(evt)
	if err != nil {
		return nil, fmt.Errorf("events: marshal payload: %w", err)
	}
	env := Envelope{
		EventID:    evt.EventID(),
		Kind:       evt.EventKind(),
		OccurredAt: evt.OccurredAt(),
		Payload:    payload,
	}
	data, err := json.Marshal(env)
	if err != nil {
		return nil, fmt.Errorf("events: marshal envelope: %w", err)
	}
	return data, nil
}

// Decode parses an envelope and returns the typed event for its kind.
// Unknown kinds are rejected so consumers never dispatch on raw strings.
func Decode(data []byte) (Event, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("events: unmarshal envelope: %w", err)
	}
	return decodePayload(env.Kind, env.Payload)
}

func decodePayload(kind Kind, payload []byte) (Event, error) {
	switch kind {
	case KindAccountCreated:
		return decodeAs[AccountCreated](payload)
	case KindAccountDeactivated:
		return decodeAs[AccountDeactivated](payload)
	case KindTransferInitiated:
		return decodeAs[TransferInitiated](payload)
	case KindDepositInitiated:
		return decodeAs[DepositInitiated](payload)
	case KindWithdrawalInitiated:
		return decodeAs[WithdrawalInitiated](payload)
	case KindTransferCompleted:
		return decodeAs[TransferCompleted](payload)
	case KindTransferFailed:
		return decodeAs[TransferFailed](payload)
	case KindTransferCancelled:
		return decodeAs[TransferCancelled](payload)
	case KindDepositCompleted:
		return decodeAs[DepositCompleted](payload)
	case KindWithdrawalCompleted:
		return decodeAs[WithdrawalCompleted](payload)
	default:
		return nil, fmt.Errorf("events: unknown kind %q", kind)
	}
}

func decodeAs[T Event](payload []byte) (Event, error) {
	var evt T
	if err := json.Unmarshal(payload, &evt); err != nil {
		return nil, fmt.Errorf("events: unmarshal payload: %w", err)
	}
	return evt, nil
}
