package events

import (
	"encoding/json"
	"fmt"
	"time"
)

// Envelope is the socket frame in both directions.
type Envelope struct {
	Type      Type            `json:"type"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
}

// Encode builds a socket frame.
func Encode(t Type, payload any, at time.Time) ([]byte, error) {
	env := Envelope{Type: t, Timestamp: at}
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal %s payload: %w", t, err)
		}
		env.Payload = raw
	}
	return json.Marshal(env)
}

// Decode parses a socket frame. The payload is left raw.
func Decode(data []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return Envelope{}, fmt.Errorf("malformed frame: %w", err)
	}
	if env.Type == "" {
		return Envelope{}, fmt.Errorf("malformed frame: missing type")
	}
	return env, nil
}

// DecodePayload unmarshals an envelope's payload into v.
func DecodePayload(env Envelope, v any) error {
	if len(env.Payload) == 0 {
		return fmt.Errorf("%s frame has no payload", env.Type)
	}
	if err := json.Unmarshal(env.Payload, v); err != nil {
		return fmt.Errorf("malformed %s payload: %w", env.Type, err)
	}
	return nil
}
