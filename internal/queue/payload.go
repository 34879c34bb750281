package queue

import (
	"encoding/json"
	"fmt"
)

// JobPayload is the canonical message body for every stage job.
type JobPayload struct {
	OrderID string `json:"orderId"`
	Attempt int    `json:"attempt,omitempty"`
}

// bufferEnvelope is the shape a payload takes when a broker client JSON-
// serializes an already-serialized byte buffer: {"type":"Buffer","data":[...]}.
// Some upstream publishers produced this double encoding, so consumers must
// accept both wire forms.
type bufferEnvelope struct {
	Type string `json:"type"`
	Data []int  `json:"data"`
}

// normalizePayload resolves the two wire forms (raw JSON bytes vs a
// double-encoded buffer envelope) into canonical JSON bytes.
func normalizePayload(body []byte) ([]byte, error) {
	var env bufferEnvelope
	if err := json.Unmarshal(body, &env); err == nil && env.Type == "Buffer" && env.Data != nil {
		inner := make([]byte, len(env.Data))
		for i, b := range env.Data {
			if b < 0 || b > 255 {
				return nil, fmt.Errorf("buffer envelope byte out of range at index %d: %d", i, b)
			}
			inner[i] = byte(b)
		}
		return inner, nil
	}
	return body, nil
}

// ParseJobPayload decodes a stage job message, tolerating the double-encoded
// buffer form. Unparseable payloads are a terminal per-message condition: the
// caller drops (acks) them, waiting cannot fix corruption.
func ParseJobPayload(body []byte) (*JobPayload, error) {
	normalized, err := normalizePayload(body)
	if err != nil {
		return nil, err
	}

	var payload JobPayload
	if err := json.Unmarshal(normalized, &payload); err != nil {
		return nil, fmt.Errorf("decode job payload: %w", err)
	}
	if payload.OrderID == "" {
		return nil, fmt.Errorf("job payload missing orderId")
	}
	return &payload, nil
}
