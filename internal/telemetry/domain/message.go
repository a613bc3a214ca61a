package telemetry

import (
	"bytes"
	"encoding/json"

	"github.com/google/uuid"
)

// PayloadType selects how msg.payload is read.
type PayloadType string

const (
	// PayloadJSON reads an object and emits one row per key.
	PayloadJSON PayloadType = "json"
	// PayloadNaked reads a single scalar named by the resolved field.
	PayloadNaked PayloadType = "naked"
)

// ParsePayloadType validates a payload type. Empty means json.
func ParsePayloadType(value string) (PayloadType, error) {
	switch PayloadType(value) {
	case "", PayloadJSON:
		return PayloadJSON, nil
	case PayloadNaked:
		return PayloadNaked, nil
	default:
		return "", ErrInvalidPayloadType
	}
}

// Result statuses.
const (
	StatusOK    = "ok"
	StatusError = "error"
)

// Result is attached to every outbound message.
type Result struct {
	Status   string `json:"status"`
	Inserted int    `json:"inserted"`
	Error    string `json:"error"`
	// Reason is the ErrorReason label of a failure. It is not encoded.
	Reason string `json:"-"`
}

// OKResult reports rows written.
func OKResult(inserted int) *Result {
	return &Result{Status: StatusOK, Inserted: inserted}
}

// ErrorResult reports a failure with its text.
func ErrorResult(err error) *Result {
	return &Result{Status: StatusError, Error: err.Error(), Reason: ErrorReason(err)}
}

// MarshalJSON emits {status, inserted} or {status, error}.
func (r Result) MarshalJSON() ([]byte, error) {
	if r.Status == StatusError {
		return json.Marshal(struct {
			Status string `json:"status"`
			Error  string `json:"error"`
		}{r.Status, r.Error})
	}
	return json.Marshal(struct {
		Status   string `json:"status"`
		Inserted int    `json:"inserted"`
	}{r.Status, r.Inserted})
}

// Message is an inbound telemetry message. Fields it does not know about are
// kept and written back when the message is encoded.
type Message struct {
	ID          string
	Topic       string
	Payload     json.RawMessage
	Mapping     string
	Tags        json.RawMessage
	JSONB       json.RawMessage
	Unit        *string
	Timestamp   json.RawMessage
	Measurement string
	Field       string
	Result      *Result

	extra map[string]json.RawMessage
}

const (
	keyID          = "_msgid"
	keyTopic       = "topic"
	keyPayload     = "payload"
	keyMapping     = "mapping"
	keyTags        = "tags"
	keyJSONB       = "jsonb"
	keyUnit        = "unit"
	keyTimestamp   = "timestamp"
	keyMeasurement = "measurement"
	keyField       = "field"
	keyResult      = "result"
)

// EnsureID assigns a random id when the message has none.
func (m *Message) EnsureID() string {
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	return m.ID
}

// UnmarshalJSON decodes a message object. String-typed keys holding other
// JSON types are kept as unknown fields.
func (m *Message) UnmarshalJSON(data []byte) error {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return err
	}
	*m = Message{}

	takeString := func(key string, dst *string) {
		raw, ok := fields[key]
		if !ok {
			return
		}
		var s string
		if err := json.Unmarshal(raw, &s); err == nil {
			*dst = s
			delete(fields, key)
		}
	}
	takeRaw := func(key string, dst *json.RawMessage) {
		if raw, ok := fields[key]; ok {
			*dst = raw
			delete(fields, key)
		}
	}

	takeString(keyID, &m.ID)
	takeString(keyTopic, &m.Topic)
	takeString(keyMapping, &m.Mapping)
	takeString(keyMeasurement, &m.Measurement)
	takeString(keyField, &m.Field)
	takeRaw(keyPayload, &m.Payload)
	takeRaw(keyTags, &m.Tags)
	takeRaw(keyJSONB, &m.JSONB)
	takeRaw(keyTimestamp, &m.Timestamp)

	if raw, ok := fields[keyUnit]; ok {
		var unit *string
		if err := json.Unmarshal(raw, &unit); err == nil {
			m.Unit = unit
			delete(fields, keyUnit)
		}
	}
	// A result on an inbound message is stale; the pipeline sets a new one.
	delete(fields, keyResult)

	if len(fields) > 0 {
		m.extra = fields
	}
	return nil
}

// MarshalJSON encodes the message including unknown fields and the result.
func (m Message) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(m.extra)+11)
	for key, value := range m.extra {
		out[key] = value
	}
	putString := func(key, value string) {
		if value != "" {
			out[key] = value
		}
	}
	putRaw := func(key string, value json.RawMessage) {
		if len(bytes.TrimSpace(value)) > 0 {
			out[key] = value
		}
	}

	putString(keyID, m.ID)
	putString(keyTopic, m.Topic)
	putString(keyMapping, m.Mapping)
	putString(keyMeasurement, m.Measurement)
	putString(keyField, m.Field)
	putRaw(keyPayload, m.Payload)
	putRaw(keyTags, m.Tags)
	putRaw(keyJSONB, m.JSONB)
	putRaw(keyTimestamp, m.Timestamp)
	if m.Unit != nil {
		out[keyUnit] = *m.Unit
	}
	if m.Result != nil {
		out[keyResult] = m.Result
	}
	return json.Marshal(out)
}
