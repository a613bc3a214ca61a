package telemetry

import "errors"

var (
	// ErrMissingTopic is returned when a message has no topic and the node does not ignore topics.
	ErrMissingTopic = errors.New("telemetry: no topic provided and ignore topic is not set")
	// ErrMissingMeasurement is returned when no measurement could be resolved.
	ErrMissingMeasurement = errors.New("telemetry: measurement is required")
	// ErrMissingField is returned when a naked payload has no field name.
	ErrMissingField = errors.New("telemetry: field is required for naked payload")
	// ErrInvalidPayload is returned when a json payload is not an object.
	ErrInvalidPayload = errors.New("telemetry: payload must be an object for json payload type")
	// ErrInvalidTimestamp is returned when msg.timestamp cannot be parsed as a date.
	ErrInvalidTimestamp = errors.New("telemetry: invalid timestamp")
	// ErrInvalidSchema is returned for an unknown schema variant.
	ErrInvalidSchema = errors.New("telemetry: invalid schema variant")
	// ErrInvalidPayloadType is returned for an unknown payload type.
	ErrInvalidPayloadType = errors.New("telemetry: invalid payload type")
	// ErrInvalidIntegerColumn is returned for an unknown integer column preference.
	ErrInvalidIntegerColumn = errors.New("telemetry: invalid integer column")
)

// WriteError wraps a sink failure for a single row. The sink text is kept verbatim.
type WriteError struct {
	Row int
	Err error
}

func (e *WriteError) Error() string {
	if e == nil || e.Err == nil {
		return "telemetry: write failure"
	}
	return e.Err.Error()
}

func (e *WriteError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// Error reasons used as log and metric labels.
const (
	ReasonMissingTopic       = "missing_topic"
	ReasonMissingMeasurement = "missing_measurement"
	ReasonMissingField       = "missing_field"
	ReasonInvalidPayload     = "invalid_payload"
	ReasonInvalidTimestamp   = "invalid_timestamp"
	ReasonWriteFailure       = "write_failure"
	ReasonUnknown            = "unknown"
)

// ErrorReason classifies err into one of the Reason* labels.
func ErrorReason(err error) string {
	var writeErr *WriteError
	switch {
	case err == nil:
		return ""
	case errors.As(err, &writeErr):
		return ReasonWriteFailure
	case errors.Is(err, ErrMissingTopic):
		return ReasonMissingTopic
	case errors.Is(err, ErrMissingMeasurement):
		return ReasonMissingMeasurement
	case errors.Is(err, ErrMissingField):
		return ReasonMissingField
	case errors.Is(err, ErrInvalidPayload):
		return ReasonInvalidPayload
	case errors.Is(err, ErrInvalidTimestamp):
		return ReasonInvalidTimestamp
	default:
		return ReasonUnknown
	}
}
