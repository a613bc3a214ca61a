package kafka

import (
	"encoding/json"
	"strconv"

	kafkago "github.com/segmentio/kafka-go"

	telemetry "mqtt-timescale/internal/telemetry/domain"
)

// Header keys recognized on inbound records.
const (
	HeaderMessageID   = "_msgid"
	HeaderMapping     = "mapping"
	HeaderUnit        = "unit"
	HeaderTimestamp   = "timestamp"
	HeaderMeasurement = "measurement"
	HeaderField       = "field"
	HeaderTags        = "tags"
	HeaderJSONB       = "jsonb"
	HeaderStatus      = "status"
)

// DecodeRecord converts a record into a message. In envelope mode the value
// is a full message document; otherwise the key is the topic, the value is
// the payload and headers carry the optional fields.
func DecodeRecord(record kafkago.Message, envelope bool) (telemetry.Message, error) {
	var msg telemetry.Message
	if envelope {
		if err := json.Unmarshal(record.Value, &msg); err != nil {
			return msg, err
		}
		if msg.Topic == "" && len(record.Key) > 0 {
			msg.Topic = string(record.Key)
		}
		return msg, nil
	}

	msg.Topic = string(record.Key)
	msg.Payload = rawOrString(record.Value)
	for _, header := range record.Headers {
		value := string(header.Value)
		switch header.Key {
		case HeaderMessageID:
			msg.ID = value
		case HeaderMapping:
			msg.Mapping = value
		case HeaderUnit:
			unit := value
			msg.Unit = &unit
		case HeaderMeasurement:
			msg.Measurement = value
		case HeaderField:
			msg.Field = value
		case HeaderTimestamp:
			msg.Timestamp = timestampRaw(value)
		case HeaderTags:
			if json.Valid(header.Value) {
				msg.Tags = json.RawMessage(header.Value)
			}
		case HeaderJSONB:
			if json.Valid(header.Value) {
				msg.JSONB = json.RawMessage(header.Value)
			}
		}
	}
	return msg, nil
}

// EncodeResult builds the outbound record for a handled message.
func EncodeResult(key []byte, msg telemetry.Message) (kafkago.Message, error) {
	value, err := json.Marshal(msg)
	if err != nil {
		return kafkago.Message{}, err
	}
	status := telemetry.StatusOK
	if msg.Result != nil {
		status = msg.Result.Status
	}
	return kafkago.Message{
		Key:   key,
		Value: value,
		Headers: []kafkago.Header{
			{Key: HeaderMessageID, Value: []byte(msg.ID)},
			{Key: HeaderStatus, Value: []byte(status)},
		},
	}, nil
}

// rawOrString keeps valid JSON as-is and quotes anything else as a string.
func rawOrString(value []byte) json.RawMessage {
	if len(value) == 0 {
		return nil
	}
	if json.Valid(value) {
		return json.RawMessage(value)
	}
	quoted, _ := json.Marshal(string(value))
	return quoted
}

// timestampRaw keeps JSON numbers as numbers. Other values, including
// forms such as "+1" or "Inf" that strconv accepts, are quoted.
func timestampRaw(value string) json.RawMessage {
	if _, err := strconv.ParseFloat(value, 64); err == nil && json.Valid([]byte(value)) {
		return json.RawMessage(value)
	}
	quoted, _ := json.Marshal(value)
	return quoted
}
