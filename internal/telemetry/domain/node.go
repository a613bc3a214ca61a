package telemetry

import (
	"bytes"
	"encoding/json"
)

// NodeConfig is the static configuration of one ingest node.
type NodeConfig struct {
	Mapping     TopicMapping
	Schema      SchemaVariant
	IgnoreTopic bool
	PayloadType PayloadType
	FixedTags   map[string]any
	Unit        *string

	// Measurement and Field are used when neither topic nor message supply them.
	Measurement string
	Field       string

	// IntegerColumn overrides the schema default when set.
	IntegerColumn IntegerColumn
}

// Validate checks enumerated settings.
func (c NodeConfig) Validate() error {
	if _, err := ParseSchemaVariant(string(c.Schema)); err != nil {
		return err
	}
	if _, err := ParsePayloadType(string(c.PayloadType)); err != nil {
		return err
	}
	if _, err := ParseIntegerColumn(string(c.IntegerColumn)); err != nil {
		return err
	}
	return nil
}

// IntegerPreference resolves the integer column for this node.
func (c NodeConfig) IntegerPreference() IntegerColumn {
	if c.IntegerColumn != "" {
		return c.IntegerColumn
	}
	return c.Schema.DefaultIntegerColumn()
}

func (c NodeConfig) payloadType() PayloadType {
	if c.PayloadType == "" {
		return PayloadJSON
	}
	return c.PayloadType
}

// ParseFixedTags decodes a JSON-encoded tag object. Anything that is not a
// JSON object yields no tags.
func ParseFixedTags(value string) map[string]any {
	tags, err := decodeObject(json.RawMessage(value))
	if err != nil {
		return map[string]any{}
	}
	return tags
}

// ResolveMessage resolves msg against the node configuration.
func (c NodeConfig) ResolveMessage(msg Message) (ResolvedIdentity, error) {
	mapping := c.Mapping
	if msg.Mapping != "" {
		mapping = ParseTopicMapping(msg.Mapping)
	}
	measurement := msg.Measurement
	if measurement == "" {
		measurement = c.Measurement
	}
	field := msg.Field
	if field == "" {
		field = c.Field
	}
	return Resolve(msg.Topic, ResolveOptions{
		Mapping:      mapping,
		Schema:       c.Schema,
		IgnoreTopic:  c.IgnoreTopic,
		Measurement:  measurement,
		Field:        field,
		RequireField: c.payloadType() == PayloadNaked,
	})
}

// decodeObject decodes raw into a map when it holds a JSON object.
func decodeObject(raw json.RawMessage) (map[string]any, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || raw[0] != '{' {
		return nil, ErrInvalidPayload
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var out map[string]any
	if err := dec.Decode(&out); err != nil {
		return nil, err
	}
	return out, nil
}
