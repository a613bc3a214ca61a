package telemetry

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"strconv"
	"time"
)

// Row is one INSERT into the measurements table.
type Row struct {
	Time        time.Time
	Tags        map[string]string
	Measurement string
	Field       string
	Value       NormalizedValue
	Unit        *string
	ExtraTags   map[string]any
}

// RowWriter persists rows one statement at a time.
type RowWriter interface {
	InsertRow(ctx context.Context, row Row) error
}

// Columns returns the statement columns and positional values:
// time, every tag column, measurement, field, the value column, unit, tags.
func (r Row) Columns() ([]string, []any, error) {
	extra, err := encodeExtraTags(r.ExtraTags)
	if err != nil {
		return nil, nil, err
	}

	columns := make([]string, 0, len(TagColumns)+6)
	values := make([]any, 0, len(TagColumns)+6)

	columns = append(columns, "time")
	values = append(values, r.Time)
	for _, name := range TagColumns {
		columns = append(columns, name)
		if value, ok := r.Tags[name]; ok {
			values = append(values, value)
		} else {
			values = append(values, nil)
		}
	}
	columns = append(columns, "measurement", "field", string(r.Value.Column), "unit", "tags")
	values = append(values, r.Measurement, r.Field, r.Value.Value)
	if r.Unit != nil {
		values = append(values, *r.Unit)
	} else {
		values = append(values, nil)
	}
	values = append(values, extra)
	return columns, values, nil
}

func encodeExtraTags(tags map[string]any) (string, error) {
	if len(tags) == 0 {
		return "{}", nil
	}
	data, err := json.Marshal(tags)
	if err != nil {
		return "", fmt.Errorf("telemetry: encode tags: %w", err)
	}
	return string(data), nil
}

// MarshalJSON renders the row as its column set, for previews and logs.
func (r Row) MarshalJSON() ([]byte, error) {
	tags := make(map[string]*string, len(TagColumns))
	for _, name := range TagColumns {
		if value, ok := r.Tags[name]; ok {
			v := value
			tags[name] = &v
		} else {
			tags[name] = nil
		}
	}
	extra := r.ExtraTags
	if extra == nil {
		extra = map[string]any{}
	}
	return json.Marshal(struct {
		Time        time.Time          `json:"time"`
		Tags        map[string]*string `json:"tag_columns"`
		Measurement string             `json:"measurement"`
		Field       string             `json:"field"`
		Column      StorageColumn      `json:"column"`
		Value       any                `json:"value"`
		Unit        *string            `json:"unit"`
		ExtraTags   map[string]any     `json:"tags"`
	}{r.Time, tags, r.Measurement, r.Field, r.Value.Column, r.Value.Value, r.Unit, extra})
}

// Normalize resolves msg and builds its rows in one step.
func Normalize(node NodeConfig, msg Message, now time.Time) ([]Row, error) {
	identity, err := node.ResolveMessage(msg)
	if err != nil {
		return nil, err
	}
	return BuildRows(identity, node, msg, now)
}

// BuildRows turns a resolved message into rows, one per payload value.
// Tag columns merge fixed tags, then message tags, then topic tags; later
// sources win. Overflow topic tags and msg.jsonb go to the JSON tag bag,
// jsonb winning on collision.
func BuildRows(identity ResolvedIdentity, node NodeConfig, msg Message, now time.Time) ([]Row, error) {
	var values []keyValue
	switch node.payloadType() {
	case PayloadNaked:
		if identity.Field == "" {
			return nil, ErrMissingField
		}
		value, err := decodeScalar(msg.Payload)
		if err != nil {
			return nil, err
		}
		values = []keyValue{{Key: identity.Field, Value: value}}
	default:
		fields, err := decodeOrderedObject(msg.Payload)
		if err != nil {
			return nil, err
		}
		values = fields
	}

	ts, err := parseTimestamp(msg.Timestamp, now)
	if err != nil {
		return nil, err
	}

	messageTags, _ := decodeObject(msg.Tags)
	tags, extra := mergeTags(node.FixedTags, messageTags, identity.Tags)
	for key, value := range identity.OverflowTags {
		extra[key] = value
	}
	if jsonb, err := decodeObject(msg.JSONB); err == nil {
		for key, value := range jsonb {
			extra[key] = value
		}
	}

	unit := msg.Unit
	if unit == nil {
		unit = node.Unit
	}

	pref := node.IntegerPreference()
	rows := make([]Row, 0, len(values))
	for _, kv := range values {
		normalized := Classify(kv.Value, pref)
		normalized.Field = kv.Key
		rows = append(rows, Row{
			Time:        ts,
			Tags:        tags,
			Measurement: identity.Measurement,
			Field:       kv.Key,
			Value:       normalized,
			Unit:        unit,
			ExtraTags:   extra,
		})
	}
	return rows, nil
}

// mergeTags layers tag sources lowest to highest. Keys outside the tag
// column vocabulary are returned in extra. A null value clears the column.
func mergeTags(fixed, message map[string]any, topic map[string]string) (map[string]string, map[string]any) {
	columns := make(map[string]struct{}, len(TagColumns))
	for _, name := range TagColumns {
		columns[name] = struct{}{}
	}

	tags := map[string]string{}
	extra := map[string]any{}
	apply := func(source map[string]any) {
		for key, value := range source {
			if _, ok := columns[key]; !ok {
				extra[key] = value
				continue
			}
			if value == nil {
				delete(tags, key)
				continue
			}
			tags[key] = tagString(value)
		}
	}
	apply(fixed)
	apply(message)
	for key, value := range topic {
		tags[key] = value
	}
	return tags, extra
}

func tagString(value any) string {
	switch v := value.(type) {
	case string:
		return v
	case bool:
		return strconv.FormatBool(v)
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case int:
		return strconv.Itoa(v)
	case int64:
		return strconv.FormatInt(v, 10)
	default:
		return stringify(v)
	}
}

type keyValue struct {
	Key   string
	Value any
}

// decodeOrderedObject reads a JSON object keeping key order. A repeated key
// keeps its first position and its last value.
func decodeOrderedObject(raw json.RawMessage) ([]keyValue, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || raw[0] != '{' {
		return nil, ErrInvalidPayload
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	if _, err := dec.Token(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}

	var fields []keyValue
	index := map[string]int{}
	for dec.More() {
		token, err := dec.Token()
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
		}
		key, ok := token.(string)
		if !ok {
			return nil, ErrInvalidPayload
		}
		var value any
		if err := dec.Decode(&value); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
		}
		if i, seen := index[key]; seen {
			fields[i].Value = value
			continue
		}
		index[key] = len(fields)
		fields = append(fields, keyValue{Key: key, Value: value})
	}
	if _, err := dec.Token(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	return fields, nil
}

// decodeScalar reads a naked payload. An absent payload is null.
func decodeScalar(raw json.RawMessage) (any, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return nil, nil
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var value any
	if err := dec.Decode(&value); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	if _, err := dec.Token(); err != io.EOF {
		return nil, ErrInvalidPayload
	}
	return value, nil
}

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999Z07:00",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02",
	time.RFC1123Z,
	time.RFC1123,
}

// maxEpochMillis is the largest distance from the epoch a date may have,
// 100,000,000 days either way.
const maxEpochMillis = 8.64e15

// parseTimestamp reads msg.timestamp: a date string or epoch milliseconds.
// Absent, null, zero and empty values mean now.
func parseTimestamp(raw json.RawMessage, now time.Time) (time.Time, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || string(raw) == "null" || string(raw) == "false" {
		return now.UTC(), nil
	}

	var s string
	if raw[0] == '"' {
		if err := json.Unmarshal(raw, &s); err != nil {
			return time.Time{}, ErrInvalidTimestamp
		}
		if s == "" {
			return now.UTC(), nil
		}
	} else {
		s = string(raw)
	}

	if ms, err := strconv.ParseFloat(s, 64); err == nil && !math.IsInf(ms, 0) && !math.IsNaN(ms) {
		if raw[0] != '"' && ms == 0 {
			return now.UTC(), nil
		}
		if math.Abs(ms) > maxEpochMillis {
			return time.Time{}, ErrInvalidTimestamp
		}
		whole := math.Trunc(ms)
		frac := time.Duration(math.Round((ms - whole) * float64(time.Millisecond)))
		return time.UnixMilli(int64(whole)).Add(frac).UTC(), nil
	}
	for _, layout := range timestampLayouts {
		if ts, err := time.Parse(layout, s); err == nil {
			return ts.UTC(), nil
		}
	}
	return time.Time{}, ErrInvalidTimestamp
}
