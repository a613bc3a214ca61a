package kafka

import (
	"context"
	"encoding/json"
	"io"
	"log"
	"sync"
	"testing"
	"time"

	kafkago "github.com/segmentio/kafka-go"

	telemetry "mqtt-timescale/internal/telemetry/domain"
)

type fakeReader struct {
	mu        sync.Mutex
	records   []kafkago.Message
	committed []kafkago.Message
	closed    bool
}

func newFakeReader(records ...kafkago.Message) *fakeReader {
	return &fakeReader{records: records}
}

func (r *fakeReader) FetchMessage(ctx context.Context) (kafkago.Message, error) {
	r.mu.Lock()
	if len(r.records) > 0 {
		record := r.records[0]
		r.records = r.records[1:]
		r.mu.Unlock()
		return record, nil
	}
	r.mu.Unlock()
	<-ctx.Done()
	return kafkago.Message{}, ctx.Err()
}

func (r *fakeReader) CommitMessages(ctx context.Context, msgs ...kafkago.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.committed = append(r.committed, msgs...)
	return nil
}

func (r *fakeReader) Close() error {
	r.closed = true
	return nil
}

type fakeWriter struct {
	mu      sync.Mutex
	written []kafkago.Message
}

func (w *fakeWriter) WriteMessages(ctx context.Context, msgs ...kafkago.Message) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.written = append(w.written, msgs...)
	return nil
}

func (w *fakeWriter) Close() error { return nil }

type recordingHandler struct {
	mu      sync.Mutex
	seen    []telemetry.Message
	sources []string
}

func (h *recordingHandler) Handle(ctx context.Context, msg telemetry.Message) telemetry.Message {
	h.mu.Lock()
	h.seen = append(h.seen, msg)
	h.sources = append(h.sources, telemetry.SourceFromContext(ctx))
	h.mu.Unlock()
	msg.EnsureID()
	msg.Result = telemetry.OKResult(1)
	return msg
}

func TestDecodeRecordFromHeaders(t *testing.T) {
	record := kafkago.Message{
		Key:   []byte("acme/paris/hq/north/3/301/hvac/s1/climate"),
		Value: []byte(`{"temp":21.5}`),
		Headers: []kafkago.Header{
			{Key: HeaderUnit, Value: []byte("C")},
			{Key: HeaderTimestamp, Value: []byte("1700000000000")},
			{Key: HeaderTags, Value: []byte(`{"device":"override"}`)},
			{Key: HeaderMapping, Value: []byte("org/measurement")},
		},
	}
	msg, err := DecodeRecord(record, false)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if msg.Topic != string(record.Key) || string(msg.Payload) != `{"temp":21.5}` {
		t.Fatalf("unexpected topic/payload: %q %s", msg.Topic, msg.Payload)
	}
	if msg.Unit == nil || *msg.Unit != "C" || string(msg.Timestamp) != "1700000000000" {
		t.Fatalf("unexpected unit/timestamp: %v %s", msg.Unit, msg.Timestamp)
	}
	if msg.Mapping != "org/measurement" || string(msg.Tags) != `{"device":"override"}` {
		t.Fatalf("unexpected mapping/tags: %q %s", msg.Mapping, msg.Tags)
	}
}

func TestDecodeRecordQuotesPlainText(t *testing.T) {
	msg, err := DecodeRecord(kafkago.Message{
		Key:     []byte("a/b"),
		Value:   []byte("on"),
		Headers: []kafkago.Header{
			{Key: HeaderTimestamp, Value: []byte("2024-01-01T00:00:00Z")},
			{Key: HeaderTags, Value: []byte("not json")},
		},
	}, false)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if string(msg.Payload) != `"on"` || string(msg.Timestamp) != `"2024-01-01T00:00:00Z"` {
		t.Fatalf("unexpected payload/timestamp: %s %s", msg.Payload, msg.Timestamp)
	}
	if msg.Tags != nil {
		t.Fatalf("invalid tags header must be dropped, got %s", msg.Tags)
	}
}

func TestDecodeRecordEnvelope(t *testing.T) {
	msg, err := DecodeRecord(kafkago.Message{
		Key:   []byte("fallback/topic"),
		Value: []byte(`{"payload":{"v":1},"unit":"W"}`),
	}, true)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if msg.Topic != "fallback/topic" || msg.Unit == nil || *msg.Unit != "W" {
		t.Fatalf("unexpected envelope message: %+v", msg)
	}
	if _, err := DecodeRecord(kafkago.Message{Value: []byte("nope")}, true); err == nil {
		t.Fatalf("expected envelope decode error")
	}
}

func TestConsumerProducesAndCommits(t *testing.T) {
	reader := newFakeReader(
		kafkago.Message{Topic: "in", Partition: 0, Offset: 1, Key: []byte("o/l/b/a/f/r/g/d/m"), Value: []byte(`{"v":1}`)},
		kafkago.Message{Topic: "in", Partition: 1, Offset: 7, Key: []byte("o/l/b/a/f/r/g/d/m"), Value: []byte(`{"v":2}`)},
	)
	writer := &fakeWriter{}
	handler := &recordingHandler{}
	consumer, err := NewConsumer(reader, handler, log.New(io.Discard, "", 0),
		WithResultWriter(writer), WithWorkers(2))
	if err != nil {
		t.Fatalf("new consumer: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- consumer.Run(ctx) }()

	deadline := time.After(2 * time.Second)
	for {
		reader.mu.Lock()
		n := len(reader.committed)
		reader.mu.Unlock()
		if n == 2 {
			break
		}
		select {
		case <-deadline:
			t.Fatalf("timed out waiting for commits, got %d", n)
		case <-time.After(5 * time.Millisecond):
		}
	}
	cancel()
	if err := <-errCh; err != nil {
		t.Fatalf("run: %v", err)
	}

	if len(writer.written) != 2 {
		t.Fatalf("expected 2 results, got %d", len(writer.written))
	}
	for _, source := range handler.sources {
		if source != "kafka:in" {
			t.Fatalf("expected kafka source, got %q", source)
		}
	}
	var out map[string]any
	if err := json.Unmarshal(writer.written[0].Value, &out); err != nil {
		t.Fatalf("decode result: %v", err)
	}
	if result, ok := out["result"].(map[string]any); !ok || result["status"] != "ok" {
		t.Fatalf("unexpected result: %v", out)
	}
	if err := consumer.Close(); err != nil || !reader.closed {
		t.Fatalf("close: %v", err)
	}
}

type corruptingHandler struct{}

func (corruptingHandler) Handle(ctx context.Context, msg telemetry.Message) telemetry.Message {
	msg.EnsureID()
	msg.Payload = json.RawMessage(`{"broken"`)
	msg.Result = telemetry.OKResult(1)
	return msg
}

func runUntilCommitted(t *testing.T, consumer *Consumer, reader *fakeReader, want int) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- consumer.Run(ctx) }()

	deadline := time.After(2 * time.Second)
	for {
		reader.mu.Lock()
		n := len(reader.committed)
		reader.mu.Unlock()
		if n == want {
			break
		}
		select {
		case <-deadline:
			cancel()
			t.Fatalf("timed out waiting for commits, got %d want %d", n, want)
		case <-time.After(5 * time.Millisecond):
		}
	}
	cancel()
	if err := <-errCh; err != nil {
		t.Fatalf("run: %v", err)
	}
}

func TestDecodeRecordQuotesNonJSONNumericTimestamp(t *testing.T) {
	cases := map[string]string{
		"+1700000000000": `"+1700000000000"`,
		"Inf":            `"Inf"`,
		"01":             `"01"`,
		".5":             `".5"`,
		"5.":             `"5."`,
		"1.5e3":          `1.5e3`,
	}
	for header, want := range cases {
		msg, err := DecodeRecord(kafkago.Message{
			Key:     []byte("a/b"),
			Value:   []byte(`{"v":1}`),
			Headers: []kafkago.Header{{Key: HeaderTimestamp, Value: []byte(header)}},
		}, false)
		if err != nil {
			t.Fatalf("%s: decode: %v", header, err)
		}
		if string(msg.Timestamp) != want {
			t.Fatalf("%s: expected timestamp %s, got %s", header, want, msg.Timestamp)
		}
		if _, err := json.Marshal(msg); err != nil {
			t.Fatalf("%s: message must stay encodable: %v", header, err)
		}
	}
}

func TestConsumerAnswersEveryRecordWithOddTimestampHeaders(t *testing.T) {
	headers := []string{"+1700000000000", "Inf", "01"}
	records := make([]kafkago.Message, 0, len(headers))
	for i, value := range headers {
		records = append(records, kafkago.Message{
			Topic:     "in",
			Partition: 0,
			Offset:    int64(i),
			Key:       []byte("o/l/b/a/f/r/g/d/m"),
			Value:     []byte(`{"v":1}`),
			Headers:   []kafkago.Header{{Key: HeaderTimestamp, Value: []byte(value)}},
		})
	}
	reader := newFakeReader(records...)
	writer := &fakeWriter{}
	consumer, err := NewConsumer(reader, &recordingHandler{}, log.New(io.Discard, "", 0), WithResultWriter(writer))
	if err != nil {
		t.Fatalf("new consumer: %v", err)
	}

	runUntilCommitted(t, consumer, reader, len(headers))

	if len(writer.written) != len(headers) {
		t.Fatalf("expected %d results, got %d", len(headers), len(writer.written))
	}
}

func TestConsumerPublishesErrorWhenResultCannotBeEncoded(t *testing.T) {
	reader := newFakeReader(kafkago.Message{
		Topic: "in", Partition: 0, Offset: 3, Key: []byte("a/b"), Value: []byte(`{"v":1}`),
	})
	writer := &fakeWriter{}
	consumer, err := NewConsumer(reader, corruptingHandler{}, log.New(io.Discard, "", 0), WithResultWriter(writer))
	if err != nil {
		t.Fatalf("new consumer: %v", err)
	}

	runUntilCommitted(t, consumer, reader, 1)

	if len(writer.written) != 1 {
		t.Fatalf("expected 1 result, got %d", len(writer.written))
	}
	var out map[string]any
	if err := json.Unmarshal(writer.written[0].Value, &out); err != nil {
		t.Fatalf("decode result: %v", err)
	}
	result, ok := out["result"].(map[string]any)
	if !ok || result["status"] != "error" {
		t.Fatalf("expected error result, got %v", out)
	}
	if id, _ := out["_msgid"].(string); out["topic"] != "a/b" || id == "" {
		t.Fatalf("expected topic and id on fallback result, got %v", out)
	}
	if status := string(writer.written[0].Headers[1].Value); status != telemetry.StatusError {
		t.Fatalf("expected error status header, got %q", status)
	}
}

func TestShardKeepsPartitionOnOneWorker(t *testing.T) {
	a := kafkago.Message{Topic: "in", Partition: 3, Offset: 1}
	b := kafkago.Message{Topic: "in", Partition: 3, Offset: 9}
	if shard(a, 4) != shard(b, 4) {
		t.Fatalf("same partition must map to same worker")
	}
	if shard(a, 1) != 0 {
		t.Fatalf("single worker must be 0")
	}
}
