package application

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"mqtt-timescale/internal/observability/metrics"
	telemetry "mqtt-timescale/internal/telemetry/domain"
)

// Clock provides time.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now().UTC() }

// Ingester normalizes inbound messages and writes their rows.
type Ingester struct {
	node   telemetry.NodeConfig
	writer telemetry.RowWriter
	logger *log.Logger
	clock  Clock
}

// IngesterOption customizes the ingester.
type IngesterOption func(*Ingester)

// WithClock assigns a clock.
func WithClock(clock Clock) IngesterOption {
	return func(i *Ingester) {
		if clock != nil {
			i.clock = clock
		}
	}
}

// NewIngester constructs an ingester for one node configuration.
func NewIngester(node telemetry.NodeConfig, writer telemetry.RowWriter, logger *log.Logger, opts ...IngesterOption) (*Ingester, error) {
	if writer == nil {
		return nil, errors.New("ingest: nil row writer")
	}
	if err := node.Validate(); err != nil {
		return nil, err
	}
	if node.Mapping == nil {
		node.Mapping = telemetry.ParseTopicMapping("")
	}
	if node.FixedTags == nil {
		node.FixedTags = map[string]any{}
	}
	if logger == nil {
		logger = log.Default()
	}
	ingester := &Ingester{
		node:   node,
		writer: writer,
		logger: logger,
		clock:  systemClock{},
	}
	for _, opt := range opts {
		opt(ingester)
	}
	return ingester, nil
}

// Node returns the effective node configuration.
func (i *Ingester) Node() telemetry.NodeConfig {
	return i.node
}

// Preview resolves and normalizes msg without writing anything.
func (i *Ingester) Preview(msg telemetry.Message) ([]telemetry.Row, error) {
	if i == nil {
		return nil, errors.New("ingest: nil ingester")
	}
	return telemetry.Normalize(i.node, msg, i.clock.Now())
}

// Handle processes one message and returns it with Result set. Rows are
// inserted in payload key order; the first failed insert stops the message
// and rows already written stay written.
func (i *Ingester) Handle(ctx context.Context, msg telemetry.Message) (out telemetry.Message) {
	start := time.Now()
	msg.EnsureID()
	out = msg

	defer func() {
		if r := recover(); r != nil {
			out = i.fail(ctx, msg, fmt.Errorf("ingest: panic: %v", r), start)
		}
	}()

	rows, err := telemetry.Normalize(i.node, msg, i.clock.Now())
	if err != nil {
		return i.fail(ctx, msg, err, start)
	}

	for idx, row := range rows {
		if err := ctx.Err(); err != nil {
			return i.fail(ctx, msg, &telemetry.WriteError{Row: idx, Err: err}, start)
		}
		writeStart := time.Now()
		if err := i.writer.InsertRow(ctx, row); err != nil {
			return i.fail(ctx, msg, &telemetry.WriteError{Row: idx, Err: err}, start)
		}
		metrics.ObserveRowWrite(string(row.Value.Column), time.Since(writeStart))
	}

	out.Result = telemetry.OKResult(len(rows))
	metrics.ObserveMessage(metrics.ResultSuccess, time.Since(start))
	return out
}

func (i *Ingester) fail(ctx context.Context, msg telemetry.Message, err error, start time.Time) telemetry.Message {
	msg.Result = telemetry.ErrorResult(err)
	metrics.IncError(telemetry.ErrorReason(err))
	metrics.ObserveMessage(metrics.ResultError, time.Since(start))

	payload, marshalErr := json.Marshal(msg)
	if marshalErr != nil {
		i.logger.Printf("ingest: message %s from %s failed: %v", msg.ID, telemetry.SourceFromContext(ctx), err)
		return msg
	}
	i.logger.Printf("ingest: message failed: %v source=%s msg=%s", err, telemetry.SourceFromContext(ctx), payload)
	return msg
}
