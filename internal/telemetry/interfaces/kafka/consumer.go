package kafka

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"log"
	"sync"
	"time"

	kafkago "github.com/segmentio/kafka-go"

	telemetry "mqtt-timescale/internal/telemetry/domain"
)

// Handler processes one message and returns it with a result attached.
type Handler interface {
	Handle(ctx context.Context, msg telemetry.Message) telemetry.Message
}

// RecordReader is the subset of *kafka.Reader the consumer needs.
type RecordReader interface {
	FetchMessage(ctx context.Context) (kafkago.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafkago.Message) error
	Close() error
}

// RecordWriter is the subset of *kafka.Writer the consumer needs.
type RecordWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafkago.Message) error
	Close() error
}

// Config configures the Kafka transport.
type Config struct {
	Brokers     []string
	Topic       string
	GroupID     string
	ResultTopic string
	Workers     int
	Envelope    bool
}

// Enabled reports whether a consumer should run.
func (c Config) Enabled() bool {
	return len(c.Brokers) > 0 && c.Topic != ""
}

// NewReader builds a consumer group reader.
func NewReader(cfg Config) *kafkago.Reader {
	return kafkago.NewReader(kafkago.ReaderConfig{
		Brokers:  cfg.Brokers,
		Topic:    cfg.Topic,
		GroupID:  cfg.GroupID,
		MinBytes: 1,
		MaxBytes: 10e6,
	})
}

// NewWriter builds the result writer, or nil when no result topic is set.
func NewWriter(cfg Config) *kafkago.Writer {
	if cfg.ResultTopic == "" {
		return nil
	}
	return &kafkago.Writer{
		Addr:         kafkago.TCP(cfg.Brokers...),
		Topic:        cfg.ResultTopic,
		Balancer:     &kafkago.Hash{},
		RequiredAcks: kafkago.RequireOne,
	}
}

// Consumer feeds Kafka records through a handler.
type Consumer struct {
	reader   RecordReader
	writer   RecordWriter
	handler  Handler
	workers  int
	envelope bool
	logger   *log.Logger
}

// ConsumerOption customizes the consumer.
type ConsumerOption func(*Consumer)

// WithResultWriter sends handled messages to writer.
func WithResultWriter(writer RecordWriter) ConsumerOption {
	return func(c *Consumer) {
		c.writer = writer
	}
}

// WithWorkers sets the number of concurrent workers.
func WithWorkers(n int) ConsumerOption {
	return func(c *Consumer) {
		if n > 0 {
			c.workers = n
		}
	}
}

// WithEnvelope makes the consumer decode record values as full messages.
func WithEnvelope(envelope bool) ConsumerOption {
	return func(c *Consumer) {
		c.envelope = envelope
	}
}

// NewConsumer constructs a consumer.
func NewConsumer(reader RecordReader, handler Handler, logger *log.Logger, opts ...ConsumerOption) (*Consumer, error) {
	if reader == nil {
		return nil, errors.New("kafka consumer: nil reader")
	}
	if handler == nil {
		return nil, errors.New("kafka consumer: nil handler")
	}
	if logger == nil {
		logger = log.Default()
	}
	consumer := &Consumer{
		reader:  reader,
		handler: handler,
		workers: 1,
		logger:  logger,
	}
	for _, opt := range opts {
		opt(consumer)
	}
	return consumer, nil
}

// Run fetches records until ctx is done. Records of one partition always go
// to the same worker so offsets are committed in order.
func (c *Consumer) Run(ctx context.Context) error {
	queues := make([]chan kafkago.Message, c.workers)
	var wg sync.WaitGroup
	for i := range queues {
		queues[i] = make(chan kafkago.Message, 16)
		wg.Add(1)
		go func(queue <-chan kafkago.Message) {
			defer wg.Done()
			for record := range queue {
				c.process(ctx, record)
			}
		}(queues[i])
	}

	err := c.fetchLoop(ctx, queues)
	for _, queue := range queues {
		close(queue)
	}
	wg.Wait()
	return err
}

func (c *Consumer) fetchLoop(ctx context.Context, queues []chan kafkago.Message) error {
	for {
		record, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			c.logger.Printf("kafka consumer: fetch error: %v", err)
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(time.Second):
			}
			continue
		}
		queue := queues[shard(record, len(queues))]
		select {
		case queue <- record:
		case <-ctx.Done():
			return nil
		}
	}
}

func (c *Consumer) process(ctx context.Context, record kafkago.Message) {
	msg, err := DecodeRecord(record, c.envelope)
	var out telemetry.Message
	if err != nil {
		c.logger.Printf("kafka consumer: decode error at %s/%d@%d: %v", record.Topic, record.Partition, record.Offset, err)
		out = msg
		out.EnsureID()
		out.Result = telemetry.ErrorResult(err)
	} else {
		out = c.handler.Handle(telemetry.WithSource(ctx, "kafka:"+record.Topic), msg)
	}

	if c.writer != nil {
		result, err := EncodeResult(record.Key, out)
		if err != nil {
			c.logger.Printf("kafka consumer: encode result error: %v", err)
			fallback := telemetry.Message{ID: out.ID, Topic: out.Topic}
			fallback.EnsureID()
			fallback.Result = telemetry.ErrorResult(fmt.Errorf("kafka: encode result: %w", err))
			if result, err = EncodeResult(record.Key, fallback); err != nil {
				c.logger.Printf("kafka consumer: encode fallback result error: %v", err)
				return
			}
		}
		if err := c.writer.WriteMessages(ctx, result); err != nil {
			c.logger.Printf("kafka consumer: produce result error: %v", err)
			return
		}
	}
	if err := c.reader.CommitMessages(ctx, record); err != nil {
		c.logger.Printf("kafka consumer: commit error: %v", err)
	}
}

// Close releases the reader and writer.
func (c *Consumer) Close() error {
	err := c.reader.Close()
	if c.writer != nil {
		err = errors.Join(err, c.writer.Close())
	}
	return err
}

func shard(record kafkago.Message, n int) int {
	if n <= 1 {
		return 0
	}
	h := fnv.New32a()
	_, _ = h.Write([]byte(record.Topic))
	return int((h.Sum32() + uint32(record.Partition)) % uint32(n))
}
