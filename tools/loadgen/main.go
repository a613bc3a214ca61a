package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"math/rand"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	kafkago "github.com/segmentio/kafka-go"

	"mqtt-timescale/internal/auth"
)

type config struct {
	mode         string
	baseURL      string
	ingestSecret string
	brokers      string
	topic        string
	orgPrefix    string
	deviceCount  int
	messages     int
	interval     time.Duration
}

func main() {
	cfg := parseConfig()
	if cfg.deviceCount <= 0 {
		log.Fatal("device-count must be > 0")
	}
	if cfg.messages <= 0 {
		log.Fatal("messages must be > 0")
	}

	ctx := context.Background()
	rng := rand.New(rand.NewSource(time.Now().UnixNano()))
	devices := buildDeviceTopics(cfg.orgPrefix, cfg.deviceCount)

	var send func(ctx context.Context, topic string, payload []byte) error
	switch cfg.mode {
	case "http":
		if cfg.ingestSecret == "" {
			log.Fatal("INGEST_HMAC_SECRET is required for http mode")
		}
		client := &http.Client{Timeout: 10 * time.Second}
		send = func(ctx context.Context, topic string, payload []byte) error {
			return postSigned(ctx, client, cfg.baseURL, []byte(cfg.ingestSecret), topic, payload)
		}
	case "kafka":
		writer := &kafkago.Writer{
			Addr:     kafkago.TCP(strings.Split(cfg.brokers, ",")...),
			Topic:    cfg.topic,
			Balancer: &kafkago.Hash{},
		}
		defer writer.Close()
		send = func(ctx context.Context, topic string, payload []byte) error {
			return writer.WriteMessages(ctx, kafkago.Message{Key: []byte(topic), Value: payload})
		}
	default:
		log.Fatalf("unknown mode %q", cfg.mode)
	}

	log.Printf("loadgen: mode=%s devices=%d messages=%d", cfg.mode, cfg.deviceCount, cfg.messages)
	start := time.Now()
	failures := 0
	for i := 0; i < cfg.messages; i++ {
		topic := devices[i%len(devices)]
		if err := send(ctx, topic, samplePayload(rng)); err != nil {
			failures++
			log.Printf("loadgen: send %s: %v", topic, err)
		}
		if cfg.interval > 0 {
			time.Sleep(cfg.interval)
		}
	}
	log.Printf("loadgen completed: sent=%d failed=%d elapsed=%s", cfg.messages, failures, time.Since(start))
}

func parseConfig() config {
	cfg := config{}
	flag.StringVar(&cfg.mode, "mode", envOrDefault("LOADGEN_MODE", "http"), "transport: http or kafka")
	flag.StringVar(&cfg.baseURL, "base-url", envOrDefault("BASE_URL", "http://localhost:8080"), "ingest service base URL")
	flag.StringVar(&cfg.ingestSecret, "ingest-secret", envOrDefault("INGEST_HMAC_SECRET", ""), "HMAC secret for /ingest/mqtt")
	flag.StringVar(&cfg.brokers, "brokers", envOrDefault("KAFKA_BROKERS", "localhost:9092"), "comma separated Kafka brokers")
	flag.StringVar(&cfg.topic, "topic", envOrDefault("KAFKA_TOPIC", "telemetry"), "Kafka topic")
	flag.StringVar(&cfg.orgPrefix, "org", envOrDefault("LOADGEN_ORG", "acme"), "org segment of generated topics")
	flag.IntVar(&cfg.deviceCount, "device-count", envOrInt("DEVICE_COUNT", 10), "number of simulated devices")
	flag.IntVar(&cfg.messages, "messages", envOrInt("MESSAGES", 100), "number of messages to send")
	flag.DurationVar(&cfg.interval, "interval", 0, "pause between messages")
	flag.Parse()
	return cfg
}

// buildDeviceTopics returns topics following the default mapping.
func buildDeviceTopics(org string, count int) []string {
	list := make([]string, 0, count)
	for i := 1; i <= count; i++ {
		list = append(list, fmt.Sprintf("%s/site-%d/main/zone-a/%d/room-%d/hvac/sensor-%04d/climate", org, i%3+1, i%5, i, i))
	}
	return list
}

func samplePayload(rng *rand.Rand) []byte {
	payload, _ := json.Marshal(map[string]any{
		"temperature": 18 + rng.Float64()*8,
		"humidity":    rng.Intn(60) + 20,
		"heating":     rng.Intn(2) == 1,
		"mode":        "auto",
	})
	return payload
}

func postSigned(ctx context.Context, client *http.Client, baseURL string, secret []byte, topic string, payload []byte) error {
	body, err := json.Marshal(map[string]any{
		"topic":   topic,
		"payload": json.RawMessage(payload),
	})
	if err != nil {
		return err
	}
	ts := strconv.FormatInt(time.Now().Unix(), 10)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, strings.TrimRight(baseURL, "/")+"/ingest/mqtt", bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(auth.HeaderIngestTimestamp, ts)
	req.Header.Set(auth.HeaderIngestSignature, auth.SignIngest(secret, ts, body))

	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}
	return nil
}

func envOrDefault(key, fallback string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return fallback
}

func envOrInt(key string, fallback int) int {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}
