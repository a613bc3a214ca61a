package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	telemetry "mqtt-timescale/internal/telemetry/domain"
	"mqtt-timescale/internal/telemetry/infrastructure/postgres"
	"mqtt-timescale/internal/telemetry/interfaces/kafka"
)

// Config is the full service configuration.
type Config struct {
	Database DatabaseConfig `yaml:"database"`
	HTTP     HTTPConfig     `yaml:"http"`
	Auth     AuthConfig     `yaml:"auth"`
	Node     NodeConfig     `yaml:"node"`
	Kafka    KafkaConfig    `yaml:"kafka"`
}

// DatabaseConfig holds store connection settings.
type DatabaseConfig struct {
	URL          string `yaml:"url"`
	Host         string `yaml:"host"`
	Port         int    `yaml:"port"`
	Name         string `yaml:"name"`
	User         string `yaml:"user"`
	Password     string `yaml:"password"`
	SSL          bool   `yaml:"ssl"`
	SSLVerify    bool   `yaml:"ssl_verify"`
	Table        string `yaml:"table"`
	MaxOpenConns int    `yaml:"max_conns"`
}

// HTTPConfig holds listener settings.
type HTTPConfig struct {
	Addr string `yaml:"addr"`
}

// AuthConfig holds API credentials.
type AuthConfig struct {
	JWTSecret         string `yaml:"jwt_secret"`
	IngestHMACSecret  string `yaml:"ingest_hmac_secret"`
	IngestMaxSkewSecs int    `yaml:"ingest_max_skew_seconds"`
}

// NodeConfig holds the normalization settings.
type NodeConfig struct {
	TopicMapping  string    `yaml:"topic_mapping"`
	Schema        string    `yaml:"schema"`
	PayloadType   string    `yaml:"payload_type"`
	IgnoreTopic   bool      `yaml:"ignore_topic"`
	FixedTags     FixedTags `yaml:"fixed_tags"`
	Unit          string    `yaml:"unit"`
	Measurement   string    `yaml:"measurement"`
	Field         string    `yaml:"field"`
	IntegerColumn string    `yaml:"integer_column"`
}

// KafkaConfig holds the optional Kafka transport settings.
type KafkaConfig struct {
	Brokers     []string `yaml:"brokers"`
	Topic       string   `yaml:"topic"`
	GroupID     string   `yaml:"group_id"`
	ResultTopic string   `yaml:"result_topic"`
	Workers     int      `yaml:"workers"`
	Envelope    bool     `yaml:"envelope"`
}

// FixedTags accepts either a YAML mapping or a JSON-encoded string.
type FixedTags map[string]any

// UnmarshalYAML decodes a mapping, or a string holding a JSON object.
// A string that is not a JSON object yields no tags.
func (t *FixedTags) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind == yaml.ScalarNode {
		*t = telemetry.ParseFixedTags(node.Value)
		return nil
	}
	var tags map[string]any
	if err := node.Decode(&tags); err != nil {
		return err
	}
	*t = tags
	return nil
}

// Load reads .env, then the environment, then the YAML file at path (or
// INGEST_CONFIG when path is empty). File values override the environment.
func Load(path string) (Config, error) {
	_ = godotenv.Load()

	cfg := Config{
		Database: DatabaseConfig{
			URL:          os.Getenv("DATABASE_URL"),
			Host:         getenvDefault("PG_HOST", "localhost"),
			Port:         getenvIntDefault("PG_PORT", 5432),
			Name:         getenvDefault("PG_DATABASE", "postgres"),
			User:         getenvDefault("PG_USER", "postgres"),
			Password:     os.Getenv("PG_PASSWORD"),
			SSL:          getenvBoolDefault("PG_SSL", false),
			SSLVerify:    getenvBoolDefault("PG_SSL_VERIFY", true),
			Table:        getenvDefault("PG_TABLE", postgres.DefaultTable),
			MaxOpenConns: getenvIntDefault("PG_MAX_CONNS", 10),
		},
		HTTP: HTTPConfig{
			Addr: getenvDefault("HTTP_ADDR", ":8080"),
		},
		Auth: AuthConfig{
			JWTSecret:         os.Getenv("AUTH_JWT_SECRET"),
			IngestHMACSecret:  os.Getenv("INGEST_HMAC_SECRET"),
			IngestMaxSkewSecs: getenvIntDefault("INGEST_MAX_SKEW_SECONDS", 300),
		},
		Node: NodeConfig{
			TopicMapping:  getenvDefault("TOPIC_MAPPING", telemetry.DefaultTopicMapping),
			Schema:        getenvDefault("SCHEMA", string(telemetry.SchemaTemplate)),
			PayloadType:   getenvDefault("PAYLOAD_TYPE", string(telemetry.PayloadJSON)),
			IgnoreTopic:   getenvBoolDefault("IGNORE_TOPIC", false),
			FixedTags:     telemetry.ParseFixedTags(getenvDefault("FIXED_TAGS", "{}")),
			Unit:          os.Getenv("UNIT"),
			Measurement:   os.Getenv("MEASUREMENT"),
			Field:         os.Getenv("FIELD"),
			IntegerColumn: os.Getenv("INTEGER_COLUMN"),
		},
		Kafka: KafkaConfig{
			Brokers:     splitCSV(os.Getenv("KAFKA_BROKERS")),
			Topic:       os.Getenv("KAFKA_TOPIC"),
			GroupID:     getenvDefault("KAFKA_GROUP_ID", "mqtt-timescale"),
			ResultTopic: os.Getenv("KAFKA_RESULT_TOPIC"),
			Workers:     getenvIntDefault("KAFKA_WORKERS", 4),
			Envelope:    getenvBoolDefault("KAFKA_ENVELOPE", false),
		},
	}

	if path == "" {
		path = os.Getenv("INGEST_CONFIG")
	}
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, err
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("config: parse %s: %w", path, err)
		}
	}

	if _, err := cfg.NodeConfig(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// NodeConfig converts the node settings into a validated domain config.
func (c Config) NodeConfig() (telemetry.NodeConfig, error) {
	schema, err := telemetry.ParseSchemaVariant(c.Node.Schema)
	if err != nil {
		return telemetry.NodeConfig{}, fmt.Errorf("config: %w", err)
	}
	payloadType, err := telemetry.ParsePayloadType(c.Node.PayloadType)
	if err != nil {
		return telemetry.NodeConfig{}, fmt.Errorf("config: %w", err)
	}
	integerColumn, err := telemetry.ParseIntegerColumn(c.Node.IntegerColumn)
	if err != nil {
		return telemetry.NodeConfig{}, fmt.Errorf("config: %w", err)
	}
	var unit *string
	if c.Node.Unit != "" {
		u := c.Node.Unit
		unit = &u
	}
	fixed := map[string]any(c.Node.FixedTags)
	if fixed == nil {
		fixed = map[string]any{}
	}
	return telemetry.NodeConfig{
		Mapping:       telemetry.ParseTopicMapping(c.Node.TopicMapping),
		Schema:        schema,
		IgnoreTopic:   c.Node.IgnoreTopic,
		PayloadType:   payloadType,
		FixedTags:     fixed,
		Unit:          unit,
		Measurement:   c.Node.Measurement,
		Field:         c.Node.Field,
		IntegerColumn: integerColumn,
	}, nil
}

// ConnConfig converts the database settings for postgres.Open.
func (c Config) ConnConfig() postgres.ConnConfig {
	return postgres.ConnConfig{
		URL:             c.Database.URL,
		Host:            c.Database.Host,
		Port:            c.Database.Port,
		Database:        c.Database.Name,
		User:            c.Database.User,
		Password:        c.Database.Password,
		SSL:             c.Database.SSL,
		SSLVerify:       c.Database.SSLVerify,
		MaxOpenConns:    c.Database.MaxOpenConns,
		MaxIdleConns:    c.Database.MaxOpenConns,
		ConnMaxLifetime: 30 * time.Minute,
	}
}

// KafkaConfig converts the Kafka settings for the consumer.
func (c Config) KafkaConfig() kafka.Config {
	return kafka.Config{
		Brokers:     c.Kafka.Brokers,
		Topic:       c.Kafka.Topic,
		GroupID:     c.Kafka.GroupID,
		ResultTopic: c.Kafka.ResultTopic,
		Workers:     c.Kafka.Workers,
		Envelope:    c.Kafka.Envelope,
	}
}

// IngestMaxSkew returns the allowed signature clock skew.
func (c Config) IngestMaxSkew() time.Duration {
	return time.Duration(c.Auth.IngestMaxSkewSecs) * time.Second
}

func getenvDefault(key, fallback string) string {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	return value
}

func getenvIntDefault(key string, fallback int) int {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func getenvBoolDefault(key string, fallback bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func splitCSV(value string) []string {
	if value == "" {
		return nil
	}
	parts := strings.Split(value, ",")
	var result []string
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part != "" {
			result = append(result, part)
		}
	}
	return result
}
