package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	telemetry "mqtt-timescale/internal/telemetry/domain"
)

func writeFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "ingest.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadDefaults(t *testing.T) {
	t.Setenv("INGEST_CONFIG", "")
	t.Setenv("SCHEMA", "")
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Database.Table != "measurements" || cfg.HTTP.Addr != ":8080" {
		t.Fatalf("unexpected defaults: %+v", cfg)
	}
	node, err := cfg.NodeConfig()
	if err != nil {
		t.Fatalf("node config: %v", err)
	}
	if node.Schema != telemetry.SchemaTemplate || node.PayloadType != telemetry.PayloadJSON {
		t.Fatalf("unexpected node: %+v", node)
	}
	if node.Mapping.String() != telemetry.DefaultTopicMapping {
		t.Fatalf("unexpected mapping: %s", node.Mapping)
	}
}

func TestLoadEnvironment(t *testing.T) {
	t.Setenv("SCHEMA", "home")
	t.Setenv("FIXED_TAGS", `{"org":"acme","site":"paris"}`)
	t.Setenv("UNIT", "kWh")
	t.Setenv("KAFKA_BROKERS", "k1:9092, k2:9092")
	t.Setenv("KAFKA_TOPIC", "")
	t.Setenv("PG_SSL", "true")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	node, err := cfg.NodeConfig()
	if err != nil {
		t.Fatalf("node config: %v", err)
	}
	if node.Schema != telemetry.SchemaHome || node.IntegerPreference() != telemetry.IntegerInt {
		t.Fatalf("unexpected schema: %+v", node)
	}
	if node.FixedTags["org"] != "acme" || node.FixedTags["site"] != "paris" {
		t.Fatalf("unexpected fixed tags: %v", node.FixedTags)
	}
	if node.Unit == nil || *node.Unit != "kWh" {
		t.Fatalf("unexpected unit: %v", node.Unit)
	}
	if len(cfg.Kafka.Brokers) != 2 || cfg.Kafka.Brokers[1] != "k2:9092" || cfg.KafkaConfig().Enabled() {
		t.Fatalf("unexpected kafka config: %+v", cfg.Kafka)
	}
	if !cfg.ConnConfig().SSL || !cfg.ConnConfig().SSLVerify {
		t.Fatalf("unexpected ssl settings: %+v", cfg.ConnConfig())
	}
}

func TestLoadYAMLOverridesEnvironment(t *testing.T) {
	t.Setenv("PG_TABLE", "from_env")
	path := writeFile(t, `
database:
  table: readings
node:
  schema: industrial
  fixed_tags:
    org: acme
    floor: 3
kafka:
  brokers: [k1:9092]
  topic: telemetry
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Database.Table != "readings" {
		t.Fatalf("expected file table, got %q", cfg.Database.Table)
	}
	if cfg.Node.Schema != "industrial" || cfg.Node.FixedTags["org"] != "acme" || cfg.Node.FixedTags["floor"] != 3 {
		t.Fatalf("unexpected node: %+v", cfg.Node)
	}
	if !cfg.KafkaConfig().Enabled() {
		t.Fatalf("expected kafka enabled")
	}
}

func TestFixedTagsAcceptsJSONString(t *testing.T) {
	path := writeFile(t, `
node:
  fixed_tags: '{"building":"hq"}'
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Node.FixedTags["building"] != "hq" {
		t.Fatalf("unexpected fixed tags: %v", cfg.Node.FixedTags)
	}

	path = writeFile(t, `
node:
  fixed_tags: 'not json'
`)
	cfg, err = Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(cfg.Node.FixedTags) != 0 {
		t.Fatalf("expected no fixed tags, got %v", cfg.Node.FixedTags)
	}
}

func TestLoadRejectsUnknownSchema(t *testing.T) {
	t.Setenv("SCHEMA", "office")
	if _, err := Load(""); !errors.Is(err, telemetry.ErrInvalidSchema) {
		t.Fatalf("expected invalid schema, got %v", err)
	}
}
