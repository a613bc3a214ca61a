package cli

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"mqtt-timescale/internal/config"
	telemetry "mqtt-timescale/internal/telemetry/domain"
)

type resolveOptions struct {
	topic         string
	payload       string
	payloadType   string
	schema        string
	mapping       string
	measurement   string
	field         string
	unit          string
	tags          string
	timestamp     string
	integerColumn string
	ignoreTopic   bool
}

// NewResolveCommand creates the resolve command.
func NewResolveCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &resolveOptions{}

	cmd := &cobra.Command{
		Use:   "resolve",
		Short: "Print the rows a topic and payload would produce",
		Long: `Resolve a topic and payload against the configured node and print
the resulting rows as JSON. Nothing is written to the store.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(rootOpts.ConfigPath)
			if err != nil {
				return err
			}
			applyResolveFlags(cmd, &cfg, opts)
			node, err := cfg.NodeConfig()
			if err != nil {
				return err
			}

			rows, err := telemetry.Normalize(node, opts.message(), time.Now().UTC())
			if err != nil {
				return fmt.Errorf("resolve: %w", err)
			}
			if rows == nil {
				rows = []telemetry.Row{}
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(map[string]any{"rows": rows})
		},
	}

	flags := cmd.Flags()
	flags.StringVarP(&opts.topic, "topic", "t", "", "MQTT topic")
	flags.StringVarP(&opts.payload, "payload", "p", "", "payload as JSON (or plain text for naked payloads)")
	flags.StringVar(&opts.payloadType, "payload-type", "", "json or naked")
	flags.StringVar(&opts.schema, "schema", "", "template, industrial or home")
	flags.StringVar(&opts.mapping, "mapping", "", "topic mapping override")
	flags.StringVar(&opts.measurement, "measurement", "", "measurement fallback")
	flags.StringVar(&opts.field, "field", "", "field fallback")
	flags.StringVar(&opts.unit, "unit", "", "unit")
	flags.StringVar(&opts.tags, "tags", "", "message tags as a JSON object")
	flags.StringVar(&opts.timestamp, "timestamp", "", "timestamp (RFC3339 or epoch milliseconds)")
	flags.StringVar(&opts.integerColumn, "integer-column", "", "bigint or int")
	flags.BoolVar(&opts.ignoreTopic, "ignore-topic", false, "do not require a topic")

	return cmd
}

func applyResolveFlags(cmd *cobra.Command, cfg *config.Config, opts *resolveOptions) {
	flags := cmd.Flags()
	if flags.Changed("payload-type") {
		cfg.Node.PayloadType = opts.payloadType
	}
	if flags.Changed("schema") {
		cfg.Node.Schema = opts.schema
	}
	if flags.Changed("integer-column") {
		cfg.Node.IntegerColumn = opts.integerColumn
	}
	if flags.Changed("ignore-topic") {
		cfg.Node.IgnoreTopic = opts.ignoreTopic
	}
}

func (o *resolveOptions) message() telemetry.Message {
	msg := telemetry.Message{
		Topic:       o.topic,
		Mapping:     o.mapping,
		Measurement: o.measurement,
		Field:       o.field,
	}
	if o.payload != "" {
		msg.Payload = jsonOrString(o.payload)
	}
	if o.unit != "" {
		unit := o.unit
		msg.Unit = &unit
	}
	if o.tags != "" {
		msg.Tags = json.RawMessage(o.tags)
	}
	if o.timestamp != "" {
		msg.Timestamp = jsonOrString(o.timestamp)
	}
	return msg
}

func jsonOrString(value string) json.RawMessage {
	if json.Valid([]byte(value)) {
		return json.RawMessage(value)
	}
	quoted, _ := json.Marshal(value)
	return quoted
}
