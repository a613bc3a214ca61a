package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"

	"mqtt-timescale/internal/auth"
	telemetry "mqtt-timescale/internal/telemetry/domain"
)

const maxBodyBytes = 1 << 20

// Ingester processes one message and returns it with a result attached.
type Ingester interface {
	Handle(ctx context.Context, msg telemetry.Message) telemetry.Message
	Preview(msg telemetry.Message) ([]telemetry.Row, error)
	Node() telemetry.NodeConfig
}

// MessageHandler serves message ingestion over HTTP.
type MessageHandler struct {
	ingester Ingester
	logger   *log.Logger
}

// NewMessageHandler constructs a message handler.
func NewMessageHandler(ingester Ingester, logger *log.Logger) (*MessageHandler, error) {
	if ingester == nil {
		return nil, errors.New("httpapi: nil ingester")
	}
	if logger == nil {
		logger = log.Default()
	}
	return &MessageHandler{ingester: ingester, logger: logger}, nil
}

// Ingest handles one inbound message and writes the augmented message back.
func (h *MessageHandler) Ingest(w http.ResponseWriter, r *http.Request) {
	msg, ok := h.decode(w, r)
	if !ok {
		return
	}
	ctx := r.Context()
	if id, ok := auth.IdentityFromContext(ctx); ok {
		ctx = telemetry.WithSource(ctx, id.Label())
	}
	out := h.ingester.Handle(ctx, msg)
	writeJSON(w, statusFor(out.Result), out)
}

// Preview returns the rows a message would produce without writing them.
func (h *MessageHandler) Preview(w http.ResponseWriter, r *http.Request) {
	msg, ok := h.decode(w, r)
	if !ok {
		return
	}
	rows, err := h.ingester.Preview(msg)
	if err != nil {
		writeJSON(w, http.StatusUnprocessableEntity, telemetry.ErrorResult(err))
		return
	}
	if rows == nil {
		rows = []telemetry.Row{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"rows": rows})
}

// Node returns the effective node configuration.
func (h *MessageHandler) Node(w http.ResponseWriter, r *http.Request) {
	node := h.ingester.Node()
	writeJSON(w, http.StatusOK, map[string]any{
		"mapping":        node.Mapping.String(),
		"schema":         node.Schema,
		"ignore_topic":   node.IgnoreTopic,
		"payload_type":   node.PayloadType,
		"fixed_tags":     node.FixedTags,
		"unit":           node.Unit,
		"measurement":    node.Measurement,
		"field":          node.Field,
		"integer_column": node.IntegerPreference(),
	})
}

func (h *MessageHandler) decode(w http.ResponseWriter, r *http.Request) (telemetry.Message, bool) {
	var msg telemetry.Message
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		h.logger.Printf("httpapi: read body error: %v", err)
		http.Error(w, "read body error", http.StatusBadRequest)
		return msg, false
	}
	defer r.Body.Close()

	if err := json.Unmarshal(body, &msg); err != nil {
		h.logger.Printf("httpapi: decode error: %v", err)
		http.Error(w, "invalid json", http.StatusBadRequest)
		return msg, false
	}
	return msg, true
}

func statusFor(result *telemetry.Result) int {
	if result == nil || result.Status == telemetry.StatusOK {
		return http.StatusOK
	}
	if result.Reason == telemetry.ReasonWriteFailure {
		return http.StatusBadGateway
	}
	return http.StatusUnprocessableEntity
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
