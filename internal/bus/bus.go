// Package bus carries decision events over Go channels or NATS.
package bus

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/opensource-finance/kestrel/internal/domain"
	"go.opentelemetry.io/otel/trace"
)

// Metadata keys set on every published message.
const (
	MetaTraceID = "trace_id"
	MetaSpanID  = "span_id"
)

// New creates an event bus from configuration.
// "channel" returns a ChannelBus; "nats" returns a NATSBus.
func New(cfg domain.EventBusConfig) (domain.EventBus, error) {
	switch cfg.Type {
	case "channel":
		return NewChannelBus(cfg.ChannelBufferSize), nil

	case "nats":
		return NewNATSBus(cfg)

	default:
		return nil, fmt.Errorf("unsupported event bus type: %s", cfg.Type)
	}
}

// PublishJSON encodes v and publishes it on topic.
func PublishJSON(ctx context.Context, b domain.EventBus, tenantID, topic string, v any) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to encode %s payload: %w", topic, err)
	}
	return b.Publish(ctx, tenantID, topic, payload)
}

// newMessage builds the envelope for a publish, carrying the caller's
// trace identifiers so subscribers can correlate their logs.
func newMessage(ctx context.Context, tenantID, topic string, payload []byte) *domain.Message {
	meta := make(map[string]string, 2)
	if sc := trace.SpanContextFromContext(ctx); sc.IsValid() {
		meta[MetaTraceID] = sc.TraceID().String()
		meta[MetaSpanID] = sc.SpanID().String()
	}

	return &domain.Message{
		ID:        uuid.New().String(),
		TenantID:  tenantID,
		Topic:     topic,
		Payload:   payload,
		Metadata:  meta,
		Timestamp: time.Now().UnixNano(),
	}
}
