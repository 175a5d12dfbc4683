package evidence

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	// Redis key holding the rolling mirror of recent evidence entries.
	redisMirrorKey = "recordgate:evidence:recent"
	// Mirror depth. The mirror is an operational convenience, not the
	// durable trail; the primary store keeps everything.
	redisMirrorLen = 10_000
)

// RedisSink mirrors evidence entries into a capped Redis list. Best-effort:
// the writer logs and counts failures, nothing more.
type RedisSink struct {
	client *redis.Client
}

// NewRedisSink creates a Redis evidence mirror.
func NewRedisSink(client *redis.Client) *RedisSink {
	return &RedisSink{client: client}
}

// Publish pushes the JSON-encoded entry and trims the mirror.
func (s *RedisSink) Publish(ctx context.Context, entry Entry) error {
	payload, err := json.Marshal(sinkPayload(entry))
	if err != nil {
		return fmt.Errorf("marshal evidence payload: %w", err)
	}

	pipe := s.client.TxPipeline()
	pipe.LPush(ctx, redisMirrorKey, payload)
	pipe.LTrim(ctx, redisMirrorKey, 0, redisMirrorLen-1)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("mirror evidence entry: %w", err)
	}
	return nil
}

// payload is the JSON structure shared by the redis and kafka sinks.
type payload struct {
	ID             string   `json:"id"`
	Kind           string   `json:"kind"`
	BatchID        string   `json:"batch_id,omitempty"`
	ActionID       string   `json:"action_id"`
	Table          string   `json:"table,omitempty"`
	RecordID       string   `json:"record_id,omitempty"`
	ActorID        string   `json:"actor_id,omitempty"`
	CorrelationID  string   `json:"correlation_id"`
	InvocationType string   `json:"invocation_type"`
	Succeeded      bool     `json:"succeeded"`
	ErrorMessage   string   `json:"error_message,omitempty"`
	Status         string   `json:"status,omitempty"`
	TotalRecords   int      `json:"total_records,omitempty"`
	Warnings       []string `json:"warnings,omitempty"`
	CreatedAt      string   `json:"created_at"`
}

func sinkPayload(e Entry) payload {
	p := payload{
		ID:             e.ID.String(),
		Kind:           string(e.Kind),
		ActionID:       e.ActionID,
		Table:          e.Table,
		RecordID:       e.RecordID,
		ActorID:        e.ActorID,
		CorrelationID:  e.CorrelationID.String(),
		InvocationType: e.InvocationType.String(),
		Succeeded:      e.Succeeded,
		ErrorMessage:   e.ErrorMessage,
		Status:         string(e.Status),
		TotalRecords:   e.TotalRecords,
		Warnings:       e.Warnings,
		CreatedAt:      e.CreatedAt.UTC().Format(time.RFC3339Nano),
	}
	if e.BatchID != nil {
		p.BatchID = e.BatchID.String()
	}
	return p
}
