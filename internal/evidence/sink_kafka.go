package evidence

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/twmb/franz-go/pkg/kadm"
	"github.com/twmb/franz-go/pkg/kgo"
)

// KafkaSink publishes evidence entries to a Kafka topic for downstream
// compliance pipelines. Best-effort like every secondary sink: a broker
// outage degrades the mirror, never the action.
type KafkaSink struct {
	client *kgo.Client
	topic  string
}

// NewKafkaSink builds a Kafka evidence sink and ensures the topic exists.
func NewKafkaSink(ctx context.Context, brokers []string, topic string) (*KafkaSink, error) {
	client, err := kgo.NewClient(
		kgo.SeedBrokers(brokers...),
		kgo.DefaultProduceTopic(topic),
		kgo.ProducerBatchCompression(kgo.SnappyCompression()),
	)
	if err != nil {
		return nil, fmt.Errorf("create kafka client: %w", err)
	}

	admin := kadm.NewClient(client)
	if _, err := admin.CreateTopic(ctx, 1, 1, nil, topic); err != nil {
		// Already-exists is fine; anything else still only degrades the
		// sink, so surface it to the caller for a startup warning.
		if !kerrAlreadyExists(err) {
			return &KafkaSink{client: client, topic: topic}, fmt.Errorf("ensure evidence topic: %w", err)
		}
	}
	return &KafkaSink{client: client, topic: topic}, nil
}

// Publish produces the JSON-encoded entry, keyed by batch id so a batch's
// entries land in one partition in order.
func (s *KafkaSink) Publish(ctx context.Context, entry Entry) error {
	value, err := json.Marshal(sinkPayload(entry))
	if err != nil {
		return fmt.Errorf("marshal evidence payload: %w", err)
	}

	key := entry.ID.String()
	if entry.BatchID != nil {
		key = entry.BatchID.String()
	}

	rec := &kgo.Record{Topic: s.topic, Key: []byte(key), Value: value}
	if err := s.client.ProduceSync(ctx, rec).FirstErr(); err != nil {
		return fmt.Errorf("produce evidence entry: %w", err)
	}
	return nil
}

// Close flushes and closes the producer.
func (s *KafkaSink) Close() {
	s.client.Close()
}

func kerrAlreadyExists(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "already exists") || strings.Contains(msg, "topic_already_exists")
}
