package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
)

// ErrDispatchFailed means the push transport rejected a notification.
// Dispatch is best-effort: callers log it and move on; delivery-status
// tracking is never rolled back for it.
var ErrDispatchFailed = errors.New("notification dispatch failed")

// Payload is what the external push service receives. This core
// decides whether and what to send; transport and on-device rendering
// belong to the collaborator.
type Payload struct {
	RecipientID string `json:"recipient_id"`
	ChatID      string `json:"chat_id"`
	SenderID    string `json:"sender_id"`
	SenderName  string `json:"sender_name"`
	Preview     string `json:"preview"`
	CreatedAt   int64  `json:"created_at"`
}

// Dispatcher hands a notification to the push service.
type Dispatcher interface {
	Dispatch(ctx context.Context, p Payload) error
}

// KafkaDispatcher publishes notification payloads to the push
// service's topic, keyed by recipient so one user's notifications stay
// ordered.
type KafkaDispatcher struct {
	writer *kafka.Writer
}

// NewKafkaDispatcher creates a dispatcher writing to the given brokers
// and topic.
func NewKafkaDispatcher(brokers []string, topic string) *KafkaDispatcher {
	return &KafkaDispatcher{
		writer: &kafka.Writer{
			Addr:     kafka.TCP(brokers...),
			Topic:    topic,
			Balancer: &kafka.LeastBytes{},
		},
	}
}

func (d *KafkaDispatcher) Dispatch(ctx context.Context, p Payload) error {
	value, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("%w: marshal: %v", ErrDispatchFailed, err)
	}
	err = d.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(p.RecipientID),
		Value: value,
		Time:  time.Now(),
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrDispatchFailed, err)
	}
	return nil
}

// Close flushes and closes the underlying writer.
func (d *KafkaDispatcher) Close() error {
	return d.writer.Close()
}

// NopDispatcher drops every payload. Used when no push transport is
// configured.
type NopDispatcher struct{}

func (NopDispatcher) Dispatch(context.Context, Payload) error { return nil }
