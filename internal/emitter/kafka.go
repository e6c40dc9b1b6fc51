// Package emitter publishes tracking events to Kafka.
//
// Emission is fire-and-forget: the visitor's request never waits on the
// broker, and a failed produce costs one analytics event, not a page.
package emitter

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/segmentio/kafka-go"

	"github.com/journeytrack/journeytrack/internal/config"
)

// Event is the wire shape produced to the events topic and consumed by
// the sink.
type Event struct {
	EventID    string         `json:"event_id"`
	Type       string         `json:"type"`
	SessionID  string         `json:"session_id"`
	Path       string         `json:"path"`
	Timestamp  int64          `json:"timestamp"`
	DeviceType string         `json:"device_type,omitempty"`
	Browser    string         `json:"browser,omitempty"`
	OS         string         `json:"os,omitempty"`
	Country    string         `json:"country,omitempty"`
	City       string         `json:"city,omitempty"`
	Payload    map[string]any `json:"payload,omitempty"`
}

type Kafka struct {
	writer *kafka.Writer
}

func NewKafka(cfg config.KafkaConfig) *Kafka {
	return &Kafka{
		writer: &kafka.Writer{
			Addr:         kafka.TCP(cfg.Brokers...),
			Topic:        cfg.Topic,
			Balancer:     &kafka.LeastBytes{},
			BatchSize:    100,
			BatchTimeout: time.Millisecond * 100,
			Async:        true,
		},
	}
}

// Emit publishes ev keyed by session id so one session's events stay
// ordered within a partition. Missing event ids are filled in here.
func (k *Kafka) Emit(ctx context.Context, ev Event) {
	if ev.EventID == "" {
		ev.EventID = uuid.New().String()
	}
	if ev.Timestamp == 0 {
		ev.Timestamp = time.Now().UnixMilli()
	}

	data, err := json.Marshal(ev)
	if err != nil {
		log.Error().Err(err).Str("type", ev.Type).Msg("Failed to encode event")
		return
	}

	err = k.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(ev.SessionID),
		Value: data,
	})
	if err != nil {
		log.Error().Err(err).Str("type", ev.Type).Msg("Failed to produce event")
	}
}

func (k *Kafka) Close() error {
	return k.writer.Close()
}
