package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/hamed0406/servicemonitor/internal/alert"
	"github.com/hamed0406/servicemonitor/internal/domain"
)

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Kafka publishes every event as JSON, keyed by group id so one group's
// events stay ordered within a partition.
type Kafka struct {
	w messageWriter
}

func NewKafka(brokers []string, topic string) *Kafka {
	return &Kafka{w: &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  topic,
		Balancer:               &kafka.Hash{},
		AllowAutoTopicCreation: true,
		RequiredAcks:           kafka.RequireOne,
		WriteTimeout:           10 * time.Second,
	}}
}

// eventMessage is the published shape.
type eventMessage struct {
	Kind            alert.Kind    `json:"kind"`
	GroupID         string        `json:"group_id"`
	At              time.Time     `json:"at"`
	Service         domain.Record `json:"service"`
	TimeDownSeconds *float64      `json:"time_down_seconds,omitempty"`
	DaysLeft        *int          `json:"days_left,omitempty"`
	Title           string        `json:"title"`
	Text            string        `json:"text"`
}

func newEventMessage(ev alert.Event) eventMessage {
	m := eventMessage{
		Kind:     ev.Kind,
		GroupID:  ev.GroupID,
		At:       ev.At.UTC(),
		Service:  ev.Service.ToRecord(),
		DaysLeft: ev.DaysLeft,
		Title:    ev.Title(),
		Text:     ev.Text(),
	}
	if ev.TimeDown != nil {
		s := ev.TimeDown.Seconds()
		m.TimeDownSeconds = &s
	}
	return m
}

func (k *Kafka) Notify(ctx context.Context, ev alert.Event) error {
	b, err := json.Marshal(newEventMessage(ev))
	if err != nil {
		return fmt.Errorf("kafka: encode: %w", err)
	}
	if err := k.w.WriteMessages(ctx, kafka.Message{Key: []byte(ev.GroupID), Value: b}); err != nil {
		return fmt.Errorf("kafka: publish: %w", err)
	}
	return nil
}

func (k *Kafka) Close() error { return k.w.Close() }
