// Package kafkasink publishes engine audit events to a Kafka topic, one JSON message per
// event keyed by session so that a session's history stays ordered within a partition.
package kafkasink

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	goRenew "github.com/MrEthical07/goRenew"
	"github.com/segmentio/kafka-go"
)

// Writer is the subset of *kafka.Writer the sink uses.
type Writer interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

const defaultWriteTimeout = 5 * time.Second

// Sink is a goRenew.AuditSink. Emit is called from the engine's audit dispatcher goroutine,
// so a slow broker delays the dispatcher and, with a full buffer, drops events.
type Sink struct {
	writer       Writer
	writeTimeout time.Duration
	logger       *slog.Logger
}

type Option func(*Sink)

func WithWriteTimeout(d time.Duration) Option {
	return func(s *Sink) { s.writeTimeout = d }
}

func WithLogger(l *slog.Logger) Option {
	return func(s *Sink) { s.logger = l }
}

// New creates a Sink writing to topic on brokers.
func New(brokers []string, topic string, opts ...Option) *Sink {
	return NewWithWriter(&kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireOne,
	}, opts...)
}

// NewWithWriter allows injecting a writer.
func NewWithWriter(w Writer, opts ...Option) *Sink {
	s := &Sink{
		writer:       w,
		writeTimeout: defaultWriteTimeout,
		logger:       slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func messageKey(e goRenew.AuditEvent) []byte {
	switch {
	case e.SessionID != "":
		return []byte(e.SessionID)
	case e.PrincipalID != "":
		return []byte(e.PrincipalID)
	default:
		return nil
	}
}

// Emit writes event. Failures are logged and the event is lost.
func (s *Sink) Emit(ctx context.Context, event goRenew.AuditEvent) {
	value, err := json.Marshal(event)
	if err != nil {
		s.logger.WarnContext(ctx, "audit event marshal failed", "event_type", event.EventType, "error", err)
		return
	}

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.writeTimeout)
	defer cancel()

	msg := kafka.Message{
		Key:   messageKey(event),
		Value: value,
		Time:  event.Timestamp,
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(event.EventType)},
		},
	}
	if err := s.writer.WriteMessages(ctx, msg); err != nil {
		s.logger.WarnContext(ctx, "audit event publish failed", "event_type", event.EventType, "error", err)
	}
}

// Close flushes and closes the writer. Call it after the engine is closed.
func (s *Sink) Close() error {
	return s.writer.Close()
}
