package audit

import (
	"context"
	"time"

	"github.com/IBM/sarama"
	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"
)

// SystemActor identifies sweep jobs and other engine-initiated operations
// in the audit trail.
const SystemActor = "system"

type Action string

const (
	ActionBorrow            Action = "BORROW"
	ActionReturn            Action = "RETURN"
	ActionRenew             Action = "RENEW"
	ActionReserve           Action = "RESERVE"
	ActionCancelReservation Action = "CANCEL_RESERVATION"
	ActionSweepOverdue      Action = "SWEEP_OVERDUE"
	ActionSweepReservations Action = "SWEEP_RESERVATIONS"
)

type Event struct {
	ActorUid   string         `json:"actorUid"`
	Action     Action         `json:"action"`
	Detail     map[string]any `json:"detail,omitempty"`
	OccurredAt time.Time      `json:"occurredAt"`
}

// Sink records circulation events. Implementations must be safe for
// concurrent use. A sink failure never aborts the business operation that
// produced the event; callers log and move on.
type Sink interface {
	Record(ctx context.Context, event Event) error
}

var jsonCodec = jsoniter.ConfigFastest

type kafkaSink struct {
	producer sarama.AsyncProducer
	topic    string
	log      *zap.Logger
}

// NewKafkaSink publishes events to topic fire-and-forget. Delivery errors
// are drained off the producer and logged, never returned to the caller.
func NewKafkaSink(producer sarama.AsyncProducer, topic string, log *zap.Logger) *kafkaSink {
	s := &kafkaSink{
		producer: producer,
		topic:    topic,
		log:      log.Named("audit"),
	}
	go s.drainErrors()
	return s
}

func (s *kafkaSink) drainErrors() {
	for perr := range s.producer.Errors() {
		s.log.Warn("audit event delivery failed", zap.Error(perr.Err))
	}
}

func (s *kafkaSink) Record(_ context.Context, event Event) error {
	data, err := jsonCodec.Marshal(event)
	if err != nil {
		return err
	}
	msg := &sarama.ProducerMessage{Topic: s.topic, Value: sarama.StringEncoder(data)}
	s.producer.Input() <- msg
	return nil
}

type logSink struct {
	log *zap.Logger
}

// NewLogSink records events to the process log, for hosts without a broker.
func NewLogSink(log *zap.Logger) *logSink {
	return &logSink{log: log.Named("audit")}
}

func (s *logSink) Record(_ context.Context, event Event) error {
	data, err := jsonCodec.Marshal(event.Detail)
	if err != nil {
		return err
	}
	s.log.Info("audit",
		zap.String("actorUid", event.ActorUid),
		zap.String("action", string(event.Action)),
		zap.Time("occurredAt", event.OccurredAt),
		zap.ByteString("detail", data),
	)
	return nil
}
