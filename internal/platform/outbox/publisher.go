package outbox

import (
	"context"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"

	"github.com/clinicsuite/agenda/internal/platform/db"
	"github.com/clinicsuite/agenda/internal/platform/telemetry"
)

// MessageWriter is satisfied by *kafka.Writer.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type PublisherConfig struct {
	PollEvery time.Duration
	BatchSize int
}

// Publisher relays outbox rows to Kafka on a ticker. Rows are marked
// published in the same transaction that locked them, so a crash between
// write and commit re-sends the batch (at-least-once).
type Publisher struct {
	tx        db.TxRunner
	store     Store
	writer    MessageWriter
	logger    zerolog.Logger
	pollEvery time.Duration
	batchSize int
}

func NewPublisher(tx db.TxRunner, store Store, writer MessageWriter, logger zerolog.Logger, cfg PublisherConfig) *Publisher {
	if cfg.PollEvery <= 0 {
		cfg.PollEvery = 2 * time.Second
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 50
	}
	return &Publisher{
		tx:        tx,
		store:     store,
		writer:    writer,
		logger:    logger.With().Str("component", "outbox").Logger(),
		pollEvery: cfg.PollEvery,
		batchSize: cfg.BatchSize,
	}
}

// NewKafkaWriter builds the writer used in production. Messages with the same
// aggregate id land on the same partition.
func NewKafkaWriter(brokers []string) *kafka.Writer {
	return &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequireAll,
		AllowAutoTopicCreation: true,
	}
}

// SplitBrokers parses a comma separated KAFKA_BROKERS value.
func SplitBrokers(raw string) []string {
	var brokers []string
	for _, b := range strings.Split(raw, ",") {
		if b = strings.TrimSpace(b); b != "" {
			brokers = append(brokers, b)
		}
	}
	return brokers
}

// Run blocks until ctx is cancelled. The writer stays open; its owner closes
// it after Run returns.
func (p *Publisher) Run(ctx context.Context) {
	ticker := time.NewTicker(p.pollEvery)
	defer ticker.Stop()

	p.logger.Info().Dur("poll_every", p.pollEvery).Int("batch_size", p.batchSize).Msg("outbox relay started")
	for {
		select {
		case <-ctx.Done():
			p.logger.Info().Msg("outbox relay stopped")
			return
		case <-ticker.C:
			n, err := p.PublishBatch(ctx)
			if err != nil {
				p.logger.Error().Err(err).Msg("outbox publish failed")
				continue
			}
			if n > 0 {
				p.logger.Debug().Int("count", n).Msg("outbox events published")
			}
		}
	}
}

// PublishBatch sends one batch and returns how many events were published.
func (p *Publisher) PublishBatch(ctx context.Context) (int, error) {
	var published int
	err := p.tx.WithinTx(ctx, func(ctx context.Context) error {
		records, err := p.store.FetchUnpublished(ctx, p.batchSize)
		if err != nil {
			return err
		}
		if len(records) == 0 {
			return nil
		}

		msgs := make([]kafka.Message, 0, len(records))
		ids := make([]int64, 0, len(records))
		for _, r := range records {
			msgs = append(msgs, toMessage(ctx, r))
			ids = append(ids, r.ID)
		}
		if err := p.writer.WriteMessages(ctx, msgs...); err != nil {
			return err
		}
		if err := p.store.MarkPublished(ctx, ids); err != nil {
			return err
		}
		published = len(records)
		return nil
	})
	return published, err
}

func toMessage(ctx context.Context, r Record) kafka.Message {
	msgCtx := telemetry.ContextWithTraceContext(ctx, r.Traceparent, r.Tracestate)
	msg := kafka.Message{
		Topic: r.EventType,
		Key:   []byte(r.AggregateID),
		Value: r.Payload,
		Headers: []kafka.Header{
			{Key: "event_id", Value: []byte(r.EventID.String())},
			{Key: "event_type", Value: []byte(r.EventType)},
			{Key: "tenant_id", Value: []byte(r.TenantID)},
		},
	}
	msg.Headers = telemetry.InjectKafkaHeaders(msgCtx, msg.Headers)
	return msg
}

// DiscardWriter drops messages. It stands in for Kafka when no brokers are
// configured so rows still get acknowledged in development.
type DiscardWriter struct {
	Logger zerolog.Logger
}

func (w DiscardWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	for _, m := range msgs {
		w.Logger.Debug().Str("topic", m.Topic).Str("key", string(m.Key)).Msg("outbox event discarded")
	}
	return nil
}

func (DiscardWriter) Close() error { return nil }
