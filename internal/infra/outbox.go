package infra

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

const (
	outboxPollInterval = 500 * time.Millisecond
	outboxBatchSize    = 100
)

type stagedEvent struct {
	EventID       uuid.UUID
	AggregateType string
	AggregateID   string
	EventType     string
	PartitionKey  string
	Payload       json.RawMessage
	OccurredAt    time.Time
}

// OutboxPoller drains event_outbox to Kafka. Rows are marked published only
// after the broker accepts them, so delivery is at-least-once and consumers
// must tolerate duplicates.
type OutboxPoller struct {
	pool     *pgxpool.Pool
	producer *KafkaProducer
	logger   *slog.Logger
}

// NewOutboxPoller creates an outbox poller over the given pool and producer.
func NewOutboxPoller(pool *pgxpool.Pool, producer *KafkaProducer, logger *slog.Logger) *OutboxPoller {
	return &OutboxPoller{pool: pool, producer: producer, logger: logger}
}

// Start launches the polling loop in a goroutine; it exits with ctx.
func (p *OutboxPoller) Start(ctx context.Context) {
	p.logger.Info("outbox poller started",
		"interval", outboxPollInterval, "batch_size", outboxBatchSize)

	go func() {
		ticker := time.NewTicker(outboxPollInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				p.logger.Info("outbox poller stopped")
				return
			case <-ticker.C:
				if err := p.drainBatch(ctx); err != nil {
					p.logger.Error("outbox poll error", "error", err)
				}
			}
		}
	}()
}

func (p *OutboxPoller) drainBatch(ctx context.Context) error {
	events, err := p.fetchUnpublished(ctx)
	if err != nil || len(events) == 0 {
		return err
	}

	published := 0
	for _, e := range events {
		if err := p.publish(ctx, e); err != nil {
			p.logger.Error("kafka publish failed", "event_id", e.EventID, "error", err)
			continue
		}
		published++
	}

	p.logger.Debug("outbox batch drained", "fetched", len(events), "published", published)
	return nil
}

func (p *OutboxPoller) fetchUnpublished(ctx context.Context) ([]stagedEvent, error) {
	rows, err := p.pool.Query(ctx, `
		SELECT event_id, aggregate_type, aggregate_id, event_type, partition_key, payload, occurred_at
		FROM event_outbox
		WHERE published_at IS NULL
		ORDER BY occurred_at ASC
		LIMIT $1`, outboxBatchSize)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []stagedEvent
	for rows.Next() {
		var e stagedEvent
		if err := rows.Scan(&e.EventID, &e.AggregateType, &e.AggregateID, &e.EventType,
			&e.PartitionKey, &e.Payload, &e.OccurredAt); err != nil {
			return nil, err
		}
		events = append(events, e)
	}
	return events, rows.Err()
}

func (p *OutboxPoller) publish(ctx context.Context, e stagedEvent) error {
	topic := "crosspointx." + e.AggregateType + "." + e.EventType

	msg, _ := json.Marshal(map[string]interface{}{
		"event_id":       e.EventID,
		"aggregate_type": e.AggregateType,
		"aggregate_id":   e.AggregateID,
		"event_type":     e.EventType,
		"payload":        e.Payload,
		"occurred_at":    e.OccurredAt,
	})

	if err := p.producer.Publish(ctx, topic, []byte(e.PartitionKey), msg); err != nil {
		return err
	}

	_, err := p.pool.Exec(ctx,
		`UPDATE event_outbox SET published_at = now() WHERE event_id = $1`, e.EventID)
	if err != nil {
		// The event will be re-fetched and re-published next tick.
		p.logger.Error("mark published failed", "event_id", e.EventID, "error", err)
	}
	return nil
}
