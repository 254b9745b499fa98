// Package outbox relays committed ledger events from event_outbox to Kafka.
package outbox

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/sentinel/ledger/internal/domain"
	"github.com/sentinel/ledger/internal/guard"
	"github.com/sentinel/ledger/internal/infra"
	"github.com/sentinel/ledger/internal/repository"
)

// Publisher is satisfied by *infra.KafkaProducer.
type Publisher interface {
	Enabled() bool
	Publish(ctx context.Context, topic string, key, value []byte) error
}

// Relay polls unpublished outbox rows and hands them to a Publisher.
type Relay struct {
	db          repository.DBTX
	repo        repository.OutboxRepository
	publisher   Publisher
	breaker     *guard.CircuitBreaker
	logger      *slog.Logger
	topicPrefix string
	interval    time.Duration
	batchSize   int
}

// Config tunes the relay loop.
type Config struct {
	TopicPrefix string
	Interval    time.Duration
	BatchSize   int

	// BreakerThreshold consecutive publish failures on a topic open its
	// circuit for BreakerReset.
	BreakerThreshold int
	BreakerReset     time.Duration
}

// NewRelay creates a relay. Zero config values fall back to 2s / 100 and a
// breaker of 5 failures / 30s.
func NewRelay(db repository.DBTX, repo repository.OutboxRepository, publisher Publisher, logger *slog.Logger, cfg Config) *Relay {
	if cfg.Interval <= 0 {
		cfg.Interval = 2 * time.Second
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 100
	}
	if cfg.BreakerThreshold <= 0 {
		cfg.BreakerThreshold = 5
	}
	if cfg.BreakerReset <= 0 {
		cfg.BreakerReset = 30 * time.Second
	}
	return &Relay{
		db:          db,
		repo:        repo,
		publisher:   publisher,
		breaker:     guard.NewCircuitBreaker(cfg.BreakerThreshold, cfg.BreakerReset),
		logger:      logger,
		topicPrefix: cfg.TopicPrefix,
		interval:    cfg.Interval,
		batchSize:   cfg.BatchSize,
	}
}

// Run polls until ctx is cancelled.
func (r *Relay) Run(ctx context.Context) error {
	r.logger.Info("outbox relay started",
		"interval", r.interval,
		"batch_size", r.batchSize,
		"kafka_enabled", r.publisher.Enabled(),
	)

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			r.logger.Info("outbox relay stopped")
			return nil
		case <-ticker.C:
			if _, err := r.Poll(ctx); err != nil {
				r.logger.Error("outbox poll error", "error", err)
			}
		}
	}
}

// Poll relays one batch and returns how many rows were marked published.
// A publish failure ends the batch early so later events for the same
// aggregate are not sent ahead of it.
func (r *Relay) Poll(ctx context.Context) (int, error) {
	events, err := r.repo.FetchUnpublished(ctx, r.db, r.batchSize)
	if err != nil {
		return 0, fmt.Errorf("fetch: %w", err)
	}
	if len(events) == 0 {
		return 0, nil
	}

	ids := make([]int64, 0, len(events))
	var publishErr error
	for _, e := range events {
		if err := r.publish(ctx, e); err != nil {
			publishErr = fmt.Errorf("publish event %s: %w", e.EventID, err)
			break
		}
		ids = append(ids, e.SeqID)
	}

	if err := r.repo.MarkPublished(ctx, r.db, ids); err != nil {
		return 0, fmt.Errorf("mark published: %w", err)
	}
	if len(ids) > 0 {
		r.logger.Info("processed outbox batch", "count", len(ids))
	}
	return len(ids), publishErr
}

func (r *Relay) publish(ctx context.Context, e domain.OutboxDraft) error {
	if !r.publisher.Enabled() {
		r.logger.Info("outbox event",
			"seq_id", e.SeqID,
			"event_id", e.EventID,
			"aggregate_type", e.AggregateType,
			"event_type", e.EventType,
			"aggregate_id", e.AggregateID,
		)
		return nil
	}

	topic := infra.TopicFor(r.topicPrefix, string(e.AggregateType))
	if res := r.breaker.Check(ctx, topic); !res.Allowed {
		return errors.New(res.Reason)
	}

	msg, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("marshal: %w", err)
	}
	if err := r.publisher.Publish(ctx, topic, []byte(e.AggregateID), msg); err != nil {
		r.breaker.RecordFailure(topic)
		return err
	}
	r.breaker.RecordSuccess(topic)
	return nil
}
