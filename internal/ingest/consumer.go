// Package ingest consumes sale events from Kafka and appends them to the
// sales ledger.
package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/shopspring/decimal"

	"storegoals/internal/domain"
	"storegoals/internal/logger"
	"storegoals/internal/metrics"
	"storegoals/internal/service"
	"storegoals/internal/store"
)

const (
	maxAttempts    = 5
	initialBackoff = 200 * time.Millisecond
	maxBackoff     = 5 * time.Second
)

// ErrInvalidEvent marks a message that can never be recorded and is skipped.
var ErrInvalidEvent = errors.New("invalid sale event")

type SaleRecorder interface {
	RecordSale(ctx context.Context, req domain.SaleCreateRequest) (domain.SaleResponse, error)
}

// MessageReader is the subset of *kafka.Reader the consumer drives.
type MessageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type Config struct {
	Brokers []string
	Topic   string
	GroupID string
}

type Consumer struct {
	reader   MessageReader
	recorder SaleRecorder
	metrics  *metrics.Metrics
	log      *slog.Logger
	sleep    func(ctx context.Context, d time.Duration) error
}

func NewReader(cfg Config) *kafka.Reader {
	return kafka.NewReader(kafka.ReaderConfig{
		Brokers:        cfg.Brokers,
		Topic:          cfg.Topic,
		GroupID:        cfg.GroupID,
		SessionTimeout: 30 * time.Second,
		StartOffset:    kafka.FirstOffset,
		MaxBytes:       10e6,
	})
}

func NewConsumer(reader MessageReader, recorder SaleRecorder, m *metrics.Metrics) *Consumer {
	return &Consumer{
		reader:   reader,
		recorder: recorder,
		metrics:  m,
		log:      logger.Component("ingest"),
		sleep:    sleepContext,
	}
}

// Run fetches and records messages until ctx is cancelled. Offsets are
// committed only after a message is recorded, found to be a duplicate, or
// rejected as invalid.
func (c *Consumer) Run(ctx context.Context) error {
	ctx = service.WithActor(ctx, service.SystemActor)
	c.log.Info("sale consumer started")
	defer c.log.Info("sale consumer stopped")

	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("fetch sale event: %w", err)
		}

		if err := c.handleWithRetry(ctx, msg); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}

		if err := c.reader.CommitMessages(ctx, msg); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("commit sale event: %w", err)
		}
	}
}

func (c *Consumer) Close() error {
	return c.reader.Close()
}

func (c *Consumer) handleWithRetry(ctx context.Context, msg kafka.Message) error {
	backoff := initialBackoff
	for attempt := 1; ; attempt++ {
		outcome, err := c.Handle(ctx, msg)
		if err == nil {
			c.metrics.IngestMessage(outcome)
			return nil
		}
		if errors.Is(err, ErrInvalidEvent) {
			c.metrics.IngestMessage("invalid")
			c.log.Warn("skipping invalid sale event", "topic", msg.Topic, "partition", msg.Partition, "offset", msg.Offset, "error", err)
			return nil
		}
		if attempt >= maxAttempts {
			c.metrics.IngestMessage("failed")
			c.log.Error("giving up on sale event", "topic", msg.Topic, "partition", msg.Partition, "offset", msg.Offset, "attempts", attempt, "error", err)
			return nil
		}

		c.log.Warn("sale event failed, retrying", "offset", msg.Offset, "attempt", attempt, "backoff", backoff, "error", err)
		if err := c.sleep(ctx, backoff); err != nil {
			return err
		}
		backoff = min(backoff*2, maxBackoff)
	}
}

// Handle records a single message and reports "recorded" or "duplicate".
// Validation failures are wrapped in ErrInvalidEvent.
func (c *Consumer) Handle(ctx context.Context, msg kafka.Message) (string, error) {
	req, err := decodeSaleEvent(msg)
	if err != nil {
		return "", err
	}

	resp, err := c.recorder.RecordSale(ctx, req)
	if errors.Is(err, store.ErrInvalidInput) {
		return "", fmt.Errorf("%w: %v", ErrInvalidEvent, err)
	}
	if err != nil {
		return "", err
	}
	if resp.Duplicate {
		return "duplicate", nil
	}
	c.log.Debug("sale recorded", "sale_id", resp.Sale.ID, "owner_id", resp.Sale.OwnerID, "external_id", resp.Sale.ExternalID)
	return "recorded", nil
}

type saleEvent struct {
	EventID    string          `json:"event_id"`
	StoreID    string          `json:"store_id"`
	OwnerID    string          `json:"owner_id"`
	Amount     decimal.Decimal `json:"amount"`
	OccurredAt *time.Time      `json:"occurred_at"`
}

// decodeSaleEvent maps a message to a sale. Events without an id fall back to
// their topic position so redelivery stays idempotent.
func decodeSaleEvent(msg kafka.Message) (domain.SaleCreateRequest, error) {
	var event saleEvent
	if err := json.Unmarshal(msg.Value, &event); err != nil {
		return domain.SaleCreateRequest{}, fmt.Errorf("%w: %v", ErrInvalidEvent, err)
	}

	ownerID := strings.TrimSpace(event.OwnerID)
	if ownerID == "" {
		return domain.SaleCreateRequest{}, fmt.Errorf("%w: owner_id is required", ErrInvalidEvent)
	}
	if event.Amount.IsNegative() {
		return domain.SaleCreateRequest{}, fmt.Errorf("%w: amount must not be negative", ErrInvalidEvent)
	}

	externalID := strings.TrimSpace(event.EventID)
	if externalID == "" {
		externalID = fmt.Sprintf("kafka:%s:%d:%d", msg.Topic, msg.Partition, msg.Offset)
	}

	return domain.SaleCreateRequest{
		StoreID:    strings.TrimSpace(event.StoreID),
		OwnerID:    ownerID,
		Amount:     event.Amount,
		OccurredAt: event.OccurredAt,
		ExternalID: externalID,
	}, nil
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
