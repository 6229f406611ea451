package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/maltedev/product-import-scraper/internal/database"
	"github.com/maltedev/product-import-scraper/internal/models"
)

// EventType represents the type of event
type EventType string

const (
	// EventTypeProductScraped is published for every product a batch job extracted
	EventTypeProductScraped EventType = "PRODUCT_SCRAPED"

	ProductImportStream = database.DefaultTargetStream

	aggregateType = "product_import"
	defaultSource = "product-scraper"
)

// ProductScrapedPayload is the body of a PRODUCT_SCRAPED event
type ProductScrapedPayload struct {
	EventID       string                 `json:"event_id"`
	EventType     string                 `json:"event_type"`
	Timestamp     time.Time              `json:"timestamp"`
	JobID         string                 `json:"job_id"`
	URL           string                 `json:"url"`
	Site          models.SiteID          `json:"site"`
	Product       *models.ScrapedProduct `json:"product"`
	MissingFields []string               `json:"missing_fields,omitempty"`
	Source        string                 `json:"source"`
}

// TxRunner runs fn inside a database transaction.
type TxRunner interface {
	Transaction(ctx context.Context, fn func(pgx.Tx) error) error
}

type OutboxWriter interface {
	InsertWithTx(ctx context.Context, tx pgx.Tx, event *database.OutboxEvent) error
}

// Publisher handles event publishing using transactional outbox pattern
type Publisher struct {
	db     TxRunner
	outbox OutboxWriter
	logger *slog.Logger
}

func NewPublisher(db *database.DB, logger *slog.Logger) *Publisher {
	return newPublisher(db, database.NewOutboxRepository(db), logger)
}

func newPublisher(db TxRunner, outbox OutboxWriter, logger *slog.Logger) *Publisher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Publisher{
		db:     db,
		outbox: outbox,
		logger: logger.With("component", "event_publisher"),
	}
}

// PublishProductScraped writes a PRODUCT_SCRAPED event to the outbox in its own
// transaction.
func (p *Publisher) PublishProductScraped(ctx context.Context, payload *ProductScrapedPayload) error {
	err := p.db.Transaction(ctx, func(tx pgx.Tx) error {
		return p.PublishProductScrapedTx(ctx, tx, payload)
	})
	if err != nil {
		return fmt.Errorf("failed to publish event: %w", err)
	}
	return nil
}

// PublishProductScrapedTx writes the event using the caller's transaction, so
// the event commits or rolls back together with the caller's own writes.
func (p *Publisher) PublishProductScrapedTx(ctx context.Context, tx pgx.Tx, payload *ProductScrapedPayload) error {
	event, err := p.outboxEvent(payload)
	if err != nil {
		return err
	}

	if err := p.outbox.InsertWithTx(ctx, tx, event); err != nil {
		return fmt.Errorf("failed to insert outbox event: %w", err)
	}

	p.logger.Info("event published to outbox",
		"type", payload.EventType,
		"event_id", payload.EventID,
		"job_id", payload.JobID,
		"url", payload.URL,
		"outbox_id", event.ID,
	)
	return nil
}

func (p *Publisher) outboxEvent(payload *ProductScrapedPayload) (*database.OutboxEvent, error) {
	if payload == nil || payload.Product == nil {
		return nil, fmt.Errorf("event payload has no product")
	}

	if payload.EventID == "" {
		payload.EventID = uuid.New().String()
	}
	if payload.EventType == "" {
		payload.EventType = string(EventTypeProductScraped)
	}
	if payload.Timestamp.IsZero() {
		payload.Timestamp = time.Now()
	}
	if payload.Source == "" {
		payload.Source = defaultSource
	}
	if payload.MissingFields == nil {
		payload.MissingFields = payload.Product.MissingFields()
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal event: %w", err)
	}

	return &database.OutboxEvent{
		AggregateType: aggregateType,
		AggregateID:   payload.URL,
		EventType:     payload.EventType,
		Payload:       data,
		TargetStream:  ProductImportStream,
	}, nil
}
