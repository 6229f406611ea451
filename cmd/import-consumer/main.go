package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/maltedev/product-import-scraper/internal/config"
	"github.com/maltedev/product-import-scraper/internal/events"
	"github.com/maltedev/product-import-scraper/pkg/logger"
	"github.com/redis/go-redis/v9"
)

func main() {
	var (
		stream   = flag.String("stream", events.ProductImportStream, "Redis stream to consume")
		group    = flag.String("group", "import-consumer-group", "Consumer group name")
		consumer = flag.String("consumer", "consumer-1", "Consumer name within the group")
	)
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	// events go to stdout, logs to stderr
	log := logger.NewWithWriter(os.Stderr, cfg.Logging.Level, "text")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer rdb.Close()

	if err := rdb.Ping(ctx).Err(); err != nil {
		log.Error("failed to connect to redis", "addr", cfg.Redis.Addr, "error", err)
		os.Exit(1)
	}

	c := &Consumer{
		redis:    rdb,
		stream:   *stream,
		group:    *group,
		consumer: *consumer,
		out:      os.Stdout,
		logger:   log,
	}

	if err := c.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		log.Error("consumer stopped with error", "error", err)
		os.Exit(1)
	}
	log.Info("consumer stopped")
}

// StreamClient is the subset of *redis.Client the consumer needs.
type StreamClient interface {
	XGroupCreateMkStream(ctx context.Context, stream, group, start string) *redis.StatusCmd
	XReadGroup(ctx context.Context, a *redis.XReadGroupArgs) *redis.XStreamSliceCmd
	XAck(ctx context.Context, stream, group string, ids ...string) *redis.IntCmd
}

// Consumer reads PRODUCT_SCRAPED events from the import stream and writes
// each product as one JSON line for the downstream importer.
type Consumer struct {
	redis    StreamClient
	stream   string
	group    string
	consumer string
	out      io.Writer
	logger   *slog.Logger
}

// streamEnvelope is the "data" field the outbox relay writes.
type streamEnvelope struct {
	ID      string          `json:"id"`
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

func (c *Consumer) Run(ctx context.Context) error {
	err := c.redis.XGroupCreateMkStream(ctx, c.stream, c.group, "0").Err()
	if err != nil && !strings.Contains(err.Error(), "BUSYGROUP") {
		return fmt.Errorf("failed to create consumer group: %w", err)
	}

	c.logger.Info("starting consumer", "stream", c.stream, "group", c.group)

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		streams, err := c.redis.XReadGroup(ctx, &redis.XReadGroupArgs{
			Group:    c.group,
			Consumer: c.consumer,
			Streams:  []string{c.stream, ">"},
			Count:    10,
			Block:    5 * time.Second,
		}).Result()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				continue
			}
			if ctx.Err() != nil {
				return ctx.Err()
			}
			c.logger.Error("failed to read from stream", "error", err)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(time.Second):
			}
			continue
		}

		for _, s := range streams {
			for _, msg := range s.Messages {
				c.handle(ctx, msg)
			}
		}
	}
}

// handle acknowledges every message it could decode or deliberately skip.
// Messages that fail to write stay pending for redelivery.
func (c *Consumer) handle(ctx context.Context, msg redis.XMessage) {
	payload, err := decodeMessage(msg)
	switch {
	case errors.Is(err, errSkip):
	case err != nil:
		c.logger.Warn("dropping malformed message", "id", msg.ID, "error", err)
	default:
		if err := json.NewEncoder(c.out).Encode(payload); err != nil {
			c.logger.Error("failed to write product", "id", msg.ID, "error", err)
			return
		}
		c.logger.Info("product received",
			"job_id", payload.JobID,
			"url", payload.URL,
			"site", payload.Site,
			"missing", payload.MissingFields)
	}

	if err := c.redis.XAck(ctx, c.stream, c.group, msg.ID).Err(); err != nil {
		c.logger.Error("failed to acknowledge message", "id", msg.ID, "error", err)
	}
}

var errSkip = errors.New("not a product event")

func decodeMessage(msg redis.XMessage) (*events.ProductScrapedPayload, error) {
	if eventType, _ := msg.Values["event_type"].(string); eventType != string(events.EventTypeProductScraped) {
		return nil, errSkip
	}

	data, ok := msg.Values["data"].(string)
	if !ok {
		return nil, errors.New("missing data field")
	}

	var envelope streamEnvelope
	if err := json.Unmarshal([]byte(data), &envelope); err != nil {
		return nil, fmt.Errorf("failed to parse envelope: %w", err)
	}

	var payload events.ProductScrapedPayload
	if err := json.Unmarshal(envelope.Payload, &payload); err != nil {
		return nil, fmt.Errorf("failed to parse payload: %w", err)
	}
	if payload.Product == nil {
		return nil, errors.New("payload has no product")
	}
	return &payload, nil
}
