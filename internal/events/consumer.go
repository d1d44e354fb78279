package events

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/ignite/subscriptions/internal/pkg/logger"
	"github.com/redis/go-redis/v9"
)

// Message is one stream entry handed to a Handler.
type Message struct {
	ID      string
	Payload []byte
	// Redelivered is true when the entry was reclaimed from another
	// consumer or from an earlier failed attempt.
	Redelivered bool
}

// Handler processes one message. Returning nil acknowledges it; an error
// leaves it pending for redelivery.
type Handler func(ctx context.Context, msg Message) error

// ConsumerOptions configures a Consumer.
type ConsumerOptions struct {
	Stream   string
	Group    string
	Consumer string
	// Block is how long one read waits for new entries.
	Block time.Duration
	// ClaimIdle is how long an entry stays pending before it is reclaimed.
	ClaimIdle time.Duration
	// Count is the maximum number of entries fetched per read.
	Count int64
}

// Consumer reads a stream as one member of a consumer group.
type Consumer struct {
	client     redis.UniversalClient
	opts       ConsumerOptions
	log        *logger.Logger
	claimStart string
}

// DefaultConsumerName returns a name unique to this process.
func DefaultConsumerName() string {
	host, err := os.Hostname()
	if err != nil || host == "" {
		host = "worker"
	}
	return host + "-" + uuid.NewString()[:8]
}

// NewConsumer creates a consumer. Zero options fall back to defaults.
func NewConsumer(client redis.UniversalClient, opts ConsumerOptions, log *logger.Logger) *Consumer {
	if opts.Consumer == "" {
		opts.Consumer = DefaultConsumerName()
	}
	if opts.Block <= 0 {
		opts.Block = 5 * time.Second
	}
	if opts.ClaimIdle <= 0 {
		opts.ClaimIdle = time.Minute
	}
	if opts.Count <= 0 {
		opts.Count = 1
	}
	if log == nil {
		log = logger.Nop()
	}
	return &Consumer{
		client:     client,
		opts:       opts,
		log:        log.With("stream", opts.Stream, "group", opts.Group, "consumer", opts.Consumer),
		claimStart: "0-0",
	}
}

// EnsureGroup creates the stream and consumer group if they do not exist.
func (c *Consumer) EnsureGroup(ctx context.Context) error {
	err := c.client.XGroupCreateMkStream(ctx, c.opts.Stream, c.opts.Group, "0").Err()
	if err != nil && !strings.HasPrefix(err.Error(), "BUSYGROUP") {
		return fmt.Errorf("create consumer group %s: %w", c.opts.Group, err)
	}
	return nil
}

// Run consumes until ctx is cancelled, handing each entry to h one at a
// time. It returns nil on cancellation and an error when Redis fails.
func (c *Consumer) Run(ctx context.Context, h Handler) error {
	if err := c.EnsureGroup(ctx); err != nil {
		return err
	}
	c.log.Info("consumer started")

	for {
		if ctx.Err() != nil {
			c.log.Info("consumer stopped")
			return nil
		}

		if err := c.reclaim(ctx, h); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}

		streams, err := c.client.XReadGroup(ctx, &redis.XReadGroupArgs{
			Group:    c.opts.Group,
			Consumer: c.opts.Consumer,
			Streams:  []string{c.opts.Stream, ">"},
			Count:    c.opts.Count,
			Block:    c.opts.Block,
		}).Result()
		if errors.Is(err, redis.Nil) {
			continue
		}
		if err != nil {
			if ctx.Err() != nil {
				c.log.Info("consumer stopped")
				return nil
			}
			return fmt.Errorf("xreadgroup %s: %w", c.opts.Stream, err)
		}

		for _, stream := range streams {
			for _, msg := range stream.Messages {
				if err := c.handle(ctx, h, msg, false); err != nil {
					return err
				}
			}
		}
	}
}

// reclaim takes over entries that have been pending longer than ClaimIdle.
func (c *Consumer) reclaim(ctx context.Context, h Handler) error {
	msgs, next, err := c.client.XAutoClaim(ctx, &redis.XAutoClaimArgs{
		Stream:   c.opts.Stream,
		Group:    c.opts.Group,
		Consumer: c.opts.Consumer,
		MinIdle:  c.opts.ClaimIdle,
		Start:    c.claimStart,
		Count:    c.opts.Count,
	}).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("xautoclaim %s: %w", c.opts.Stream, err)
	}
	c.claimStart = next
	if c.claimStart == "" {
		c.claimStart = "0-0"
	}

	for _, msg := range msgs {
		if err := c.handle(ctx, h, msg, true); err != nil {
			return err
		}
	}
	return nil
}

func (c *Consumer) handle(ctx context.Context, h Handler, msg redis.XMessage, redelivered bool) error {
	var payload []byte
	if v, ok := msg.Values[payloadField].(string); ok {
		payload = []byte(v)
	}

	if err := h(ctx, Message{ID: msg.ID, Payload: payload, Redelivered: redelivered}); err != nil {
		c.log.Warn("handler failed, entry left pending", "id", msg.ID, "error", err.Error())
		return nil
	}

	// Work already done is acknowledged even during shutdown.
	if err := c.client.XAck(context.WithoutCancel(ctx), c.opts.Stream, c.opts.Group, msg.ID).Err(); err != nil {
		return fmt.Errorf("xack %s: %w", msg.ID, err)
	}
	return nil
}
