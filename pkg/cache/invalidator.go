package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"

	"github.com/platinummonkey/accessplane/pkg/observability"
)

// DefaultInvalidationChannel is the Redis channel invalidations are published on
const DefaultInvalidationChannel = "accessplane:invalidate"

// invalidation is the wire message published on the channel
type invalidation struct {
	Origin string   `json:"origin"`
	Keys   []string `json:"keys,omitempty"`
	All    bool     `json:"all,omitempty"`
}

// Deleter is the part of Cache the Invalidator applies remote messages to
type Deleter interface {
	Delete(ctx context.Context, keys ...string) error
	Clear(ctx context.Context) error
}

// Invalidator fans key invalidations out to every instance over Redis pub/sub.
// Messages carry the publishing instance id and are ignored by their origin.
type Invalidator struct {
	client  *redis.Client
	channel string
	origin  string
	local   Deleter
	logger  *observability.Logger

	mu     sync.Mutex
	pubsub *redis.PubSub
	done   chan struct{}
}

// NewInvalidator creates an invalidator that applies remote messages to local
func NewInvalidator(client *redis.Client, channel string, local Deleter, logger *observability.Logger) *Invalidator {
	if channel == "" {
		channel = DefaultInvalidationChannel
	}
	return &Invalidator{
		client:  client,
		channel: channel,
		origin:  uuid.NewString(),
		local:   local,
		logger:  logger,
	}
}

// Start subscribes to the channel and returns once the subscription is
// confirmed. Messages are applied in a background goroutine until Close.
func (i *Invalidator) Start(ctx context.Context) error {
	i.mu.Lock()
	defer i.mu.Unlock()

	if i.pubsub != nil {
		return nil
	}

	pubsub := i.client.Subscribe(ctx, i.channel)
	if _, err := pubsub.Receive(ctx); err != nil {
		pubsub.Close()
		return fmt.Errorf("failed to subscribe to %s: %w", i.channel, err)
	}

	i.pubsub = pubsub
	i.done = make(chan struct{})
	go i.consume(pubsub.Channel(), i.done)
	return nil
}

func (i *Invalidator) consume(messages <-chan *redis.Message, done chan struct{}) {
	defer close(done)
	defer observability.RecoverPanic(i.logger, "cache invalidation consumer")

	for msg := range messages {
		var inv invalidation
		if err := json.Unmarshal([]byte(msg.Payload), &inv); err != nil {
			i.logger.WithError(err).Warn("Dropping malformed invalidation message")
			continue
		}
		if inv.Origin == i.origin {
			continue
		}

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		var err error
		if inv.All {
			err = i.local.Clear(ctx)
		} else {
			err = i.local.Delete(ctx, inv.Keys...)
		}
		cancel()

		if err != nil {
			i.logger.WithError(err).Warn("Failed to apply remote invalidation")
		}
	}
}

// Publish announces that keys changed
func (i *Invalidator) Publish(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	return i.publish(ctx, invalidation{Origin: i.origin, Keys: keys})
}

// PublishClear announces that every key changed
func (i *Invalidator) PublishClear(ctx context.Context) error {
	return i.publish(ctx, invalidation{Origin: i.origin, All: true})
}

func (i *Invalidator) publish(ctx context.Context, inv invalidation) error {
	data, err := json.Marshal(inv)
	if err != nil {
		return fmt.Errorf("failed to marshal invalidation: %w", err)
	}
	if err := i.client.Publish(ctx, i.channel, data).Err(); err != nil {
		return fmt.Errorf("failed to publish invalidation: %w", err)
	}
	return nil
}

// Close unsubscribes and waits for the consumer goroutine to exit
func (i *Invalidator) Close() error {
	i.mu.Lock()
	pubsub, done := i.pubsub, i.done
	i.pubsub, i.done = nil, nil
	i.mu.Unlock()

	if pubsub == nil {
		return nil
	}
	err := pubsub.Close()
	<-done
	return err
}

// BroadcastCache is a local cache whose deletions are also published to peers
type BroadcastCache[V any] struct {
	Cache[V]
	invalidator *Invalidator
	logger      *observability.Logger
}

// NewBroadcastCache wraps local so Delete and Clear reach every instance
func NewBroadcastCache[V any](local Cache[V], invalidator *Invalidator, logger *observability.Logger) *BroadcastCache[V] {
	return &BroadcastCache[V]{
		Cache:       local,
		invalidator: invalidator,
		logger:      logger,
	}
}

// Delete removes keys locally, then tells peers. Publish failures are only
// logged; peers then fall back to TTL expiry.
func (c *BroadcastCache[V]) Delete(ctx context.Context, keys ...string) error {
	if err := c.Cache.Delete(ctx, keys...); err != nil {
		return err
	}
	if err := c.invalidator.Publish(ctx, keys...); err != nil {
		c.logger.WithError(err).Warn("Failed to broadcast cache invalidation")
	}
	return nil
}

// Clear empties the local cache, then tells peers
func (c *BroadcastCache[V]) Clear(ctx context.Context) error {
	if err := c.Cache.Clear(ctx); err != nil {
		return err
	}
	if err := c.invalidator.PublishClear(ctx); err != nil {
		c.logger.WithError(err).Warn("Failed to broadcast cache clear")
	}
	return nil
}
