// Package cache implements the coordination cache: a document-state hot
// cache plus pub/sub fan-out of CRDT updates and awareness across hub
// instances, on top of go-redis.
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/collab-docs/backend/internal/logger"
)

const publishTimeout = 2 * time.Second

// MessageKind distinguishes the two fan-out message kinds: crdt-update
// and awareness.
type MessageKind string

const (
	MessageCRDTUpdate MessageKind = "crdt-update"
	MessageAwareness  MessageKind = "awareness"
)

// FanoutMessage is published on a document's pub/sub topic and tagged with
// the publishing instance's id, so the publisher's own subscriber can
// suppress the echo.
type FanoutMessage struct {
	Kind     MessageKind     `json:"kind"`
	OriginID string          `json:"originId"`
	PeerID   string          `json:"peerId,omitempty"` // set for awareness messages
	Payload  json.RawMessage `json:"payload"`
}

// Handler processes a fan-out message for one document id.
type Handler func(msg FanoutMessage)

// Cache wraps a Redis client providing both the hot cache and the pub/sub
// fan-out sides of document coordination. Publish is best-effort: it runs
// synchronously on the caller's goroutine, waits at most publishTimeout
// for a slow or partitioned Redis, and never returns an error.
type Cache struct {
	client *redis.Client

	mu   sync.Mutex
	subs map[string]*subscription
}

type subscription struct {
	pubsub   *redis.PubSub
	handlers []Handler
	cancel   context.CancelFunc
}

// New connects to redisURL.
func New(ctx context.Context, redisURL string) (*Cache, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("connect to redis: %w", err)
	}
	return &Cache{
		client: client,
		subs:   make(map[string]*subscription),
	}, nil
}

// Close tears down all subscriptions and the client connection.
func (c *Cache) Close() error {
	c.mu.Lock()
	for _, sub := range c.subs {
		sub.cancel()
		sub.pubsub.Close()
	}
	c.subs = make(map[string]*subscription)
	c.mu.Unlock()
	return c.client.Close()
}

// Ping reports whether Redis is reachable, for health checks.
func (c *Cache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

func updatesChannel(docID string) string { return "doc:" + docID + ":updates" }
func stateKey(docID string) string       { return "doc:" + docID + ":state" }

// Subscribe registers handler for fan-out messages on docID's topic,
// creating the underlying Redis subscription on first use. Multiple
// handlers for the same id are all invoked (the hub only ever registers
// one per live document, but this keeps the contract simple).
func (c *Cache) Subscribe(docID string, handler Handler) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if sub, ok := c.subs[docID]; ok {
		sub.handlers = append(sub.handlers, handler)
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	ps := c.client.Subscribe(ctx, updatesChannel(docID))
	sub := &subscription{pubsub: ps, handlers: []Handler{handler}, cancel: cancel}
	c.subs[docID] = sub

	go c.listen(ctx, docID, ps)
}

func (c *Cache) listen(ctx context.Context, docID string, ps *redis.PubSub) {
	ch := ps.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			var fm FanoutMessage
			if err := json.Unmarshal([]byte(msg.Payload), &fm); err != nil {
				logger.Warn("[cache] dropping malformed fan-out message for %s: %v", docID, err)
				continue
			}
			c.mu.Lock()
			sub, ok := c.subs[docID]
			var handlers []Handler
			if ok {
				handlers = append(handlers, sub.handlers...)
			}
			c.mu.Unlock()
			for _, h := range handlers {
				h(fm)
			}
		}
	}
}

// Unsubscribe tears down docID's subscription entirely (all handlers).
// Called when a live document fully drains (Draining → Gone).
func (c *Cache) Unsubscribe(docID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if sub, ok := c.subs[docID]; ok {
		sub.cancel()
		sub.pubsub.Close()
		delete(c.subs, docID)
	}
}

// Publish fans a message out to all subscribers of docID. Best-effort: a
// publish error is logged, never returned to the caller's hot path, since
// correctness never depends on fan-out delivery — a missed message only
// delays convergence to the next edit or reconnect, it never loses data.
func (c *Cache) Publish(docID string, msg FanoutMessage) {
	data, err := json.Marshal(msg)
	if err != nil {
		logger.Warn("[cache] failed to encode fan-out message for %s: %v", docID, err)
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
	defer cancel()
	if err := c.client.Publish(ctx, updatesChannel(docID), data).Err(); err != nil {
		logger.Warn("[cache] fan-out publish failed for %s: %v", docID, err)
	}
}

// GetState reads the hot-cached crdt_state bytes for docID, or (nil, nil)
// on a cache miss — callers fall back to the document store.
func (c *Cache) GetState(ctx context.Context, docID string) ([]byte, error) {
	data, err := c.client.Get(ctx, stateKey(docID)).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return data, nil
}

// SetState refreshes the hot cache with a newly-persisted snapshot.
func (c *Cache) SetState(ctx context.Context, docID string, data []byte) error {
	return c.client.Set(ctx, stateKey(docID), data, 0).Err()
}

// InvalidateState removes the hot-cache entry, e.g. after a share-API
// create/update so a later hub attach reads fresh bytes from the store.
func (c *Cache) InvalidateState(ctx context.Context, docID string) error {
	return c.client.Del(ctx, stateKey(docID)).Err()
}
