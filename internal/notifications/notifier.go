// Package notifications publishes cache-invalidation signals for the
// presentation layer over Redis pub/sub.
package notifications

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"runtime/debug"
	"strings"
	"time"

	"agora/internal/middleware"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// RevalidateChannel carries "this path is stale" signals.
const RevalidateChannel = "revalidate:path"

// EntityChannelPrefix prefixes per-kind change channels, e.g. "graph:community".
const EntityChannelPrefix = "graph:"

// RevalidateEvent is the payload published on RevalidateChannel.
type RevalidateEvent struct {
	ID   string    `json:"id"`
	Path string    `json:"path"`
	At   time.Time `json:"at"`
}

// EntityEvent describes a committed change to one entity.
type EntityEvent struct {
	ID       string    `json:"id"`
	Kind     string    `json:"kind"`
	EntityID string    `json:"entity_id"`
	Action   string    `json:"action"`
	At       time.Time `json:"at"`
}

// EntityChannel returns the change channel for an entity kind.
func EntityChannel(kind string) string {
	return EntityChannelPrefix + kind
}

// Notifier provides helpers to publish notifications into Redis channels
type Notifier struct {
	rdb *redis.Client
	now func() time.Time
}

// NewNotifier creates a new Notifier instance using the provided Redis client.
func NewNotifier(rdb *redis.Client) *Notifier {
	return &Notifier{rdb: rdb, now: time.Now}
}

// PublishRevalidate announces that path became stale.
func (n *Notifier) PublishRevalidate(ctx context.Context, path string) error {
	if n == nil || n.rdb == nil {
		return nil
	}
	path = strings.TrimSpace(path)
	if path == "" {
		return nil
	}
	payload, err := json.Marshal(RevalidateEvent{ID: uuid.NewString(), Path: path, At: n.now().UTC()})
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}
	return n.rdb.Publish(ctx, RevalidateChannel, payload).Err()
}

// Revalidate is the fire-and-forget form of PublishRevalidate used after
// mutations: failures are logged and never reach the caller.
func (n *Notifier) Revalidate(ctx context.Context, path string) {
	if err := n.PublishRevalidate(ctx, path); err != nil {
		middleware.Logger.WarnContext(ctx, "revalidate publish failed",
			slog.String("path", path),
			slog.String("error", err.Error()),
		)
	}
}

// PublishEntity announces a committed change to one entity.
func (n *Notifier) PublishEntity(ctx context.Context, kind, entityID, action string) error {
	if n == nil || n.rdb == nil {
		return nil
	}
	payload, err := json.Marshal(EntityEvent{
		ID:       uuid.NewString(),
		Kind:     kind,
		EntityID: entityID,
		Action:   action,
		At:       n.now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}
	return n.rdb.Publish(ctx, EntityChannel(kind), payload).Err()
}

// StartRevalidateSubscriber subscribes to RevalidateChannel and calls onEvent
// for every well-formed event until ctx is cancelled.
func (n *Notifier) StartRevalidateSubscriber(ctx context.Context, onEvent func(RevalidateEvent)) error {
	return n.subscribe(ctx, func(_ string, payload string) {
		var ev RevalidateEvent
		if err := json.Unmarshal([]byte(payload), &ev); err != nil {
			middleware.Logger.Warn("dropping malformed revalidate event", slog.String("error", err.Error()))
			return
		}
		onEvent(ev)
	}, RevalidateChannel)
}

// StartEntitySubscriber subscribes to every entity change channel.
func (n *Notifier) StartEntitySubscriber(ctx context.Context, onEvent func(EntityEvent)) error {
	return n.psubscribe(ctx, func(_ string, payload string) {
		var ev EntityEvent
		if err := json.Unmarshal([]byte(payload), &ev); err != nil {
			middleware.Logger.Warn("dropping malformed entity event", slog.String("error", err.Error()))
			return
		}
		onEvent(ev)
	}, EntityChannelPrefix+"*")
}

func (n *Notifier) subscribe(ctx context.Context, onMessage func(channel, payload string), channels ...string) error {
	if n == nil || n.rdb == nil {
		return nil
	}
	sub := n.rdb.Subscribe(ctx, channels...)
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return fmt.Errorf("subscribe %v: %w", channels, err)
	}
	go pump(ctx, sub, onMessage)
	return nil
}

func (n *Notifier) psubscribe(ctx context.Context, onMessage func(channel, payload string), patterns ...string) error {
	if n == nil || n.rdb == nil {
		return nil
	}
	sub := n.rdb.PSubscribe(ctx, patterns...)
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return fmt.Errorf("psubscribe %v: %w", patterns, err)
	}
	go pump(ctx, sub, onMessage)
	return nil
}

func pump(ctx context.Context, sub *redis.PubSub, onMessage func(channel, payload string)) {
	ch := sub.Channel()
	defer func() { _ = sub.Close() }()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			func() {
				defer func() {
					if r := recover(); r != nil {
						middleware.Logger.Error("panic in subscriber",
							slog.Any("recover", r),
							slog.String("stack", string(debug.Stack())),
						)
					}
				}()
				onMessage(msg.Channel, msg.Payload)
			}()
		}
	}
}
