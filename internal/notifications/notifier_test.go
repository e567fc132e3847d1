package notifications

import (
	"context"
	"encoding/json"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestNotifier(t *testing.T) (*Notifier, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return NewNotifier(rdb), mr
}

func TestNotifier_NilRedisIsNoop(t *testing.T) {
	n := NewNotifier(nil)
	ctx := context.Background()
	assert.NoError(t, n.PublishRevalidate(ctx, "/"))
	assert.NoError(t, n.PublishEntity(ctx, "thread", "1", "deleted"))
	assert.NoError(t, n.StartRevalidateSubscriber(ctx, func(RevalidateEvent) {}))
	n.Revalidate(ctx, "/")

	var nilNotifier *Notifier
	assert.NoError(t, nilNotifier.PublishRevalidate(ctx, "/"))
}

func TestEntityChannel(t *testing.T) {
	t.Parallel()
	assert.Equal(t, "graph:community", EntityChannel("community"))
}

func TestNotifier_RevalidateRoundTrip(t *testing.T) {
	n, _ := newTestNotifier(t)
	fixed := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	n.now = func() time.Time { return fixed }

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	events := make(chan RevalidateEvent, 1)
	require.NoError(t, n.StartRevalidateSubscriber(ctx, func(ev RevalidateEvent) { events <- ev }))

	require.NoError(t, n.PublishRevalidate(context.Background(), " /thread/7 "))

	select {
	case ev := <-events:
		assert.Equal(t, "/thread/7", ev.Path)
		assert.Equal(t, fixed, ev.At)
		assert.NotEmpty(t, ev.ID)
	case <-time.After(time.Second):
		t.Fatal("revalidate event not delivered")
	}
}

func TestNotifier_EmptyPathIsSkipped(t *testing.T) {
	n, _ := newTestNotifier(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var received int32
	require.NoError(t, n.StartRevalidateSubscriber(ctx, func(RevalidateEvent) {
		atomic.AddInt32(&received, 1)
	}))
	require.NoError(t, n.PublishRevalidate(context.Background(), "   "))
	assert.Never(t, func() bool { return atomic.LoadInt32(&received) > 0 }, 100*time.Millisecond, 10*time.Millisecond)
}

func TestNotifier_EntitySubscriber(t *testing.T) {
	n, _ := newTestNotifier(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var got atomic.Value
	require.NoError(t, n.StartEntitySubscriber(ctx, func(ev EntityEvent) { got.Store(ev) }))
	require.NoError(t, n.PublishEntity(context.Background(), "community", "c_1", "deleted"))

	assert.Eventually(t, func() bool {
		ev, ok := got.Load().(EntityEvent)
		return ok && ev.EntityID == "c_1" && ev.Action == "deleted"
	}, time.Second, 10*time.Millisecond)
}

func TestNotifier_SubscriberStopsOnCancel(t *testing.T) {
	n, mr := newTestNotifier(t)
	ctx, cancel := context.WithCancel(context.Background())

	var received int32
	require.NoError(t, n.StartRevalidateSubscriber(ctx, func(RevalidateEvent) {
		atomic.AddInt32(&received, 1)
	}))

	require.NoError(t, n.PublishRevalidate(context.Background(), "/before"))
	assert.Eventually(t, func() bool { return atomic.LoadInt32(&received) == 1 }, time.Second, 10*time.Millisecond)

	cancel()
	assert.Eventually(t, func() bool { return mr.PubSubNumSub(RevalidateChannel)[RevalidateChannel] == 0 },
		time.Second, 10*time.Millisecond)

	require.NoError(t, n.PublishRevalidate(context.Background(), "/after"))
	assert.Never(t, func() bool { return atomic.LoadInt32(&received) > 1 }, 100*time.Millisecond, 10*time.Millisecond)
}

func TestNotifier_MalformedPayloadIsDropped(t *testing.T) {
	n, mr := newTestNotifier(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	events := make(chan RevalidateEvent, 2)
	require.NoError(t, n.StartRevalidateSubscriber(ctx, func(ev RevalidateEvent) { events <- ev }))

	mr.Publish(RevalidateChannel, "not json")
	good, _ := json.Marshal(RevalidateEvent{ID: "x", Path: "/ok"})
	mr.Publish(RevalidateChannel, string(good))

	select {
	case ev := <-events:
		assert.Equal(t, "/ok", ev.Path)
	case <-time.After(time.Second):
		t.Fatal("well-formed event not delivered")
	}
}
