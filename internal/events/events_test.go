package events

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/ignite/subscriptions/internal/domain"
	"github.com/ignite/subscriptions/internal/pkg/logger"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testStream = "newsletter-subscription-created"

func setupRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("failed to start miniredis: %v", err)
	}
	t.Cleanup(mr.Close)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, client
}

func testConsumer(client *redis.Client, name string) *Consumer {
	return NewConsumer(client, ConsumerOptions{
		Stream:    testStream,
		Group:     "email-delivery",
		Consumer:  name,
		Block:     20 * time.Millisecond,
		ClaimIdle: 30 * time.Millisecond,
	}, logger.Nop())
}

func sampleEvent() domain.SubscriptionCreated {
	return domain.SubscriptionCreated{
		Email:             "ursula@example.com",
		Name:              "Ursula",
		SubscriptionID:    uuid.New(),
		SubscriptionToken: uuid.NewString(),
	}
}

type collector struct {
	mu   sync.Mutex
	msgs []Message
}

func (c *collector) add(m Message) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.msgs = append(c.msgs, m)
}

func (c *collector) len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.msgs)
}

func runConsumer(t *testing.T, c *Consumer, h Handler) (cancel func()) {
	t.Helper()
	ctx, cancelCtx := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- c.Run(ctx, h) }()
	return func() {
		cancelCtx()
		select {
		case err := <-done:
			assert.NoError(t, err)
		case <-time.After(2 * time.Second):
			t.Fatal("consumer did not stop")
		}
	}
}

func TestPublisher_Publish(t *testing.T) {
	_, client := setupRedis(t)
	pub := NewPublisher(client, testStream)
	ev := sampleEvent()

	require.NoError(t, pub.Publish(context.Background(), ev))

	entries, err := client.XRange(context.Background(), testStream, "-", "+").Result()
	require.NoError(t, err)
	require.Len(t, entries, 1)

	var got map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(entries[0].Values["payload"].(string)), &got))
	assert.Equal(t, "ursula@example.com", got["email"])
	assert.Equal(t, "Ursula", got["name"])
	assert.Equal(t, ev.SubscriptionID.String(), got["subscription_id"])
	assert.Equal(t, ev.SubscriptionToken, got["subscription_token"])
	assert.Equal(t, testStream, pub.Stream())
}

func TestPublisher_MaxLenTrimsOldestEntries(t *testing.T) {
	_, client := setupRedis(t)
	ctx := context.Background()
	pub := NewPublisher(client, testStream, WithMaxLen(3))

	var last domain.SubscriptionCreated
	for i := 0; i < 5; i++ {
		last = sampleEvent()
		require.NoError(t, pub.Publish(ctx, last))
	}

	entries, err := client.XRange(ctx, testStream, "-", "+").Result()
	require.NoError(t, err)
	require.Len(t, entries, 3)

	var got domain.SubscriptionCreated
	require.NoError(t, json.Unmarshal([]byte(entries[2].Values["payload"].(string)), &got))
	assert.Equal(t, last, got)
}

func TestPublisher_RedisDown(t *testing.T) {
	mr, client := setupRedis(t)
	mr.Close()

	err := NewPublisher(client, testStream).Publish(context.Background(), sampleEvent())
	assert.Error(t, err)
}

func TestConsumer_AcksHandledEntries(t *testing.T) {
	_, client := setupRedis(t)
	pub := NewPublisher(client, testStream)
	c := testConsumer(client, "worker-1")
	got := &collector{}

	stop := runConsumer(t, c, func(ctx context.Context, m Message) error {
		got.add(m)
		return nil
	})
	require.NoError(t, pub.Publish(context.Background(), sampleEvent()))
	require.NoError(t, pub.Publish(context.Background(), sampleEvent()))

	require.Eventually(t, func() bool { return got.len() == 2 }, 2*time.Second, 10*time.Millisecond)
	stop()

	pending, err := client.XPending(context.Background(), testStream, "email-delivery").Result()
	require.NoError(t, err)
	assert.EqualValues(t, 0, pending.Count)

	var ev domain.SubscriptionCreated
	require.NoError(t, json.Unmarshal(got.msgs[0].Payload, &ev))
	assert.Equal(t, "ursula@example.com", ev.Email)
	assert.False(t, got.msgs[0].Redelivered)
}

func TestConsumer_ReclaimsFailedEntries(t *testing.T) {
	_, client := setupRedis(t)
	pub := NewPublisher(client, testStream)
	c := testConsumer(client, "worker-1")
	got := &collector{}

	var mu sync.Mutex
	failures := 0
	stop := runConsumer(t, c, func(ctx context.Context, m Message) error {
		got.add(m)
		mu.Lock()
		defer mu.Unlock()
		if failures == 0 {
			failures++
			return errors.New("database unavailable")
		}
		return nil
	})
	require.NoError(t, pub.Publish(context.Background(), sampleEvent()))

	require.Eventually(t, func() bool { return got.len() == 2 }, 3*time.Second, 10*time.Millisecond)
	stop()

	assert.Equal(t, got.msgs[0].ID, got.msgs[1].ID)
	assert.True(t, got.msgs[1].Redelivered)

	pending, err := client.XPending(context.Background(), testStream, "email-delivery").Result()
	require.NoError(t, err)
	assert.EqualValues(t, 0, pending.Count)
}

func TestConsumer_CompetingConsumersShareEntries(t *testing.T) {
	_, client := setupRedis(t)
	pub := NewPublisher(client, testStream)
	got := &collector{}
	h := func(ctx context.Context, m Message) error {
		got.add(m)
		return nil
	}

	stop1 := runConsumer(t, testConsumer(client, "worker-1"), h)
	stop2 := runConsumer(t, testConsumer(client, "worker-2"), h)

	const n = 10
	for i := 0; i < n; i++ {
		require.NoError(t, pub.Publish(context.Background(), sampleEvent()))
	}
	require.Eventually(t, func() bool { return got.len() >= n }, 3*time.Second, 10*time.Millisecond)
	stop1()
	stop2()

	seen := make(map[string]int)
	for _, m := range got.msgs {
		seen[m.ID]++
	}
	assert.Len(t, seen, n)
	for id, count := range seen {
		assert.Equal(t, 1, count, id)
	}
}

func TestConsumer_EnsureGroupIsIdempotent(t *testing.T) {
	_, client := setupRedis(t)
	c := testConsumer(client, "worker-1")
	require.NoError(t, c.EnsureGroup(context.Background()))
	require.NoError(t, c.EnsureGroup(context.Background()))
}

func TestConsumer_RedisDownReturnsError(t *testing.T) {
	mr, client := setupRedis(t)
	c := testConsumer(client, "worker-1")
	mr.Close()

	err := c.Run(context.Background(), func(ctx context.Context, m Message) error { return nil })
	assert.Error(t, err)
}

func TestConsumer_MissingPayloadField(t *testing.T) {
	_, client := setupRedis(t)
	got := &collector{}
	stop := runConsumer(t, testConsumer(client, "worker-1"), func(ctx context.Context, m Message) error {
		got.add(m)
		return nil
	})
	require.NoError(t, client.XAdd(context.Background(), &redis.XAddArgs{
		Stream: testStream,
		Values: map[string]interface{}{"other": "x"},
	}).Err())

	require.Eventually(t, func() bool { return got.len() == 1 }, 2*time.Second, 10*time.Millisecond)
	stop()
	assert.Nil(t, got.msgs[0].Payload)
}

func TestDefaultConsumerName(t *testing.T) {
	a, b := DefaultConsumerName(), DefaultConsumerName()
	assert.NotEqual(t, a, b)
	assert.NotEmpty(t, a)
}
