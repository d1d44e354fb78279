//go:build integration

package events

import (
	"context"
	"encoding/json"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ignite/subscriptions/internal/domain"
	"github.com/ignite/subscriptions/internal/testutil/containers"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIntegration_PublishConsumeReclaim(t *testing.T) {
	rc := containers.NewRedisContainer(t)
	ctx := context.Background()

	c := testConsumer(rc.Client, "worker-a")
	require.NoError(t, c.EnsureGroup(ctx))

	ev := sampleEvent()
	require.NoError(t, NewPublisher(rc.Client, testStream).Publish(ctx, ev))

	var attempts atomic.Int32
	got := &collector{}
	stop := runConsumer(t, c, func(_ context.Context, m Message) error {
		if attempts.Add(1) == 1 {
			return errors.New("smtp: connection reset")
		}
		got.add(m)
		return nil
	})
	require.Eventually(t, func() bool { return got.len() == 1 }, 5*time.Second, 20*time.Millisecond)
	stop()

	var decoded domain.SubscriptionCreated
	require.NoError(t, json.Unmarshal(got.msgs[0].Payload, &decoded))
	assert.Equal(t, ev, decoded)
	assert.True(t, got.msgs[0].Redelivered)

	pending, err := rc.Client.XPending(ctx, testStream, "email-delivery").Result()
	require.NoError(t, err)
	assert.Zero(t, pending.Count)
}
