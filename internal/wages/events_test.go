package wages

import (
	"context"
	"encoding/json"
	"log/slog"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRedisPublisherBroadcastsJSON(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	sub := client.Subscribe(ctx, StatusChannel)
	defer sub.Close()
	_, err := sub.Receive(ctx)
	require.NoError(t, err)

	pub := NewRedisPublisher(client, slog.Default())
	pub.Publish(ctx, InvoiceStatusEvent{InvoiceID: 42, WarpID: 7, NewStatus: string(StatusApproved)})

	msg, err := sub.ReceiveMessage(ctx)
	require.NoError(t, err)
	assert.Equal(t, StatusChannel, msg.Channel)

	var got InvoiceStatusEvent
	require.NoError(t, json.Unmarshal([]byte(msg.Payload), &got))
	assert.Equal(t, int64(42), got.InvoiceID)
	assert.Equal(t, int64(7), got.WarpID)
	assert.Equal(t, "APPROVED", got.NewStatus)
}

func TestRedisPublisherNilClientIsNoop(t *testing.T) {
	var pub *RedisPublisher
	pub.Publish(context.Background(), InvoiceStatusEvent{InvoiceID: 1})
}

func TestFanOutForwardsToAllPublishers(t *testing.T) {
	first := &captureEvents{}
	second := &captureEvents{}
	fan := FanOut{first, nil, second}

	fan.Publish(context.Background(), InvoiceStatusEvent{InvoiceID: 9, NewStatus: string(StatusPaymentDone)})

	require.Len(t, first.events, 1)
	require.Len(t, second.events, 1)
	assert.Equal(t, int64(9), second.events[0].InvoiceID)
}
