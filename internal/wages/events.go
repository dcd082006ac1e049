package wages

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/redis/go-redis/v9"
)

// StatusChannel is the redis pub/sub channel carrying invoice status events.
const StatusChannel = "wage_invoices.status"

// InvoiceStatusEvent is broadcast when an invoice changes status. It is
// fire-and-forget: consumers that miss it recover by re-fetching the invoice.
type InvoiceStatusEvent struct {
	InvoiceID int64  `json:"invoiceId"`
	WarpID    int64  `json:"warpId"`
	NewStatus string `json:"newStatus"`
}

// EventPublisher broadcasts invoice status changes.
type EventPublisher interface {
	Publish(ctx context.Context, event InvoiceStatusEvent)
}

// RedisPublisher publishes events on the status channel. Publish errors are
// logged and swallowed; a broadcast miss must never fail the mutation that
// triggered it.
type RedisPublisher struct {
	client *redis.Client
	logger *slog.Logger
}

// NewRedisPublisher constructs a RedisPublisher.
func NewRedisPublisher(client *redis.Client, logger *slog.Logger) *RedisPublisher {
	return &RedisPublisher{client: client, logger: logger}
}

// Publish sends the event as JSON on StatusChannel.
func (p *RedisPublisher) Publish(ctx context.Context, event InvoiceStatusEvent) {
	if p == nil || p.client == nil {
		return
	}
	payload, err := json.Marshal(event)
	if err != nil {
		p.logger.Error("marshal invoice event", slog.Any("error", err))
		return
	}
	if err := p.client.Publish(ctx, StatusChannel, payload).Err(); err != nil {
		p.logger.Error("publish invoice event", slog.Any("error", err), slog.Int64("invoice_id", event.InvoiceID))
	}
}

// FanOut forwards each event to every wrapped publisher.
type FanOut []EventPublisher

// Publish forwards to all members.
func (f FanOut) Publish(ctx context.Context, event InvoiceStatusEvent) {
	for _, p := range f {
		if p != nil {
			p.Publish(ctx, event)
		}
	}
}
