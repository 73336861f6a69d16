package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/evetabi/settlement/internal/domain"
	"github.com/redis/go-redis/v9"
)

// streamMaxLen caps the event stream via XADD MAXLEN ~.
const streamMaxLen int64 = 10000

// EventBus publishes committed domain events to a pub/sub channel for live
// consumers and appends them to a stream for consumers that replay.
type EventBus struct {
	rdb     *redis.Client
	channel string
	stream  string
}

// NewEventBus creates an EventBus. An empty channel or stream disables that
// half of the delivery.
func NewEventBus(c *Client, channel, stream string) *EventBus {
	return &EventBus{rdb: c.Underlying(), channel: channel, stream: stream}
}

// Publish implements service.Publisher. Both deliveries are attempted; their
// errors are joined.
func (b *EventBus) Publish(ctx context.Context, ev domain.Event) error {
	payload, err := EncodeEvent(ev)
	if err != nil {
		return err
	}

	var errs []error
	if b.channel != "" {
		if err := b.rdb.Publish(ctx, b.channel, payload).Err(); err != nil {
			errs = append(errs, fmt.Errorf("redis: publish %s: %w", b.channel, err))
		}
	}
	if b.stream != "" {
		args := &redis.XAddArgs{
			Stream: b.stream,
			MaxLen: streamMaxLen,
			Approx: true,
			Values: map[string]interface{}{
				"type":    string(ev.Type),
				"payload": payload,
			},
		}
		if err := b.rdb.XAdd(ctx, args).Err(); err != nil {
			errs = append(errs, fmt.Errorf("redis: stream append %s: %w", b.stream, err))
		}
	}
	return errors.Join(errs...)
}

// EncodeEvent is the wire form shared by the channel and the stream.
func EncodeEvent(ev domain.Event) ([]byte, error) {
	payload, err := json.Marshal(ev)
	if err != nil {
		return nil, fmt.Errorf("redis: encode event %s: %w", ev.Type, err)
	}
	return payload, nil
}
