// Package redisbus relays channel events between server instances over redis pub/sub.
package redisbus

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/0Azuree/Ledeqth-sub000/internal/core"
	"github.com/0Azuree/Ledeqth-sub000/internal/domain"
)

type Bus struct {
	client *redis.Client
	prefix string
	sink   core.Deliverer
}

var _ core.Publisher = (*Bus)(nil)

// New publishes under "<namespace>:bus:<channel>" and delivers received events to sink.
func New(client *redis.Client, namespace string, sink core.Deliverer) *Bus {
	return &Bus{client: client, prefix: namespace + ":bus:", sink: sink}
}

func (b *Bus) Publish(ctx context.Context, ev core.Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}
	if err := b.client.Publish(ctx, b.prefix+ev.Channel, data).Err(); err != nil {
		return fmt.Errorf("redis publish %s: %w", ev.Channel, err)
	}
	return nil
}

// Run blocks until ctx is done, feeding every room event to the sink.
func (b *Bus) Run(ctx context.Context) error {
	ps := b.client.PSubscribe(ctx, b.prefix+domain.ChannelPrefix+"*")
	defer ps.Close()
	if _, err := ps.Receive(ctx); err != nil {
		return fmt.Errorf("redis psubscribe: %w", err)
	}
	log.Info().Str("module", "bus.redis").Str("pattern", b.prefix+domain.ChannelPrefix+"*").Msg("subscribed")

	msgs := ps.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-msgs:
			if !ok {
				return nil
			}
			b.deliver(msg.Channel, []byte(msg.Payload))
		}
	}
}

func (b *Bus) deliver(channel string, payload []byte) {
	var ev core.Event
	if err := json.Unmarshal(payload, &ev); err != nil {
		log.Warn().Err(err).Str("module", "bus.redis").Str("channel", channel).Msg("bad event payload")
		return
	}
	if ev.Channel == "" {
		ev.Channel = strings.TrimPrefix(channel, b.prefix)
	}
	b.sink.Deliver(ev)
}

func (b *Bus) Close() error {
	return b.client.Close()
}
