// Package mq fans feed events out across service instances over Redis
// pub/sub.
package mq

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/labstack/gommon/log"
	"github.com/redis/go-redis/v9"

	"rueda/feed"
)

const channelPrefix = "rueda:feed:"

// Broker implements feed.Broker on Redis. Every instance publishes its
// store changes here and every websocket subscribes here, so a client sees
// changes made through any instance.
type Broker struct {
	rdb    *redis.Client
	buffer int
}

var _ feed.Broker = (*Broker)(nil)

func NewBroker(rdb *redis.Client, buffer int) *Broker {
	if buffer <= 0 {
		buffer = 256
	}
	return &Broker{rdb: rdb, buffer: buffer}
}

func channel(topic string) string { return channelPrefix + topic }

func topicOf(ch string) string { return strings.TrimPrefix(ch, channelPrefix) }

func (b *Broker) Publish(ctx context.Context, ev feed.Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal %s event: %w", ev.Kind, err)
	}
	if err := b.rdb.Publish(ctx, channel(ev.Topic), data).Err(); err != nil {
		return fmt.Errorf("publish to %s: %w", ev.Topic, err)
	}
	return nil
}

// Subscribe confirms the subscription with the server before returning, so
// events published after Subscribe returns are not missed.
func (b *Broker) Subscribe(ctx context.Context, topics ...string) (*feed.Subscription, error) {
	channels := make([]string, len(topics))
	for i, t := range topics {
		channels[i] = channel(t)
	}
	ps := b.rdb.Subscribe(ctx, channels...)
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return nil, fmt.Errorf("subscribe %v: %w", topics, err)
	}

	out := make(chan feed.Event, b.buffer)
	go func() {
		defer close(out)
		dropped := false
		for msg := range ps.Channel() {
			if dropped {
				continue
			}
			var ev feed.Event
			if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
				log.Warnf("[MQ] bad payload on %s: %v", msg.Channel, err)
				continue
			}
			if ev.Topic == "" {
				ev.Topic = topicOf(msg.Channel)
			}
			select {
			case out <- ev:
			default:
				log.Warnf("[MQ] dropping slow subscriber on %s", ev.Topic)
				dropped = true
				_ = ps.Close()
			}
		}
	}()

	return feed.NewSubscription(ctx, out, func() { _ = ps.Close() }), nil
}
