// Package notify carries operational events (a waiting conversation, an
// agent assignment, a system alert) into the admin room. Producers publish
// on a redis channel so other services do not need a reference to the
// connection layer.
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/go-redis/redis/v8"
)

type Notification struct {
	Type      string            `json:"type"`
	Title     string            `json:"title"`
	Body      string            `json:"body,omitempty"`
	Data      map[string]string `json:"data,omitempty"`
	CreatedAt string            `json:"createdAt"`
}

type Publisher struct {
	rdb     *redis.Client
	channel string
}

func NewPublisher(rdb *redis.Client, channel string) *Publisher {
	return &Publisher{
		rdb:     rdb,
		channel: channel,
	}
}

func (p *Publisher) Publish(ctx context.Context, n Notification) error {
	if p.rdb == nil {
		return fmt.Errorf("notify publish: redis client not initialised")
	}
	if n.CreatedAt == "" {
		n.CreatedAt = time.Now().UTC().Format(time.RFC3339)
	}

	payload, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("notify publish: marshal payload: %w", err)
	}

	if err := p.rdb.Publish(ctx, p.channel, payload).Err(); err != nil {
		return fmt.Errorf("notify publish: redis publish: %w", err)
	}
	return nil
}

// Bridge subscribes to the notification channel and hands every decoded
// event to the sink (the admin room broadcaster).
type Bridge struct {
	rdb     *redis.Client
	channel string
	sink    func(Notification)
}

func NewBridge(rdb *redis.Client, channel string, sink func(Notification)) *Bridge {
	return &Bridge{
		rdb:     rdb,
		channel: channel,
		sink:    sink,
	}
}

// Run blocks on the subscription until ctx is cancelled.
func (b *Bridge) Run(ctx context.Context) {
	subscriber := b.rdb.Subscribe(ctx, b.channel)
	defer subscriber.Close()

	log.Printf("notify: subscribed to channel %s", b.channel)

	ch := subscriber.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			var n Notification
			if err := json.Unmarshal([]byte(msg.Payload), &n); err != nil {
				log.Printf("notify: dropping malformed payload: %v", err)
				continue
			}
			b.sink(n)
		}
	}
}
