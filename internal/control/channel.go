package control

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

// subscriptionBuffer absorbs bursts while the consumer is busy reconciling.
const subscriptionBuffer = 64

// Channel is a Redis pub/sub channel. It has no knowledge of who publishes
// or who listens.
type Channel struct {
	client redis.UniversalClient
	name   string
	logger *logrus.Entry
}

// NewChannel binds a channel name on the given client.
func NewChannel(client redis.UniversalClient, name string, logger *logrus.Entry) *Channel {
	return &Channel{
		client: client,
		name:   name,
		logger: logger.WithField("channel", name),
	}
}

// Name returns the channel name.
func (c *Channel) Name() string {
	return c.name
}

// Publish encodes a payload and publishes it.
func (c *Channel) Publish(ctx context.Context, p Payload) error {
	raw, err := Encode(p)
	if err != nil {
		return err
	}
	return c.publish(ctx, raw)
}

// PublishJSON publishes an arbitrary JSON document, used for replies.
func (c *Channel) PublishJSON(ctx context.Context, v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode reply: %w", err)
	}
	return c.publish(ctx, raw)
}

func (c *Channel) publish(ctx context.Context, raw []byte) error {
	if err := c.client.Publish(ctx, c.name, raw).Err(); err != nil {
		return fmt.Errorf("publish %s: %w", c.name, err)
	}
	return nil
}

// Subscribe confirms the subscription with the server and then streams raw
// payloads until ctx is done. A failed confirmation is returned immediately.
func (c *Channel) Subscribe(ctx context.Context) (<-chan []byte, error) {
	ps := c.client.Subscribe(ctx, c.name)
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return nil, fmt.Errorf("subscribe %s: %w", c.name, err)
	}
	c.logger.Info("Subscribed to control channel")

	out := make(chan []byte, subscriptionBuffer)
	go func() {
		defer close(out)
		defer ps.Close()

		messages := ps.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case m, ok := <-messages:
				if !ok {
					c.logger.Warn("Control channel closed by server")
					return
				}
				select {
				case out <- []byte(m.Payload):
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	return out, nil
}
