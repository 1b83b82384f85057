package feed

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Publisher announces new samples on <prefix>:<subject>
type Publisher struct {
	client redis.UniversalClient
	prefix string
}

func NewPublisher(client redis.UniversalClient, prefix string) *Publisher {
	return &Publisher{client: client, prefix: prefix}
}

func (p *Publisher) Publish(ctx context.Context, subjectID string) error {
	channel := p.prefix + ":" + subjectID
	if err := p.client.Publish(ctx, channel, time.Now().UTC().Format(time.RFC3339Nano)).Err(); err != nil {
		return fmt.Errorf("publish %s: %w", channel, err)
	}
	return nil
}
