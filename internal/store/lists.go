package store

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// Lists persists ordered string lists (watch set, rankings, intervals).
type Lists struct {
	client redis.UniversalClient
}

// NewLists creates a list store on the given client.
func NewLists(client redis.UniversalClient) *Lists {
	return &Lists{client: client}
}

// List returns the whole list in insertion order.
func (l *Lists) List(ctx context.Context, key string) ([]string, error) {
	items, err := l.client.LRange(ctx, key, 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("lrange %s: %w", key, err)
	}
	return items, nil
}

// Push appends items to the tail of the list.
func (l *Lists) Push(ctx context.Context, key string, items ...string) error {
	if len(items) == 0 {
		return nil
	}
	if err := l.client.RPush(ctx, key, toArgs(items)...).Err(); err != nil {
		return fmt.Errorf("rpush %s: %w", key, err)
	}
	return nil
}

// Remove deletes every occurrence of each item.
func (l *Lists) Remove(ctx context.Context, key string, items ...string) error {
	if len(items) == 0 {
		return nil
	}
	_, err := l.client.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		for _, item := range items {
			pipe.LRem(ctx, key, 0, item)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("lrem %s: %w", key, err)
	}
	return nil
}

// Replace swaps the whole list atomically.
func (l *Lists) Replace(ctx context.Context, key string, items ...string) error {
	_, err := l.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, key)
		if len(items) > 0 {
			pipe.RPush(ctx, key, toArgs(items)...)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("replace %s: %w", key, err)
	}
	return nil
}

func toArgs(items []string) []any {
	args := make([]any, len(items))
	for i, item := range items {
		args[i] = item
	}
	return args
}
