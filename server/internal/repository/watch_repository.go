package repository

import (
	"context"

	"github.com/navid-fn/minions/internal/control"
	"github.com/navid-fn/minions/internal/store"
)

// WatchRepository reads the persisted watch list and sends watch commands.
type WatchRepository interface {
	GetWatches(ctx context.Context) ([]string, error)
	SendCommand(ctx context.Context, cmd control.Command) error
}

type redisWatchRepository struct {
	lists   *store.Lists
	channel *control.Channel
	key     string
}

func NewRedisWatchRepository(lists *store.Lists, channel *control.Channel, key string) WatchRepository {
	return &redisWatchRepository{lists: lists, channel: channel, key: key}
}

func (r *redisWatchRepository) GetWatches(ctx context.Context) ([]string, error) {
	return r.lists.List(ctx, r.key)
}

func (r *redisWatchRepository) SendCommand(ctx context.Context, cmd control.Command) error {
	return r.channel.Publish(ctx, cmd)
}
