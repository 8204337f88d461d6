package history

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// RedisPersister keeps each feature's list as one JSON array under a key.
type RedisPersister struct {
	client *redis.Client
	prefix string
}

var _ Persister = (*RedisPersister)(nil)

func NewRedisPersister(client *redis.Client, prefix string) *RedisPersister {
	return &RedisPersister{client: client, prefix: prefix}
}

func (p *RedisPersister) key(feature Feature) string {
	return p.prefix + "history:" + string(feature)
}

func (p *RedisPersister) Save(ctx context.Context, feature Feature, entries []Entry) error {
	if entries == nil {
		entries = []Entry{}
	}
	data, err := json.Marshal(entries)
	if err != nil {
		return err
	}
	return p.client.Set(ctx, p.key(feature), data, 0).Err()
}

func (p *RedisPersister) Load(ctx context.Context, feature Feature) ([]json.RawMessage, error) {
	data, err := p.client.Get(ctx, p.key(feature)).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, nil
		}
		return nil, err
	}
	var raws []json.RawMessage
	if err := json.Unmarshal(data, &raws); err != nil {
		return nil, fmt.Errorf("decode %s history blob: %w", feature, err)
	}
	return raws, nil
}
