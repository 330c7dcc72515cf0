package registry

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"

	"github.com/redis/go-redis/v9"

	"github.com/josephblackelite/spur-protocol/pkg/contracts"
	"github.com/josephblackelite/spur-protocol/pkg/schema"
)

const (
	redisKeyPrefix = "spur:adapter:"
	redisIndexKey  = "spur:adapters"
)

// Redis stores adapter contracts as JSON strings under spur:adapter:<id>,
// with the set of known ids in spur:adapters. It lets several service
// instances share one registry.
type Redis struct {
	client redis.Cmdable
}

// NewRedis wraps an existing client.
func NewRedis(client redis.Cmdable) *Redis {
	return &Redis{client: client}
}

// NewRedisFromAddr dials addr with default options.
func NewRedisFromAddr(addr, password string, db int) (*Redis, *redis.Client) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	return NewRedis(rdb), rdb
}

func redisKey(adapterID string) string {
	return redisKeyPrefix + adapterID
}

// Put validates a and stores it, replacing any previous contract with the
// same id.
func (r *Redis) Put(ctx context.Context, a contracts.AdapterContract) error {
	if err := schema.Validate(schema.KindAdapter, a); err != nil {
		return fmt.Errorf("registry: %w", err)
	}
	data, err := json.Marshal(a)
	if err != nil {
		return fmt.Errorf("registry: encode adapter %s: %w", a.AdapterID, err)
	}
	_, err = r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, redisKey(a.AdapterID), data, 0)
		pipe.SAdd(ctx, redisIndexKey, a.AdapterID)
		return nil
	})
	if err != nil {
		return fmt.Errorf("registry: store adapter %s: %w", a.AdapterID, err)
	}
	return nil
}

// Delete removes an adapter.
func (r *Redis) Delete(ctx context.Context, adapterID string) error {
	var del *redis.IntCmd
	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		del = pipe.Del(ctx, redisKey(adapterID))
		pipe.SRem(ctx, redisIndexKey, adapterID)
		return nil
	})
	if err != nil {
		return fmt.Errorf("registry: delete adapter %s: %w", adapterID, err)
	}
	if del.Val() == 0 {
		return fmt.Errorf("%w: %s", ErrAdapterNotFound, adapterID)
	}
	return nil
}

func (r *Redis) Get(ctx context.Context, adapterID string) (contracts.AdapterContract, error) {
	data, err := r.client.Get(ctx, redisKey(adapterID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return contracts.AdapterContract{}, fmt.Errorf("%w: %s", ErrAdapterNotFound, adapterID)
	}
	if err != nil {
		return contracts.AdapterContract{}, fmt.Errorf("registry: get adapter %s: %w", adapterID, err)
	}
	var a contracts.AdapterContract
	if err := json.Unmarshal(data, &a); err != nil {
		return contracts.AdapterContract{}, fmt.Errorf("registry: decode adapter %s: %w", adapterID, err)
	}
	return a, nil
}

func (r *Redis) List(ctx context.Context) ([]contracts.AdapterContract, error) {
	ids, err := r.client.SMembers(ctx, redisIndexKey).Result()
	if err != nil {
		return nil, fmt.Errorf("registry: list adapters: %w", err)
	}
	sort.Strings(ids)

	out := make([]contracts.AdapterContract, 0, len(ids))
	for _, id := range ids {
		a, err := r.Get(ctx, id)
		if errors.Is(err, ErrAdapterNotFound) {
			// Index entry outlived its record.
			continue
		}
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, nil
}

// Ping checks connectivity.
func (r *Redis) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}
