package secrets

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/redis/go-redis/v9"
)

const redisPrefix = "battlechain:secrets:"

// RedisStore keeps sealed secrets in Redis, for players whose client runs
// on more than one machine.
type RedisStore struct {
	rdb        redis.UniversalClient
	passphrase string
}

// NewRedisStore wraps an existing client.
func NewRedisStore(rdb redis.UniversalClient, passphrase string) *RedisStore {
	return &RedisStore{rdb: rdb, passphrase: passphrase}
}

// DialRedisStore connects to the Redis server at url (redis://...).
func DialRedisStore(ctx context.Context, url, passphrase string) (*RedisStore, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	rdb := redis.NewClient(opts)
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return NewRedisStore(rdb, passphrase), nil
}

func (r *RedisStore) Save(ctx context.Context, s *Secrets) error {
	data, err := seal(r.passphrase, s)
	if err != nil {
		return err
	}
	pipe := r.rdb.TxPipeline()
	pipe.Set(ctx, key(redisPrefix, s.Player, s.GameID), data, 0)
	pipe.SAdd(ctx, redisPrefix+s.Player, s.GameID)
	_, err = pipe.Exec(ctx)
	return err
}

func (r *RedisStore) Load(ctx context.Context, player string, gameID uint64) (*Secrets, error) {
	data, err := r.rdb.Get(ctx, key(redisPrefix, player, gameID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("%w: game %d", ErrNotFound, gameID)
	}
	if err != nil {
		return nil, err
	}
	return open(r.passphrase, data)
}

func (r *RedisStore) Delete(ctx context.Context, player string, gameID uint64) error {
	pipe := r.rdb.TxPipeline()
	pipe.Del(ctx, key(redisPrefix, player, gameID))
	pipe.SRem(ctx, redisPrefix+player, gameID)
	_, err := pipe.Exec(ctx)
	return err
}

func (r *RedisStore) Games(ctx context.Context, player string) ([]uint64, error) {
	members, err := r.rdb.SMembers(ctx, redisPrefix+player).Result()
	if err != nil {
		return nil, err
	}
	ids := make([]uint64, 0, len(members))
	for _, m := range members {
		id, err := strconv.ParseUint(strings.TrimSpace(m), 10, 64)
		if err != nil {
			return nil, fmt.Errorf("bad game id %q in set: %w", m, err)
		}
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids, nil
}

func (r *RedisStore) Close() error { return r.rdb.Close() }
