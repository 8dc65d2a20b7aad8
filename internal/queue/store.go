package queue

import (
	"context"
	"time"

	"github.com/flyingrobots/vqa-workqueue/internal/vqerrors"
	"github.com/redis/go-redis/v9"
)

// Store is the minimum operation set any queue backend must provide: atomic
// per-key append (tail), non-blocking head-pop, optional blocking head-pop,
// a length query, and a disposal hook. Enqueue/dequeue on the same key are
// serialized by the store; different keys are independent.
type Store interface {
	Append(ctx context.Context, key, value string) error
	HeadPop(ctx context.Context, key string) (string, bool, error)
	BlockingHeadPop(ctx context.Context, key string, timeout time.Duration) (string, bool, error)
	Length(ctx context.Context, key string) (int64, error)
	Close() error
}

// RedisStore implements Store over go-redis/v9. Append uses RPUSH (tail);
// HeadPop/BlockingHeadPop use LPOP/BLPOP (head), so FIFO order holds per key.
type RedisStore struct {
	client *redis.Client
}

func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

func (s *RedisStore) Append(ctx context.Context, key, value string) error {
	if err := s.client.RPush(ctx, key, value).Err(); err != nil {
		return vqerrors.Wrap(vqerrors.KindQueueUnavailable, "append to queue "+key, err)
	}
	return nil
}

func (s *RedisStore) HeadPop(ctx context.Context, key string) (string, bool, error) {
	val, err := s.client.LPop(ctx, key).Result()
	if err == redis.Nil {
		return "", false, nil
	}
	if err != nil {
		return "", false, vqerrors.Wrap(vqerrors.KindQueueUnavailable, "pop from queue "+key, err)
	}
	return val, true, nil
}

func (s *RedisStore) BlockingHeadPop(ctx context.Context, key string, timeout time.Duration) (string, bool, error) {
	res, err := s.client.BLPop(ctx, timeout, key).Result()
	if err == redis.Nil {
		return "", false, nil
	}
	if err != nil {
		if ctx.Err() != nil {
			return "", false, vqerrors.Wrap(vqerrors.KindCancelled, "blocking pop cancelled on queue "+key, ctx.Err())
		}
		return "", false, vqerrors.Wrap(vqerrors.KindQueueUnavailable, "blocking pop from queue "+key, err)
	}
	// BLPop returns [key, value].
	if len(res) != 2 {
		return "", false, vqerrors.New(vqerrors.KindQueueUnavailable, "malformed BLPOP reply for queue "+key)
	}
	return res[1], true, nil
}

func (s *RedisStore) Length(ctx context.Context, key string) (int64, error) {
	n, err := s.client.LLen(ctx, key).Result()
	if err != nil {
		return 0, vqerrors.Wrap(vqerrors.KindQueueUnavailable, "length of queue "+key, err)
	}
	return n, nil
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}
